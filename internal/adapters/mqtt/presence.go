// Package mqtt publishes device presence to an MQTT broker. A device is
// online while some connection holds authority for it.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/termrelay/internal/config"
	"github.com/dkeye/termrelay/internal/domain"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	keepAlive         = 60 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	presenceBuffer    = 256
)

var ErrConnectionFailed = errors.New("mqtt connection failed")

// publisher is the part of pahomqtt.Client that Presence uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// PresenceMessage is the retained payload on <prefix>/<device>/presence.
type PresenceMessage struct {
	DeviceID domain.DeviceID `json:"device_id"`
	Online   bool            `json:"online"`
	ConnID   domain.ConnID   `json:"conn_id"`
	At       time.Time       `json:"at"`
}

// Presence turns authority changes into retained presence messages. The hub
// calls it under its lock, so changes are queued and published by Run.
type Presence struct {
	pub    publisher
	prefix string
	qos    byte
	queue  chan PresenceMessage
	now    func() time.Time
}

func NewPresence(pub publisher, prefix string, qos byte) *Presence {
	return &Presence{
		pub:    pub,
		prefix: prefix,
		qos:    qos,
		queue:  make(chan PresenceMessage, presenceBuffer),
		now:    time.Now,
	}
}

func (p *Presence) AuthorityClaimed(device domain.DeviceID, conn, _ domain.ConnID) {
	p.enqueue(PresenceMessage{DeviceID: device, Online: true, ConnID: conn})
}

func (p *Presence) AuthorityReleased(device domain.DeviceID, conn domain.ConnID) {
	p.enqueue(PresenceMessage{DeviceID: device, Online: false, ConnID: conn})
}

func (p *Presence) enqueue(m PresenceMessage) {
	m.At = p.now().UTC()
	select {
	case p.queue <- m:
	default:
		log.Warn().Str("module", "adapters.mqtt").Str("device", string(m.DeviceID)).Bool("online", m.Online).
			Msg("presence queue full, update dropped")
	}
}

// Run publishes queued updates until ctx is done, then flushes what is left.
func (p *Presence) Run(ctx context.Context) {
	for {
		select {
		case m := <-p.queue:
			p.publish(m)
		case <-ctx.Done():
			for {
				select {
				case m := <-p.queue:
					p.publish(m)
				default:
					return
				}
			}
		}
	}
}

// topicEscaper percent-encodes the bytes MQTT gives meaning to in a topic, and
// '%' itself so distinct device ids never share a topic level.
var topicEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"+", "%2B",
	"#", "%23",
	"\x00", "%00",
)

// Topic is the presence topic for device, with the id as exactly one topic level.
func (p *Presence) Topic(device domain.DeviceID) string {
	return fmt.Sprintf("%s/%s/presence", p.prefix, topicEscaper.Replace(string(device)))
}

func (p *Presence) publish(m PresenceMessage) {
	payload, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.mqtt").Msg("encode presence")
		return
	}
	topic := p.Topic(m.DeviceID)
	token := p.pub.Publish(topic, p.qos, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("module", "adapters.mqtt").Str("topic", topic).Msg("presence publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.mqtt").Str("topic", topic).Msg("presence publish failed")
		return
	}
	log.Debug().Str("module", "adapters.mqtt").Str("topic", topic).Bool("online", m.Online).Msg("presence published")
}

func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("module", "adapters.mqtt").Msg("broker connection lost")
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		log.Info().Str("module", "adapters.mqtt").Str("broker", cfg.Broker).Msg("broker connected")
	})
	return opts
}

// Connect dials the broker and waits for the first connection.
func Connect(cfg config.MQTTConfig) (pahomqtt.Client, error) {
	client := pahomqtt.NewClient(clientOptions(cfg))
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return client, nil
}

// Disconnect lets pending work finish, then closes the client.
func Disconnect(client pahomqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectQuiesce)
	}
}
