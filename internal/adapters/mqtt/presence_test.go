package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dkeye/termrelay/internal/config"
	"github.com/dkeye/termrelay/internal/domain"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { <-t.done; return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	msg      PresenceMessage
}

type fakePublisher struct {
	mu   sync.Mutex
	got  []published
	err  error
	seen chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{seen: make(chan struct{}, 64)}
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var m PresenceMessage
	_ = json.Unmarshal(payload.([]byte), &m)
	f.mu.Lock()
	f.got = append(f.got, published{topic: topic, qos: qos, retained: retained, msg: m})
	f.mu.Unlock()
	f.seen <- struct{}{}
	return doneToken(f.err)
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.got...)
}

func waitPublished(t *testing.T, f *fakePublisher, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("published %d of %d", i, n)
		}
	}
}

func TestPresence_PublishesInOrder(t *testing.T) {
	pub := newFakePublisher()
	p := NewPresence(pub, "termrelay/devices", 1)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return at }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.AuthorityClaimed("d1", "c1", "")
	p.AuthorityClaimed("d1", "c2", "c1")
	p.AuthorityReleased("d1", "c2")
	waitPublished(t, pub, 3)

	got := pub.messages()
	want := []PresenceMessage{
		{DeviceID: "d1", Online: true, ConnID: "c1", At: at},
		{DeviceID: "d1", Online: true, ConnID: "c2", At: at},
		{DeviceID: "d1", Online: false, ConnID: "c2", At: at},
	}
	for i, w := range want {
		if got[i].topic != "termrelay/devices/d1/presence" {
			t.Errorf("[%d] topic = %q", i, got[i].topic)
		}
		if !got[i].retained || got[i].qos != 1 {
			t.Errorf("[%d] retained=%v qos=%d, want retained qos 1", i, got[i].retained, got[i].qos)
		}
		if !got[i].msg.At.Equal(w.At) || got[i].msg.DeviceID != w.DeviceID || got[i].msg.Online != w.Online || got[i].msg.ConnID != w.ConnID {
			t.Errorf("[%d] msg = %+v, want %+v", i, got[i].msg, w)
		}
	}
}

func TestPresence_FullQueueDoesNotBlock(t *testing.T) {
	p := NewPresence(newFakePublisher(), "x", 0)

	done := make(chan struct{})
	go func() {
		for i := 0; i < presenceBuffer*2; i++ {
			p.AuthorityClaimed(domain.DeviceID("d"), "c", "")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("observer blocked without a running worker")
	}
	if n := len(p.queue); n != presenceBuffer {
		t.Errorf("queued = %d, want %d", n, presenceBuffer)
	}
}

func TestPresence_FlushOnShutdown(t *testing.T) {
	pub := newFakePublisher()
	pub.err = errors.New("broker gone")
	p := NewPresence(pub, "x", 1)

	p.AuthorityClaimed("d1", "c1", "")
	p.AuthorityReleased("d1", "c1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	if n := len(pub.messages()); n != 2 {
		t.Errorf("published %d after shutdown, want 2", n)
	}
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(config.MQTTConfig{
		Broker:   "tcp://broker:1883",
		ClientID: "relay-1",
		Username: "u",
		Password: "p",
	})
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "broker:1883" {
		t.Errorf("servers = %v", opts.Servers)
	}
	if opts.ClientID != "relay-1" || opts.Username != "u" || opts.Password != "p" {
		t.Errorf("identity = %q %q %q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("want auto reconnect and clean session")
	}
}

func TestPresence_TopicKeepsDeviceInOneLevel(t *testing.T) {
	p := NewPresence(newFakePublisher(), "termrelay/devices", 1)
	tests := []struct {
		device domain.DeviceID
		want   string
	}{
		{"d1", "termrelay/devices/d1/presence"},
		{"a/#", "termrelay/devices/a%2F%23/presence"},
		{"x+y", "termrelay/devices/x%2By/presence"},
		{"a/b", "termrelay/devices/a%2Fb/presence"},
		{"a%2Fb", "termrelay/devices/a%252Fb/presence"},
		{"nul\x00", "termrelay/devices/nul%00/presence"},
	}
	for _, tt := range tests {
		got := p.Topic(tt.device)
		if got != tt.want {
			t.Errorf("Topic(%q) = %q, want %q", tt.device, got, tt.want)
		}
		if strings.ContainsAny(got, "+#\x00") {
			t.Errorf("Topic(%q) = %q carries a wildcard or NUL", tt.device, got)
		}
		if n := strings.Count(got, "/"); n != 3 {
			t.Errorf("Topic(%q) = %q has %d levels, want 4", tt.device, got, n+1)
		}
	}
}
