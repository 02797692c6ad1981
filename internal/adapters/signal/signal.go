package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/termrelay/internal/adapters/auth"
	"github.com/dkeye/termrelay/internal/app"
	"github.com/dkeye/termrelay/internal/config"
	"github.com/dkeye/termrelay/internal/core"
)

// PumpConfig holds the per-connection transport limits.
type PumpConfig struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func PumpConfigFrom(cfg *config.Config) PumpConfig {
	return PumpConfig{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}
}

type SignalWSController struct {
	Hub *app.Hub
	cfg PumpConfig
}

func NewSignalWSController(hub *app.Hub, cfg PumpConfig) *SignalWSController {
	return &SignalWSController{Hub: hub, cfg: cfg}
}

// WsSignalConn is the WebSocket side of core.SignalConnection. The send
// queue is never closed; closing done ends the connection instead.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame
	done chan struct{}
	once sync.Once
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
		done: make(chan struct{}),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	select {
	case <-c.done:
		return core.ErrConnClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return core.ErrConnClosed
	default:
		return core.ErrBackpressure
	}
}

// Close ends the connection once; later calls are no-ops.
func (c *WsSignalConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy belongs to the auth layer in front of this endpoint.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	principal := auth.PrincipalFrom(c)

	// The upgrade bypasses c.Writer, so carry over the session cookie by hand.
	var hdr http.Header
	if cookies := c.Writer.Header().Values("Set-Cookie"); len(cookies) > 0 {
		hdr = http.Header{"Set-Cookie": cookies}
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, hdr)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := newWsSignalConn(ws, ctl.cfg.SendBuffer)

	id, err := ctl.Hub.Connect(conn, principal)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("connection refused")
		conn.Close()
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("remote", c.ClientIP()).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(id, conn)
}
