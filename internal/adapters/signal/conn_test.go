package signal

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/dkeye/termrelay/internal/core"
)

// serverSide returns the server end of a fresh WebSocket connection.
func serverSide(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return <-conns
}

func TestWsSignalConn_Backpressure(t *testing.T) {
	c := newWsSignalConn(serverSide(t), 2)
	defer c.Close()

	for i := 0; i < 2; i++ {
		if err := c.TrySend(core.Frame("x")); err != nil {
			t.Fatalf("TrySend %d: %v", i, err)
		}
	}
	if err := c.TrySend(core.Frame("x")); !errors.Is(err, core.ErrBackpressure) {
		t.Errorf("TrySend on full queue = %v, want ErrBackpressure", err)
	}
}

func TestWsSignalConn_SendAfterClose(t *testing.T) {
	c := newWsSignalConn(serverSide(t), 2)
	c.Close()
	c.Close()

	if err := c.TrySend(core.Frame("x")); !errors.Is(err, core.ErrConnClosed) {
		t.Errorf("TrySend after Close = %v, want ErrConnClosed", err)
	}
}

func TestWsSignalConn_CloseRacesSend(t *testing.T) {
	c := newWsSignalConn(serverSide(t), 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.TrySend(core.Frame("x"))
			}
		}()
	}
	c.Close()
	wg.Wait()
}
