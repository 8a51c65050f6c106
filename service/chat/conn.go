package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/marketlink/sellchat/logger"
	"github.com/marketlink/sellchat/service/metrics"
	"github.com/marketlink/sellchat/tools/ids"
)

const sendQueueSize = 64

// conn wraps one WebSocket with a per-connection send queue drained by a
// single write pump, so routing never blocks on a slow peer while holding
// the registry lock.
type conn struct {
	id   string // gateway-local conn id
	key  string // identity key, set on registration
	ws   *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		id:   ids.GenerateString(),
		ws:   ws,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// writePump owns all writes to the socket. A write error tears the
// connection down so the read loop unblocks and unregisters the identity;
// a dead pump must not leave the conn registered.
func (c *conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := writeText(c.ws, data, 5); err != nil {
				logger.Infof("[WS] write err conn=%s key=%s err=%v", c.id, c.key, err)
				c.close()
				return
			}
		}
	}
}

// push enqueues a frame without blocking. Live delivery is best-effort: if
// the queue is full the frame is dropped with a warning.
func (c *conn) push(data []byte) {
	select {
	case c.send <- data:
	case <-c.done:
	default:
		metrics.FramesDropped.WithLabelValues("backpressure").Inc()
		logger.Warnf("[WS] send queue full, drop frame conn=%s key=%s", c.id, c.key)
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		closeQuiet(c.ws)
	})
}

func writeText(ws *websocket.Conn, data []byte, deadlineSec int) error {
	if ws == nil {
		return errors.New("nil conn")
	}
	if err := ws.SetWriteDeadline(time.Now().Add(time.Duration(deadlineSec) * time.Second)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

func closeQuiet(ws *websocket.Conn) {
	if ws != nil {
		_ = ws.Close()
	}
}
