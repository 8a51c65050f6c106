package chat

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/marketlink/sellchat/logger"
	"github.com/marketlink/sellchat/service/metrics"
)

var upgrader = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }}

// HandleWS terminates one client connection. Two-phase handshake: the
// first frame is a bare identity string ("user_<id>" / "seller_<id>"),
// every later frame is a structured JSON event. Frames on one connection
// are handled to completion in arrival order; connections run
// concurrently.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[WS] upgrade error: %v", err)
		return
	}

	conn := newConn(ws)
	metrics.ConnectionsOpen.Inc()
	go conn.writePump()

	defer func() {
		s.unregister(conn)
		conn.close()
		metrics.ConnectionsOpen.Dec()
	}()

	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed conn=%s key=%s", conn.id, conn.key)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s err=%v", conn.id, rerr)
			} else {
				logger.Infof("[WS] read err conn=%s err=%v", conn.id, rerr)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		s.handleFrame(conn, data)
	}
}

// handleFrame dispatches one inbound frame according to connection state.
func (s *Server) handleFrame(conn *conn, data []byte) {
	if conn.key == "" {
		key, role, id, ok := ParseIdentityFrame(data)
		if !ok {
			// anything but an identity frame before registration is dropped
			metrics.FramesDropped.WithLabelValues("unregistered").Inc()
			logger.Infof("[WS] drop pre-registration frame conn=%s len=%d", conn.id, len(data))
			return
		}
		s.register(conn, key, role, id)
		return
	}

	ev, perr := ParseEvent(data)
	if perr != nil {
		sample := data
		if len(sample) > 256 {
			sample = sample[:256]
		}
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		logger.Infof("[WS] parse err conn=%s key=%s err=%v sample=%q", conn.id, conn.key, perr, sample)
		return
	}

	switch ev.Type {
	case EventMarkAsSeen:
		s.handleMarkSeen(ev, conn)
	default:
		s.handleChat(ev, conn)
	}
}
