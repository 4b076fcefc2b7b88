package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport adapts a gorilla WebSocket to registry.Transport. Sends and
// pings are queued and written by a single writer goroutine, so callers
// never block on a slow peer.
type wsTransport struct {
	ws           *websocket.Conn
	send         chan []byte
	ping         chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	logger       *slog.Logger
}

func newWSTransport(ws *websocket.Conn, queue int, writeTimeout time.Duration, logger *slog.Logger) *wsTransport {
	return &wsTransport{
		ws:           ws,
		send:         make(chan []byte, queue),
		ping:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Send queues frame for the writer. It fails instead of blocking when the
// queue is full.
func (t *wsTransport) Send(frame []byte) error {
	select {
	case <-t.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case t.send <- frame:
		return nil
	case <-t.done:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

// Ping requests a WebSocket ping. Pending pings coalesce.
func (t *wsTransport) Ping() error {
	select {
	case <-t.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case t.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close sends a close frame and closes the socket.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = t.ws.Close()
	})
	return err
}

// writeLoop drains the send and ping queues until the transport closes.
func (t *wsTransport) writeLoop() {
	for {
		select {
		case frame := <-t.send:
			t.ws.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			if err := t.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				t.logger.Debug("write error", "error", err)
				t.Close()
				return
			}

		case <-t.ping:
			deadline := time.Now().Add(t.writeTimeout)
			if err := t.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.logger.Debug("ping error", "error", err)
				t.Close()
				return
			}

		case <-t.done:
			return
		}
	}
}

// readLoop reads frames from the socket and hands them to the hub until
// the socket fails. It then asks the hub to remove the connection.
func (s *Server) readLoop(id string, t *wsTransport) {
	defer s.leave(id, LeaveClosed)

	for {
		_, msg, err := t.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "conn_id", id, "error", err)
			}
			return
		}

		// Any frame proves the peer is alive.
		s.registry.Touch(id)

		if !s.submit(hubEvent{kind: eventFrame, id: id, frame: msg}) {
			return
		}
	}
}
