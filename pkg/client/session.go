package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/collabcode/pkg/presence"
	"github.com/vango-dev/collabcode/pkg/protocol"
	"github.com/vango-dev/collabcode/pkg/reconcile"
)

var (
	// ErrNotConnected is returned by sends while the session is not
	// connected.
	ErrNotConnected = errors.New("client: not connected")

	// ErrAlreadyConnected is returned by Connect while a connection is
	// open or being opened.
	ErrAlreadyConnected = errors.New("client: already connected")
)

// Session is one client connection to the relay. It holds the local
// identity, gates outbound frames on the connection state, and turns
// inbound frames into Events.
//
// A Session does not reconnect on its own. After a disconnect or a failed
// attempt, call Connect again.
type Session struct {
	config  *Config
	handler Handler
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	ws       *websocket.Conn
	done     chan struct{}
	localID  string
	name     string
	roster   map[string]string
	rec      *reconcile.Reconciler
	renderer *presence.Renderer

	writeMu sync.Mutex
}

// New creates a disconnected Session. handler may be nil.
func New(config *Config, handler Handler) *Session {
	config = config.withDefaults()
	if handler == nil {
		handler = HandlerFunc(func(Event) {})
	}
	return &Session{
		config:  config,
		handler: handler,
		logger:  config.Logger.With("component", "client"),
		name:    config.Username,
		roster:  make(map[string]string),
	}
}

// AttachDocument makes the session apply remote edits to doc and returns
// the reconciler. Feed local change notifications to its LocalChange.
func (s *Session) AttachDocument(doc reconcile.Document) *reconcile.Reconciler {
	rec := reconcile.New(doc, s.SendEdit, s.config.Logger)
	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()
	return rec
}

// AttachRenderer makes the session draw remote cursors through r.
func (s *Session) AttachRenderer(r *presence.Renderer) {
	s.mu.Lock()
	s.renderer = r
	s.mu.Unlock()
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the identifier assigned by the relay, or "" before the
// relay's welcome arrived.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

// Name returns the local display name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Roster returns a copy of the last roster received from the relay.
func (s *Session) Roster() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.roster))
	for id, name := range s.roster {
		out[id] = name
	}
	return out
}

// Done is closed when the current connection's read loop exits. It is nil
// before the first successful Connect.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Connect dials the relay and sends the identity handshake. The attempt
// is abandoned after Config.ConnectTimeout or when ctx ends, and the
// session moves to StateFailed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.handler.HandleEvent(StatusChanged{State: StateConnecting})

	dialCtx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	ws, _, err := s.config.Dialer.DialContext(dialCtx, s.config.URL, nil)
	if err != nil {
		err = fmt.Errorf("client: connect %s: %w", s.config.URL, err)
		s.logger.Warn("connect failed", "url", s.config.URL, "error", err)
		s.setState(StateFailed, err)
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.ws = ws
	s.done = done
	s.state = StateConnected
	s.localID = ""
	s.roster = make(map[string]string)
	s.mu.Unlock()

	s.logger.Info("connected", "url", s.config.URL)
	s.handler.HandleEvent(StatusChanged{State: StateConnected})

	go s.readLoop(ws, done)

	hello := &protocol.UserInfo{ClientID: s.config.ClientID, Username: s.Name()}
	if err := s.write(hello); err != nil {
		s.logger.Warn("handshake failed", "error", err)
		return err
	}
	return nil
}

// Close closes the connection. It is a no-op when not connected.
func (s *Session) Close() error {
	s.mu.Lock()
	ws := s.ws
	if ws == nil {
		s.mu.Unlock()
		return nil
	}
	s.ws = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	err := ws.Close()
	s.resetPresence()
	s.handler.HandleEvent(StatusChanged{State: StateDisconnected})
	return err
}

// SendCursor publishes the local caret position.
func (s *Session) SendCursor(pos protocol.Position) error {
	m := &protocol.Cursor{Position: pos}
	m.Username = s.Name()
	return s.write(m)
}

// SendEdit publishes one local edit.
func (s *Session) SendEdit(d protocol.EditDelta) error {
	return s.write(protocol.NewEdit(d))
}

// SendChat publishes a chat line and returns its message identifier.
func (s *Session) SendChat(text string) (string, error) {
	m := &protocol.Chat{
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		MessageID: uuid.NewString(),
	}
	m.Username = s.Name()
	if err := s.write(m); err != nil {
		return "", err
	}
	return m.MessageID, nil
}

// SendReaction reacts to the chat line messageID.
func (s *Session) SendReaction(messageID, reaction string) error {
	m := &protocol.Reaction{MessageID: messageID, Reaction: reaction}
	m.Username = s.Name()
	return s.write(m)
}

func (s *Session) write(m protocol.Message) error {
	s.mu.Lock()
	ws, state := s.ws, s.state
	s.mu.Unlock()
	if state != StateConnected || ws == nil {
		return ErrNotConnected
	}

	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("client: send %s: %w", m.Type(), err)
	}
	return nil
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.handler.HandleEvent(StatusChanged{State: state, Err: err})
}

func (s *Session) resetPresence() {
	s.mu.Lock()
	r := s.renderer
	s.mu.Unlock()
	if r != nil {
		r.Reset()
	}
}

// readLoop delivers inbound frames until the connection fails.
func (s *Session) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			s.connectionLost(ws, err)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			s.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		s.dispatch(msg)
	}
}

// connectionLost moves to StateDisconnected unless Close already did.
func (s *Session) connectionLost(ws *websocket.Conn, err error) {
	s.mu.Lock()
	if s.ws != ws {
		s.mu.Unlock()
		return
	}
	s.ws = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	ws.Close()
	s.resetPresence()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = nil
	}
	s.logger.Info("disconnected", "error", err)
	s.handler.HandleEvent(StatusChanged{State: StateDisconnected, Err: err})
}
