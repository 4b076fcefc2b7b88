package client

import (
	"time"

	"github.com/vango-dev/collabcode/pkg/protocol"
)

// Event is a notification delivered to a Handler. The set of events is
// closed; switch on the concrete type.
type Event interface {
	event()
}

// Ready is delivered once the relay has assigned the session its
// identifier.
type Ready struct {
	ID   string
	Name string
}

// CursorMoved reports a remote caret position.
type CursorMoved struct {
	SenderID string
	Name     string
	Position protocol.Position
}

// Edited reports a remote edit. It is delivered after the edit was
// applied to the attached document, if any.
type Edited struct {
	SenderID string
	Name     string
	Delta    protocol.EditDelta
}

// Joined reports a new remote participant.
type Joined struct {
	SenderID string
	Name     string
}

// Left reports a departed remote participant.
type Left struct {
	SenderID string
	Name     string
}

// Renamed reports a changed display name.
type Renamed struct {
	SenderID string
	OldName  string
	Name     string
}

// Chatted reports a chat line.
type Chatted struct {
	SenderID  string
	Name      string
	Text      string
	MessageID string
	Time      time.Time
}

// Reacted reports a reaction to a chat line.
type Reacted struct {
	SenderID  string
	Name      string
	MessageID string
	Reaction  string
}

// CountChanged reports the number of live connections.
type CountChanged struct {
	Count int
}

// StatusChanged reports a session state transition. Err is set for
// failures and unexpected disconnects.
type StatusChanged struct {
	State State
	Err   error
}

// ServerError is an error frame sent by the relay in answer to a frame
// it refused.
type ServerError struct {
	Message string
}

func (Ready) event()         {}
func (CursorMoved) event()   {}
func (Edited) event()        {}
func (Joined) event()        {}
func (Left) event()          {}
func (Renamed) event()       {}
func (Chatted) event()       {}
func (Reacted) event()       {}
func (CountChanged) event()  {}
func (StatusChanged) event() {}
func (ServerError) event()   {}

// Handler receives session events. Frame events are delivered from the
// session's read goroutine in arrival order; a slow handler delays
// subsequent frames.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(ev Event) { f(ev) }
