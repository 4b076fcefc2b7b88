package protocol

import "fmt"

// Type is the "type" discriminator of a frame.
type Type string

const (
	TypeUserInfo   Type = "userInfo"
	TypeCursor     Type = "cursor"
	TypeEdit       Type = "edit"
	TypeChat       Type = "chat"
	TypeReaction   Type = "reaction"
	TypeWelcome    Type = "welcome"
	TypeUserJoined Type = "userJoined"
	TypeUserLeft   Type = "userLeft"
	TypeUserCount  Type = "userCount"
	TypeRoster     Type = "roster"
	TypeError      Type = "error"
)

// FromClient reports whether clients are allowed to send frames of this type.
func (t Type) FromClient() bool {
	switch t {
	case TypeUserInfo, TypeCursor, TypeEdit, TypeChat, TypeReaction:
		return true
	default:
		return false
	}
}

// Message is implemented by every frame type in this package.
type Message interface {
	Type() Type

	// Validate checks type-specific invariants after decoding.
	Validate() error

	message()
}

// Sender identifies the connection a frame originated from. The relay
// overwrites both fields on every relayed frame.
type Sender struct {
	SenderID string `json:"senderId,omitempty"`
	Username string `json:"username,omitempty"`
}

// From returns the sender stamp.
func (s *Sender) From() Sender { return *s }

func (s *Sender) stamp(id, name string) {
	s.SenderID = id
	s.Username = name
}

// Relayed is a client frame the relay fans out to other connections.
type Relayed interface {
	Message
	From() Sender
	stamp(id, name string)
}

// Stamp records the sender identity on a relayed frame.
func Stamp(m Relayed, senderID, username string) {
	m.stamp(senderID, username)
}

// UserInfo is the identity handshake.
type UserInfo struct {
	ClientID string `json:"clientId,omitempty"`
	Username string `json:"username"`
}

// Cursor reports a caret position.
type Cursor struct {
	Sender
	Position Position `json:"position"`
}

// Edit carries one EditDelta.
type Edit struct {
	Sender
	Text  string `json:"text"`
	Range Range  `json:"range"`
}

// Delta returns the edit as an EditDelta.
func (e *Edit) Delta() EditDelta {
	return EditDelta{Range: e.Range, Text: e.Text}
}

// NewEdit builds an edit frame from a delta.
func NewEdit(d EditDelta) *Edit {
	return &Edit{Text: d.Text, Range: d.Range}
}

// Chat is a chat line. Timestamp is milliseconds since the Unix epoch.
type Chat struct {
	Sender
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Reaction reacts to the chat message identified by MessageID.
type Reaction struct {
	Sender
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

// Welcome tells a new connection the identifier the relay assigned it.
type Welcome struct {
	Sender
}

// UserJoined announces a new connection.
type UserJoined struct {
	Sender
}

// UserLeft announces a closed or evicted connection.
type UserLeft struct {
	Sender
}

// UserCount is the number of live connections.
type UserCount struct {
	Count int `json:"count"`
}

// Roster maps connection identifiers to display names.
type Roster struct {
	Users map[string]string `json:"users"`
}

// Error reports malformed input to the connection that sent it.
type Error struct {
	Message string `json:"message"`
}

func (*UserInfo) Type() Type   { return TypeUserInfo }
func (*Cursor) Type() Type     { return TypeCursor }
func (*Edit) Type() Type       { return TypeEdit }
func (*Chat) Type() Type       { return TypeChat }
func (*Reaction) Type() Type   { return TypeReaction }
func (*Welcome) Type() Type    { return TypeWelcome }
func (*UserJoined) Type() Type { return TypeUserJoined }
func (*UserLeft) Type() Type   { return TypeUserLeft }
func (*UserCount) Type() Type  { return TypeUserCount }
func (*Roster) Type() Type     { return TypeRoster }
func (*Error) Type() Type      { return TypeError }

func (*UserInfo) message()   {}
func (*Cursor) message()     {}
func (*Edit) message()       {}
func (*Chat) message()       {}
func (*Reaction) message()   {}
func (*Welcome) message()    {}
func (*UserJoined) message() {}
func (*UserLeft) message()   {}
func (*UserCount) message()  {}
func (*Roster) message()     {}
func (*Error) message()      {}

func (m *UserInfo) Validate() error {
	if m.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidField)
	}
	return nil
}

func (m *Cursor) Validate() error {
	if !m.Position.Valid() {
		return fmt.Errorf("%w: position %s", ErrInvalidField, m.Position)
	}
	return nil
}

func (m *Edit) Validate() error {
	if !m.Range.Valid() {
		return fmt.Errorf("%w: range %s", ErrInvalidField, m.Range)
	}
	return nil
}

func (m *Chat) Validate() error {
	if m.Text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidField)
	}
	return nil
}

func (m *Reaction) Validate() error {
	if m.Reaction == "" {
		return fmt.Errorf("%w: reaction is required", ErrInvalidField)
	}
	return nil
}

func (*Welcome) Validate() error    { return nil }
func (*UserJoined) Validate() error { return nil }
func (*UserLeft) Validate() error   { return nil }
func (*Roster) Validate() error     { return nil }
func (*Error) Validate() error      { return nil }

func (m *UserCount) Validate() error {
	if m.Count < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidField)
	}
	return nil
}
