package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// newMessage returns an empty value for the given frame type.
func newMessage(t Type) (Message, bool) {
	switch t {
	case TypeUserInfo:
		return &UserInfo{}, true
	case TypeCursor:
		return &Cursor{}, true
	case TypeEdit:
		return &Edit{}, true
	case TypeChat:
		return &Chat{}, true
	case TypeReaction:
		return &Reaction{}, true
	case TypeWelcome:
		return &Welcome{}, true
	case TypeUserJoined:
		return &UserJoined{}, true
	case TypeUserLeft:
		return &UserLeft{}, true
	case TypeUserCount:
		return &UserCount{}, true
	case TypeRoster:
		return &Roster{}, true
	case TypeError:
		return &Error{}, true
	default:
		return nil, false
	}
}

// Decode parses one frame. The returned error wraps one of the sentinel
// errors in this package.
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, &DecodeError{Err: ErrMalformed}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, &DecodeError{Err: ErrMalformed}
	}

	typ := root.Get("type")
	if !typ.Exists() || typ.Type != gjson.String || typ.Str == "" {
		return nil, &DecodeError{Err: ErrMissingType}
	}
	t := Type(typ.Str)

	m, ok := newMessage(t)
	if !ok {
		return nil, &DecodeError{Type: t, Err: ErrUnknownType}
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, &DecodeError{Type: t, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if err := m.Validate(); err != nil {
		return nil, &DecodeError{Type: t, Err: err}
	}
	return m, nil
}

// Encode serializes m with its "type" discriminator.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Type(), err)
	}
	out, err := sjson.SetBytes(body, "type", string(m.Type()))
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Type(), err)
	}
	return out, nil
}

// MustEncode is Encode for frames that cannot fail to marshal. It panics
// on error.
func MustEncode(m Message) []byte {
	data, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return data
}

// NewError builds an error frame from err.
func NewError(err error) *Error {
	return &Error{Message: err.Error()}
}
