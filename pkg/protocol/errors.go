package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Decode.
var (
	// ErrMalformed is returned when a frame is not a JSON object.
	ErrMalformed = errors.New("protocol: malformed frame")

	// ErrMissingType is returned when a frame has no "type" field.
	ErrMissingType = errors.New("protocol: missing type")

	// ErrUnknownType is returned for a "type" outside the closed set.
	ErrUnknownType = errors.New("protocol: unknown type")

	// ErrInvalidField is returned when a field fails validation.
	ErrInvalidField = errors.New("protocol: invalid field")
)

// DecodeError wraps a decoding failure with the frame type, when known.
type DecodeError struct {
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("protocol: decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
