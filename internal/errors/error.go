package errors

import (
	stderrors "errors"
	"fmt"
)

// Category groups error codes.
type Category string

const (
	CategoryConfig     Category = "config"
	CategoryCLI        Category = "cli"
	CategoryConnection Category = "connection"
	CategoryDocument   Category = "document"
)

// CollabError is a structured error with a code and an optional fix
// suggestion.
type CollabError struct {
	// Code is a unique error identifier (e.g., "C101").
	Code string

	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *CollabError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CollabError) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation to the error.
func (e *CollabError) WithDetail(d string) *CollabError {
	e.Detail = d
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *CollabError) WithSuggestion(s string) *CollabError {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *CollabError) Wrap(err error) *CollabError {
	e.Wrapped = err
	if e.Detail == "" && err != nil {
		e.Detail = err.Error()
	}
	return e
}

// New creates a CollabError from a registered error code.
func New(code string) *CollabError {
	template, ok := registry[code]
	if !ok {
		return &CollabError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &CollabError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Suggestion: template.Suggestion,
	}
}

// Newf creates an uncoded CollabError with a formatted message.
func Newf(category Category, format string, args ...any) *CollabError {
	return &CollabError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in a CollabError with code unless it already is
// one.
func FromError(err error, code string) *CollabError {
	if err == nil {
		return nil
	}
	var ce *CollabError
	if stderrors.As(err, &ce) {
		return ce
	}
	return New(code).Wrap(err)
}
