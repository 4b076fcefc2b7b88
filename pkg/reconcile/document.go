package reconcile

import (
	"context"
	"errors"

	"github.com/vango-dev/collabcode/pkg/protocol"
)

// ErrRangeOutOfBounds is returned by Document.Replace when the range does
// not address text that exists in the document.
var ErrRangeOutOfBounds = errors.New("reconcile: range out of bounds")

// Document is the editor a Reconciler mutates. Positions are 0-based with
// characters counted in UTF-16 code units.
//
// Replace must not return until the mutation is visible, even when the
// underlying editor applies edits asynchronously.
type Document interface {
	Text() string
	Replace(ctx context.Context, r protocol.Range, text string) error
}

// Origin says who caused a ChangeEvent.
type Origin int

const (
	// OriginUnknown is reported by documents that cannot tell their own
	// edits apart. The Reconciler drops such events while a remote delta is
	// being applied.
	OriginUnknown Origin = iota
	// OriginLocal marks an edit made by the local user.
	OriginLocal
	// OriginRemote marks the echo of a delta applied by ApplyRemote.
	OriginRemote
)

// ChangeEvent is one change notification from a Document. Changes are
// listed in the order the editor reported them.
type ChangeEvent struct {
	Changes []protocol.EditDelta
	Origin  Origin
}

type remoteKey struct{}

// WithRemote marks ctx as carrying a remote apply. ApplyRemote passes
// such a context to Document.Replace.
func WithRemote(ctx context.Context) context.Context {
	return context.WithValue(ctx, remoteKey{}, true)
}

// IsRemote reports whether ctx was marked by WithRemote. Documents that
// emit change events from inside Replace use it to set OriginRemote.
func IsRemote(ctx context.Context) bool {
	remote, _ := ctx.Value(remoteKey{}).(bool)
	return remote
}

// originOf returns the Origin for an event emitted under ctx.
func originOf(ctx context.Context) Origin {
	if IsRemote(ctx) {
		return OriginRemote
	}
	return OriginLocal
}
