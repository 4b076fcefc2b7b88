package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/vango-dev/collabcode/pkg/protocol"
)

// SendFunc delivers one outbound delta.
type SendFunc func(protocol.EditDelta) error

// Reconciler converts local change notifications into outbound deltas
// and applies inbound deltas to a Document.
//
// Events tagged OriginLocal are always sent and events tagged
// OriginRemote never are. Untagged events are dropped while any
// ApplyRemote is in flight, which also drops a genuine local edit that
// races the apply. Documents that can tell the two apart should tag.
type Reconciler struct {
	doc      Document
	send     SendFunc
	suppress atomic.Int32
	logger   *slog.Logger
}

// New creates a Reconciler that applies remote deltas to doc and sends
// local ones through send.
func New(doc Document, send SendFunc, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		doc:    doc,
		send:   send,
		logger: logger.With("component", "reconciler"),
	}
}

// Document returns the reconciled document.
func (r *Reconciler) Document() Document {
	return r.doc
}

// Suppressed reports whether a remote delta is being applied.
func (r *Reconciler) Suppressed() bool {
	return r.suppress.Load() > 0
}

// LocalChange sends one delta per change record. Remote echoes are
// ignored, as are untagged notifications arriving while a remote delta
// is being applied.
func (r *Reconciler) LocalChange(ev ChangeEvent) error {
	switch ev.Origin {
	case OriginRemote:
		return nil
	case OriginUnknown:
		if r.Suppressed() {
			return nil
		}
	}
	for _, d := range ev.Changes {
		if d.IsNoop() {
			continue
		}
		if err := r.send(d); err != nil {
			return err
		}
	}
	return nil
}

// ApplyRemote applies d to the document with outbound sending suppressed
// until Replace returns. A stale range is logged and dropped.
func (r *Reconciler) ApplyRemote(ctx context.Context, d protocol.EditDelta) error {
	r.suppress.Add(1)
	defer r.suppress.Add(-1)

	err := r.doc.Replace(WithRemote(ctx), d.Range, d.Text)
	if errors.Is(err, ErrRangeOutOfBounds) {
		r.logger.Debug("dropping stale remote edit", "range", d.Range.String(), "error", err)
		return nil
	}
	return err
}
