// Package presence renders remote cursors. Each sender gets one color
// from a fixed palette and at most one visible marker.
package presence

import (
	"log/slog"
	"sync"

	"github.com/vango-dev/collabcode/pkg/protocol"
)

// Color is a "#RRGGBB" color.
type Color string

// DefaultPalette is handed out in order until exhausted.
var DefaultPalette = []Color{
	"#E06C75", "#61AFEF", "#98C379", "#E5C07B",
	"#C678DD", "#56B6C2", "#D19A66", "#BE5046",
}

// OtherColor is used once the palette is exhausted.
const OtherColor Color = "#808080"

// Marker is a visible cursor decoration.
type Marker interface {
	Dispose()
}

// Decorator draws cursor markers. It is implemented by the UI. The
// Renderer calls Decorate and Marker.Dispose without holding its lock, so
// both may call back into the Renderer.
type Decorator interface {
	Decorate(senderID, name string, color Color, pos protocol.Position) Marker
}

// DecoratorFunc adapts a function to Decorator.
type DecoratorFunc func(senderID, name string, color Color, pos protocol.Position) Marker

func (f DecoratorFunc) Decorate(senderID, name string, color Color, pos protocol.Position) Marker {
	return f(senderID, name, color, pos)
}

// Renderer tracks the color and current marker of every remote sender.
// It is safe for concurrent use.
type Renderer struct {
	decorator Decorator
	logger    *slog.Logger

	mu      sync.Mutex
	free    []Color
	colors  map[string]Color
	markers map[string]Marker
	// gens holds the latest Cursor generation per sender. A marker whose
	// generation was superseded while it was being drawn is disposed.
	gens map[string]uint64
	seq  uint64
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithPalette replaces DefaultPalette.
func WithPalette(palette []Color) Option {
	return func(r *Renderer) {
		r.free = append([]Color(nil), palette...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// NewRenderer creates a Renderer drawing through d.
func NewRenderer(d Decorator, opts ...Option) *Renderer {
	r := &Renderer{
		decorator: d,
		free:      append([]Color(nil), DefaultPalette...),
		colors:    make(map[string]Color),
		markers:   make(map[string]Marker),
		gens:      make(map[string]uint64),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "presence")
	return r
}

// Cursor replaces the marker of senderID with one at pos.
func (r *Renderer) Cursor(senderID, name string, pos protocol.Position) {
	r.mu.Lock()
	color := r.colorLocked(senderID)
	r.seq++
	gen := r.seq
	r.gens[senderID] = gen
	old := r.markers[senderID]
	delete(r.markers, senderID)
	r.mu.Unlock()

	if old != nil {
		old.Dispose()
	}
	m := r.decorator.Decorate(senderID, name, color, pos)
	if m == nil {
		return
	}

	r.mu.Lock()
	if r.gens[senderID] != gen {
		// A newer Cursor or a Leave ran while drawing.
		r.mu.Unlock()
		m.Dispose()
		return
	}
	stale := r.markers[senderID]
	r.markers[senderID] = m
	r.mu.Unlock()

	if stale != nil {
		stale.Dispose()
	}
}

// Leave disposes the marker of senderID and releases its color.
func (r *Renderer) Leave(senderID string) {
	r.mu.Lock()
	m := r.markers[senderID]
	delete(r.markers, senderID)
	delete(r.gens, senderID)
	if c, ok := r.colors[senderID]; ok {
		delete(r.colors, senderID)
		if c != OtherColor {
			r.free = append(r.free, c)
		}
	}
	r.mu.Unlock()

	if m != nil {
		m.Dispose()
	}
}

// Reset disposes every marker and releases every color.
func (r *Renderer) Reset() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.colors))
	for id := range r.colors {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Leave(id)
	}
}

// Color returns the color assigned to senderID, if any.
func (r *Renderer) Color(senderID string) (Color, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.colors[senderID]
	return c, ok
}

// Markers returns the number of visible markers.
func (r *Renderer) Markers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markers)
}

func (r *Renderer) colorLocked(senderID string) Color {
	if c, ok := r.colors[senderID]; ok {
		return c
	}
	c := OtherColor
	if len(r.free) > 0 {
		c = r.free[0]
		r.free = r.free[1:]
	} else {
		r.logger.Debug("palette exhausted", "sender_id", senderID)
	}
	r.colors[senderID] = c
	return c
}
