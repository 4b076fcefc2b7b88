package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vango-dev/collabcode/pkg/protocol"
)

type fakeMarker struct {
	mu       *sync.Mutex
	id       string
	pos      protocol.Position
	disposed bool
}

func (m *fakeMarker) Dispose() {
	m.mu.Lock()
	m.disposed = true
	m.mu.Unlock()
}

type fakeDecorator struct {
	mu      sync.Mutex
	markers []*fakeMarker
}

func (d *fakeDecorator) Decorate(senderID, name string, color Color, pos protocol.Position) Marker {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := &fakeMarker{mu: &d.mu, id: senderID, pos: pos}
	d.markers = append(d.markers, m)
	return m
}

func (d *fakeDecorator) visible(id string) []*fakeMarker {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*fakeMarker
	for _, m := range d.markers {
		if m.id == id && !m.disposed {
			out = append(out, m)
		}
	}
	return out
}

func TestRapidCursorUpdatesLeaveOneMarker(t *testing.T) {
	d := &fakeDecorator{}
	r := NewRenderer(d)

	r.Cursor("a", "ann", protocol.Position{Line: 1, Character: 1})
	r.Cursor("a", "ann", protocol.Position{Line: 1, Character: 2})

	visible := d.visible("a")
	if len(visible) != 1 {
		t.Fatalf("visible markers = %d, want 1", len(visible))
	}
	if visible[0].pos.Character != 2 {
		t.Errorf("visible marker at %s, want the latest position", visible[0].pos)
	}
	if r.Markers() != 1 {
		t.Errorf("Markers() = %d, want 1", r.Markers())
	}
}

func TestColorStableAndDistinct(t *testing.T) {
	r := NewRenderer(&fakeDecorator{})
	r.Cursor("a", "", protocol.Position{})
	r.Cursor("b", "", protocol.Position{})
	r.Cursor("a", "", protocol.Position{Line: 3})

	ca, _ := r.Color("a")
	cb, _ := r.Color("b")
	if ca != DefaultPalette[0] || cb != DefaultPalette[1] {
		t.Errorf("colors = %s, %s", ca, cb)
	}
}

func TestPaletteExhaustionFallsBack(t *testing.T) {
	r := NewRenderer(&fakeDecorator{}, WithPalette([]Color{"#111111", "#222222"}))
	for _, id := range []string{"a", "b", "c", "d"} {
		r.Cursor(id, "", protocol.Position{})
	}
	if c, _ := r.Color("c"); c != OtherColor {
		t.Errorf("third color = %s, want %s", c, OtherColor)
	}

	// A released palette color is reused.
	r.Leave("a")
	r.Cursor("e", "", protocol.Position{})
	if c, _ := r.Color("e"); c != "#111111" {
		t.Errorf("reused color = %s, want #111111", c)
	}
}

func TestLeaveDisposesMarker(t *testing.T) {
	d := &fakeDecorator{}
	r := NewRenderer(d)
	r.Cursor("a", "", protocol.Position{})
	r.Cursor("b", "", protocol.Position{})

	r.Leave("a")
	if n := len(d.visible("a")); n != 0 {
		t.Errorf("a still has %d markers", n)
	}
	if _, ok := r.Color("a"); ok {
		t.Error("a still has a color")
	}
	r.Leave("a")

	r.Reset()
	if r.Markers() != 0 || len(d.visible("b")) != 0 {
		t.Error("Reset() left markers")
	}
}

// reentrantDecorator queries the renderer from inside its callbacks.
type reentrantDecorator struct {
	fakeDecorator
	r *Renderer
}

func (d *reentrantDecorator) Decorate(senderID, name string, color Color, pos protocol.Position) Marker {
	if c, ok := d.r.Color(senderID); !ok || c != color {
		panic(fmt.Sprintf("Color(%s) = %s, %v during Decorate", senderID, c, ok))
	}
	d.r.Markers()
	return reentrantMarker{d.fakeDecorator.Decorate(senderID, name, color, pos), d.r}
}

type reentrantMarker struct {
	Marker
	r *Renderer
}

func (m reentrantMarker) Dispose() {
	m.r.Markers()
	m.Marker.Dispose()
}

func TestDecoratorMayCallRenderer(t *testing.T) {
	d := &reentrantDecorator{}
	r := NewRenderer(d)
	d.r = r

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Cursor("a", "ann", protocol.Position{Line: 0})
		r.Cursor("a", "ann", protocol.Position{Line: 1})
		r.Leave("a")
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("renderer deadlocked on a re-entrant decorator")
	}
	if len(d.visible("a")) != 0 {
		t.Errorf("visible markers after leave = %d", len(d.visible("a")))
	}
}

func TestConcurrentCursorsLeaveOneMarker(t *testing.T) {
	d := &fakeDecorator{}
	r := NewRenderer(d)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Cursor("a", "ann", protocol.Position{Character: i})
		}(i)
	}
	wg.Wait()

	if n := len(d.visible("a")); n != 1 {
		t.Errorf("visible markers = %d, want 1", n)
	}
	if r.Markers() != 1 {
		t.Errorf("Markers() = %d, want 1", r.Markers())
	}
}
