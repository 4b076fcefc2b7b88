package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-dev/collabcode/pkg/protocol"
)

func TestByteOffset(t *testing.T) {
	text := "ab\nc😀d\n"
	tests := []struct {
		pos  protocol.Position
		want int
		err  error
	}{
		{protocol.Position{Line: 0, Character: 0}, 0, nil},
		{protocol.Position{Line: 0, Character: 2}, 2, nil},
		{protocol.Position{Line: 1, Character: 1}, 4, nil},
		{protocol.Position{Line: 1, Character: 3}, 8, nil},
		{protocol.Position{Line: 1, Character: 4}, 9, nil},
		{protocol.Position{Line: 2, Character: 0}, 10, nil},
		{protocol.Position{Line: 1, Character: 2}, 0, ErrRangeOutOfBounds},
		{protocol.Position{Line: 0, Character: 3}, 0, ErrRangeOutOfBounds},
		{protocol.Position{Line: 3, Character: 0}, 0, ErrRangeOutOfBounds},
	}
	for _, tt := range tests {
		got, err := ByteOffset(text, tt.pos)
		if !errors.Is(err, tt.err) {
			t.Errorf("ByteOffset(%s) error = %v, want %v", tt.pos, err, tt.err)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ByteOffset(%s) = %d, want %d", tt.pos, got, tt.want)
		}
	}
}

func TestPositionAtInvertsByteOffset(t *testing.T) {
	text := "héllo\nw😀rld\n\nend"
	for offset := range text {
		pos := PositionAt(text, offset)
		back, err := ByteOffset(text, pos)
		if err != nil {
			t.Fatalf("ByteOffset(PositionAt(%d)=%s) = %v", offset, pos, err)
		}
		if back != offset {
			t.Errorf("offset %d -> %s -> %d", offset, pos, back)
		}
	}
}

func TestTextBufferMultilineReplace(t *testing.T) {
	buf := NewTextBuffer("one\ntwo\nthree")
	var events []ChangeEvent
	buf.OnChange(func(ev ChangeEvent) { events = append(events, ev) })

	r := protocol.Range{
		Start: protocol.Position{Line: 0, Character: 2},
		End:   protocol.Position{Line: 2, Character: 1},
	}
	if err := buf.Replace(context.Background(), r, "-"); err != nil {
		t.Fatal(err)
	}
	if got := buf.Text(); got != "on-hree" {
		t.Errorf("Text() = %q", got)
	}
	if len(events) != 1 || events[0].Changes[0].Range != r {
		t.Errorf("events = %+v", events)
	}
}

func TestTextBufferCancelledContext(t *testing.T) {
	buf := NewTextBuffer("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := buf.Insert(ctx, protocol.Position{}, "y"); !errors.Is(err, context.Canceled) {
		t.Errorf("Insert() = %v, want context.Canceled", err)
	}
}
