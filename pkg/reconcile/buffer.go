package reconcile

import (
	"context"
	"strings"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/vango-dev/collabcode/pkg/protocol"
)

// TextBuffer is an in-memory Document. Every successful Replace is
// reported to the registered listeners after the buffer is updated, tagged
// OriginRemote when ctx came from ApplyRemote and OriginLocal otherwise.
type TextBuffer struct {
	mu        sync.RWMutex
	text      string
	listeners []func(ChangeEvent)
}

// NewTextBuffer creates a buffer holding text.
func NewTextBuffer(text string) *TextBuffer {
	return &TextBuffer{text: text}
}

// Text returns the current contents.
func (b *TextBuffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// OnChange registers fn to be called after every change.
func (b *TextBuffer) OnChange(fn func(ChangeEvent)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Replace replaces the text covered by r.
func (b *TextBuffer) Replace(ctx context.Context, r protocol.Range, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	start, end, err := byteRange(b.text, r)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.text = b.text[:start] + text + b.text[end:]
	listeners := append([]func(ChangeEvent){}, b.listeners...)
	b.mu.Unlock()

	ev := ChangeEvent{
		Changes: []protocol.EditDelta{{Range: r, Text: text}},
		Origin:  originOf(ctx),
	}
	for _, fn := range listeners {
		fn(ev)
	}
	return nil
}

// Insert inserts text at pos.
func (b *TextBuffer) Insert(ctx context.Context, pos protocol.Position, text string) error {
	return b.Replace(ctx, protocol.Range{Start: pos, End: pos}, text)
}

// byteRange converts r to byte offsets into text.
func byteRange(text string, r protocol.Range) (int, int, error) {
	if !r.Valid() {
		return 0, 0, ErrRangeOutOfBounds
	}
	start, err := ByteOffset(text, r.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := ByteOffset(text, r.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ByteOffset converts pos to a byte offset into text. The position may
// address the end of a line but not past it, and may not split a
// surrogate pair.
func ByteOffset(text string, pos protocol.Position) (int, error) {
	if !pos.Valid() {
		return 0, ErrRangeOutOfBounds
	}

	offset := 0
	for line := 0; line < pos.Line; line++ {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return 0, ErrRangeOutOfBounds
		}
		offset += i + 1
	}

	units := 0
	for units < pos.Character {
		if offset >= len(text) || text[offset] == '\n' {
			return 0, ErrRangeOutOfBounds
		}
		r, size := utf8.DecodeRuneInString(text[offset:])
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > pos.Character {
			return 0, ErrRangeOutOfBounds
		}
		units += n
		offset += size
	}
	return offset, nil
}

// PositionAt converts a byte offset into text to a Position. offset must
// fall on a rune boundary.
func PositionAt(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	var pos protocol.Position
	for _, r := range text[:offset] {
		if r == '\n' {
			pos.Line++
			pos.Character = 0
			continue
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		pos.Character += n
	}
	return pos
}
