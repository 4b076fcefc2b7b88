package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/vango-dev/collabcode/internal/errors"
	"github.com/vango-dev/collabcode/pkg/client"
	"github.com/vango-dev/collabcode/pkg/presence"
	"github.com/vango-dev/collabcode/pkg/protocol"
)

var (
	nameStyle   = lipgloss.NewStyle().Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// terminal prints session events as lines. It is the client.Handler and
// the presence.Decorator of `collabcode join`.
type terminal struct {
	mu       sync.Mutex
	out      io.Writer
	lastChat string
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out}
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format+"\n", args...)
}

func (t *terminal) notice(format string, args ...any) {
	t.printf("%s", noticeStyle.Render(fmt.Sprintf(format, args...)))
}

// LastMessageID returns the identifier of the latest chat line seen.
func (t *terminal) LastMessageID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastChat
}

func (t *terminal) HandleEvent(ev client.Event) {
	switch e := ev.(type) {
	case client.Ready:
		t.printf("%s joined as %s (%s)", successStyle.Render("✓"), nameStyle.Render(e.Name), e.ID)
	case client.Joined:
		t.notice("→ %s joined", e.Name)
	case client.Left:
		t.notice("← %s left", e.Name)
	case client.Renamed:
		t.notice("%s is now %s", e.OldName, e.Name)
	case client.CountChanged:
		t.notice("%d online", e.Count)
	case client.Chatted:
		t.mu.Lock()
		t.lastChat = e.MessageID
		t.mu.Unlock()
		t.printf("%s %s %s", timeStyle.Render(e.Time.Format("15:04")), nameStyle.Render(e.Name+":"), e.Text)
	case client.Reacted:
		t.printf("%s reacted %s", nameStyle.Render(e.Name), e.Reaction)
	case client.Edited:
		t.notice("%s edited %s", e.Name, e.Delta.Range)
	case client.CursorMoved:
		// Drawn by the presence renderer through Decorate.
	case client.ServerError:
		t.printf("%s relay: %s", warnStyle.Render("⚠"), e.Message)
	case client.StatusChanged:
		if e.Err != nil {
			code := "C202"
			if e.State == client.StateFailed {
				code = "C201"
			}
			t.printf("%s", errors.FromError(e.Err, code).FormatCompact())
			return
		}
		t.notice("%s", e.State)
	}
}

// cursorLine is a printed cursor. Printed lines cannot be retracted, so
// Dispose only marks it stale.
type cursorLine struct {
	mu    sync.Mutex
	stale bool
}

func (c *cursorLine) Dispose() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// Decorate prints a cursor position in the sender's color.
func (t *terminal) Decorate(senderID, name string, color presence.Color, pos protocol.Position) presence.Marker {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(string(color)))
	if name == "" {
		name = senderID
	}
	t.printf("%s %s at %d:%d", style.Render("▌"), style.Render(name), pos.Line+1, pos.Character+1)
	return &cursorLine{}
}
