package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/sjson"
)

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	codeStyle       = lipgloss.NewStyle().Bold(true)
	detailStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("7")).PaddingLeft(2).Width(80)
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).PaddingLeft(2)
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Format renders the error for terminal display.
func (e *CollabError) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("ERROR"))
	b.WriteString(" ")
	if e.Code != "" {
		b.WriteString(codeStyle.Render(e.Code + ":"))
		b.WriteString(" ")
	}
	b.WriteString(e.Message)
	b.WriteString("\n")

	if e.Detail != "" {
		b.WriteString("\n")
		b.WriteString(detailStyle.Render(e.Detail))
		b.WriteString("\n")
	}
	if e.Suggestion != "" {
		b.WriteString("\n")
		b.WriteString(suggestionStyle.Render("hint: " + e.Suggestion))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// FormatCompact renders the error on one line for interleaving with
// other terminal output. The suggestion becomes a trailing hint.
func (e *CollabError) FormatCompact() string {
	line := headerStyle.Render("✗") + " " + e.Error()
	if e.Suggestion != "" {
		line += " " + hintStyle.Render("(hint: "+e.Suggestion+")")
	}
	return line
}

// FormatJSON returns the error as a JSON object.
func (e *CollabError) FormatJSON() string {
	out := "{}"
	set := func(path, value string) {
		if value != "" {
			out, _ = sjson.Set(out, path, value)
		}
	}
	set("code", e.Code)
	set("category", string(e.Category))
	set("message", e.Message)
	set("detail", e.Detail)
	set("suggestion", e.Suggestion)
	return out
}

// Fprint writes err to w, formatted when it is a CollabError.
func Fprint(w io.Writer, err error) {
	var ce *CollabError
	if stderrors.As(err, &ce) {
		fmt.Fprint(w, ce.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", headerStyle.Render("ERROR:"), err.Error())
}

// PrintError prints a formatted error to stderr.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}
