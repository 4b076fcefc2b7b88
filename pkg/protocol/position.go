package protocol

import "fmt"

// Position addresses a point in a document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Before reports whether p sorts strictly before q.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Character < q.Character
}

// Valid reports whether both coordinates are non-negative.
func (p Position) Valid() bool {
	return p.Line >= 0 && p.Character >= 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Range is the half-open span [Start, End).
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// IsEmpty reports whether the range covers no text.
func (r Range) IsEmpty() bool {
	return r.Start == r.End
}

// Valid reports whether both ends are valid and Start does not follow End.
func (r Range) Valid() bool {
	return r.Start.Valid() && r.End.Valid() && !r.End.Before(r.Start)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s,%s)", r.Start, r.End)
}

// EditDelta replaces the text covered by Range with Text. An empty range
// is a pure insertion; empty text is a pure deletion.
type EditDelta struct {
	Range Range
	Text  string
}

// IsNoop reports whether applying the delta would change nothing.
func (d EditDelta) IsNoop() bool {
	return d.Range.IsEmpty() && d.Text == ""
}
