package model

import "fmt"

// Span locates a node in the original source text. Lines and columns are
// 1-based and inclusive on both ends. The zero value means the position is
// unknown.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// IsZero reports whether the span carries no position information.
func (s Span) IsZero() bool {
	return s == Span{}
}

// Merge returns s unless s is absent, in which case it returns donor.
// Nodes synthesized during macro expansion inherit the span of the form
// they replaced through this merge; it never mutates either span.
func (s Span) Merge(donor Span) Span {
	if s.IsZero() {
		return donor
	}
	return s
}

func (s Span) String() string {
	if s.IsZero() {
		return "?:?"
	}
	if s.StartLine == s.EndLine {
		return fmt.Sprintf("%d:%d-%d", s.StartLine, s.StartCol, s.EndCol)
	}
	return fmt.Sprintf("%d:%d-%d:%d", s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}

// Before reports whether the start of s is positioned at or before the
// start of t.
func (s Span) Before(t Span) bool {
	if s.StartLine != t.StartLine {
		return s.StartLine < t.StartLine
	}
	return s.StartCol <= t.StartCol
}
