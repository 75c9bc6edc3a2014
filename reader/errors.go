package reader

import (
	"errors"
	"fmt"

	"github.com/sergev/larch/model"
)

// Error is a lexical failure. Incomplete distinguishes a stream that ended
// in the middle of a construct (an interactive caller can ask for more
// input) from malformed syntax, which is final.
type Error struct {
	Err        error
	File       string
	Span       model.Span
	Incomplete bool
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	file := e.File
	if file == "" {
		file = "<input>"
	}
	if e.Incomplete {
		return fmt.Sprintf("%s:%s: premature end of input: %v", file, e.Span, e.Err)
	}
	return fmt.Sprintf("%s:%s: %v", file, e.Span, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsIncomplete reports whether err represents input that ended mid-form.
func IsIncomplete(err error) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Incomplete
	}
	return false
}

func (r *Reader) lexErr(span model.Span, format string, args ...any) error {
	return &Error{
		Err:  fmt.Errorf(format, args...),
		File: r.filename,
		Span: span,
	}
}

func (r *Reader) eofErr(span model.Span, format string, args ...any) error {
	return &Error{
		Err:        fmt.Errorf(format, args...),
		File:       r.filename,
		Span:       span,
		Incomplete: true,
	}
}
