package compile

import (
	"errors"
	"fmt"

	"github.com/sergev/larch/model"
)

// CompileError is a user-facing language error: well-formed source
// misusing a construct. It carries the offending form's position.
type CompileError struct {
	Msg  string
	File string
	Span model.Span
}

func (e *CompileError) Error() string {
	where := e.File
	if !e.Span.IsZero() {
		if where != "" {
			where += ":"
		}
		where += e.Span.String()
	}
	if where == "" {
		return e.Msg
	}
	return where + ": " + e.Msg
}

// InternalError marks a violated compiler invariant. It is never
// expected and is kept distinct so tooling can hide the details from
// user-facing output.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return "internal compiler error: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error { return e.Err }

// IsInternal reports whether err is a compiler invariant violation
// rather than a language error.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

func (c *Compiler) errf(at model.Object, format string, args ...any) error {
	sp := model.Span{}
	if at != nil {
		sp = at.Span()
	}
	return &CompileError{
		Msg:  fmt.Sprintf(format, args...),
		File: c.filename,
		Span: sp,
	}
}

// internalf panics with an invariant violation; the top-level compile
// entry points recover it into an InternalError.
func internalf(format string, args ...any) {
	panic(&InternalError{Err: fmt.Errorf(format, args...)})
}

func recoverInternal(err *error) {
	if r := recover(); r != nil {
		if ie, ok := r.(*InternalError); ok {
			*err = ie
			return
		}
		panic(r)
	}
}
