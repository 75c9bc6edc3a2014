package model

import "io"

// Lazy is a single-pass, finite sequence of objects pulled on demand from
// a producing function, typically a reader over a live stream. It is not
// restartable: pulling a form may run reader-macro side effects, so the
// sequence must never be iterated twice.
type Lazy struct {
	next func() (Object, error)
	done bool
	err  error
}

// NewLazy wraps a pull function. The function reports exhaustion by
// returning io.EOF.
func NewLazy(next func() (Object, error)) *Lazy {
	return &Lazy{next: next}
}

// Next returns the next object in the sequence, io.EOF once exhausted, or
// the first error encountered. After an error or exhaustion every further
// call returns the same condition without touching the underlying stream.
func (l *Lazy) Next() (Object, error) {
	if l.done {
		if l.err != nil {
			return nil, l.err
		}
		return nil, io.EOF
	}
	o, err := l.next()
	if err != nil {
		l.done = true
		if err != io.EOF {
			l.err = err
		}
		return nil, err
	}
	return o, nil
}

// All drains the remainder of the sequence into a slice.
func (l *Lazy) All() ([]Object, error) {
	var out []Object
	for {
		o, err := l.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, o)
	}
}
