package compile

import (
	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/model"
)

// args is the cursor special-form handlers parse their arguments with.
// Fixed positions come from Next/Sym/Seq, optional items from the If*
// family, variadic runs from More loops, bracketed sub-grammars from
// descending into a Seq result with a fresh cursor.
type args struct {
	c     *Compiler
	form  model.Sequence
	head  string
	items []model.Object
	pos   int
}

func (c *Compiler) args(form model.Sequence) *args {
	return &args{
		c:     c,
		form:  form,
		head:  expand.HeadName(form.At(0)),
		items: form.Rest().Items(),
	}
}

// group builds a cursor over a bracketed sub-grammar.
func (c *Compiler) group(head string, seq model.Sequence) *args {
	return &args{c: c, form: seq, head: head, items: seq.Items()}
}

func (a *args) More() bool { return a.pos < len(a.items) }

// Left reports how many arguments remain unconsumed.
func (a *args) Left() int { return len(a.items) - a.pos }

func (a *args) Peek() model.Object {
	if !a.More() {
		return nil
	}
	return a.items[a.pos]
}

// Next consumes exactly one argument; what names it in the arity error.
func (a *args) Next(what string) (model.Object, error) {
	if !a.More() {
		return nil, a.errf("%s: missing %s", a.head, what)
	}
	item := a.items[a.pos]
	a.pos++
	return item, nil
}

// Rest consumes the variadic tail.
func (a *args) Rest() []model.Object {
	out := a.items[a.pos:]
	a.pos = len(a.items)
	return out
}

// Sym consumes one argument that must be a plain symbol.
func (a *args) Sym(what string) (model.Symbol, error) {
	item, err := a.Next(what)
	if err != nil {
		return model.Symbol{}, err
	}
	sym, ok := item.(model.Symbol)
	if !ok {
		return model.Symbol{}, a.at(item, "%s: %s must be a symbol", a.head, what)
	}
	return sym, nil
}

// Seq consumes one argument that must be a sequence of the given kind.
func (a *args) Seq(kind model.Kind, what string) (model.Sequence, error) {
	item, err := a.Next(what)
	if err != nil {
		return model.Sequence{}, err
	}
	seq, ok := item.(model.Sequence)
	if !ok || seq.Kind() != kind {
		return model.Sequence{}, a.at(item, "%s: %s must be a %s", a.head, what, kind)
	}
	return seq, nil
}

// IfSym consumes the next argument when it is the named symbol.
func (a *args) IfSym(name string) bool {
	if sym, ok := a.Peek().(model.Symbol); ok && sym.Name() == name {
		a.pos++
		return true
	}
	return false
}

// IfKw consumes the next argument when it is the named keyword.
func (a *args) IfKw(name string) bool {
	if kw, ok := a.Peek().(model.Keyword); ok && kw.Name() == name {
		a.pos++
		return true
	}
	return false
}

// PeekKw reports the name of the next argument if it is a keyword.
func (a *args) PeekKw() (string, bool) {
	kw, ok := a.Peek().(model.Keyword)
	if !ok {
		return "", false
	}
	return kw.Name(), true
}

// End rejects unconsumed arguments.
func (a *args) End() error {
	if a.More() {
		return a.at(a.items[a.pos], "%s: unexpected extra argument", a.head)
	}
	return nil
}

func (a *args) errf(format string, fargs ...any) error {
	return a.c.errf(a.form, format, fargs...)
}

func (a *args) at(item model.Object, format string, fargs ...any) error {
	if item == nil {
		item = a.form
	}
	return a.c.errf(item, format, fargs...)
}
