// Package expand rewrites forms through compile-time macros until a
// fixpoint. Macros are Go functions or user closures run by a small
// compile-time evaluator; either may return a further form to expand or
// a finalized target node that passes through untouched.
package expand

import (
	"fmt"
	"strings"

	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/model"
	"github.com/sergev/larch/reader"
)

// Macro rewrites one call form. It receives the whole form, head
// included. The result is a model object to expand further, or a
// hast.Node already lowered by a compile-time evaluation.
type Macro func(c *Context, form model.Sequence) (any, error)

// Error wraps a macro failure with the call site's position, so a
// failing macro body reports where it was used, not where it was
// defined.
type Error struct {
	Name string
	Span model.Span
	Err  error
}

func (e *Error) Error() string {
	where := ""
	if !e.Span.IsZero() {
		where = e.Span.String() + ": "
	}
	return fmt.Sprintf("%sin expansion of %s: %v", where, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DefaultMaxSteps caps the rewrite chain per form, so a macro expanding
// to itself fails instead of hanging the compiler.
const DefaultMaxSteps = 1000

// Context is the compilation context of one module: its identity, its
// mutable macro and reader-macro tables, and the compile-time
// environment macro bodies run in. Forms of a module must be expanded
// sequentially against the same context, since each form may add macros
// the next form needs.
type Context struct {
	Module   string
	Macros   map[string]Macro
	Readers  reader.MacroTable
	MaxSteps int

	oneShots map[string]Macro
	locals   []map[string]Macro
	env      *Env
	gensyms  int
}

// NewContext creates the compilation context for a module.
func NewContext(module string) *Context {
	c := &Context{
		Module:   module,
		Macros:   map[string]Macro{},
		Readers:  reader.MacroTable{},
		MaxSteps: DefaultMaxSteps,
		oneShots: map[string]Macro{},
	}
	c.env = newGlobalEnv(c)
	return c
}

// Env returns the compile-time global environment.
func (c *Context) GlobalEnv() *Env { return c.env }

// Gensym returns a fresh symbol that cannot collide with source names.
func (c *Context) Gensym(base string) model.Symbol {
	c.gensyms++
	if base == "" {
		base = "g"
	}
	return model.Sym(fmt.Sprintf("_larch_gensym_%s_%d", base, c.gensyms))
}

// PushMacroScope opens a compile-time local macro scope; macros defined
// while it is open vanish when it pops.
func (c *Context) PushMacroScope() {
	c.locals = append(c.locals, map[string]Macro{})
}

func (c *Context) PopMacroScope() {
	if len(c.locals) == 0 {
		panic("expand: popped macro scope with none open")
	}
	c.locals = c.locals[:len(c.locals)-1]
}

// Lookup resolves a macro name. Precedence: an explicit cross-module
// one-shot reference, then local macro scopes innermost out, then the
// module table, then the global builtins. Nil means not a macro.
func (c *Context) Lookup(name string) Macro {
	if name == "" {
		return nil
	}
	if m, ok := c.oneShots[name]; ok {
		return m
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		if m, ok := c.locals[i][name]; ok {
			return m
		}
	}
	if m, ok := c.Macros[name]; ok {
		return m
	}
	if m, ok := Builtins[name]; ok {
		return m
	}
	return nil
}

// HeadName returns the macro-lookup key for a call form's head: the
// symbol's name, with a dotted attribute chain joined into one
// qualified key. Empty if the head cannot name a macro.
func HeadName(head model.Object) string {
	switch h := head.(type) {
	case model.Symbol:
		return h.Name()
	case model.Sequence:
		if h.Kind() != model.KindExpression || h.Len() < 2 {
			return ""
		}
		if s, ok := h.At(0).(model.Symbol); !ok || s.Name() != "." {
			return ""
		}
		parts := make([]string, 0, h.Len()-1)
		for i := 1; i < h.Len(); i++ {
			s, ok := h.At(i).(model.Symbol)
			if !ok {
				return ""
			}
			parts = append(parts, s.Name())
		}
		return strings.Join(parts, ".")
	}
	return ""
}

// Expand1 performs at most one macro rewrite. The bool reports whether
// anything was rewritten.
func (c *Context) Expand1(form model.Object) (any, bool, error) {
	seq, ok := form.(model.Sequence)
	if !ok || seq.Kind() != model.KindExpression || seq.Len() == 0 {
		return form, false, nil
	}
	name := HeadName(seq.At(0))
	m := c.Lookup(name)
	if m == nil {
		return form, false, nil
	}
	delete(c.oneShots, name)
	out, err := m(c, seq)
	if err != nil {
		if _, already := err.(*Error); already {
			return nil, false, err
		}
		return nil, false, &Error{Name: name, Span: seq.Span(), Err: err}
	}
	if obj, isObj := out.(model.Object); isObj {
		out = model.FillSpans(obj, seq.Span())
	}
	return out, true, nil
}

// Expand rewrites a form to its fixpoint. The result is a model object
// with no macro in head position, or a finalized hast.Node produced by
// a macro.
func (c *Context) Expand(form model.Object) (any, error) {
	steps := c.MaxSteps
	if steps <= 0 {
		steps = DefaultMaxSteps
	}
	var current any = form
	for i := 0; i < steps; i++ {
		obj, ok := current.(model.Object)
		if !ok {
			return current, nil
		}
		out, rewritten, err := c.Expand1(obj)
		if err != nil {
			return nil, err
		}
		if !rewritten {
			return out, nil
		}
		if node, done := out.(hast.Node); done {
			return node, nil
		}
		current = out
	}
	name := HeadName(form.(model.Sequence).At(0))
	return nil, &Error{
		Name: name,
		Span: form.Span(),
		Err:  fmt.Errorf("expansion did not reach a fixpoint after %d steps", steps),
	}
}

// DefineMacro registers a Go-implemented macro in the module table, or
// in the innermost local scope when one is open.
func (c *Context) DefineMacro(name string, m Macro) {
	if len(c.locals) > 0 {
		c.locals[len(c.locals)-1][name] = m
		return
	}
	c.Macros[name] = m
}

// DefineReaderMacro registers a reader macro in the shared table.
func (c *Context) DefineReaderMacro(name string, m reader.Macro) {
	c.Readers[name] = m
}

// RequireMacro imports a macro compiled in another module. A one-shot
// import is keyed by its qualified name and consumed on first use;
// otherwise the macro joins the module table under the given name.
func (c *Context) RequireMacro(name string, m Macro, oneShot bool) {
	if oneShot {
		c.oneShots[name] = m
		return
	}
	c.Macros[name] = m
}

// DefineMacroForm handles a (defmacro name [params] body...) form: it
// builds a compile-time closure over the current global environment and
// registers it.
func (c *Context) DefineMacroForm(form model.Sequence) error {
	if form.Len() < 3 {
		return fmt.Errorf("defmacro expects a name and a parameter vector")
	}
	sym, ok := form.At(1).(model.Symbol)
	if !ok {
		return fmt.Errorf("macro name must be a symbol")
	}
	name := sym.Name()
	if strings.Contains(name, ".") {
		return fmt.Errorf("periods are not allowed in macro names")
	}
	params, rest, err := parseParams(form.At(2))
	if err != nil {
		return err
	}
	closure := &Closure{
		Params: params,
		Rest:   rest,
		Body:   form.Slice(3, form.Len()).Items(),
		Env:    c.env,
	}
	c.DefineMacro(name, userMacro(name, closure))
	return nil
}

// userMacro adapts a compile-time closure into a Macro: arguments are
// passed unevaluated, the body runs in the evaluator, and the result
// must be a form.
func userMacro(name string, closure *Closure) Macro {
	return func(c *Context, form model.Sequence) (any, error) {
		args := make([]any, 0, form.Len()-1)
		for _, a := range form.Rest().Items() {
			args = append(args, a)
		}
		out, err := c.apply(closure, args)
		if err != nil {
			return nil, err
		}
		if node, ok := out.(hast.Node); ok {
			return node, nil
		}
		return toObject(out)
	}
}
