// Package scopes tracks lexical definitions and uses during compilation.
// Frames are pushed and popped in lockstep with the lexical constructs of
// the compiled source. Name resolution is deferred: a frame records every
// access and settles them when it finishes, because a definition later in
// the same construct still binds earlier uses.
//
// All names entering the resolver are already mangled.
package scopes

import (
	"fmt"
	"sort"

	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/model"
)

// Kind tags a frame with the lexical construct that opened it.
type Kind int

const (
	KindGlobal Kind = iota
	KindFunction
	KindClass
	KindLet
	KindGenerator
)

func (k Kind) String() string {
	switch k {
	case KindGlobal:
		return "global"
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindLet:
		return "let"
	case KindGenerator:
		return "generator"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a scope-resolution failure at a known source position.
type Error struct {
	Msg  string
	Span model.Span
}

func (e *Error) Error() string {
	if e.Span.IsZero() {
		return e.Msg
	}
	return e.Span.String() + ": " + e.Msg
}

func errf(sp model.Span, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Span: sp}
}

// Frame is one lexical scope. Access and Assign take the name node itself
// rather than its text: a frame may rewrite the node in place when it
// settles, which is how let renaming reaches uses resolved from inner
// frames.
type Frame interface {
	Kind() Kind
	Parent() Frame

	// Access records a use of the name.
	Access(n *hast.Name) error
	// Assign records a store: an access plus a definition.
	Assign(n *hast.Name) error
	// Define records that the construct binds the name, without counting
	// as a use.
	Define(name string)
	// DefineNonlocal redeclares the name as belonging to an enclosing
	// scope (or the global one). Redeclaring a name already used or
	// assigned in the same frame is an error.
	DefineNonlocal(n *hast.Name, global bool) error
	// Finish settles the frame: forwards unresolved uses to the parent
	// and checks deferred obligations. Called exactly once, at the exit
	// of the lexical construct.
	Finish() error

	// defines reports whether the frame itself binds the name.
	defines(name string) bool
	// oblige asks the frame to prove, by the time it finishes, that it
	// binds a name some inner frame declared nonlocal.
	oblige(name string, sp model.Span) error
}

type frameBase struct {
	kind   Kind
	parent Frame
}

func (b *frameBase) Kind() Kind    { return b.kind }
func (b *frameBase) Parent() Frame { return b.parent }

// nonlocalTarget walks outward from f to the frame a nonlocal declaration
// binds to. Let frames are transparent and class bodies are skipped, the
// same way the target language resolves closures.
func nonlocalTarget(f Frame) Frame {
	for f != nil {
		switch f.Kind() {
		case KindLet, KindClass:
			f = f.Parent()
		default:
			return f
		}
	}
	return nil
}

// ---- global frame ----

// GlobalFrame is the module-level scope. It never errors on undefined
// uses, since those may be builtins or imports resolved at run time.
type GlobalFrame struct {
	frameBase
	defined map[string]bool
	pending map[string]model.Span
}

func newGlobalFrame() *GlobalFrame {
	return &GlobalFrame{
		frameBase: frameBase{kind: KindGlobal},
		defined:   map[string]bool{},
		pending:   map[string]model.Span{},
	}
}

func (f *GlobalFrame) Access(n *hast.Name) error { return nil }

func (f *GlobalFrame) Assign(n *hast.Name) error {
	f.defined[n.ID] = true
	return nil
}

func (f *GlobalFrame) Define(name string) { f.defined[name] = true }

func (f *GlobalFrame) DefineNonlocal(n *hast.Name, global bool) error {
	if global {
		return nil
	}
	return errf(n.Pos(), "nonlocal declaration not allowed at module level")
}

func (f *GlobalFrame) Finish() error {
	for name, sp := range f.pending {
		if !f.defined[name] {
			return errf(sp, "no binding for nonlocal %q found", name)
		}
	}
	return nil
}

func (f *GlobalFrame) defines(name string) bool { return f.defined[name] }

func (f *GlobalFrame) oblige(name string, sp model.Span) error {
	// A nonlocal can never bind to the module scope.
	return errf(sp, "no binding for nonlocal %q found", name)
}

// ---- function and class frames ----

// FnFrame is a function or class body scope. Uses are collected and
// settled at Finish; anything the frame does not bind itself is forwarded
// to the parent, once.
type FnFrame struct {
	frameBase
	defined   map[string]bool
	nonlocals map[string]model.Span
	globals   map[string]bool
	seen      []*hast.Name
	pending   map[string]model.Span
}

func newFnFrame(kind Kind, parent Frame) *FnFrame {
	return &FnFrame{
		frameBase: frameBase{kind: kind, parent: parent},
		defined:   map[string]bool{},
		nonlocals: map[string]model.Span{},
		globals:   map[string]bool{},
		pending:   map[string]model.Span{},
	}
}

func (f *FnFrame) Access(n *hast.Name) error {
	f.seen = append(f.seen, n)
	return nil
}

func (f *FnFrame) Assign(n *hast.Name) error {
	f.seen = append(f.seen, n)
	if _, nl := f.nonlocals[n.ID]; !nl && !f.globals[n.ID] {
		f.defined[n.ID] = true
	}
	return nil
}

func (f *FnFrame) Define(name string) {
	if _, nl := f.nonlocals[name]; !nl && !f.globals[name] {
		f.defined[name] = true
	}
}

func (f *FnFrame) DefineNonlocal(n *hast.Name, global bool) error {
	name := n.ID
	if f.defined[name] {
		return errf(n.Pos(), "name %q is assigned to before its %s declaration",
			name, declWord(global))
	}
	for _, s := range f.seen {
		if s.ID == name {
			return errf(n.Pos(), "name %q is used before its %s declaration",
				name, declWord(global))
		}
	}
	if global {
		f.globals[name] = true
	} else {
		f.nonlocals[name] = n.Pos()
	}
	return nil
}

func declWord(global bool) string {
	if global {
		return "global"
	}
	return "nonlocal"
}

func (f *FnFrame) settle() error {
	for _, n := range f.seen {
		if f.defined[n.ID] {
			continue
		}
		if _, nl := f.nonlocals[n.ID]; nl {
			continue
		}
		var err error
		if f.globals[n.ID] {
			err = globalOf(f).Access(n)
		} else {
			err = f.parent.Access(n)
		}
		if err != nil {
			return err
		}
	}
	for name, sp := range f.nonlocals {
		if err := forwardObligation(f, name, sp); err != nil {
			return err
		}
	}
	for name, sp := range f.pending {
		if f.defined[name] {
			continue
		}
		if _, nl := f.nonlocals[name]; nl {
			// This frame passes the buck to its own enclosing scope.
			if err := forwardObligation(f, name, sp); err != nil {
				return err
			}
			continue
		}
		return errf(sp, "no binding for nonlocal %q found", name)
	}
	return nil
}

func (f *FnFrame) Finish() error { return f.settle() }

func (f *FnFrame) defines(name string) bool { return f.defined[name] }

func (f *FnFrame) oblige(name string, sp model.Span) error {
	f.pending[name] = sp
	return nil
}

func forwardObligation(f Frame, name string, sp model.Span) error {
	target := nonlocalTarget(f.Parent())
	if target == nil {
		return errf(sp, "no binding for nonlocal %q found", name)
	}
	return target.oblige(name, sp)
}

func globalOf(f Frame) Frame {
	for f.Parent() != nil {
		f = f.Parent()
	}
	return f
}

// ---- let frames ----

// LetFrame is a rename-based binding scope. Each bound surface name maps
// to a unique hidden name; uses of bound names are rewritten in place and
// everything else goes straight to the parent. A local definition in a
// nested header removes the shadowing binding.
type LetFrame struct {
	frameBase
	bindings map[string]string
	gensym   func(string) string
}

// Bind introduces a let binding for the node's name and rewrites the node
// to the hidden name, which it returns.
func (f *LetFrame) Bind(n *hast.Name) string {
	hidden := f.gensym(n.ID)
	f.bindings[n.ID] = hidden
	n.ID = hidden
	return hidden
}

// Rename returns the hidden name bound here for a surface name.
func (f *LetFrame) Rename(name string) (string, bool) {
	hidden, ok := f.bindings[name]
	return hidden, ok
}

func (f *LetFrame) Access(n *hast.Name) error {
	if hidden, ok := f.bindings[n.ID]; ok {
		n.ID = hidden
		return nil
	}
	return f.parent.Access(n)
}

func (f *LetFrame) Assign(n *hast.Name) error {
	if hidden, ok := f.bindings[n.ID]; ok {
		n.ID = hidden
		return nil
	}
	return f.parent.Assign(n)
}

func (f *LetFrame) Define(name string) {
	delete(f.bindings, name)
	f.parent.Define(name)
}

func (f *LetFrame) DefineNonlocal(n *hast.Name, global bool) error {
	if _, ok := f.bindings[n.ID]; ok {
		return errf(n.Pos(), "cannot declare a let-bound name %s", declWord(global))
	}
	return f.parent.DefineNonlocal(n, global)
}

func (f *LetFrame) Finish() error { return nil }

func (f *LetFrame) defines(name string) bool {
	_, ok := f.bindings[name]
	return ok
}

func (f *LetFrame) oblige(name string, sp model.Span) error {
	// Transparent; obligations never land here.
	return forwardObligation(f, name, sp)
}

// ---- generator frames ----

// GenFrame is a comprehension scope. It behaves as a function frame,
// except that its non-iteration assignments leak into the nearest
// enclosing function or module scope when it finishes, mirroring the
// target language's comprehension scoping. Iteration variables stay
// private and cannot be reassigned.
type GenFrame struct {
	FnFrame
	iteration map[string]bool
}

// DefineIteration binds n as an iteration variable of the comprehension.
func (f *GenFrame) DefineIteration(n *hast.Name) {
	f.iteration[n.ID] = true
	f.defined[n.ID] = true
}

func (f *GenFrame) Assign(n *hast.Name) error {
	if f.iteration[n.ID] {
		return errf(n.Pos(), "cannot rebind iteration variable %q", n.ID)
	}
	return f.FnFrame.Assign(n)
}

// Leaked returns the sorted non-iteration names that will escape when
// the frame finishes, and whether they land in the module scope. Empty
// when the frame position blocks leaking.
func (f *GenFrame) Leaked() (names []string, global bool) {
	target := leakTarget(f.Parent())
	if target == nil {
		return nil, false
	}
	for name := range f.defined {
		if !f.iteration[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, target.Kind() == KindGlobal
}

func (f *GenFrame) Finish() error {
	if err := f.settle(); err != nil {
		return err
	}
	target := leakTarget(f.Parent())
	if target == nil {
		return nil
	}
	for name := range f.defined {
		if !f.iteration[name] {
			target.Define(name)
		}
	}
	return nil
}

// leakTarget walks outward through let frames to the frame comprehension
// assignments escape into. Class and generator frames stop the leak.
func leakTarget(f Frame) Frame {
	for f != nil {
		switch f.Kind() {
		case KindLet:
			f = f.Parent()
		case KindFunction, KindGlobal:
			return f
		default:
			return nil
		}
	}
	return nil
}

// ---- resolver ----

// Option configures a Resolver.
type Option func(*Resolver)

// WithGensym sets the hidden-name generator used for let renaming.
func WithGensym(g func(base string) string) Option {
	return func(r *Resolver) { r.gensym = g }
}

// Resolver owns the frame stack for one unit of compilation. It starts
// with the module's global frame already pushed.
type Resolver struct {
	current Frame
	gensym  func(string) string
	counter int
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{current: newGlobalFrame()}
	for _, opt := range opts {
		opt(r)
	}
	if r.gensym == nil {
		r.gensym = func(base string) string {
			r.counter++
			return fmt.Sprintf("_larch_let_%s_%d", base, r.counter)
		}
	}
	return r
}

// Current returns the innermost frame.
func (r *Resolver) Current() Frame { return r.current }

// Global returns the module frame at the bottom of the stack.
func (r *Resolver) Global() Frame { return globalOf(r.current) }

func (r *Resolver) PushFunction() *FnFrame {
	f := newFnFrame(KindFunction, r.current)
	r.current = f
	return f
}

func (r *Resolver) PushClass() *FnFrame {
	f := newFnFrame(KindClass, r.current)
	r.current = f
	return f
}

func (r *Resolver) PushLet() *LetFrame {
	f := &LetFrame{
		frameBase: frameBase{kind: KindLet, parent: r.current},
		bindings:  map[string]string{},
		gensym:    r.gensym,
	}
	r.current = f
	return f
}

func (r *Resolver) PushGenerator() *GenFrame {
	f := &GenFrame{
		FnFrame:   *newFnFrame(KindGenerator, r.current),
		iteration: map[string]bool{},
	}
	r.current = f
	return f
}

// Pop finishes and removes the innermost frame. Popping the global frame
// is a bug in the caller.
func (r *Resolver) Pop() error {
	f := r.current
	if f.Parent() == nil {
		panic("scopes: popped the global frame")
	}
	r.current = f.Parent()
	return f.Finish()
}

// Finish settles the global frame at the end of the unit.
func (r *Resolver) Finish() error {
	if r.current.Parent() != nil {
		panic("scopes: unbalanced frame stack at finish")
	}
	return r.current.Finish()
}

func (r *Resolver) Access(n *hast.Name) error { return r.current.Access(n) }
func (r *Resolver) Assign(n *hast.Name) error { return r.current.Assign(n) }
func (r *Resolver) Define(name string)        { r.current.Define(name) }

func (r *Resolver) DefineNonlocal(n *hast.Name) error {
	return r.current.DefineNonlocal(n, false)
}

func (r *Resolver) DefineGlobal(n *hast.Name) error {
	return r.current.DefineNonlocal(n, true)
}
