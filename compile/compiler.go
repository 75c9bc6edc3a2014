// Package compile lowers expanded forms into the host statement and
// expression AST. Every source construct is an expression; the
// compiler reconciles that with the statement-bearing target through
// the Result type, lifting values into hidden temporaries where a
// target construct demands statements.
package compile

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/mangle"
	"github.com/sergev/larch/model"
	"github.com/sergev/larch/scopes"
)

// RuntimeModule is the runtime-support package every compiled module
// imports implicitly.
const RuntimeModule = "larch"

// Compiler lowers one module's forms. Forms must be compiled in source
// order against the same Compiler, since a macro defined by one form
// may be needed by the next.
type Compiler struct {
	ctx      *expand.Context
	filename string
	scopes   *scopes.Resolver

	// Warn receives composition diagnostics; nil logs through slog.
	Warn func(sp model.Span, msg string)
	// Require resolves a module name to its exported macros. Nil makes
	// the require form an error, for callers without a module loader.
	Require func(module string) (map[string]expand.Macro, error)

	fnStack []*fnState
	final   hast.Expr
}

type fnState struct {
	generator bool
}

// NewCompiler creates a compiler bound to a compilation context. The
// filename is used only in diagnostics.
func NewCompiler(ctx *expand.Context, filename string) *Compiler {
	c := &Compiler{
		ctx:      ctx,
		filename: filename,
	}
	c.scopes = scopes.NewResolver(scopes.WithGensym(func(base string) string {
		return mangle.Mangle(c.ctx.Gensym(base).Name())
	}))
	return c
}

// Context returns the compilation context the compiler threads through
// expansion.
func (c *Compiler) Context() *expand.Context { return c.ctx }

// Scopes exposes the resolver, for collaborators compiling fragments.
func (c *Compiler) Scopes() *scopes.Resolver { return c.scopes }

func (c *Compiler) warnf(sp model.Span, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.Warn != nil {
		c.Warn(sp, msg)
		return
	}
	slog.Warn(msg, "file", c.filename, "span", sp.String())
}

// Final returns the trailing expression of the last compiled form, for
// interactive callers wanting the last value.
func (c *Compiler) Final() hast.Expr { return c.final }

// CompileForm expands and lowers one top-level form.
func (c *Compiler) CompileForm(form model.Object) (res Result, err error) {
	defer recoverInternal(&err)
	res, err = c.compile(form)
	if err != nil {
		return Result{}, err
	}
	if res.HasExpr() {
		c.final = res.expr
	}
	return res, nil
}

// CompileModule compiles a whole unit: optional leading docstring,
// hoisted compatibility pragmas, the implicit runtime import, then the
// body in source order.
func (c *Compiler) CompileModule(forms []model.Object) (mod *hast.Module, err error) {
	defer recoverInternal(&err)

	var docstring hast.Stmt
	var pragmas []hast.Stmt
	var body []hast.Stmt

	for i, form := range forms {
		res, err := c.compile(form)
		if err != nil {
			return nil, err
		}
		if res.HasExpr() {
			c.final = res.expr
		}
		if i == 0 && res.Pure() {
			if ct := docstringConstant(res.expr); ct != nil {
				docstring = &hast.ExprStmt{Span: ct.Span, X: ct}
				res.Take()
				continue
			}
		}
		for _, s := range res.AsStmts() {
			if isPragma(s) {
				pragmas = append(pragmas, s)
			} else {
				body = append(body, s)
			}
		}
	}
	if err := c.scopes.Finish(); err != nil {
		return nil, c.wrapScopeErr(err)
	}

	var out []hast.Stmt
	if docstring != nil {
		out = append(out, docstring)
	}
	out = append(out, pragmas...)
	out = append(out, &hast.Import{
		Names: []hast.Alias{{Name: RuntimeModule}},
	})
	out = append(out, body...)
	return &hast.Module{Body: out}, nil
}

// docstringConstant recognizes a unit's leading docstring: a bare
// string constant compiled from the first form.
func docstringConstant(e hast.Expr) *hast.Constant {
	ct, ok := e.(*hast.Constant)
	if !ok {
		return nil
	}
	if _, isStr := ct.Value.(string); !isStr {
		return nil
	}
	return ct
}

// isPragma recognizes compatibility imports hoisted to the unit front.
func isPragma(s hast.Stmt) bool {
	imp, ok := s.(*hast.ImportFrom)
	return ok && imp.Module == "__future__"
}

func (c *Compiler) wrapScopeErr(err error) error {
	if se, ok := err.(*scopes.Error); ok {
		return &CompileError{Msg: se.Msg, File: c.filename, Span: se.Span}
	}
	return err
}

// compile is the per-form entry: expand to a fixpoint, stopping early
// at special forms, then lower.
func (c *Compiler) compile(form model.Object) (Result, error) {
	form, done, err := c.expandForm(form)
	if err != nil {
		return Result{}, err
	}
	if done != nil {
		return *done, nil
	}
	if seq, ok := form.(model.Sequence); ok && seq.Kind() == model.KindExpression {
		if name := expand.HeadName(seq.At(0)); name != "" {
			if sf, ok := specialForms[name]; ok {
				return c.compileSpecial(name, sf, seq)
			}
		}
		return c.compileCall(seq)
	}
	return c.compileAtom(form)
}

// expandForm rewrites a form until its head is a special form or no
// macro resolves. A macro producing finalized host nodes short-circuits
// through the Result return.
func (c *Compiler) expandForm(form model.Object) (model.Object, *Result, error) {
	steps := c.ctx.MaxSteps
	if steps <= 0 {
		steps = expand.DefaultMaxSteps
	}
	for i := 0; i < steps; i++ {
		seq, ok := form.(model.Sequence)
		if !ok || seq.Kind() != model.KindExpression {
			return form, nil, nil
		}
		if seq.Len() == 0 {
			// An empty call form has no callee to compile.
			return nil, nil, c.errf(form, "empty expression")
		}
		if name := expand.HeadName(seq.At(0)); name != "" {
			if _, special := specialForms[name]; special {
				return form, nil, nil
			}
		}
		out, rewritten, err := c.ctx.Expand1(form)
		if err != nil {
			return nil, nil, err
		}
		if !rewritten {
			return form, nil, nil
		}
		switch v := out.(type) {
		case model.Object:
			form = v
		case hast.Expr:
			r := exprResult(v)
			return nil, &r, nil
		case hast.Stmt:
			r := stmtResult(v)
			return nil, &r, nil
		case *hast.Module:
			r := stmtResult(v.Body...)
			return nil, &r, nil
		default:
			return nil, nil, c.errf(form, "macro produced an unusable value %T", out)
		}
	}
	return nil, nil, c.errf(form, "expansion did not reach a fixpoint")
}

func (c *Compiler) compileSpecial(name string, sf specialForm, seq model.Sequence) (Result, error) {
	n := seq.Len() - 1
	if n < sf.min || (sf.max >= 0 && n > sf.max) {
		return Result{}, c.errf(seq, "%s: %s", name, sf.usage)
	}
	return sf.compile(c, seq)
}

// specialForm is one entry of the declarative dispatch table: an arity
// window, a usage line for arity errors, and the lowering. Finer
// argument grammar runs inside the handler through the args cursor.
type specialForm struct {
	min     int
	max     int // -1 for unbounded
	usage   string
	compile func(c *Compiler, form model.Sequence) (Result, error)
}

var specialForms = map[string]specialForm{}

func register(name string, min, max int, usage string,
	fn func(c *Compiler, form model.Sequence) (Result, error)) {
	specialForms[name] = specialForm{min: min, max: max, usage: usage, compile: fn}
}

// ---- atoms ----

func (c *Compiler) compileAtom(form model.Object) (Result, error) {
	switch v := form.(type) {
	case model.Symbol:
		return c.compileSymbol(v)
	case model.Keyword:
		return exprResult(c.runtimeCall(v.Span(), "Keyword",
			&hast.Constant{Span: v.Span(), Value: v.Name()})), nil
	case model.String:
		return exprResult(&hast.Constant{Span: v.Span(), Value: v.Value()}), nil
	case model.Bytes:
		return exprResult(&hast.Constant{Span: v.Span(), Value: v.Value()}), nil
	case model.Integer:
		return exprResult(&hast.Constant{Span: v.Span(), Value: v.Value()}), nil
	case model.Float:
		return exprResult(&hast.Constant{Span: v.Span(), Value: v.Value()}), nil
	case model.Complex:
		return exprResult(&hast.Constant{Span: v.Span(), Value: v.Value()}), nil
	case model.FString:
		return c.compileFString(v)
	case model.Sequence:
		return c.compileCollection(v)
	default:
		internalf("unhandled model node %T", form)
		return Result{}, nil
	}
}

func (c *Compiler) compileSymbol(sym model.Symbol) (Result, error) {
	sp := sym.Span()
	switch sym.Name() {
	case "True":
		return exprResult(&hast.Constant{Span: sp, Value: true}), nil
	case "False":
		return exprResult(&hast.Constant{Span: sp, Value: false}), nil
	case "None":
		return exprResult(&hast.Constant{Span: sp, Value: nil}), nil
	case "...":
		return exprResult(&hast.Constant{Span: sp, Value: hast.Ellipsis{}}), nil
	}
	name := sym.Name()
	if strings.Contains(name, ".") {
		return c.compileDottedSymbol(sym)
	}
	n := &hast.Name{Span: sp, ID: mangle.Mangle(name), Ctx: hast.Load}
	if err := c.scopes.Access(n); err != nil {
		return Result{}, c.wrapScopeErr(err)
	}
	return exprResult(n), nil
}

func (c *Compiler) compileDottedSymbol(sym model.Symbol) (Result, error) {
	sp := sym.Span()
	parts := strings.Split(sym.Name(), ".")
	for _, p := range parts {
		if p == "" {
			return Result{}, c.errf(sym, "malformed dotted name %q", sym.Name())
		}
	}
	base := &hast.Name{Span: sp, ID: mangle.Mangle(parts[0]), Ctx: hast.Load}
	if err := c.scopes.Access(base); err != nil {
		return Result{}, c.wrapScopeErr(err)
	}
	var e hast.Expr = base
	for _, attr := range parts[1:] {
		e = &hast.Attribute{Span: sp, Value: e, Attr: mangle.Mangle(attr), Ctx: hast.Load}
	}
	return exprResult(e), nil
}

func (c *Compiler) compileCollection(seq model.Sequence) (Result, error) {
	sp := seq.Span()
	switch seq.Kind() {
	case model.KindList, model.KindTuple, model.KindSet:
		elts, pre, err := c.compileMany(seq.Items(), true)
		if err != nil {
			return Result{}, err
		}
		var e hast.Expr
		switch seq.Kind() {
		case model.KindList:
			e = &hast.ListExpr{Span: sp, Elts: elts, Ctx: hast.Load}
		case model.KindTuple:
			e = &hast.TupleExpr{Span: sp, Elts: elts, Ctx: hast.Load}
		default:
			e = &hast.SetExpr{Span: sp, Elts: elts}
		}
		res := Result{Stmts: pre, expr: e}
		return res, nil
	case model.KindDict:
		return c.compileDict(seq)
	default:
		internalf("collection compile reached kind %v", seq.Kind())
		return Result{}, nil
	}
}

func (c *Compiler) compileDict(seq model.Sequence) (Result, error) {
	items := seq.Items()
	var keys []hast.Expr
	var values []hast.Expr
	var pre []hast.Stmt
	i := 0
	for i < len(items) {
		if sub, ok := items[i].(model.Sequence); ok && unpackHead(sub) == "unpack-mapping" {
			r, err := c.compile(sub.At(1))
			if err != nil {
				return Result{}, err
			}
			pre = append(pre, r.Stmts...)
			keys = append(keys, nil)
			values = append(values, r.Force(sub.Span()))
			i++
			continue
		}
		if i+1 >= len(items) {
			return Result{}, c.errf(items[i], "dict literal has a key with no value")
		}
		kr, err := c.compile(items[i])
		if err != nil {
			return Result{}, err
		}
		vr, err := c.compile(items[i+1])
		if err != nil {
			return Result{}, err
		}
		pre = append(pre, kr.Stmts...)
		pre = append(pre, vr.Stmts...)
		keys = append(keys, kr.Force(items[i].Span()))
		values = append(values, vr.Force(items[i+1].Span()))
		i += 2
	}
	return Result{
		Stmts: pre,
		expr:  &hast.DictExpr{Span: seq.Span(), Keys: keys, Values: values},
	}, nil
}

func (c *Compiler) compileFString(fs model.FString) (Result, error) {
	var pre []hast.Stmt
	var values []hast.Expr
	for _, item := range fs.Items() {
		switch v := item.(type) {
		case model.String:
			values = append(values, &hast.Constant{Span: v.Span(), Value: v.Value()})
		case model.FComponent:
			fv, stmts, err := c.compileFComponent(v)
			if err != nil {
				return Result{}, err
			}
			pre = append(pre, stmts...)
			values = append(values, fv)
		default:
			internalf("format string holds %T", item)
		}
	}
	return Result{
		Stmts: pre,
		expr:  &hast.JoinedStr{Span: fs.Span(), Values: values},
	}, nil
}

func (c *Compiler) compileFComponent(fc model.FComponent) (*hast.FormattedValue, []hast.Stmt, error) {
	r, err := c.compile(fc.Form())
	if err != nil {
		return nil, nil, err
	}
	pre := r.Stmts
	fv := &hast.FormattedValue{
		Span:       fc.Span(),
		Value:      r.Force(fc.Span()),
		Conversion: fc.Conversion,
	}
	if fc.Len() > 1 {
		var specParts []hast.Expr
		for _, part := range fc.Items()[1:] {
			switch v := part.(type) {
			case model.String:
				specParts = append(specParts, &hast.Constant{Span: v.Span(), Value: v.Value()})
			case model.FComponent:
				sub, stmts, err := c.compileFComponent(v)
				if err != nil {
					return nil, nil, err
				}
				pre = append(pre, stmts...)
				specParts = append(specParts, sub)
			default:
				internalf("format spec holds %T", part)
			}
		}
		fv.FormatSpec = &hast.JoinedStr{Span: fc.Span(), Values: specParts}
	}
	return fv, pre, nil
}

// ---- calls ----

func unpackHead(seq model.Sequence) string {
	if seq.Kind() != model.KindExpression || seq.Len() != 2 {
		return ""
	}
	if s, ok := seq.At(0).(model.Symbol); ok {
		switch s.Name() {
		case "unpack-iterable", "unpack-mapping":
			return s.Name()
		}
	}
	return ""
}

func (c *Compiler) compileCall(seq model.Sequence) (Result, error) {
	head := seq.At(0)

	// (.method obj args...) sugar: the method name rides the head.
	if sym, ok := head.(model.Symbol); ok {
		if name := sym.Name(); len(name) > 1 && name[0] == '.' && !strings.Contains(name[1:], ".") {
			if seq.Len() < 2 {
				return Result{}, c.errf(seq, "method call needs a receiver")
			}
			recv := seq.At(1)
			dotted := model.Expr(".", recv, model.Sym(name[1:])).WithSpan(sym.Span())
			items := append([]model.Object{dotted}, seq.Slice(2, seq.Len()).Items()...)
			call := model.NewExpression(items...).WithSpan(seq.Span())
			return c.compile(call)
		}
	}

	fr, err := c.compile(head)
	if err != nil {
		return Result{}, err
	}
	pre := fr.Stmts
	fn := fr.Force(head.Span())

	var args []hast.Expr
	var kws []hast.Keyword
	items := seq.Rest().Items()
	for i := 0; i < len(items); i++ {
		item := items[i]
		if kw, ok := item.(model.Keyword); ok {
			if i+1 >= len(items) {
				return Result{}, c.errf(item, "keyword argument %s has no value", kw)
			}
			vr, err := c.compile(items[i+1])
			if err != nil {
				return Result{}, err
			}
			pre = append(pre, vr.Stmts...)
			kws = append(kws, hast.Keyword{
				Arg:   mangle.Mangle(kw.Name()),
				Value: vr.Force(items[i+1].Span()),
			})
			i++
			continue
		}
		if sub, ok := item.(model.Sequence); ok {
			switch unpackHead(sub) {
			case "unpack-iterable":
				vr, err := c.compile(sub.At(1))
				if err != nil {
					return Result{}, err
				}
				pre = append(pre, vr.Stmts...)
				args = append(args, &hast.Starred{
					Span:  sub.Span(),
					Value: vr.Force(sub.Span()),
					Ctx:   hast.Load,
				})
				continue
			case "unpack-mapping":
				vr, err := c.compile(sub.At(1))
				if err != nil {
					return Result{}, err
				}
				pre = append(pre, vr.Stmts...)
				kws = append(kws, hast.Keyword{Value: vr.Force(sub.Span())})
				continue
			}
		}
		ar, err := c.compile(item)
		if err != nil {
			return Result{}, err
		}
		pre = append(pre, ar.Stmts...)
		args = append(args, ar.Force(item.Span()))
	}

	return Result{
		Stmts: pre,
		expr: &hast.Call{
			Span:     seq.Span(),
			Func:     fn,
			Args:     args,
			Keywords: kws,
		},
	}, nil
}

// compileMany lowers a run of forms, concatenating their statements.
// With unpack set, (unpack-iterable x) items become starred elements.
func (c *Compiler) compileMany(items []model.Object, unpack bool) ([]hast.Expr, []hast.Stmt, error) {
	var exprs []hast.Expr
	var pre []hast.Stmt
	for _, item := range items {
		if unpack {
			if sub, ok := item.(model.Sequence); ok && unpackHead(sub) == "unpack-iterable" {
				r, err := c.compile(sub.At(1))
				if err != nil {
					return nil, nil, err
				}
				pre = append(pre, r.Stmts...)
				exprs = append(exprs, &hast.Starred{
					Span:  sub.Span(),
					Value: r.Force(sub.Span()),
					Ctx:   hast.Load,
				})
				continue
			}
		}
		r, err := c.compile(item)
		if err != nil {
			return nil, nil, err
		}
		pre = append(pre, r.Stmts...)
		exprs = append(exprs, r.Force(item.Span()))
	}
	return exprs, pre, nil
}

// ---- temporaries ----

// tempName allocates a hidden local and registers its definition.
func (c *Compiler) tempName(base string) string {
	name := mangle.Mangle(c.ctx.Gensym(base).Name())
	c.scopes.Define(name)
	return name
}

func (c *Compiler) load(sp model.Span, name string) *hast.Name {
	return &hast.Name{Span: sp, ID: name, Ctx: hast.Load}
}

func (c *Compiler) store(sp model.Span, name string) *hast.Name {
	return &hast.Name{Span: sp, ID: name, Ctx: hast.Store}
}

func (c *Compiler) assign(sp model.Span, name string, value hast.Expr) hast.Stmt {
	return &hast.Assign{
		Span:    sp,
		Targets: []hast.Expr{c.store(sp, name)},
		Value:   value,
	}
}

// runtimeCall builds larch.<name>(args...), the runtime-support
// construction used for quoted models and keyword literals.
func (c *Compiler) runtimeCall(sp model.Span, name string, args ...hast.Expr) hast.Expr {
	return &hast.Call{
		Span: sp,
		Func: &hast.Attribute{
			Span:  sp,
			Value: &hast.Name{Span: sp, ID: RuntimeModule, Ctx: hast.Load},
			Attr:  name,
			Ctx:   hast.Load,
		},
		Args: args,
	}
}

// fn-state helpers track generator detection for the innermost
// function being compiled.

func (c *Compiler) pushFnState() *fnState {
	st := &fnState{}
	c.fnStack = append(c.fnStack, st)
	return st
}

func (c *Compiler) popFnState() *fnState {
	st := c.fnStack[len(c.fnStack)-1]
	c.fnStack = c.fnStack[:len(c.fnStack)-1]
	return st
}

func (c *Compiler) markGenerator(at model.Object) error {
	if len(c.fnStack) == 0 {
		return c.errf(at, "yield outside of a function")
	}
	c.fnStack[len(c.fnStack)-1].generator = true
	return nil
}
