package compile

import (
	"math/big"
	"strings"

	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/mangle"
	"github.com/sergev/larch/model"
)

func init() {
	register("do", 0, -1, "(do form ...)", compileDo)
	register("if", 2, 3, "(if cond then [else])", compileIf)
	register("setv", 0, -1, "(setv target value ...)", compileSetv)
	register("annotate", 2, 2, "(annotate target type)", compileAnnotate)
	register("del", 0, -1, "(del target ...)", compileDel)
	register(".", 1, -1, "(. obj attr-or-index ...)", compileDot)
	register("get", 2, -1, "(get coll key ...)", compileGet)
	register("cut", 1, 4, "(cut coll [lower [upper [step]]])", compileCut)
	register("return", 0, 1, "(return [value])", compileReturn)
	register("raise", 0, 3, "(raise [exc [:from cause]])", compileRaise)
	register("assert", 1, 2, "(assert test [message])", compileAssert)
	register("yield", 0, 1, "(yield [value])", compileYield)
	register("yield-from", 1, 1, "(yield-from iterable)", compileYieldFrom)
	register("await", 1, 1, "(await awaitable)", compileAwait)
	register("global", 1, -1, "(global name ...)", compileGlobal)
	register("nonlocal", 1, -1, "(nonlocal name ...)", compileNonlocal)
	register("import", 1, -1, "(import module-clause ...)", compileImport)
	register("require", 1, -1, "(require module-clause ...)", compileRequire)
	register("unpack-iterable", 1, 1, "(unpack-iterable form)", compileStrayUnpack)
	register("unpack-mapping", 1, 1, "(unpack-mapping form)", compileStrayUnpack)

	for _, op := range augOps {
		op := op
		register(op.name, 2, 2, "("+op.name+" target value)",
			func(c *Compiler, form model.Sequence) (Result, error) {
				return c.compileAugAssign(form, op.op)
			})
	}
}

var augOps = []struct {
	name string
	op   string
}{
	{"+=", "+"}, {"-=", "-"}, {"*=", "*"}, {"/=", "/"}, {"//=", "//"},
	{"%=", "%"}, {"**=", "**"}, {"<<=", "<<"}, {">>=", ">>"},
	{"&=", "&"}, {"|=", "|"}, {"^=", "^"}, {"@=", "@"},
}

// compileBody lowers a run of forms as an implicit do. Every value but
// the last is deliberately discarded, so those results are converted to
// statements; the final result is joined onto the accumulated prefix,
// which also routes the pending-expression diagnostic through the
// composition path.
func (c *Compiler) compileBody(items []model.Object) (Result, error) {
	var acc Result
	for i, item := range items {
		r, err := c.compile(item)
		if err != nil {
			return Result{}, err
		}
		if i == len(items)-1 {
			return c.join(acc, r), nil
		}
		acc.Stmts = append(acc.Stmts, r.AsStmts()...)
	}
	return acc, nil
}

// bodyInto lowers a run of forms into statements that leave the final
// value in temp.
func (c *Compiler) bodyInto(temp string, sp model.Span, items []model.Object) ([]hast.Stmt, error) {
	r, err := c.compileBody(items)
	if err != nil {
		return nil, err
	}
	stmts := r.Stmts
	value := r.Force(sp)
	return append(stmts, c.assign(sp, temp, value)), nil
}

func compileDo(c *Compiler, form model.Sequence) (Result, error) {
	r, err := c.compileBody(form.Rest().Items())
	if err != nil {
		return Result{}, err
	}
	if !r.HasExpr() {
		return Result{Stmts: r.Stmts, expr: &hast.Constant{Span: form.Span(), Value: nil}}, nil
	}
	return r, nil
}

// ---- conditionals ----

// constTruthy decides a constant's truth value at compile time; the
// second return reports whether a decision was possible.
func constTruthy(e hast.Expr) (bool, bool) {
	ct, ok := e.(*hast.Constant)
	if !ok {
		return false, false
	}
	switch v := ct.Value.(type) {
	case nil:
		return false, true
	case bool:
		return v, true
	case string:
		return v != "", true
	case []byte:
		return len(v) != 0, true
	case *big.Int:
		return v.Sign() != 0, true
	case float64:
		return v != 0, true
	case complex128:
		return v != 0, true
	}
	return false, false
}

// ifPlan is one link of a conditional chain, compiled exactly once.
// The else slot holds either a nested link (an else-if, detected after
// expansion) or a plain Result, so the whole chain can later share one
// hidden temp instead of nesting one per level.
type ifPlan struct {
	span     model.Span
	condSpan model.Span
	cond     Result
	then     Result
	elseP    *ifPlan
	elseR    Result
}

func compileIf(c *Compiler, form model.Sequence) (Result, error) {
	plan, flat, err := c.planIf(form)
	if err != nil {
		return Result{}, err
	}
	if plan == nil {
		return flat, nil
	}
	if planPure(plan) {
		return exprResult(planExpr(plan)), nil
	}
	temp := c.tempName("result")
	stmts := c.planInto(plan, temp)
	return Result{Stmts: stmts, expr: c.load(plan.span, temp)}, nil
}

// planIf compiles one if link. A compile-time-decidable condition
// collapses to the taken branch alone, returned through flat.
func (c *Compiler) planIf(form model.Sequence) (*ifPlan, Result, error) {
	condForm := form.At(1)
	thenForm := form.At(2)
	var elseForm model.Object
	if form.Len() == 4 {
		elseForm = form.At(3)
	}

	cond, err := c.compile(condForm)
	if err != nil {
		return nil, Result{}, err
	}
	if cond.Pure() {
		if truth, known := constTruthy(cond.expr); known {
			cond.Take()
			branch := thenForm
			if !truth {
				branch = elseForm
			}
			if branch == nil {
				return nil, exprResult(&hast.Constant{Span: form.Span(), Value: nil}), nil
			}
			flat, err := c.compile(branch)
			return nil, flat, err
		}
	}

	plan := &ifPlan{span: form.Span(), condSpan: condForm.Span(), cond: cond}
	plan.then, err = c.compile(thenForm)
	if err != nil {
		return nil, Result{}, err
	}

	if elseForm == nil {
		plan.elseR = exprResult(&hast.Constant{Span: form.Span(), Value: nil})
		return plan, Result{}, nil
	}
	expanded, done, err := c.expandForm(elseForm)
	if err != nil {
		return nil, Result{}, err
	}
	if done != nil {
		plan.elseR = *done
		return plan, Result{}, nil
	}
	if seq, ok := expanded.(model.Sequence); ok && seq.Kind() == model.KindExpression &&
		expand.HeadName(seq.At(0)) == "if" && (seq.Len() == 3 || seq.Len() == 4) {
		sub, flat, err := c.planIf(seq)
		if err != nil {
			return nil, Result{}, err
		}
		if sub != nil {
			plan.elseP = sub
			return plan, Result{}, nil
		}
		plan.elseR = flat
		return plan, Result{}, nil
	}
	plan.elseR, err = c.compile(expanded)
	if err != nil {
		return nil, Result{}, err
	}
	return plan, Result{}, nil
}

func planPure(p *ifPlan) bool {
	if !p.cond.Pure() || !p.then.Pure() {
		return false
	}
	if p.elseP != nil {
		return planPure(p.elseP)
	}
	return p.elseR.Pure()
}

func planExpr(p *ifPlan) hast.Expr {
	var orelse hast.Expr
	if p.elseP != nil {
		orelse = planExpr(p.elseP)
	} else {
		orelse = p.elseR.Force(p.span)
	}
	return &hast.IfExp{
		Span: p.span,
		Cond: p.cond.Take(),
		Body: p.then.Force(p.span),
		Else: orelse,
	}
}

// planInto flattens the chain into statements assigning the shared
// temp, one host conditional per link.
func (c *Compiler) planInto(p *ifPlan, temp string) []hast.Stmt {
	var elseStmts []hast.Stmt
	if p.elseP != nil {
		elseStmts = c.planInto(p.elseP, temp)
	} else {
		elseStmts = c.resultInto(temp, p.span, p.elseR)
	}
	stmts := append([]hast.Stmt{}, p.cond.Stmts...)
	return append(stmts, &hast.If{
		Span: p.span,
		Cond: p.cond.Force(p.condSpan),
		Body: c.resultInto(temp, p.span, p.then),
		Else: elseStmts,
	})
}

func (c *Compiler) resultInto(temp string, sp model.Span, r Result) []hast.Stmt {
	stmts := r.Stmts
	return append(stmts, c.assign(sp, temp, r.Force(sp)))
}

// ---- binding forms ----

func compileSetv(c *Compiler, form model.Sequence) (Result, error) {
	items := form.Rest().Items()
	if len(items)%2 != 0 {
		return Result{}, c.errf(form, "setv: target %s has no value", items[len(items)-1])
	}
	var stmts []hast.Stmt
	for i := 0; i < len(items); i += 2 {
		s, err := c.compilePair(items[i], items[i+1])
		if err != nil {
			return Result{}, err
		}
		stmts = append(stmts, s...)
	}
	return Result{Stmts: stmts, expr: &hast.Constant{Span: form.Span(), Value: nil}}, nil
}

func (c *Compiler) compilePair(target, value model.Object) ([]hast.Stmt, error) {
	// An annotated target becomes an annotated assignment.
	if seq, ok := target.(model.Sequence); ok && seq.Kind() == model.KindExpression &&
		seq.Len() == 3 && expand.HeadName(seq.At(0)) == "annotate" {
		return c.annAssign(seq, value)
	}
	v, err := c.compile(value)
	if err != nil {
		return nil, err
	}
	stmts := v.Stmts
	val := v.Force(value.Span())
	t, pre, err := c.compileTarget(target, hast.Store)
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, pre...)
	return append(stmts, &hast.Assign{
		Span:    target.Span(),
		Targets: []hast.Expr{t},
		Value:   val,
	}), nil
}

func (c *Compiler) annAssign(annotated model.Sequence, value model.Object) ([]hast.Stmt, error) {
	ann, err := c.compile(annotated.At(2))
	if err != nil {
		return nil, err
	}
	stmts := ann.Stmts
	var val hast.Expr
	if value != nil {
		v, err := c.compile(value)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, v.Stmts...)
		val = v.Force(value.Span())
	}
	t, pre, err := c.compileTarget(annotated.At(1), hast.Store)
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, pre...)
	return append(stmts, &hast.AnnAssign{
		Span:       annotated.Span(),
		Target:     t,
		Annotation: ann.Force(annotated.At(2).Span()),
		Value:      val,
	}), nil
}

func compileAnnotate(c *Compiler, form model.Sequence) (Result, error) {
	stmts, err := c.annAssign(form, nil)
	if err != nil {
		return Result{}, err
	}
	return Result{Stmts: stmts, expr: &hast.Constant{Span: form.Span(), Value: nil}}, nil
}

func (c *Compiler) compileAugAssign(form model.Sequence, op string) (Result, error) {
	target := form.At(1)
	v, err := c.compile(form.At(2))
	if err != nil {
		return Result{}, err
	}
	stmts := v.Stmts
	t, pre, err := c.compileTarget(target, hast.Store)
	if err != nil {
		return Result{}, err
	}
	switch t.(type) {
	case *hast.Name, *hast.Attribute, *hast.Subscript:
	default:
		return Result{}, c.errf(target, "augmented assignment needs a single name, attribute or subscript")
	}
	stmts = append(stmts, pre...)
	stmts = append(stmts, &hast.AugAssign{
		Span:   form.Span(),
		Target: t,
		Op:     op,
		Value:  v.Force(form.At(2).Span()),
	})
	return Result{Stmts: stmts, expr: &hast.Constant{Span: form.Span(), Value: nil}}, nil
}

func compileDel(c *Compiler, form model.Sequence) (Result, error) {
	var targets []hast.Expr
	var stmts []hast.Stmt
	for _, item := range form.Rest().Items() {
		t, pre, err := c.compileTarget(item, hast.Del)
		if err != nil {
			return Result{}, err
		}
		stmts = append(stmts, pre...)
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return exprResult(&hast.Constant{Span: form.Span(), Value: nil}), nil
	}
	stmts = append(stmts, &hast.Delete{Span: form.Span(), Targets: targets})
	return Result{Stmts: stmts, expr: &hast.Constant{Span: form.Span(), Value: nil}}, nil
}

// ---- access forms ----

func compileDot(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	objForm, _ := a.Next("object")
	r, err := c.compile(objForm)
	if err != nil {
		return Result{}, err
	}
	pre := r.Stmts
	e := r.Force(objForm.Span())
	for a.More() {
		item, _ := a.Next("accessor")
		switch v := item.(type) {
		case model.Symbol:
			if strings.Contains(v.Name(), ".") {
				return Result{}, c.errf(v, ".: attribute name must not itself be dotted")
			}
			e = &hast.Attribute{Span: item.Span(), Value: e, Attr: mangle.Mangle(v.Name()), Ctx: hast.Load}
		case model.Sequence:
			if v.Kind() != model.KindList || v.Len() != 1 {
				return Result{}, c.errf(item, ".: index accessor must be a one-element list")
			}
			ir, err := c.compile(v.At(0))
			if err != nil {
				return Result{}, err
			}
			pre = append(pre, ir.Stmts...)
			e = &hast.Subscript{Span: item.Span(), Value: e, Index: ir.Force(v.Span()), Ctx: hast.Load}
		default:
			return Result{}, c.errf(item, ".: accessor must be a symbol or a one-element list")
		}
	}
	return Result{Stmts: pre, expr: e}, nil
}

func compileGet(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	collForm, _ := a.Next("collection")
	r, err := c.compile(collForm)
	if err != nil {
		return Result{}, err
	}
	pre := r.Stmts
	e := r.Force(collForm.Span())
	for a.More() {
		keyForm, _ := a.Next("key")
		kr, err := c.compile(keyForm)
		if err != nil {
			return Result{}, err
		}
		pre = append(pre, kr.Stmts...)
		e = &hast.Subscript{Span: form.Span(), Value: e, Index: kr.Force(keyForm.Span()), Ctx: hast.Load}
	}
	return Result{Stmts: pre, expr: e}, nil
}

func compileCut(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	collForm, _ := a.Next("collection")
	r, err := c.compile(collForm)
	if err != nil {
		return Result{}, err
	}
	pre := r.Stmts
	coll := r.Force(collForm.Span())

	bound := func() (hast.Expr, error) {
		if !a.More() {
			return nil, nil
		}
		item, _ := a.Next("bound")
		if sym, ok := item.(model.Symbol); ok && sym.Name() == "None" {
			return nil, nil
		}
		br, err := c.compile(item)
		if err != nil {
			return nil, err
		}
		pre = append(pre, br.Stmts...)
		return br.Force(item.Span()), nil
	}

	// With exactly one bound it names the upper end, as in host slicing.
	var lower, upper, step hast.Expr
	var err1 error
	first, err1 := bound()
	if err1 != nil {
		return Result{}, err1
	}
	if a.More() {
		lower = first
		if upper, err1 = bound(); err1 != nil {
			return Result{}, err1
		}
		if step, err1 = bound(); err1 != nil {
			return Result{}, err1
		}
	} else {
		upper = first
	}

	return Result{Stmts: pre, expr: &hast.Subscript{
		Span:  form.Span(),
		Value: coll,
		Index: &hast.SliceExpr{Span: form.Span(), Lower: lower, Upper: upper, Step: step},
		Ctx:   hast.Load,
	}}, nil
}

// ---- control transfer ----

func compileReturn(c *Compiler, form model.Sequence) (Result, error) {
	if len(c.fnStack) == 0 {
		return Result{}, c.errf(form, "return outside of a function")
	}
	var value hast.Expr
	var pre []hast.Stmt
	if form.Len() == 2 {
		r, err := c.compile(form.At(1))
		if err != nil {
			return Result{}, err
		}
		pre = r.Stmts
		value = r.Force(form.At(1).Span())
	}
	pre = append(pre, &hast.Return{Span: form.Span(), Value: value})
	return stmtResult(pre...), nil
}

func compileRaise(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	var exc, cause hast.Expr
	var pre []hast.Stmt
	if a.More() {
		item, _ := a.Next("exception")
		r, err := c.compile(item)
		if err != nil {
			return Result{}, err
		}
		pre = r.Stmts
		exc = r.Force(item.Span())
		if a.IfKw("from") {
			causeForm, err := a.Next("cause")
			if err != nil {
				return Result{}, err
			}
			cr, err := c.compile(causeForm)
			if err != nil {
				return Result{}, err
			}
			pre = append(pre, cr.Stmts...)
			cause = cr.Force(causeForm.Span())
		}
	}
	if err := a.End(); err != nil {
		return Result{}, err
	}
	pre = append(pre, &hast.Raise{Span: form.Span(), Exc: exc, Cause: cause})
	return stmtResult(pre...), nil
}

func compileAssert(c *Compiler, form model.Sequence) (Result, error) {
	t, err := c.compile(form.At(1))
	if err != nil {
		return Result{}, err
	}
	pre := t.Stmts
	var msg hast.Expr
	if form.Len() == 3 {
		m, err := c.compile(form.At(2))
		if err != nil {
			return Result{}, err
		}
		pre = append(pre, m.Stmts...)
		msg = m.Force(form.At(2).Span())
	}
	pre = append(pre, &hast.Assert{
		Span: form.Span(),
		Test: t.Force(form.At(1).Span()),
		Msg:  msg,
	})
	return stmtResult(pre...), nil
}

func compileYield(c *Compiler, form model.Sequence) (Result, error) {
	if err := c.markGenerator(form); err != nil {
		return Result{}, err
	}
	var value hast.Expr
	var pre []hast.Stmt
	if form.Len() == 2 {
		r, err := c.compile(form.At(1))
		if err != nil {
			return Result{}, err
		}
		pre = r.Stmts
		value = r.Force(form.At(1).Span())
	}
	return Result{Stmts: pre, expr: &hast.Yield{Span: form.Span(), Value: value}}, nil
}

func compileYieldFrom(c *Compiler, form model.Sequence) (Result, error) {
	if err := c.markGenerator(form); err != nil {
		return Result{}, err
	}
	r, err := c.compile(form.At(1))
	if err != nil {
		return Result{}, err
	}
	return Result{Stmts: r.Stmts, expr: &hast.YieldFrom{
		Span:  form.Span(),
		Value: r.Force(form.At(1).Span()),
	}}, nil
}

func compileAwait(c *Compiler, form model.Sequence) (Result, error) {
	r, err := c.compile(form.At(1))
	if err != nil {
		return Result{}, err
	}
	return Result{Stmts: r.Stmts, expr: &hast.Await{
		Span:  form.Span(),
		Value: r.Force(form.At(1).Span()),
	}}, nil
}

// ---- declarations ----

func compileGlobal(c *Compiler, form model.Sequence) (Result, error) {
	return c.compileDecl(form, true)
}

func compileNonlocal(c *Compiler, form model.Sequence) (Result, error) {
	return c.compileDecl(form, false)
}

func (c *Compiler) compileDecl(form model.Sequence, global bool) (Result, error) {
	a := c.args(form)
	var names []string
	for a.More() {
		sym, err := a.Sym("name")
		if err != nil {
			return Result{}, err
		}
		n := &hast.Name{Span: sym.Span(), ID: mangle.Mangle(sym.Name())}
		var derr error
		if global {
			derr = c.scopes.DefineGlobal(n)
		} else {
			derr = c.scopes.DefineNonlocal(n)
		}
		if derr != nil {
			return Result{}, c.wrapScopeErr(derr)
		}
		names = append(names, n.ID)
	}
	var s hast.Stmt
	if global {
		s = &hast.Global{Span: form.Span(), Names: names}
	} else {
		s = &hast.Nonlocal{Span: form.Span(), Names: names}
	}
	return stmtResult(s), nil
}

// ---- imports ----

func compileImport(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	var stmts []hast.Stmt
	for a.More() {
		sym, err := a.Sym("module name")
		if err != nil {
			return Result{}, err
		}
		module, level := splitRelative(sym.Name())

		switch {
		case a.IfKw("as"):
			alias, err := a.Sym("alias")
			if err != nil {
				return Result{}, err
			}
			if level > 0 {
				return Result{}, c.errf(sym, "import: a relative module cannot take an alias")
			}
			stmts = append(stmts, &hast.Import{Span: form.Span(), Names: []hast.Alias{{
				Name: mangleModule(module), AsName: mangle.Mangle(alias.Name()),
			}}})
			c.defineTop(mangle.Mangle(alias.Name()))

		case isSeqKind(a.Peek(), model.KindList):
			nameList, _ := a.Seq(model.KindList, "name list")
			names, bound, err := c.importNames(nameList)
			if err != nil {
				return Result{}, err
			}
			stmts = append(stmts, &hast.ImportFrom{
				Span:   form.Span(),
				Module: mangleModule(module),
				Names:  names,
				Level:  level,
			})
			for _, b := range bound {
				c.defineTop(b)
			}

		case isSym(a.Peek(), "*"):
			a.Next("star")
			stmts = append(stmts, &hast.ImportFrom{
				Span:   form.Span(),
				Module: mangleModule(module),
				Names:  []hast.Alias{{Name: "*"}},
				Level:  level,
			})

		default:
			if level > 0 {
				return Result{}, c.errf(sym, "import: a relative import needs a name list")
			}
			mangled := mangleModule(module)
			stmts = append(stmts, &hast.Import{Span: form.Span(), Names: []hast.Alias{{Name: mangled}}})
			c.defineTop(strings.SplitN(mangled, ".", 2)[0])
		}
	}
	return Result{Stmts: stmts, expr: &hast.Constant{Span: form.Span(), Value: nil}}, nil
}

func (c *Compiler) importNames(list model.Sequence) ([]hast.Alias, []string, error) {
	a := c.group("import", list)
	var names []hast.Alias
	var bound []string
	for a.More() {
		sym, err := a.Sym("imported name")
		if err != nil {
			return nil, nil, err
		}
		alias := hast.Alias{Name: mangle.Mangle(sym.Name())}
		local := alias.Name
		if a.IfKw("as") {
			as, err := a.Sym("alias")
			if err != nil {
				return nil, nil, err
			}
			alias.AsName = mangle.Mangle(as.Name())
			local = alias.AsName
		}
		names = append(names, alias)
		bound = append(bound, local)
	}
	return names, bound, nil
}

// defineTop records a name bound by an import in the current scope.
func (c *Compiler) defineTop(name string) {
	c.scopes.Define(name)
}

func splitRelative(name string) (string, int) {
	level := 0
	for level < len(name) && name[level] == '.' {
		level++
	}
	return name[level:], level
}

func mangleModule(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = mangle.Mangle(p)
	}
	return strings.Join(parts, ".")
}

func isSym(o model.Object, name string) bool {
	sym, ok := o.(model.Symbol)
	return ok && sym.Name() == name
}

func isSeqKind(o model.Object, kind model.Kind) bool {
	seq, ok := o.(model.Sequence)
	return ok && seq.Kind() == kind
}

// ---- require ----

func compileRequire(c *Compiler, form model.Sequence) (Result, error) {
	if c.Require == nil {
		return Result{}, c.errf(form, "require is not available in this compilation")
	}
	a := c.args(form)
	for a.More() {
		sym, err := a.Sym("module name")
		if err != nil {
			return Result{}, err
		}
		macros, err := c.Require(sym.Name())
		if err != nil {
			return Result{}, c.errf(sym, "require: %s", err)
		}

		switch {
		case a.IfKw("as"):
			alias, err := a.Sym("alias")
			if err != nil {
				return Result{}, err
			}
			for name, m := range macros {
				c.ctx.RequireMacro(alias.Name()+"."+name, m, true)
			}

		case isSeqKind(a.Peek(), model.KindList):
			nameList, _ := a.Seq(model.KindList, "macro list")
			g := c.group("require", nameList)
			for g.More() {
				mname, err := g.Sym("macro name")
				if err != nil {
					return Result{}, err
				}
				m, ok := macros[mname.Name()]
				if !ok {
					return Result{}, c.errf(mname, "require: module %s has no macro %s",
						sym.Name(), mname.Name())
				}
				local := mname.Name()
				if g.IfKw("as") {
					as, err := g.Sym("alias")
					if err != nil {
						return Result{}, err
					}
					local = as.Name()
				}
				c.ctx.RequireMacro(local, m, false)
			}

		default:
			for name, m := range macros {
				c.ctx.RequireMacro(sym.Name()+"."+name, m, true)
			}
		}
	}
	return exprResult(&hast.Constant{Span: form.Span(), Value: nil}), nil
}

func compileStrayUnpack(c *Compiler, form model.Sequence) (Result, error) {
	return Result{}, c.errf(form, "%s is only meaningful inside a call, collection or target",
		expand.HeadName(form.At(0)))
}
