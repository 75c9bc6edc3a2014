package compile

import (
	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/mangle"
	"github.com/sergev/larch/model"
	"github.com/sergev/larch/scopes"
)

func init() {
	register("while", 1, -1, "(while cond body ...)", compileWhile)
	register("for", 1, -1, "(for [bindings] body ...)", compileFor)
	register("break", 0, 0, "(break)", func(c *Compiler, form model.Sequence) (Result, error) {
		return stmtResult(&hast.Break{Span: form.Span()}), nil
	})
	register("continue", 0, 0, "(continue)", func(c *Compiler, form model.Sequence) (Result, error) {
		return stmtResult(&hast.Continue{Span: form.Span()}), nil
	})
	register("lfor", 2, -1, "(lfor clauses ... element)", func(c *Compiler, form model.Sequence) (Result, error) {
		return c.compileComp(form, compList)
	})
	register("sfor", 2, -1, "(sfor clauses ... element)", func(c *Compiler, form model.Sequence) (Result, error) {
		return c.compileComp(form, compSet)
	})
	register("gfor", 2, -1, "(gfor clauses ... element)", func(c *Compiler, form model.Sequence) (Result, error) {
		return c.compileComp(form, compGen)
	})
	register("dfor", 3, -1, "(dfor clauses ... key value)", func(c *Compiler, form model.Sequence) (Result, error) {
		return c.compileComp(form, compDict)
	})
}

// splitElse separates a trailing (else ...) clause from a loop body.
func splitElse(items []model.Object) (body []model.Object, elseBody []model.Object, has bool) {
	if len(items) == 0 {
		return items, nil, false
	}
	last, ok := items[len(items)-1].(model.Sequence)
	if ok && last.Kind() == model.KindExpression && last.Len() >= 1 &&
		expand.HeadName(last.At(0)) == "else" {
		return items[:len(items)-1], last.Rest().Items(), true
	}
	return items, nil, false
}

func compileWhile(c *Compiler, form model.Sequence) (Result, error) {
	condForm := form.At(1)
	bodyItems, elseItems, hasElse := splitElse(form.Slice(2, form.Len()).Items())

	cond, err := c.compile(condForm)
	if err != nil {
		return Result{}, err
	}
	bodyRes, err := c.compileBody(bodyItems)
	if err != nil {
		return Result{}, err
	}
	body := bodyRes.AsStmts()
	if len(body) == 0 {
		body = []hast.Stmt{&hast.Pass{Span: form.Span()}}
	}
	var elseStmts []hast.Stmt
	if hasElse {
		er, err := c.compileBody(elseItems)
		if err != nil {
			return Result{}, err
		}
		elseStmts = er.AsStmts()
	}

	var loop hast.Stmt
	if cond.Pure() {
		loop = &hast.While{
			Span: form.Span(),
			Cond: cond.Take(),
			Body: body,
			Else: elseStmts,
		}
	} else {
		// The condition needs statements, so it is re-evaluated at the
		// top of an unconditional loop. The else clause runs exactly
		// when the condition fails; a source-level break skips it.
		exit := append(elseStmts, &hast.Break{Span: form.Span()})
		check := append(append([]hast.Stmt{}, cond.Stmts...), &hast.If{
			Span: condForm.Span(),
			Cond: &hast.UnaryOp{Span: condForm.Span(), Op: "not", Operand: cond.Force(condForm.Span())},
			Body: exit,
		})
		loop = &hast.While{
			Span: form.Span(),
			Cond: &hast.Constant{Span: form.Span(), Value: true},
			Body: append(check, body...),
		}
	}
	return Result{Stmts: []hast.Stmt{loop}, expr: &hast.Constant{Span: form.Span(), Value: nil}}, nil
}

func compileFor(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	bindings, err := a.Seq(model.KindList, "binding list")
	if err != nil {
		return Result{}, err
	}
	bodyItems, elseItems, hasElse := splitElse(a.Rest())

	type loopLevel struct {
		target hast.Expr
		pre    []hast.Stmt
		iter   hast.Expr
		span   model.Span
		async  bool
	}
	var levels []loopLevel
	b := c.group("for", bindings)
	for b.More() {
		async := b.IfKw("async")
		targetForm, err := b.Next("iteration target")
		if err != nil {
			return Result{}, err
		}
		iterForm, err := b.Next("iterable")
		if err != nil {
			return Result{}, err
		}
		ir, err := c.compile(iterForm)
		if err != nil {
			return Result{}, err
		}
		t, tpre, err := c.compileTarget(targetForm, hast.Store)
		if err != nil {
			return Result{}, err
		}
		levels = append(levels, loopLevel{
			target: t,
			pre:    append(ir.Stmts, tpre...),
			iter:   ir.Force(iterForm.Span()),
			span:   targetForm.Span(),
			async:  async,
		})
	}
	if len(levels) == 0 {
		return Result{}, c.errf(bindings, "for: needs at least one target/iterable pair")
	}

	bodyRes, err := c.compileBody(bodyItems)
	if err != nil {
		return Result{}, err
	}
	inner := bodyRes.AsStmts()
	if len(inner) == 0 {
		inner = []hast.Stmt{&hast.Pass{Span: form.Span()}}
	}
	var elseStmts []hast.Stmt
	if hasElse {
		er, err := c.compileBody(elseItems)
		if err != nil {
			return Result{}, err
		}
		elseStmts = er.AsStmts()
	}

	var stmts []hast.Stmt
	for i := len(levels) - 1; i >= 0; i-- {
		lv := levels[i]
		loop := &hast.For{
			Span:   lv.span,
			Target: lv.target,
			Iter:   lv.iter,
			Body:   inner,
			Async:  lv.async,
		}
		if i == 0 {
			loop.Else = elseStmts
			stmts = append(append([]hast.Stmt{}, lv.pre...), loop)
		} else {
			inner = append(append([]hast.Stmt{}, lv.pre...), loop)
		}
	}
	return Result{Stmts: stmts, expr: &hast.Constant{Span: form.Span(), Value: nil}}, nil
}

// ---- comprehensions ----

type compKind int

const (
	compList compKind = iota
	compSet
	compGen
	compDict
)

const (
	clauseBind = iota
	clauseIf
	clauseDo
	clauseSetv
)

// compClause is one parsed clause; all four comprehension forms share
// the grammar.
type compClause struct {
	kind  int
	async bool
	span  model.Span

	// bind
	target    hast.Expr
	targetPre []hast.Stmt
	iter      Result
	iterSpan  model.Span

	// if / do
	value Result

	// setv
	stmts []hast.Stmt
}

func (c *Compiler) compileComp(form model.Sequence, kind compKind) (Result, error) {
	trailing := 1
	if kind == compDict {
		trailing = 2
	}

	gen := c.scopes.PushGenerator()
	popped := false
	defer func() {
		if !popped {
			c.scopes.Pop()
		}
	}()

	a := c.args(form)
	var clauses []compClause
	fallback := false
	for a.Left() > trailing {
		cl := compClause{}
		switch {
		case a.IfKw("async"):
			cl.async = true
			if err := c.parseBindClause(a, &cl); err != nil {
				return Result{}, err
			}
		case a.IfKw("if"):
			cl.kind = clauseIf
			condForm, err := a.Next("filter condition")
			if err != nil {
				return Result{}, err
			}
			cl.span = condForm.Span()
			cl.value, err = c.compile(condForm)
			if err != nil {
				return Result{}, err
			}
		case a.IfKw("do"):
			cl.kind = clauseDo
			doForm, err := a.Next("side-effect form")
			if err != nil {
				return Result{}, err
			}
			cl.span = doForm.Span()
			cl.value, err = c.compile(doForm)
			if err != nil {
				return Result{}, err
			}
			fallback = true
		case a.IfKw("setv"):
			cl.kind = clauseSetv
			targetForm, err := a.Next("target")
			if err != nil {
				return Result{}, err
			}
			valueForm, err := a.Next("value")
			if err != nil {
				return Result{}, err
			}
			cl.span = targetForm.Span()
			cl.stmts, err = c.compilePair(targetForm, valueForm)
			if err != nil {
				return Result{}, err
			}
			fallback = true
		default:
			if err := c.parseBindClause(a, &cl); err != nil {
				return Result{}, err
			}
		}
		if len(clauses) == 0 && cl.kind != clauseBind {
			return Result{}, c.errf(form, "%s: the first clause must bind an iteration variable", a.head)
		}
		clauses = append(clauses, cl)
	}
	if len(clauses) == 0 {
		return Result{}, c.errf(form, "%s: needs at least one iteration clause", a.head)
	}

	elems := a.Rest()
	if len(elems) != trailing {
		return Result{}, c.errf(form, "%s: missing the produced element", a.head)
	}
	var elemRes [2]Result
	for i, e := range elems {
		r, err := c.compile(e)
		if err != nil {
			return Result{}, err
		}
		elemRes[i] = r
	}

	for _, cl := range clauses {
		if cl.kind == clauseBind && (!cl.iter.Pure() || len(cl.targetPre) > 0) {
			fallback = true
		}
		if cl.kind == clauseIf && !cl.value.Pure() {
			fallback = true
		}
	}
	for i := range elems {
		if !elemRes[i].Pure() {
			fallback = true
		}
	}

	if !fallback {
		e, err := c.nativeComp(form, kind, clauses, elems, elemRes)
		if err != nil {
			return Result{}, err
		}
		popped = true
		if err := c.scopes.Pop(); err != nil {
			return Result{}, c.wrapScopeErr(err)
		}
		return exprResult(e), nil
	}

	res, err := c.loopComp(form, kind, gen, clauses, elems, elemRes)
	if err != nil {
		return Result{}, err
	}
	popped = true
	if err := c.scopes.Pop(); err != nil {
		return Result{}, c.wrapScopeErr(err)
	}
	if def, ok := res.Stmts[0].(*hast.FuncDef); ok {
		c.scopes.Define(def.Name)
	}
	return res, nil
}

func (c *Compiler) parseBindClause(a *args, cl *compClause) error {
	cl.kind = clauseBind
	targetForm, err := a.Next("iteration target")
	if err != nil {
		return err
	}
	iterForm, err := a.Next("iterable")
	if err != nil {
		return err
	}
	cl.span = targetForm.Span()
	cl.iterSpan = iterForm.Span()
	cl.iter, err = c.compile(iterForm)
	if err != nil {
		return err
	}
	cl.target, cl.targetPre, err = c.compileIterTarget(targetForm)
	return err
}

// compileIterTarget is compileTarget for comprehension iteration
// variables: plain names register as protected iteration bindings.
func (c *Compiler) compileIterTarget(form model.Object) (hast.Expr, []hast.Stmt, error) {
	gen, _ := c.scopes.Current().(*scopes.GenFrame)
	switch v := form.(type) {
	case model.Symbol:
		name := v.Name()
		if reservedName(name) {
			return nil, nil, c.errf(v, "cannot assign to the reserved name %s", name)
		}
		n := &hast.Name{Span: v.Span(), ID: mangle.Mangle(name), Ctx: hast.Store}
		if gen != nil {
			gen.DefineIteration(n)
		} else {
			if err := c.scopes.Assign(n); err != nil {
				return nil, nil, c.wrapScopeErr(err)
			}
		}
		return n, nil, nil
	case model.Sequence:
		if v.Kind() == model.KindList || v.Kind() == model.KindTuple {
			var elts []hast.Expr
			var pre []hast.Stmt
			for _, item := range v.Items() {
				e, p, err := c.compileIterTarget(item)
				if err != nil {
					return nil, nil, err
				}
				pre = append(pre, p...)
				elts = append(elts, e)
			}
			return &hast.TupleExpr{Span: v.Span(), Elts: elts, Ctx: hast.Store}, pre, nil
		}
	}
	return c.compileTarget(form, hast.Store)
}

func (c *Compiler) nativeComp(form model.Sequence, kind compKind, clauses []compClause,
	elems []model.Object, elemRes [2]Result) (hast.Expr, error) {

	var gens []hast.Comprehension
	for _, cl := range clauses {
		switch cl.kind {
		case clauseBind:
			gens = append(gens, hast.Comprehension{
				Target: cl.target,
				Iter:   cl.iter.Force(cl.iterSpan),
				Async:  cl.async,
			})
		case clauseIf:
			g := &gens[len(gens)-1]
			g.Ifs = append(g.Ifs, cl.value.Force(cl.span))
		default:
			internalf("clause kind %d reached the native comprehension path", cl.kind)
		}
	}

	sp := form.Span()
	switch kind {
	case compList:
		return &hast.ListComp{Span: sp, Elt: elemRes[0].Force(elems[0].Span()), Generators: gens}, nil
	case compSet:
		return &hast.SetComp{Span: sp, Elt: elemRes[0].Force(elems[0].Span()), Generators: gens}, nil
	case compGen:
		return &hast.GeneratorExp{Span: sp, Elt: elemRes[0].Force(elems[0].Span()), Generators: gens}, nil
	default:
		return &hast.DictComp{
			Span:       sp,
			Key:        elemRes[0].Force(elems[0].Span()),
			Value:      elemRes[1].Force(elems[1].Span()),
			Generators: gens,
		}, nil
	}
}

// loopComp lowers a statement-bearing comprehension to an equivalent
// nested-loop routine, immediately invoked. Clause order, filter
// short-circuiting and element order match the native path exactly.
func (c *Compiler) loopComp(form model.Sequence, kind compKind, gen *scopes.GenFrame,
	clauses []compClause, elems []model.Object, elemRes [2]Result) (Result, error) {

	sp := form.Span()
	const acc = "_larch_acc"

	// Innermost statements: accumulate or yield the element.
	var inner []hast.Stmt
	inner = append(inner, elemRes[0].Stmts...)
	if kind == compDict {
		inner = append(inner, elemRes[1].Stmts...)
		inner = append(inner, &hast.Assign{
			Span: sp,
			Targets: []hast.Expr{&hast.Subscript{
				Span:  sp,
				Value: &hast.Name{Span: sp, ID: acc, Ctx: hast.Load},
				Index: elemRes[0].Force(elems[0].Span()),
				Ctx:   hast.Store,
			}},
			Value: elemRes[1].Force(elems[1].Span()),
		})
	} else if kind == compGen {
		inner = append(inner, &hast.ExprStmt{Span: sp, X: &hast.Yield{
			Span:  sp,
			Value: elemRes[0].Force(elems[0].Span()),
		}})
	} else {
		method := "append"
		if kind == compSet {
			method = "add"
		}
		inner = append(inner, &hast.ExprStmt{Span: sp, X: &hast.Call{
			Span: sp,
			Func: &hast.Attribute{
				Span:  sp,
				Value: &hast.Name{Span: sp, ID: acc, Ctx: hast.Load},
				Attr:  method,
				Ctx:   hast.Load,
			},
			Args: []hast.Expr{elemRes[0].Force(elems[0].Span())},
		}})
	}

	// Wrap the clauses around it, innermost last.
	for i := len(clauses) - 1; i >= 0; i-- {
		cl := clauses[i]
		switch cl.kind {
		case clauseBind:
			loop := &hast.For{
				Span:   cl.span,
				Target: cl.target,
				Iter:   cl.iter.Force(cl.iterSpan),
				Body:   inner,
				Async:  cl.async,
			}
			inner = append(append(append([]hast.Stmt{}, cl.iter.Stmts...), cl.targetPre...), loop)
		case clauseIf:
			guarded := &hast.If{Span: cl.span, Cond: cl.value.Force(cl.span), Body: inner}
			inner = append(append([]hast.Stmt{}, cl.value.Stmts...), guarded)
		case clauseDo:
			inner = append(cl.value.AsStmts(), inner...)
		case clauseSetv:
			inner = append(append([]hast.Stmt{}, cl.stmts...), inner...)
		}
	}

	var body []hast.Stmt
	leaked, global := gen.Leaked()
	if len(leaked) > 0 {
		if global {
			body = append(body, &hast.Global{Span: sp, Names: leaked})
		} else {
			body = append(body, &hast.Nonlocal{Span: sp, Names: leaked})
		}
	}
	if kind != compGen {
		var init hast.Expr
		switch kind {
		case compList:
			init = &hast.ListExpr{Span: sp, Ctx: hast.Load}
		case compSet:
			init = &hast.Call{Span: sp, Func: &hast.Name{Span: sp, ID: "set", Ctx: hast.Load}}
		case compDict:
			init = &hast.DictExpr{Span: sp}
		}
		body = append(body, &hast.Assign{
			Span:    sp,
			Targets: []hast.Expr{&hast.Name{Span: sp, ID: acc, Ctx: hast.Store}},
			Value:   init,
		})
	}
	body = append(body, inner...)
	if kind != compGen {
		body = append(body, &hast.Return{Span: sp, Value: &hast.Name{Span: sp, ID: acc, Ctx: hast.Load}})
	}

	helper := mangle.Mangle(c.ctx.Gensym("comp").Name())
	def := &hast.FuncDef{Span: sp, Name: helper, Body: body}
	return Result{
		Stmts: []hast.Stmt{def},
		expr: &hast.Call{
			Span: sp,
			Func: &hast.Name{Span: sp, ID: helper, Ctx: hast.Load},
		},
	}, nil
}
