package compile

import (
	"strings"

	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/mangle"
	"github.com/sergev/larch/model"
)

func init() {
	register("match", 1, -1, "(match subject pattern [:if guard] result ...)", compileMatch)
}

func compileMatch(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	subjForm, _ := a.Next("subject")
	sr, err := c.compile(subjForm)
	if err != nil {
		return Result{}, err
	}
	pre := sr.Stmts
	subject := sr.Force(subjForm.Span())

	temp := c.tempName("result")
	sp := form.Span()
	// No case may match, so the result starts as None.
	pre = append(pre, c.assign(sp, temp, &hast.Constant{Span: sp, Value: nil}))

	var cases []*hast.MatchCase
	for a.More() {
		patForm, err := a.Next("pattern")
		if err != nil {
			return Result{}, err
		}
		pat, err := c.compilePattern(patForm)
		if err != nil {
			return Result{}, err
		}

		var guard hast.Expr
		if a.IfKw("if") {
			guardForm, err := a.Next("guard")
			if err != nil {
				return Result{}, err
			}
			guard, pre, err = c.compileGuard(guardForm, pre)
			if err != nil {
				return Result{}, err
			}
		}

		resultForm, err := a.Next("case result")
		if err != nil {
			return Result{}, err
		}
		body, err := c.bodyInto(temp, resultForm.Span(), []model.Object{resultForm})
		if err != nil {
			return Result{}, err
		}
		cases = append(cases, &hast.MatchCase{
			Span:  patForm.Span(),
			Pat:   pat,
			Guard: guard,
			Body:  body,
		})
	}
	if len(cases) == 0 {
		return Result{}, c.errf(form, "match: needs at least one case")
	}

	stmts := append(pre, &hast.Match{Span: sp, Subject: subject, Cases: cases})
	return Result{Stmts: stmts, expr: c.load(sp, temp)}, nil
}

// compileGuard lowers a case guard. A guard that needs statements is
// lifted into a zero-argument helper defined before the match, so the
// host guard slot stays a plain expression.
func (c *Compiler) compileGuard(form model.Object, pre []hast.Stmt) (hast.Expr, []hast.Stmt, error) {
	c.pushFnState()
	c.scopes.PushFunction()
	r, err := c.compile(form)
	if err != nil {
		c.scopes.Pop()
		c.popFnState()
		return nil, nil, err
	}
	if err := c.scopes.Pop(); err != nil {
		c.popFnState()
		return nil, nil, c.wrapScopeErr(err)
	}
	c.popFnState()

	if r.Pure() {
		return r.Take(), pre, nil
	}

	sp := form.Span()
	body := append(r.Stmts, &hast.Return{Span: sp, Value: r.Force(sp)})
	helper := c.tempName("guard")
	pre = append(pre, &hast.FuncDef{Span: sp, Name: helper, Body: body})
	call := &hast.Call{Span: sp, Func: c.load(sp, helper)}
	return call, pre, nil
}

func (c *Compiler) compilePattern(form model.Object) (hast.Pattern, error) {
	switch v := form.(type) {
	case model.Symbol:
		return c.symbolPattern(v)
	case model.String:
		return &hast.MatchValue{Span: v.Span(), Value: &hast.Constant{Span: v.Span(), Value: v.Value()}}, nil
	case model.Bytes:
		return &hast.MatchValue{Span: v.Span(), Value: &hast.Constant{Span: v.Span(), Value: v.Value()}}, nil
	case model.Integer:
		return &hast.MatchValue{Span: v.Span(), Value: &hast.Constant{Span: v.Span(), Value: v.Value()}}, nil
	case model.Float:
		return &hast.MatchValue{Span: v.Span(), Value: &hast.Constant{Span: v.Span(), Value: v.Value()}}, nil
	case model.Complex:
		return &hast.MatchValue{Span: v.Span(), Value: &hast.Constant{Span: v.Span(), Value: v.Value()}}, nil
	case model.Keyword:
		return nil, c.errf(v, "match: a keyword cannot be a pattern")
	case model.Sequence:
		switch v.Kind() {
		case model.KindList, model.KindTuple:
			return c.sequencePattern(v)
		case model.KindDict:
			return c.mappingPattern(v)
		case model.KindExpression:
			return c.expressionPattern(v)
		}
	}
	return nil, c.errf(form, "match: unsupported pattern shape")
}

func (c *Compiler) symbolPattern(sym model.Symbol) (hast.Pattern, error) {
	sp := sym.Span()
	switch sym.Name() {
	case "True":
		return &hast.MatchSingleton{Span: sp, Value: true}, nil
	case "False":
		return &hast.MatchSingleton{Span: sp, Value: false}, nil
	case "None":
		return &hast.MatchSingleton{Span: sp, Value: nil}, nil
	case "_":
		return &hast.MatchAs{Span: sp}, nil
	}
	if strings.Contains(sym.Name(), ".") {
		// A dotted name matches by value, not by capture.
		r, err := c.compileDottedSymbol(sym)
		if err != nil {
			return nil, err
		}
		return &hast.MatchValue{Span: sp, Value: r.Take()}, nil
	}
	name := mangle.Mangle(sym.Name())
	c.scopes.Define(name)
	return &hast.MatchAs{Span: sp, Name: name}, nil
}

func (c *Compiler) sequencePattern(seq model.Sequence) (hast.Pattern, error) {
	var pats []hast.Pattern
	for _, item := range seq.Items() {
		if sub, ok := item.(model.Sequence); ok && unpackHead(sub) == "unpack-iterable" {
			sym, ok := sub.At(1).(model.Symbol)
			if !ok {
				return nil, c.errf(sub, "match: the rest capture must be a symbol")
			}
			name := ""
			if sym.Name() != "_" {
				name = mangle.Mangle(sym.Name())
				c.scopes.Define(name)
			}
			pats = append(pats, &hast.MatchStar{Span: sub.Span(), Name: name})
			continue
		}
		p, err := c.compilePattern(item)
		if err != nil {
			return nil, err
		}
		pats = append(pats, p)
	}
	return &hast.MatchSequence{Span: seq.Span(), Patterns: pats}, nil
}

func (c *Compiler) mappingPattern(seq model.Sequence) (hast.Pattern, error) {
	m := &hast.MatchMapping{Span: seq.Span()}
	items := seq.Items()
	i := 0
	for i < len(items) {
		if sub, ok := items[i].(model.Sequence); ok && unpackHead(sub) == "unpack-mapping" {
			sym, ok := sub.At(1).(model.Symbol)
			if !ok {
				return nil, c.errf(sub, "match: the rest capture must be a symbol")
			}
			m.Rest = mangle.Mangle(sym.Name())
			c.scopes.Define(m.Rest)
			i++
			continue
		}
		if i+1 >= len(items) {
			return nil, c.errf(items[i], "match: mapping pattern key has no value pattern")
		}
		kr, err := c.compile(items[i])
		if err != nil {
			return nil, err
		}
		if !kr.Pure() {
			return nil, c.errf(items[i], "match: mapping keys must be constant expressions")
		}
		vp, err := c.compilePattern(items[i+1])
		if err != nil {
			return nil, err
		}
		m.Keys = append(m.Keys, kr.Take())
		m.Patterns = append(m.Patterns, vp)
		i += 2
	}
	return m, nil
}

func (c *Compiler) expressionPattern(seq model.Sequence) (hast.Pattern, error) {
	if seq.Len() == 0 {
		return nil, c.errf(seq, "match: empty pattern")
	}
	head := expand.HeadName(seq.At(0))
	switch head {
	case "|":
		var pats []hast.Pattern
		for _, item := range seq.Rest().Items() {
			p, err := c.compilePattern(item)
			if err != nil {
				return nil, err
			}
			pats = append(pats, p)
		}
		if len(pats) < 2 {
			return nil, c.errf(seq, "match: alternation needs at least two patterns")
		}
		return &hast.MatchOr{Span: seq.Span(), Patterns: pats}, nil

	case "as":
		if seq.Len() != 3 {
			return nil, c.errf(seq, "match: an as pattern is (as pattern name)")
		}
		p, err := c.compilePattern(seq.At(1))
		if err != nil {
			return nil, err
		}
		sym, ok := seq.At(2).(model.Symbol)
		if !ok {
			return nil, c.errf(seq.At(2), "match: the alias must be a symbol")
		}
		name := mangle.Mangle(sym.Name())
		c.scopes.Define(name)
		return &hast.MatchAs{Span: seq.Span(), Pattern: p, Name: name}, nil
	}

	// Class destructuring: (Cls positional ... :kw pattern ...).
	clsSym, ok := seq.At(0).(model.Symbol)
	if !ok {
		return nil, c.errf(seq.At(0), "match: a class pattern starts with the class name")
	}
	cr, err := c.compileSymbol(clsSym)
	if err != nil {
		return nil, err
	}
	mc := &hast.MatchClass{Span: seq.Span(), Cls: cr.Take()}
	items := seq.Rest().Items()
	for i := 0; i < len(items); i++ {
		if kw, ok := items[i].(model.Keyword); ok {
			if i+1 >= len(items) {
				return nil, c.errf(kw, "match: keyword %s has no pattern", kw)
			}
			p, err := c.compilePattern(items[i+1])
			if err != nil {
				return nil, err
			}
			mc.KwdNames = append(mc.KwdNames, mangle.Mangle(kw.Name()))
			mc.KwdPatterns = append(mc.KwdPatterns, p)
			i++
			continue
		}
		if len(mc.KwdNames) > 0 {
			return nil, c.errf(items[i], "match: positional patterns must come before keyword patterns")
		}
		p, err := c.compilePattern(items[i])
		if err != nil {
			return nil, err
		}
		mc.Patterns = append(mc.Patterns, p)
	}
	return mc, nil
}
