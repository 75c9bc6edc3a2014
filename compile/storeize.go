package compile

import (
	"strings"

	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/mangle"
	"github.com/sergev/larch/model"
)

// reservedName reports the literal names that can never be assigned.
func reservedName(name string) bool {
	switch name {
	case "True", "False", "None", "...":
		return true
	}
	return false
}

// compileTarget lowers an assignment or deletion target. Symbols and
// collection shapes are rebuilt directly; anything else is compiled as
// an expression and storeized, so attribute and subscript targets share
// the ordinary lowering.
func (c *Compiler) compileTarget(form model.Object, ctx hast.ExprContext) (hast.Expr, []hast.Stmt, error) {
	switch v := form.(type) {
	case model.Symbol:
		return c.symbolTarget(v, ctx)
	case model.Sequence:
		switch v.Kind() {
		case model.KindList, model.KindTuple:
			return c.sequenceTarget(v, ctx)
		case model.KindExpression:
			if unpackHead(v) == "unpack-iterable" {
				inner, pre, err := c.compileTarget(v.At(1), ctx)
				if err != nil {
					return nil, nil, err
				}
				return &hast.Starred{Span: v.Span(), Value: inner, Ctx: ctx}, pre, nil
			}
		}
	}
	r, err := c.compile(form)
	if err != nil {
		return nil, nil, err
	}
	e, err := c.storeize(form, r.Force(form.Span()), ctx)
	if err != nil {
		return nil, nil, err
	}
	return e, r.Stmts, nil
}

func (c *Compiler) symbolTarget(sym model.Symbol, ctx hast.ExprContext) (hast.Expr, []hast.Stmt, error) {
	name := sym.Name()
	if reservedName(name) {
		return nil, nil, c.errf(sym, "cannot assign to the reserved name %s", name)
	}
	if strings.Contains(name, ".") {
		// a.b.c targets: the base is read, the final attribute stored.
		r, err := c.compile(sym)
		if err != nil {
			return nil, nil, err
		}
		e, err := c.storeize(sym, r.Force(sym.Span()), ctx)
		if err != nil {
			return nil, nil, err
		}
		return e, r.Stmts, nil
	}
	n := &hast.Name{Span: sym.Span(), ID: mangle.Mangle(name), Ctx: ctx}
	var err error
	if ctx == hast.Store {
		err = c.scopes.Assign(n)
	} else {
		err = c.scopes.Access(n)
	}
	if err != nil {
		return nil, nil, c.wrapScopeErr(err)
	}
	return n, nil, nil
}

func (c *Compiler) sequenceTarget(seq model.Sequence, ctx hast.ExprContext) (hast.Expr, []hast.Stmt, error) {
	var elts []hast.Expr
	var pre []hast.Stmt
	for _, item := range seq.Items() {
		e, stmts, err := c.compileTarget(item, ctx)
		if err != nil {
			return nil, nil, err
		}
		pre = append(pre, stmts...)
		elts = append(elts, e)
	}
	if seq.Kind() == model.KindList {
		return &hast.ListExpr{Span: seq.Span(), Elts: elts, Ctx: ctx}, pre, nil
	}
	return &hast.TupleExpr{Span: seq.Span(), Elts: elts, Ctx: ctx}, pre, nil
}

// storeize rebuilds a compiled expression with the given context, or
// reports the shape as a non-lvalue. The span error points at the
// offending source form.
func (c *Compiler) storeize(at model.Object, e hast.Expr, ctx hast.ExprContext) (hast.Expr, error) {
	switch v := e.(type) {
	case *hast.Name:
		if reservedName(mangle.Unmangle(v.ID)) {
			return nil, c.errf(at, "cannot assign to the reserved name %s", v.ID)
		}
		out := *v
		out.Ctx = ctx
		if ctx == hast.Store {
			if err := c.scopes.Assign(&out); err != nil {
				return nil, c.wrapScopeErr(err)
			}
		}
		return &out, nil
	case *hast.Attribute:
		out := *v
		out.Ctx = ctx
		return &out, nil
	case *hast.Subscript:
		out := *v
		out.Ctx = ctx
		return &out, nil
	case *hast.TupleExpr:
		elts, err := c.storeizeElts(at, v.Elts, ctx)
		if err != nil {
			return nil, err
		}
		return &hast.TupleExpr{Span: v.Span, Elts: elts, Ctx: ctx}, nil
	case *hast.ListExpr:
		elts, err := c.storeizeElts(at, v.Elts, ctx)
		if err != nil {
			return nil, err
		}
		return &hast.ListExpr{Span: v.Span, Elts: elts, Ctx: ctx}, nil
	case *hast.Starred:
		inner, err := c.storeize(at, v.Value, ctx)
		if err != nil {
			return nil, err
		}
		return &hast.Starred{Span: v.Span, Value: inner, Ctx: ctx}, nil
	default:
		return nil, c.errf(at, "cannot assign to this form")
	}
}

func (c *Compiler) storeizeElts(at model.Object, elts []hast.Expr, ctx hast.ExprContext) ([]hast.Expr, error) {
	out := make([]hast.Expr, len(elts))
	for i, e := range elts {
		s, err := c.storeize(at, e, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
