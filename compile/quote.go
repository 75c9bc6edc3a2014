package compile

import (
	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/model"
)

// Quoted forms compile to runtime-support construction calls, so a
// compiled unit can hand model trees to code running later.

func compileQuote(c *Compiler, form model.Sequence) (Result, error) {
	e, pre, err := c.renderQuoted(form.At(1), 0)
	if err != nil {
		return Result{}, err
	}
	return Result{Stmts: pre, expr: e}, nil
}

func compileQuasiquote(c *Compiler, form model.Sequence) (Result, error) {
	e, pre, err := c.renderQuoted(form.At(1), 1)
	if err != nil {
		return Result{}, err
	}
	return Result{Stmts: pre, expr: e}, nil
}

func compileStrayUnquote(c *Compiler, form model.Sequence) (Result, error) {
	return Result{}, c.errf(form, "%s outside of a quasiquote", expand.HeadName(form.At(0)))
}

// renderQuoted builds the construction expression for one model node.
// Depth zero renders everything literally; inside a quasiquote the
// depth counts enclosing quasiquotes, and an unquote at depth one
// compiles its form instead of rendering it.
func (c *Compiler) renderQuoted(form model.Object, depth int) (hast.Expr, []hast.Stmt, error) {
	sp := form.Span()
	switch v := form.(type) {
	case model.Symbol:
		return c.runtimeCall(sp, "Symbol", &hast.Constant{Span: sp, Value: v.Name()}), nil, nil
	case model.Keyword:
		return c.runtimeCall(sp, "Keyword", &hast.Constant{Span: sp, Value: v.Name()}), nil, nil
	case model.String:
		return c.runtimeCall(sp, "String", &hast.Constant{Span: sp, Value: v.Value()}), nil, nil
	case model.Bytes:
		return c.runtimeCall(sp, "Bytes", &hast.Constant{Span: sp, Value: v.Value()}), nil, nil
	case model.Integer:
		return c.runtimeCall(sp, "Integer", &hast.Constant{Span: sp, Value: v.Value()}), nil, nil
	case model.Float:
		return c.runtimeCall(sp, "Float", &hast.Constant{Span: sp, Value: v.Value()}), nil, nil
	case model.Complex:
		return c.runtimeCall(sp, "Complex", &hast.Constant{Span: sp, Value: v.Value()}), nil, nil
	case model.FString:
		return c.renderFString(v, depth)
	case model.FComponent:
		return c.renderFComponent(v, depth)
	case model.Sequence:
		return c.renderSequence(v, depth)
	default:
		internalf("quoted form holds %T", form)
		return nil, nil, nil
	}
}

var quotedCtor = map[model.Kind]string{
	model.KindExpression: "Expression",
	model.KindList:       "List",
	model.KindTuple:      "Tuple",
	model.KindSet:        "Set",
	model.KindDict:       "Dict",
}

func (c *Compiler) renderSequence(seq model.Sequence, depth int) (hast.Expr, []hast.Stmt, error) {
	sp := seq.Span()

	if depth > 0 && seq.Kind() == model.KindExpression && seq.Len() == 2 {
		switch expand.HeadName(seq.At(0)) {
		case "unquote":
			if depth == 1 {
				r, err := c.compile(seq.At(1))
				if err != nil {
					return nil, nil, err
				}
				return r.Force(seq.At(1).Span()), r.Stmts, nil
			}
			return c.renderWrapper(seq, depth-1)
		case "unquote-splice":
			if depth == 1 {
				return nil, nil, c.errf(seq, "unquote-splice outside of a sequence")
			}
			return c.renderWrapper(seq, depth-1)
		case "quasiquote":
			return c.renderWrapper(seq, depth+1)
		}
	}

	var args []hast.Expr
	var pre []hast.Stmt
	for _, item := range seq.Items() {
		if depth == 1 {
			if sub, ok := item.(model.Sequence); ok && sub.Kind() == model.KindExpression &&
				sub.Len() == 2 && expand.HeadName(sub.At(0)) == "unquote-splice" {
				r, err := c.compile(sub.At(1))
				if err != nil {
					return nil, nil, err
				}
				pre = append(pre, r.Stmts...)
				args = append(args, &hast.Starred{
					Span:  sub.Span(),
					Value: r.Force(sub.Span()),
					Ctx:   hast.Load,
				})
				continue
			}
		}
		e, p, err := c.renderQuoted(item, depth)
		if err != nil {
			return nil, nil, err
		}
		pre = append(pre, p...)
		args = append(args, e)
	}
	return c.runtimeCall(sp, quotedCtor[seq.Kind()], args...), pre, nil
}

// renderWrapper keeps a quote-family head literal while adjusting the
// quasiquote depth for its argument.
func (c *Compiler) renderWrapper(seq model.Sequence, depth int) (hast.Expr, []hast.Stmt, error) {
	sp := seq.Span()
	head, _, err := c.renderQuoted(seq.At(0), 0)
	if err != nil {
		return nil, nil, err
	}
	inner, pre, err := c.renderQuoted(seq.At(1), depth)
	if err != nil {
		return nil, nil, err
	}
	return c.runtimeCall(sp, "Expression", head, inner), pre, nil
}

func (c *Compiler) renderFString(fs model.FString, depth int) (hast.Expr, []hast.Stmt, error) {
	sp := fs.Span()
	var args []hast.Expr
	var pre []hast.Stmt
	for _, item := range fs.Items() {
		e, p, err := c.renderQuoted(item, depth)
		if err != nil {
			return nil, nil, err
		}
		pre = append(pre, p...)
		args = append(args, e)
	}
	call := &hast.Call{
		Span: sp,
		Func: &hast.Attribute{
			Span:  sp,
			Value: &hast.Name{Span: sp, ID: RuntimeModule, Ctx: hast.Load},
			Attr:  "FString",
			Ctx:   hast.Load,
		},
		Args: args,
	}
	if fs.Brackets != "" {
		call.Keywords = append(call.Keywords, hast.Keyword{
			Arg:   "brackets",
			Value: &hast.Constant{Span: sp, Value: fs.Brackets},
		})
	}
	return call, pre, nil
}

func (c *Compiler) renderFComponent(fc model.FComponent, depth int) (hast.Expr, []hast.Stmt, error) {
	sp := fc.Span()
	var args []hast.Expr
	var pre []hast.Stmt
	for _, item := range fc.Items() {
		e, p, err := c.renderQuoted(item, depth)
		if err != nil {
			return nil, nil, err
		}
		pre = append(pre, p...)
		args = append(args, e)
	}
	call := &hast.Call{
		Span: sp,
		Func: &hast.Attribute{
			Span:  sp,
			Value: &hast.Name{Span: sp, ID: RuntimeModule, Ctx: hast.Load},
			Attr:  "FComponent",
			Ctx:   hast.Load,
		},
		Args: args,
	}
	if fc.Conversion != 0 {
		call.Keywords = append(call.Keywords, hast.Keyword{
			Arg:   "conversion",
			Value: &hast.Constant{Span: sp, Value: string(fc.Conversion)},
		})
	}
	return call, pre, nil
}
