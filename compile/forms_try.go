package compile

import (
	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/mangle"
	"github.com/sergev/larch/model"
)

func init() {
	register("try", 1, -1, "(try body ... (except [...] ...) (else ...) (finally ...))", compileTry)
	register("with", 1, -1, "(with [bindings] body ...)", compileWith)

	for _, clause := range []string{"else", "except", "finally"} {
		clause := clause
		register(clause, 0, -1, "("+clause+" ...)",
			func(c *Compiler, form model.Sequence) (Result, error) {
				return Result{}, c.errf(form, "%s is only allowed inside its enclosing form", clause)
			})
	}
}

func compileTry(c *Compiler, form model.Sequence) (Result, error) {
	var bodyItems []model.Object
	var handlers []model.Sequence
	var elseItems, finalItems []model.Object
	hasElse, hasFinally := false, false

	for _, item := range form.Rest().Items() {
		seq, ok := item.(model.Sequence)
		head := ""
		if ok && seq.Kind() == model.KindExpression && seq.Len() >= 1 {
			head = expand.HeadName(seq.At(0))
		}
		switch head {
		case "except":
			if hasElse || hasFinally {
				return Result{}, c.errf(item, "try: except clauses must come before else and finally")
			}
			handlers = append(handlers, seq)
		case "else":
			if hasElse || hasFinally {
				return Result{}, c.errf(item, "try: misplaced else clause")
			}
			hasElse = true
			elseItems = seq.Rest().Items()
		case "finally":
			if hasFinally {
				return Result{}, c.errf(item, "try: more than one finally clause")
			}
			hasFinally = true
			finalItems = seq.Rest().Items()
		default:
			if len(handlers) > 0 || hasElse || hasFinally {
				return Result{}, c.errf(item, "try: body forms must come before the clauses")
			}
			bodyItems = append(bodyItems, item)
		}
	}

	if len(handlers) == 0 && !hasFinally {
		return Result{}, c.errf(form, "try: needs at least one except clause or a finally clause")
	}
	if hasElse && len(handlers) == 0 {
		return Result{}, c.errf(form, "try: an else clause needs an except clause")
	}

	// One temp funnels the value of whichever branch ran.
	temp := c.tempName("result")
	sp := form.Span()

	body, err := c.bodyInto(temp, sp, bodyItems)
	if err != nil {
		return Result{}, err
	}

	var hs []*hast.ExceptHandler
	for _, h := range handlers {
		eh, err := c.compileHandler(h, temp)
		if err != nil {
			return Result{}, err
		}
		hs = append(hs, eh)
	}

	var elseStmts []hast.Stmt
	if hasElse {
		// The else branch supersedes the body's value.
		elseStmts, err = c.bodyInto(temp, sp, elseItems)
		if err != nil {
			return Result{}, err
		}
	}
	var finalStmts []hast.Stmt
	if hasFinally {
		fr, err := c.compileBody(finalItems)
		if err != nil {
			return Result{}, err
		}
		finalStmts = fr.AsStmts()
	}

	return Result{
		Stmts: []hast.Stmt{&hast.Try{
			Span:     sp,
			Body:     body,
			Handlers: hs,
			Else:     elseStmts,
			Final:    finalStmts,
		}},
		expr: c.load(sp, temp),
	}, nil
}

// compileHandler lowers one except clause. The matcher list is empty
// for a catch-all, [cls], [var cls], or with an inner list of classes
// in the cls position.
func (c *Compiler) compileHandler(form model.Sequence, temp string) (*hast.ExceptHandler, error) {
	if form.Len() < 2 {
		return nil, c.errf(form, "except: missing the matcher list")
	}
	matcher, ok := form.At(1).(model.Sequence)
	if !ok || matcher.Kind() != model.KindList || matcher.Len() > 2 {
		return nil, c.errf(form.At(1), "except: matcher must be a list of at most two items")
	}

	var varName string
	var clsForm model.Object
	switch matcher.Len() {
	case 0:
	case 1:
		clsForm = matcher.At(0)
	case 2:
		sym, ok := matcher.At(0).(model.Symbol)
		if !ok {
			return nil, c.errf(matcher.At(0), "except: capture name must be a symbol")
		}
		varName = mangle.Mangle(sym.Name())
		clsForm = matcher.At(1)
	}

	var clsExpr hast.Expr
	if clsForm != nil {
		if list, ok := clsForm.(model.Sequence); ok && list.Kind() == model.KindList {
			elts, pre, err := c.compileMany(list.Items(), false)
			if err != nil {
				return nil, err
			}
			if len(pre) > 0 {
				return nil, c.errf(clsForm, "except: matcher classes cannot carry statements")
			}
			clsExpr = &hast.TupleExpr{Span: list.Span(), Elts: elts, Ctx: hast.Load}
		} else {
			cr, err := c.compile(clsForm)
			if err != nil {
				return nil, err
			}
			if !cr.Pure() {
				return nil, c.errf(clsForm, "except: matcher classes cannot carry statements")
			}
			clsExpr = cr.Take()
		}
	}

	if varName != "" {
		c.scopes.Define(varName)
	}
	body, err := c.bodyInto(temp, form.Span(), form.Slice(2, form.Len()).Items())
	if err != nil {
		return nil, err
	}
	return &hast.ExceptHandler{
		Span: form.Span(),
		Type: clsExpr,
		Name: varName,
		Body: body,
	}, nil
}

func compileWith(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	async := a.IfKw("async")
	bindings, err := a.Seq(model.KindList, "binding list")
	if err != nil {
		return Result{}, err
	}
	if bindings.Len() == 0 {
		return Result{}, c.errf(bindings, "with: needs at least one context manager")
	}

	var items []hast.WithItem
	var pre []hast.Stmt
	b := c.group("with", bindings)
	for b.More() {
		// Pairs of target and manager; a final lone form is a manager
		// with no target, and _ discards the value.
		var targetForm, ctxForm model.Object
		first, _ := b.Next("binding")
		if b.More() {
			targetForm = first
			ctxForm, _ = b.Next("context manager")
		} else {
			ctxForm = first
		}

		cr, err := c.compile(ctxForm)
		if err != nil {
			return Result{}, err
		}
		pre = append(pre, cr.Stmts...)
		item := hast.WithItem{Context: cr.Force(ctxForm.Span())}
		if targetForm != nil && !isSym(targetForm, "_") {
			t, tpre, err := c.compileTarget(targetForm, hast.Store)
			if err != nil {
				return Result{}, err
			}
			pre = append(pre, tpre...)
			item.Vars = t
		}
		items = append(items, item)
	}

	temp := c.tempName("result")
	body, err := c.bodyInto(temp, form.Span(), a.Rest())
	if err != nil {
		return Result{}, err
	}

	stmts := append(pre, &hast.With{
		Span:  form.Span(),
		Items: items,
		Body:  body,
		Async: async,
	})
	return Result{Stmts: stmts, expr: c.load(form.Span(), temp)}, nil
}
