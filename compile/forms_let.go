package compile

import (
	"strings"

	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/mangle"
	"github.com/sergev/larch/model"
)

func init() {
	register("let", 1, -1, "(let [bindings] body ...)", compileLet)
	register("defmacro", 2, -1, "(defmacro name [params] body ...)", compileDefmacro)
	register("eval-and-compile", 0, -1, "(eval-and-compile form ...)", compileEvalAndCompile)
	register("eval-when-compile", 0, -1, "(eval-when-compile form ...)", compileEvalWhenCompile)
	register("quote", 1, 1, "(quote form)", compileQuote)
	register("quasiquote", 1, 1, "(quasiquote form)", compileQuasiquote)
	register("unquote", 1, 1, "(unquote form)", compileStrayUnquote)
	register("unquote-splice", 1, 1, "(unquote-splice form)", compileStrayUnquote)
}

func compileLet(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	bindings, err := a.Seq(model.KindList, "binding list")
	if err != nil {
		return Result{}, err
	}
	if bindings.Len()%2 != 0 {
		return Result{}, c.errf(bindings, "let: binding %s has no value",
			bindings.At(bindings.Len()-1))
	}

	frame := c.scopes.PushLet()
	popped := false
	defer func() {
		if !popped {
			c.scopes.Pop()
		}
	}()

	var stmts []hast.Stmt
	for i := 0; i < bindings.Len(); i += 2 {
		sym, ok := bindings.At(i).(model.Symbol)
		if !ok || strings.Contains(sym.Name(), ".") {
			return Result{}, c.errf(bindings.At(i), "let: binding target must be a plain symbol")
		}
		if reservedName(sym.Name()) {
			return Result{}, c.errf(sym, "cannot assign to the reserved name %s", sym.Name())
		}
		// The value sees earlier bindings but not its own.
		valueForm := bindings.At(i + 1)
		vr, err := c.compile(valueForm)
		if err != nil {
			return Result{}, err
		}
		stmts = append(stmts, vr.Stmts...)
		n := &hast.Name{Span: sym.Span(), ID: mangle.Mangle(sym.Name()), Ctx: hast.Store}
		frame.Bind(n)
		stmts = append(stmts, &hast.Assign{
			Span:    sym.Span(),
			Targets: []hast.Expr{n},
			Value:   vr.Force(valueForm.Span()),
		})
	}

	bodyRes, err := c.compileBody(a.Rest())
	if err != nil {
		return Result{}, err
	}
	popped = true
	if err := c.scopes.Pop(); err != nil {
		return Result{}, c.wrapScopeErr(err)
	}
	bodyRes.Stmts = append(stmts, bodyRes.Stmts...)
	if !bodyRes.HasExpr() {
		bodyRes.expr = &hast.Constant{Span: form.Span(), Value: nil}
		bodyRes.taken = false
	}
	return bodyRes, nil
}

func compileDefmacro(c *Compiler, form model.Sequence) (Result, error) {
	if err := c.ctx.DefineMacroForm(form); err != nil {
		return Result{}, c.errf(form, "defmacro: %s", err)
	}
	return exprResult(&hast.Constant{Span: form.Span(), Value: nil}), nil
}

// compileEvalAndCompile runs the body in the compile-time evaluator and
// then compiles the same forms into the unit.
func compileEvalAndCompile(c *Compiler, form model.Sequence) (Result, error) {
	items := form.Rest().Items()
	for _, item := range items {
		if _, err := c.ctx.Eval(item); err != nil {
			return Result{}, c.errf(item, "eval-and-compile: %s", err)
		}
	}
	return c.compileBody(items)
}

func compileEvalWhenCompile(c *Compiler, form model.Sequence) (Result, error) {
	for _, item := range form.Rest().Items() {
		if _, err := c.ctx.Eval(item); err != nil {
			return Result{}, c.errf(item, "eval-when-compile: %s", err)
		}
	}
	return exprResult(&hast.Constant{Span: form.Span(), Value: nil}), nil
}
