package compile

import (
	"strings"

	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/mangle"
	"github.com/sergev/larch/model"
)

func init() {
	register("fn", 1, -1, "(fn [:async] [params] body ...)", compileFn)
	register("defn", 2, -1, "(defn [:async] [decorators] name [params] body ...)", compileDefn)
	register("defclass", 1, -1, "(defclass [decorators] name [bases] body ...)", compileDefclass)
}

// paramList is a parsed parameter grammar plus everything that must be
// evaluated in the enclosing scope (defaults, annotations) and the
// names to bind inside the function.
type paramList struct {
	args  hast.Arguments
	pre   []hast.Stmt
	names []string
}

const (
	sectPositional = iota
	sectKwOnly
	sectDone
)

func (c *Compiler) parseParams(list model.Sequence) (paramList, error) {
	var p paramList
	section := sectPositional
	sawSlash := false
	sawStar := false

	addName := func(arg hast.Arg) {
		p.names = append(p.names, arg.Name)
	}

	a := c.group("parameter list", list)
	for a.More() {
		item, _ := a.Next("parameter")

		if sym, ok := item.(model.Symbol); ok {
			switch sym.Name() {
			case "/":
				if sawSlash || sawStar || section != sectPositional {
					return p, c.errf(sym, "misplaced / in parameter list")
				}
				sawSlash = true
				p.args.PosOnly = p.args.Args
				p.args.Args = nil
				continue
			case "*":
				if section != sectPositional || p.args.VarArg != nil {
					return p, c.errf(sym, "misplaced * in parameter list")
				}
				sawStar = true
				section = sectKwOnly
				continue
			}
		}

		if seq, ok := item.(model.Sequence); ok && seq.Kind() == model.KindExpression {
			switch unpackHead(seq) {
			case "unpack-iterable":
				if section != sectPositional || sawStar {
					return p, c.errf(item, "only one variadic positional capture is allowed")
				}
				arg, err := c.paramArg(seq.At(1))
				if err != nil {
					return p, err
				}
				p.args.VarArg = &arg
				addName(arg)
				section = sectKwOnly
				continue
			case "unpack-mapping":
				if section == sectDone {
					return p, c.errf(item, "only one variadic keyword capture is allowed")
				}
				arg, err := c.paramArg(seq.At(1))
				if err != nil {
					return p, err
				}
				p.args.KwArg = &arg
				addName(arg)
				section = sectDone
				continue
			}
		}

		if section == sectDone {
			return p, c.errf(item, "no parameter may follow the variadic keyword capture")
		}

		nameForm := item
		var defaultForm model.Object
		if seq, ok := item.(model.Sequence); ok && seq.Kind() == model.KindList {
			if seq.Len() != 2 {
				return p, c.errf(item, "a defaulted parameter is a [name default] pair")
			}
			nameForm = seq.At(0)
			defaultForm = seq.At(1)
		}
		arg, err := c.paramArg(nameForm)
		if err != nil {
			return p, err
		}
		var def hast.Expr
		if defaultForm != nil {
			dr, err := c.compile(defaultForm)
			if err != nil {
				return p, err
			}
			p.pre = append(p.pre, dr.Stmts...)
			def = dr.Force(defaultForm.Span())
		}

		if section == sectKwOnly {
			p.args.KwOnly = append(p.args.KwOnly, arg)
			p.args.KwDefaults = append(p.args.KwDefaults, def)
		} else {
			if def == nil && len(p.args.Defaults) > 0 {
				return p, c.errf(item, "a required parameter cannot follow a defaulted one")
			}
			p.args.Args = append(p.args.Args, arg)
			if def != nil {
				p.args.Defaults = append(p.args.Defaults, def)
			}
		}
		addName(arg)
	}
	return p, nil
}

// paramArg compiles one parameter name, unwrapping an annotation.
func (c *Compiler) paramArg(form model.Object) (hast.Arg, error) {
	var ann hast.Expr
	if seq, ok := form.(model.Sequence); ok && seq.Kind() == model.KindExpression &&
		seq.Len() == 3 && expand.HeadName(seq.At(0)) == "annotate" {
		ar, err := c.compile(seq.At(2))
		if err != nil {
			return hast.Arg{}, err
		}
		if !ar.Pure() {
			return hast.Arg{}, c.errf(seq.At(2), "a parameter annotation cannot carry statements")
		}
		ann = ar.Take()
		form = seq.At(1)
	}
	sym, ok := form.(model.Symbol)
	if !ok {
		return hast.Arg{}, c.errf(form, "parameter name must be a symbol")
	}
	name := sym.Name()
	if reservedName(name) {
		return hast.Arg{}, c.errf(sym, "cannot use the reserved name %s as a parameter", name)
	}
	if strings.Contains(name, ".") {
		return hast.Arg{}, c.errf(sym, "parameter name must not be dotted")
	}
	return hast.Arg{Span: sym.Span(), Name: mangle.Mangle(name), Annotation: ann}, nil
}

// fnBody compiles a function body inside a fresh function frame and
// reports whether the function turned out to be a generator.
func (c *Compiler) fnBody(sp model.Span, params paramList, items []model.Object) ([]hast.Stmt, bool, error) {
	c.pushFnState()
	c.scopes.PushFunction()
	for _, name := range params.names {
		c.scopes.Define(name)
	}

	bodyRes, err := c.compileBody(items)
	if err != nil {
		c.scopes.Pop()
		c.popFnState()
		return nil, false, err
	}
	stmts := bodyRes.Stmts
	if e := bodyRes.Take(); e != nil {
		if ct, ok := e.(*hast.Constant); !ok || ct.Value != nil {
			stmts = append(stmts, &hast.Return{Span: e.Pos(), Value: e})
		}
	}
	if len(stmts) == 0 {
		stmts = []hast.Stmt{&hast.Pass{Span: sp}}
	}

	if err := c.scopes.Pop(); err != nil {
		c.popFnState()
		return nil, false, c.wrapScopeErr(err)
	}
	return stmts, c.popFnState().generator, nil
}

func compileFn(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	async := a.IfKw("async")
	list, err := a.Seq(model.KindList, "parameter list")
	if err != nil {
		return Result{}, err
	}
	params, err := c.parseParams(list)
	if err != nil {
		return Result{}, err
	}

	body, generator, err := c.fnBody(form.Span(), params, a.Rest())
	if err != nil {
		return Result{}, err
	}

	// The degenerate case stays inline as a lambda.
	if params.args.Empty() && !params.args.Annotated() && !async && !generator &&
		len(params.pre) == 0 && len(body) == 1 {
		if ret, ok := body[0].(*hast.Return); ok && ret.Value != nil {
			return exprResult(&hast.Lambda{
				Span:   form.Span(),
				Params: params.args,
				Body:   ret.Value,
			}), nil
		}
	}

	name := c.tempName("fn")
	def := &hast.FuncDef{
		Span:   form.Span(),
		Name:   name,
		Params: params.args,
		Body:   body,
		Async:  async,
	}
	stmts := append(params.pre, def)
	return Result{Stmts: stmts, expr: c.load(form.Span(), name)}, nil
}

func compileDefn(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)
	async := a.IfKw("async")

	decorators, pre, err := c.decoratorList(a)
	if err != nil {
		return Result{}, err
	}

	nameForm, err := a.Next("function name")
	if err != nil {
		return Result{}, err
	}
	var returns hast.Expr
	if seq, ok := nameForm.(model.Sequence); ok && seq.Kind() == model.KindExpression &&
		seq.Len() == 3 && expand.HeadName(seq.At(0)) == "annotate" {
		rr, err := c.compile(seq.At(2))
		if err != nil {
			return Result{}, err
		}
		pre = append(pre, rr.Stmts...)
		returns = rr.Force(seq.At(2).Span())
		nameForm = seq.At(1)
	}
	sym, ok := nameForm.(model.Symbol)
	if !ok || strings.Contains(sym.Name(), ".") {
		return Result{}, c.errf(nameForm, "defn: function name must be a plain symbol")
	}
	if reservedName(sym.Name()) {
		return Result{}, c.errf(sym, "cannot define the reserved name %s", sym.Name())
	}

	list, err := a.Seq(model.KindList, "parameter list")
	if err != nil {
		return Result{}, err
	}
	params, err := c.parseParams(list)
	if err != nil {
		return Result{}, err
	}
	pre = append(pre, params.pre...)

	body, _, err := c.fnBody(form.Span(), params, a.Rest())
	if err != nil {
		return Result{}, err
	}

	name := mangle.Mangle(sym.Name())
	c.scopes.Define(name)
	def := &hast.FuncDef{
		Span:       form.Span(),
		Name:       name,
		Params:     params.args,
		Body:       body,
		Decorators: decorators,
		Returns:    returns,
		Async:      async,
	}
	return Result{
		Stmts: append(pre, def),
		expr:  &hast.Constant{Span: form.Span(), Value: nil},
	}, nil
}

// decoratorList parses an optional leading decorator list.
func (c *Compiler) decoratorList(a *args) ([]hast.Expr, []hast.Stmt, error) {
	if !isSeqKind(a.Peek(), model.KindList) {
		return nil, nil, nil
	}
	list, _ := a.Seq(model.KindList, "decorator list")
	return c.compileMany(list.Items(), false)
}

func compileDefclass(c *Compiler, form model.Sequence) (Result, error) {
	a := c.args(form)

	decorators, pre, err := c.decoratorList(a)
	if err != nil {
		return Result{}, err
	}

	sym, err := a.Sym("class name")
	if err != nil {
		return Result{}, err
	}
	if reservedName(sym.Name()) || strings.Contains(sym.Name(), ".") {
		return Result{}, c.errf(sym, "defclass: class name must be a plain symbol")
	}

	var bases []hast.Expr
	var kws []hast.Keyword
	if isSeqKind(a.Peek(), model.KindList) {
		list, _ := a.Seq(model.KindList, "base list")
		items := list.Items()
		for i := 0; i < len(items); i++ {
			if kw, ok := items[i].(model.Keyword); ok {
				if i+1 >= len(items) {
					return Result{}, c.errf(kw, "defclass: keyword %s has no value", kw)
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
			br, err := c.compile(items[i])
			if err != nil {
				return Result{}, err
			}
			pre = append(pre, br.Stmts...)
			bases = append(bases, br.Force(items[i].Span()))
		}
	}

	c.scopes.PushClass()
	bodyRes, err := c.compileBody(a.Rest())
	if err != nil {
		c.scopes.Pop()
		return Result{}, err
	}
	body := bodyRes.AsStmts()
	if len(body) == 0 {
		body = []hast.Stmt{&hast.Pass{Span: form.Span()}}
	}
	if err := c.scopes.Pop(); err != nil {
		return Result{}, c.wrapScopeErr(err)
	}

	name := mangle.Mangle(sym.Name())
	c.scopes.Define(name)
	return Result{
		Stmts: append(pre, &hast.ClassDef{
			Span:       form.Span(),
			Name:       name,
			Bases:      bases,
			Keywords:   kws,
			Body:       body,
			Decorators: decorators,
		}),
		expr: &hast.Constant{Span: form.Span(), Value: nil},
	}, nil
}
