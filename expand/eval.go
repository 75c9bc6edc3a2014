package expand

import (
	"fmt"

	"github.com/sergev/larch/model"
)

// Primitive is a builtin compile-time function.
type Primitive func(args []any) (any, error)

// Closure is a compile-time function created by fn or defmacro.
type Closure struct {
	Params []string
	Rest   string
	Body   []model.Object
	Env    *Env
}

// Eval runs one form in the context's compile-time global environment.
// This is the engine behind macro bodies and the eval-and-compile family.
func (c *Context) Eval(form model.Object) (any, error) {
	return c.eval(form, c.env)
}

func (c *Context) eval(expr model.Object, env *Env) (any, error) {
	switch v := expr.(type) {
	case model.Symbol:
		return env.Get(v.Name())
	case model.Sequence:
		if v.Kind() == model.KindExpression {
			return c.evalExpression(v, env)
		}
		return c.evalCollection(v, env)
	default:
		return expr, nil
	}
}

func (c *Context) evalCollection(seq model.Sequence, env *Env) (any, error) {
	items := make([]model.Object, 0, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		val, err := c.eval(seq.At(i), env)
		if err != nil {
			return nil, err
		}
		obj, err := toObject(val)
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	return seq.Slice(0, 0).Append(items...), nil
}

func (c *Context) evalExpression(seq model.Sequence, env *Env) (any, error) {
	if seq.Len() == 0 {
		return seq, nil
	}
	if head, ok := seq.At(0).(model.Symbol); ok {
		switch head.Name() {
		case "quote":
			if seq.Len() != 2 {
				return nil, fmt.Errorf("quote expects 1 argument")
			}
			return seq.At(1), nil
		case "quasiquote":
			if seq.Len() != 2 {
				return nil, fmt.Errorf("quasiquote expects 1 argument")
			}
			return c.qq(seq.At(1), 1, env)
		case "unquote", "unquote-splice":
			return nil, fmt.Errorf("%s outside quasiquote", head.Name())
		case "if":
			return c.evalIf(seq, env)
		case "do":
			return c.evalDo(seq.Rest().Items(), env)
		case "setv":
			return c.evalSetv(seq, env)
		case "let":
			return c.evalLet(seq, env)
		case "fn":
			return c.evalFn(seq, env)
		case "and":
			return c.evalAnd(seq, env)
		case "or":
			return c.evalOr(seq, env)
		case "while":
			return c.evalWhile(seq, env)
		case "for":
			return c.evalFor(seq, env)
		case "defmacro":
			if err := c.DefineMacroForm(seq); err != nil {
				return nil, err
			}
			return model.Sym("None"), nil
		}

		// A macro call inside compile-time code expands first.
		if m := c.Lookup(HeadName(seq.At(0))); m != nil {
			out, err := m(c, seq)
			if err != nil {
				return nil, err
			}
			obj, ok := out.(model.Object)
			if !ok {
				return nil, fmt.Errorf("macro produced a finalized unit inside compile-time code")
			}
			return c.eval(obj, env)
		}
	}

	callee, err := c.eval(seq.At(0), env)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, seq.Len()-1)
	for i := 1; i < seq.Len(); i++ {
		val, err := c.eval(seq.At(i), env)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	return c.apply(callee, args)
}

func (c *Context) apply(callee any, args []any) (any, error) {
	switch fn := callee.(type) {
	case Primitive:
		return fn(args)
	case *Closure:
		callEnv := NewEnv(fn.Env)
		if err := bindParameters(callEnv, fn.Params, fn.Rest, args); err != nil {
			return nil, err
		}
		return c.evalDo(fn.Body, callEnv)
	default:
		return nil, fmt.Errorf("attempt to call non-function: %v", callee)
	}
}

func (c *Context) evalIf(seq model.Sequence, env *Env) (any, error) {
	if seq.Len() < 3 || seq.Len() > 4 {
		return nil, fmt.Errorf("if expects 2 or 3 arguments")
	}
	cond, err := c.eval(seq.At(1), env)
	if err != nil {
		return nil, err
	}
	if isTruthy(cond) {
		return c.eval(seq.At(2), env)
	}
	if seq.Len() == 4 {
		return c.eval(seq.At(3), env)
	}
	return model.Sym("None"), nil
}

func (c *Context) evalDo(body []model.Object, env *Env) (any, error) {
	var result any = model.Sym("None")
	for _, expr := range body {
		val, err := c.eval(expr, env)
		if err != nil {
			return nil, err
		}
		result = val
	}
	return result, nil
}

func (c *Context) evalSetv(seq model.Sequence, env *Env) (any, error) {
	if seq.Len() != 3 {
		return nil, fmt.Errorf("setv expects a name and a value")
	}
	name, ok := seq.At(1).(model.Symbol)
	if !ok {
		return nil, fmt.Errorf("setv target must be a symbol")
	}
	val, err := c.eval(seq.At(2), env)
	if err != nil {
		return nil, err
	}
	if err := env.Set(name.Name(), val); err != nil {
		env.Define(name.Name(), val)
	}
	return model.Sym("None"), nil
}

func (c *Context) evalLet(seq model.Sequence, env *Env) (any, error) {
	if seq.Len() < 2 {
		return nil, fmt.Errorf("let expects a binding vector and a body")
	}
	bindings, ok := seq.At(1).(model.Sequence)
	if !ok || bindings.Kind() != model.KindList {
		return nil, fmt.Errorf("let bindings must be a vector")
	}
	if bindings.Len()%2 != 0 {
		return nil, fmt.Errorf("let expects an even number of binding forms")
	}
	letEnv := NewEnv(env)
	for i := 0; i < bindings.Len(); i += 2 {
		name, ok := bindings.At(i).(model.Symbol)
		if !ok {
			return nil, fmt.Errorf("let binding name must be a symbol")
		}
		val, err := c.eval(bindings.At(i+1), letEnv)
		if err != nil {
			return nil, err
		}
		letEnv.Define(name.Name(), val)
	}
	return c.evalDo(seq.Rest().Rest().Items(), letEnv)
}

func (c *Context) evalFn(seq model.Sequence, env *Env) (any, error) {
	if seq.Len() < 2 {
		return nil, fmt.Errorf("fn expects a parameter vector and a body")
	}
	params, rest, err := parseParams(seq.At(1))
	if err != nil {
		return nil, err
	}
	return &Closure{
		Params: params,
		Rest:   rest,
		Body:   seq.Rest().Rest().Items(),
		Env:    env,
	}, nil
}

func (c *Context) evalAnd(seq model.Sequence, env *Env) (any, error) {
	var result any = model.Sym("True")
	for i := 1; i < seq.Len(); i++ {
		val, err := c.eval(seq.At(i), env)
		if err != nil {
			return nil, err
		}
		if !isTruthy(val) {
			return val, nil
		}
		result = val
	}
	return result, nil
}

func (c *Context) evalOr(seq model.Sequence, env *Env) (any, error) {
	var result any = model.Sym("None")
	for i := 1; i < seq.Len(); i++ {
		val, err := c.eval(seq.At(i), env)
		if err != nil {
			return nil, err
		}
		if isTruthy(val) {
			return val, nil
		}
		result = val
	}
	return result, nil
}

// evalWhile loops are bounded so a runaway macro cannot hang the
// compiler.
const maxLoopSteps = 1 << 20

func (c *Context) evalWhile(seq model.Sequence, env *Env) (any, error) {
	if seq.Len() < 2 {
		return nil, fmt.Errorf("while expects a condition")
	}
	body := seq.Rest().Rest().Items()
	for steps := 0; ; steps++ {
		if steps > maxLoopSteps {
			return nil, fmt.Errorf("while loop did not terminate")
		}
		cond, err := c.eval(seq.At(1), env)
		if err != nil {
			return nil, err
		}
		if !isTruthy(cond) {
			return model.Sym("None"), nil
		}
		if _, err := c.evalDo(body, env); err != nil {
			return nil, err
		}
	}
}

func (c *Context) evalFor(seq model.Sequence, env *Env) (any, error) {
	if seq.Len() < 2 {
		return nil, fmt.Errorf("for expects a binding vector")
	}
	binding, ok := seq.At(1).(model.Sequence)
	if !ok || binding.Kind() != model.KindList || binding.Len() != 2 {
		return nil, fmt.Errorf("for expects [name iterable]")
	}
	name, ok := binding.At(0).(model.Symbol)
	if !ok {
		return nil, fmt.Errorf("for iteration name must be a symbol")
	}
	iterable, err := c.eval(binding.At(1), env)
	if err != nil {
		return nil, err
	}
	items, err := iterItems(iterable)
	if err != nil {
		return nil, err
	}
	body := seq.Rest().Rest().Items()
	loopEnv := NewEnv(env)
	for _, item := range items {
		loopEnv.Define(name.Name(), item)
		if _, err := c.evalDo(body, loopEnv); err != nil {
			return nil, err
		}
	}
	return model.Sym("None"), nil
}

// qq evaluates a quasiquoted template. Unquotes at depth 1 evaluate;
// nested quasiquotes push the depth, their unquotes pop it.
func (c *Context) qq(x model.Object, depth int, env *Env) (model.Object, error) {
	seq, ok := x.(model.Sequence)
	if !ok {
		return x, nil
	}
	if tag, arg := qqTag(seq); tag != "" {
		switch tag {
		case "unquote":
			if depth == 1 {
				val, err := c.eval(arg, env)
				if err != nil {
					return nil, err
				}
				return toObject(val)
			}
			inner, err := c.qq(arg, depth-1, env)
			if err != nil {
				return nil, err
			}
			return model.Expr("unquote", inner), nil
		case "unquote-splice":
			if depth == 1 {
				return nil, fmt.Errorf("unquote-splice not inside a sequence")
			}
			inner, err := c.qq(arg, depth-1, env)
			if err != nil {
				return nil, err
			}
			return model.Expr("unquote-splice", inner), nil
		case "quasiquote":
			inner, err := c.qq(arg, depth+1, env)
			if err != nil {
				return nil, err
			}
			return model.Expr("quasiquote", inner), nil
		}
	}

	items := make([]model.Object, 0, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		item := seq.At(i)
		if sub, ok := item.(model.Sequence); ok {
			if tag, arg := qqTag(sub); tag == "unquote-splice" && depth == 1 {
				val, err := c.eval(arg, env)
				if err != nil {
					return nil, err
				}
				spliced, err := iterItems(val)
				if err != nil {
					return nil, fmt.Errorf("unquote-splice: %w", err)
				}
				items = append(items, spliced...)
				continue
			}
		}
		out, err := c.qq(item, depth, env)
		if err != nil {
			return nil, err
		}
		items = append(items, out)
	}
	return seq.Slice(0, 0).Append(items...), nil
}

func qqTag(seq model.Sequence) (string, model.Object) {
	if seq.Kind() != model.KindExpression || seq.Len() != 2 {
		return "", nil
	}
	head, ok := seq.At(0).(model.Symbol)
	if !ok {
		return "", nil
	}
	switch head.Name() {
	case "unquote", "unquote-splice", "quasiquote":
		return head.Name(), seq.At(1)
	}
	return "", nil
}

// parseParams reads a fn or defmacro parameter vector: plain symbols
// plus an optional trailing (unpack-iterable rest).
func parseParams(val model.Object) ([]string, string, error) {
	seq, ok := val.(model.Sequence)
	if !ok || (seq.Kind() != model.KindList && seq.Kind() != model.KindExpression) {
		return nil, "", fmt.Errorf("parameter list must be a vector")
	}
	var params []string
	var rest string
	for i := 0; i < seq.Len(); i++ {
		switch p := seq.At(i).(type) {
		case model.Symbol:
			if rest != "" {
				return nil, "", fmt.Errorf("parameter after rest parameter")
			}
			params = append(params, p.Name())
		case model.Sequence:
			if tag, arg := unpackTag(p); tag == "unpack-iterable" {
				sym, ok := arg.(model.Symbol)
				if !ok {
					return nil, "", fmt.Errorf("rest parameter must be a symbol")
				}
				if rest != "" {
					return nil, "", fmt.Errorf("multiple rest parameters")
				}
				rest = sym.Name()
				continue
			}
			return nil, "", fmt.Errorf("unsupported parameter form %s", p)
		default:
			return nil, "", fmt.Errorf("parameter must be a symbol")
		}
	}
	return params, rest, nil
}

func unpackTag(seq model.Sequence) (string, model.Object) {
	if seq.Kind() != model.KindExpression || seq.Len() != 2 {
		return "", nil
	}
	head, ok := seq.At(0).(model.Symbol)
	if !ok {
		return "", nil
	}
	switch head.Name() {
	case "unpack-iterable", "unpack-mapping":
		return head.Name(), seq.At(1)
	}
	return "", nil
}

func bindParameters(env *Env, params []string, rest string, args []any) error {
	if len(args) < len(params) {
		return fmt.Errorf("expected at least %d arguments, got %d", len(params), len(args))
	}
	for i, name := range params {
		env.Define(name, args[i])
	}
	if rest != "" {
		extra := make([]model.Object, 0, len(args)-len(params))
		for _, a := range args[len(params):] {
			obj, err := toObject(a)
			if err != nil {
				return err
			}
			extra = append(extra, obj)
		}
		env.Define(rest, model.NewList(extra...))
	} else if len(args) != len(params) {
		return fmt.Errorf("expected exactly %d arguments, got %d", len(params), len(args))
	}
	return nil
}

// toObject converts an evaluator value back into a model object, for
// splicing results into forms.
func toObject(v any) (model.Object, error) {
	switch t := v.(type) {
	case model.Object:
		return t, nil
	case nil:
		return model.Sym("None"), nil
	case *Closure, Primitive:
		return nil, fmt.Errorf("a function value cannot appear in a form")
	default:
		return model.Coerce(v)
	}
}

func iterItems(v any) ([]model.Object, error) {
	switch t := v.(type) {
	case model.Sequence:
		return t.Items(), nil
	case *model.Lazy:
		return t.All()
	default:
		return nil, fmt.Errorf("value is not iterable: %v", v)
	}
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case model.Symbol:
		name := t.Name()
		return name != "False" && name != "None"
	case model.Integer:
		return t.Value().Sign() != 0
	case model.Float:
		return t.Value() != 0
	case model.String:
		return t.Value() != ""
	case model.Bytes:
		return len(t.Value()) != 0
	case model.Sequence:
		return t.Len() != 0
	default:
		return true
	}
}
