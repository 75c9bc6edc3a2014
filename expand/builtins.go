package expand

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/sergev/larch/mangle"
	"github.com/sergev/larch/model"
)

// Builtins is the global table of core macros, consulted after the
// module's own table. These rewrite into special forms the compiler
// lowers directly.
var Builtins = map[string]Macro{
	"when":   macroWhen,
	"unless": macroUnless,
	"cond":   macroCond,
	"->":     macroThreadFirst,
	"->>":    macroThreadLast,
	"doto":   macroDoto,
}

func macroWhen(c *Context, form model.Sequence) (any, error) {
	if form.Len() < 2 {
		return nil, errors.New("when expects a condition")
	}
	body := model.Expr("do")
	body = body.Append(form.Slice(2, form.Len()).Items()...)
	return model.Expr("if", form.At(1), body, model.Sym("None")), nil
}

func macroUnless(c *Context, form model.Sequence) (any, error) {
	if form.Len() < 2 {
		return nil, errors.New("unless expects a condition")
	}
	body := model.Expr("do")
	body = body.Append(form.Slice(2, form.Len()).Items()...)
	return model.Expr("if", form.At(1), model.Sym("None"), body), nil
}

func macroCond(c *Context, form model.Sequence) (any, error) {
	args := form.Rest().Items()
	if len(args)%2 != 0 {
		return nil, errors.New("cond expects an even number of forms")
	}
	var out model.Object = model.Sym("None")
	for i := len(args) - 2; i >= 0; i -= 2 {
		out = model.Expr("if", args[i], args[i+1], out)
	}
	return out, nil
}

func macroThreadFirst(c *Context, form model.Sequence) (any, error) {
	return thread(form, true)
}

func macroThreadLast(c *Context, form model.Sequence) (any, error) {
	return thread(form, false)
}

func thread(form model.Sequence, first bool) (any, error) {
	if form.Len() < 2 {
		return nil, errors.New("threading expects an initial form")
	}
	acc := form.At(1)
	for i := 2; i < form.Len(); i++ {
		step := form.At(i)
		seq, ok := step.(model.Sequence)
		if !ok || seq.Kind() != model.KindExpression || seq.Len() == 0 {
			acc = model.NewExpression(step, acc)
			continue
		}
		if first {
			items := append([]model.Object{seq.At(0), acc}, seq.Rest().Items()...)
			acc = model.NewExpression(items...)
		} else {
			acc = seq.Append(acc)
		}
	}
	return acc, nil
}

func macroDoto(c *Context, form model.Sequence) (any, error) {
	if form.Len() < 2 {
		return nil, errors.New("doto expects a target form")
	}
	tmp := c.Gensym("doto")
	out := model.Expr("do", model.Expr("setv", tmp, form.At(1)))
	for i := 2; i < form.Len(); i++ {
		step := form.At(i)
		if seq, ok := step.(model.Sequence); ok && seq.Kind() == model.KindExpression && seq.Len() > 0 {
			items := append([]model.Object{seq.At(0), tmp}, seq.Rest().Items()...)
			out = out.Append(model.NewExpression(items...))
			continue
		}
		out = out.Append(model.NewExpression(step, tmp))
	}
	return out.Append(tmp), nil
}

// newGlobalEnv builds the environment macro bodies evaluate in, with
// the core compile-time functions installed.
func newGlobalEnv(c *Context) *Env {
	env := NewEnv(nil)
	define := func(name string, fn Primitive) {
		env.Define(name, fn)
	}

	env.Define("True", model.Sym("True"))
	env.Define("False", model.Sym("False"))
	env.Define("None", model.Sym("None"))

	define("+", primAdd)
	define("-", primSub)
	define("*", primMul)
	define("/", primDiv)
	define("%", primMod)

	define("=", primEq)
	define("!=", primNotEq)
	define("<", compare("<"))
	define("<=", compare("<="))
	define(">", compare(">"))
	define(">=", compare(">="))

	define("not", primNot)
	define("len", primLen)
	define("get", primGet)
	define("first", primFirst)
	define("rest", primRest)
	define("list", primList)
	define("tuple", primTuple)
	define("append", primAppendSeq)
	define("range", primRange)

	define("str", primStr)
	define("sym", primSym)
	define("keyword", primKeyword)
	define("name", primName)
	define("mangle", primMangle)
	define("unmangle", primUnmangle)

	define("symbol?", primIsSymbol)
	define("keyword?", primIsKeyword)
	define("string?", primIsString)
	define("int?", primIsInt)
	define("list?", primIsList)
	define("expression?", primIsExpression)
	define("empty?", primIsEmpty)

	define("gensym", func(args []any) (any, error) {
		base := ""
		if len(args) > 0 {
			if s, ok := args[0].(model.String); ok {
				base = s.Value()
			}
		}
		return c.Gensym(base), nil
	})

	define("print", func(args []any) (any, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, displayString(a))
		}
		fmt.Println(strings.Join(parts, " "))
		return model.Sym("None"), nil
	})

	return env
}

func displayString(v any) string {
	switch t := v.(type) {
	case model.String:
		return t.Value()
	case model.Object:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

type number struct {
	i       *big.Int
	f       float64
	isFloat bool
}

func toNumber(v any) (number, error) {
	switch t := v.(type) {
	case model.Integer:
		return number{i: t.Value()}, nil
	case model.Float:
		return number{f: t.Value(), isFloat: true}, nil
	default:
		return number{}, fmt.Errorf("expected a number, got %v", v)
	}
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	f, _ := new(big.Float).SetInt(n.i).Float64()
	return f
}

func (n number) value() model.Object {
	if n.isFloat {
		return model.NewFloat(n.f)
	}
	return model.NewInteger(n.i)
}

func primAdd(args []any) (any, error) {
	acc := number{i: big.NewInt(0)}
	for _, arg := range args {
		n, err := toNumber(arg)
		if err != nil {
			return nil, fmt.Errorf("+: %w", err)
		}
		acc = numAdd(acc, n)
	}
	return acc.value(), nil
}

func numAdd(a, b number) number {
	if a.isFloat || b.isFloat {
		return number{f: a.float() + b.float(), isFloat: true}
	}
	return number{i: new(big.Int).Add(a.i, b.i)}
}

func primSub(args []any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("- expects at least one argument")
	}
	acc, err := toNumber(args[0])
	if err != nil {
		return nil, fmt.Errorf("-: %w", err)
	}
	if len(args) == 1 {
		if acc.isFloat {
			return model.NewFloat(-acc.f), nil
		}
		return model.NewInteger(new(big.Int).Neg(acc.i)), nil
	}
	for _, arg := range args[1:] {
		n, err := toNumber(arg)
		if err != nil {
			return nil, fmt.Errorf("-: %w", err)
		}
		if acc.isFloat || n.isFloat {
			acc = number{f: acc.float() - n.float(), isFloat: true}
		} else {
			acc = number{i: new(big.Int).Sub(acc.i, n.i)}
		}
	}
	return acc.value(), nil
}

func primMul(args []any) (any, error) {
	acc := number{i: big.NewInt(1)}
	for _, arg := range args {
		n, err := toNumber(arg)
		if err != nil {
			return nil, fmt.Errorf("*: %w", err)
		}
		if acc.isFloat || n.isFloat {
			acc = number{f: acc.float() * n.float(), isFloat: true}
		} else {
			acc = number{i: new(big.Int).Mul(acc.i, n.i)}
		}
	}
	return acc.value(), nil
}

func primDiv(args []any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("/ expects at least one argument")
	}
	acc, err := toNumber(args[0])
	if err != nil {
		return nil, fmt.Errorf("/: %w", err)
	}
	result := acc.float()
	if len(args) == 1 {
		if result == 0 {
			return nil, errors.New("division by zero")
		}
		return model.NewFloat(1 / result), nil
	}
	for _, arg := range args[1:] {
		n, err := toNumber(arg)
		if err != nil {
			return nil, fmt.Errorf("/: %w", err)
		}
		d := n.float()
		if d == 0 {
			return nil, errors.New("division by zero")
		}
		result /= d
	}
	return model.NewFloat(result), nil
}

func primMod(args []any) (any, error) {
	if len(args) != 2 {
		return nil, errors.New("% expects two arguments")
	}
	a, err := toNumber(args[0])
	if err != nil {
		return nil, fmt.Errorf("%%: %w", err)
	}
	b, err := toNumber(args[1])
	if err != nil {
		return nil, fmt.Errorf("%%: %w", err)
	}
	if a.isFloat || b.isFloat {
		return nil, errors.New("% expects integers")
	}
	if b.i.Sign() == 0 {
		return nil, errors.New("division by zero")
	}
	return model.NewInteger(new(big.Int).Mod(a.i, b.i)), nil
}

func primEq(args []any) (any, error) {
	if len(args) < 2 {
		return nil, errors.New("= expects at least two arguments")
	}
	for i := 1; i < len(args); i++ {
		if !valueEqual(args[0], args[i]) {
			return model.Sym("False"), nil
		}
	}
	return model.Sym("True"), nil
}

func primNotEq(args []any) (any, error) {
	eq, err := primEq(args)
	if err != nil {
		return nil, err
	}
	return boolObj(!isTruthy(eq)), nil
}

func valueEqual(a, b any) bool {
	ao, aok := a.(model.Object)
	bo, bok := b.(model.Object)
	if aok && bok {
		return ao.Equal(bo)
	}
	return a == b
}

func compare(op string) Primitive {
	return func(args []any) (any, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("%s expects at least two arguments", op)
		}
		for i := 1; i < len(args); i++ {
			a, err := toNumber(args[i-1])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			b, err := toNumber(args[i])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			var cmp int
			if a.isFloat || b.isFloat {
				switch {
				case a.float() < b.float():
					cmp = -1
				case a.float() > b.float():
					cmp = 1
				}
			} else {
				cmp = a.i.Cmp(b.i)
			}
			ok := false
			switch op {
			case "<":
				ok = cmp < 0
			case "<=":
				ok = cmp <= 0
			case ">":
				ok = cmp > 0
			case ">=":
				ok = cmp >= 0
			}
			if !ok {
				return model.Sym("False"), nil
			}
		}
		return model.Sym("True"), nil
	}
}

func boolObj(b bool) model.Object {
	if b {
		return model.Sym("True")
	}
	return model.Sym("False")
}

func primNot(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("not expects one argument")
	}
	return boolObj(!isTruthy(args[0])), nil
}

func primLen(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("len expects one argument")
	}
	switch t := args[0].(type) {
	case model.Sequence:
		return model.Int(int64(t.Len())), nil
	case model.String:
		return model.Int(int64(len([]rune(t.Value())))), nil
	case model.Bytes:
		return model.Int(int64(len(t.Value()))), nil
	}
	return nil, fmt.Errorf("len: value has no length: %v", args[0])
}

func primGet(args []any) (any, error) {
	if len(args) != 2 {
		return nil, errors.New("get expects a sequence and an index")
	}
	seq, ok := args[0].(model.Sequence)
	if !ok {
		return nil, fmt.Errorf("get: expected a sequence, got %v", args[0])
	}
	idx, ok := args[1].(model.Integer)
	if !ok {
		return nil, fmt.Errorf("get: expected an integer index, got %v", args[1])
	}
	i := int(idx.Value().Int64())
	if i < 0 {
		i += seq.Len()
	}
	if i < 0 || i >= seq.Len() {
		return nil, fmt.Errorf("get: index out of range: %d", i)
	}
	return seq.At(i), nil
}

func primFirst(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("first expects one argument")
	}
	seq, ok := args[0].(model.Sequence)
	if !ok {
		return nil, fmt.Errorf("first: expected a sequence, got %v", args[0])
	}
	if seq.Len() == 0 {
		return model.Sym("None"), nil
	}
	return seq.At(0), nil
}

func primRest(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("rest expects one argument")
	}
	seq, ok := args[0].(model.Sequence)
	if !ok {
		return nil, fmt.Errorf("rest: expected a sequence, got %v", args[0])
	}
	if seq.Len() == 0 {
		return seq, nil
	}
	return seq.Rest(), nil
}

func primList(args []any) (any, error) {
	items, err := objectArgs(args)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return model.NewList(items...), nil
}

func primTuple(args []any) (any, error) {
	items, err := objectArgs(args)
	if err != nil {
		return nil, fmt.Errorf("tuple: %w", err)
	}
	return model.NewTuple(items...), nil
}

func primAppendSeq(args []any) (any, error) {
	if len(args) == 0 {
		return model.NewList(), nil
	}
	base, ok := args[0].(model.Sequence)
	if !ok {
		return nil, fmt.Errorf("append: expected a sequence, got %v", args[0])
	}
	for _, arg := range args[1:] {
		obj, err := toObject(arg)
		if err != nil {
			return nil, fmt.Errorf("append: %w", err)
		}
		base = base.Append(obj)
	}
	return base, nil
}

func primRange(args []any) (any, error) {
	lo, hi := int64(0), int64(0)
	switch len(args) {
	case 1:
		n, err := toNumber(args[0])
		if err != nil || n.isFloat {
			return nil, errors.New("range expects integers")
		}
		hi = n.i.Int64()
	case 2:
		a, errA := toNumber(args[0])
		b, errB := toNumber(args[1])
		if errA != nil || errB != nil || a.isFloat || b.isFloat {
			return nil, errors.New("range expects integers")
		}
		lo, hi = a.i.Int64(), b.i.Int64()
	default:
		return nil, errors.New("range expects one or two arguments")
	}
	var items []model.Object
	for i := lo; i < hi; i++ {
		items = append(items, model.Int(i))
	}
	return model.NewList(items...), nil
}

func primStr(args []any) (any, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(displayString(a))
	}
	return model.Str(b.String()), nil
}

func primSym(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("sym expects one argument")
	}
	s, ok := args[0].(model.String)
	if !ok {
		return nil, fmt.Errorf("sym: expected a string, got %v", args[0])
	}
	return model.NewSymbol(s.Value())
}

func primKeyword(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("keyword expects one argument")
	}
	switch t := args[0].(type) {
	case model.String:
		return model.Kw(t.Value()), nil
	case model.Symbol:
		return model.Kw(t.Name()), nil
	case model.Keyword:
		return t, nil
	}
	return nil, fmt.Errorf("keyword: cannot make a keyword from %v", args[0])
}

func primName(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("name expects one argument")
	}
	switch t := args[0].(type) {
	case model.Symbol:
		return model.Str(t.Name()), nil
	case model.Keyword:
		return model.Str(t.Name()), nil
	case model.String:
		return t, nil
	}
	return nil, fmt.Errorf("name: expected a symbol or keyword, got %v", args[0])
}

func primMangle(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("mangle expects one argument")
	}
	switch t := args[0].(type) {
	case model.String:
		return model.Str(mangle.Mangle(t.Value())), nil
	case model.Symbol:
		return model.Str(mangle.Mangle(t.Name())), nil
	}
	return nil, fmt.Errorf("mangle: expected a string or symbol, got %v", args[0])
}

func primUnmangle(args []any) (any, error) {
	if len(args) != 1 {
		return nil, errors.New("unmangle expects one argument")
	}
	switch t := args[0].(type) {
	case model.String:
		return model.Str(mangle.Unmangle(t.Value())), nil
	case model.Symbol:
		return model.Str(mangle.Unmangle(t.Name())), nil
	}
	return nil, fmt.Errorf("unmangle: expected a string or symbol, got %v", args[0])
}

func typePredicate(name string, test func(any) bool) Primitive {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects one argument", name)
		}
		return boolObj(test(args[0])), nil
	}
}

var (
	primIsSymbol = typePredicate("symbol?", func(v any) bool {
		_, ok := v.(model.Symbol)
		return ok
	})
	primIsKeyword = typePredicate("keyword?", func(v any) bool {
		_, ok := v.(model.Keyword)
		return ok
	})
	primIsString = typePredicate("string?", func(v any) bool {
		_, ok := v.(model.String)
		return ok
	})
	primIsInt = typePredicate("int?", func(v any) bool {
		_, ok := v.(model.Integer)
		return ok
	})
	primIsList = typePredicate("list?", func(v any) bool {
		s, ok := v.(model.Sequence)
		return ok && s.Kind() == model.KindList
	})
	primIsExpression = typePredicate("expression?", func(v any) bool {
		s, ok := v.(model.Sequence)
		return ok && s.Kind() == model.KindExpression
	})
	primIsEmpty = typePredicate("empty?", func(v any) bool {
		s, ok := v.(model.Sequence)
		return ok && s.Len() == 0
	})
)

func objectArgs(args []any) ([]model.Object, error) {
	items := make([]model.Object, 0, len(args))
	for _, a := range args {
		obj, err := toObject(a)
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	return items, nil
}
