package compile

import (
	"math/big"

	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/model"
)

func init() {
	register("and", 0, -1, "(and value ...)", func(c *Compiler, form model.Sequence) (Result, error) {
		return c.compileBoolOp(form, "and")
	})
	register("or", 0, -1, "(or value ...)", func(c *Compiler, form model.Sequence) (Result, error) {
		return c.compileBoolOp(form, "or")
	})
	register("not", 1, 1, "(not value)", compileNot)
	register("~", 1, 1, "(~ value)", func(c *Compiler, form model.Sequence) (Result, error) {
		return c.compileUnary(form, "~")
	})

	for _, op := range binOps {
		op := op
		register(op.name, op.min, -1, "("+op.name+" value ...)",
			func(c *Compiler, form model.Sequence) (Result, error) {
				return c.compileBinOp(form, op)
			})
	}
	for _, cmp := range compareOps {
		cmp := cmp
		register(cmp.name, 1, -1, "("+cmp.name+" value value ...)",
			func(c *Compiler, form model.Sequence) (Result, error) {
				return c.compileCompare(form, cmp.op)
			})
	}
}

// binOp describes a folding arithmetic or bitwise operator. Operators
// with a unary reading accept one argument; single-argument identity
// operators return the value unchanged aside from evaluation.
type binOp struct {
	name       string
	op         string
	min        int
	unary      string // "" for none
	rightAssoc bool
	identity   bool // one argument yields the argument itself
}

var binOps = []binOp{
	{name: "+", op: "+", min: 1, unary: "+"},
	{name: "-", op: "-", min: 1, unary: "-"},
	{name: "*", op: "*", min: 1, identity: true},
	{name: "/", op: "/", min: 1},
	{name: "//", op: "//", min: 2},
	{name: "%", op: "%", min: 2},
	{name: "**", op: "**", min: 2, rightAssoc: true},
	{name: "<<", op: "<<", min: 2},
	{name: ">>", op: ">>", min: 2},
	{name: "&", op: "&", min: 1, identity: true},
	{name: "|", op: "|", min: 1, identity: true},
	{name: "^", op: "^", min: 1, identity: true},
	{name: "@", op: "@", min: 2},
}

var compareOps = []struct {
	name string
	op   string
}{
	{"=", "=="}, {"!=", "!="}, {"<", "<"}, {"<=", "<="}, {">", ">"}, {">=", ">="},
	{"is", "is"}, {"is-not", "is not"}, {"in", "in"}, {"not-in", "not in"},
}

func (c *Compiler) compileUnary(form model.Sequence, op string) (Result, error) {
	r, err := c.compile(form.At(1))
	if err != nil {
		return Result{}, err
	}
	return Result{Stmts: r.Stmts, expr: &hast.UnaryOp{
		Span:    form.Span(),
		Op:      op,
		Operand: r.Force(form.At(1).Span()),
	}}, nil
}

func compileNot(c *Compiler, form model.Sequence) (Result, error) {
	return c.compileUnary(form, "not")
}

func (c *Compiler) compileBinOp(form model.Sequence, op binOp) (Result, error) {
	exprs, pre, err := c.compileMany(form.Rest().Items(), false)
	if err != nil {
		return Result{}, err
	}
	if len(exprs) == 1 {
		switch {
		case op.unary != "":
			return Result{Stmts: pre, expr: &hast.UnaryOp{
				Span:    form.Span(),
				Op:      op.unary,
				Operand: exprs[0],
			}}, nil
		case op.identity:
			return Result{Stmts: pre, expr: exprs[0]}, nil
		case op.name == "/":
			// A single divisor reads as the reciprocal.
			return Result{Stmts: pre, expr: &hast.BinOp{
				Span:  form.Span(),
				Left:  &hast.Constant{Span: form.Span(), Value: big.NewInt(1)},
				Op:    "/",
				Right: exprs[0],
			}}, nil
		}
	}
	var e hast.Expr
	if op.rightAssoc {
		e = exprs[len(exprs)-1]
		for i := len(exprs) - 2; i >= 0; i-- {
			e = &hast.BinOp{Span: form.Span(), Left: exprs[i], Op: op.op, Right: e}
		}
	} else {
		e = exprs[0]
		for _, rhs := range exprs[1:] {
			e = &hast.BinOp{Span: form.Span(), Left: e, Op: op.op, Right: rhs}
		}
	}
	return Result{Stmts: pre, expr: e}, nil
}

func (c *Compiler) compileCompare(form model.Sequence, op string) (Result, error) {
	items := form.Rest().Items()
	if len(items) == 1 {
		// One operand is vacuously true; it is still evaluated.
		r, err := c.compile(items[0])
		if err != nil {
			return Result{}, err
		}
		stmts := r.Stmts
		if e := r.Take(); e != nil {
			stmts = append(stmts, &hast.ExprStmt{Span: e.Pos(), X: e})
		}
		return Result{Stmts: stmts, expr: &hast.Constant{Span: form.Span(), Value: true}}, nil
	}
	exprs, pre, err := c.compileMany(items, false)
	if err != nil {
		return Result{}, err
	}
	ops := make([]string, len(exprs)-1)
	for i := range ops {
		ops[i] = op
	}
	return Result{Stmts: pre, expr: &hast.Compare{
		Span:        form.Span(),
		Left:        exprs[0],
		Ops:         ops,
		Comparators: exprs[1:],
	}}, nil
}

// ---- short-circuit forms ----

func (c *Compiler) compileBoolOp(form model.Sequence, op string) (Result, error) {
	items := form.Rest().Items()
	switch len(items) {
	case 0:
		// The operator's identity.
		return exprResult(&hast.Constant{Span: form.Span(), Value: op == "and"}), nil
	case 1:
		return c.compile(items[0])
	}

	results := make([]Result, len(items))
	pure := true
	for i, item := range items {
		r, err := c.compile(item)
		if err != nil {
			return Result{}, err
		}
		if !r.Pure() {
			pure = false
		}
		results[i] = r
	}

	if pure {
		values := make([]hast.Expr, len(results))
		for i := range results {
			values[i] = results[i].Force(items[i].Span())
		}
		return exprResult(&hast.BoolOp{Span: form.Span(), Op: op, Values: values}), nil
	}

	// Cascade: the temp always holds the deciding operand's exact
	// value, and each later operand evaluates behind one conditional
	// guarding on the value so far.
	temp := c.tempName("value")
	stmts := c.cascade(temp, op, form.Span(), items, results)
	return Result{Stmts: stmts, expr: c.load(form.Span(), temp)}, nil
}

func (c *Compiler) cascade(temp, op string, sp model.Span, items []model.Object, results []Result) []hast.Stmt {
	r := results[0]
	stmts := append([]hast.Stmt{}, r.Stmts...)
	stmts = append(stmts, c.assign(sp, temp, r.Force(items[0].Span())))
	if len(results) == 1 {
		return stmts
	}
	var cond hast.Expr = c.load(sp, temp)
	if op == "or" {
		cond = &hast.UnaryOp{Span: sp, Op: "not", Operand: cond}
	}
	return append(stmts, &hast.If{
		Span: sp,
		Cond: cond,
		Body: c.cascade(temp, op, sp, items[1:], results[1:]),
	})
}
