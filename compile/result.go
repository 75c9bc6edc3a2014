package compile

import (
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/model"
)

// Result is the compiler's statements-plus-trailing-expression value.
// Every compile function returns one: the statements that must run
// first, and the expression holding the form's value, if any. Taking
// the expression marks it consumed; a Result combined away while its
// expression is still pending is an anomaly the compiler diagnoses.
type Result struct {
	Stmts []hast.Stmt
	expr  hast.Expr
	taken bool
}

func exprResult(e hast.Expr) Result {
	return Result{expr: e}
}

func stmtResult(ss ...hast.Stmt) Result {
	return Result{Stmts: ss}
}

// HasExpr reports whether an unconsumed expression is pending.
func (r *Result) HasExpr() bool { return r.expr != nil && !r.taken }

// HasStmts reports whether the Result carries any statements.
func (r *Result) HasStmts() bool { return len(r.Stmts) > 0 }

// Pure reports a statement-free Result, safe to inline as an
// expression.
func (r *Result) Pure() bool { return len(r.Stmts) == 0 }

// Take consumes and returns the trailing expression, or nil.
func (r *Result) Take() hast.Expr {
	if r.expr == nil {
		return nil
	}
	r.taken = true
	return r.expr
}

// Force consumes the trailing expression, substituting the None
// constant when there is none.
func (r *Result) Force(sp model.Span) hast.Expr {
	if e := r.Take(); e != nil {
		return e
	}
	return &hast.Constant{Span: sp, Value: nil}
}

// trivial reports an expression whose evaluation cannot have effects,
// so dropping it loses nothing.
func trivial(e hast.Expr) bool {
	switch e.(type) {
	case *hast.Name, *hast.Constant:
		return true
	}
	return false
}

// AsStmts consumes the whole Result into a statement list. A pending
// non-trivial expression becomes an expression statement so its side
// effects survive.
func (r *Result) AsStmts() []hast.Stmt {
	out := r.Stmts
	if e := r.Take(); e != nil && !trivial(e) {
		out = append(out[:len(out):len(out)], &hast.ExprStmt{Span: e.Pos(), X: e})
	}
	return out
}

// join concatenates two Results, adopting the second's trailing
// expression. A still-pending expression on the first is the diagnosed
// anomaly: it is preserved as a statement and reported through the
// warning hook.
func (c *Compiler) join(a, b Result) Result {
	stmts := a.Stmts
	if a.HasExpr() {
		e := a.Take()
		if !trivial(e) {
			c.warnf(e.Pos(), "expression result dropped during composition")
			stmts = append(stmts[:len(stmts):len(stmts)], &hast.ExprStmt{Span: e.Pos(), X: e})
		}
	}
	return Result{
		Stmts: append(stmts[:len(stmts):len(stmts)], b.Stmts...),
		expr:  b.expr,
		taken: b.taken,
	}
}
