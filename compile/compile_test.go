package compile

import (
	"errors"
	"math/big"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergev/larch/expand"
	"github.com/sergev/larch/hast"
	"github.com/sergev/larch/model"
	"github.com/sergev/larch/reader"
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	return NewCompiler(expand.NewContext("test"), "<test>")
}

func readForms(t *testing.T, src string) []model.Object {
	t.Helper()
	forms, err := reader.ReadString(src, "<test>")
	require.NoError(t, err)
	return forms
}

// compileOne compiles a single form with a fresh compiler.
func compileOne(t *testing.T, src string) Result {
	t.Helper()
	forms := readForms(t, src)
	require.Len(t, forms, 1)
	c := newTestCompiler(t)
	res, err := c.CompileForm(forms[0])
	require.NoError(t, err)
	return res
}

func compileErr(t *testing.T, src string) error {
	t.Helper()
	c := newTestCompiler(t)
	for _, form := range readForms(t, src) {
		if _, err := c.CompileForm(form); err != nil {
			return err
		}
	}
	t.Fatalf("compiling %q did not fail", src)
	return nil
}

func dumpResult(r Result) string {
	var parts []string
	for _, s := range r.Stmts {
		parts = append(parts, hast.Dump(s))
	}
	if r.HasExpr() {
		parts = append(parts, hast.Dump(r.expr))
	}
	return strings.Join(parts, "\n")
}

// ---- atoms ----

func TestCompileIntegerLiteral(t *testing.T) {
	r := compileOne(t, "42")
	require.True(t, r.Pure())
	ct, ok := r.Take().(*hast.Constant)
	require.True(t, ok)
	assert.Equal(t, int64(42), ct.Value.(*big.Int).Int64())
}

func TestCompileSingletons(t *testing.T) {
	for src, want := range map[string]any{
		"True":  true,
		"False": false,
		"None":  nil,
	} {
		r := compileOne(t, src)
		ct, ok := r.Take().(*hast.Constant)
		require.True(t, ok, src)
		assert.Equal(t, want, ct.Value, src)
	}
}

func TestCompileSymbolMangles(t *testing.T) {
	r := compileOne(t, "foo-bar?")
	n, ok := r.Take().(*hast.Name)
	require.True(t, ok)
	assert.Equal(t, "is_foo_bar", n.ID)
	assert.Equal(t, hast.Load, n.Ctx)
}

func TestCompileDottedSymbol(t *testing.T) {
	r := compileOne(t, "os.path.join")
	attr, ok := r.Take().(*hast.Attribute)
	require.True(t, ok)
	assert.Equal(t, "join", attr.Attr)
	inner, ok := attr.Value.(*hast.Attribute)
	require.True(t, ok)
	assert.Equal(t, "path", inner.Attr)
	base, ok := inner.Value.(*hast.Name)
	require.True(t, ok)
	assert.Equal(t, "os", base.ID)
}

func TestCompileCollections(t *testing.T) {
	r := compileOne(t, `[1 2 3]`)
	list, ok := r.Take().(*hast.ListExpr)
	require.True(t, ok)
	assert.Len(t, list.Elts, 3)

	r = compileOne(t, `{"a" 1 "b" 2}`)
	d, ok := r.Take().(*hast.DictExpr)
	require.True(t, ok)
	assert.Len(t, d.Keys, 2)
}

func TestCompileFString(t *testing.T) {
	r := compileOne(t, `f"x={x :>10}"`)
	js, ok := r.Take().(*hast.JoinedStr)
	require.True(t, ok)
	require.Len(t, js.Values, 2)
	fv, ok := js.Values[1].(*hast.FormattedValue)
	require.True(t, ok)
	require.NotNil(t, fv.FormatSpec)
}

// ---- calls ----

func TestCompileCall(t *testing.T) {
	r := compileOne(t, `(f 1 :sep "x" #* rest #** kw)`)
	call, ok := r.Take().(*hast.Call)
	require.True(t, ok)
	require.Len(t, call.Args, 2)
	_, starred := call.Args[1].(*hast.Starred)
	assert.True(t, starred)
	require.Len(t, call.Keywords, 2)
	assert.Equal(t, "sep", call.Keywords[0].Arg)
	assert.Equal(t, "", call.Keywords[1].Arg)
}

func TestMethodCallSugar(t *testing.T) {
	r := compileOne(t, `(.upper name)`)
	call, ok := r.Take().(*hast.Call)
	require.True(t, ok)
	attr, ok := call.Func.(*hast.Attribute)
	require.True(t, ok)
	assert.Equal(t, "upper", attr.Attr)
	recv, ok := attr.Value.(*hast.Name)
	require.True(t, ok)
	assert.Equal(t, "name", recv.ID)
}

func TestKeywordArgumentWithoutValueFails(t *testing.T) {
	err := compileErr(t, `(f :sep)`)
	assert.Contains(t, err.Error(), "keyword argument")
}

// ---- conditionals ----

func TestConstantTrueIfKeepsOnlyThenBranch(t *testing.T) {
	r := compileOne(t, `(if True (one) (two))`)
	d := dumpResult(r)
	assert.NotContains(t, d, "If(")
	assert.Contains(t, d, `"one"`)
	assert.NotContains(t, d, `"two"`)
}

func TestConstantFalseIfKeepsOnlyElseBranch(t *testing.T) {
	r := compileOne(t, `(if 0 (one) (two))`)
	d := dumpResult(r)
	assert.NotContains(t, d, `"one"`)
	assert.Contains(t, d, `"two"`)
}

func TestPureIfLowersToConditionalExpression(t *testing.T) {
	r := compileOne(t, `(if a b c)`)
	require.True(t, r.Pure())
	_, ok := r.Take().(*hast.IfExp)
	assert.True(t, ok)
}

var resultTempRe = regexp.MustCompile(`_larch_gensym_result_\d+`)

func TestIfChainSharesOneResultTemp(t *testing.T) {
	r := compileOne(t, `(if a (do (setv x 1) x) (if b (do (setv y 2) y) c))`)
	temps := map[string]bool{}
	for _, m := range resultTempRe.FindAllString(dumpResult(r), -1) {
		temps[m] = true
	}
	assert.Len(t, temps, 1)
}

func TestAndWithStatementfulOperandEmitsOneConditional(t *testing.T) {
	r := compileOne(t, `(and a (do (setv x 1) x))`)
	d := dumpResult(r)
	assert.Equal(t, 1, strings.Count(d, "If("))
}

func TestPureBoolOpStaysNative(t *testing.T) {
	r := compileOne(t, `(or a b c)`)
	require.True(t, r.Pure())
	bo, ok := r.Take().(*hast.BoolOp)
	require.True(t, ok)
	assert.Equal(t, "or", bo.Op)
	assert.Len(t, bo.Values, 3)
}

// ---- operators ----

func TestArithmeticFolding(t *testing.T) {
	r := compileOne(t, `(+ a b c)`)
	outer, ok := r.Take().(*hast.BinOp)
	require.True(t, ok)
	assert.Equal(t, "+", outer.Op)
	_, ok = outer.Left.(*hast.BinOp)
	assert.True(t, ok, "left operand should fold first")
}

func TestPowerFoldsRight(t *testing.T) {
	r := compileOne(t, `(** a b c)`)
	outer, ok := r.Take().(*hast.BinOp)
	require.True(t, ok)
	_, ok = outer.Right.(*hast.BinOp)
	assert.True(t, ok, "exponent folds to the right")
}

func TestUnaryMinus(t *testing.T) {
	r := compileOne(t, `(- x)`)
	u, ok := r.Take().(*hast.UnaryOp)
	require.True(t, ok)
	assert.Equal(t, "-", u.Op)
}

func TestChainedComparison(t *testing.T) {
	r := compileOne(t, `(< a b c)`)
	cmp, ok := r.Take().(*hast.Compare)
	require.True(t, ok)
	assert.Equal(t, []string{"<", "<"}, cmp.Ops)
	assert.Len(t, cmp.Comparators, 2)
}

func TestIsNotAndNotIn(t *testing.T) {
	r := compileOne(t, `(is-not a None)`)
	cmp := r.Take().(*hast.Compare)
	assert.Equal(t, []string{"is not"}, cmp.Ops)

	r = compileOne(t, `(not-in x xs)`)
	cmp = r.Take().(*hast.Compare)
	assert.Equal(t, []string{"not in"}, cmp.Ops)
}

func TestCompareSingleOperand(t *testing.T) {
	r := compileOne(t, `(= a)`)
	require.Len(t, r.Stmts, 1)
	es, ok := r.Stmts[0].(*hast.ExprStmt)
	require.True(t, ok, "got %T", r.Stmts[0])
	assert.Equal(t, "a", es.X.(*hast.Name).ID)
	ct, ok := r.Take().(*hast.Constant)
	require.True(t, ok)
	assert.Equal(t, true, ct.Value)
}

// ---- assignment ----

func TestSetvSimple(t *testing.T) {
	r := compileOne(t, `(setv x 1)`)
	require.Len(t, r.Stmts, 1)
	as, ok := r.Stmts[0].(*hast.Assign)
	require.True(t, ok)
	n := as.Targets[0].(*hast.Name)
	assert.Equal(t, "x", n.ID)
	assert.Equal(t, hast.Store, n.Ctx)
}

func TestSetvDestructuring(t *testing.T) {
	r := compileOne(t, `(setv [a #* rest] pair)`)
	as := r.Stmts[0].(*hast.Assign)
	list, ok := as.Targets[0].(*hast.ListExpr)
	require.True(t, ok)
	assert.Equal(t, hast.Store, list.Ctx)
	_, ok = list.Elts[1].(*hast.Starred)
	assert.True(t, ok)
}

func TestSetvAnnotated(t *testing.T) {
	r := compileOne(t, `(setv (annotate x int) 5)`)
	ann, ok := r.Stmts[0].(*hast.AnnAssign)
	require.True(t, ok)
	require.NotNil(t, ann.Value)
	assert.Equal(t, "int", ann.Annotation.(*hast.Name).ID)
}

func TestAssignToReservedNameFails(t *testing.T) {
	err := compileErr(t, `(setv True 1)`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Msg, "reserved name")
	assert.False(t, ce.Span.IsZero())
}

func TestAssignToNonLvalueFails(t *testing.T) {
	err := compileErr(t, `(setv (+ a b) 1)`)
	assert.Contains(t, err.Error(), "cannot assign")
}

func TestAugmentedAssignment(t *testing.T) {
	r := compileOne(t, `(+= x 2)`)
	aug, ok := r.Stmts[0].(*hast.AugAssign)
	require.True(t, ok)
	assert.Equal(t, "+", aug.Op)
}

func TestDel(t *testing.T) {
	r := compileOne(t, `(del x (get d "k"))`)
	del, ok := r.Stmts[0].(*hast.Delete)
	require.True(t, ok)
	require.Len(t, del.Targets, 2)
	assert.Equal(t, hast.Del, del.Targets[0].(*hast.Name).Ctx)
	assert.Equal(t, hast.Del, del.Targets[1].(*hast.Subscript).Ctx)
}

// ---- access forms ----

func TestDotForm(t *testing.T) {
	r := compileOne(t, `(. obj attr [0] other)`)
	attr, ok := r.Take().(*hast.Attribute)
	require.True(t, ok)
	assert.Equal(t, "other", attr.Attr)
	sub, ok := attr.Value.(*hast.Subscript)
	require.True(t, ok)
	_, ok = sub.Value.(*hast.Attribute)
	assert.True(t, ok)
}

func TestGetNests(t *testing.T) {
	r := compileOne(t, `(get m "a" "b")`)
	outer, ok := r.Take().(*hast.Subscript)
	require.True(t, ok)
	_, ok = outer.Value.(*hast.Subscript)
	assert.True(t, ok)
}

func TestCutBounds(t *testing.T) {
	r := compileOne(t, `(cut xs 1 None 2)`)
	sub := r.Take().(*hast.Subscript)
	sl, ok := sub.Index.(*hast.SliceExpr)
	require.True(t, ok)
	assert.NotNil(t, sl.Lower)
	assert.Nil(t, sl.Upper)
	assert.NotNil(t, sl.Step)

	r = compileOne(t, `(cut xs 3)`)
	sl = r.Take().(*hast.Subscript).Index.(*hast.SliceExpr)
	assert.Nil(t, sl.Lower)
	assert.NotNil(t, sl.Upper)
}

// ---- loops ----

func TestWhilePureCondition(t *testing.T) {
	r := compileOne(t, `(while (ready) (work))`)
	loop, ok := r.Stmts[0].(*hast.While)
	require.True(t, ok)
	_, ok = loop.Cond.(*hast.Call)
	assert.True(t, ok)
}

func TestWhileStatementfulCondition(t *testing.T) {
	r := compileOne(t, `(while (do (setv c (poll)) c) (work))`)
	loop, ok := r.Stmts[0].(*hast.While)
	require.True(t, ok)
	ct, ok := loop.Cond.(*hast.Constant)
	require.True(t, ok)
	assert.Equal(t, true, ct.Value)
	// The rewritten body re-evaluates the condition and breaks on
	// failure before the original body runs.
	guard, ok := loop.Body[1].(*hast.If)
	require.True(t, ok)
	_, ok = guard.Body[len(guard.Body)-1].(*hast.Break)
	assert.True(t, ok)
}

func TestForNestsBindings(t *testing.T) {
	r := compileOne(t, `(for [x xs y ys] (f x y))`)
	outer, ok := r.Stmts[0].(*hast.For)
	require.True(t, ok)
	inner, ok := outer.Body[0].(*hast.For)
	require.True(t, ok)
	assert.Equal(t, "y", inner.Target.(*hast.Name).ID)
}

func TestForElseClause(t *testing.T) {
	r := compileOne(t, `(for [x xs] (f x) (else (done)))`)
	loop := r.Stmts[0].(*hast.For)
	require.Len(t, loop.Else, 1)
}

// ---- comprehensions ----

func TestComprehensionNative(t *testing.T) {
	r := compileOne(t, `(lfor x xs :if (even? x) (* x 2))`)
	require.True(t, r.Pure())
	comp, ok := r.Take().(*hast.ListComp)
	require.True(t, ok)
	require.Len(t, comp.Generators, 1)
	assert.Len(t, comp.Generators[0].Ifs, 1)
}

func TestComprehensionKinds(t *testing.T) {
	rs := compileOne(t, `(sfor x xs x)`)
	_, ok := rs.Take().(*hast.SetComp)
	assert.True(t, ok)
	rg := compileOne(t, `(gfor x xs x)`)
	_, ok = rg.Take().(*hast.GeneratorExp)
	assert.True(t, ok)
	rd := compileOne(t, `(dfor x xs x (* x 2))`)
	dc, okd := rd.Take().(*hast.DictComp)
	require.True(t, okd)
	assert.NotNil(t, dc.Key)
	assert.NotNil(t, dc.Value)
}

func TestComprehensionFallsBackToLoopRoutine(t *testing.T) {
	r := compileOne(t, `(lfor x xs :do (log x) x)`)
	require.Len(t, r.Stmts, 1)
	def, ok := r.Stmts[0].(*hast.FuncDef)
	require.True(t, ok)
	call, ok := r.Take().(*hast.Call)
	require.True(t, ok)
	assert.Equal(t, def.Name, call.Func.(*hast.Name).ID)
	assert.Contains(t, hast.Dump(def), `Attr="append"`)
}

func TestGeneratorComprehensionFallbackYields(t *testing.T) {
	r := compileOne(t, `(gfor x xs :do (log x) x)`)
	def := r.Stmts[0].(*hast.FuncDef)
	assert.Contains(t, hast.Dump(def), "Yield(")
}

func TestComprehensionRebindIterationVariableFails(t *testing.T) {
	err := compileErr(t, `(lfor x xs :setv x 2 x)`)
	assert.Contains(t, err.Error(), "iteration variable")
}

// ---- functions ----

func TestParameterlessSingleExpressionFnIsLambda(t *testing.T) {
	r := compileOne(t, `(fn [] 5)`)
	require.True(t, r.Pure())
	_, ok := r.Take().(*hast.Lambda)
	assert.True(t, ok)
}

func TestFnWithParamsBecomesNamedDef(t *testing.T) {
	r := compileOne(t, `(fn [a] a)`)
	require.Len(t, r.Stmts, 1)
	def, ok := r.Stmts[0].(*hast.FuncDef)
	require.True(t, ok)
	assert.Equal(t, def.Name, r.Take().(*hast.Name).ID)
}

func TestDefnAutoReturnsFinalExpression(t *testing.T) {
	r := compileOne(t, `(defn double [x] (* x 2))`)
	def := findFuncDef(t, r.Stmts)
	ret, ok := def.Body[len(def.Body)-1].(*hast.Return)
	require.True(t, ok)
	assert.NotNil(t, ret.Value)
}

func findFuncDef(t *testing.T, stmts []hast.Stmt) *hast.FuncDef {
	t.Helper()
	for _, s := range stmts {
		if def, ok := s.(*hast.FuncDef); ok {
			return def
		}
	}
	t.Fatal("no function definition emitted")
	return nil
}

func TestDefnParamGrammar(t *testing.T) {
	r := compileOne(t, `(defn f [a / b [c 1] #* rest k #** kw] None)`)
	def := findFuncDef(t, r.Stmts)
	assert.Len(t, def.Params.PosOnly, 1)
	assert.Len(t, def.Params.Args, 2)
	assert.Len(t, def.Params.Defaults, 1)
	require.NotNil(t, def.Params.VarArg)
	assert.Equal(t, "rest", def.Params.VarArg.Name)
	assert.Len(t, def.Params.KwOnly, 1)
	require.NotNil(t, def.Params.KwArg)
}

func TestRequiredParamAfterDefaultedFails(t *testing.T) {
	err := compileErr(t, `(defn f [[a 1] b] None)`)
	assert.Contains(t, err.Error(), "required parameter")
}

func TestTwoVariadicCapturesFail(t *testing.T) {
	err := compileErr(t, `(defn f [#* a #* b] None)`)
	assert.Contains(t, err.Error(), "variadic")
}

func TestReservedParameterNameFails(t *testing.T) {
	err := compileErr(t, `(defn f [None] 1)`)
	assert.Contains(t, err.Error(), "reserved")
}

func TestDefnAsyncAndReturnAnnotation(t *testing.T) {
	r := compileOne(t, "(defn :async #^ int f [] 1)")
	def := findFuncDef(t, r.Stmts)
	assert.True(t, def.Async)
	require.NotNil(t, def.Returns)
}

func TestYieldMarksGenerator(t *testing.T) {
	r := compileOne(t, `(defn g [] (yield 1) (yield 2))`)
	assert.Contains(t, dumpResult(r), "Yield(")
}

func TestYieldOutsideFunctionFails(t *testing.T) {
	err := compileErr(t, `(yield 1)`)
	assert.Contains(t, err.Error(), "outside of a function")
}

func TestReturnOutsideFunctionFails(t *testing.T) {
	err := compileErr(t, `(return 1)`)
	assert.Contains(t, err.Error(), "outside of a function")
}

func TestDefclass(t *testing.T) {
	r := compileOne(t, `(defclass Point [Base :metaclass Meta] (defn __init__ [self] None))`)
	var cls *hast.ClassDef
	for _, s := range r.Stmts {
		if cd, ok := s.(*hast.ClassDef); ok {
			cls = cd
		}
	}
	require.NotNil(t, cls)
	assert.Equal(t, "Point", cls.Name)
	require.Len(t, cls.Bases, 1)
	require.Len(t, cls.Keywords, 1)
	assert.Equal(t, "metaclass", cls.Keywords[0].Arg)
}

// ---- try / with ----

func TestTryFunnelsBranchesIntoOneTemp(t *testing.T) {
	r := compileOne(t, `(try (risky) (except [e ValueError] (handle e)) (else (fine)) (finally (cleanup)))`)
	tr, ok := r.Stmts[0].(*hast.Try)
	require.True(t, ok)
	require.Len(t, tr.Handlers, 1)
	assert.Equal(t, "e", tr.Handlers[0].Name)
	require.NotEmpty(t, tr.Else)
	require.NotEmpty(t, tr.Final)

	temps := map[string]bool{}
	for _, m := range resultTempRe.FindAllString(dumpResult(r), -1) {
		temps[m] = true
	}
	assert.Len(t, temps, 1)
}

func TestTryWithoutHandlersFails(t *testing.T) {
	err := compileErr(t, `(try (risky))`)
	assert.Contains(t, err.Error(), "except")
}

func TestTryElseWithoutExceptFails(t *testing.T) {
	err := compileErr(t, `(try (risky) (else 1) (finally 2))`)
	assert.Contains(t, err.Error(), "else")
}

func TestExceptMatcherShapes(t *testing.T) {
	r := compileOne(t, `(try 1 (except []) (except [TypeError] 2) (except [e [KeyError ValueError]] 3))`)
	tr := r.Stmts[0].(*hast.Try)
	require.Len(t, tr.Handlers, 3)
	assert.Nil(t, tr.Handlers[0].Type)
	_, ok := tr.Handlers[1].Type.(*hast.Name)
	assert.True(t, ok)
	tup, ok := tr.Handlers[2].Type.(*hast.TupleExpr)
	require.True(t, ok)
	assert.Len(t, tup.Elts, 2)
}

func TestStrayElseClauseFails(t *testing.T) {
	err := compileErr(t, `(else 1)`)
	assert.Contains(t, err.Error(), "enclosing form")
}

func TestWithTargetsAndDiscard(t *testing.T) {
	r := compileOne(t, `(with [f (open p) _ (lock)] (use f))`)
	var w *hast.With
	for _, s := range r.Stmts {
		if ws, ok := s.(*hast.With); ok {
			w = ws
		}
	}
	require.NotNil(t, w)
	require.Len(t, w.Items, 2)
	assert.NotNil(t, w.Items[0].Vars)
	assert.Nil(t, w.Items[1].Vars)
}

// ---- match ----

func TestMatchPatterns(t *testing.T) {
	r := compileOne(t, `(match v 1 "one" [x #* rest] x (| 2 3) "few" (Point :x px) px _ "other")`)
	var m *hast.Match
	for _, s := range r.Stmts {
		if ms, ok := s.(*hast.Match); ok {
			m = ms
		}
	}
	require.NotNil(t, m)
	require.Len(t, m.Cases, 5)
	_, ok := m.Cases[0].Pat.(*hast.MatchValue)
	assert.True(t, ok)
	seq, ok := m.Cases[1].Pat.(*hast.MatchSequence)
	require.True(t, ok)
	_, ok = seq.Patterns[1].(*hast.MatchStar)
	assert.True(t, ok)
	_, ok = m.Cases[2].Pat.(*hast.MatchOr)
	assert.True(t, ok)
	mc, ok := m.Cases[3].Pat.(*hast.MatchClass)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, mc.KwdNames)
	wild, ok := m.Cases[4].Pat.(*hast.MatchAs)
	require.True(t, ok)
	assert.Empty(t, wild.Name)
}

func TestMatchGuardWithStatementsIsLifted(t *testing.T) {
	r := compileOne(t, `(match v x :if (do (setv ok (check x)) ok) x)`)
	def := findFuncDef(t, r.Stmts)
	var m *hast.Match
	for _, s := range r.Stmts {
		if ms, ok := s.(*hast.Match); ok {
			m = ms
		}
	}
	require.NotNil(t, m)
	call, ok := m.Cases[0].Guard.(*hast.Call)
	require.True(t, ok)
	assert.Equal(t, def.Name, call.Func.(*hast.Name).ID)
	assert.Empty(t, call.Args)
}

// ---- let ----

func TestLetRenamesBindings(t *testing.T) {
	r := compileOne(t, `(let [x 1] x)`)
	require.Len(t, r.Stmts, 1)
	as := r.Stmts[0].(*hast.Assign)
	hidden := as.Targets[0].(*hast.Name).ID
	assert.NotEqual(t, "x", hidden)
	assert.Contains(t, hidden, "x")
	out := r.Take().(*hast.Name)
	assert.Equal(t, hidden, out.ID)
}

func TestLetValuesSeeEarlierBindings(t *testing.T) {
	r := compileOne(t, `(let [x 1 y x] y)`)
	require.Len(t, r.Stmts, 2)
	first := r.Stmts[0].(*hast.Assign).Targets[0].(*hast.Name).ID
	second := r.Stmts[1].(*hast.Assign).Value.(*hast.Name).ID
	assert.Equal(t, first, second)
}

// ---- quoting ----

func TestQuoteRendersConstruction(t *testing.T) {
	r := compileOne(t, "'(a 1)")
	d := hast.Dump(r.Take())
	assert.Contains(t, d, `Attr="Expression"`)
	assert.Contains(t, d, `Attr="Symbol"`)
	assert.Contains(t, d, `Attr="Integer"`)
}

func TestQuasiquoteCompilesUnquote(t *testing.T) {
	r := compileOne(t, "`(+ ~x 1)")
	d := hast.Dump(r.Take())
	assert.Contains(t, d, `Attr="Symbol"`)
	assert.Contains(t, d, `ID="x"`)
}

func TestUnquoteSpliceBecomesStarred(t *testing.T) {
	r := compileOne(t, "`(f ~@args)")
	d := hast.Dump(r.Take())
	assert.Contains(t, d, "Starred(")
}

func TestNestedQuasiquoteKeepsInnerUnquote(t *testing.T) {
	r := compileOne(t, "``(f ~x)")
	d := hast.Dump(r.Take())
	// The inner unquote is data at depth two, not compiled code.
	assert.Contains(t, d, `"unquote"`)
	assert.NotContains(t, d, `ID="x"`)
}

func TestStrayUnquoteFails(t *testing.T) {
	err := compileErr(t, "~x")
	assert.Contains(t, err.Error(), "quasiquote")
}

// ---- declarations and imports ----

func TestNonlocalAtModuleLevelFails(t *testing.T) {
	err := compileErr(t, `(nonlocal x)`)
	assert.Contains(t, err.Error(), "nonlocal")
}

func TestImportShapes(t *testing.T) {
	r := compileOne(t, `(import os sys :as system collections [OrderedDict :as OD] foo.bar *)`)
	require.Len(t, r.Stmts, 4)
	imp := r.Stmts[0].(*hast.Import)
	assert.Equal(t, "os", imp.Names[0].Name)
	alias := r.Stmts[1].(*hast.Import)
	assert.Equal(t, "system", alias.Names[0].AsName)
	from := r.Stmts[2].(*hast.ImportFrom)
	assert.Equal(t, "collections", from.Module)
	assert.Equal(t, "OD", from.Names[0].AsName)
	star := r.Stmts[3].(*hast.ImportFrom)
	assert.Equal(t, []hast.Alias{{Name: "*"}}, star.Names)
}

func TestRelativeImport(t *testing.T) {
	r := compileOne(t, `(import ..pkg.mod [helper])`)
	from := r.Stmts[0].(*hast.ImportFrom)
	assert.Equal(t, 2, from.Level)
	assert.Equal(t, "pkg.mod", from.Module)
}

func TestRequireBindsMacros(t *testing.T) {
	c := newTestCompiler(t)
	c.Require = func(module string) (map[string]expand.Macro, error) {
		require.Equal(t, "helpers", module)
		return map[string]expand.Macro{
			"twice": func(ctx *expand.Context, form model.Sequence) (any, error) {
				arg := form.At(1)
				return model.Expr("+", arg, arg), nil
			},
		}, nil
	}
	forms := readForms(t, `(require helpers [twice]) (twice 3)`)
	_, err := c.CompileForm(forms[0])
	require.NoError(t, err)
	res, err := c.CompileForm(forms[1])
	require.NoError(t, err)
	_, ok := res.Take().(*hast.BinOp)
	assert.True(t, ok)
}

func TestRequireWithoutLoaderFails(t *testing.T) {
	err := compileErr(t, `(require helpers [twice])`)
	assert.Contains(t, err.Error(), "require")
}

// ---- macros and compile-time evaluation ----

func TestMacroDefinedInOneFormVisibleToTheNext(t *testing.T) {
	c := newTestCompiler(t)
	forms := readForms(t, "(defmacro twice [x] `(+ ~x ~x)) (twice 3)")
	_, err := c.CompileForm(forms[0])
	require.NoError(t, err)
	res, err := c.CompileForm(forms[1])
	require.NoError(t, err)
	_, ok := res.Take().(*hast.BinOp)
	assert.True(t, ok, "the macro call should have expanded to addition")
}

func TestMacroUnresolvedWithoutItsDefiningForm(t *testing.T) {
	res := compileOne(t, `(twice 3)`)
	call, ok := res.Take().(*hast.Call)
	require.True(t, ok, "an unknown head compiles as an ordinary call")
	assert.Equal(t, "twice", call.Func.(*hast.Name).ID)
}

func TestEvalWhenCompileEmitsNothing(t *testing.T) {
	r := compileOne(t, `(eval-when-compile (setv answer 42))`)
	assert.Empty(t, r.Stmts)
}

func TestEvalAndCompileEmitsAndEvaluates(t *testing.T) {
	c := newTestCompiler(t)
	forms := readForms(t, `(eval-and-compile (setv answer 42))`)
	r, err := c.CompileForm(forms[0])
	require.NoError(t, err)
	assert.NotEmpty(t, r.Stmts)
	v, err := c.Context().GlobalEnv().Get("answer")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.(model.Integer).Value().Int64())
}

// ---- module assembly ----

func TestModuleAssemblyOrder(t *testing.T) {
	c := newTestCompiler(t)
	forms := readForms(t, `"A docstring." (setv x 1) (import __future__ [annotations]) (print x)`)
	mod, err := c.CompileModule(forms)
	require.NoError(t, err)

	doc, ok := mod.Body[0].(*hast.ExprStmt)
	require.True(t, ok)
	assert.Equal(t, "A docstring.", doc.X.(*hast.Constant).Value)

	pragma, ok := mod.Body[1].(*hast.ImportFrom)
	require.True(t, ok)
	assert.Equal(t, "__future__", pragma.Module)

	imp, ok := mod.Body[2].(*hast.Import)
	require.True(t, ok)
	assert.Equal(t, RuntimeModule, imp.Names[0].Name)

	_, ok = mod.Body[3].(*hast.Assign)
	assert.True(t, ok)
}

func TestFinalExpressionHandle(t *testing.T) {
	c := newTestCompiler(t)
	forms := readForms(t, `(setv x 1) (+ x 1)`)
	_, err := c.CompileModule(forms)
	require.NoError(t, err)
	_, ok := c.Final().(*hast.BinOp)
	assert.True(t, ok)
}

func TestResultDiscardWarning(t *testing.T) {
	c := newTestCompiler(t)
	var warned []string
	c.Warn = func(sp model.Span, msg string) { warned = append(warned, msg) }

	a := exprResult(&hast.Call{Func: &hast.Name{ID: "f", Ctx: hast.Load}})
	b := exprResult(&hast.Constant{Value: nil})
	joined := c.join(a, b)
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0], "dropped")
	// The dropped call survives as a statement.
	require.Len(t, joined.Stmts, 1)
}

func TestBodyCompositionDoesNotWarn(t *testing.T) {
	c := newTestCompiler(t)
	var warned []string
	c.Warn = func(sp model.Span, msg string) { warned = append(warned, msg) }

	forms := readForms(t, `(do (f x) (setv y 1) (g y))`)
	r, err := c.CompileForm(forms[0])
	require.NoError(t, err)
	assert.Empty(t, warned)
	assert.True(t, r.HasExpr())
}

// bogusForm is a model node the compiler has no lowering for.
type bogusForm struct{}

func (bogusForm) Kind() model.Kind                 { return model.KindSymbol }
func (bogusForm) Span() model.Span                 { return model.Span{} }
func (bogusForm) WithSpan(model.Span) model.Object { return bogusForm{} }
func (bogusForm) Equal(model.Object) bool          { return false }
func (bogusForm) String() string                   { return "bogus" }

func TestInternalErrorKind(t *testing.T) {
	c := newTestCompiler(t)
	_, err := c.CompileForm(bogusForm{})
	require.Error(t, err)
	assert.True(t, IsInternal(err))
	var ce *CompileError
	assert.False(t, errors.As(err, &ce))
}
