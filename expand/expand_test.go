package expand

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergev/larch/model"
	"github.com/sergev/larch/reader"
)

func readForm(t *testing.T, src string) model.Object {
	t.Helper()
	forms, err := reader.ReadString(src, "<test>")
	require.NoError(t, err)
	require.Len(t, forms, 1)
	return forms[0]
}

func expandForm(t *testing.T, c *Context, src string) model.Object {
	t.Helper()
	out, err := c.Expand(readForm(t, src))
	require.NoError(t, err)
	obj, ok := out.(model.Object)
	require.True(t, ok, "expansion produced %T", out)
	return obj
}

func TestExpandNonMacroFormsUntouched(t *testing.T) {
	c := NewContext("test")
	form := readForm(t, "(frobnicate 1 2)")
	out, err := c.Expand(form)
	require.NoError(t, err)
	assert.True(t, out.(model.Object).Equal(form))
}

func TestBuiltinWhen(t *testing.T) {
	c := NewContext("test")
	out := expandForm(t, c, "(when flag (go) (stop))")
	want := readForm(t, "(if flag (do (go) (stop)) None)")
	assert.True(t, out.Equal(want), "got %v", out)
}

func TestBuiltinCond(t *testing.T) {
	c := NewContext("test")
	out := expandForm(t, c, "(cond a 1 b 2)")
	want := readForm(t, "(if a 1 (if b 2 None))")
	assert.True(t, out.Equal(want), "got %v", out)
}

func TestThreading(t *testing.T) {
	c := NewContext("test")
	out := expandForm(t, c, "(-> x (f a) g)")
	want := readForm(t, "(g (f x a))")
	assert.True(t, out.Equal(want), "got %v", out)

	out = expandForm(t, c, "(->> x (f a))")
	want = readForm(t, "(f a x)")
	assert.True(t, out.Equal(want), "got %v", out)
}

func TestDefmacroAndExpansion(t *testing.T) {
	c := NewContext("test")
	def := readForm(t, "(defmacro double [x] `(+ ~x ~x))").(model.Sequence)
	require.NoError(t, c.DefineMacroForm(def))

	out := expandForm(t, c, "(double (cost))")
	want := readForm(t, "(+ (cost) (cost))")
	assert.True(t, out.Equal(want), "got %v", out)
}

func TestMacroRestParameter(t *testing.T) {
	c := NewContext("test")
	def := readForm(t, "(defmacro progn [#* body] `(do ~@body))").(model.Sequence)
	require.NoError(t, c.DefineMacroForm(def))

	out := expandForm(t, c, "(progn (a) (b) (c))")
	want := readForm(t, "(do (a) (b) (c))")
	assert.True(t, out.Equal(want), "got %v", out)
}

func TestMacroComputesAtCompileTime(t *testing.T) {
	c := NewContext("test")
	def := readForm(t, "(defmacro add-consts [a b] (+ a b))").(model.Sequence)
	require.NoError(t, c.DefineMacroForm(def))

	out := expandForm(t, c, "(add-consts 2 3)")
	assert.True(t, out.Equal(model.Int(5)), "got %v", out)
}

func TestMacroDefinedInTermsOfMacro(t *testing.T) {
	c := NewContext("test")
	first := readForm(t, "(defmacro base [x] `(f ~x))").(model.Sequence)
	require.NoError(t, c.DefineMacroForm(first))
	second := readForm(t, "(defmacro wrap [x] `(base ~x))").(model.Sequence)
	require.NoError(t, c.DefineMacroForm(second))

	// Fixpoint expansion reaches through both rewrites.
	out := expandForm(t, c, "(wrap y)")
	want := readForm(t, "(f y)")
	assert.True(t, out.Equal(want), "got %v", out)
}

func TestExpansionStepCap(t *testing.T) {
	c := NewContext("test")
	c.DefineMacro("loop", func(c *Context, form model.Sequence) (any, error) {
		return form, nil
	})
	_, err := c.Expand(readForm(t, "(loop)"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixpoint")
}

func TestMacroErrorCarriesCallSite(t *testing.T) {
	c := NewContext("test")
	boom := errors.New("boom")
	c.DefineMacro("bad", func(c *Context, form model.Sequence) (any, error) {
		return nil, boom
	})
	_, err := c.Expand(readForm(t, "(bad 1)"))
	require.Error(t, err)
	var ee *Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "bad", ee.Name)
	assert.False(t, ee.Span.IsZero())
	assert.ErrorIs(t, err, boom)
}

func TestLookupPrecedence(t *testing.T) {
	c := NewContext("test")
	mk := func(tag string) Macro {
		return func(c *Context, form model.Sequence) (any, error) {
			return model.Str(tag), nil
		}
	}

	c.Macros["m"] = mk("module")
	c.PushMacroScope()
	c.DefineMacro("m", mk("local"))
	out := expandForm(t, c, "(m)")
	assert.True(t, out.Equal(model.Str("local")))

	c.RequireMacro("m", mk("one-shot"), true)
	out = expandForm(t, c, "(m)")
	assert.True(t, out.Equal(model.Str("one-shot")))
	// A one-shot import is consumed by its first use.
	out = expandForm(t, c, "(m)")
	assert.True(t, out.Equal(model.Str("local")))

	c.PopMacroScope()
	out = expandForm(t, c, "(m)")
	assert.True(t, out.Equal(model.Str("module")))

	// A builtin name is shadowed by a module macro of the same name.
	c.Macros["when"] = mk("module")
	out = expandForm(t, c, "(when 1 2)")
	assert.True(t, out.Equal(model.Str("module")))
}

func TestDottedHeadJoinsQualifiedKey(t *testing.T) {
	c := NewContext("test")
	c.RequireMacro("helpers.twice", func(c *Context, form model.Sequence) (any, error) {
		return model.Expr("*", model.Int(2), form.At(1)), nil
	}, false)

	out := expandForm(t, c, "(helpers.twice n)")
	want := readForm(t, "(* 2 n)")
	assert.True(t, out.Equal(want), "got %v", out)
}

func TestPeriodsRejectedInMacroNames(t *testing.T) {
	c := NewContext("test")
	def := readForm(t, "(defmacro a.b [] 1)").(model.Sequence)
	err := c.DefineMacroForm(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "periods")
}

func TestGensymUnique(t *testing.T) {
	c := NewContext("test")
	a := c.Gensym("tmp")
	b := c.Gensym("tmp")
	assert.NotEqual(t, a.Name(), b.Name())
}

func TestExpandedSpanInheritsCallSite(t *testing.T) {
	c := NewContext("test")
	c.DefineMacro("unit", func(c *Context, form model.Sequence) (any, error) {
		// Constructed nodes carry no span of their own.
		return model.Expr("one"), nil
	})

	call := readForm(t, "(unit)")
	out, err := c.Expand(call)
	require.NoError(t, err)
	assert.Equal(t, call.Span(), out.(model.Object).Span())

	// A quasiquoted template keeps the spans attached where it was
	// written; only spanless nodes inherit the call site.
	def := readForm(t, "(defmacro wrap [x] `(w ~x))").(model.Sequence)
	require.NoError(t, c.DefineMacroForm(def))
	inner := readForm(t, "(wrap marker)")
	out, err = c.Expand(inner)
	require.NoError(t, err)
	seq := out.(model.Sequence)
	arg := seq.At(1)
	assert.Equal(t, inner.(model.Sequence).At(1).Span(), arg.Span())
}
