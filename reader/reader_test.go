package reader

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergev/larch/model"
)

func readAll(t *testing.T, src string) []model.Object {
	t.Helper()
	forms, err := ReadString(src, "<test>")
	if err != nil {
		t.Fatalf("ReadString(%q): %v", src, err)
	}
	return forms
}

func readOne(t *testing.T, src string) model.Object {
	t.Helper()
	forms := readAll(t, src)
	if len(forms) != 1 {
		t.Fatalf("ReadString(%q): expected 1 form, got %d", src, len(forms))
	}
	return forms[0]
}

func TestReadCallForm(t *testing.T) {
	form := readOne(t, "(foo bar)")
	expr, ok := form.(model.Sequence)
	require.True(t, ok, "expected a sequence, got %T", form)
	require.Equal(t, model.KindExpression, expr.Kind())
	require.Equal(t, 2, expr.Len())
	assert.True(t, expr.At(0).Equal(model.Sym("foo")))
	assert.True(t, expr.At(1).Equal(model.Sym("bar")))

	span := expr.Span()
	assert.Equal(t, 1, span.StartLine)
	assert.Equal(t, 1, span.StartCol)
	assert.Equal(t, 1, span.EndLine)
	assert.Equal(t, 9, span.EndCol)
}

func TestReadIntegerLiteral(t *testing.T) {
	form := readOne(t, "42")
	assert.True(t, form.Equal(model.Int(42)))
}

func TestReadAtoms(t *testing.T) {
	cases := []struct {
		src  string
		want model.Object
	}{
		{"foo", model.Sym("foo")},
		{"foo.bar", model.Sym("foo.bar")},
		{":kw", model.Kw("kw")},
		{"-17", model.Int(-17)},
		{"0x10", model.Int(16)},
		{"0b101", model.Int(5)},
		{"1_000", model.Int(1000)},
		{"3.25", model.NewFloat(3.25)},
		{"6.02e23", model.NewFloat(6.02e23)},
		{"2j", model.NewComplex(complex(0, 2))},
		{"1+2j", model.NewComplex(complex(1, 2))},
		{"1/3", model.Expr("fraction", model.Int(1), model.Int(3))},
		{"True", model.Sym("True")},
		{"...", model.Sym("...")},
	}
	for _, c := range cases {
		form := readOne(t, c.src)
		assert.True(t, form.Equal(c.want), "read %q = %v, want %v", c.src, form, c.want)
	}
}

func TestMalformedNumberIsImmediateError(t *testing.T) {
	_, err := ReadString("12abc", "<test>")
	require.Error(t, err)
	assert.False(t, IsIncomplete(err))
	assert.Contains(t, err.Error(), "malformed number")
}

func TestReadCollections(t *testing.T) {
	cases := []struct {
		src  string
		want model.Object
	}{
		{"[1 2]", model.NewList(model.Int(1), model.Int(2))},
		{"#(1 2)", model.NewTuple(model.Int(1), model.Int(2))},
		{"#{1 2}", model.NewSet(model.Int(1), model.Int(2))},
		{"{:a 1}", model.NewDict(model.Kw("a"), model.Int(1))},
		{"{:a 1 :orphan}", model.NewDict(model.Kw("a"), model.Int(1), model.Kw("orphan"))},
		{"()", model.NewExpression()},
	}
	for _, c := range cases {
		form := readOne(t, c.src)
		assert.True(t, form.Equal(c.want), "read %q = %v, want %v", c.src, form, c.want)
	}
}

func TestCommasAreWhitespace(t *testing.T) {
	form := readOne(t, "[1, 2, 3]")
	assert.True(t, form.Equal(model.NewList(model.Int(1), model.Int(2), model.Int(3))))
}

func TestQuoteForms(t *testing.T) {
	cases := []struct {
		src  string
		head string
	}{
		{"'foo", "quote"},
		{"`foo", "quasiquote"},
		{"~foo", "unquote"},
		{"~@foo", "unquote-splice"},
		{"#* args", "unpack-iterable"},
		{"#** kwargs", "unpack-mapping"},
	}
	for _, c := range cases {
		form := readOne(t, c.src)
		expr, ok := form.(model.Sequence)
		require.True(t, ok, "read %q: expected sequence", c.src)
		require.Equal(t, 2, expr.Len(), "read %q", c.src)
		assert.True(t, expr.At(0).Equal(model.Sym(c.head)), "read %q: head %v", c.src, expr.At(0))
	}
}

func TestDiscardForm(t *testing.T) {
	forms := readAll(t, "1 #_(this is dropped) 2")
	require.Len(t, forms, 2)
	assert.True(t, forms[0].Equal(model.Int(1)))
	assert.True(t, forms[1].Equal(model.Int(2)))
}

func TestAnnotationShorthand(t *testing.T) {
	form := readOne(t, "#^int x")
	want := model.Expr("annotate", model.Sym("x"), model.Sym("int"))
	assert.True(t, form.Equal(want), "got %v", form)
}

func TestComments(t *testing.T) {
	forms := readAll(t, "1 ; trailing\n; full line\n2")
	require.Len(t, forms, 2)
}

func TestShebang(t *testing.T) {
	forms, err := ReadString("#!/usr/bin/env larch\n42", "<test>", SkipShebang())
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.True(t, forms[0].Equal(model.Int(42)))
}

func TestPrematureEOFVersusMalformed(t *testing.T) {
	incomplete := []string{"(foo", "[1 2", "\"abc", "(foo (bar)", "#[delim[text", "'"}
	for _, src := range incomplete {
		_, err := ReadString(src, "<test>")
		require.Error(t, err, "src %q", src)
		assert.True(t, IsIncomplete(err), "src %q should be incomplete, got %v", src, err)
	}

	malformed := []string{")", "]", "12abc", "#woozle", "\"\\q\""}
	for _, src := range malformed {
		_, err := ReadString(src, "<test>")
		require.Error(t, err, "src %q", src)
		assert.False(t, IsIncomplete(err), "src %q should be malformed, got %v", src, err)
	}
}

func TestReaderMacroDispatch(t *testing.T) {
	table := MacroTable{
		"twice": func(r *Reader) (model.Object, error) {
			form, err := r.ReadForm()
			if err != nil {
				return nil, err
			}
			return model.Expr("twice-of", form), nil
		},
	}
	forms, err := ReadString("#twice 7", "<test>", WithMacros(table))
	require.NoError(t, err)
	require.Len(t, forms, 1)
	assert.True(t, forms[0].Equal(model.Expr("twice-of", model.Int(7))))
}

func TestUndefinedReaderMacro(t *testing.T) {
	_, err := ReadString("#nope x", "<test>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined reader macro")
}

func TestRestrictedModeSkipsUndefinedDispatch(t *testing.T) {
	forms, err := ReadString("1 #nope 2", "<test>", Restricted())
	require.NoError(t, err)
	// The dispatch itself is dropped; the rest of the stream is intact.
	require.Len(t, forms, 2)
	assert.True(t, forms[0].Equal(model.Int(1)))
	assert.True(t, forms[1].Equal(model.Int(2)))
}

func TestLazyIsSinglePassAndOrdered(t *testing.T) {
	r := New(strings.NewReader("1 2 3"), "<test>")
	lazy := r.Forms()
	first, err := lazy.Next()
	require.NoError(t, err)
	assert.True(t, first.Equal(model.Int(1)))
	rest, err := lazy.All()
	require.NoError(t, err)
	require.Len(t, rest, 2)
	_, err = lazy.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSpansRoundTrip(t *testing.T) {
	src := "(foo [1 2]\n  {:a \"x\"})"
	form := readOne(t, src)
	span := form.Span()
	require.False(t, span.IsZero())

	lines := strings.Split(src, "\n")
	var b strings.Builder
	for ln := span.StartLine; ln <= span.EndLine; ln++ {
		text := lines[ln-1]
		start, end := 0, len(text)
		if ln == span.StartLine {
			start = span.StartCol - 1
		}
		if ln == span.EndLine {
			end = span.EndCol
		}
		b.WriteString(text[start:end])
		if ln != span.EndLine {
			b.WriteString("\n")
		}
	}
	again := readOne(t, b.String())
	assert.True(t, again.Equal(form), "source slice %q reparses differently", b.String())
}

func TestNestedSpansOrdered(t *testing.T) {
	form := readOne(t, "(foo (bar baz))")
	outer := form.(model.Sequence)
	inner := outer.At(1).(model.Sequence)
	assert.True(t, outer.Span().Before(inner.Span()))
	assert.GreaterOrEqual(t, inner.Span().EndCol, inner.Span().StartCol)
}
