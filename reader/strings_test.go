package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sergev/larch/model"
)

func TestPlainStrings(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"\x41\x42"`, "AB"},
		{`"\xff"`, "ÿ"},
		{`"\377"`, "ÿ"},
		{`"é"`, "é"},
		{`"\U0001F600"`, "\U0001F600"},
		{`"\101"`, "A"},
		{`"say \"hi\""`, `say "hi"`},
		{`"line \
continued"`, "line continued"},
	}
	for _, c := range cases {
		form := readOne(t, c.src)
		s, ok := form.(model.String)
		require.True(t, ok, "read %q: got %T", c.src, form)
		assert.Equal(t, c.want, s.Value(), "read %q", c.src)
	}
}

func TestRawStrings(t *testing.T) {
	form := readOne(t, `r"a\nb"`)
	s := form.(model.String)
	assert.Equal(t, `a\nb`, s.Value())

	// A backslash still prevents the quote from closing the literal.
	form = readOne(t, `r"a\"b"`)
	s = form.(model.String)
	assert.Equal(t, `a\"b`, s.Value())
}

func TestByteStrings(t *testing.T) {
	form := readOne(t, `b"\x00\xff"`)
	bs, ok := form.(model.Bytes)
	require.True(t, ok, "got %T", form)
	assert.Equal(t, []byte{0x00, 0xff}, bs.Value())

	form = readOne(t, `b"\377"`)
	bs = form.(model.Bytes)
	assert.Equal(t, []byte{0xff}, bs.Value())

	_, err := ReadString(`b"é"`, "<test>")
	require.Error(t, err)
	assert.False(t, IsIncomplete(err))
}

func TestStringPrefixErrors(t *testing.T) {
	for _, src := range []string{`bf"x"`, `bb"x"`, `rr"x"`} {
		_, err := ReadString(src, "<test>")
		require.Error(t, err, "src %q", src)
	}
	// A non-prefix identifier run before a quote is a separate atom.
	forms := readAll(t, `abc"x"`)
	require.Len(t, forms, 2)
	assert.True(t, forms[0].Equal(model.Sym("abc")))
}

func fstr(t *testing.T, src string) model.FString {
	t.Helper()
	form := readOne(t, src)
	fs, ok := form.(model.FString)
	require.True(t, ok, "read %q: got %T", src, form)
	return fs
}

func TestFStringBasic(t *testing.T) {
	fs := fstr(t, `f"x = {x}"`)
	items := fs.Items()
	require.Len(t, items, 2)
	assert.True(t, items[0].Equal(model.Str("x = ")))
	comp, ok := items[1].(model.FComponent)
	require.True(t, ok, "got %T", items[1])
	assert.True(t, comp.Form().Equal(model.Sym("x")))
	assert.Equal(t, rune(0), comp.Conversion)
}

func TestFStringConversionAndSpec(t *testing.T) {
	fs := fstr(t, `f"{x !r}"`)
	comp := fs.Items()[0].(model.FComponent)
	assert.Equal(t, 'r', comp.Conversion)

	fs = fstr(t, `f"{total :>10.2f}"`)
	comp = fs.Items()[0].(model.FComponent)
	require.Equal(t, 2, comp.Len())
	assert.True(t, comp.At(1).Equal(model.Str(">10.2f")))

	fs = fstr(t, `f"{x !s :^8}"`)
	comp = fs.Items()[0].(model.FComponent)
	assert.Equal(t, 's', comp.Conversion)
	assert.True(t, comp.At(1).Equal(model.Str("^8")))
}

func TestFStringNestedSpec(t *testing.T) {
	fs := fstr(t, `f"{value :{width}}"`)
	comp := fs.Items()[0].(model.FComponent)
	require.Equal(t, 2, comp.Len())
	inner, ok := comp.At(1).(model.FComponent)
	require.True(t, ok, "got %T", comp.At(1))
	assert.True(t, inner.Form().Equal(model.Sym("width")))
}

func TestFStringDebugShorthand(t *testing.T) {
	fs := fstr(t, `f"{x =}"`)
	items := fs.Items()
	require.Len(t, items, 2)
	text, ok := items[0].(model.String)
	require.True(t, ok, "got %T", items[0])
	assert.Contains(t, text.Value(), "x")
	assert.Contains(t, text.Value(), "=")
	comp := items[1].(model.FComponent)
	assert.Equal(t, 'r', comp.Conversion)

	// An explicit conversion suppresses the repr default.
	fs = fstr(t, `f"{x = !s}"`)
	comp = fs.Items()[1].(model.FComponent)
	assert.Equal(t, 's', comp.Conversion)
}

func TestFStringBraceEscapes(t *testing.T) {
	fs := fstr(t, `f"{{literal}}"`)
	items := fs.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].Equal(model.Str("{literal}")))

	_, err := ReadString(`f"}"`, "<test>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single '}'")
}

func TestFStringInterpolatedForm(t *testing.T) {
	fs := fstr(t, `f"result: {(+ 1 2)}"`)
	items := fs.Items()
	require.Len(t, items, 2)
	comp := items[1].(model.FComponent)
	want := model.Expr("+", model.Int(1), model.Int(2))
	assert.True(t, comp.Form().Equal(want))
}

func TestNestedFStrings(t *testing.T) {
	fs := fstr(t, `f"outer {(str f"inner {x}")}"`)
	items := fs.Items()
	require.Len(t, items, 2)
	comp := items[1].(model.FComponent)
	call, ok := comp.Form().(model.Sequence)
	require.True(t, ok, "got %T", comp.Form())
	inner, ok := call.At(1).(model.FString)
	require.True(t, ok, "got %T", call.At(1))
	assert.Len(t, inner.Items(), 2)
}

func TestBracketStrings(t *testing.T) {
	form := readOne(t, "#[[no \\escapes \"here\"]]")
	s, ok := form.(model.String)
	require.True(t, ok, "got %T", form)
	assert.Equal(t, `no \escapes "here"`, s.Value())

	form = readOne(t, "#[end[contains ]] inside]end]")
	s = form.(model.String)
	assert.Equal(t, "contains ]] inside", s.Value())
}

func TestBracketFString(t *testing.T) {
	form := readOne(t, "#[f[hello {name}]f]")
	fs, ok := form.(model.FString)
	require.True(t, ok, "got %T", form)
	assert.Equal(t, "f", fs.Brackets)
	items := fs.Items()
	require.Len(t, items, 2)
	assert.True(t, items[0].Equal(model.Str("hello ")))
	comp := items[1].(model.FComponent)
	assert.True(t, comp.Form().Equal(model.Sym("name")))
}

func TestBracketStringDelimiterErrors(t *testing.T) {
	for _, src := range []string{"#[a]b[x]a]b]", "#[a\nb[x]]"} {
		_, err := ReadString(src, "<test>")
		require.Error(t, err, "src %q", src)
		assert.False(t, IsIncomplete(err), "src %q", src)
	}
}
