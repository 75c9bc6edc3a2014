package mangle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMangleBasics(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"foo", "foo"},
		{"foo-bar", "foo_bar"},
		{"foo-bar?", "is_foo_bar"},
		{"foo?", "is_foo"},
		{"_foo-bar", "_foo_bar"},
		{"__dunder__", "__dunder__"},
		{"foo.bar-baz", "foo.bar_baz"},
		{"foo.bar?", "foo.is_bar"},
		{"*", "lrx_XasteriskX"},
		{"+", "lrx_Xplus_signX"},
		{"foo!", "lrx_fooXexclamation_markX"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Mangle(c.in), "Mangle(%q)", c.in)
	}
}

func TestMangleIdempotent(t *testing.T) {
	inputs := []string{
		"foo", "foo-bar", "foo-bar?", "_leading", "___many", "a.b-c.d?",
		"*", "+", "<=", "->", "foo!bar", "λ", "πδ", "a1", "-", "already_legal",
	}
	for _, in := range inputs {
		once := Mangle(in)
		twice := Mangle(once)
		assert.Equal(t, once, twice, "Mangle not idempotent for %q", in)
	}
}

func TestUnmangleStableUnderRemangle(t *testing.T) {
	inputs := []string{"foo-bar", "foo?", "*", "a.b-c", "_private-name", "<="}
	for _, in := range inputs {
		m := Mangle(in)
		assert.Equal(t, m, Mangle(Unmangle(m)),
			"Mangle(Unmangle(Mangle(%q))) differs", in)
	}
}

func TestUnmangleDecodesNames(t *testing.T) {
	assert.Equal(t, "*", Unmangle("lrx_XasteriskX"))
	assert.Equal(t, "foo-bar", Unmangle("foo_bar"))
	assert.Equal(t, "foo?", Unmangle("is_foo"))
}

func TestMangleLeadingUnderscoresPreserved(t *testing.T) {
	assert.Equal(t, "_is_foo", Mangle("_foo?"))
	assert.Equal(t, "__foo_bar", Mangle("__foo-bar"))
}

func TestManglePreservesDots(t *testing.T) {
	assert.Equal(t, "a.b.c", Mangle("a.b.c"))
	assert.Equal(t, "...", Mangle("..."))
	assert.Equal(t, ".", Mangle("."))
}
