// Package model defines the immutable, span-tagged tree produced by the
// reader and rewritten by the macro expander. Atoms hold scalar values,
// sequences hold ordered children; every node knows where it came from in
// the source text.
package model

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

// Kind enumerates the concrete node categories.
type Kind int

const (
	KindSymbol Kind = iota
	KindKeyword
	KindString
	KindBytes
	KindInteger
	KindFloat
	KindComplex
	KindList
	KindTuple
	KindSet
	KindDict
	KindExpression
	KindFString
	KindFComponent
)

var kindNames = [...]string{
	"Symbol", "Keyword", "String", "Bytes", "Integer", "Float", "Complex",
	"List", "Tuple", "Set", "Dict", "Expression", "FString", "FComponent",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Object is any parsed or synthesized node. Implementations are immutable
// value types; WithSpan returns a copy whose span is filled in from the
// argument only where it was previously absent.
type Object interface {
	Kind() Kind
	Span() Span
	WithSpan(Span) Object
	// Equal is structural and exact-type: sequences of different concrete
	// kinds never compare equal, even with identical children.
	Equal(Object) bool
	String() string
}

// forbiddenSymbolRunes are runes that can never appear in a symbol or
// keyword because the reader assigns them structural meaning.
const forbiddenSymbolRunes = "()[]{};\"'`~"

func checkIdentRun(name string) error {
	if name == "" {
		return fmt.Errorf("empty symbol")
	}
	for _, r := range name {
		if strings.ContainsRune(forbiddenSymbolRunes, r) {
			return fmt.Errorf("symbol %q contains forbidden character %q", name, r)
		}
		if unicode.IsSpace(r) {
			return fmt.Errorf("symbol %q contains whitespace", name)
		}
	}
	return nil
}

func checkSymbolName(name string) error {
	if name == "" {
		return fmt.Errorf("empty symbol")
	}
	// Dotted symbols decompose into independently validated segments.
	// A leading dot run is legal on its own ("." and "...") and before
	// segments (method sugar ".upper", relative modules "..pkg.mod");
	// an empty interior or trailing segment is not.
	rest := strings.TrimLeft(name, ".")
	if rest == "" {
		return nil
	}
	for _, part := range strings.Split(rest, ".") {
		if part == "" {
			return fmt.Errorf("symbol %q has an empty dotted segment", name)
		}
		if err := checkIdentRun(part); err != nil {
			return err
		}
	}
	return nil
}

// Symbol is an identifier atom. Dotted names are permitted; each dotted
// segment is validated independently.
type Symbol struct {
	span Span
	name string
}

// NewSymbol validates name and returns the symbol atom.
func NewSymbol(name string) (Symbol, error) {
	if err := checkSymbolName(name); err != nil {
		return Symbol{}, err
	}
	return Symbol{name: name}, nil
}

// Sym returns a symbol atom, panicking on an invalid name. It is meant for
// names known valid at compile time.
func Sym(name string) Symbol {
	s, err := NewSymbol(name)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Symbol) Kind() Kind              { return KindSymbol }
func (s Symbol) Span() Span              { return s.span }
func (s Symbol) WithSpan(sp Span) Object { s.span = s.span.Merge(sp); return s }
func (s Symbol) Name() string            { return s.name }
func (s Symbol) String() string          { return s.name }

func (s Symbol) Equal(o Object) bool {
	t, ok := o.(Symbol)
	return ok && s.name == t.name
}

// Keyword is a self-evaluating named atom, printed with a leading colon.
// The stored name excludes the colon.
type Keyword struct {
	span Span
	name string
}

// NewKeyword validates name (sans colon) and returns the keyword atom.
func NewKeyword(name string) (Keyword, error) {
	if name != "" {
		if err := checkIdentRun(name); err != nil {
			return Keyword{}, err
		}
	}
	return Keyword{name: name}, nil
}

// Kw returns a keyword atom, panicking on an invalid name.
func Kw(name string) Keyword {
	k, err := NewKeyword(name)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Keyword) Kind() Kind              { return KindKeyword }
func (k Keyword) Span() Span              { return k.span }
func (k Keyword) WithSpan(sp Span) Object { k.span = k.span.Merge(sp); return k }
func (k Keyword) Name() string            { return k.name }
func (k Keyword) String() string          { return ":" + k.name }

func (k Keyword) Equal(o Object) bool {
	t, ok := o.(Keyword)
	return ok && k.name == t.name
}

// String is a text literal atom.
type String struct {
	span  Span
	value string
}

// Str returns a string atom.
func Str(value string) String { return String{value: value} }

func (s String) Kind() Kind              { return KindString }
func (s String) Span() Span              { return s.span }
func (s String) WithSpan(sp Span) Object { s.span = s.span.Merge(sp); return s }
func (s String) Value() string           { return s.value }
func (s String) String() string          { return strconv.Quote(s.value) }

func (s String) Equal(o Object) bool {
	t, ok := o.(String)
	return ok && s.value == t.value
}

// Bytes is a byte-string literal atom. The payload is stored as an
// immutable string; Value copies it out.
type Bytes struct {
	span  Span
	value string
}

// NewBytes returns a bytes atom over a private copy of b.
func NewBytes(b []byte) Bytes { return Bytes{value: string(b)} }

func (b Bytes) Kind() Kind              { return KindBytes }
func (b Bytes) Span() Span              { return b.span }
func (b Bytes) WithSpan(sp Span) Object { b.span = b.span.Merge(sp); return b }
func (b Bytes) Value() []byte           { return []byte(b.value) }
func (b Bytes) String() string          { return "b" + strconv.Quote(b.value) }

func (b Bytes) Equal(o Object) bool {
	t, ok := o.(Bytes)
	return ok && b.value == t.value
}

// Integer is an arbitrary-precision integer atom.
type Integer struct {
	span  Span
	value *big.Int
}

// Int returns an integer atom for a machine integer.
func Int(v int64) Integer { return Integer{value: big.NewInt(v)} }

// NewInteger returns an integer atom over a private copy of v.
func NewInteger(v *big.Int) Integer {
	return Integer{value: new(big.Int).Set(v)}
}

func (i Integer) Kind() Kind              { return KindInteger }
func (i Integer) Span() Span              { return i.span }
func (i Integer) WithSpan(sp Span) Object { i.span = i.span.Merge(sp); return i }
func (i Integer) String() string          { return i.big().String() }

func (i Integer) big() *big.Int {
	if i.value == nil {
		return new(big.Int)
	}
	return i.value
}

// Value returns a copy of the integer payload.
func (i Integer) Value() *big.Int { return new(big.Int).Set(i.big()) }

// Int64 returns the payload as int64 when it fits.
func (i Integer) Int64() (int64, bool) {
	if !i.big().IsInt64() {
		return 0, false
	}
	return i.big().Int64(), true
}

func (i Integer) Equal(o Object) bool {
	t, ok := o.(Integer)
	return ok && i.big().Cmp(t.big()) == 0
}

// Float is a floating-point atom.
type Float struct {
	span  Span
	value float64
}

// NewFloat returns a float atom.
func NewFloat(v float64) Float { return Float{value: v} }

func (f Float) Kind() Kind              { return KindFloat }
func (f Float) Span() Span              { return f.span }
func (f Float) WithSpan(sp Span) Object { f.span = f.span.Merge(sp); return f }
func (f Float) Value() float64          { return f.value }

func (f Float) String() string {
	s := strconv.FormatFloat(f.value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func (f Float) Equal(o Object) bool {
	t, ok := o.(Float)
	return ok && f.value == t.value
}

// Complex is a complex-number atom.
type Complex struct {
	span  Span
	value complex128
}

// NewComplex returns a complex atom.
func NewComplex(v complex128) Complex { return Complex{value: v} }

func (c Complex) Kind() Kind              { return KindComplex }
func (c Complex) Span() Span              { return c.span }
func (c Complex) WithSpan(sp Span) Object { c.span = c.span.Merge(sp); return c }
func (c Complex) Value() complex128       { return c.value }
func (c Complex) String() string          { return strconv.FormatComplex(c.value, 'g', -1, 128) }

func (c Complex) Equal(o Object) bool {
	t, ok := o.(Complex)
	return ok && c.value == t.value
}
