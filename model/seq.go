package model

import "strings"

// Sequence is the shared representation of the ordered container kinds:
// List, Tuple, Set, Dict and Expression. The children are never mutated
// after construction; Concat and Slice build new sequences of the same
// concrete kind as the receiver.
type Sequence struct {
	span  Span
	kind  Kind
	items []Object
}

func newSeq(kind Kind, items []Object) Sequence {
	copied := make([]Object, len(items))
	copy(copied, items)
	return Sequence{kind: kind, items: copied}
}

// NewList returns a List sequence.
func NewList(items ...Object) Sequence { return newSeq(KindList, items) }

// NewTuple returns a Tuple sequence.
func NewTuple(items ...Object) Sequence { return newSeq(KindTuple, items) }

// NewSet returns a Set sequence. Duplicate children are preserved; the
// reader records exactly what was written.
func NewSet(items ...Object) Sequence { return newSeq(KindSet, items) }

// NewDict returns a Dict sequence. Children alternate key, value; an odd
// trailing child is an orphan key and is permitted.
func NewDict(items ...Object) Sequence { return newSeq(KindDict, items) }

// NewExpression returns an Expression sequence, the call-shaped form.
func NewExpression(items ...Object) Sequence { return newSeq(KindExpression, items) }

// Expr builds an Expression from a head symbol name and arguments.
func Expr(head string, args ...Object) Sequence {
	items := make([]Object, 0, len(args)+1)
	items = append(items, Sym(head))
	items = append(items, args...)
	return Sequence{kind: KindExpression, items: items}
}

func (s Sequence) Kind() Kind { return s.kind }
func (s Sequence) Span() Span { return s.span }

func (s Sequence) WithSpan(sp Span) Object {
	s.span = s.span.Merge(sp)
	return s
}

// Len returns the number of children.
func (s Sequence) Len() int { return len(s.items) }

// At returns the i-th child.
func (s Sequence) At(i int) Object { return s.items[i] }

// Items returns a copy of the children.
func (s Sequence) Items() []Object {
	out := make([]Object, len(s.items))
	copy(out, s.items)
	return out
}

// Concat returns a sequence of the receiver's kind holding the receiver's
// children followed by the argument's.
func (s Sequence) Concat(other Sequence) Sequence {
	items := make([]Object, 0, len(s.items)+len(other.items))
	items = append(items, s.items...)
	items = append(items, other.items...)
	return Sequence{kind: s.kind, items: items}
}

// Append returns a sequence of the receiver's kind with extra children
// appended.
func (s Sequence) Append(items ...Object) Sequence {
	out := make([]Object, 0, len(s.items)+len(items))
	out = append(out, s.items...)
	out = append(out, items...)
	return Sequence{kind: s.kind, items: out}
}

// Slice returns the [from, to) sub-sequence, preserving the receiver's
// kind. Bounds are clamped.
func (s Sequence) Slice(from, to int) Sequence {
	if from < 0 {
		from = 0
	}
	if to > len(s.items) {
		to = len(s.items)
	}
	if from > to {
		from = to
	}
	return newSeq(s.kind, s.items[from:to])
}

// Rest returns the sequence without its first child.
func (s Sequence) Rest() Sequence { return s.Slice(1, s.Len()) }

func (s Sequence) Equal(o Object) bool {
	t, ok := o.(Sequence)
	if !ok || s.kind != t.kind || len(s.items) != len(t.items) {
		return false
	}
	for i := range s.items {
		if !s.items[i].Equal(t.items[i]) {
			return false
		}
	}
	return true
}

var seqDelims = map[Kind][2]string{
	KindList:       {"[", "]"},
	KindTuple:      {"#(", ")"},
	KindSet:        {"#{", "}"},
	KindDict:       {"{", "}"},
	KindExpression: {"(", ")"},
}

func (s Sequence) String() string {
	d := seqDelims[s.kind]
	parts := make([]string, len(s.items))
	for i, it := range s.items {
		parts[i] = it.String()
	}
	return d[0] + strings.Join(parts, " ") + d[1]
}

// FString is an interpolated string literal: a sequence of String parts
// and FComponent interpolations. Brackets records the delimiter of a
// bracketed literal, or "" for a quoted one.
type FString struct {
	span     Span
	items    []Object
	Brackets string
}

// NewFString returns an interpolated string node.
func NewFString(items []Object, brackets string) FString {
	copied := make([]Object, len(items))
	copy(copied, items)
	return FString{items: copied, Brackets: brackets}
}

func (f FString) Kind() Kind { return KindFString }
func (f FString) Span() Span { return f.span }

func (f FString) WithSpan(sp Span) Object {
	f.span = f.span.Merge(sp)
	return f
}

func (f FString) Len() int        { return len(f.items) }
func (f FString) At(i int) Object { return f.items[i] }

func (f FString) Items() []Object {
	out := make([]Object, len(f.items))
	copy(out, f.items)
	return out
}

func (f FString) Equal(o Object) bool {
	t, ok := o.(FString)
	if !ok || f.Brackets != t.Brackets || len(f.items) != len(t.items) {
		return false
	}
	for i := range f.items {
		if !f.items[i].Equal(t.items[i]) {
			return false
		}
	}
	return true
}

func (f FString) String() string {
	var b strings.Builder
	b.WriteString("f\"")
	for _, it := range f.items {
		switch v := it.(type) {
		case String:
			b.WriteString(v.Value())
		default:
			b.WriteString(it.String())
		}
	}
	b.WriteString("\"")
	return b.String()
}

// FComponent is one interpolation inside an FString. The first child is
// the interpolated form; any further children are the format-spec parts
// (themselves String or FComponent nodes). Conversion is 0 or one of
// 'r', 's', 'a'.
type FComponent struct {
	span       Span
	items      []Object
	Conversion rune
}

// NewFComponent returns an interpolation node.
func NewFComponent(items []Object, conversion rune) FComponent {
	copied := make([]Object, len(items))
	copy(copied, items)
	return FComponent{items: copied, Conversion: conversion}
}

func (f FComponent) Kind() Kind { return KindFComponent }
func (f FComponent) Span() Span { return f.span }

func (f FComponent) WithSpan(sp Span) Object {
	f.span = f.span.Merge(sp)
	return f
}

func (f FComponent) Len() int        { return len(f.items) }
func (f FComponent) At(i int) Object { return f.items[i] }

// Form returns the interpolated form, the first child.
func (f FComponent) Form() Object { return f.items[0] }

func (f FComponent) Items() []Object {
	out := make([]Object, len(f.items))
	copy(out, f.items)
	return out
}

func (f FComponent) Equal(o Object) bool {
	t, ok := o.(FComponent)
	if !ok || f.Conversion != t.Conversion || len(f.items) != len(t.items) {
		return false
	}
	for i := range f.items {
		if !f.items[i].Equal(t.items[i]) {
			return false
		}
	}
	return true
}

func (f FComponent) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, it := range f.items {
		if i == 1 {
			b.WriteString(" :")
		}
		b.WriteString(it.String())
	}
	if f.Conversion != 0 {
		b.WriteString("!")
		b.WriteRune(f.Conversion)
	}
	b.WriteString("}")
	return b.String()
}
