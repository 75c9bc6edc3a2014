package hast

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"
)

// Dump renders a host tree as an indented literal, for diagnostics and
// tests. Spans and nil fields are omitted to keep the output comparable.
func Dump(n Node) string {
	var b strings.Builder
	dumpValue(&b, reflect.ValueOf(n), 0)
	return b.String()
}

func dumpValue(b *strings.Builder, v reflect.Value, depth int) {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		dumpValue(b, v.Elem(), depth)
	case reflect.Struct:
		if v.Type() == bigIntType {
			i := v.Interface().(big.Int)
			b.WriteString(i.String())
			return
		}
		dumpStruct(b, v, depth)
	case reflect.Slice:
		if v.Len() == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			b.WriteString("\n")
			indent(b, depth+1)
			dumpValue(b, v.Index(i), depth+1)
		}
		b.WriteString("]")
	case reflect.String:
		fmt.Fprintf(b, "%q", v.String())
	default:
		fmt.Fprintf(b, "%v", v.Interface())
	}
}

var bigIntType = reflect.TypeOf(big.Int{})

func dumpStruct(b *strings.Builder, v reflect.Value, depth int) {
	t := v.Type()
	b.WriteString(t.Name())
	b.WriteString("(")
	wrote := false
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Name == "Span" {
			continue
		}
		fv := v.Field(i)
		if isEmpty(fv) {
			continue
		}
		b.WriteString("\n")
		indent(b, depth+1)
		b.WriteString(f.Name)
		b.WriteString("=")
		dumpValue(b, fv, depth+1)
		wrote = true
	}
	if wrote {
		b.WriteString("\n")
		indent(b, depth)
	}
	b.WriteString(")")
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		return v.IsNil()
	case reflect.Slice:
		return v.Len() == 0
	case reflect.String:
		return v.Len() == 0
	case reflect.Int, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Bool:
		return !v.Bool()
	}
	return false
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}
