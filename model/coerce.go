package model

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
)

// Coerce converts an arbitrary host value into a Model object. Scalars map
// to atoms, slices and arrays to Lists, maps to Dicts (keys ordered by
// their printed form so the result is deterministic), nil to the None
// symbol and booleans to the True/False symbols. Existing Objects pass
// through unchanged. Self-referential inputs are detected before traversal
// and rejected.
func Coerce(v any) (Object, error) {
	return coerce(v, make(map[uintptr]bool))
}

// MustCoerce is Coerce for values known to be convertible; it panics on
// failure.
func MustCoerce(v any) Object {
	o, err := Coerce(v)
	if err != nil {
		panic(err)
	}
	return o
}

func coerce(v any, seen map[uintptr]bool) (Object, error) {
	if v == nil {
		return Sym("None"), nil
	}
	switch x := v.(type) {
	case Object:
		return x, nil
	case bool:
		if x {
			return Sym("True"), nil
		}
		return Sym("False"), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return NewInteger(new(big.Int).SetUint64(uint64(x))), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return NewInteger(new(big.Int).SetUint64(x)), nil
	case *big.Int:
		return NewInteger(x), nil
	case float32:
		return NewFloat(float64(x)), nil
	case float64:
		return NewFloat(x), nil
	case complex64:
		return NewComplex(complex128(x)), nil
	case complex128:
		return NewComplex(x), nil
	case string:
		return Str(x), nil
	case []byte:
		return NewBytes(x), nil
	}
	return coerceReflect(reflect.ValueOf(v), seen)
}

func coerceReflect(rv reflect.Value, seen map[uintptr]bool) (Object, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Sym("None"), nil
		}
		if rv.Kind() == reflect.Pointer {
			if err := enter(rv, seen); err != nil {
				return nil, err
			}
			defer leave(rv, seen)
		}
		return coerce(rv.Elem().Interface(), seen)
	case reflect.Slice:
		if rv.IsNil() {
			return NewList(), nil
		}
		if err := enter(rv, seen); err != nil {
			return nil, err
		}
		defer leave(rv, seen)
		fallthrough
	case reflect.Array:
		items := make([]Object, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			o, err := coerce(rv.Index(i).Interface(), seen)
			if err != nil {
				return nil, err
			}
			items = append(items, o)
		}
		return NewList(items...), nil
	case reflect.Map:
		if rv.IsNil() {
			return NewDict(), nil
		}
		if err := enter(rv, seen); err != nil {
			return nil, err
		}
		defer leave(rv, seen)
		type kv struct {
			key, val Object
		}
		pairs := make([]kv, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := coerce(iter.Key().Interface(), seen)
			if err != nil {
				return nil, err
			}
			v, err := coerce(iter.Value().Interface(), seen)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, kv{k, v})
		}
		sort.Slice(pairs, func(i, j int) bool {
			return pairs[i].key.String() < pairs[j].key.String()
		})
		items := make([]Object, 0, 2*len(pairs))
		for _, p := range pairs {
			items = append(items, p.key, p.val)
		}
		return NewDict(items...), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to a model object", rv.Interface())
	}
}

func enter(rv reflect.Value, seen map[uintptr]bool) error {
	p := rv.Pointer()
	if p == 0 {
		return nil
	}
	if seen[p] {
		return fmt.Errorf("cannot coerce self-referential value of type %s", rv.Type())
	}
	seen[p] = true
	return nil
}

func leave(rv reflect.Value, seen map[uintptr]bool) {
	if p := rv.Pointer(); p != 0 {
		delete(seen, p)
	}
}
