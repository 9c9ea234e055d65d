// Package ctyconv converts between template data (plain Go values decoded
// from YAML or JSON) and cty values used by HCL data files and helper
// modules.
package ctyconv

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// ToGo converts a cty value to its natural Go form: string, bool, int or
// float64, []any and map[string]any. Null and unknown values become nil.
func ToGo(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	v, _ = v.Unmark()

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			gv, err := ToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			k, ev := it.Element()
			gv, err := ToGo(ev)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", k.AsString(), err)
			}
			out[k.AsString()] = gv
		}
		return out, nil
	}

	return nil, fmt.Errorf("unsupported cty type %s", ty.FriendlyName())
}

// FromGo converts an arbitrary Go value to cty. Maps and structs become
// objects, slices become tuples, and anything else that is not a scalar is
// rendered with fmt.
func FromGo(v any) cty.Value {
	return fromValue(reflect.ValueOf(v))
}

func fromValue(rv reflect.Value) cty.Value {
	if !rv.IsValid() {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return cty.NullVal(cty.DynamicPseudoType)
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return cty.StringVal(rv.String())
	case reflect.Bool:
		return cty.BoolVal(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cty.NumberIntVal(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cty.NumberUIntVal(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return cty.NumberFloatVal(rv.Float())

	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, rv.Len())
		for i := range elems {
			elems[i] = fromValue(rv.Index(i))
		}
		return cty.TupleVal(elems)

	case reflect.Map:
		if rv.Len() == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, rv.Len())
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })
		for _, k := range keys {
			attrs[fmt.Sprint(k.Interface())] = fromValue(rv.MapIndex(k))
		}
		return cty.ObjectVal(attrs)

	case reflect.Struct:
		attrs := map[string]cty.Value{}
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			if sf := t.Field(i); sf.IsExported() {
				attrs[sf.Name] = fromValue(rv.Field(i))
			}
		}
		if len(attrs) == 0 {
			return cty.EmptyObjectVal
		}
		return cty.ObjectVal(attrs)
	}

	return cty.StringVal(fmt.Sprint(rv.Interface()))
}
