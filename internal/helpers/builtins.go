package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/aymerick/raymond"

	"github.com/conneroisu/quilt/internal/assets"
	"github.com/conneroisu/quilt/internal/scope"
)

var builtinHelpers = map[string]Func{
	"if":     ifHelper,
	"unless": unlessHelper,
	"each":   eachHelper,
	"with":   withHelper,
	"log":    logHelper,
	"url":    urlHelper,
	"css":    cssHelper,
	"js":     jsHelper,
	"img":    imgHelper,
}

// Str formats v for output. Values raymond cannot print are formatted with
// fmt instead of panicking.
func Str(v any) (s string) {
	defer func() {
		if recover() != nil {
			s = fmt.Sprint(v)
		}
	}()
	return raymond.Str(v)
}

// Truthy reports whether v counts as true in a conditional. With
// includeZero, numeric zero is true.
func Truthy(v any, includeZero bool) bool {
	if includeZero {
		if _, ok := toFloat(v); ok {
			return true
		}
	}
	return raymond.IsTrue(v)
}

func ifHelper(s *scope.Scope, value any, opts *Options) (any, error) {
	if Truthy(value, opts.HashBool("includeZero")) {
		return raymond.SafeString(opts.Fn.Call(s)), nil
	}
	return raymond.SafeString(opts.Inverse.Call(s)), nil
}

func unlessHelper(s *scope.Scope, value any, opts *Options) (any, error) {
	swapped := *opts
	swapped.Fn, swapped.Inverse = opts.Inverse, opts.Fn
	return ifHelper(s, value, &swapped)
}

// eachHelper iterates slices, arrays and maps. Map keys are visited in
// sorted order. Each iteration pushes the element with @index, @key,
// @first and @last set. A start hash argument skips leading elements of a
// slice.
func eachHelper(s *scope.Scope, value any, opts *Options) (any, error) {
	if opts.Fn == nil {
		return nil, fmt.Errorf("each must be used as a block")
	}
	start := 0
	if n, ok := toInt(opts.Hash["start"]); ok && n > 0 {
		start = n
	}

	var b strings.Builder
	count := 0

	rv := reflect.ValueOf(value)
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && !rv.IsNil() {
		rv = rv.Elem()
	}

	switch {
	case !rv.IsValid():
	case rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array:
		n := rv.Len()
		for i := start; i < n; i++ {
			b.WriteString(opts.Fn(s.PushPrivate(rv.Index(i).Interface(), map[string]any{
				"key":   i,
				"index": i,
				"first": i == 0,
				"last":  i == n-1,
			})))
			count++
		}
	case rv.Kind() == reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })
		for i, k := range keys {
			index := start + i
			b.WriteString(opts.Fn(s.PushPrivate(rv.MapIndex(k).Interface(), map[string]any{
				"key":   k.Interface(),
				"index": index,
				"first": index == 0,
				"last":  i == len(keys)-1,
			})))
			count++
		}
	}

	if count == 0 {
		return raymond.SafeString(opts.Inverse.Call(s)), nil
	}
	return raymond.SafeString(b.String()), nil
}

func withHelper(s *scope.Scope, value any, opts *Options) (any, error) {
	if raymond.IsTrue(value) {
		return raymond.SafeString(opts.Fn.Call(s.Push(value))), nil
	}
	return raymond.SafeString(opts.Inverse.Call(s)), nil
}

// logHelper logs its argument, or with writeToDom=true prints it as JSON.
func logHelper(_ *scope.Scope, value any, opts *Options) (any, error) {
	if opts.HashBool("writeToDom") {
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	opts.logger().Info(context.Background(), "Template log", "value", value, "template", opts.BaseAddress)
	return nil, nil
}

func urlHelper(_ *scope.Scope, value any, opts *Options) (any, error) {
	_, href := assets.ResolveURL(Str(value), opts.Location(), opts.HashString("base"), opts.HashBool("forceAbsolute"))
	return href, nil
}

// assetHelper records value in the render's manifest and returns the tag
// referencing it. Hash entries other than the control keys become
// attributes.
func assetHelper(kind assets.Kind, value any, opts *Options) (any, error) {
	ref := Str(value)
	if ref == "" {
		return nil, fmt.Errorf("%s: missing url", kind)
	}

	r := assets.Resource{Kind: kind, URL: ref, Attrs: attrs(opts.Hash)}
	r.Path, r.Href = assets.ResolveURL(ref, opts.Location(), opts.HashString("base"), opts.HashBool("forceAbsolute"))
	r.Remote = r.Path == ""

	// Stylesheets in another language are linked by their compiled name.
	if kind == assets.CSS && !r.Remote {
		if ext := path.Ext(r.Href); ext != "" && ext != ".css" {
			r.Href = strings.TrimSuffix(r.Href, ext) + ".css"
		}
	}

	if opts.Resources != nil {
		opts.Resources.Add(r)
	}
	if opts.HashBool("autoAdjustPos") {
		return nil, nil
	}
	return raymond.SafeString(assets.Tag(r)), nil
}

func cssHelper(_ *scope.Scope, value any, opts *Options) (any, error) {
	return assetHelper(assets.CSS, value, opts)
}

func jsHelper(_ *scope.Scope, value any, opts *Options) (any, error) {
	return assetHelper(assets.JS, value, opts)
}

func imgHelper(_ *scope.Scope, value any, opts *Options) (any, error) {
	return assetHelper(assets.Img, value, opts)
}

func attrs(hash map[string]any) map[string]string {
	var out map[string]string
	for k, v := range hash {
		if assets.IsControlKey(k) {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(hash))
		}
		out[k] = Str(v)
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
