// Package scope implements the lookup context templates render against.
//
// A Scope is an immutable frame holding one data value plus private @
// variables, linked to its parent. Push returns a child frame, so a block
// or partial can shadow names without touching the caller's frame.
package scope

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/conneroisu/quilt/internal/syntax"
)

// Scope is one frame of the lookup chain. The zero value is not usable;
// construct with New.
type Scope struct {
	data    any
	private map[string]any
	parent  *Scope
}

// New returns a root scope over data.
func New(data any) *Scope {
	return &Scope{data: data}
}

// Push returns a child scope whose frame holds data.
func (s *Scope) Push(data any) *Scope {
	return &Scope{data: data, parent: s}
}

// PushPrivate is Push with @-variables such as index, key, first and last
// attached to the new frame.
func (s *Scope) PushPrivate(data any, private map[string]any) *Scope {
	return &Scope{data: data, private: private, parent: s}
}

// Data returns the value held by this frame.
func (s *Scope) Data() any {
	return s.data
}

// Parent returns the enclosing frame, or nil at the root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Root returns the outermost frame.
func (s *Scope) Root() *Scope {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// Lookup resolves a path string such as "user.name", "../title", "this" or
// "@index". See LookupPath.
func (s *Scope) Lookup(path string) (any, bool) {
	return s.LookupPath(syntax.ParsePath(path))
}

// LookupPath resolves p against the scope chain.
//
// The first segment is searched for in this frame and then in each parent
// in turn; the remaining segments descend into the value found. Leading
// ../ segments start the search that many frames up. @-variables are
// searched in the private maps the same way.
func (s *Scope) LookupPath(p *syntax.Path) (any, bool) {
	start := s
	for i := 0; i < p.Depth && start.parent != nil; i++ {
		start = start.parent
	}

	if p.Data {
		if len(p.Parts) == 0 {
			return nil, false
		}
		if p.Parts[0] == "root" {
			return descend(start.Root().data, p.Parts[1:])
		}
		for f := start; f != nil; f = f.parent {
			if v, ok := f.private[p.Parts[0]]; ok {
				return descend(v, p.Parts[1:])
			}
		}
		return nil, false
	}

	if p.IsThis() {
		return start.data, start.data != nil
	}

	// Explicit this. and ../ paths pin the frame.
	if p.Depth > 0 || pinned(p.Original) {
		return descend(start.data, p.Parts)
	}

	for f := start; f != nil; f = f.parent {
		if v, ok := field(f.data, p.Parts[0]); ok {
			return descend(v, p.Parts[1:])
		}
	}
	return nil, false
}

// Value is LookupPath without the found flag.
func (s *Scope) Value(p *syntax.Path) any {
	v, _ := s.LookupPath(p)
	return v
}

func pinned(original string) bool {
	return strings.HasPrefix(original, "this.") || strings.HasPrefix(original, "this/") || strings.HasPrefix(original, "./")
}

func descend(v any, parts []string) (any, bool) {
	for _, part := range parts {
		next, ok := field(v, part)
		if !ok {
			return nil, false
		}
		v = next
	}
	return v, true
}

// field returns the named member of v: a map key, an exported struct field
// (matched by name or by yaml/json tag), or a slice index.
func field(v any, name string) (any, bool) {
	if v == nil {
		return nil, false
	}

	switch m := v.(type) {
	case map[string]any:
		val, ok := m[name]
		return val, ok
	case map[string]string:
		val, ok := m[name]
		return val, ok
	case []any:
		return index(len(m), name, func(i int) any { return m[i] })
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Struct:
		return structField(rv, name)
	case reflect.Slice, reflect.Array:
		return index(rv.Len(), name, func(i int) any { return rv.Index(i).Interface() })
	}
	return nil, false
}

func structField(rv reflect.Value, name string) (any, bool) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Name == name || tagName(sf, "yaml") == name || tagName(sf, "json") == name {
			return rv.Field(i).Interface(), true
		}
	}
	m := rv.MethodByName(name)
	if !m.IsValid() && rv.CanAddr() {
		m = rv.Addr().MethodByName(name)
	}
	if m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0].Interface(), true
	}
	return nil, false
}

func tagName(sf reflect.StructField, key string) string {
	tag := sf.Tag.Get(key)
	if tag == "" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}

func index(n int, name string, at func(int) any) (any, bool) {
	i, err := strconv.Atoi(name)
	if err != nil || i < 0 || i >= n {
		return nil, false
	}
	return at(i), true
}
