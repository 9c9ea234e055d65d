// Package helpers defines the helper and filter calling convention, the
// registry of named implementations and the builtin set.
//
// A helper receives the current scope, its first positional argument and
// an Options value describing the call. Block helpers render their body
// through Options.Fn and their else branch through Options.Inverse, with
// whatever scope they choose. A result of type raymond.SafeString is
// written without escaping.
package helpers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/conneroisu/quilt/internal/assets"
	"github.com/conneroisu/quilt/internal/logging"
	"github.com/conneroisu/quilt/internal/scope"
)

// Func is a helper implementation.
type Func func(s *scope.Scope, value any, opts *Options) (any, error)

// FilterFunc is one stage of a filter pipeline. Filters take named
// arguments only.
type FilterFunc func(value any, hash map[string]any) (any, error)

// BlockFunc renders a block body against s.
type BlockFunc func(s *scope.Scope) string

// Call renders the block, or returns "" when f is nil.
func (f BlockFunc) Call(s *scope.Scope) string {
	if f == nil {
		return ""
	}
	return f(s)
}

// Options describes one helper call.
type Options struct {
	Name string
	// Fn renders the block body; nil for inline helpers.
	Fn BlockFunc
	// Inverse renders the {{else}} branch; nil when there is none.
	Inverse BlockFunc
	Hash    map[string]any
	// Args holds every positional argument, including the first.
	Args []any

	// BaseAddress is the address of the template containing the call.
	BaseAddress string
	// RootAddress is the page or layout the walk started from.
	RootAddress string
	// PageAddress is the page being rendered.
	PageAddress string
	ConfigRoot  string
	Resources   *assets.Manifest

	Logger logging.Logger
}

// HashString returns Hash[key] as a string, or "" when unset.
func (o *Options) HashString(key string) string {
	v, ok := o.Hash[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// HashBool returns Hash[key] as a bool.
func (o *Options) HashBool(key string) bool {
	b, _ := o.Hash[key].(bool)
	return b
}

// Location returns where the call sits, for URL resolution.
func (o *Options) Location() assets.Location {
	return assets.Location{Base: o.BaseAddress, Page: o.PageAddress, ConfigRoot: o.ConfigRoot}
}

func (o *Options) logger() logging.Logger {
	if o.Logger == nil {
		return logging.NewNop()
	}
	return o.Logger
}

// Lookup finds helper and filter implementations for a template. tree is
// the address of the template making the call, since module helpers are
// resolved relative to it.
type Lookup interface {
	LookupHelper(tree, name string) (Func, bool)
	LookupFilter(tree, name string) (FilterFunc, bool)
}

// ModuleKind says whether a module provides a helper or a filter.
type ModuleKind string

const (
	ModuleHelper ModuleKind = "helper"
	ModuleFilter ModuleKind = "filter"
)

// Module is a helper or filter loaded from a file.
type Module struct {
	Name    string
	Address string
	Kind    ModuleKind
	Helper  Func
	Filter  FilterFunc
}

// Loader loads helper modules by address.
type Loader interface {
	Load(ctx context.Context, address string) (*Module, error)
}

// Registry holds globally registered helpers and filters. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	helpers map[string]Func
	filters map[string]FilterFunc
}

// NewRegistry returns a registry preloaded with the builtin helpers and
// filters.
func NewRegistry() *Registry {
	r := &Registry{
		helpers: make(map[string]Func, len(builtinHelpers)),
		filters: make(map[string]FilterFunc, len(builtinFilters)),
	}
	for name, fn := range builtinHelpers {
		r.helpers[name] = fn
	}
	for name, fn := range builtinFilters {
		r.filters[name] = fn
	}
	return r
}

// RegisterHelper adds or replaces a helper.
func (r *Registry) RegisterHelper(name string, fn Func) error {
	if name == "" || fn == nil {
		return fmt.Errorf("helper %q: name and function are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.helpers[name] = fn
	return nil
}

// UnregisterHelper removes a helper.
func (r *Registry) UnregisterHelper(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.helpers, name)
}

// RegisterFilter adds or replaces a filter.
func (r *Registry) RegisterFilter(name string, fn FilterFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("filter %q: name and function are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[name] = fn
	return nil
}

// UnregisterFilter removes a filter.
func (r *Registry) UnregisterFilter(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.filters, name)
}

// Helper returns the helper registered as name.
func (r *Registry) Helper(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.helpers[name]
	return fn, ok
}

// Filter returns the filter registered as name.
func (r *Registry) Filter(name string) (FilterFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.filters[name]
	return fn, ok
}

// LookupHelper implements Lookup.
func (r *Registry) LookupHelper(_, name string) (Func, bool) { return r.Helper(name) }

// LookupFilter implements Lookup.
func (r *Registry) LookupFilter(_, name string) (FilterFunc, bool) { return r.Filter(name) }

// HelperNames lists registered helpers in sorted order.
func (r *Registry) HelperNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.helpers))
	for name := range r.helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBuiltinHelper reports whether name is one of the builtin helpers.
func IsBuiltinHelper(name string) bool {
	_, ok := builtinHelpers[name]
	return ok
}

// IsBuiltinFilter reports whether name is one of the builtin filters.
func IsBuiltinFilter(name string) bool {
	_, ok := builtinFilters[name]
	return ok
}
