package collector

import (
	"sync"

	"github.com/conneroisu/quilt/internal/config"
	"github.com/conneroisu/quilt/internal/errors"
	"github.com/conneroisu/quilt/internal/helpers"
	"github.com/conneroisu/quilt/internal/syntax"
)

// Session is the state of one render: the configuration it resolves
// against, the partials and helper modules collected for it, and the
// recoverable warnings raised along the way. A Session is discarded when
// the render finishes.
type Session struct {
	// Base is the configuration shared by every project.
	Base *config.Template
	// Local is the project's own configuration, or nil.
	Local *config.Overrides
	// Config is Base with Local applied.
	Config *config.Template
	// Project is the project directory relative to Base.Root.
	Project string

	Partials *Partials
	Warnings *errors.WarningCollector

	registry *helpers.Registry

	mu      sync.Mutex
	modules map[moduleKey]*helpers.Module
}

type refKey struct {
	tree string
	ref  string
}

type moduleKey struct {
	tree string
	name string
	kind helpers.ModuleKind
}

// NewSession starts a render session. registry supplies globally
// registered helpers and filters; it may be nil.
func NewSession(base *config.Template, local *config.Overrides, project string, registry *helpers.Registry) *Session {
	return &Session{
		Base:     base,
		Local:    local,
		Config:   base.WithOverrides(local),
		Project:  project,
		Partials: NewPartials(),
		Warnings: errors.NewWarningCollector(),
		registry: registry,
		modules:  make(map[moduleKey]*helpers.Module),
	}
}

// LookupHelper implements helpers.Lookup. Globally registered helpers win
// over modules loaded for this render.
func (s *Session) LookupHelper(tree, name string) (helpers.Func, bool) {
	if s.registry != nil {
		if fn, ok := s.registry.Helper(name); ok {
			return fn, true
		}
	}
	s.mu.Lock()
	m := s.modules[moduleKey{tree, name, helpers.ModuleHelper}]
	s.mu.Unlock()
	if m == nil {
		return nil, false
	}
	return m.Helper, true
}

// LookupFilter implements helpers.Lookup.
func (s *Session) LookupFilter(tree, name string) (helpers.FilterFunc, bool) {
	if s.registry != nil {
		if fn, ok := s.registry.Filter(name); ok {
			return fn, true
		}
	}
	s.mu.Lock()
	m := s.modules[moduleKey{tree, name, helpers.ModuleFilter}]
	s.mu.Unlock()
	if m == nil {
		return nil, false
	}
	return m.Filter, true
}

// LookupPartial returns the tree the reference ref, written in the template
// at tree, was collected as.
func (s *Session) LookupPartial(tree, ref string) (*syntax.Tree, bool) {
	return s.Partials.Lookup(tree, ref)
}

// ResolvePartial returns the address ref was bound to during collection.
func (s *Session) ResolvePartial(tree, ref string) (string, bool) {
	return s.Partials.Resolved(tree, ref)
}

// claimModule reports whether the caller is the first to ask for the
// module. A nil entry marks a claim whose load has not finished or failed.
func (s *Session) claimModule(key moduleKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.modules[key]; ok {
		return false
	}
	s.modules[key] = nil
	return true
}

func (s *Session) bindModule(key moduleKey, m *helpers.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[key] = m
}

// Partials is the per-render partial cache. It maps resolved addresses to
// parsed trees and remembers what each (template, reference) pair resolved
// to, so the render phase never consults the resolver or shared caches.
type Partials struct {
	mu      sync.RWMutex
	trees   map[string]*syntax.Tree
	refs    map[refKey]string
	claimed map[string]struct{}
}

// NewPartials returns an empty partial cache.
func NewPartials() *Partials {
	return &Partials{
		trees:   make(map[string]*syntax.Tree),
		refs:    make(map[refKey]string),
		claimed: make(map[string]struct{}),
	}
}

// Put installs tree under address.
func (p *Partials) Put(address string, tree *syntax.Tree) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trees[address] = tree
	p.claimed[address] = struct{}{}
}

// Get returns the tree installed under address.
func (p *Partials) Get(address string) (*syntax.Tree, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.trees[address]
	return t, ok
}

// Bind records that ref, written in the template at tree, resolves to
// address.
func (p *Partials) Bind(tree, ref, address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs[refKey{tree, ref}] = address
}

// Resolved returns the address ref was bound to.
func (p *Partials) Resolved(tree, ref string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	addr, ok := p.refs[refKey{tree, ref}]
	return addr, ok
}

// Lookup returns the tree bound to (tree, ref).
func (p *Partials) Lookup(tree, ref string) (*syntax.Tree, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	addr, ok := p.refs[refKey{tree, ref}]
	if !ok {
		return nil, false
	}
	t, ok := p.trees[addr]
	return t, ok
}

// Len returns the number of installed partials.
func (p *Partials) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.trees)
}

// Addresses returns the installed partial addresses.
func (p *Partials) Addresses() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.trees))
	for addr := range p.trees {
		out = append(out, addr)
	}
	return out
}

// claim reports whether the caller should fetch address: false when it is
// installed already or another task is fetching it.
func (p *Partials) claim(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.claimed[address]; ok {
		return false
	}
	p.claimed[address] = struct{}{}
	return true
}
