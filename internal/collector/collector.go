// Package collector prefetches everything a template tree depends on before
// it is rendered.
//
// Collect walks a tree, resolves every partial and every helper or filter
// that is not registered globally, fetches and parses the partials, loads
// the helper modules, and recurses into each partial. Sibling work runs
// concurrently; Collect returns only when the whole dependency closure has
// settled. Once it returns nil, rendering the tree performs no I/O.
package collector

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/conneroisu/quilt/internal/address"
	"github.com/conneroisu/quilt/internal/cache"
	"github.com/conneroisu/quilt/internal/content"
	"github.com/conneroisu/quilt/internal/errors"
	"github.com/conneroisu/quilt/internal/helpers"
	"github.com/conneroisu/quilt/internal/logging"
	"github.com/conneroisu/quilt/internal/syntax"
)

// Collector is shared by every render. It holds the shared caches and the
// sources templates and modules are read from.
type Collector struct {
	store    content.Store
	cache    *cache.Store
	registry *helpers.Registry
	loader   helpers.Loader
	logger   logging.Logger

	mu         sync.RWMutex
	registered map[string]string
}

// New returns a Collector. loader may be nil, in which case unregistered
// helpers are reported as load warnings.
func New(store content.Store, c *cache.Store, registry *helpers.Registry, loader helpers.Loader, logger logging.Logger) *Collector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Collector{
		store:      store,
		cache:      c,
		registry:   registry,
		loader:     loader,
		logger:     logger.WithComponent("collector"),
		registered: make(map[string]string),
	}
}

// RegisterPartial serves source for address from memory, ahead of the
// content store and the template cache.
func (c *Collector) RegisterPartial(address, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered[address] = source
}

// UnregisterPartial removes a registered partial.
func (c *Collector) UnregisterPartial(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.registered, address)
}

func (c *Collector) registeredPartial(address string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.registered[address]
	return src, ok
}

// Fetch returns the template text at address: a registered partial, else
// the template cache, else the content store. With disableCache the cache
// is not read, but a fresh read still refreshes it.
func (c *Collector) Fetch(ctx context.Context, address string, disableCache bool) (string, error) {
	if src, ok := c.registeredPartial(address); ok {
		return src, nil
	}
	if !disableCache {
		if text, ok := c.cache.Templates.Get(address); ok {
			return text, nil
		}
	}

	text, err := c.store.Read(ctx, address)
	if err != nil {
		if errors.IsNotFound(err) {
			return "", err
		}
		return "", errors.NewNotFoundError(address, err)
	}
	c.cache.Templates.Set(address, text)
	return text, nil
}

// Parse parses text and tags the result with address. Trees are cached by
// content, so identical text at two addresses is parsed once; the cached
// tree itself is never tagged.
func (c *Collector) Parse(address, text string) (*syntax.Tree, error) {
	if tree, ok := c.cache.Trees.Get(text); ok {
		return tree.WithAddress(address), nil
	}

	tree, err := syntax.Parse(text)
	if err != nil {
		line := 0
		var pe *syntax.ParseError
		if errors.As(err, &pe) {
			line = pe.Line
		}
		return nil, errors.NewParseError(address, line, err)
	}
	c.cache.Trees.Set(text, tree)
	return tree.WithAddress(address), nil
}

// Load is Fetch followed by Parse.
func (c *Collector) Load(ctx context.Context, address string, disableCache bool) (*syntax.Tree, error) {
	text, err := c.Fetch(ctx, address, disableCache)
	if err != nil {
		return nil, err
	}
	return c.Parse(address, text)
}

// Collect resolves the dependency closure of tree into sess.
//
// Partial failures are fatal and every failing sibling is reported in the
// returned error. Helper module failures are recorded in sess.Warnings and
// leave the helper unresolved.
func (c *Collector) Collect(ctx context.Context, sess *Session, tree *syntax.Tree) error {
	p := pool.New().WithErrors().WithContext(ctx)

	syntax.Inspect(tree.Nodes, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.PartialNode:
			c.collectPartial(p, sess, tree, n)
		case *syntax.HelperNode:
			c.collectModule(p, sess, tree, n.Name, helpers.ModuleHelper)
		case *syntax.FilterNode:
			for _, f := range n.Filters {
				c.collectModule(p, sess, tree, f.Name, helpers.ModuleFilter)
			}
		}
		return true
	})

	return p.Wait()
}

func (c *Collector) collectPartial(p *pool.ContextPool, sess *Session, tree *syntax.Tree, n *syntax.PartialNode) {
	addr := address.ResolveFile(n.Ref, address.Partial, tree.Address, sess.Project, sess.Base, sess.Local)
	sess.Partials.Bind(tree.Address, n.Ref, addr)

	if !sess.Partials.claim(addr) {
		return
	}

	p.Go(func(ctx context.Context) error {
		child, err := c.Load(ctx, addr, sess.Config.DisableCache)
		if err != nil {
			return err
		}
		sess.Partials.Put(addr, child)
		c.logger.Debug(ctx, "Partial collected", "partial", addr, "from", tree.Address)
		return c.Collect(ctx, sess, child)
	})
}

func (c *Collector) collectModule(p *pool.ContextPool, sess *Session, tree *syntax.Tree, name string, kind helpers.ModuleKind) {
	if c.registry != nil {
		if kind == helpers.ModuleHelper {
			if _, ok := c.registry.Helper(name); ok {
				return
			}
		} else if _, ok := c.registry.Filter(name); ok {
			return
		}
	}
	key := moduleKey{tree: tree.Address, name: name, kind: kind}
	if !sess.claimModule(key) {
		return
	}

	addr := address.ResolveFile(name, address.Helper, tree.Address, sess.Project, sess.Base, sess.Local)
	p.Go(func(ctx context.Context) error {
		m, err := c.loadModule(ctx, addr, sess.Config.DisableCache)
		if err == nil && m.Kind != kind {
			err = errKindMismatch{want: kind, got: m.Kind}
		}
		if err != nil {
			sess.Warnings.Add(errors.NewHelperLoadError(name, addr, err))
			c.logger.Warn(ctx, err, "Helper module not loaded", "helper", name, "address", addr)
			return nil
		}
		sess.bindModule(key, m)
		return nil
	})
}

func (c *Collector) loadModule(ctx context.Context, addr string, disableCache bool) (*helpers.Module, error) {
	if c.loader == nil {
		return nil, errNoLoader
	}
	if !disableCache {
		if v, ok := c.cache.Data.Get(addr); ok {
			if m, ok := v.(*helpers.Module); ok {
				return m, nil
			}
		}
	}
	m, err := c.loader.Load(ctx, addr)
	if err != nil {
		return nil, err
	}
	c.cache.Data.Set(addr, m)
	return m, nil
}

type errKindMismatch struct {
	want, got helpers.ModuleKind
}

func (e errKindMismatch) Error() string {
	return "module is a " + string(e.got) + ", used as a " + string(e.want)
}

var errNoLoader = errors.NewInternalError("no helper module loader configured", nil)
