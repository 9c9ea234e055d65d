// Package render turns a collected template tree into text.
//
// Rendering is synchronous and performs no I/O: every partial and helper a
// tree refers to must have been collected beforehand, and is found through
// the lookups in Options. A reference that was never collected fails the
// render with a structured error naming the reference, the template and the
// line.
package render

import (
	"fmt"
	"strings"

	"github.com/aymerick/raymond"

	"github.com/conneroisu/quilt/internal/assets"
	"github.com/conneroisu/quilt/internal/data"
	"github.com/conneroisu/quilt/internal/errors"
	"github.com/conneroisu/quilt/internal/helpers"
	"github.com/conneroisu/quilt/internal/logging"
	"github.com/conneroisu/quilt/internal/scope"
	"github.com/conneroisu/quilt/internal/syntax"
)

// MaxPartialDepth bounds partial nesting. Collection accepts cyclic
// partial graphs, so a cycle that is actually taken at render time stops
// here.
const MaxPartialDepth = 64

// PartialLookup returns the tree collected for ref, as written in the
// template at tree.
type PartialLookup interface {
	LookupPartial(tree, ref string) (*syntax.Tree, bool)
}

// PartialResolver is implemented by lookups that also know the address a
// reference resolved to, so missing partials can name it.
type PartialResolver interface {
	ResolvePartial(tree, ref string) (string, bool)
}

// Options carries what a render needs besides the tree and scope.
type Options struct {
	Helpers  helpers.Lookup
	Partials PartialLookup

	// RootAddress is the page or layout the walk starts from. It defaults
	// to the address of the rendered tree.
	RootAddress string
	PageAddress string
	ConfigRoot  string

	// Resources collects assets referenced by helpers. It may be nil.
	Resources *assets.Manifest
	Logger    logging.Logger
}

// failure carries a render error up the stack through helper calls.
type failure struct{ err error }

type renderer struct {
	opts  *Options
	root  string
	depth int
}

// Render walks tree against s.
func Render(tree *syntax.Tree, s *scope.Scope, opts *Options) (out string, err error) {
	if opts == nil {
		opts = &Options{}
	}
	r := &renderer{opts: opts, root: opts.RootAddress}
	if r.root == "" {
		r.root = tree.Address
	}

	defer func() {
		if rec := recover(); rec != nil {
			f, ok := rec.(failure)
			if !ok {
				panic(rec)
			}
			out, err = "", f.err
		}
	}()

	var b strings.Builder
	r.nodes(&b, tree, tree.Nodes, s)
	return b.String(), nil
}

func (r *renderer) fail(err error) {
	panic(failure{err})
}

func (r *renderer) block(t *syntax.Tree, nodes []syntax.Node) helpers.BlockFunc {
	if len(nodes) == 0 {
		return nil
	}
	return func(s *scope.Scope) string {
		var b strings.Builder
		r.nodes(&b, t, nodes, s)
		return b.String()
	}
}

func (r *renderer) nodes(b *strings.Builder, t *syntax.Tree, nodes []syntax.Node, s *scope.Scope) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *syntax.TextNode:
			b.WriteString(n.Text)

		case *syntax.ValueNode:
			write(b, r.eval(t, n.Value, s), n.Escaped)

		case *syntax.FilterNode:
			b.WriteString(raymond.Escape(helpers.Str(r.pipe(t, n, s))))

		case *syntax.HelperNode:
			write(b, r.helper(t, n, s), n.Escaped)

		case *syntax.PartialNode:
			r.partial(b, t, n, s)

		default:
			r.fail(errors.NewInternalError(fmt.Sprintf("unexpected node %T", n), nil).
				WithLocation(t.Address, n.Position().Line, 0))
		}
	}
}

// write prints v. nil prints nothing and SafeString is never escaped.
func write(b *strings.Builder, v any, escape bool) {
	switch v := v.(type) {
	case nil:
	case raymond.SafeString:
		b.WriteString(string(v))
	default:
		if escape {
			b.WriteString(raymond.Escape(helpers.Str(v)))
		} else {
			b.WriteString(helpers.Str(v))
		}
	}
}

func (r *renderer) eval(t *syntax.Tree, a syntax.Arg, s *scope.Scope) any {
	switch {
	case a.Path != nil:
		return s.Value(a.Path)
	case a.Sub != nil:
		return r.helper(t, a.Sub, s)
	}
	return a.Literal
}

func (r *renderer) hash(t *syntax.Tree, h map[string]syntax.Arg, s *scope.Scope) map[string]any {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]any, len(h))
	for k, a := range h {
		out[k] = r.eval(t, a, s)
	}
	return out
}

func (r *renderer) pipe(t *syntax.Tree, n *syntax.FilterNode, s *scope.Scope) any {
	value := r.eval(t, n.Value, s)
	for _, f := range n.Filters {
		fn, ok := r.lookupFilter(t.Address, f.Name)
		if !ok {
			r.fail(errors.MissingFilter(f.Name, t.Address, f.Line))
		}
		out, err := call(func() (any, error) { return fn(value, r.hash(t, f.Hash, s)) })
		if err != nil {
			r.fail(errors.NewHelperFailedError(f.Name, t.Address, f.Line, err))
		}
		value = out
	}
	return value
}

func (r *renderer) helper(t *syntax.Tree, n *syntax.HelperNode, s *scope.Scope) any {
	fn, ok := r.lookupHelper(t.Address, n.Name)
	if !ok {
		r.fail(errors.MissingHelper(n.Name, t.Address, n.Line))
	}

	var args []any
	if len(n.Params) > 0 {
		args = make([]any, len(n.Params))
		for i, p := range n.Params {
			args[i] = r.eval(t, p, s)
		}
	}
	var value any
	if len(args) > 0 {
		value = args[0]
	}

	opts := &helpers.Options{
		Name:        n.Name,
		Hash:        r.hash(t, n.Hash, s),
		Args:        args,
		BaseAddress: t.Address,
		RootAddress: r.root,
		PageAddress: r.opts.PageAddress,
		ConfigRoot:  r.opts.ConfigRoot,
		Resources:   r.opts.Resources,
		Logger:      r.opts.Logger,
	}
	if n.Block {
		opts.Fn = r.block(t, n.Body)
		if opts.Fn == nil {
			opts.Fn = func(*scope.Scope) string { return "" }
		}
		opts.Inverse = r.block(t, n.Else)
	}

	out, err := call(func() (any, error) { return fn(s, value, opts) })
	if err != nil {
		r.fail(errors.NewHelperFailedError(n.Name, t.Address, n.Line, err))
	}
	return out
}

// call runs a helper or filter body. A render failure raised inside a
// nested block passes through; any other panic becomes an error.
func call(fn func() (any, error)) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if f, ok := rec.(failure); ok {
				panic(f)
			}
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}

func (r *renderer) lookupHelper(tree, name string) (helpers.Func, bool) {
	if r.opts.Helpers == nil {
		return nil, false
	}
	fn, ok := r.opts.Helpers.LookupHelper(tree, name)
	return fn, ok && fn != nil
}

func (r *renderer) lookupFilter(tree, name string) (helpers.FilterFunc, bool) {
	if r.opts.Helpers == nil {
		return nil, false
	}
	fn, ok := r.opts.Helpers.LookupFilter(tree, name)
	return fn, ok && fn != nil
}

func (r *renderer) partial(b *strings.Builder, t *syntax.Tree, n *syntax.PartialNode, s *scope.Scope) {
	var (
		child *syntax.Tree
		ok    bool
	)
	if r.opts.Partials != nil {
		child, ok = r.opts.Partials.LookupPartial(t.Address, n.Ref)
	}
	if !ok {
		err := errors.MissingPartial(n.Ref, t.Address, n.Line)
		if res, isResolver := r.opts.Partials.(PartialResolver); isResolver {
			if addr, bound := res.ResolvePartial(t.Address, n.Ref); bound {
				err.Message += " (" + addr + ")"
				err.WithContext("resolved", addr)
			}
		}
		r.fail(err)
	}
	if r.depth >= MaxPartialDepth {
		r.fail(errors.NewInternalError(fmt.Sprintf("partial %s nested more than %d deep", n.Ref, MaxPartialDepth), nil).
			WithLocation(t.Address, n.Line, 0))
	}

	r.depth++
	r.nodes(b, child, child.Nodes, r.partialScope(t, n, child, s))
	r.depth--
}

// partialScope returns the scope a partial renders in. An inline context
// is merged over the partial's front matter and pushed. A scalar context
// value is pushed as is, or exposed as @data when there is front matter or
// a hash to push instead. Without any inline context the front matter is
// pushed when present and the caller's scope is reused otherwise.
func (r *renderer) partialScope(t *syntax.Tree, n *syntax.PartialNode, child *syntax.Tree, s *scope.Scope) *scope.Scope {
	hash := r.hash(t, n.Hash, s)
	if n.Param == nil && len(hash) == 0 {
		if len(child.Meta) > 0 {
			return s.Push(child.Meta)
		}
		return s
	}

	var value any
	if n.Param != nil {
		value = r.eval(t, *n.Param, s)
	}
	frame := data.Merge(nil, child.Meta)

	m, isMap := value.(map[string]any)
	if isMap || n.Param == nil {
		return s.Push(data.Merge(data.Merge(frame, m), hash))
	}
	if len(frame) == 0 && len(hash) == 0 {
		return s.Push(value)
	}
	return s.PushPrivate(data.Merge(frame, hash), map[string]any{"data": value})
}
