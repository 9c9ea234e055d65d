// Package engine is the entry point that turns a page address into a
// finished document.
//
// A render fetches and parses the page, merges its front matter and data
// file into the request data, picks the layout, collects the dependencies
// of page and layout concurrently, and then renders the page body and the
// layout around it without further I/O. Lifecycle events are published on
// an events.Bus at each step.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/quilt/internal/address"
	"github.com/conneroisu/quilt/internal/assets"
	"github.com/conneroisu/quilt/internal/cache"
	"github.com/conneroisu/quilt/internal/collector"
	"github.com/conneroisu/quilt/internal/config"
	"github.com/conneroisu/quilt/internal/content"
	"github.com/conneroisu/quilt/internal/data"
	"github.com/conneroisu/quilt/internal/errors"
	"github.com/conneroisu/quilt/internal/events"
	"github.com/conneroisu/quilt/internal/helpers"
	"github.com/conneroisu/quilt/internal/helpers/hclmod"
	"github.com/conneroisu/quilt/internal/logging"
	"github.com/conneroisu/quilt/internal/render"
	"github.com/conneroisu/quilt/internal/scope"
	"github.com/conneroisu/quilt/internal/syntax"
)

// PlainLayout is the address of the passthrough layout used when a page
// has no layout. It is always served from memory.
const PlainLayout = "__plain_layout__"

const tracerName = "github.com/conneroisu/quilt/internal/engine"

var timeNow = time.Now

// Request is the per-render input.
type Request struct {
	// Data is the base render context. Front matter and the page's data
	// file are merged over it.
	Data map[string]any
	// Config replaces the engine's base configuration for this render.
	Config *config.Template
	// Overrides is the project configuration. When nil it is loaded from
	// the project's sidecar file.
	Overrides *config.Overrides
	// Directory is the project directory relative to the root. When empty
	// it is derived from the page address and the group pattern.
	Directory string
}

// Result is a finished render.
type Result struct {
	RequestID string
	Address   string
	HTML      string
	Resources *assets.Manifest
	Directory string
	Config    *config.Template
	// Warnings holds the recoverable problems met while collecting, such
	// as helper modules that failed to load.
	Warnings []error
}

// Engine renders pages. It is safe for concurrent use; every render gets
// its own session while the caches are shared.
type Engine struct {
	base      *config.Template
	store     content.Store
	cache     *cache.Store
	registry  *helpers.Registry
	loader    helpers.Loader
	data      data.Loader
	bus       *events.Bus
	logger    logging.Logger
	tracer    trace.Tracer
	collector *collector.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets where templates, helper modules and data files are read
// from. The default reads the filesystem.
func WithStore(s content.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithCache shares a cache store between engines.
func WithCache(c *cache.Store) Option {
	return func(e *Engine) { e.cache = c }
}

// WithRegistry sets the helper and filter registry.
func WithRegistry(r *helpers.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithHelperLoader sets the helper module loader.
func WithHelperLoader(l helpers.Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithDataLoader sets the data file loader.
func WithDataLoader(l data.Loader) Option {
	return func(e *Engine) { e.data = l }
}

// WithEvents sets the lifecycle event bus.
func WithEvents(b *events.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the tracer. The default uses the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New creates an Engine over the base configuration.
func New(base *config.Template, opts ...Option) *Engine {
	e := &Engine{base: base}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = content.NewDirStore()
	}
	if e.cache == nil {
		size := base.CacheSize
		if size <= 0 {
			size = config.DefaultCacheSize
		}
		e.cache = cache.NewStore(size)
	}
	if e.registry == nil {
		e.registry = helpers.NewRegistry()
	}
	if e.loader == nil {
		e.loader = hclmod.NewLoader(e.store)
	}
	if e.data == nil {
		e.data = data.NewFileLoader(e.store, nil)
	}
	if e.bus == nil {
		e.bus = events.NewBus()
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	e.logger = e.logger.WithComponent("engine")
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}

	e.collector = collector.New(e.store, e.cache, e.registry, e.loader, e.logger)
	e.collector.RegisterPartial(PlainLayout, "{{{body}}}")
	return e
}

// Config returns the base configuration.
func (e *Engine) Config() *config.Template { return e.base }

// Cache returns the shared cache store.
func (e *Engine) Cache() *cache.Store { return e.cache }

// Exists reports whether addr is present in the engine's store.
func (e *Engine) Exists(addr string) bool { return e.store.Exists(addr) }

// Events returns the lifecycle event bus.
func (e *Engine) Events() *events.Bus { return e.bus }

// RegisterHelper registers a helper for every render.
func (e *Engine) RegisterHelper(name string, fn helpers.Func) error {
	return e.registry.RegisterHelper(name, fn)
}

// RegisterFilter registers a filter for every render.
func (e *Engine) RegisterFilter(name string, fn helpers.FilterFunc) error {
	return e.registry.RegisterFilter(name, fn)
}

// RegisterPartial serves source for address from memory.
func (e *Engine) RegisterPartial(address, source string) {
	e.collector.RegisterPartial(address, source)
}

// Render renders the page at addr.
func (e *Engine) Render(ctx context.Context, addr string, req Request) (res *Result, err error) {
	requestID := uuid.NewString()
	logger := e.logger.With("request_id", requestID, "page", addr)
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := e.tracer.Start(ctx, "quilt.render", trace.WithAttributes(
		attribute.String("quilt.page", addr),
		attribute.String("quilt.request_id", requestID),
	))
	perf := logging.StartOperation(logger, "render")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			perf.EndWithError(ctx, err)
		} else {
			perf.End(ctx)
		}
		span.End()
	}()

	base := e.base
	if req.Config != nil {
		base = req.Config
	}
	project := req.Directory
	if project == "" {
		project = address.ProjectDirectory(strings.TrimPrefix(addr, base.Root), base.GroupPattern)
	}
	local := req.Overrides
	if local == nil {
		if local, err = e.loadOverrides(ctx, base, project); err != nil {
			return nil, err
		}
	}
	sess := collector.NewSession(base, local, project, e.registry)
	cfg := sess.Config

	var ctxData map[string]any
	if local != nil {
		ctxData = data.Merge(ctxData, local.Data)
	}
	ctxData = data.Merge(ctxData, req.Data)

	ev := e.event(requestID, addr, events.PreRender)
	ev.Data = ctxData
	if err := e.bus.Emit(ctx, ev); err != nil {
		return nil, err
	}
	ctxData = ev.Data

	page, err := e.collector.Load(ctx, addr, cfg.DisableCache)
	if err != nil {
		return nil, err
	}

	ctxData = data.Merge(ctxData, page.Meta)
	if ref, ok := page.Meta["data"].(string); ok && ref != "" {
		fileData, err := e.loadData(ctx, sess, page, ref)
		if err != nil {
			return nil, err
		}
		ctxData = data.Merge(ctxData, fileData)
	}

	ev = e.event(requestID, addr, events.Compile)
	ev.Tree, ev.Data = page, ctxData
	if err := e.bus.Emit(ctx, ev); err != nil {
		return nil, err
	}

	layoutAddr := PlainLayout
	if ref, ok := LayoutRef(page, cfg); ok {
		layoutAddr = address.ResolveFile(ref, address.Layout, page.Address, project, base, local)
	}
	layout, err := e.collector.Load(ctx, layoutAddr, cfg.DisableCache)
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "Layout selected", "layout", layoutAddr)

	ev = e.event(requestID, addr, events.PreDependencies)
	ev.Tree, ev.Layout = page, layout
	if err := e.bus.Emit(ctx, ev); err != nil {
		return nil, err
	}

	if err := e.collect(ctx, sess, page, layout); err != nil {
		return nil, err
	}

	manifest := assets.NewManifest()
	warnings := sess.Warnings.All()
	ev = e.event(requestID, addr, events.PostDependencies)
	ev.Tree, ev.Layout, ev.Resources, ev.Warnings = page, layout, manifest, warnings
	if err := e.bus.Emit(ctx, ev); err != nil {
		return nil, err
	}

	html, err := e.renderTrees(ctx, sess, page, layout, scope.New(ctxData), manifest, logger)
	if err != nil {
		return nil, err
	}

	ev = e.event(requestID, addr, events.PostRender)
	ev.Tree, ev.Layout, ev.HTML, ev.Resources, ev.Warnings = page, layout, html, manifest, warnings
	if err := e.bus.Emit(ctx, ev); err != nil {
		return nil, err
	}

	return &Result{
		RequestID: requestID,
		Address:   addr,
		HTML:      ev.HTML,
		Resources: manifest,
		Directory: project,
		Config:    cfg,
		Warnings:  warnings,
	}, nil
}

func (e *Engine) event(requestID, addr string, name events.Name) *events.Event {
	return &events.Event{Name: name, RequestID: requestID, Address: addr, Timestamp: timeNow()}
}

// collect runs the collector over page and layout at the same time.
func (e *Engine) collect(ctx context.Context, sess *collector.Session, page, layout *syntax.Tree) error {
	ctx, span := e.tracer.Start(ctx, "quilt.collect")
	defer span.End()

	p := pool.New().WithErrors().WithContext(ctx)
	for _, tree := range []*syntax.Tree{page, layout} {
		p.Go(func(ctx context.Context) error {
			return e.collector.Collect(ctx, sess, tree)
		})
	}
	if err := p.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collection failed")
		return err
	}
	span.SetAttributes(
		attribute.Int("quilt.partials", sess.Partials.Len()),
		attribute.Int("quilt.warnings", sess.Warnings.Count()),
	)
	return nil
}

// renderTrees renders the page body and then the layout, with body and
// the layout's front matter pushed as a new frame.
func (e *Engine) renderTrees(ctx context.Context, sess *collector.Session, page, layout *syntax.Tree, root *scope.Scope, manifest *assets.Manifest, logger logging.Logger) (string, error) {
	_, span := e.tracer.Start(ctx, "quilt.render.trees")
	defer span.End()

	opts := &render.Options{
		Helpers:     sess,
		Partials:    sess,
		RootAddress: page.Address,
		PageAddress: page.Address,
		ConfigRoot:  sess.Config.Root,
		Resources:   manifest,
		Logger:      logger,
	}
	body, err := render.Render(page, root, opts)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	layoutOpts := *opts
	layoutOpts.RootAddress = layout.Address
	frame := data.Merge(data.Merge(nil, layout.Meta), map[string]any{"body": body})
	html, err := render.Render(layout, root.Push(frame), &layoutOpts)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return html, nil
}

// LayoutRef returns the layout reference page asks for, and false when it
// renders without a layout. A page opening with a doctype never gets one.
// Otherwise a string layout is used as written, layout: true means the
// project's default layout and anything else means no layout.
func LayoutRef(page *syntax.Tree, cfg *config.Template) (string, bool) {
	if page.Doctype {
		return "", false
	}
	switch v := page.Meta["layout"].(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case bool:
		if v && cfg.DefaultLayout != "" {
			return "locale:" + cfg.DefaultLayout, true
		}
	}
	return "", false
}

// loadData loads the data file ref named in page's front matter. It must
// hold a mapping.
func (e *Engine) loadData(ctx context.Context, sess *collector.Session, page *syntax.Tree, ref string) (map[string]any, error) {
	addr := address.Resolve(ref, address.Data, page.Address, sess.Project, sess.Base, sess.Local)
	exts := sess.Config.DataExts

	if !sess.Config.DisableCache {
		for _, candidate := range data.Candidates(addr, exts) {
			if v, ok := e.cache.Data.Get(candidate); ok {
				if m, ok := v.(map[string]any); ok {
					return m, nil
				}
			}
		}
	}

	v, chosen, err := e.data.Load(ctx, addr, exts)
	if err != nil {
		var qe *errors.QuiltError
		if errors.As(err, &qe) {
			return nil, err
		}
		return nil, errors.NewDataError(chosen, err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.NewDataError(chosen, fmt.Errorf("data file must hold a mapping, got %T", v))
	}
	e.cache.Data.Set(chosen, m)
	return m, nil
}

// LoadOverrides loads the project configuration of project against the
// base configuration. A project without a config file yields nil.
func (e *Engine) LoadOverrides(ctx context.Context, project string) (*config.Overrides, error) {
	return e.loadOverrides(ctx, e.base, project)
}

// loadOverrides caches the result, including a missing file, in the data
// cache under the config path without extension.
func (e *Engine) loadOverrides(ctx context.Context, base *config.Template, project string) (*config.Overrides, error) {
	if base.ConfigFilename == "" {
		return nil, nil
	}
	key := strings.TrimRight(base.Root, "/") + "/" + strings.Trim(project+"/"+base.ConfigFilename, "/")

	if !base.DisableCache {
		if v, ok := e.cache.Data.Get(key); ok {
			if o, ok := v.(*config.Overrides); ok {
				return o, nil
			}
		}
	}

	var local *config.Overrides
	for _, ext := range config.OverrideExts {
		addr := key + ext
		if !e.store.Exists(addr) {
			continue
		}
		text, err := e.store.Read(ctx, addr)
		if err != nil {
			return nil, err
		}
		if local, err = config.ParseOverrides(text, ext); err != nil {
			return nil, errors.NewConfigError("invalid project config "+addr, err)
		}
		logging.FromContext(ctx).Debug(ctx, "Project config loaded", "project", project, "address", addr)
		break
	}
	e.cache.Data.Set(key, local)
	return local, nil
}
