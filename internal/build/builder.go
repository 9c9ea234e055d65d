// Package build renders every page of a template tree to static files.
//
// Pages are selected from the root with include and "!" exclude patterns,
// rendered concurrently through one shared engine, and written atomically
// under the destination directory with the same relative layout. When a
// manifest store is configured, each page's resource manifest is recorded
// in it for the asset tooling that runs afterwards.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/sourcegraph/conc/pool"

	"github.com/conneroisu/quilt/internal/assets"
	"github.com/conneroisu/quilt/internal/config"
	"github.com/conneroisu/quilt/internal/engine"
	"github.com/conneroisu/quilt/internal/logging"
)

// OutputExt is the extension of every written page.
const OutputExt = ".html"

// PageResult is the outcome of building one page.
type PageResult struct {
	Page     string
	Output   string
	Size     int64
	Warnings []error
	Error    error
	Duration time.Duration
}

// Report summarises a build.
type Report struct {
	Pages    []PageResult
	Duration time.Duration
	Metrics  BuildMetrics
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []PageResult {
	var out []PageResult
	for _, p := range r.Pages {
		if p.Error != nil {
			out = append(out, p)
		}
	}
	return out
}

// Builder renders a page set to disk.
type Builder struct {
	engine   *engine.Engine
	config   config.BuildConfig
	manifest *assets.Store
	logger   logging.Logger
	metrics  *BuildMetrics
}

// NewBuilder creates a builder. manifest may be nil.
func NewBuilder(eng *engine.Engine, cfg config.BuildConfig, manifest *assets.Store, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Builder{
		engine:   eng,
		config:   cfg,
		manifest: manifest,
		logger:   logger.WithComponent("build"),
		metrics:  NewBuildMetrics(),
	}
}

// Build renders every selected page. A failing page does not stop the
// others; the returned error joins every page failure, and the report is
// always returned.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	start := time.Now()
	perf := logging.StartOperation(b.logger, "build")

	pages, err := Pages(b.engine.Config(), b.config.Pages)
	if err != nil {
		perf.EndWithError(ctx, err)
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	b.logger.Info(ctx, "Building pages", "pages", len(pages), "dest", b.config.Dest, "concurrency", b.config.Concurrency)

	results := make([]PageResult, len(pages))
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(b.config.Concurrency)
	for i, page := range pages {
		p.Go(func(ctx context.Context) error {
			results[i] = b.buildPage(ctx, page)
			b.metrics.RecordBuild(results[i])
			return results[i].Error
		})
	}
	err = p.Wait()

	report := &Report{
		Pages:    results,
		Duration: time.Since(start),
		Metrics:  b.metrics.GetSnapshot(),
	}
	if err != nil {
		perf.EndWithError(ctx, err)
		return report, err
	}
	perf.End(ctx)
	return report, nil
}

// Metrics returns the metrics accumulated over every Build call.
func (b *Builder) Metrics() *BuildMetrics { return b.metrics }

func (b *Builder) buildPage(ctx context.Context, page string) PageResult {
	start := time.Now()
	res := PageResult{Page: page, Output: OutputPath(b.config.Dest, page)}

	addr := strings.TrimSuffix(filepath.ToSlash(b.engine.Config().Root), "/") + "/" + page
	out, err := b.engine.Render(ctx, addr, engine.Request{})
	if err != nil {
		res.Error = fmt.Errorf("%s: %w", page, err)
		res.Duration = time.Since(start)
		b.logger.Error(ctx, err, "Page failed", "page", page)
		return res
	}
	res.Warnings = out.Warnings
	for _, w := range out.Warnings {
		b.logger.Warn(ctx, w, "Page warning", "page", page)
	}

	if err := writeFile(res.Output, out.HTML); err != nil {
		res.Error = err
		res.Duration = time.Since(start)
		return res
	}
	res.Size = int64(len(out.HTML))

	if b.manifest != nil {
		if err := b.manifest.Save(ctx, page, res.Output, out.Resources); err != nil {
			res.Error = err
		}
	}

	res.Duration = time.Since(start)
	b.logger.Debug(ctx, "Page written", "page", page, "output", res.Output, "bytes", res.Size, "duration", res.Duration)
	return res
}

// OutputPath maps a root-relative page path to its file under dest.
func OutputPath(dest, page string) string {
	rel := strings.TrimSuffix(page, filepath.Ext(page)) + OutputExt
	return filepath.Join(dest, filepath.FromSlash(rel))
}

// writeFile replaces path in one step so readers never see a partial page.
func writeFile(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(text)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
