// Package server is the development preview server.
//
// Requests that accept HTML and map to a template are rendered through the
// engine; everything else is served from the template root as a static
// file. When watching is enabled, file changes invalidate the engine
// caches and tell connected browsers to reload over a websocket.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/conneroisu/quilt/internal/config"
	"github.com/conneroisu/quilt/internal/engine"
	"github.com/conneroisu/quilt/internal/errors"
	"github.com/conneroisu/quilt/internal/events"
	"github.com/conneroisu/quilt/internal/logging"
	"github.com/conneroisu/quilt/internal/watcher"
)

const (
	liveReloadPath = "/_quilt/livereload"
	healthPath     = "/_quilt/health"

	debounceDelay   = 150 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// PreviewServer renders pages on request with live reload.
type PreviewServer struct {
	config  *config.Config
	engine  *engine.Engine
	logger  logging.Logger
	handler *errors.ErrorHandler
	hub     *Hub
	watcher *watcher.FileWatcher

	unsubscribe func()

	httpServer  *http.Server
	serverMutex sync.RWMutex
	listener    net.Listener
}

// New creates a preview server for eng. The engine's base configuration
// must carry an absolute root.
func New(cfg *config.Config, eng *engine.Engine, logger logging.Logger) *PreviewServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("server")
	s := &PreviewServer{
		config:  cfg,
		engine:  eng,
		logger:  logger,
		handler: errors.NewErrorHandler(logger),
		hub:     NewHub(logger),
	}
	if cfg.Server.LiveReload {
		s.unsubscribe = eng.Events().On(events.PostRender, injectOnPostRender)
	}
	return s
}

type previewRequestKey struct{}

// injectOnPostRender adds the live reload script to documents rendered for
// preview requests. Renders started elsewhere on the same engine are left
// alone.
func injectOnPostRender(ctx context.Context, ev *events.Event) error {
	if preview, _ := ctx.Value(previewRequestKey{}).(bool); preview {
		ev.HTML = injectLiveReload(ev.HTML)
	}
	return nil
}

// Hub returns the live reload hub.
func (s *PreviewServer) Hub() *Hub { return s.hub }

// Handler returns the routed HTTP handler.
func (s *PreviewServer) Handler() http.Handler {
	router := httprouter.New()
	router.GET(healthPath, s.handleHealth)
	if s.config.Server.LiveReload {
		router.GET(liveReloadPath, s.hub.handleWebSocket)
	}
	router.NotFound = http.HandlerFunc(s.handlePage)
	router.HandleMethodNotAllowed = false
	return s.logRequests(router)
}

// Start serves until ctx is cancelled.
func (s *PreviewServer) Start(ctx context.Context) error {
	if s.config.Server.Watch {
		if err := s.setupFileWatcher(ctx); err != nil {
			s.logger.Warn(ctx, err, "File watching disabled")
		}
	}

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.serverMutex.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Preview server listening", "url", "http://"+listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Addr returns the bound address once Start is listening.
func (s *PreviewServer) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the watcher, closes live reload connections and drains
// the HTTP server.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn(ctx, err, "Stopping file watcher")
		}
	}
	s.hub.Close()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}

	s.serverMutex.RLock()
	server := s.httpServer
	s.serverMutex.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *PreviewServer) setupFileWatcher(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(debounceDelay, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw.AddFilter(watcher.ExtFilter(watchedExts(s.engine.Config())...))
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddHandler(watcher.CacheInvalidator(s.engine.Cache(), s.logger))
	if s.config.Server.LiveReload {
		fw.AddHandler(s.handleFileChange)
	}

	root := s.engine.Config().Root
	if err := fw.AddRecursive(root); err != nil {
		_ = fw.Stop()
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}
	s.watcher = fw
	return nil
}

func (s *PreviewServer) handleFileChange(events []watcher.ChangeEvent) error {
	paths := make([]string, 0, len(events))
	for _, ev := range events {
		paths = append(paths, ev.Path)
	}
	s.logger.Info(context.Background(), "Files changed, reloading", "paths", paths)
	return s.hub.Broadcast(UpdateMessage{
		Type:      "reload",
		Paths:     paths,
		Timestamp: time.Now(),
	})
}

// watchedExts lists the file extensions whose change warrants a reload.
func watchedExts(t *config.Template) []string {
	exts := []string{t.TemplateExt, t.HelperExt, ".css", ".js"}
	exts = append(exts, t.DataExts...)
	exts = append(exts, config.OverrideExts...)
	return exts
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack hands the connection to the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *PreviewServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
