package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/net/html"

	"github.com/conneroisu/quilt/internal/engine"
	"github.com/conneroisu/quilt/internal/errors"
	"github.com/conneroisu/quilt/internal/version"
)

const liveReloadScript = `<script>(function(){` +
	`var p=location.protocol==="https:"?"wss:":"ws:";` +
	`var ws=new WebSocket(p+"//"+location.host+"` + liveReloadPath + `");` +
	`ws.onmessage=function(e){var m=JSON.parse(e.data);if(m.type==="reload"){location.reload();}};` +
	`})();</script>`

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": version.GetShortVersion(),
		"clients": s.hub.Count(),
	})
}

// handlePage renders the template a request maps to, or falls back to the
// static file under the root.
func (s *PreviewServer) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := s.engine.Config()
	urlPath := path.Clean("/" + r.URL.Path)

	if addr, ok := s.pageAddress(urlPath); ok && acceptsHTML(r) {
		s.renderPage(w, r, addr)
		return
	}

	s.serveStatic(w, r, cfg.Root, urlPath)
}

// pageAddress maps a URL path to the template that serves it. Paths with
// no extension name a directory and map to its default page.
func (s *PreviewServer) pageAddress(urlPath string) (string, bool) {
	cfg := s.engine.Config()
	root := strings.TrimSuffix(filepath.ToSlash(cfg.Root), "/")

	var addr string
	switch path.Ext(urlPath) {
	case "":
		addr = root + strings.TrimSuffix(urlPath, "/") + "/" + cfg.DefaultPage + cfg.TemplateExt
	case cfg.TemplateExt:
		addr = root + urlPath
	default:
		return "", false
	}
	return addr, s.engine.Exists(addr)
}

func (s *PreviewServer) renderPage(w http.ResponseWriter, r *http.Request, addr string) {
	ctx := context.WithValue(r.Context(), previewRequestKey{}, true)
	res, err := s.engine.Render(ctx, addr, engine.Request{})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.IsNotFound(err) {
			status = http.StatusNotFound
		}
		s.handler.Handle(r.Context(), err)
		s.writeErrorPage(w, r, status, err)
		return
	}
	for _, warning := range res.Warnings {
		s.logger.Warn(r.Context(), warning, "Render warning", "page", addr, "request_id", res.RequestID)
	}

	body := res.HTML

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Request-Id", res.RequestID)
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		return
	}
	_, _ = io.WriteString(w, body)
}

func (s *PreviewServer) serveStatic(w http.ResponseWriter, r *http.Request, root, urlPath string) {
	// Dot files and directories stay private.
	for _, part := range strings.Split(urlPath, "/") {
		if strings.HasPrefix(part, ".") {
			http.NotFound(w, r)
			return
		}
	}
	http.ServeFile(w, r, filepath.Join(root, filepath.FromSlash(urlPath)))
}

func acceptsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html") || strings.Contains(accept, "*/*")
}

func (s *PreviewServer) writeErrorPage(w http.ResponseWriter, r *http.Request, status int, err error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}

	title := fmt.Sprintf("%d %s", status, http.StatusText(status))
	page := errors.FormatForBrowser(title, errors.Diagnose(err, errors.SeverityError, readSource))
	if s.config.Server.LiveReload {
		page = injectLiveReload(page)
	}
	_, _ = io.WriteString(w, page)
}

// readSource reads the template at an address for error context.
func readSource(addr string) (string, bool) {
	b, err := os.ReadFile(filepath.FromSlash(addr))
	if err != nil {
		return "", false
	}
	return string(b), true
}

// injectLiveReload inserts the reload script before the last closing body
// tag, or appends it when the document has none. The rest of the document
// is passed through byte for byte.
func injectLiveReload(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	offset, insertAt := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); bytes.Equal(name, []byte("body")) {
				insertAt = offset
			}
		}
		offset += raw
	}
	if insertAt < 0 {
		return doc + liveReloadScript
	}
	return doc[:insertAt] + liveReloadScript + doc[insertAt:]
}
