// Package data loads the sidecar data files a page's front matter points
// at: YAML, JSON or HCL files on disk, or JSON over http(s).
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/quilt/internal/address"
	"github.com/conneroisu/quilt/internal/content"
	"github.com/conneroisu/quilt/internal/ctyconv"
	"github.com/conneroisu/quilt/internal/errors"
)

// Loader loads a data file. exts lists the extensions to try when address
// has none; the chosen address is returned alongside the value.
type Loader interface {
	Load(ctx context.Context, address string, exts []string) (any, string, error)
}

// FileLoader reads data files through a content.Store and remote JSON
// through an http.Client.
type FileLoader struct {
	store  content.Store
	client *http.Client
}

// NewFileLoader returns a loader over store. A nil client uses a client
// with a 10 second timeout.
func NewFileLoader(store content.Store, client *http.Client) *FileLoader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &FileLoader{store: store, client: client}
}

// Candidates lists the addresses tried for addr, in order.
func Candidates(addr string, exts []string) []string {
	if address.IsRemote(addr) || path.Ext(addr) != "" || len(exts) == 0 {
		return []string{addr}
	}
	out := make([]string, len(exts))
	for i, ext := range exts {
		out[i] = addr + ext
	}
	return out
}

// Load implements Loader.
func (l *FileLoader) Load(ctx context.Context, addr string, exts []string) (any, string, error) {
	if address.IsRemote(addr) {
		v, err := l.fetchRemote(ctx, addr)
		return v, addr, err
	}

	candidates := Candidates(addr, exts)
	for _, candidate := range candidates {
		if len(candidates) > 1 && !l.store.Exists(candidate) {
			continue
		}
		text, err := l.store.Read(ctx, candidate)
		if err != nil {
			return nil, candidate, err
		}
		v, err := Decode(text, path.Ext(candidate), candidate)
		if err != nil {
			return nil, candidate, errors.NewDataError(candidate, err)
		}
		return v, candidate, nil
	}

	return nil, addr, errors.NewNotFoundError(addr, fmt.Errorf("no data file with extensions %v: %w", exts, fs.ErrNotExist))
}

func (l *FileLoader) fetchRemote(ctx context.Context, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewDataError(url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.NewDataError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewNotFoundError(url, fmt.Errorf("http %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewDataError(url, fmt.Errorf("http %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, errors.NewDataError(url, err)
	}
	v, err := Decode(string(body), ".json", url)
	if err != nil {
		return nil, errors.NewDataError(url, err)
	}
	return v, nil
}

// Decode parses text according to ext. Unknown extensions are parsed as
// YAML, which also accepts JSON.
func Decode(text, ext, filename string) (any, error) {
	switch strings.ToLower(ext) {
	case ".json":
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, err
		}
		return normalizeJSON(v), nil
	case ".hcl":
		return decodeHCL(text, filename)
	default:
		var v any
		if err := yaml.Unmarshal([]byte(text), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// decodeHCL evaluates every top-level attribute of an HCL file into a map.
// Blocks are not allowed; data files are flat attribute sets whose values
// may be any HCL expression without variables, and may call the functions
// in ctyconv.Functions.
func decodeHCL(text, filename string) (any, error) {
	file, diags := hclsyntax.ParseConfig([]byte(text), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	evalCtx := &hcl.EvalContext{Functions: ctyconv.Functions()}
	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, diags
		}
		gv, err := ctyconv.ToGo(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = gv
	}
	return out, nil
}

// normalizeJSON turns whole float64 numbers into ints so JSON and YAML
// data render numbers the same way.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case float64:
		if t == float64(int(t)) {
			return int(t)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeJSON(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeJSON(t[k])
		}
		return t
	}
	return v
}

// Merge deep-merges src into dst and returns dst. Nested maps merge key by
// key; every other value in src replaces the one in dst.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, sv := range src {
		sm, sok := sv.(map[string]any)
		dm, dok := dst[k].(map[string]any)
		if sok && dok {
			dst[k] = Merge(copyMap(dm), sm)
			continue
		}
		dst[k] = sv
	}
	return dst
}

func copyMap(m map[string]any) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
