// Package assets tracks the stylesheets, scripts and images a render
// references, and computes the hrefs those references are written as.
//
// A Manifest is filled by the css, js and img helpers during one render and
// handed to post-render observers. Post-processing (compiling, bundling) is
// left to those observers; the package only records what was asked for.
package assets

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aymerick/raymond"

	"github.com/conneroisu/quilt/internal/address"
)

// Kind is a resource category.
type Kind string

const (
	CSS Kind = "css"
	JS  Kind = "js"
	Img Kind = "img"
)

// Resource is one referenced asset.
type Resource struct {
	Kind Kind `json:"kind"`
	// URL is the reference as written in the template.
	URL string `json:"url"`
	// Path is the resolved address. Empty for remote resources.
	Path string `json:"path,omitempty"`
	// Href is what the page links to.
	Href   string            `json:"href"`
	Remote bool              `json:"remote,omitempty"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// Manifest is the set of resources one render referenced, in first-use
// order and without duplicates. It is owned by a single render and is not
// safe for concurrent use.
type Manifest struct {
	CSS []Resource `json:"css"`
	JS  []Resource `json:"js"`
	Img []Resource `json:"img"`

	seen map[string]struct{}
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{seen: make(map[string]struct{})}
}

// Add records r and reports whether it was new. A resource with the same
// kind and href as an earlier one is dropped.
func (m *Manifest) Add(r Resource) bool {
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	key := string(r.Kind) + "\x00" + r.Href
	if _, ok := m.seen[key]; ok {
		return false
	}
	m.seen[key] = struct{}{}

	switch r.Kind {
	case CSS:
		m.CSS = append(m.CSS, r)
	case JS:
		m.JS = append(m.JS, r)
	default:
		r.Kind = Img
		m.Img = append(m.Img, r)
	}
	return true
}

// List returns the resources of kind.
func (m *Manifest) List(kind Kind) []Resource {
	switch kind {
	case CSS:
		return m.CSS
	case JS:
		return m.JS
	case Img:
		return m.Img
	}
	return nil
}

// All returns every resource, stylesheets first, then scripts, then images.
func (m *Manifest) All() []Resource {
	out := make([]Resource, 0, m.Len())
	out = append(out, m.CSS...)
	out = append(out, m.JS...)
	return append(out, m.Img...)
}

// Len returns the number of recorded resources.
func (m *Manifest) Len() int {
	return len(m.CSS) + len(m.JS) + len(m.Img)
}

// Location is where a url-producing helper runs: the template containing
// the call, the page being rendered and the serving root.
type Location struct {
	Base       string
	Page       string
	ConfigRoot string
}

// ResolveURL maps a template reference to its resolved address and the href
// the page should use.
//
// Remote URLs are returned as they are with an empty address. Absolute paths
// are their own address and href. Relative references are joined to base
// (the hash override) or else to the directory of loc.Base; the href is that
// address relative to the page's directory, or root-relative to
// loc.ConfigRoot when forceAbsolute is set.
func ResolveURL(ref string, loc Location, base string, forceAbsolute bool) (addr, href string) {
	if address.IsRemote(ref) {
		return "", ref
	}
	if path.IsAbs(ref) {
		return ref, ref
	}

	if base == "" {
		base = loc.Base
	}
	addr = ref
	if base != "" {
		if path.Ext(base) != "" {
			base = path.Dir(base)
		}
		addr = path.Join(base, ref)
	}

	if forceAbsolute && loc.ConfigRoot != "" {
		return addr, path.Join("/", strings.TrimPrefix(addr, loc.ConfigRoot))
	}
	return addr, relative(path.Dir(loc.Page), addr)
}

func relative(from, to string) string {
	rel, err := filepath.Rel(filepath.FromSlash(from), filepath.FromSlash(to))
	if err != nil {
		return to
	}
	return filepath.ToSlash(rel)
}

// controlKeys are helper hash keys that steer resolution and never become
// HTML attributes.
var controlKeys = map[string]bool{
	"embed":         true,
	"forceAbsolute": true,
	"base":          true,
	"smartPos":      true,
	"autoAdjustPos": true,
}

// IsControlKey reports whether a helper hash key is consumed by the asset
// helpers rather than emitted as an attribute.
func IsControlKey(key string) bool {
	return controlKeys[key]
}

// Tag renders the HTML element referencing r.
func Tag(r Resource) string {
	var b strings.Builder
	switch r.Kind {
	case CSS:
		b.WriteString(`<link rel="stylesheet" href="`)
		b.WriteString(raymond.Escape(r.Href))
		b.WriteByte('"')
		writeAttrs(&b, r.Attrs)
		b.WriteByte('>')
	case JS:
		b.WriteString(`<script src="`)
		b.WriteString(raymond.Escape(r.Href))
		b.WriteByte('"')
		writeAttrs(&b, r.Attrs)
		b.WriteString("></script>")
	default:
		b.WriteString(`<img src="`)
		b.WriteString(raymond.Escape(r.Href))
		b.WriteByte('"')
		writeAttrs(&b, r.Attrs)
		b.WriteByte('>')
	}
	return b.String()
}

func writeAttrs(b *strings.Builder, attrs map[string]string) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(raymond.Escape(attrs[k]))
		b.WriteByte('"')
	}
}
