// Package address turns template references into absolute resource
// addresses.
//
// A reference is one of:
//
//	/abs/path.html          absolute, returned unchanged
//	https://host/x.json     remote, returned unchanged
//	shared:nav              {root}/{shared}/{type dir}/nav
//	locale:nav              {root}/{project}/{project type dir or type dir}/nav
//	nav                     relative to the directory of the requesting template
//
// Markers are case-insensitive and the trailing letter is optional
// (share:, local: are accepted). A reference with an unknown prefix such
// as foo:bar is treated as a plain relative path.
package address

import (
	"path"
	"regexp"
	"strings"

	"github.com/conneroisu/quilt/internal/config"
)

// Kind is the type of resource a reference points to.
type Kind = config.Kind

const (
	Helper  = config.KindHelper
	Data    = config.KindData
	Partial = config.KindPartial
	Layout  = config.KindLayout
	View    = config.KindView
)

// Marker identifies which override layer a reference targets.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerShared
	MarkerLocale
)

func (m Marker) String() string {
	switch m {
	case MarkerShared:
		return "shared"
	case MarkerLocale:
		return "locale"
	default:
		return "none"
	}
}

var (
	sharedMarker = regexp.MustCompile(`(?i)^\s*shared?:\s*`)
	localeMarker = regexp.MustCompile(`(?i)^\s*locale?:\s*`)
)

// ParseMarker splits ref into its marker and the remaining path.
func ParseMarker(ref string) (Marker, string) {
	if loc := sharedMarker.FindStringIndex(ref); loc != nil {
		return MarkerShared, ref[loc[1]:]
	}
	if loc := localeMarker.FindStringIndex(ref); loc != nil {
		return MarkerLocale, ref[loc[1]:]
	}
	return MarkerNone, ref
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// IsAbsolute reports whether ref needs no resolution at all.
func IsAbsolute(ref string) bool {
	return path.IsAbs(ref) || IsRemote(ref)
}

// Resolve maps ref to an absolute address.
//
// requesting is the address of the template containing the reference and
// project is the project directory relative to base.Root. local may be nil.
func Resolve(ref string, kind Kind, requesting, project string, base *config.Template, local *config.Overrides) string {
	if IsAbsolute(ref) {
		return ref
	}

	marker, rest := ParseMarker(ref)
	switch marker {
	case MarkerShared:
		return path.Join(base.Root, base.Shared, base.Dir(kind), rest)
	case MarkerLocale:
		dir := local.Dir(kind)
		if dir == "" {
			dir = base.Dir(kind)
		}
		return path.Join(base.Root, project, dir, rest)
	default:
		return path.Join(path.Dir(requesting), rest)
	}
}

// WithDefaultExt appends the configured extension for kind when addr has
// none. Data addresses are returned unchanged; callers try each of
// cfg.DataExts in turn.
func WithDefaultExt(addr string, kind Kind, cfg *config.Template) string {
	if IsRemote(addr) || path.Ext(addr) != "" {
		return addr
	}
	switch kind {
	case Helper:
		return addr + cfg.HelperExt
	case Data:
		return addr
	default:
		return addr + cfg.TemplateExt
	}
}

// ResolveFile is Resolve followed by WithDefaultExt.
func ResolveFile(ref string, kind Kind, requesting, project string, base *config.Template, local *config.Overrides) string {
	return WithDefaultExt(Resolve(ref, kind, requesting, project, base, local), kind, base)
}

// Dir returns the directory part of an address.
func Dir(addr string) string {
	return path.Dir(addr)
}
