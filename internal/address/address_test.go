package address

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conneroisu/quilt/internal/config"
)

func testTemplate() *config.Template {
	t := config.Default().Template
	t.Root = "/r"
	t.Shared = "S"
	t.Dirs.Partial = "partials"
	return &t
}

func TestResolve(t *testing.T) {
	base := testTemplate()
	local := &config.Overrides{Dirs: config.Dirs{Partial: "parts"}}

	tests := []struct {
		name       string
		ref        string
		kind       Kind
		requesting string
		local      *config.Overrides
		want       string
	}{
		{"shared marker", "shared:nav", Partial, "/r/proj/index.html", nil, "/r/S/partials/nav"},
		{"shared marker short form", "Share: nav", Partial, "/r/proj/index.html", nil, "/r/S/partials/nav"},
		{"locale marker uses project override", "locale:nav", Partial, "/r/proj/index.html", local, "/r/proj/parts/nav"},
		{"locale marker falls back to base dir", "locale:nav", Partial, "/r/proj/index.html", nil, "/r/proj/partials/nav"},
		{"locale short form", "LOCAL:main", Layout, "/r/proj/index.html", nil, "/r/proj/layouts/main"},
		{"relative ignores type dir", "nav", Partial, "/r/proj/sub/page.html", local, "/r/proj/sub/nav"},
		{"relative parent", "../nav", Partial, "/r/proj/sub/page.html", nil, "/r/proj/nav"},
		{"absolute unchanged", "/abs/x.html", Partial, "/r/proj/index.html", nil, "/abs/x.html"},
		{"remote unchanged", "https://cdn.example.com/d.json", Data, "/r/proj/index.html", nil, "https://cdn.example.com/d.json"},
		{"unknown marker is relative", "foo:bar", Partial, "/r/proj/index.html", nil, "/r/proj/foo:bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.ref, tt.kind, tt.requesting, "proj", base, tt.local)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithDefaultExt(t *testing.T) {
	base := testTemplate()

	assert.Equal(t, "/r/S/partials/nav.html", WithDefaultExt("/r/S/partials/nav", Partial, base))
	assert.Equal(t, "/r/p/layouts/main.html", WithDefaultExt("/r/p/layouts/main", Layout, base))
	assert.Equal(t, "/r/p/helpers/badge.hcl", WithDefaultExt("/r/p/helpers/badge", Helper, base))
	assert.Equal(t, "/r/p/data/site", WithDefaultExt("/r/p/data/site", Data, base))
	assert.Equal(t, "/r/p/nav.tpl", WithDefaultExt("/r/p/nav.tpl", Partial, base))
	assert.Equal(t, "https://x/y", WithDefaultExt("https://x/y", Partial, base))

	assert.Equal(t, "/r/S/partials/nav.html",
		ResolveFile("shared:nav", Partial, "/r/p/index.html", "p", base, nil))
}

func TestParseMarker(t *testing.T) {
	tests := []struct {
		ref    string
		marker Marker
		rest   string
	}{
		{"shared:a/b", MarkerShared, "a/b"},
		{"  SHARED:  a", MarkerShared, "a"},
		{"locale:x", MarkerLocale, "x"},
		{"local:x", MarkerLocale, "x"},
		{"x", MarkerNone, "x"},
		{"sharedx:y", MarkerNone, "sharedx:y"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			m, rest := ParseMarker(tt.ref)
			assert.Equal(t, tt.marker, m)
			assert.Equal(t, tt.rest, rest)
		})
	}
}

func TestProjectDirectory(t *testing.T) {
	tests := []struct {
		page    string
		pattern string
		want    string
	}{
		{"mydir/index.html", "{group,set}/*", "mydir"},
		{"group/proj/x.html", "{group,set}/*", "group/proj"},
		{"set/proj/deep/x.html", "{group,set}/*", "set/proj"},
		{"/mydir/sub/index.html", "{group,set}/*", "mydir"},
		{"index.html", "{group,set}/*", ""},
		{"group/x.html", "{group,set}/*", "group"},
		{"mydir/index.html", "", "mydir"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.page, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectDirectory(tt.page, tt.pattern))
		})
	}
}

func TestExpandBraces(t *testing.T) {
	assert.Equal(t, []string{"group/*", "set/*"}, ExpandBraces("{group,set}/*"))
	assert.Equal(t, []string{"a/x", "a/y", "b"}, ExpandBraces("{a/{x,y},b}"))
	assert.Equal(t, []string{"plain"}, ExpandBraces("plain"))
	assert.Equal(t, []string{"{open"}, ExpandBraces("{open"))
}
