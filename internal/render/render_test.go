package render

import (
	"fmt"
	"testing"

	"github.com/aymerick/raymond"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/quilt/internal/assets"
	"github.com/conneroisu/quilt/internal/errors"
	"github.com/conneroisu/quilt/internal/helpers"
	"github.com/conneroisu/quilt/internal/scope"
	"github.com/conneroisu/quilt/internal/syntax"
)

// partials serves trees by raw reference, whatever template asks.
type partials map[string]*syntax.Tree

func (p partials) LookupPartial(_, ref string) (*syntax.Tree, bool) {
	t, ok := p[ref]
	return t, ok
}

func parse(t *testing.T, address, src string) *syntax.Tree {
	t.Helper()
	tree, err := syntax.Parse(src)
	require.NoError(t, err)
	return tree.WithAddress(address)
}

func renderString(t *testing.T, src string, data any, opts *Options) (string, error) {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Helpers == nil {
		opts.Helpers = helpers.NewRegistry()
	}
	return Render(parse(t, "/r/p/index.html", src), scope.New(data), opts)
}

func TestRenderValues(t *testing.T) {
	tests := []struct {
		name string
		src  string
		data any
		want string
	}{
		{"text", "plain", nil, "plain"},
		{"escaped", "<p>{{title}}</p>", map[string]any{"title": "<b>&"}, "<p>&lt;b&gt;&amp;</p>"},
		{"raw", "{{{title}}}", map[string]any{"title": "<b>"}, "<b>"},
		{"missing", "[{{nope}}][{{{nope}}}]", nil, "[][]"},
		{"nested", "{{user.name}}", map[string]any{"user": map[string]any{"name": "ada"}}, "ada"},
		{"number", "{{n}}", map[string]any{"n": 3}, "3"},
		{"literal", `{{"lit"}}`, nil, "lit"},
		{"safe value", "{{v}}", map[string]any{"v": raymond.SafeString("<i>")}, "<i>"},
		{"comment", "a{{! gone }}b", nil, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := renderString(t, tt.src, tt.data, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRenderFilters(t *testing.T) {
	out, err := renderString(t, `{{ name | upper | truncate length=3 }}`, map[string]any{"name": "hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "HEL...", out)

	out, err = renderString(t, `{{ html | default value="<none>" }}`, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "&lt;none&gt;", out, "pipeline output is always escaped")

	_, err = renderString(t, `line one
{{ name | shout }}`, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingFilter))
	var qe *errors.QuiltError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 2, qe.Line)
	assert.Equal(t, "/r/p/index.html", qe.Address)
}

func TestRenderBlockHelpers(t *testing.T) {
	src := `{{#each items}}{{this}}{{#if @last}}.{{else}},{{/if}}{{/each}}`
	out, err := renderString(t, src, map[string]any{"items": []any{"a", "b", "c"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c.", out)

	src = `{{#each items}}{{../title}}:{{name}} {{/each}}`
	out, err = renderString(t, src, map[string]any{
		"title": "T",
		"items": []any{map[string]any{"name": "x"}, map[string]any{"name": "y"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "T:x T:y ", out)

	out, err = renderString(t, `{{#unless ok}}no{{else}}yes{{/unless}}`, map[string]any{"ok": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "yes", out)

	out, err = renderString(t, `{{#with user}}{{name}}{{else}}anon{{/with}}`, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "anon", out)

	out, err = renderString(t, `{{#if x}}{{/if}}`, map[string]any{"x": true}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRenderHelperOptions(t *testing.T) {
	reg := helpers.NewRegistry()
	var seen *helpers.Options
	require.NoError(t, reg.RegisterHelper("probe", func(s *scope.Scope, value any, opts *helpers.Options) (any, error) {
		seen = opts
		return fmt.Sprintf("<%v>", value), nil
	}))

	opts := &Options{
		Helpers:     reg,
		RootAddress: "/r/p/layouts/index.html",
		PageAddress: "/r/p/index.html",
		ConfigRoot:  "/r",
		Resources:   assets.NewManifest(),
	}
	out, err := renderString(t, `{{probe title 2 sep="-"}}|{{{probe title}}}`, map[string]any{"title": "t"}, opts)
	require.NoError(t, err)
	assert.Equal(t, "&lt;t&gt;|<t>", out)

	require.NotNil(t, seen)
	assert.Equal(t, "probe", seen.Name)
	assert.Equal(t, []any{"t"}, seen.Args)
	assert.Equal(t, "/r/p/index.html", seen.BaseAddress)
	assert.Equal(t, "/r/p/layouts/index.html", seen.RootAddress)
	assert.Equal(t, "/r/p/index.html", seen.PageAddress)
	assert.Equal(t, "/r", seen.ConfigRoot)
	assert.Same(t, opts.Resources, seen.Resources)
	assert.Nil(t, seen.Fn, "inline helpers have no block")
}

func TestRenderSubExpression(t *testing.T) {
	reg := helpers.NewRegistry()
	require.NoError(t, reg.RegisterHelper("concat", func(_ *scope.Scope, _ any, opts *helpers.Options) (any, error) {
		out := ""
		for _, a := range opts.Args {
			out += helpers.Str(a)
		}
		return out, nil
	}))
	out, err := renderString(t, `{{#if (concat a b)}}{{concat a (concat b "!")}}{{/if}}`,
		map[string]any{"a": "x", "b": "y"}, &Options{Helpers: reg})
	require.NoError(t, err)
	assert.Equal(t, "xy!", out)
}

func TestRenderMissingHelper(t *testing.T) {
	_, err := renderString(t, "ok\n\n{{#each items}}{{nothere this}}{{/each}}", map[string]any{"items": []int{1}}, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingHelper))
	assert.Contains(t, err.Error(), "nothere")
	assert.Contains(t, err.Error(), "/r/p/index.html")

	var qe *errors.QuiltError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 3, qe.Line)
}

func TestRenderHelperFailure(t *testing.T) {
	reg := helpers.NewRegistry()
	require.NoError(t, reg.RegisterHelper("boom", func(*scope.Scope, any, *helpers.Options) (any, error) {
		return nil, fmt.Errorf("kaput")
	}))
	require.NoError(t, reg.RegisterHelper("panics", func(*scope.Scope, any, *helpers.Options) (any, error) {
		panic("oops")
	}))

	_, err := renderString(t, `{{boom 1}}`, nil, &Options{Helpers: reg})
	assert.True(t, errors.HasCode(err, errors.ErrCodeHelperFailed))
	assert.ErrorContains(t, err, "kaput")

	_, err = renderString(t, `{{panics 1}}`, nil, &Options{Helpers: reg})
	assert.True(t, errors.HasCode(err, errors.ErrCodeHelperFailed))
	assert.ErrorContains(t, err, "oops")

	// A failure inside a block surfaces with its own location.
	_, err = renderString(t, `{{#if x}}{{boom 1}}{{/if}}`, map[string]any{"x": true}, &Options{Helpers: reg})
	var qe *errors.QuiltError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "boom", qe.Context["helper"])
}

func TestRenderPartials(t *testing.T) {
	p := partials{
		"nav":    parse(t, "/r/shared/partials/nav.html", `<nav>{{title}}</nav>`),
		"card":   parse(t, "/r/p/card.html", "---\ncolor: red\nsize: s\n---\n{{color}}-{{size}}-{{name}}"),
		"scalar": parse(t, "/r/p/scalar.html", `[{{this}}]`),
		"meta":   parse(t, "/r/p/meta.html", "---\nlabel: L\n---\n{{label}}:{{@data}}:{{title}}"),
	}
	data := map[string]any{
		"title": "Home",
		"item":  map[string]any{"name": "n", "size": "m"},
	}

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"parent scope", `{{> nav}}`, "<nav>Home</nav>"},
		{"front matter", `{{> card}}`, "red-s-"},
		{"context over front matter", `{{> card item}}`, "red-m-n"},
		{"hash over context", `{{> card item size="xl"}}`, "red-xl-n"},
		{"hash only", `{{> card name=title}}`, "red-s-Home"},
		{"scalar context", `{{> scalar title}}`, "[Home]"},
		{"scalar with front matter", `{{> meta "v"}}`, "L:v:Home"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := renderString(t, tt.src, data, &Options{Partials: p})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	assert.Equal(t, "red", p["card"].Meta["color"], "front matter is never written")
}

func TestRenderMissingPartial(t *testing.T) {
	_, err := renderString(t, `{{> ghost}}`, nil, &Options{Partials: partials{}})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingPartial))
	assert.Contains(t, err.Error(), "ghost")

	_, err = renderString(t, `{{> ghost}}`, nil, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingPartial))
}

type boundPartials map[string]string

func (boundPartials) LookupPartial(_, _ string) (*syntax.Tree, bool) { return nil, false }

func (b boundPartials) ResolvePartial(_, ref string) (string, bool) {
	addr, ok := b[ref]
	return addr, ok
}

func TestRenderMissingPartialNamesResolvedAddress(t *testing.T) {
	_, err := renderString(t, `{{> ghost}}`, nil, &Options{Partials: boundPartials{"ghost": "/r/p/partials/ghost.html"}})
	require.Error(t, err)

	var qe *errors.QuiltError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, errors.ErrCodeMissingPartial, qe.Code)
	assert.Contains(t, qe.Message, "/r/p/partials/ghost.html")
	assert.Equal(t, "/r/p/partials/ghost.html", qe.Context["resolved"])
}

func TestRenderPartialCycle(t *testing.T) {
	p := partials{}
	p["a"] = parse(t, "/r/p/a.html", `a{{> b}}`)
	p["b"] = parse(t, "/r/p/b.html", `b{{> a}}`)

	_, err := renderString(t, `{{> a}}`, nil, &Options{Partials: p})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested more than")
}

func TestRenderIsDeterministic(t *testing.T) {
	src := `{{#each m}}{{@key}}={{this}};{{/each}}`
	data := map[string]any{"m": map[string]any{"b": 2, "a": 1, "c": 3}}
	first, err := renderString(t, src, data, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		out, err := renderString(t, src, data, nil)
		require.NoError(t, err)
		assert.Equal(t, first, out)
	}
	assert.Equal(t, "a=1;b=2;c=3;", first)
}

func TestRenderAssets(t *testing.T) {
	m := assets.NewManifest()
	opts := &Options{
		PageAddress: "/r/p/index.html",
		ConfigRoot:  "/r",
		Resources:   m,
	}
	out, err := renderString(t, `{{css "main.css"}}{{img "logo.png" alt="Logo"}}`, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, `<link rel="stylesheet" href="main.css"><img src="logo.png" alt="Logo">`, out)
	assert.Equal(t, 2, m.Len())
}
