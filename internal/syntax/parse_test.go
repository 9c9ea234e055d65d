package syntax

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeKinds(t *testing.T) {
	tree, err := Parse(`<h1>{{title}}</h1>{{{raw}}}{{> shared:nav}}{{#if ok}}yes{{else}}no{{/if}}{{badge user size=2}}`)
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 7)

	assert.Equal(t, "<h1>", tree.Nodes[0].(*TextNode).Text)

	v := tree.Nodes[1].(*ValueNode)
	assert.True(t, v.Escaped)
	assert.Equal(t, []string{"title"}, v.Value.Path.Parts)

	assert.Equal(t, "</h1>", tree.Nodes[2].(*TextNode).Text)

	raw := tree.Nodes[3].(*ValueNode)
	assert.False(t, raw.Escaped)

	p := tree.Nodes[4].(*PartialNode)
	assert.Equal(t, "shared:nav", p.Ref)
	assert.Nil(t, p.Param)

	block := tree.Nodes[5].(*HelperNode)
	assert.True(t, block.Block)
	assert.Equal(t, "if", block.Name)
	require.Len(t, block.Body, 1)
	require.Len(t, block.Else, 1)
	assert.Equal(t, "yes", block.Body[0].(*TextNode).Text)
	assert.Equal(t, "no", block.Else[0].(*TextNode).Text)

	inline := tree.Nodes[6].(*HelperNode)
	assert.False(t, inline.Block)
	assert.True(t, inline.Escaped)
	assert.Equal(t, "badge", inline.Name)
	require.Len(t, inline.Params, 1)
	assert.Equal(t, "user", inline.Params[0].Path.Original)
	assert.Equal(t, 2, inline.Hash["size"].Literal)
}

func TestParseFilterPipeline(t *testing.T) {
	tree, err := Parse("{{ title | upper | truncate length=5 suffix=\"..\" }}")
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 1)

	f, ok := tree.Nodes[0].(*FilterNode)
	require.True(t, ok, "got %T", tree.Nodes[0])
	assert.Equal(t, "title", f.Value.Path.Original)
	require.Len(t, f.Filters, 2)
	assert.Equal(t, "upper", f.Filters[0].Name)
	assert.Equal(t, "truncate", f.Filters[1].Name)
	assert.Equal(t, 5, f.Filters[1].Hash["length"].Literal)
	assert.Equal(t, "..", f.Filters[1].Hash["suffix"].Literal)
}

func TestParseFilterRejectsPositionalArgs(t *testing.T) {
	_, err := Parse("{{ title | truncate 5 }}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "named arguments")
}

func TestParsePartialWithContext(t *testing.T) {
	tree, err := Parse(`{{> "locale:card" item title="x"}}`)
	require.NoError(t, err)

	p := tree.Nodes[0].(*PartialNode)
	assert.Equal(t, "locale:card", p.Ref)
	require.NotNil(t, p.Param)
	assert.Equal(t, "item", p.Param.Path.Original)
	assert.Equal(t, "x", p.Hash["title"].Literal)
}

func TestParseFrontMatterAndLines(t *testing.T) {
	src := "---\nlayout: main\ndata: site\n---\n<p>\n{{missing 1}}\n"
	tree, err := Parse(src)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"layout": "main", "data": "site"}, tree.Meta)
	assert.False(t, tree.Doctype)
	assert.Equal(t, src, tree.Source)

	var helper *HelperNode
	Inspect(tree.Nodes, func(n Node) bool {
		if h, ok := n.(*HelperNode); ok {
			helper = h
		}
		return true
	})
	require.NotNil(t, helper)
	assert.Equal(t, 6, helper.Line, "lines count the front matter")
}

func TestParseDoctype(t *testing.T) {
	tree, err := Parse("  <!DOCTYPE html><html></html>")
	require.NoError(t, err)
	assert.True(t, tree.Doctype)

	tree, err = Parse("---\ntitle: x\n---\n<!doctype html>")
	require.NoError(t, err)
	assert.True(t, tree.Doctype)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unclosed block", "{{#if x}}"},
		{"bad front matter", "---\n: : :\n  - [\n---\nbody"},
		{"dynamic partial", "{{> (lookup . 'x')}}"},
		{"block params", "{{#each items as |item|}}{{item}}{{/each}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestWithAddressDoesNotMutate(t *testing.T) {
	tree := MustParse("hello")
	a := tree.WithAddress("/r/a.html")
	b := tree.WithAddress("/r/b.html")

	assert.Empty(t, tree.Address)
	assert.Equal(t, "/r/a.html", a.Address)
	assert.Equal(t, "/r/b.html", b.Address)
	assert.Same(t, tree.Nodes[0], a.Nodes[0])
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		in   string
		want Path
	}{
		{"foo", Path{Original: "foo", Parts: []string{"foo"}}},
		{"foo.bar", Path{Original: "foo.bar", Parts: []string{"foo", "bar"}}},
		{"foo/bar", Path{Original: "foo/bar", Parts: []string{"foo", "bar"}}},
		{"this", Path{Original: "this"}},
		{".", Path{Original: "."}},
		{"this.name", Path{Original: "this.name", Parts: []string{"name"}}},
		{"../../title", Path{Original: "../../title", Parts: []string{"title"}, Depth: 2}},
		{"..", Path{Original: "..", Depth: 1}},
		{"@index", Path{Original: "@index", Parts: []string{"index"}, Data: true}},
		{"items.[0]", Path{Original: "items.[0]", Parts: []string{"items", "0"}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(&tt.want, ParsePath(tt.in)); diff != "" {
				t.Errorf("ParsePath(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestWalkVisitsSubExpressionsAndBodies(t *testing.T) {
	tree := MustParse(`{{#each (sort items)}}{{> row}}{{ name | upper }}{{/each}}`)

	var seen []string
	Inspect(tree.Nodes, func(n Node) bool {
		switch n := n.(type) {
		case *HelperNode:
			seen = append(seen, "helper:"+n.Name)
		case *PartialNode:
			seen = append(seen, "partial:"+n.Ref)
		case *FilterNode:
			for _, f := range n.Filters {
				seen = append(seen, "filter:"+f.Name)
			}
		}
		return true
	})

	assert.Equal(t, []string{"helper:each", "helper:sort", "partial:row", "filter:upper"}, seen)
}

func TestInspectPrunes(t *testing.T) {
	tree := MustParse(`{{#if a}}{{> inner}}{{/if}}{{> outer}}`)

	var partials []string
	Inspect(tree.Nodes, func(n Node) bool {
		if p, ok := n.(*PartialNode); ok {
			partials = append(partials, p.Ref)
		}
		_, isHelper := n.(*HelperNode)
		return !isHelper
	})
	assert.Equal(t, []string{"outer"}, partials)
}
