package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type author struct {
	Name  string
	Email string `yaml:"mail"`
	Tags  []string
	note  string
}

func (a author) Initial() string { return a.Name[:1] }

func TestLookup(t *testing.T) {
	root := New(map[string]any{
		"title": "Home",
		"site":  map[string]any{"name": "quilt", "nav": []any{"a", "b"}},
		"user":  &author{Name: "Ada", Email: "ada@example.com", Tags: []string{"x", "y"}, note: "hidden"},
	})
	child := root.Push(map[string]any{"title": "Post", "count": 3})
	item := child.PushPrivate("second", map[string]any{"index": 1, "first": false})

	tests := []struct {
		name   string
		scope  *Scope
		path   string
		want   any
		wantOK bool
	}{
		{"own frame", child, "title", "Post", true},
		{"falls back to parent", child, "site.name", "quilt", true},
		{"parent frame explicitly", child, "../title", "Home", true},
		{"this", item, "this", "second", true},
		{"dot", item, ".", "second", true},
		{"private var", item, "@index", 1, true},
		{"private var false", item, "@first", false, true},
		{"root var", item, "@root.title", "Home", true},
		{"slice index", root, "site.nav.1", "b", true},
		{"bracket segment", root, "site.nav.[0]", "a", true},
		{"struct field", root, "user.Name", "Ada", true},
		{"struct yaml tag", root, "user.mail", "ada@example.com", true},
		{"typed slice index", root, "user.Tags.0", "x", true},
		{"method", root, "user.Initial", "A", true},
		{"unexported field", root, "user.note", nil, false},
		{"missing", child, "nope", nil, false},
		{"missing nested", child, "site.name.deeper", nil, false},
		{"this pins frame", child, "this.site", nil, false},
		{"unknown private", root, "@index", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.scope.Lookup(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPushDoesNotMutateParent(t *testing.T) {
	parentData := map[string]any{"a": 1}
	parent := New(parentData)
	child := parent.Push(map[string]any{"a": 2})

	v, _ := parent.Lookup("a")
	assert.Equal(t, 1, v)
	v, _ = child.Lookup("a")
	assert.Equal(t, 2, v)
	assert.Same(t, parent, child.Parent())
	assert.Same(t, parent, child.Root())
	assert.Equal(t, map[string]any{"a": 1}, parentData)
}

func TestDepthBeyondRootStopsAtRoot(t *testing.T) {
	s := New(map[string]any{"x": "root"})
	v, ok := s.Push(nil).Lookup("../../../x")
	require.True(t, ok)
	assert.Equal(t, "root", v)
}

func TestNilFrames(t *testing.T) {
	s := New(nil).Push(nil)
	_, ok := s.Lookup("anything")
	assert.False(t, ok)
	_, ok = s.Lookup("this")
	assert.False(t, ok)
}

func TestTypedMap(t *testing.T) {
	type key string
	s := New(map[key]int{"n": 4})
	v, ok := s.Lookup("n")
	require.True(t, ok)
	assert.Equal(t, 4, v)
}
