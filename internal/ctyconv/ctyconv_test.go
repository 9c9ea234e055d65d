package ctyconv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestRoundTrip(t *testing.T) {
	in := map[string]any{
		"title": "Home",
		"count": 3,
		"ratio": 0.5,
		"draft": false,
		"tags":  []any{"a", "b"},
		"nested": map[string]any{
			"empty": []any{},
			"none":  nil,
		},
	}

	got, err := ToGo(FromGo(in))
	require.NoError(t, err)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFromGoStructsAndPointers(t *testing.T) {
	type item struct {
		Name   string
		hidden int
	}
	v := FromGo(&item{Name: "x", hidden: 1})
	require.True(t, v.Type().IsObjectType())
	assert.True(t, v.Type().HasAttribute("Name"))
	assert.False(t, v.Type().HasAttribute("hidden"))

	assert.True(t, FromGo((*item)(nil)).IsNull())
	assert.Equal(t, cty.StringVal("(1+2i)"), FromGo(complex(1, 2)))
}

func TestToGoNumbers(t *testing.T) {
	v, err := ToGo(cty.NumberIntVal(42))
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = ToGo(cty.NumberFloatVal(1.25))
	require.NoError(t, err)
	assert.Equal(t, 1.25, v)

	v, err = ToGo(cty.UnknownVal(cty.String))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestToGoSet(t *testing.T) {
	v, err := ToGo(cty.SetVal([]cty.Value{cty.StringVal("a")}))
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, v)
}
