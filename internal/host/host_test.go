package host

import (
	"testing"

	"github.com/langfuse-nodes/server/internal/core"
	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	params := map[string]any{
		"options": map[string]any{"prompt": `{"name":"p"}`},
		"flat":    1,
	}

	v, ok := Lookup(params, "options.prompt")
	require.True(t, ok)
	assert.Equal(t, `{"name":"p"}`, v)

	v, ok = Lookup(params, "flat")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = Lookup(params, "options.missing")
	assert.False(t, ok)
	_, ok = Lookup(params, "flat.deeper")
	assert.False(t, ok)
}

func TestMetadataMap(t *testing.T) {
	m := Metadata{
		ExecutionID: "7",
		Workflow:    Workflow{ID: "w", Name: "Flow"},
		Instance:    Instance{ID: "i", BaseURL: "http://x"},
		Mode:        core.ModeCLI,
	}.Map()

	assert.Equal(t, "7", m["executionId"])
	assert.Equal(t, map[string]any{"id": "w", "name": "Flow"}, m["workflow"])
	assert.Equal(t, map[string]any{"mode": "cli"}, m["misc"])
}

type stubType struct{ d Description }

func (s stubType) Description() Description { return s.d }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("b.node", stubType{}))
	require.NoError(t, r.Register("a.node", stubType{}))
	assert.Error(t, r.Register("a.node", stubType{}))

	_, ok := r.Get("a.node")
	assert.True(t, ok)
	_, ok = r.Get("c.node")
	assert.False(t, ok)
	assert.Equal(t, []string{"a.node", "b.node"}, r.IDs())
}

func TestLatestVersion(t *testing.T) {
	assert.Equal(t, 1.0, Description{}.LatestVersion())
	assert.Equal(t, 1.2, Description{Version: []float64{1, 1.2, 1.1}}.LatestVersion())
}

type paramSource map[string]any

func (p paramSource) Node() Node { return Node{Name: "N"} }

func (p paramSource) Parameter(name string, _ int, fallback any) (any, error) {
	if v, ok := Lookup(p, name); ok {
		return v, nil
	}
	return fallback, nil
}

func TestParamGetters(t *testing.T) {
	src := paramSource{
		"s":    "text",
		"n":    3,
		"ns":   " 2.5 ",
		"b":    "true",
		"list": []any{"a"},
		"opts": map[string]any{"size": 7.0},
		"bad":  map[string]any{},
	}

	s, err := GetString(src, "s", 0, "")
	require.NoError(t, err)
	assert.Equal(t, "text", s)
	s, err = GetString(src, "n", 0, "")
	require.NoError(t, err)
	assert.Equal(t, "3", s)
	s, err = GetString(src, "missing", 0, "dflt")
	require.NoError(t, err)
	assert.Equal(t, "dflt", s)
	_, err = GetString(src, "bad", 0, "")
	assert.ErrorIs(t, err, errx.ErrTypeMismatch)

	n, err := GetNumber(src, "ns", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.5, n)
	n, err = GetNumber(src, "opts.size", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 7.0, n)
	n, err = GetNumber(src, "missing", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, n)
	_, err = GetNumber(src, "s", 0, 0)
	assert.ErrorIs(t, err, errx.ErrTypeMismatch)

	b, err := GetBool(src, "b", 0, false)
	require.NoError(t, err)
	assert.True(t, b)
	_, err = GetBool(src, "n", 0, false)
	assert.ErrorIs(t, err, errx.ErrTypeMismatch)

	l, err := GetList(src, "list", 0)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, l)
	l, err = GetList(src, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, l)
	_, err = GetList(src, "s", 0)
	assert.ErrorIs(t, err, errx.ErrTypeMismatch)
}
