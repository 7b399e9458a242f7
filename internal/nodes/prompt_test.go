package nodes

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langfuse-nodes/server/internal/core"
	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

func greetingPrompt() map[string]any {
	return map[string]any{
		"name":    "greeting",
		"version": 3,
		"type":    "text",
		"prompt":  "Hello {{name}}",
		"labels":  []any{"production"},
	}
}

func TestGetPromptStoresPromptOnItems(t *testing.T) {
	env := newEnv(t)
	env.srv.AddPrompt("greeting", greetingPrompt())
	ec := env.context("Get Prompt", GetPromptType, map[string]any{
		"name":          "greeting",
		"promptKeyName": "p",
	})
	ec.Items = []host.Item{{JSON: map[string]any{"a": 1}}, {JSON: map[string]any{"a": 2}}}

	out, err := NewGetPrompt(env.deps).Execute(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], 2)
	for i, it := range out[0] {
		assert.Equal(t, i+1, it.JSON["a"])
		p := it.JSON["p"].(map[string]any)
		assert.Equal(t, "Hello {{name}}", p["prompt"])
		assert.Equal(t, 3.0, p["version"])
		assert.Equal(t, i, it.PairedItem.Item)
	}
	assert.NotContains(t, ec.Items[0].JSON, "p")
	assert.Equal(t, []string{"label=production"}, env.srv.PromptQueries())
}

func TestGetPromptOptions(t *testing.T) {
	env := newEnv(t)
	env.srv.AddPrompt("greeting", greetingPrompt())
	node := NewGetPrompt(env.deps)

	ec := env.context("Get Prompt", GetPromptType, map[string]any{
		"name":    "greeting",
		"options": map[string]any{"additionalOptions": `{"label": "staging", "cacheTtlSeconds": -1}`},
	})
	ec.Items = []host.Item{{JSON: map[string]any{}}}
	out, err := node.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Contains(t, out[0][0].JSON, "prompt")

	ec = env.context("Get Prompt", GetPromptType, map[string]any{"name": "greeting", "version": 3})
	ec.Items = []host.Item{{JSON: map[string]any{}}}
	_, err = node.Execute(context.Background(), ec)
	require.NoError(t, err)

	assert.Equal(t, []string{"label=staging", "version=3"}, env.srv.PromptQueries())
}

func TestGetPromptErrors(t *testing.T) {
	env := newEnv(t)
	node := NewGetPrompt(env.deps)

	_, err := node.Execute(context.Background(), env.context("Get Prompt", GetPromptType, nil))
	assert.True(t, errors.Is(err, errx.ErrNodeOperation))

	ec := env.context("Get Prompt", GetPromptType, map[string]any{
		"name":    "greeting",
		"options": map[string]any{"additionalOptions": "{not json"},
	})
	_, err = node.Execute(context.Background(), ec)
	assert.True(t, errors.Is(err, errx.ErrInvalidJSON))

	ec = env.context("Get Prompt", GetPromptType, map[string]any{
		"name":    "greeting",
		"options": map[string]any{"additionalOptions": `{"label": 5}`},
	})
	_, err = node.Execute(context.Background(), ec)
	assert.True(t, errors.Is(err, errx.ErrInvalidJSON))

	ec = env.context("Get Prompt", GetPromptType, map[string]any{"name": "missing"})
	_, err = node.Execute(context.Background(), ec)
	assert.True(t, errors.Is(err, errx.ErrUpstream))

	ec = env.context("Get Prompt", GetPromptType, map[string]any{"name": "greeting"})
	delete(ec.Creds, "langfuseApi")
	_, err = node.Execute(context.Background(), ec)
	assert.Error(t, err)
}

func TestGetPromptFetchFailureIsReturnedNotLogged(t *testing.T) {
	var buf bytes.Buffer
	logx.Init(logx.LoggerOpts{Environment: core.Production, Level: "debug", Output: &buf})
	t.Cleanup(func() { logx.Init() })

	env := newEnv(t)
	ec := env.context("Get Prompt", GetPromptType, map[string]any{"name": "missing"})
	_, err := NewGetPrompt(env.deps).Execute(context.Background(), ec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrUpstream))
	assert.Contains(t, err.Error(), `"missing"`)
	assert.NotContains(t, buf.String(), `"level":"error"`)
}

func TestLogCurrentTime(t *testing.T) {
	env := newEnv(t)
	ec := env.context("Log Current Time", LogCurrentTimeType, nil)
	ec.Items = []host.Item{{JSON: map[string]any{"a": 1}}, {JSON: map[string]any{"a": 2}}}
	ec.ItemParameters = map[int]map[string]any{1: {"key": "startedAt"}}

	out, err := NewLogCurrentTime(env.deps).Execute(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, out[0], 2)

	want := fixedNow.UnixMilli()
	assert.Equal(t, want, out[0][0].JSON["timestamp"])
	assert.Equal(t, want, out[0][1].JSON["startedAt"])
	assert.NotContains(t, out[0][1].JSON, "timestamp")
	assert.Equal(t, 1, out[0][0].JSON["a"])
	assert.NotContains(t, ec.Items[0].JSON, "timestamp")
}
