package langchain

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/host/hosttest"
	ports "github.com/langfuse-nodes/server/internal/schema"
)

func chainContext(params map[string]any, items ...map[string]any) *hosttest.Context {
	ec := hosttest.New("Chain", ChainLlmType, params)
	for _, it := range items {
		ec.Items = append(ec.Items, host.Item{JSON: it})
	}
	return ec
}

func TestChainLlmDefinedPrompt(t *testing.T) {
	ec := chainContext(map[string]any{"promptType": "define", "text": "Hello"}, map[string]any{})
	ec.Connect(ports.AILanguageModel, echoModel())

	out, err := NewChainLlm().Execute(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0], 1)
	assert.Equal(t, map[string]any{"text": "echo: Hello"}, out[0][0].JSON)
	assert.Equal(t, 0, out[0][0].PairedItem.Item)
}

func TestChainLlmChatInputAndMessages(t *testing.T) {
	m := echoModel()
	ec := chainContext(map[string]any{
		"messages": map[string]any{"messageValues": []any{
			map[string]any{"type": "SystemMessagePromptTemplate", "message": "Be brief {not a var}"},
		}},
	}, map[string]any{"chatInput": "first"}, map[string]any{"chatInput": "second"})
	ec.Connect(ports.AILanguageModel, m)

	out, err := NewChainLlm().Execute(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, out[0], 2)
	assert.Equal(t, "echo: first", out[0][0].JSON["text"])
	assert.Equal(t, "echo: second", out[0][1].JSON["text"])
	assert.Equal(t, 1, out[0][1].PairedItem.Item)

	require.Equal(t, 2, m.callCount())
	first := m.calls[0]
	require.Len(t, first, 2)
	assert.Equal(t, schema.System, first[0].Role)
	assert.Equal(t, "Be brief {not a var}", first[0].Content)
}

func TestChainLlmMissingModel(t *testing.T) {
	ec := chainContext(map[string]any{"promptType": "define", "text": "Hello"}, map[string]any{})
	_, err := NewChainLlm().Execute(context.Background(), ec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrMissingLink))
}

func TestChainLlmMissingPrompt(t *testing.T) {
	ec := chainContext(nil, map[string]any{"other": 1})
	ec.Connect(ports.AILanguageModel, echoModel())
	_, err := NewChainLlm().Execute(context.Background(), ec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrNodeOperation))
	assert.Contains(t, err.Error(), "chatInput")
}

func TestChainLlmOutputParser(t *testing.T) {
	m := &fakeModel{respond: func([]*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("Here you go:\n```json\n{\"city\": \"Bangkok\"}\n```", nil), nil
	}}
	ec := chainContext(map[string]any{"promptType": "define", "text": "Where?", "hasOutputParser": true}, map[string]any{})
	ec.Connect(ports.AILanguageModel, m)
	ec.Connect(ports.AIOutputParser, &JSONParser{Instructions: "JSON please"})

	out, err := NewChainLlm().Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"city": "Bangkok"}, out[0][0].JSON)

	sent := m.calls[0]
	assert.Equal(t, "Where?\nJSON please", sent[len(sent)-1].Content)
}

func TestChainLlmOutputParserMissing(t *testing.T) {
	ec := chainContext(map[string]any{"promptType": "define", "text": "Where?", "hasOutputParser": true}, map[string]any{})
	ec.Connect(ports.AILanguageModel, echoModel())
	_, err := NewChainLlm().Execute(context.Background(), ec)
	assert.True(t, errors.Is(err, errx.ErrMissingLink))
}

func failingOn(bad string) *fakeModel {
	return &fakeModel{respond: func(in []*schema.Message) (*schema.Message, error) {
		if lastUser(in) == bad {
			return nil, errors.New("model exploded")
		}
		return schema.AssistantMessage("ok: "+lastUser(in), nil), nil
	}}
}

func TestChainLlmBatchedContinueOnFail(t *testing.T) {
	ec := chainContext(map[string]any{"batching": map[string]any{"batchSize": 2}},
		map[string]any{"chatInput": "a"},
		map[string]any{"chatInput": "bad"},
		map[string]any{"chatInput": "c"},
	)
	ec.NodeValue.TypeVersion = 1.7
	ec.ContinueErr = true
	ec.Connect(ports.AILanguageModel, failingOn("bad"))

	out, err := NewChainLlm().Execute(context.Background(), ec)
	require.NoError(t, err)
	require.Len(t, out[0], 3)
	assert.Equal(t, "ok: a", out[0][0].JSON["text"])
	assert.Contains(t, out[0][1].JSON["error"], "model exploded")
	assert.Equal(t, 1, out[0][1].PairedItem.Item)
	assert.Equal(t, "ok: c", out[0][2].JSON["text"])
}

func TestChainLlmBatchedFailureCancelsBatch(t *testing.T) {
	var cancelled atomic.Bool
	slowStarted := make(chan struct{})
	m := &fakeModel{generate: func(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
		switch lastUser(in) {
		case "bad":
			select {
			case <-slowStarted:
			case <-time.After(5 * time.Second):
			}
			return nil, errors.New("model exploded")
		case "slow":
			close(slowStarted)
			select {
			case <-ctx.Done():
				cancelled.Store(true)
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return schema.AssistantMessage("too late", nil), nil
			}
		}
		return schema.AssistantMessage("ok", nil), nil
	}}
	ec := chainContext(map[string]any{"batching": map[string]any{"batchSize": 2}},
		map[string]any{"chatInput": "slow"},
		map[string]any{"chatInput": "bad"},
		map[string]any{"chatInput": "never"},
	)
	ec.NodeValue.TypeVersion = 1.7
	ec.Connect(ports.AILanguageModel, m)

	_, err := NewChainLlm().Execute(context.Background(), ec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model exploded")
	assert.True(t, cancelled.Load())
	assert.Equal(t, 2, m.callCount())
}

func TestChainLlmBatchedStopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &fakeModel{generate: func(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	ec := chainContext(map[string]any{"batching": map[string]any{"batchSize": 2}},
		map[string]any{"chatInput": "a"},
		map[string]any{"chatInput": "b"},
	)
	ec.NodeValue.TypeVersion = 1.7
	ec.ContinueErr = true
	ec.Connect(ports.AILanguageModel, m)

	out, err := NewChainLlm().Execute(ctx, ec)
	require.NoError(t, err)
	require.Len(t, out[0], 2)
	assert.Contains(t, out[0][0].JSON["error"], "context canceled")
	assert.Contains(t, out[0][1].JSON["error"], "context canceled")
}

func TestChainLlmSequentialStopsOnError(t *testing.T) {
	m := failingOn("bad")
	ec := chainContext(nil, map[string]any{"chatInput": "bad"}, map[string]any{"chatInput": "b"})
	ec.Connect(ports.AILanguageModel, m)

	_, err := NewChainLlm().Execute(context.Background(), ec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model exploded")
	assert.Equal(t, 1, m.callCount())
}

func TestChainLlmCallbackHook(t *testing.T) {
	var modelStarts atomic.Int32
	handler := einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if info != nil && info.Component == components.ComponentOfChatModel {
				modelStarts.Add(1)
			}
			return ctx
		}).
		Build()

	var hookItems []int
	c := NewChainLlm()
	c.Callbacks = func(_ context.Context, _ host.ExecContext, itemIndex int) ([]einocb.Handler, error) {
		hookItems = append(hookItems, itemIndex)
		return []einocb.Handler{handler}, nil
	}
	ec := chainContext(nil, map[string]any{"chatInput": "x"}, map[string]any{"chatInput": "y"})
	ec.Connect(ports.AILanguageModel, echoModel())

	_, err := c.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, hookItems)
	assert.EqualValues(t, 2, modelStarts.Load())
}

func TestChainLlmHookError(t *testing.T) {
	c := NewChainLlm()
	c.Callbacks = func(context.Context, host.ExecContext, int) ([]einocb.Handler, error) {
		return nil, errors.New("no trace")
	}
	ec := chainContext(nil, map[string]any{"chatInput": "x"})
	ec.Connect(ports.AILanguageModel, echoModel())
	_, err := c.Execute(context.Background(), ec)
	require.EqualError(t, err, "no trace")
}

func TestFormatResponse(t *testing.T) {
	assert.Equal(t, map[string]any{"text": "hi"}, formatResponse("  hi \n"))
	assert.Equal(t, map[string]any{"data": []any{1}}, formatResponse([]any{1}))
	assert.Equal(t, map[string]any{"a": 1}, formatResponse(map[string]any{"a": 1}))
	assert.Equal(t, map[string]any{"response": map[string]any{"text": 3.5}}, formatResponse(3.5))
}

func TestChainInputsEndWithResultBinding(t *testing.T) {
	assert.True(t, strings.HasSuffix(ChainLlmInputs, "let result = inputs;\nresult"))
	got, err := ports.NewEvaluator().Ports(NewChainLlm().Description().Inputs, map[string]any{"hasOutputParser": true})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, ports.AIOutputParser, got[2].Type)
}
