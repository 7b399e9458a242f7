package nodes

import (
	"context"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/link"
	"github.com/langfuse-nodes/server/internal/observers"
	ports "github.com/langfuse-nodes/server/internal/schema"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

// ModelWithLangfuse wraps the connected chat model so every call is recorded as a
// generation under the connected trace or observation.
type ModelWithLangfuse struct {
	resolver *link.Resolver
	pricing  map[string]observers.Pricing
}

var _ host.Supplier = (*ModelWithLangfuse)(nil)

func NewModelWithLangfuse(deps Deps) *ModelWithLangfuse {
	deps = deps.withDefaults()
	return &ModelWithLangfuse{resolver: deps.Resolver(), pricing: deps.Pricing}
}

func (m *ModelWithLangfuse) Description() host.Description {
	return host.Description{
		DisplayName: "Model with Langfuse",
		Name:        ModelWithLangfuseType,
		Group:       []string{"transform"},
		Version:     []float64{1, 1.1, 1.2},
		Description: "Wraps a language model with Langfuse for tracking and monitoring",
		Defaults:    host.Defaults{Name: "Model with Langfuse"},
		Inputs: ports.Ports(
			ports.Port{Type: ports.AILanguageModel, DisplayName: "Model", Required: true, MaxConnections: 1},
			ports.Port{
				Type:           ports.AIChain,
				DisplayName:    "Tr/Obs",
				Required:       true,
				MaxConnections: 1,
				Filter:         m.resolver.Table().Filter(link.RoleTrace, link.RoleObservation),
			},
		),
		Outputs:     ports.Ports(ports.Port{Type: ports.AILanguageModel}),
		OutputNames: []string{"Model"},
		Properties: []host.Parameter{{
			DisplayName: "Update Trace/Observation",
			Name:        "updateParent",
			Type:        "boolean",
			Default:     false,
			Description: "Whether to set the input/output of the model as the input/output of the trace/observation",
		}},
	}
}

func (m *ModelWithLangfuse) SupplyData(ctx context.Context, ec host.ExecContext, itemIndex int) (host.Response, error) {
	node := ec.Node().Name
	h, err := m.resolver.RequireEither(ctx, ec, link.RoleTrace, link.RoleObservation)
	if err != nil {
		return host.Response{}, err
	}
	updateParent, err := host.GetBool(ec, "updateParent", itemIndex, false)
	if err != nil {
		return host.Response{}, err
	}
	inner, ok, err := link.First[model.BaseChatModel](ctx, ec, ports.AILanguageModel, "chat model")
	if err != nil {
		return host.Response{}, err
	}
	if !ok {
		return host.Response{}, errx.NodeOperation(node, "a model sub-node must be connected and enabled")
	}

	handler := observers.NewLangfuseHandler(h.Parent(),
		observers.WithUpdateRoot(updateParent),
		observers.WithPricing(m.pricing),
		observers.WithLogger(logx.Node(node)),
	)
	logx.Debug().Str("node", node).Str("root", h.Kind().String()).Msg("wrapping chat model with langfuse")
	return host.Response{Value: NewTracedModel(inner, handler)}, nil
}

// TracedModel is a chat model whose calls are reported to a Langfuse handler.
type TracedModel struct {
	inner   model.BaseChatModel
	handler *observers.LangfuseHandler
}

var (
	_ model.ToolCallingChatModel = (*TracedModel)(nil)
	_ components.Checker         = (*TracedModel)(nil)
	_ components.Typer           = (*TracedModel)(nil)
)

func NewTracedModel(inner model.BaseChatModel, handler *observers.LangfuseHandler) *TracedModel {
	return &TracedModel{inner: inner, handler: handler}
}

// Handler returns the handler calls are reported to.
func (t *TracedModel) Handler() *observers.LangfuseHandler {
	return t.handler
}

// IsCallbacksEnabled mirrors the wrapped model so graph callbacks fire exactly once.
func (t *TracedModel) IsCallbacksEnabled() bool {
	return components.IsCallbacksEnabled(t.inner)
}

func (t *TracedModel) GetType() string {
	if typ, ok := components.GetType(t.inner); ok {
		return typ
	}
	return "TracedModel"
}

func (t *TracedModel) runInfo() *einocb.RunInfo {
	return &einocb.RunInfo{Name: t.GetType(), Type: t.GetType(), Component: components.ComponentOfChatModel}
}

// config reports the call options, falling back to the model's own name.
func (t *TracedModel) config(opts []model.Option) *model.Config {
	o := model.GetCommonOptions(&model.Options{}, opts...)
	cfg := &model.Config{}
	if o.Model != nil {
		cfg.Model = *o.Model
	} else if n, ok := t.inner.(interface{ ModelName() string }); ok {
		cfg.Model = n.ModelName()
	}
	if o.MaxTokens != nil {
		cfg.MaxTokens = *o.MaxTokens
	}
	if o.Temperature != nil {
		cfg.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		cfg.TopP = *o.TopP
	}
	return cfg
}

func (t *TracedModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	info, cfg := t.runInfo(), t.config(opts)
	runCtx := t.handler.OnStart(ctx, info, &model.CallbackInput{Messages: in, Config: cfg})
	out, err := t.inner.Generate(ctx, in, opts...)
	if err != nil {
		t.handler.OnError(runCtx, info, err)
		return nil, err
	}
	t.handler.OnEnd(runCtx, info, &model.CallbackOutput{Message: out, Config: cfg, TokenUsage: tokenUsage(out)})
	return out, nil
}

func (t *TracedModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	info, cfg := t.runInfo(), t.config(opts)
	runCtx := t.handler.OnStart(ctx, info, &model.CallbackInput{Messages: in, Config: cfg})
	out, err := t.inner.Stream(ctx, in, opts...)
	if err != nil {
		t.handler.OnError(runCtx, info, err)
		return nil, err
	}
	copies := out.Copy(2)
	recorded := schema.StreamReaderWithConvert(copies[1], func(m *schema.Message) (einocb.CallbackOutput, error) {
		return &model.CallbackOutput{Message: m, Config: cfg, TokenUsage: tokenUsage(m)}, nil
	})
	t.handler.OnEndWithStreamOutput(runCtx, info, recorded)
	return copies[0], nil
}

func (t *TracedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	tcm, ok := t.inner.(model.ToolCallingChatModel)
	if !ok {
		return nil, fmt.Errorf("wrapped chat model does not support tool calling")
	}
	bound, err := tcm.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &TracedModel{inner: bound, handler: t.handler}, nil
}

func tokenUsage(m *schema.Message) *model.TokenUsage {
	if m == nil || m.ResponseMeta == nil || m.ResponseMeta.Usage == nil {
		return nil
	}
	u := m.ResponseMeta.Usage
	return &model.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
