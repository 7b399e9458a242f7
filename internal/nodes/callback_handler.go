package nodes

import (
	"context"

	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/link"
	"github.com/langfuse-nodes/server/internal/observers"
	"github.com/langfuse-nodes/server/internal/property"
	ports "github.com/langfuse-nodes/server/internal/schema"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

// CallbackHandler supplies an eino callback handler recording runs under the connected trace.
type CallbackHandler struct {
	resolver *link.Resolver
	pricing  map[string]observers.Pricing
}

var _ host.Supplier = (*CallbackHandler)(nil)

func NewCallbackHandler(deps Deps) *CallbackHandler {
	deps = deps.withDefaults()
	return &CallbackHandler{resolver: deps.Resolver(), pricing: deps.Pricing}
}

func (c *CallbackHandler) Description() host.Description {
	return host.Description{
		DisplayName: "Langfuse Callback Handler",
		Name:        CallbackHandlerType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Langfuse callback handler for tracking and monitoring chain and agent runs",
		Defaults:    host.Defaults{Name: "Langfuse Callback Handler"},
		Inputs: ports.Ports(ports.Port{
			Type:           ports.AIChain,
			DisplayName:    "Trace",
			Required:       true,
			MaxConnections: 1,
			Filter:         c.resolver.Table().Filter(link.RoleTrace),
		}),
		Outputs:     ports.Ports(ports.Port{Type: ports.AIChain}),
		OutputNames: []string{"Callback Handler"},
		Properties: []host.Parameter{{
			DisplayName: "Options",
			Name:        "options",
			Type:        "collection",
			Default:     map[string]any{},
			Placeholder: "Add Option",
			Options: []host.Parameter{{
				DisplayName: "Prompt",
				Name:        "prompt",
				Type:        "json",
				Default:     "",
				Description: "The Langfuse prompt used for the run this handler is attached to. Generations are linked to it.",
			}},
		}},
	}
}

func (c *CallbackHandler) SupplyData(ctx context.Context, ec host.ExecContext, itemIndex int) (host.Response, error) {
	node := ec.Node().Name
	h, err := c.resolver.Require(ctx, ec, link.RoleTrace)
	if err != nil {
		return host.Response{}, err
	}

	raw, err := ec.Parameter("options.prompt", itemIndex, "{}")
	if err != nil {
		return host.Response{}, err
	}
	prompt, err := property.PromptJSON(node, "options.prompt", raw, true)
	if err != nil {
		return host.Response{}, err
	}

	opts := []observers.LangfuseOption{
		observers.WithPricing(c.pricing),
		observers.WithLogger(logx.Node(node)),
	}
	if prompt != nil {
		opts = append(opts, observers.WithPrompt(&observers.PromptLink{Name: prompt.Name, Version: prompt.Version}))
	}
	return host.Response{Value: observers.NewLangfuseHandler(h.Parent(), opts...)}, nil
}
