package nodes

import (
	"context"
	"maps"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langfuse"
	"github.com/langfuse-nodes/server/internal/link"
	"github.com/langfuse-nodes/server/internal/property"
	ports "github.com/langfuse-nodes/server/internal/schema"
)

// Observation supplies a span or generation nested under the connected trace.
type Observation struct {
	resolver *link.Resolver
}

var _ host.Supplier = (*Observation)(nil)

func NewObservation(deps Deps) *Observation {
	return &Observation{resolver: deps.Resolver()}
}

func (o *Observation) Description() host.Description {
	return host.Description{
		DisplayName: "Langfuse Observation",
		Name:        ObservationType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Subtitle:    "={{ parameter.observationType }}",
		Description: "Defines a Langfuse observation",
		Defaults:    host.Defaults{Name: "Observation"},
		Inputs: ports.Ports(ports.Port{
			Type:           ports.AIChain,
			DisplayName:    "Trace",
			MaxConnections: 1,
			Filter:         o.resolver.Table().Filter(link.RoleTrace),
		}),
		Outputs: ports.Ports(ports.Port{Type: ports.AIChain}),
		Properties: []host.Parameter{
			{
				DisplayName: "Type",
				Name:        "observationType",
				Type:        "options",
				Default:     string(langfuse.ObservationSpan),
				Choices: []host.Option{
					{Name: "Span", Value: string(langfuse.ObservationSpan),
						Description: "Spans represent durations of units of work in a trace"},
					{Name: "Generation", Value: string(langfuse.ObservationGeneration),
						Description: "Generations are spans used to log generations of AI models including prompts, token usage and costs"},
				},
			},
			property.ObservationCreate.Declare(),
		},
	}
}

func (o *Observation) SupplyData(ctx context.Context, ec host.ExecContext, itemIndex int) (host.Response, error) {
	node := ec.Node().Name
	h, err := o.resolver.ResolveSingle(ctx, ec, link.RoleTrace)
	if err != nil {
		return host.Response{}, err
	}
	if h.IsAbsent() {
		return host.Response{}, errx.NodeOperation(node, "no connected trace found, connect a Langfuse trace node")
	}

	kind, err := host.GetString(ec, "observationType", itemIndex, string(langfuse.ObservationSpan))
	if err != nil {
		return host.Response{}, err
	}
	params, err := property.ObservationCreate.Extract(ec, "")
	if err != nil {
		return host.Response{}, err
	}
	body := map[string]any{"id": deterministicID(ec)}
	maps.Copy(body, params)

	switch langfuse.ObservationType(kind) {
	case langfuse.ObservationSpan:
		return host.Response{Value: h.Trace().Span(body)}, nil
	case langfuse.ObservationGeneration:
		return host.Response{Value: h.Trace().Generation(body)}, nil
	}
	return host.Response{}, errx.NodeOperation(node,
		"invalid observation type %q, supported types are 'span' and 'generation'", kind)
}
