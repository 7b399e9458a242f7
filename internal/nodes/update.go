package nodes

import (
	"context"

	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/link"
	"github.com/langfuse-nodes/server/internal/property"
	ports "github.com/langfuse-nodes/server/internal/schema"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

// optionalOutputs exposes a main output only when enableOutputs is set.
const optionalOutputs = `parameter.enableOutputs == true ? ["main"] : []`

var enableOutputsParameter = host.Parameter{
	DisplayName: "Enable Outputs",
	Name:        "enableOutputs",
	Type:        "boolean",
	Default:     false,
}

// TraceUpdate updates the connected trace and passes its input items through.
type TraceUpdate struct {
	resolver *link.Resolver
}

var _ host.Executor = (*TraceUpdate)(nil)

func NewTraceUpdate(deps Deps) *TraceUpdate {
	return &TraceUpdate{resolver: deps.Resolver()}
}

func (u *TraceUpdate) Description() host.Description {
	return host.Description{
		DisplayName: "Update Langfuse Trace",
		Name:        TraceUpdateType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Update a Langfuse trace",
		Defaults:    host.Defaults{Name: "Update Trace"},
		Inputs: ports.Ports(
			ports.Port{Type: ports.Main},
			ports.Port{
				Type:           ports.AIChain,
				DisplayName:    "Trace",
				Required:       true,
				MaxConnections: 1,
				Filter:         u.resolver.Table().Filter(link.RoleTrace),
			},
		),
		Outputs:    ports.Expr(optionalOutputs),
		Properties: []host.Parameter{property.TraceUpdate.Declare(), enableOutputsParameter},
	}
}

func (u *TraceUpdate) Execute(ctx context.Context, ec host.ExecContext) ([][]host.Item, error) {
	h, err := u.resolver.Require(ctx, ec, link.RoleTrace)
	if err != nil {
		return nil, err
	}
	params, err := property.TraceUpdate.Extract(ec, "")
	if err != nil {
		return nil, err
	}
	h.Trace().Update(params)
	logx.Debug().Str("node", ec.Node().Name).Str("trace_id", h.Trace().ID).Msg("langfuse trace updated")
	return [][]host.Item{ec.InputData()}, nil
}

// ObservationUpdate updates the connected span or generation and passes its input
// items through.
type ObservationUpdate struct {
	resolver *link.Resolver
}

var _ host.Executor = (*ObservationUpdate)(nil)

func NewObservationUpdate(deps Deps) *ObservationUpdate {
	return &ObservationUpdate{resolver: deps.Resolver()}
}

func (u *ObservationUpdate) Description() host.Description {
	return host.Description{
		DisplayName: "Update Langfuse Observation",
		Name:        ObservationUpdateType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Update a Langfuse observation",
		Defaults:    host.Defaults{Name: "Update Observation"},
		Inputs: ports.Ports(
			ports.Port{Type: ports.Main},
			ports.Port{
				Type:           ports.AIChain,
				DisplayName:    "Observation",
				Required:       true,
				MaxConnections: 1,
				Filter:         u.resolver.Table().Filter(link.RoleObservation),
			},
		),
		Outputs:    ports.Expr(optionalOutputs),
		Properties: []host.Parameter{property.ObservationUpdate.Declare(), enableOutputsParameter},
	}
}

func (u *ObservationUpdate) Execute(ctx context.Context, ec host.ExecContext) ([][]host.Item, error) {
	h, err := u.resolver.Require(ctx, ec, link.RoleObservation)
	if err != nil {
		return nil, err
	}
	params, err := property.ObservationUpdate.Extract(ec, "")
	if err != nil {
		return nil, err
	}
	if span := h.Span(); span != nil {
		span.Update(params)
	} else {
		h.Generation().Update(params)
	}
	return [][]host.Item{ec.InputData()}, nil
}
