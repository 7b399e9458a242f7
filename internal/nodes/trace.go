package nodes

import (
	"context"
	"fmt"
	"maps"

	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langfuse"
	"github.com/langfuse-nodes/server/internal/property"
	ports "github.com/langfuse-nodes/server/internal/schema"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

// Trace supplies a Langfuse trace to the nodes connected below it.
type Trace struct {
	pool *langfuse.Pool
}

var _ host.Supplier = (*Trace)(nil)

func NewTrace(deps Deps) *Trace {
	return &Trace{pool: deps.withDefaults().Pool}
}

func (t *Trace) Description() host.Description {
	return host.Description{
		DisplayName: "Langfuse Trace",
		Name:        TraceType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Defines a Langfuse trace",
		Defaults:    host.Defaults{Name: "Trace"},
		Inputs:      ports.Ports(),
		Outputs:     ports.Ports(ports.Port{Type: ports.AIChain}),
		Credentials: langfuseCredential,
		Properties:  []host.Parameter{property.TraceCreate.Declare()},
	}
}

// SupplyData creates the trace. The id is derived from the execution, so repeated
// calls within one execution upsert the same trace.
func (t *Trace) SupplyData(ctx context.Context, ec host.ExecContext, _ int) (host.Response, error) {
	c, err := client(ctx, t.pool, ec)
	if err != nil {
		return host.Response{}, err
	}
	params, err := property.TraceCreate.Extract(ec, "")
	if err != nil {
		return host.Response{}, err
	}

	md := ec.Metadata()
	body := map[string]any{
		"id":   deterministicID(ec),
		"name": fmt.Sprintf("%s #%s", md.Workflow.Name, md.ExecutionID),
	}
	maps.Copy(body, params)

	metadata := map[string]any{"host": md.Map()}
	if m, ok := params["metadata"].(map[string]any); ok {
		maps.Copy(metadata, m)
	}
	body["metadata"] = metadata

	trace := c.Trace(body)
	logx.Debug().Str("node", ec.Node().Name).Str("trace_id", trace.ID).Msg("langfuse trace created")
	return host.Response{Value: trace}, nil
}
