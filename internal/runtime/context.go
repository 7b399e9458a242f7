package runtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/schema"
)

// execContext is the host.ExecContext of one node invocation. Sub-nodes share the
// items of the node that asked for them.
type execContext struct {
	engine *Engine
	run    *run
	node   host.Node
	items  []host.Item
}

var _ host.ExecContext = (*execContext)(nil)

func (c *execContext) Node() host.Node { return c.node }

func (c *execContext) Metadata() host.Metadata { return c.run.meta }

func (c *execContext) InputData() []host.Item { return c.items }

func (c *execContext) ContinueOnFail() bool { return c.node.ContinueOnFail }

func (c *execContext) Credentials(ctx context.Context, name string) (map[string]any, error) {
	return c.engine.creds.Get(ctx, name)
}

func (c *execContext) env(itemIndex int) map[string]any {
	data := map[string]any{}
	if itemIndex >= 0 && itemIndex < len(c.items) && c.items[itemIndex].JSON != nil {
		data = c.items[itemIndex].JSON
	}
	return map[string]any{
		"json":      data,
		"itemIndex": itemIndex,
		"node":      map[string]any{"name": c.node.Name, "type": c.node.Type},
		"workflow":  map[string]any{"id": c.run.meta.Workflow.ID, "name": c.run.meta.Workflow.Name},
		"execution": map[string]any{"id": c.run.meta.ExecutionID},
	}
}

func (c *execContext) Parameter(name string, itemIndex int, fallback any) (any, error) {
	v, ok := host.Lookup(c.node.Parameters, name)
	if !ok {
		return fallback, nil
	}
	out, err := resolve(c.engine.evaluator, v, c.env(itemIndex))
	if err != nil {
		return nil, fmt.Errorf("parameter %q of node %q: %w", name, c.node.Name, err)
	}
	return out, nil
}

// InputConnectionData invokes every sub-node connected on ct. Values are not cached:
// each call runs SupplyData again.
func (c *execContext) InputConnectionData(ctx context.Context, ct schema.ConnectionType, index int) (any, error) {
	conns := c.run.wf.incoming(c.node.Name, ct)
	values := make([]any, 0, len(conns))
	for _, conn := range conns {
		v, err := c.supply(ctx, conn.From, index)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return values[0], nil
	}
	return values, nil
}

func (c *execContext) supply(ctx context.Context, name string, index int) (any, error) {
	node, _ := c.run.wf.Node(name)
	supplier, ok := c.run.types[name].(host.Supplier)
	if !ok {
		return nil, fmt.Errorf("node %q cannot supply data", name)
	}
	ctx, span := c.engine.tracer.Start(ctx, "supply "+name, trace.WithAttributes(
		attribute.String("node.name", name),
		attribute.String("node.type", node.Type),
		attribute.String("node.parent", c.node.Name),
	))
	defer span.End()

	sub := &execContext{engine: c.engine, run: c.run, node: node, items: c.items}
	res, err := supplier.SupplyData(ctx, sub, index)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res.Value, nil
}
