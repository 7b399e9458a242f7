package runtime

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/schema"
	"github.com/langfuse-nodes/server/internal/store"
)

// setNode copies items, storing the resolved "value" parameter under "key".
type setNode struct{}

func (setNode) Description() host.Description {
	return host.Description{
		Name:    "test.set",
		Version: []float64{1},
		Inputs:  schema.Ports(schema.Port{Type: schema.Main}),
		Outputs: schema.Ports(schema.Port{Type: schema.Main}),
	}
}

func (setNode) Execute(_ context.Context, ec host.ExecContext) ([][]host.Item, error) {
	items := ec.InputData()
	out := make([]host.Item, len(items))
	for i, it := range items {
		key, err := host.GetString(ec, "key", i, "value")
		if err != nil {
			return nil, err
		}
		v, err := ec.Parameter("value", i, nil)
		if err != nil {
			return nil, err
		}
		data := maps.Clone(it.JSON)
		if data == nil {
			data = map[string]any{}
		}
		data[key] = v
		out[i] = host.Item{JSON: data, PairedItem: &host.PairedItem{Item: i}}
	}
	return [][]host.Item{out}, nil
}

// counterNode supplies how many times it has been asked.
type counterNode struct {
	mu    sync.Mutex
	calls int
}

func (*counterNode) Description() host.Description {
	return host.Description{
		Name:    "test.counter",
		Version: []float64{1},
		Outputs: schema.Ports(schema.Port{Type: schema.AITool}),
	}
}

func (c *counterNode) SupplyData(context.Context, host.ExecContext, int) (host.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return host.Response{Value: c.calls}, nil
}

// toolUser reads its tools twice per run.
type toolUser struct{}

func (toolUser) Description() host.Description {
	return host.Description{
		Name:    "test.toolUser",
		Version: []float64{1},
		Inputs: schema.Ports(
			schema.Port{Type: schema.Main},
			schema.Port{Type: schema.AITool, MaxConnections: 2, Filter: &schema.PortFilter{Nodes: []string{"test.counter"}}},
		),
		Outputs: schema.Ports(schema.Port{Type: schema.Main}),
	}
}

func (toolUser) Execute(ctx context.Context, ec host.ExecContext) ([][]host.Item, error) {
	first, err := ec.InputConnectionData(ctx, schema.AITool, 0)
	if err != nil {
		return nil, err
	}
	second, err := ec.InputConnectionData(ctx, schema.AITool, 0)
	if err != nil {
		return nil, err
	}
	return [][]host.Item{{{JSON: map[string]any{"first": first, "second": second}}}}, nil
}

// otherNode supplies a tool the toolUser does not accept.
type otherNode struct{}

func (otherNode) Description() host.Description {
	return host.Description{
		Name:    "test.other",
		Version: []float64{1},
		Outputs: schema.Ports(schema.Port{Type: schema.AITool}),
	}
}

func (otherNode) SupplyData(context.Context, host.ExecContext, int) (host.Response, error) {
	return host.Response{Value: "other"}, nil
}

type failNode struct{}

func (failNode) Description() host.Description {
	return host.Description{
		Name:    "test.fail",
		Version: []float64{1},
		Inputs:  schema.Ports(schema.Port{Type: schema.Main}),
		Outputs: schema.Ports(schema.Port{Type: schema.Main}),
	}
}

func (failNode) Execute(context.Context, host.ExecContext) ([][]host.Item, error) {
	return nil, errors.New("boom")
}

type memoryRecorder struct {
	mu   sync.Mutex
	runs []store.Execution
}

func (m *memoryRecorder) Record(_ context.Context, e store.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, e)
	return nil
}

func testRegistry(counter *counterNode) *host.Registry {
	reg := host.NewRegistry()
	for _, nt := range []host.NodeType{setNode{}, counter, otherNode{}, toolUser{}, failNode{}} {
		if err := reg.Register(nt.Description().Name, nt); err != nil {
			panic(err)
		}
	}
	return reg
}
