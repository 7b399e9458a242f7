package nodes

import (
	"context"
	"maps"
	"time"

	"github.com/langfuse-nodes/server/internal/host"
	ports "github.com/langfuse-nodes/server/internal/schema"
)

// LogCurrentTime stores the current epoch milliseconds on every item.
type LogCurrentTime struct {
	now func() time.Time
}

var _ host.Executor = (*LogCurrentTime)(nil)

func NewLogCurrentTime(deps Deps) *LogCurrentTime {
	return &LogCurrentTime{now: deps.withDefaults().Now}
}

func (l *LogCurrentTime) Description() host.Description {
	return host.Description{
		DisplayName: "Log Current Time",
		Name:        LogCurrentTimeType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Logs the current time into the output data when executed",
		Defaults:    host.Defaults{Name: "Log Current Time"},
		Inputs:      ports.Ports(ports.Port{Type: ports.Main, Required: true, MaxConnections: 1}),
		Outputs:     ports.Ports(ports.Port{Type: ports.Main}),
		Properties: []host.Parameter{{
			DisplayName: "Key",
			Name:        "key",
			Type:        "string",
			Default:     "timestamp",
			Placeholder: "timestamp",
			Description: "The key under which the current time will be stored in the output data",
		}},
	}
}

func (l *LogCurrentTime) Execute(_ context.Context, ec host.ExecContext) ([][]host.Item, error) {
	now := l.now().UnixMilli()
	items := ec.InputData()
	out := make([]host.Item, len(items))
	for i, it := range items {
		key, err := host.GetString(ec, "key", i, "timestamp")
		if err != nil {
			return nil, err
		}
		data := make(map[string]any, len(it.JSON)+1)
		maps.Copy(data, it.JSON)
		data[key] = now
		out[i] = host.Item{JSON: data, PairedItem: &host.PairedItem{Item: i}}
	}
	return [][]host.Item{out}, nil
}
