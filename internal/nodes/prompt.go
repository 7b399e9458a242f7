package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/langfuse"
	"github.com/langfuse-nodes/server/internal/property"
	ports "github.com/langfuse-nodes/server/internal/schema"
)

// GetPrompt fetches a managed prompt and stores it on every input item.
type GetPrompt struct {
	pool *langfuse.Pool
}

var _ host.Executor = (*GetPrompt)(nil)

func NewGetPrompt(deps Deps) *GetPrompt {
	return &GetPrompt{pool: deps.withDefaults().Pool}
}

func (g *GetPrompt) Description() host.Description {
	return host.Description{
		DisplayName: "Get Prompt",
		Name:        GetPromptType,
		Group:       []string{"transform"},
		Version:     []float64{1},
		Description: "Get a prompt from Langfuse",
		Defaults:    host.Defaults{Name: "Get Prompt"},
		Inputs:      ports.Ports(ports.Port{Type: ports.Main}),
		Outputs:     ports.Ports(ports.Port{Type: ports.Main}),
		Credentials: langfuseCredential,
		Properties: []host.Parameter{
			{DisplayName: "Name", Name: "name", Type: "string", Required: true, Default: "", Placeholder: "prompt-name"},
			{DisplayName: "Version", Name: "version", Type: "number", Default: 0,
				Description: "Prompt version. 0 fetches the version carrying the label."},
			{DisplayName: "Prompt Key Name", Name: "promptKeyName", Type: "string", Required: true, Default: "prompt",
				Placeholder: "prompt", Description: "The key under which the prompt will be stored in the output data"},
			{
				DisplayName: "Options",
				Name:        "options",
				Type:        "collection",
				Default:     map[string]any{},
				Placeholder: "Add Option",
				Options: []host.Parameter{{
					DisplayName: "Additional Options",
					Name:        "additionalOptions",
					Type:        "json",
					Default:     "{}",
					Placeholder: "{}",
					Description: `Fetch options such as {"label": "staging", "cacheTtlSeconds": 0}`,
				}},
			},
		},
	}
}

func (g *GetPrompt) Execute(ctx context.Context, ec host.ExecContext) ([][]host.Item, error) {
	node := ec.Node().Name
	c, err := client(ctx, g.pool, ec)
	if err != nil {
		return nil, err
	}

	name, err := host.GetString(ec, "name", 0, "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errx.NodeOperation(node, "the 'name' parameter is empty")
	}
	version, err := host.GetNumber(ec, "version", 0, 0)
	if err != nil {
		return nil, err
	}
	key, err := host.GetString(ec, "promptKeyName", 0, "prompt")
	if err != nil {
		return nil, err
	}
	opts, err := promptOptions(ec)
	if err != nil {
		return nil, err
	}

	p, err := c.GetPrompt(ctx, name, int(version), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prompt %q: %w", name, err)
	}

	items := ec.InputData()
	out := make([]host.Item, len(items))
	for i, it := range items {
		data := make(map[string]any, len(it.JSON)+1)
		maps.Copy(data, it.JSON)
		data[key] = p.Raw
		out[i] = host.Item{JSON: data, PairedItem: &host.PairedItem{Item: i}}
	}
	return [][]host.Item{out}, nil
}

func promptOptions(ec host.ExecContext) (langfuse.PromptOptions, error) {
	const param = "options.additionalOptions"
	raw, err := ec.Parameter(param, 0, "{}")
	if err != nil {
		return langfuse.PromptOptions{}, err
	}
	obj, err := property.JSON(ec.Node().Name, param, raw)
	if err != nil {
		return langfuse.PromptOptions{}, err
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return langfuse.PromptOptions{}, err
	}
	var opts langfuse.PromptOptions
	if err := json.Unmarshal(b, &opts); err != nil {
		return langfuse.PromptOptions{}, errx.InvalidJSON(ec.Node().Name, param, err)
	}
	return opts, nil
}
