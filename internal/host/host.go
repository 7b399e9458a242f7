// Package host defines the contract between workflow node types and the engine running them.
package host

import (
	"context"
	"strings"

	"github.com/langfuse-nodes/server/internal/core"
	"github.com/langfuse-nodes/server/internal/schema"
)

// Node is a configured instance of a node type inside a workflow.
type Node struct {
	Name           string         `json:"name" yaml:"name"`
	Type           string         `json:"type" yaml:"type"`
	TypeVersion    float64        `json:"typeVersion,omitempty" yaml:"typeVersion,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	ContinueOnFail bool           `json:"continueOnFail,omitempty" yaml:"continueOnFail,omitempty"`
}

// PairedItem points an output item back at the input item it came from.
type PairedItem struct {
	Item int `json:"item"`
}

// Item is one unit of data flowing along main connections.
type Item struct {
	JSON       map[string]any `json:"json"`
	PairedItem *PairedItem    `json:"pairedItem,omitempty"`
}

// Workflow identifies the running workflow.
type Workflow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Instance identifies the engine installation.
type Instance struct {
	ID      string `json:"id"`
	BaseURL string `json:"baseUrl"`
}

// Metadata describes the current execution.
type Metadata struct {
	ExecutionID string             `json:"executionId"`
	Workflow    Workflow           `json:"workflow"`
	Instance    Instance           `json:"instance"`
	Mode        core.ExecutionMode `json:"mode"`
}

// Map renders the metadata the way it is attached to traces.
func (m Metadata) Map() map[string]any {
	return map[string]any{
		"executionId": m.ExecutionID,
		"workflow": map[string]any{
			"id":   m.Workflow.ID,
			"name": m.Workflow.Name,
		},
		"instance": map[string]any{
			"id":      m.Instance.ID,
			"baseUrl": m.Instance.BaseURL,
		},
		"misc": map[string]any{
			"mode": m.Mode.String(),
		},
	}
}

// ParameterSource reads node parameters. It is the slice of ExecContext
// that parameter extraction needs.
type ParameterSource interface {
	Node() Node
	// Parameter returns the value at a dotted path such as "options.prompt",
	// or fallback when the path is not set.
	Parameter(name string, itemIndex int, fallback any) (any, error)
}

// ConnectionSource yields the values supplied by connected sub-nodes.
type ConnectionSource interface {
	Node() Node
	// InputConnectionData returns nil when nothing is connected, the supplied
	// value for one connection, and a []any for several.
	InputConnectionData(ctx context.Context, ct schema.ConnectionType, index int) (any, error)
}

// ExecContext is everything a node sees while it runs.
type ExecContext interface {
	ParameterSource
	ConnectionSource
	Metadata() Metadata
	InputData() []Item
	Credentials(ctx context.Context, name string) (map[string]any, error)
	ContinueOnFail() bool
}

// Lookup resolves a dotted path inside nested parameter maps.
func Lookup(params map[string]any, path string) (any, bool) {
	var cur any = params
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
