// Package hosttest provides an in-memory host.ExecContext for node tests.
package hosttest

import (
	"context"
	"fmt"

	"github.com/langfuse-nodes/server/internal/core"
	"github.com/langfuse-nodes/server/internal/host"
	"github.com/langfuse-nodes/server/internal/schema"
)

// Context is a configurable fake of host.ExecContext.
type Context struct {
	NodeValue   host.Node
	Meta        host.Metadata
	Items       []host.Item
	Connections map[schema.ConnectionType][]any
	ConnErrors  map[schema.ConnectionType]error
	Creds       map[string]map[string]any
	ContinueErr bool

	// ItemParameters overrides Parameters per item index.
	ItemParameters map[int]map[string]any
}

var _ host.ExecContext = (*Context)(nil)

// New returns a Context for a node with the given parameters and default metadata.
func New(name, nodeType string, params map[string]any) *Context {
	if params == nil {
		params = map[string]any{}
	}
	return &Context{
		NodeValue: host.Node{Name: name, Type: nodeType, TypeVersion: 1, Parameters: params},
		Meta: host.Metadata{
			ExecutionID: "42",
			Workflow:    host.Workflow{ID: "wf1", Name: "My Workflow"},
			Instance:    host.Instance{ID: "instance", BaseURL: "http://localhost:5678"},
			Mode:        core.ModeTest,
		},
		Connections: map[schema.ConnectionType][]any{},
		ConnErrors:  map[schema.ConnectionType]error{},
		Creds:       map[string]map[string]any{},
	}
}

// Connect appends a supplied value on connection type ct.
func (c *Context) Connect(ct schema.ConnectionType, v any) *Context {
	c.Connections[ct] = append(c.Connections[ct], v)
	return c
}

func (c *Context) Node() host.Node { return c.NodeValue }

func (c *Context) Metadata() host.Metadata { return c.Meta }

func (c *Context) Parameter(name string, itemIndex int, fallback any) (any, error) {
	if p, ok := c.ItemParameters[itemIndex]; ok {
		if v, ok := host.Lookup(p, name); ok {
			return v, nil
		}
	}
	if v, ok := host.Lookup(c.NodeValue.Parameters, name); ok {
		return v, nil
	}
	return fallback, nil
}

func (c *Context) InputData() []host.Item { return c.Items }

func (c *Context) InputConnectionData(_ context.Context, ct schema.ConnectionType, _ int) (any, error) {
	if err := c.ConnErrors[ct]; err != nil {
		return nil, err
	}
	vals := c.Connections[ct]
	switch len(vals) {
	case 0:
		return nil, nil
	case 1:
		return vals[0], nil
	default:
		out := make([]any, len(vals))
		copy(out, vals)
		return out, nil
	}
}

func (c *Context) Credentials(_ context.Context, name string) (map[string]any, error) {
	cred, ok := c.Creds[name]
	if !ok {
		return nil, fmt.Errorf("credential %q not configured", name)
	}
	return cred, nil
}

func (c *Context) ContinueOnFail() bool { return c.ContinueErr || c.NodeValue.ContinueOnFail }
