package host

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// NodeType is anything that can be placed in a workflow.
type NodeType interface {
	Description() Description
}

// Response is what a sub-node hands to the node it is connected to.
type Response struct {
	Value any
}

// Supplier is a sub-node that provides a value to a parent over a non-main connection.
type Supplier interface {
	NodeType
	SupplyData(ctx context.Context, ec ExecContext, itemIndex int) (Response, error)
}

// Executor is a node that transforms main input items.
type Executor interface {
	NodeType
	Execute(ctx context.Context, ec ExecContext) ([][]Item, error)
}

// Registry maps type identifiers to node types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]NodeType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]NodeType)}
}

// Register adds nt under id. Registering the same id twice is an error.
func (r *Registry) Register(id string, nt NodeType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[id]; ok {
		return fmt.Errorf("node type %q already registered", id)
	}
	r.types[id] = nt
	return nil
}

// Get returns the node type registered under id.
func (r *Registry) Get(id string) (NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nt, ok := r.types[id]
	return nt, ok
}

// IDs returns all registered identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
