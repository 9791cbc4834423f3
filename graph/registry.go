package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/stategraph/types"
)

// NodeFunc is the unit of computation attached to a graph node. It
// receives a clone of the current run state and returns either a full
// replacement or a partial update; the executor merges the result
// key-wise into the run state (last-write-wins unless a reducer is
// declared for the key). Node functions may call external collaborators
// but must not touch graph internals.
type NodeFunc func(ctx context.Context, state *State) (*State, error)

// Registry holds the named node functions of a graph definition.
type Registry struct {
	nodes map[string]NodeFunc
	mu    sync.RWMutex
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]NodeFunc)}
}

// Register adds a named node. Registering a name twice fails with
// DUPLICATE_NODE; a nil function or empty name fails with INVALID_GRAPH.
func (r *Registry) Register(name string, fn NodeFunc) error {
	if name == "" {
		return types.NewError(types.ErrInvalidGraph, "node name cannot be empty")
	}
	if name == End || name == interruptKey {
		return types.NewError(types.ErrInvalidGraph, fmt.Sprintf("node name %q is reserved", name))
	}
	if fn == nil {
		return types.NewError(types.ErrInvalidGraph, fmt.Sprintf("node %s has no function", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.nodes[name]; exists {
		return types.NewError(types.ErrDuplicateNode, fmt.Sprintf("node already registered: %s", name))
	}
	r.nodes[name] = fn
	return nil
}

// Has reports whether a node name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[name]
	return ok
}

// Names returns all registered node names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	return names
}

// Invoke runs a registered node against the given state. An unknown
// name fails with UNKNOWN_NODE; a failure inside the node function is
// wrapped as NODE_EXECUTION carrying the node name and cause.
func (r *Registry) Invoke(ctx context.Context, name string, state *State) (*State, error) {
	r.mu.RLock()
	fn, ok := r.nodes[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrUnknownNode, fmt.Sprintf("node not registered: %s", name))
	}

	update, err := fn(ctx, state)
	if err != nil {
		return nil, types.NewError(types.ErrNodeExecution, "node execution failed").
			WithNode(name).
			WithCause(err)
	}
	return update, nil
}
