package graph

import (
	"context"
	"fmt"

	"github.com/BaSui01/stategraph/types"
)

// End is the terminal sentinel. Resolving an edge to End means the run
// completed successfully. A node with no outgoing edges is implicitly
// terminal and resolves to End.
const End = "__end__"

// RouterFunc picks the next node for a conditional edge. Routers must
// be pure and deterministic for a given state; the returned name must
// be one of the destinations declared when the edge was added.
type RouterFunc func(ctx context.Context, state *State) (string, error)

// staticEdge is a fixed source → destination transition.
type staticEdge struct {
	to string
}

// conditionalEdge evaluates a router against the current state. The
// destination set is closed: a router result outside it is an
// INVALID_ROUTE failure.
type conditionalEdge struct {
	router       RouterFunc
	destinations map[string]struct{}
}

// edgeTable maps source nodes to their outgoing transition. A node has
// either one static edge or one conditional edge, never both.
type edgeTable struct {
	static      map[string]staticEdge
	conditional map[string]conditionalEdge
}

func newEdgeTable() *edgeTable {
	return &edgeTable{
		static:      make(map[string]staticEdge),
		conditional: make(map[string]conditionalEdge),
	}
}

func (t *edgeTable) addStatic(from, to string) error {
	if _, exists := t.static[from]; exists {
		return types.NewError(types.ErrInvalidGraph, fmt.Sprintf("node %s already has a static edge", from))
	}
	if _, exists := t.conditional[from]; exists {
		return types.NewError(types.ErrInvalidGraph, fmt.Sprintf("node %s already has conditional edges", from))
	}
	t.static[from] = staticEdge{to: to}
	return nil
}

func (t *edgeTable) addConditional(from string, router RouterFunc, destinations []string) error {
	if router == nil {
		return types.NewError(types.ErrInvalidGraph, fmt.Sprintf("conditional edge from %s has no router", from))
	}
	if len(destinations) == 0 {
		return types.NewError(types.ErrInvalidGraph, fmt.Sprintf("conditional edge from %s declares no destinations", from))
	}
	if _, exists := t.static[from]; exists {
		return types.NewError(types.ErrInvalidGraph, fmt.Sprintf("node %s already has a static edge", from))
	}
	if _, exists := t.conditional[from]; exists {
		return types.NewError(types.ErrInvalidGraph, fmt.Sprintf("node %s already has conditional edges", from))
	}

	dests := make(map[string]struct{}, len(destinations))
	for _, d := range destinations {
		dests[d] = struct{}{}
	}
	t.conditional[from] = conditionalEdge{router: router, destinations: dests}
	return nil
}

// resolve returns the next node name for a transition out of from.
// Static edges return their fixed target; conditional edges evaluate
// the router and validate the result against the declared destination
// set. Zero outgoing edges resolve to End.
func (t *edgeTable) resolve(ctx context.Context, from string, state *State) (string, error) {
	if edge, ok := t.static[from]; ok {
		return edge.to, nil
	}
	if edge, ok := t.conditional[from]; ok {
		dest, err := edge.router(ctx, state)
		if err != nil {
			return "", types.NewError(types.ErrInvalidRoute, "router failed").
				WithNode(from).
				WithCause(err)
		}
		if _, declared := edge.destinations[dest]; !declared {
			return "", types.NewError(types.ErrInvalidRoute,
				fmt.Sprintf("router returned undeclared destination %q", dest)).
				WithNode(from)
		}
		return dest, nil
	}
	return End, nil
}

// sources returns every node that has an outgoing edge.
func (t *edgeTable) sources() []string {
	out := make([]string, 0, len(t.static)+len(t.conditional))
	for from := range t.static {
		out = append(out, from)
	}
	for from := range t.conditional {
		out = append(out, from)
	}
	return out
}

// targets returns every destination reachable from the table, including
// conditional destinations.
func (t *edgeTable) targets() []string {
	var out []string
	for _, e := range t.static {
		out = append(out, e.to)
	}
	for _, e := range t.conditional {
		for d := range e.destinations {
			out = append(out, d)
		}
	}
	return out
}
