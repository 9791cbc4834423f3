package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stategraph/types"
)

func TestEdgeTable_StaticResolve(t *testing.T) {
	table := newEdgeTable()
	require.NoError(t, table.addStatic("a", "b"))

	next, err := table.resolve(context.Background(), "a", NewState())
	require.NoError(t, err)
	assert.Equal(t, "b", next)
}

func TestEdgeTable_NoEdgesResolvesToEnd(t *testing.T) {
	table := newEdgeTable()

	next, err := table.resolve(context.Background(), "terminal", NewState())
	require.NoError(t, err)
	assert.Equal(t, End, next)
}

func TestEdgeTable_ConditionalResolve(t *testing.T) {
	table := newEdgeTable()
	router := func(_ context.Context, state *State) (string, error) {
		if state.GetOr("kind", "") == "math" {
			return "math", nil
		}
		return "chat", nil
	}
	require.NoError(t, table.addConditional("router", router, []string{"math", "chat"}))

	state := NewState()
	state.Set("kind", "math")
	next, err := table.resolve(context.Background(), "router", state)
	require.NoError(t, err)
	assert.Equal(t, "math", next)

	state.Set("kind", "other")
	next, err = table.resolve(context.Background(), "router", state)
	require.NoError(t, err)
	assert.Equal(t, "chat", next)
}

func TestEdgeTable_UndeclaredDestinationFails(t *testing.T) {
	table := newEdgeTable()
	router := func(_ context.Context, _ *State) (string, error) {
		return "surprise", nil
	}
	require.NoError(t, table.addConditional("router", router, []string{"math", "chat"}))

	_, err := table.resolve(context.Background(), "router", NewState())
	assert.True(t, types.IsCode(err, types.ErrInvalidRoute))
}

func TestEdgeTable_RouterErrorFails(t *testing.T) {
	table := newEdgeTable()
	boom := errors.New("bad state")
	router := func(_ context.Context, _ *State) (string, error) {
		return "", boom
	}
	require.NoError(t, table.addConditional("router", router, []string{"a"}))

	_, err := table.resolve(context.Background(), "router", NewState())
	assert.True(t, types.IsCode(err, types.ErrInvalidRoute))
	assert.ErrorIs(t, err, boom)
}

func TestEdgeTable_OneOutgoingEdgePerNode(t *testing.T) {
	table := newEdgeTable()
	router := func(_ context.Context, _ *State) (string, error) { return "b", nil }

	require.NoError(t, table.addStatic("a", "b"))
	err := table.addStatic("a", "c")
	assert.True(t, types.IsCode(err, types.ErrInvalidGraph))
	err = table.addConditional("a", router, []string{"b"})
	assert.True(t, types.IsCode(err, types.ErrInvalidGraph))

	require.NoError(t, table.addConditional("x", router, []string{"b"}))
	err = table.addStatic("x", "b")
	assert.True(t, types.IsCode(err, types.ErrInvalidGraph))
}

func TestEdgeTable_ConditionalValidation(t *testing.T) {
	table := newEdgeTable()

	err := table.addConditional("a", nil, []string{"b"})
	assert.True(t, types.IsCode(err, types.ErrInvalidGraph))

	router := func(_ context.Context, _ *State) (string, error) { return "b", nil }
	err = table.addConditional("a", router, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidGraph))
}
