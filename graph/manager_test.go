package graph

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stategraph/checkpoint"
)

func TestRunManager_InvokeAll(t *testing.T) {
	var active, peak atomic.Int32

	b := NewBuilder("batch")
	require.NoError(t, b.AddNode("work", func(_ context.Context, state *State) (*State, error) {
		cur := active.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		defer active.Add(-1)

		x, _ := state.GetOr("x", float64(0)).(float64)
		u := NewState()
		u.Set("x", x*10)
		return u, nil
	}))
	require.NoError(t, b.AddEdge("work", End))
	b.SetEntry("work")
	g, err := b.Compile()
	require.NoError(t, err)

	m := NewRunManager(g, 2)

	initials := make([]*State, 8)
	for i := range initials {
		s := NewState()
		s.Set("x", float64(i))
		initials[i] = s
	}

	runs, err := m.InvokeAll(context.Background(), initials)
	require.NoError(t, err)
	require.Len(t, runs, 8)

	for i, run := range runs {
		require.NotNil(t, run)
		assert.Equal(t, RunStatusCompleted, run.Status)
		assert.Equal(t, float64(i*10), run.State.GetOr("x", nil))
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, m.Results(), 8)
}

func TestRunManager_ResumeAll(t *testing.T) {
	store := checkpoint.NewMemoryStore()

	b := NewBuilder("pausing-batch")
	require.NoError(t, b.AddNode("gate", func(_ context.Context, _ *State) (*State, error) {
		return MarkPause(NewState()), nil
	}))
	require.NoError(t, b.AddEdge("gate", End))
	b.SetEntry("gate")
	g, err := b.Compile(WithCheckpointStore(store))
	require.NoError(t, err)

	m := NewRunManager(g, 4)
	runs, err := m.InvokeAll(context.Background(), []*State{NewState(), NewState()})
	require.NoError(t, err)

	// All paused; ResumeAll returns them as-is since approval goes
	// through ResumeFromPause.
	ids := []string{runs[0].ID, runs[1].ID}
	resumed, err := m.ResumeAll(context.Background(), ids)
	require.NoError(t, err)
	for _, run := range resumed {
		assert.Equal(t, RunStatusPaused, run.Status)
	}
}

func TestRunManager_MinimumConcurrency(t *testing.T) {
	g := linearGraph(t)
	m := NewRunManager(g, 0)
	assert.Equal(t, 1, m.concurrency)
}
