package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stategraph/checkpoint"
	"github.com/BaSui01/stategraph/types"
)

// incrementNode adds 1 to the numeric key "x".
func incrementNode(_ context.Context, state *State) (*State, error) {
	update := NewState()
	x, _ := state.GetOr("x", float64(0)).(float64)
	update.Set("x", x+1)
	return update, nil
}

func linearGraph(t *testing.T, opts ...Option) *CompiledGraph {
	t.Helper()
	b := NewBuilder("linear")
	require.NoError(t, b.AddNode("increment", incrementNode))
	require.NoError(t, b.AddEdge("increment", End))
	b.SetEntry("increment")

	g, err := b.Compile(opts...)
	require.NoError(t, err)
	return g
}

func TestInvoke_LinearGraph(t *testing.T) {
	g := linearGraph(t)

	initial := NewState()
	initial.Set("x", float64(1))

	run, err := g.Invoke(context.Background(), initial)
	require.NoError(t, err)

	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, float64(2), run.State.GetOr("x", nil))
	assert.Equal(t, 1, run.Step)
	assert.NotEmpty(t, run.ID)
}

func TestInvoke_InitialStateUntouched(t *testing.T) {
	g := linearGraph(t)

	initial := NewState()
	initial.Set("x", float64(1))

	_, err := g.Invoke(context.Background(), initial)
	require.NoError(t, err)
	assert.Equal(t, float64(1), initial.GetOr("x", nil))
}

func TestInvoke_Deterministic(t *testing.T) {
	g := linearGraph(t)

	initial := NewState()
	initial.Set("x", float64(1))

	run1, err := g.Invoke(context.Background(), initial)
	require.NoError(t, err)
	run2, err := g.Invoke(context.Background(), initial)
	require.NoError(t, err)

	assert.True(t, run1.State.Equal(run2.State))
	assert.Equal(t, run1.Step, run2.Step)
}

func TestInvoke_ConditionalRouting(t *testing.T) {
	build := func(t *testing.T) *CompiledGraph {
		b := NewBuilder("assistant")
		require.NoError(t, b.AddNode("classify", func(_ context.Context, state *State) (*State, error) {
			return NewState(), nil
		}))
		require.NoError(t, b.AddNode("math", func(_ context.Context, _ *State) (*State, error) {
			u := NewState()
			u.Set("answer", "math")
			return u, nil
		}))
		require.NoError(t, b.AddNode("chat", func(_ context.Context, _ *State) (*State, error) {
			u := NewState()
			u.Set("answer", "chat")
			return u, nil
		}))
		require.NoError(t, b.AddConditionalEdges("classify", func(_ context.Context, state *State) (string, error) {
			kind, _ := state.GetOr("kind", "").(string)
			if kind == "math" {
				return "math", nil
			}
			return "chat", nil
		}, "math", "chat"))
		require.NoError(t, b.AddEdge("math", End))
		require.NoError(t, b.AddEdge("chat", End))
		b.SetEntry("classify")

		g, err := b.Compile()
		require.NoError(t, err)
		return g
	}

	g := build(t)

	mathState := NewState()
	mathState.Set("kind", "math")
	run, err := g.Invoke(context.Background(), mathState)
	require.NoError(t, err)
	assert.Equal(t, "math", run.State.GetOr("answer", nil))

	chatState := NewState()
	chatState.Set("kind", "smalltalk")
	run, err = g.Invoke(context.Background(), chatState)
	require.NoError(t, err)
	assert.Equal(t, "chat", run.State.GetOr("answer", nil))
}

func TestInvoke_UndeclaredRouteFailsRun(t *testing.T) {
	b := NewBuilder("bad-router")
	require.NoError(t, b.AddNode("a", noopNode))
	require.NoError(t, b.AddNode("b", noopNode))
	require.NoError(t, b.AddConditionalEdges("a", stubRouter("b"), "b"))
	require.NoError(t, b.AddConditionalEdges("b", stubRouter("ghost"), "a"))
	b.SetEntry("a")
	g, err := b.Compile()
	require.NoError(t, err)

	run, err := g.Invoke(context.Background(), NewState())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidRoute))
	assert.Equal(t, RunStatusFailed, run.Status)
}

func TestInvoke_NodeFailure(t *testing.T) {
	boom := errors.New("backend down")
	b := NewBuilder("failing")
	require.NoError(t, b.AddNode("ok", noopNode))
	require.NoError(t, b.AddNode("bad", func(_ context.Context, _ *State) (*State, error) {
		return nil, boom
	}))
	require.NoError(t, b.AddEdge("ok", "bad"))
	require.NoError(t, b.AddEdge("bad", End))
	b.SetEntry("ok")
	g, err := b.Compile()
	require.NoError(t, err)

	run, err := g.Invoke(context.Background(), NewState())
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.True(t, types.IsCode(err, types.ErrNodeExecution))
	assert.ErrorIs(t, err, boom)

	var engineErr *types.Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, run.ID, engineErr.RunID)
	assert.Equal(t, "bad", engineErr.Node)
	assert.Equal(t, 1, engineErr.Step)
}

func TestInvoke_MaxStepsExceeded(t *testing.T) {
	b := NewBuilder("cycle")
	require.NoError(t, b.AddNode("a", noopNode))
	require.NoError(t, b.AddNode("b", noopNode))
	require.NoError(t, b.AddEdge("a", "b"))
	require.NoError(t, b.AddEdge("b", "a"))
	b.SetEntry("a")
	g, err := b.Compile(WithMaxSteps(7))
	require.NoError(t, err)

	run, err := g.Invoke(context.Background(), NewState())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrMaxStepsExceeded))
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, 7, run.Step)
}

func TestInvoke_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	b := NewBuilder("cancellable")
	require.NoError(t, b.AddNode("first", func(_ context.Context, _ *State) (*State, error) {
		// Cancel while this node runs; the node itself still finishes.
		cancel()
		u := NewState()
		u.Set("first_done", true)
		return u, nil
	}))
	require.NoError(t, b.AddNode("second", noopNode))
	require.NoError(t, b.AddEdge("first", "second"))
	require.NoError(t, b.AddEdge("second", End))
	b.SetEntry("first")

	store := checkpoint.NewMemoryStore()
	g, err := b.Compile(WithCheckpointStore(store))
	require.NoError(t, err)

	run, err := g.Invoke(ctx, NewState())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCancelled))
	assert.Equal(t, RunStatusFailed, run.Status)
	// The first step completed and its checkpoint survived.
	assert.Equal(t, true, run.State.GetOr("first_done", nil))
	cp, err := store.LoadLatest(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cp.Step)
}

func TestInterrupt_DenyAndApprove(t *testing.T) {
	build := func(t *testing.T, store checkpoint.Store) *CompiledGraph {
		b := NewBuilder("approval-flow")
		require.NoError(t, b.AddNode("draft", func(_ context.Context, _ *State) (*State, error) {
			u := NewState()
			u.Set("draft", "please approve")
			return MarkPause(u), nil
		}))
		require.NoError(t, b.AddNode("send", func(_ context.Context, _ *State) (*State, error) {
			u := NewState()
			u.Set("sent", true)
			return u, nil
		}))
		require.NoError(t, b.AddEdge("draft", "send"))
		require.NoError(t, b.AddEdge("send", End))
		b.SetEntry("draft")

		g, err := b.Compile(WithCheckpointStore(store))
		require.NoError(t, err)
		return g
	}

	t.Run("pause then approve", func(t *testing.T) {
		store := checkpoint.NewMemoryStore()
		g := build(t, store)

		run, err := g.Invoke(context.Background(), NewState())
		require.NoError(t, err)
		assert.Equal(t, RunStatusPaused, run.Status)
		assert.False(t, run.State.GetOr("sent", false).(bool))

		resumed, err := g.ResumeFromPause(context.Background(), run.ID, true)
		require.NoError(t, err)
		assert.Equal(t, RunStatusCompleted, resumed.Status)
		assert.Equal(t, true, resumed.State.GetOr("sent", nil))
		// Marker is cleared before the successor runs.
		assert.False(t, IsPaused(resumed.State))
	})

	t.Run("pause then deny", func(t *testing.T) {
		store := checkpoint.NewMemoryStore()
		g := build(t, store)

		run, err := g.Invoke(context.Background(), NewState())
		require.NoError(t, err)
		require.Equal(t, RunStatusPaused, run.Status)
		cps, err := store.List(context.Background(), run.ID)
		require.NoError(t, err)
		countBefore := len(cps)

		denied, err := g.ResumeFromPause(context.Background(), run.ID, false)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrApprovalDenied))
		assert.Equal(t, RunStatusFailed, denied.Status)

		// Denial appends no checkpoint.
		cps, err = store.List(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Len(t, cps, countBefore)
	})

	t.Run("resume unknown run", func(t *testing.T) {
		store := checkpoint.NewMemoryStore()
		g := build(t, store)

		_, err := g.ResumeFromPause(context.Background(), "no-such-run", true)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrNoCheckpoint))
	})

	t.Run("approve a run that is not paused", func(t *testing.T) {
		store := checkpoint.NewMemoryStore()
		g := build(t, store)

		run, err := g.Invoke(context.Background(), NewState())
		require.NoError(t, err)
		resumed, err := g.ResumeFromPause(context.Background(), run.ID, true)
		require.NoError(t, err)
		require.Equal(t, RunStatusCompleted, resumed.Status)

		_, err = g.ResumeFromPause(context.Background(), run.ID, true)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrInvalidTransition))
	})
}

// Crash recovery: a fresh executor with the same store continues from
// the latest checkpoint's successor without re-running completed nodes.
func TestResume_AfterCrash(t *testing.T) {
	store := checkpoint.NewMemoryStore()

	var calls []string
	build := func(t *testing.T, failAtC bool) *CompiledGraph {
		b := NewBuilder("pipeline")
		mk := func(name string) NodeFunc {
			return func(_ context.Context, _ *State) (*State, error) {
				calls = append(calls, name)
				u := NewState()
				u.Set(name, true)
				return u, nil
			}
		}
		require.NoError(t, b.AddNode("a", mk("a")))
		require.NoError(t, b.AddNode("b", mk("b")))
		require.NoError(t, b.AddNode("c", func(ctx context.Context, state *State) (*State, error) {
			if failAtC {
				return nil, errors.New("simulated crash")
			}
			return mk("c")(ctx, state)
		}))
		require.NoError(t, b.AddNode("d", mk("d")))
		require.NoError(t, b.AddEdge("a", "b"))
		require.NoError(t, b.AddEdge("b", "c"))
		require.NoError(t, b.AddEdge("c", "d"))
		require.NoError(t, b.AddEdge("d", End))
		b.SetEntry("a")

		g, err := b.Compile(WithCheckpointStore(store))
		require.NoError(t, err)
		return g
	}

	crashing := build(t, true)
	run, err := crashing.Invoke(context.Background(), NewState())
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, calls)

	// New executor instance, as after a process restart.
	calls = nil
	recovered := build(t, false)
	resumed, err := recovered.Resume(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, RunStatusCompleted, resumed.Status)
	// Steps 1 and 2 are not re-invoked.
	assert.Equal(t, []string{"c", "d"}, calls)
	assert.Equal(t, true, resumed.State.GetOr("a", nil))
	assert.Equal(t, true, resumed.State.GetOr("d", nil))
	assert.Equal(t, 4, resumed.Step)
}

func TestResume_CompletedRunIsIdempotent(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	g := linearGraph(t, WithCheckpointStore(store))

	initial := NewState()
	initial.Set("x", float64(1))
	run, err := g.Invoke(context.Background(), initial)
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, run.Status)

	resumed, err := g.Resume(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, resumed.Status)
	assert.True(t, run.State.Equal(resumed.State))

	// Also idempotent through a fresh executor reading the store.
	fresh := linearGraph(t, WithCheckpointStore(store))
	resumed, err = fresh.Resume(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, resumed.Status)
	assert.Equal(t, float64(2), resumed.State.GetOr("x", nil))
}

func TestResume_WithoutStore(t *testing.T) {
	g := linearGraph(t)
	_, err := g.Resume(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRunNotFound))
}

func TestInvoke_CheckpointPerStep(t *testing.T) {
	store := checkpoint.NewMemoryStore()

	b := NewBuilder("three-steps")
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, b.AddNode(name, noopNode))
	}
	require.NoError(t, b.AddEdge("a", "b"))
	require.NoError(t, b.AddEdge("b", "c"))
	require.NoError(t, b.AddEdge("c", End))
	b.SetEntry("a")
	g, err := b.Compile(WithCheckpointStore(store))
	require.NoError(t, err)

	run, err := g.Invoke(context.Background(), NewState())
	require.NoError(t, err)

	cps, err := store.List(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, cps, 3)
	for i, cp := range cps {
		assert.Equal(t, i+1, cp.Step)
	}
	assert.Equal(t, "completed", cps[2].Status)
	assert.Equal(t, End, cps[2].NextNode)
}

func TestInvoke_StepTimeout(t *testing.T) {
	b := NewBuilder("slow")
	require.NoError(t, b.AddNode("slow", func(ctx context.Context, _ *State) (*State, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return NewState(), nil
		}
	}))
	require.NoError(t, b.AddEdge("slow", End))
	b.SetEntry("slow")
	g, err := b.Compile(WithStepTimeout(20 * time.Millisecond))
	require.NoError(t, err)

	run, err := g.Invoke(context.Background(), NewState())
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.True(t, types.IsCode(err, types.ErrNodeExecution))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHistory_RecordsSteps(t *testing.T) {
	g := linearGraph(t)
	run, err := g.Invoke(context.Background(), NewState())
	require.NoError(t, err)

	require.NotNil(t, run.History)
	assert.Equal(t, []string{"increment"}, run.History.NodesExecuted())
	steps := run.History.GetSteps()
	require.Len(t, steps, 1)
	assert.Equal(t, "increment", steps[0].Node)
}
