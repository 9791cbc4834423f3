package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/stategraph/checkpoint"
	"github.com/BaSui01/stategraph/types"
)

// DefaultMaxSteps is the step ceiling applied when no override is
// configured. Cycles are legal; the ceiling is the safety bound that
// turns a misconfigured infinite loop into MAX_STEPS_EXCEEDED.
const DefaultMaxSteps = 100

// RunStatus is the lifecycle state of a run. Together with the node
// names it forms the executor's state machine: {nodes} ∪ {END, PAUSED,
// FAILED}.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one execution instance of a compiled graph. The executor owns
// the State exclusively for the run's duration; callers read it only
// after Invoke/Resume returns.
type Run struct {
	ID     string
	Status RunStatus
	// Step counts completed steps and doubles as the index of the
	// latest checkpoint.
	Step int
	// Node is the last executed node.
	Node string
	// NextNode is the resolved successor, empty while paused.
	NextNode string
	State    *State
	History  *History
	Err      error
}

// Metrics receives executor instrumentation events. The interface keeps
// the core decoupled from the collector implementation; pass nil (or
// omit the option) to disable.
//
// RunStarted and RunEnded bracket one active execution segment: Invoke,
// Resume of an unfinished run, and ResumeFromPause each open a segment;
// completion, failure, and pause each close one. A paused run is not
// counted as active.
type Metrics interface {
	RunStarted(graph string)
	RunEnded(graph string, status string, d time.Duration)
	StepExecuted(graph, node string, d time.Duration, failed bool)
	CheckpointSaved(graph string)
	RunInterrupted(graph string)
}

// CompiledGraph is the immutable executable form of a graph
// definition. It is safe for concurrent use: each Invoke creates an
// independent Run with its own State.
type CompiledGraph struct {
	name     string
	entry    string
	registry *Registry
	edges    *edgeTable
	reducers map[string]Reducer
	opts     graphOptions
	store    checkpoint.Store
	metrics  Metrics
	logger   *zap.Logger
	tracer   trace.Tracer

	runs map[string]*Run
	mu   sync.RWMutex
}

// SetMetrics attaches an instrumentation sink.
func (g *CompiledGraph) SetMetrics(m Metrics) {
	g.metrics = m
}

// Name returns the graph name.
func (g *CompiledGraph) Name() string { return g.name }

// Entry returns the entry node name.
func (g *CompiledGraph) Entry() string { return g.entry }

// GetRun returns a tracked run by ID.
func (g *CompiledGraph) GetRun(runID string) (*Run, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	run, ok := g.runs[runID]
	return run, ok
}

// Invoke executes the graph from the entry point with the given
// initial state. It returns when the run completes (END), pauses on an
// interrupt marker, or fails. On failure the returned error carries the
// run id, step index, and node name; the returned Run is still valid
// for inspection and later Resume.
func (g *CompiledGraph) Invoke(ctx context.Context, initial *State) (*Run, error) {
	if initial == nil {
		initial = NewState()
	}
	runID := uuid.New().String()
	run := &Run{
		ID:       runID,
		Status:   RunStatusRunning,
		State:    initial.Clone(),
		NextNode: g.entry,
		History:  NewHistory(runID, g.name),
	}

	g.mu.Lock()
	g.runs[run.ID] = run
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.RunStarted(g.name)
	}
	g.logger.Info("run started",
		zap.String("run_id", run.ID),
		zap.String("entry", g.entry),
	)

	return g.execute(ctx, run)
}

// Resume reconstructs a run from its latest checkpoint and continues
// from the checkpointed step's successor. The node that produced the
// checkpointed state is never re-invoked, so collaborator side effects
// are not duplicated. Resuming a completed run returns its final state
// without executing anything; resuming a paused run returns the paused
// run unchanged (approval goes through ResumeFromPause).
func (g *CompiledGraph) Resume(ctx context.Context, runID string) (*Run, error) {
	run, err := g.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case RunStatusCompleted, RunStatusPaused:
		return run, nil
	default:
		run.Status = RunStatusRunning
		if g.metrics != nil {
			g.metrics.RunStarted(g.name)
		}
		g.logger.Info("run resumed",
			zap.String("run_id", run.ID),
			zap.Int("step", run.Step),
			zap.String("next_node", run.NextNode),
		)
		return g.execute(ctx, run)
	}
}

// ResumeFromPause resolves a pending interrupt. When denied, the run
// transitions to FAILED with APPROVAL_DENIED. When approved, the
// interrupt marker is cleared and execution continues from the paused
// node's resolved successor.
func (g *CompiledGraph) ResumeFromPause(ctx context.Context, runID string, approved bool) (*Run, error) {
	run, err := g.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != RunStatusPaused {
		return nil, types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("run is %s, not paused", run.Status)).WithRun(runID, run.Step)
	}
	if g.metrics != nil {
		g.metrics.RunStarted(g.name)
	}

	if !approved {
		denyErr := types.NewError(types.ErrApprovalDenied, "approval denied").
			WithRun(run.ID, run.Step).
			WithNode(run.Node)
		return g.fail(run, denyErr)
	}

	clearPause(run.State)
	next, err := g.edges.resolve(ctx, run.Node, run.State)
	if err != nil {
		return g.fail(run, asRunError(err, run))
	}
	run.NextNode = next
	run.Status = RunStatusRunning

	g.logger.Info("interrupt approved, run continuing",
		zap.String("run_id", run.ID),
		zap.String("next_node", next),
	)
	return g.execute(ctx, run)
}

// execute drives the step loop: invoke node, merge, interrupt check,
// resolve successor, checkpoint. Exactly one node runs at a time per
// run; cancellation is honored between steps, never mid-node.
func (g *CompiledGraph) execute(ctx context.Context, run *Run) (*Run, error) {
	for {
		if run.NextNode == End {
			return g.complete(run)
		}
		if run.Step >= g.opts.maxSteps {
			return g.fail(run, types.NewError(types.ErrMaxStepsExceeded,
				fmt.Sprintf("step ceiling %d exceeded", g.opts.maxSteps)).
				WithRun(run.ID, run.Step).
				WithNode(run.NextNode))
		}
		if err := ctx.Err(); err != nil {
			return g.fail(run, types.NewError(types.ErrCancelled, "run cancelled between steps").
				WithRun(run.ID, run.Step).
				WithCause(err))
		}

		node := run.NextNode
		stepCtx, span := g.tracer.Start(ctx, "graph.step",
			trace.WithAttributes(
				attribute.String("graph.name", g.name),
				attribute.String("graph.node", node),
				attribute.String("graph.run_id", run.ID),
				attribute.Int("graph.step", run.Step),
			),
		)
		se := run.History.recordStepStart(run.Step, node)
		start := time.Now()

		invokeCtx := stepCtx
		var cancelStep context.CancelFunc
		if g.opts.stepTimeout > 0 {
			invokeCtx, cancelStep = context.WithTimeout(stepCtx, g.opts.stepTimeout)
		}
		update, err := g.registry.Invoke(invokeCtx, node, run.State.Clone())
		if cancelStep != nil {
			cancelStep()
		}
		run.History.recordStepEnd(se, err)
		if g.metrics != nil {
			g.metrics.StepExecuted(g.name, node, time.Since(start), err != nil)
		}
		span.End()

		if err != nil {
			return g.fail(run, asRunError(err, run))
		}

		run.State = run.State.MergeWith(update, g.reducers)
		run.Node = node
		run.Step++

		if IsPaused(run.State) {
			run.Status = RunStatusPaused
			run.NextNode = ""
			if err := g.saveCheckpoint(ctx, run); err != nil {
				return g.fail(run, err)
			}
			if g.metrics != nil {
				g.metrics.RunInterrupted(g.name)
				// Pausing ends the active segment; approval opens a
				// new one, so starts and ends stay paired.
				g.metrics.RunEnded(g.name, string(RunStatusPaused), time.Since(run.History.StartTime))
			}
			g.logger.Info("run paused awaiting approval",
				zap.String("run_id", run.ID),
				zap.String("node", node),
				zap.Int("step", run.Step),
			)
			return run, nil
		}

		next, err := g.edges.resolve(ctx, node, run.State)
		if err != nil {
			return g.fail(run, asRunError(err, run))
		}
		run.NextNode = next
		if next == End {
			run.Status = RunStatusCompleted
		}

		// The step is reported complete only after the checkpoint
		// write is durable.
		if err := g.saveCheckpoint(ctx, run); err != nil {
			return g.fail(run, err)
		}

		g.logger.Debug("step completed",
			zap.String("run_id", run.ID),
			zap.Int("step", run.Step),
			zap.String("node", node),
			zap.String("next", next),
		)
	}
}

func (g *CompiledGraph) complete(run *Run) (*Run, error) {
	run.Status = RunStatusCompleted
	run.History.complete(RunStatusCompleted, nil)
	if g.metrics != nil {
		g.metrics.RunEnded(g.name, string(RunStatusCompleted), run.History.Duration)
	}
	g.logger.Info("run completed",
		zap.String("run_id", run.ID),
		zap.Int("steps", run.Step),
	)
	return run, nil
}

func (g *CompiledGraph) fail(run *Run, err error) (*Run, error) {
	run.Status = RunStatusFailed
	run.Err = err
	run.History.complete(RunStatusFailed, err)
	if g.metrics != nil {
		g.metrics.RunEnded(g.name, string(RunStatusFailed), run.History.Duration)
	}
	g.logger.Error("run failed",
		zap.String("run_id", run.ID),
		zap.Int("step", run.Step),
		zap.Error(err),
	)
	return run, err
}

func (g *CompiledGraph) saveCheckpoint(ctx context.Context, run *Run) error {
	if g.store == nil {
		return nil
	}
	stateJSON, err := json.Marshal(run.State)
	if err != nil {
		return types.NewError(types.ErrNodeExecution, "failed to serialize state for checkpoint").
			WithRun(run.ID, run.Step).
			WithCause(err)
	}
	cp := &checkpoint.Checkpoint{
		RunID:    run.ID,
		Step:     run.Step,
		Node:     run.Node,
		NextNode: run.NextNode,
		Status:   string(run.Status),
		State:    stateJSON,
	}
	if err := g.store.Save(ctx, cp); err != nil {
		return err
	}
	if g.metrics != nil {
		g.metrics.CheckpointSaved(g.name)
	}
	return nil
}

// loadRun finds a tracked run or reconstructs one from the checkpoint
// store.
func (g *CompiledGraph) loadRun(ctx context.Context, runID string) (*Run, error) {
	g.mu.RLock()
	run, ok := g.runs[runID]
	g.mu.RUnlock()
	if ok {
		return run, nil
	}

	if g.store == nil {
		return nil, types.NewError(types.ErrRunNotFound,
			fmt.Sprintf("unknown run and no checkpoint store configured: %s", runID))
	}
	cp, err := g.store.LoadLatest(ctx, runID)
	if err != nil {
		return nil, err
	}

	state := NewState()
	if len(cp.State) > 0 {
		if err := json.Unmarshal(cp.State, state); err != nil {
			return nil, fmt.Errorf("failed to restore state from checkpoint: %w", err)
		}
	}
	run = &Run{
		ID:       cp.RunID,
		Status:   RunStatus(cp.Status),
		Step:     cp.Step,
		Node:     cp.Node,
		NextNode: cp.NextNode,
		State:    state,
		History:  NewHistory(cp.RunID, g.name),
	}

	g.mu.Lock()
	g.runs[run.ID] = run
	g.mu.Unlock()
	return run, nil
}

// asRunError stamps run context onto engine errors that don't carry it
// yet.
func asRunError(err error, run *Run) error {
	if e, ok := err.(*types.Error); ok {
		if e.RunID == "" {
			e.WithRun(run.ID, run.Step)
		}
		return e
	}
	return types.NewError(types.ErrNodeExecution, "step failed").
		WithRun(run.ID, run.Step).
		WithCause(err)
}
