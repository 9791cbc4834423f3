package graph

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunManager executes batches of runs against a compiled graph with a
// bounded level of concurrency. Each run gets an independent State, so
// runs never observe each other's writes.
type RunManager struct {
	graph       *CompiledGraph
	concurrency int
	logger      *zap.Logger

	mu      sync.Mutex
	results map[string]*Run
}

// NewRunManager wraps a compiled graph. Concurrency below 1 defaults
// to 1.
func NewRunManager(g *CompiledGraph, concurrency int) *RunManager {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RunManager{
		graph:       g,
		concurrency: concurrency,
		logger:      g.logger.With(zap.String("component", "run_manager")),
		results:     make(map[string]*Run),
	}
}

// InvokeAll starts one run per initial state and waits for all of them.
// The first run failure cancels the remaining runs' contexts; runs that
// already checkpointed remain resumable. Completed and paused runs are
// retained and readable through Results regardless of the returned
// error.
func (m *RunManager) InvokeAll(ctx context.Context, initials []*State) ([]*Run, error) {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(m.concurrency)

	runs := make([]*Run, len(initials))
	var runsMu sync.Mutex

	for i, initial := range initials {
		i, initial := i, initial
		eg.Go(func() error {
			run, err := m.graph.Invoke(gctx, initial)
			if run != nil {
				runsMu.Lock()
				runs[i] = run
				runsMu.Unlock()
				m.record(run)
			}
			return err
		})
	}

	err := eg.Wait()
	if err != nil {
		m.logger.Warn("batch finished with failures", zap.Error(err))
	}
	return runs, err
}

// ResumeAll resumes every given run ID, bounded by the manager's
// concurrency.
func (m *RunManager) ResumeAll(ctx context.Context, runIDs []string) ([]*Run, error) {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(m.concurrency)

	runs := make([]*Run, len(runIDs))
	var runsMu sync.Mutex

	for i, id := range runIDs {
		i, id := i, id
		eg.Go(func() error {
			run, err := m.graph.Resume(gctx, id)
			if run != nil {
				runsMu.Lock()
				runs[i] = run
				runsMu.Unlock()
				m.record(run)
			}
			return err
		})
	}

	err := eg.Wait()
	return runs, err
}

// Results returns the runs observed so far, keyed by run ID.
func (m *RunManager) Results() map[string]*Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Run, len(m.results))
	for id, run := range m.results {
		out[id] = run
	}
	return out
}

func (m *RunManager) record(run *Run) {
	m.mu.Lock()
	m.results[run.ID] = run
	m.mu.Unlock()
}
