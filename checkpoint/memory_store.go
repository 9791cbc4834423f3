package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/stategraph/types"
)

// MemoryStore is an in-memory Store for tests and single-process runs.
// Snapshots are copied on the way in and out, so callers never share
// mutable data with the store.
type MemoryStore struct {
	runs map[string]map[int]*Checkpoint
	mu   sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]map[int]*Checkpoint)}
}

// Save persists a checkpoint, failing with CHECKPOINT_CONFLICT when the
// (run, step) pair already exists.
func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return types.NewError(types.ErrCheckpointConflict, "checkpoint cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, ok := s.runs[cp.RunID]
	if !ok {
		steps = make(map[int]*Checkpoint)
		s.runs[cp.RunID] = steps
	}
	if _, exists := steps[cp.Step]; exists {
		return types.NewError(types.ErrCheckpointConflict,
			fmt.Sprintf("checkpoint already exists for step %d", cp.Step)).
			WithRun(cp.RunID, cp.Step)
	}

	stored := cp.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	steps[cp.Step] = stored
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, runID string, step int) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cp, ok := s.runs[runID][step]; ok {
		return cp.clone(), nil
	}
	return nil, types.NewError(types.ErrNoCheckpoint,
		fmt.Sprintf("no checkpoint at step %d", step)).WithRun(runID, step)
}

func (s *MemoryStore) LoadLatest(ctx context.Context, runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.runs[runID]
	if len(steps) == 0 {
		return nil, types.NewError(types.ErrNoCheckpoint, "run has no checkpoints").WithRun(runID, 0)
	}
	var latest *Checkpoint
	for _, cp := range steps {
		if latest == nil || cp.Step > latest.Step {
			latest = cp
		}
	}
	return latest.clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, runID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.runs[runID]
	out := make([]*Checkpoint, 0, len(steps))
	for _, cp := range steps {
		out = append(out, cp.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
