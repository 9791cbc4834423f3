package checkpoint

import (
	"context"
	"encoding/json"
	"time"
)

// Checkpoint is an immutable snapshot of a run at a given step index,
// addressed by (RunID, Step). The executor writes one after every
// completed step; stores never rewrite an existing snapshot.
type Checkpoint struct {
	RunID string `json:"run_id"`
	Step  int    `json:"step"`
	// Node is the node whose result produced this snapshot.
	Node string `json:"node"`
	// NextNode is the successor resolved after Node ran. Resume
	// continues here, never re-invoking Node. Empty while the run is
	// paused awaiting approval; the successor is resolved on resume.
	NextNode string `json:"next_node,omitempty"`
	// Status is the run status at snapshot time (running, paused,
	// completed, failed).
	Status string `json:"status"`
	// State is the serialized run state, key order preserved.
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the durable persistence contract for checkpoints. Backends
// are keyed by (run_id, step_index) and must support a latest query.
//
// Append-only: Save of an already-present (RunID, Step) pair fails with
// CHECKPOINT_CONFLICT on every backend: a conflict indicates an
// executor bug and must be loud, not silently absorbed.
type Store interface {
	// Save persists a checkpoint. The write must be durable before
	// Save returns; the executor reports a step complete only after a
	// successful Save.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves the checkpoint at an exact step. Fails with
	// NO_CHECKPOINT when absent.
	Load(ctx context.Context, runID string, step int) (*Checkpoint, error)

	// LoadLatest retrieves the highest-step checkpoint of a run.
	// Fails with NO_CHECKPOINT when the run has none.
	LoadLatest(ctx context.Context, runID string) (*Checkpoint, error)

	// List returns all checkpoints of a run ascending by step.
	List(ctx context.Context, runID string) ([]*Checkpoint, error)

	// Delete removes all checkpoints of a run.
	Delete(ctx context.Context, runID string) error

	// Ping checks backend health.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// clone returns a deep copy so callers can't mutate stored snapshots.
func (cp *Checkpoint) clone() *Checkpoint {
	out := *cp
	if cp.State != nil {
		out.State = make(json.RawMessage, len(cp.State))
		copy(out.State, cp.State)
	}
	return &out
}
