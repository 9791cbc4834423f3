package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/stategraph/types"
)

// FileStore is a file-based Store suitable for single-node
// deployments. Each checkpoint lives in its own file under
// <baseDir>/<runID>/<step>.json; a write is fsynced and atomically
// renamed into place before Save returns, so a crash between steps
// never leaves a torn snapshot behind.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a file store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	dir := filepath.Join(baseDir, "checkpoints")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{baseDir: dir}, nil
}

func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

func (s *FileStore) stepPath(runID string, step int) string {
	return filepath.Join(s.runDir(runID), fmt.Sprintf("%06d.json", step))
}

func (s *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return types.NewError(types.ErrCheckpointConflict, "checkpoint cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.stepPath(cp.RunID, cp.Step)
	if _, err := os.Stat(path); err == nil {
		return types.NewError(types.ErrCheckpointConflict,
			fmt.Sprintf("checkpoint already exists for step %d", cp.Step)).
			WithRun(cp.RunID, cp.Step)
	}

	if err := os.MkdirAll(s.runDir(cp.RunID), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	stored := cp.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Durable atomic write: temp file, fsync, rename.
	tmp, err := os.CreateTemp(s.runDir(cp.RunID), "ckpt-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func (s *FileStore) Load(ctx context.Context, runID string, step int) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readFile(s.stepPath(runID, step), runID, step)
}

func (s *FileStore) LoadLatest(ctx context.Context, runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps, err := s.listSteps(runID)
	if err != nil || len(steps) == 0 {
		return nil, types.NewError(types.ErrNoCheckpoint, "run has no checkpoints").WithRun(runID, 0)
	}
	last := steps[len(steps)-1]
	return s.readFile(s.stepPath(runID, last), runID, last)
}

func (s *FileStore) List(ctx context.Context, runID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps, err := s.listSteps(runID)
	if err != nil {
		return nil, err
	}
	out := make([]*Checkpoint, 0, len(steps))
	for _, step := range steps {
		cp, err := s.readFile(s.stepPath(runID, step), runID, step)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.runDir(runID))
}

func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.baseDir)
	return err
}

func (s *FileStore) Close() error { return nil }

// listSteps returns the step indexes present for a run, ascending.
func (s *FileStore) listSteps(runID string) ([]int, error) {
	entries, err := os.ReadDir(s.runDir(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var steps []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		steps = append(steps, n)
	}
	sort.Ints(steps)
	return steps, nil
}

func (s *FileStore) readFile(path, runID string, step int) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, types.NewError(types.ErrNoCheckpoint,
			fmt.Sprintf("no checkpoint at step %d", step)).WithRun(runID, step)
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Ensure FileStore implements Store.
var _ Store = (*FileStore)(nil)
