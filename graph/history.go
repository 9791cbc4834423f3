package graph

import (
	"sync"
	"time"
)

// StepExecution records one executor step: which node ran at which
// index, how long it took, and how it ended.
type StepExecution struct {
	Step      int           `json:"step"`
	Node      string        `json:"node"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    RunStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
}

// History records the complete execution path of a run.
type History struct {
	RunID     string           `json:"run_id"`
	Graph     string           `json:"graph"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	Duration  time.Duration    `json:"duration"`
	Status    RunStatus        `json:"status"`
	Steps     []*StepExecution `json:"steps"`
	Error     string           `json:"error,omitempty"`
	mu        sync.RWMutex
}

// NewHistory creates a history for a run.
func NewHistory(runID, graphName string) *History {
	return &History{
		RunID:     runID,
		Graph:     graphName,
		StartTime: time.Now(),
		Status:    RunStatusRunning,
		Steps:     make([]*StepExecution, 0),
	}
}

func (h *History) recordStepStart(step int, node string) *StepExecution {
	h.mu.Lock()
	defer h.mu.Unlock()

	se := &StepExecution{
		Step:      step,
		Node:      node,
		StartTime: time.Now(),
		Status:    RunStatusRunning,
	}
	h.Steps = append(h.Steps, se)
	return se
}

func (h *History) recordStepEnd(se *StepExecution, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	se.EndTime = time.Now()
	se.Duration = se.EndTime.Sub(se.StartTime)
	if err != nil {
		se.Status = RunStatusFailed
		se.Error = err.Error()
	} else {
		se.Status = RunStatusCompleted
	}
}

func (h *History) complete(status RunStatus, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = time.Now()
	h.Duration = h.EndTime.Sub(h.StartTime)
	h.Status = status
	if err != nil {
		h.Error = err.Error()
	}
}

// GetSteps returns a copy of the step records.
func (h *History) GetSteps() []*StepExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()
	steps := make([]*StepExecution, len(h.Steps))
	copy(steps, h.Steps)
	return steps
}

// NodesExecuted returns the node names in execution order.
func (h *History) NodesExecuted() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	nodes := make([]string, 0, len(h.Steps))
	for _, se := range h.Steps {
		nodes = append(nodes, se.Node)
	}
	return nodes
}

// HistoryStore keeps run histories queryable in memory.
type HistoryStore struct {
	histories map[string]*History
	mu        sync.RWMutex
}

// NewHistoryStore creates an empty history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{histories: make(map[string]*History)}
}

// Save stores a history by run ID.
func (s *HistoryStore) Save(h *History) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[h.RunID] = h
}

// Get retrieves a history by run ID.
func (s *HistoryStore) Get(runID string) (*History, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[runID]
	return h, ok
}

// ListByStatus returns histories with the given terminal status.
func (s *HistoryStore) ListByStatus(status RunStatus) []*History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*History
	for _, h := range s.histories {
		if h.Status == status {
			out = append(out, h)
		}
	}
	return out
}

// ListByGraph returns histories for a graph name.
func (s *HistoryStore) ListByGraph(name string) []*History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*History
	for _, h := range s.histories {
		if h.Graph == name {
			out = append(out, h)
		}
	}
	return out
}
