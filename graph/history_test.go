package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_StepRecording(t *testing.T) {
	h := NewHistory("run-1", "pipeline")

	se := h.recordStepStart(0, "fetch")
	h.recordStepEnd(se, nil)

	se = h.recordStepStart(1, "transform")
	h.recordStepEnd(se, errors.New("parse failure"))

	steps := h.GetSteps()
	require.Len(t, steps, 2)
	assert.Equal(t, "fetch", steps[0].Node)
	assert.Empty(t, steps[0].Error)
	assert.Equal(t, "transform", steps[1].Node)
	assert.Contains(t, steps[1].Error, "parse failure")

	assert.Equal(t, []string{"fetch", "transform"}, h.NodesExecuted())
}

func TestHistory_Complete(t *testing.T) {
	h := NewHistory("run-1", "pipeline")
	h.complete(RunStatusCompleted, nil)

	assert.Equal(t, RunStatusCompleted, h.Status)
	assert.False(t, h.EndTime.IsZero())
	assert.GreaterOrEqual(t, h.Duration, time.Duration(0))
}

func TestHistoryStore_Queries(t *testing.T) {
	s := NewHistoryStore()

	h1 := NewHistory("r1", "alpha")
	h1.complete(RunStatusCompleted, nil)
	h2 := NewHistory("r2", "alpha")
	h2.complete(RunStatusFailed, errors.New("boom"))
	h3 := NewHistory("r3", "beta")
	h3.complete(RunStatusCompleted, nil)

	s.Save(h1)
	s.Save(h2)
	s.Save(h3)

	got, ok := s.Get("r2")
	require.True(t, ok)
	assert.Equal(t, RunStatusFailed, got.Status)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	completed := s.ListByStatus(RunStatusCompleted)
	assert.Len(t, completed, 2)

	alpha := s.ListByGraph("alpha")
	assert.Len(t, alpha, 2)
}
