package graph

// interruptKey is the reserved state key carrying the interrupt marker.
// It never collides with user keys because Register rejects reserved
// names and node updates go through MarkPause to set it.
const interruptKey = "__interrupt__"

// MarkPause sets the interrupt marker on a state update. A node that
// returns a marked update suspends the run before the next node:
// the executor checkpoints the run as paused and hands control back to
// the caller, who resumes it through ResumeFromPause once an external
// approval arrives.
func MarkPause(state *State) *State {
	if state == nil {
		state = NewState()
	}
	state.Set(interruptKey, true)
	return state
}

// IsPaused reports whether the interrupt marker is set.
func IsPaused(state *State) bool {
	if state == nil {
		return false
	}
	v, ok := state.Get(interruptKey)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// clearPause removes the marker; called by the executor when an
// approval arrives, before resolving the paused node's successor.
func clearPause(state *State) {
	if state != nil {
		state.Delete(interruptKey)
	}
}
