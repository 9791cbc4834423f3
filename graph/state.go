package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// State is the ordered key/value container that flows through a graph.
// Keys preserve insertion order; merging appends newly seen keys in the
// order the update introduces them. State is not safe for concurrent
// use; during a run the executor owns it exclusively and hands each
// node a clone.
type State struct {
	keys   []string
	values map[string]any
}

// NewState creates a new empty State.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// StateFrom creates a State from a plain map. Map iteration order is
// nondeterministic, so keys are inserted sorted to keep two States built
// from equal maps identical.
func StateFrom(m map[string]any) *State {
	s := NewState()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Set(k, m[k])
	}
	return s
}

// Get retrieves a value by key.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetOr retrieves a value by key, returning def when the key is absent.
// It never fails on a missing key.
func (s *State) GetOr(key string, def any) any {
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Set stores a value. New keys are appended to the key order.
func (s *State) Set(key string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Delete removes a key and its position in the key order.
func (s *State) Delete(key string) {
	if _, exists := s.values[key]; !exists {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (s *State) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// Len returns the number of keys.
func (s *State) Len() int {
	return len(s.keys)
}

// Clone creates a shallow copy: the key table is independent, values
// are not deep-copied.
func (s *State) Clone() *State {
	clone := &State{
		keys:   make([]string, len(s.keys)),
		values: make(map[string]any, len(s.values)),
	}
	copy(clone.keys, s.keys)
	for k, v := range s.values {
		clone.values[k] = v
	}
	return clone
}

// Merge applies a partial update and returns a new State. Keys present
// in update overwrite the current value (last-write-wins); keys absent
// from update are preserved; keys new to the state are appended in the
// update's order. Neither receiver nor update is modified.
func (s *State) Merge(update *State) *State {
	return s.MergeWith(update, nil)
}

// MergeWith is Merge with per-key reducers. When a key exists on both
// sides and a reducer is declared for it, the reducer decides the merged
// value; otherwise the update value wins.
func (s *State) MergeWith(update *State, reducers map[string]Reducer) *State {
	merged := s.Clone()
	if update == nil {
		return merged
	}
	for _, k := range update.keys {
		uv := update.values[k]
		if cv, exists := merged.values[k]; exists && reducers != nil {
			if reduce, ok := reducers[k]; ok {
				merged.values[k] = reduce(cv, uv)
				continue
			}
		}
		merged.Set(k, uv)
	}
	return merged
}

// Equal reports whether two States hold the same keys in the same order
// with deep-equal values. Values are compared through their JSON form so
// that states reloaded from a checkpoint compare equal to the originals.
func (s *State) Equal(other *State) bool {
	if other == nil || len(s.keys) != len(other.keys) {
		return false
	}
	for i, k := range s.keys {
		if other.keys[i] != k {
			return false
		}
		a, errA := json.Marshal(s.values[k])
		b, errB := json.Marshal(other.values[k])
		if errA != nil || errB != nil {
			// Unmarshalable values cannot be compared by JSON form.
			if !reflect.DeepEqual(s.values[k], other.values[k]) {
				return false
			}
			continue
		}
		if !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

// MarshalJSON serializes the State as a JSON object with keys in
// insertion order.
func (s *State) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, fmt.Errorf("marshal state key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a State from a JSON object, preserving the
// key order of the document.
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("state must be a JSON object, got %v", tok)
	}

	s.keys = nil
	s.values = make(map[string]any)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected state key token %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode state key %q: %w", key, err)
		}
		s.Set(key, normalizeNumbers(value))
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// normalizeNumbers converts json.Number values to float64 recursively.
// The decoder captures numbers as json.Number; states store them as
// float64 so a reloaded state compares equal to one built in code.
// Numbers outside the float64 range are kept as their literal string.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}
