package graph

import "dario.cat/mergo"

// Reducer decides how an update value merges into the current value of
// a state key. The default behavior for keys without a declared reducer
// is last-write-wins: the update replaces the current value.
type Reducer func(current, update any) any

// LastValueReducer returns the most recent value (the default policy).
func LastValueReducer() Reducer {
	return func(_, update any) any {
		return update
	}
}

// AppendReducer concatenates slice values. Non-slice operands fall back
// to last-write-wins.
func AppendReducer() Reducer {
	return func(current, update any) any {
		cs, ok1 := toAnySlice(current)
		us, ok2 := toAnySlice(update)
		if !ok1 || !ok2 {
			return update
		}
		result := make([]any, 0, len(cs)+len(us))
		result = append(result, cs...)
		result = append(result, us...)
		return result
	}
}

// SumReducer adds numeric values. Operands are coerced to float64; a
// non-numeric operand falls back to last-write-wins.
func SumReducer() Reducer {
	return func(current, update any) any {
		cf, ok1 := toFloat(current)
		uf, ok2 := toFloat(update)
		if !ok1 || !ok2 {
			return update
		}
		return cf + uf
	}
}

// MaxReducer keeps the larger numeric value.
func MaxReducer() Reducer {
	return func(current, update any) any {
		cf, ok1 := toFloat(current)
		uf, ok2 := toFloat(update)
		if !ok1 || !ok2 {
			return update
		}
		if uf > cf {
			return uf
		}
		return cf
	}
}

// DeepMergeReducer merges nested map values recursively, update values
// taking precedence and slices appending. Non-map operands fall back to
// last-write-wins.
func DeepMergeReducer() Reducer {
	return func(current, update any) any {
		cm, ok1 := current.(map[string]any)
		um, ok2 := update.(map[string]any)
		if !ok1 || !ok2 {
			return update
		}
		// Deep copy so the merge never mutates nested maps shared with
		// the current state.
		merged, ok := deepCopyValue(cm).(map[string]any)
		if !ok {
			return update
		}
		if err := mergo.Merge(&merged, um, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
			return update
		}
		return merged
	}
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

func toAnySlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
