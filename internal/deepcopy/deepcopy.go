// Package deepcopy copies structural state values so snapshots and history
// entries cannot alias live state.
package deepcopy

// Value returns a deep copy of v. Maps (string-keyed) and slices are copied
// recursively; every other value is copied by assignment, so pointer payloads
// stored in state remain shared with the original.
func Value(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Map(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Value(e)
		}
		return out
	default:
		return v
	}
}

// Map returns a deep copy of a state tree. A nil map copies to an empty map
// so callers can mutate the result unconditionally.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Value(v)
	}
	return out
}
