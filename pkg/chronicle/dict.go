package chronicle

import (
	"encoding/json"
	"fmt"
)

// renderDict serializes a dictionary to pretty-printed JSON with 2-space
// indentation. Leaves that json cannot handle are replaced by their default
// textual form; if the whole marshal still fails the dictionary's own
// textual form is returned. Degraded output is always preferred over a
// failed logging call.
func renderDict(dict map[string]any) string {
	content, err := json.MarshalIndent(sanitizeValue(dict), "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", dict)
	}
	return string(content)
}

// sanitizeValue walks a value and replaces anything json.Marshal would
// reject (channels, functions, NaN floats, cyclic wrappers) with its
// fmt.Sprint form. Maps and slices are rebuilt so the original value is
// never mutated.
func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		clean := make(map[string]any, len(val))
		for k, item := range val {
			clean[k] = sanitizeValue(item)
		}
		return clean
	case []any:
		clean := make([]any, len(val))
		for i, item := range val {
			clean[i] = sanitizeValue(item)
		}
		return clean
	default:
		if _, err := json.Marshal(val); err != nil {
			return fmt.Sprint(val)
		}
		return val
	}
}
