// JSON formatting helpers for inspection output.
package cwl

import (
	"encoding/json"
	"math"
	"strconv"
)

// NormalizeForOutput recursively prepares values for JSON/YAML emission:
// float64 becomes json.Number in plain decimal notation, and NaN/Inf (not
// representable in JSON) become null.
func NormalizeForOutput(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = NormalizeForOutput(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeForOutput(item)
		}
		return out
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return json.Number(strconv.FormatFloat(val, 'f', -1, 64))
	default:
		return v
	}
}

// MarshalOutput marshals an inspection result to indented JSON without
// scientific notation.
func MarshalOutput(v any) ([]byte, error) {
	return json.MarshalIndent(NormalizeForOutput(v), "", "  ")
}
