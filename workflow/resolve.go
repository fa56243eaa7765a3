package workflow

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// snapshotJSON marshals the execution's context and results into the JSON
// document that predicates and parameter references are resolved against.
func snapshotJSON(ctx, results map[string]any) []byte {
	doc, err := json.Marshal(map[string]any{
		"context": ctx,
		"results": results,
	})
	if err != nil {
		// Context values are plain YAML/JSON scalars and containers in
		// practice; an unmarshalable value degrades to an empty document.
		return []byte(`{}`)
	}
	return doc
}

// resolveParams substitutes dotted-path references in the step's configured
// parameters. String values prefixed with "context." or "results." are
// looked up in the snapshot; an unresolvable path yields nil. Nested maps
// and slices are resolved recursively, everything else passes through
// unchanged.
func resolveParams(params map[string]any, snapshot []byte) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = resolveValue(v, snapshot)
	}
	return out
}

func resolveValue(v any, snapshot []byte) any {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "context.") || strings.HasPrefix(val, "results.") {
			res := gjson.GetBytes(snapshot, val)
			if !res.Exists() {
				return nil
			}
			return res.Value()
		}
		return val
	case map[string]any:
		return resolveParams(val, snapshot)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, snapshot)
		}
		return out
	default:
		return v
	}
}
