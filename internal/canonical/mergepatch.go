package canonical

import "encoding/json"

// MergePatch applies an RFC 7396 JSON Merge Patch to target and returns the
// result. Neither input is mutated; the result shares no structure with
// either, so callers can hash or store it without aliasing surprises.
//
// Semantics: a non-object patch replaces the target wholesale. Within an
// object patch, a null value deletes the key, a nested object recurses when
// the target key is also an object, and any other value replaces.
func MergePatch(target, patch any) any {
	patchObj, ok := patch.(map[string]any)
	if !ok {
		return deepCopy(patch)
	}

	result := map[string]any{}
	if targetObj, ok := target.(map[string]any); ok {
		for k, v := range targetObj {
			result[k] = deepCopy(v)
		}
	}

	for k, v := range patchObj {
		if v == nil {
			delete(result, k)
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			result[k] = MergePatch(result[k], sub)
			continue
		}
		result[k] = deepCopy(v)
	}
	return result
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	case nil, bool, string, float64, json.Number, int, int64:
		return val
	default:
		return val
	}
}
