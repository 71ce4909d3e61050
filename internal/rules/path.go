// Package rules evaluates notification rules against trigger events and
// dispatches one notification per matched rule and recipient.
package rules

import (
	"strconv"
	"strings"
)

// Lookup walks a dot-separated path through decoded JSON.
//
// The boolean is false when any segment is missing, which is distinct from a
// present key holding null (returns nil, true). Numeric segments index arrays.
func Lookup(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var cur any = payload
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
