package catalog

import (
	"strconv"
	"strings"
)

// WholeDocument is the output path that selects the entire response
const WholeDocument = "$"

// Extract walks a dotted path through decoded JSON.
// Integer segments index into lists, e.g. "output.0.content.0.text".
// Any miss at any level yields nil.
func Extract(data any, path string) any {
	v, _ := Lookup(data, path)
	return v
}

// Lookup is Extract that also reports whether the path exists.
// A path that ends on an explicit null is found with a nil value.
// Bracket indices ("items[0].name") are accepted as well.
func Lookup(data any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" || path == WholeDocument {
		return data, true
	}
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)

	current := data
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[part]
			if !ok {
				return nil, false
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}
