package execution

import (
	"regexp"
	"strings"

	"nodelink/internal/blocks"
	"nodelink/internal/catalog"
)

// referencePattern matches {{identifier.path}} references
var referencePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Context is the per-run record of block outputs, keyed by block ID and by
// display name. It is consulted when resolving {{identifier.field}} references.
type Context struct {
	ByID   map[string]map[string]any `json:"by_id"`
	ByName map[string]map[string]any `json:"by_name"`
}

// NewContext creates an empty execution context
func NewContext() *Context {
	return &Context{
		ByID:   make(map[string]map[string]any),
		ByName: make(map[string]map[string]any),
	}
}

// Record stores the current outputs of b
func (c *Context) Record(b *blocks.Block) {
	outputs := b.Outputs()
	c.ByID[b.ID] = outputs
	c.ByName[b.Name] = outputs
}

// Lookup resolves a reference body such as "Greeter.result" or "<id>.items.0".
// Block IDs take precedence over names. A reference without a field selects
// the whole output set.
func (c *Context) Lookup(ref string) (any, bool) {
	ref = strings.TrimSpace(ref)
	ident, path, _ := strings.Cut(ref, ".")

	outputs, ok := c.ByID[ident]
	if !ok {
		outputs, ok = c.ByName[ident]
	}
	if !ok {
		return nil, false
	}
	if path == "" {
		return outputs, true
	}
	return catalog.Lookup(outputs, path)
}

// Resolve substitutes references in v, recursing through objects and lists.
// Other values are returned unchanged.
func (c *Context) Resolve(v any) any {
	switch val := v.(type) {
	case string:
		return c.ResolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = c.Resolve(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = c.Resolve(item)
		}
		return out
	}
	return v
}

// ResolveString substitutes references in s.
// A string that is exactly one resolvable reference yields the referenced
// value with its type intact. Inside longer text, values are stringified and
// an explicit null becomes "". Unresolvable references are left verbatim.
func (c *Context) ResolveString(s string) any {
	if !strings.Contains(s, "{{") {
		return s
	}

	if m := referencePattern.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		if v, ok := c.Lookup(s[m[2]:m[3]]); ok {
			return v
		}
		return s
	}

	return referencePattern.ReplaceAllStringFunc(s, func(match string) string {
		ref := referencePattern.FindStringSubmatch(match)[1]
		v, ok := c.Lookup(ref)
		if !ok {
			return match
		}
		return catalog.Stringify(v)
	})
}

// HasReference reports whether s contains at least one {{...}} reference
func HasReference(s string) bool {
	return referencePattern.MatchString(s)
}
