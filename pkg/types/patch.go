package types

import "strings"

// Patch is a partial document deep-merged into a marketplace resource.
type Patch map[string]any

// Set assigns value at a dot-separated path, creating intermediate objects.
func (p Patch) Set(path string, value any) Patch {
	parts := strings.Split(path, ".")
	node := map[string]any(p)
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			if typed, isPatch := node[part].(Patch); isPatch {
				next = map[string]any(typed)
			} else {
				next = map[string]any{}
			}
			node[part] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
	return p
}

// Get reads the value stored at a dot-separated path.
func (p Patch) Get(path string) (any, bool) {
	var node any = map[string]any(p)
	for _, part := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// IsEmpty reports whether the patch carries no fields.
func (p Patch) IsEmpty() bool {
	return len(p) == 0
}
