// Package enums holds the closed string sets persisted in outbox tables,
// workflow state and sponsorship facts.
package enums

import (
	"fmt"
	"slices"
)

func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

// parse matches raw against set exactly; kind names the set in the error.
func parse[T ~string](set []T, raw, kind string) (T, error) {
	if v := T(raw); member(set, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
