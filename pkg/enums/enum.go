// Package enums holds the string enums shared by models, DTOs and events.
// Each type lists its members once, in a valid* slice.
package enums

import (
	"fmt"
	"slices"
)

// parse matches value exactly; enums are never case-folded.
func parse[T ~string](kind, value string, valid []T) (T, error) {
	if v := T(value); slices.Contains(valid, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
