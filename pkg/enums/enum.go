package enums

import (
	"fmt"
	"slices"
)

func parse[T ~string](allowed []T, raw, label string) (T, error) {
	if v := T(raw); slices.Contains(allowed, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", label, raw)
}
