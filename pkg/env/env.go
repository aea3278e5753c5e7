package env

import (
	"os"
	"strings"
)

// FirstOf returns the first non-blank value among keys, or fallback. It covers
// platform variables such as PORT that sit outside the LIBRARY_ prefix that
// config.Load reads.
func FirstOf(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
