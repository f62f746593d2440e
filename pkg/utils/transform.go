package utils

import (
	"strings"
)

// Dedup removes duplicates while keeping first-seen order. Trailing slashes
// are trimmed so endpoint URLs compare equal.
func Dedup(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, e := range in {
		e = strings.TrimRight(e, "/")
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
