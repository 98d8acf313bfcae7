// Package suggest provides "did you mean" suggestions for misspelled names.
package suggest

import (
	"fmt"

	"github.com/agext/levenshtein"
)

// String suggests a string that closely matches one of the candidates.
//
// The maximum allowed edit distance depends on the length of want. Callers
// should not rely on the exact heuristic.
//
// If no close match is found, an empty string is returned.
func String(want string, candidates []string) string {
	maxDist := len(want) / 5
	if maxDist == 0 {
		maxDist = 1
	}

	var str string
	dist := maxDist + 1

	for _, cand := range candidates {
		if cand == "" {
			continue
		}
		if want == cand {
			return want
		}
		d := levenshtein.Distance(want, cand, nil)
		if d < dist {
			str = cand
			dist = d
		}
	}

	if dist > maxDist {
		return ""
	}

	return str
}

// DidYouMean returns a message suffix suggesting a close match for want, or an
// empty string if there is none.
func DidYouMean(want string, candidates []string) string {
	s := String(want, candidates)
	if s == "" || s == want {
		return ""
	}
	return fmt.Sprintf(", did you mean %q?", s)
}
