package screen

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Similarity scores how closely observed text matches an expected pattern,
// in [0, 1]. The score is the better of two views of the same strings:
// normalized edit distance (tolerant of character-level recognition noise)
// and token overlap (tolerant of surrounding text the capture region picked
// up). Deterministic for identical inputs.
func Similarity(expected, observed string) float64 {
	if expected == "" {
		return 0
	}
	if expected == observed {
		return 1
	}

	ed := editSimilarity(expected, observed)
	to := tokenOverlap(expected, observed)
	if to > ed {
		return to
	}
	return ed
}

func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// tokenOverlap is the fraction of expected tokens present in the observed
// text. Substring containment counts: recognition often glues adjacent
// tokens together.
func tokenOverlap(expected, observed string) float64 {
	tokens := strings.Fields(strings.ReplaceAll(expected, "\n", " "))
	if len(tokens) == 0 {
		return 0
	}
	flat := strings.ReplaceAll(observed, "\n", " ")
	hit := 0
	for _, tok := range tokens {
		if strings.Contains(flat, tok) {
			hit++
		}
	}
	return float64(hit) / float64(len(tokens))
}
