package screen

import (
	"strings"

	"golang.org/x/text/width"
)

// Normalize prepares recognized text for comparison: full-width characters
// are folded to their half-width variants, lines are trimmed, and blank
// lines dropped. Recognition frequently flips between ６８０ and 680 for the
// same pixels, so comparisons always run on folded text.
func Normalize(s string) string {
	folded := width.Fold.String(s)

	var lines []string
	for _, line := range strings.Split(folded, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, strings.Join(strings.Fields(line), " "))
	}
	return strings.Join(lines, "\n")
}
