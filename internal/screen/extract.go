package screen

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRePatterns = []*regexp.Regexp{
		regexp.MustCompile(`[¥￥]\s*([0-9,]+)`),
		regexp.MustCompile(`([0-9,]+)\s*円`),
		regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+)`),
	}
	numberRe = regexp.MustCompile(`\d+`)
)

// ExtractPrice pulls a marketplace price out of recognized text. Patterns
// are tried most specific first; values outside a plausible range are
// skipped as recognition noise. Returns 0 when nothing credible is found.
func ExtractPrice(text string) int {
	text = Normalize(text)
	for _, re := range priceRePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw := strings.ReplaceAll(m[1], ",", "")
			n, err := strconv.Atoi(raw)
			if err != nil {
				continue
			}
			if n >= 100 && n <= 1_000_000 {
				return n
			}
		}
	}
	return 0
}

// ExtractNumbers returns every integer present in recognized text, in order.
func ExtractNumbers(text string) []int {
	var out []int
	for _, m := range numberRe.FindAllString(Normalize(text), -1) {
		if n, err := strconv.Atoi(m); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Sold-history recency phrases. A line carrying one of these counts as one
// sale inside the trailing 3-day window.
var (
	todayPhrases  = []string{"たった今", "分前", "時間前", "1時間以内"}
	recentPhrases = []string{"1日前", "2日前", "3日前"}
)

// CountRecentSales counts sold-history lines within the trailing 3-day
// window from recognized sold-history text.
func CountRecentSales(text string) int {
	count := 0
	for _, line := range strings.Split(Normalize(text), "\n") {
		if containsAny(line, todayPhrases) || containsAny(line, recentPhrases) {
			count++
		}
	}
	return count
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
