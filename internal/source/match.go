package source

import (
	"strings"
	"unicode"

	"github.com/ppiankov/schemetrust/internal/model"
)

// noiseWords are dropped before comparing scheme names
var noiseWords = map[string]bool{
	"the": true, "of": true, "for": true, "and": true, "in": true, "to": true,
	"a": true, "an": true, "is": true, "scheme": true, "yojana": true, "yojna": true,
	"mission": true, "abhiyan": true, "pradhan": true, "mantri": true, "pm": true,
	"national": true, "central": true, "government": true, "india": true,
}

// tokens lowercases text, splits on non-alphanumerics and drops noise words
func tokens(text string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(f) > 1 && !noiseWords[f] {
			out[f] = true
		}
	}
	return out
}

// overlap returns the Jaccard similarity of the two texts' significant tokens
func overlap(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for t := range ta {
		if tb[t] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// matchScore is the best overlap between any of the scheme's names and a candidate title
func matchScore(scheme model.Scheme, title string) float64 {
	best := 0.0
	for _, name := range scheme.SearchNames() {
		if o := overlap(name, title); o > best {
			best = o
		}
	}
	return best
}

// containsAny reports whether text contains any of the keywords (case-insensitive)
func containsAny(text string, keywords ...string) bool {
	text = strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
