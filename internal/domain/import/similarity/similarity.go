// Package similarity provides the string scores used to match imported
// transactions against history: trigram similarity and edit distance.
package similarity

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/FACorreiaa/statement-import/internal/domain/import/normalizer"
)

// padding is prepended and appended to a string before trigram extraction.
const padding = "  "

// Normalize lower-cases s and collapses its whitespace.
func Normalize(s string) string {
	return strings.ToLower(normalizer.NormalizeWhitespace(s))
}

// Trigrams returns the set of boundary-padded 3-rune substrings of the
// normalized s. An empty string has no trigrams.
func Trigrams(s string) map[string]struct{} {
	s = Normalize(s)
	if s == "" {
		return map[string]struct{}{}
	}
	runes := []rune(padding + s + padding)
	set := make(map[string]struct{}, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

// TrigramSimilarity returns the Jaccard index of the trigram sets of a and b,
// in [0,1]. It is 0 when either string is empty.
func TrigramSimilarity(a, b string) float64 {
	ta, tb := Trigrams(a), Trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(ta) > len(tb) {
		ta, tb = tb, ta
	}
	shared := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// EditDistance returns the Levenshtein distance between a and b, counting
// rune insertions, deletions and substitutions at cost 1.
func EditDistance(a, b string) int {
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), levenshtein.DefaultOptionsWithSub)
}
