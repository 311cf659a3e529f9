// Package match implements the fuzzy matching shared by friend and cuisine search.
package match

import "unicode/utf8"

// Fixed match policy constants.
const (
	// MatchThreshold is the similarity a whole field must exceed.
	MatchThreshold = 0.4
	// WordMatchThreshold is the similarity a single cuisine word must exceed.
	WordMatchThreshold = 0.5
	// MinFuzzyQueryLen is the shortest query that is fuzzy matched at all.
	MinFuzzyQueryLen = 2
)

// Similarity returns 1 - Levenshtein(a, b)/max(len(a), len(b)) in runes, or 0
// when either string is empty. Callers normalize case before calling.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	return 1 - float64(Levenshtein(a, b))/float64(max(la, lb))
}

// Levenshtein returns the edit distance between a and b with unit costs for
// insertion, deletion and substitution.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = 1 + min(prev[j], curr[j-1], prev[j-1])
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
