package match

import (
	"strings"
	"unicode/utf8"
)

// MatchesField reports whether query selects target: a case-insensitive
// substring, or a fuzzy match above MatchThreshold for queries of at least
// MinFuzzyQueryLen runes.
func MatchesField(target, query string) bool {
	t, q := normalize(target), normalize(query)
	if q == "" || t == "" {
		return false
	}
	if strings.Contains(t, q) {
		return true
	}
	return fuzzy(t, q, MatchThreshold)
}

// FriendMatches applies the match policy to a user's name, email and the local
// part of the email.
func FriendMatches(name, email, query string) bool {
	if MatchesField(name, query) || MatchesField(email, query) {
		return true
	}
	local, _, _ := strings.Cut(email, "@")
	return MatchesField(local, query)
}

// CuisineMatches applies the match policy to the full cuisine name and then to
// each of its words, where a prefix or a fuzzy match above WordMatchThreshold
// is enough.
func CuisineMatches(cuisine, query string) bool {
	if MatchesField(cuisine, query) {
		return true
	}
	q := normalize(query)
	if q == "" {
		return false
	}
	for _, word := range strings.Fields(normalize(cuisine)) {
		if strings.HasPrefix(word, q) || fuzzy(word, q, WordMatchThreshold) {
			return true
		}
	}
	return false
}

// SearchCuisines filters the catalog by query, keeping catalog order. A blank
// query returns every cuisine.
func SearchCuisines(query string) []string {
	return FilterCuisines(Cuisines, query)
}

func FilterCuisines(catalog []string, query string) []string {
	if normalize(query) == "" {
		return append([]string(nil), catalog...)
	}
	out := make([]string, 0)
	for _, c := range catalog {
		if CuisineMatches(c, query) {
			out = append(out, c)
		}
	}
	return out
}

func fuzzy(target, query string, threshold float64) bool {
	return utf8.RuneCountInString(query) >= MinFuzzyQueryLen && Similarity(target, query) > threshold
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
