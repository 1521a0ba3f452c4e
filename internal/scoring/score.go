// Package scoring ranks catalog candidates against a normalized invoice
// description.
package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

const (
	coverageWeight = 0.8
	jaccardWeight  = 0.2

	// tokens shorter than this only match exactly
	fuzzyMinRunes = 4
	// minimum edit similarity for a fuzzy token match
	fuzzyMinRatio = 0.8
)

// Score compares two normalized strings as token sets and returns a value in
// [0,1]. Coverage of query tokens by the candidate dominates, with a soft
// Jaccard term separating candidates that carry extra words. Word order is
// ignored and adding a query token that the candidate contains never lowers
// the score.
func Score(query, candidate string) float64 {
	q := tokenSet(query)
	c := tokenSet(candidate)
	if len(q) == 0 || len(c) == 0 {
		return 0
	}

	matched := 0.0
	for tok := range q {
		matched += bestMatch(tok, c)
	}

	coverage := matched / float64(len(q))
	jaccard := matched / (float64(len(q)+len(c)) - matched)
	if jaccard > 1 {
		jaccard = 1
	}
	score := coverageWeight*coverage + jaccardWeight*jaccard
	if score > 1 {
		score = 1
	}
	return score
}

// bestMatch is 1 for an exact token hit, the edit similarity for a close
// spelling of a long token, and 0 otherwise.
func bestMatch(tok string, candidate map[string]struct{}) float64 {
	if _, ok := candidate[tok]; ok {
		return 1
	}
	if utf8.RuneCountInString(tok) < fuzzyMinRunes {
		return 0
	}
	best := 0.0
	src := []rune(tok)
	for other := range candidate {
		if utf8.RuneCountInString(other) < fuzzyMinRunes {
			continue
		}
		ratio := levenshtein.RatioForStrings(src, []rune(other), levenshtein.DefaultOptions)
		if ratio >= fuzzyMinRatio && ratio > best {
			best = ratio
		}
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
