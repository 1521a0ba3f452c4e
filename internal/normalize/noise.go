package normalize

import (
	"regexp"
	"strings"
)

// Category words are redundant with the catalog item's category and only add
// noise to token comparison.
var categoryKeywords = wordSet(
	"tequila", "vodka", "whiskey", "whisky", "bourbon", "rum", "gin", "mezcal",
	"scotch", "brandy", "cognac", "liqueur", "cordial", "spirits", "liquor",
	"mexican", "american", "irish", "canadian", "french", "italian", "japanese",
	"russian", "polish", "jamaican", "domestic", "imported",
)

// OCR truncations of category words that survive as stray fragments.
var garbledAbbreviations = wordSet(
	"wh", "whis", "whisk", "whsky", "whsk", "teq", "tequi", "vdk", "vod", "bour",
)

// Container words describing the purchase unit rather than the product.
var packWords = wordSet(
	"case", "cs", "btl", "btls", "bottle", "bottles", "pk", "pack", "ea", "ct", "count", "x",
)

const sizeUnits = `(?:fl\.?\s?oz|ml|ltr|lt|liters?|litres?|l|oz|gal|lbs|lb|kg|gr|g|qt|quarts?|ct|pk|pack|each|ea)`

var (
	// "6 x 750ml", "6/750ML", "24*12oz"
	countSizeRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*[x/*]\s*\d+(?:\.\d+)?\s*` + sizeUnits + `\b`)
	// "750ml", "1.75 l", "12pk", "3-ct"
	sizeRe = regexp.MustCompile(`\b\d+(?:\.\d+)?[\s-]*` + sizeUnits + `\b`)
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func isStrippedWord(tok string) bool {
	for _, set := range []map[string]struct{}{categoryKeywords, garbledAbbreviations, packWords} {
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}

// stripPackSize removes count and size notation ("6/750ml", "1.75 l",
// "12pk") before separators are lost. The pack resolver parses these from the
// raw description instead. Bare numbers survive, so "don julio 1942" keeps its
// name.
func stripPackSize(s string) string {
	s = countSizeRe.ReplaceAllString(s, " ")
	return sizeRe.ReplaceAllString(s, " ")
}

// stripPackWords removes container words ("case", "cs", "btl") describing
// the purchase unit rather than the product.
func stripPackWords(s string) string {
	return dropWords(s, packWords)
}

// stripCategoryKeywords removes spirit-type words and nationality adjectives.
func stripCategoryKeywords(s string) string {
	return dropWords(s, categoryKeywords)
}

// stripGarbledAbbreviations removes truncated OCR fragments such as "wh".
func stripGarbledAbbreviations(s string) string {
	return dropWords(s, garbledAbbreviations)
}

func dropWords(s string, set map[string]struct{}) string {
	tokens := strings.Fields(s)
	out := tokens[:0]
	for _, tok := range tokens {
		if _, ok := set[tok]; !ok {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}
