// Package normalize turns noisy OCR invoice descriptions into a canonical,
// comparable form shared by search, matching, alias learning, and bulk jobs.
package normalize

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmpty marks a description with nothing left to match after normalization.
var ErrEmpty = errors.New("normalize: empty description")

var (
	upperDigitRun = regexp.MustCompile(`[A-Z0-9]{20,}`)
	longDigitRun  = regexp.MustCompile(`[0-9]{8,}`)
)

// Result is the outcome of analyzing one raw description.
type Result struct {
	Text       string
	LowQuality bool
}

// Err reports ErrEmpty when nothing survived normalization.
func (r Result) Err() error {
	if r.Text == "" {
		return ErrEmpty
	}
	return nil
}

// Step is one named stage of the pipeline.
type Step struct {
	Name string
	Fn   func(string) string
}

// Normalizer runs the ordered pipeline with a given synonym table.
type Normalizer struct {
	synonyms *SynonymTable
	steps    []Step
}

// New builds a normalizer; a nil table uses the embedded default.
func New(synonyms *SynonymTable) *Normalizer {
	if synonyms == nil {
		synonyms = defaultSynonyms
	}
	n := &Normalizer{synonyms: synonyms}
	n.steps = []Step{
		{Name: "fold_case", Fn: foldCase},
		{Name: "strip_pack_size", Fn: stripPackSize},
		{Name: "strip_punctuation", Fn: stripPunctuation},
		{Name: "strip_pack_words", Fn: stripPackWords},
		{Name: "strip_category_keywords", Fn: stripCategoryKeywords},
		{Name: "strip_garbled_abbreviations", Fn: stripGarbledAbbreviations},
		{Name: "collapse_whitespace", Fn: collapseWhitespace},
		{Name: "apply_synonyms", Fn: synonyms.Apply},
	}
	return n
}

var (
	defaultSynonyms   = mustDefaultSynonyms()
	defaultNormalizer = New(nil)
)

// Normalize returns the canonical form of description using the default
// synonym table. It never fails; unusable input yields "".
func Normalize(description string) string {
	return defaultNormalizer.Normalize(description)
}

// Analyze normalizes description and tags OCR garbage.
func Analyze(description string) Result {
	return defaultNormalizer.Analyze(description)
}

// Steps exposes the pipeline for diagnostics.
func (n *Normalizer) Steps() []Step {
	out := make([]Step, len(n.steps))
	copy(out, n.steps)
	return out
}

// Normalize applies the pipeline until the output is stable. Removing a keyword
// can expose a size ("12 vodka oz" -> "12 oz") to the pack step, so a single
// pass is not idempotent. Every step but the synonym rewrite only removes
// text, and synonym targets are neither keys nor stripped words, so the loop
// settles.
func (n *Normalizer) Normalize(description string) string {
	out := description
	for {
		next := n.pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

// Analyze normalizes and flags descriptions that look like OCR garbage.
func (n *Normalizer) Analyze(description string) Result {
	return Result{
		Text:       n.Normalize(description),
		LowQuality: IsLowQuality(description),
	}
}

func (n *Normalizer) pass(s string) string {
	for _, step := range n.steps {
		s = step.Fn(s)
	}
	return s
}

// IsLowQuality reports long uninterrupted uppercase/digit runs or 8+
// consecutive digits in the raw text.
func IsLowQuality(raw string) bool {
	return upperDigitRun.MatchString(raw) || longDigitRun.MatchString(raw)
}

// foldCase lower-cases and removes diacritics ("AÑEJO" -> "anejo").
func foldCase(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

var punctuationReplacer = strings.NewReplacer(
	"*", " ", "-", " ", "_", " ", "/", " ", `\`, " ", "|", " ",
	",", " ", "(", " ", ")", " ", "#", " ", `"`, " ", "'", " ",
)

// stripPunctuation turns separator noise printed by vendor systems into
// spaces and drops dangling periods left by truncated words.
func stripPunctuation(s string) string {
	tokens := strings.Fields(punctuationReplacer.Replace(s))
	out := tokens[:0]
	for _, tok := range tokens {
		if tok = strings.Trim(tok, "."); tok != "" {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}

// collapseWhitespace collapses whitespace runs and trims the ends.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
