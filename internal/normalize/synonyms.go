package normalize

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultSynonymsYAML []byte

// Synonym rewrites one normalized phrase into its canonical spelling.
type Synonym struct {
	From       string `yaml:"from"`
	To         string `yaml:"to"`
	Note       string `yaml:"note"`
	Unverified bool   `yaml:"unverified"`
}

// SynonymTable is an immutable, validated set of synonym entries.
type SynonymTable struct {
	entries []Synonym
	// keyed by first token, longest phrase first
	byHead map[string][][]string
	target map[string][]string
}

type synonymFile struct {
	Synonyms []Synonym `yaml:"synonyms"`
}

// LoadSynonyms parses and validates a YAML synonym table.
func LoadSynonyms(r io.Reader) (*SynonymTable, error) {
	var file synonymFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode synonyms: %w", err)
	}
	return newSynonymTable(file.Synonyms)
}

func newSynonymTable(entries []Synonym) (*SynonymTable, error) {
	t := &SynonymTable{
		byHead: map[string][][]string{},
		target: map[string][]string{},
	}
	keys := map[string]struct{}{}
	for i, e := range entries {
		from := strings.Fields(strings.ToLower(e.From))
		to := strings.Fields(strings.ToLower(e.To))
		if len(from) == 0 || len(to) == 0 {
			return nil, fmt.Errorf("synonym %d: from and to are required", i)
		}
		key := strings.Join(from, " ")
		if _, dup := keys[key]; dup {
			return nil, fmt.Errorf("synonym %q declared twice", key)
		}
		keys[key] = struct{}{}
		e.From, e.To = key, strings.Join(to, " ")
		t.entries = append(t.entries, e)
		t.byHead[from[0]] = append(t.byHead[from[0]], from)
		t.target[key] = to
	}
	for _, e := range t.entries {
		for _, tok := range strings.Fields(e.To) {
			if _, chained := keys[tok]; chained {
				return nil, fmt.Errorf("synonym %q rewrites to %q which is itself a synonym key", e.From, tok)
			}
			if isStrippedWord(tok) {
				return nil, fmt.Errorf("synonym %q rewrites to stripped word %q", e.From, tok)
			}
		}
	}
	for head, phrases := range t.byHead {
		sortLongestFirst(phrases)
		t.byHead[head] = phrases
	}
	return t, nil
}

// Entries returns a copy of the table for review screens and audits.
func (t *SynonymTable) Entries() []Synonym {
	out := make([]Synonym, len(t.entries))
	copy(out, t.entries)
	return out
}

// Apply rewrites every matching phrase in the token-separated input. Output
// tokens are never re-examined, so rewrites cannot cascade.
func (t *SynonymTable) Apply(s string) string {
	tokens := strings.Fields(s)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := false
		for _, phrase := range t.byHead[tokens[i]] {
			if hasPrefix(tokens[i:], phrase) {
				out = append(out, t.target[strings.Join(phrase, " ")]...)
				i += len(phrase)
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

func hasPrefix(tokens, phrase []string) bool {
	if len(phrase) > len(tokens) {
		return false
	}
	for i := range phrase {
		if tokens[i] != phrase[i] {
			return false
		}
	}
	return true
}

func sortLongestFirst(phrases [][]string) {
	sort.SliceStable(phrases, func(i, j int) bool {
		return len(phrases[i]) > len(phrases[j])
	})
}

func mustDefaultSynonyms() *SynonymTable {
	t, err := LoadSynonyms(strings.NewReader(string(defaultSynonymsYAML)))
	if err != nil {
		panic(fmt.Sprintf("normalize: embedded synonyms invalid: %v", err))
	}
	return t
}
