package scoring

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/backoffice-backend/internal/normalize"
	"github.com/angelmondragon/backoffice-backend/pkg/enums"
)

// ErrAmbiguous is reported when several distinct items share the top score.
var ErrAmbiguous = errors.New("scoring: multiple candidates share the top score")

// tieEpsilon absorbs float noise when comparing top scores.
const tieEpsilon = 1e-9

// Signal describes how a candidate was retrieved.
type Signal string

const (
	SignalNameContainsQuery Signal = "name_contains_query"
	SignalQueryContainsName Signal = "query_contains_name"
	SignalSKU               Signal = "sku"
	SignalToken             Signal = "token"
	SignalCurated           Signal = "curated"
)

// Candidate is a catalog item offered for scoring.
type Candidate struct {
	ItemID      uuid.UUID `json:"item_id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku,omitempty"`
	Category    string    `json:"category,omitempty"`
	Subcategory string    `json:"subcategory,omitempty"`
	Signal      Signal    `json:"signal,omitempty"`
}

// Match is a scored candidate.
type Match struct {
	Candidate
	Confidence float64          `json:"confidence"`
	Provenance enums.Provenance `json:"provenance,omitempty"`
	Rule       string           `json:"rule,omitempty"`
}

// Ranking is the ordered outcome of scoring a candidate list.
type Ranking struct {
	Matches   []Match
	Ambiguous bool
	Curated   bool
}

// Top returns the best match, if any.
func (r Ranking) Top() (Match, bool) {
	if len(r.Matches) == 0 {
		return Match{}, false
	}
	return r.Matches[0], true
}

// Tied returns every match sharing the top score.
func (r Ranking) Tied() []Match {
	top, ok := r.Top()
	if !ok {
		return nil
	}
	out := []Match{}
	for _, m := range r.Matches {
		if top.Confidence-m.Confidence > tieEpsilon {
			break
		}
		out = append(out, m)
	}
	return out
}

// Err reports ErrAmbiguous for tied rankings.
func (r Ranking) Err() error {
	if r.Ambiguous {
		return ErrAmbiguous
	}
	return nil
}

// Scorer ranks candidates, consulting curated rules first.
type Scorer struct {
	rules *RuleSet
	norm  *normalize.Normalizer
}

// New builds a scorer. A nil rule set uses the embedded default.
func New(rules *RuleSet) *Scorer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Scorer{rules: rules, norm: normalize.New(nil)}
}

// Rule returns the curated rule that applies to query, if any.
func (s *Scorer) Rule(query string) (*Rule, bool) {
	return s.rules.Match(query)
}

// Rank scores candidates against a normalized query. When a curated rule
// applies and one of the candidates is its target, only the rule's targets are
// returned, each with confidence 1.
func (s *Scorer) Rank(query string, candidates []Candidate) Ranking {
	candidates = dedupe(candidates)
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = s.norm.Normalize(c.Name)
	}

	if rule, ok := s.rules.Match(query); ok {
		var curated []Match
		for i, c := range candidates {
			if rule.MatchesCandidate(names[i]) {
				curated = append(curated, Match{
					Candidate:  c,
					Confidence: 1,
					Provenance: enums.ProvenanceCurated,
					Rule:       rule.Name,
				})
			}
		}
		if len(curated) > 0 {
			sortMatches(curated)
			return Ranking{Matches: curated, Curated: true, Ambiguous: len(curated) > 1}
		}
	}

	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		score := Score(query, names[i])
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{Candidate: c, Confidence: score})
	}
	sortMatches(matches)

	r := Ranking{Matches: matches}
	r.Ambiguous = len(r.Tied()) > 1
	return r
}

func sortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Confidence != m[j].Confidence {
			return m[i].Confidence > m[j].Confidence
		}
		if m[i].Name != m[j].Name {
			return m[i].Name < m[j].Name
		}
		return m[i].ItemID.String() < m[j].ItemID.String()
	})
}

func dedupe(in []Candidate) []Candidate {
	seen := make(map[uuid.UUID]struct{}, len(in))
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c.ItemID]; ok {
			continue
		}
		seen[c.ItemID] = struct{}{}
		out = append(out, c)
	}
	return out
}
