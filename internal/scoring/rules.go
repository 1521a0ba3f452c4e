package scoring

import (
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed curated_rules.yaml
var defaultRulesYAML []byte

// Rule maps a description pattern to the catalog item it must resolve to.
type Rule struct {
	Name        string `yaml:"name"`
	Priority    int    `yaml:"priority"`
	Description string `yaml:"description"`
	Candidate   string `yaml:"candidate"`
	Search      string `yaml:"search"`

	description *regexp.Regexp
	candidate   *regexp.Regexp
}

// MatchesDescription reports whether the rule applies to a normalized query.
func (r *Rule) MatchesDescription(query string) bool {
	return r.description.MatchString(query)
}

// MatchesCandidate reports whether a normalized candidate name is the target.
func (r *Rule) MatchesCandidate(name string) bool {
	return r.candidate.MatchString(name)
}

// RuleSet is an immutable, priority-ordered rule table.
type RuleSet struct {
	rules []*Rule
}

type rulesFile struct {
	Rules []*Rule `yaml:"rules"`
}

// LoadRules parses, compiles and orders a YAML rule table.
func LoadRules(r io.Reader) (*RuleSet, error) {
	var file rulesFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode curated rules: %w", err)
	}
	seen := map[string]struct{}{}
	for i, rule := range file.Rules {
		if strings.TrimSpace(rule.Name) == "" {
			return nil, fmt.Errorf("curated rule %d: name is required", i)
		}
		if _, dup := seen[rule.Name]; dup {
			return nil, fmt.Errorf("curated rule %q declared twice", rule.Name)
		}
		seen[rule.Name] = struct{}{}

		var err error
		if rule.description, err = regexp.Compile(rule.Description); err != nil || rule.Description == "" {
			return nil, fmt.Errorf("curated rule %q: bad description pattern: %v", rule.Name, err)
		}
		if rule.candidate, err = regexp.Compile(rule.Candidate); err != nil || rule.Candidate == "" {
			return nil, fmt.Errorf("curated rule %q: bad candidate pattern: %v", rule.Name, err)
		}
	}
	sort.SliceStable(file.Rules, func(i, j int) bool {
		return file.Rules[i].Priority < file.Rules[j].Priority
	})
	return &RuleSet{rules: file.Rules}, nil
}

// Match returns the first rule, in priority order, whose description pattern
// matches query.
func (s *RuleSet) Match(query string) (*Rule, bool) {
	if s == nil {
		return nil, false
	}
	for _, rule := range s.rules {
		if rule.MatchesDescription(query) {
			return rule, true
		}
	}
	return nil, false
}

// Rules returns the ordered rule names for diagnostics.
func (s *RuleSet) Rules() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.rules))
	for _, r := range s.rules {
		names = append(names, r.Name)
	}
	return names
}

// DefaultRules returns the embedded rule table.
func DefaultRules() *RuleSet {
	return defaultRules
}

var defaultRules = mustDefaultRules()

func mustDefaultRules() *RuleSet {
	rs, err := LoadRules(strings.NewReader(string(defaultRulesYAML)))
	if err != nil {
		panic(fmt.Sprintf("scoring: embedded curated rules invalid: %v", err))
	}
	return rs
}
