package diff

import (
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Rule pairs a glob pattern with the Strategy to apply to matching
// relpaths. Ported from the original implementation's ConflictRule
// (conflict/rules.rs): a pattern string plus its compiled matcher and
// a strategy, with "**" matching across directory separators.
type Rule struct {
	pattern  string
	matcher  glob.Glob
	strategy Strategy
}

// NewRule compiles pattern and pairs it with strategy.
func NewRule(pattern string, strategy Strategy) (Rule, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return Rule{}, errors.Wrapf(err, "diff: invalid glob pattern %q", pattern)
	}
	return Rule{pattern: pattern, matcher: g, strategy: strategy}, nil
}

// Pattern returns the rule's glob pattern string.
func (r Rule) Pattern() string { return r.pattern }

// Strategy returns the rule's strategy.
func (r Rule) Strategy() Strategy { return r.strategy }

// Matches reports whether relpath matches the rule's pattern.
func (r Rule) Matches(relpath string) bool {
	return r.matcher.Match(relpath)
}

// RuleSet is an ordered list of per-pattern conflict rules, evaluated
// first-match-wins, grounded on the original implementation's
// ConflictRuleSet. It supplements §4.10's single global Strategy with
// per-path overrides (e.g. "*.log" always PreferLast, "**/*.db" always
// PreferNewest) — a feature the distilled spec doesn't mention but the
// original system provides and which fits naturally alongside Policy.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet returns an empty RuleSet.
func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Add appends rule to the set. Rules are evaluated in the order added.
func (rs *RuleSet) Add(rule Rule) {
	rs.rules = append(rs.rules, rule)
}

// Lookup returns the strategy of the first rule matching relpath, and
// true. If no rule matches, it returns false so the caller falls back
// to Policy.Strategy.
func (rs *RuleSet) Lookup(relpath string) (Strategy, bool) {
	for _, r := range rs.rules {
		if r.Matches(relpath) {
			return r.strategy, true
		}
	}
	return 0, false
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}
