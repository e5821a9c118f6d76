// Package classify maps aggregate values to display colors through an ordered
// list of threshold rules.
package classify

import (
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultColor is used when no rule matches.
const DefaultColor = "#3388ff"

// Operator is a comparison between a value and a rule threshold.
type Operator string

// Supported operators.
const (
	LT Operator = "<"
	LE Operator = "<="
	EQ Operator = "="
	GE Operator = ">="
	GT Operator = ">"
)

// ParseOperator accepts the symbolic operators plus "==" as an alias for "=".
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case LT, LE, EQ, GE, GT:
		return op, nil
	case "==":
		return EQ, nil
	default:
		return "", eris.Errorf("classify: unknown operator %q", s)
	}
}

// Rule colors values that satisfy Operator against Threshold.
type Rule struct {
	Operator  Operator `json:"operator" yaml:"operator" mapstructure:"operator"`
	Threshold float64  `json:"threshold" yaml:"threshold" mapstructure:"threshold"`
	Color     string   `json:"color" yaml:"color" mapstructure:"color"`
}

// Matches reports whether v satisfies the rule. Equality is exact.
func (r Rule) Matches(v float64) bool {
	switch r.Operator {
	case LT:
		return v < r.Threshold
	case LE:
		return v <= r.Threshold
	case EQ:
		return v == r.Threshold
	case GE:
		return v >= r.Threshold
	case GT:
		return v > r.Threshold
	default:
		return false
	}
}

// DefaultRules returns red below 10, blue from 10 and green from 25. Since
// the first match wins, the green rule is reachable only after reordering.
func DefaultRules() []Rule {
	return []Rule{
		{Operator: LT, Threshold: 10, Color: "#ff0000"},
		{Operator: GE, Threshold: 10, Color: "#0000ff"},
		{Operator: GE, Threshold: 25, Color: "#00ff00"},
	}
}

// Classifier assigns colors with a configurable fallback.
type Classifier struct {
	fallback string
}

// New creates a Classifier. An empty fallback selects DefaultColor.
func New(fallback string) *Classifier {
	if fallback == "" {
		fallback = DefaultColor
	}
	return &Classifier{fallback: fallback}
}

// Classify returns the color of the first rule in list order that matches v,
// or the fallback color.
func (c *Classifier) Classify(v float64, rules []Rule) string {
	for _, r := range rules {
		if r.Matches(v) {
			return r.Color
		}
	}
	return c.fallback
}

// Classify uses DefaultColor as the fallback.
func Classify(v float64, rules []Rule) string {
	return New("").Classify(v, rules)
}

// Validate checks that every rule has a known operator and a color.
func Validate(rules []Rule) error {
	for i, r := range rules {
		if _, err := ParseOperator(string(r.Operator)); err != nil {
			return eris.Wrapf(err, "classify: rule %d", i)
		}
		if strings.TrimSpace(r.Color) == "" {
			return eris.Errorf("classify: rule %d has no color", i)
		}
	}
	return nil
}

// Normalize returns a copy of rules with operator aliases resolved. Invalid
// operators are left as is for Validate to report.
func Normalize(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		if op, err := ParseOperator(string(r.Operator)); err == nil {
			r.Operator = op
		}
		out[i] = r
	}
	return out
}
