package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Predicate is a safe, structured condition evaluated against a JSON
// snapshot of {context, results}. It replaces free-form expression strings:
// nothing is ever executed, only looked up and compared.
//
// Exactly one of the following forms must be used:
//   - a leaf comparison: Path + Op (+ Value for binary operators)
//   - All: conjunction of sub-predicates
//   - Any: disjunction of sub-predicates
//   - Not: negation of one sub-predicate
type Predicate struct {
	Path  string      `yaml:"path,omitempty" json:"path,omitempty"`
	Op    string      `yaml:"op,omitempty" json:"op,omitempty"`
	Value any         `yaml:"value,omitempty" json:"value,omitempty"`
	All   []Predicate `yaml:"all,omitempty" json:"all,omitempty"`
	Any   []Predicate `yaml:"any,omitempty" json:"any,omitempty"`
	Not   *Predicate  `yaml:"not,omitempty" json:"not,omitempty"`
}

// Supported leaf operators.
const (
	OpEquals      = "eq"
	OpNotEquals   = "ne"
	OpGreaterThan = "gt"
	OpLessThan    = "lt"
	OpExists      = "exists"
	OpContains    = "contains"
)

// Validate checks that the predicate uses exactly one form and a known
// operator.
func (p Predicate) Validate() error {
	forms := 0
	if p.Path != "" {
		forms++
	}
	if len(p.All) > 0 {
		forms++
	}
	if len(p.Any) > 0 {
		forms++
	}
	if p.Not != nil {
		forms++
	}
	if forms != 1 {
		return errors.New("predicate must use exactly one of path, all, any, not")
	}

	switch {
	case p.Path != "":
		switch p.Op {
		case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpExists, OpContains:
		default:
			return fmt.Errorf("predicate has unknown operator %q", p.Op)
		}
	case p.Not != nil:
		return p.Not.Validate()
	default:
		for _, sub := range append(append([]Predicate{}, p.All...), p.Any...) {
			if err := sub.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Evaluate resolves the predicate against the snapshot. Unresolvable paths
// behave as absent values: exists is false, comparisons fail.
func (p Predicate) Evaluate(snapshot []byte) bool {
	switch {
	case len(p.All) > 0:
		for _, sub := range p.All {
			if !sub.Evaluate(snapshot) {
				return false
			}
		}
		return true
	case len(p.Any) > 0:
		for _, sub := range p.Any {
			if sub.Evaluate(snapshot) {
				return true
			}
		}
		return false
	case p.Not != nil:
		return !p.Not.Evaluate(snapshot)
	}

	res := gjson.GetBytes(snapshot, p.Path)
	switch p.Op {
	case OpExists:
		return res.Exists()
	case OpEquals:
		return res.Exists() && looseEqual(res, p.Value)
	case OpNotEquals:
		return !res.Exists() || !looseEqual(res, p.Value)
	case OpGreaterThan:
		f, ok := toFloat(p.Value)
		return res.Exists() && ok && res.Float() > f
	case OpLessThan:
		f, ok := toFloat(p.Value)
		return res.Exists() && ok && res.Float() < f
	case OpContains:
		return res.Exists() && strings.Contains(res.String(), fmt.Sprint(p.Value))
	default:
		return false
	}
}

// looseEqual compares a gjson result with a configured value, normalizing
// numeric types so YAML ints match JSON floats.
func looseEqual(res gjson.Result, value any) bool {
	if f, ok := toFloat(value); ok && res.Type == gjson.Number {
		return res.Float() == f
	}
	if b, ok := value.(bool); ok {
		return res.IsBool() && res.Bool() == b
	}
	if s, ok := value.(string); ok {
		return res.Type == gjson.String && res.String() == s
	}
	return fmt.Sprint(res.Value()) == fmt.Sprint(value)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
