// Package gate decides which branch of a conditional step runs.
package gate

import (
	"fmt"
	"strings"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

// Branch names the side of a condition that runs
type Branch string

const (
	IfBranch   Branch = "if"
	ElseBranch Branch = "else"
)

// Predicate kinds as they appear in serialized definitions
const (
	KindEquals   = "Equals"
	KindMemberOf = "In"
)

// Predicate tests an observed value
type Predicate interface {
	Holds(observed string) bool
	Kind() string
	Values() []string
}

type equals struct {
	expected string
}

// Equals holds when the observed value matches expected exactly
func Equals(expected string) Predicate {
	return equals{expected: expected}
}

func (p equals) Holds(observed string) bool { return observed == p.expected }
func (p equals) Kind() string { return KindEquals }
func (p equals) Values() []string { return []string{p.expected} }
func (p equals) String() string { return fmt.Sprintf("== %q", p.expected) }

type memberOf struct {
	values []string
}

// MemberOf holds when the observed value is one of values
func MemberOf(values ...string) Predicate {
	return memberOf{values: append([]string(nil), values...)}
}

func (p memberOf) Holds(observed string) bool {
	for _, v := range p.values {
		if v == observed {
			return true
		}
	}
	return false
}

func (p memberOf) Kind() string { return KindMemberOf }
func (p memberOf) Values() []string { return append([]string(nil), p.values...) }
func (p memberOf) String() string { return "in [" + strings.Join(p.values, ", ") + "]" }

// FailureGuard holds for the statuses that mean a job did not complete
func FailureGuard() Predicate {
	values := make([]string, 0, len(model.FailureStatuses))
	for _, s := range model.FailureStatuses {
		values = append(values, string(s))
	}
	return MemberOf(values...)
}

// New rebuilds a predicate from its serialized kind
func New(kind string, values []string) (Predicate, error) {
	switch kind {
	case KindEquals:
		if len(values) != 1 {
			return nil, fmt.Errorf("equals predicate takes one value, got %d", len(values))
		}
		return Equals(values[0]), nil
	case KindMemberOf:
		return MemberOf(values...), nil
	default:
		return nil, fmt.Errorf("unknown predicate kind %q", kind)
	}
}

// Evaluate returns IfBranch when the predicate holds and ElseBranch otherwise.
// A failure guard therefore keeps IfBranch empty and puts the continuation in ElseBranch.
func Evaluate(p Predicate, observed string) Branch {
	if p != nil && p.Holds(observed) {
		return IfBranch
	}
	return ElseBranch
}
