package generator

import (
	"fmt"
	"strings"
)

// Category groups generated test cases by intent.
type Category string

const (
	CategoryPositive   Category = "positive"
	CategoryNegative   Category = "negative"
	CategoryUI         Category = "ui"
	CategoryFunctional Category = "functional"
	CategoryWorkflow   Category = "workflow"
	CategoryEdgeCase   Category = "edge_case"
)

// Categories returns every category in canonical order.
func Categories() []Category {
	return []Category{
		CategoryPositive, CategoryNegative, CategoryUI,
		CategoryFunctional, CategoryWorkflow, CategoryEdgeCase,
	}
}

// token is the category's segment in generated IDs.
func (c Category) token() string { return strings.ToUpper(string(c)) }

// Priority is the execution priority of a test case.
type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
)

// Risk tags attached to cases that probe a specific failure class.
const (
	RiskSQLInjection       = "sql_injection"
	RiskXSS                = "xss"
	RiskEmptyField         = "empty_field"
	RiskInvalidCredentials = "invalid_credentials"
	RiskBoundary           = "boundary"
	RiskCosmetic           = "cosmetic"
)

// priorityFor is the single place priorities are decided: injection probes
// are Critical, nothing else is; missing-required and credential failures
// are High; cosmetic checks are Low; the rest inherit a per-rule default.
func priorityFor(risk string, fallback Priority) Priority {
	switch risk {
	case RiskSQLInjection, RiskXSS:
		return PriorityCritical
	case RiskEmptyField, RiskInvalidCredentials:
		return PriorityHigh
	case RiskCosmetic:
		return PriorityLow
	}
	if fallback == "" {
		return PriorityMedium
	}
	return fallback
}

// Step is one scripted action of a test case. Target names an element key in
// the page model the suite was generated from.
type Step struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Describe renders the step for human-readable reports.
func (s Step) Describe() string {
	switch {
	case s.Target != "" && s.Value != "":
		return fmt.Sprintf("%s %s = %q", s.Action, s.Target, s.Value)
	case s.Target != "":
		return fmt.Sprintf("%s %s", s.Action, s.Target)
	case s.Value != "":
		return fmt.Sprintf("%s %q", s.Action, s.Value)
	}
	return s.Action
}

// TestCase is one generated scenario.
type TestCase struct {
	ID             string   `json:"test_id"`
	Name           string   `json:"test_name"`
	Description    string   `json:"description"`
	Category       Category `json:"category"`
	Priority       Priority `json:"priority"`
	Steps          []Step   `json:"steps"`
	ExpectedResult string   `json:"expected_result"`
	ElementKey     string   `json:"element,omitempty"`
	Risk           string   `json:"risk,omitempty"`
}

// Suite is the generator output: per-category ordered case lists.
type Suite map[Category][]TestCase

// Total counts every case across categories.
func (s Suite) Total() int {
	n := 0
	for _, cases := range s {
		n += len(cases)
	}
	return n
}

// Flatten returns all cases in canonical category order.
func (s Suite) Flatten() []TestCase {
	var out []TestCase
	for _, c := range Categories() {
		out = append(out, s[c]...)
	}
	return out
}

// idAllocator builds {CATEGORY}_{SUBTYPE}_{ELEMENT} IDs, uppercased and
// bounded, appending a numeric suffix when a collision would occur.
type idAllocator struct {
	used map[string]int
}

func newIDAllocator() *idAllocator {
	return &idAllocator{used: make(map[string]int)}
}

func (a *idAllocator) next(cat Category, subtype, elementKey string) string {
	id := cat.token() + "_" + sanitizeIdentifier(subtype) + "_" + sanitizeIdentifier(elementKey)
	n := a.used[id]
	a.used[id] = n + 1
	if n > 0 {
		return fmt.Sprintf("%s_%d", id, n+1)
	}
	return id
}

// sanitizeIdentifier uppercases and strips anything that is not [A-Z0-9_],
// capping the segment length so IDs stay printable.
func sanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.':
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "X"
	}
	if len(out) > 30 {
		out = out[:30]
	}
	return out
}
