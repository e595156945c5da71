// Package locator models how elements are addressed: every element carries a
// ranked list of locator candidates, ordered by how well each kind of
// selector survives page changes. Resolution walks that list against the
// live DOM and remembers which rank last worked.
package locator

import (
	"fmt"
	"sort"
	"strings"

	"smarttest/internal/browser"
)

// Strategy identifies one way of addressing an element. The numeric order is
// the stability order: lower values survive page churn better.
type Strategy int

const (
	StrategyTestID Strategy = iota
	StrategyAria
	StrategyID
	StrategyName
	StrategyText
	StrategyCSS
	StrategyXPath
)

var strategyNames = [...]string{"testid", "aria", "id", "name", "text", "css", "xpath"}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return fmt.Sprintf("strategy(%d)", int(s))
	}
	return strategyNames[s]
}

// ParseStrategy maps a strategy name back to its constant.
func ParseStrategy(name string) (Strategy, error) {
	for i, n := range strategyNames {
		if n == name {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("locator: unknown strategy %q", name)
}

// MarshalText / UnmarshalText keep candidates readable in JSON reports.
func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Strategy) UnmarshalText(b []byte) error {
	v, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Candidate is one concrete selector for an element, plus the bounding box
// the element had when the candidate was captured. The box breaks ties when
// a selector matches more than one live node.
type Candidate struct {
	Strategy Strategy     `json:"strategy"`
	Selector string       `json:"selector"`
	Box      browser.Rect `json:"box,omitempty"`
}

// Rank returns the candidates sorted by strategy stability, preserving the
// original order within a strategy.
func Rank(cands []Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

// Build derives the full candidate list for a captured DOM node, in
// stability order. Missing attributes simply produce no candidate of that
// strategy; the node's XPath ref is always the last resort.
func Build(n browser.Node) []Candidate {
	var out []Candidate
	add := func(s Strategy, sel string) {
		out = append(out, Candidate{Strategy: s, Selector: sel, Box: n.Box})
	}

	if v := n.Attr("data-testid"); v != "" {
		add(StrategyTestID, fmt.Sprintf("[data-testid='%s']", v))
	}
	if v := n.Attr("aria-label"); v != "" {
		if role := n.Attr("role"); role != "" {
			add(StrategyAria, fmt.Sprintf("[role='%s'][aria-label='%s']", role, v))
		} else {
			add(StrategyAria, fmt.Sprintf("[aria-label='%s']", v))
		}
	}
	if v := n.Attr("id"); v != "" {
		add(StrategyID, "#"+v)
	}
	if v := n.Attr("name"); v != "" {
		add(StrategyName, fmt.Sprintf("%s[name='%s']", n.Tag, v))
	}
	if text := strings.TrimSpace(n.Text); text != "" && len(text) <= 40 && !strings.ContainsAny(text, "'\"\n") {
		add(StrategyText, fmt.Sprintf("//%s[normalize-space()='%s']", n.Tag, text))
	}
	if css := structuralCSS(n); css != "" {
		add(StrategyCSS, css)
	}
	if strings.HasPrefix(n.Ref, "/") {
		add(StrategyXPath, n.Ref)
	}
	return out
}

// structuralCSS builds a tag+type+class selector. Weakest of the CSS forms,
// but it survives id renames.
func structuralCSS(n browser.Node) string {
	var b strings.Builder
	b.WriteString(n.Tag)
	if t := n.Attr("type"); t != "" {
		fmt.Fprintf(&b, "[type='%s']", t)
	}
	classes := strings.Fields(n.Attr("class"))
	if len(classes) > 3 {
		classes = classes[:3]
	}
	for _, c := range classes {
		b.WriteString("." + c)
	}
	if b.Len() == len(n.Tag) && n.Tag == "" {
		return ""
	}
	return b.String()
}
