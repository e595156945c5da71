package analyzer

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordTableYAML []byte

// keywordRule is one entry of the classification vocabulary. Match kinds
// score differently: exact 3, prefix 2, contains 1, scaled by the rule
// weight and by which attribute matched.
type keywordRule struct {
	Tag      string   `yaml:"tag"`
	Weight   float64  `yaml:"weight"`
	Exact    []string `yaml:"exact"`
	Prefix   []string `yaml:"prefix"`
	Contains []string `yaml:"contains"`
}

// RuleTable is the versioned classification table. Classification over it is
// a pure function: same table, same attributes, same tags.
type RuleTable struct {
	Version   int           `yaml:"version"`
	Threshold float64       `yaml:"threshold"`
	Rules     []keywordRule `yaml:"rules"`
}

// LoadRuleTable parses the embedded vocabulary.
func LoadRuleTable() (*RuleTable, error) {
	var t RuleTable
	if err := yaml.Unmarshal(keywordTableYAML, &t); err != nil {
		return nil, fmt.Errorf("analyzer: parse keyword table: %w", err)
	}
	if t.Threshold <= 0 {
		t.Threshold = 1.0
	}
	return &t, nil
}

// attribute fields in match order, with how much each is trusted. Names and
// ids are authored deliberately; visible text is noisier.
var fieldWeights = []struct {
	get    func(Attributes) string
	weight float64
}{
	{func(a Attributes) string { return a.Name }, 1.0},
	{func(a Attributes) string { return a.ID }, 1.0},
	{func(a Attributes) string { return a.Placeholder }, 0.8},
	{func(a Attributes) string { return a.Label }, 0.8},
	{func(a Attributes) string { return a.Text }, 0.6},
	{func(a Attributes) string { return a.Href }, 0.5},
}

// Classify scores every rule against the element's attributes and returns
// the tags that clear the threshold, highest confidence first. Ties keep
// rule-table order, so the output is deterministic.
func (t *RuleTable) Classify(a Attributes) []SemanticTag {
	var tags []SemanticTag
	for _, rule := range t.Rules {
		if score := t.scoreRule(rule, a); score >= t.Threshold {
			tags = append(tags, SemanticTag{Name: rule.Tag, Confidence: score})
		}
	}
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Confidence > tags[j].Confidence })
	return tags
}

func (t *RuleTable) scoreRule(rule keywordRule, a Attributes) float64 {
	weight := rule.Weight
	if weight == 0 {
		weight = 1.0
	}
	best := 0.0
	for _, f := range fieldWeights {
		v := strings.ToLower(strings.TrimSpace(f.get(a)))
		if v == "" {
			continue
		}
		if s := matchScore(rule, v) * weight * f.weight; s > best {
			best = s
		}
	}
	return best
}

func matchScore(rule keywordRule, value string) float64 {
	for _, k := range rule.Exact {
		if value == k {
			return 3
		}
	}
	for _, k := range rule.Prefix {
		if strings.HasPrefix(value, k) {
			return 2
		}
	}
	for _, k := range rule.Contains {
		if strings.Contains(value, k) {
			return 1
		}
	}
	return 0
}

// tableVocabulary maps table subtypes to header tokens; the subtype with the
// largest token overlap wins, ties keep this order.
var tableVocabulary = []struct {
	kind   string
	tokens []string
}{
	{"student", []string{"student", "admission", "roll", "class", "section", "father", "dob", "gender"}},
	{"teacher", []string{"teacher", "faculty", "staff", "designation", "department", "qualification"}},
	{"attendance", []string{"attendance", "present", "absent", "date", "status"}},
	{"examination", []string{"exam", "subject", "marks", "grade", "total", "percentage", "result"}},
	{"finance", []string{"fee", "amount", "paid", "balance", "due", "receipt", "payment"}},
	{"library", []string{"book", "title", "author", "isbn", "issued", "returned"}},
	{"transport", []string{"route", "bus", "vehicle", "driver", "stop"}},
}

// classifyTable infers a table subtype from its headers.
func classifyTable(headers []string) string {
	joined := strings.ToLower(strings.Join(headers, " "))
	bestKind, bestHits := "generic", 0
	for _, v := range tableVocabulary {
		hits := 0
		for _, tok := range v.tokens {
			if strings.Contains(joined, tok) {
				hits++
			}
		}
		if hits > bestHits {
			bestKind, bestHits = v.kind, hits
		}
	}
	if bestHits < 2 {
		return "generic"
	}
	return bestKind
}
