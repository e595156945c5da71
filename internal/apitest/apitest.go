// Package apitest generates HTTP test cases from an OpenAPI/Swagger
// specification and executes them against a live service.
package apitest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Case is one generated HTTP test.
type Case struct {
	TestID         string            `json:"test_id"`
	Name           string            `json:"name"`
	Method         string            `json:"method"`
	Path           string            `json:"path"`
	URL            string            `json:"url"`
	Category       string            `json:"category"`
	ExpectedStatus int               `json:"expected_status"`
	Description    string            `json:"description"`
	Payload        any               `json:"payload,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Query          map[string]any    `json:"query,omitempty"`
}

// PlanSummary counts generated cases per category.
type PlanSummary struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

// Generator derives test cases from one parsed specification.
type Generator struct {
	baseURL string
	spec    map[string]any
	log     *zap.Logger
}

// NewGenerator parses the specification source. JSON is tried first; YAML as
// a fallback, since OpenAPI documents ship in both.
func NewGenerator(baseURL, specSource string, log *zap.Logger) (*Generator, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("apitest: base URL is required")
	}
	if strings.TrimSpace(specSource) == "" {
		return nil, fmt.Errorf("apitest: specification is required")
	}

	var spec map[string]any
	if err := json.Unmarshal([]byte(specSource), &spec); err != nil {
		if yerr := yaml.Unmarshal([]byte(specSource), &spec); yerr != nil {
			return nil, fmt.Errorf("apitest: specification is neither valid JSON nor YAML: %w", err)
		}
	}

	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		spec:    spec,
		log:     log,
	}, nil
}

// methodOrder fixes the per-path case order; maps carry no order of their own.
var methodOrder = []string{"get", "post", "put", "patch", "delete"}

// Generate walks every path/method pair and emits a positive case per
// operation plus a missing-body negative case for operations that take one.
// Output is deterministic for identical input.
func (g *Generator) Generate() ([]Case, PlanSummary, error) {
	paths, ok := g.spec["paths"].(map[string]any)
	if !ok || len(paths) == 0 {
		return nil, PlanSummary{}, fmt.Errorf("apitest: specification must include paths")
	}

	pathKeys := make([]string, 0, len(paths))
	for p := range paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	var cases []Case
	var summary PlanSummary
	add := func(c Case, bucket string) {
		cases = append(cases, c)
		summary.Total++
		if bucket == "positive" {
			summary.Positive++
		} else {
			summary.Negative++
		}
	}

	for _, path := range pathKeys {
		methods, ok := paths[path].(map[string]any)
		if !ok {
			continue
		}
		for _, method := range methodOrder {
			details, ok := methods[method].(map[string]any)
			if !ok {
				continue
			}
			upper := strings.ToUpper(method)
			testID := buildTestID(upper, path)
			url := g.buildURL(path)

			add(Case{
				TestID:         testID + "_POS",
				Name:           operationName(details, upper, path),
				Method:         upper,
				Path:           path,
				URL:            url,
				Category:       "positive",
				ExpectedStatus: extractStatus(details, true),
				Description:    stringField(details, "description"),
				Payload:        g.buildPayload(details),
				Headers:        g.buildHeaders(details),
				Query:          buildQueryParams(details),
			}, "positive")

			if hasRequestBody(details) {
				add(Case{
					TestID:         testID + "_NEG",
					Name:           fmt.Sprintf("%s %s - missing body", upper, path),
					Method:         upper,
					Path:           path,
					URL:            url,
					Category:       "negative",
					ExpectedStatus: extractStatus(details, false),
					Description:    "Submit request with missing or invalid payload",
					Payload:        map[string]any{},
					Headers:        g.buildHeaders(details),
					Query:          buildQueryParams(details),
				}, "negative")
			}
		}
	}

	g.log.Info("api test plan generated",
		zap.String("base_url", g.baseURL),
		zap.Int("total", summary.Total),
		zap.Int("positive", summary.Positive),
		zap.Int("negative", summary.Negative))
	return cases, summary, nil
}

var (
	unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	pathParams    = regexp.MustCompile(`\{[^}]+\}`)
)

func buildTestID(method, path string) string {
	safe := strings.Trim(unsafeIDChars.ReplaceAllString(path, "_"), "_")
	if safe == "" {
		safe = "ROOT"
	}
	return fmt.Sprintf("API_%s_%s", method, safe)
}

func (g *Generator) buildURL(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return g.baseURL + pathParams.ReplaceAllString(path, "sample")
}

func operationName(details map[string]any, method, path string) string {
	if s := stringField(details, "summary"); s != "" {
		return s
	}
	return method + " " + path
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// extractStatus picks the operation's first 2xx (or 4xx) response code,
// falling back to the first declared code, then to 200/400.
func extractStatus(details map[string]any, success bool) int {
	fallback := 200
	prefix := "2"
	if !success {
		fallback = 400
		prefix = "4"
	}
	responses, ok := details["responses"].(map[string]any)
	if !ok || len(responses) == 0 {
		return fallback
	}

	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		if strings.HasPrefix(code, prefix) {
			if n := parseStatusCode(code); n > 0 {
				return n
			}
		}
	}
	if n := parseStatusCode(codes[0]); n > 0 {
		return n
	}
	return fallback
}

func parseStatusCode(code string) int {
	n := 0
	for _, r := range code {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
		}
	}
	return n
}

func (g *Generator) buildHeaders(details map[string]any) map[string]string {
	headers := make(map[string]string)
	if v := firstMIME(details["consumes"], g.spec["consumes"]); v != "" {
		headers["Content-Type"] = v
	}
	if v := firstMIME(details["produces"], g.spec["produces"]); v != "" {
		headers["Accept"] = v
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

func firstMIME(values ...any) string {
	for _, v := range values {
		if list, ok := v.([]any); ok && len(list) > 0 {
			if s, ok := list[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func parameters(details map[string]any) []map[string]any {
	raw, ok := details["parameters"].([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, p := range raw {
		if m, ok := p.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func buildQueryParams(details map[string]any) map[string]any {
	var params map[string]any
	for _, p := range parameters(details) {
		if stringField(p, "in") != "query" {
			continue
		}
		name := stringField(p, "name")
		if name == "" {
			continue
		}
		if params == nil {
			params = make(map[string]any)
		}
		schema, _ := p["schema"].(map[string]any)
		if schema == nil {
			schema = p
		}
		params[name] = sampleValue(schema)
	}
	return params
}

func hasRequestBody(details map[string]any) bool {
	if _, ok := details["requestBody"].(map[string]any); ok {
		return true
	}
	for _, p := range parameters(details) {
		if stringField(p, "in") == "body" {
			return true
		}
	}
	return false
}

func (g *Generator) buildPayload(details map[string]any) any {
	if body, ok := details["requestBody"].(map[string]any); ok {
		if content, ok := body["content"].(map[string]any); ok {
			if jsonContent, ok := content["application/json"].(map[string]any); ok {
				schema, _ := jsonContent["schema"].(map[string]any)
				return sampleValue(schema)
			}
		}
	}
	for _, p := range parameters(details) {
		if stringField(p, "in") == "body" {
			schema, _ := p["schema"].(map[string]any)
			return sampleValue(schema)
		}
	}
	return nil
}

// sampleValue derives a representative value from a schema: explicit example,
// default, first enum entry, then a per-type placeholder.
func sampleValue(schema map[string]any) any {
	if len(schema) == 0 {
		return map[string]any{}
	}
	if v, ok := schema["example"]; ok {
		return v
	}
	if v, ok := schema["default"]; ok {
		return v
	}
	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		return enum[0]
	}

	switch stringField(schema, "type") {
	case "object":
		obj := make(map[string]any)
		if props, ok := schema["properties"].(map[string]any); ok {
			for name, prop := range props {
				child, _ := prop.(map[string]any)
				obj[name] = sampleValue(child)
			}
		}
		return obj
	case "array":
		items, _ := schema["items"].(map[string]any)
		return []any{sampleValue(items)}
	case "integer":
		return 1
	case "number":
		return 1.0
	case "boolean":
		return true
	case "string":
		switch stringField(schema, "format") {
		case "date":
			return time.Now().UTC().Format("2006-01-02")
		case "date-time":
			return time.Now().UTC().Format(time.RFC3339)
		case "email":
			return "user@example.com"
		case "uuid":
			return "00000000-0000-4000-8000-000000000000"
		}
		if p := stringField(schema, "pattern"); p != "" {
			return p
		}
		return "sample-text"
	}
	return "sample"
}
