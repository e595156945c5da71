// Package reports writes generation and execution reports to disk as JSON,
// with a CSV export for spreadsheet use. Output is deterministic for a given
// suite and timestamp.
package reports

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"smarttest/internal/apitest"
	"smarttest/internal/executor"
	"smarttest/internal/generator"
)

// Writer persists reports under one directory.
type Writer struct {
	dir string
}

func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("reports: create dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the report directory.
func (w *Writer) Dir() string { return w.dir }

// SuiteReport is the JSON layout of a generation report.
type SuiteReport struct {
	WebsiteURL  string                                      `json:"website_url"`
	GeneratedAt time.Time                                   `json:"generated_at"`
	Summary     map[string]int                              `json:"summary"`
	TestCases   map[generator.Category][]generator.TestCase `json:"test_cases"`
}

// WriteSuite writes a generation report and returns its path.
func (w *Writer) WriteSuite(url string, suite generator.Suite, at time.Time) (string, error) {
	report := SuiteReport{
		WebsiteURL:  url,
		GeneratedAt: at.UTC(),
		Summary:     suiteSummary(suite),
		TestCases:   suite,
	}
	name := fmt.Sprintf("test_report_%s.json", at.UTC().Format("20060102_150405"))
	return w.writeJSON(name, report)
}

// ExecutionReport is the JSON layout of an execution report.
type ExecutionReport struct {
	WebsiteURL string                                   `json:"website_url"`
	ExecutedAt time.Time                                `json:"executed_at"`
	Summary    executor.Summary                         `json:"summary"`
	Results    map[generator.Category][]executor.Result `json:"results"`
}

// WriteResults writes an execution report and returns its path.
func (w *Writer) WriteResults(url string, results map[generator.Category][]executor.Result, at time.Time) (string, error) {
	report := ExecutionReport{
		WebsiteURL: url,
		ExecutedAt: at.UTC(),
		Summary:    executor.Summarize(results),
		Results:    results,
	}
	name := fmt.Sprintf("execution_report_%s.json", at.UTC().Format("20060102_150405"))
	return w.writeJSON(name, report)
}

// APIPlanReport is the JSON layout of a generated API test plan.
type APIPlanReport struct {
	BaseURL     string              `json:"base_url"`
	GeneratedAt time.Time           `json:"generated_at"`
	Summary     apitest.PlanSummary `json:"summary"`
	TestCases   []apitest.Case      `json:"test_cases"`
}

// WriteAPIPlan writes an API test plan and returns its path.
func (w *Writer) WriteAPIPlan(baseURL string, cases []apitest.Case, summary apitest.PlanSummary, at time.Time) (string, error) {
	report := APIPlanReport{
		BaseURL:     baseURL,
		GeneratedAt: at.UTC(),
		Summary:     summary,
		TestCases:   cases,
	}
	name := fmt.Sprintf("api_test_plan_%s.json", at.UTC().Format("20060102_150405"))
	return w.writeJSON(name, report)
}

// APIExecutionReport is the JSON layout of an API execution report.
type APIExecutionReport struct {
	BaseURL    string           `json:"base_url"`
	ExecutedAt time.Time        `json:"executed_at"`
	Summary    apitest.Summary  `json:"summary"`
	Results    []apitest.Result `json:"results"`
}

// WriteAPIResults writes an API execution report and returns its path.
func (w *Writer) WriteAPIResults(baseURL string, results []apitest.Result, summary apitest.Summary, at time.Time) (string, error) {
	report := APIExecutionReport{
		BaseURL:    baseURL,
		ExecutedAt: at.UTC(),
		Summary:    summary,
		Results:    results,
	}
	name := fmt.Sprintf("api_execution_report_%s.json", at.UTC().Format("20060102_150405"))
	return w.writeJSON(name, report)
}

func (w *Writer) writeJSON(name string, v any) (string, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("reports: marshal: %w", err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("reports: write %s: %w", name, err)
	}
	return path, nil
}

var csvHeader = []string{"Test ID", "Test Name", "Category", "Priority", "Description", "Steps", "Expected Result"}

// WriteSuiteCSV exports the suite as CSV, one row per case, in canonical
// category order.
func (w *Writer) WriteSuiteCSV(suite generator.Suite, at time.Time) (string, error) {
	name := fmt.Sprintf("test_report_%s.csv", at.UTC().Format("20060102_150405"))
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("reports: create %s: %w", name, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return "", err
	}
	for _, tc := range suite.Flatten() {
		var steps []string
		for i, s := range tc.Steps {
			steps = append(steps, strconv.Itoa(i+1)+". "+s.Describe())
		}
		row := []string{
			tc.ID, tc.Name, string(tc.Category), string(tc.Priority),
			tc.Description, strings.Join(steps, "\n"), tc.ExpectedResult,
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("reports: flush csv: %w", err)
	}
	return path, nil
}

// Open returns a report file by name, refusing paths outside the directory.
func (w *Writer) Open(name string) (string, error) {
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("reports: invalid report name %q", name)
	}
	path := filepath.Join(w.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("reports: %s: %w", name, err)
	}
	return path, nil
}

func suiteSummary(suite generator.Suite) map[string]int {
	m := map[string]int{"total": suite.Total()}
	for _, cat := range generator.Categories() {
		m[string(cat)] = len(suite[cat])
	}
	return m
}
