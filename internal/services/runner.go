// Package services wires the analysis, generation and execution stages into
// the run pipeline used by the API, the CLI and the cron scheduler.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smarttest/internal/analyzer"
	"smarttest/internal/apitest"
	"smarttest/internal/browser"
	"smarttest/internal/executor"
	"smarttest/internal/generator"
	"smarttest/internal/history"
	"smarttest/internal/reports"
)

// Runner executes the full pipeline: analyze -> generate -> execute ->
// report -> history.
type Runner struct {
	Browser   browser.Browser
	Analyzer  *analyzer.Analyzer
	Generator *generator.Generator
	BaseCfg   executor.Config
	Reports   *reports.Writer
	History   *history.Log
	Log       *zap.Logger
}

// RunOverrides tune a single run without touching the base configuration.
type RunOverrides struct {
	Workers        int
	TimeoutSeconds int
	CategoryCap    int
}

func (r *Runner) engineConfig(ov RunOverrides) executor.Config {
	cfg := r.BaseCfg
	if ov.Workers > 0 {
		cfg.Workers = ov.Workers
	}
	if ov.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(ov.TimeoutSeconds) * time.Second
	}
	if ov.CategoryCap > 0 {
		cfg.CategoryCap = ov.CategoryCap
	}
	return cfg
}

// Analyze scans a page in a throwaway session.
func (r *Runner) Analyze(ctx context.Context, url string) (*analyzer.PageModel, error) {
	session, err := r.Browser.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	defer session.Close()
	return r.Analyzer.Analyze(ctx, session, url)
}

// GenerateResult bundles the outcome of a generation run.
type GenerateResult struct {
	RunID      string              `json:"run_id"`
	Model      *analyzer.PageModel `json:"model"`
	Suite      generator.Suite     `json:"suite"`
	ReportPath string              `json:"report_path"`
}

// Generate analyzes the page and derives a suite, writing a report and a
// history entry.
func (r *Runner) Generate(ctx context.Context, url string, creds *generator.Credentials) (*GenerateResult, error) {
	model, err := r.Analyze(ctx, url)
	if err != nil {
		return nil, err
	}
	suite := r.Generator.Generate(model, creds)

	res := &GenerateResult{RunID: uuid.New().String(), Model: model, Suite: suite}
	if path, err := r.Reports.WriteSuite(model.URL, suite, time.Now()); err != nil {
		r.Log.Warn("suite report write failed", zap.Error(err))
	} else {
		res.ReportPath = path
	}

	summary := map[string]int{"total": suite.Total()}
	for _, cat := range generator.Categories() {
		summary[string(cat)] = len(suite[cat])
	}
	r.History.Add(history.Record{
		RunID:      res.RunID,
		Kind:       "generation",
		WebsiteURL: model.URL,
		Summary:    summary,
		ReportPath: res.ReportPath,
	})
	return res, nil
}

// ExecuteResult bundles the outcome of an execution run.
type ExecuteResult struct {
	RunID      string                                   `json:"run_id"`
	Model      *analyzer.PageModel                      `json:"-"`
	Suite      generator.Suite                          `json:"-"`
	Results    map[generator.Category][]executor.Result `json:"results"`
	Summary    executor.Summary                         `json:"summary"`
	ReportPath string                                   `json:"report_path"`
}

// Execute runs the whole pipeline against a URL.
func (r *Runner) Execute(ctx context.Context, url string, creds *generator.Credentials, ov RunOverrides) (*ExecuteResult, error) {
	model, err := r.Analyze(ctx, url)
	if err != nil {
		return nil, err
	}
	suite := r.Generator.Generate(model, creds)

	engine := executor.New(r.Browser, r.engineConfig(ov), r.Log)
	results := engine.Execute(ctx, model, suite)
	summary := executor.Summarize(results)

	res := &ExecuteResult{
		RunID:   uuid.New().String(),
		Model:   model,
		Suite:   suite,
		Results: results,
		Summary: summary,
	}
	if path, err := r.Reports.WriteResults(model.URL, results, time.Now()); err != nil {
		r.Log.Warn("execution report write failed", zap.Error(err))
	} else {
		res.ReportPath = path
	}

	r.History.Add(history.Record{
		RunID:      res.RunID,
		Kind:       "execution",
		WebsiteURL: model.URL,
		Summary: map[string]int{
			"total": summary.Total, "passed": summary.Passed,
			"failed": summary.Failed, "skipped": summary.Skipped,
		},
		ReportPath: res.ReportPath,
	})
	return res, nil
}

// APIPlanResult bundles the outcome of an API plan generation.
type APIPlanResult struct {
	RunID      string              `json:"run_id"`
	BaseURL    string              `json:"base_url"`
	Cases      []apitest.Case      `json:"cases"`
	Summary    apitest.PlanSummary `json:"summary"`
	ReportPath string              `json:"report_path"`
}

// GenerateAPITests derives an HTTP test plan from an OpenAPI specification.
func (r *Runner) GenerateAPITests(baseURL, specSource string) (*APIPlanResult, error) {
	gen, err := apitest.NewGenerator(baseURL, specSource, r.Log)
	if err != nil {
		return nil, err
	}
	cases, summary, err := gen.Generate()
	if err != nil {
		return nil, err
	}

	res := &APIPlanResult{
		RunID:   uuid.New().String(),
		BaseURL: baseURL,
		Cases:   cases,
		Summary: summary,
	}
	if path, err := r.Reports.WriteAPIPlan(baseURL, cases, summary, time.Now()); err != nil {
		r.Log.Warn("api plan report write failed", zap.Error(err))
	} else {
		res.ReportPath = path
	}

	r.History.Add(history.Record{
		RunID:      res.RunID,
		Kind:       "api_generation",
		WebsiteURL: baseURL,
		Summary: map[string]int{
			"total": summary.Total, "positive": summary.Positive,
			"negative": summary.Negative,
		},
		ReportPath: res.ReportPath,
	})
	return res, nil
}

// APIRunResult bundles the outcome of an API execution run.
type APIRunResult struct {
	RunID      string           `json:"run_id"`
	BaseURL    string           `json:"base_url"`
	Results    []apitest.Result `json:"results"`
	Summary    apitest.Summary  `json:"summary"`
	ReportPath string           `json:"report_path"`
}

// ExecuteAPITests generates the plan and runs every case over HTTP.
func (r *Runner) ExecuteAPITests(ctx context.Context, baseURL, specSource string, timeout time.Duration) (*APIRunResult, error) {
	plan, err := r.GenerateAPITests(baseURL, specSource)
	if err != nil {
		return nil, err
	}

	exec := apitest.NewExecutor(timeout, r.Log)
	results, summary := exec.Execute(ctx, plan.Cases)

	res := &APIRunResult{
		RunID:   uuid.New().String(),
		BaseURL: baseURL,
		Results: results,
		Summary: summary,
	}
	if path, err := r.Reports.WriteAPIResults(baseURL, results, summary, time.Now()); err != nil {
		r.Log.Warn("api execution report write failed", zap.Error(err))
	} else {
		res.ReportPath = path
	}

	r.History.Add(history.Record{
		RunID:      res.RunID,
		Kind:       "api_execution",
		WebsiteURL: baseURL,
		Summary: map[string]int{
			"total": summary.Total, "passed": summary.Passed,
			"failed": summary.Failed,
		},
		ReportPath: res.ReportPath,
	})
	return res, nil
}

// LoginProbeResult reports what a credential check found.
type LoginProbeResult struct {
	FieldsFound bool   `json:"fields_found"`
	OTPRequired bool   `json:"otp_required"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// LoginProbe checks whether the page carries a credential-shaped login form
// and, when credentials are supplied, drives it once.
func (r *Runner) LoginProbe(ctx context.Context, url string, creds *generator.Credentials) (*LoginProbeResult, error) {
	model, err := r.Analyze(ctx, url)
	if err != nil {
		return nil, err
	}
	out := &LoginProbeResult{}
	user, pass, submit := model.LoginFields()
	out.FieldsFound = user != nil && pass != nil && submit != nil
	out.OTPRequired = model.OTPField() != nil
	if !out.FieldsFound || creds == nil {
		return out, nil
	}

	suite := r.Generator.Generate(model, creds)
	var login *generator.TestCase
	for i := range suite[generator.CategoryWorkflow] {
		tc := &suite[generator.CategoryWorkflow][i]
		if tc.ElementKey == user.Key {
			login = tc
			break
		}
	}
	if login == nil {
		return out, nil
	}

	engine := executor.New(r.Browser, r.engineConfig(RunOverrides{Workers: 1}), r.Log)
	results := engine.Execute(ctx, model, generator.Suite{generator.CategoryWorkflow: {*login}})
	for _, rs := range results[generator.CategoryWorkflow] {
		out.Success = rs.Status == executor.StatusPassed
		out.Error = rs.Error
	}
	return out, nil
}
