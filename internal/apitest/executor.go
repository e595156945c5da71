package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds one request.
	DefaultTimeout = 30 * time.Second
	// previewLimit caps the stored response body excerpt.
	previewLimit = 600
)

// Result is the outcome of one executed case.
type Result struct {
	TestID          string  `json:"test_id"`
	Name            string  `json:"name"`
	Method          string  `json:"method"`
	URL             string  `json:"url"`
	ExpectedStatus  int     `json:"expected_status"`
	Status          string  `json:"status"` // passed | failed
	StatusCode      int     `json:"status_code,omitempty"`
	ResponseTime    float64 `json:"response_time"`
	ResponsePreview string  `json:"response_preview,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Summary tallies one execution run.
type Summary struct {
	Total         int     `json:"total"`
	Passed        int     `json:"passed"`
	Failed        int     `json:"failed"`
	ExecutionTime float64 `json:"execution_time"`
}

// Executor runs cases sequentially over one HTTP client.
type Executor struct {
	client *http.Client
	log    *zap.Logger
}

func NewExecutor(timeout time.Duration, log *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Execute runs every case and reports per-case results plus a run summary.
// A case passes when the response status matches its expectation; transport
// errors fail the case, not the run.
func (e *Executor) Execute(ctx context.Context, cases []Case) ([]Result, Summary) {
	start := time.Now()
	results := make([]Result, 0, len(cases))
	summary := Summary{Total: len(cases)}

	for _, c := range cases {
		res := e.runCase(ctx, c)
		if res.Status == "passed" {
			summary.Passed++
		} else {
			summary.Failed++
		}
		results = append(results, res)
	}

	summary.ExecutionTime = time.Since(start).Seconds()
	e.log.Info("api run finished",
		zap.Int("total", summary.Total),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed))
	return results, summary
}

func (e *Executor) runCase(ctx context.Context, c Case) Result {
	start := time.Now()
	res := Result{
		TestID:         c.TestID,
		Name:           c.Name,
		Method:         c.Method,
		URL:            c.URL,
		ExpectedStatus: c.ExpectedStatus,
		Status:         "failed",
	}

	req, err := e.buildRequest(ctx, c)
	if err != nil {
		res.Error = err.Error()
		res.ResponseTime = time.Since(start).Seconds()
		return res
	}

	resp, err := e.client.Do(req)
	res.ResponseTime = time.Since(start).Seconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, previewLimit+1))
	res.StatusCode = resp.StatusCode
	res.ResponsePreview = truncate(string(body))

	if resp.StatusCode == c.ExpectedStatus {
		res.Status = "passed"
	} else {
		res.Error = fmt.Sprintf("expected %d but received %d", c.ExpectedStatus, resp.StatusCode)
	}
	return res
}

func (e *Executor) buildRequest(ctx context.Context, c Case) (*http.Request, error) {
	var body io.Reader
	if c.Payload != nil {
		raw, err := json.Marshal(c.Payload)
		if err != nil {
			return nil, fmt.Errorf("apitest: encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.Method, c.URL, body)
	if err != nil {
		return nil, fmt.Errorf("apitest: build request: %w", err)
	}

	if len(c.Query) > 0 {
		q := req.URL.Query()
		for name, value := range c.Query {
			q.Set(name, fmt.Sprint(value))
		}
		req.URL.RawQuery = q.Encode()
	}
	for name, value := range c.Headers {
		req.Header.Set(name, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func truncate(body string) string {
	if len(body) <= previewLimit {
		return body
	}
	return body[:previewLimit] + "..."
}
