package executor

import (
	"encoding/json"
	"time"

	"smarttest/internal/generator"
)

// Status is the lifecycle state of one test case. Cases move
// Pending -> Running -> one of the terminal states.
type Status string

const (
	StatusPending Status = "Pending"
	StatusRunning Status = "Running"
	StatusPassed  Status = "Passed"
	StatusFailed  Status = "Failed"
	StatusSkipped Status = "Skipped"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusSkipped
}

// Artifacts are file paths of failure evidence, captured best-effort.
type Artifacts struct {
	Screenshot   string `json:"screenshot,omitempty"`
	ConsoleLog   string `json:"console_log,omitempty"`
	DOMSnapshot  string `json:"dom_snapshot,omitempty"`
	NetworkTrace string `json:"network_trace,omitempty"`
}

// StepResult records one executed step, in case order.
type StepResult struct {
	Index    int           `json:"index"`
	Action   string        `json:"action"`
	Target   string        `json:"target,omitempty"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of one test case.
type Result struct {
	TestID    string             `json:"test_id"`
	Category  generator.Category `json:"category"`
	Status    Status             `json:"status"`
	Duration  time.Duration      `json:"-"`
	Error     string             `json:"error_message,omitempty"`
	Steps     []StepResult       `json:"steps,omitempty"`
	Artifacts *Artifacts         `json:"artifacts,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
}

// MarshalJSON renders the duration as seconds, matching the report format.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		alias
		ExecutionTime float64 `json:"execution_time"`
	}{alias(r), r.Duration.Seconds()})
}

// Summary aggregates a run.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Summarize tallies results per terminal state.
func Summarize(results map[generator.Category][]Result) Summary {
	var s Summary
	for _, rs := range results {
		for _, r := range rs {
			s.Total++
			switch r.Status {
			case StatusPassed:
				s.Passed++
			case StatusFailed:
				s.Failed++
			case StatusSkipped:
				s.Skipped++
			}
		}
	}
	return s
}
