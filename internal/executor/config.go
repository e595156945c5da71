package executor

import (
	"fmt"
	"math"
	"time"
)

// Config bounds a run. Zero values fall back to defaults; CategoryCap and
// Timeout stay zero, meaning uncapped and no deadline.
type Config struct {
	// Workers is the fixed pool size; each worker owns one browser session.
	Workers int
	// Timeout is the whole-run deadline. When it fires, queued cases are
	// Skipped and in-flight cases Fail with a timeout error.
	Timeout time.Duration
	// MaxRetries is the attempt budget for a transiently failing action.
	MaxRetries int
	// RetryBase, RetryMultiplier and RetryMaxDelay define the backoff
	// schedule between attempts.
	RetryBase       time.Duration
	RetryMultiplier float64
	RetryMaxDelay   time.Duration
	// LoadTimeBudget bounds the verify_load_time check.
	LoadTimeBudget time.Duration
	// ArtifactDir receives failure evidence. Empty disables artifacts.
	ArtifactDir string
	// CategoryCap limits negative/ui/functional categories to the first N
	// cases, for demo runs. Zero executes everything.
	CategoryCap int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMultiplier <= 1 {
		c.RetryMultiplier = 2.0
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 5 * time.Second
	}
	if c.LoadTimeBudget <= 0 {
		c.LoadTimeBudget = 10 * time.Second
	}
	return c
}

// Backoff returns the delay before retrying attempt (1-based):
// base * multiplier^(attempt-1), capped at the configured maximum.
func Backoff(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(cfg.RetryBase) * math.Pow(cfg.RetryMultiplier, float64(attempt-1)))
	if d > cfg.RetryMaxDelay || d <= 0 {
		d = cfg.RetryMaxDelay
	}
	return d
}

// InteractionTimeoutError marks a case cut off by the run deadline while it
// was already executing.
type InteractionTimeoutError struct {
	TestID string
	After  time.Duration
}

func (e *InteractionTimeoutError) Error() string {
	return fmt.Sprintf("executor: case %s timed out after %s", e.TestID, e.After)
}

// AssertionError is a verify step whose observed state did not match.
type AssertionError struct {
	Action string
	Target string
	Want   string
	Got    string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("executor: %s on %s failed: want %q, got %q", e.Action, e.Target, e.Want, e.Got)
}
