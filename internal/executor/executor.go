// Package executor runs generated test suites against live browser sessions
// with a fixed worker pool. Interactions follow a safe routine: resolve the
// element, scroll it into view, act, verify the effect, retrying transient
// failures with exponential backoff.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"smarttest/internal/analyzer"
	"smarttest/internal/browser"
	"smarttest/internal/generator"
	"smarttest/internal/locator"
)

// Engine executes suites. Safe for concurrent use; each Execute call builds
// its own pool and sessions.
type Engine struct {
	browser browser.Browser
	cfg     Config
	log     *zap.Logger
}

func New(b browser.Browser, cfg Config, log *zap.Logger) *Engine {
	return &Engine{browser: b, cfg: cfg.withDefaults(), log: log}
}

type job struct {
	category generator.Category
	index    int
	tc       generator.TestCase
}

// Execute runs every case of the suite and returns per-category results in
// the suite's original order. The model supplies element locators for step
// targets.
func (e *Engine) Execute(ctx context.Context, model *analyzer.PageModel, suite generator.Suite) map[generator.Category][]Result {
	runCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	results := make(map[generator.Category][]Result, len(suite))
	var jobs []job
	for _, cat := range generator.Categories() {
		cases := suite[cat]
		if n := e.cfg.CategoryCap; n > 0 && len(cases) > n && capped(cat) {
			e.log.Info("category capped for this run",
				zap.String("category", string(cat)), zap.Int("cap", n), zap.Int("total", len(cases)))
			cases = cases[:n]
		}
		slots := make([]Result, len(cases))
		for i, tc := range cases {
			slots[i] = Result{TestID: tc.ID, Category: cat, Status: StatusPending}
			jobs = append(jobs, job{category: cat, index: i, tc: tc})
		}
		if len(slots) > 0 {
			results[cat] = slots
		}
	}

	if len(jobs) == 0 {
		return results
	}

	var mu sync.Mutex // guards results
	store := func(j job, r Result) {
		mu.Lock()
		results[j.category][j.index] = r
		mu.Unlock()
	}

	queue := make(chan job)
	var wg sync.WaitGroup
	workers := e.cfg.Workers
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(runCtx, model, queue, store)
		}()
	}

	start := time.Now()
	for _, j := range jobs {
		queue <- j
	}
	close(queue)
	wg.Wait()

	s := Summarize(results)
	e.log.Info("run finished",
		zap.Int("total", s.Total), zap.Int("passed", s.Passed),
		zap.Int("failed", s.Failed), zap.Int("skipped", s.Skipped),
		zap.Duration("elapsed", time.Since(start)))
	return results
}

// capped categories mirror the demo behaviour: bulk element-wise probes are
// trimmed, workflows and edge cases always run in full.
func capped(cat generator.Category) bool {
	switch cat {
	case generator.CategoryNegative, generator.CategoryUI, generator.CategoryFunctional:
		return true
	}
	return false
}

func (e *Engine) worker(ctx context.Context, model *analyzer.PageModel, queue <-chan job, store func(job, Result)) {
	session, err := e.browser.NewSession(ctx)
	if err != nil {
		for j := range queue {
			store(j, Result{
				TestID: j.tc.ID, Category: j.category, Status: StatusFailed,
				Error: fmt.Sprintf("browser session unavailable: %v", err),
			})
		}
		return
	}
	defer session.Close()
	resolver := locator.NewResolver(session)

	for j := range queue {
		if ctx.Err() != nil {
			store(j, Result{
				TestID: j.tc.ID, Category: j.category, Status: StatusSkipped,
				Error: "run deadline exceeded before the case started",
			})
			continue
		}
		store(j, e.runCase(ctx, session, resolver, model, j.tc))
	}
}

func (e *Engine) runCase(ctx context.Context, session browser.Session, resolver *locator.Resolver, model *analyzer.PageModel, tc generator.TestCase) Result {
	res := Result{TestID: tc.ID, Category: tc.Category, Status: StatusRunning, SessionID: session.ID()}
	start := time.Now()
	log := e.log.With(zap.String("test_id", tc.ID), zap.String("session_id", session.ID()))

	for i, step := range tc.Steps {
		sr := StepResult{Index: i, Action: step.Action, Target: step.Target}
		stepStart := time.Now()

		var err error
		if ctx.Err() != nil {
			err = &InteractionTimeoutError{TestID: tc.ID, After: time.Since(start)}
		} else {
			err = e.runStepWithRetry(ctx, session, resolver, model, step)
			if err != nil && ctx.Err() != nil {
				err = &InteractionTimeoutError{TestID: tc.ID, After: time.Since(start)}
			}
		}
		sr.Duration = time.Since(stepStart)

		if err != nil {
			sr.Status = StatusFailed
			sr.Error = err.Error()
			res.Steps = append(res.Steps, sr)
			res.Status = StatusFailed
			res.Error = err.Error()
			res.Duration = time.Since(start)
			res.Artifacts = e.captureArtifacts(session, tc.ID)
			log.Warn("case failed", zap.Int("step", i), zap.String("action", step.Action), zap.Error(err))
			return res
		}
		sr.Status = StatusPassed
		res.Steps = append(res.Steps, sr)
	}

	res.Status = StatusPassed
	res.Duration = time.Since(start)
	log.Debug("case passed", zap.Duration("duration", res.Duration))
	return res
}

// runStepWithRetry retries transient interaction failures up to the attempt
// budget, sleeping the backoff schedule between attempts.
func (e *Engine) runStepWithRetry(ctx context.Context, session browser.Session, resolver *locator.Resolver, model *analyzer.PageModel, step generator.Step) error {
	for attempt := 1; ; attempt++ {
		err := e.runStep(ctx, session, resolver, model, step)
		if err == nil {
			return nil
		}
		if !browser.IsTransient(err) || attempt >= e.cfg.MaxRetries {
			return err
		}
		delay := Backoff(e.cfg, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
}

func (e *Engine) runStep(ctx context.Context, session browser.Session, resolver *locator.Resolver, model *analyzer.PageModel, step generator.Step) error {
	switch step.Action {
	case "navigate":
		url := step.Value
		if url == "" {
			url = model.URL
		}
		if err := session.Navigate(ctx, url); err != nil {
			return err
		}
		return session.WaitStable(ctx, 0)

	case "fill":
		node, err := e.resolve(ctx, resolver, model, step.Target)
		if err != nil {
			return err
		}
		_ = session.ScrollIntoView(ctx, node.Ref)
		if err := session.Fill(ctx, node.Ref, step.Value); err != nil {
			return err
		}
		// Verify the write actually landed.
		got, err := session.Value(ctx, node.Ref)
		if err != nil {
			return err
		}
		if got != step.Value {
			return &browser.InteractionError{
				Op: "fill", Ref: node.Ref, Transient: true,
				Err: fmt.Errorf("value readback mismatch: want %q, got %q", step.Value, got),
			}
		}
		return nil

	case "click":
		node, err := e.resolve(ctx, resolver, model, step.Target)
		if err != nil {
			return err
		}
		_ = session.ScrollIntoView(ctx, node.Ref)
		return session.Click(ctx, node.Ref)

	case "submit":
		node, err := e.resolve(ctx, resolver, model, step.Target)
		if err != nil {
			return err
		}
		return session.Submit(ctx, node.Ref)

	case "select_first":
		node, err := e.resolve(ctx, resolver, model, step.Target)
		if err != nil {
			return err
		}
		_ = session.ScrollIntoView(ctx, node.Ref)
		expr := fmt.Sprintf(`(function() {
			var el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			if (!el || !el.options || el.options.length === 0) { return false; }
			el.selectedIndex = el.options.length > 1 ? 1 : 0;
			el.dispatchEvent(new Event('change', {bubbles: true}));
			return true;
		})()`, strconv.Quote(node.Ref))
		return session.Evaluate(ctx, expr, nil)

	case "fill_form":
		// Populate every fillable field before the submit step.
		for i := range model.Elements {
			el := &model.Elements[i]
			if el.Role != analyzer.RoleInput || !el.TextLike() || el.Hidden() {
				continue
			}
			node, err := e.resolve(ctx, resolver, model, el.Key)
			if err != nil {
				continue // best effort: skip fields that vanished
			}
			if err := session.Fill(ctx, node.Ref, "Automated test value"); err != nil {
				return err
			}
		}
		return nil

	case "verify_value":
		node, err := e.resolve(ctx, resolver, model, step.Target)
		if err != nil {
			return err
		}
		got, err := session.Value(ctx, node.Ref)
		if err != nil {
			return err
		}
		if got != step.Value {
			return &AssertionError{Action: step.Action, Target: step.Target, Want: step.Value, Got: got}
		}
		return nil

	case "verify_visible":
		node, err := e.resolve(ctx, resolver, model, step.Target)
		if err != nil {
			return err
		}
		if !node.Visible {
			return &AssertionError{Action: step.Action, Target: step.Target, Want: "visible", Got: "hidden"}
		}
		return nil

	case "verify_title":
		title, err := session.Title(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(title) == "" {
			return &AssertionError{Action: step.Action, Target: "page", Want: "non-empty title", Got: ""}
		}
		return nil

	case "verify_navigation":
		loc, err := session.Location(ctx)
		if err != nil {
			return err
		}
		if loc == "" || loc == model.URL {
			return &AssertionError{Action: step.Action, Target: "page", Want: "a different location", Got: loc}
		}
		return nil

	case "verify_load_time":
		if model.LoadTime > e.cfg.LoadTimeBudget {
			return &AssertionError{
				Action: step.Action, Target: "page",
				Want: fmt.Sprintf("load under %s", e.cfg.LoadTimeBudget),
				Got:  model.LoadTime.String(),
			}
		}
		return nil

	case "verify_responsive":
		// Viewport probing needs emulation support; a stable body is the
		// minimum bar every driver can answer.
		return session.WaitStable(ctx, 0)

	default:
		return fmt.Errorf("executor: unknown step action %q", step.Action)
	}
}

func (e *Engine) resolve(ctx context.Context, resolver *locator.Resolver, model *analyzer.PageModel, key string) (browser.Node, error) {
	el, ok := model.Element(key)
	if !ok {
		return browser.Node{}, &locator.ElementNotFoundError{Key: key}
	}
	return resolver.Resolve(ctx, key, el.Locators)
}

// IsTimeout reports whether err is a run-deadline failure.
func IsTimeout(err error) bool {
	var te *InteractionTimeoutError
	return errors.As(err, &te)
}
