package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smarttest/internal/analyzer"
	"smarttest/internal/browser"
	"smarttest/internal/browser/browsertest"
	"smarttest/internal/generator"
	"smarttest/internal/locator"
)

// pageFactory builds a page with one button and one text field, the minimum
// surface the step vocabulary needs.
func pageFactory() *browsertest.FakePage {
	page := browsertest.NewFakePage()
	page.PageTitle = "Fixture"
	page.PageURL = "https://app.example.com"
	page.Nodes = []*browsertest.FakeNode{
		{
			Ref: "/html/body/button[1]", Tag: "button",
			Selectors: []string{"#btnGo"},
			Visible:   true, Enabled: true,
			Box: browser.Rect{X: 10, Y: 10, Width: 100, Height: 30},
		},
		{
			Ref: "/html/body/input[1]", Tag: "input",
			Selectors: []string{"#txtName"},
			Visible:   true, Enabled: true,
			Box: browser.Rect{X: 10, Y: 60, Width: 200, Height: 30},
		},
	}
	return page
}

func fixtureModel() *analyzer.PageModel {
	return &analyzer.PageModel{
		URL:   "https://app.example.com",
		Title: "Fixture",
		Elements: []analyzer.PageElement{
			{
				Key: "btnGo", Role: analyzer.RoleButton,
				Attrs:    analyzer.Attributes{ID: "btnGo", Visible: true},
				Locators: []locator.Candidate{{Strategy: locator.StrategyID, Selector: "#btnGo"}},
			},
			{
				Key: "txtName", Role: analyzer.RoleInput,
				Attrs:    analyzer.Attributes{ID: "txtName", Type: "text", Visible: true},
				Locators: []locator.Candidate{{Strategy: locator.StrategyID, Selector: "#txtName"}},
			},
		},
	}
}

func clickCase(id string) generator.TestCase {
	return generator.TestCase{
		ID: id, Category: generator.CategoryPositive, Priority: generator.PriorityMedium,
		Steps: []generator.Step{{Action: "click", Target: "btnGo"}},
	}
}

func TestExecuteRunsPoolInParallel(t *testing.T) {
	fb := browsertest.NewFakeBrowser(func() *browsertest.FakePage {
		p := pageFactory()
		p.ActionDelay = 40 * time.Millisecond
		return p
	})
	eng := New(fb, Config{Workers: 2, RetryBase: time.Millisecond}, zap.NewNop())

	suite := generator.Suite{}
	for i := 0; i < 10; i++ {
		suite[generator.CategoryPositive] = append(suite[generator.CategoryPositive],
			clickCase(fmt.Sprintf("POSITIVE_CLICK_BTNGO_%d", i+1)))
	}

	start := time.Now()
	results := eng.Execute(context.Background(), fixtureModel(), suite)
	elapsed := time.Since(start)

	require.Len(t, results[generator.CategoryPositive], 10)
	for _, r := range results[generator.CategoryPositive] {
		assert.Equal(t, StatusPassed, r.Status)
	}
	assert.Len(t, fb.Sessions(), 2, "one isolated session per worker")
	for _, s := range fb.Sessions() {
		assert.True(t, s.Closed())
	}
	// Two workers halve the serial runtime: 10 cases at ~40ms each.
	assert.GreaterOrEqual(t, elapsed, 190*time.Millisecond)
	assert.Less(t, elapsed, 390*time.Millisecond)
}

func TestExecuteKeepsSuiteOrderAndStepOrder(t *testing.T) {
	fb := browsertest.NewFakeBrowser(pageFactory)
	eng := New(fb, Config{Workers: 2}, zap.NewNop())

	tc := generator.TestCase{
		ID: "FUNCTIONAL_INPUT_TXTNAME", Category: generator.CategoryFunctional,
		Steps: []generator.Step{
			{Action: "fill", Target: "txtName", Value: "hello"},
			{Action: "click", Target: "btnGo"},
			{Action: "verify_value", Target: "txtName", Value: "hello"},
		},
	}
	suite := generator.Suite{
		generator.CategoryPositive:   {clickCase("POSITIVE_CLICK_BTNGO")},
		generator.CategoryFunctional: {tc},
	}
	results := eng.Execute(context.Background(), fixtureModel(), suite)

	require.Len(t, results[generator.CategoryFunctional], 1)
	r := results[generator.CategoryFunctional][0]
	require.Equal(t, StatusPassed, r.Status)
	require.Len(t, r.Steps, 3)
	assert.Equal(t, []string{"fill", "click", "verify_value"},
		[]string{r.Steps[0].Action, r.Steps[1].Action, r.Steps[2].Action})
	for i, sr := range r.Steps {
		assert.Equal(t, i, sr.Index)
		assert.Equal(t, StatusPassed, sr.Status)
	}
}

func TestRetryPassesWhenFailuresStayUnderBudget(t *testing.T) {
	fb := browsertest.NewFakeBrowser(func() *browsertest.FakePage {
		p := pageFactory()
		p.Nodes[0].FailClicks = 2
		return p
	})
	eng := New(fb, Config{Workers: 1, MaxRetries: 3, RetryBase: time.Millisecond}, zap.NewNop())

	suite := generator.Suite{generator.CategoryPositive: {clickCase("POSITIVE_CLICK_BTNGO")}}
	results := eng.Execute(context.Background(), fixtureModel(), suite)

	assert.Equal(t, StatusPassed, results[generator.CategoryPositive][0].Status)
}

func TestRetryFailsWhenBudgetExhausted(t *testing.T) {
	fb := browsertest.NewFakeBrowser(func() *browsertest.FakePage {
		p := pageFactory()
		p.Nodes[0].FailClicks = 3
		return p
	})
	eng := New(fb, Config{Workers: 1, MaxRetries: 3, RetryBase: time.Millisecond}, zap.NewNop())

	suite := generator.Suite{generator.CategoryPositive: {clickCase("POSITIVE_CLICK_BTNGO")}}
	results := eng.Execute(context.Background(), fixtureModel(), suite)

	r := results[generator.CategoryPositive][0]
	assert.Equal(t, StatusFailed, r.Status)
	assert.Contains(t, r.Error, "node not visible")
}

func TestBackoffSchedule(t *testing.T) {
	cfg := Config{
		RetryBase:       100 * time.Millisecond,
		RetryMultiplier: 2,
		RetryMaxDelay:   time.Second,
	}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		assert.Equalf(t, w, Backoff(cfg, i+1), "attempt %d", i+1)
	}
}

func TestRunDeadlineSkipsQueuedAndFailsRunning(t *testing.T) {
	fb := browsertest.NewFakeBrowser(func() *browsertest.FakePage {
		p := pageFactory()
		p.ActionDelay = 150 * time.Millisecond
		return p
	})
	eng := New(fb, Config{Workers: 1, Timeout: 60 * time.Millisecond, RetryBase: time.Millisecond}, zap.NewNop())

	suite := generator.Suite{generator.CategoryPositive: {
		clickCase("POSITIVE_CLICK_BTNGO"),
		clickCase("POSITIVE_CLICK_BTNGO_2"),
		clickCase("POSITIVE_CLICK_BTNGO_3"),
	}}
	results := eng.Execute(context.Background(), fixtureModel(), suite)

	rs := results[generator.CategoryPositive]
	require.Len(t, rs, 3)
	assert.Equal(t, StatusFailed, rs[0].Status)
	assert.Contains(t, rs[0].Error, "timed out")
	for _, r := range rs[1:] {
		assert.Equal(t, StatusSkipped, r.Status)
	}
}

func TestVerifyValueAssertionFailureCapturesArtifacts(t *testing.T) {
	dir := t.TempDir()
	fb := browsertest.NewFakeBrowser(func() *browsertest.FakePage {
		p := pageFactory()
		p.Console = []browser.ConsoleEntry{{Level: "error", Text: "boom", At: time.Now()}}
		return p
	})
	eng := New(fb, Config{Workers: 1, ArtifactDir: dir}, zap.NewNop())

	tc := generator.TestCase{
		ID: "NEGATIVE_EMPTY_TXTNAME", Category: generator.CategoryNegative,
		Steps: []generator.Step{{Action: "verify_value", Target: "txtName", Value: "expected"}},
	}
	suite := generator.Suite{generator.CategoryNegative: {tc}}
	results := eng.Execute(context.Background(), fixtureModel(), suite)

	r := results[generator.CategoryNegative][0]
	require.Equal(t, StatusFailed, r.Status)
	assert.Contains(t, r.Error, "want \"expected\"")

	require.NotNil(t, r.Artifacts)
	for _, p := range []string{r.Artifacts.Screenshot, r.Artifacts.ConsoleLog, r.Artifacts.DOMSnapshot} {
		require.NotEmpty(t, p)
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestMissingElementFailsCase(t *testing.T) {
	fb := browsertest.NewFakeBrowser(pageFactory)
	eng := New(fb, Config{Workers: 1}, zap.NewNop())

	tc := generator.TestCase{
		ID: "UI_INPUT_GHOST", Category: generator.CategoryUI,
		Steps: []generator.Step{{Action: "verify_visible", Target: "ghost"}},
	}
	suite := generator.Suite{generator.CategoryUI: {tc}}
	results := eng.Execute(context.Background(), fixtureModel(), suite)

	r := results[generator.CategoryUI][0]
	assert.Equal(t, StatusFailed, r.Status)
	assert.Contains(t, r.Error, "not found")
}

func TestSessionFailureFailsJobs(t *testing.T) {
	fb := browsertest.NewFakeBrowser(pageFactory)
	fb.NewSessionErr = errors.New("chrome crashed")
	eng := New(fb, Config{Workers: 2}, zap.NewNop())

	suite := generator.Suite{generator.CategoryPositive: {
		clickCase("POSITIVE_CLICK_BTNGO"),
		clickCase("POSITIVE_CLICK_BTNGO_2"),
	}}
	results := eng.Execute(context.Background(), fixtureModel(), suite)

	for _, r := range results[generator.CategoryPositive] {
		assert.Equal(t, StatusFailed, r.Status)
		assert.Contains(t, r.Error, "browser session unavailable")
	}
}

func TestCategoryCapTrimsBulkCategoriesOnly(t *testing.T) {
	fb := browsertest.NewFakeBrowser(pageFactory)
	eng := New(fb, Config{Workers: 1, CategoryCap: 1}, zap.NewNop())

	neg := func(id string) generator.TestCase {
		return generator.TestCase{
			ID: id, Category: generator.CategoryNegative,
			Steps: []generator.Step{{Action: "click", Target: "btnGo"}},
		}
	}
	wf := func(id string) generator.TestCase {
		return generator.TestCase{
			ID: id, Category: generator.CategoryWorkflow,
			Steps: []generator.Step{{Action: "click", Target: "btnGo"}},
		}
	}
	suite := generator.Suite{
		generator.CategoryNegative: {neg("NEGATIVE_SQLI_A"), neg("NEGATIVE_SQLI_B"), neg("NEGATIVE_SQLI_C")},
		generator.CategoryWorkflow: {wf("WORKFLOW_FORM_A"), wf("WORKFLOW_FORM_B")},
	}
	results := eng.Execute(context.Background(), fixtureModel(), suite)

	assert.Len(t, results[generator.CategoryNegative], 1)
	assert.Len(t, results[generator.CategoryWorkflow], 2)
}

func TestSummarize(t *testing.T) {
	results := map[generator.Category][]Result{
		generator.CategoryPositive: {{Status: StatusPassed}, {Status: StatusFailed}},
		generator.CategoryNegative: {{Status: StatusSkipped}, {Status: StatusPassed}},
	}
	s := Summarize(results)
	assert.Equal(t, Summary{Total: 4, Passed: 2, Failed: 1, Skipped: 1}, s)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	for _, s := range []Status{StatusPassed, StatusFailed, StatusSkipped} {
		assert.True(t, s.Terminal())
	}
}

func TestUnknownActionFails(t *testing.T) {
	fb := browsertest.NewFakeBrowser(pageFactory)
	eng := New(fb, Config{Workers: 1}, zap.NewNop())

	tc := generator.TestCase{
		ID: "POSITIVE_X_Y", Category: generator.CategoryPositive,
		Steps: []generator.Step{{Action: "teleport"}},
	}
	results := eng.Execute(context.Background(), fixtureModel(), generator.Suite{generator.CategoryPositive: {tc}})
	r := results[generator.CategoryPositive][0]
	assert.Equal(t, StatusFailed, r.Status)
	assert.True(t, strings.Contains(r.Error, "unknown step action"))
}
