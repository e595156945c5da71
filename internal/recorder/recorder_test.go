package recorder

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smarttest/internal/browser"
	"smarttest/internal/browser/browsertest"
	"smarttest/internal/locator"
)

type eventQueue struct {
	mu     sync.Mutex
	events []map[string]any
}

func (q *eventQueue) push(ev map[string]any) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

func (q *eventQueue) drainInto(out any) error {
	q.mu.Lock()
	events := q.events
	q.events = nil
	q.mu.Unlock()
	if events == nil {
		events = []map[string]any{}
	}
	return browsertest.SetEvalResult(out, events)
}

func recordingFixture() (*browsertest.FakeBrowser, *eventQueue) {
	q := &eventQueue{}
	fb := browsertest.NewFakeBrowser(func() *browsertest.FakePage {
		p := browsertest.NewFakePage()
		p.EvalFunc = func(expr string, out any) error {
			if out == nil {
				return nil // script injection
			}
			return q.drainInto(out)
		}
		return p
	})
	return fb, q
}

func clickEvent(id string, ts int64) map[string]any {
	return map[string]any{
		"type":      "click",
		"timestamp": ts,
		"locators": []map[string]any{
			{"strategy": "id", "selector": "#" + id, "box": map[string]any{"x": 10, "y": 20, "width": 100, "height": 30}},
			{"strategy": "xpath", "selector": "/html/body/button[1]"},
		},
	}
}

func typeEvent(sel, value string, ts int64) map[string]any {
	return map[string]any{
		"type":      "type",
		"value":     value,
		"timestamp": ts,
		"locators": []map[string]any{
			{"strategy": "id", "selector": sel},
		},
	}
}

func TestRecordingCapturesSteps(t *testing.T) {
	fb, q := recordingFixture()
	m := NewManager(fb, 10*time.Millisecond, zap.NewNop())

	snap, err := m.Start(context.Background(), "https://erp.example.edu/login")
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.NotEmpty(t, snap.SessionID)
	assert.True(t, m.Active())

	q.push(clickEvent("btnLogin", 1_000))
	require.Eventually(t, func() bool {
		s := m.Status()
		return s != nil && len(s.Steps) == 1
	}, time.Second, 5*time.Millisecond)

	steps, id, err := m.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, id)
	require.Len(t, steps, 1)
	assert.Equal(t, "click", steps[0].Action)
	require.NotEmpty(t, steps[0].Locators)
	assert.Equal(t, locator.StrategyID, steps[0].Locators[0].Strategy)
	assert.Equal(t, "#btnLogin", steps[0].Locators[0].Selector)
	assert.Equal(t, browser.Rect{X: 10, Y: 20, Width: 100, Height: 30}, steps[0].Locators[0].Box)
	assert.False(t, m.Active())
}

func TestRecordingCoalescesTypingBursts(t *testing.T) {
	fb, q := recordingFixture()
	m := NewManager(fb, 10*time.Millisecond, zap.NewNop())

	_, err := m.Start(context.Background(), "https://erp.example.edu/login")
	require.NoError(t, err)

	q.push(typeEvent("#txtUserId", "a", 1_000))
	q.push(typeEvent("#txtUserId", "ad", 1_050))
	q.push(typeEvent("#txtUserId", "admin", 1_200))
	q.push(clickEvent("btnLogin", 1_500))
	q.push(typeEvent("#txtUserId", "admin2", 2_000))

	require.Eventually(t, func() bool {
		s := m.Status()
		return s != nil && len(s.Steps) == 3
	}, time.Second, 5*time.Millisecond)

	steps, _, err := m.Stop(context.Background())
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "type", steps[0].Action)
	assert.Equal(t, "admin", steps[0].Value, "typing burst collapses to the final value")
	assert.Equal(t, "click", steps[1].Action)
	assert.Equal(t, "type", steps[2].Action)
	assert.Equal(t, "admin2", steps[2].Value)
}

func TestRecordingTracksElapsedGaps(t *testing.T) {
	fb, q := recordingFixture()
	m := NewManager(fb, 10*time.Millisecond, zap.NewNop())

	_, err := m.Start(context.Background(), "https://erp.example.edu/login")
	require.NoError(t, err)

	q.push(clickEvent("a", 10_000))
	q.push(clickEvent("b", 13_500))

	require.Eventually(t, func() bool {
		s := m.Status()
		return s != nil && len(s.Steps) == 2
	}, time.Second, 5*time.Millisecond)

	steps, _, err := m.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), steps[0].Elapsed)
	assert.Equal(t, 3500*time.Millisecond, steps[1].Elapsed)
}

func TestOnlyOneRecordingAtATime(t *testing.T) {
	fb, _ := recordingFixture()
	m := NewManager(fb, 10*time.Millisecond, zap.NewNop())

	_, err := m.Start(context.Background(), "https://a.example.com")
	require.NoError(t, err)

	_, err = m.Start(context.Background(), "https://b.example.com")
	assert.Error(t, err)

	_, _, err = m.Stop(context.Background())
	require.NoError(t, err)

	_, _, err = m.Stop(context.Background())
	assert.Error(t, err)
}

func sampleSteps() []RecordedStep {
	return []RecordedStep{
		{
			Action: "type",
			Value:  "admin",
			Locators: []locator.Candidate{
				{Strategy: locator.StrategyID, Selector: "#txtUserId"},
				{Strategy: locator.StrategyXPath, Selector: "/html/body/form/input[1]"},
			},
		},
		{
			Action:  "click",
			Elapsed: 3 * time.Second,
			Locators: []locator.Candidate{
				{Strategy: locator.StrategyText, Selector: "//button[normalize-space()='Login']"},
				{Strategy: locator.StrategyXPath, Selector: "/html/body/form/button[1]"},
			},
		},
		{
			Action:  "press_enter",
			Elapsed: 200 * time.Millisecond,
			Locators: []locator.Candidate{
				{Strategy: locator.StrategyID, Selector: "#txtUserId"},
			},
		},
	}
}

func TestSynthesizeScript(t *testing.T) {
	script := Synthesize("https://erp.example.edu/login", sampleSteps())

	assert.True(t, strings.HasPrefix(script, "// Generated replay script."))
	assert.Contains(t, script, `chromedp.Navigate("https://erp.example.edu/login")`)
	assert.Contains(t, script, `chromedp.SetValue("#txtUserId", "admin", chromedp.ByQuery)`)
	// The three-second pause crosses the wait threshold.
	assert.Contains(t, script, "chromedp.Sleep(3000*time.Millisecond)")
	// Text locators replay through search queries.
	assert.Contains(t, script, `chromedp.Click("//button[normalize-space()='Login']", chromedp.BySearch)`)
	assert.Contains(t, script, `chromedp.SendKeys("#txtUserId", "\r", chromedp.ByQuery)`)
	// The 200ms gap stays below the threshold: exactly one sleep.
	assert.Equal(t, 1, strings.Count(script, "chromedp.Sleep"))
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	steps := sampleSteps()
	first := Synthesize("https://erp.example.edu/login", steps)
	second := Synthesize("https://erp.example.edu/login", steps)
	assert.Equal(t, first, second)
}

func TestSynthesizeEmptyRecording(t *testing.T) {
	script := Synthesize("https://erp.example.edu/login", nil)
	assert.Contains(t, script, "chromedp.Navigate")
	assert.NotContains(t, script, "time.Millisecond")
	assert.NotContains(t, script, "\"time\"")
}

func TestSynthesizeSkipsStepsWithoutLocators(t *testing.T) {
	steps := []RecordedStep{{Action: "click"}}
	script := Synthesize("https://x.example.com", steps)
	assert.NotContains(t, script, "chromedp.Click")
}

func TestSynthesizeThresholdOverride(t *testing.T) {
	steps := []RecordedStep{
		{
			Action:  "click",
			Elapsed: 500 * time.Millisecond,
			Locators: []locator.Candidate{
				{Strategy: locator.StrategyID, Selector: "#a"},
			},
		},
	}
	strict := SynthesizeWithThreshold("https://x.example.com", steps, 100*time.Millisecond)
	assert.Contains(t, strict, "chromedp.Sleep(500*time.Millisecond)")

	lax := SynthesizeWithThreshold("https://x.example.com", steps, time.Second)
	assert.NotContains(t, lax, "chromedp.Sleep")
}
