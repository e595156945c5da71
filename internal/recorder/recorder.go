// Package recorder captures user interactions from a live browser session as
// an append-only step sequence with multi-candidate locators, and turns
// recordings into standalone automation scripts.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"smarttest/internal/browser"
	"smarttest/internal/locator"
)

// RecordedStep is one captured interaction. Locators carries every candidate
// captured at event time, strongest first; Elapsed is the gap since the
// previous step, which synthesis may turn into an explicit wait.
type RecordedStep struct {
	Action   string              `json:"action"`
	Locators []locator.Candidate `json:"locators"`
	Value    string              `json:"value,omitempty"`
	Elapsed  time.Duration       `json:"elapsed_since_previous"`
	At       time.Time           `json:"at"`
}

// Snapshot is an immutable view of a recording session, published after each
// poll so status endpoints never block the capture loop.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	URL       string         `json:"url"`
	Active    bool           `json:"active"`
	Steps     []RecordedStep `json:"steps"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// rawEvent mirrors the JSON the injected script queues per interaction.
type rawEvent struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
	Locators  []struct {
		Strategy string       `json:"strategy"`
		Selector string       `json:"selector"`
		Box      browser.Rect `json:"box"`
	} `json:"locators"`
}

// Manager owns at most one recording session at a time.
type Manager struct {
	browser      browser.Browser
	log          *zap.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	session *session
}

func NewManager(b browser.Browser, pollInterval time.Duration, log *zap.Logger) *Manager {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &Manager{browser: b, log: log, pollInterval: pollInterval}
}

// Start opens a session on url and begins capturing. Fails when a recording
// is already in progress.
func (m *Manager) Start(ctx context.Context, url string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return nil, fmt.Errorf("recorder: a recording is already in progress")
	}

	bs, err := m.browser.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("recorder: open session: %w", err)
	}
	if err := bs.Navigate(ctx, url); err != nil {
		_ = bs.Close()
		return nil, fmt.Errorf("recorder: navigate: %w", err)
	}
	if err := bs.WaitStable(ctx, 0); err != nil {
		_ = bs.Close()
		return nil, err
	}
	if err := bs.Evaluate(ctx, recorderScript, nil); err != nil {
		_ = bs.Close()
		return nil, fmt.Errorf("recorder: inject: %w", err)
	}

	id := uuid.New().String()
	s := &session{
		id:      id,
		url:     url,
		page:    bs,
		log:     m.log.With(zap.String("recording_id", id)),
		started: time.Now(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.publish()
	go s.poll(m.pollInterval)
	m.session = s

	m.log.Info("recording started", zap.String("recording_id", s.id), zap.String("url", url))
	snap := s.snapshot()
	return &snap, nil
}

// Stop ends the active recording and returns its steps.
func (m *Manager) Stop(ctx context.Context) ([]RecordedStep, string, error) {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s == nil {
		return nil, "", fmt.Errorf("recorder: no recording in progress")
	}

	close(s.stop)
	<-s.done
	// One final drain so a click immediately before Stop is not lost.
	s.drain(ctx)
	_ = s.page.Close()

	steps := s.steps()
	m.log.Info("recording stopped", zap.String("recording_id", s.id), zap.Int("steps", len(steps)))
	return steps, s.id, nil
}

// Status returns the latest published snapshot, or nil when idle.
func (m *Manager) Status() *Snapshot {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	snap := s.snapshot()
	return &snap
}

// Active reports whether a recording is running.
func (m *Manager) Active() bool { return m.Status() != nil }

type session struct {
	id      string
	url     string
	page    browser.Session
	log     *zap.Logger
	started time.Time

	mu     sync.Mutex
	events []RecordedStep
	lastTS int64

	latest atomic.Value // Snapshot
	stop   chan struct{}
	done   chan struct{}
}

func (s *session) poll(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval*4)
			s.drain(ctx)
			cancel()
		}
	}
}

// drain pulls queued events from the page, converts them to steps and
// publishes a fresh snapshot. Consecutive type events on the same primary
// selector are coalesced into one step holding the final value.
func (s *session) drain(ctx context.Context) {
	var events []rawEvent
	if err := s.page.Evaluate(ctx, drainScript, &events); err != nil {
		s.log.Warn("event drain failed", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}

	s.mu.Lock()
	for _, ev := range events {
		cands := make([]locator.Candidate, 0, len(ev.Locators))
		for _, l := range ev.Locators {
			strategy, err := locator.ParseStrategy(l.Strategy)
			if err != nil {
				continue
			}
			cands = append(cands, locator.Candidate{Strategy: strategy, Selector: l.Selector, Box: l.Box})
		}
		if len(cands) == 0 {
			continue
		}

		step := RecordedStep{
			Action:   ev.Type,
			Locators: locator.Rank(cands),
			Value:    ev.Value,
			At:       time.UnixMilli(ev.Timestamp),
		}
		if s.lastTS > 0 {
			step.Elapsed = time.Duration(ev.Timestamp-s.lastTS) * time.Millisecond
		}
		s.lastTS = ev.Timestamp

		// Typing bursts collapse into the final value.
		if step.Action == "type" && len(s.events) > 0 {
			last := &s.events[len(s.events)-1]
			if last.Action == "type" && samePrimary(last.Locators, step.Locators) {
				last.Value = step.Value
				last.At = step.At
				continue
			}
		}
		s.events = append(s.events, step)
	}
	s.mu.Unlock()
	s.publish()
}

func samePrimary(a, b []locator.Candidate) bool {
	return len(a) > 0 && len(b) > 0 && a[0].Selector == b[0].Selector
}

func (s *session) steps() []RecordedStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedStep, len(s.events))
	copy(out, s.events)
	return out
}

func (s *session) publish() {
	s.latest.Store(Snapshot{
		SessionID: s.id,
		URL:       s.url,
		Active:    true,
		Steps:     s.steps(),
		StartedAt: s.started,
		UpdatedAt: time.Now(),
	})
}

func (s *session) snapshot() Snapshot {
	return s.latest.Load().(Snapshot)
}
