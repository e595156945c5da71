// Package browsertest provides an in-memory browser.Page implementation for
// unit tests. Fake nodes declare the selectors they answer to, so fixtures
// stay explicit and there is no selector engine to second-guess.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"smarttest/internal/browser"
)

// FakeNode is one element in the fake DOM.
type FakeNode struct {
	Ref        string
	Tag        string
	Selectors  []string
	Attributes map[string]string
	Text       string
	Value      string
	Visible    bool
	Enabled    bool
	Box        browser.Rect

	// FailClicks makes the first N clicks fail with a transient error.
	FailClicks int
	clicks     int
}

// FakePage is a scriptable browser.Page.
type FakePage struct {
	mu sync.Mutex

	PageTitle   string
	PageURL     string
	Nodes       []*FakeNode
	NavigateErr error
	StableErr   error
	// ActionDelay is applied to every interaction, for concurrency tests.
	ActionDelay time.Duration
	// EvalFunc, when set, services Evaluate calls.
	EvalFunc func(expr string, out any) error

	Console []browser.ConsoleEntry
	Network []browser.NetworkEntry

	actions []string
}

// NewFakePage returns an empty page.
func NewFakePage() *FakePage { return &FakePage{} }

// Actions returns the interaction log in order.
func (p *FakePage) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.actions))
	copy(out, p.actions)
	return out
}

func (p *FakePage) record(format string, args ...any) {
	p.mu.Lock()
	p.actions = append(p.actions, fmt.Sprintf(format, args...))
	p.mu.Unlock()
}

func (p *FakePage) delay(ctx context.Context) error {
	if p.ActionDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.ActionDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := p.delay(ctx); err != nil {
		return err
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.mu.Lock()
	p.PageURL = url
	p.mu.Unlock()
	p.record("navigate %s", url)
	return nil
}

func (p *FakePage) WaitStable(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.StableErr
}

func (p *FakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PageTitle, nil
}

func (p *FakePage) Location(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PageURL, nil
}

func (p *FakePage) Query(ctx context.Context, selector string) ([]browser.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []browser.Node
	for _, fn := range p.Nodes {
		for _, s := range fn.Selectors {
			if s == selector {
				out = append(out, fn.snapshot())
				break
			}
		}
	}
	return out, nil
}

func (n *FakeNode) snapshot() browser.Node {
	attrs := make(map[string]string, len(n.Attributes))
	for k, v := range n.Attributes {
		attrs[k] = v
	}
	return browser.Node{
		Ref:        n.Ref,
		Tag:        n.Tag,
		Attributes: attrs,
		Text:       n.Text,
		Value:      n.Value,
		Visible:    n.Visible,
		Enabled:    n.Enabled,
		Box:        n.Box,
	}
}

func (p *FakePage) find(ref string) *FakeNode {
	for _, fn := range p.Nodes {
		if fn.Ref == ref {
			return fn
		}
	}
	return nil
}

func (p *FakePage) Click(ctx context.Context, ref string) error {
	if err := p.delay(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	fn := p.find(ref)
	if fn == nil {
		p.mu.Unlock()
		return &browser.InteractionError{Op: "click", Ref: ref, Err: fmt.Errorf("no such node")}
	}
	fn.clicks++
	failing := fn.clicks <= fn.FailClicks
	p.mu.Unlock()
	if failing {
		return &browser.InteractionError{Op: "click", Ref: ref, Transient: true, Err: fmt.Errorf("node not visible")}
	}
	p.record("click %s", ref)
	return nil
}

func (p *FakePage) Fill(ctx context.Context, ref, value string) error {
	if err := p.delay(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	fn := p.find(ref)
	if fn == nil {
		p.mu.Unlock()
		return &browser.InteractionError{Op: "fill", Ref: ref, Err: fmt.Errorf("no such node")}
	}
	fn.Value = value
	p.mu.Unlock()
	p.record("fill %s=%s", ref, value)
	return nil
}

func (p *FakePage) Value(ctx context.Context, ref string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn := p.find(ref)
	if fn == nil {
		return "", &browser.InteractionError{Op: "value", Ref: ref, Err: fmt.Errorf("no such node")}
	}
	return fn.Value, nil
}

func (p *FakePage) SelectOption(ctx context.Context, ref, value string) error {
	if err := p.delay(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	fn := p.find(ref)
	if fn == nil {
		p.mu.Unlock()
		return &browser.InteractionError{Op: "select", Ref: ref, Err: fmt.Errorf("no such node")}
	}
	fn.Value = value
	p.mu.Unlock()
	p.record("select %s=%s", ref, value)
	return nil
}

func (p *FakePage) Submit(ctx context.Context, ref string) error {
	if err := p.delay(ctx); err != nil {
		return err
	}
	p.record("submit %s", ref)
	return nil
}

func (p *FakePage) ScrollIntoView(ctx context.Context, ref string) error {
	return ctx.Err()
}

func (p *FakePage) Evaluate(ctx context.Context, expr string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.EvalFunc != nil {
		return p.EvalFunc(expr, out)
	}
	return nil
}

// SetEvalResult marshals v into out; helper for EvalFunc implementations.
func SetEvalResult(out, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("PNG"), nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	return "<html><body></body></html>", nil
}

func (p *FakePage) ConsoleTail(n int) []browser.ConsoleEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]browser.ConsoleEntry, len(p.Console))
	copy(out, p.Console)
	return out
}

func (p *FakePage) NetworkTail(n int) []browser.NetworkEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]browser.NetworkEntry, len(p.Network))
	copy(out, p.Network)
	return out
}

// FakeSession wraps a FakePage with an identity.
type FakeSession struct {
	*FakePage
	id     string
	closed bool
	mu     sync.Mutex
}

func NewFakeSession(id string, page *FakePage) *FakeSession {
	return &FakeSession{FakePage: page, id: id}
}

func (s *FakeSession) ID() string { return s.id }

func (s *FakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeBrowser hands out sessions built by a factory.
type FakeBrowser struct {
	mu       sync.Mutex
	factory  func() *FakePage
	sessions []*FakeSession
	// NewSessionErr, when set, fails every NewSession call.
	NewSessionErr error
}

// NewFakeBrowser builds a browser whose sessions each wrap factory().
func NewFakeBrowser(factory func() *FakePage) *FakeBrowser {
	return &FakeBrowser{factory: factory}
}

func (b *FakeBrowser) NewSession(ctx context.Context) (browser.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NewSessionErr != nil {
		return nil, b.NewSessionErr
	}
	s := NewFakeSession(fmt.Sprintf("fake-%d", len(b.sessions)+1), b.factory())
	b.sessions = append(b.sessions, s)
	return s, nil
}

// Sessions returns every session handed out so far.
func (b *FakeBrowser) Sessions() []*FakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*FakeSession, len(b.sessions))
	copy(out, b.sessions)
	return out
}

func (b *FakeBrowser) Close() error { return nil }
