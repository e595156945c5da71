package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tailCapacity = 500

// Options configures the Chrome driver.
type Options struct {
	ExecPath  string
	Headless  bool
	UserAgent string
	Width     int
	Height    int
	// DataDir is the root under which each session gets its own
	// user-data-dir, keeping cookies and storage isolated per session.
	DataDir string
}

// ChromeBrowser creates isolated Chrome sessions via chromedp.
type ChromeBrowser struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*chromeSession
	closed   bool
}

// NewChromeBrowser validates the options and prepares the data dir.
func NewChromeBrowser(opts Options, log *zap.Logger) (*ChromeBrowser, error) {
	if opts.Width <= 0 {
		opts.Width = 1920
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}
	if opts.DataDir == "" {
		opts.DataDir = filepath.Join(os.TempDir(), "smarttest-chrome")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("browser: create data dir: %w", err)
	}
	return &ChromeBrowser{
		opts:     opts,
		log:      log,
		sessions: make(map[string]*chromeSession),
	}, nil
}

// NewSession starts a fresh Chrome instance with its own profile directory.
func (b *ChromeBrowser) NewSession(ctx context.Context) (Session, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser: closed")
	}
	b.mu.Unlock()

	id := uuid.New().String()
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.WindowSize(b.opts.Width, b.opts.Height),
		chromedp.UserDataDir(filepath.Join(b.opts.DataDir, id)),
	)
	if b.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.opts.ExecPath))
	}
	if b.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(b.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		id:      id,
		ctx:     tabCtx,
		cancel:  func() { tabCancel(); allocCancel() },
		log:     b.log.With(zap.String("session_id", id)),
		onClose: func() { b.drop(id) },
		pending: make(map[network.RequestID]string),
	}
	s.listen()

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		s.cancel()
		return nil, fmt.Errorf("browser: start session: %w", err)
	}

	b.mu.Lock()
	b.sessions[id] = s
	b.mu.Unlock()
	b.log.Debug("chrome session started", zap.String("session_id", id))
	return s, nil
}

func (b *ChromeBrowser) drop(id string) {
	b.mu.Lock()
	delete(b.sessions, id)
	b.mu.Unlock()
}

// Close tears down every open session.
func (b *ChromeBrowser) Close() error {
	b.mu.Lock()
	b.closed = true
	open := make([]*chromeSession, 0, len(b.sessions))
	for _, s := range b.sessions {
		open = append(open, s)
	}
	b.mu.Unlock()
	for _, s := range open {
		_ = s.Close()
	}
	return nil
}

type chromeSession struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger
	onClose func()

	mu      sync.Mutex
	console []ConsoleEntry
	traffic []NetworkEntry
	pending map[network.RequestID]string
	closed  bool
}

func (s *chromeSession) ID() string { return s.id }

func (s *chromeSession) listen() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			var parts []string
			for _, arg := range e.Args {
				if len(arg.Value) > 0 {
					parts = append(parts, string(arg.Value))
				} else if arg.Description != "" {
					parts = append(parts, arg.Description)
				}
			}
			s.push(ConsoleEntry{Level: string(e.Type), Text: strings.Join(parts, " "), At: time.Now()}, NetworkEntry{}, true)
		case *network.EventResponseReceived:
			if e.Response == nil {
				return
			}
			s.push(ConsoleEntry{}, NetworkEntry{
				Method: s.takeMethod(e.RequestID),
				URL:    e.Response.URL,
				Status: e.Response.Status,
				At:     time.Now(),
			}, false)
		case *network.EventRequestWillBeSent:
			// Method arrives with the request; responses carry only status.
			if e.Request != nil {
				s.rememberMethod(e.RequestID, e.Request.Method)
			}
		}
	})
}

func (s *chromeSession) rememberMethod(id network.RequestID, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Redirect chains and streamed pages never get a matching response event
	// for every request; keep the map bounded.
	if len(s.pending) > tailCapacity {
		s.pending = make(map[network.RequestID]string)
	}
	s.pending[id] = method
}

func (s *chromeSession) takeMethod(id network.RequestID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	method := s.pending[id]
	delete(s.pending, id)
	return method
}

func (s *chromeSession) push(c ConsoleEntry, n NetworkEntry, isConsole bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isConsole {
		s.console = append(s.console, c)
		if len(s.console) > tailCapacity {
			s.console = s.console[len(s.console)-tailCapacity:]
		}
		return
	}
	s.traffic = append(s.traffic, n)
	if len(s.traffic) > tailCapacity {
		s.traffic = s.traffic[len(s.traffic)-tailCapacity:]
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) WaitStable(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.run(wctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("browser: page did not stabilise within %s: %w", timeout, err)
	}
	return nil
}

func (s *chromeSession) Title(ctx context.Context) (string, error) {
	var title string
	err := s.run(ctx, chromedp.Title(&title))
	return title, err
}

func (s *chromeSession) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	return loc, err
}

type nodeProbe struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Visible bool    `json:"visible"`
	Enabled bool    `json:"enabled"`
	Text    string  `json:"text"`
	Value   string  `json:"value"`
}

const probeTemplate = `(function() {
	var el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!el) { return null; }
	var rect = el.getBoundingClientRect();
	var style = window.getComputedStyle(el);
	return {
		x: rect.x, y: rect.y, width: rect.width, height: rect.height,
		visible: rect.width > 0 && rect.height > 0 && style.display !== 'none' && style.visibility !== 'hidden',
		enabled: !el.disabled,
		text: (el.innerText || el.textContent || '').trim().slice(0, 300),
		value: typeof el.value === 'string' ? el.value : ''
	};
})()`

func (s *chromeSession) Query(ctx context.Context, selector string) ([]Node, error) {
	var raw []*cdp.Node
	by := chromedp.ByQueryAll
	if isXPath(selector) {
		by = chromedp.BySearch
	}
	if err := s.run(ctx, chromedp.Nodes(selector, &raw, by, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	nodes := make([]Node, 0, len(raw))
	for _, cn := range raw {
		if cn.NodeType != cdp.NodeTypeElement {
			continue
		}
		n := Node{
			Ref:        cn.FullXPath(),
			Tag:        strings.ToLower(cn.NodeName),
			Attributes: attrMap(cn.Attributes),
		}
		var probe *nodeProbe
		expr := fmt.Sprintf(probeTemplate, strconv.Quote(n.Ref))
		if err := s.run(ctx, chromedp.Evaluate(expr, &probe)); err == nil && probe != nil {
			n.Box = Rect{X: probe.X, Y: probe.Y, Width: probe.Width, Height: probe.Height}
			n.Visible = probe.Visible
			n.Enabled = probe.Enabled
			n.Text = probe.Text
			n.Value = probe.Value
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func attrMap(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[strings.ToLower(pairs[i])] = pairs[i+1]
	}
	return m
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "(")
}

func (s *chromeSession) Click(ctx context.Context, ref string) error {
	if err := s.run(ctx, chromedp.Click(ref, chromedp.BySearch)); err != nil {
		return s.interaction("click", ref, err)
	}
	return nil
}

func (s *chromeSession) Fill(ctx context.Context, ref, value string) error {
	if err := s.run(ctx, chromedp.SetValue(ref, value, chromedp.BySearch)); err != nil {
		return s.interaction("fill", ref, err)
	}
	return nil
}

func (s *chromeSession) Value(ctx context.Context, ref string) (string, error) {
	var v string
	if err := s.run(ctx, chromedp.Value(ref, &v, chromedp.BySearch)); err != nil {
		return "", s.interaction("value", ref, err)
	}
	return v, nil
}

func (s *chromeSession) SelectOption(ctx context.Context, ref, value string) error {
	if err := s.run(ctx, chromedp.SetValue(ref, value, chromedp.BySearch)); err != nil {
		return s.interaction("select", ref, err)
	}
	return nil
}

func (s *chromeSession) Submit(ctx context.Context, ref string) error {
	if err := s.run(ctx, chromedp.Submit(ref, chromedp.BySearch)); err != nil {
		return s.interaction("submit", ref, err)
	}
	return nil
}

func (s *chromeSession) ScrollIntoView(ctx context.Context, ref string) error {
	if err := s.run(ctx, chromedp.ScrollIntoView(ref, chromedp.BySearch)); err != nil {
		return s.interaction("scroll", ref, err)
	}
	return nil
}

func (s *chromeSession) Evaluate(ctx context.Context, expr string, out any) error {
	if out == nil {
		return s.run(ctx, chromedp.Evaluate(expr, nil))
	}
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return buf, nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("browser: dom snapshot: %w", err)
	}
	return html, nil
}

func (s *chromeSession) ConsoleTail(n int) []ConsoleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.console, n)
}

func (s *chromeSession) NetworkTail(n int) []NetworkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tail(s.traffic, n)
}

func tail[T any](all []T, n int) []T {
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]T, n)
	copy(out, all[len(all)-n:])
	return out
}

func (s *chromeSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	if s.onClose != nil {
		s.onClose()
	}
	s.log.Debug("chrome session closed")
	return nil
}

// run executes actions on the session tab while honouring the caller's
// context; the chromedp context itself outlives individual calls.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.ctx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chromeSession) interaction(op, ref string, err error) error {
	transient := errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "node not visible") ||
		strings.Contains(err.Error(), "Node is detached") ||
		strings.Contains(err.Error(), "not clickable") ||
		strings.Contains(err.Error(), "Could not find node")
	return &InteractionError{Op: op, Ref: ref, Transient: transient, Err: err}
}
