// Package browser defines the driving capability the rest of the system
// works against: navigating pages, querying live DOM state and performing
// user-level interactions. The production implementation runs on chromedp;
// browsertest provides an in-memory fake.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Rect is an element bounding box in CSS pixels, viewport-relative.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the centroid of the box.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Zero reports whether the box carries no geometry at all.
func (r Rect) Zero() bool {
	return r.X == 0 && r.Y == 0 && r.Width == 0 && r.Height == 0
}

// Node is a point-in-time snapshot of a live DOM element. Ref is an opaque
// handle valid against the Page that produced the node; for the chromedp
// driver it is the element's full XPath.
type Node struct {
	Ref        string
	Tag        string
	Attributes map[string]string
	Text       string
	Value      string
	Visible    bool
	Enabled    bool
	Box        Rect
}

// Attr returns an attribute value, or "" when absent.
func (n Node) Attr(name string) string {
	if n.Attributes == nil {
		return ""
	}
	return n.Attributes[name]
}

// ConsoleEntry is one captured console message.
type ConsoleEntry struct {
	Level string    `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// NetworkEntry is one captured network response.
type NetworkEntry struct {
	Method string    `json:"method"`
	URL    string    `json:"url"`
	Status int64     `json:"status"`
	At     time.Time `json:"at"`
}

// Page drives a single browser page.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitStable blocks until the document is ready or the timeout elapses.
	WaitStable(ctx context.Context, timeout time.Duration) error
	Title(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
	// Query returns all elements matching the selector in document order,
	// including hidden ones. Selectors starting with "/" or "(" are XPath,
	// everything else CSS.
	Query(ctx context.Context, selector string) ([]Node, error)
	Click(ctx context.Context, ref string) error
	Fill(ctx context.Context, ref, value string) error
	Value(ctx context.Context, ref string) (string, error)
	SelectOption(ctx context.Context, ref, value string) error
	Submit(ctx context.Context, ref string) error
	ScrollIntoView(ctx context.Context, ref string) error
	Evaluate(ctx context.Context, expr string, out any) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	ConsoleTail(n int) []ConsoleEntry
	NetworkTail(n int) []NetworkEntry
}

// Session is a Page with an identity and a lifecycle. Sessions are isolated
// from each other (separate cookie jars and local storage).
type Session interface {
	Page
	ID() string
	Close() error
}

// Browser creates sessions.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// InteractionError reports a failed action against a live element. Transient
// failures (element momentarily covered, detached mid-action, slow repaint)
// are safe to retry; the rest are not.
type InteractionError struct {
	Op        string
	Ref       string
	Transient bool
	Err       error
}

func (e *InteractionError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("browser: %s %s failed (%s): %v", e.Op, e.Ref, kind, e.Err)
}

func (e *InteractionError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable interaction failure.
func IsTransient(err error) bool {
	var ie *InteractionError
	return errors.As(err, &ie) && ie.Transient
}
