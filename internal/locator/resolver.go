package locator

import (
	"context"
	"fmt"
	"math"
	"sync"

	"smarttest/internal/browser"
)

// ElementNotFoundError means no candidate matched a usable live element.
type ElementNotFoundError struct {
	Key        string
	Candidates int
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("locator: element %q not found after trying %d candidates", e.Key, e.Candidates)
}

// AmbiguousLocatorError means a selector matched several nodes and the
// recorded bounding box could not single one out.
type AmbiguousLocatorError struct {
	Key      string
	Selector string
	Matches  int
}

func (e *AmbiguousLocatorError) Error() string {
	return fmt.Sprintf("locator: selector %q for element %q matched %d nodes and could not be disambiguated", e.Selector, e.Key, e.Matches)
}

// Resolver turns candidate lists into live nodes against one page. It
// remembers, per element key, the rank that last resolved successfully and
// tries that rank first on the next call; when the remembered rank stops
// matching it falls back to the full list from the top.
type Resolver struct {
	page browser.Page

	mu    sync.Mutex
	known map[string]int
}

func NewResolver(page browser.Page) *Resolver {
	return &Resolver{page: page, known: make(map[string]int)}
}

// Resolve finds the live node for an element. Candidates are tried in
// stability order; a selector that matches exactly one usable node wins.
// Multi-matches are settled by nearest centroid to the candidate's recorded
// box, provided a single node is strictly nearest.
func (r *Resolver) Resolve(ctx context.Context, key string, cands []Candidate) (browser.Node, error) {
	ordered := Rank(cands)

	if rank, ok := r.knownRank(key); ok && rank < len(ordered) {
		if n, err := r.try(ctx, key, ordered[rank]); err == nil {
			return n, nil
		} else if _, ambiguous := err.(*AmbiguousLocatorError); ambiguous {
			return browser.Node{}, err
		}
		// Remembered rank went stale; heal by scanning the full list.
		r.forget(key)
	}

	for i, c := range ordered {
		n, err := r.try(ctx, key, c)
		if err == nil {
			r.remember(key, i)
			return n, nil
		}
		if _, ambiguous := err.(*AmbiguousLocatorError); ambiguous {
			return browser.Node{}, err
		}
		if ctx.Err() != nil {
			return browser.Node{}, ctx.Err()
		}
	}
	return browser.Node{}, &ElementNotFoundError{Key: key, Candidates: len(ordered)}
}

// errNoMatch is internal to the candidate walk.
var errNoMatch = fmt.Errorf("locator: no match")

func (r *Resolver) try(ctx context.Context, key string, c Candidate) (browser.Node, error) {
	nodes, err := r.page.Query(ctx, c.Selector)
	if err != nil {
		return browser.Node{}, err
	}
	usable := nodes[:0:0]
	for _, n := range nodes {
		if n.Visible && n.Enabled {
			usable = append(usable, n)
		}
	}
	switch len(usable) {
	case 0:
		return browser.Node{}, errNoMatch
	case 1:
		return usable[0], nil
	default:
		n, ok := nearest(usable, c.Box)
		if !ok {
			return browser.Node{}, &AmbiguousLocatorError{Key: key, Selector: c.Selector, Matches: len(usable)}
		}
		return n, nil
	}
}

// nearest picks the node whose centroid is strictly closest to the recorded
// box. Without a recorded box, or with a tie, there is nothing to pick.
func nearest(nodes []browser.Node, box browser.Rect) (browser.Node, bool) {
	if box.Zero() {
		return browser.Node{}, false
	}
	cx, cy := box.Center()
	best, runnerUp := math.MaxFloat64, math.MaxFloat64
	var pick browser.Node
	for _, n := range nodes {
		nx, ny := n.Box.Center()
		d := math.Hypot(nx-cx, ny-cy)
		if d < best {
			runnerUp = best
			best = d
			pick = n
		} else if d < runnerUp {
			runnerUp = d
		}
	}
	if runnerUp-best < 1e-6 {
		return browser.Node{}, false
	}
	return pick, true
}

func (r *Resolver) knownRank(key string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rank, ok := r.known[key]
	return rank, ok
}

func (r *Resolver) remember(key string, rank int) {
	r.mu.Lock()
	r.known[key] = rank
	r.mu.Unlock()
}

func (r *Resolver) forget(key string) {
	r.mu.Lock()
	delete(r.known, key)
	r.mu.Unlock()
}
