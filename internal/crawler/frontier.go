package crawler

import (
	"net/url"
	"sync"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// Frontier is the crawl work queue and its visited set.
//
// Admission is the only way into the queue, and it checks scope, depth,
// the visited set and the page budget in one critical section, so a URL
// is dispatched to at most one worker per crawl.
type Frontier struct {
	scope    *Scope
	maxDepth int
	maxPages int

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []model.FrontierEntry
	visited   map[string]struct{}
	admitted  int
	inFlight  int
	budgetHit bool
	closed    bool
	reason    model.StopReason
	closedCh  chan struct{}
}

// NewFrontier creates an empty frontier.
func NewFrontier(scope *Scope, maxDepth, maxPages int) *Frontier {
	f := &Frontier{
		scope:    scope,
		maxDepth: maxDepth,
		maxPages: maxPages,
		queue:    make([]model.FrontierEntry, 0),
		visited:  make(map[string]struct{}),
		closedCh: make(chan struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Seed admits the root at depth 0. Path patterns do not apply to the root.
func (f *Frontier) Seed(root *url.URL) bool {
	return f.admit(NormalizeURL(root), 0, "")
}

// Admit enqueues rawURL at depth if it is in scope, unvisited, within
// the depth limit and the page budget, and the frontier is still open.
// It reports whether the URL was enqueued.
func (f *Frontier) Admit(rawURL string, depth int, from string) bool {
	u, normalized, err := ParseAndNormalize(rawURL)
	if err != nil || !f.scope.Allows(u) {
		return false
	}
	return f.admit(normalized, depth, from)
}

func (f *Frontier) admit(normalized string, depth int, from string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed || depth > f.maxDepth {
		return false
	}
	if _, seen := f.visited[normalized]; seen {
		return false
	}
	if f.admitted >= f.maxPages {
		f.budgetHit = true
		return false
	}

	f.visited[normalized] = struct{}{}
	f.admitted++
	f.queue = append(f.queue, model.FrontierEntry{URL: normalized, Depth: depth, From: from})
	f.cond.Signal()
	return true
}

// Next blocks until an entry is available and marks the caller in
// flight. It returns false once the frontier is closed, either explicitly
// or because the queue is empty with no worker in flight. Every entry
// returned must be released with Done.
func (f *Frontier) Next() (model.FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.closed {
			return model.FrontierEntry{}, false
		}
		if len(f.queue) > 0 {
			entry := f.queue[0]
			f.queue[0] = model.FrontierEntry{}
			f.queue = f.queue[1:]
			f.inFlight++
			return entry, true
		}
		if f.inFlight == 0 {
			f.closeLocked(f.drainReason())
			return model.FrontierEntry{}, false
		}
		f.cond.Wait()
	}
}

// Claim marks an already normalized URL as visited without queueing it.
// It reports false when the URL was visited or admitted before. Redirect
// targets are claimed so that no page is fetched twice.
func (f *Frontier) Claim(normalized string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.visited[normalized]; seen {
		return false
	}
	f.visited[normalized] = struct{}{}
	return true
}

// Done releases an entry returned by Next.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight--
	if f.inFlight == 0 && len(f.queue) == 0 {
		f.closeLocked(f.drainReason())
	}
	f.cond.Broadcast()
}

// Close stops the frontier: queued entries are dropped, admissions are
// refused and waiting workers are released. Entries already in flight
// are unaffected. Only the first reason is kept.
func (f *Frontier) Close(reason model.StopReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked(reason)
}

func (f *Frontier) closeLocked(reason model.StopReason) {
	if f.closed {
		return
	}
	f.closed = true
	f.reason = reason
	f.queue = nil
	close(f.closedCh)
	f.cond.Broadcast()
}

func (f *Frontier) drainReason() model.StopReason {
	if f.budgetHit {
		return model.StopPageBudget
	}
	return model.StopDrained
}

// Closed returns a channel closed when the frontier stops.
func (f *Frontier) Closed() <-chan struct{} {
	return f.closedCh
}

// Reason returns why the frontier closed, or "" while it is open.
func (f *Frontier) Reason() model.StopReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// Admitted returns the number of URLs admitted so far. It is the best
// available estimate of the total page count.
func (f *Frontier) Admitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admitted
}

// Visited reports whether the normalized form of rawURL was admitted.
func (f *Frontier) Visited(rawURL string) bool {
	_, normalized, err := ParseAndNormalize(rawURL)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[normalized]
	return ok
}
