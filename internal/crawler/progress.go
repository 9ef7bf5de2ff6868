package crawler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// Event identifies what triggered a progress notification.
type Event string

// Progress events.
const (
	EventPage  Event = "page"
	EventEmail Event = "email"
	EventDone  Event = "done"
)

const (
	// defaultProgressBuffer is the number of events queued before the
	// reporter starts dropping them.
	defaultProgressBuffer = 256

	// progressFlushTimeout bounds how long a finished crawl waits for
	// queued events to be delivered.
	progressFlushTimeout = 2 * time.Second
)

// Progress is a point-in-time view of a running crawl.
type Progress struct {
	Event Event `json:"event"`

	// PagesDone is the number of pages attempted so far.
	PagesDone int `json:"pages_done"`

	// PagesTotalEstimate is the number of pages admitted so far. It only
	// grows while links are discovered.
	PagesTotalEstimate int `json:"pages_total_estimate"`

	// CurrentURL is the page just processed, for page events.
	CurrentURL string `json:"current_url,omitempty"`

	// Email is the address just analyzed, for email events.
	Email string `json:"email,omitempty"`

	Stats model.Stats `json:"stats"`
}

// ProgressReporter receives progress notifications. Implementations may
// be slow: the crawler never waits for them.
type ProgressReporter interface {
	OnProgress(p Progress)
}

// FuncReporter adapts a function to ProgressReporter.
type FuncReporter func(Progress)

// OnProgress implements ProgressReporter.
func (f FuncReporter) OnProgress(p Progress) {
	f(p)
}

// ChannelReporter forwards progress to a channel. Events are dropped
// when the channel is full.
type ChannelReporter chan<- Progress

// OnProgress implements ProgressReporter.
func (c ChannelReporter) OnProgress(p Progress) {
	select {
	case c <- p:
	default:
	}
}

// asyncReporter decouples the crawl from the caller's reporter with a
// buffered queue drained by one goroutine.
type asyncReporter struct {
	target  ProgressReporter
	events  chan Progress
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// newAsyncReporter starts the delivery goroutine. A nil target yields a
// reporter that discards everything.
func newAsyncReporter(target ProgressReporter, buffer int) *asyncReporter {
	if buffer <= 0 {
		buffer = defaultProgressBuffer
	}
	r := &asyncReporter{
		target: target,
		events: make(chan Progress, buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *asyncReporter) run() {
	defer close(r.done)
	for p := range r.events {
		if r.target != nil {
			r.target.OnProgress(p)
		}
	}
}

// report queues p without blocking.
func (r *asyncReporter) report(p Progress) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- p:
	default:
		r.dropped.Add(1)
	}
}

// close stops accepting events and waits up to flush for the queued
// ones to be delivered. A reporter that is still busy after flush keeps
// draining in the background.
func (r *asyncReporter) close(flush time.Duration) {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	timer := time.NewTimer(flush)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (r *asyncReporter) Dropped() int64 {
	return r.dropped.Load()
}
