package crawler

import (
	"context"
	"time"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// Budget tracks the wall-clock limit of one crawl. Depth and page limits
// are enforced by the Frontier at admission time.
type Budget struct {
	start    time.Time
	deadline time.Time
}

// NewBudget starts a budget of maxTime at start. A zero maxTime yields a
// budget that is already expired.
func NewBudget(start time.Time, maxTime time.Duration) *Budget {
	return &Budget{
		start:    start,
		deadline: start.Add(maxTime),
	}
}

// Start returns when the crawl started.
func (b *Budget) Start() time.Time {
	return b.start
}

// Deadline returns when the crawl must stop taking new work.
func (b *Budget) Deadline() time.Time {
	return b.deadline
}

// Expired reports whether the deadline has passed at now.
func (b *Budget) Expired(now time.Time) bool {
	return !now.Before(b.deadline)
}

// Remaining returns the time left at now, never negative.
func (b *Budget) Remaining(now time.Time) time.Duration {
	return max(b.deadline.Sub(now), 0)
}

// Watch closes the frontier when the deadline passes or ctx is cancelled,
// whichever comes first. The returned function stops the watcher.
func (b *Budget) Watch(ctx context.Context, f *Frontier) (stop func()) {
	if b.Expired(time.Now()) {
		f.Close(model.StopDeadline)
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)

		timer := time.NewTimer(b.Remaining(time.Now()))
		defer timer.Stop()

		select {
		case <-ctx.Done():
			f.Close(model.StopCancelled)
		case <-timer.C:
			f.Close(model.StopDeadline)
		case <-f.Closed():
		case <-done:
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
