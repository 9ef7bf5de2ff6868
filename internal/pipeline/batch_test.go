package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

func newJobs(targets ...string) []*Job {
	jobs := make([]*Job, len(targets))
	for i, target := range targets {
		jobs[i] = NewJob(model.NewCrawlRequest(target))
	}
	return jobs
}

// TestNewBatchProcessor tests BatchProcessor options.
func TestNewBatchProcessor(t *testing.T) {
	t.Parallel()

	bp := NewBatchProcessor(func(*Job) *Pipeline { return New() })
	if bp.concurrency != DefaultConcurrency {
		t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, bp.concurrency)
	}

	bp = NewBatchProcessor(func(*Job) *Pipeline { return New() }, WithConcurrency(7), WithConcurrency(0))
	if bp.concurrency != 7 {
		t.Errorf("expected concurrency 7, got %d", bp.concurrency)
	}
}

// TestProcessBatch tests concurrent processing of several sites.
func TestProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("keeps input order", func(t *testing.T) {
		t.Parallel()

		crawler := &fakeCrawler{}
		factory := func(*Job) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(NewCrawlStep(crawler, discardLogger()))
			return p
		}
		bp := NewBatchProcessor(factory, WithConcurrency(2), WithBatchLogger(discardLogger()))

		jobs, err := bp.ProcessBatch(context.Background(), newJobs("https://a.fr", "https://b.fr", "https://c.fr"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, want := range []string{"https://a.fr", "https://b.fr", "https://c.fr"} {
			if jobs[i].Result == nil || jobs[i].Result.RootURL != want {
				t.Errorf("expected job %d to hold %s", i, want)
			}
		}
		calls := crawler.Calls()
		slices.Sort(calls)
		if len(calls) != 3 {
			t.Errorf("expected 3 crawls, got %v", calls)
		}
	})

	t.Run("respects the concurrency limit", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int32
		factory := func(*Job) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "slow", doFunc: func(context.Context, *Job) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil
			}})
			return p
		}
		bp := NewBatchProcessor(factory, WithConcurrency(2), WithBatchLogger(discardLogger()))

		if _, err := bp.ProcessBatch(context.Background(), newJobs("https://a.fr", "https://b.fr", "https://c.fr", "https://d.fr", "https://e.fr")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := peak.Load(); got > 2 {
			t.Errorf("expected at most 2 concurrent jobs, got %d", got)
		}
	})

	t.Run("failed job does not stop others", func(t *testing.T) {
		t.Parallel()

		factory := func(job *Job) *Pipeline {
			p := New(WithLogger(discardLogger()))
			c := &fakeCrawler{}
			if job.Target() == "https://bad.fr" {
				c.err = model.ErrInvalidRootURL
			}
			p.AddStep(NewCrawlStep(c, discardLogger()))
			return p
		}
		bp := NewBatchProcessor(factory, WithBatchLogger(discardLogger()))

		jobs, err := bp.ProcessBatch(context.Background(), newJobs("https://bad.fr", "https://good.fr"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if jobs[0].Err == nil || jobs[0].Result != nil {
			t.Error("expected the bad job to carry its error")
		}
		if jobs[1].Err != nil || jobs[1].Result == nil {
			t.Error("expected the good job to succeed")
		}
	})

	t.Run("callback per job", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		seen := make([]int, 0)
		bp := NewBatchProcessor(func(*Job) *Pipeline { return New(WithLogger(discardLogger())) }, WithBatchLogger(discardLogger()))

		err := bp.ProcessBatchWithCallback(context.Background(), newJobs("https://a.fr", "https://b.fr"), func(_ *Job, i int) {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		slices.Sort(seen)
		if !slices.Equal(seen, []int{0, 1}) {
			t.Errorf("expected callbacks for both jobs, got %v", seen)
		}
	})

	t.Run("jobs skipped after cancellation report it", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		crawler := &fakeCrawler{}
		factory := func(job *Job) *Pipeline {
			p := New(WithLogger(discardLogger()))
			if job.Target() == "https://a.fr" {
				p.AddStep(&mockStep{name: "cancel", doFunc: func(context.Context, *Job) error {
					cancel()
					return nil
				}})
			}
			p.AddStep(NewCrawlStep(crawler, discardLogger()))
			return p
		}
		bp := NewBatchProcessor(factory, WithConcurrency(1), WithBatchLogger(discardLogger()))

		jobs, err := bp.ProcessBatch(ctx, newJobs("https://a.fr", "https://b.fr", "https://c.fr"))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if jobs[1].Result != nil || jobs[2].Result != nil {
			t.Error("expected the jobs after the cancellation not to run")
		}
		if calls := crawler.Calls(); slices.Contains(calls, "https://b.fr") || slices.Contains(calls, "https://c.fr") {
			t.Errorf("expected no crawl after cancellation, got %v", calls)
		}
	})

	t.Run("cancelled batch starts nothing", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		crawler := &fakeCrawler{}
		factory := func(*Job) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(NewCrawlStep(crawler, discardLogger()))
			return p
		}
		bp := NewBatchProcessor(factory, WithBatchLogger(discardLogger()))

		if _, err := bp.ProcessBatch(ctx, newJobs("https://a.fr")); err == nil {
			t.Error("expected the context error")
		}
		if len(crawler.Calls()) != 0 {
			t.Error("expected no crawl after cancellation")
		}
	})
}
