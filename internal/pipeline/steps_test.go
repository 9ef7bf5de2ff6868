package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loupix57/prospectlab-sub002/internal/model"
	"github.com/loupix57/prospectlab-sub002/internal/report"
)

type fakeCrawler struct {
	mu    sync.Mutex
	calls []string
	err   error
	block bool
}

func (f *fakeCrawler) Crawl(ctx context.Context, req model.CrawlRequest) (*model.ScrapeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.RootURL)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	result := model.NewScrapeResult(req.RootURL, req.OwnerID)
	result.StopReason = model.StopDrained
	if f.block {
		<-ctx.Done()
		result.StopReason = model.StopCancelled
	}
	result.Emails["contact@"+strings.TrimPrefix(req.RootURL, "https://")] = &model.EmailRecord{
		Address:  "contact@" + strings.TrimPrefix(req.RootURL, "https://"),
		Analysis: &model.EmailAnalysis{Type: "role"},
	}
	result.FinishedAt = time.Now()
	return result, nil
}

func (f *fakeCrawler) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []*model.ScrapeResult
	recent  map[string]bool
	err     error
	lastCtx error
}

func (f *fakeStore) SaveResult(ctx context.Context, r *model.ScrapeResult) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtx = ctx.Err()
	if f.err != nil {
		return 0, f.err
	}
	f.saved = append(f.saved, r)
	return int64(len(f.saved)), nil
}

func (f *fakeStore) HasRecentResult(_ context.Context, root string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.recent[root], nil
}

// TestCrawlStep tests the crawl step.
func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("stores the result", func(t *testing.T) {
		t.Parallel()

		job := newTestJob()
		step := NewCrawlStep(&fakeCrawler{}, discardLogger())
		if err := step.Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.Result == nil || job.Result.RootURL != "https://acme.fr" {
			t.Errorf("expected a result for acme.fr, got %+v", job.Result)
		}
		if step.Name() != "crawl" {
			t.Errorf("unexpected name %q", step.Name())
		}
	})

	t.Run("wraps crawl errors", func(t *testing.T) {
		t.Parallel()

		err := NewCrawlStep(&fakeCrawler{err: model.ErrInvalidRootURL}, discardLogger()).Do(context.Background(), newTestJob())
		if !errors.Is(err, model.ErrInvalidRootURL) {
			t.Errorf("expected ErrInvalidRootURL, got %v", err)
		}
	})
}

// TestSaveStep tests the save step.
func TestSaveStep(t *testing.T) {
	t.Parallel()

	t.Run("saves and records the id", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		job := newTestJob()
		job.Result = model.NewScrapeResult("https://acme.fr", "")

		if err := NewSaveStep(store).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.ResultID != 1 || len(store.saved) != 1 {
			t.Errorf("expected one saved result with id 1, got id %d and %d saved", job.ResultID, len(store.saved))
		}
	})

	t.Run("nothing to save", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		if err := NewSaveStep(store).Do(context.Background(), newTestJob()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(store.saved) != 0 {
			t.Error("expected nothing saved")
		}
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()

		job := newTestJob()
		job.Result = model.NewScrapeResult("https://acme.fr", "")
		if err := NewSaveStep(&fakeStore{err: errors.New("locked")}).Do(context.Background(), job); err == nil {
			t.Error("expected store error")
		}
	})
}

// TestSkipRecentStep tests recency skipping.
func TestSkipRecentStep(t *testing.T) {
	t.Parallel()

	store := &fakeStore{recent: map[string]bool{"https://acme.fr": true}}

	job := newTestJob()
	if err := NewSkipRecentStep(store, time.Hour, discardLogger()).Do(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !job.Skipped || !strings.Contains(job.SkipReason, "1h0m0s") {
		t.Errorf("expected job to be skipped, got %v %q", job.Skipped, job.SkipReason)
	}

	other := NewJob(model.NewCrawlRequest("https://beta.io"))
	_ = NewSkipRecentStep(store, time.Hour, discardLogger()).Do(context.Background(), other)
	if other.Skipped {
		t.Error("expected unknown site not to be skipped")
	}

	disabled := newTestJob()
	_ = NewSkipRecentStep(store, 0, discardLogger()).Do(context.Background(), disabled)
	if disabled.Skipped {
		t.Error("expected a zero window to disable skipping")
	}

	failing := newTestJob()
	if err := NewSkipRecentStep(&fakeStore{err: errors.New("down")}, time.Hour, discardLogger()).Do(context.Background(), failing); err != nil || failing.Skipped {
		t.Errorf("expected lookup failures to let the crawl proceed, got %v %v", err, failing.Skipped)
	}
}

// TestReportStep tests the report step.
func TestReportStep(t *testing.T) {
	t.Parallel()

	job := newTestJob()
	job.Result = model.NewScrapeResult("https://acme.fr", "")
	job.Result.StopReason = model.StopDrained

	t.Run("full report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewReportStep(report.NewJSONWriter(&buf)).Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"pages":[]`) {
			t.Errorf("expected the full result, got %s", buf.String())
		}
	})

	t.Run("summary only", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		step := NewReportStep(report.NewSimpleWriter(&buf), WithSummaryOnly(true), WithWriteLock(&sync.Mutex{}))
		if err := step.Do(context.Background(), job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(buf.String(), "https://acme.fr: Complete") {
			t.Errorf("expected a summary line, got %q", buf.String())
		}
	})

	t.Run("missing result", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewReportStep(report.NewSimpleWriter(&buf)).Do(context.Background(), newTestJob()); !errors.Is(err, ErrNoResult) {
			t.Errorf("expected ErrNoResult, got %v", err)
		}
	})
}

// TestFullPipelineCancelled tests that an interrupted crawl is still saved.
func TestFullPipelineCancelled(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	var buf bytes.Buffer

	p := New(WithLogger(discardLogger()))
	p.AddSteps(
		NewCrawlStep(&fakeCrawler{block: true}, discardLogger()),
		NewSaveStep(store),
		NewReportStep(report.NewSimpleWriter(&buf), WithSummaryOnly(true)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	job := newTestJob()
	if err := p.Execute(ctx, job); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.saved) != 1 || store.lastCtx != nil {
		t.Errorf("expected the partial result saved with a live context, got %d saved, ctx err %v", len(store.saved), store.lastCtx)
	}
	if !strings.Contains(buf.String(), "Cancelled") {
		t.Errorf("expected the cancelled summary, got %q", buf.String())
	}
}
