package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loupix57/prospectlab-sub002/internal/model"
	"github.com/loupix57/prospectlab-sub002/internal/report"
)

// ErrNoResult is returned by steps that need a crawl result when none was produced.
var ErrNoResult = errors.New("no crawl result")

// Crawler runs one crawl. *crawler.Spider satisfies it.
type Crawler interface {
	Crawl(ctx context.Context, req model.CrawlRequest) (*model.ScrapeResult, error)
}

// ResultSaver persists a finished result. *database.ResultStore satisfies it.
type ResultSaver interface {
	SaveResult(ctx context.Context, result *model.ScrapeResult) (int64, error)
}

// RecentChecker tells whether a site was crawled recently.
// *database.ResultStore satisfies it.
type RecentChecker interface {
	HasRecentResult(ctx context.Context, rootURL string, d time.Duration) (bool, error)
}

// SkipRecentStep skips sites already crawled within a time window.
type SkipRecentStep struct {
	store  RecentChecker
	within time.Duration
	logger *slog.Logger
}

// NewSkipRecentStep creates a step skipping sites crawled within the last d.
func NewSkipRecentStep(store RecentChecker, d time.Duration, logger *slog.Logger) *SkipRecentStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SkipRecentStep{store: store, within: d, logger: logger}
}

// Name returns the step name.
func (s *SkipRecentStep) Name() string {
	return "skip_recent"
}

// Do marks the job skipped when a recent result exists. Lookup failures
// are logged and the crawl proceeds.
func (s *SkipRecentStep) Do(ctx context.Context, job *Job) error {
	if s.within <= 0 {
		return nil
	}
	recent, err := s.store.HasRecentResult(ctx, job.Target(), s.within)
	if err != nil {
		s.logger.Warn("recent result lookup failed", "target", job.Target(), "error", err)
		return nil
	}
	if recent {
		job.Skipped = true
		job.SkipReason = fmt.Sprintf("crawled within the last %s", s.within)
	}
	return nil
}

// CrawlStep crawls the job's site.
type CrawlStep struct {
	crawler Crawler
	logger  *slog.Logger
}

// NewCrawlStep creates a crawl step.
func NewCrawlStep(c Crawler, logger *slog.Logger) *CrawlStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlStep{crawler: c, logger: logger}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do runs the crawl. Only an invalid request is an error; a cancelled or
// timed out crawl still yields a result.
func (s *CrawlStep) Do(ctx context.Context, job *Job) error {
	result, err := s.crawler.Crawl(ctx, job.Request)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", job.Target(), err)
	}
	job.Result = result

	summary := result.Summary()
	s.logger.Info("crawl finished",
		"target", job.Target(),
		"reason", summary.StopReason,
		"pages", summary.Pages,
		"emails", summary.Emails,
	)
	return nil
}

// SaveStep stores the job's result.
type SaveStep struct {
	store ResultSaver
}

// NewSaveStep creates a save step.
func NewSaveStep(store ResultSaver) *SaveStep {
	return &SaveStep{store: store}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Final reports that a partial result is saved after cancellation.
func (s *SaveStep) Final() bool {
	return true
}

// Do saves the result. A job without result has nothing to save.
func (s *SaveStep) Do(ctx context.Context, job *Job) error {
	if job.Result == nil {
		return nil
	}
	id, err := s.store.SaveResult(ctx, job.Result)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	job.ResultID = id
	return nil
}

// ReportStep writes the job's result. Writes are serialized so that
// concurrent jobs sharing one writer do not interleave.
type ReportStep struct {
	writer  report.Writer
	summary bool
	mu      *sync.Mutex
}

// ReportStepOption configures a ReportStep.
type ReportStepOption func(*ReportStep)

// WithSummaryOnly writes the summary instead of the full result.
func WithSummaryOnly(summary bool) ReportStepOption {
	return func(s *ReportStep) {
		s.summary = summary
	}
}

// WithWriteLock shares a lock between report steps of different pipelines.
func WithWriteLock(mu *sync.Mutex) ReportStepOption {
	return func(s *ReportStep) {
		if mu != nil {
			s.mu = mu
		}
	}
}

// NewReportStep creates a report step.
func NewReportStep(w report.Writer, opts ...ReportStepOption) *ReportStep {
	s := &ReportStep{writer: w, mu: &sync.Mutex{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Final reports that a partial result is reported after cancellation.
func (s *ReportStep) Final() bool {
	return true
}

// Do writes the report.
func (s *ReportStep) Do(_ context.Context, job *Job) error {
	if job.Result == nil {
		return ErrNoResult
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.summary {
		_, err = s.writer.WriteSummary(job.Result.Summary())
	} else {
		_, err = s.writer.Write(job.Result)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
