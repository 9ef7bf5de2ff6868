package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loupix57/prospectlab-sub002/internal/extract"
	"github.com/loupix57/prospectlab-sub002/internal/gate"
	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// retryBackoff is the base wait between fetch attempts. It grows
// linearly with the attempt number.
const retryBackoff = 250 * time.Millisecond

// RobotsChecker decides whether a URL may be fetched.
type RobotsChecker interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Spider crawls one site per Crawl call and returns the aggregated
// ScrapeResult. A Spider holds no per-crawl state and may run several
// crawls concurrently.
type Spider struct {
	// fetcher downloads pages. Defaults to an HTTPFetcher.
	fetcher Fetcher

	// registry holds the extractors run on every HTML page.
	registry *extract.Registry

	// gate analyzes every new email. Nil records error-flagged analyses.
	gate gate.Gate

	// robots, when set, is consulted before every fetch.
	robots RobotsChecker

	// limiter spaces out requests per host. Nil disables it.
	limiter *HostLimiter

	// reporter receives progress events through a non-blocking queue.
	reporter ProgressReporter

	// ignorePatterns and followPatterns filter URL paths, glob syntax.
	ignorePatterns []string
	followPatterns []string

	emailPolicy     model.EmailSourcePolicy
	gateTimeout     time.Duration
	gateConcurrency int
	progressBuffer  int

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithFetcher sets the page fetcher.
func WithFetcher(f Fetcher) SpiderOption {
	return func(s *Spider) {
		s.fetcher = f
	}
}

// WithRegistry sets the extractor registry.
func WithRegistry(r *extract.Registry) SpiderOption {
	return func(s *Spider) {
		s.registry = r
	}
}

// WithGate sets the email quality gate.
func WithGate(g gate.Gate) SpiderOption {
	return func(s *Spider) {
		s.gate = g
	}
}

// WithRobots makes the spider skip URLs the checker disallows.
func WithRobots(r RobotsChecker) SpiderOption {
	return func(s *Spider) {
		s.robots = r
	}
}

// WithRateLimit allows at most requestsPerSecond requests per host.
func WithRateLimit(requestsPerSecond float64, burst int) SpiderOption {
	return func(s *Spider) {
		s.limiter = NewHostLimiter(requestsPerSecond, burst)
	}
}

// WithProgress sets the progress reporter.
func WithProgress(r ProgressReporter) SpiderOption {
	return func(s *Spider) {
		s.reporter = r
	}
}

// WithProgressBuffer sets how many progress events may be queued before
// new ones are dropped.
func WithProgressBuffer(n int) SpiderOption {
	return func(s *Spider) {
		s.progressBuffer = n
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts crawling to URL paths matching at least
// one pattern. Empty means every path is allowed.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithEmailPolicy sets which page an email found several times is
// attributed to.
func WithEmailPolicy(p model.EmailSourcePolicy) SpiderOption {
	return func(s *Spider) {
		s.emailPolicy = p
	}
}

// WithGateTimeout bounds every gate attempt.
func WithGateTimeout(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.gateTimeout = d
	}
}

// WithGateConcurrency bounds the number of concurrent gate calls.
func WithGateConcurrency(n int) SpiderOption {
	return func(s *Spider) {
		s.gateConcurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider. Without WithFetcher it builds a default
// HTTPFetcher, which cannot fail.
func NewSpider(opts ...SpiderOption) *Spider {
	s := &Spider{
		emailPolicy:     model.EmailSourceFirst,
		gateTimeout:     DefaultGateTimeout,
		gateConcurrency: DefaultGateConcurrency,
		progressBuffer:  defaultProgressBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.fetcher == nil {
		// Without a proxy NewHTTPFetcher has no error path.
		f, _ := NewHTTPFetcher(WithFetcherLogger(s.logger)) //nolint:errcheck
		s.fetcher = f
	}
	if s.registry == nil {
		s.registry = extract.DefaultRegistry(extract.WithRegistryLogger(s.logger))
	}
	return s
}

// crawlRun is the state of one Crawl call.
type crawlRun struct {
	req      model.CrawlRequest
	scope    *Scope
	frontier *Frontier
	agg      *Aggregator
	delay    time.Duration

	// stopCtx is cancelled as soon as the frontier closes, which aborts
	// politeness waits. Fetches in flight are not bound to it.
	stopCtx context.Context
}

// Crawl explores req.RootURL and returns the aggregated result.
//
// The only error is an invalid request. Fetch, parse, extractor and gate
// failures are recorded in the result, and budget exhaustion, deadline or
// cancellation of ctx all end the crawl normally with a partial result and
// the matching StopReason. Crawl returns after every in-flight page and
// every gate call has completed.
func (s *Spider) Crawl(ctx context.Context, req model.CrawlRequest) (*model.ScrapeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl request: %w", err)
	}
	root, err := req.Root()
	if err != nil {
		return nil, fmt.Errorf("invalid crawl request: %w", err)
	}

	scope := NewScope(root, s.ignorePatterns, s.followPatterns)
	frontier := NewFrontier(scope, req.MaxDepth, req.MaxPages)
	reporter := newAsyncReporter(s.reporter, s.progressBuffer)
	agg := NewAggregator(NormalizeURL(root), req.OwnerID,
		WithAggregatorGate(s.gate),
		WithAggregatorPolicy(s.emailPolicy),
		WithAggregatorGateTimeout(s.gateTimeout),
		WithAggregatorGateRetries(req.GateRetries),
		WithAggregatorGateConcurrency(s.gateConcurrency),
		WithAggregatorLogger(s.logger),
		withAggregatorReporter(reporter, frontier.Admitted),
	)

	budget := NewBudget(time.Now(), req.MaxTime())
	frontier.Seed(root)
	stopWatch := budget.Watch(ctx, frontier)

	stopCtx, cancelStop := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		<-frontier.Closed()
		cancelStop()
	}()

	run := &crawlRun{
		req:      req,
		scope:    scope,
		frontier: frontier,
		agg:      agg,
		delay:    req.Delay(),
		stopCtx:  stopCtx,
	}

	s.logger.Info("crawl started", "root", root.String(), "max_depth", req.MaxDepth,
		"max_pages", req.MaxPages, "max_workers", req.MaxWorkers, "max_time", req.MaxTime())

	if err := s.dispatch(run); err != nil {
		s.logger.Warn("worker failed", "root", root.String(), "error", err)
	}

	stopWatch()
	result := agg.Finish(frontier.Reason())
	cancelStop()

	reporter.report(Progress{
		Event:              EventDone,
		PagesDone:          result.Stats.PagesAttempted,
		PagesTotalEstimate: frontier.Admitted(),
		Stats:              result.Stats,
	})
	reporter.close(progressFlushTimeout)
	if n := reporter.Dropped(); n > 0 {
		s.logger.Debug("progress events dropped", "count", n)
	}

	s.logger.Info("crawl finished", "root", result.RootURL, "stop_reason", result.StopReason,
		"pages", result.Stats.PagesAttempted, "emails", result.Stats.Emails, "duration", result.Duration())

	return result, nil
}

// dispatch hands frontier entries to at most MaxWorkers concurrent
// workers until the frontier closes, then waits for them. An entry taken
// after the crawl stopped is released without a fetch.
func (s *Spider) dispatch(run *crawlRun) error {
	var g errgroup.Group
	g.SetLimit(run.req.MaxWorkers)

	for {
		entry, ok := run.frontier.Next()
		if !ok {
			break
		}
		g.Go(func() (err error) {
			defer run.frontier.Done()
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("page %s: panic: %v", entry.URL, p)
				}
			}()
			if run.stopCtx.Err() != nil {
				return nil
			}
			s.processEntry(run, entry)
			return nil
		})
	}
	return g.Wait()
}

// processEntry fetches and extracts one page. Every outcome is recorded
// on the aggregator except an entry dropped because the crawl stopped
// before its fetch began.
func (s *Spider) processEntry(run *crawlRun, entry model.FrontierEntry) {
	if !waitDelay(run.stopCtx, run.delay) {
		return
	}

	u, err := url.Parse(entry.URL)
	if err != nil {
		run.agg.RecordPage(model.PageRecord{URL: entry.URL, Depth: entry.Depth, Error: err.Error()})
		return
	}

	if s.robots != nil && !s.robots.Allowed(run.stopCtx, u) {
		s.logger.Debug("disallowed by robots.txt", "url", entry.URL)
		return
	}

	if err := s.limiter.Wait(run.stopCtx, u.Hostname()); err != nil {
		return
	}

	// The fetch outlives the crawl deadline: a page in flight is always
	// completed, bounded by the fetch timeout.
	guard := newRedirectGuard(entry.URL, run.scope, run.frontier)
	fetchCtx := withRedirectGuard(context.WithoutCancel(run.stopCtx), guard)
	resp, attempts, err := s.fetch(fetchCtx, u, run.req.FetchRetries)
	if err != nil {
		rec := model.PageRecord{URL: entry.URL, Depth: entry.Depth, Error: err.Error(), Attempts: attempts}
		if target, reason := redirectRejection(err); reason != nil {
			// The client reports the raw Location header.
			if ref, perr := u.Parse(target); perr == nil {
				target = ref.String()
			}
			rec.FinalURL = target
			rec.Error = reason.Error()
		}
		s.logger.Debug("fetch failed", "url", entry.URL, "error", err)
		run.agg.RecordPage(rec)
		return
	}

	rec := model.PageRecord{
		URL:         entry.URL,
		FinalURL:    resp.FinalURL.String(),
		Depth:       entry.Depth,
		StatusCode:  resp.StatusCode,
		Duration:    resp.Duration,
		Size:        int64(len(resp.Body)),
		ContentType: resp.ContentType,
		Hash:        model.ContentHash(resp.Body),
		Attempts:    attempts,
	}
	// Fetchers with their own client follow redirects unchecked.
	if resp.FinalURL != nil && NormalizeURL(resp.FinalURL) != entry.URL {
		if err := guard.check(resp.FinalURL); err != nil {
			s.logger.Debug("redirect rejected", "url", entry.URL, "target", rec.FinalURL, "error", err)
			rec.Error = err.Error()
			run.agg.RecordPage(rec)
			return
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rec.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		run.agg.RecordPage(rec)
		return
	}
	if !rec.IsHTML() {
		run.agg.RecordPage(rec)
		return
	}

	doc, err := extract.NewDocument(resp.FinalURL, resp.Header, resp.Body)
	if err != nil {
		s.logger.Debug("unparseable page", "url", entry.URL, "error", err)
		run.agg.RecordPage(rec)
		return
	}

	for _, link := range extractLinks(doc) {
		lu, err := url.Parse(link)
		if err != nil || !run.scope.Allows(lu) {
			continue
		}
		rec.Links = append(rec.Links, link)
		run.frontier.Admit(link, entry.Depth+1, entry.URL)
	}

	findings, extractErrs := s.registry.Run(doc)
	run.agg.RecordFindings(run.stopCtx, doc.PageURL(), findings, extractErrs)
	run.agg.RecordPage(rec)
}

// fetch retries transport errors and 5xx responses up to retries times.
// It returns the last response or error and the number of attempts.
func (s *Spider) fetch(ctx context.Context, u *url.URL, retries int) (*Response, int, error) {
	var (
		resp *Response
		err  error
	)
	attempt := 0
	for attempt < retries+1 {
		if attempt > 0 {
			if werr := sleepContext(ctx, time.Duration(attempt)*retryBackoff); werr != nil {
				break
			}
			s.logger.Debug("retrying fetch", "url", u.String(), "attempt", attempt+1)
		}
		attempt++
		resp, err = s.fetcher.Fetch(ctx, u)
		if err == nil && resp.StatusCode < 500 {
			break
		}
		if _, reason := redirectRejection(err); reason != nil {
			break
		}
	}
	return resp, attempt, err
}

// waitDelay sleeps for the politeness delay. It reports false when the
// crawl stopped during the wait.
func waitDelay(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	return sleepContext(ctx, d) == nil
}
