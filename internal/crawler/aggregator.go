package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loupix57/prospectlab-sub002/internal/extract"
	"github.com/loupix57/prospectlab-sub002/internal/gate"
	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// Gate defaults.
const (
	DefaultGateTimeout     = 20 * time.Second
	DefaultGateConcurrency = 4
)

// errNoGate flags emails recorded while no gate was configured.
var errNoGate = errors.New("email gate not configured")

// Aggregator is the single owner of a crawl's ScrapeResult. Workers hand
// it their findings; it deduplicates them, keeps the counters and runs
// the email gate for every new address.
//
// Gate calls run outside the result lock, one goroutine per new email,
// bounded by a semaphore. Wait is the completion barrier: it returns once
// every gate call has returned.
type Aggregator struct {
	// mu guards result and the dedup indexes below.
	mu     sync.Mutex
	result *model.ScrapeResult

	people   map[string]struct{}
	phones   map[string]struct{}
	images   map[string]struct{}
	social   map[string]map[string]struct{}
	techs    map[string]map[string]struct{}
	finished bool

	policy      model.EmailSourcePolicy
	gate        gate.Gate
	gateTimeout time.Duration
	gateRetries int
	gateSem     chan struct{}
	pending     sync.WaitGroup

	reporter *asyncReporter
	estimate func() int
	logger   *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorGate sets the email gate. Without one every email is
// recorded with an error-flagged analysis.
func WithAggregatorGate(g gate.Gate) AggregatorOption {
	return func(a *Aggregator) {
		a.gate = g
	}
}

// WithAggregatorPolicy sets which page an email found several times is
// attributed to.
func WithAggregatorPolicy(p model.EmailSourcePolicy) AggregatorOption {
	return func(a *Aggregator) {
		if p == model.EmailSourceFirst || p == model.EmailSourceLast {
			a.policy = p
		}
	}
}

// WithAggregatorGateTimeout bounds every gate attempt.
func WithAggregatorGateTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.gateTimeout = d
		}
	}
}

// WithAggregatorGateRetries sets the number of extra gate attempts.
func WithAggregatorGateRetries(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n >= 0 {
			a.gateRetries = n
		}
	}
}

// WithAggregatorGateConcurrency bounds the number of concurrent gate calls.
func WithAggregatorGateConcurrency(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.gateSem = make(chan struct{}, n)
		}
	}
}

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func withAggregatorReporter(r *asyncReporter, estimate func() int) AggregatorOption {
	return func(a *Aggregator) {
		a.reporter = r
		a.estimate = estimate
	}
}

// NewAggregator creates the owner of a fresh result for rootURL.
func NewAggregator(rootURL, ownerID string, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		result:      model.NewScrapeResult(rootURL, ownerID),
		people:      make(map[string]struct{}),
		phones:      make(map[string]struct{}),
		images:      make(map[string]struct{}),
		social:      make(map[string]map[string]struct{}),
		techs:       make(map[string]map[string]struct{}),
		policy:      model.EmailSourceFirst,
		gateTimeout: DefaultGateTimeout,
		gateSem:     make(chan struct{}, DefaultGateConcurrency),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// RecordPage appends a page outcome and updates the page counters.
func (a *Aggregator) RecordPage(page model.PageRecord) {
	a.mu.Lock()
	a.result.Pages = append(a.result.Pages, page)
	a.result.Stats.PagesAttempted++
	if page.Succeeded() {
		a.result.Stats.PagesSucceeded++
	} else {
		a.result.Stats.PagesFailed++
	}
	progress := a.progressLocked(EventPage)
	progress.CurrentURL = page.URL
	a.mu.Unlock()

	a.report(progress)
}

// RecordFindings stores everything one page produced. Extractor errors
// are counted and logged; they never discard the other findings.
func (a *Aggregator) RecordFindings(ctx context.Context, page string, f extract.Findings, extractorErrs []error) {
	for _, err := range extractorErrs {
		a.logger.Warn("extractor failed", "page", page, "error", err)
	}

	a.mu.Lock()
	a.result.Stats.ExtractorFails += len(extractorErrs)
	for _, p := range f.People {
		a.recordPersonLocked(p, page)
	}
	for _, ph := range f.Phones {
		a.recordPhoneLocked(ph, page)
	}
	for _, s := range f.Social {
		a.recordSocialLocked(s)
	}
	for _, t := range f.Technologies {
		a.recordTechnologyLocked(t)
	}
	for _, img := range f.Images {
		a.recordImageLocked(img, page)
	}
	if f.Metadata != nil {
		a.recordMetadataLocked(*f.Metadata, page)
	}
	a.mu.Unlock()

	for _, email := range f.Emails {
		a.RecordEmail(ctx, email, page)
	}
}

// RecordEmail records an address found on page. The first sighting of an
// address schedules a gate call; later sightings only apply the source
// policy. It reports whether the address was new.
func (a *Aggregator) RecordEmail(ctx context.Context, address, page string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return false
	}

	a.mu.Lock()
	if rec, ok := a.result.Emails[address]; ok {
		if a.policy == model.EmailSourceLast {
			rec.SourcePage = page
		}
		a.mu.Unlock()
		return false
	}
	if a.finished {
		a.mu.Unlock()
		return false
	}
	a.result.Emails[address] = &model.EmailRecord{Address: address, SourcePage: page}
	a.result.Stats.Emails++
	a.pending.Add(1)
	a.mu.Unlock()

	go a.analyze(context.WithoutCancel(ctx), address)
	return true
}

// analyze runs the gate for one address and attaches the outcome.
func (a *Aggregator) analyze(ctx context.Context, address string) {
	defer a.pending.Done()

	a.gateSem <- struct{}{}
	analysis, err := a.callGate(ctx, address)
	<-a.gateSem

	if err != nil {
		a.logger.Warn("email analysis failed", "email", address, "error", err)
		analysis.Error = err.Error()
		if analysis.AnalyzedAt.IsZero() {
			analysis.AnalyzedAt = time.Now()
		}
	}

	a.mu.Lock()
	if rec, ok := a.result.Emails[address]; ok {
		rec.Analysis = &analysis
	}
	a.result.Stats.GateCalls++
	if err != nil {
		a.result.Stats.GateErrors++
	}
	progress := a.progressLocked(EventEmail)
	progress.Email = address
	a.mu.Unlock()

	a.report(progress)
}

func (a *Aggregator) callGate(ctx context.Context, address string) (model.EmailAnalysis, error) {
	if a.gate == nil {
		return model.EmailAnalysis{}, errNoGate
	}

	var (
		analysis model.EmailAnalysis
		err      error
	)
	for attempt := 0; attempt <= a.gateRetries; attempt++ {
		analysis, err = a.gateAttempt(ctx, address)
		if err == nil {
			return analysis, nil
		}
		if attempt < a.gateRetries {
			a.logger.Debug("retrying email analysis", "email", address, "attempt", attempt+2, "error", err)
		}
	}
	return analysis, err
}

// gateAttempt runs one gate call bounded by the gate timeout, even when
// the gate ignores its context.
func (a *Aggregator) gateAttempt(ctx context.Context, address string) (model.EmailAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, a.gateTimeout)
	defer cancel()

	type outcome struct {
		analysis model.EmailAnalysis
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		analysis, err := a.gate.Analyze(ctx, address)
		done <- outcome{analysis, err}
	}()

	select {
	case out := <-done:
		return out.analysis, out.err
	case <-ctx.Done():
		return model.EmailAnalysis{}, fmt.Errorf("analyze %s: %w", address, ctx.Err())
	}
}

// RecordPerson adds p unless the same (name, email) pair is known.
func (a *Aggregator) RecordPerson(p model.Person, page string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordPersonLocked(p, page)
}

func (a *Aggregator) recordPersonLocked(p model.Person, page string) bool {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return false
	}
	key := strings.ToLower(p.Name) + "|" + strings.ToLower(p.Email)
	if _, ok := a.people[key]; ok {
		return false
	}
	a.people[key] = struct{}{}
	if p.SourcePage == "" {
		p.SourcePage = page
	}
	a.result.People = append(a.result.People, p)
	a.result.Stats.People++
	return true
}

// RecordPhone adds ph unless its digit sequence is known.
func (a *Aggregator) RecordPhone(ph model.Phone, page string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordPhoneLocked(ph, page)
}

func (a *Aggregator) recordPhoneLocked(ph model.Phone, page string) bool {
	key := ph.Digits
	if key == "" {
		key = digitsOf(ph.Number)
	}
	if key == "" {
		return false
	}
	if _, ok := a.phones[key]; ok {
		return false
	}
	a.phones[key] = struct{}{}
	ph.Digits = key
	if ph.SourcePage == "" {
		ph.SourcePage = page
	}
	a.result.Phones = append(a.result.Phones, ph)
	a.result.Stats.Phones++
	return true
}

// RecordSocial adds a profile URL to its platform set.
func (a *Aggregator) RecordSocial(s extract.SocialProfile) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordSocialLocked(s)
}

func (a *Aggregator) recordSocialLocked(s extract.SocialProfile) bool {
	if s.Platform == "" || s.URL == "" {
		return false
	}
	if !addToSet(a.social, s.Platform, s.URL) {
		return false
	}
	a.result.SocialProfiles[s.Platform] = append(a.result.SocialProfiles[s.Platform], s.URL)
	a.result.Stats.SocialProfiles++
	return true
}

// RecordTechnology adds a technology name to its category set.
func (a *Aggregator) RecordTechnology(t extract.Technology) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordTechnologyLocked(t)
}

func (a *Aggregator) recordTechnologyLocked(t extract.Technology) bool {
	if t.Category == "" || t.Name == "" {
		return false
	}
	if !addToSet(a.techs, t.Category, t.Name) {
		return false
	}
	a.result.Technologies[t.Category] = append(a.result.Technologies[t.Category], t.Name)
	a.result.Stats.Technologies++
	return true
}

// RecordImage adds img unless its URL is known. Images without both
// dimensions are ignored.
func (a *Aggregator) RecordImage(img model.Image, page string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordImageLocked(img, page)
}

func (a *Aggregator) recordImageLocked(img model.Image, page string) bool {
	if img.URL == "" || img.Width <= 0 || img.Height <= 0 {
		return false
	}
	if _, ok := a.images[img.URL]; ok {
		return false
	}
	a.images[img.URL] = struct{}{}
	if img.SourcePage == "" {
		img.SourcePage = page
	}
	a.result.Images = append(a.result.Images, img)
	a.result.Stats.Images++
	return true
}

// RecordMetadata stores the metadata of one page. Entries are keyed by
// page and never merged.
func (a *Aggregator) RecordMetadata(meta model.PageMeta, page string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordMetadataLocked(meta, page)
}

func (a *Aggregator) recordMetadataLocked(meta model.PageMeta, page string) {
	if meta.URL == "" {
		meta.URL = page
	}
	a.result.PageMetadata[meta.URL] = meta
}

// Stats returns a copy of the counters.
func (a *Aggregator) Stats() model.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result.Stats
}

// Snapshot returns a deep copy of the result as it stands.
func (a *Aggregator) Snapshot() *model.ScrapeResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneResult(a.result)
}

// Wait blocks until every scheduled gate call has returned.
func (a *Aggregator) Wait() {
	a.pending.Wait()
}

// Finish waits for the gate calls, seals the result and returns it.
// Emails that never got an analysis are given an error-flagged one. The
// aggregator accepts no new emails afterwards.
func (a *Aggregator) Finish(reason model.StopReason) *model.ScrapeResult {
	a.mu.Lock()
	a.finished = true
	a.mu.Unlock()

	a.pending.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for _, rec := range a.result.Emails {
		if rec.Analysis == nil {
			rec.Analysis = &model.EmailAnalysis{AnalyzedAt: now, Error: "analysis missing"}
		}
	}
	for _, urls := range a.result.SocialProfiles {
		sort.Strings(urls)
	}
	for _, names := range a.result.Technologies {
		sort.Strings(names)
	}
	a.result.StopReason = reason
	a.result.FinishedAt = now
	return a.result
}

// progressLocked builds a progress event. The caller holds mu.
func (a *Aggregator) progressLocked(ev Event) Progress {
	p := Progress{
		Event:     ev,
		PagesDone: a.result.Stats.PagesAttempted,
		Stats:     a.result.Stats,
	}
	if a.estimate != nil {
		p.PagesTotalEstimate = a.estimate()
	}
	return p
}

func (a *Aggregator) report(p Progress) {
	if a.reporter != nil {
		a.reporter.report(p)
	}
}

func addToSet(sets map[string]map[string]struct{}, key, value string) bool {
	set, ok := sets[key]
	if !ok {
		set = make(map[string]struct{})
		sets[key] = set
	}
	if _, dup := set[value]; dup {
		return false
	}
	set[value] = struct{}{}
	return true
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cloneResult(r *model.ScrapeResult) *model.ScrapeResult {
	c := *r
	c.Emails = make(map[string]*model.EmailRecord, len(r.Emails))
	for k, v := range r.Emails {
		rec := *v
		if v.Analysis != nil {
			analysis := *v.Analysis
			rec.Analysis = &analysis
		}
		c.Emails[k] = &rec
	}
	c.People = slices.Clone(r.People)
	c.Phones = slices.Clone(r.Phones)
	c.Images = slices.Clone(r.Images)
	c.Pages = slices.Clone(r.Pages)
	c.SocialProfiles = make(map[string][]string, len(r.SocialProfiles))
	for k, v := range r.SocialProfiles {
		c.SocialProfiles[k] = slices.Clone(v)
	}
	c.Technologies = make(map[string][]string, len(r.Technologies))
	for k, v := range r.Technologies {
		c.Technologies[k] = slices.Clone(v)
	}
	c.PageMetadata = maps.Clone(r.PageMetadata)
	return &c
}
