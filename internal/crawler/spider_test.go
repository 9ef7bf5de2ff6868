package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loupix57/prospectlab-sub002/internal/extract"
	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// testSite serves a fixed set of HTML pages and counts hits per path.
type testSite struct {
	server *httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newTestSite(t *testing.T, pages map[string]string, handlers map[string]http.HandlerFunc) *testSite {
	t.Helper()
	site := &testSite{hits: make(map[string]int)}

	mux := http.NewServeMux()
	for path, body := range pages {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				http.NotFound(w, r)
				return
			}
			site.hit(r.URL.Path)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body)) //nolint:errcheck
		})
	}
	for path, h := range handlers {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			site.hit(r.URL.Path)
			h(w, r)
		})
	}

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

func (s *testSite) hit(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[path]++
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *testSite) url(path string) string {
	return s.server.URL + path
}

func testRequest(root string) model.CrawlRequest {
	req := model.NewCrawlRequest(root)
	req.DelaySeconds = 0
	req.MaxTimeSeconds = 10
	req.MaxWorkers = 4
	return req
}

func newTestSpider(t *testing.T, g *fakeGate, opts ...SpiderOption) *Spider {
	t.Helper()
	f, err := NewHTTPFetcher(WithTimeout(2*time.Second), WithFetcherLogger(discardLogger()))
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	base := []SpiderOption{WithFetcher(f), WithLogger(discardLogger())}
	if g != nil {
		base = append(base, WithGate(g))
	}
	return NewSpider(append(base, opts...)...)
}

func crawl(t *testing.T, s *Spider, req model.CrawlRequest) *model.ScrapeResult {
	t.Helper()
	result, err := s.Crawl(context.Background(), req)
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	return result
}

// TestSpiderDepthLimit tests that pages beyond the max depth are never
// fetched while the findings of shallower pages are kept.
func TestSpiderDepthLimit(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, map[string]string{
		"/":  `<html><body><a href="/b">B</a> <a href="/c">C</a></body></html>`,
		"/b": `<html><body><p>Write to jane@acme.fr or call +33 1 23 45 67 89</p></body></html>`,
		"/c": `<html><body><a href="/d">D</a></body></html>`,
		"/d": `<html><body>deep@acme.fr</body></html>`,
	}, nil)

	req := testRequest(site.url("/"))
	req.MaxDepth = 1
	result := crawl(t, newTestSpider(t, &fakeGate{}), req)

	if site.hitCount("/d") != 0 {
		t.Error("expected /d not to be fetched beyond max depth")
	}
	if result.Stats.PagesAttempted != 3 {
		t.Errorf("expected 3 pages attempted, got %d", result.Stats.PagesAttempted)
	}
	rec, ok := result.Emails["jane@acme.fr"]
	if !ok {
		t.Fatalf("expected jane@acme.fr, got %v", result.EmailAddresses())
	}
	if rec.SourcePage != site.url("/b") {
		t.Errorf("expected source page %q, got %q", site.url("/b"), rec.SourcePage)
	}
	if _, ok := result.Emails["deep@acme.fr"]; ok {
		t.Error("expected no email from /d")
	}
	if len(result.Phones) != 1 || result.Phones[0].Digits != "33123456789" {
		t.Errorf("expected the phone from /b, got %+v", result.Phones)
	}
	if result.StopReason != model.StopDrained {
		t.Errorf("expected stop reason %q, got %q", model.StopDrained, result.StopReason)
	}
}

// TestSpiderPageBudget tests that no more than MaxPages pages are fetched.
func TestSpiderPageBudget(t *testing.T) {
	t.Parallel()

	var links strings.Builder
	pages := map[string]string{}
	for i := range 20 {
		path := fmt.Sprintf("/p%d", i)
		fmt.Fprintf(&links, `<a href="%s">%d</a>`, path, i)
		pages[path] = `<html><body>page</body></html>`
	}
	pages["/"] = "<html><body>" + links.String() + "</body></html>"
	site := newTestSite(t, pages, nil)

	req := testRequest(site.url("/"))
	req.MaxPages = 5
	result := crawl(t, newTestSpider(t, nil), req)

	if result.Stats.PagesAttempted > 5 {
		t.Errorf("expected at most 5 pages, got %d", result.Stats.PagesAttempted)
	}
	if len(result.Pages) != result.Stats.PagesAttempted {
		t.Errorf("expected %d page records, got %d", result.Stats.PagesAttempted, len(result.Pages))
	}
	if result.StopReason != model.StopPageBudget {
		t.Errorf("expected stop reason %q, got %q", model.StopPageBudget, result.StopReason)
	}
}

// TestSpiderNoDuplicateFetches tests that every URL is fetched once even
// when pages link to each other.
func TestSpiderNoDuplicateFetches(t *testing.T) {
	t.Parallel()

	nav := `<a href="/">Home</a> <a href="/about">About</a> <a href="/team">Team</a>
		<a href="/about#history">History</a> <a href="/team/">Team slash</a>`
	site := newTestSite(t, map[string]string{
		"/":      "<html><body>" + nav + "</body></html>",
		"/about": "<html><body>" + nav + "</body></html>",
		"/team":  "<html><body>" + nav + "</body></html>",
		"/team/": "<html><body>" + nav + "</body></html>",
	}, nil)

	req := testRequest(site.url("/"))
	req.MaxWorkers = 8
	result := crawl(t, newTestSpider(t, nil), req)

	for _, path := range []string{"/", "/about", "/team", "/team/"} {
		if got := site.hitCount(path); got != 1 {
			t.Errorf("expected %s to be fetched once, got %d", path, got)
		}
	}
	if result.Stats.PagesAttempted != 4 {
		t.Errorf("expected 4 pages attempted, got %d", result.Stats.PagesAttempted)
	}
}

// TestSpiderFetchTimeout tests that a slow page fails alone.
func TestSpiderFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	site := newTestSite(t, map[string]string{
		"/":  `<html><body><a href="/b">B</a> <a href="/c">C</a></body></html>`,
		"/c": `<html><body>sales@acme.fr</body></html>`,
	}, map[string]http.HandlerFunc{
		"/b": func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
	})
	t.Cleanup(func() { close(release) })

	f, err := NewHTTPFetcher(WithTimeout(100*time.Millisecond), WithFetcherLogger(discardLogger()))
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}
	s := NewSpider(WithFetcher(f), WithGate(&fakeGate{}), WithLogger(discardLogger()))
	result := crawl(t, s, testRequest(site.url("/")))

	if result.Stats.PagesFailed != 1 || result.Stats.PagesSucceeded != 2 {
		t.Errorf("unexpected page stats %+v", result.Stats)
	}
	var failed *model.PageRecord
	for i := range result.Pages {
		if result.Pages[i].URL == site.url("/b") {
			failed = &result.Pages[i]
		}
	}
	if failed == nil || failed.Error == "" {
		t.Errorf("expected /b to be recorded as failed, got %+v", failed)
	}
	if _, ok := result.Emails["sales@acme.fr"]; !ok {
		t.Error("expected the email from /c")
	}
}

// TestSpiderZeroMaxTime tests that an already expired deadline stops the
// crawl promptly without error.
func TestSpiderZeroMaxTime(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, map[string]string{
		"/": `<html><body>contact@acme.fr</body></html>`,
	}, nil)

	req := testRequest(site.url("/"))
	req.MaxTimeSeconds = 0

	start := time.Now()
	result := crawl(t, newTestSpider(t, &fakeGate{}), req)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected prompt termination, took %v", elapsed)
	}
	if result.StopReason != model.StopDeadline {
		t.Errorf("expected stop reason %q, got %q", model.StopDeadline, result.StopReason)
	}
	if result.Stats.PagesAttempted != 0 {
		t.Errorf("expected no pages, got %d", result.Stats.PagesAttempted)
	}
}

// TestSpiderDeadlineDrains tests that the deadline lets in-flight pages
// finish and stops new work.
func TestSpiderDeadlineDrains(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, map[string]string{
		"/": `<html><body><a href="/slow">slow</a> <a href="/next">next</a></body></html>`,
	}, map[string]http.HandlerFunc{
		"/slow": func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(400 * time.Millisecond)
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body>late@acme.fr <a href="/after">after</a></body></html>`)) //nolint:errcheck
		},
		"/next": func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(400 * time.Millisecond)
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body>next</body></html>`)) //nolint:errcheck
		},
	})

	req := testRequest(site.url("/"))
	req.MaxTimeSeconds = 0.2
	result := crawl(t, newTestSpider(t, &fakeGate{}), req)

	if result.StopReason != model.StopDeadline {
		t.Errorf("expected stop reason %q, got %q", model.StopDeadline, result.StopReason)
	}
	if site.hitCount("/after") != 0 {
		t.Error("expected no new page to start after the deadline")
	}
	rec, ok := result.Emails["late@acme.fr"]
	if !ok {
		t.Fatal("expected the in-flight page to complete")
	}
	if rec.Analysis == nil {
		t.Error("expected the late email to be analyzed")
	}
}

// TestSpiderEmailsOncePerCrawl tests email deduplication across sources
// and pages, and that every email carries an analysis.
func TestSpiderEmailsOncePerCrawl(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<p>Contact: contact@acme.fr</p>
			<a href="mailto:Contact@Acme.fr?subject=Hello">Write us</a>
			<a href="/team">Team</a>
		</body></html>`,
		"/team": `<html><body>
			<p>contact@acme.fr</p>
			<a href="mailto:jane.doe@acme.fr">Jane</a>
		</body></html>`,
	}, nil)

	g := &fakeGate{}
	result := crawl(t, newTestSpider(t, g), testRequest(site.url("/")))

	if len(result.Emails) != 2 {
		t.Fatalf("expected 2 emails, got %v", result.EmailAddresses())
	}
	if got := g.calls.Load(); got != 2 {
		t.Errorf("expected 2 gate calls, got %d", got)
	}
	for addr, rec := range result.Emails {
		if rec.Analysis == nil {
			t.Errorf("expected %s to have an analysis", addr)
		}
	}
}

// TestSpiderFailingGate tests that gate errors never drop emails.
func TestSpiderFailingGate(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, map[string]string{
		"/": `<html><body>sales@acme.fr</body></html>`,
	}, nil)

	result := crawl(t, newTestSpider(t, &fakeGate{fail: 100}), testRequest(site.url("/")))

	rec, ok := result.Emails["sales@acme.fr"]
	if !ok {
		t.Fatal("expected the email to be recorded")
	}
	if rec.Analysis == nil || !rec.Analysis.Failed() {
		t.Errorf("expected an error-flagged analysis, got %+v", rec.Analysis)
	}
	if result.Stats.GateErrors != 1 {
		t.Errorf("expected 1 gate error, got %d", result.Stats.GateErrors)
	}
}

// TestSpiderCancellation tests that cancelling the context drains the crawl.
func TestSpiderCancellation(t *testing.T) {
	t.Parallel()

	var links strings.Builder
	for i := range 30 {
		fmt.Fprintf(&links, `<a href="/p%d">%d</a>`, i, i)
	}
	slowSite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>" + links.String() + "</body></html>")) //nolint:errcheck
			return
		}
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>page</body></html>")) //nolint:errcheck
	}))
	defer slowSite.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestSpider(t, nil, WithProgress(FuncReporter(func(p Progress) {
		if p.Event == EventPage && p.PagesDone >= 2 {
			cancel()
		}
	})))

	req := testRequest(slowSite.URL + "/")
	req.MaxPages = 100
	req.MaxWorkers = 2

	done := make(chan *model.ScrapeResult, 1)
	go func() {
		result, err := s.Crawl(ctx, req)
		if err != nil {
			t.Errorf("crawl failed: %v", err)
		}
		done <- result
	}()

	select {
	case result := <-done:
		if result.StopReason != model.StopCancelled {
			t.Errorf("expected stop reason %q, got %q", model.StopCancelled, result.StopReason)
		}
		if result.Stats.PagesAttempted >= 31 {
			t.Errorf("expected a partial crawl, got %d pages", result.Stats.PagesAttempted)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not stop after cancellation")
	}
}

// TestSpiderExtractorPanic tests that a panicking extractor loses neither
// the page nor the other categories.
func TestSpiderExtractorPanic(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, map[string]string{
		"/": `<html><head><title>Acme</title></head><body>hello@acme.fr</body></html>`,
	}, nil)

	registry := extract.NewRegistry(extract.WithRegistryLogger(discardLogger()))
	registry.Register(panicExtractor{})
	registry.Register(extract.NewEmailExtractor())
	registry.Register(extract.NewMetadataExtractor())

	result := crawl(t, newTestSpider(t, &fakeGate{}, WithRegistry(registry)), testRequest(site.url("/")))

	if _, ok := result.Emails["hello@acme.fr"]; !ok {
		t.Error("expected the email despite the panicking extractor")
	}
	if result.PageMetadata[site.url("/")].Title != "Acme" {
		t.Errorf("expected page metadata, got %+v", result.PageMetadata)
	}
	if result.Stats.ExtractorFails != 1 {
		t.Errorf("expected 1 extractor failure, got %d", result.Stats.ExtractorFails)
	}
	if result.Stats.PagesSucceeded != 1 {
		t.Errorf("expected the page to succeed, got %+v", result.Stats)
	}
}

type panicExtractor struct{}

func (panicExtractor) Name() string { return "panic" }

func (panicExtractor) Extract(*extract.Document) (extract.Findings, error) {
	panic("extractor bug")
}

// TestSpiderResponses tests how statuses and content types are recorded.
func TestSpiderResponses(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, map[string]string{
		"/": `<html><body><a href="/missing">x</a> <a href="/feed">feed</a></body></html>`,
	}, map[string]http.HandlerFunc{
		"/missing": http.NotFound,
		"/feed": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"email":"json@acme.fr"}`)) //nolint:errcheck
		},
	})

	result := crawl(t, newTestSpider(t, &fakeGate{}), testRequest(site.url("/")))

	if result.Stats.PagesSucceeded != 2 || result.Stats.PagesFailed != 1 {
		t.Errorf("unexpected page stats %+v", result.Stats)
	}
	if _, ok := result.Emails["json@acme.fr"]; ok {
		t.Error("expected no extraction from non-HTML responses")
	}
	for _, p := range result.Pages {
		if p.URL == site.url("/missing") && p.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 for /missing, got %d", p.StatusCode)
		}
		if p.URL == site.url("/") && len(p.Links) != 2 {
			t.Errorf("expected 2 links on the root, got %v", p.Links)
		}
	}
}

// TestSpiderFetchRetries tests that server errors are retried.
func TestSpiderFetchRetries(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	site := newTestSite(t, nil, map[string]http.HandlerFunc{
		"/": func(w http.ResponseWriter, _ *http.Request) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body>ok@acme.fr</body></html>`)) //nolint:errcheck
		},
	})

	req := testRequest(site.url("/"))
	req.FetchRetries = 1
	result := crawl(t, newTestSpider(t, &fakeGate{}), req)

	if result.Stats.PagesSucceeded != 1 {
		t.Fatalf("expected the retried page to succeed, got %+v", result.Stats)
	}
	if result.Pages[0].Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Pages[0].Attempts)
	}
}

type denyRobots struct {
	prefix string
}

func (d denyRobots) Allowed(_ context.Context, u *url.URL) bool {
	return !strings.HasPrefix(u.Path, d.prefix)
}

// TestSpiderRobots tests that disallowed URLs are skipped.
func TestSpiderRobots(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, map[string]string{
		"/":          `<html><body><a href="/private/x">p</a> <a href="/public">q</a></body></html>`,
		"/private/x": `<html><body>secret@acme.fr</body></html>`,
		"/public":    `<html><body>public</body></html>`,
	}, nil)

	result := crawl(t, newTestSpider(t, nil, WithRobots(denyRobots{prefix: "/private"})), testRequest(site.url("/")))

	if site.hitCount("/private/x") != 0 {
		t.Error("expected /private/x not to be fetched")
	}
	if site.hitCount("/public") != 1 {
		t.Error("expected /public to be fetched")
	}
	if _, ok := result.Emails["secret@acme.fr"]; ok {
		t.Error("expected no email from a disallowed page")
	}
}

// TestSpiderProgress tests that progress events are delivered.
func TestSpiderProgress(t *testing.T) {
	t.Parallel()

	site := newTestSite(t, map[string]string{
		"/":  `<html><body>a@acme.fr <a href="/b">b</a></body></html>`,
		"/b": `<html><body>b@acme.fr</body></html>`,
	}, nil)

	var (
		mu     sync.Mutex
		events []Progress
	)
	reporter := FuncReporter(func(p Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	})

	result := crawl(t, newTestSpider(t, &fakeGate{}, WithProgress(reporter)), testRequest(site.url("/")))

	mu.Lock()
	defer mu.Unlock()

	counts := map[Event]int{}
	for _, e := range events {
		counts[e.Event]++
	}
	if counts[EventPage] != 2 || counts[EventEmail] != 2 || counts[EventDone] != 1 {
		t.Errorf("unexpected event counts %v", counts)
	}
	last := events[len(events)-1]
	if last.Event != EventDone || last.Stats.PagesAttempted != result.Stats.PagesAttempted {
		t.Errorf("expected final done event matching the result, got %+v", last)
	}
}

// TestSpiderInvalidRequest tests the only hard failure of a crawl.
func TestSpiderInvalidRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  model.CrawlRequest
		want error
	}{
		{"empty root", model.CrawlRequest{MaxWorkers: 1, MaxPages: 1}, model.ErrInvalidRootURL},
		{"ftp root", model.CrawlRequest{RootURL: "ftp://acme.fr", MaxWorkers: 1, MaxPages: 1}, model.ErrInvalidRootURL},
		{"no workers", model.CrawlRequest{RootURL: "https://acme.fr", MaxPages: 1}, model.ErrInvalidMaxWorkers},
	}

	s := NewSpider(WithLogger(discardLogger()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := s.Crawl(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if result != nil {
				t.Error("expected no result for an invalid request")
			}
		})
	}
}

func pageByURL(result *model.ScrapeResult, u string) (model.PageRecord, bool) {
	for _, p := range result.Pages {
		if p.URL == u {
			return p, true
		}
	}
	return model.PageRecord{}, false
}

// TestSpiderRedirects tests that redirects never refetch a visited page
// and never leave the site.
func TestSpiderRedirects(t *testing.T) {
	t.Parallel()

	t.Run("redirect to a visited page is not followed", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t, map[string]string{
			"/":      `<html><body><a href="/about">About</a> <a href="/old">Old</a></body></html>`,
			"/about": `<html><head><title>About</title></head><body>about@acme.fr</body></html>`,
		}, map[string]http.HandlerFunc{
			"/old": func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/about", http.StatusMovedPermanently)
			},
		})

		req := testRequest(site.url("/"))
		req.MaxWorkers = 1
		result := crawl(t, newTestSpider(t, &fakeGate{}), req)

		if got := site.hitCount("/about"); got != 1 {
			t.Errorf("expected /about to be fetched once, got %d", got)
		}
		old, ok := pageByURL(result, site.url("/old"))
		if !ok {
			t.Fatal("expected a page record for /old")
		}
		if old.Error != ErrRedirectVisited.Error() {
			t.Errorf("expected %q, got %q", ErrRedirectVisited.Error(), old.Error)
		}
		if old.FinalURL != site.url("/about") {
			t.Errorf("expected the redirect target %s, got %s", site.url("/about"), old.FinalURL)
		}
		if meta, ok := result.PageMetadata[site.url("/about")]; !ok || meta.Title != "About" {
			t.Errorf("expected the /about metadata to be kept, got %+v", meta)
		}
	})

	t.Run("redirect to a new page of the site is followed", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t, map[string]string{
			"/":     `<html><body><a href="/equipe">Team</a></body></html>`,
			"/team": `<html><body><a href="/team">Team</a> team@acme.fr</body></html>`,
		}, map[string]http.HandlerFunc{
			"/equipe": func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/team", http.StatusFound)
			},
		})

		result := crawl(t, newTestSpider(t, &fakeGate{}), testRequest(site.url("/")))

		if _, ok := result.Emails["team@acme.fr"]; !ok {
			t.Error("expected the email of the redirect target")
		}
		if got := site.hitCount("/team"); got != 1 {
			t.Errorf("expected /team to be fetched once, got %d", got)
		}
	})

	t.Run("redirect off the site is not followed", func(t *testing.T) {
		t.Parallel()

		const offSite = "http://jobs.thirdparty.example/jobs"
		site := newTestSite(t, map[string]string{
			"/": `<html><body><a href="/careers">Careers</a></body></html>`,
		}, map[string]http.HandlerFunc{
			"/careers": func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, offSite, http.StatusFound)
			},
		})

		result := crawl(t, newTestSpider(t, &fakeGate{}), testRequest(site.url("/")))

		careers, ok := pageByURL(result, site.url("/careers"))
		if !ok {
			t.Fatal("expected a page record for /careers")
		}
		if careers.Error != ErrRedirectOutOfScope.Error() {
			t.Errorf("expected %q, got %q", ErrRedirectOutOfScope.Error(), careers.Error)
		}
		if careers.FinalURL != offSite {
			t.Errorf("expected the redirect target %s, got %s", offSite, careers.FinalURL)
		}
		if _, ok := result.PageMetadata[offSite]; ok {
			t.Error("expected no metadata for the off-site page")
		}
	})
}

// offSiteFetcher answers every request with an HTML page served from
// another site, as a client following redirects on its own would.
type offSiteFetcher struct{}

func (offSiteFetcher) Fetch(_ context.Context, u *url.URL) (*Response, error) {
	final, _ := url.Parse("https://careers.thirdparty.example/jobs") //nolint:errcheck
	return &Response{
		URL:         u,
		FinalURL:    final,
		StatusCode:  http.StatusOK,
		Header:      http.Header{"Content-Type": []string{"text/html"}},
		ContentType: "text/html",
		Body:        []byte(`<html><body>hr@thirdparty.example</body></html>`),
		Attempts:    1,
	}, nil
}

// TestSpiderOffSiteFinalURL tests that a page whose final URL left the
// site is recorded without extraction, whatever the fetcher.
func TestSpiderOffSiteFinalURL(t *testing.T) {
	t.Parallel()

	s := NewSpider(WithFetcher(offSiteFetcher{}), WithGate(&fakeGate{}), WithLogger(discardLogger()))
	result := crawl(t, s, testRequest("https://acme.fr/"))

	if len(result.Emails) != 0 {
		t.Errorf("expected no emails, got %v", result.Emails)
	}
	if len(result.Pages) != 1 || result.Pages[0].Error != ErrRedirectOutOfScope.Error() {
		t.Errorf("expected one out of scope page, got %+v", result.Pages)
	}
}

// countingFetcher serves a root page linking to n children and records
// the peak number of concurrent fetches.
type countingFetcher struct {
	children int
	panicOn  string

	mu      sync.Mutex
	running int
	peak    int
}

func (f *countingFetcher) Fetch(_ context.Context, u *url.URL) (*Response, error) {
	f.mu.Lock()
	f.running++
	f.peak = max(f.peak, f.running)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if u.Path == f.panicOn {
		panic("fetcher bug")
	}
	time.Sleep(10 * time.Millisecond)

	var body strings.Builder
	body.WriteString("<html><body>")
	if u.Path == "/" {
		for i := range f.children {
			fmt.Fprintf(&body, `<a href="/p%d">p</a>`, i)
		}
	}
	body.WriteString("</body></html>")
	return &Response{
		URL:         u,
		FinalURL:    u,
		StatusCode:  http.StatusOK,
		ContentType: "text/html",
		Body:        []byte(body.String()),
		Attempts:    1,
	}, nil
}

// TestSpiderWorkerLimit tests that no more than MaxWorkers pages are
// fetched at once.
func TestSpiderWorkerLimit(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{children: 8}
	req := testRequest("https://acme.fr/")
	req.MaxWorkers = 2
	result := crawl(t, NewSpider(WithFetcher(f), WithLogger(discardLogger())), req)

	if result.Stats.PagesAttempted != 9 {
		t.Errorf("expected 9 pages, got %d", result.Stats.PagesAttempted)
	}
	if f.peak > 2 {
		t.Errorf("expected at most 2 concurrent fetches, got %d", f.peak)
	}
}

// TestSpiderWorkerPanic tests that a panicking page does not stop the crawl.
func TestSpiderWorkerPanic(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{children: 3, panicOn: "/p1"}
	result := crawl(t, NewSpider(WithFetcher(f), WithLogger(discardLogger())), testRequest("https://acme.fr/"))

	if result.StopReason != model.StopDrained {
		t.Errorf("expected %s, got %s", model.StopDrained, result.StopReason)
	}
	if result.Stats.PagesAttempted != 3 {
		t.Errorf("expected 3 recorded pages, got %d", result.Stats.PagesAttempted)
	}
}
