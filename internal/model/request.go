package model

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Default crawl request values.
// They match the limits the prospecting workers use when the caller does
// not override them.
const (
	// DefaultMaxDepth explores the home page, its direct links, and one more hop.
	// Contact and team pages are almost always within two hops of the root.
	DefaultMaxDepth = 2

	// DefaultMaxWorkers is the number of concurrent fetch/parse workers.
	DefaultMaxWorkers = 5

	// DefaultMaxPages caps the number of pages admitted to the frontier.
	DefaultMaxPages = 50

	// DefaultMaxTimeSeconds is the wall-clock budget of one crawl.
	DefaultMaxTimeSeconds = 300

	// DefaultDelaySeconds is the politeness delay before each fetch.
	DefaultDelaySeconds = 0.5
)

// CrawlRequest describes one crawl: the site to explore and the budgets
// that bound the exploration. A request is immutable once the crawl starts.
type CrawlRequest struct {
	// RootURL is the absolute http(s) URL the crawl starts from.
	RootURL string `json:"root_url"`

	// MaxDepth is the maximum hop count from the root.
	// Depth 0 means only the root page is fetched.
	MaxDepth int `json:"max_depth"`

	// MaxWorkers is the size of the fetch/parse worker pool.
	MaxWorkers int `json:"max_workers"`

	// MaxPages is the maximum number of distinct pages admitted for fetching.
	MaxPages int `json:"max_pages"`

	// MaxTimeSeconds is the wall-clock budget. Zero means the deadline has
	// already passed when the crawl starts.
	MaxTimeSeconds float64 `json:"max_time_seconds"`

	// DelaySeconds is the politeness delay applied before every fetch.
	DelaySeconds float64 `json:"delay_seconds"`

	// OwnerID optionally identifies the entity (company, lead, job) that
	// owns the crawl. It is copied onto the result untouched.
	OwnerID string `json:"owner_id,omitempty"`

	// FetchRetries is the number of extra attempts for a page whose fetch
	// failed with a transport error or a 5xx status. Zero disables retries.
	FetchRetries int `json:"fetch_retries,omitempty"`

	// GateRetries is the number of extra attempts for an email whose
	// quality analysis failed. Zero disables retries.
	GateRetries int `json:"gate_retries,omitempty"`
}

// NewCrawlRequest returns a request for rootURL with the default budgets.
func NewCrawlRequest(rootURL string) CrawlRequest {
	return CrawlRequest{
		RootURL:        rootURL,
		MaxDepth:       DefaultMaxDepth,
		MaxWorkers:     DefaultMaxWorkers,
		MaxPages:       DefaultMaxPages,
		MaxTimeSeconds: DefaultMaxTimeSeconds,
		DelaySeconds:   DefaultDelaySeconds,
	}
}

// Validate checks the request before any work starts.
// It is the only hard failure of a crawl.
func (r CrawlRequest) Validate() error {
	if _, err := r.Root(); err != nil {
		return err
	}
	if r.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if r.MaxWorkers < 1 {
		return ErrInvalidMaxWorkers
	}
	if r.MaxPages < 1 {
		return ErrInvalidMaxPages
	}
	if r.MaxTimeSeconds < 0 {
		return ErrInvalidMaxTime
	}
	if r.DelaySeconds < 0 {
		return ErrInvalidDelay
	}
	if r.FetchRetries < 0 || r.GateRetries < 0 {
		return ErrInvalidRetries
	}
	return nil
}

// Root parses RootURL. A bare host such as "example.com" is accepted and
// treated as https.
func (r CrawlRequest) Root() (*url.URL, error) {
	raw := strings.TrimSpace(r.RootURL)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidRootURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRootURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRootURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidRootURL, r.RootURL)
	}
	u.Scheme = scheme
	return u, nil
}

// MaxTime returns the wall-clock budget as a duration.
func (r CrawlRequest) MaxTime() time.Duration {
	return secondsToDuration(r.MaxTimeSeconds)
}

// Delay returns the politeness delay as a duration.
func (r CrawlRequest) Delay() time.Duration {
	return secondsToDuration(r.DelaySeconds)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// FrontierEntry is one pending unit of work: a URL and the hop count at
// which it was discovered. Entries are consumed at most once.
type FrontierEntry struct {
	// URL is the normalized absolute URL to fetch.
	URL string `json:"url"`

	// Depth is the hop count from the root.
	Depth int `json:"depth"`

	// From is the page the URL was discovered on. Empty for the root.
	From string `json:"from,omitempty"`
}
