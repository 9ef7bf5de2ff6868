// Package robots evaluates robots.txt rules for the crawler.
package robots

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long fetched rules are reused.
const DefaultTTL = 30 * time.Minute

// Agent answers whether a URL may be fetched according to the robots.txt
// of its host. Rules are cached per host and concurrent first fetches of
// the same host share one request. Any failure to obtain rules allows
// the URL.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

type cacheEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// Option configures an Agent.
type Option func(*Agent)

// WithTTL sets how long rules are cached.
func WithTTL(ttl time.Duration) Option {
	return func(a *Agent) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithTimeout bounds a robots.txt fetch.
func WithTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// NewAgent creates an Agent fetching with client on behalf of userAgent.
func NewAgent(client *http.Client, userAgent string, opts ...Option) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	a := &Agent{
		client:    client,
		userAgent: userAgent,
		ttl:       DefaultTTL,
		timeout:   10 * time.Second,
		cache:     make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Allowed reports whether target is permitted for the agent's user agent.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}

	rules, err := a.rules(ctx, target)
	if err != nil {
		a.logger.Debug("robots.txt unavailable, allowing", "host", target.Host, "error", err)
		return true
	}

	group := rules.FindGroup(a.userAgent)
	if group == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return group.Test(path)
}

// CrawlDelay returns the Crawl-delay declared for the agent on the host
// of target, or zero.
func (a *Agent) CrawlDelay(ctx context.Context, target *url.URL) time.Duration {
	rules, err := a.rules(ctx, target)
	if err != nil {
		return 0
	}
	if group := rules.FindGroup(a.userAgent); group != nil {
		return group.CrawlDelay
	}
	return 0
}

func (a *Agent) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(target.Scheme + "://" + target.Host)

	a.mu.RLock()
	entry, ok := a.cache[key]
	a.mu.RUnlock()
	if ok && time.Since(entry.fetched) < a.ttl {
		return entry.rules, nil
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		a.mu.RLock()
		entry, ok := a.cache[key]
		a.mu.RUnlock()
		if ok && time.Since(entry.fetched) < a.ttl {
			return entry.rules, nil
		}

		data, err := a.fetch(ctx, key+"/robots.txt")
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.cache[key] = cacheEntry{fetched: time.Now(), rules: data}
		a.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*robotstxt.RobotsData), nil //nolint:forcetypeassert
}

func (a *Agent) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	// robotstxt maps 4xx to allow-all and 5xx to disallow-all.
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// Purge evicts the cached rules of a scheme://host origin.
func (a *Agent) Purge(origin string) {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return
	}
	a.mu.Lock()
	delete(a.cache, origin)
	a.mu.Unlock()
}
