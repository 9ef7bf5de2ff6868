package crawler

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

// Fetch defaults.
const (
	DefaultUserAgent   = "Mozilla/5.0 (compatible; prospectcrawl/1.0; +https://github.com/loupix57/prospectlab-sub002)"
	DefaultTimeout     = 15 * time.Second
	DefaultMaxBodySize = 5 * 1024 * 1024
)

// Response is one fetched page. The body is already decoded to UTF-8
// for HTML responses.
type Response struct {
	URL         *url.URL
	FinalURL    *url.URL
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        []byte
	Duration    time.Duration
	Attempts    int
}

// Fetcher retrieves one URL.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (*Response, error)
}

// HTTPFetcher is the default Fetcher. It decodes gzip, deflate and
// brotli bodies, truncates them to the body limit and converts HTML to
// UTF-8.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	timeout     time.Duration
	maxBodySize int64
	logger      *slog.Logger

	clientCfg clientConfig
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBodySize sets the maximum number of body bytes read.
// Larger bodies are truncated.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithProxy routes requests through a socks5:// or http:// proxy.
func WithProxy(proxyURL string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.clientCfg.proxyURL = proxyURL
	}
}

// WithSiteCookie adds a raw cookie string to every request.
func WithSiteCookie(cookie string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.clientCfg.cookie = cookie
	}
}

// WithSiteHeaders adds custom headers to every request.
func WithSiteHeaders(headers map[string]string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.clientCfg.headers = headers
	}
}

// WithHTTPClient replaces the HTTP client. Proxy, cookie and header
// options are then ignored.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// NewHTTPFetcher creates an HTTPFetcher. It fails only on an invalid
// proxy URL.
func NewHTTPFetcher(opts ...FetcherOption) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		userAgent:   DefaultUserAgent,
		timeout:     DefaultTimeout,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.client == nil {
		client, err := newHTTPClient(f.clientCfg)
		if err != nil {
			return nil, err
		}
		f.client = client
	}
	return f, nil
}

// Client returns the underlying HTTP client, for robots.txt fetches.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Fetch downloads u in a single attempt bounded by the fetch timeout.
// A non-2xx status is not an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (*Response, error) {
	if u == nil {
		return nil, errors.New("nil url")
	}
	start := time.Now()
	resp, err := f.fetchOnce(ctx, u)
	if err != nil {
		return nil, err
	}
	resp.Duration = time.Since(start)
	resp.Attempts = 1
	return resp, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, u *url.URL) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}

	finalURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &Response{
		URL:         u,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		Header:      resp.Header.Clone(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// readBody decodes the Content-Encoding, truncates to the body limit and
// converts HTML to UTF-8.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize))
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContentType(contentType) || len(body) == 0 {
		return body, nil
	}
	utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		// Unknown charset: keep the raw bytes.
		return body, nil
	}
	decoded, err := io.ReadAll(utf8Reader)
	if err != nil {
		return body, nil
	}
	return decoded, nil
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
