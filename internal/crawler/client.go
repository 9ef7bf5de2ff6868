package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// maxRedirects bounds redirect chains.
const maxRedirects = 10

// ErrInvalidProxy is returned for a proxy URL that is neither socks5 nor http(s).
var ErrInvalidProxy = errors.New("invalid proxy url")

// clientConfig describes the HTTP client shared by all workers of a crawl.
type clientConfig struct {
	proxyURL string
	cookie   string
	headers  map[string]string
}

// newHTTPClient builds the crawl client. Site cookies and headers are
// injected by the transport so that redirects carry them too.
//
// The client has no overall timeout: the fetcher bounds every attempt
// with its own context.
func newHTTPClient(cfg clientConfig) (*http.Client, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
		// Content-Encoding is decoded by the fetcher, brotli included.
		DisableCompression: true,
	}

	if raw := strings.TrimSpace(cfg.proxyURL); raw != "" {
		if err := applyProxy(transport, raw); err != nil {
			return nil, err
		}
	}

	// cookiejar.New only fails with invalid options.
	jar, _ := cookiejar.New(nil) //nolint:errcheck

	var rt http.RoundTripper = transport
	if cfg.cookie != "" || len(cfg.headers) > 0 {
		rt = &headerInjectingTransport{
			base:    transport,
			cookie:  cfg.cookie,
			headers: cfg.headers,
		}
	}

	return &http.Client{
		Transport: rt,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			if g := redirectGuardFrom(req.Context()); g != nil {
				return g.check(req.URL)
			}
			return nil
		},
	}, nil
}

// applyProxy routes the transport through a SOCKS5 or HTTP proxy.
func applyProxy(transport *http.Transport, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProxy, err)
	}
	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
		return nil
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProxy, err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxy, u.Scheme)
	}
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// custom headers and cookies into every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	cookie  string
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
