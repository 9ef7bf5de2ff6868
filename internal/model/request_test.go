package model

import (
	"errors"
	"testing"
	"time"
)

// TestCrawlRequestValidate tests request validation.
// Each case breaks exactly one rule of an otherwise valid request.
func TestCrawlRequestValidate(t *testing.T) {
	t.Parallel()

	valid := func() CrawlRequest {
		return NewCrawlRequest("https://example.com")
	}

	t.Run("default request is valid", func(t *testing.T) {
		t.Parallel()
		if err := valid().Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(r *CrawlRequest)
		wantErr error
	}{
		{
			name:    "empty root URL",
			mutate:  func(r *CrawlRequest) { r.RootURL = "" },
			wantErr: ErrInvalidRootURL,
		},
		{
			name:    "unparseable root URL",
			mutate:  func(r *CrawlRequest) { r.RootURL = "http://exa mple.com/%zz" },
			wantErr: ErrInvalidRootURL,
		},
		{
			name:    "ftp scheme",
			mutate:  func(r *CrawlRequest) { r.RootURL = "ftp://example.com" },
			wantErr: ErrInvalidRootURL,
		},
		{
			name:    "missing host",
			mutate:  func(r *CrawlRequest) { r.RootURL = "https://" },
			wantErr: ErrInvalidRootURL,
		},
		{
			name:    "negative depth",
			mutate:  func(r *CrawlRequest) { r.MaxDepth = -1 },
			wantErr: ErrInvalidMaxDepth,
		},
		{
			name:    "zero workers",
			mutate:  func(r *CrawlRequest) { r.MaxWorkers = 0 },
			wantErr: ErrInvalidMaxWorkers,
		},
		{
			name:    "zero pages",
			mutate:  func(r *CrawlRequest) { r.MaxPages = 0 },
			wantErr: ErrInvalidMaxPages,
		},
		{
			name:    "negative max time",
			mutate:  func(r *CrawlRequest) { r.MaxTimeSeconds = -1 },
			wantErr: ErrInvalidMaxTime,
		},
		{
			name:    "negative delay",
			mutate:  func(r *CrawlRequest) { r.DelaySeconds = -0.5 },
			wantErr: ErrInvalidDelay,
		},
		{
			name:    "negative gate retries",
			mutate:  func(r *CrawlRequest) { r.GateRetries = -1 },
			wantErr: ErrInvalidRetries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := valid()
			tt.mutate(&req)
			err := req.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("zero max time is valid", func(t *testing.T) {
		t.Parallel()
		req := valid()
		req.MaxTimeSeconds = 0
		if err := req.Validate(); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

// TestCrawlRequestRoot tests root URL parsing.
func TestCrawlRequestRoot(t *testing.T) {
	t.Parallel()

	t.Run("bare host defaults to https", func(t *testing.T) {
		t.Parallel()
		req := NewCrawlRequest("example.com")
		u, err := req.Root()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if u.String() != "https://example.com" {
			t.Errorf("expected https://example.com, got %s", u.String())
		}
	})

	t.Run("scheme is lowercased", func(t *testing.T) {
		t.Parallel()
		req := NewCrawlRequest("HTTP://Example.com/about")
		u, err := req.Root()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if u.Scheme != "http" {
			t.Errorf("expected http scheme, got %s", u.Scheme)
		}
	})
}

// TestCrawlRequestDurations tests second-to-duration conversion.
func TestCrawlRequestDurations(t *testing.T) {
	t.Parallel()

	req := CrawlRequest{MaxTimeSeconds: 1.5, DelaySeconds: 0}
	if req.MaxTime() != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", req.MaxTime())
	}
	if req.Delay() != 0 {
		t.Errorf("expected zero delay, got %v", req.Delay())
	}
}
