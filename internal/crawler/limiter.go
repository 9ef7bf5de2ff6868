package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces out requests to the same host with a token bucket
// per host. A nil HostLimiter never waits.
type HostLimiter struct {
	interval time.Duration
	burst    int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter allows requestsPerSecond requests per host, with a burst
// of burst. It returns nil when requestsPerSecond is not positive.
func NewHostLimiter(requestsPerSecond float64, burst int) *HostLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	interval := time.Duration(float64(time.Second) / requestsPerSecond)
	if interval <= 0 {
		interval = time.Millisecond
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		interval: interval,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || host == "" {
		return nil
	}
	return h.limiter(strings.ToLower(host)).Wait(ctx)
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	if l, ok := h.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(h.interval), h.burst)
	h.limiters[host] = l
	return l
}
