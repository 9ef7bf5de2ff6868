package model

import "errors"

// Crawl request validation errors.
// CrawlRequest.Validate returns one of these, wrapped with the offending value
// where that helps the caller. Use errors.Is to test for them.
var (
	// ErrInvalidRootURL is returned when the root URL cannot be parsed,
	// has no host, or uses a scheme other than http or https.
	ErrInvalidRootURL = errors.New("invalid root URL")

	// ErrInvalidMaxDepth is returned when the maximum depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidMaxWorkers is returned when the worker count is less than one.
	ErrInvalidMaxWorkers = errors.New("invalid max workers: must be at least 1")

	// ErrInvalidMaxPages is returned when the page budget is less than one.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be at least 1")

	// ErrInvalidMaxTime is returned when the wall-clock budget is negative.
	ErrInvalidMaxTime = errors.New("invalid max time: must be non-negative")

	// ErrInvalidDelay is returned when the politeness delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidRetries is returned when a retry count is negative.
	ErrInvalidRetries = errors.New("invalid retry count: must be non-negative")
)
