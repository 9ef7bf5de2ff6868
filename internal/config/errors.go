package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers match them with errors.Is.
var (
	// ErrNoTarget is returned when no root URL is given.
	ErrNoTarget = errors.New("no target specified: provide a site URL or use --list")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidCrawlDepth is returned when the crawl depth is negative.
	ErrInvalidCrawlDepth = errors.New("invalid crawl depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page budget is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrInvalidMaxWorkers is returned when the worker count is not positive.
	ErrInvalidMaxWorkers = errors.New("invalid max workers: must be positive")

	// ErrInvalidMaxTime is returned when the crawl time budget is negative.
	ErrInvalidMaxTime = errors.New("invalid max time: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidRateLimit is returned when the per-host rate is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidRetries is returned when a retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidEmailPolicy is returned for an email policy other than first or last.
	ErrInvalidEmailPolicy = errors.New("invalid email policy: must be \"first\" or \"last\"")
)
