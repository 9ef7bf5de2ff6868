// Package crawler explores one company website under strict budgets and
// aggregates what the extractors find on its pages.
//
// # Architecture
//
// The Spider coordinates a crawl. It seeds a Frontier with the root URL
// and starts a fixed pool of workers. Each worker takes an entry, fetches
// it, runs the extractor registry on the parsed page, admits the links it
// discovered and hands everything to the Aggregator.
//
// # Components
//
//   - Scope: URL normalization and the same-site filter (eTLD+1)
//   - Frontier: work queue and visited set with atomic admission
//   - Budget: wall-clock deadline that closes the frontier
//   - HTTPFetcher: bounded HTTP fetches with body decoding
//   - HostLimiter: optional per-host rate limit
//   - Aggregator: single owner of the ScrapeResult and of gate calls
//   - ProgressReporter: non-blocking progress notifications
//
// # Termination
//
// A crawl ends when the frontier drains, when the deadline passes or when
// the caller's context is cancelled. In every case pages already being
// fetched are completed, every pending email analysis is awaited, and
// Crawl returns a consistent result with the matching StopReason. Only an
// invalid CrawlRequest is reported as an error.
//
// # Usage
//
//	spider := crawler.NewSpider(crawler.WithGate(gate.NewChecker()))
//	result, err := spider.Crawl(ctx, model.NewCrawlRequest("https://acme.example"))
package crawler
