// Package model defines the data structures shared by the crawler,
// the extractors, the email quality gate and the result sinks.
//
// The main types are:
//   - CrawlRequest: the immutable input of one crawl
//   - FrontierEntry: one unit of pending work
//   - PageRecord: the outcome of one page fetch
//   - ScrapeResult: the structured result handed to the caller
//   - Stats and Summary: counters surfaced while and after crawling
//
// Models live in their own package so that crawler, extract, gate, report
// and database can share them without import cycles. Every exported type
// round-trips through encoding/json.
package model
