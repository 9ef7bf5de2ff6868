// Package database stores finished crawl results for history and diffing.
//
// ResultStore keeps each ScrapeResult as a JSON document next to its
// summary, with one row per page and per email. SQLite (modernc.org/sqlite,
// CGO-free) is the default and lives in the XDG data directory; a
// PostgreSQL database (github.com/lib/pq) can be used instead when several
// crawler hosts share one history.
package database
