// Package config provides configuration structures and utilities for prospectcrawl.
// It holds the crawl budgets, network and gate settings, the report and
// storage preferences, and the per-site overrides read from .prospectcrawl.
package config
