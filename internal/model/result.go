package model

import (
	"sort"
	"time"
)

// StopReason explains why a crawl reached its terminal state.
type StopReason string

// Stop reasons. Every one of them is a normal termination.
const (
	// StopDrained means the frontier emptied with no worker in flight.
	StopDrained StopReason = "drained"

	// StopPageBudget means the frontier drained after the page budget
	// refused at least one admission.
	StopPageBudget StopReason = "page-budget"

	// StopDeadline means the wall-clock budget elapsed.
	StopDeadline StopReason = "deadline"

	// StopCancelled means the caller cancelled the crawl.
	StopCancelled StopReason = "cancelled"
)

// EmailSourcePolicy decides which page an email is attributed to when it
// is found on several pages.
type EmailSourcePolicy string

const (
	// EmailSourceFirst keeps the first page the email was found on.
	EmailSourceFirst EmailSourcePolicy = "first"

	// EmailSourceLast overwrites the source with the latest page.
	EmailSourceLast EmailSourcePolicy = "last"
)

// NameInfo holds the person name inferred from an email local part.
type NameInfo struct {
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
	Full  string `json:"full,omitempty"`
}

// EmailAnalysis is the outcome of the email quality gate for one address.
// A failed analysis is still recorded, with Error set.
type EmailAnalysis struct {
	// Provider is the mailbox provider name (e.g. "Gmail") or the domain
	// itself for company mail.
	Provider string `json:"provider,omitempty"`

	// Type is the classification: professional, role, free, disposable, invalid.
	Type string `json:"type,omitempty"`

	// FormatValid reports whether the address is syntactically valid.
	FormatValid bool `json:"format_valid"`

	// MXValid reports whether the domain publishes a usable mail exchanger.
	MXValid bool `json:"mx_valid"`

	// RiskScore ranges from 0 (safe to contact) to 100 (do not contact).
	RiskScore int `json:"risk_score"`

	// Domain is the lowercased domain part of the address.
	Domain string `json:"domain,omitempty"`

	// Name is the person name inferred from the local part.
	Name NameInfo `json:"name_info"`

	// AnalyzedAt is when the gate produced this outcome.
	AnalyzedAt time.Time `json:"analyzed_at"`

	// Error is set when the analysis failed.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the analysis is error-flagged.
func (a EmailAnalysis) Failed() bool {
	return a.Error != ""
}

// EmailRecord is one discovered email address.
type EmailRecord struct {
	// Address is the normalized (lowercased) address.
	Address string `json:"address"`

	// SourcePage is the page the address is attributed to.
	SourcePage string `json:"source_page"`

	// Analysis is the quality gate outcome. It is never nil in a finished result.
	Analysis *EmailAnalysis `json:"analysis"`
}

// Person is a name, optionally with a title and an email, found on a page.
type Person struct {
	Name       string `json:"name"`
	Title      string `json:"title,omitempty"`
	Email      string `json:"email,omitempty"`
	SourcePage string `json:"source_page,omitempty"`
}

// Phone is a phone number found on a page.
type Phone struct {
	// Number is the normalized number: digits, with a leading "+" when the
	// original carried an international prefix.
	Number string `json:"number"`

	// Digits is the digit sequence used for deduplication.
	Digits string `json:"digits"`

	SourcePage string `json:"source_page"`
}

// Image is an image whose dimensions are known.
type Image struct {
	URL        string `json:"url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Alt        string `json:"alt,omitempty"`
	SourcePage string `json:"source_page"`
}

// PageMeta is the structured preview metadata of one page.
// It is kept per page and never merged across pages.
type PageMeta struct {
	URL         string            `json:"url"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Canonical   string            `json:"canonical,omitempty"`
	Locale      string            `json:"locale,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	OpenGraph   map[string]string `json:"open_graph,omitempty"`
	Twitter     map[string]string `json:"twitter,omitempty"`
	Media       []string          `json:"media,omitempty"`
}

// Stats are the crawl counters. They are updated incrementally and
// snapshots of them are delivered through progress events.
type Stats struct {
	PagesAttempted int `json:"pages_attempted"`
	PagesSucceeded int `json:"pages_succeeded"`
	PagesFailed    int `json:"pages_failed"`
	Emails         int `json:"emails"`
	People         int `json:"people"`
	Phones         int `json:"phones"`
	SocialProfiles int `json:"social_profiles"`
	Technologies   int `json:"technologies"`
	Images         int `json:"images"`
	GateCalls      int `json:"gate_calls"`
	GateErrors     int `json:"gate_errors"`
	ExtractorFails int `json:"extractor_failures"`
}

// ScrapeResult is the single artifact a crawl produces.
type ScrapeResult struct {
	RootURL    string     `json:"root_url"`
	OwnerID    string     `json:"owner_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	StopReason StopReason `json:"stop_reason,omitempty"`

	// Emails maps the normalized address to its record.
	Emails map[string]*EmailRecord `json:"emails"`

	// People is ordered by discovery and deduplicated by (name, email).
	People []Person `json:"people"`

	// Phones is deduplicated by digit sequence.
	Phones []Phone `json:"phones"`

	// SocialProfiles maps a platform name to its sorted profile URLs.
	SocialProfiles map[string][]string `json:"social_profiles"`

	// Technologies maps a category to its sorted technology names.
	Technologies map[string][]string `json:"technologies"`

	// Images lists images with known dimensions, deduplicated by URL.
	Images []Image `json:"images"`

	// PageMetadata is keyed by page URL.
	PageMetadata map[string]PageMeta `json:"page_metadata"`

	// Pages lists every attempted page in completion order.
	Pages []PageRecord `json:"pages"`

	Stats Stats `json:"stats"`
}

// NewScrapeResult returns an empty result with every collection initialized.
func NewScrapeResult(rootURL, ownerID string) *ScrapeResult {
	return &ScrapeResult{
		RootURL:        rootURL,
		OwnerID:        ownerID,
		StartedAt:      time.Now(),
		Emails:         make(map[string]*EmailRecord),
		People:         make([]Person, 0),
		Phones:         make([]Phone, 0),
		SocialProfiles: make(map[string][]string),
		Technologies:   make(map[string][]string),
		Images:         make([]Image, 0),
		PageMetadata:   make(map[string]PageMeta),
		Pages:          make([]PageRecord, 0),
	}
}

// Duration is the elapsed wall-clock time of the crawl.
func (r *ScrapeResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// EmailAddresses returns the sorted list of discovered addresses.
func (r *ScrapeResult) EmailAddresses() []string {
	out := make([]string, 0, len(r.Emails))
	for addr := range r.Emails {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Summary holds the totals surfaced to the orchestration layer when a
// crawl completes.
type Summary struct {
	RootURL         string     `json:"root_url"`
	StopReason      StopReason `json:"stop_reason,omitempty"`
	Pages           int        `json:"pages"`
	PagesFailed     int        `json:"pages_failed"`
	Emails          int        `json:"emails"`
	People          int        `json:"people"`
	Phones          int        `json:"phones"`
	SocialPlatforms int        `json:"social_platforms"`
	Technologies    int        `json:"technologies"`
	Images          int        `json:"images"`
}

// Summary computes the completion counters from the collections.
func (r *ScrapeResult) Summary() Summary {
	techs := 0
	for _, names := range r.Technologies {
		techs += len(names)
	}
	return Summary{
		RootURL:         r.RootURL,
		StopReason:      r.StopReason,
		Pages:           r.Stats.PagesSucceeded,
		PagesFailed:     r.Stats.PagesFailed,
		Emails:          len(r.Emails),
		People:          len(r.People),
		Phones:          len(r.Phones),
		SocialPlatforms: len(r.SocialProfiles),
		Technologies:    techs,
		Images:          len(r.Images),
	}
}

// Total returns the number of extracted entities of every category.
func (s Summary) Total() int {
	return s.Emails + s.People + s.Phones + s.SocialPlatforms + s.Technologies + s.Images
}
