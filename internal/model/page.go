package model

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// PageRecord is the outcome of one page fetch.
// The response body is transient: it is handed to the extractors and then
// discarded, so only its size and hash are kept here.
type PageRecord struct {
	// URL is the normalized URL that was requested.
	URL string `json:"url"`

	// FinalURL is the URL after redirects.
	FinalURL string `json:"final_url,omitempty"`

	// Depth is the hop count from the root.
	Depth int `json:"depth"`

	// StatusCode is the HTTP status. Zero when the request never got a response.
	StatusCode int `json:"status_code"`

	// Error describes the transport failure or unexpected status, if any.
	Error string `json:"error,omitempty"`

	// Duration is the time spent fetching, retries included.
	Duration time.Duration `json:"duration"`

	// Size is the decoded body size in bytes.
	Size int64 `json:"size"`

	// ContentType is the response Content-Type header.
	ContentType string `json:"content_type,omitempty"`

	// Hash is the SHA3-256 digest of the decoded body.
	Hash string `json:"hash,omitempty"`

	// Links are the same-scope links found on the page.
	Links []string `json:"links,omitempty"`

	// Attempts is the number of fetch attempts made.
	Attempts int `json:"attempts,omitempty"`
}

// Succeeded reports whether the page was fetched with a 2xx status.
func (p PageRecord) Succeeded() bool {
	return p.Error == "" && p.StatusCode >= 200 && p.StatusCode < 300
}

// IsHTML reports whether the response declared an HTML content type.
// An empty content type is treated as HTML since many small sites omit it.
func (p PageRecord) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// ContentHash returns the hex SHA3-256 digest of body, or "" for an empty body.
func ContentHash(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha3.Sum256(body)
	return hex.EncodeToString(sum[:])
}
