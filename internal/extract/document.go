package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is a parsed page handed to every extractor.
// It is owned by one worker and never shared across goroutines.
type Document struct {
	// URL is the final URL of the page, used to resolve relative references.
	URL *url.URL

	// Header holds the response headers.
	Header http.Header

	// Size is the decoded body size in bytes.
	Size int

	dom *goquery.Document

	textOnce sync.Once
	text     string

	rawOnce sync.Once
	raw     string
	body    []byte
}

// NewDocument parses body leniently. Malformed markup is repaired by the
// HTML5 parsing algorithm; an error is only returned when the tokenizer
// cannot produce a tree at all.
func NewDocument(pageURL *url.URL, header http.Header, body []byte) (*Document, error) {
	if pageURL == nil {
		return nil, errors.New("nil page URL")
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	if header == nil {
		header = make(http.Header)
	}
	return &Document{
		URL:    pageURL,
		Header: header,
		Size:   len(body),
		dom:    goquery.NewDocumentFromNode(root),
		body:   body,
	}, nil
}

// DOM returns the goquery selection root.
func (d *Document) DOM() *goquery.Document {
	return d.dom
}

// PageURL returns the page URL as a string.
func (d *Document) PageURL() string {
	return d.URL.String()
}

// Raw returns the body as a string. Used by signature matchers that look
// at inline scripts and markup.
func (d *Document) Raw() string {
	d.rawOnce.Do(func() {
		d.raw = string(d.body)
	})
	return d.raw
}

// Text returns the visible text of the page: text nodes outside of
// script, style, noscript and template elements, separated by spaces.
func (d *Document) Text() string {
	d.textOnce.Do(func() {
		var b strings.Builder
		for _, n := range d.dom.Nodes {
			collectText(n, &b)
		}
		d.text = b.String()
	})
	return d.text
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "template", "svg":
			return
		}
	}
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			b.WriteString(s)
			b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// Resolve turns href into an absolute URL against the page URL.
// It returns false for empty references and for schemes that never
// point at a document (javascript:, mailto:, tel:, data:).
func (d *Document) Resolve(href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return nil, false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "sms:", "callto:"} {
		if strings.HasPrefix(lower, prefix) {
			return nil, false
		}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	return d.URL.ResolveReference(ref), true
}

// ResolveString is Resolve returning the URL string, or "".
func (d *Document) ResolveString(href string) string {
	u, ok := d.Resolve(href)
	if !ok {
		return ""
	}
	return u.String()
}

// MetaContent returns the content attribute of the first meta tag whose
// name or property equals key (case-insensitive).
func (d *Document) MetaContent(key string) string {
	var value string
	d.dom.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name := s.AttrOr("name", s.AttrOr("property", ""))
		if strings.EqualFold(strings.TrimSpace(name), key) {
			value = strings.TrimSpace(s.AttrOr("content", ""))
			return false
		}
		return true
	})
	return value
}

// cleanText collapses runs of whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
