package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const emailPattern = `[a-z0-9][a-z0-9._%+\-]*@[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?)*\.[a-z]{2,24}`

// EmailExtractor finds email addresses in visible text and mailto: links.
// Addresses are lowercased; the same address found in both places is
// reported once.
type EmailExtractor struct {
	emailRegex *regexp.Regexp

	// addressRegex matches a whole candidate, never a substring of it.
	addressRegex *regexp.Regexp

	// placeholderDomains are template domains that never belong to a lead.
	placeholderDomains map[string]bool

	// placeholderLocals are template local parts ("your.email@...").
	placeholderLocals map[string]bool

	// assetSuffixes catch retina asset names such as "logo@2x.png".
	assetSuffixes []string
}

// NewEmailExtractor creates an EmailExtractor.
func NewEmailExtractor() *EmailExtractor {
	return &EmailExtractor{
		emailRegex:   regexp.MustCompile(`(?i)` + emailPattern),
		addressRegex: regexp.MustCompile(`(?i)^` + emailPattern + `$`),
		placeholderDomains: map[string]bool{
			"yourdomain.com":           true,
			"your-domain.com":          true,
			"yoursite.com":             true,
			"yourcompany.com":          true,
			"domain.com":               true,
			"domaine.com":              true,
			"sentry.io":                true,
			"wixpress.com":             true,
			"sentry.wixpress.com":      true,
			"sentry-next.wixpress.com": true,
		},
		placeholderLocals: map[string]bool{
			"your.email":         true,
			"youremail":          true,
			"your-email":         true,
			"your_email":         true,
			"votre.email":        true,
			"prenom.nom":         true,
			"firstname.lastname": true,
		},
		assetSuffixes: []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js", ".ico"},
	}
}

// Name returns the extractor name.
func (e *EmailExtractor) Name() string {
	return NameEmail
}

// Extract scans mailto: links first, then the visible text.
func (e *EmailExtractor) Extract(doc *Document) (Findings, error) {
	seen := make(map[string]bool)
	emails := make([]string, 0)

	add := func(candidate string) {
		addr, ok := e.normalize(candidate)
		if !ok || seen[addr] {
			return
		}
		seen[addr] = true
		emails = append(emails, addr)
	}

	doc.DOM().Find(`a[href]`).Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
			return
		}
		for _, addr := range ParseMailto(href) {
			add(addr)
		}
	})

	for _, match := range e.emailRegex.FindAllString(doc.Text(), -1) {
		add(match)
	}

	return Findings{Emails: emails}, nil
}

// normalize lowercases and trims an address and drops placeholders.
func (e *EmailExtractor) normalize(candidate string) (string, bool) {
	addr := strings.ToLower(strings.Trim(strings.TrimSpace(candidate), ".,;:<>()[]\"'"))
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "", false
	}
	if !e.addressRegex.MatchString(addr) {
		return "", false
	}
	local, domain := addr[:at], addr[at+1:]
	for _, suffix := range e.assetSuffixes {
		if strings.HasSuffix(domain, suffix) {
			return "", false
		}
	}
	if e.placeholderDomains[domain] || e.placeholderLocals[local] {
		return "", false
	}
	return addr, true
}

// ParseMailto returns the addresses of a mailto: URI. The query part
// (subject, body, cc) is dropped and percent-escapes are decoded.
// Addresses may be separated by commas or semicolons, and a display name
// form ("Jane Doe <jane@acme.fr>") yields the bracketed address.
func ParseMailto(href string) []string {
	raw := strings.TrimSpace(href)
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "mailto:") {
		raw = raw[7:]
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	out := make([]string, 0, 1)
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	for _, part := range parts {
		if open := strings.LastIndexByte(part, '<'); open >= 0 {
			part = part[open+1:]
			if end := strings.IndexByte(part, '>'); end >= 0 {
				part = part[:end]
			}
		}
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
