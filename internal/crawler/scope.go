package crawler

import (
	"net"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// skipExtensions are resources that never hold an HTML page.
var skipExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".svg": true, ".ico": true, ".bmp": true, ".tif": true, ".tiff": true,
	".avif": true, ".css": true, ".js": true, ".mjs": true, ".map": true,
	".json": true, ".xml": true, ".rss": true, ".atom": true, ".txt": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".odt": true, ".csv": true, ".zip": true,
	".rar": true, ".7z": true, ".gz": true, ".tar": true, ".tgz": true,
	".exe": true, ".dmg": true, ".msi": true, ".apk": true, ".iso": true,
	".mp3": true, ".wav": true, ".ogg": true, ".mp4": true, ".webm": true,
	".mov": true, ".avi": true, ".mkv": true, ".woff": true, ".woff2": true,
	".ttf": true, ".otf": true, ".eot": true,
}

// Scope decides whether a discovered URL belongs to the crawled site.
// A URL is in scope when it uses http or https, shares the registrable
// domain (eTLD+1) of the root, does not point at a non-HTML resource and
// passes the ignore/follow path patterns.
type Scope struct {
	site           string
	ignorePatterns []string
	followPatterns []string
}

// NewScope creates the scope of root.
func NewScope(root *url.URL, ignorePatterns, followPatterns []string) *Scope {
	return &Scope{
		site:           RegistrableDomain(root.Hostname()),
		ignorePatterns: ignorePatterns,
		followPatterns: followPatterns,
	}
}

// Site returns the registrable domain of the root.
func (s *Scope) Site() string {
	return s.site
}

// SameSite reports whether u shares the root's registrable domain.
func (s *Scope) SameSite(u *url.URL) bool {
	return RegistrableDomain(u.Hostname()) == s.site
}

// InDomain reports whether u is an http(s) URL of the root's site.
// Path patterns and extensions are not checked.
func (s *Scope) InDomain(u *url.URL) bool {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return s.SameSite(u)
}

// Allows reports whether u may be admitted to the frontier.
func (s *Scope) Allows(u *url.URL) bool {
	if !s.InDomain(u) {
		return false
	}
	if skipExtensions[strings.ToLower(path.Ext(u.Path))] {
		return false
	}
	return s.followed(u.Path)
}

// followed applies the ignore patterns, then the follow patterns.
func (s *Scope) followed(p string) bool {
	if p == "" {
		p = "/"
	}
	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(s.followPatterns) == 0 {
		return true
	}
	for _, pattern := range s.followPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// RegistrableDomain returns the eTLD+1 of host ("www.acme.co.uk" becomes
// "acme.co.uk"). IP addresses, single-label hosts and hosts the public
// suffix list cannot split are returned lowercased as they are.
func RegistrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// NormalizeURL returns the canonical form used for deduplication: no
// fragment, lowercase scheme and host, no default port, "/" for an empty
// path.
func NormalizeURL(u *url.URL) string {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if port := n.Port(); (n.Scheme == "http" && port == "80") || (n.Scheme == "https" && port == "443") {
		n.Host = strings.TrimSuffix(n.Host, ":"+port)
	}
	if n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	n.User = nil
	return n.String()
}

// ParseAndNormalize parses raw and returns its normalized form.
func ParseAndNormalize(raw string) (*url.URL, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, "", err
	}
	return u, NormalizeURL(u), nil
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match a whole subtree
//   - a leading *. to match an extension anywhere
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/blog/page-?" matches "/blog/page-2"
func matchPattern(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(p, strings.TrimPrefix(pattern, "*")) {
		return true
	}

	if matched, err := filepath.Match(pattern, p); err == nil && matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(p)); err == nil && matched {
			return true
		}
	}

	return false
}
