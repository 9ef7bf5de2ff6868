package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SocialExtractor finds links to profiles on known platforms.
//
// Only profile-shaped URLs count: share buttons, intents and single posts
// point at someone else's content and are ignored.
type SocialExtractor struct {
	platforms []socialPlatform
	ignore    *regexp.Regexp
}

// socialPlatform holds the profile URL shapes of one platform.
type socialPlatform struct {
	name     string
	patterns []*regexp.Regexp
	// reserved are first path segments that are site sections, not handles.
	reserved map[string]bool
}

// NewSocialExtractor creates a SocialExtractor.
func NewSocialExtractor() *SocialExtractor {
	return &SocialExtractor{
		platforms: []socialPlatform{
			{
				name: "twitter",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.|mobile\.)?(?:twitter\.com|x\.com)/([A-Za-z0-9_]{1,15})/?$`),
				},
				reserved: reservedSet("home", "share", "intent", "search", "hashtag", "i", "explore", "login", "signup", "settings"),
			},
			{
				name: "facebook",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.|m\.|fr-fr\.)?(?:facebook\.com|fb\.com)/([A-Za-z0-9.\-]{2,})/?$`),
					regexp.MustCompile(`(?i)^https?://(?:www\.)?facebook\.com/(pages/[^/]+/\d+)/?$`),
				},
				reserved: reservedSet("sharer", "sharer.php", "share", "dialog", "plugins", "login", "tr", "events", "groups", "watch", "policies"),
			},
			{
				name: "instagram",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.)?(?:instagram\.com|instagr\.am)/([A-Za-z0-9_.]{1,30})/?$`),
				},
				reserved: reservedSet("p", "explore", "accounts", "reel", "reels", "stories"),
			},
			{
				name: "linkedin",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:[a-z]{2,3}\.|www\.)?linkedin\.com/(in/[A-Za-z0-9_\-%]+)/?$`),
					regexp.MustCompile(`(?i)^https?://(?:[a-z]{2,3}\.|www\.)?linkedin\.com/(company/[A-Za-z0-9_\-%]+)/?$`),
					regexp.MustCompile(`(?i)^https?://(?:[a-z]{2,3}\.|www\.)?linkedin\.com/(school/[A-Za-z0-9_\-%]+)/?$`),
				},
			},
			{
				name: "youtube",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.|m\.)?youtube\.com/((?:channel|c|user)/[A-Za-z0-9_\-]+)/?$`),
					regexp.MustCompile(`(?i)^https?://(?:www\.|m\.)?youtube\.com/(@[A-Za-z0-9_.\-]+)/?$`),
				},
			},
			{
				name: "github",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.)?github\.com/([A-Za-z0-9\-]{1,39})/?$`),
				},
				reserved: reservedSet("features", "pricing", "about", "login", "join", "topics", "marketplace", "sponsors"),
			},
			{
				name: "tiktok",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.)?tiktok\.com/(@[A-Za-z0-9_.]+)/?$`),
				},
			},
			{
				name: "pinterest",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:[a-z]{2}\.|www\.)?pinterest\.(?:com|fr|co\.uk|de)/([A-Za-z0-9_]{3,30})/?$`),
				},
				reserved: reservedSet("pin", "search", "ideas", "today"),
			},
			{
				name: "vimeo",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.)?vimeo\.com/([A-Za-z][A-Za-z0-9_]{2,})/?$`),
				},
				reserved: reservedSet("channels", "watch", "features", "upgrade", "log_in", "join"),
			},
			{
				name: "telegram",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.)?(?:t\.me|telegram\.me)/([A-Za-z0-9_]{5,32})/?$`),
				},
				reserved: reservedSet("share", "joinchat"),
			},
			{
				name: "viadeo",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.|fr\.)?viadeo\.com/((?:p|fr/profile|en/profile|fr/company)/[A-Za-z0-9_.\-]+)/?$`),
				},
			},
			{
				name: "threads",
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`(?i)^https?://(?:www\.)?threads\.net/(@[A-Za-z0-9_.]+)/?$`),
				},
			},
		},
		ignore: regexp.MustCompile(`(?i)/(?:share|sharer|intent|dialog)(?:[/.?]|$)`),
	}
}

func reservedSet(segments ...string) map[string]bool {
	m := make(map[string]bool, len(segments))
	for _, s := range segments {
		m[s] = true
	}
	return m
}

// Name returns the extractor name.
func (e *SocialExtractor) Name() string {
	return NameSocial
}

// Extract scans every anchor of doc.
func (e *SocialExtractor) Extract(doc *Document) (Findings, error) {
	seen := make(map[string]bool)
	profiles := make([]SocialProfile, 0)

	doc.DOM().Find(`a[href]`).Each(func(_ int, s *goquery.Selection) {
		u, ok := doc.Resolve(s.AttrOr("href", ""))
		if !ok {
			return
		}
		platform, profile, ok := e.Match(u)
		if !ok || seen[profile] {
			return
		}
		seen[profile] = true
		profiles = append(profiles, SocialProfile{Platform: platform, URL: profile})
	})

	return Findings{Social: profiles}, nil
}

// Match reports the platform and canonical profile URL of u.
// The canonical form has no query, fragment or trailing slash and a
// lowercase host.
func (e *SocialExtractor) Match(u *url.URL) (platform, profile string, ok bool) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false
	}
	if e.ignore.MatchString(u.Path) {
		return "", "", false
	}
	clean := "https://" + strings.ToLower(u.Host) + strings.TrimRight(u.EscapedPath(), "/")

	for _, p := range e.platforms {
		for _, re := range p.patterns {
			m := re.FindStringSubmatch(clean)
			if m == nil {
				continue
			}
			handle := strings.ToLower(m[1])
			if p.reserved[handle] {
				return "", "", false
			}
			return p.name, clean, true
		}
	}
	return "", "", false
}
