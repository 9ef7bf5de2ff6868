package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// mediaHosts are the embed providers whose iframes count as media.
var mediaHosts = []string{
	"youtube.com", "youtube-nocookie.com", "youtu.be", "vimeo.com",
	"dailymotion.com", "soundcloud.com", "spotify.com", "wistia.com",
	"wistia.net", "loom.com",
}

// MetadataExtractor reads the preview metadata of one page. Its output is
// kept per page and never merged with other pages.
type MetadataExtractor struct{}

// NewMetadataExtractor creates a MetadataExtractor.
func NewMetadataExtractor() *MetadataExtractor {
	return &MetadataExtractor{}
}

// Name returns the extractor name.
func (e *MetadataExtractor) Name() string {
	return NameMetadata
}

// Extract returns the page metadata of doc.
func (e *MetadataExtractor) Extract(doc *Document) (Findings, error) {
	dom := doc.DOM()
	meta := &model.PageMeta{
		URL:         doc.PageURL(),
		Title:       cleanText(dom.Find("head title").First().Text()),
		Description: doc.MetaContent("description"),
	}
	if meta.Title == "" {
		meta.Title = cleanText(dom.Find("title").First().Text())
	}

	if href, ok := dom.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		meta.Canonical = doc.ResolveString(href)
	}

	og := make(map[string]string)
	twitter := make(map[string]string)
	dom.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := strings.ToLower(strings.TrimSpace(s.AttrOr("property", s.AttrOr("name", ""))))
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if key == "" || content == "" {
			return
		}
		switch {
		case strings.HasPrefix(key, "og:"):
			if _, dup := og[key]; !dup {
				og[key] = content
			}
		case strings.HasPrefix(key, "twitter:"):
			if _, dup := twitter[key]; !dup {
				twitter[key] = content
			}
		}
	})
	if len(og) > 0 {
		meta.OpenGraph = og
	}
	if len(twitter) > 0 {
		meta.Twitter = twitter
	}

	meta.Locale = og["og:locale"]
	if meta.Locale == "" {
		meta.Locale = strings.TrimSpace(dom.Find("html").AttrOr("lang", ""))
	}
	if meta.Description == "" {
		meta.Description = og["og:description"]
	}

	if kw := doc.MetaContent("keywords"); kw != "" {
		for _, k := range strings.Split(kw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				meta.Keywords = append(meta.Keywords, k)
			}
		}
	}

	meta.Media = e.media(doc, og)
	return Findings{Metadata: meta}, nil
}

// media collects embedded video and audio references.
func (e *MetadataExtractor) media(doc *Document, og map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ref string) {
		abs := doc.ResolveString(ref)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	}

	doc.DOM().Find("video[src], audio[src], video source[src], audio source[src]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""))
	})
	doc.DOM().Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		u, ok := doc.Resolve(src)
		if !ok || !isMediaHost(u) {
			return
		}
		add(u.String())
	})
	for _, key := range []string{"og:video", "og:video:url", "og:video:secure_url", "og:audio"} {
		if v := og[key]; v != "" {
			add(v)
		}
	}
	return out
}

func isMediaHost(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	for _, h := range mediaHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
