package config

import "maps"

// SiteConfig holds site-specific configuration for a single host.
type SiteConfig struct {
	// Cookie is an HTTP cookie to use when crawling this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the global crawl depth for this site.
	// If zero, the global CrawlDepth is used.
	Depth int `yaml:"depth,omitempty"`

	// MaxPages overrides the global page budget for this site.
	MaxPages int `yaml:"maxPages,omitempty"`

	// IgnorePatterns are URL path patterns to skip during crawling.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL path patterns to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .prospectcrawl configuration file.
type File struct {
	// Sites maps host names (e.g. "acme.fr") to their configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the defaults.
// "www.acme.fr" and "acme.fr" share a configuration.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	siteConfig, ok := cf.Sites[siteKey(host)]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(siteConfig.Headers))
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}
