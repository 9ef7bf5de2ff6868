package extract

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Technology categories.
const (
	CategoryCMS                 = "cms"
	CategoryAnalytics           = "analytics"
	CategoryJavaScriptFramework = "javascript-framework"
	CategoryWebServer           = "web-server"
	CategoryEcommerce           = "ecommerce"
	CategoryCDN                 = "cdn"
	CategoryTagManager          = "tag-manager"
	CategoryLanguage            = "programming-language"
	CategoryMarketing           = "marketing"
	CategoryChat                = "chat"
	CategoryUIFramework         = "ui-framework"
	CategoryWebFramework        = "web-framework"
)

// techSignature describes how to recognize one technology. Any matching
// field is enough.
type techSignature struct {
	name     string
	category string

	// headers maps a canonical header name to a value pattern.
	headers map[string]*regexp.Regexp
	// cookies are Set-Cookie name prefixes.
	cookies []string
	// scripts match <script src> and <link href> URLs.
	scripts *regexp.Regexp
	// generator matches <meta name="generator">.
	generator *regexp.Regexp
	// markup matches the raw HTML, inline scripts included.
	markup *regexp.Regexp
}

// TechnologyExtractor detects technologies from response headers, script
// and stylesheet sources, generator meta tags and inline markers.
type TechnologyExtractor struct {
	signatures []techSignature
}

// NewTechnologyExtractor creates a TechnologyExtractor with the built-in
// signature table.
func NewTechnologyExtractor() *TechnologyExtractor {
	re := regexp.MustCompile
	return &TechnologyExtractor{
		signatures: []techSignature{
			// CMS
			{name: "WordPress", category: CategoryCMS,
				scripts:   re(`(?i)/wp-(?:content|includes)/`),
				generator: re(`(?i)^wordpress`),
				headers:   map[string]*regexp.Regexp{"Link": re(`(?i)wp-json`)}},
			{name: "Drupal", category: CategoryCMS,
				generator: re(`(?i)^drupal`),
				headers:   map[string]*regexp.Regexp{"X-Generator": re(`(?i)drupal`), "X-Drupal-Cache": re(`.`)},
				scripts:   re(`(?i)/sites/(?:all|default)/(?:themes|modules)/`)},
			{name: "Joomla", category: CategoryCMS,
				generator: re(`(?i)^joomla`),
				scripts:   re(`(?i)/media/(?:jui|system)/js/`)},
			{name: "Wix", category: CategoryCMS,
				generator: re(`(?i)wix\.com`),
				headers:   map[string]*regexp.Regexp{"X-Wix-Request-Id": re(`.`)},
				scripts:   re(`(?i)static\.(?:wixstatic|parastorage)\.com`)},
			{name: "Squarespace", category: CategoryCMS,
				generator: re(`(?i)squarespace`),
				scripts:   re(`(?i)static1?\.squarespace\.com`)},
			{name: "Webflow", category: CategoryCMS,
				generator: re(`(?i)webflow`),
				markup:    re(`data-wf-(?:page|site)=`)},
			{name: "Ghost", category: CategoryCMS,
				generator: re(`(?i)^ghost`)},
			{name: "TYPO3", category: CategoryCMS,
				generator: re(`(?i)typo3`),
				scripts:   re(`(?i)/typo3(?:conf|temp)/`)},
			{name: "PrestaShop", category: CategoryEcommerce,
				generator: re(`(?i)prestashop`),
				cookies:   []string{"PrestaShop-"},
				markup:    re(`var prestashop\s*=`)},
			{name: "Shopify", category: CategoryEcommerce,
				headers: map[string]*regexp.Regexp{"X-Shopid": re(`.`), "X-Shopify-Stage": re(`.`)},
				scripts: re(`(?i)cdn\.shopify\.com`),
				markup:  re(`Shopify\.theme`)},
			{name: "WooCommerce", category: CategoryEcommerce,
				scripts: re(`(?i)/plugins/woocommerce/`),
				markup:  re(`(?i)woocommerce-(?:page|cart)`)},
			{name: "Magento", category: CategoryEcommerce,
				scripts: re(`(?i)/static/(?:version\d+/)?frontend/`),
				cookies: []string{"X-Magento-Vary"},
				markup:  re(`(?i)Mage\.Cookies|data-mage-init`)},

			// Analytics and tag managers
			{name: "Google Analytics", category: CategoryAnalytics,
				scripts: re(`(?i)google-analytics\.com/(?:ga|analytics)\.js|googletagmanager\.com/gtag/js`),
				markup:  re(`\bUA-\d{4,10}-\d{1,4}\b|gtag\(\s*['"]config['"]\s*,\s*['"]G-[A-Z0-9]{6,12}`),
				cookies: []string{"_ga"}},
			{name: "Google Tag Manager", category: CategoryTagManager,
				scripts: re(`(?i)googletagmanager\.com/gtm\.js`),
				markup:  re(`GTM-[A-Z0-9]{6,8}`)},
			{name: "Matomo", category: CategoryAnalytics,
				scripts: re(`(?i)/(?:matomo|piwik)\.js`),
				markup:  re(`_paq\.push`)},
			{name: "Hotjar", category: CategoryAnalytics,
				scripts: re(`(?i)static\.hotjar\.com`),
				markup:  re(`hjid\s*:\s*\d{6,7}`)},
			{name: "Microsoft Clarity", category: CategoryAnalytics,
				scripts: re(`(?i)clarity\.ms/tag`)},
			{name: "Plausible", category: CategoryAnalytics,
				scripts: re(`(?i)plausible\.io/js/`)},
			{name: "Facebook Pixel", category: CategoryMarketing,
				scripts: re(`(?i)connect\.facebook\.net/[a-z_]+/fbevents\.js`),
				markup:  re(`fbq\s*\(\s*['"]init['"]`)},
			{name: "LinkedIn Insight", category: CategoryMarketing,
				scripts: re(`(?i)snap\.licdn\.com/li\.lms-analytics`)},
			{name: "HubSpot", category: CategoryMarketing,
				scripts: re(`(?i)js\.hs-scripts\.com|js\.hsforms\.net`),
				cookies: []string{"hubspotutk", "__hstc"}},
			{name: "Mailchimp", category: CategoryMarketing,
				scripts: re(`(?i)chimpstatic\.com|list-manage\.com`)},

			// Chat
			{name: "Intercom", category: CategoryChat,
				scripts: re(`(?i)widget\.intercom\.io|js\.intercomcdn\.com`)},
			{name: "Crisp", category: CategoryChat,
				scripts: re(`(?i)client\.crisp\.chat`)},
			{name: "Zendesk Chat", category: CategoryChat,
				scripts: re(`(?i)static\.zdassets\.com|v2\.zopim\.com`)},
			{name: "Tawk.to", category: CategoryChat,
				scripts: re(`(?i)embed\.tawk\.to`)},

			// JavaScript frameworks and libraries
			{name: "jQuery", category: CategoryJavaScriptFramework,
				scripts: re(`(?i)jquery(?:[.\-]\d[\w.]*)?(?:\.min)?\.js`)},
			{name: "React", category: CategoryJavaScriptFramework,
				scripts: re(`(?i)react(?:-dom)?(?:\.production)?(?:\.min)?\.js`),
				markup:  re(`data-reactroot|data-reactid`)},
			{name: "Vue.js", category: CategoryJavaScriptFramework,
				scripts: re(`(?i)vue(?:\.runtime)?(?:\.global)?(?:\.prod)?(?:\.min)?\.js`),
				markup:  re(`\bdata-v-[0-9a-f]{8}\b`)},
			{name: "Angular", category: CategoryJavaScriptFramework,
				markup: re(`\bng-version="|\bng-app\b`)},
			{name: "Next.js", category: CategoryWebFramework,
				headers: map[string]*regexp.Regexp{"X-Powered-By": re(`(?i)next\.js`)},
				scripts: re(`/_next/static/`),
				markup:  re(`id="__NEXT_DATA__"`)},
			{name: "Nuxt.js", category: CategoryWebFramework,
				scripts: re(`/_nuxt/`),
				markup:  re(`window\.__NUXT__`)},
			{name: "Gatsby", category: CategoryWebFramework,
				generator: re(`(?i)^gatsby`),
				markup:    re(`id="___gatsby"`)},

			// UI frameworks
			{name: "Bootstrap", category: CategoryUIFramework,
				scripts: re(`(?i)bootstrap(?:\.bundle)?(?:\.min)?\.(?:js|css)`)},
			{name: "Tailwind CSS", category: CategoryUIFramework,
				scripts: re(`(?i)tailwind(?:css)?(?:\.min)?\.css|cdn\.tailwindcss\.com`)},
			{name: "Font Awesome", category: CategoryUIFramework,
				scripts: re(`(?i)font-?awesome|kit\.fontawesome\.com`)},

			// Web servers
			{name: "Nginx", category: CategoryWebServer,
				headers: map[string]*regexp.Regexp{"Server": re(`(?i)nginx`)}},
			{name: "Apache", category: CategoryWebServer,
				headers: map[string]*regexp.Regexp{"Server": re(`(?i)apache`)}},
			{name: "Microsoft IIS", category: CategoryWebServer,
				headers: map[string]*regexp.Regexp{"Server": re(`(?i)microsoft-iis`)}},
			{name: "LiteSpeed", category: CategoryWebServer,
				headers: map[string]*regexp.Regexp{"Server": re(`(?i)litespeed`)}},
			{name: "Caddy", category: CategoryWebServer,
				headers: map[string]*regexp.Regexp{"Server": re(`(?i)caddy`)}},

			// CDN
			{name: "Cloudflare", category: CategoryCDN,
				headers: map[string]*regexp.Regexp{"Server": re(`(?i)cloudflare`), "Cf-Ray": re(`.`)},
				scripts: re(`(?i)cdnjs\.cloudflare\.com`),
				cookies: []string{"__cf_bm", "__cfduid"}},
			{name: "Amazon CloudFront", category: CategoryCDN,
				headers: map[string]*regexp.Regexp{"Via": re(`(?i)cloudfront`), "X-Amz-Cf-Id": re(`.`)}},
			{name: "Fastly", category: CategoryCDN,
				headers: map[string]*regexp.Regexp{"X-Served-By": re(`(?i)cache-`), "Fastly-Debug-Digest": re(`.`)}},
			{name: "jsDelivr", category: CategoryCDN,
				scripts: re(`(?i)cdn\.jsdelivr\.net`)},
			{name: "unpkg", category: CategoryCDN,
				scripts: re(`(?i)unpkg\.com/`)},

			// Languages
			{name: "PHP", category: CategoryLanguage,
				headers: map[string]*regexp.Regexp{"X-Powered-By": re(`(?i)php`)},
				cookies: []string{"PHPSESSID"}},
			{name: "ASP.NET", category: CategoryLanguage,
				headers: map[string]*regexp.Regexp{"X-Powered-By": re(`(?i)asp\.net`), "X-Aspnet-Version": re(`.`)},
				cookies: []string{"ASP.NET_SessionId", "ASPSESSIONID"}},
			{name: "Java", category: CategoryLanguage,
				cookies: []string{"JSESSIONID"}},
			{name: "Express", category: CategoryWebFramework,
				headers: map[string]*regexp.Regexp{"X-Powered-By": re(`(?i)^express`)}},
			{name: "Laravel", category: CategoryWebFramework,
				cookies: []string{"laravel_session"}},
			{name: "Django", category: CategoryWebFramework,
				cookies: []string{"csrftoken", "django_language"}},
		},
	}
}

// Name returns the extractor name.
func (e *TechnologyExtractor) Name() string {
	return NameTechnology
}

// Extract matches every signature against doc.
func (e *TechnologyExtractor) Extract(doc *Document) (Findings, error) {
	sources := collectSources(doc)
	generator := doc.MetaContent("generator")
	cookies := cookieNames(doc.Header)
	raw := doc.Raw()

	techs := make([]Technology, 0)
	for _, sig := range e.signatures {
		if sig.matches(doc.Header, cookies, sources, generator, raw) {
			techs = append(techs, Technology{Category: sig.category, Name: sig.name})
		}
	}
	return Findings{Technologies: techs}, nil
}

func (s techSignature) matches(header http.Header, cookies, sources []string, generator, raw string) bool {
	for name, re := range s.headers {
		for _, v := range header.Values(name) {
			if re.MatchString(v) {
				return true
			}
		}
	}
	for _, prefix := range s.cookies {
		for _, c := range cookies {
			if strings.HasPrefix(c, prefix) {
				return true
			}
		}
	}
	if s.scripts != nil {
		for _, src := range sources {
			if s.scripts.MatchString(src) {
				return true
			}
		}
	}
	if s.generator != nil && generator != "" && s.generator.MatchString(generator) {
		return true
	}
	return s.markup != nil && s.markup.MatchString(raw)
}

// collectSources returns script src and link href values.
func collectSources(doc *Document) []string {
	out := make([]string, 0)
	doc.DOM().Find(`script[src], link[href]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("src"); ok {
			out = append(out, v)
			return
		}
		if v, ok := s.Attr("href"); ok {
			out = append(out, v)
		}
	})
	return out
}

// cookieNames returns the names of the cookies set by the response.
func cookieNames(header http.Header) []string {
	values := header.Values("Set-Cookie")
	names := make([]string, 0, len(values))
	for _, v := range values {
		name, _, _ := strings.Cut(v, "=")
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
