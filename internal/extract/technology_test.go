package extract

import (
	"net/http"
	"testing"
)

// TestTechnologyExtractor tests header, source, generator and markup signatures.
func TestTechnologyExtractor(t *testing.T) {
	t.Parallel()

	header := make(http.Header)
	header.Set("Server", "nginx/1.24.0")
	header.Set("X-Powered-By", "PHP/8.2.1")
	header.Add("Set-Cookie", "_ga=GA1.2.3; Path=/")

	doc := newTestDocument(t, "https://acme.test/", `<html><head>
		<meta name="generator" content="WordPress 6.4.2">
		<script src="/wp-includes/js/jquery/jquery.min.js"></script>
		<script>(function(w,d,s,l,i){})(window,document,'script','dataLayer','GTM-ABC123');</script>
		</head><body></body></html>`, header)

	f, err := NewTechnologyExtractor().Extract(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := make(map[string]string)
	for _, tech := range f.Technologies {
		got[tech.Name] = tech.Category
	}

	want := map[string]string{
		"WordPress":          CategoryCMS,
		"jQuery":             CategoryJavaScriptFramework,
		"Nginx":              CategoryWebServer,
		"PHP":                CategoryLanguage,
		"Google Tag Manager": CategoryTagManager,
		"Google Analytics":   CategoryAnalytics,
	}
	for name, category := range want {
		if got[name] != category {
			t.Errorf("expected %s in category %s, got %q", name, category, got[name])
		}
	}
	for _, absent := range []string{"Shopify", "Drupal", "Apache", "React"} {
		if _, ok := got[absent]; ok {
			t.Errorf("expected %s not to be detected", absent)
		}
	}
}

// TestTechnologyExtractorEmptyPage tests that a bare page yields nothing.
func TestTechnologyExtractorEmptyPage(t *testing.T) {
	t.Parallel()

	doc := newTestDocument(t, "https://acme.test/", `<html><body><p>plain</p></body></html>`, nil)
	f, err := NewTechnologyExtractor().Extract(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Technologies) != 0 {
		t.Errorf("expected no technologies, got %+v", f.Technologies)
	}
}
