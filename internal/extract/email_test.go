package extract

import (
	"reflect"
	"testing"
)

// TestEmailExtractor tests email discovery.
func TestEmailExtractor(t *testing.T) {
	t.Parallel()

	e := NewEmailExtractor()

	t.Run("text and mailto yield one address", func(t *testing.T) {
		t.Parallel()

		doc := newTestDocument(t, "https://example.com/contact", `<html><body>
			<p>Write to contact@example.com for details.</p>
			<a href="mailto:Contact@Example.com?subject=Hello">Email us</a>
		</body></html>`, nil)

		f, err := e.Extract(doc)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"contact@example.com"}
		if !reflect.DeepEqual(f.Emails, want) {
			t.Errorf("expected %v, got %v", want, f.Emails)
		}
	})

	t.Run("mailto with several encoded recipients", func(t *testing.T) {
		t.Parallel()

		doc := newTestDocument(t, "https://acme.test/", `<a href="mailto:jane%2Edoe@acme.test,%20sales@acme.test?cc=boss@acme.test">x</a>`, nil)

		f, _ := e.Extract(doc)
		want := []string{"jane.doe@acme.test", "sales@acme.test"}
		if !reflect.DeepEqual(f.Emails, want) {
			t.Errorf("expected %v, got %v", want, f.Emails)
		}
	})

	t.Run("mailto separators and display names", func(t *testing.T) {
		t.Parallel()

		doc := newTestDocument(t, "https://acme.test/", `<html><body>
			<a href="mailto:info@acme.test;sales@acme.test">Write</a>
			<a href="mailto:Jane%20Doe%20%3Cjane@acme.test%3E">Jane</a>
			<a href="mailto:see%20info@acme.test%20now">Broken</a>
		</body></html>`, nil)

		f, _ := e.Extract(doc)
		want := []string{"info@acme.test", "sales@acme.test", "jane@acme.test"}
		if !reflect.DeepEqual(f.Emails, want) {
			t.Errorf("expected %v, got %v", want, f.Emails)
		}
	})

	t.Run("placeholders and assets are dropped", func(t *testing.T) {
		t.Parallel()

		doc := newTestDocument(t, "https://acme.test/", `<html><body>
			<p>you@yourdomain.com</p>
			<p>your.email@acme.test</p>
			<img src="logo@2x.png" alt="logo@2x.png">
			<p>logo@2x.png</p>
			<p>Real: hello@acme.test.</p>
		</body></html>`, nil)

		f, _ := e.Extract(doc)
		want := []string{"hello@acme.test"}
		if !reflect.DeepEqual(f.Emails, want) {
			t.Errorf("expected %v, got %v", want, f.Emails)
		}
	})

	t.Run("scripts are not scanned", func(t *testing.T) {
		t.Parallel()

		doc := newTestDocument(t, "https://acme.test/", `<script>var x = "dev@acme.test";</script><p>none</p>`, nil)
		f, _ := e.Extract(doc)
		if len(f.Emails) != 0 {
			t.Errorf("expected no emails, got %v", f.Emails)
		}
	})
}

// TestParseMailto tests mailto URI decoding.
func TestParseMailto(t *testing.T) {
	t.Parallel()

	tests := []struct {
		href string
		want []string
	}{
		{"mailto:a@b.test", []string{"a@b.test"}},
		{"MAILTO:A@B.test?subject=x", []string{"a@b.test"}},
		{"mailto:a@b.test,c@d.test", []string{"a@b.test", "c@d.test"}},
		{"mailto:%61@b.test", []string{"a@b.test"}},
		{"mailto:", []string{}},
		{"mailto:a@b.test;c@d.test", []string{"a@b.test", "c@d.test"}},
		{"mailto:a@b.test; ;c@d.test", []string{"a@b.test", "c@d.test"}},
		{"mailto:Jane Doe <jane@b.test>", []string{"jane@b.test"}},
	}
	for _, tt := range tests {
		got := ParseMailto(tt.href)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseMailto(%q): expected %v, got %v", tt.href, tt.want, got)
		}
	}
}
