package extract

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// TestImageExtractor tests dimension discovery.
func TestImageExtractor(t *testing.T) {
	t.Parallel()

	doc := newTestDocument(t, "https://acme.test/about/", `<html><body>
		<img src="/logo.png" width="120" height="40" alt="Acme logo">
		<img src="hero.jpg" style="width: 800px; height:600px">
		<img src="/pixel.gif" width="1" height="1">
		<img src="/unknown.jpg">
		<img src="/percent.jpg" width="100%" height="50">
		<img src="/logo.png" width="120" height="40">
		<picture>
			<source srcset="/team.webp 1x, /team@2x.webp 2x" width="300" height="200">
			<img src="/team.jpg" alt="Team">
		</picture>
		<img src="`+pngDataURI(t, 3, 2)+`" alt="inline">
	</body></html>`, nil)

	f, err := NewImageExtractor().Extract(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byURL := make(map[string]model.Image)
	var inline *model.Image
	for i, img := range f.Images {
		if strings.HasPrefix(img.URL, "data:image/png;sha3=") {
			inline = &f.Images[i]
			continue
		}
		byURL[img.URL] = img
	}

	tests := []struct {
		url  string
		w, h int
		alt  string
	}{
		{"https://acme.test/logo.png", 120, 40, "Acme logo"},
		{"https://acme.test/about/hero.jpg", 800, 600, ""},
		{"https://acme.test/team.webp", 300, 200, "Team"},
	}
	for _, tt := range tests {
		img, ok := byURL[tt.url]
		if !ok {
			t.Errorf("expected image %s, got %+v", tt.url, f.Images)
			continue
		}
		if img.Width != tt.w || img.Height != tt.h {
			t.Errorf("%s: expected %dx%d, got %dx%d", tt.url, tt.w, tt.h, img.Width, img.Height)
		}
		if img.Alt != tt.alt {
			t.Errorf("%s: expected alt %q, got %q", tt.url, tt.alt, img.Alt)
		}
	}

	if inline == nil {
		t.Fatalf("expected inline image, got %+v", f.Images)
	}
	if inline.Width != 3 || inline.Height != 2 {
		t.Errorf("expected inline image 3x2, got %dx%d", inline.Width, inline.Height)
	}

	if len(f.Images) != 4 {
		t.Errorf("expected 4 images, got %d: %+v", len(f.Images), f.Images)
	}
}

// TestParseExifInt tests formatted EXIF value parsing.
func TestParseExifInt(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"640":     640,
		"[480]":   480,
		"[12 34]": 12,
		"":        0,
		"abc":     0,
	}
	for in, want := range tests {
		if got := parseExifInt(in); got != want {
			t.Errorf("parseExifInt(%q): expected %d, got %d", in, want, got)
		}
	}
}
