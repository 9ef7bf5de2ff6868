package extract

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"image"
	_ "image/gif"  // register GIF for DecodeConfig
	_ "image/jpeg" // register JPEG for DecodeConfig
	_ "image/png"  // register PNG for DecodeConfig
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	exif "github.com/dsoprea/go-exif/v3"
	"golang.org/x/crypto/sha3"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// maxInlineImage bounds the data: URI payload decoded for dimensions.
const maxInlineImage = 2 << 20

// ImageExtractor finds <img> and <picture> images with known dimensions.
// Dimensions come from width/height attributes, inline style, or for
// inline data: images, the image header and EXIF pixel dimensions.
type ImageExtractor struct {
	styleWidth  *regexp.Regexp
	styleHeight *regexp.Regexp
}

// NewImageExtractor creates an ImageExtractor.
func NewImageExtractor() *ImageExtractor {
	return &ImageExtractor{
		styleWidth:  regexp.MustCompile(`(?i)(?:^|[;\s])width\s*:\s*(\d+)(?:\.\d+)?px`),
		styleHeight: regexp.MustCompile(`(?i)(?:^|[;\s])height\s*:\s*(\d+)(?:\.\d+)?px`),
	}
}

// Name returns the extractor name.
func (e *ImageExtractor) Name() string {
	return NameImage
}

// Extract returns the images of doc whose width and height are known.
// Tracking pixels (1x1) are skipped.
func (e *ImageExtractor) Extract(doc *Document) (Findings, error) {
	seen := make(map[string]bool)
	images := make([]model.Image, 0)
	page := doc.PageURL()

	add := func(img model.Image) {
		if img.URL == "" || img.Width <= 1 || img.Height <= 1 || seen[img.URL] {
			return
		}
		seen[img.URL] = true
		img.SourcePage = page
		images = append(images, img)
	}

	doc.DOM().Find("img").Each(func(_ int, s *goquery.Selection) {
		src := firstAttr(s, "src", "data-src", "data-lazy-src", "data-original")
		if src == "" {
			src = firstSrcset(s.AttrOr("srcset", ""))
		}
		w, h := e.declaredSize(s)
		add(e.resolve(doc, src, w, h, cleanText(s.AttrOr("alt", ""))))
	})

	doc.DOM().Find("picture source[srcset]").Each(func(_ int, s *goquery.Selection) {
		src := firstSrcset(s.AttrOr("srcset", ""))
		w, h := e.declaredSize(s)
		img := s.Parent().Find("img").First()
		if w == 0 || h == 0 {
			w, h = e.declaredSize(img)
		}
		add(e.resolve(doc, src, w, h, cleanText(img.AttrOr("alt", ""))))
	})

	return Findings{Images: images}, nil
}

// resolve builds the image record. Inline data: images are identified by
// a content hash instead of their payload.
func (e *ImageExtractor) resolve(doc *Document, src string, w, h int, alt string) model.Image {
	src = strings.TrimSpace(src)
	if src == "" {
		return model.Image{}
	}
	if strings.HasPrefix(strings.ToLower(src), "data:") {
		mime, data, ok := decodeDataURI(src)
		if !ok {
			return model.Image{}
		}
		if w == 0 || h == 0 {
			w, h = inlineImageSize(data)
		}
		sum := sha3.Sum256(data)
		return model.Image{
			URL:    "data:" + mime + ";sha3=" + hex.EncodeToString(sum[:8]),
			Width:  w,
			Height: h,
			Alt:    alt,
		}
	}
	abs := doc.ResolveString(src)
	if abs == "" {
		return model.Image{}
	}
	return model.Image{URL: abs, Width: w, Height: h, Alt: alt}
}

// declaredSize reads the width/height attributes, then inline style.
// Percentages and other relative units count as unknown.
func (e *ImageExtractor) declaredSize(s *goquery.Selection) (int, int) {
	w := parsePixels(s.AttrOr("width", ""))
	h := parsePixels(s.AttrOr("height", ""))
	style := s.AttrOr("style", "")
	if w == 0 {
		if m := e.styleWidth.FindStringSubmatch(style); m != nil {
			w, _ = strconv.Atoi(m[1])
		}
	}
	if h == 0 {
		if m := e.styleHeight.FindStringSubmatch(style); m != nil {
			h, _ = strconv.Atoi(m[1])
		}
	}
	return w, h
}

func parsePixels(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(v)), "px")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(s.AttrOr(name, "")); v != "" {
			return v
		}
	}
	return ""
}

// firstSrcset returns the first candidate URL of a srcset attribute.
func firstSrcset(srcset string) string {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// decodeDataURI returns the media type and payload of a data: URI.
func decodeDataURI(uri string) (string, []byte, bool) {
	meta, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return "", nil, false
	}
	params := strings.Split(meta, ";")
	mime := strings.ToLower(strings.TrimSpace(params[0]))
	if !strings.HasPrefix(mime, "image/") {
		return "", nil, false
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if isBase64 {
		if base64.StdEncoding.DecodedLen(len(payload)) > maxInlineImage {
			return "", nil, false
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return "", nil, false
		}
		return mime, data, true
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, false
	}
	return mime, []byte(data), true
}

// inlineImageSize reads the pixel dimensions from the image header, then
// from EXIF for JPEGs whose header could not be decoded.
func inlineImageSize(data []byte) (int, int) {
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height
	}
	return exifSize(data)
}

// exifSize returns the PixelXDimension/PixelYDimension (or ImageWidth/
// ImageLength) EXIF tags, or zeros.
func exifSize(data []byte) (int, int) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return 0, 0
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return 0, 0
	}
	var w, h int
	for _, entry := range entries {
		switch entry.TagName {
		case "PixelXDimension":
			w = parseExifInt(entry.Formatted)
		case "PixelYDimension":
			h = parseExifInt(entry.Formatted)
		case "ImageWidth":
			if w == 0 {
				w = parseExifInt(entry.Formatted)
			}
		case "ImageLength":
			if h == 0 {
				h = parseExifInt(entry.Formatted)
			}
		}
	}
	return w, h
}

// parseExifInt parses a formatted EXIF value such as "640" or "[640]".
func parseExifInt(formatted string) int {
	fields := strings.Fields(strings.Trim(formatted, "[] "))
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return n
}
