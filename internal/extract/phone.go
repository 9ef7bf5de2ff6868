package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// Phone number length bounds (E.164 allows at most 15 digits).
const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

// PhoneExtractor finds phone numbers in tel: links and visible text.
// Numbers are normalized to their digits, prefixed with "+" when written
// with an international prefix ("+33" or "0033").
type PhoneExtractor struct {
	phoneRegex *regexp.Regexp
	dateRegex  *regexp.Regexp
	yearRange  *regexp.Regexp
}

// NewPhoneExtractor creates a PhoneExtractor.
func NewPhoneExtractor() *PhoneExtractor {
	return &PhoneExtractor{
		phoneRegex: regexp.MustCompile(`(?:\+|\b00)?\(?\d[\d\s().\-/]{5,}\d`),
		dateRegex:  regexp.MustCompile(`^\d{1,4}[./\-]\d{1,2}[./\-]\d{1,4}$`),
		yearRange:  regexp.MustCompile(`^(?:19|20)\d{2}\s*[\-/]\s*(?:19|20)\d{2}$`),
	}
}

// Name returns the extractor name.
func (e *PhoneExtractor) Name() string {
	return NamePhone
}

// Extract returns the phone numbers of doc, deduplicated by digits.
func (e *PhoneExtractor) Extract(doc *Document) (Findings, error) {
	seen := make(map[string]bool)
	phones := make([]model.Phone, 0)
	page := doc.PageURL()

	add := func(p model.Phone, ok bool) {
		if !ok || seen[p.Digits] {
			return
		}
		seen[p.Digits] = true
		p.SourcePage = page
		phones = append(phones, p)
	}

	doc.DOM().Find(`a[href]`).Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if len(href) < 4 || !strings.EqualFold(href[:4], "tel:") {
			return
		}
		raw := href[4:]
		if decoded, err := url.PathUnescape(raw); err == nil {
			raw = decoded
		}
		add(NormalizePhone(raw))
	})

	for _, match := range e.phoneRegex.FindAllString(doc.Text(), -1) {
		candidate := strings.TrimSpace(match)
		if !e.plausible(candidate) {
			continue
		}
		add(NormalizePhone(candidate))
	}

	return Findings{Phones: phones}, nil
}

// plausible filters text matches that are more likely dates, years,
// prices or identifiers than phone numbers.
func (e *PhoneExtractor) plausible(candidate string) bool {
	if e.dateRegex.MatchString(candidate) || e.yearRange.MatchString(candidate) {
		return false
	}
	// An unformatted run of digits is an identifier unless it is explicitly
	// international.
	if !strings.HasPrefix(candidate, "+") && !strings.ContainsAny(candidate, " .-/()") {
		return false
	}
	digits := digitsOnly(candidate)
	if len(digits) < minPhoneDigits+1 && !strings.HasPrefix(candidate, "+") {
		return false
	}
	return !repeatedDigit(digits)
}

// NormalizePhone strips formatting characters. The boolean is false when
// the result is not a plausible phone number.
func NormalizePhone(raw string) (model.Phone, bool) {
	raw = strings.TrimSpace(raw)
	international := strings.HasPrefix(raw, "+")
	digits := digitsOnly(raw)
	if !international && strings.HasPrefix(digits, "00") && len(digits) > 2+minPhoneDigits {
		international = true
		digits = digits[2:]
	}
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return model.Phone{}, false
	}
	if repeatedDigit(digits) {
		return model.Phone{}, false
	}
	number := digits
	if international {
		number = "+" + digits
	}
	return model.Phone{Number: number, Digits: digits}, true
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// repeatedDigit reports placeholder numbers such as "0000000000".
func repeatedDigit(digits string) bool {
	if digits == "" {
		return true
	}
	return strings.Count(digits, digits[:1]) == len(digits)
}
