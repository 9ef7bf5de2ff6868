package extract

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// teamCardSelector matches the usual team and about page card markup.
const teamCardSelector = `.team-member, .team__member, .teammember, .member, .staff, .staff-member, ` +
	`.person, .profile-card, .team-card, .card-team, .equipe-membre, .membre, .collaborateur`

// PersonExtractor finds people from structured markup and name-title
// adjacency. Precision is traded for recall; results are reviewed by a
// human downstream.
type PersonExtractor struct {
	titleKeywords []string
	stopWords     map[string]bool
	lang          language.Tag
}

// NewPersonExtractor creates a PersonExtractor.
func NewPersonExtractor() *PersonExtractor {
	return &PersonExtractor{
		titleKeywords: []string{
			// English
			"ceo", "cto", "cfo", "coo", "cmo", "founder", "co-founder", "cofounder",
			"president", "director", "manager", "head of", "lead", "engineer",
			"developer", "designer", "consultant", "partner", "owner", "officer",
			"chief", "vp", "vice president", "sales", "marketing", "account",
			"assistant", "associate", "specialist", "analyst", "advisor",
			// French
			"directeur", "directrice", "gérant", "gérante", "fondateur",
			"fondatrice", "responsable", "chef de", "chargé", "chargée",
			"associé", "associée", "commercial", "commerciale", "ingénieur",
			"développeur", "développeuse", "comptable", "secrétaire", "conseiller",
			"conseillère", "président", "présidente", "dirigeant", "dirigeante",
		},
		stopWords: map[string]bool{
			"our": true, "team": true, "about": true, "contact": true, "us": true,
			"the": true, "notre": true, "équipe": true, "nous": true, "services": true,
			"home": true, "accueil": true, "menu": true, "read": true, "more": true,
			"privacy": true, "policy": true, "terms": true, "news": true,
		},
		lang: language.English,
	}
}

// Name returns the extractor name.
func (e *PersonExtractor) Name() string {
	return NamePerson
}

// Extract runs the JSON-LD, microdata, team card and adjacency passes.
func (e *PersonExtractor) Extract(doc *Document) (Findings, error) {
	c := &personCollector{
		page:  doc.PageURL(),
		seen:  make(map[string]bool),
		names: make(map[string]bool),
	}

	e.fromJSONLD(doc, c)
	e.fromMicrodata(doc, c)
	e.fromCards(doc, c)
	e.fromAdjacency(doc, c)

	return Findings{People: c.people}, nil
}

type personCollector struct {
	page   string
	seen   map[string]bool
	names  map[string]bool
	people []model.Person
}

func (c *personCollector) add(p model.Person) {
	key := strings.ToLower(p.Name) + "|" + strings.ToLower(p.Email)
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.names[strings.ToLower(p.Name)] = true
	p.SourcePage = c.page
	c.people = append(c.people, p)
}

func (e *PersonExtractor) fromJSONLD(doc *Document, c *personCollector) {
	doc.DOM().Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}
		e.walkJSONLD(data, c)
	})
}

// walkJSONLD visits every object of a JSON-LD tree, including @graph,
// employee and founder members.
func (e *PersonExtractor) walkJSONLD(node any, c *personCollector) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			e.walkJSONLD(item, c)
		}
	case map[string]any:
		if isPersonType(v["@type"]) {
			name, _ := v["name"].(string)
			if name == "" {
				given, _ := v["givenName"].(string)
				family, _ := v["familyName"].(string)
				name = strings.TrimSpace(given + " " + family)
			}
			if name, ok := e.cleanName(name); ok {
				title, _ := v["jobTitle"].(string)
				email, _ := v["email"].(string)
				c.add(model.Person{
					Name:  name,
					Title: cleanText(title),
					Email: cleanEmail(email),
				})
			}
		}
		for _, child := range v {
			e.walkJSONLD(child, c)
		}
	}
}

func isPersonType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Person")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Person") {
				return true
			}
		}
	}
	return false
}

func (e *PersonExtractor) fromMicrodata(doc *Document, c *personCollector) {
	doc.DOM().Find(`[itemtype*="schema.org/Person"]`).Each(func(_ int, s *goquery.Selection) {
		name, ok := e.cleanName(s.Find(`[itemprop="name"]`).First().Text())
		if !ok {
			return
		}
		email := s.Find(`[itemprop="email"]`).First()
		addr := email.AttrOr("content", email.AttrOr("href", email.Text()))
		if addr == "" {
			addr = mailtoIn(s)
		}
		c.add(model.Person{
			Name:  name,
			Title: cleanText(s.Find(`[itemprop="jobTitle"]`).First().Text()),
			Email: cleanEmail(addr),
		})
	})
}

func (e *PersonExtractor) fromCards(doc *Document, c *personCollector) {
	doc.DOM().Find(teamCardSelector).Each(func(_ int, card *goquery.Selection) {
		var name string
		card.Find(`.name, .member-name, .team-name, .nom, h2, h3, h4, h5, strong`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if n, ok := e.cleanName(s.Text()); ok {
				name = n
				return false
			}
			return true
		})
		if name == "" {
			return
		}
		var title string
		card.Find(`.title, .role, .position, .job, .job-title, .poste, .fonction, p, span`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := cleanText(s.Text())
			if text != "" && text != name && e.looksLikeTitle(text) {
				title = text
				return false
			}
			return true
		})
		c.add(model.Person{
			Name:  name,
			Title: title,
			Email: cleanEmail(mailtoIn(card)),
		})
	})
}

// fromAdjacency pairs a name-like heading with a title-like next sibling.
func (e *PersonExtractor) fromAdjacency(doc *Document, c *personCollector) {
	doc.DOM().Find(`h2, h3, h4, h5, strong, b`).Each(func(_ int, s *goquery.Selection) {
		name, ok := e.cleanName(s.Text())
		if !ok || c.names[strings.ToLower(name)] {
			return
		}
		next := s.Next()
		if next.Length() == 0 {
			return
		}
		title := cleanText(next.Text())
		if !e.looksLikeTitle(title) {
			return
		}
		c.add(model.Person{Name: name, Title: title})
	})
}

func (e *PersonExtractor) looksLikeTitle(text string) bool {
	if len(text) < 2 || len(text) > 80 {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range e.titleKeywords {
		if containsWord(lower, kw) {
			return true
		}
	}
	return false
}

// cleanName validates a candidate person name: two to four capitalized
// words made of letters, hyphens and apostrophes. All-caps names are
// title-cased.
func (e *PersonExtractor) cleanName(raw string) (string, bool) {
	name := cleanText(raw)
	if len(name) < 4 || len(name) > 60 {
		return "", false
	}
	words := strings.Fields(name)
	if len(words) < 2 || len(words) > 4 {
		return "", false
	}
	upper := true
	for _, w := range words {
		if e.stopWords[strings.ToLower(w)] {
			return "", false
		}
		first := []rune(w)[0]
		if !unicode.IsUpper(first) {
			return "", false
		}
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '-' && r != '\'' && r != '.' {
				return "", false
			}
			if unicode.IsLower(r) {
				upper = false
			}
		}
	}
	if upper {
		// Casers are stateful and cannot be shared between workers.
		name = cases.Title(e.lang).String(strings.ToLower(name))
	}
	return name, true
}

// containsWord reports whether kw appears in s on word boundaries.
func containsWord(s, kw string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(kw)
		before := start == 0 || !isWordByte(s[start-1])
		after := end == len(s) || !isWordByte(s[end])
		if before && after {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || b >= 0x80
}

func mailtoIn(s *goquery.Selection) string {
	href, _ := s.Find(`a[href^="mailto:"], a[href^="MAILTO:"]`).First().Attr("href")
	if href == "" {
		return ""
	}
	addrs := ParseMailto(href)
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

func cleanEmail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		if addrs := ParseMailto(s); len(addrs) > 0 {
			return addrs[0]
		}
		return ""
	}
	if !strings.Contains(s, "@") {
		return ""
	}
	return strings.ToLower(s)
}
