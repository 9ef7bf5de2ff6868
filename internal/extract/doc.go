// Package extract turns one fetched page into categorized findings.
//
// # Architecture
//
// Every category is an Extractor: a pure function of a parsed Document.
// Extractors are independent of each other and are held by a Registry,
// which runs them in turn and merges their Findings. A panic or error in
// one extractor is captured and reported without losing the findings of
// the others.
//
// # Categories
//
//   - email: visible text and mailto: links
//   - phone: tel: links and formatted numbers in visible text
//   - person: schema.org markup, team cards, name and title adjacency
//   - social: links matching known platform profile shapes
//   - technology: header, script, stylesheet and generator signatures
//   - image: <img> and <picture> sources with known dimensions
//   - metadata: title, description, canonical, preview tags, locale, media
//
// # Usage
//
//	doc, err := extract.NewDocument(pageURL, resp.Header, body)
//	findings, errs := extract.DefaultRegistry().Run(doc)
package extract
