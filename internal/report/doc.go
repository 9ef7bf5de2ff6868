// Package report renders crawl results.
//
// Writers for each output format:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter and FullJSONWriter: the ScrapeResult document, bare or
//     wrapped with the tool version and summary
//   - MarkdownWriter: GitHub flavored Markdown with an entity pie chart
//
// Writers implement the Writer interface and compose through MultiWriter.
package report
