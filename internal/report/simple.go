package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entities are shown.
	showEmpty bool

	// verbose adds page details and email sources.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the full result in human-readable format.
func (w *SimpleWriter) Write(result *model.ScrapeResult) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, result)
	w.writeSummary(&sb, result.Summary())
	w.writeEmails(&sb, result)
	w.writePeople(&sb, result)
	w.writePhones(&sb, result)
	w.writeSocial(&sb, result)
	w.writeTechnologies(&sb, result)
	if w.verbose {
		w.writePages(&sb, result)
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// WriteSummary outputs a one-line summary.
func (w *SimpleWriter) WriteSummary(s model.Summary) (int, error) {
	line := fmt.Sprintf("%s: %s, %d page(s), %d failed, %d email(s), %d people, %d phone(s), %d social, %d technologies, %d image(s)\n",
		s.RootURL, statusText(s.StopReason), s.Pages, s.PagesFailed,
		s.Emails, s.People, s.Phones, s.SocialPlatforms, s.Technologies, s.Images)
	return io.WriteString(w.output, line)
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, result *model.ScrapeResult) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         PROSPECT REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Site:      %s\n", result.RootURL)
	if result.OwnerID != "" {
		fmt.Fprintf(sb, "Owner:     %s\n", result.OwnerID)
	}
	fmt.Fprintf(sb, "Started:   %s\n", result.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:  %s\n", formatDuration(result.Duration()))
	fmt.Fprintf(sb, "Pages:     %d fetched, %d failed\n", result.Stats.PagesSucceeded, result.Stats.PagesFailed)
	fmt.Fprintf(sb, "Status:    %s\n", statusText(result.StopReason))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, s model.Summary) {
	section(sb, "ENTITIES")

	fmt.Fprintf(sb, "  EMAILS:       %d\n", s.Emails)
	fmt.Fprintf(sb, "  PEOPLE:       %d\n", s.People)
	fmt.Fprintf(sb, "  PHONES:       %d\n", s.Phones)
	fmt.Fprintf(sb, "  SOCIAL:       %d\n", s.SocialPlatforms)
	fmt.Fprintf(sb, "  TECHNOLOGIES: %d\n", s.Technologies)
	fmt.Fprintf(sb, "  IMAGES:       %d\n", s.Images)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  TOTAL:        %d\n\n", s.Total())
}

func (w *SimpleWriter) writeEmails(sb *strings.Builder, result *model.ScrapeResult) {
	addrs := result.EmailAddresses()
	if len(addrs) == 0 && !w.showEmpty {
		return
	}
	section(sb, "EMAILS")

	if len(addrs) == 0 {
		sb.WriteString("  No emails found\n\n")
		return
	}
	for _, addr := range addrs {
		rec := result.Emails[addr]
		a := rec.Analysis
		switch {
		case a == nil:
			fmt.Fprintf(sb, "  [?] %s\n", addr)
		case a.Failed():
			fmt.Fprintf(sb, "  [?] %s (analysis failed: %s)\n", addr, a.Error)
		default:
			fmt.Fprintf(sb, "  [%s] %s (%s, risk %d)\n", riskIndicator(a), addr, a.Type, a.RiskScore)
		}
		if w.verbose {
			fmt.Fprintf(sb, "      Source: %s\n", rec.SourcePage)
		}
	}
	sb.WriteString("\n")
}

// riskIndicator returns a visual indicator for a risk bucket.
func riskIndicator(a *model.EmailAnalysis) string {
	switch riskLabel(a) {
	case "high":
		return "!!"
	case "medium":
		return "!"
	case "low":
		return "+"
	default:
		return "?"
	}
}

func (w *SimpleWriter) writePeople(sb *strings.Builder, result *model.ScrapeResult) {
	if len(result.People) == 0 && !w.showEmpty {
		return
	}
	section(sb, "PEOPLE")

	if len(result.People) == 0 {
		sb.WriteString("  No people found\n\n")
		return
	}
	for _, p := range result.People {
		sb.WriteString("  * " + p.Name)
		if p.Title != "" {
			sb.WriteString(", " + p.Title)
		}
		if p.Email != "" {
			sb.WriteString(" <" + p.Email + ">")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePhones(sb *strings.Builder, result *model.ScrapeResult) {
	if len(result.Phones) == 0 && !w.showEmpty {
		return
	}
	section(sb, "PHONES")

	if len(result.Phones) == 0 {
		sb.WriteString("  No phones found\n\n")
		return
	}
	for _, p := range result.Phones {
		fmt.Fprintf(sb, "  * %s\n", p.Number)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSocial(sb *strings.Builder, result *model.ScrapeResult) {
	if len(result.SocialProfiles) == 0 && !w.showEmpty {
		return
	}
	section(sb, "SOCIAL PROFILES")

	if len(result.SocialProfiles) == 0 {
		sb.WriteString("  No social profiles found\n\n")
		return
	}
	for _, platform := range sortedKeys(result.SocialProfiles) {
		fmt.Fprintf(sb, "  %s\n", platform)
		for _, u := range result.SocialProfiles[platform] {
			fmt.Fprintf(sb, "    - %s\n", u)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTechnologies(sb *strings.Builder, result *model.ScrapeResult) {
	if len(result.Technologies) == 0 && !w.showEmpty {
		return
	}
	section(sb, "TECHNOLOGIES")

	if len(result.Technologies) == 0 {
		sb.WriteString("  No technologies detected\n\n")
		return
	}
	for _, cat := range sortedKeys(result.Technologies) {
		fmt.Fprintf(sb, "  %-14s %s\n", cat+":", strings.Join(result.Technologies[cat], ", "))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, result *model.ScrapeResult) {
	section(sb, "PAGES")

	for _, p := range result.Pages {
		status := "ok"
		if !p.Succeeded() {
			status = "FAILED"
			if p.Error != "" {
				status += ": " + p.Error
			}
		}
		fmt.Fprintf(sb, "  [d%d] %s (%d, %s)\n", p.Depth, p.URL, p.StatusCode, status)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by prospectcrawl\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
