package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// MarkdownWriter outputs results as GitHub flavored Markdown, with a
// mermaid pie chart of the extracted entities.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the full result in Markdown format.
func (w *MarkdownWriter) Write(result *model.ScrapeResult) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := result.Summary()

	w.writeHeader(md, result)
	w.writeSummary(md, summary)
	w.writeAlert(md, result, summary)
	w.writeEmails(md, result)
	w.writePeople(md, result)
	w.writePhones(md, result)
	w.writeSocial(md, result)
	w.writeTechnologies(md, result)
	w.writeFailedPages(md, result)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs the completion totals only.
func (w *MarkdownWriter) WriteSummary(summary model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Crawl Summary: " + summary.RootURL)
	md.PlainText("")
	w.writeSummary(md, summary)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *model.ScrapeResult) {
	md.H1("Prospect Report")
	md.PlainText("")

	rows := [][]string{
		{"Site", "`" + result.RootURL + "`"},
		{"Started", result.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration", formatDuration(result.Duration())},
		{"Pages", fmt.Sprintf("%d fetched, %d failed", result.Stats.PagesSucceeded, result.Stats.PagesFailed)},
		{"Status", statusText(result.StopReason)},
	}
	if result.OwnerID != "" {
		rows = append(rows, []string{"Owner", result.OwnerID})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s model.Summary) {
	md.H2("Entities")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Category", "Count"},
		Rows: [][]string{
			{"Emails", strconv.Itoa(s.Emails)},
			{"People", strconv.Itoa(s.People)},
			{"Phones", strconv.Itoa(s.Phones)},
			{"Social platforms", strconv.Itoa(s.SocialPlatforms)},
			{"Technologies", strconv.Itoa(s.Technologies)},
			{"Images", strconv.Itoa(s.Images)},
			{"**Total**", "**" + strconv.Itoa(s.Total()) + "**"},
		},
	})
	md.PlainText("")

	if s.Total() > 0 {
		w.writePieChart(md, s)
	}
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Entities by Category"),
		piechart.WithShowData(true),
	)

	slices := []struct {
		label string
		value int
	}{
		{"Emails", s.Emails},
		{"People", s.People},
		{"Phones", s.Phones},
		{"Social", s.SocialPlatforms},
		{"Technologies", s.Technologies},
		{"Images", s.Images},
	}
	for _, sl := range slices {
		if sl.value > 0 {
			chart.LabelAndIntValue(sl.label, uint64(sl.value))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, result *model.ScrapeResult, s model.Summary) {
	switch {
	case isPartial(result.StopReason):
		md.Warningf("The crawl stopped early (%s). Results cover %d page(s) only.", result.StopReason, s.Pages)
	case result.Stats.GateErrors > 0:
		md.Importantf("%d email analysis call(s) failed. Those addresses are flagged with an error.", result.Stats.GateErrors)
	case s.Emails == 0:
		md.Note("No email address was found on this site.")
	default:
		md.Tip("Crawl complete.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeEmails(md *markdown.Markdown, result *model.ScrapeResult) {
	md.H2("Emails")
	md.PlainText("")

	addrs := result.EmailAddresses()
	if len(addrs) == 0 {
		md.PlainText("No emails found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(addrs))
	for _, addr := range addrs {
		rec := result.Emails[addr]
		typ, mx := "-", "-"
		if a := rec.Analysis; a != nil && !a.Failed() {
			typ = a.Type
			mx = strconv.FormatBool(a.MXValid)
		}
		rows = append(rows, []string{
			"`" + addr + "`",
			typ,
			riskLabel(rec.Analysis),
			mx,
			truncateString(rec.SourcePage, 60),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Address", "Type", "Risk", "MX", "Source"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writePeople(md *markdown.Markdown, result *model.ScrapeResult) {
	if len(result.People) == 0 {
		return
	}
	md.H2("People")
	md.PlainText("")

	rows := make([][]string, len(result.People))
	for i, p := range result.People {
		rows[i] = []string{p.Name, orDash(p.Title), orDash(p.Email), truncateString(p.SourcePage, 60)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Name", "Title", "Email", "Source"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writePhones(md *markdown.Markdown, result *model.ScrapeResult) {
	if len(result.Phones) == 0 {
		return
	}
	md.H2("Phones")
	md.PlainText("")

	items := make([]string, len(result.Phones))
	for i, p := range result.Phones {
		items[i] = fmt.Sprintf("`%s` (%s)", p.Number, p.SourcePage)
	}
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeSocial(md *markdown.Markdown, result *model.ScrapeResult) {
	if len(result.SocialProfiles) == 0 {
		return
	}
	md.H2("Social Profiles")
	md.PlainText("")

	for _, platform := range sortedKeys(result.SocialProfiles) {
		md.PlainText("### " + platform)
		md.PlainText("")
		md.BulletList(result.SocialProfiles[platform]...)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeTechnologies(md *markdown.Markdown, result *model.ScrapeResult) {
	if len(result.Technologies) == 0 {
		return
	}
	md.H2("Technologies")
	md.PlainText("")

	categories := sortedKeys(result.Technologies)
	rows := make([][]string, len(categories))
	for i, cat := range categories {
		rows[i] = []string{cat, strings.Join(result.Technologies[cat], ", ")}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Technologies"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailedPages(md *markdown.Markdown, result *model.ScrapeResult) {
	rows := make([][]string, 0)
	for _, p := range result.Pages {
		if p.Succeeded() {
			continue
		}
		rows = append(rows, []string{truncateString(p.URL, 60), strconv.Itoa(p.StatusCode), truncateString(orDash(p.Error), 60)})
	}
	if len(rows) == 0 {
		return
	}

	md.H2("Failed Pages")
	md.PlainText("")
	md.Details(
		fmt.Sprintf("%d page(s) could not be fetched", len(rows)),
		"Failures are local to each page and do not stop the crawl.",
	)
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by prospectcrawl*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
