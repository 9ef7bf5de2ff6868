package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loupix57/prospectlab-sub002/internal/config"
	"github.com/loupix57/prospectlab-sub002/internal/database"
	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// NewHistoryCmd creates the history command.
// It reads results stored by previous crawls.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show stored crawl results and compare them",
		Long: `History reads the results stored by previous crawls.

Without flags it lists the stored results of a site. With --compare it shows
what changed between two crawls of the site:
- Emails, phones and people that appeared or disappeared
- Technologies added or removed
- Changes in entity counts

Examples:
  # List every crawled site
  prospectcrawl history --list-sites

  # List stored results of a site
  prospectcrawl history acme.fr

  # List every email ever found on a site with its quality
  prospectcrawl history --emails acme.fr

  # Compare the latest two crawls
  prospectcrawl history --compare acme.fr

  # Compare the latest crawl with a specific stored result
  prospectcrawl history --compare --with-id 5 acme.fr

  # Compare with the first crawl since a date, as JSON
  prospectcrawl history --compare --since 2025-01-01 --json acme.fr`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-sites", "L", false,
		"List every site with stored results")
	cmd.Flags().BoolP("emails", "e", false,
		"List every stored email of the site")
	cmd.Flags().BoolP("compare", "C", false,
		"Compare the latest result with a previous one")
	cmd.Flags().Int64P("with-id", "i", 0,
		"Compare with the stored result of this ID")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first result after this date (format: YYYY-MM-DD)")
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")
	cmd.Flags().String("db-dir", "",
		"Directory of the SQLite result database (default: XDG data directory)")
	cmd.Flags().String("database-url", "",
		"PostgreSQL URL to read results from instead of SQLite")

	return cmd
}

// historyOptions are the parsed flags of the history command.
type historyOptions struct {
	listSites bool
	emails    bool
	compare   bool
	withID    int64
	since     string
	json      bool
	markdown  bool
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	var (
		opts historyOptions
		err  error
	)
	flags := cmd.Flags()
	if opts.listSites, err = flags.GetBool("list-sites"); err != nil {
		return err
	}
	if opts.emails, err = flags.GetBool("emails"); err != nil {
		return err
	}
	if opts.compare, err = flags.GetBool("compare"); err != nil {
		return err
	}
	if opts.withID, err = flags.GetInt64("with-id"); err != nil {
		return err
	}
	if opts.since, err = flags.GetString("since"); err != nil {
		return err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}
	databaseURL, err := flags.GetString("database-url")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var root string
	if !opts.listSites {
		if len(args) == 0 {
			return errors.New("site URL is required (use --list-sites to see stored sites)")
		}
		if root, err = normalizeTarget(args[0]); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, databaseURL, dbDir)
	if err != nil {
		return err
	}
	defer store.Close()

	return runHistory(ctx, store, root, opts, cmd.OutOrStdout())
}

// runHistory dispatches to the requested listing or comparison.
func runHistory(ctx context.Context, store *database.ResultStore, root string, opts historyOptions, out io.Writer) error {
	switch {
	case opts.listSites:
		return listSites(ctx, store, out)
	case opts.emails:
		return listEmails(ctx, store, root, out)
	case opts.compare || opts.withID > 0 || opts.since != "":
		comparison, err := buildComparison(ctx, store, root, opts.withID, opts.since)
		if err != nil {
			return err
		}
		switch {
		case opts.json:
			return outputComparisonJSON(out, comparison)
		case opts.markdown:
			return outputComparisonMarkdown(out, comparison)
		default:
			return outputComparisonText(out, comparison)
		}
	default:
		return listHistory(ctx, store, root, out)
	}
}

// listSites lists every site that has stored results.
func listSites(ctx context.Context, store *database.ResultStore, out io.Writer) error {
	roots, err := store.ListRoots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	if len(roots) == 0 {
		fmt.Fprintln(out, "No crawled sites found in the database.")
		fmt.Fprintln(out, "\nUse 'prospectcrawl crawl <url>' to crawl a site.")
		return nil
	}

	fmt.Fprintf(out, "Crawled sites (%d):\n\n", len(roots))
	for _, root := range roots {
		fmt.Fprintf(out, "  • %s\n", root)
	}
	fmt.Fprintln(out, "\nUse 'prospectcrawl history <url>' to see the stored results of a site.")
	return nil
}

// listHistory lists the stored results of one site, newest first.
func listHistory(ctx context.Context, store *database.ResultStore, root string, out io.Writer) error {
	history, err := store.History(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to get history: %w", err)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No stored results for %s\n", root)
		fmt.Fprintln(out, "\nUse 'prospectcrawl crawl' to crawl this site.")
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d results):\n\n", root, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %-12s  %s\n", "ID", "Date", "Stop", "Entities")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for _, meta := range history {
		fmt.Fprintf(out, "  %-6d  %-20s  %-12s  %s\n",
			meta.ID,
			meta.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			orUnknown(string(meta.StopReason)),
			formatEntitySummary(meta.Summary),
		)
	}

	fmt.Fprintln(out, "\nUse 'prospectcrawl history --compare <url>' to compare the latest two crawls.")
	return nil
}

// listEmails lists every stored email of a site with its latest quality.
func listEmails(ctx context.Context, store *database.ResultStore, root string, out io.Writer) error {
	sightings, err := store.Emails(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to list emails: %w", err)
	}

	if len(sightings) == 0 {
		fmt.Fprintf(out, "No stored emails for %s\n", root)
		return nil
	}

	// Sightings come newest result first: keep the latest per address.
	latest := make(map[string]database.EmailSighting)
	seenIn := make(map[string]int)
	for _, s := range sightings {
		if _, ok := latest[s.Address]; !ok {
			latest[s.Address] = s
		}
		seenIn[s.Address]++
	}
	addresses := make([]string, 0, len(latest))
	for addr := range latest {
		addresses = append(addresses, addr)
	}
	slices.Sort(addresses)

	fmt.Fprintf(out, "Emails for %s (%d):\n\n", root, len(addresses))
	fmt.Fprintf(out, "  %-40s  %-12s  %-5s  %-4s  %-6s  %s\n", "Address", "Type", "Risk", "MX", "Crawls", "Source")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))
	for _, addr := range addresses {
		s := latest[addr]
		risk := strconv.Itoa(s.RiskScore)
		if s.Error != "" {
			risk = "?"
		}
		mx := "no"
		if s.MXValid {
			mx = "yes"
		}
		fmt.Fprintf(out, "  %-40s  %-12s  %-5s  %-4s  %-6d  %s\n",
			addr, orUnknown(s.Type), risk, mx, seenIn[addr], s.SourcePage)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// formatEntitySummary formats the entity counts of a summary.
func formatEntitySummary(s model.Summary) string {
	if s.Total() == 0 {
		return fmt.Sprintf("No entities (%d pages)", s.Pages)
	}
	return fmt.Sprintf("E:%d P:%d T:%d S:%d Tech:%d (%d pages)",
		s.Emails, s.People, s.Phones, s.SocialPlatforms, s.Technologies, s.Pages)
}

// ComparisonResult holds the differences between two crawls of a site.
type ComparisonResult struct {
	RootURL string `json:"root_url"`

	Previous ResultSnapshot `json:"previous"`
	Current  ResultSnapshot `json:"current"`

	NewEmails  []string `json:"new_emails,omitempty"`
	LostEmails []string `json:"lost_emails,omitempty"`

	NewPhones  []string `json:"new_phones,omitempty"`
	LostPhones []string `json:"lost_phones,omitempty"`

	NewPeople  []string `json:"new_people,omitempty"`
	LostPeople []string `json:"lost_people,omitempty"`

	NewTechnologies  []string `json:"new_technologies,omitempty"`
	LostTechnologies []string `json:"lost_technologies,omitempty"`

	// Delta is the change of the entity total between the two crawls.
	Delta int `json:"delta"`
}

// ResultSnapshot describes one side of a comparison.
type ResultSnapshot struct {
	FinishedAt time.Time     `json:"finished_at"`
	StopReason string        `json:"stop_reason"`
	Summary    model.Summary `json:"summary"`
}

// HasChanges reports whether any entity appeared or disappeared.
func (c *ComparisonResult) HasChanges() bool {
	return len(c.NewEmails)+len(c.LostEmails)+len(c.NewPhones)+len(c.LostPhones)+
		len(c.NewPeople)+len(c.LostPeople)+len(c.NewTechnologies)+len(c.LostTechnologies) > 0
}

// buildComparison loads the latest result of root and the result it is
// compared with: the one of withID, the oldest since the given date, or
// the previous one.
func buildComparison(ctx context.Context, store *database.ResultStore, root string, withID int64, since string) (*ComparisonResult, error) {
	history, err := store.History(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("no stored results for %s", root)
	}
	if len(history) < 2 && withID == 0 && since == "" {
		return nil, fmt.Errorf("at least 2 results are required for comparison (found %d)", len(history))
	}

	currentID := history[0].ID
	var previousID int64

	switch {
	case withID > 0:
		idx := slices.IndexFunc(history, func(m database.ResultMetadata) bool { return m.ID == withID })
		if idx < 0 {
			return nil, fmt.Errorf("result %d not found for %s", withID, root)
		}
		previousID = withID
	case since != "":
		sinceDate, err := time.ParseInLocation("2006-01-02", since, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		// History is newest first: walk backwards to the oldest match.
		for i := len(history) - 1; i >= 0; i-- {
			if !history[i].FinishedAt.Before(sinceDate) {
				previousID = history[i].ID
				break
			}
		}
		if previousID == 0 {
			return nil, fmt.Errorf("no results found since %s", since)
		}
	default:
		previousID = history[1].ID
	}
	if previousID == currentID {
		return nil, errors.New("only the latest result matches; at least 2 results are required for comparison")
	}

	current, err := store.ResultByID(ctx, currentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load result %d: %w", currentID, err)
	}
	previous, err := store.ResultByID(ctx, previousID)
	if err != nil {
		return nil, fmt.Errorf("failed to load result %d: %w", previousID, err)
	}
	if current == nil || previous == nil {
		return nil, fmt.Errorf("stored result of %s is missing", root)
	}
	return compareResults(previous, current), nil
}

// compareResults computes what appeared and disappeared between two results.
func compareResults(previous, current *model.ScrapeResult) *ComparisonResult {
	c := &ComparisonResult{
		RootURL:  current.RootURL,
		Previous: snapshotOf(previous),
		Current:  snapshotOf(current),
	}
	c.Delta = c.Current.Summary.Total() - c.Previous.Summary.Total()

	c.NewEmails, c.LostEmails = diffSets(emailSet(previous), emailSet(current))
	c.NewPhones, c.LostPhones = diffSets(phoneSet(previous), phoneSet(current))
	c.NewPeople, c.LostPeople = diffSets(personSet(previous), personSet(current))
	c.NewTechnologies, c.LostTechnologies = diffSets(techSet(previous), techSet(current))
	return c
}

func snapshotOf(r *model.ScrapeResult) ResultSnapshot {
	return ResultSnapshot{
		FinishedAt: r.FinishedAt,
		StopReason: string(r.StopReason),
		Summary:    r.Summary(),
	}
}

func emailSet(r *model.ScrapeResult) map[string]struct{} {
	set := make(map[string]struct{}, len(r.Emails))
	for addr := range r.Emails {
		set[addr] = struct{}{}
	}
	return set
}

func phoneSet(r *model.ScrapeResult) map[string]struct{} {
	set := make(map[string]struct{}, len(r.Phones))
	for _, p := range r.Phones {
		set[p.Number] = struct{}{}
	}
	return set
}

func personSet(r *model.ScrapeResult) map[string]struct{} {
	set := make(map[string]struct{}, len(r.People))
	for _, p := range r.People {
		key := p.Name
		if p.Title != "" {
			key += " (" + p.Title + ")"
		}
		set[key] = struct{}{}
	}
	return set
}

func techSet(r *model.ScrapeResult) map[string]struct{} {
	set := make(map[string]struct{})
	for category, names := range r.Technologies {
		for _, name := range names {
			set[category+": "+name] = struct{}{}
		}
	}
	return set
}

// diffSets returns the sorted keys only in current (added) and only in
// previous (removed).
func diffSets(previous, current map[string]struct{}) (added, removed []string) {
	for k := range current {
		if _, ok := previous[k]; !ok {
			added = append(added, k)
		}
	}
	for k := range previous {
		if _, ok := current[k]; !ok {
			removed = append(removed, k)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// entityRows lists the per-category counts of both sides.
func entityRows(result *ComparisonResult) [][3]string {
	p, c := result.Previous.Summary, result.Current.Summary
	row := func(name string, before, after int) [3]string {
		return [3]string{name, strconv.Itoa(before), strconv.Itoa(after) + " (" + formatDelta(after-before) + ")"}
	}
	return [][3]string{
		row("Pages", p.Pages, c.Pages),
		row("Emails", p.Emails, c.Emails),
		row("People", p.People, c.People),
		row("Phones", p.Phones, c.Phones),
		row("Social", p.SocialPlatforms, c.SocialPlatforms),
		row("Technologies", p.Technologies, c.Technologies),
		row("Images", p.Images, c.Images),
	}
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Crawl Comparison: %s\n\n", result.RootURL)
	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "**Entity change:** %s\n\n", formatDelta(result.Delta))

	sb.WriteString("| Metric | Previous | Current | Change |\n")
	sb.WriteString("|--------|----------|---------|--------|\n")
	fmt.Fprintf(&sb, "| Date | %s | %s | - |\n",
		result.Previous.FinishedAt.Local().Format("2006-01-02 15:04"),
		result.Current.FinishedAt.Local().Format("2006-01-02 15:04"))
	p, c := result.Previous.Summary, result.Current.Summary
	for _, r := range []struct {
		name          string
		before, after int
	}{
		{"Pages", p.Pages, c.Pages},
		{"Emails", p.Emails, c.Emails},
		{"People", p.People, c.People},
		{"Phones", p.Phones, c.Phones},
		{"Social", p.SocialPlatforms, c.SocialPlatforms},
		{"Technologies", p.Technologies, c.Technologies},
		{"Images", p.Images, c.Images},
	} {
		fmt.Fprintf(&sb, "| %s | %d | %d | %s |\n", r.name, r.before, r.after, formatDelta(r.after-r.before))
	}

	markdownList(&sb, "New Emails", result.NewEmails, false)
	markdownList(&sb, "Lost Emails", result.LostEmails, true)
	markdownList(&sb, "New Phones", result.NewPhones, false)
	markdownList(&sb, "Lost Phones", result.LostPhones, true)
	markdownList(&sb, "New People", result.NewPeople, false)
	markdownList(&sb, "Lost People", result.LostPeople, true)
	markdownList(&sb, "New Technologies", result.NewTechnologies, false)
	markdownList(&sb, "Removed Technologies", result.LostTechnologies, true)

	if !result.HasChanges() {
		sb.WriteString("\n---\n\n*No entity changed*\n")
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func markdownList(sb *strings.Builder, title string, items []string, strike bool) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n## %s (%d)\n\n", title, len(items))
	for _, item := range items {
		if strike {
			fmt.Fprintf(sb, "- ~~%s~~\n", item)
		} else {
			fmt.Fprintf(sb, "- %s\n", item)
		}
	}
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Crawl Comparison: %s\n", result.RootURL)
	sb.WriteString(strings.Repeat("=", 60) + "\n")

	fmt.Fprintf(&sb, "\nPrevious crawl: %s (%s)\n",
		result.Previous.FinishedAt.Local().Format("2006-01-02 15:04:05"), orUnknown(result.Previous.StopReason))
	fmt.Fprintf(&sb, "Current crawl:  %s (%s)\n",
		result.Current.FinishedAt.Local().Format("2006-01-02 15:04:05"), orUnknown(result.Current.StopReason))

	sb.WriteString("\nEntities:\n")
	fmt.Fprintf(&sb, "  %-14s  %-10s  %s\n", "Category", "Previous", "Current")
	sb.WriteString("  " + strings.Repeat("-", 45) + "\n")
	for _, row := range entityRows(result) {
		fmt.Fprintf(&sb, "  %-14s  %-10s  %s\n", row[0], row[1], row[2])
	}

	textList(&sb, "New emails", "+", result.NewEmails)
	textList(&sb, "Lost emails", "-", result.LostEmails)
	textList(&sb, "New phones", "+", result.NewPhones)
	textList(&sb, "Lost phones", "-", result.LostPhones)
	textList(&sb, "New people", "+", result.NewPeople)
	textList(&sb, "Lost people", "-", result.LostPeople)
	textList(&sb, "New technologies", "+", result.NewTechnologies)
	textList(&sb, "Removed technologies", "-", result.LostTechnologies)

	if !result.HasChanges() {
		sb.WriteString("\nNo entity changed.\n")
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

func textList(sb *strings.Builder, title, marker string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s (%d):\n", title, len(items))
	for _, item := range items {
		fmt.Fprintf(sb, "  [%s] %s\n", marker, item)
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
