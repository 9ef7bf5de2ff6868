package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loupix57/prospectlab-sub002/internal/config"
	"github.com/loupix57/prospectlab-sub002/internal/crawler"
	"github.com/loupix57/prospectlab-sub002/internal/database"
	"github.com/loupix57/prospectlab-sub002/internal/gate"
	"github.com/loupix57/prospectlab-sub002/internal/log"
	"github.com/loupix57/prospectlab-sub002/internal/model"
	"github.com/loupix57/prospectlab-sub002/internal/pipeline"
	"github.com/loupix57/prospectlab-sub002/internal/report"
	"github.com/loupix57/prospectlab-sub002/internal/robots"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl websites and extract prospecting data",
		Long: `Crawl explores each website from its root URL, staying on the same site,
and extracts:
- Email addresses, each checked by the email quality gate (type, MX, risk)
- People (name, title, email) from team and contact pages
- Phone numbers
- Social profiles (LinkedIn, Twitter/X, Facebook, ...)
- Technologies (CMS, analytics, frameworks)
- Images with their dimensions, and page metadata

A crawl stops when the frontier is drained, the page budget is used or the
time budget elapses. Ctrl+C stops the crawl early: pages in flight finish,
and the partial result is still reported and saved.

Examples:
  # Crawl one site with the default budgets
  prospectcrawl crawl https://acme.fr

  # A bare host is crawled over https
  prospectcrawl crawl acme.fr

  # Several sites, two at a time, JSON output to a file
  prospectcrawl crawl -b 2 --json -o leads.json acme.fr beta.io

  # Read the sites from a file, one per line
  prospectcrawl crawl --list sites.txt

  # Deeper crawl, polite towards robots.txt, 2 requests per second
  prospectcrawl crawl -d 3 --respect-robots --rate 2 acme.fr`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Budget flags
	cmd.Flags().IntP("depth", "d", config.DefaultCrawlDepth,
		"Maximum hop count from the root URL (0 fetches the root only)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages admitted per site")
	cmd.Flags().IntP("workers", "w", config.DefaultMaxWorkers,
		"Number of concurrent fetch workers per site")
	cmd.Flags().Duration("max-time", config.DefaultMaxTime,
		"Wall-clock budget of one site crawl")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Politeness delay before every fetch")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of a single page fetch")
	cmd.Flags().Int("fetch-retries", 0,
		"Extra attempts for a page after a network error or a 5xx response")

	// HTTP behavior flags
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().Bool("respect-robots", false,
		"Skip URLs disallowed by robots.txt and honour its Crawl-delay")
	cmd.Flags().Float64("rate", 0,
		"Maximum requests per second to one host (0 disables the limit)")
	cmd.Flags().String("proxy", "",
		"Proxy URL for every fetch (http://, https:// or socks5://)")

	// Email quality gate flags
	cmd.Flags().Bool("no-gate", false,
		"Record emails without quality analysis")
	cmd.Flags().Bool("no-mx", false,
		"Skip the MX lookup of the email quality gate")
	cmd.Flags().Int("gate-retries", 0,
		"Extra attempts for an email whose analysis failed")
	cmd.Flags().Duration("gate-timeout", config.DefaultGateTimeout,
		"Timeout of one email analysis")
	cmd.Flags().String("email-policy", config.DefaultEmailPolicy,
		`Page an email found on several pages is attributed to: "first" or "last"`)

	// Targets and batch flags
	cmd.Flags().StringP("list", "l", "",
		"File with one URL per line (lines starting with # are ignored)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of sites crawled concurrently")
	cmd.Flags().String("owner", "",
		"Owner identifier (company, lead or job id) stored with every result")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .prospectcrawl in current or home directory)")

	// Storage flags
	cmd.Flags().Bool("no-save", false,
		"Do not store results in the database")
	cmd.Flags().String("db-dir", "",
		"Directory of the SQLite result database (default: XDG data directory)")
	cmd.Flags().String("database-url", "",
		"PostgreSQL URL; results are stored there instead of SQLite")
	cmd.Flags().Duration("skip-recent", 0,
		"Skip sites with a stored result younger than this (e.g. 24h)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error
	if cfg.CrawlDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.MaxWorkers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.MaxTime, err = flags.GetDuration("max-time"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.FetchRetries, err = flags.GetInt("fetch-retries"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body"); err != nil {
		return nil, err
	}
	if cfg.RespectRobots, err = flags.GetBool("respect-robots"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.ProxyURL, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.DisableGate, err = flags.GetBool("no-gate"); err != nil {
		return nil, err
	}
	noMX, err := flags.GetBool("no-mx")
	if err != nil {
		return nil, err
	}
	cfg.CheckMX = !noMX
	if cfg.GateRetries, err = flags.GetInt("gate-retries"); err != nil {
		return nil, err
	}
	if cfg.GateTimeout, err = flags.GetDuration("gate-timeout"); err != nil {
		return nil, err
	}
	if cfg.EmailPolicy, err = flags.GetString("email-policy"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.OwnerID, err = flags.GetString("owner"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL, err = flags.GetString("database-url"); err != nil {
		return nil, err
	}
	if cfg.SkipRecent, err = flags.GetDuration("skip-recent"); err != nil {
		return nil, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}

	// An explicit config file must exist; otherwise a missing file means
	// no site settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	targets := slices.Clone(args)
	listFile, err := flags.GetString("list")
	if err != nil {
		return nil, err
	}
	if listFile != "" {
		listed, err := readTargetList(listFile)
		if err != nil {
			return nil, err
		}
		targets = append(targets, listed...)
	}
	if cfg.Targets, err = normalizeTargets(targets); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readTargetList reads one target per line. Blank lines and lines
// starting with # are skipped.
func readTargetList(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open target list: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target list: %w", err)
	}
	return targets, nil
}

// normalizeTargets turns every target into the normalized root URL the
// crawler reports, so that stored results of "acme.fr" and
// "https://acme.fr/" share one history. Duplicates are dropped.
func normalizeTargets(targets []string) ([]string, error) {
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))
	for _, target := range targets {
		normalized, err := normalizeTarget(target)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

func normalizeTarget(target string) (string, error) {
	root, err := model.CrawlRequest{RootURL: target}.Root()
	if err != nil {
		return "", fmt.Errorf("invalid target %q: %w", target, err)
	}
	return crawler.NormalizeURL(root), nil
}

// openStore opens the PostgreSQL store when databaseURL is set and the
// SQLite store in dbDir otherwise.
func openStore(ctx context.Context, databaseURL, dbDir string) (*database.ResultStore, error) {
	if databaseURL != "" {
		store, err := database.OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return store, nil
	}
	store, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// runCrawl crawls every target of cfg through the pipeline.
// Report output goes to stdout or cfg.ReportFile; progress lines go to stderr.
func runCrawl(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	if len(cfg.Targets) == 0 {
		return config.ErrNoTarget
	}

	logger.Info("starting crawl",
		"targets", len(cfg.Targets),
		"batch_size", cfg.BatchSize,
		"save_to_db", cfg.SaveToDB,
	)

	var store *database.ResultStore
	if cfg.SaveToDB {
		var err error
		store, err = openStore(ctx, cfg.DatabaseURL, cfg.DBDir)
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("database opened", "path", store.Path())
	}

	output, closeOutput, err := openOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer closeOutput()
	writer := newReportWriter(cfg, output)

	// Spiders are built up front so that a bad proxy URL fails before any crawl.
	crawlers := make(map[string]pipeline.Crawler, len(cfg.Targets))
	for _, target := range cfg.Targets {
		c, err := newSiteCrawler(cfg, target, logger)
		if err != nil {
			return err
		}
		crawlers[target] = c
	}

	jobs := make([]*pipeline.Job, len(cfg.Targets))
	for i, target := range cfg.Targets {
		jobs[i] = pipeline.NewJob(cfg.CrawlRequest(target))
	}

	var writeMu sync.Mutex
	factory := func(job *pipeline.Job) *pipeline.Pipeline {
		p := pipeline.New(pipeline.WithLogger(logger))
		if store != nil && cfg.SkipRecent > 0 {
			p.AddStep(pipeline.NewSkipRecentStep(store, cfg.SkipRecent, logger))
		}
		p.AddStep(pipeline.NewCrawlStep(crawlers[job.Target()], logger))
		if store != nil {
			p.AddStep(pipeline.NewSaveStep(store))
		}
		p.AddStep(pipeline.NewReportStep(writer, pipeline.WithWriteLock(&writeMu)))
		return p
	}

	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	status := report.NewSimpleWriter(stderr)
	var statusMu sync.Mutex
	batchErr := bp.ProcessBatchWithCallback(ctx, jobs, func(job *pipeline.Job, index int) {
		statusMu.Lock()
		defer statusMu.Unlock()

		prefix := fmt.Sprintf("[%d/%d] ", index+1, len(jobs))
		switch {
		case job.Skipped:
			fmt.Fprintf(stderr, "%s%s: skipped, %s\n", prefix, job.Target(), job.SkipReason)
		case job.Result == nil:
			fmt.Fprintf(stderr, "%s%s: failed: %v\n", prefix, job.Target(), job.Err)
		default:
			fmt.Fprint(stderr, prefix)
			_, _ = status.WriteSummary(job.Result.Summary()) //nolint:errcheck // status line only
		}
	})

	fmt.Fprintf(stderr, "Crawl completed in %s\n", time.Since(startTime).Round(time.Millisecond))

	if batchErr != nil {
		// Interrupted: finished and in-flight sites were reported and saved.
		logger.Warn("crawl interrupted", "reason", batchErr)
		return nil
	}

	var errs []error
	for _, job := range jobs {
		if job.Err != nil {
			errs = append(errs, job.Err)
		}
	}
	return errors.Join(errs...)
}

// openOutput returns the report destination: a freshly created file when
// path is set, stdout otherwise.
func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports hold personal data, readable by the owner only.
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // write errors surface from the writers
}

// newReportWriter selects the report format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// newSiteCrawler builds the spider of one target with its site settings.
func newSiteCrawler(cfg *config.Config, target string, logger *slog.Logger) (pipeline.Crawler, error) {
	site := cfg.SiteFor(target)

	fetcherOpts := []crawler.FetcherOption{
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithTimeout(cfg.Timeout),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithFetcherLogger(logger),
	}
	if cfg.ProxyURL != "" {
		fetcherOpts = append(fetcherOpts, crawler.WithProxy(cfg.ProxyURL))
	}
	if site.Cookie != "" {
		fetcherOpts = append(fetcherOpts, crawler.WithSiteCookie(site.Cookie))
	}
	if len(site.Headers) > 0 {
		fetcherOpts = append(fetcherOpts, crawler.WithSiteHeaders(site.Headers))
	}
	fetcher, err := crawler.NewHTTPFetcher(fetcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher for %s: %w", target, err)
	}

	spiderOpts := []crawler.SpiderOption{
		crawler.WithFetcher(fetcher),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithEmailPolicy(model.EmailSourcePolicy(cfg.EmailPolicy)),
		crawler.WithGateTimeout(cfg.GateTimeout),
		crawler.WithLogger(logger),
	}
	if !cfg.DisableGate {
		spiderOpts = append(spiderOpts, crawler.WithGate(gate.NewChecker(
			gate.WithMXCheck(cfg.CheckMX),
			gate.WithLogger(logger),
		)))
	}
	if cfg.RateLimit > 0 {
		spiderOpts = append(spiderOpts, crawler.WithRateLimit(cfg.RateLimit, 1))
	}
	if cfg.Verbose {
		spiderOpts = append(spiderOpts, crawler.WithProgress(progressLogger(logger)))
	}

	var agent *robots.Agent
	if cfg.RespectRobots {
		agent = robots.NewAgent(fetcher.Client(), cfg.UserAgent,
			robots.WithTimeout(cfg.Timeout),
			robots.WithLogger(logger),
		)
		spiderOpts = append(spiderOpts, crawler.WithRobots(agent))
	}

	spider := crawler.NewSpider(spiderOpts...)
	if agent == nil {
		return spider, nil
	}
	return &politeCrawler{Crawler: spider, agent: agent, logger: logger}, nil
}

// politeCrawler raises the politeness delay of a request to the site's
// robots.txt Crawl-delay.
type politeCrawler struct {
	pipeline.Crawler
	agent  *robots.Agent
	logger *slog.Logger
}

// Crawl implements pipeline.Crawler.
func (c *politeCrawler) Crawl(ctx context.Context, req model.CrawlRequest) (*model.ScrapeResult, error) {
	if root, err := req.Root(); err == nil {
		if d := c.agent.CrawlDelay(ctx, root); d > req.Delay() {
			c.logger.Info("using robots.txt crawl delay", "root", req.RootURL, "delay", d)
			req.DelaySeconds = d.Seconds()
		}
	}
	return c.Crawler.Crawl(ctx, req)
}

// progressLogger logs crawl progress at debug level.
func progressLogger(logger *slog.Logger) crawler.ProgressReporter {
	return crawler.FuncReporter(func(p crawler.Progress) {
		switch p.Event {
		case crawler.EventPage:
			logger.Debug("page done",
				"url", p.CurrentURL,
				"done", p.PagesDone,
				"admitted", p.PagesTotalEstimate,
			)
		case crawler.EventEmail:
			logger.Debug("email analyzed", "email", p.Email, "emails", p.Stats.Emails)
		}
	})
}
