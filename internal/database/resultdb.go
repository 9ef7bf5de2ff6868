package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"   // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// DBFileName is the SQLite database file created in the data directory.
const DBFileName = "prospectcrawl.db"

// ErrEmptyResult is returned when saving a nil result or one without a root URL.
var ErrEmptyResult = errors.New("result has no root URL")

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// ResultStore persists finished crawl results. Each result is stored as a
// JSON document with its summary, plus one row per page and per email so
// history can be queried without decoding documents.
type ResultStore struct {
	db      *sql.DB
	dialect dialect

	// dbPath is the SQLite file path. Empty for PostgreSQL.
	dbPath string
}

// Options configures SQLite store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the SQLite result store in dbDir.
func Open(dbDir string, opts Options) (*ResultStore, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	store := &ResultStore{db: db, dialect: dialectSQLite, dbPath: dbPath}
	if err := store.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// OpenPostgres connects to a PostgreSQL result store and creates the
// schema when missing.
func OpenPostgres(ctx context.Context, dsn string) (*ResultStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	store := &ResultStore{db: db, dialect: dialectPostgres}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *ResultStore) Close() error {
	return s.db.Close()
}

// Path returns the SQLite file path, or "" for PostgreSQL.
func (s *ResultStore) Path() string {
	return s.dbPath
}

func (s *ResultStore) createTables(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == dialectPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS crawl_results (
			id ` + id + `,
			root_url TEXT NOT NULL,
			owner_id TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			stop_reason TEXT,
			summary_json TEXT NOT NULL,
			result_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_root ON crawl_results(root_url)`,
		`CREATE INDEX IF NOT EXISTS idx_results_owner ON crawl_results(owner_id)`,

		`CREATE TABLE IF NOT EXISTS crawl_pages (
			id ` + id + `,
			result_id BIGINT NOT NULL REFERENCES crawl_results(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			depth INTEGER,
			status_code INTEGER,
			content_type TEXT,
			hash TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pages_result ON crawl_pages(result_id)`,

		`CREATE TABLE IF NOT EXISTS crawl_emails (
			id ` + id + `,
			result_id BIGINT NOT NULL REFERENCES crawl_results(id) ON DELETE CASCADE,
			address TEXT NOT NULL,
			source_page TEXT,
			email_type TEXT,
			risk_score INTEGER,
			mx_valid BOOLEAN,
			analysis_error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_result ON crawl_emails(result_id)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_address ON crawl_emails(address)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites "?" placeholders to the dialect's syntax.
func (s *ResultStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveResult stores a finished result with its pages and emails in one
// transaction and returns the new result ID.
func (s *ResultStore) SaveResult(ctx context.Context, result *model.ScrapeResult) (int64, error) {
	if result == nil || result.RootURL == "" {
		return 0, ErrEmptyResult
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize result: %w", err)
	}
	summaryJSON, err := json.Marshal(result.Summary())
	if err != nil {
		return 0, fmt.Errorf("failed to serialize summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id int64
	err = tx.QueryRowContext(ctx, s.rebind(`
	INSERT INTO crawl_results (root_url, owner_id, started_at, finished_at, stop_reason, summary_json, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	RETURNING id
	`),
		result.RootURL,
		result.OwnerID,
		formatTimestamp(result.StartedAt),
		formatTimestamp(result.FinishedAt),
		string(result.StopReason),
		string(summaryJSON),
		string(resultJSON),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert result: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx, s.rebind(`
	INSERT INTO crawl_pages (result_id, url, depth, status_code, content_type, hash, error)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	for _, p := range result.Pages {
		if _, err := pageStmt.ExecContext(ctx, id, p.URL, p.Depth, p.StatusCode, p.ContentType, p.Hash, p.Error); err != nil {
			return 0, fmt.Errorf("failed to insert page %s: %w", p.URL, err)
		}
	}

	emailStmt, err := tx.PrepareContext(ctx, s.rebind(`
	INSERT INTO crawl_emails (result_id, address, source_page, email_type, risk_score, mx_valid, analysis_error)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare email insert: %w", err)
	}
	defer emailStmt.Close()

	for _, addr := range result.EmailAddresses() {
		rec := result.Emails[addr]
		var analysis model.EmailAnalysis
		if rec.Analysis != nil {
			analysis = *rec.Analysis
		}
		if _, err := emailStmt.ExecContext(ctx, id, rec.Address, rec.SourcePage,
			analysis.Type, analysis.RiskScore, analysis.MXValid, analysis.Error); err != nil {
			return 0, fmt.Errorf("failed to insert email: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit result: %w", err)
	}
	return id, nil
}

// LatestResult returns the most recent result for rootURL, or nil when
// the site was never crawled.
func (s *ResultStore) LatestResult(ctx context.Context, rootURL string) (*model.ScrapeResult, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx, s.rebind(`
	SELECT result_json FROM crawl_results
	WHERE root_url = ?
	ORDER BY id DESC
	LIMIT 1
	`), rootURL).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest result: %w", err)
	}
	return decodeResult(resultJSON)
}

// ResultByID returns the result stored under id, or nil when absent.
func (s *ResultStore) ResultByID(ctx context.Context, id int64) (*model.ScrapeResult, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx, s.rebind(`
	SELECT result_json FROM crawl_results WHERE id = ?
	`), id).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	return decodeResult(resultJSON)
}

func decodeResult(raw string) (*model.ScrapeResult, error) {
	var result model.ScrapeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return &result, nil
}

// ListRoots returns every crawled root URL in alphabetical order.
func (s *ResultStore) ListRoots(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT DISTINCT root_url FROM crawl_results
	ORDER BY root_url
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	roots := make([]string, 0)
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan root: %w", err)
		}
		roots = append(roots, root)
	}
	return roots, rows.Err()
}

// ResultMetadata describes a stored result without its full document.
type ResultMetadata struct {
	ID         int64
	RootURL    string
	OwnerID    string
	FinishedAt time.Time
	StopReason model.StopReason
	Summary    model.Summary
}

// History returns the metadata of every result for rootURL, newest first.
func (s *ResultStore) History(ctx context.Context, rootURL string) ([]ResultMetadata, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
	SELECT id, root_url, owner_id, finished_at, stop_reason, summary_json
	FROM crawl_results
	WHERE root_url = ?
	ORDER BY id DESC
	`), rootURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	history := make([]ResultMetadata, 0)
	for rows.Next() {
		var (
			meta        ResultMetadata
			owner       sql.NullString
			finished    string
			reason      sql.NullString
			summaryJSON string
		)
		if err := rows.Scan(&meta.ID, &meta.RootURL, &owner, &finished, &reason, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.OwnerID = owner.String
		meta.FinishedAt = parseTimestamp(finished)
		meta.StopReason = model.StopReason(reason.String)
		if err := json.Unmarshal([]byte(summaryJSON), &meta.Summary); err != nil {
			meta.Summary = model.Summary{RootURL: meta.RootURL}
		}
		history = append(history, meta)
	}
	return history, rows.Err()
}

// HasRecentResult reports whether rootURL was crawled within the last d.
func (s *ResultStore) HasRecentResult(ctx context.Context, rootURL string, d time.Duration) (bool, error) {
	var finished string
	err := s.db.QueryRowContext(ctx, s.rebind(`
	SELECT finished_at FROM crawl_results
	WHERE root_url = ?
	ORDER BY id DESC
	LIMIT 1
	`), rootURL).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check recent result: %w", err)
	}
	ts := parseTimestamp(finished)
	return !ts.IsZero() && time.Since(ts) < d, nil
}

// EmailSighting is one stored email of one result.
type EmailSighting struct {
	ResultID   int64
	Address    string
	SourcePage string
	Type       string
	RiskScore  int
	MXValid    bool
	Error      string
}

// Emails returns every stored email of rootURL, newest result first.
func (s *ResultStore) Emails(ctx context.Context, rootURL string) ([]EmailSighting, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
	SELECT e.result_id, e.address, e.source_page, e.email_type, e.risk_score, e.mx_valid, e.analysis_error
	FROM crawl_emails e
	JOIN crawl_results r ON r.id = e.result_id
	WHERE r.root_url = ?
	ORDER BY e.result_id DESC, e.address
	`), rootURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	emails := make([]EmailSighting, 0)
	for rows.Next() {
		var (
			e                          EmailSighting
			source, emailType, errText sql.NullString
			risk                       sql.NullInt64
			mx                         sql.NullBool
		)
		if err := rows.Scan(&e.ResultID, &e.Address, &source, &emailType, &risk, &mx, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		e.SourcePage = source.String
		e.Type = emailType.String
		e.RiskScore = int(risk.Int64)
		e.MXValid = mx.Bool
		e.Error = errText.String
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats the stores may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp parses a stored timestamp, or returns the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
