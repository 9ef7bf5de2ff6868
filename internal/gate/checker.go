package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/loupix57/prospectlab-sub002/internal/model"
)

// Email type classifications.
const (
	TypeProfessional = "professional"
	TypeRole         = "role"
	TypeFree         = "free"
	TypeDisposable   = "disposable"
	TypeInvalid      = "invalid"
)

// Risk score contributions.
const (
	riskDisposable = 60
	riskNoMX       = 40
	riskNoReply    = 30
	riskRole       = 15
	riskFree       = 10
	maxRisk        = 100
)

// Gate analyzes one email address. Implementations must be safe for
// concurrent use.
type Gate interface {
	Analyze(ctx context.Context, email string) (model.EmailAnalysis, error)
}

// MXResolver looks up mail exchangers. *net.Resolver satisfies it.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Checker is the built-in Gate. It works offline except for the optional
// MX lookup, whose answers are cached per domain for the Checker's
// lifetime.
type Checker struct {
	resolver MXResolver
	checkMX  bool
	now      func() time.Time
	logger   *slog.Logger

	formatRegex *regexp.Regexp

	group   singleflight.Group
	mu      sync.Mutex
	mxCache map[string]bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithResolver sets the MX resolver.
func WithResolver(r MXResolver) Option {
	return func(c *Checker) {
		c.resolver = r
	}
}

// WithMXCheck enables or disables the MX lookup.
func WithMXCheck(enabled bool) Option {
	return func(c *Checker) {
		c.checkMX = enabled
	}
}

// WithClock sets the time source used for AnalyzedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// NewChecker creates a Checker. MX lookups are enabled and use
// net.DefaultResolver unless configured otherwise.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		resolver:    net.DefaultResolver,
		checkMX:     true,
		now:         time.Now,
		formatRegex: regexp.MustCompile(`^[a-z0-9!#$%&'*+/=?^_{|}~\-]+(?:\.[a-z0-9!#$%&'*+/=?^_{|}~\-]+)*@(?:[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?\.)+[a-z]{2,}$`),
		mxCache:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Analyze classifies email. A syntactically invalid address is a
// successful analysis with type "invalid". An error is returned only when
// the MX lookup fails for a reason other than a missing domain; the
// returned analysis then holds everything computed offline.
func (c *Checker) Analyze(ctx context.Context, email string) (model.EmailAnalysis, error) {
	addr := strings.ToLower(strings.TrimSpace(email))
	analysis := model.EmailAnalysis{AnalyzedAt: c.now()}

	local, domain, ok := strings.Cut(addr, "@")
	if ok {
		analysis.Domain = domain
	}
	if !ok || !c.validFormat(addr) {
		analysis.Type = TypeInvalid
		analysis.RiskScore = maxRisk
		return analysis, nil
	}
	analysis.FormatValid = true

	analysis.Provider = domain
	if name, free := freeProviders[domain]; free {
		analysis.Provider = name
	}
	analysis.Type = classify(local, domain)
	analysis.Name = inferName(local, analysis.Type)

	var lookupErr error
	if c.checkMX {
		analysis.MXValid, lookupErr = c.lookupMX(ctx, domain)
		if lookupErr != nil {
			c.logger.Debug("mx lookup failed", "domain", domain, "error", lookupErr)
		}
	}

	analysis.RiskScore = c.risk(local, analysis, lookupErr == nil)
	return analysis, lookupErr
}

func (c *Checker) validFormat(addr string) bool {
	if len(addr) > 254 || !c.formatRegex.MatchString(addr) {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}

// classify applies disposable > role > free > professional precedence.
func classify(local, domain string) string {
	switch {
	case disposableDomains[domain]:
		return TypeDisposable
	case roleLocals[local] || noReplyLocals[local]:
		return TypeRole
	case freeProviders[domain] != "":
		return TypeFree
	default:
		return TypeProfessional
	}
}

func (c *Checker) risk(local string, a model.EmailAnalysis, mxChecked bool) int {
	score := 0
	switch a.Type {
	case TypeDisposable:
		score += riskDisposable
	case TypeRole:
		score += riskRole
	case TypeFree:
		score += riskFree
	}
	if noReplyLocals[local] {
		score += riskNoReply
	}
	if c.checkMX && mxChecked && !a.MXValid {
		score += riskNoMX
	}
	return min(score, maxRisk)
}

// lookupMX reports whether domain publishes a usable mail exchanger.
// Concurrent lookups of one domain share a single query.
func (c *Checker) lookupMX(ctx context.Context, domain string) (bool, error) {
	c.mu.Lock()
	valid, cached := c.mxCache[domain]
	c.mu.Unlock()
	if cached {
		return valid, nil
	}

	v, err, _ := c.group.Do(domain, func() (any, error) {
		records, err := c.resolver.LookupMX(ctx, domain)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				return false, nil
			}
			return false, fmt.Errorf("%w: %s: %w", ErrMXLookup, domain, err)
		}
		// A single "." record is a null MX: the domain accepts no mail.
		usable := false
		for _, mx := range records {
			if mx.Host != "." && mx.Host != "" {
				usable = true
				break
			}
		}
		return usable, nil
	})
	if err != nil {
		return false, err
	}

	valid = v.(bool)
	c.mu.Lock()
	c.mxCache[domain] = valid
	c.mu.Unlock()
	return valid, nil
}

// inferName derives a person name from a local part such as
// "jane.doe", "jane_doe" or "jean-pierre.martin". Role addresses and
// single-token locals yield no name.
func inferName(local, emailType string) model.NameInfo {
	if emailType == TypeRole || emailType == TypeDisposable {
		return model.NameInfo{}
	}
	if i := strings.IndexByte(local, '+'); i >= 0 {
		local = local[:i]
	}

	sep := "."
	switch {
	case strings.Contains(local, "."):
	case strings.Contains(local, "_"):
		sep = "_"
	case strings.Count(local, "-") == 1:
		sep = "-"
	default:
		return model.NameInfo{}
	}

	parts := strings.Split(local, sep)
	if len(parts) < 2 || len(parts) > 3 {
		return model.NameInfo{}
	}
	for _, p := range parts {
		if len(p) < 2 || !alphaOrHyphen(p) {
			return model.NameInfo{}
		}
	}

	caser := cases.Title(language.English)
	first := caser.String(parts[0])
	last := caser.String(parts[len(parts)-1])
	return model.NameInfo{
		First: first,
		Last:  last,
		Full:  first + " " + last,
	}
}

func alphaOrHyphen(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '-' {
			return false
		}
	}
	return true
}
