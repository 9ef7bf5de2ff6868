package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with the expected defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	if cfg.Timeout != 15*time.Second {
		t.Errorf("expected Timeout to be 15s, got %v", cfg.Timeout)
	}
	if cfg.CrawlDepth != 2 {
		t.Errorf("expected CrawlDepth to be 2, got %d", cfg.CrawlDepth)
	}
	if cfg.MaxPages != 50 {
		t.Errorf("expected MaxPages to be 50, got %d", cfg.MaxPages)
	}
	if cfg.MaxWorkers != 5 {
		t.Errorf("expected MaxWorkers to be 5, got %d", cfg.MaxWorkers)
	}
	if cfg.MaxTime != 300*time.Second {
		t.Errorf("expected MaxTime to be 300s, got %v", cfg.MaxTime)
	}
	if cfg.CrawlDelay != 500*time.Millisecond {
		t.Errorf("expected CrawlDelay to be 500ms, got %v", cfg.CrawlDelay)
	}
	if cfg.EmailPolicy != "first" {
		t.Errorf("expected EmailPolicy to be 'first', got %q", cfg.EmailPolicy)
	}
	if !cfg.CheckMX {
		t.Error("expected CheckMX to be enabled")
	}
	if cfg.DisableGate || cfg.RespectRobots || cfg.SaveToDB {
		t.Error("expected optional features to be disabled")
	}
	if !strings.HasPrefix(cfg.UserAgent, "prospectcrawl/") {
		t.Errorf("expected a prospectcrawl user agent, got %q", cfg.UserAgent)
	}
}

// TestConfigValidate tests the Validate method, one rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Targets = []string{"https://acme.fr"}
		return cfg
	}

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"no target", func(c *Config) { c.Targets = nil }, ErrNoTarget},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, ErrInvalidBatchSize},
		{"negative depth", func(c *Config) { c.CrawlDepth = -1 }, ErrInvalidCrawlDepth},
		{"zero max pages", func(c *Config) { c.MaxPages = 0 }, ErrInvalidMaxPages},
		{"zero workers", func(c *Config) { c.MaxWorkers = 0 }, ErrInvalidMaxWorkers},
		{"negative max time", func(c *Config) { c.MaxTime = -time.Second }, ErrInvalidMaxTime},
		{"json and markdown", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"negative delay", func(c *Config) { c.CrawlDelay = -time.Millisecond }, ErrInvalidCrawlDelay},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, ErrInvalidRateLimit},
		{"negative fetch retries", func(c *Config) { c.FetchRetries = -1 }, ErrInvalidRetries},
		{"negative gate retries", func(c *Config) { c.GateRetries = -1 }, ErrInvalidRetries},
		{"unknown email policy", func(c *Config) { c.EmailPolicy = "random" }, ErrInvalidEmailPolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("zero max time is allowed", func(t *testing.T) {
		t.Parallel()

		cfg := validConfig()
		cfg.MaxTime = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected zero max time to be valid, got %v", err)
		}
	})
}

// TestFileGetSiteConfig tests merging of site configuration over defaults.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	cf := &File{
		Defaults: SiteConfig{
			Cookie:         "lang=fr",
			Depth:          1,
			Headers:        map[string]string{"X-Team": "sales"},
			IgnorePatterns: []string{"/blog/*"},
		},
		Sites: map[string]SiteConfig{
			"acme.fr": {
				Depth:          3,
				MaxPages:       120,
				Headers:        map[string]string{"X-Token": "abc"},
				FollowPatterns: []string{"/equipe*"},
			},
		},
	}

	t.Run("site overrides defaults", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("acme.fr")
		if sc.Depth != 3 || sc.MaxPages != 120 {
			t.Errorf("expected depth 3 and max pages 120, got %d and %d", sc.Depth, sc.MaxPages)
		}
		if sc.Cookie != "lang=fr" {
			t.Errorf("expected default cookie to be kept, got %q", sc.Cookie)
		}
		if sc.Headers["X-Team"] != "sales" || sc.Headers["X-Token"] != "abc" {
			t.Errorf("expected merged headers, got %v", sc.Headers)
		}
		if len(sc.IgnorePatterns) != 1 || len(sc.FollowPatterns) != 1 {
			t.Errorf("expected patterns from both levels, got %v and %v", sc.IgnorePatterns, sc.FollowPatterns)
		}
	})

	t.Run("www prefix and case are ignored", func(t *testing.T) {
		t.Parallel()

		if sc := cf.GetSiteConfig("WWW.Acme.fr"); sc.Depth != 3 {
			t.Errorf("expected site config for www host, got depth %d", sc.Depth)
		}
	})

	t.Run("unknown site gets defaults", func(t *testing.T) {
		t.Parallel()

		sc := cf.GetSiteConfig("other.fr")
		if sc.Depth != 1 || sc.MaxPages != 0 {
			t.Errorf("expected defaults, got %+v", sc)
		}
	})

	t.Run("merging does not mutate defaults", func(t *testing.T) {
		t.Parallel()

		_ = cf.GetSiteConfig("acme.fr")
		if _, ok := cf.Defaults.Headers["X-Token"]; ok {
			t.Error("expected default headers to be left untouched")
		}
	})
}

// TestConfigCrawlRequest tests the conversion of a Config into a crawl request.
func TestConfigCrawlRequest(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.OwnerID = "lead-42"
	cfg.FetchRetries = 1
	cfg.SiteConfigs = &File{Sites: map[string]SiteConfig{"acme.fr": {Depth: 4, MaxPages: 10}}}

	req := cfg.CrawlRequest("https://www.acme.fr/")
	if req.MaxDepth != 4 || req.MaxPages != 10 {
		t.Errorf("expected site overrides, got depth %d pages %d", req.MaxDepth, req.MaxPages)
	}
	if req.MaxWorkers != 5 || req.OwnerID != "lead-42" || req.FetchRetries != 1 {
		t.Errorf("expected global values to be copied, got %+v", req)
	}
	if req.MaxTimeSeconds != 300 || req.DelaySeconds != 0.5 {
		t.Errorf("expected time budgets in seconds, got %v and %v", req.MaxTimeSeconds, req.DelaySeconds)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("expected a valid request, got %v", err)
	}

	other := cfg.CrawlRequest("other.fr")
	if other.MaxDepth != 2 || other.MaxPages != 50 {
		t.Errorf("expected global budgets for other site, got depth %d pages %d", other.MaxDepth, other.MaxPages)
	}
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	writeConfig := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		return path
	}

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.prospectcrawl")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, `defaults:
  depth: 1
  cookie: "lang=fr"
sites:
  https://WWW.Acme.fr/:
    depth: 3
    maxPages: 80
    headers:
      Authorization: "Bearer token"
    ignorePatterns:
      - "/blog/*"
`)

		cfg, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Defaults.Depth != 1 || cfg.Defaults.Cookie != "lang=fr" {
			t.Errorf("unexpected defaults: %+v", cfg.Defaults)
		}

		site, ok := cfg.Sites["acme.fr"]
		if !ok {
			t.Fatalf("expected normalized key acme.fr, got %v", cfg.Sites)
		}
		if site.Depth != 3 || site.MaxPages != 80 {
			t.Errorf("expected depth 3 and max pages 80, got %d and %d", site.Depth, site.MaxPages)
		}
		if site.Headers["Authorization"] != "Bearer token" {
			t.Errorf("expected Authorization header")
		}
		if len(site.IgnorePatterns) != 1 {
			t.Errorf("expected 1 ignore pattern, got %d", len(site.IgnorePatterns))
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		if _, err := LoadConfigFile(writeConfig(t, `invalid: yaml: content: [}`)); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile(writeConfig(t, "defaults:\n  depth: 1\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
		"cache":  XDGCacheDir(),
	} {
		if !strings.HasSuffix(dir, AppName) {
			t.Errorf("expected %s dir to end with %q, got %q", name, AppName, dir)
		}
	}
}
