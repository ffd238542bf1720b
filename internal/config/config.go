// Package config loads application configuration from environment variables
// and the ecosystem manifest.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nanocasa/casa/internal/domain/model"
)

const (
	envPrefix         = "CASA_"
	intervalEnvPrefix = envPrefix + "INTERVAL_"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken  string
	ListenAddr   string
	DBPath       string
	ManifestPath string
	FlagshipRepo string
	AdminToken   string

	ActivityMode     model.ActivityMode
	Inception        time.Time
	FetchConcurrency int
	PopularRepoRank  int

	HTTPTimeout      time.Duration
	ProbeTimeout     time.Duration
	ProbeConcurrency int
	JobRetention     int

	LedgerAccount   string
	LedgerRPCURL    string
	LedgerRPCKey    string
	LedgerTimeout   time.Duration
	LedgerSkipFirst bool
	IdentityURL     string

	SpotlightSkipTop  int
	SpotlightMaxStars int

	LogLevel         slog.Level
	LogFormat        string
	Tracing          bool
	TraceSampleRatio float64

	// Intervals holds per-job overrides keyed by lower-case job name.
	Intervals map[string]time.Duration

	Manifest *Manifest
}

// HasGitHubToken reports whether GitHub requests will be authenticated.
// Unauthenticated requests work but hit a much lower rate limit.
func (c *Config) HasGitHubToken() bool {
	return c.GitHubToken != ""
}

// Interval returns the configured interval for a job, or def when the job has
// no override.
func (c *Config) Interval(job string, def time.Duration) time.Duration {
	if d, ok := c.Intervals[job]; ok {
		return d
	}
	return def
}

// Load reads configuration from environment variables and returns a validated
// Config. Every variable is optional; see the defaults below. The manifest is
// read from CASA_MANIFEST_PATH (ecosystem.yaml), falling back to the built-in
// manifest when the file does not exist.
func Load() (*Config, error) {
	cfg := &Config{
		GitHubToken:  os.Getenv("CASA_GITHUB_TOKEN"),
		ListenAddr:   envString("CASA_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:       envString("CASA_DB_PATH", "casa.db"),
		ManifestPath: envString("CASA_MANIFEST_PATH", "ecosystem.yaml"),
		FlagshipRepo: envString("CASA_FLAGSHIP_REPO", "nanocurrency/nano-node"),
		AdminToken:   os.Getenv("CASA_ADMIN_TOKEN"),

		LedgerAccount: envString("CASA_LEDGER_ACCOUNT", "@Protocol_fund"),
		LedgerRPCURL:  envString("CASA_LEDGER_RPC_URL", "https://rpc.nano.to"),
		LedgerRPCKey:  os.Getenv("CASA_LEDGER_RPC_KEY"),
		IdentityURL:   envString("CASA_IDENTITY_URL", "https://nano.to/known.json"),

		LogFormat: strings.ToLower(envString("CASA_LOG_FORMAT", "text")),
		Intervals: make(map[string]time.Duration),
	}

	var err error

	mode := model.ActivityMode(strings.ToLower(envString("CASA_ACTIVITY_MODE", string(model.ActivityModeIncremental))))
	if mode != model.ActivityModeIncremental && mode != model.ActivityModeFull {
		return nil, fmt.Errorf("CASA_ACTIVITY_MODE has invalid value %q: expected incremental or full", mode)
	}
	cfg.ActivityMode = mode

	inception := envString("CASA_INCEPTION", "2015-01-01")
	if cfg.Inception, err = time.Parse(time.DateOnly, inception); err != nil {
		if cfg.Inception, err = time.Parse(time.RFC3339, inception); err != nil {
			return nil, fmt.Errorf("CASA_INCEPTION has invalid date %q: %w", inception, err)
		}
	}
	cfg.Inception = cfg.Inception.UTC()

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"CASA_FETCH_CONCURRENCY", 5, &cfg.FetchConcurrency},
		{"CASA_PROBE_CONCURRENCY", 8, &cfg.ProbeConcurrency},
		{"CASA_JOB_RETENTION", 50, &cfg.JobRetention},
		{"CASA_POPULAR_REPO_RANK", 15, &cfg.PopularRepoRank},
		{"CASA_SPOTLIGHT_SKIP_TOP", 15, &cfg.SpotlightSkipTop},
		{"CASA_SPOTLIGHT_MAX_STARS", 500, &cfg.SpotlightMaxStars},
	}
	for _, i := range ints {
		if *i.dest, err = envInt(i.key, i.def); err != nil {
			return nil, err
		}
	}
	if cfg.FetchConcurrency < 1 {
		return nil, fmt.Errorf("CASA_FETCH_CONCURRENCY must be at least 1, got %d", cfg.FetchConcurrency)
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"CASA_HTTP_TIMEOUT", 30 * time.Second, &cfg.HTTPTimeout},
		{"CASA_PROBE_TIMEOUT", 2500 * time.Millisecond, &cfg.ProbeTimeout},
		{"CASA_LEDGER_TIMEOUT", 10 * time.Second, &cfg.LedgerTimeout},
	}
	for _, d := range durations {
		if *d.dest, err = envDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.LedgerSkipFirst, err = envBool("CASA_LEDGER_SKIP_FIRST", true); err != nil {
		return nil, err
	}
	if cfg.Tracing, err = envBool("CASA_TRACING", false); err != nil {
		return nil, err
	}

	cfg.TraceSampleRatio = 1.0
	if v, ok := os.LookupEnv("CASA_TRACE_SAMPLE_RATIO"); ok {
		if cfg.TraceSampleRatio, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("CASA_TRACE_SAMPLE_RATIO has invalid number %q: %w", v, err)
		}
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envString("CASA_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("CASA_LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("CASA_LOG_FORMAT has invalid value %q: expected text or json", cfg.LogFormat)
	}

	for _, kv := range os.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		job, ok := strings.CutPrefix(key, intervalEnvPrefix)
		if !ok || job == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid duration %q: %w", key, value, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %s", key, d)
		}
		cfg.Intervals[strings.ToLower(job)] = d
	}

	if cfg.Manifest, err = LoadManifest(cfg.ManifestPath); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", key, v, err)
	}
	return b, nil
}
