package model

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all engine configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// HTTPConfig configures the safe outbound fetcher
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	AllowedHosts      []string      `yaml:"allowed_hosts" mapstructure:"allowed_hosts"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"` // Per domain
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// SourceConfig configures one evidence source
type SourceConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Weight         float64       `yaml:"weight" mapstructure:"weight"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"` // Deadline for the whole fetch task, retries included
	APIKey         string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	MatchThreshold float64       `yaml:"match_threshold,omitempty" mapstructure:"match_threshold"` // Name token overlap required for directory hits
}

// SourcesConfig configures every source by ID
type SourcesConfig struct {
	Gazette   SourceConfig `yaml:"gazette_of_india" mapstructure:"gazette_of_india"`
	IndiaCode SourceConfig `yaml:"india_code" mapstructure:"india_code"`
	Sansad    SourceConfig `yaml:"sansad_parliament" mapstructure:"sansad_parliament"`
	MyScheme  SourceConfig `yaml:"myscheme_gov" mapstructure:"myscheme_gov"`
	DataGovIn SourceConfig `yaml:"data_gov_in" mapstructure:"data_gov_in"`
}

// ByID returns the configuration of a source
func (s SourcesConfig) ByID(id SourceID) SourceConfig {
	switch id {
	case SourceGazette:
		return s.Gazette
	case SourceIndiaCode:
		return s.IndiaCode
	case SourceSansad:
		return s.Sansad
	case SourceMyScheme:
		return s.MyScheme
	case SourceDataGovIn:
		return s.DataGovIn
	default:
		return SourceConfig{}
	}
}

// Weights returns the configured weight of every source
func (s SourcesConfig) Weights() map[SourceID]float64 {
	weights := make(map[SourceID]float64, len(AllSources))
	for _, id := range AllSources {
		weights[id] = s.ByID(id).Weight
	}
	return weights
}

// RetryConfig configures transient-failure retries
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

// BreakerConfig configures the per-source circuit breaker
type BreakerConfig struct {
	ConsecutiveFailures int           `yaml:"consecutive_failures" mapstructure:"consecutive_failures"`
	FailureRate         float64       `yaml:"failure_rate" mapstructure:"failure_rate"`
	Window              time.Duration `yaml:"window" mapstructure:"window"`
	MinSamples          int           `yaml:"min_samples" mapstructure:"min_samples"`
	OpenTimeout         time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
	HalfOpenSuccesses   int           `yaml:"half_open_successes" mapstructure:"half_open_successes"`
}

// ScoringConfig configures the trust scorer and state machine
type ScoringConfig struct {
	LowThreshold             float64       `yaml:"low_threshold" mapstructure:"low_threshold"`
	HighThreshold            float64       `yaml:"high_threshold" mapstructure:"high_threshold"`
	HalfLife                 time.Duration `yaml:"half_life" mapstructure:"half_life"`
	Saturation               float64       `yaml:"saturation" mapstructure:"saturation"`
	VerifiedMinAuthoritative int           `yaml:"verified_min_authoritative" mapstructure:"verified_min_authoritative"`
	DisputeAfterRuns         int           `yaml:"dispute_after_runs" mapstructure:"dispute_after_runs"`
	OfficialDomains          []string      `yaml:"official_domains" mapstructure:"official_domains"`
}

// VerifyConfig configures the orchestrator
type VerifyConfig struct {
	MaxConcurrentSchemes int           `yaml:"max_concurrent_schemes" mapstructure:"max_concurrent_schemes"`
	BatchWorkers         int           `yaml:"batch_workers" mapstructure:"batch_workers"`
	QueueSize            int           `yaml:"queue_size" mapstructure:"queue_size"`
	StaleAfter           time.Duration `yaml:"stale_after" mapstructure:"stale_after"`
}

// CacheConfig configures the provider response cache
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend       string        `yaml:"backend" mapstructure:"backend"` // memory, disk, layered or redis
	Dir           string        `yaml:"dir" mapstructure:"dir"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	RedisAddr     string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
}

// StoreConfig configures the evidence store
type StoreConfig struct {
	Path           string        `yaml:"path" mapstructure:"path"`
	LockTimeout    time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
	CommitAttempts int           `yaml:"commit_attempts" mapstructure:"commit_attempts"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	AdminAPIKey     string        `yaml:"admin_api_key,omitempty" mapstructure:"admin_api_key"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DashboardConfig configures the dashboard read model
type DashboardConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`
	TopN            int           `yaml:"top_n" mapstructure:"top_n"`
}

// CatalogConfig points at the scheme catalogue
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:      10 * time.Second,
			UserAgent:    "SchemeTrust/0.1 (+https://github.com/ppiankov/schemetrust)",
			MaxBodyBytes: 5_000_000,
			AllowedHosts: []string{
				"egazette.gov.in",
				"indiacode.nic.in",
				"sansad.in",
				"rajyasabha.nic.in",
				"loksabha.nic.in",
				"myscheme.gov.in",
				"api.data.gov.in",
			},
			RespectRobots:     false,
			RequestsPerSecond: 0.5,
			Burst:             2,
		},
		Sources: SourcesConfig{
			Gazette:   SourceConfig{Enabled: true, BaseURL: "https://egazette.gov.in", Weight: 1.0, Timeout: 30 * time.Second},
			IndiaCode: SourceConfig{Enabled: true, BaseURL: "https://www.indiacode.nic.in", Weight: 0.9, Timeout: 30 * time.Second},
			Sansad:    SourceConfig{Enabled: true, BaseURL: "https://sansad.in", Weight: 0.85, Timeout: 30 * time.Second},
			MyScheme:  SourceConfig{Enabled: true, BaseURL: "https://www.myscheme.gov.in", Weight: 0.7, Timeout: 30 * time.Second, MatchThreshold: 0.6},
			DataGovIn: SourceConfig{Enabled: true, BaseURL: "https://api.data.gov.in", Weight: 0.5, Timeout: 30 * time.Second, MatchThreshold: 0.4},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			FailureRate:         0.5,
			Window:              60 * time.Second,
			MinSamples:          10,
			OpenTimeout:         30 * time.Second,
			HalfOpenSuccesses:   3,
		},
		Scoring: ScoringConfig{
			LowThreshold:             0.35,
			HighThreshold:            0.7,
			HalfLife:                 180 * 24 * time.Hour,
			Saturation:               1.05,
			// Two of gazette, act and parliament. Schemes created by executive order
			// never appear in the act register, so requiring all three would keep them
			// partially verified forever. Set to 3 for the strict reading.
			VerifiedMinAuthoritative: 2,
			DisputeAfterRuns:         2,
			OfficialDomains:          []string{"gov.in", "nic.in", "sansad.in"},
		},
		Verify: VerifyConfig{
			MaxConcurrentSchemes: 4,
			BatchWorkers:         3,
			QueueSize:            256,
			StaleAfter:           168 * time.Hour,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
			Dir:     ".schemetrust-cache",
			TTL:     24 * time.Hour,
		},
		Store: StoreConfig{
			Path:           "schemetrust.db",
			LockTimeout:    5 * time.Second,
			CommitAttempts: 3,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Dashboard: DashboardConfig{
			RefreshInterval: time.Minute,
			TopN:            10,
		},
		Catalog: CatalogConfig{
			Path: "schemes.yaml",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for values the engine cannot run with
func (c Config) Validate() error {
	var errs []error

	if c.Scoring.LowThreshold < 0 || c.Scoring.HighThreshold > 1 || c.Scoring.LowThreshold > c.Scoring.HighThreshold {
		errs = append(errs, fmt.Errorf("scoring: thresholds must satisfy 0 <= low (%.2f) <= high (%.2f) <= 1",
			c.Scoring.LowThreshold, c.Scoring.HighThreshold))
	}
	if c.Scoring.HalfLife <= 0 {
		errs = append(errs, errors.New("scoring: half_life must be positive"))
	}
	if c.Scoring.Saturation <= 0 {
		errs = append(errs, errors.New("scoring: saturation must be positive"))
	}
	if c.Scoring.VerifiedMinAuthoritative < 1 || c.Scoring.VerifiedMinAuthoritative > len(AuthoritativeSources) {
		errs = append(errs, fmt.Errorf("scoring: verified_min_authoritative must be between 1 and %d", len(AuthoritativeSources)))
	}
	if c.Scoring.DisputeAfterRuns < 1 {
		errs = append(errs, errors.New("scoring: dispute_after_runs must be at least 1"))
	}
	for _, id := range AllSources {
		sc := c.Sources.ByID(id)
		if sc.Weight < 0 || sc.Weight > 1 {
			errs = append(errs, fmt.Errorf("sources.%s: weight must be in [0,1], got %.2f", id, sc.Weight))
		}
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry: max_attempts must be at least 1"))
	}
	if c.Verify.MaxConcurrentSchemes < 1 {
		errs = append(errs, errors.New("verify: max_concurrent_schemes must be at least 1"))
	}
	switch c.Cache.Backend {
	case "memory", "disk", "layered", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache: unknown backend %q", c.Cache.Backend))
	}

	return errors.Join(errs...)
}
