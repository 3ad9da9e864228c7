// Package config loads the pipeline configuration from YAML, layering
// file values over per-component defaults. Durations are written as
// strings like "30s" or "5m".
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbaxter/synapse/internal/discover"
	"github.com/mbaxter/synapse/internal/orchestrator"
	"github.com/mbaxter/synapse/internal/reportcache"
	"github.com/mbaxter/synapse/internal/score"
	"github.com/mbaxter/synapse/internal/synth"
	"github.com/mbaxter/synapse/internal/vectorize"
)

// SourceConfig declares one HTTP source adapter.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`

	// APIKeyEnv names the environment variable holding the source's
	// API key. The key itself never goes in config files.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// ContentField selects a field from JSON responses; empty takes
	// the raw body.
	ContentField string `yaml:"content_field,omitempty"`

	Critical bool `yaml:"critical"`

	// Timeout is a duration string like "10s".
	Timeout string `yaml:"timeout,omitempty"`
}

// ParseTimeout returns the per-source timeout, zero when unset.
func (s SourceConfig) ParseTimeout() (time.Duration, error) {
	return parseDuration(s.Timeout, 0)
}

// OrchestratorConfig is the YAML shape of the fan-out settings.
type OrchestratorConfig struct {
	GlobalTimeout  string   `yaml:"global_timeout,omitempty"`
	QuorumFraction *float64 `yaml:"quorum_fraction,omitempty"`
}

// Build resolves the settings over the orchestrator defaults.
func (o OrchestratorConfig) Build() (orchestrator.Config, error) {
	cfg := orchestrator.DefaultConfig()
	timeout, err := parseDuration(o.GlobalTimeout, cfg.GlobalTimeout)
	if err != nil {
		return cfg, fmt.Errorf("orchestrator global_timeout: %w", err)
	}
	cfg.GlobalTimeout = timeout
	if o.QuorumFraction != nil {
		cfg.QuorumFraction = *o.QuorumFraction
	}
	return cfg, nil
}

// EmbeddingConfig configures the embedding provider and its cache.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`

	// APIKeyEnv defaults to SYNAPSE_EMBED_KEY.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Timeout is a duration string like "30s".
	Timeout string `yaml:"timeout,omitempty"`

	// CachePath is the sqlite embedding cache location; empty disables
	// the persistent cache.
	CachePath string `yaml:"cache_path,omitempty"`
}

// ParseTimeout returns the provider timeout, zero when unset.
func (e EmbeddingConfig) ParseTimeout() (time.Duration, error) {
	return parseDuration(e.Timeout, 0)
}

// SynthesisConfig configures the generation model and retry ladder.
type SynthesisConfig struct {
	Model     string `yaml:"model,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`

	Retry synth.ControllerConfig `yaml:",inline"`

	// MaxConcurrent bounds simultaneous synthesis pipelines.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// CacheConfig is the YAML shape of the Redis report cache settings.
type CacheConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	TTL      string `yaml:"ttl,omitempty"`

	// Disabled turns off the report cache entirely.
	Disabled bool `yaml:"disabled,omitempty"`
}

// Build resolves the settings over the report cache defaults.
func (c CacheConfig) Build() (reportcache.Config, error) {
	cfg := reportcache.DefaultConfig()
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	cfg.Password = c.Password
	cfg.DB = c.DB
	ttl, err := parseDuration(c.TTL, cfg.TTL)
	if err != nil {
		return cfg, fmt.Errorf("cache ttl: %w", err)
	}
	cfg.TTL = ttl
	return cfg, nil
}

// Config is the full pipeline configuration.
type Config struct {
	Sources      []SourceConfig     `yaml:"sources"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Vectorizer   vectorize.Config   `yaml:"vectorizer"`
	Discovery    discover.Config    `yaml:"discovery"`
	Scoring      score.Weights      `yaml:"scoring"`
	Synthesis    SynthesisConfig    `yaml:"synthesis"`
	Cache        CacheConfig        `yaml:"cache"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			APIKeyEnv: "SYNAPSE_EMBED_KEY",
		},
		Vectorizer: vectorize.DefaultConfig(),
		Discovery:  discover.DefaultConfig(),
		Scoring:    score.DefaultWeights(),
		Synthesis: SynthesisConfig{
			Retry:         synth.DefaultControllerConfig(),
			MaxConcurrent: 4,
		},
	}
}

// Load reads YAML from path over the defaults. A missing file returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("source with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source %q", s.Name)
		}
		seen[s.Name] = true
		if s.Endpoint == "" {
			return fmt.Errorf("source %q has no endpoint", s.Name)
		}
		if _, err := s.ParseTimeout(); err != nil {
			return fmt.Errorf("source %q timeout: %w", s.Name, err)
		}
	}
	if _, err := c.Orchestrator.Build(); err != nil {
		return err
	}
	if q := c.Orchestrator.QuorumFraction; q != nil && (*q < 0 || *q > 1) {
		return fmt.Errorf("quorum_fraction %f out of range [0, 1]", *q)
	}
	if _, err := c.Embedding.ParseTimeout(); err != nil {
		return fmt.Errorf("embedding timeout: %w", err)
	}
	if _, err := c.Cache.Build(); err != nil {
		return err
	}
	if c.Synthesis.MaxConcurrent < 0 {
		return fmt.Errorf("synthesis max_concurrent must not be negative")
	}
	return nil
}

// parseDuration parses a duration string, returning fallback for "".
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return fallback, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
