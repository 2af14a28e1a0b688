// Package config loads the engine configuration from YAML with
// environment overrides for secrets.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Rules   RulesConfig   `yaml:"rules"`
	Cache   CacheConfig   `yaml:"cache"`
	Shell   ShellConfig   `yaml:"shell"`
	Memory  MemoryConfig  `yaml:"memory"`
	LLM     LLMConfig     `yaml:"llm"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// RulesConfig selects where pattern rules come from.
type RulesConfig struct {
	// Source selects the rule store: builtin, file, sqlite.
	Source string `yaml:"source"`

	// Path is the rules YAML file (source=file) or database path
	// (source=sqlite).
	Path string `yaml:"path"`

	// Watch reloads a file-backed store when the file changes.
	Watch bool `yaml:"watch"`
}

type CacheConfig struct {
	TTL string `yaml:"ttl"` // duration string, default 5m
}

type ShellConfig struct {
	RequireApprovalForHighRisk bool     `yaml:"require_approval_for_high_risk"`
	AllowedCommands            []string `yaml:"allowed_commands"`
	AllowedPaths               []string `yaml:"allowed_paths"`
	RateLimitPerMinute         int      `yaml:"rate_limit_per_minute"`
	AllowedIPs                 []string `yaml:"allowed_ips"`
}

type MemoryConfig struct {
	// DetectionMode is block or detect.
	DetectionMode       string  `yaml:"detection_mode"`
	AggressivenessLevel int     `yaml:"aggressiveness_level"`
	LLMProvider         string  `yaml:"llm_provider"`
	LLMModel            string  `yaml:"llm_model"`
	LLMMaxTokens        int     `yaml:"llm_max_tokens"`
	LLMTemperature      float64 `yaml:"llm_temperature"`
	Timeout             string  `yaml:"timeout"`
}

type LLMConfig struct {
	Endpoint string `yaml:"endpoint"`
	// APIKey may also come from AGENTWARD_LLM_API_KEY.
	APIKey string `yaml:"api_key"`
}

type AuditConfig struct {
	// Sink selects the audit destination: none, sqlite, otlp.
	Sink string `yaml:"sink"`

	SQLitePath string `yaml:"sqlite_path"`

	OTLP AuditOTLPConfig `yaml:"otlp"`
}

type AuditOTLPConfig struct {
	Endpoint     string            `yaml:"endpoint"`
	Insecure     bool              `yaml:"insecure"`
	Headers      map[string]string `yaml:"headers"`
	BatchTimeout string            `yaml:"batch_timeout"`
	ServiceName  string            `yaml:"service_name"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := decodeStrict(b, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromBytes loads configuration from bytes without applying
// environment overrides. Intended for tests.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := decodeStrict(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeStrict parses YAML rejecting keys the Config does not declare, so
// a typoed option fails loudly instead of silently using a default.
func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Rules.Source == "" {
		cfg.Rules.Source = "builtin"
	}
	if cfg.Cache.TTL == "" {
		cfg.Cache.TTL = "5m"
	}
	if cfg.Memory.DetectionMode == "" {
		cfg.Memory.DetectionMode = "block"
	}
	if cfg.Memory.LLMMaxTokens <= 0 {
		cfg.Memory.LLMMaxTokens = 256
	}
	if cfg.Memory.LLMTemperature == 0 {
		cfg.Memory.LLMTemperature = 0.1
	}
	if cfg.Memory.Timeout == "" {
		cfg.Memory.Timeout = "5s"
	}
	if cfg.Audit.Sink == "" {
		cfg.Audit.Sink = "none"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = "127.0.0.1:9464"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTWARD_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("AGENTWARD_LLM_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := os.Getenv("AGENTWARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format)
	}

	switch cfg.Rules.Source {
	case "builtin":
	case "file", "sqlite":
		if cfg.Rules.Path == "" {
			return fmt.Errorf("rules.path is required for source %q", cfg.Rules.Source)
		}
	default:
		return fmt.Errorf("rules.source: unknown source %q", cfg.Rules.Source)
	}

	if _, err := cfg.CacheTTL(); err != nil {
		return fmt.Errorf("cache.ttl: %w", err)
	}
	if _, err := cfg.MemoryTimeout(); err != nil {
		return fmt.Errorf("memory.timeout: %w", err)
	}

	switch cfg.Memory.DetectionMode {
	case "block", "detect":
	default:
		return fmt.Errorf("memory.detection_mode: unknown mode %q", cfg.Memory.DetectionMode)
	}

	switch cfg.Audit.Sink {
	case "none":
	case "sqlite":
		if cfg.Audit.SQLitePath == "" {
			return fmt.Errorf("audit.sqlite_path is required for sink sqlite")
		}
	case "otlp":
		if cfg.Audit.OTLP.Endpoint == "" {
			return fmt.Errorf("audit.otlp.endpoint is required for sink otlp")
		}
	default:
		return fmt.Errorf("audit.sink: unknown sink %q", cfg.Audit.Sink)
	}
	return nil
}

// ParseBatchTimeout parses the OTLP batch timeout; zero means the sink
// default.
func (c AuditOTLPConfig) ParseBatchTimeout() (time.Duration, error) {
	if c.BatchTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.BatchTimeout)
}

// CacheTTL parses the cache TTL duration string.
func (c *Config) CacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.TTL)
}

// MemoryTimeout parses the memory analysis timeout duration string.
func (c *Config) MemoryTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Memory.Timeout)
}
