// Package models - Service configuration and operational settings.
// This file defines the configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, rate limit, etc.)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - Availability-first defaults: a bad rate limit config disables enforcement,
//   it never takes the host service down
package models

import (
	"errors"
	"fmt"
	"time"
)

// Rate limit strategy constants
const (
	StrategyMemory = "memory"
	StrategyRedis  = "redis"
	StrategyNone   = "none"
)

// maxBlockDuration caps how long a single quota may lock a caller out.
const maxBlockDuration = 24 * time.Hour

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`       // Quota engine settings
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing configuration
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// RateLimitConfig configures the admission-control engine. The default quota
// (Limit/Interval/BlockDuration) applies to every path that no rule matches.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	Strategy      string        `yaml:"strategy" json:"strategy"` // memory or redis
	Limit         int           `yaml:"limit" json:"limit"`
	Interval      time.Duration `yaml:"interval" json:"interval"`
	BlockDuration time.Duration `yaml:"block_duration" json:"block_duration"`

	// KeyPrefix namespaces counter keys so several services can share one
	// Redis deployment.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// TrustProxyHeaders enables client IP extraction from CF-Connecting-IP,
	// X-Forwarded-For and X-Real-IP. Leave off unless a trusted proxy sits
	// in front of the service.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`

	// WarnThreshold fires a warning event once consumed/limit reaches this
	// ratio. 0 disables threshold warnings.
	WarnThreshold float64 `yaml:"warn_threshold" json:"warn_threshold"`

	// ExecEvenly delays over-limit requests instead of rejecting them,
	// spreading load across the window.
	ExecEvenly         bool          `yaml:"exec_evenly" json:"exec_evenly"`
	ExecEvenlyMinDelay time.Duration `yaml:"exec_evenly_min_delay" json:"exec_evenly_min_delay"`

	EventLogSize int `yaml:"event_log_size" json:"event_log_size"`

	Redis         RedisConfig         `yaml:"redis" json:"redis"`
	InMemoryBlock InMemoryBlockConfig `yaml:"in_memory_block" json:"in_memory_block"`
	Burst         BurstConfig         `yaml:"burst" json:"burst"`
	Rules         []RuleConfig        `yaml:"rules" json:"rules"`
	Allowlist     AllowlistConfig     `yaml:"allowlist" json:"allowlist"`
	Exclude       []string            `yaml:"exclude" json:"exclude"`
}

// RuleConfig binds a path glob pattern to its own quota. Rules are evaluated
// in declaration order; the first matching pattern wins.
type RuleConfig struct {
	Pattern       string        `yaml:"pattern" json:"pattern"`
	Limit         int           `yaml:"limit" json:"limit"`
	Interval      time.Duration `yaml:"interval" json:"interval"`
	BlockDuration time.Duration `yaml:"block_duration" json:"block_duration"`
}

// AllowlistConfig lists identities that bypass rate limiting entirely.
type AllowlistConfig struct {
	IPs    []string `yaml:"ips" json:"ips"` // exact addresses or CIDR notation
	Tokens []string `yaml:"tokens" json:"tokens"`
	Users  []string `yaml:"users" json:"users"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// InMemoryBlockConfig short-circuits abusive clients from local memory once
// their consumption passes Factor x limit, sparing the shared backend. Only
// effective with the redis strategy.
type InMemoryBlockConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Factor   float64       `yaml:"factor" json:"factor"`
	Duration time.Duration `yaml:"duration" json:"duration"`
}

// BurstConfig grants a secondary, smaller allowance consulted only once the
// primary quota is exhausted.
type BurstConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Limit    int           `yaml:"limit" json:"limit"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"` // stdout or otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080: standard non-privileged HTTP port
// - 100 requests / minute: conservative default quota
// - memory strategy: works without external dependencies; switch to redis
//   for horizontally scaled deployments
// - warn threshold 0.8: operators hear about hot callers before they are cut off
// - event log of 100: enough recent history without unbounded growth
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:            true,
			Strategy:           StrategyMemory,
			Limit:              100,
			Interval:           time.Minute,
			BlockDuration:      0,
			KeyPrefix:          "gatekeeper",
			WarnThreshold:      0.8,
			ExecEvenlyMinDelay: 50 * time.Millisecond,
			EventLogSize:       100,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
			InMemoryBlock: InMemoryBlockConfig{
				Enabled:  false,
				Factor:   2.0,
				Duration: time.Minute,
			},
			Burst: BurstConfig{
				Enabled:  false,
				Limit:    10,
				Interval: 10 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "gatekeeper",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	return nil
}

func (rc *RateLimitConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}

	switch rc.Strategy {
	case StrategyMemory, StrategyRedis:
	default:
		return fmt.Errorf("invalid strategy: %s", rc.Strategy)
	}

	if err := validateQuota(rc.Limit, rc.Interval, rc.BlockDuration); err != nil {
		return fmt.Errorf("default quota: %w", err)
	}

	if rc.WarnThreshold < 0 || rc.WarnThreshold > 1 {
		return errors.New("warn threshold must be between 0 and 1")
	}

	if rc.ExecEvenlyMinDelay < 0 {
		return errors.New("exec evenly min delay cannot be negative")
	}

	if rc.EventLogSize <= 0 {
		return errors.New("event log size must be positive")
	}

	if rc.Strategy == StrategyRedis && rc.Redis.Addr == "" {
		return errors.New("redis addr is required for the redis strategy")
	}

	if rc.InMemoryBlock.Enabled {
		if rc.InMemoryBlock.Factor < 1 {
			return errors.New("in-memory block factor must be at least 1")
		}
		if rc.InMemoryBlock.Duration <= 0 {
			return errors.New("in-memory block duration must be positive")
		}
	}

	if rc.Burst.Enabled {
		if err := validateQuota(rc.Burst.Limit, rc.Burst.Interval, 0); err != nil {
			return fmt.Errorf("burst quota: %w", err)
		}
	}

	for i, rule := range rc.Rules {
		if rule.Pattern == "" {
			return fmt.Errorf("rule %d: pattern cannot be empty", i)
		}
		if err := validateQuota(rule.Limit, rule.Interval, rule.BlockDuration); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rule.Pattern, err)
		}
	}

	return nil
}

func validateQuota(limit int, interval, block time.Duration) error {
	if limit <= 0 {
		return errors.New("limit must be positive")
	}
	if interval <= 0 {
		return errors.New("interval must be positive")
	}
	if block < 0 {
		return errors.New("block duration cannot be negative")
	}
	if block > maxBlockDuration {
		return fmt.Errorf("block duration cannot exceed %s", maxBlockDuration)
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}
