package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gatekeeper/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// legacyConfig mirrors renamed config fields for detecting stale operator configs.
type legacyConfig struct {
	RateLimit struct {
		Max       interface{} `yaml:"max"`
		Store     string      `yaml:"store"`
		Whitelist interface{} `yaml:"whitelist"`
	} `yaml:"rate_limit"`
}

// warnLegacyKeys logs a warning for each renamed config key found in the YAML data.
// The service continues to start normally - these keys are silently ignored by the main decoder.
func warnLegacyKeys(data []byte) {
	var old legacyConfig
	if err := yaml.Unmarshal(data, &old); err != nil {
		return
	}
	if old.RateLimit.Max != nil {
		slog.Warn("Config key was renamed; use rate_limit.limit instead.", "config_key", "rate_limit.max")
	}
	if old.RateLimit.Store != "" {
		slog.Warn("Config key was renamed; use rate_limit.strategy instead.", "config_key", "rate_limit.store")
	}
	if old.RateLimit.Whitelist != nil {
		slog.Warn("Config key was renamed; use rate_limit.allowlist instead.", "config_key", "rate_limit.whitelist")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnLegacyKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("GATEKEEPER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("GATEKEEPER_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("GATEKEEPER_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("GATEKEEPER_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if timeout := os.Getenv("GATEKEEPER_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}

	// Rate limit configuration
	if enabled := os.Getenv("GATEKEEPER_RATE_LIMIT_ENABLED"); enabled != "" {
		config.RateLimit.Enabled = strings.ToLower(enabled) == "true"
	}

	if strategy := os.Getenv("GATEKEEPER_RATE_LIMIT_STRATEGY"); strategy != "" {
		config.RateLimit.Strategy = strategy
	}

	if limit := os.Getenv("GATEKEEPER_RATE_LIMIT_LIMIT"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			config.RateLimit.Limit = l
		}
	}

	if interval := os.Getenv("GATEKEEPER_RATE_LIMIT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.RateLimit.Interval = d
		}
	}

	if block := os.Getenv("GATEKEEPER_RATE_LIMIT_BLOCK_DURATION"); block != "" {
		if d, err := time.ParseDuration(block); err == nil {
			config.RateLimit.BlockDuration = d
		}
	}

	if prefix := os.Getenv("GATEKEEPER_RATE_LIMIT_KEY_PREFIX"); prefix != "" {
		config.RateLimit.KeyPrefix = prefix
	}

	if trust := os.Getenv("GATEKEEPER_TRUST_PROXY_HEADERS"); trust != "" {
		config.RateLimit.TrustProxyHeaders = strings.ToLower(trust) == "true"
	}

	if threshold := os.Getenv("GATEKEEPER_WARN_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.RateLimit.WarnThreshold = t
		}
	}

	if evenly := os.Getenv("GATEKEEPER_EXEC_EVENLY"); evenly != "" {
		config.RateLimit.ExecEvenly = strings.ToLower(evenly) == "true"
	}

	if size := os.Getenv("GATEKEEPER_EVENT_LOG_SIZE"); size != "" {
		if s, err := strconv.Atoi(size); err == nil {
			config.RateLimit.EventLogSize = s
		}
	}

	// Redis configuration
	if addr := os.Getenv("GATEKEEPER_REDIS_ADDR"); addr != "" {
		config.RateLimit.Redis.Addr = addr
	}

	if password := os.Getenv("GATEKEEPER_REDIS_PASSWORD"); password != "" {
		config.RateLimit.Redis.Password = password
	}

	if db := os.Getenv("GATEKEEPER_REDIS_DB"); db != "" {
		if dbNum, err := strconv.Atoi(db); err == nil {
			config.RateLimit.Redis.DB = dbNum
		}
	}

	if poolSize := os.Getenv("GATEKEEPER_REDIS_POOL_SIZE"); poolSize != "" {
		if size, err := strconv.Atoi(poolSize); err == nil {
			config.RateLimit.Redis.PoolSize = size
		}
	}

	// Allowlist configuration; comma-separated lists replace the file values
	if ips := os.Getenv("GATEKEEPER_ALLOWLIST_IPS"); ips != "" {
		config.RateLimit.Allowlist.IPs = splitList(ips)
	}

	if tokens := os.Getenv("GATEKEEPER_ALLOWLIST_TOKENS"); tokens != "" {
		config.RateLimit.Allowlist.Tokens = splitList(tokens)
	}

	if users := os.Getenv("GATEKEEPER_ALLOWLIST_USERS"); users != "" {
		config.RateLimit.Allowlist.Users = splitList(users)
	}

	// Logging configuration
	if level := os.Getenv("GATEKEEPER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("GATEKEEPER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("GATEKEEPER_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("GATEKEEPER_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("GATEKEEPER_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("GATEKEEPER_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("GATEKEEPER_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()

	// Show the shared strategy and a couple of rules in the example
	config.RateLimit.Strategy = models.StrategyRedis
	config.RateLimit.Rules = []models.RuleConfig{
		{Pattern: "/api/auth/**", Limit: 10, Interval: time.Minute, BlockDuration: 5 * time.Minute},
		{Pattern: "/api/search", Limit: 30, Interval: time.Minute},
	}
	config.RateLimit.Exclude = []string{"/health", "/metrics"}
	config.RateLimit.Allowlist.IPs = []string{"10.0.0.0/8", "192.168.1.50"}

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
