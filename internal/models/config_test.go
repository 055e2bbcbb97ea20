package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StrategyMemory, cfg.RateLimit.Strategy)
	assert.Equal(t, 100, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Interval)
	assert.Equal(t, 0.8, cfg.RateLimit.WarnThreshold)
	assert.Equal(t, 100, cfg.RateLimit.EventLogSize)
	assert.Equal(t, "gatekeeper", cfg.RateLimit.KeyPrefix)
}

func TestServerConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Server.Host = ""
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Server.ReadTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestRateLimitConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RateLimitConfig)
		wantErr bool
	}{
		{name: "valid defaults", mutate: func(rc *RateLimitConfig) {}},
		{name: "disabled skips checks", mutate: func(rc *RateLimitConfig) {
			rc.Enabled = false
			rc.Limit = -1
		}},
		{name: "unknown strategy", mutate: func(rc *RateLimitConfig) { rc.Strategy = "etcd" }, wantErr: true},
		{name: "zero limit", mutate: func(rc *RateLimitConfig) { rc.Limit = 0 }, wantErr: true},
		{name: "zero interval", mutate: func(rc *RateLimitConfig) { rc.Interval = 0 }, wantErr: true},
		{name: "negative block", mutate: func(rc *RateLimitConfig) { rc.BlockDuration = -time.Second }, wantErr: true},
		{name: "block over cap", mutate: func(rc *RateLimitConfig) { rc.BlockDuration = 25 * time.Hour }, wantErr: true},
		{name: "block at cap", mutate: func(rc *RateLimitConfig) { rc.BlockDuration = 24 * time.Hour }},
		{name: "threshold above one", mutate: func(rc *RateLimitConfig) { rc.WarnThreshold = 1.5 }, wantErr: true},
		{name: "redis without addr", mutate: func(rc *RateLimitConfig) {
			rc.Strategy = StrategyRedis
			rc.Redis.Addr = ""
		}, wantErr: true},
		{name: "rule without pattern", mutate: func(rc *RateLimitConfig) {
			rc.Rules = []RuleConfig{{Limit: 10, Interval: time.Minute}}
		}, wantErr: true},
		{name: "rule with zero limit", mutate: func(rc *RateLimitConfig) {
			rc.Rules = []RuleConfig{{Pattern: "/api/**", Interval: time.Minute}}
		}, wantErr: true},
		{name: "valid rule", mutate: func(rc *RateLimitConfig) {
			rc.Rules = []RuleConfig{{Pattern: "/api/**", Limit: 10, Interval: time.Minute}}
		}},
		{name: "burst with zero limit", mutate: func(rc *RateLimitConfig) {
			rc.Burst.Enabled = true
			rc.Burst.Limit = 0
		}, wantErr: true},
		{name: "block factor below one", mutate: func(rc *RateLimitConfig) {
			rc.InMemoryBlock.Enabled = true
			rc.InMemoryBlock.Factor = 0.5
		}, wantErr: true},
		{name: "event log zero", mutate: func(rc *RateLimitConfig) { rc.EventLogSize = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewDefaultConfig().RateLimit
			tt.mutate(&rc)
			err := rc.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoggingConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Logging.Output = "file"
	assert.Error(t, cfg.Validate(), "file output requires a path")

	cfg.Logging.FilePath = "/tmp/gatekeeper.log"
	assert.NoError(t, cfg.Validate())
}

func TestMetricsConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Metrics.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Metrics.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Path = ""
	assert.NoError(t, cfg.Validate(), "disabled metrics skip validation")
}

func TestNewTooManyRequestsBody(t *testing.T) {
	env := NewTooManyRequests()
	require.NotNil(t, env.Error)
	assert.Nil(t, env.Data)
	assert.Equal(t, 429, env.Error.Status)
	assert.Equal(t, "TooManyRequestsError", env.Error.Name)
	assert.Equal(t, "Too many requests, please try again later.", env.Error.Message)
	assert.NotNil(t, env.Error.Details)
	assert.Empty(t, env.Error.Details)
}
