package config

import (
	"fmt"
	"time"
)

// ConfigBuilder provides a fluent interface for assembling a configuration
// in code, starting from Defaults.
//
// Usage:
//
//	config, err := NewConfigBuilder().
//	    WithLocalRepository("./site").
//	    WithWebhookSecret(secret).
//	    WithRedis("localhost:6379", "gitcms").
//	    Build()
type ConfigBuilder struct {
	config     *Config
	validators []ValidatorFunc
}

// ValidatorFunc represents a configuration validation function
type ValidatorFunc func(*Config) error

// NewConfigBuilder creates a new configuration builder with sensible defaults
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config:     Defaults(),
		validators: []ValidatorFunc{},
	}
}

// WithServer sets the listen address.
func (cb *ConfigBuilder) WithServer(host string, port int) *ConfigBuilder {
	cb.config.Server.Host = host
	cb.config.Server.Port = port
	return cb
}

// WithEnvironment sets the environment and adjusts logging for it.
func (cb *ConfigBuilder) WithEnvironment(env string) *ConfigBuilder {
	cb.config.Server.Environment = env
	switch env {
	case "production":
		cb.config.Logging.Format = "json"
	case "development":
		cb.config.Logging.Level = "debug"
	}
	return cb
}

// WithAdminToken enables the admin endpoints.
func (cb *ConfigBuilder) WithAdminToken(token string) *ConfigBuilder {
	cb.config.Server.AdminToken = token
	return cb
}

// WithAllowedOrigins sets the websocket origin patterns.
func (cb *ConfigBuilder) WithAllowedOrigins(origins ...string) *ConfigBuilder {
	cb.config.Server.AllowedOrigins = append([]string(nil), origins...)
	return cb
}

// WithMemoryRepository serves content from an in-memory store.
func (cb *ConfigBuilder) WithMemoryRepository() *ConfigBuilder {
	cb.config.Repository.Backend = BackendMemory
	return cb
}

// WithLocalRepository serves content from a checkout on disk and enables
// watch mode.
func (cb *ConfigBuilder) WithLocalRepository(root string) *ConfigBuilder {
	cb.config.Repository.Backend = BackendLocal
	cb.config.Repository.LocalRoot = root
	cb.config.Watch.Enabled = true
	return cb
}

// WithGitHubRepository serves content from the GitHub contents API.
func (cb *ConfigBuilder) WithGitHubRepository(repo, branch, token string) *ConfigBuilder {
	cb.config.Repository.Backend = BackendGitHub
	cb.config.Repository.Repo = repo
	if branch != "" {
		cb.config.Repository.Branch = branch
	}
	cb.config.Repository.Token = token
	cb.config.Watch.Enabled = false
	return cb
}

// WithWebhookSecret sets the push webhook secret.
func (cb *ConfigBuilder) WithWebhookSecret(secret string) *ConfigBuilder {
	cb.config.Webhook.Secret = secret
	return cb
}

// WithRateLimit sets the per-window budgets. A zero interval keeps the
// current one.
func (cb *ConfigBuilder) WithRateLimit(interval time.Duration, webhook, api int) *ConfigBuilder {
	cb.config.RateLimit.Enabled = true
	if interval > 0 {
		cb.config.RateLimit.Interval = interval
	}
	cb.config.RateLimit.WebhookLimit = webhook
	cb.config.RateLimit.APILimit = api
	return cb
}

// WithoutRateLimit disables rate limiting.
func (cb *ConfigBuilder) WithoutRateLimit() *ConfigBuilder {
	cb.config.RateLimit.Enabled = false
	return cb
}

// WithRedis moves the page cache and rate limiter onto Redis.
func (cb *ConfigBuilder) WithRedis(addr, keyPrefix string) *ConfigBuilder {
	cb.config.Redis.Addr = addr
	if keyPrefix != "" {
		cb.config.Redis.KeyPrefix = keyPrefix
	}
	cb.config.Cache.Backend = BackendRedis
	cb.config.RateLimit.Backend = BackendRedis
	return cb
}

// WithFullSweep sets the periodic full revalidation interval.
func (cb *ConfigBuilder) WithFullSweep(interval time.Duration) *ConfigBuilder {
	cb.config.Cache.FullSweepInterval = interval
	return cb
}

// AddValidator adds a custom validation function
func (cb *ConfigBuilder) AddValidator(validator ValidatorFunc) *ConfigBuilder {
	cb.validators = append(cb.validators, validator)
	return cb
}

// Build creates the final configuration after applying all settings and validations
func (cb *ConfigBuilder) Build() (*Config, error) {
	applyFallbacks(cb.config)

	for _, validator := range cb.validators {
		if err := validator(cb.config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	if err := validateConfig(cb.config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cb.config, nil
}
