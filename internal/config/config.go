// Package config provides configuration management for gitcms using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration file is .gitcms.yml. Environment variables override it
// with the GITCMS_ prefix (GITCMS_SERVER_PORT, GITCMS_REPOSITORY_REPO, ...).
// Credentials also fall back to the conventional GITHUB_TOKEN, GH_TOKEN and
// GITHUB_WEBHOOK_SECRET variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "GITCMS"

// Repository backends.
const (
	BackendGitHub = "github"
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Repository RepositoryConfig `mapstructure:"repository" yaml:"repository"`
	Webhook    WebhookConfig    `mapstructure:"webhook" yaml:"webhook"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Fetch      FetchConfig      `mapstructure:"fetch" yaml:"fetch"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	Environment     string        `mapstructure:"environment" yaml:"environment"`
	AdminToken      string        `mapstructure:"admin_token" yaml:"admin_token,omitempty"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type RepositoryConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Repo      string `mapstructure:"repo" yaml:"repo,omitempty"`
	Branch    string `mapstructure:"branch" yaml:"branch"`
	Token     string `mapstructure:"token" yaml:"token,omitempty"`
	APIURL    string `mapstructure:"api_url" yaml:"api_url,omitempty"`
	LocalRoot string `mapstructure:"local_root" yaml:"local_root,omitempty"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`
}

type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	WebhookLimit  int           `mapstructure:"webhook_limit" yaml:"webhook_limit"`
	APILimit      int           `mapstructure:"api_limit" yaml:"api_limit"`
	ConnectLimit  int           `mapstructure:"connect_limit" yaml:"connect_limit"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	// TrustedProxies lists IPs and CIDR blocks whose X-Forwarded-For and
	// X-Real-IP headers identify the client.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
}

type CacheConfig struct {
	Backend           string        `mapstructure:"backend" yaml:"backend"`
	TTL               time.Duration `mapstructure:"ttl" yaml:"ttl"`
	FullSweepInterval time.Duration `mapstructure:"full_sweep_interval" yaml:"full_sweep_interval"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password,omitempty"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

type FetchConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// NeedsRedis reports whether any component is configured to use Redis.
func (c *Config) NeedsRedis() bool {
	return c.Cache.Backend == BackendRedis || (c.RateLimit.Enabled && c.RateLimit.Backend == BackendRedis)
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			Environment:     "development",
			ShutdownTimeout: 10 * time.Second,
		},
		Repository: RepositoryConfig{
			Backend: BackendGitHub,
			Branch:  "main",
			APIURL:  "https://api.github.com",
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			Backend:       BackendMemory,
			Interval:      time.Minute,
			WebhookLimit:  30,
			APILimit:      60,
			ConnectLimit:  20,
			SweepInterval: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:           BackendMemory,
			FullSweepInterval: time.Hour,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "gitcms",
		},
		Fetch: FetchConfig{Concurrency: 8},
		Watch: WatchConfig{Debounce: 300 * time.Millisecond},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers Defaults with v so that unset keys resolve and
// environment variables bind for every key.
func SetDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.environment", d.Server.Environment)
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("repository.backend", d.Repository.Backend)
	v.SetDefault("repository.repo", "")
	v.SetDefault("repository.branch", d.Repository.Branch)
	v.SetDefault("repository.token", "")
	v.SetDefault("repository.api_url", d.Repository.APIURL)
	v.SetDefault("repository.local_root", "")

	v.SetDefault("webhook.secret", "")

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.backend", d.RateLimit.Backend)
	v.SetDefault("rate_limit.interval", d.RateLimit.Interval)
	v.SetDefault("rate_limit.webhook_limit", d.RateLimit.WebhookLimit)
	v.SetDefault("rate_limit.api_limit", d.RateLimit.APILimit)
	v.SetDefault("rate_limit.connect_limit", d.RateLimit.ConnectLimit)
	v.SetDefault("rate_limit.sweep_interval", d.RateLimit.SweepInterval)
	v.SetDefault("rate_limit.trusted_proxies", d.RateLimit.TrustedProxies)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.full_sweep_interval", d.Cache.FullSweepInterval)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)

	v.SetDefault("fetch.concurrency", d.Fetch.Concurrency)

	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// BindEnv makes v read GITCMS_SECTION_KEY environment variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	applyFallbacks(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyFallbacks fills credentials from the conventional environment
// variables when the configuration leaves them empty.
func applyFallbacks(config *Config) {
	if config.Repository.Token == "" {
		for _, name := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
			if tok := strings.TrimSpace(os.Getenv(name)); tok != "" {
				config.Repository.Token = tok
				break
			}
		}
	}
	if config.Webhook.Secret == "" {
		config.Webhook.Secret = os.Getenv("GITHUB_WEBHOOK_SECRET")
	}
	config.Repository.Repo = strings.TrimSpace(config.Repository.Repo)
	config.Repository.Backend = strings.ToLower(strings.TrimSpace(config.Repository.Backend))
	config.Server.Environment = strings.ToLower(strings.TrimSpace(config.Server.Environment))
}

// validateConfig rejects configurations that cannot run.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if !result.HasErrors() {
		return nil
	}
	first := result.Errors[0]
	if len(result.Errors) == 1 {
		return &first
	}
	return fmt.Errorf("%w (and %d more)", &first, len(result.Errors)-1)
}
