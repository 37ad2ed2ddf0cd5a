package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"GITHUB_TOKEN", "GH_TOKEN", "GITHUB_WEBHOOK_SECRET"} {
		t.Setenv(name, "")
	}
}

func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(v *viper.Viper)
		expectError string
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "defaults with a github repository",
			setup: func(v *viper.Viper) {
				v.Set("repository.repo", "acme/website")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "localhost:8080", c.Server.Addr())
				assert.Equal(t, BackendGitHub, c.Repository.Backend)
				assert.Equal(t, "main", c.Repository.Branch)
				assert.Equal(t, time.Minute, c.RateLimit.Interval)
				assert.Equal(t, 30, c.RateLimit.WebhookLimit)
				assert.Equal(t, time.Hour, c.Cache.FullSweepInterval)
				assert.Equal(t, 8, c.Fetch.Concurrency)
				assert.False(t, c.NeedsRedis())
			},
		},
		{
			name: "local backend with watch",
			setup: func(v *viper.Viper) {
				v.Set("repository.backend", "Local")
				v.Set("repository.local_root", "/srv/site")
				v.Set("watch.enabled", true)
				v.Set("watch.debounce", "150ms")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, BackendLocal, c.Repository.Backend)
				assert.Equal(t, 150*time.Millisecond, c.Watch.Debounce)
			},
		},
		{
			name: "redis backends",
			setup: func(v *viper.Viper) {
				v.Set("repository.backend", "memory")
				v.Set("cache.backend", "redis")
				v.Set("rate_limit.backend", "redis")
				v.Set("redis.addr", "cache:6379")
			},
			check: func(t *testing.T, c *Config) {
				assert.True(t, c.NeedsRedis())
				assert.Equal(t, "cache:6379", c.Redis.Addr)
				assert.Equal(t, "gitcms", c.Redis.KeyPrefix)
			},
		},
		{
			name: "invalid port type",
			setup: func(v *viper.Viper) {
				v.Set("repository.backend", "memory")
				v.Set("server.port", "invalid_port")
			},
			expectError: "decoding configuration",
		},
		{
			name:        "github backend without repo",
			setup:       func(v *viper.Viper) {},
			expectError: "repository.repo",
		},
		{
			name: "watch requires local backend",
			setup: func(v *viper.Viper) {
				v.Set("repository.backend", "memory")
				v.Set("watch.enabled", true)
			},
			expectError: "watch.enabled",
		},
		{
			name: "several errors are counted",
			setup: func(v *viper.Viper) {
				v.Set("repository.backend", "svn")
				v.Set("fetch.concurrency", 0)
				v.Set("logging.level", "loud")
			},
			expectError: "and 2 more",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCredentialEnv(t)
			v := viper.New()
			tt.setup(v)

			config, err := LoadFrom(v)

			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			tt.check(t, config)
		})
	}
}

func TestLoadFromReturnsValidationError(t *testing.T) {
	clearCredentialEnv(t)
	v := viper.New()
	v.Set("repository.backend", "memory")
	v.Set("server.port", 70000)

	_, err := LoadFrom(v)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "server.port", ve.Field)
	assert.NotEmpty(t, ve.Suggestions)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GITCMS_REPOSITORY_BACKEND", "memory")
	t.Setenv("GITCMS_SERVER_PORT", "9090")
	t.Setenv("GITCMS_RATE_LIMIT_API_LIMIT", "5")
	t.Setenv("GITCMS_CACHE_FULL_SWEEP_INTERVAL", "10m")

	v := viper.New()
	BindEnv(v)

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 5, config.RateLimit.APILimit)
	assert.Equal(t, 10*time.Minute, config.Cache.FullSweepInterval)
}

func TestCredentialFallbacks(t *testing.T) {
	t.Run("GITHUB_TOKEN wins over GH_TOKEN", func(t *testing.T) {
		clearCredentialEnv(t)
		t.Setenv("GITHUB_TOKEN", " ghp_primary ")
		t.Setenv("GH_TOKEN", "ghp_secondary")

		v := viper.New()
		v.Set("repository.repo", "acme/website")
		config, err := LoadFrom(v)
		require.NoError(t, err)
		assert.Equal(t, "ghp_primary", config.Repository.Token)
	})

	t.Run("GH_TOKEN used when GITHUB_TOKEN empty", func(t *testing.T) {
		clearCredentialEnv(t)
		t.Setenv("GH_TOKEN", "ghp_secondary")

		v := viper.New()
		v.Set("repository.repo", "acme/website")
		config, err := LoadFrom(v)
		require.NoError(t, err)
		assert.Equal(t, "ghp_secondary", config.Repository.Token)
	})

	t.Run("configured values are kept", func(t *testing.T) {
		clearCredentialEnv(t)
		t.Setenv("GITHUB_TOKEN", "ghp_env")
		t.Setenv("GITHUB_WEBHOOK_SECRET", "env-secret")

		v := viper.New()
		v.Set("repository.repo", "acme/website")
		v.Set("repository.token", "ghp_file")
		v.Set("webhook.secret", "file-secret")
		config, err := LoadFrom(v)
		require.NoError(t, err)
		assert.Equal(t, "ghp_file", config.Repository.Token)
		assert.Equal(t, "file-secret", config.Webhook.Secret)
	})

	t.Run("webhook secret from environment", func(t *testing.T) {
		clearCredentialEnv(t)
		t.Setenv("GITHUB_WEBHOOK_SECRET", "env-secret")

		v := viper.New()
		v.Set("repository.backend", "memory")
		config, err := LoadFrom(v)
		require.NoError(t, err)
		assert.Equal(t, "env-secret", config.Webhook.Secret)
	})
}

func TestValidateConfigWithDetails(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errors   []string
		warnings []string
	}{
		{
			name: "complete configuration",
			mutate: func(c *Config) {
				c.Repository.Backend = BackendMemory
				c.Webhook.Secret = "s3cret"
				c.Server.AdminToken = "0123456789abcdef"
			},
		},
		{
			name:     "missing secrets warn",
			mutate:   func(c *Config) { c.Repository.Backend = BackendMemory },
			warnings: []string{"server.admin_token", "webhook.secret"},
		},
		{
			name: "bad github repo",
			mutate: func(c *Config) {
				c.Repository.Repo = "not a repo"
				c.Repository.Token = "t"
			},
			errors: []string{"repository.repo"},
		},
		{
			name: "github without token warns",
			mutate: func(c *Config) {
				c.Repository.Repo = "acme/website"
				c.Repository.Token = ""
				c.Webhook.Secret = "s3cret"
				c.Server.AdminToken = "0123456789abcdef"
			},
			warnings: []string{"repository.token"},
		},
		{
			name: "trusted proxies must be networks",
			mutate: func(c *Config) {
				c.Repository.Backend = BackendMemory
				c.Webhook.Secret = "s3cret"
				c.Server.AdminToken = "0123456789abcdef"
				c.RateLimit.TrustedProxies = []string{"10.0.0.0/8", "192.0.2.1", "lb.internal"}
			},
			errors: []string{"rate_limit.trusted_proxies"},
		},
		{
			name: "local backend needs root",
			mutate: func(c *Config) {
				c.Repository.Backend = BackendLocal
			},
			errors: []string{"repository.local_root"},
		},
		{
			name: "dangerous host",
			mutate: func(c *Config) {
				c.Repository.Backend = BackendMemory
				c.Server.Host = "localhost; rm -rf /"
			},
			errors: []string{"server.host"},
		},
		{
			name: "rate limits",
			mutate: func(c *Config) {
				c.Repository.Backend = BackendMemory
				c.RateLimit.Backend = "etcd"
				c.RateLimit.Interval = 0
				c.RateLimit.APILimit = 0
			},
			errors: []string{"rate_limit.backend", "rate_limit.interval", "rate_limit.api_limit"},
		},
		{
			name: "disabled rate limit is not checked",
			mutate: func(c *Config) {
				c.Repository.Backend = BackendMemory
				c.RateLimit.Enabled = false
				c.RateLimit.Interval = 0
			},
		},
		{
			name: "cache and logging",
			mutate: func(c *Config) {
				c.Repository.Backend = BackendMemory
				c.Cache.Backend = "disk"
				c.Cache.FullSweepInterval = 0
				c.Logging.Format = "xml"
			},
			errors:   []string{"cache.backend", "logging.format"},
			warnings: []string{"cache.full_sweep_interval"},
		},
		{
			name: "redis needs an address",
			mutate: func(c *Config) {
				c.Repository.Backend = BackendMemory
				c.Cache.Backend = BackendRedis
				c.Redis.Addr = ""
			},
			errors: []string{"redis.addr"},
		},
		{
			name: "privileged port and unknown environment",
			mutate: func(c *Config) {
				c.Repository.Backend = BackendMemory
				c.Server.Port = 80
				c.Server.Environment = "staging"
			},
			warnings: []string{"server.port", "server.environment"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.mutate(c)

			result := ValidateConfigWithDetails(c)

			assert.Equal(t, len(tt.errors) == 0, result.Valid, result.String())
			for _, field := range tt.errors {
				assert.True(t, hasField(result.Errors, field), "expected error on %s:\n%s", field, result.String())
			}
			for _, field := range tt.warnings {
				assert.True(t, hasField(result.Warnings, field), "expected warning on %s:\n%s", field, result.String())
			}
		})
	}
}

func hasField(list []ValidationError, field string) bool {
	for _, e := range list {
		if e.Field == field {
			return true
		}
	}
	return false
}

func TestValidationResultString(t *testing.T) {
	result := &ValidationResult{}
	result.addError("server.port", -1, "bad port", "use 8080")
	result.addWarning("webhook.secret", "", "no secret")

	out := result.String()
	assert.Contains(t, out, "Validation errors:")
	assert.Contains(t, out, "server.port: bad port")
	assert.Contains(t, out, "hint: use 8080")
	assert.Contains(t, out, "Validation warnings:")
	assert.Contains(t, out, "webhook.secret: no secret")
}

func TestConfigBuilder(t *testing.T) {
	clearCredentialEnv(t)

	config, err := NewConfigBuilder().
		WithServer("0.0.0.0", 3000).
		WithEnvironment("production").
		WithLocalRepository("/srv/site").
		WithWebhookSecret("s3cret").
		WithAdminToken("0123456789abcdef").
		WithRateLimit(30*time.Second, 10, 20).
		WithRedis("redis:6379", "site").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:3000", config.Server.Addr())
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, BackendLocal, config.Repository.Backend)
	assert.True(t, config.Watch.Enabled)
	assert.Equal(t, 30*time.Second, config.RateLimit.Interval)
	assert.Equal(t, 10, config.RateLimit.WebhookLimit)
	assert.Equal(t, BackendRedis, config.Cache.Backend)
	assert.Equal(t, BackendRedis, config.RateLimit.Backend)
	assert.Equal(t, "site", config.Redis.KeyPrefix)
}

func TestConfigBuilderValidation(t *testing.T) {
	clearCredentialEnv(t)

	_, err := NewConfigBuilder().Build()
	assert.ErrorContains(t, err, "repository.repo")

	_, err = NewConfigBuilder().
		WithMemoryRepository().
		AddValidator(func(c *Config) error {
			if c.Webhook.Secret == "" {
				return errors.New("secret required in this deployment")
			}
			return nil
		}).
		Build()
	assert.ErrorContains(t, err, "secret required")

	config, err := NewConfigBuilder().
		WithGitHubRepository("acme/website", "", "ghp_x").
		WithoutRateLimit().
		Build()
	require.NoError(t, err)
	assert.Equal(t, "main", config.Repository.Branch)
	assert.False(t, config.RateLimit.Enabled)
}

func TestConfigWizard(t *testing.T) {
	answers := strings.Join([]string{
		"9000",       // port
		"",           // host
		"production", // environment
		"y",          // admin token
		"github",     // backend
		"acme/site",  // repo
		"content",    // branch
		"y",          // webhook secret
		"y",          // rate limit
		"abc",        // invalid webhook limit
		"15",         // webhook limit
		"",           // api limit
		"redis",      // cache backend
		"redis:6379", // redis addr
	}, "\n") + "\n"

	var out strings.Builder
	wizard := NewConfigWizard(strings.NewReader(answers), &out)

	config, err := wizard.Run()
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, "production", config.Server.Environment)
	assert.Len(t, config.Server.AdminToken, 32)
	assert.Equal(t, "acme/site", config.Repository.Repo)
	assert.Equal(t, "content", config.Repository.Branch)
	assert.NotEmpty(t, config.Webhook.Secret)
	assert.Equal(t, 15, config.RateLimit.WebhookLimit)
	assert.Equal(t, 60, config.RateLimit.APILimit)
	assert.Equal(t, BackendRedis, config.Cache.Backend)
	assert.Equal(t, BackendRedis, config.RateLimit.Backend)
	assert.Contains(t, out.String(), "Invalid number")
}

func TestConfigWizardDefaultsOnEmptyInput(t *testing.T) {
	answers := "\n\n\n\nmemory\n"
	wizard := NewConfigWizard(strings.NewReader(answers), &strings.Builder{})

	config, err := wizard.Run()
	require.NoError(t, err)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, BackendMemory, config.Repository.Backend)
	assert.Empty(t, config.Webhook.Secret)
	assert.True(t, config.RateLimit.Enabled)
}

func TestWriteConfigFileRoundTrip(t *testing.T) {
	clearCredentialEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)

	answers := "\n\n\nn\nlocal\n" + dir + "\n\ny\n\n\n\n\n"
	wizard := NewConfigWizard(strings.NewReader(answers), &strings.Builder{})
	written, err := wizard.Run()
	require.NoError(t, err)
	require.NoError(t, wizard.WriteConfigFile(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Contains(t, raw, "rate_limit")
	assert.Contains(t, string(data), "debounce: 300ms")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	loaded, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, written.Repository, loaded.Repository)
	assert.Equal(t, written.RateLimit, loaded.RateLimit)
	assert.Equal(t, written.Watch, loaded.Watch)

	assert.Error(t, wizard.WriteConfigFile(path, false), "existing file is kept")
	assert.NoError(t, wizard.WriteConfigFile(path, true))
}
