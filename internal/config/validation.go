package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/conneroisu/gitcms/internal/logging"
	"github.com/conneroisu/gitcms/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateRepositoryConfigDetails(&config.Repository, result)
	validateWebhookConfigDetails(config, result)
	validateRateLimitConfigDetails(&config.RateLimit, result)
	validateCacheConfigDetails(&config.Cache, result)
	validateMiscConfigDetails(config, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Common ports: 3000, 8080, 8000",
			"Port 0 lets the system assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port, "port below 1024 requires elevated privileges")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		}
	}

	validEnvs := []string{"development", "production", "test"}
	if config.Environment != "" && !contains(validEnvs, config.Environment) {
		result.addWarning("server.environment", config.Environment, "unknown environment type",
			"Use one of: "+strings.Join(validEnvs, ", "))
	}

	if config.AdminToken == "" {
		result.addWarning("server.admin_token", "", "admin endpoints are disabled without a token",
			"Set GITCMS_SERVER_ADMIN_TOKEN to enable /api/revalidate, /api/status and /api/content")
	} else if len(config.AdminToken) < 16 && config.Environment == "production" {
		result.addWarning("server.admin_token", "<redacted>", "admin token is shorter than 16 characters")
	}

	if config.ShutdownTimeout < 0 {
		result.addError("server.shutdown_timeout", config.ShutdownTimeout, "shutdown timeout cannot be negative")
	}

	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if err := validation.ValidateURL(origin); err != nil {
			result.addError("server.allowed_origins", origin, err.Error(),
				"Origins are scheme and host, e.g. https://admin.example.com")
		}
	}
}

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

func validateRepositoryConfigDetails(config *RepositoryConfig, result *ValidationResult) {
	switch config.Backend {
	case BackendGitHub:
		if !repoPattern.MatchString(config.Repo) {
			result.addError("repository.repo", config.Repo, "GitHub backend needs a repository in owner/name form",
				"Set repository.repo or GITCMS_REPOSITORY_REPO, e.g. acme/website")
		}
		if config.Token == "" {
			result.addWarning("repository.token", "", "no GitHub token configured; private repositories and writes will fail",
				"Set GITHUB_TOKEN or repository.token")
		}
		if err := validation.ValidateURL(config.APIURL); err != nil {
			result.addError("repository.api_url", config.APIURL, err.Error(),
				"Use https://api.github.com or your GitHub Enterprise API URL")
		}
	case BackendLocal:
		if strings.TrimSpace(config.LocalRoot) == "" {
			result.addError("repository.local_root", config.LocalRoot, "local backend needs a checkout directory")
		}
	case BackendMemory:
	default:
		result.addError("repository.backend", config.Backend, "unknown repository backend",
			"Use one of: github, local, memory")
	}

	if strings.TrimSpace(config.Branch) == "" {
		result.addError("repository.branch", config.Branch, "branch cannot be empty")
	}
}

func validateWebhookConfigDetails(config *Config, result *ValidationResult) {
	if config.Webhook.Secret == "" {
		result.addWarning("webhook.secret", "", "webhook deliveries will be rejected until a secret is configured",
			"Set GITHUB_WEBHOOK_SECRET to the secret configured on the repository webhook")
	}
}

func validateRateLimitConfigDetails(config *RateLimitConfig, result *ValidationResult) {
	for _, proxy := range config.TrustedProxies {
		if !validProxy(proxy) {
			result.addError("rate_limit.trusted_proxies", proxy, "not an IP address or CIDR block",
				"Use entries like 10.0.0.1 or 10.0.0.0/8")
		}
	}
	if !config.Enabled {
		return
	}
	if config.Backend != BackendMemory && config.Backend != BackendRedis {
		result.addError("rate_limit.backend", config.Backend, "unknown rate limit backend",
			"Use one of: memory, redis")
	}
	if config.Interval <= 0 {
		result.addError("rate_limit.interval", config.Interval, "window interval must be positive")
	}
	if config.WebhookLimit <= 0 {
		result.addError("rate_limit.webhook_limit", config.WebhookLimit, "limit must be positive")
	}
	if config.APILimit <= 0 {
		result.addError("rate_limit.api_limit", config.APILimit, "limit must be positive")
	}
	if config.ConnectLimit < 0 {
		result.addError("rate_limit.connect_limit", config.ConnectLimit, "limit cannot be negative")
	}
	if config.SweepInterval < 0 {
		result.addError("rate_limit.sweep_interval", config.SweepInterval, "sweep interval cannot be negative")
	}
}

func validateCacheConfigDetails(config *CacheConfig, result *ValidationResult) {
	if config.Backend != BackendMemory && config.Backend != BackendRedis {
		result.addError("cache.backend", config.Backend, "unknown cache backend",
			"Use one of: memory, redis")
	}
	if config.TTL < 0 {
		result.addError("cache.ttl", config.TTL, "ttl cannot be negative")
	}
	if config.FullSweepInterval < 0 {
		result.addError("cache.full_sweep_interval", config.FullSweepInterval, "interval cannot be negative")
	} else if config.FullSweepInterval == 0 {
		result.addWarning("cache.full_sweep_interval", 0, "periodic full revalidation is disabled",
			"Missed webhook deliveries will leave stale pages until the next push")
	}
}

func validateMiscConfigDetails(config *Config, result *ValidationResult) {
	if config.NeedsRedis() && strings.TrimSpace(config.Redis.Addr) == "" {
		result.addError("redis.addr", config.Redis.Addr, "redis address is required by the configured backends")
	}
	if config.Redis.DB < 0 {
		result.addError("redis.db", config.Redis.DB, "database index cannot be negative")
	}

	if config.Fetch.Concurrency < 1 {
		result.addError("fetch.concurrency", config.Fetch.Concurrency, "concurrency must be at least 1")
	}

	if config.Watch.Enabled && config.Repository.Backend != BackendLocal {
		result.addError("watch.enabled", true, "watch mode requires the local repository backend")
	}
	if config.Watch.Debounce < 0 {
		result.addError("watch.debounce", config.Watch.Debounce, "debounce cannot be negative")
	}

	if _, err := logging.ParseLevel(config.Logging.Level); err != nil {
		result.addError("logging.level", config.Logging.Level, err.Error(),
			"Use one of: debug, info, warn, error")
	}
	if f := config.Logging.Format; f != "" && f != "text" && f != "json" {
		result.addError("logging.format", f, "unknown log format", "Use text or json")
	}
}

// validateHostname validates a hostname or IP address
func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", " "}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("host contains dangerous character: %q", char)
		}
	}

	if host == "localhost" || net.ParseIP(host) != nil {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func validProxy(entry string) bool {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}
