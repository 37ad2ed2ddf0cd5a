package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the file the wizard writes and the CLI reads.
const DefaultConfigFile = ".gitcms.yml"

// ConfigWizard provides an interactive setup experience for new sites
type ConfigWizard struct {
	reader *bufio.Reader
	out    io.Writer
	config *Config
}

// NewConfigWizard creates a wizard reading answers from in and writing
// prompts to out.
func NewConfigWizard(in io.Reader, out io.Writer) *ConfigWizard {
	return &ConfigWizard{
		reader: bufio.NewReader(in),
		out:    out,
		config: Defaults(),
	}
}

// Run executes the interactive configuration wizard
func (w *ConfigWizard) Run() (*Config, error) {
	w.println("gitcms configuration")
	w.println("====================")
	w.println()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"server", w.configureServer},
		{"repository", w.configureRepository},
		{"webhook", w.configureWebhook},
		{"rate limit", w.configureRateLimit},
		{"cache", w.configureCache},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("%s configuration failed: %w", step.name, err)
		}
	}

	result := ValidateConfigWithDetails(w.config)
	if result.HasWarnings() {
		w.printf("%s", result.String())
	}
	if err := validateConfig(w.config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	w.println("Configuration complete.")
	return w.config, nil
}

func (w *ConfigWizard) configureServer() error {
	w.println("Server")
	w.println("------")

	port, err := w.askInt("Server port", w.config.Server.Port, 1, 65535)
	if err != nil {
		return err
	}
	w.config.Server.Port = port
	w.config.Server.Host = w.askString("Server host", w.config.Server.Host)
	w.config.Server.Environment = w.askChoice("Environment",
		[]string{"development", "production"}, w.config.Server.Environment)

	if w.askBool("Generate an admin token for /api/revalidate and /api/content", true) {
		w.config.Server.AdminToken = strings.ReplaceAll(uuid.NewString(), "-", "")
		w.printf("Admin token: %s\n", w.config.Server.AdminToken)
	}

	w.println()
	return nil
}

func (w *ConfigWizard) configureRepository() error {
	w.println("Repository")
	w.println("----------")

	repo := &w.config.Repository
	repo.Backend = w.askChoice("Content source",
		[]string{BackendGitHub, BackendLocal, BackendMemory}, repo.Backend)

	switch repo.Backend {
	case BackendGitHub:
		repo.Repo = w.askString("GitHub repository (owner/name)", repo.Repo)
		repo.Branch = w.askString("Branch", repo.Branch)
		w.println("The API token is read from GITHUB_TOKEN at startup.")
	case BackendLocal:
		root := w.askString("Checkout directory", ".")
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			w.printf("Warning: %s is not a directory yet\n", root)
		}
		repo.LocalRoot = root
		repo.Branch = w.askString("Branch", repo.Branch)
		w.config.Watch.Enabled = w.askBool("Watch the checkout for changes", true)
	}

	w.println()
	return nil
}

func (w *ConfigWizard) configureWebhook() error {
	w.println("Webhook")
	w.println("-------")

	if w.config.Repository.Backend == BackendGitHub &&
		w.askBool("Generate a webhook secret", true) {
		w.config.Webhook.Secret = uuid.NewString()
		w.printf("Webhook secret: %s\n", w.config.Webhook.Secret)
		w.println("Configure it on the repository webhook for push events.")
	}

	w.println()
	return nil
}

func (w *ConfigWizard) configureRateLimit() error {
	w.println("Rate limiting")
	w.println("-------------")

	rl := &w.config.RateLimit
	rl.Enabled = w.askBool("Enable rate limiting", rl.Enabled)
	if rl.Enabled {
		var err error
		if rl.WebhookLimit, err = w.askInt("Webhook deliveries per minute", rl.WebhookLimit, 1, 10000); err != nil {
			return err
		}
		if rl.APILimit, err = w.askInt("Admin API requests per minute", rl.APILimit, 1, 10000); err != nil {
			return err
		}
	}

	w.println()
	return nil
}

func (w *ConfigWizard) configureCache() error {
	w.println("Cache")
	w.println("-----")

	backend := w.askChoice("Page cache and limiter backend",
		[]string{BackendMemory, BackendRedis}, w.config.Cache.Backend)
	w.config.Cache.Backend = backend
	if backend == BackendRedis {
		w.config.RateLimit.Backend = BackendRedis
		w.config.Redis.Addr = w.askString("Redis address", w.config.Redis.Addr)
	}

	w.println()
	return nil
}

func (w *ConfigWizard) askString(prompt, defaultValue string) string {
	if defaultValue != "" {
		w.printf("%s [%s]: ", prompt, defaultValue)
	} else {
		w.printf("%s: ", prompt)
	}

	input, err := w.reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" || (err != nil && err != io.EOF) {
		return defaultValue
	}
	return input
}

func (w *ConfigWizard) askInt(prompt string, defaultValue, min, max int) (int, error) {
	for {
		w.printf("%s [%d]: ", prompt, defaultValue)

		input, err := w.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue, nil
		}

		value, convErr := strconv.Atoi(input)
		switch {
		case convErr != nil:
			w.printf("Invalid number. Please enter a number between %d and %d.\n", min, max)
		case value < min || value > max:
			w.printf("Number out of range. Please enter a number between %d and %d.\n", min, max)
		default:
			return value, nil
		}

		if err != nil {
			return 0, fmt.Errorf("%s: no valid answer before end of input", strings.ToLower(prompt))
		}
	}
}

func (w *ConfigWizard) askBool(prompt string, defaultValue bool) bool {
	defaultStr := "n"
	if defaultValue {
		defaultStr = "y"
	}

	w.printf("%s [%s]: ", prompt, defaultStr)

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return defaultValue
	}

	return input == "y" || input == "yes" || input == "true"
}

func (w *ConfigWizard) askChoice(prompt string, choices []string, defaultValue string) string {
	for {
		w.printf("%s [%s] (options: %s): ", prompt, defaultValue, strings.Join(choices, ", "))

		input, err := w.reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			return defaultValue
		}

		for _, choice := range choices {
			if strings.EqualFold(input, choice) {
				return choice
			}
		}

		w.printf("Invalid choice. Please select from: %s\n", strings.Join(choices, ", "))
		if err != nil {
			return defaultValue
		}
	}
}

func (w *ConfigWizard) println(a ...any) { fmt.Fprintln(w.out, a...) }

func (w *ConfigWizard) printf(format string, a ...any) { fmt.Fprintf(w.out, format, a...) }

// WriteConfigFile writes the configuration to a YAML file. An existing
// file is only replaced when overwrite is set.
func (w *ConfigWizard) WriteConfigFile(filename string, overwrite bool) error {
	if _, err := os.Stat(filename); err == nil && !overwrite {
		return fmt.Errorf("configuration file %s already exists", filename)
	}

	data, err := MarshalYAML(w.config)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	w.printf("Configuration saved to %s\n", filename)
	return nil
}

// MarshalYAML renders config as a configuration file. Durations are written
// in their string form so the file stays readable.
func MarshalYAML(config *Config) ([]byte, error) {
	doc := map[string]any{
		"server": map[string]any{
			"host":             config.Server.Host,
			"port":             config.Server.Port,
			"environment":      config.Server.Environment,
			"admin_token":      config.Server.AdminToken,
			"allowed_origins":  config.Server.AllowedOrigins,
			"shutdown_timeout": config.Server.ShutdownTimeout.String(),
		},
		"repository": config.Repository,
		"webhook":    config.Webhook,
		"rate_limit": map[string]any{
			"enabled":        config.RateLimit.Enabled,
			"backend":        config.RateLimit.Backend,
			"interval":       config.RateLimit.Interval.String(),
			"webhook_limit":  config.RateLimit.WebhookLimit,
			"api_limit":      config.RateLimit.APILimit,
			"connect_limit":  config.RateLimit.ConnectLimit,
			"sweep_interval": config.RateLimit.SweepInterval.String(),
		},
		"cache": map[string]any{
			"backend":             config.Cache.Backend,
			"ttl":                 config.Cache.TTL.String(),
			"full_sweep_interval": config.Cache.FullSweepInterval.String(),
		},
		"redis": config.Redis,
		"fetch": config.Fetch,
		"watch": map[string]any{
			"enabled":  config.Watch.Enabled,
			"debounce": config.Watch.Debounce.String(),
		},
		"logging": config.Logging,
	}

	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	return append([]byte("# gitcms configuration\n"), body...), nil
}
