// Package config centralizes runtime configuration for aide. A Config is
// constructed once (usually via FromEnv) and handed to each component's
// constructor, giving every component an immutable view of the options it
// needs instead of ad hoc environment lookups.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for an aide instance.
type Config struct {
	// Provider selects the completion backend: "anthropic", "openai",
	// "deepseek" or "ollama".
	Provider string

	// Model is the model identifier passed to the provider.
	Model string

	// AnthropicAPIKey authenticates against the Anthropic API.
	AnthropicAPIKey string

	// OpenAIAPIKey authenticates against the OpenAI API.
	OpenAIAPIKey string

	// DeepSeekAPIKey authenticates against the DeepSeek API.
	DeepSeekAPIKey string

	// OllamaBaseURL points at a local Ollama server.
	OllamaBaseURL string

	// AgentName is the assistant's display name used in the system prompt.
	AgentName string

	// MemoryDBPath is the SQLite database file for the memory store.
	MemoryDBPath string

	// MaxContextTokens is the context budget used by the compaction policy.
	MaxContextTokens int

	// CompactionThreshold is the fraction of MaxContextTokens at which the
	// transcript is compacted.
	CompactionThreshold float64

	// ConfirmBeforeAction gates execution of capabilities whose descriptor
	// requires confirmation. When false the gateway executes them directly.
	ConfirmBeforeAction bool

	// EnabledProviders lists the capability providers to register at
	// startup (e.g. "files,web,email,memory"). "all" enables every known
	// provider.
	EnabledProviders []string

	// WorkspaceDir sandboxes the files provider.
	WorkspaceDir string

	// Email settings for the email provider.
	EmailIMAPHost string
	EmailIMAPPort int
	EmailSMTPHost string
	EmailSMTPPort int
	EmailAddress  string
	EmailPassword string
}

// Default returns a Config with local-development defaults. API keys are
// intentionally empty.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Provider:            "anthropic",
		Model:               "",
		AgentName:           "MAX",
		MemoryDBPath:        "./aide_memory.db",
		MaxContextTokens:    80000,
		CompactionThreshold: 0.85,
		ConfirmBeforeAction: true,
		EnabledProviders:    []string{"web", "files", "memory"},
		WorkspaceDir:        home + "/aide_workspace",
		EmailIMAPHost:       "imap.gmail.com",
		EmailIMAPPort:       993,
		EmailSMTPHost:       "smtp.gmail.com",
		EmailSMTPPort:       587,
	}
}

// FromEnv loads configuration from the environment, reading an optional .env
// file first. Unset variables keep their defaults.
func FromEnv() Config {
	// Missing .env is fine; real env vars still apply.
	_ = godotenv.Load()

	cfg := Default()

	setString(&cfg.Provider, "AIDE_PROVIDER")
	setString(&cfg.Model, "AIDE_MODEL")
	setString(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.DeepSeekAPIKey, "DEEPSEEK_API_KEY")
	setString(&cfg.OllamaBaseURL, "OLLAMA_BASE_URL")
	setString(&cfg.AgentName, "AIDE_AGENT_NAME")
	setString(&cfg.MemoryDBPath, "AIDE_MEMORY_DB_PATH")
	setInt(&cfg.MaxContextTokens, "AIDE_MAX_CONTEXT_TOKENS")
	setBool(&cfg.ConfirmBeforeAction, "AIDE_CONFIRM_BEFORE_ACTION")
	setString(&cfg.WorkspaceDir, "AIDE_WORKSPACE_DIR")
	setString(&cfg.EmailIMAPHost, "EMAIL_IMAP_HOST")
	setInt(&cfg.EmailIMAPPort, "EMAIL_IMAP_PORT")
	setString(&cfg.EmailSMTPHost, "EMAIL_SMTP_HOST")
	setInt(&cfg.EmailSMTPPort, "EMAIL_SMTP_PORT")
	setString(&cfg.EmailAddress, "EMAIL_ADDRESS")
	setString(&cfg.EmailPassword, "EMAIL_PASSWORD")

	if v := os.Getenv("AIDE_ENABLED_PROVIDERS"); v != "" {
		var providers []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				providers = append(providers, p)
			}
		}
		cfg.EnabledProviders = providers
	}

	return cfg
}

// Validate checks that the configuration is internally consistent and that
// the selected provider has its credentials present. All problems are
// reported together.
func (c Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Provider) {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			errs = append(errs, "ANTHROPIC_API_KEY is required when AIDE_PROVIDER=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, "OPENAI_API_KEY is required when AIDE_PROVIDER=openai")
		}
	case "deepseek":
		if c.DeepSeekAPIKey == "" {
			errs = append(errs, "DEEPSEEK_API_KEY is required when AIDE_PROVIDER=deepseek")
		}
	case "ollama":
		if c.OllamaBaseURL == "" {
			errs = append(errs, "OLLAMA_BASE_URL is required when AIDE_PROVIDER=ollama")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown provider %q", c.Provider))
	}

	if c.MaxContextTokens <= 0 {
		errs = append(errs, "AIDE_MAX_CONTEXT_TOKENS must be positive")
	}
	if c.CompactionThreshold <= 0 || c.CompactionThreshold > 1 {
		errs = append(errs, "compaction threshold must be in (0, 1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ProviderEnabled reports whether a capability provider name appears in the
// enable-list. The special entry "all" enables every provider.
func (c Config) ProviderEnabled(name string) bool {
	for _, p := range c.EnabledProviders {
		if p == "all" || strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
