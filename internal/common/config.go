package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	Claude      ClaudeConfig  `toml:"claude"`
	Gemini      GeminiConfig  `toml:"gemini"`
	LLM         LLMConfig     `toml:"llm"`
	Wizard      WizardConfig  `toml:"wizard"`
	PDF         PDFConfig     `toml:"pdf"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=0,max=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
	// RowSizeLimit is the serialized-metadata size above which large
	// sub-objects are offloaded to blob storage (bytes)
	RowSizeLimit int `toml:"row_size_limit"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	InMemory       bool   `toml:"in_memory"`        // Run without a data directory (tests)
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
	Dir    string   `toml:"dir"`    // Log directory (default: <exe>/logs)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`       // default: "claude-sonnet-4-20250514"
	MaxTokens   int     `toml:"max_tokens"`  // default: 8192
	Timeout     string  `toml:"timeout"`     // per-attempt timeout duration string (default: "60s")
	Temperature float32 `toml:"temperature"` // default: 0.2
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`   // default: "gemini-2.5-flash"
	Timeout     string  `toml:"timeout"` // per-attempt timeout duration string (default: "60s")
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderOffline runs without a cloud provider; schema calls fail
	// fast and the wizard degrades to deterministic-only behavior
	LLMProviderOffline LLMProvider = "offline"
)

// LLMConfig contains gateway-level configuration shared across providers
type LLMConfig struct {
	Enabled               bool        `toml:"enabled"`                  // Master switch for LLM calls
	Provider              LLMProvider `toml:"provider"`                 // "claude", "gemini", or "offline"
	MaxAttempts           int         `toml:"max_attempts"`             // Schema-call attempts per request (default: 3, min 1)
	RateLimit             string      `toml:"rate_limit"`               // Min interval between provider calls (default: "1s")
	PromptsFile           string      `toml:"prompts_file"`             // YAML prompt registry path (optional)
	RequirePromptID       bool        `toml:"require_prompt_id"`        // Refuse stages without a registered prompt id
	IncludeSystemWithID   bool        `toml:"include_system_with_id"`   // Diagnostic: send system prompt alongside registered id
	DebugArtifacts        bool        `toml:"debug_artifacts"`          // Persist request/response artifacts to disk
	ArtifactsDir          string      `toml:"artifacts_dir"`            // Artifact directory (default: "./llm-artifacts")
	BulkTranslationBudget int         `toml:"bulk_translation_budget"`  // Initial token budget for bulk translation (default: 4096)
	MaxModelCallsPerTurn  int         `toml:"max_model_calls_per_turn"` // Hard cap on LLM calls within one wizard turn (default: 4)
}

// WizardConfig contains wizard-level feature toggles
type WizardConfig struct {
	SessionTTL          string `toml:"session_ttl"`           // Session lifetime (default: "72h")
	CleanupSchedule     string `toml:"cleanup_schedule"`      // Cron expression for expired-session GC (default: "@hourly")
	EnableCoverLetter   bool   `toml:"enable_cover_letter"`   // Offer cover letter after PDF generation
	RequireJobText      bool   `toml:"require_job_text"`      // Refuse tailoring without a job posting
	SingleCallMode      bool   `toml:"single_call_mode"`      // At most one LLM call per turn
	ExecutionLatch      bool   `toml:"execution_latch"`       // Reuse cached PDF for repeat generate requests (default: true)
	DeltaContextPacks   bool   `toml:"delta_context_packs"`   // Section-hash delta mode for context packs
	AlwaysRegeneratePDF bool   `toml:"always_regenerate_pdf"` // Bypass the PDF idempotency latch
	DebugExport         bool   `toml:"debug_export"`          // Allow export_session_debug tool
	URLFetchTimeout     string `toml:"url_fetch_timeout"`     // Job posting URL fetch timeout (default: "8s")
}

// PDFConfig contains renderer configuration
type PDFConfig struct {
	MaxPages int `toml:"max_pages"` // CV page contract (default: 2)
}

// DefaultConfig returns a configuration populated with deterministic defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/scriba",
			},
			RowSizeLimit: 64 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Timeout:     "60s",
			Temperature: 0.2,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Timeout:     "60s",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			Enabled:               true,
			Provider:              LLMProviderClaude,
			MaxAttempts:           3,
			RateLimit:             "1s",
			ArtifactsDir:          "./llm-artifacts",
			BulkTranslationBudget: 4096,
			MaxModelCallsPerTurn:  4,
		},
		Wizard: WizardConfig{
			SessionTTL:        "72h",
			CleanupSchedule:   "@hourly",
			EnableCoverLetter: true,
			ExecutionLatch:    true,
			URLFetchTimeout:   "8s",
		},
		PDF: PDFConfig{
			MaxPages: 2,
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each TOML file in
// order (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies SCRIBA_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("SCRIBA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("SCRIBA_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("SCRIBA_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("SCRIBA_CLAUDE_API_KEY"); v != "" {
		config.Claude.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("SCRIBA_GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("SCRIBA_LLM_PROVIDER"); v != "" {
		config.LLM.Provider = LLMProvider(v)
	}
	if v := os.Getenv("SCRIBA_LLM_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			config.LLM.Enabled = enabled
		}
	}
	if v := os.Getenv("SCRIBA_DEBUG_EXPORT"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			config.Wizard.DebugExport = enabled
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks structural constraints and normalizes bounded values
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.LLM.MaxAttempts < 1 {
		c.LLM.MaxAttempts = 1
	}
	if c.LLM.MaxModelCallsPerTurn < 1 {
		c.LLM.MaxModelCallsPerTurn = 1
	}
	if c.PDF.MaxPages < 1 {
		c.PDF.MaxPages = 2
	}

	switch c.LLM.Provider {
	case LLMProviderClaude, LLMProviderGemini, LLMProviderOffline:
	default:
		return fmt.Errorf("invalid llm provider %q (expected claude, gemini, or offline)", c.LLM.Provider)
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"claude.timeout", c.Claude.Timeout},
		{"gemini.timeout", c.Gemini.Timeout},
		{"llm.rate_limit", c.LLM.RateLimit},
		{"wizard.session_ttl", c.Wizard.SessionTTL},
		{"wizard.url_fetch_timeout", c.Wizard.URLFetchTimeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", field.name, err)
		}
	}

	return nil
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables, KV store, config fallback, error.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"anthropic_api_key": {"ANTHROPIC_API_KEY", "SCRIBA_CLAUDE_API_KEY"},
		"claude_api_key":    {"ANTHROPIC_API_KEY", "SCRIBA_CLAUDE_API_KEY"},
		"gemini_api_key":    {"GEMINI_API_KEY", "SCRIBA_GEMINI_API_KEY"},
		"google_api_key":    {"GEMINI_API_KEY", "SCRIBA_GEMINI_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// SessionTTL returns the parsed session lifetime
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Wizard.SessionTTL)
	if err != nil || d <= 0 {
		return 72 * time.Hour
	}
	return d
}

// URLFetchTimeout returns the parsed job posting fetch timeout
func (c *Config) URLFetchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Wizard.URLFetchTimeout)
	if err != nil || d <= 0 {
		return 8 * time.Second
	}
	return d
}
