package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// NewSchemaProvider creates the configured provider implementation. The
// offline provider is nil: the gateway then fails schema calls fast and
// the wizard degrades to deterministic behavior.
func NewSchemaProvider(cfg *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (interfaces.SchemaProvider, error) {
	if !cfg.LLM.Enabled {
		logger.Info().Msg("LLM calls disabled by configuration")
		return nil, nil
	}

	logger.Info().Str("provider", string(cfg.LLM.Provider)).Msg("Initializing LLM provider")

	switch cfg.LLM.Provider {
	case common.LLMProviderClaude:
		return NewClaudeService(&cfg.Claude, kvStorage, logger)

	case common.LLMProviderGemini:
		return NewGeminiService(&cfg.Gemini, kvStorage, logger)

	case common.LLMProviderOffline:
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}

// NewGatewayFromConfig builds the full gateway: provider, prompt
// registry (loaded from the configured YAML file when present), and the
// retry/trace machinery around them.
func NewGatewayFromConfig(cfg *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (interfaces.LLMGateway, error) {
	provider, err := NewSchemaProvider(cfg, kvStorage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	registry := NewPromptRegistry(cfg.LLM.RequirePromptID, logger)
	if cfg.LLM.PromptsFile != "" {
		if err := registry.LoadFile(cfg.LLM.PromptsFile); err != nil {
			return nil, err
		}
	}

	return NewGateway(cfg, provider, registry, logger), nil
}
