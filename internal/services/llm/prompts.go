package llm

import (
	"fmt"
	"os"
	"sync"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"
)

// PromptEntry is one registered prompt. A stage may carry a dashboard
// prompt id, an inline system prompt, or both.
type PromptEntry struct {
	PromptID     string `yaml:"prompt_id"`
	SystemPrompt string `yaml:"system_prompt"`
}

// PromptRegistry maps wizard stages to their prompts. When the registry
// runs in dashboard mode, stages without a registered prompt id are
// refused rather than silently sent with inline text.
type PromptRegistry struct {
	mu              sync.RWMutex
	entries         map[string]PromptEntry
	requirePromptID bool
	logger          arbor.ILogger
}

type promptsFile struct {
	Prompts map[string]PromptEntry `yaml:"prompts"`
}

// NewPromptRegistry creates an empty registry.
func NewPromptRegistry(requirePromptID bool, logger arbor.ILogger) *PromptRegistry {
	return &PromptRegistry{
		entries:         make(map[string]PromptEntry),
		requirePromptID: requirePromptID,
		logger:          logger,
	}
}

// LoadFile merges prompts from a YAML file into the registry.
func (r *PromptRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prompts file %s: %w", path, err)
	}

	var file promptsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for stage, entry := range file.Prompts {
		r.entries[stage] = entry
	}

	r.logger.Info().Str("path", path).Int("count", len(file.Prompts)).Msg("Prompt registry loaded")
	return nil
}

// Register adds or replaces one stage entry.
func (r *PromptRegistry) Register(stage string, entry PromptEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[stage] = entry
}

// Resolve returns the prompt id and system prompt to use for a stage.
// The caller's inline prompt is the fallback when the stage has no
// registered entry. In dashboard mode a stage without a registered
// prompt id is an error.
func (r *PromptRegistry) Resolve(stage, inlineSystem string) (promptID, systemPrompt string, err error) {
	r.mu.RLock()
	entry, ok := r.entries[stage]
	r.mu.RUnlock()

	if !ok {
		if r.requirePromptID {
			return "", "", fmt.Errorf("no registered prompt id for stage %q", stage)
		}
		return "", inlineSystem, nil
	}

	systemPrompt = entry.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = inlineSystem
	}
	if r.requirePromptID && entry.PromptID == "" {
		return "", "", fmt.Errorf("no registered prompt id for stage %q", stage)
	}
	return entry.PromptID, systemPrompt, nil
}
