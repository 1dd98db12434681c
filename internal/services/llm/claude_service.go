package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// ClaudeService implements the SchemaProvider interface using the
// Anthropic Claude API.
type ClaudeService struct {
	config  *common.ClaudeConfig
	logger  arbor.ILogger
	client  *anthropic.Client
	timeout time.Duration
}

// NewClaudeService creates a new Claude provider instance.
//
// The service initialization includes:
//  1. Resolving the Anthropic API key from env, KV store, then config
//  2. Setting the default model name if not specified
//  3. Parsing the per-attempt timeout from configuration
func NewClaudeService(claudeConfig *common.ClaudeConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (*ClaudeService, error) {
	ctx := context.Background()
	apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "anthropic_api_key", claudeConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API key is required for Claude provider (set via ANTHROPIC_API_KEY, SCRIBA_CLAUDE_API_KEY, or claude.api_key in config): %w", err)
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(claudeConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", claudeConfig.Timeout, err)
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	service := &ClaudeService{
		config:  claudeConfig,
		logger:  logger,
		client:  &client,
		timeout: timeout,
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Float32("temperature", claudeConfig.Temperature).
		Msg("Claude provider initialized successfully")

	return service, nil
}

// Name returns the provider identifier.
func (s *ClaudeService) Name() string {
	return "claude"
}

// GenerateSchema performs one structured-output attempt. Truncated
// responses return the partial text with an ErrTruncated-classified
// error so the gateway can bump the budget and retry.
func (s *ClaudeService) GenerateSchema(ctx context.Context, call interfaces.SchemaCall) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(call.MaxOutputTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(call.UserText)),
		},
	}
	if s.config.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(s.config.Temperature))
	}
	if systemText := buildSchemaSystemText(call); systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", classifyClaudeError(err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if resp.StopReason == anthropic.StopReasonMaxTokens {
		return response.String(), &interfaces.CallError{
			Kind: interfaces.CallErrorProvider,
			Err:  fmt.Errorf("%w at %d tokens", interfaces.ErrTruncated, call.MaxOutputTokens),
		}
	}

	if response.Len() == 0 {
		return "", &interfaces.CallError{
			Kind: interfaces.CallErrorEmpty,
			Err:  fmt.Errorf("no response generated from Claude API"),
		}
	}

	return response.String(), nil
}

// classifyClaudeError maps an Anthropic API failure to a typed gateway
// error. Budget rejections get their own kind so the gateway can clamp.
func classifyClaudeError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 400 && strings.Contains(strings.ToLower(apierr.Error()), "max_tokens") {
			return &interfaces.CallError{
				Kind:   interfaces.CallErrorBudget,
				Status: apierr.StatusCode,
				Err:    err,
			}
		}
		return &interfaces.CallError{
			Kind:   interfaces.CallErrorProvider,
			Status: apierr.StatusCode,
			Err:    err,
		}
	}
	return &interfaces.CallError{Kind: interfaces.CallErrorProvider, Err: err}
}

// HealthCheck verifies the Claude provider can handle requests with a
// minimal probe.
func (s *ClaudeService) HealthCheck(ctx context.Context) error {
	s.logger.Debug().Msg("Running Claude provider health check")

	if s.client == nil {
		return fmt.Errorf("Claude client is not initialized")
	}

	healthCheckCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := s.client.Messages.New(healthCheckCtx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("Claude probe failed: %w", err)
	}
	if len(resp.Content) == 0 {
		return fmt.Errorf("Claude probe returned empty response")
	}

	s.logger.Debug().
		Str("model", s.config.Model).
		Msg("Claude provider health check passed")

	return nil
}

// Close releases resources and performs cleanup operations.
func (s *ClaudeService) Close() error {
	s.logger.Debug().Msg("Closing Claude provider")
	s.client = nil
	return nil
}

// buildSchemaSystemText composes the system text for a structured call:
// the stage system prompt followed by the schema contract.
func buildSchemaSystemText(call interfaces.SchemaCall) string {
	var b strings.Builder
	if call.SystemPrompt != "" {
		b.WriteString(call.SystemPrompt)
		b.WriteString("\n\n")
	}
	if len(call.Schema) > 0 {
		b.WriteString("Respond with a single JSON object conforming to this JSON Schema. No prose, no code fences.\n\n")
		b.Write(call.Schema)
	}
	return strings.TrimSpace(b.String())
}
