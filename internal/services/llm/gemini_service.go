package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiService implements the SchemaProvider interface using the
// Google Gemini API with native JSON response mode.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiService creates a new Gemini provider instance.
func NewGeminiService(geminiConfig *common.GeminiConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (*GeminiService, error) {
	ctx := context.Background()
	apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "gemini_api_key", geminiConfig.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Google API key is required for Gemini provider (set via GEMINI_API_KEY, SCRIBA_GEMINI_API_KEY, or gemini.api_key in config): %w", err)
	}

	if geminiConfig.Model == "" {
		geminiConfig.Model = "gemini-2.5-flash"
	}

	timeout, err := time.ParseDuration(geminiConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", geminiConfig.Timeout, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:  geminiConfig,
		logger:  logger,
		client:  client,
		timeout: timeout,
	}

	logger.Debug().
		Str("model", geminiConfig.Model).
		Dur("timeout", timeout).
		Msg("Gemini provider initialized successfully")

	return service, nil
}

// Name returns the provider identifier.
func (s *GeminiService) Name() string {
	return "gemini"
}

// GenerateSchema performs one structured-output attempt using Gemini's
// JSON response mode with the call schema attached.
func (s *GeminiService) GenerateSchema(ctx context.Context, call interfaces.SchemaCall) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(s.config.Temperature),
		ResponseMIMEType: "application/json",
	}
	if call.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(call.MaxOutputTokens)
	}
	if len(call.Schema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(call.Schema, &schema); err != nil {
			return "", &interfaces.CallError{
				Kind: interfaces.CallErrorProvider,
				Err:  fmt.Errorf("invalid response schema: %w", err),
			}
		}
		config.ResponseJsonSchema = schema
	}
	if call.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(call.SystemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(call.UserText, genai.RoleUser),
	}

	resp, err := s.client.Models.GenerateContent(timeoutCtx, s.config.Model, contents, config)
	if err != nil {
		return "", &interfaces.CallError{Kind: interfaces.CallErrorProvider, Err: err}
	}

	var response strings.Builder
	truncated := false
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content != nil {
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						response.WriteString(part.Text)
					}
				}
			}
			if candidate.FinishReason == genai.FinishReasonMaxTokens {
				truncated = true
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if truncated {
		return response.String(), &interfaces.CallError{
			Kind: interfaces.CallErrorProvider,
			Err:  fmt.Errorf("%w at %d tokens", interfaces.ErrTruncated, call.MaxOutputTokens),
		}
	}

	if response.Len() == 0 {
		return "", &interfaces.CallError{
			Kind: interfaces.CallErrorEmpty,
			Err:  fmt.Errorf("no response generated from Gemini API"),
		}
	}

	return response.String(), nil
}

// HealthCheck verifies the Gemini provider can handle requests with a
// minimal probe.
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	s.logger.Debug().Msg("Running Gemini provider health check")

	if s.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}

	healthCheckCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText("ping", genai.RoleUser),
	}
	resp, err := s.client.Models.GenerateContent(healthCheckCtx, s.config.Model, contents, nil)
	if err != nil {
		return fmt.Errorf("Gemini probe failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return fmt.Errorf("Gemini probe returned empty response")
	}

	s.logger.Debug().
		Str("model", s.config.Model).
		Msg("Gemini provider health check passed")

	return nil
}

// Close releases resources and performs cleanup operations.
func (s *GeminiService) Close() error {
	s.logger.Debug().Msg("Closing Gemini provider")
	s.client = nil
	return nil
}
