package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"golang.org/x/time/rate"
)

// maxTokenBudget is the ceiling for automatic budget bumps.
const maxTokenBudget = 8192

// Gateway implements the schema-constrained LLM entry point. It owns
// retries, token budget bumps, JSON sanitizing and repair, rate limiting
// and per-trace call accounting; providers perform single attempts.
type Gateway struct {
	config   *common.Config
	provider interfaces.SchemaProvider
	registry *PromptRegistry
	recorder *TraceRecorder
	limiter  *rate.Limiter
	logger   arbor.ILogger

	mu    sync.Mutex
	calls map[string]int
}

// NewGateway wires a gateway around one provider. A nil provider is
// valid and behaves like the offline mode: every call fails fast with
// llm_disabled.
func NewGateway(cfg *common.Config, provider interfaces.SchemaProvider, registry *PromptRegistry, logger arbor.ILogger) *Gateway {
	interval, err := time.ParseDuration(cfg.LLM.RateLimit)
	if err != nil || interval <= 0 {
		interval = time.Second
	}

	return &Gateway{
		config:   cfg,
		provider: provider,
		registry: registry,
		recorder: NewTraceRecorder(logger, cfg.LLM.DebugArtifacts, cfg.LLM.ArtifactsDir),
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		logger:   logger,
		calls:    make(map[string]int),
	}
}

// Enabled reports the config master switch.
func (g *Gateway) Enabled() bool {
	return g.config.LLM.Enabled
}

// Available reports whether a provider is wired in.
func (g *Gateway) Available() bool {
	return g.config.LLM.Enabled && g.provider != nil
}

// CallsMade returns the number of provider attempts issued for a trace id.
func (g *Gateway) CallsMade(traceID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[traceID]
}

// countCall reserves one provider attempt against the per-turn budget.
// It fails when the turn has already spent its call budget.
func (g *Gateway) countCall(traceID string) error {
	if traceID == "" {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls[traceID] >= g.config.LLM.MaxModelCallsPerTurn {
		return &interfaces.CallError{
			Kind: interfaces.CallErrorCallBudget,
			Err:  fmt.Errorf("model call budget of %d exhausted for trace %s", g.config.LLM.MaxModelCallsPerTurn, traceID),
		}
	}
	g.calls[traceID]++
	return nil
}

// CallSchema performs a structured-output call with retries and repair.
// On success the response object is unmarshaled into out.
func (g *Gateway) CallSchema(ctx context.Context, call interfaces.SchemaCall, out interface{}) error {
	if !g.Enabled() || g.provider == nil {
		return &interfaces.CallError{
			Kind: interfaces.CallErrorDisabled,
			Err:  errors.New("llm calls are disabled"),
		}
	}

	promptID, systemPrompt, err := g.registry.Resolve(call.Stage, call.SystemPrompt)
	if err != nil {
		return &interfaces.CallError{Kind: interfaces.CallErrorProvider, Err: err}
	}
	call.PromptID = promptID
	if promptID == "" || g.config.LLM.IncludeSystemWithID {
		call.SystemPrompt = systemPrompt
	} else {
		call.SystemPrompt = ""
	}

	maxTokens := call.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = g.config.Claude.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = maxTokenBudget
	}

	attempts := g.config.LLM.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	repairUsed := false
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		output, callErr := g.attempt(ctx, call, maxTokens, PhaseSchema, attempt)
		if callErr != nil {
			lastErr = callErr

			var ce *interfaces.CallError
			if errors.As(callErr, &ce) {
				switch {
				case ce.Kind == interfaces.CallErrorCallBudget:
					return callErr
				case ce.Kind == interfaces.CallErrorBudget && call.BudgetClampOnReject > 0 && maxTokens > call.BudgetClampOnReject:
					maxTokens = call.BudgetClampOnReject
					continue
				case ce.Kind == interfaces.CallErrorBudget:
					return callErr
				}
			}
			if errors.Is(callErr, interfaces.ErrTruncated) {
				maxTokens = bumpTokenBudget(maxTokens)
				continue
			}
			if ctx.Err() != nil {
				return &interfaces.CallError{Kind: interfaces.CallErrorProvider, Err: ctx.Err()}
			}
			continue
		}

		if strings.TrimSpace(output) == "" {
			lastErr = &interfaces.CallError{Kind: interfaces.CallErrorEmpty, Err: errors.New("provider returned empty output")}
			continue
		}

		parseErr := unmarshalSanitized(output, out)
		if parseErr == nil {
			return nil
		}
		lastErr = parseErr

		// One schema-repair round per call: feed the malformed output back
		// and ask for a corrected object.
		if !repairUsed {
			repairUsed = true
			repaired, repairErr := g.attemptRepair(ctx, call, maxTokens, output)
			if repairErr != nil {
				lastErr = repairErr
				continue
			}
			if err := unmarshalSanitized(repaired, out); err != nil {
				lastErr = err
				continue
			}
			return nil
		}
	}

	if lastErr == nil {
		lastErr = &interfaces.CallError{Kind: interfaces.CallErrorProvider, Err: errors.New("no attempts made")}
	}
	var ce *interfaces.CallError
	if errors.As(lastErr, &ce) {
		return lastErr
	}
	return &interfaces.CallError{Kind: interfaces.CallErrorProvider, Err: lastErr}
}

// attempt performs one rate-limited provider call and records a trace.
func (g *Gateway) attempt(ctx context.Context, call interfaces.SchemaCall, maxTokens int, phase CallPhase, attempt int) (string, error) {
	if err := g.countCall(call.Trace.TraceID); err != nil {
		return "", err
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", &interfaces.CallError{Kind: interfaces.CallErrorProvider, Err: err}
	}

	attemptCall := call
	attemptCall.MaxOutputTokens = maxTokens

	start := time.Now()
	output, err := g.provider.GenerateSchema(ctx, attemptCall)
	g.recorder.Record(attemptCall, g.provider.Name(), phase, attempt, maxTokens, output, time.Since(start), err)
	return output, err
}

// attemptRepair sends the malformed output back to the model with a
// corrective instruction and the original schema.
func (g *Gateway) attemptRepair(ctx context.Context, call interfaces.SchemaCall, maxTokens int, malformed string) (string, error) {
	repairCall := call
	repairCall.UserText = fmt.Sprintf(
		"The previous response was not valid JSON for the required schema.\n\nPrevious response:\n%s\n\nReturn ONLY a corrected JSON object conforming to the schema. No prose, no code fences.",
		malformed)
	return g.attempt(ctx, repairCall, maxTokens, PhaseSchemaRepair, 1)
}

// unmarshalSanitized parses model output into out, sanitizing first and
// falling back to structural repair.
func unmarshalSanitized(output string, out interface{}) error {
	sanitized := SanitizeJSON(output)
	if err := json.Unmarshal([]byte(sanitized), out); err == nil {
		return nil
	}

	repaired, err := RepairJSON(output)
	if err != nil {
		return &interfaces.CallError{Kind: interfaces.CallErrorBadJSON, Err: err}
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &interfaces.CallError{Kind: interfaces.CallErrorSchema, Err: err}
		}
		return &interfaces.CallError{Kind: interfaces.CallErrorBadJSON, Err: err}
	}
	return nil
}

// bumpTokenBudget grows the output budget after a truncation, capped at
// the provider ceiling.
func bumpTokenBudget(current int) int {
	next := current + 400
	if grown := current * 8 / 5; grown > next {
		next = grown
	}
	if next > maxTokenBudget {
		next = maxTokenBudget
	}
	return next
}
