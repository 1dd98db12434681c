package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTruncated is returned by providers when the output was cut off by
// the max_output_tokens budget; the gateway bumps the budget and retries.
var ErrTruncated = errors.New("output truncated by max_output_tokens")

// CallErrorKind classifies gateway failures. All kinds are non-fatal to
// the session; the wizard surfaces them as "retry or skip".
type CallErrorKind string

const (
	CallErrorProvider   CallErrorKind = "provider_error"
	CallErrorEmpty      CallErrorKind = "empty_output"
	CallErrorBadJSON    CallErrorKind = "invalid_json"
	CallErrorSchema     CallErrorKind = "schema_mismatch"
	CallErrorBudget     CallErrorKind = "budget_rejected"
	CallErrorDisabled   CallErrorKind = "llm_disabled"
	CallErrorCallBudget CallErrorKind = "call_budget_exhausted"
)

// CallError is the typed failure of a structured-output call
type CallError struct {
	Kind   CallErrorKind
	Status int
	Err    error
}

func (e *CallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm call failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("llm call failed (%s)", e.Kind)
}

func (e *CallError) Unwrap() error { return e.Err }

// TraceContext correlates gateway calls with sessions and turns
type TraceContext struct {
	TraceID   string
	SessionID string
}

// SchemaCall describes one structured-output request. The gateway always
// enforces structured output: the provider must return a JSON object
// conforming to Schema or the call is treated as a failure.
type SchemaCall struct {
	Stage        string
	SystemPrompt string
	UserText     string
	Schema       json.RawMessage

	// PromptID is a pre-registered dashboard prompt id. When set, the
	// provider sends only the id plus minimal variables; the raw system
	// prompt is included alongside it only in diagnostic mode.
	PromptID string

	MaxOutputTokens int

	// BudgetClampOnReject clamps the token budget to this value and
	// retries when the provider rejects the requested budget (0 = no
	// clamp). Used by bulk translation.
	BudgetClampOnReject int

	Trace TraceContext
}

// LLMGateway is the schema-constrained LLM entry point (C3). CallSchema
// retries, bumps token budgets, sanitizes and repairs JSON, and records a
// trace per attempt. On success the response object is unmarshaled into
// out. All failures are *CallError.
type LLMGateway interface {
	CallSchema(ctx context.Context, call SchemaCall, out interface{}) error

	// Enabled reports the config master switch
	Enabled() bool

	// Available reports whether a provider is configured and reachable
	// enough to attempt calls
	Available() bool

	// CallsMade returns the number of provider calls issued for a trace id,
	// used to enforce the per-turn call budget
	CallsMade(traceID string) int
}

// SchemaProvider is one LLM backend capable of structured output. The
// gateway owns retries; a provider performs a single attempt.
type SchemaProvider interface {
	// GenerateSchema performs one structured-output attempt. When the
	// provider truncated the output due to the token budget, it returns
	// the partial text together with ErrTruncated-classified CallError.
	GenerateSchema(ctx context.Context, call SchemaCall) (string, error)

	Name() string
	HealthCheck(ctx context.Context) error
	Close() error
}
