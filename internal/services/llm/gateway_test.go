package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
)

func testLLMConfig() *common.Config {
	cfg := common.DefaultConfig()
	cfg.LLM.RateLimit = "1ms"
	cfg.LLM.MaxAttempts = 3
	cfg.LLM.MaxModelCallsPerTurn = 8
	return cfg
}

func newTestGateway(cfg *common.Config, provider interfaces.SchemaProvider) *Gateway {
	logger := common.GetLogger()
	return NewGateway(cfg, provider, NewPromptRegistry(false, logger), logger)
}

type roleOut struct {
	Title string `json:"title"`
}

func TestCallSchemaSuccessFirstAttempt(t *testing.T) {
	provider := NewScriptedProvider(
		ScriptedResponse{Output: `{"title": "Engineer"}`},
	)
	gateway := newTestGateway(testLLMConfig(), provider)

	var out roleOut
	err := gateway.CallSchema(context.Background(), interfaces.SchemaCall{
		Stage:    "work_tailoring",
		UserText: "tailor",
		Trace:    interfaces.TraceContext{TraceID: "trc_1"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Engineer", out.Title)
	assert.Equal(t, 1, gateway.CallsMade("trc_1"))
}

func TestCallSchemaBumpsBudgetOnTruncation(t *testing.T) {
	truncated := &interfaces.CallError{
		Kind: interfaces.CallErrorProvider,
		Err:  fmt.Errorf("%w at 1000 tokens", interfaces.ErrTruncated),
	}
	provider := NewScriptedProvider(
		ScriptedResponse{Output: `{"title": "Eng`, Err: truncated},
		ScriptedResponse{Output: `{"title": "Engineer"}`},
	)
	gateway := newTestGateway(testLLMConfig(), provider)

	var out roleOut
	err := gateway.CallSchema(context.Background(), interfaces.SchemaCall{
		Stage:           "work_tailoring",
		UserText:        "tailor",
		MaxOutputTokens: 1000,
		Trace:           interfaces.TraceContext{TraceID: "trc_2"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Engineer", out.Title)

	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 1000, calls[0].MaxOutputTokens)
	assert.Equal(t, 1600, calls[1].MaxOutputTokens)
}

func TestCallSchemaBudgetCapped(t *testing.T) {
	assert.Equal(t, 1600, bumpTokenBudget(1000))
	assert.Equal(t, 500, bumpTokenBudget(100))
	assert.Equal(t, 8192, bumpTokenBudget(8000))
	assert.Equal(t, 8192, bumpTokenBudget(8192))
}

func TestCallSchemaClampsOnBudgetReject(t *testing.T) {
	rejected := &interfaces.CallError{
		Kind:   interfaces.CallErrorBudget,
		Status: 400,
		Err:    errors.New("max_tokens too large"),
	}
	provider := NewScriptedProvider(
		ScriptedResponse{Err: rejected},
		ScriptedResponse{Output: `{"title": "Engineer"}`},
	)
	gateway := newTestGateway(testLLMConfig(), provider)

	var out roleOut
	err := gateway.CallSchema(context.Background(), interfaces.SchemaCall{
		Stage:               "bulk_translation",
		UserText:            "translate",
		MaxOutputTokens:     8192,
		BudgetClampOnReject: 4096,
		Trace:               interfaces.TraceContext{TraceID: "trc_3"},
	}, &out)
	require.NoError(t, err)

	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 8192, calls[0].MaxOutputTokens)
	assert.Equal(t, 4096, calls[1].MaxOutputTokens)
}

func TestCallSchemaBudgetRejectWithoutClampFails(t *testing.T) {
	rejected := &interfaces.CallError{
		Kind: interfaces.CallErrorBudget,
		Err:  errors.New("max_tokens too large"),
	}
	provider := NewScriptedProvider(ScriptedResponse{Err: rejected})
	gateway := newTestGateway(testLLMConfig(), provider)

	var out roleOut
	err := gateway.CallSchema(context.Background(), interfaces.SchemaCall{
		Stage:           "work_tailoring",
		UserText:        "tailor",
		MaxOutputTokens: 8192,
	}, &out)

	var ce *interfaces.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, interfaces.CallErrorBudget, ce.Kind)
	assert.Len(t, provider.Calls(), 1)
}

func TestCallSchemaRetriesEmptyOutput(t *testing.T) {
	provider := NewScriptedProvider(
		ScriptedResponse{Output: "   "},
		ScriptedResponse{Output: `{"title": "Engineer"}`},
	)
	gateway := newTestGateway(testLLMConfig(), provider)

	var out roleOut
	err := gateway.CallSchema(context.Background(), interfaces.SchemaCall{
		Stage:    "work_tailoring",
		UserText: "tailor",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Engineer", out.Title)
}

func TestCallSchemaRepairRoundAfterSchemaMismatch(t *testing.T) {
	provider := NewScriptedProvider(
		// Parses as JSON but cannot map onto the target struct
		ScriptedResponse{Output: `{"title": 42}`},
		ScriptedResponse{Output: `{"title": "Engineer"}`},
	)
	gateway := newTestGateway(testLLMConfig(), provider)

	var out roleOut
	err := gateway.CallSchema(context.Background(), interfaces.SchemaCall{
		Stage:    "work_tailoring",
		UserText: "tailor",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Engineer", out.Title)

	calls := provider.Calls()
	require.Len(t, calls, 2)
	assert.True(t, strings.Contains(calls[1].UserText, "Previous response"))
}

func TestCallSchemaDisabled(t *testing.T) {
	cfg := testLLMConfig()
	cfg.LLM.Enabled = false
	gateway := newTestGateway(cfg, NewScriptedProvider())

	var out roleOut
	err := gateway.CallSchema(context.Background(), interfaces.SchemaCall{Stage: "x", UserText: "y"}, &out)

	var ce *interfaces.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, interfaces.CallErrorDisabled, ce.Kind)
	assert.False(t, gateway.Available())
}

func TestCallSchemaPerTurnCallBudget(t *testing.T) {
	cfg := testLLMConfig()
	cfg.LLM.MaxModelCallsPerTurn = 1
	provider := NewScriptedProvider(
		ScriptedResponse{Output: `{"title": "Engineer"}`},
		ScriptedResponse{Output: `{"title": "Manager"}`},
	)
	gateway := newTestGateway(cfg, provider)
	trace := interfaces.TraceContext{TraceID: "trc_budget"}

	var out roleOut
	require.NoError(t, gateway.CallSchema(context.Background(), interfaces.SchemaCall{
		Stage: "a", UserText: "x", Trace: trace,
	}, &out))

	err := gateway.CallSchema(context.Background(), interfaces.SchemaCall{
		Stage: "b", UserText: "y", Trace: trace,
	}, &out)

	var ce *interfaces.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, interfaces.CallErrorCallBudget, ce.Kind)
	assert.Equal(t, 1, gateway.CallsMade("trc_budget"))
}

func TestPromptRegistryDashboardMode(t *testing.T) {
	logger := common.GetLogger()
	registry := NewPromptRegistry(true, logger)
	registry.Register("work_tailoring", PromptEntry{PromptID: "pr_work_v3", SystemPrompt: "You tailor CVs."})

	promptID, system, err := registry.Resolve("work_tailoring", "inline fallback")
	require.NoError(t, err)
	assert.Equal(t, "pr_work_v3", promptID)
	assert.Equal(t, "You tailor CVs.", system)

	_, _, err = registry.Resolve("unregistered_stage", "inline")
	assert.Error(t, err)
}

func TestPromptRegistryLegacyFallback(t *testing.T) {
	registry := NewPromptRegistry(false, common.GetLogger())

	promptID, system, err := registry.Resolve("anything", "inline system")
	require.NoError(t, err)
	assert.Empty(t, promptID)
	assert.Equal(t, "inline system", system)
}

func TestGatewayOmitsSystemPromptWithRegisteredID(t *testing.T) {
	cfg := testLLMConfig()
	provider := NewScriptedProvider(ScriptedResponse{Output: `{"title": "Engineer"}`})
	logger := common.GetLogger()
	registry := NewPromptRegistry(false, logger)
	registry.Register("work_tailoring", PromptEntry{PromptID: "pr_work_v3", SystemPrompt: "registered system"})
	gateway := NewGateway(cfg, provider, registry, logger)

	var out roleOut
	require.NoError(t, gateway.CallSchema(context.Background(), interfaces.SchemaCall{
		Stage:        "work_tailoring",
		SystemPrompt: "inline system",
		UserText:     "tailor",
	}, &out))

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "pr_work_v3", calls[0].PromptID)
	assert.Empty(t, calls[0].SystemPrompt)
}
