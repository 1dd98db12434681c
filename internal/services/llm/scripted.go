package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/scriba/internal/interfaces"
)

// ScriptedResponse is one canned provider reply, or an error to return
// instead.
type ScriptedResponse struct {
	Output string
	Err    error
}

// ScriptedProvider replays a fixed sequence of responses. It exists for
// tests and local development without network access.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	calls     []interfaces.SchemaCall
}

// NewScriptedProvider creates a provider that replays responses in order.
func NewScriptedProvider(responses ...ScriptedResponse) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// Name returns the provider identifier.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// GenerateSchema pops the next scripted response. Running past the
// script is a provider error.
func (p *ScriptedProvider) GenerateSchema(ctx context.Context, call interfaces.SchemaCall) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, call)
	if len(p.responses) == 0 {
		return "", &interfaces.CallError{
			Kind: interfaces.CallErrorProvider,
			Err:  fmt.Errorf("scripted provider exhausted after %d calls", len(p.calls)),
		}
	}
	next := p.responses[0]
	p.responses = p.responses[1:]
	return next.Output, next.Err
}

// Calls returns a copy of every call received so far.
func (p *ScriptedProvider) Calls() []interfaces.SchemaCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]interfaces.SchemaCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// HealthCheck always passes.
func (p *ScriptedProvider) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (p *ScriptedProvider) Close() error {
	return nil
}
