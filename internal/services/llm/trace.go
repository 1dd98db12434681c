package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// CallPhase distinguishes the initial schema attempt from the one-shot
// repair attempt that follows a schema mismatch.
type CallPhase string

const (
	PhaseSchema       CallPhase = "schema"
	PhaseSchemaRepair CallPhase = "schema_repair"
)

// TraceRecord captures one provider attempt. Inputs are recorded as
// length plus digest, never as raw text, so traces stay free of CV
// content and API keys.
type TraceRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	TraceID       string    `json:"trace_id"`
	SessionID     string    `json:"session_id,omitempty"`
	Stage         string    `json:"stage"`
	Phase         CallPhase `json:"phase"`
	Provider      string    `json:"provider"`
	PromptID      string    `json:"prompt_id,omitempty"`
	Attempt       int       `json:"attempt"`
	MaxTokens     int       `json:"max_tokens"`
	SystemLen     int       `json:"system_len"`
	SystemSHA256  string    `json:"system_sha256"`
	UserLen       int       `json:"user_len"`
	UserSHA256    string    `json:"user_sha256"`
	OutputLen     int       `json:"output_len"`
	Status        string    `json:"status"` // "ok" or a CallErrorKind
	DurationMs    int64     `json:"duration_ms"`
	ErrorSummary  string    `json:"error,omitempty"`
}

// TraceRecorder logs per-attempt trace records and optionally persists
// raw request/response artifacts for debugging.
type TraceRecorder struct {
	logger       arbor.ILogger
	artifacts    bool
	artifactsDir string
}

// NewTraceRecorder creates a recorder. When artifacts is false only the
// structured log line is emitted.
func NewTraceRecorder(logger arbor.ILogger, artifacts bool, artifactsDir string) *TraceRecorder {
	return &TraceRecorder{
		logger:       logger,
		artifacts:    artifacts,
		artifactsDir: artifactsDir,
	}
}

// Record builds and emits a trace record for one attempt.
func (r *TraceRecorder) Record(call interfaces.SchemaCall, provider string, phase CallPhase, attempt int, maxTokens int, output string, duration time.Duration, callErr error) {
	status := "ok"
	summary := ""
	if callErr != nil {
		status = string(interfaces.CallErrorProvider)
		var ce *interfaces.CallError
		if errors.As(callErr, &ce) {
			status = string(ce.Kind)
		}
		summary = callErr.Error()
	}

	record := TraceRecord{
		Timestamp:    time.Now().UTC(),
		TraceID:      call.Trace.TraceID,
		SessionID:    call.Trace.SessionID,
		Stage:        call.Stage,
		Phase:        phase,
		Provider:     provider,
		PromptID:     call.PromptID,
		Attempt:      attempt,
		MaxTokens:    maxTokens,
		SystemLen:    len(call.SystemPrompt),
		SystemSHA256: common.SHA256Hex([]byte(call.SystemPrompt)),
		UserLen:      len(call.UserText),
		UserSHA256:   common.SHA256Hex([]byte(call.UserText)),
		OutputLen:    len(output),
		Status:       status,
		DurationMs:   duration.Milliseconds(),
		ErrorSummary: summary,
	}

	event := r.logger.Debug()
	if callErr != nil {
		event = r.logger.Warn()
	}
	event.
		Str("trace_id", record.TraceID).
		Str("stage", record.Stage).
		Str("phase", string(record.Phase)).
		Str("provider", record.Provider).
		Int("attempt", record.Attempt).
		Int("max_tokens", record.MaxTokens).
		Int("output_len", record.OutputLen).
		Str("status", record.Status).
		Int64("duration_ms", record.DurationMs).
		Msg("LLM call trace")

	if r.artifacts {
		r.writeArtifact(record, call, output)
	}
}

// writeArtifact persists the full record plus raw texts to disk. Disk
// artifacts are a debug-only feature and failures are logged, not fatal.
func (r *TraceRecorder) writeArtifact(record TraceRecord, call interfaces.SchemaCall, output string) {
	if r.artifactsDir == "" {
		return
	}
	if err := os.MkdirAll(r.artifactsDir, 0o755); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to create artifacts directory")
		return
	}

	artifact := struct {
		TraceRecord
		SystemPrompt string `json:"system_prompt"`
		UserText     string `json:"user_text"`
		Output       string `json:"output"`
	}{
		TraceRecord:  record,
		SystemPrompt: call.SystemPrompt,
		UserText:     call.UserText,
		Output:       output,
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to serialize trace artifact")
		return
	}

	name := fmt.Sprintf("%s_%s_%s_a%d.json",
		record.Timestamp.Format("20060102T150405"),
		record.TraceID, record.Phase, record.Attempt)
	path := filepath.Join(r.artifactsDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("Failed to write trace artifact")
	}
}
