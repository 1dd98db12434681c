package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/llm"
	"github.com/ternarybob/scriba/internal/services/wizard"
	"github.com/ternarybob/scriba/internal/storage/badger"
)

type stubRenderer struct{}

func (s *stubRenderer) RenderCV(ctx context.Context, cv *models.CVData, language string, photo []byte) ([]byte, error) {
	return []byte("%PDF-1.4 stub " + cv.FullName), nil
}

func (s *stubRenderer) RenderCoverLetter(ctx context.Context, markdown string, cv *models.CVData) ([]byte, error) {
	return []byte("%PDF-1.4 letter"), nil
}

type stubExtractor struct {
	cv    *models.CVData
	photo []byte
}

func (s *stubExtractor) Extract(ctx context.Context, docx []byte) (*models.CVData, []byte, error) {
	if s.cv == nil {
		return nil, nil, fmt.Errorf("no document")
	}
	return s.cv.Clone(), s.photo, nil
}

type toolHarness struct {
	handler *ToolHandler
	storage interfaces.StorageManager
	config  *common.Config
}

func newToolHarness(t *testing.T) *toolHarness {
	t.Helper()

	cfg := common.DefaultConfig()
	cfg.Storage.Badger.InMemory = true
	cfg.LLM.Enabled = false

	logger := common.GetLogger()
	manager, err := badger.NewManager(logger, &cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	gateway := llm.NewGateway(cfg, llm.NewScriptedProvider(), llm.NewPromptRegistry(false, logger), logger)
	extractor := &stubExtractor{cv: &models.CVData{
		FullName: "Anna Kowalska",
		Email:    "anna@example.com",
		Phone:    "+48 123 123 123",
	}}
	renderer := &stubRenderer{}

	orch := wizard.NewOrchestrator(cfg, manager, gateway, renderer, extractor, logger)
	handler := NewToolHandler(cfg, manager, orch, renderer, extractor, logger)

	return &toolHarness{handler: handler, storage: manager, config: cfg}
}

// invoke posts one tool request and returns the recorder
func (h *toolHarness) invoke(t *testing.T, toolName, sessionID string, params interface{}) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(ToolRequest{ToolName: toolName, SessionID: sessionID, Params: raw})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tool", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.HandleTool(rec, req)
	return rec
}

func (h *toolHarness) seedSession(t *testing.T) *models.Session {
	t.Helper()

	cv := models.CVData{
		FullName: "Anna Kowalska",
		Email:    "anna@example.com",
		Phone:    "+48 123 123 123",
		WorkExperience: []models.WorkRole{
			{
				Title:     "Backend Engineer",
				Employer:  "Acme GmbH",
				DateRange: "2019 - 2024",
				Bullets:   []string{"Designed payment services in Go"},
			},
		},
		Education: []models.EducationEntry{
			{Title: "MSc Computer Science", Institution: "Warsaw University of Technology"},
		},
	}
	meta := models.NewMetadata()
	meta.TargetLanguage = "en"
	session, err := h.storage.SessionStorage().Create(context.Background(), cv, meta, h.config.SessionTTL())
	require.NoError(t, err)
	return session
}

func TestUnknownToolRejected(t *testing.T) {
	h := newToolHarness(t)
	rec := h.invoke(t, "frobnicate", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractAndStoreCreatesSession(t *testing.T) {
	h := newToolHarness(t)

	rec := h.invoke(t, "extract_and_store_cv", "", map[string]string{
		"docx_base64": base64.StdEncoding.EncodeToString([]byte("docx")),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		SessionID string        `json:"session_id"`
		CVData    models.CVData `json:"cv_data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "Anna Kowalska", result.CVData.FullName)

	rec = h.invoke(t, "get_cv_session", result.SessionID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	h := newToolHarness(t)
	rec := h.invoke(t, "get_cv_session", "missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCVField(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "update_cv_field", session.ID, map[string]interface{}{
		"field_path": "profile",
		"value":      "Seasoned backend engineer.",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := h.storage.SessionStorage().Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Seasoned backend engineer.", updated.CVData.Profile)
	assert.Equal(t, session.Version+1, updated.Version)
}

func TestUpdateCVFieldMalformed(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "update_cv_field", session.ID, map[string]string{"nonsense": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateCV(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "validate_cv", session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Valid       bool     `json:"valid"`
		CanGenerate bool     `json:"can_generate"`
		Reasons     []string `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.False(t, result.CanGenerate)
	assert.NotEmpty(t, result.Reasons)
}

func TestSessionSearch(t *testing.T) {
	h := newToolHarness(t)
	h.seedSession(t)

	rec := h.invoke(t, "cv_session_search", "", map[string]string{"query": "Kowalska"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Results []map[string]interface{} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Results, 1)
	assert.Equal(t, "anna@example.com", result.Results[0]["email"])
}

func TestGenerateContextPack(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "generate_context_pack_v2", session.ID, map[string]interface{}{
		"phase": "preparation",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var pack struct {
		Text     string   `json:"text"`
		Sections []string `json:"sections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pack))
	assert.Contains(t, pack.Text, "Anna Kowalska")
	assert.Contains(t, pack.Sections, "contact")
}

func TestGenerateContextPackBadPhase(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "generate_context_pack_v2", session.ID, map[string]string{"phase": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewHTML(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "preview_html", session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		HTML string `json:"html"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Contains(t, result.HTML, "<h1>Anna Kowalska</h1>")
}

func TestGenerateCVRequiresReadiness(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "generate_cv_from_session", session.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateCVReturnsPDF(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	session.Metadata.ConfirmedFlags.ContactConfirmed = true
	session.Metadata.ConfirmedFlags.EducationConfirmed = true
	_, err := h.storage.SessionStorage().Update(context.Background(), session.ID, session.Version, session.CVData, session.Metadata)
	require.NoError(t, err)

	rec := h.invoke(t, "generate_cv_from_session", session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Anna_Kowalska")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestCoverLetterRequiresDraft(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "generate_cover_letter_from_session", session.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPDFByRefUnknown(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "get_pdf_by_ref", session.ID, map[string]string{"pdf_ref": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportSessionDebugGated(t *testing.T) {
	h := newToolHarness(t)
	session := h.seedSession(t)

	rec := h.invoke(t, "export_session_debug", session.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	h.config.Wizard.DebugExport = true
	rec = h.invoke(t, "export_session_debug", session.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCleanupExpired(t *testing.T) {
	h := newToolHarness(t)

	rec := h.invoke(t, "cleanup_expired_sessions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Removed int `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Zero(t, result.Removed)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newToolHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/tool", nil)
	rec := httptest.NewRecorder()
	h.handler.HandleTool(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
