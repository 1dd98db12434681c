package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/contextpack"
	"github.com/ternarybob/scriba/internal/services/validation"
	"github.com/ternarybob/scriba/internal/services/wizard"
)

// ToolRequest is the /tool endpoint envelope
type ToolRequest struct {
	ToolName  string          `json:"tool_name"`
	SessionID string          `json:"session_id,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// ToolHandler routes tool invocations to core operations
type ToolHandler struct {
	config       *common.Config
	storage      interfaces.StorageManager
	orchestrator *wizard.Orchestrator
	packs        *contextpack.Builder
	renderer     interfaces.PDFRenderer
	extractor    interfaces.DocumentExtractor
	logger       arbor.ILogger
}

// NewToolHandler creates the tool dispatcher
func NewToolHandler(
	cfg *common.Config,
	storage interfaces.StorageManager,
	orchestrator *wizard.Orchestrator,
	renderer interfaces.PDFRenderer,
	extractor interfaces.DocumentExtractor,
	logger arbor.ILogger,
) *ToolHandler {
	return &ToolHandler{
		config:       cfg,
		storage:      storage,
		orchestrator: orchestrator,
		packs:        contextpack.NewBuilder(cfg.Wizard.DeltaContextPacks, logger),
		renderer:     renderer,
		extractor:    extractor,
		logger:       logger,
	}
}

// HandleTool dispatches POST /tool requests by tool name
func (h *ToolHandler) HandleTool(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req ToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ToolName == "" {
		WriteError(w, http.StatusBadRequest, "tool_name is required")
		return
	}

	h.logger.Debug().
		Str("tool", req.ToolName).
		Str("session_id", req.SessionID).
		Msg("Tool invoked")

	ctx := r.Context()
	switch req.ToolName {
	case "extract_and_store_cv":
		h.extractAndStoreCV(ctx, w, &req)
	case "process_cv_orchestrated":
		h.processOrchestrated(ctx, w, &req)
	case "get_cv_session":
		h.getSession(ctx, w, &req)
	case "update_cv_field":
		h.updateCVField(ctx, w, &req)
	case "validate_cv":
		h.validateCV(ctx, w, &req)
	case "cv_session_search":
		h.sessionSearch(ctx, w, &req)
	case "generate_context_pack_v2":
		h.generateContextPack(ctx, w, &req)
	case "preview_html":
		h.previewHTML(ctx, w, &req)
	case "generate_cv_from_session":
		h.generateCV(ctx, w, &req)
	case "generate_cover_letter_from_session":
		h.generateCoverLetter(ctx, w, &req)
	case "get_pdf_by_ref":
		h.getPDFByRef(ctx, w, &req)
	case "export_session_debug":
		h.exportSessionDebug(ctx, w, &req)
	case "cleanup_expired_sessions":
		h.cleanupExpired(ctx, w)
	default:
		WriteError(w, http.StatusBadRequest, "unknown tool: "+req.ToolName)
	}
}

// loadSession resolves the session or writes the error response
func (h *ToolHandler) loadSession(ctx context.Context, w http.ResponseWriter, sessionID string) *models.Session {
	if sessionID == "" {
		WriteError(w, http.StatusBadRequest, "session_id is required")
		return nil
	}
	session, err := h.storage.SessionStorage().Get(ctx, sessionID)
	if err != nil {
		WriteError(w, StatusFromError(err), err.Error())
		return nil
	}
	if session.Expired(time.Now().UTC()) {
		WriteError(w, http.StatusNotFound, interfaces.ErrSessionNotFound.Error())
		return nil
	}
	return session
}

func (h *ToolHandler) extractAndStoreCV(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	var params struct {
		DocxBase64 string `json:"docx_base64"`
		Language   string `json:"language,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.DocxBase64 == "" {
		WriteError(w, http.StatusBadRequest, "docx_base64 is required")
		return
	}

	docx, err := base64.StdEncoding.DecodeString(params.DocxBase64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid docx_base64: "+err.Error())
		return
	}

	cv, photo, err := h.extractor.Extract(ctx, docx)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "extraction failed: "+err.Error())
		return
	}

	meta := models.NewMetadata()
	if params.Language != "" {
		meta.SourceLanguage = params.Language
	}
	if len(photo) > 0 {
		name := common.SHA256Hex(photo) + ".jpg"
		if err := h.storage.BlobStorage().Put(ctx, interfaces.ContainerPhotos, name, photo); err == nil {
			meta.PhotoBlobName = name
		}
	}

	session, err := h.storage.SessionStorage().Create(ctx, *cv, meta, h.config.SessionTTL())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": session.ID,
		"cv_data":    session.CVData,
		"metadata":   session.Metadata,
	})
}

func (h *ToolHandler) processOrchestrated(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	var turnReq wizard.TurnRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &turnReq); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid params: "+err.Error())
			return
		}
	}
	if turnReq.SessionID == "" {
		turnReq.SessionID = req.SessionID
	}

	result, err := h.orchestrator.ProcessTurn(ctx, &turnReq)
	if err != nil {
		if errors.Is(err, wizard.ErrUnknownAction) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteError(w, StatusFromError(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *ToolHandler) getSession(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	session := h.loadSession(ctx, w, req.SessionID)
	if session == nil {
		return
	}
	WriteJSON(w, http.StatusOK, session)
}

func (h *ToolHandler) updateCVField(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	session := h.loadSession(ctx, w, req.SessionID)
	if session == nil {
		return
	}

	update, err := models.ParseUpdate(req.Params)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := update.Apply(&session.CVData, &session.Metadata.ConfirmedFlags); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	session.Metadata.PendingEdits++

	updated, err := h.storage.SessionStorage().Update(ctx, session.ID, session.Version, session.CVData, session.Metadata)
	if err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			WriteErrorDetails(w, http.StatusConflict, err.Error(), "",
				"Reload the session and re-apply your edits.")
			return
		}
		WriteError(w, StatusFromError(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": updated.ID,
		"version":    updated.Version,
		"cv_data":    updated.CVData,
	})
}

func (h *ToolHandler) validateCV(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	session := h.loadSession(ctx, w, req.SessionID)
	if session == nil {
		return
	}

	violations := validation.ValidateCV(&session.CVData, session.Metadata.TargetLanguage)
	readiness := validation.ComputeReadiness(&session.CVData, &session.Metadata)

	messages := make([]string, 0, len(violations))
	for _, v := range violations {
		messages = append(messages, v.String())
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"valid":        len(violations) == 0,
		"violations":   messages,
		"can_generate": readiness.CanGenerate,
		"reasons":      readiness.Reasons,
	})
}

func (h *ToolHandler) sessionSearch(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Query == "" {
		WriteError(w, http.StatusBadRequest, "query is required")
		return
	}
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 20
	}

	sessions, err := h.storage.SessionStorage().Search(ctx, params.Query, params.Limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		results = append(results, map[string]interface{}{
			"session_id": s.ID,
			"full_name":  s.CVData.FullName,
			"email":      s.CVData.Email,
			"stage":      s.Metadata.WizardStage,
			"updated_at": s.UpdatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *ToolHandler) generateContextPack(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	var params struct {
		Phase          string `json:"phase"`
		JobPostingText string `json:"job_posting_text,omitempty"`
		MaxPackChars   int    `json:"max_pack_chars,omitempty"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid params: "+err.Error())
		return
	}

	session := h.loadSession(ctx, w, req.SessionID)
	if session == nil {
		return
	}

	pack, err := h.packs.Build(contextpack.Phase(params.Phase), &session.CVData, &session.Metadata, params.JobPostingText, params.MaxPackChars)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Roll the delta baseline so the next pack only carries changes
	session.Metadata.SectionHashesPrev = session.Metadata.SectionHashes
	session.Metadata.SectionHashes = session.CVData.SectionHashes()
	if _, err := h.storage.SessionStorage().Update(ctx, session.ID, session.Version, session.CVData, session.Metadata); err != nil {
		h.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to persist pack baseline")
	}

	WriteJSON(w, http.StatusOK, pack)
}

func (h *ToolHandler) previewHTML(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	session := h.loadSession(ctx, w, req.SessionID)
	if session == nil {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"html": renderPreviewHTML(&session.CVData),
	})
}

func (h *ToolHandler) generateCV(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	session := h.loadSession(ctx, w, req.SessionID)
	if session == nil {
		return
	}

	readiness := validation.ComputeReadiness(&session.CVData, &session.Metadata)
	if !readiness.CanGenerate {
		WriteErrorDetails(w, http.StatusBadRequest, "cv is not ready to generate",
			strings.Join(readiness.Reasons, "; "),
			"Confirm the missing sections through the wizard first.")
		return
	}

	var photo []byte
	if session.Metadata.PhotoBlobName != "" {
		photo, _ = h.storage.BlobStorage().Get(ctx, interfaces.ContainerPhotos, session.Metadata.PhotoBlobName)
	}

	language := session.Metadata.TargetLanguage
	if language == "" {
		language = "en"
	}
	pdfBytes, err := h.renderer.RenderCV(ctx, &session.CVData, language, photo)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "pdf rendering failed: "+err.Error())
		return
	}

	WritePDF(w, downloadName(&session.CVData, language, "cv"), pdfBytes)
}

func (h *ToolHandler) generateCoverLetter(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	session := h.loadSession(ctx, w, req.SessionID)
	if session == nil {
		return
	}
	draft := session.Metadata.CoverLetter
	if draft == nil || draft.Markdown == "" {
		WriteErrorDetails(w, http.StatusBadRequest, "no cover letter draft on session", "",
			"Preview a cover letter through the wizard first.")
		return
	}

	pdfBytes, err := h.renderer.RenderCoverLetter(ctx, draft.Markdown, &session.CVData)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "pdf rendering failed: "+err.Error())
		return
	}

	WritePDF(w, downloadName(&session.CVData, draft.Language, "cover_letter"), pdfBytes)
}

func (h *ToolHandler) getPDFByRef(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	var params struct {
		PDFRef string `json:"pdf_ref"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.PDFRef == "" {
		WriteError(w, http.StatusBadRequest, "pdf_ref is required")
		return
	}

	session := h.loadSession(ctx, w, req.SessionID)
	if session == nil {
		return
	}
	ref, ok := session.Metadata.PDFRefs[params.PDFRef]
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown pdf_ref")
		return
	}

	pdfBytes, err := h.storage.BlobStorage().Get(ctx, ref.Container, ref.BlobName)
	if err != nil {
		WriteError(w, StatusFromError(err), err.Error())
		return
	}
	WritePDF(w, ref.DownloadName, pdfBytes)
}

func (h *ToolHandler) exportSessionDebug(ctx context.Context, w http.ResponseWriter, req *ToolRequest) {
	if !h.config.Wizard.DebugExport {
		WriteErrorDetails(w, http.StatusForbidden, "debug export is disabled", "",
			"Enable wizard.debug_export in the configuration.")
		return
	}
	session := h.loadSession(ctx, w, req.SessionID)
	if session == nil {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session":   session,
		"event_log": session.Metadata.EventLog,
		"version":   session.Version,
	})
}

func (h *ToolHandler) cleanupExpired(ctx context.Context, w http.ResponseWriter) {
	removed, err := h.storage.SessionStorage().CleanupExpired(ctx)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info().Int("removed", removed).Msg("Expired sessions cleaned up")
	WriteJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// downloadName builds a stable attachment filename
func downloadName(cv *models.CVData, language, kind string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, cv.FullName)
	if safe == "" {
		safe = "CV"
	}
	return fmt.Sprintf("%s_%s_%s_%s.pdf", safe, strings.ToUpper(language), kind, time.Now().UTC().Format("20060102"))
}

// renderPreviewHTML builds a read-only HTML rendering of the CV
func renderPreviewHTML(cv *models.CVData) string {
	var b strings.Builder
	esc := html.EscapeString

	b.WriteString("<article class=\"cv-preview\">")
	fmt.Fprintf(&b, "<h1>%s</h1>", esc(cv.FullName))
	fmt.Fprintf(&b, "<p class=\"contact\">%s &middot; %s</p>", esc(cv.Email), esc(cv.Phone))

	if cv.Profile != "" {
		fmt.Fprintf(&b, "<h2>Profile</h2><p>%s</p>", esc(cv.Profile))
	}
	if len(cv.WorkExperience) > 0 {
		b.WriteString("<h2>Work Experience</h2>")
		for _, role := range cv.WorkExperience {
			fmt.Fprintf(&b, "<h3>%s</h3><p>%s | %s | %s</p><ul>",
				esc(role.Title), esc(role.Employer), esc(role.DateRange), esc(role.Location))
			for _, bullet := range role.Bullets {
				fmt.Fprintf(&b, "<li>%s</li>", esc(bullet))
			}
			b.WriteString("</ul>")
		}
	}
	if len(cv.Education) > 0 {
		b.WriteString("<h2>Education</h2><ul>")
		for _, entry := range cv.Education {
			fmt.Fprintf(&b, "<li>%s, %s (%s)</li>", esc(entry.Title), esc(entry.Institution), esc(entry.DateRange))
		}
		b.WriteString("</ul>")
	}
	writeItemList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "<h2>%s</h2><p>%s</p>", esc(title), esc(strings.Join(items, ", ")))
	}
	writeItemList("IT & AI Skills", cv.ITAISkills)
	writeItemList("Technical & Operational Skills", cv.TechnicalOperationalSkills)
	writeItemList("Languages", cv.Languages)
	writeItemList("Interests", cv.Interests)
	b.WriteString("</article>")

	return b.String()
}
