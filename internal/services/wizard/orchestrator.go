package wizard

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/contextpack"
)

// TurnRequest is one orchestrated wizard turn
type TurnRequest struct {
	SessionID      string          `json:"session_id,omitempty"`
	DocxBase64     string          `json:"docx_base64,omitempty"`
	Language       string          `json:"language,omitempty"`
	Message        string          `json:"message"`
	UserAction     *UserAction     `json:"user_action,omitempty"`
	JobPostingURL  string          `json:"job_posting_url,omitempty"`
	JobPostingText string          `json:"job_posting_text,omitempty"`
	ClientContext  json.RawMessage `json:"client_context,omitempty"`
}

// UserAction is the UI action the client invoked
type UserAction struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RunSummary reports per-turn execution accounting
type RunSummary struct {
	ExecutionMode string `json:"execution_mode"`
	ModelCalls    int    `json:"model_calls"`
	MaxModelCalls int    `json:"max_model_calls"`
	StageDebug    string `json:"stage_debug,omitempty"`
}

// TurnResult is the orchestrator's response shape
type TurnResult struct {
	Success    bool             `json:"success"`
	SessionID  string           `json:"session_id"`
	Stage      string           `json:"stage"`
	Response   string           `json:"response"`
	UIAction   *UIAction        `json:"ui_action,omitempty"`
	CVData     *models.CVData   `json:"cv_data"`
	Metadata   *models.Metadata `json:"metadata"`
	PDFBase64  string           `json:"pdf_base64,omitempty"`
	Filename   string           `json:"filename,omitempty"`
	RunSummary RunSummary       `json:"run_summary"`
}

// ErrUnknownAction marks an action id the dispatcher does not handle
var ErrUnknownAction = errors.New("unknown action id")

// turn is the mutable state threaded through one orchestrated request
type turn struct {
	ctx      context.Context
	session  *models.Session
	cv       *models.CVData
	meta     *models.Metadata
	message  string
	payload  json.RawMessage
	client   json.RawMessage
	trace    interfaces.TraceContext
	text     string
	pdfBytes []byte
	filename string
	debug    string
}

type actionHandler func(*turn) error

// Orchestrator drives a session through the wizard: it loads state,
// dispatches UI actions or free-text turns, advances the stage machine,
// and persists the outcome.
type Orchestrator struct {
	config    *common.Config
	storage   interfaces.StorageManager
	gateway   interfaces.LLMGateway
	packs     *contextpack.Builder
	renderer  interfaces.PDFRenderer
	extractor interfaces.DocumentExtractor
	ui        *UIBuilder
	logger    arbor.ILogger

	actions map[string]actionHandler
}

// NewOrchestrator wires the wizard around its collaborators
func NewOrchestrator(
	cfg *common.Config,
	storage interfaces.StorageManager,
	gateway interfaces.LLMGateway,
	renderer interfaces.PDFRenderer,
	extractor interfaces.DocumentExtractor,
	logger arbor.ILogger,
) *Orchestrator {
	o := &Orchestrator{
		config:    cfg,
		storage:   storage,
		gateway:   gateway,
		packs:     contextpack.NewBuilder(cfg.Wizard.DeltaContextPacks, logger),
		renderer:  renderer,
		extractor: extractor,
		ui:        NewUIBuilder(cfg.Wizard.EnableCoverLetter),
		logger:    logger,
	}
	o.actions = o.buildDispatchTable()
	return o
}

// buildDispatchTable maps every UI action id to its handler. Builders
// may only emit ids present here.
func (o *Orchestrator) buildDispatchTable() map[string]actionHandler {
	return map[string]actionHandler{
		ActionWizardGotoStage: o.handleGotoStage,

		ActionLanguageSelectEN: o.languageSelect("en"),
		ActionLanguageSelectDE: o.languageSelect("de"),
		ActionLanguageSelectPL: o.languageSelect("pl"),

		ActionContactEdit:    o.handleContactEdit,
		ActionContactSave:    o.handleContactSave,
		ActionContactCancel:  o.handleContactCancel,
		ActionContactConfirm: o.handleContactConfirm,

		ActionEducationEditJSON: o.handleEducationEdit,
		ActionEducationSave:     o.handleEducationSave,
		ActionEducationCancel:   o.handleEducationCancel,
		ActionEducationConfirm:  o.handleEducationConfirm,

		ActionJobOfferPaste:        o.handleJobOfferPaste,
		ActionJobOfferAnalyze:      o.handleJobOfferAnalyze,
		ActionJobOfferCancel:       o.handleJobOfferCancel,
		ActionJobOfferSkip:         o.handleJobOfferSkip,
		ActionJobOfferInvalidRetry: o.handleJobOfferInvalidRetry,
		ActionJobOfferInvalidSkip:  o.handleJobOfferSkip,

		ActionWorkAddTailoringNotes: o.handleWorkAddNotes,
		ActionWorkNotesSave:         o.handleWorkNotesSave,
		ActionWorkNotesCancel:       o.handleWorkNotesCancel,
		ActionWorkTailorRun:         o.handleWorkTailorRun,
		ActionWorkTailorAccept:      o.handleWorkTailorAccept,
		ActionWorkTailorFeedback:    o.handleWorkTailorFeedback,
		ActionWorkLocationsEdit:     o.handleWorkLocationsEdit,
		ActionWorkLocationsSave:     o.handleWorkLocationsSave,
		ActionWorkLocationsCancel:   o.handleWorkLocationsCancel,
		ActionWorkRoleSelect:        o.handleWorkRoleSelect,
		ActionWorkRoleLock:          o.workRoleLock(true),
		ActionWorkRoleUnlock:        o.workRoleLock(false),
		ActionWorkRoleMoveUp:        o.workRoleMove(-1),
		ActionWorkRoleMoveDown:      o.workRoleMove(1),
		ActionWorkRoleRemove:        o.handleWorkRoleRemove,
		ActionWorkBulletRemove:      o.handleWorkBulletRemove,
		ActionWorkBulletsClear:      o.handleWorkBulletsClear,
		ActionWorkConfirmStage:      o.handleWorkConfirmStage,

		ActionSkillsAddNotes:     o.handleSkillsAddNotes,
		ActionSkillsNotesSave:    o.handleSkillsNotesSave,
		ActionSkillsNotesCancel:  o.handleSkillsNotesCancel,
		ActionSkillsTailorRun:    o.handleSkillsTailorRun,
		ActionSkillsTailorSkip:   o.handleSkillsTailorSkip,
		ActionSkillsTailorAccept: o.handleSkillsTailorAccept,
		ActionSkillsItemRemove:   o.handleSkillsItemRemove,
		ActionSkillsItemMoveUp:   o.skillsItemMove(-1),
		ActionSkillsItemMoveDown: o.skillsItemMove(1),
		ActionSkillsSectionClear: o.handleSkillsSectionClear,

		ActionRequestGeneratePDF:  o.handleRequestGeneratePDF,
		ActionCoverLetterPreview:  o.handleCoverLetterPreview,
		ActionCoverLetterGenerate: o.handleCoverLetterGenerate,
		ActionCoverLetterBack:     o.handleCoverLetterBack,
		ActionDownloadPDF:         o.handleDownloadPDF,

		ActionConfirmImportPrefillYes: o.handleImportPrefillYes,
		ActionConfirmImportPrefillNo:  o.handleImportPrefillNo,
	}
}

// HandledActionIDs returns every action id the dispatcher accepts
func (o *Orchestrator) HandledActionIDs() []string {
	ids := make([]string, 0, len(o.actions))
	for id := range o.actions {
		ids = append(ids, id)
	}
	return ids
}

// ProcessTurn runs one wizard turn end to end
func (o *Orchestrator) ProcessTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	if req.SessionID == "" {
		return o.createSession(ctx, req)
	}

	session, err := o.storage.SessionStorage().Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now().UTC()) {
		return nil, interfaces.ErrSessionNotFound
	}

	t := &turn{
		ctx:     ctx,
		session: session,
		cv:      &session.CVData,
		meta:    &session.Metadata,
		message: req.Message,
		client:  req.ClientContext,
		trace: interfaces.TraceContext{
			TraceID:   common.NewTraceID(),
			SessionID: session.ID,
		},
	}
	if req.JobPostingText != "" && t.meta.JobPostingText == "" {
		t.meta.JobPostingText = req.JobPostingText
	}

	actionID := ""
	if req.UserAction != nil {
		actionID = req.UserAction.ID
		t.payload = req.UserAction.Payload
	}

	handlerErr := o.dispatch(t, actionID)
	if handlerErr != nil && errors.Is(handlerErr, ErrUnknownAction) {
		return nil, handlerErr
	}

	o.advanceMacro(t, actionID)

	t.meta.AppendEvent(models.EventLogEntry{
		Kind:   "turn",
		Stage:  t.meta.WizardStage,
		Action: actionID,
	})

	// Persist on success and on user-visible failure alike
	updated, err := o.storage.SessionStorage().Update(ctx, session.ID, session.Version, session.CVData, session.Metadata)
	if err != nil {
		if errors.Is(err, interfaces.ErrConflict) && o.gateway.CallsMade(t.trace.TraceID) == 0 {
			// No model call was spent; reload and replay the turn once
			return o.ProcessTurn(ctx, req)
		}
		return nil, err
	}
	t.session = updated

	if handlerErr != nil {
		o.logger.Warn().
			Str("session_id", session.ID).
			Str("action", actionID).
			Err(handlerErr).
			Msg("Wizard turn completed with user-visible failure")
		if t.text == "" {
			t.text = errorText(actionID, handlerErr)
		}
	}

	return o.result(t), nil
}

// dispatch routes an action id, or the free-text message when no action
// is present.
func (o *Orchestrator) dispatch(t *turn, actionID string) error {
	if actionID == "" {
		return o.handleMessage(t)
	}
	handler, ok := o.actions[actionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}
	return handler(t)
}

// handleMessage processes a free-text turn for message-driven substages
func (o *Orchestrator) handleMessage(t *turn) error {
	switch t.meta.WizardStage {
	case models.StageJobPostingPaste:
		return o.acceptJobPostingText(t, t.message)
	case models.StageWorkNotesEdit:
		t.meta.WorkTailoringNotes = t.message
		t.meta.PushStage(models.StageWorkExperience)
		t.text = "Notes saved. Run tailoring when you are ready."
		return nil
	case models.StageWorkTailorFeedback:
		t.meta.WorkTailoringFeedback = t.message
		t.text = "Feedback noted. Regenerate to apply it."
		return nil
	case models.StageSkillsNotesEdit:
		t.meta.SkillsNotes = t.message
		t.meta.PushStage(models.StageITAISkills)
		t.text = "Notes saved. Run skills tailoring when you are ready."
		return nil
	}

	if t.meta.MacroStage == models.MacroReview {
		t.meta.TurnsInReview++
	}
	if t.text == "" {
		t.text = o.stagePrompt(t.meta.WizardStage)
	}
	return nil
}

// advanceMacro runs the macro FSM against the turn outcome
func (o *Orchestrator) advanceMacro(t *turn, actionID string) {
	flags := Flags{
		ConfirmationRequired: t.meta.ConfirmedFlags.ContactConfirmed && t.meta.ConfirmedFlags.EducationConfirmed,
		GenerateRequested:    actionID == ActionRequestGeneratePDF,
		ValidationPassed:     !t.meta.HasPendingProposal(),
		ReadinessOK:          t.meta.ConfirmedFlags.ContactConfirmed && t.meta.ConfirmedFlags.EducationConfirmed,
		PendingEdits:         t.meta.PendingEdits,
		TurnsInReview:        t.meta.TurnsInReview,
		PDFGenerated:         t.meta.PDFGenerated,
		PDFFailed:            t.meta.PDFFailed,
	}

	message := t.message
	if actionID != "" {
		// Action turns never carry edit intent; the action is explicit
		message = ""
	}

	next := Resolve(t.meta.MacroStage, message, t.meta.TargetLanguage, flags)
	if next == models.MacroReview && t.meta.MacroStage != models.MacroReview {
		t.meta.TurnsInReview = 0
	}
	t.meta.MacroStage = next
}

// result assembles the turn response
func (o *Orchestrator) result(t *turn) *TurnResult {
	res := &TurnResult{
		Success:   true,
		SessionID: t.session.ID,
		Stage:     t.meta.WizardStage,
		Response:  t.text,
		UIAction:  o.ui.Build(t.meta.WizardStage, t.cv, t.meta),
		CVData:    t.cv,
		Metadata:  t.meta,
		Filename:  t.filename,
		RunSummary: RunSummary{
			ExecutionMode: string(o.config.LLM.Provider),
			ModelCalls:    o.gateway.CallsMade(t.trace.TraceID),
			MaxModelCalls: o.config.LLM.MaxModelCallsPerTurn,
			StageDebug:    t.debug,
		},
	}
	if len(t.pdfBytes) > 0 {
		res.PDFBase64 = base64.StdEncoding.EncodeToString(t.pdfBytes)
	}
	return res
}

// createSession starts a new session, optionally staging a DOCX prefill
// and fetching a job posting URL inline.
func (o *Orchestrator) createSession(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	cv := models.CVData{}
	meta := models.NewMetadata()

	if req.DocxBase64 != "" {
		docx, err := base64.StdEncoding.DecodeString(req.DocxBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid docx_base64: %w", err)
		}
		prefill, photo, err := o.extractor.Extract(ctx, docx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("DOCX extraction failed; starting with an empty CV")
		} else {
			meta.DocxPrefillUnconfirmed = prefill
			if len(photo) > 0 {
				name := common.SHA256Hex(photo) + ".jpg"
				if err := o.storage.BlobStorage().Put(ctx, interfaces.ContainerPhotos, name, photo); err == nil {
					meta.PhotoBlobName = name
				}
			}
		}
	}

	if req.Language != "" {
		meta.SourceLanguage = req.Language
	}
	if req.JobPostingText != "" {
		meta.JobPostingText = req.JobPostingText
	}
	if req.JobPostingURL != "" {
		meta.JobPostingURL = req.JobPostingURL
		meta.JobFetchStatus = models.JobFetchStatusPending
		// Best-effort inline fetch, bounded by the configured timeout
		if text, err := o.fetchJobPosting(ctx, req.JobPostingURL); err == nil {
			meta.JobPostingText = text
			meta.JobFetchStatus = models.JobFetchStatusOK
		} else {
			meta.JobFetchStatus = models.JobFetchStatusFailed
			o.logger.Warn().Err(err).Str("url", req.JobPostingURL).Msg("Job posting fetch failed")
		}
	}

	meta.MacroStage = models.MacroPrepare

	session, err := o.storage.SessionStorage().Create(ctx, cv, meta, o.config.SessionTTL())
	if err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("session_id", session.ID).
		Bool("prefill", session.Metadata.DocxPrefillUnconfirmed != nil).
		Msg("Wizard session created")

	t := &turn{
		ctx:     ctx,
		session: session,
		cv:      &session.CVData,
		meta:    &session.Metadata,
		text:    o.stagePrompt(session.Metadata.WizardStage),
	}
	return o.result(t), nil
}

// stagePrompt is the default assistant text for a substage
func (o *Orchestrator) stagePrompt(stage string) string {
	switch stage {
	case models.StageLanguageSelection:
		return "Welcome! Which language should your CV be in?"
	case models.StageImportGatePending:
		return "I found details from your uploaded document. Should I apply them?"
	case models.StageContact:
		return "Please check your contact details."
	case models.StageEducation:
		return "Here is your education history. Confirm or edit it."
	case models.StageJobPosting:
		return "Paste the job posting you are applying for, or skip this step."
	case models.StageJobPostingPaste:
		return "Paste the full job posting text."
	case models.StageWorkExperience:
		return "Let's tailor your work experience to the posting."
	case models.StageWorkTailorReview:
		return "Review the tailored bullets and accept or give feedback."
	case models.StageITAISkills:
		return "Now let's tailor your skills."
	case models.StageReviewFinal:
		return "Everything is ready. Generate your PDF when you are set."
	case models.StageCoverLetterReview:
		return "Your CV is done. Want a matching cover letter?"
	}
	return "How can I help with your CV?"
}
