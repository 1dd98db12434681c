package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/llm"
	"github.com/ternarybob/scriba/internal/storage/badger"
)

type stubRenderer struct {
	renders int
	fail    bool
}

func (r *stubRenderer) RenderCV(ctx context.Context, cv *models.CVData, language string, photo []byte) ([]byte, error) {
	r.renders++
	if r.fail {
		return nil, fmt.Errorf("render failed")
	}
	return []byte("%PDF-1.4 stub " + cv.FullName), nil
}

func (r *stubRenderer) RenderCoverLetter(ctx context.Context, markdown string, cv *models.CVData) ([]byte, error) {
	r.renders++
	return []byte("%PDF-1.4 letter"), nil
}

type stubExtractor struct {
	prefill *models.CVData
}

func (e *stubExtractor) Extract(ctx context.Context, docx []byte) (*models.CVData, []byte, error) {
	if e.prefill == nil {
		return nil, nil, fmt.Errorf("no prefill")
	}
	return e.prefill, nil, nil
}

type wizardHarness struct {
	orch     *Orchestrator
	storage  interfaces.StorageManager
	provider *llm.ScriptedProvider
	renderer *stubRenderer
	config   *common.Config
}

func newWizardHarness(t *testing.T, responses ...llm.ScriptedResponse) *wizardHarness {
	t.Helper()

	cfg := common.DefaultConfig()
	cfg.LLM.RateLimit = "1ms"
	cfg.LLM.MaxAttempts = 3
	cfg.LLM.MaxModelCallsPerTurn = 8
	cfg.Wizard.EnableCoverLetter = false

	storage, err := badger.NewManager(common.GetLogger(), &common.StorageConfig{
		Badger:       common.BadgerConfig{InMemory: true},
		RowSizeLimit: 64 * 1024,
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	provider := llm.NewScriptedProvider(responses...)
	gateway := llm.NewGateway(cfg, provider, llm.NewPromptRegistry(false, common.GetLogger()), common.GetLogger())
	renderer := &stubRenderer{}

	return &wizardHarness{
		orch:     NewOrchestrator(cfg, storage, gateway, renderer, &stubExtractor{}, common.GetLogger()),
		storage:  storage,
		provider: provider,
		renderer: renderer,
		config:   cfg,
	}
}

// seedSession creates a session directly in storage
func (h *wizardHarness) seedSession(t *testing.T, cv models.CVData, meta models.Metadata) *models.Session {
	t.Helper()
	session, err := h.storage.SessionStorage().Create(context.Background(), cv, meta, h.config.SessionTTL())
	require.NoError(t, err)
	return session
}

func (h *wizardHarness) action(t *testing.T, sessionID, actionID string, payload interface{}) *TurnResult {
	t.Helper()
	req := &TurnRequest{SessionID: sessionID, UserAction: &UserAction{ID: actionID}}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		req.UserAction.Payload = data
	}
	res, err := h.orch.ProcessTurn(context.Background(), req)
	require.NoError(t, err)
	return res
}

func baseCV() models.CVData {
	return models.CVData{
		FullName: "Anna Kowalska",
		Email:    "anna@example.com",
		Phone:    "+48 123 123 123",
		Education: []models.EducationEntry{
			{Title: "MSc Computer Science", Institution: "Warsaw University of Technology", DateRange: "2014 - 2016"},
		},
		WorkExperience: []models.WorkRole{
			{
				Title:     "Backend Engineer",
				Employer:  "Acme GmbH",
				DateRange: "2019 - 2024",
				Location:  "Berlin",
				Bullets: []string{
					"Designed distributed payment services in Go",
					"Improved deployment pipelines with automated testing",
				},
			},
		},
		ITAISkills:                 []string{"Go", "Kubernetes"},
		TechnicalOperationalSkills: []string{"Incident response"},
	}
}

const samplePosting = "We are looking for a Backend Engineer to build payment services in Go. " +
	"You will design distributed systems, improve deployment pipelines, and work with " +
	"automated testing infrastructure. The position is based in Berlin."

const jobReferenceJSON = `{"title": "Backend Engineer", "company": "Acme", "seniority": "senior", "must_haves": ["Go"], "language": "en"}`

const tailoredRolesJSON = `{"roles": [{
	"title": "Backend Engineer",
	"employer": "Acme GmbH",
	"date_range": "2019 - 2024",
	"location": "Berlin",
	"bullets": [
		"Designed distributed payment services in Go",
		"Improved deployment pipelines with automated testing"
	]
}]}`

func TestWizardHappyPath(t *testing.T) {
	h := newWizardHarness(t,
		llm.ScriptedResponse{Output: jobReferenceJSON},
		llm.ScriptedResponse{Output: tailoredRolesJSON},
	)

	// New session
	created, err := h.orch.ProcessTurn(context.Background(), &TurnRequest{Message: "hello"})
	require.NoError(t, err)
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, models.StageLanguageSelection, created.Stage)
	id := created.SessionID

	res := h.action(t, id, ActionLanguageSelectEN, nil)
	assert.Equal(t, models.StageContact, res.Stage)

	h.action(t, id, ActionContactSave, map[string]interface{}{
		"full_name": "Anna Kowalska",
		"email":     "anna@example.com",
		"phone":     "+48 123 123 123",
	})
	res = h.action(t, id, ActionContactConfirm, nil)
	assert.Equal(t, models.StageEducation, res.Stage)
	assert.True(t, res.Metadata.ConfirmedFlags.ContactConfirmed)

	h.action(t, id, ActionEducationSave, map[string]interface{}{
		"education": []models.EducationEntry{
			{Title: "MSc Computer Science", Institution: "Warsaw University of Technology", DateRange: "2014 - 2016"},
		},
	})
	res = h.action(t, id, ActionEducationConfirm, nil)
	assert.Equal(t, models.StageJobPosting, res.Stage)
	assert.True(t, res.Metadata.ConfirmedFlags.EducationConfirmed)

	// Seed work experience the way an import would have
	session, err := h.storage.SessionStorage().Get(context.Background(), id)
	require.NoError(t, err)
	session.CVData.WorkExperience = baseCV().WorkExperience
	session.CVData.ITAISkills = baseCV().ITAISkills
	_, err = h.storage.SessionStorage().Update(context.Background(), id, session.Version, session.CVData, session.Metadata)
	require.NoError(t, err)

	res = h.action(t, id, ActionJobOfferAnalyze, map[string]interface{}{
		"job_posting_text": samplePosting,
	})
	assert.Equal(t, models.StageWorkExperience, res.Stage)
	assert.Equal(t, models.JobInputStatusAccepted, res.Metadata.JobInputStatus)
	require.NotNil(t, res.Metadata.JobReference)
	assert.Equal(t, "Backend Engineer", res.Metadata.JobReference.Title)

	res = h.action(t, id, ActionWorkTailorRun, nil)
	assert.Equal(t, models.StageWorkTailorReview, res.Stage)
	require.NotNil(t, res.Metadata.WorkProposal)
	assert.Len(t, res.Metadata.WorkProposal.Roles, 1)

	res = h.action(t, id, ActionWorkTailorAccept, nil)
	assert.Equal(t, models.StageITAISkills, res.Stage)
	assert.Nil(t, res.Metadata.WorkProposal)
	assert.Equal(t, "Berlin", res.CVData.WorkExperience[0].Location)

	res = h.action(t, id, ActionSkillsTailorSkip, nil)
	assert.Equal(t, models.StageReviewFinal, res.Stage)

	res = h.action(t, id, ActionRequestGeneratePDF, nil)
	assert.Equal(t, models.StageReviewFinal, res.Stage)
	assert.NotEmpty(t, res.PDFBase64)
	assert.NotEmpty(t, res.Filename)
	assert.True(t, res.Metadata.PDFGenerated)
	assert.Equal(t, 1, h.renderer.renders)
}

func TestWorkTailorDedupe(t *testing.T) {
	h := newWizardHarness(t, llm.ScriptedResponse{Output: tailoredRolesJSON})

	meta := models.NewMetadata()
	meta.WizardStage = models.StageWorkExperience
	meta.TargetLanguage = "en"
	meta.JobPostingText = samplePosting
	meta.JobInputStatus = models.JobInputStatusAccepted
	session := h.seedSession(t, baseCV(), meta)

	res := h.action(t, session.ID, ActionWorkTailorRun, nil)
	require.NotNil(t, res.Metadata.WorkProposal)
	assert.Len(t, h.provider.Calls(), 1)

	// Same inputs: the cached proposal is reused, no model call is spent
	res = h.action(t, session.ID, ActionWorkTailorRun, nil)
	require.NotNil(t, res.Metadata.WorkProposal)
	assert.Len(t, h.provider.Calls(), 1)
	assert.Equal(t, models.StageWorkTailorReview, res.Stage)
}

func TestWorkTailorRetriesOnLimitViolation(t *testing.T) {
	longBullet := ""
	for i := 0; i < 12; i++ {
		longBullet += "Designed distributed payment services in Go with automated testing "
	}
	overLimitJSON := fmt.Sprintf(`{"roles": [{"title": "Backend Engineer", "employer": "Acme GmbH", "bullets": [%q]}]}`, longBullet)

	h := newWizardHarness(t,
		llm.ScriptedResponse{Output: overLimitJSON},
		llm.ScriptedResponse{Output: tailoredRolesJSON},
	)

	meta := models.NewMetadata()
	meta.WizardStage = models.StageWorkExperience
	meta.TargetLanguage = "en"
	meta.JobPostingText = samplePosting
	meta.JobInputStatus = models.JobInputStatusAccepted
	session := h.seedSession(t, baseCV(), meta)

	res := h.action(t, session.ID, ActionWorkTailorRun, nil)
	require.NotNil(t, res.Metadata.WorkProposal)
	assert.Equal(t, 2, res.Metadata.WorkProposal.Attempts)

	calls := h.provider.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].UserText, "FIX_VALIDATION")
}

func TestWorkTailorAcceptKeepsCVOnPersistentViolation(t *testing.T) {
	// Provider has no responses, so repair retries fail and the stored
	// over-limit proposal cannot be fixed
	h := newWizardHarness(t)

	longBullet := ""
	for i := 0; i < 12; i++ {
		longBullet += "Designed distributed payment services in Go with automated testing "
	}

	cv := baseCV()
	meta := models.NewMetadata()
	meta.WizardStage = models.StageWorkTailorReview
	meta.TargetLanguage = "en"
	meta.WorkProposal = &models.RolesProposal{
		Roles: []models.WorkRole{{Title: "Backend Engineer", Employer: "Acme GmbH", Bullets: []string{longBullet}}},
	}
	session := h.seedSession(t, cv, meta)

	res := h.action(t, session.ID, ActionWorkTailorAccept, nil)
	assert.Equal(t, models.StageWorkTailorFeedback, res.Stage)
	// The live CV is never touched by a failed accept
	assert.Equal(t, cv.WorkExperience, res.CVData.WorkExperience)
}

func TestBulkTranslationDedupe(t *testing.T) {
	translationJSON := `{
		"profile": "Erfahrene Backend-Entwicklerin",
		"work_experience": [{"title": "Backend-Entwicklerin", "bullets": [
			"Entwicklung verteilter Zahlungsdienste in Go",
			"Verbesserung der Deployment-Pipelines mit automatisierten Tests"
		]}],
		"languages": ["Englisch", "Deutsch"]
	}`
	h := newWizardHarness(t, llm.ScriptedResponse{Output: translationJSON})

	cv := baseCV()
	cv.Profile = "Experienced backend engineer"
	cv.Languages = []string{"English", "German"}
	meta := models.NewMetadata()
	meta.SourceLanguage = "en"
	session := h.seedSession(t, cv, meta)

	res := h.action(t, session.ID, ActionLanguageSelectDE, nil)
	assert.Equal(t, "de", res.Metadata.TargetLanguage)
	assert.Equal(t, "Backend-Entwicklerin", res.CVData.WorkExperience[0].Title)
	assert.Len(t, h.provider.Calls(), 1)

	// Repeating the selection over unchanged content spends no model calls
	res = h.action(t, session.ID, ActionLanguageSelectDE, nil)
	assert.Len(t, h.provider.Calls(), 1)
	assert.Equal(t, "de", res.Metadata.BulkTranslatedTo)
}

func TestPDFGenerationLatch(t *testing.T) {
	h := newWizardHarness(t)

	meta := models.NewMetadata()
	meta.WizardStage = models.StageReviewFinal
	meta.TargetLanguage = "en"
	meta.ConfirmedFlags.ContactConfirmed = true
	meta.ConfirmedFlags.EducationConfirmed = true
	session := h.seedSession(t, baseCV(), meta)

	first := h.action(t, session.ID, ActionRequestGeneratePDF, nil)
	require.NotEmpty(t, first.PDFBase64)
	assert.Equal(t, 1, h.renderer.renders)

	// Unchanged content: the cached artifact comes back byte for byte
	second := h.action(t, session.ID, ActionRequestGeneratePDF, nil)
	assert.Equal(t, first.PDFBase64, second.PDFBase64)
	assert.Equal(t, 1, h.renderer.renders)

	// An edit invalidates the latch
	edited := h.action(t, session.ID, ActionContactSave, map[string]interface{}{"full_name": "Anna Nowak"})
	require.Equal(t, "Anna Nowak", edited.CVData.FullName)
	third := h.action(t, session.ID, ActionRequestGeneratePDF, nil)
	assert.NotEqual(t, first.PDFBase64, third.PDFBase64)
	assert.Equal(t, 2, h.renderer.renders)
}

func TestPDFGenerationRefusedWhenNotReady(t *testing.T) {
	h := newWizardHarness(t)

	meta := models.NewMetadata()
	meta.WizardStage = models.StageReviewFinal
	meta.TargetLanguage = "en"
	session := h.seedSession(t, baseCV(), meta)

	res := h.action(t, session.ID, ActionRequestGeneratePDF, nil)
	assert.Empty(t, res.PDFBase64)
	assert.Contains(t, res.Response, "not ready")
	assert.Zero(t, h.renderer.renders)
}

func TestNoGhostActions(t *testing.T) {
	h := newWizardHarness(t)

	handled := make(map[string]bool)
	for _, id := range h.orch.HandledActionIDs() {
		handled[id] = true
	}

	cv := baseCV()
	meta := models.NewMetadata()
	meta.JobPostingInvalidDraft = "draft"
	for _, stage := range AllStages() {
		meta.WizardStage = stage
		ui := h.orch.ui.Build(stage, &cv, &meta)
		if ui == nil {
			continue
		}
		for _, action := range ui.Actions {
			assert.True(t, handled[action.ID], "stage %s emits unhandled action %s", stage, action.ID)
		}
	}
}

func TestUnknownActionRejected(t *testing.T) {
	h := newWizardHarness(t)
	session := h.seedSession(t, baseCV(), models.NewMetadata())

	_, err := h.orch.ProcessTurn(context.Background(), &TurnRequest{
		SessionID:  session.ID,
		UserAction: &UserAction{ID: "wizard_self_destruct"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestUnknownSessionRejected(t *testing.T) {
	h := newWizardHarness(t)

	_, err := h.orch.ProcessTurn(context.Background(), &TurnRequest{SessionID: "missing", Message: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestBackwardNavigationOnly(t *testing.T) {
	h := newWizardHarness(t)

	meta := models.NewMetadata()
	meta.WizardStage = models.StageWorkExperience
	session := h.seedSession(t, baseCV(), meta)

	res := h.action(t, session.ID, ActionWizardGotoStage, map[string]interface{}{"stage": models.StageContact})
	assert.Equal(t, models.StageContact, res.Stage)
	assert.Equal(t, -1, res.Metadata.SelectedRoleIndex)

	// Forward jumps are refused
	res = h.action(t, session.ID, ActionWizardGotoStage, map[string]interface{}{"stage": models.StageReviewFinal})
	assert.Equal(t, models.StageContact, res.Stage)
	assert.Contains(t, res.Response, "only go back")
}

func TestRoleManipulation(t *testing.T) {
	h := newWizardHarness(t)

	cv := baseCV()
	cv.WorkExperience = append(cv.WorkExperience, models.WorkRole{
		Title:    "Support Engineer",
		Employer: "Initech",
		Bullets:  []string{"Resolved escalations"},
	})
	meta := models.NewMetadata()
	meta.WizardStage = models.StageWorkExperience
	session := h.seedSession(t, cv, meta)

	res := h.action(t, session.ID, ActionWorkRoleSelect, map[string]interface{}{"role_index": 1})
	assert.Equal(t, 1, res.Metadata.SelectedRoleIndex)

	res = h.action(t, session.ID, ActionWorkRoleMoveUp, nil)
	assert.Equal(t, "Support Engineer", res.CVData.WorkExperience[0].Title)
	assert.Equal(t, 0, res.Metadata.SelectedRoleIndex)

	res = h.action(t, session.ID, ActionWorkRoleLock, nil)
	assert.True(t, res.CVData.WorkExperience[0].Locked)

	res = h.action(t, session.ID, ActionWorkRoleRemove, map[string]interface{}{"role_index": 1})
	assert.Len(t, res.CVData.WorkExperience, 1)
	assert.Equal(t, "Support Engineer", res.CVData.WorkExperience[0].Title)
}

func TestJobPostingGateRejectsNotes(t *testing.T) {
	h := newWizardHarness(t)

	meta := models.NewMetadata()
	meta.WizardStage = models.StageJobPosting
	session := h.seedSession(t, baseCV(), meta)

	notes := "I worked on my own projects and I think my experience with my team makes me a great fit. " +
		"I am sure I can do this job because I have done it before."
	res := h.action(t, session.ID, ActionJobOfferAnalyze, map[string]interface{}{"job_posting_text": notes})
	assert.Equal(t, models.StageJobPosting, res.Stage)
	assert.Equal(t, models.JobInputStatusInvalid, res.Metadata.JobInputStatus)
	assert.Equal(t, notes, res.Metadata.JobPostingInvalidDraft)
}

func TestImportPrefillApplied(t *testing.T) {
	h := newWizardHarness(t)

	prefill := baseCV()
	meta := models.NewMetadata()
	meta.WizardStage = models.StageImportGatePending
	meta.TargetLanguage = "en"
	meta.SourceLanguage = "en"
	meta.DocxPrefillUnconfirmed = &prefill
	session := h.seedSession(t, models.CVData{}, meta)

	res := h.action(t, session.ID, ActionConfirmImportPrefillYes, nil)
	assert.Equal(t, models.StageContact, res.Stage)
	assert.Equal(t, "Anna Kowalska", res.CVData.FullName)
	assert.Nil(t, res.Metadata.DocxPrefillUnconfirmed)
}

func TestImportPrefillFastPathAppliesStoredProfile(t *testing.T) {
	h := newWizardHarness(t)

	stored := baseCV()
	stored.Profile = "Saved profile summary."
	_, err := h.storage.ProfileStorage().Save(context.Background(), stored.Email, stored, "en")
	require.NoError(t, err)

	prefill := baseCV()
	meta := models.NewMetadata()
	meta.WizardStage = models.StageImportGatePending
	meta.TargetLanguage = "en"
	meta.SourceLanguage = "en"
	meta.DocxPrefillUnconfirmed = &prefill
	session := h.seedSession(t, models.CVData{}, meta)

	req := &TurnRequest{
		SessionID:     session.ID,
		UserAction:    &UserAction{ID: ActionConfirmImportPrefillYes},
		ClientContext: json.RawMessage(`{"fast_path_profile": true}`),
	}
	res, err := h.orch.ProcessTurn(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Saved profile summary.", res.CVData.Profile)
	assert.True(t, res.Metadata.ConfirmedFlags.ContactConfirmed)
	assert.True(t, res.Metadata.ConfirmedFlags.EducationConfirmed)
}

func TestImportPrefillWithoutFastPathKeepsPrefill(t *testing.T) {
	h := newWizardHarness(t)

	stored := baseCV()
	stored.Profile = "Saved profile summary."
	_, err := h.storage.ProfileStorage().Save(context.Background(), stored.Email, stored, "en")
	require.NoError(t, err)

	prefill := baseCV()
	meta := models.NewMetadata()
	meta.WizardStage = models.StageImportGatePending
	meta.TargetLanguage = "en"
	meta.SourceLanguage = "en"
	meta.DocxPrefillUnconfirmed = &prefill
	session := h.seedSession(t, models.CVData{}, meta)

	res := h.action(t, session.ID, ActionConfirmImportPrefillYes, nil)
	assert.Empty(t, res.CVData.Profile)
	assert.False(t, res.Metadata.ConfirmedFlags.ContactConfirmed)
	assert.False(t, res.Metadata.ConfirmedFlags.EducationConfirmed)
}

func TestImportPrefillDiscarded(t *testing.T) {
	h := newWizardHarness(t)

	prefill := baseCV()
	meta := models.NewMetadata()
	meta.WizardStage = models.StageImportGatePending
	meta.DocxPrefillUnconfirmed = &prefill
	session := h.seedSession(t, models.CVData{}, meta)

	res := h.action(t, session.ID, ActionConfirmImportPrefillNo, nil)
	assert.Equal(t, models.StageContact, res.Stage)
	assert.Empty(t, res.CVData.FullName)
	assert.Nil(t, res.Metadata.DocxPrefillUnconfirmed)
}
