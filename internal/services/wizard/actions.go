package wizard

import (
	"fmt"

	"github.com/ternarybob/scriba/internal/models"
)

// UI action ids. The dispatcher must handle every id a builder emits.
const (
	ActionWizardGotoStage = "WIZARD_GOTO_STAGE"

	ActionLanguageSelectEN = "LANGUAGE_SELECT_EN"
	ActionLanguageSelectDE = "LANGUAGE_SELECT_DE"
	ActionLanguageSelectPL = "LANGUAGE_SELECT_PL"

	ActionContactEdit    = "CONTACT_EDIT"
	ActionContactSave    = "CONTACT_SAVE"
	ActionContactCancel  = "CONTACT_CANCEL"
	ActionContactConfirm = "CONTACT_CONFIRM"

	ActionEducationEditJSON = "EDUCATION_EDIT_JSON"
	ActionEducationSave     = "EDUCATION_SAVE"
	ActionEducationCancel   = "EDUCATION_CANCEL"
	ActionEducationConfirm  = "EDUCATION_CONFIRM"

	ActionJobOfferPaste        = "JOB_OFFER_PASTE"
	ActionJobOfferAnalyze      = "JOB_OFFER_ANALYZE"
	ActionJobOfferCancel       = "JOB_OFFER_CANCEL"
	ActionJobOfferSkip         = "JOB_OFFER_SKIP"
	ActionJobOfferInvalidRetry = "JOB_OFFER_INVALID_RETRY"
	ActionJobOfferInvalidSkip  = "JOB_OFFER_INVALID_SKIP"

	ActionWorkAddTailoringNotes = "WORK_ADD_TAILORING_NOTES"
	ActionWorkNotesSave         = "WORK_NOTES_SAVE"
	ActionWorkNotesCancel       = "WORK_NOTES_CANCEL"
	ActionWorkTailorRun         = "WORK_TAILOR_RUN"
	ActionWorkTailorAccept      = "WORK_TAILOR_ACCEPT"
	ActionWorkTailorFeedback    = "WORK_TAILOR_FEEDBACK"
	ActionWorkLocationsEdit     = "WORK_LOCATIONS_EDIT"
	ActionWorkLocationsSave     = "WORK_LOCATIONS_SAVE"
	ActionWorkLocationsCancel   = "WORK_LOCATIONS_CANCEL"
	ActionWorkRoleSelect        = "WORK_ROLE_SELECT"
	ActionWorkRoleLock          = "WORK_ROLE_LOCK"
	ActionWorkRoleUnlock        = "WORK_ROLE_UNLOCK"
	ActionWorkRoleMoveUp        = "WORK_ROLE_MOVE_UP"
	ActionWorkRoleMoveDown      = "WORK_ROLE_MOVE_DOWN"
	ActionWorkRoleRemove        = "WORK_ROLE_REMOVE"
	ActionWorkBulletRemove      = "WORK_BULLET_REMOVE"
	ActionWorkBulletsClear      = "WORK_BULLETS_CLEAR"
	ActionWorkConfirmStage      = "WORK_CONFIRM_STAGE"

	ActionSkillsAddNotes     = "SKILLS_ADD_NOTES"
	ActionSkillsNotesSave    = "SKILLS_NOTES_SAVE"
	ActionSkillsNotesCancel  = "SKILLS_NOTES_CANCEL"
	ActionSkillsTailorRun    = "SKILLS_TAILOR_RUN"
	ActionSkillsTailorSkip   = "SKILLS_TAILOR_SKIP"
	ActionSkillsTailorAccept = "SKILLS_TAILOR_ACCEPT"
	ActionSkillsItemRemove   = "SKILLS_ITEM_REMOVE"
	ActionSkillsItemMoveUp   = "SKILLS_ITEM_MOVE_UP"
	ActionSkillsItemMoveDown = "SKILLS_ITEM_MOVE_DOWN"
	ActionSkillsSectionClear = "SKILLS_SECTION_CLEAR"

	ActionRequestGeneratePDF  = "REQUEST_GENERATE_PDF"
	ActionCoverLetterPreview  = "COVER_LETTER_PREVIEW"
	ActionCoverLetterGenerate = "COVER_LETTER_GENERATE"
	ActionCoverLetterBack     = "COVER_LETTER_BACK"
	ActionDownloadPDF         = "DOWNLOAD_PDF"

	ActionConfirmImportPrefillYes = "CONFIRM_IMPORT_PREFILL_YES"
	ActionConfirmImportPrefillNo  = "CONFIRM_IMPORT_PREFILL_NO"
)

// ActionButton is one clickable UI element
type ActionButton struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Style string `json:"style,omitempty"`
}

// Field is one editable UI input
type Field struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

// UIAction is the structured UI block returned with a wizard turn
type UIAction struct {
	Title   string         `json:"title"`
	Actions []ActionButton `json:"actions"`
	Fields  []Field        `json:"fields,omitempty"`
}

// Button styles
const (
	StylePrimary   = "primary"
	StyleSecondary = "secondary"
	StyleDanger    = "danger"
)

// UIBuilder produces the stage-appropriate UI block. Builders only emit
// ids the dispatcher handles; a static test enforces this.
type UIBuilder struct {
	coverLetterEnabled bool
}

// NewUIBuilder creates a builder with the feature toggles it must honor
func NewUIBuilder(coverLetterEnabled bool) *UIBuilder {
	return &UIBuilder{coverLetterEnabled: coverLetterEnabled}
}

// Build returns the UI block for a substage, or nil when the stage has
// no structured UI.
func (b *UIBuilder) Build(stage string, cv *models.CVData, meta *models.Metadata) *UIAction {
	switch stage {
	case models.StageLanguageSelection:
		return &UIAction{
			Title: "Choose your CV language",
			Actions: []ActionButton{
				{ID: ActionLanguageSelectEN, Label: "English", Style: StylePrimary},
				{ID: ActionLanguageSelectDE, Label: "Deutsch", Style: StylePrimary},
				{ID: ActionLanguageSelectPL, Label: "Polski", Style: StylePrimary},
			},
		}

	case models.StageImportGatePending:
		return &UIAction{
			Title: "We found a previous profile. Apply it?",
			Actions: []ActionButton{
				{ID: ActionConfirmImportPrefillYes, Label: "Yes, use it", Style: StylePrimary},
				{ID: ActionConfirmImportPrefillNo, Label: "No, start fresh", Style: StyleSecondary},
			},
		}

	case models.StageContact:
		return &UIAction{
			Title: "Confirm your contact details",
			Actions: []ActionButton{
				{ID: ActionContactConfirm, Label: "Looks right", Style: StylePrimary},
				{ID: ActionContactEdit, Label: "Edit", Style: StyleSecondary},
			},
		}

	case models.StageContactEdit:
		return &UIAction{
			Title: "Edit contact details",
			Actions: []ActionButton{
				{ID: ActionContactSave, Label: "Save", Style: StylePrimary},
				{ID: ActionContactCancel, Label: "Cancel", Style: StyleSecondary},
			},
			Fields: []Field{
				{Name: "full_name", Type: "text", Value: cv.FullName},
				{Name: "email", Type: "email", Value: cv.Email},
				{Name: "phone", Type: "tel", Value: cv.Phone},
			},
		}

	case models.StageEducation:
		return &UIAction{
			Title: "Review your education",
			Actions: []ActionButton{
				{ID: ActionEducationConfirm, Label: "Confirm", Style: StylePrimary},
				{ID: ActionEducationEditJSON, Label: "Edit", Style: StyleSecondary},
			},
		}

	case models.StageEducationEdit:
		return &UIAction{
			Title: "Edit education entries",
			Actions: []ActionButton{
				{ID: ActionEducationSave, Label: "Save", Style: StylePrimary},
				{ID: ActionEducationCancel, Label: "Cancel", Style: StyleSecondary},
			},
			Fields: []Field{
				{Name: "education_json", Type: "json"},
			},
		}

	case models.StageJobPosting:
		actions := []ActionButton{
			{ID: ActionJobOfferPaste, Label: "Paste a job posting", Style: StylePrimary},
			{ID: ActionJobOfferSkip, Label: "Skip", Style: StyleSecondary},
		}
		if meta.JobPostingInvalidDraft != "" {
			actions = []ActionButton{
				{ID: ActionJobOfferInvalidRetry, Label: "Try again", Style: StylePrimary},
				{ID: ActionJobOfferInvalidSkip, Label: "Skip", Style: StyleSecondary},
			}
		}
		return &UIAction{Title: "Add the job posting you are applying for", Actions: actions}

	case models.StageJobPostingPaste:
		return &UIAction{
			Title: "Paste the job posting text",
			Actions: []ActionButton{
				{ID: ActionJobOfferAnalyze, Label: "Analyze", Style: StylePrimary},
				{ID: ActionJobOfferCancel, Label: "Cancel", Style: StyleSecondary},
			},
			Fields: []Field{
				{Name: "job_posting_text", Type: "textarea"},
			},
		}

	case models.StageWorkExperience:
		return &UIAction{
			Title: "Tailor your work experience",
			Actions: []ActionButton{
				{ID: ActionWorkTailorRun, Label: "Tailor with AI", Style: StylePrimary},
				{ID: ActionWorkAddTailoringNotes, Label: "Add notes", Style: StyleSecondary},
				{ID: ActionWorkLocationsEdit, Label: "Edit locations", Style: StyleSecondary},
				{ID: ActionWorkConfirmStage, Label: "Continue", Style: StyleSecondary},
			},
		}

	case models.StageWorkNotesEdit:
		return &UIAction{
			Title: "Tailoring notes",
			Actions: []ActionButton{
				{ID: ActionWorkNotesSave, Label: "Save", Style: StylePrimary},
				{ID: ActionWorkNotesCancel, Label: "Cancel", Style: StyleSecondary},
			},
			Fields: []Field{
				{Name: "work_tailoring_notes", Type: "textarea", Value: meta.WorkTailoringNotes},
			},
		}

	case models.StageWorkTailorReview:
		return &UIAction{
			Title: "Review the tailored work experience",
			Actions: []ActionButton{
				{ID: ActionWorkTailorAccept, Label: "Accept", Style: StylePrimary},
				{ID: ActionWorkTailorFeedback, Label: "Give feedback", Style: StyleSecondary},
				{ID: ActionWorkTailorRun, Label: "Regenerate", Style: StyleSecondary},
			},
		}

	case models.StageWorkTailorFeedback:
		return &UIAction{
			Title: "What should change?",
			Actions: []ActionButton{
				{ID: ActionWorkTailorRun, Label: "Regenerate", Style: StylePrimary},
				{ID: ActionWorkNotesCancel, Label: "Back", Style: StyleSecondary},
			},
			Fields: []Field{
				{Name: "work_tailoring_feedback", Type: "textarea", Value: meta.WorkTailoringFeedback},
			},
		}

	case models.StageWorkLocationsEdit:
		return &UIAction{
			Title: "Edit role locations",
			Actions: []ActionButton{
				{ID: ActionWorkLocationsSave, Label: "Save", Style: StylePrimary},
				{ID: ActionWorkLocationsCancel, Label: "Cancel", Style: StyleSecondary},
			},
		}

	case models.StageITAISkills:
		return &UIAction{
			Title: "Tailor your skills",
			Actions: []ActionButton{
				{ID: ActionSkillsTailorRun, Label: "Tailor with AI", Style: StylePrimary},
				{ID: ActionSkillsAddNotes, Label: "Add notes", Style: StyleSecondary},
				{ID: ActionSkillsTailorSkip, Label: "Skip", Style: StyleSecondary},
			},
		}

	case models.StageSkillsNotesEdit:
		return &UIAction{
			Title: "Skills notes",
			Actions: []ActionButton{
				{ID: ActionSkillsNotesSave, Label: "Save", Style: StylePrimary},
				{ID: ActionSkillsNotesCancel, Label: "Cancel", Style: StyleSecondary},
			},
			Fields: []Field{
				{Name: "skills_notes", Type: "textarea", Value: meta.SkillsNotes},
			},
		}

	case models.StageSkillsTailorReview:
		return &UIAction{
			Title: "Review the tailored skills",
			Actions: []ActionButton{
				{ID: ActionSkillsTailorAccept, Label: "Accept", Style: StylePrimary},
				{ID: ActionSkillsTailorRun, Label: "Regenerate", Style: StyleSecondary},
				{ID: ActionSkillsTailorSkip, Label: "Skip", Style: StyleSecondary},
			},
		}

	case models.StageReviewFinal:
		return &UIAction{
			Title: "Ready to generate your CV",
			Actions: []ActionButton{
				{ID: ActionRequestGeneratePDF, Label: "Generate PDF", Style: StylePrimary},
				{ID: ActionWizardGotoStage, Label: "Go back to a step", Style: StyleSecondary},
				{ID: ActionDownloadPDF, Label: "Download last PDF", Style: StyleSecondary},
			},
		}

	case models.StageCoverLetterReview:
		actions := []ActionButton{
			{ID: ActionCoverLetterGenerate, Label: "Generate cover letter", Style: StylePrimary},
			{ID: ActionCoverLetterPreview, Label: "Preview", Style: StyleSecondary},
			{ID: ActionCoverLetterBack, Label: "Back to review", Style: StyleSecondary},
			{ID: ActionDownloadPDF, Label: "Download CV", Style: StyleSecondary},
		}
		if !b.coverLetterEnabled {
			actions = []ActionButton{
				{ID: ActionCoverLetterBack, Label: "Back to review", Style: StyleSecondary},
				{ID: ActionDownloadPDF, Label: "Download CV", Style: StyleSecondary},
			}
		}
		return &UIAction{Title: "Cover letter", Actions: actions}
	}

	return nil
}

// AllStages lists every substage a builder can render, for exhaustive
// contract tests.
func AllStages() []string {
	return []string{
		models.StageLanguageSelection,
		models.StageImportGatePending,
		models.StageContact,
		models.StageContactEdit,
		models.StageEducation,
		models.StageEducationEdit,
		models.StageJobPosting,
		models.StageJobPostingPaste,
		models.StageWorkExperience,
		models.StageWorkNotesEdit,
		models.StageWorkTailorReview,
		models.StageWorkTailorFeedback,
		models.StageWorkLocationsEdit,
		models.StageITAISkills,
		models.StageSkillsNotesEdit,
		models.StageSkillsTailorReview,
		models.StageReviewFinal,
		models.StageCoverLetterReview,
	}
}

// errorText formats a user-correctable failure line
func errorText(action string, err error) string {
	return fmt.Sprintf("%s failed: %v. You can retry or continue with another step.", action, err)
}
