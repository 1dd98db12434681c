package wizard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/scriba/internal/models"
)

// handleGotoStage permits backward-only navigation along the major step
// ordering. Stage history is appended and the selected role is cleared.
func (o *Orchestrator) handleGotoStage(t *turn) error {
	var payload struct {
		Stage string `json:"stage"`
	}
	if err := json.Unmarshal(t.payload, &payload); err != nil {
		return fmt.Errorf("invalid goto payload: %w", err)
	}

	target := EntrySubstage(payload.Stage)
	if !CanGotoStage(t.meta.WizardStage, target) {
		t.text = "You can only go back to a previous step."
		return fmt.Errorf("forward or invalid navigation from %s to %s refused", t.meta.WizardStage, payload.Stage)
	}

	t.meta.PushStage(target)
	t.meta.SelectedRoleIndex = -1
	t.text = o.stagePrompt(target)
	return nil
}

// languageSelect sets the write-once target language and routes to the
// import gate when a prefill awaits confirmation.
func (o *Orchestrator) languageSelect(code string) actionHandler {
	return func(t *turn) error {
		t.meta.TargetLanguage = code
		if t.meta.SourceLanguage == "" {
			t.meta.SourceLanguage = code
		}

		if t.meta.DocxPrefillUnconfirmed != nil {
			t.meta.PushStage(models.StageImportGatePending)
		} else {
			t.meta.PushStage(models.StageContact)
		}

		if err := o.maybeBulkTranslate(t); err != nil {
			o.logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("Bulk translation skipped")
		}

		t.text = o.stagePrompt(t.meta.WizardStage)
		return nil
	}
}

// handleContactEdit opens the contact form
func (o *Orchestrator) handleContactEdit(t *turn) error {
	t.meta.PushStage(models.StageContactEdit)
	t.text = "Edit your contact details and save."
	return nil
}

// handleContactSave applies the submitted contact fields
func (o *Orchestrator) handleContactSave(t *turn) error {
	var payload struct {
		FullName     string   `json:"full_name"`
		Email        string   `json:"email"`
		Phone        string   `json:"phone"`
		AddressLines []string `json:"address_lines"`
	}
	if err := json.Unmarshal(t.payload, &payload); err != nil {
		return fmt.Errorf("invalid contact payload: %w", err)
	}

	if payload.FullName != "" {
		t.cv.FullName = strings.TrimSpace(payload.FullName)
	}
	if payload.Email != "" {
		t.cv.Email = strings.TrimSpace(payload.Email)
	}
	if payload.Phone != "" {
		t.cv.Phone = strings.TrimSpace(payload.Phone)
	}
	if payload.AddressLines != nil {
		t.cv.AddressLines = payload.AddressLines
	}

	t.meta.PushStage(models.StageContact)
	t.text = "Contact details updated."
	return nil
}

// handleContactCancel returns to the contact view without changes
func (o *Orchestrator) handleContactCancel(t *turn) error {
	t.meta.PushStage(models.StageContact)
	t.text = "No changes made."
	return nil
}

// handleContactConfirm confirms contact only when the mandatory fields
// are present, then advances to education.
func (o *Orchestrator) handleContactConfirm(t *turn) error {
	if !t.cv.HasContact() {
		t.text = "Please add your full name, email, and phone number before confirming."
		return fmt.Errorf("contact confirmation requires full_name, email, and phone")
	}

	t.meta.ConfirmedFlags.ContactConfirmed = true
	t.meta.PushStage(models.StageEducation)
	t.text = o.stagePrompt(models.StageEducation)
	return nil
}
