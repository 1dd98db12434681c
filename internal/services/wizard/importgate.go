package wizard

import (
	"encoding/json"

	"github.com/ternarybob/scriba/internal/models"
)

// clientContext carries per-turn hints sent by the client
type clientContext struct {
	FastPathProfile bool `json:"fast_path_profile"`
}

func parseClientContext(raw json.RawMessage) clientContext {
	var cc clientContext
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &cc)
	}
	return cc
}

// handleImportPrefillYes merges the unconfirmed DOCX prefill into the CV.
// When the client requests the fast path and a stable profile exists for
// the prefilled email in the target language, it replaces the prefill
// verbatim and the contact and education confirmations are carried over.
func (o *Orchestrator) handleImportPrefillYes(t *turn) error {
	prefill := t.meta.DocxPrefillUnconfirmed
	if prefill == nil {
		t.meta.PushStage(models.StageContact)
		t.text = o.stagePrompt(models.StageContact)
		return nil
	}

	mergePrefill(t.cv, prefill)
	t.meta.DocxPrefillUnconfirmed = nil

	if parseClientContext(t.client).FastPathProfile && t.cv.Email != "" {
		stored, language, err := o.storage.ProfileStorage().Get(t.ctx, t.cv.Email)
		if err == nil && stored != nil && language == t.meta.TargetLanguage {
			*t.cv = *stored
			t.meta.ConfirmedFlags.ContactConfirmed = true
			t.meta.ConfirmedFlags.EducationConfirmed = true
			o.logger.Info().
				Str("session_id", t.session.ID).
				Str("language", language).
				Msg("Stable profile applied for returning user")
			t.meta.PushStage(models.StageContact)
			t.text = "Welcome back. I loaded your saved profile; review your details and continue."
			return nil
		}
	}

	if err := o.maybeBulkTranslate(t); err != nil {
		o.logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("Bulk translation skipped")
	}

	t.meta.PushStage(models.StageContact)
	t.text = "I imported your document. Please review your contact details."
	return nil
}

// handleImportPrefillNo discards the prefill and starts from scratch
func (o *Orchestrator) handleImportPrefillNo(t *turn) error {
	t.meta.DocxPrefillUnconfirmed = nil
	t.meta.PushStage(models.StageContact)
	t.text = "Starting with a blank CV. Please add your contact details."
	return nil
}

// mergePrefill copies extracted fields into the CV without overwriting
// anything the user already entered.
func mergePrefill(cv, prefill *models.CVData) {
	if cv.FullName == "" {
		cv.FullName = prefill.FullName
	}
	if cv.Email == "" {
		cv.Email = prefill.Email
	}
	if cv.Phone == "" {
		cv.Phone = prefill.Phone
	}
	if len(cv.AddressLines) == 0 {
		cv.AddressLines = prefill.AddressLines
	}
	if cv.Profile == "" {
		cv.Profile = prefill.Profile
	}
	if len(cv.WorkExperience) == 0 {
		cv.WorkExperience = prefill.WorkExperience
	}
	if len(cv.Education) == 0 {
		cv.Education = prefill.Education
	}
	if len(cv.FurtherExperience) == 0 {
		cv.FurtherExperience = prefill.FurtherExperience
	}
	if len(cv.Languages) == 0 {
		cv.Languages = prefill.Languages
	}
	if len(cv.ITAISkills) == 0 {
		cv.ITAISkills = prefill.ITAISkills
	}
	if len(cv.TechnicalOperationalSkills) == 0 {
		cv.TechnicalOperationalSkills = prefill.TechnicalOperationalSkills
	}
	if len(cv.Interests) == 0 {
		cv.Interests = prefill.Interests
	}
}
