package wizard

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

// handleEducationEdit opens the JSON education editor
func (o *Orchestrator) handleEducationEdit(t *turn) error {
	t.meta.PushStage(models.StageEducationEdit)
	t.text = "Edit your education entries. Order matters; the first entry is shown first."
	return nil
}

// handleEducationSave replaces the education list with the user-edited
// ordered sequence.
func (o *Orchestrator) handleEducationSave(t *turn) error {
	var payload struct {
		Education []models.EducationEntry `json:"education"`
	}
	if err := json.Unmarshal(t.payload, &payload); err != nil {
		return fmt.Errorf("invalid education payload: %w", err)
	}

	t.cv.Education = payload.Education
	t.meta.PushStage(models.StageEducation)
	t.text = fmt.Sprintf("Saved %d education entries.", len(payload.Education))
	return nil
}

// handleEducationCancel returns to the education view without changes
func (o *Orchestrator) handleEducationCancel(t *turn) error {
	t.meta.PushStage(models.StageEducation)
	t.text = "No changes made."
	return nil
}

// handleEducationConfirm confirms education, snapshots the base CV, and
// saves the cross-session stable profile keyed by email.
func (o *Orchestrator) handleEducationConfirm(t *turn) error {
	t.meta.ConfirmedFlags.EducationConfirmed = true
	now := time.Now().UTC()
	t.meta.ConfirmedFlags.ConfirmedAt = &now

	o.snapshotBaseCV(t)

	if t.cv.Email != "" {
		ref, err := o.storage.ProfileStorage().Save(t.ctx, t.cv.Email, *t.cv, t.meta.TargetLanguage)
		if err != nil {
			o.logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("Stable profile save failed")
		} else {
			t.meta.StableProfileRef = ref
		}
	}

	t.meta.PushStage(models.StageJobPosting)
	t.text = o.stagePrompt(models.StageJobPosting)
	return nil
}

// snapshotBaseCV stores the confirmed CV as a blob so later tailoring
// can backfill from the pre-tailoring state.
func (o *Orchestrator) snapshotBaseCV(t *turn) {
	data, err := json.Marshal(t.cv)
	if err != nil {
		return
	}
	name := t.session.ID + "/base_cv.json"
	if err := o.storage.BlobStorage().Put(t.ctx, interfaces.ContainerSessions, name, data); err != nil {
		o.logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("Base CV snapshot failed")
	}
}
