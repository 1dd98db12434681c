package wizard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/validation"
)

// maxTailorRoles caps the roles sent into the tailoring prompt
const maxTailorRoles = 12

// acceptRetryLimit bounds the silent retries WORK_TAILOR_ACCEPT runs
// when the applied CV still violates limits.
const acceptRetryLimit = 2

var rolesProposalSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"roles": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"employer": {"type": "string"},
					"date_range": {"type": "string"},
					"location": {"type": "string"},
					"bullets": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["title", "employer", "bullets"]
			}
		}
	},
	"required": ["roles"]
}`)

// handleWorkAddNotes opens the tailoring notes editor
func (o *Orchestrator) handleWorkAddNotes(t *turn) error {
	t.meta.PushStage(models.StageWorkNotesEdit)
	t.text = "Add notes to steer the tailoring, for example skills to emphasize."
	return nil
}

// handleWorkNotesSave stores the notes and returns to the work stage
func (o *Orchestrator) handleWorkNotesSave(t *turn) error {
	var payload struct {
		Notes string `json:"work_tailoring_notes"`
	}
	if err := json.Unmarshal(t.payload, &payload); err != nil {
		return fmt.Errorf("invalid notes payload: %w", err)
	}

	t.meta.WorkTailoringNotes = strings.TrimSpace(payload.Notes)
	t.meta.PushStage(models.StageWorkExperience)
	t.text = "Notes saved."
	return nil
}

// handleWorkNotesCancel discards the edit
func (o *Orchestrator) handleWorkNotesCancel(t *turn) error {
	t.meta.PushStage(models.StageWorkExperience)
	t.text = "No changes made."
	return nil
}

// workInputFingerprint keys the tailoring dedupe cache
func (o *Orchestrator) workInputFingerprint(t *turn) string {
	jobSummary := ""
	if t.meta.JobReference != nil {
		jobSummary = t.meta.JobReference.Summary()
	} else if t.meta.JobPostingText != "" {
		jobSummary = t.meta.JobPostingText
	}
	return common.FingerprintParts(
		t.meta.TargetLanguage,
		common.SHA256Hex([]byte(jobSummary)),
		common.SHA256Hex([]byte(t.meta.WorkTailoringNotes)),
		common.SHA256Hex([]byte(t.meta.WorkTailoringFeedback)),
		t.cv.RolesSig(),
	)
}

// handleWorkTailorRun runs the tailoring protocol: dedupe check, then
// up to MaxAttempts schema calls with violation feedback between them.
func (o *Orchestrator) handleWorkTailorRun(t *turn) error {
	var payload struct {
		ForceRegenerate bool `json:"force_regenerate"`
	}
	if len(t.payload) > 0 {
		if err := json.Unmarshal(t.payload, &payload); err != nil {
			return fmt.Errorf("invalid tailor payload: %w", err)
		}
	}

	if o.config.Wizard.RequireJobText && t.meta.JobInputStatus != models.JobInputStatusAccepted {
		t.text = "Please add a job posting before tailoring."
		return fmt.Errorf("job posting required before tailoring")
	}
	if len(t.cv.WorkExperience) == 0 {
		t.text = "There is no work experience to tailor yet."
		return fmt.Errorf("no work experience present")
	}
	if !o.gateway.Available() {
		t.text = "AI tailoring is not available right now. You can edit roles manually instead."
		return fmt.Errorf("llm unavailable")
	}

	fingerprint := o.workInputFingerprint(t)
	if !payload.ForceRegenerate && t.meta.WorkProposal != nil && t.meta.WorkProposalInputSig == fingerprint {
		t.meta.PushStage(models.StageWorkTailorReview)
		t.text = "Here is the tailored proposal again. Accept it or give feedback."
		t.debug = "work_tailor: cached proposal reused"
		return nil
	}

	proposal, err := o.tailorRoles(t, o.config.LLM.MaxAttempts, "")
	if err != nil {
		t.meta.PushStage(models.StageWorkTailorFeedback)
		t.text = "Tailoring did not produce a valid proposal. Adjust your notes and regenerate."
		return err
	}

	proposal.InputSig = fingerprint
	t.meta.WorkProposal = proposal
	t.meta.WorkProposalInputSig = fingerprint
	t.meta.PushStage(models.StageWorkTailorReview)
	t.text = fmt.Sprintf("I tailored %d roles to the posting. Review and accept, or give feedback.", len(proposal.Roles))
	return nil
}

// tailorRoles performs the validation-looped schema calls. extraFeedback
// is prepended on silent retries from WORK_TAILOR_ACCEPT.
func (o *Orchestrator) tailorRoles(t *turn, maxAttempts int, extraFeedback string) (*models.RolesProposal, error) {
	roles := t.cv.WorkExperience
	if len(roles) > maxTailorRoles {
		roles = roles[:maxTailorRoles]
	}

	corpus := validation.BuildRolesCorpus(roles, t.meta.WorkTailoringNotes, t.meta.WorkTailoringFeedback)
	userText := o.composeTailorPrompt(t, roles)
	if extraFeedback != "" {
		userText += "\n\n" + extraFeedback
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var out struct {
			Roles []models.WorkRole `json:"roles"`
		}
		err := o.gateway.CallSchema(t.ctx, interfaces.SchemaCall{
			Stage:        "work_experience",
			SystemPrompt: workTailorSystemPrompt,
			UserText:     userText,
			Schema:       rolesProposalSchema,
			Trace:        t.trace,
		}, &out)
		if err != nil {
			return nil, err
		}
		if len(out.Roles) == 0 {
			lastErr = fmt.Errorf("proposal contained no roles")
			continue
		}

		violations := validation.ValidateRoles(out.Roles, t.meta.TargetLanguage)
		e0 := validation.CheckRolesInvention(out.Roles, corpus)
		if len(violations) == 0 && len(e0) == 0 {
			return &models.RolesProposal{
				Roles:     out.Roles,
				CreatedAt: time.Now().UTC(),
				Attempts:  attempt,
			}, nil
		}

		feedback := strings.TrimSpace(validation.FormatViolations(violations) + " " + validation.FormatE0Violations(e0))
		userText = o.composeTailorPrompt(t, roles) + "\n\n" + feedback
		lastErr = fmt.Errorf("proposal rejected: %d limit violations, %d grounding violations", len(violations), len(e0))
		o.logger.Debug().
			Str("session_id", t.session.ID).
			Int("attempt", attempt).
			Int("limit_violations", len(violations)).
			Int("e0_violations", len(e0)).
			Msg("Tailoring proposal rejected, retrying with feedback")
	}

	return nil, lastErr
}

const workTailorSystemPrompt = "You tailor CV work experience bullets to a job posting. " +
	"Use ONLY facts present in the CURRENT_WORK_EXPERIENCE, TAILORING_SUGGESTIONS, and TAILORING_FEEDBACK blocks. " +
	"Never invent employers, technologies, metrics, or achievements. " +
	"Keep every role; reorder bullets so the most relevant come first. " +
	"Write in the target language and respect the character limits."

// composeTailorPrompt builds the labeled prompt blocks
func (o *Orchestrator) composeTailorPrompt(t *turn, roles []models.WorkRole) string {
	var b strings.Builder

	fmt.Fprintf(&b, "TARGET_LANGUAGE: %s\n", t.meta.TargetLanguage)
	fmt.Fprintf(&b, "BULLET_CHAR_LIMIT: %d\n\n", validation.HardLimit(validation.LimitWorkBullet, t.meta.TargetLanguage))

	if t.meta.JobReference != nil {
		b.WriteString("JOB_REFERENCE:\n")
		b.WriteString(t.meta.JobReference.Summary())
		b.WriteString("\n")
	} else if t.meta.JobPostingText != "" {
		b.WriteString("JOB_POSTING:\n")
		b.WriteString(t.meta.JobPostingText)
		b.WriteString("\n\n")
	}

	b.WriteString("CURRENT_WORK_EXPERIENCE:\n")
	for i, role := range roles {
		fmt.Fprintf(&b, "[%d] %s | %s | %s | %s", i, role.Title, role.Employer, role.DateRange, role.Location)
		if role.Locked {
			b.WriteString(" (locked: do not change)")
		}
		b.WriteString("\n")
		for _, bullet := range role.Bullets {
			fmt.Fprintf(&b, "  - %s\n", bullet)
		}
	}

	if notes := strings.TrimSpace(t.meta.WorkTailoringNotes); notes != "" {
		b.WriteString("\nTAILORING_SUGGESTIONS:\n")
		b.WriteString(notes)
		b.WriteString("\n")
	}
	if feedback := strings.TrimSpace(t.meta.WorkTailoringFeedback); feedback != "" {
		b.WriteString("\nTAILORING_FEEDBACK:\n")
		b.WriteString(feedback)
		b.WriteString("\n")
	}

	return b.String()
}

// handleWorkTailorAccept re-guards the stored proposal, applies it as the
// whole work_experience array, and backfills missing locations.
func (o *Orchestrator) handleWorkTailorAccept(t *turn) error {
	proposal := t.meta.WorkProposal
	if proposal == nil {
		t.text = "There is no proposal to accept. Run tailoring first."
		return fmt.Errorf("no pending work proposal")
	}

	violations := validation.ValidateRoles(proposal.Roles, t.meta.TargetLanguage)
	if len(violations) > 0 {
		// Bounded silent retry with a violation-focused prompt before
		// surfacing the error. Content is never truncated to fit.
		for retry := 0; retry < acceptRetryLimit; retry++ {
			repaired, err := o.tailorRoles(t, 1, validation.FormatViolations(violations))
			if err != nil {
				continue
			}
			if len(validation.ValidateRoles(repaired.Roles, t.meta.TargetLanguage)) == 0 {
				repaired.InputSig = t.meta.WorkProposalInputSig
				proposal = repaired
				t.meta.WorkProposal = repaired
				violations = nil
				break
			}
		}
		if len(violations) > 0 {
			t.meta.PushStage(models.StageWorkTailorFeedback)
			t.text = "The proposal still exceeds the character limits. Please regenerate with adjusted notes."
			return nil
		}
	}

	previous := t.cv.WorkExperience
	applied := make([]models.WorkRole, len(proposal.Roles))
	copy(applied, proposal.Roles)
	backfillLocations(applied, previous)

	t.cv.WorkExperience = applied
	t.meta.WorkProposal = nil
	t.meta.WorkProposalInputSig = ""
	t.meta.WorkTailoringFeedback = ""
	t.meta.PushStage(models.StageITAISkills)
	t.text = o.stagePrompt(models.StageITAISkills)
	return nil
}

// backfillLocations copies locations from the previous snapshot where
// the proposal left them empty, matched by title and employer first,
// then by index.
func backfillLocations(applied, previous []models.WorkRole) {
	for i := range applied {
		if applied[i].Location != "" {
			continue
		}
		for _, prev := range previous {
			if prev.Title == applied[i].Title && prev.Employer == applied[i].Employer && prev.Location != "" {
				applied[i].Location = prev.Location
				break
			}
		}
		if applied[i].Location == "" && i < len(previous) {
			applied[i].Location = previous[i].Location
		}
	}
}

// handleWorkTailorFeedback opens the feedback editor
func (o *Orchestrator) handleWorkTailorFeedback(t *turn) error {
	t.meta.PushStage(models.StageWorkTailorFeedback)
	t.text = "Tell me what should change and I will regenerate."
	return nil
}

// handleWorkLocationsEdit opens the locations editor
func (o *Orchestrator) handleWorkLocationsEdit(t *turn) error {
	t.meta.PushStage(models.StageWorkLocationsEdit)
	t.text = "Update the location for each role."
	return nil
}

// handleWorkLocationsSave applies per-role locations by index
func (o *Orchestrator) handleWorkLocationsSave(t *turn) error {
	var payload struct {
		Locations map[int]string `json:"locations"`
	}
	if err := json.Unmarshal(t.payload, &payload); err != nil {
		return fmt.Errorf("invalid locations payload: %w", err)
	}

	for idx, location := range payload.Locations {
		if idx >= 0 && idx < len(t.cv.WorkExperience) {
			t.cv.WorkExperience[idx].Location = strings.TrimSpace(location)
		}
	}

	t.meta.PushStage(models.StageWorkExperience)
	t.text = "Locations updated."
	return nil
}

// handleWorkLocationsCancel discards the edit
func (o *Orchestrator) handleWorkLocationsCancel(t *turn) error {
	t.meta.PushStage(models.StageWorkExperience)
	t.text = "No changes made."
	return nil
}

// selectedRolePayload reads the role index from the payload, falling
// back to the session's selected role.
func (t *turn) selectedRolePayload() (int, error) {
	var payload struct {
		RoleIndex *int `json:"role_index"`
	}
	if len(t.payload) > 0 {
		if err := json.Unmarshal(t.payload, &payload); err != nil {
			return 0, fmt.Errorf("invalid role payload: %w", err)
		}
	}
	idx := t.meta.SelectedRoleIndex
	if payload.RoleIndex != nil {
		idx = *payload.RoleIndex
	}
	if idx < 0 || idx >= len(t.cv.WorkExperience) {
		return 0, fmt.Errorf("role index %d out of range", idx)
	}
	return idx, nil
}

// handleWorkRoleSelect marks a role as the target of subsequent actions
func (o *Orchestrator) handleWorkRoleSelect(t *turn) error {
	idx, err := t.selectedRolePayload()
	if err != nil {
		return err
	}
	t.meta.SelectedRoleIndex = idx
	t.text = fmt.Sprintf("Selected role %d: %s.", idx, t.cv.WorkExperience[idx].Title)
	return nil
}

// workRoleLock toggles tailoring protection on the selected role
func (o *Orchestrator) workRoleLock(locked bool) actionHandler {
	return func(t *turn) error {
		idx, err := t.selectedRolePayload()
		if err != nil {
			return err
		}
		t.cv.WorkExperience[idx].Locked = locked
		if locked {
			t.text = fmt.Sprintf("Role %q is now locked and will not be changed by tailoring.", t.cv.WorkExperience[idx].Title)
		} else {
			t.text = fmt.Sprintf("Role %q is unlocked.", t.cv.WorkExperience[idx].Title)
		}
		return nil
	}
}

// workRoleMove shifts the selected role up or down
func (o *Orchestrator) workRoleMove(delta int) actionHandler {
	return func(t *turn) error {
		idx, err := t.selectedRolePayload()
		if err != nil {
			return err
		}
		target := idx + delta
		if target < 0 || target >= len(t.cv.WorkExperience) {
			t.text = "That role is already at the edge of the list."
			return nil
		}
		roles := t.cv.WorkExperience
		roles[idx], roles[target] = roles[target], roles[idx]
		t.meta.SelectedRoleIndex = target
		t.text = "Role order updated."
		return nil
	}
}

// handleWorkRoleRemove deletes the selected role
func (o *Orchestrator) handleWorkRoleRemove(t *turn) error {
	idx, err := t.selectedRolePayload()
	if err != nil {
		return err
	}
	removed := t.cv.WorkExperience[idx].Title
	t.cv.WorkExperience = append(t.cv.WorkExperience[:idx], t.cv.WorkExperience[idx+1:]...)
	t.meta.SelectedRoleIndex = -1
	t.text = fmt.Sprintf("Removed role %q.", removed)
	return nil
}

// handleWorkBulletRemove deletes one bullet from the selected role
func (o *Orchestrator) handleWorkBulletRemove(t *turn) error {
	var payload struct {
		RoleIndex   *int `json:"role_index"`
		BulletIndex int  `json:"bullet_index"`
	}
	if err := json.Unmarshal(t.payload, &payload); err != nil {
		return fmt.Errorf("invalid bullet payload: %w", err)
	}

	idx := t.meta.SelectedRoleIndex
	if payload.RoleIndex != nil {
		idx = *payload.RoleIndex
	}
	if idx < 0 || idx >= len(t.cv.WorkExperience) {
		return fmt.Errorf("role index %d out of range", idx)
	}
	role := &t.cv.WorkExperience[idx]
	if payload.BulletIndex < 0 || payload.BulletIndex >= len(role.Bullets) {
		return fmt.Errorf("bullet index %d out of range", payload.BulletIndex)
	}

	role.Bullets = append(role.Bullets[:payload.BulletIndex], role.Bullets[payload.BulletIndex+1:]...)
	t.text = "Bullet removed."
	return nil
}

// handleWorkBulletsClear empties the selected role's bullets
func (o *Orchestrator) handleWorkBulletsClear(t *turn) error {
	idx, err := t.selectedRolePayload()
	if err != nil {
		return err
	}
	t.cv.WorkExperience[idx].Bullets = nil
	t.text = fmt.Sprintf("Cleared bullets for %q.", t.cv.WorkExperience[idx].Title)
	return nil
}

// handleWorkConfirmStage advances past work experience without tailoring
func (o *Orchestrator) handleWorkConfirmStage(t *turn) error {
	t.meta.PushStage(models.StageITAISkills)
	t.text = o.stagePrompt(models.StageITAISkills)
	return nil
}
