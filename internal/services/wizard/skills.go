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

var skillsProposalSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"it_ai_skills": {"type": "array", "items": {"type": "string"}},
		"technical_operational_skills": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["it_ai_skills", "technical_operational_skills"]
}`)

// handleSkillsAddNotes opens the skills notes editor
func (o *Orchestrator) handleSkillsAddNotes(t *turn) error {
	t.meta.PushStage(models.StageSkillsNotesEdit)
	t.text = "Add notes about skills to emphasize or drop."
	return nil
}

// handleSkillsNotesSave stores the notes and returns to the skills stage
func (o *Orchestrator) handleSkillsNotesSave(t *turn) error {
	var payload struct {
		Notes string `json:"skills_notes"`
	}
	if err := json.Unmarshal(t.payload, &payload); err != nil {
		return fmt.Errorf("invalid skills notes payload: %w", err)
	}

	t.meta.SkillsNotes = strings.TrimSpace(payload.Notes)
	t.meta.PushStage(models.StageITAISkills)
	t.text = "Notes saved."
	return nil
}

// handleSkillsNotesCancel discards the edit
func (o *Orchestrator) handleSkillsNotesCancel(t *turn) error {
	t.meta.PushStage(models.StageITAISkills)
	t.text = "No changes made."
	return nil
}

// skillsInputFingerprint keys the skills proposal dedupe cache
func (o *Orchestrator) skillsInputFingerprint(t *turn) string {
	jobSummary := ""
	if t.meta.JobReference != nil {
		jobSummary = t.meta.JobReference.Summary()
	} else if t.meta.JobPostingText != "" {
		jobSummary = t.meta.JobPostingText
	}
	skills, _ := json.Marshal([][]string{t.cv.ITAISkills, t.cv.TechnicalOperationalSkills})
	return common.FingerprintParts(
		t.meta.TargetLanguage,
		common.SHA256Hex([]byte(jobSummary)),
		common.SHA256Hex([]byte(t.meta.SkillsNotes)),
		common.SHA256Hex(skills),
		t.cv.RolesSig(),
	)
}

// skillsCorpus grounds the invention check on the current skills, the
// tailored work experience, and the user's notes.
func (o *Orchestrator) skillsCorpus(t *turn) *validation.Corpus {
	var work strings.Builder
	for _, role := range t.cv.WorkExperience {
		work.WriteString(role.Title)
		work.WriteString(" ")
		work.WriteString(strings.Join(role.Bullets, " "))
		work.WriteString(" ")
	}
	return validation.BuildCorpus(map[string]string{
		validation.CorpusCurrentWork: work.String() + " " +
			strings.Join(t.cv.ITAISkills, " ") + " " +
			strings.Join(t.cv.TechnicalOperationalSkills, " "),
		validation.CorpusTailoringSuggested: t.meta.SkillsNotes,
	})
}

// handleSkillsTailorRun produces a skills proposal grounded in the CV
func (o *Orchestrator) handleSkillsTailorRun(t *turn) error {
	var payload struct {
		ForceRegenerate bool `json:"force_regenerate"`
	}
	if len(t.payload) > 0 {
		if err := json.Unmarshal(t.payload, &payload); err != nil {
			return fmt.Errorf("invalid tailor payload: %w", err)
		}
	}

	if !o.gateway.Available() {
		t.text = "AI tailoring is not available right now. You can edit skills manually instead."
		return fmt.Errorf("llm unavailable")
	}

	fingerprint := o.skillsInputFingerprint(t)
	if !payload.ForceRegenerate && t.meta.SkillsProposal != nil && t.meta.SkillsProposal.InputSig == fingerprint {
		t.meta.PushStage(models.StageSkillsTailorReview)
		t.text = "Here is the skills proposal again. Accept it or skip."
		t.debug = "skills_tailor: cached proposal reused"
		return nil
	}

	corpus := o.skillsCorpus(t)
	userText := o.composeSkillsPrompt(t)

	var lastErr error
	for attempt := 1; attempt <= o.config.LLM.MaxAttempts; attempt++ {
		var out struct {
			ITAISkills                 []string `json:"it_ai_skills"`
			TechnicalOperationalSkills []string `json:"technical_operational_skills"`
		}
		err := o.gateway.CallSchema(t.ctx, interfaces.SchemaCall{
			Stage:        "it_ai_skills",
			SystemPrompt: skillsTailorSystemPrompt,
			UserText:     userText,
			Schema:       skillsProposalSchema,
			Trace:        t.trace,
		}, &out)
		if err != nil {
			lastErr = err
			break
		}

		violations := validation.ValidateSkillsItems("it_ai_skills", out.ITAISkills, t.meta.TargetLanguage)
		violations = append(violations, validation.ValidateSkillsItems("technical_operational_skills", out.TechnicalOperationalSkills, t.meta.TargetLanguage)...)
		e0 := validation.CheckItemsInvention(out.ITAISkills, corpus)
		e0 = append(e0, validation.CheckItemsInvention(out.TechnicalOperationalSkills, corpus)...)
		if len(violations) == 0 && len(e0) == 0 {
			t.meta.SkillsProposal = &models.SkillsProposal{
				ITAISkills:                 out.ITAISkills,
				TechnicalOperationalSkills: out.TechnicalOperationalSkills,
				InputSig:                   fingerprint,
				CreatedAt:                  time.Now().UTC(),
			}
			t.meta.PushStage(models.StageSkillsTailorReview)
			t.text = "I reorganized your skills for this posting. Review and accept, or skip."
			return nil
		}

		userText = o.composeSkillsPrompt(t) + "\n\n" +
			strings.TrimSpace(validation.FormatViolations(violations)+" "+validation.FormatE0Violations(e0))
		lastErr = fmt.Errorf("skills proposal rejected: %d limit violations, %d grounding violations", len(violations), len(e0))
	}

	t.text = "Skills tailoring did not produce a valid proposal. You can edit skills manually or skip."
	return lastErr
}

const skillsTailorSystemPrompt = "You reorganize CV skill lists to match a job posting. " +
	"Use ONLY skills present in the CURRENT_WORK_EXPERIENCE block. " +
	"Never add skills the candidate has not demonstrated. " +
	"Order the most relevant skills first and write in the target language."

func (o *Orchestrator) composeSkillsPrompt(t *turn) string {
	var b strings.Builder

	fmt.Fprintf(&b, "TARGET_LANGUAGE: %s\n", t.meta.TargetLanguage)
	fmt.Fprintf(&b, "SKILL_CHAR_LIMIT: %d\n\n", validation.HardLimit(validation.LimitSkillItem, t.meta.TargetLanguage))

	if t.meta.JobReference != nil {
		b.WriteString("JOB_REFERENCE:\n")
		b.WriteString(t.meta.JobReference.Summary())
		b.WriteString("\n\n")
	} else if t.meta.JobPostingText != "" {
		b.WriteString("JOB_POSTING:\n")
		b.WriteString(t.meta.JobPostingText)
		b.WriteString("\n\n")
	}

	b.WriteString("CURRENT_WORK_EXPERIENCE:\n")
	for _, role := range t.cv.WorkExperience {
		fmt.Fprintf(&b, "%s | %s\n", role.Title, role.Employer)
		for _, bullet := range role.Bullets {
			fmt.Fprintf(&b, "  - %s\n", bullet)
		}
	}
	b.WriteString("\nIT_AI_SKILLS:\n")
	for _, item := range t.cv.ITAISkills {
		fmt.Fprintf(&b, "  - %s\n", item)
	}
	b.WriteString("\nTECHNICAL_OPERATIONAL_SKILLS:\n")
	for _, item := range t.cv.TechnicalOperationalSkills {
		fmt.Fprintf(&b, "  - %s\n", item)
	}

	if notes := strings.TrimSpace(t.meta.SkillsNotes); notes != "" {
		b.WriteString("\nTAILORING_SUGGESTIONS:\n")
		b.WriteString(notes)
		b.WriteString("\n")
	}

	return b.String()
}

// handleSkillsTailorSkip keeps the current skills and advances
func (o *Orchestrator) handleSkillsTailorSkip(t *turn) error {
	t.meta.SkillsProposal = nil
	t.meta.PushStage(models.StageReviewFinal)
	t.text = o.stagePrompt(models.StageReviewFinal)
	return nil
}

// handleSkillsTailorAccept re-guards and applies the proposal
func (o *Orchestrator) handleSkillsTailorAccept(t *turn) error {
	proposal := t.meta.SkillsProposal
	if proposal == nil {
		t.text = "There is no skills proposal to accept. Run tailoring first."
		return fmt.Errorf("no pending skills proposal")
	}

	violations := validation.ValidateSkillsItems("it_ai_skills", proposal.ITAISkills, t.meta.TargetLanguage)
	violations = append(violations, validation.ValidateSkillsItems("technical_operational_skills", proposal.TechnicalOperationalSkills, t.meta.TargetLanguage)...)
	if len(violations) > 0 {
		t.text = "The proposal exceeds the character limits. Please regenerate."
		return nil
	}

	t.cv.ITAISkills = proposal.ITAISkills
	t.cv.TechnicalOperationalSkills = proposal.TechnicalOperationalSkills
	t.meta.SkillsProposal = nil
	t.meta.PushStage(models.StageReviewFinal)
	t.text = o.stagePrompt(models.StageReviewFinal)
	return nil
}

// skillsSectionPayload resolves which skill list an item action targets
func (t *turn) skillsSectionPayload() (*[]string, int, error) {
	var payload struct {
		Section   string `json:"section"`
		ItemIndex int    `json:"item_index"`
	}
	if err := json.Unmarshal(t.payload, &payload); err != nil {
		return nil, 0, fmt.Errorf("invalid skills payload: %w", err)
	}

	var list *[]string
	switch payload.Section {
	case "it_ai_skills", "":
		list = &t.cv.ITAISkills
	case "technical_operational_skills":
		list = &t.cv.TechnicalOperationalSkills
	default:
		return nil, 0, fmt.Errorf("unknown skills section %q", payload.Section)
	}
	return list, payload.ItemIndex, nil
}

// handleSkillsItemRemove deletes one item from a skill list
func (o *Orchestrator) handleSkillsItemRemove(t *turn) error {
	list, idx, err := t.skillsSectionPayload()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(*list) {
		return fmt.Errorf("skill index %d out of range", idx)
	}
	removed := (*list)[idx]
	*list = append((*list)[:idx], (*list)[idx+1:]...)
	t.text = fmt.Sprintf("Removed %q.", removed)
	return nil
}

// skillsItemMove shifts one item up or down within its list
func (o *Orchestrator) skillsItemMove(delta int) actionHandler {
	return func(t *turn) error {
		list, idx, err := t.skillsSectionPayload()
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(*list) {
			return fmt.Errorf("skill index %d out of range", idx)
		}
		target := idx + delta
		if target < 0 || target >= len(*list) {
			t.text = "That item is already at the edge of the list."
			return nil
		}
		(*list)[idx], (*list)[target] = (*list)[target], (*list)[idx]
		t.text = "Skill order updated."
		return nil
	}
}

// handleSkillsSectionClear empties one skill list
func (o *Orchestrator) handleSkillsSectionClear(t *turn) error {
	list, _, err := t.skillsSectionPayload()
	if err != nil {
		return err
	}
	*list = nil
	t.text = "Section cleared."
	return nil
}
