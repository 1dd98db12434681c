package wizard

import (
	"encoding/json"
	"fmt"

	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
)

var bulkTranslationSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"profile": {"type": "string"},
		"work_experience": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"bullets": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["title", "bullets"]
			}
		},
		"further_experience": {"type": "array", "items": {"type": "string"}},
		"languages": {"type": "array", "items": {"type": "string"}},
		"it_ai_skills": {"type": "array", "items": {"type": "string"}},
		"technical_operational_skills": {"type": "array", "items": {"type": "string"}},
		"interests": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["work_experience"]
}`)

// maybeBulkTranslate translates the free-text CV content into the target
// language in a single clamped call. Repeat invocations with the same
// source content and target are no-ops; proper nouns (names, employers,
// institutions) are left untouched.
func (o *Orchestrator) maybeBulkTranslate(t *turn) error {
	if t.meta.TargetLanguage == "" || t.meta.TargetLanguage == t.meta.SourceLanguage {
		return nil
	}
	if !o.gateway.Available() {
		return nil
	}

	sourceSig := o.translationSourceSig(t)
	if t.meta.BulkTranslatedTo == t.meta.TargetLanguage && t.meta.BulkTranslationSourceSig == sourceSig {
		return nil
	}

	var out struct {
		Profile        string `json:"profile"`
		WorkExperience []struct {
			Title   string   `json:"title"`
			Bullets []string `json:"bullets"`
		} `json:"work_experience"`
		FurtherExperience          []string `json:"further_experience"`
		Languages                  []string `json:"languages"`
		ITAISkills                 []string `json:"it_ai_skills"`
		TechnicalOperationalSkills []string `json:"technical_operational_skills"`
		Interests                  []string `json:"interests"`
	}
	err := o.gateway.CallSchema(t.ctx, interfaces.SchemaCall{
		Stage: "bulk_translation",
		SystemPrompt: "Translate the CV content into the target language. " +
			"Keep names, employers, institutions, product names, and dates unchanged. " +
			"Preserve the number and order of roles and bullets exactly.",
		UserText:            o.composeTranslationPrompt(t),
		Schema:              bulkTranslationSchema,
		MaxOutputTokens:     o.config.LLM.BulkTranslationBudget,
		BudgetClampOnReject: 4096,
		Trace:               t.trace,
	}, &out)
	if err != nil {
		return fmt.Errorf("bulk translation failed: %w", err)
	}

	if len(out.WorkExperience) != len(t.cv.WorkExperience) {
		return fmt.Errorf("bulk translation returned %d roles, expected %d", len(out.WorkExperience), len(t.cv.WorkExperience))
	}

	if out.Profile != "" {
		t.cv.Profile = out.Profile
	}
	for i, role := range out.WorkExperience {
		if role.Title != "" {
			t.cv.WorkExperience[i].Title = role.Title
		}
		if len(role.Bullets) == len(t.cv.WorkExperience[i].Bullets) {
			t.cv.WorkExperience[i].Bullets = role.Bullets
		}
	}
	if out.FurtherExperience != nil {
		t.cv.FurtherExperience = out.FurtherExperience
	}
	if out.Languages != nil {
		t.cv.Languages = out.Languages
	}
	if out.ITAISkills != nil {
		t.cv.ITAISkills = out.ITAISkills
	}
	if out.TechnicalOperationalSkills != nil {
		t.cv.TechnicalOperationalSkills = out.TechnicalOperationalSkills
	}
	if out.Interests != nil {
		t.cv.Interests = out.Interests
	}

	t.meta.BulkTranslatedTo = t.meta.TargetLanguage
	t.meta.BulkTranslationSourceSig = o.translationSourceSig(t)

	o.logger.Info().
		Str("session_id", t.session.ID).
		Str("target_language", t.meta.TargetLanguage).
		Msg("Bulk translation applied")
	return nil
}

// translationSourceSig fingerprints the translatable content plus target
// so an identical repeat call spends no model budget.
func (o *Orchestrator) translationSourceSig(t *turn) string {
	data, _ := json.Marshal(struct {
		Profile                    string     `json:"profile"`
		Work                       [][]string `json:"work"`
		FurtherExperience          []string   `json:"further_experience"`
		Languages                  []string   `json:"languages"`
		ITAISkills                 []string   `json:"it_ai_skills"`
		TechnicalOperationalSkills []string   `json:"technical_operational_skills"`
		Interests                  []string   `json:"interests"`
	}{
		Profile:                    t.cv.Profile,
		Work:                       roleTexts(t),
		FurtherExperience:          t.cv.FurtherExperience,
		Languages:                  t.cv.Languages,
		ITAISkills:                 t.cv.ITAISkills,
		TechnicalOperationalSkills: t.cv.TechnicalOperationalSkills,
		Interests:                  t.cv.Interests,
	})
	return common.FingerprintParts(t.meta.TargetLanguage, common.SHA256Hex(data))
}

func roleTexts(t *turn) [][]string {
	out := make([][]string, len(t.cv.WorkExperience))
	for i, role := range t.cv.WorkExperience {
		out[i] = append([]string{role.Title}, role.Bullets...)
	}
	return out
}

func (o *Orchestrator) composeTranslationPrompt(t *turn) string {
	cv := struct {
		Profile                    string   `json:"profile,omitempty"`
		WorkExperience             []any    `json:"work_experience"`
		FurtherExperience          []string `json:"further_experience,omitempty"`
		Languages                  []string `json:"languages,omitempty"`
		ITAISkills                 []string `json:"it_ai_skills,omitempty"`
		TechnicalOperationalSkills []string `json:"technical_operational_skills,omitempty"`
		Interests                  []string `json:"interests,omitempty"`
	}{
		Profile:                    t.cv.Profile,
		FurtherExperience:          t.cv.FurtherExperience,
		Languages:                  t.cv.Languages,
		ITAISkills:                 t.cv.ITAISkills,
		TechnicalOperationalSkills: t.cv.TechnicalOperationalSkills,
		Interests:                  t.cv.Interests,
	}
	for _, role := range t.cv.WorkExperience {
		cv.WorkExperience = append(cv.WorkExperience, map[string]any{
			"title":   role.Title,
			"bullets": role.Bullets,
		})
	}
	data, _ := json.MarshalIndent(cv, "", "  ")
	return fmt.Sprintf("TARGET_LANGUAGE: %s\n\nCV_CONTENT:\n%s", t.meta.TargetLanguage, string(data))
}
