// -----------------------------------------------------------------------
// Package validation provides the deterministic guards around CV content:
// hard character limits, readiness gating, job-posting screening, and the
// no-invention check for LLM proposals
// -----------------------------------------------------------------------

package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/ternarybob/scriba/internal/models"
)

// Base character limits per field. Limits scale by languageFactor for
// German-like target languages.
const (
	LimitWorkBullet    = 200
	LimitFurtherBullet = 80
	LimitRoleTitle     = 90
	LimitEmployer      = 60
	LimitLocation      = 50
	LimitDateRange     = 25
	LimitProfile       = 320
	LimitSkillItem     = 70
	LimitLanguageItem  = 50
)

// germanLikeFactor scales limits for languages with longer compound words
const germanLikeFactor = 1.25

var germanLikeLanguages = map[string]bool{
	"de": true,
	"nl": true,
}

// HardLimit returns the effective limit for a base value and target language
func HardLimit(base int, targetLanguage string) int {
	if germanLikeLanguages[targetLanguage] {
		return int(float64(base) * germanLikeFactor)
	}
	return base
}

// LimitViolation describes one field exceeding its hard limit.
// RoleIndex and BulletIndex are -1 when not applicable.
type LimitViolation struct {
	Field       string `json:"field"`
	RoleIndex   int    `json:"role_index"`
	BulletIndex int    `json:"bullet_index"`
	Limit       int    `json:"limit"`
	Length      int    `json:"length"`
	Text        string `json:"text"`
}

func (v LimitViolation) String() string {
	if v.RoleIndex >= 0 && v.BulletIndex >= 0 {
		return fmt.Sprintf("%s[%d].bullets[%d]: %d chars exceeds limit %d", v.Field, v.RoleIndex, v.BulletIndex, v.Length, v.Limit)
	}
	if v.RoleIndex >= 0 {
		return fmt.Sprintf("%s[%d]: %d chars exceeds limit %d", v.Field, v.RoleIndex, v.Length, v.Limit)
	}
	return fmt.Sprintf("%s: %d chars exceeds limit %d", v.Field, v.Length, v.Limit)
}

func newViolation(field string, roleIdx, bulletIdx int, text string, limit int) *LimitViolation {
	length := utf8.RuneCountInString(text)
	if length <= limit {
		return nil
	}
	return &LimitViolation{
		Field:       field,
		RoleIndex:   roleIdx,
		BulletIndex: bulletIdx,
		Limit:       limit,
		Length:      length,
		Text:        text,
	}
}

// ValidateRoles checks a set of work roles against the language-scaled
// hard limits. Used both for LLM proposals and for the applied CV.
func ValidateRoles(roles []models.WorkRole, targetLanguage string) []LimitViolation {
	var violations []LimitViolation
	add := func(v *LimitViolation) {
		if v != nil {
			violations = append(violations, *v)
		}
	}

	for i, role := range roles {
		add(newViolation("work_experience.title", i, -1, role.Title, HardLimit(LimitRoleTitle, targetLanguage)))
		add(newViolation("work_experience.employer", i, -1, role.Employer, HardLimit(LimitEmployer, targetLanguage)))
		add(newViolation("work_experience.location", i, -1, role.Location, HardLimit(LimitLocation, targetLanguage)))
		add(newViolation("work_experience.date_range", i, -1, role.DateRange, HardLimit(LimitDateRange, targetLanguage)))
		for j, bullet := range role.Bullets {
			add(newViolation("work_experience", i, j, bullet, HardLimit(LimitWorkBullet, targetLanguage)))
		}
	}
	return violations
}

// ValidateSkillsItems checks skills list entries against the skill item limit
func ValidateSkillsItems(field string, items []string, targetLanguage string) []LimitViolation {
	var violations []LimitViolation
	limit := HardLimit(LimitSkillItem, targetLanguage)
	for i, item := range items {
		if v := newViolation(field, i, -1, item, limit); v != nil {
			violations = append(violations, *v)
		}
	}
	return violations
}

// ValidateCV checks the whole applied CV against the hard limits
func ValidateCV(cv *models.CVData, targetLanguage string) []LimitViolation {
	violations := ValidateRoles(cv.WorkExperience, targetLanguage)
	add := func(v *LimitViolation) {
		if v != nil {
			violations = append(violations, *v)
		}
	}

	add(newViolation("profile", -1, -1, cv.Profile, HardLimit(LimitProfile, targetLanguage)))
	for i, entry := range cv.FurtherExperience {
		add(newViolation("further_experience", i, -1, entry, HardLimit(LimitFurtherBullet, targetLanguage)))
	}
	for i, entry := range cv.Languages {
		add(newViolation("languages", i, -1, entry, HardLimit(LimitLanguageItem, targetLanguage)))
	}
	violations = append(violations, ValidateSkillsItems("it_ai_skills", cv.ITAISkills, targetLanguage)...)
	violations = append(violations, ValidateSkillsItems("technical_operational_skills", cv.TechnicalOperationalSkills, targetLanguage)...)

	return violations
}

// FormatViolations renders violations as the FIX_VALIDATION feedback
// block fed back into a retry prompt
func FormatViolations(violations []LimitViolation) string {
	if len(violations) == 0 {
		return ""
	}
	out := "FIX_VALIDATION:"
	for _, v := range violations {
		out += " " + v.String() + ";"
	}
	return out
}
