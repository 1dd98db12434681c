package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/models"
)

func TestHardLimitScalesForGermanLike(t *testing.T) {
	assert.Equal(t, 200, HardLimit(LimitWorkBullet, "en"))
	assert.Equal(t, 250, HardLimit(LimitWorkBullet, "de"))
	assert.Equal(t, 100, HardLimit(LimitFurtherBullet, "de"))
	assert.Equal(t, 200, HardLimit(LimitWorkBullet, "pl"))
}

func TestValidateRolesFlagsLongBullet(t *testing.T) {
	roles := []models.WorkRole{
		{
			Title:    "Engineer",
			Employer: "Acme",
			Bullets: []string{
				"Short bullet",
				strings.Repeat("x", 230),
			},
		},
	}

	violations := ValidateRoles(roles, "en")
	require.Len(t, violations, 1)
	assert.Equal(t, 0, violations[0].RoleIndex)
	assert.Equal(t, 1, violations[0].BulletIndex)
	assert.Equal(t, 200, violations[0].Limit)
	assert.Equal(t, 230, violations[0].Length)

	// The same bullet passes under the German limit
	assert.Empty(t, ValidateRoles(roles, "de"))
}

func TestValidateRolesChecksHeaderFields(t *testing.T) {
	roles := []models.WorkRole{
		{
			Title:     strings.Repeat("t", 95),
			Employer:  strings.Repeat("e", 65),
			Location:  strings.Repeat("l", 55),
			DateRange: strings.Repeat("d", 30),
		},
	}

	violations := ValidateRoles(roles, "en")
	require.Len(t, violations, 4)
	fields := make(map[string]bool)
	for _, v := range violations {
		fields[v.Field] = true
		assert.Equal(t, -1, v.BulletIndex)
	}
	assert.True(t, fields["work_experience.title"])
	assert.True(t, fields["work_experience.employer"])
	assert.True(t, fields["work_experience.location"])
	assert.True(t, fields["work_experience.date_range"])
}

func TestValidateCVCoversAllSections(t *testing.T) {
	cv := &models.CVData{
		Profile:           strings.Repeat("p", 330),
		FurtherExperience: []string{strings.Repeat("f", 90)},
		Languages:         []string{strings.Repeat("l", 55)},
		ITAISkills:        []string{strings.Repeat("s", 75)},
	}

	violations := ValidateCV(cv, "en")
	fields := make(map[string]bool)
	for _, v := range violations {
		fields[v.Field] = true
	}
	assert.True(t, fields["profile"])
	assert.True(t, fields["further_experience"])
	assert.True(t, fields["languages"])
	assert.True(t, fields["it_ai_skills"])
}

func TestValidateCVCountsRunesNotBytes(t *testing.T) {
	// 200 umlauts are 400 bytes but exactly at the limit in characters
	cv := &models.CVData{
		WorkExperience: []models.WorkRole{
			{Bullets: []string{strings.Repeat("ü", 200)}},
		},
	}
	assert.Empty(t, ValidateCV(cv, "en"))
}

func TestFormatViolations(t *testing.T) {
	assert.Empty(t, FormatViolations(nil))

	violations := ValidateRoles([]models.WorkRole{
		{Bullets: []string{strings.Repeat("x", 210)}},
	}, "en")
	text := FormatViolations(violations)
	assert.Contains(t, text, "FIX_VALIDATION:")
	assert.Contains(t, text, "exceeds limit 200")
}
