package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashedCV() *CVData {
	return &CVData{
		FullName: "Anna Kowalska",
		Email:    "anna@example.com",
		Phone:    "+48 123 123 123",
		Profile:  "Backend engineer.",
		WorkExperience: []WorkRole{
			{Title: "Backend Engineer", Employer: "Acme GmbH", Bullets: []string{"Designed payment services"}},
		},
		Education: []EducationEntry{
			{Title: "MSc Computer Science", Institution: "Warsaw University of Technology"},
		},
		ITAISkills: []string{"Go"},
	}
}

func TestSectionHashesStable(t *testing.T) {
	cv := hashedCV()

	first := cv.SectionHashes()
	second := cv.SectionHashes()
	assert.Equal(t, first, second)

	for name, hash := range first {
		assert.Len(t, hash, 64, name)
	}
}

func TestSectionHashesChangeWithContent(t *testing.T) {
	cv := hashedCV()
	before := cv.SectionHashes()

	cv.Profile = "Platform engineer."
	after := cv.SectionHashes()

	assert.NotEqual(t, before[SectionProfile], after[SectionProfile])
	assert.Equal(t, before[SectionWork], after[SectionWork])
	assert.Equal(t, before[SectionContact], after[SectionContact])
}

func TestRolesSig(t *testing.T) {
	cv := hashedCV()
	sig := cv.RolesSig()
	require.Len(t, sig, 64)
	assert.Equal(t, sig, cv.RolesSig())

	cv.WorkExperience[0].Bullets = append(cv.WorkExperience[0].Bullets, "Improved pipelines")
	assert.NotEqual(t, sig, cv.RolesSig())
}
