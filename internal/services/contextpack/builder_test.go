package contextpack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/models"
)

func packCV() *models.CVData {
	return &models.CVData{
		FullName: "Jane Doe",
		Email:    "jane@example.com",
		Phone:    "+1 555 0100",
		Profile:  "Backend engineer with a focus on payments.",
		WorkExperience: []models.WorkRole{
			{Title: "Engineer", Employer: "Acme", DateRange: "2019-2024", Location: "Berlin", Bullets: []string{"Built payment services"}},
		},
		Education: []models.EducationEntry{
			{Title: "BSc", Institution: "TU Berlin", DateRange: "2015-2019"},
		},
		ITAISkills: []string{"Go", "PostgreSQL"},
	}
}

func packMetadata() *models.Metadata {
	meta := models.NewMetadata()
	meta.TargetLanguage = "en"
	meta.JobPostingText = "We are hiring a backend engineer for our payments team."
	return &meta
}

func TestBuildPreparationOmitsPDFAndPosting(t *testing.T) {
	builder := NewBuilder(false, common.GetLogger())
	meta := packMetadata()
	meta.CurrentPDFRef = "pdf_abc123"

	pack, err := builder.Build(PhasePreparation, packCV(), meta, "", 0)
	require.NoError(t, err)
	assert.NotContains(t, pack.Text, "pdf_abc123")
	assert.NotContains(t, pack.Sections, "job_posting")
	assert.Contains(t, pack.Sections, models.SectionContact)
	assert.Contains(t, pack.Text, "Jane Doe")
	assert.Contains(t, pack.Text, "TARGET_LANGUAGE: en")
}

func TestBuildExecutionLeadsWithWorkAndIncludesJobReference(t *testing.T) {
	builder := NewBuilder(false, common.GetLogger())
	meta := packMetadata()
	meta.JobReference = &models.JobReference{
		Title:   "Senior Backend Engineer",
		Company: "PayCo",
	}

	pack, err := builder.Build(PhaseExecution, packCV(), meta, "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, pack.Sections)
	assert.Equal(t, "job_reference", pack.Sections[0])
	assert.Equal(t, models.SectionWork, pack.Sections[1])
	assert.Contains(t, pack.Text, "Senior Backend Engineer")
	assert.Contains(t, pack.Sections, "job_posting")
}

func TestBuildRendersEducationDetails(t *testing.T) {
	builder := NewBuilder(false, common.GetLogger())
	cv := packCV()
	cv.Education[0].Details = []string{"Thesis on stream processing", "Graduated with honors"}

	pack, err := builder.Build(PhasePreparation, cv, packMetadata(), "", 0)
	require.NoError(t, err)
	assert.Contains(t, pack.Text, "BSc, TU Berlin (2015-2019)")
	assert.Contains(t, pack.Text, "Thesis on stream processing")
	assert.Contains(t, pack.Text, "Graduated with honors")
}

func TestBuildRespectsCharBudget(t *testing.T) {
	builder := NewBuilder(false, common.GetLogger())
	cv := packCV()
	cv.Profile = strings.Repeat("profile text ", 100)

	pack, err := builder.Build(PhaseConfirmation, cv, packMetadata(), "", 400)
	require.NoError(t, err)
	assert.True(t, pack.Truncated)
	assert.LessOrEqual(t, len(pack.Text), 400+len("TARGET_LANGUAGE: en\n\n"))
}

func TestBuildUnknownPhase(t *testing.T) {
	builder := NewBuilder(false, common.GetLogger())
	_, err := builder.Build(Phase("bogus"), packCV(), packMetadata(), "", 0)
	assert.Error(t, err)
}

func TestBuildDeltaModeIncludesOnlyChangedSections(t *testing.T) {
	builder := NewBuilder(true, common.GetLogger())
	cv := packCV()
	meta := packMetadata()
	meta.JobPostingText = ""

	// Record hashes, then change only the profile
	meta.SectionHashesPrev = cv.SectionHashes()
	cv.Profile = "Rewritten profile line."

	pack, err := builder.Build(PhaseConfirmation, cv, meta, "", 0)
	require.NoError(t, err)
	assert.Contains(t, pack.Sections, models.SectionProfile)
	assert.NotContains(t, pack.Sections, models.SectionContact)
	assert.NotContains(t, pack.Sections, models.SectionWork)
}

func TestBuildDeltaModeWithoutPreviousHashesIncludesEverything(t *testing.T) {
	builder := NewBuilder(true, common.GetLogger())

	pack, err := builder.Build(PhaseConfirmation, packCV(), packMetadata(), "", 0)
	require.NoError(t, err)
	assert.Contains(t, pack.Sections, models.SectionContact)
	assert.Contains(t, pack.Sections, models.SectionWork)
}
