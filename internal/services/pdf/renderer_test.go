package pdf

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/models"
)

func testRenderer(maxPages int) *Renderer {
	return NewRenderer(&common.PDFConfig{MaxPages: maxPages}, common.GetLogger())
}

func sampleCV() *models.CVData {
	return &models.CVData{
		FullName: "Anna Kowalska",
		Email:    "anna@example.com",
		Phone:    "+48 123 123 123",
		Profile:  "Backend engineer with ten years of experience building payment systems.",
		WorkExperience: []models.WorkRole{
			{
				Title:     "Backend Engineer",
				Employer:  "Acme GmbH",
				DateRange: "2019 - 2024",
				Location:  "Berlin",
				Bullets: []string{
					"Designed distributed payment services in Go",
					"Improved deployment pipelines",
				},
			},
		},
		Education: []models.EducationEntry{
			{Title: "MSc Computer Science", Institution: "Warsaw University of Technology", DateRange: "2014 - 2016"},
		},
		ITAISkills: []string{"Go", "Kubernetes"},
		Languages:  []string{"English", "Polish"},
	}
}

func TestRenderCVProducesPDF(t *testing.T) {
	output, err := testRenderer(2).RenderCV(context.Background(), sampleCV(), "en", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(output), "%PDF-"))

	pages, err := pageCount(output)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestRenderCVLocalizedHeadings(t *testing.T) {
	for _, language := range []string{"en", "de", "pl"} {
		output, err := testRenderer(2).RenderCV(context.Background(), sampleCV(), language, nil)
		require.NoError(t, err, language)
		assert.NotEmpty(t, output, language)
	}
}

func TestRenderCVRejectsOverflow(t *testing.T) {
	cv := sampleCV()
	for i := 0; i < 30; i++ {
		role := cv.WorkExperience[0]
		role.Title = fmt.Sprintf("Backend Engineer %d", i)
		cv.WorkExperience = append(cv.WorkExperience, role)
	}

	_, err := testRenderer(2).RenderCV(context.Background(), cv, "en", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pages")
}

func TestRenderCoverLetter(t *testing.T) {
	markdown := "Dear Hiring Team,\n\nI am writing to apply for the **Backend Engineer** role.\n\nBest regards,\nAnna"
	output, err := testRenderer(2).RenderCoverLetter(context.Background(), markdown, sampleCV())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(output), "%PDF-"))
}
