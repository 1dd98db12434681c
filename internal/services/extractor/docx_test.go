package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
)

// buildDocx assembles a minimal WordprocessingML archive from paragraphs
func buildDocx(t *testing.T, paragraphs []string, photo []byte) []byte {
	t.Helper()

	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	doc, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = doc.Write([]byte(body.String()))
	require.NoError(t, err)
	if photo != nil {
		img, err := zw.Create("word/media/image1.jpg")
		require.NoError(t, err)
		_, err = img.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractFullDocument(t *testing.T) {
	docx := buildDocx(t, []string{
		"Anna Kowalska",
		"anna@example.com | +48 123 123 123",
		"Profile",
		"Backend engineer with ten years of experience.",
		"Work Experience",
		"Backend Engineer | Acme GmbH | 2019 - 2024 | Berlin",
		"- Designed distributed payment services in Go",
		"- Improved deployment pipelines",
		"Education",
		"MSc Computer Science | Warsaw University of Technology | 2014 - 2016",
		"Languages",
		"English, German, Polish",
		"Skills",
		"Go, Kubernetes, PostgreSQL",
	}, []byte("jpeg-bytes"))

	svc := NewService(common.GetLogger())
	cv, photo, err := svc.Extract(context.Background(), docx)
	require.NoError(t, err)

	assert.Equal(t, "Anna Kowalska", cv.FullName)
	assert.Equal(t, "anna@example.com", cv.Email)
	assert.Equal(t, "+48 123 123 123", cv.Phone)
	assert.Equal(t, "Backend engineer with ten years of experience.", cv.Profile)

	require.Len(t, cv.WorkExperience, 1)
	role := cv.WorkExperience[0]
	assert.Equal(t, "Backend Engineer", role.Title)
	assert.Equal(t, "Acme GmbH", role.Employer)
	assert.Equal(t, "2019 - 2024", role.DateRange)
	assert.Equal(t, "Berlin", role.Location)
	assert.Len(t, role.Bullets, 2)

	require.Len(t, cv.Education, 1)
	assert.Equal(t, "Warsaw University of Technology", cv.Education[0].Institution)

	assert.Equal(t, []string{"English", "German", "Polish"}, cv.Languages)
	assert.Equal(t, []string{"Go", "Kubernetes", "PostgreSQL"}, cv.ITAISkills)
	assert.Equal(t, []byte("jpeg-bytes"), photo)
}

func TestExtractGermanHeadings(t *testing.T) {
	docx := buildDocx(t, []string{
		"Max Mustermann",
		"Berufserfahrung",
		"Entwickler | Initech | 2020 - 2024",
		"- Entwicklung von Backend-Diensten",
		"Sprachen",
		"Deutsch, Englisch",
	}, nil)

	svc := NewService(common.GetLogger())
	cv, photo, err := svc.Extract(context.Background(), docx)
	require.NoError(t, err)

	assert.Equal(t, "Max Mustermann", cv.FullName)
	require.Len(t, cv.WorkExperience, 1)
	assert.Equal(t, "Initech", cv.WorkExperience[0].Employer)
	assert.Equal(t, []string{"Deutsch", "Englisch"}, cv.Languages)
	assert.Nil(t, photo)
}

func TestExtractRejectsGarbage(t *testing.T) {
	svc := NewService(common.GetLogger())

	_, _, err := svc.Extract(context.Background(), nil)
	assert.Error(t, err)

	_, _, err = svc.Extract(context.Background(), []byte("not a zip archive"))
	assert.Error(t, err)
}
