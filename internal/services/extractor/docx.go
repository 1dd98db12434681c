// Package extractor pulls a CV prefill out of uploaded DOCX files.
// Extraction is heuristic; the result is staged for user confirmation,
// never merged into a session silently.
package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/models"
)

// maxDocxBytes bounds the accepted upload size
const maxDocxBytes = 10 << 20

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9 \-()/]{7,}[0-9]`)
)

// Service implements the DocumentExtractor interface over raw DOCX bytes
type Service struct {
	logger arbor.ILogger
}

// NewService creates a DOCX extractor
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// Extract parses the DOCX, returning a CV prefill and the first embedded
// photo when one exists.
func (s *Service) Extract(ctx context.Context, docx []byte) (*models.CVData, []byte, error) {
	if len(docx) == 0 {
		return nil, nil, fmt.Errorf("empty document")
	}
	if len(docx) > maxDocxBytes {
		return nil, nil, fmt.Errorf("document too large: %d bytes", len(docx))
	}

	reader, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	if err != nil {
		return nil, nil, fmt.Errorf("not a valid docx archive: %w", err)
	}

	var paragraphs []string
	var photo []byte
	for _, file := range reader.File {
		switch {
		case file.Name == "word/document.xml":
			paragraphs, err = parseDocumentXML(file)
			if err != nil {
				return nil, nil, err
			}
		case photo == nil && isPhotoEntry(file.Name):
			photo = readZipEntry(file)
		}
	}
	if len(paragraphs) == 0 {
		return nil, nil, fmt.Errorf("document contains no text")
	}

	cv := buildPrefill(paragraphs)
	s.logger.Debug().
		Int("paragraphs", len(paragraphs)).
		Int("roles", len(cv.WorkExperience)).
		Bool("photo", photo != nil).
		Msg("DOCX prefill extracted")

	return cv, photo, nil
}

func isPhotoEntry(name string) bool {
	if !strings.HasPrefix(name, "word/media/") {
		return false
	}
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") || strings.HasSuffix(lower, ".png")
}

func readZipEntry(file *zip.File) []byte {
	rc, err := file.Open()
	if err != nil {
		return nil
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxDocxBytes))
	if err != nil {
		return nil
	}
	return data
}

// parseDocumentXML walks the WordprocessingML stream and joins the text
// runs of each paragraph.
func parseDocumentXML(file *zip.File) ([]string, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open document.xml: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(io.LimitReader(rc, maxDocxBytes))
	var paragraphs []string
	var current strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed document.xml: %w", err)
		}

		switch el := token.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString(" ")
			case "br":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(el)
			}
		}
	}

	return paragraphs, nil
}

// cvSection labels recognized during the paragraph walk
type cvSection int

const (
	sectionNone cvSection = iota
	sectionProfile
	sectionWork
	sectionEducation
	sectionFurther
	sectionLanguages
	sectionSkills
	sectionInterests
)

// sectionHeadings maps lowercase heading text to sections, covering the
// languages the wizard supports.
var sectionHeadings = map[string]cvSection{
	"profile":                 sectionProfile,
	"summary":                 sectionProfile,
	"profil":                  sectionProfile,
	"work experience":         sectionWork,
	"professional experience": sectionWork,
	"berufserfahrung":         sectionWork,
	"doświadczenie zawodowe":  sectionWork,
	"education":               sectionEducation,
	"ausbildung":              sectionEducation,
	"bildung":                 sectionEducation,
	"wykształcenie":           sectionEducation,
	"further experience":      sectionFurther,
	"weitere erfahrung":       sectionFurther,
	"languages":               sectionLanguages,
	"sprachen":                sectionLanguages,
	"języki":                  sectionLanguages,
	"skills":                  sectionSkills,
	"it skills":               sectionSkills,
	"kenntnisse":              sectionSkills,
	"umiejętności":            sectionSkills,
	"interests":               sectionInterests,
	"interessen":              sectionInterests,
	"zainteresowania":         sectionInterests,
}

// buildPrefill applies the section heuristics over the paragraph stream
func buildPrefill(paragraphs []string) *models.CVData {
	cv := &models.CVData{}
	section := sectionNone
	var currentRole *models.WorkRole

	flushRole := func() {
		if currentRole != nil && currentRole.Title != "" {
			cv.WorkExperience = append(cv.WorkExperience, *currentRole)
		}
		currentRole = nil
	}

	for i, paragraph := range paragraphs {
		lower := strings.ToLower(strings.TrimRight(paragraph, ":"))
		if next, ok := sectionHeadings[lower]; ok {
			flushRole()
			section = next
			continue
		}

		if cv.Email == "" {
			if match := emailPattern.FindString(paragraph); match != "" {
				cv.Email = match
			}
		}
		if cv.Phone == "" {
			if match := phonePattern.FindString(paragraph); match != "" {
				cv.Phone = strings.TrimSpace(match)
			}
		}
		if cv.FullName == "" && i == 0 && section == sectionNone && looksLikeName(paragraph) {
			cv.FullName = paragraph
			continue
		}

		switch section {
		case sectionProfile:
			if cv.Profile == "" {
				cv.Profile = paragraph
			} else {
				cv.Profile += " " + paragraph
			}
		case sectionWork:
			if bullet, ok := stripBullet(paragraph); ok {
				if currentRole != nil {
					currentRole.Bullets = append(currentRole.Bullets, bullet)
				}
				continue
			}
			flushRole()
			currentRole = parseRoleHeader(paragraph)
		case sectionEducation:
			if entry := parseEducation(paragraph); entry != nil {
				cv.Education = append(cv.Education, *entry)
			}
		case sectionFurther:
			if bullet, ok := stripBullet(paragraph); ok {
				cv.FurtherExperience = append(cv.FurtherExperience, bullet)
			} else {
				cv.FurtherExperience = append(cv.FurtherExperience, paragraph)
			}
		case sectionLanguages:
			cv.Languages = append(cv.Languages, splitListItems(paragraph)...)
		case sectionSkills:
			cv.ITAISkills = append(cv.ITAISkills, splitListItems(paragraph)...)
		case sectionInterests:
			cv.Interests = append(cv.Interests, splitListItems(paragraph)...)
		}
	}
	flushRole()

	return cv
}

// looksLikeName accepts short title-cased lines without digits
func looksLikeName(text string) bool {
	if len(text) > 60 || strings.ContainsAny(text, "0123456789@") {
		return false
	}
	words := strings.Fields(text)
	return len(words) >= 2 && len(words) <= 5
}

// stripBullet removes a leading list marker, reporting whether one was found
func stripBullet(text string) (string, bool) {
	for _, marker := range []string{"- ", "• ", "* ", "– ", "· "} {
		if strings.HasPrefix(text, marker) {
			return strings.TrimSpace(text[len(marker):]), true
		}
	}
	return text, false
}

// parseRoleHeader splits "Title | Employer | 2019 - 2024 | Berlin" style
// lines, tolerating fewer fields.
func parseRoleHeader(text string) *models.WorkRole {
	separators := []string{" | ", " – ", ", "}
	var parts []string
	for _, sep := range separators {
		if strings.Contains(text, sep) {
			parts = strings.Split(text, sep)
			break
		}
	}
	if parts == nil {
		parts = []string{text}
	}

	role := &models.WorkRole{Title: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		role.Employer = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		role.DateRange = strings.TrimSpace(parts[2])
	}
	if len(parts) > 3 {
		role.Location = strings.TrimSpace(parts[3])
	}
	return role
}

// parseEducation splits "Degree | Institution | 2014 - 2016" lines
func parseEducation(text string) *models.EducationEntry {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, " | ")
	entry := &models.EducationEntry{Title: strings.TrimSpace(parts[0])}
	if len(parts) > 1 {
		entry.Institution = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		entry.DateRange = strings.TrimSpace(parts[2])
	}
	return entry
}

// splitListItems breaks comma or bullet separated lines into items
func splitListItems(text string) []string {
	if item, ok := stripBullet(text); ok {
		return []string{item}
	}
	var items []string
	for _, part := range strings.Split(text, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
