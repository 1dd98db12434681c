// Package pdf renders canonical CV records and cover letters to PDF.
// The CV layout enforces the page contract: a CV that does not fit the
// configured page count is an error, never a silent truncation.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/yuin/goldmark"
)

// Layout constants in millimeters on A4
const (
	pageMargin   = 18.0
	photoWidth   = 32.0
	photoHeight  = 40.0
	bodyFontSize = 10.0
	lineHeight   = 5.0
)

// sectionLabels localizes the CV section headings
var sectionLabels = map[string]map[string]string{
	"en": {
		"profile":   "Profile",
		"work":      "Work Experience",
		"education": "Education",
		"further":   "Further Experience",
		"languages": "Languages",
		"it_ai":     "IT & AI Skills",
		"technical": "Technical & Operational Skills",
		"interests": "Interests",
	},
	"de": {
		"profile":   "Profil",
		"work":      "Berufserfahrung",
		"education": "Ausbildung",
		"further":   "Weitere Erfahrung",
		"languages": "Sprachen",
		"it_ai":     "IT- und KI-Kenntnisse",
		"technical": "Technische und operative Kenntnisse",
		"interests": "Interessen",
	},
	"pl": {
		"profile":   "Profil",
		"work":      "Doświadczenie zawodowe",
		"education": "Wykształcenie",
		"further":   "Dodatkowe doświadczenie",
		"languages": "Języki",
		"it_ai":     "Umiejętności IT i AI",
		"technical": "Umiejętności techniczne i operacyjne",
		"interests": "Zainteresowania",
	},
}

// Renderer implements the PDFRenderer interface with fpdf
type Renderer struct {
	config *common.PDFConfig
	logger arbor.ILogger
}

// NewRenderer creates a renderer honoring the page contract in config
func NewRenderer(config *common.PDFConfig, logger arbor.ILogger) *Renderer {
	return &Renderer{config: config, logger: logger}
}

func label(language, key string) string {
	if labels, ok := sectionLabels[language]; ok {
		if text, ok := labels[key]; ok {
			return text
		}
	}
	return sectionLabels["en"][key]
}

// codepage picks the single-byte encoding for the target language
func codepage(language string) string {
	if language == "pl" {
		return "cp1250"
	}
	return "cp1252"
}

// RenderCV renders the CV to PDF bytes, enforcing the page contract
func (r *Renderer) RenderCV(ctx context.Context, cv *models.CVData, language string, photo []byte) ([]byte, error) {
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor(codepage(language))

	r.renderHeader(doc, tr, cv, photo)

	if cv.Profile != "" {
		r.sectionTitle(doc, tr, label(language, "profile"))
		doc.SetFont("Helvetica", "", bodyFontSize)
		doc.MultiCell(0, lineHeight, tr(cv.Profile), "", "L", false)
		doc.Ln(2)
	}

	if len(cv.WorkExperience) > 0 {
		r.sectionTitle(doc, tr, label(language, "work"))
		for _, role := range cv.WorkExperience {
			r.renderRole(doc, tr, role)
		}
	}

	if len(cv.Education) > 0 {
		r.sectionTitle(doc, tr, label(language, "education"))
		for _, entry := range cv.Education {
			doc.SetFont("Helvetica", "B", bodyFontSize)
			doc.MultiCell(0, lineHeight, tr(entry.Title), "", "L", false)
			doc.SetFont("Helvetica", "", bodyFontSize)
			line := entry.Institution
			if entry.DateRange != "" {
				line += ", " + entry.DateRange
			}
			doc.MultiCell(0, lineHeight, tr(line), "", "L", false)
			for _, detail := range entry.Details {
				doc.MultiCell(0, lineHeight, tr("- "+detail), "", "L", false)
			}
			doc.Ln(1)
		}
	}

	r.renderItemSection(doc, tr, label(language, "further"), cv.FurtherExperience, true)
	r.renderItemSection(doc, tr, label(language, "it_ai"), cv.ITAISkills, false)
	r.renderItemSection(doc, tr, label(language, "technical"), cv.TechnicalOperationalSkills, false)
	r.renderItemSection(doc, tr, label(language, "languages"), cv.Languages, false)
	r.renderItemSection(doc, tr, label(language, "interests"), cv.Interests, false)

	output, err := r.close(doc)
	if err != nil {
		return nil, err
	}

	pages, err := pageCount(output)
	if err != nil {
		return nil, fmt.Errorf("failed to verify page count: %w", err)
	}
	if pages > r.config.MaxPages {
		return nil, fmt.Errorf("cv rendered to %d pages, limit is %d; shorten the content", pages, r.config.MaxPages)
	}

	r.logger.Debug().
		Int("pages", pages).
		Int("size_bytes", len(output)).
		Str("language", language).
		Msg("CV rendered")
	return output, nil
}

// renderHeader draws the name, contact block, and optional photo
func (r *Renderer) renderHeader(doc *fpdf.Fpdf, tr func(string) string, cv *models.CVData, photo []byte) {
	textWidth := 0.0
	if len(photo) > 0 {
		imageType := "JPG"
		if bytes.HasPrefix(photo, []byte("\x89PNG")) {
			imageType = "PNG"
		}
		opts := fpdf.ImageOptions{ImageType: imageType}
		doc.RegisterImageOptionsReader("cv_photo", opts, bytes.NewReader(photo))
		pageWidth, _ := doc.GetPageSize()
		doc.ImageOptions("cv_photo", pageWidth-pageMargin-photoWidth, pageMargin, photoWidth, photoHeight, false, opts, 0, "")
		textWidth = -(photoWidth + 6)
	}

	doc.SetFont("Helvetica", "B", 18)
	doc.CellFormat(textWidth, 9, tr(cv.FullName), "", 1, "L", false, 0, "")

	doc.SetFont("Helvetica", "", bodyFontSize)
	contact := []string{cv.Email, cv.Phone}
	contact = append(contact, cv.AddressLines...)
	for _, line := range contact {
		if line != "" {
			doc.CellFormat(textWidth, lineHeight, tr(line), "", 1, "L", false, 0, "")
		}
	}
	doc.Ln(4)
}

func (r *Renderer) sectionTitle(doc *fpdf.Fpdf, tr func(string) string, title string) {
	doc.SetFont("Helvetica", "B", 12)
	doc.CellFormat(0, 7, tr(title), "B", 1, "L", false, 0, "")
	doc.Ln(1.5)
}

func (r *Renderer) renderRole(doc *fpdf.Fpdf, tr func(string) string, role models.WorkRole) {
	doc.SetFont("Helvetica", "B", bodyFontSize)
	doc.MultiCell(0, lineHeight, tr(role.Title), "", "L", false)

	doc.SetFont("Helvetica", "I", bodyFontSize)
	var meta []string
	for _, part := range []string{role.Employer, role.Location, role.DateRange} {
		if part != "" {
			meta = append(meta, part)
		}
	}
	if len(meta) > 0 {
		doc.MultiCell(0, lineHeight, tr(strings.Join(meta, " | ")), "", "L", false)
	}

	doc.SetFont("Helvetica", "", bodyFontSize)
	for _, bullet := range role.Bullets {
		doc.MultiCell(0, lineHeight, tr("- "+bullet), "", "L", false)
	}
	doc.Ln(1.5)
}

// renderItemSection draws a list section, bulleted or comma-joined
func (r *Renderer) renderItemSection(doc *fpdf.Fpdf, tr func(string) string, title string, items []string, bulleted bool) {
	if len(items) == 0 {
		return
	}
	r.sectionTitle(doc, tr, title)
	doc.SetFont("Helvetica", "", bodyFontSize)
	if bulleted {
		for _, item := range items {
			doc.MultiCell(0, lineHeight, tr("- "+item), "", "L", false)
		}
	} else {
		doc.MultiCell(0, lineHeight, tr(strings.Join(items, ", ")), "", "L", false)
	}
	doc.Ln(2)
}

// RenderCoverLetter renders a markdown letter on the CV's letterhead
func (r *Renderer) RenderCoverLetter(ctx context.Context, markdown string, cv *models.CVData) ([]byte, error) {
	var html bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &html); err != nil {
		return nil, fmt.Errorf("failed to parse cover letter markdown: %w", err)
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("cp1252")

	doc.SetFont("Helvetica", "B", 14)
	doc.CellFormat(0, 8, tr(cv.FullName), "", 1, "L", false, 0, "")
	doc.SetFont("Helvetica", "", bodyFontSize)
	for _, line := range []string{cv.Email, cv.Phone} {
		if line != "" {
			doc.CellFormat(0, lineHeight, tr(line), "", 1, "L", false, 0, "")
		}
	}
	doc.Ln(6)

	doc.SetFont("Helvetica", "", bodyFontSize)
	writer := doc.HTMLBasicNew()
	writer.Write(lineHeight, tr(simplifyHTML(html.String())))

	return r.close(doc)
}

// simplifyHTML reduces goldmark output to the tag set the basic HTML
// writer understands, mapping block boundaries to line breaks.
func simplifyHTML(html string) string {
	replacer := strings.NewReplacer(
		"<p>", "", "</p>", "<br><br>",
		"<h1>", "<b>", "</h1>", "</b><br><br>",
		"<h2>", "<b>", "</h2>", "</b><br>",
		"<h3>", "<b>", "</h3>", "</b><br>",
		"<strong>", "<b>", "</strong>", "</b>",
		"<em>", "<i>", "</em>", "</i>",
		"<ul>", "<br>", "</ul>", "<br>",
		"<li>", "- ", "</li>", "<br>",
		"&quot;", "\"", "&amp;", "&", "&#39;", "'",
		"&lt;", "<", "&gt;", ">",
	)
	return strings.TrimSpace(replacer.Replace(html))
}

// pageCount reads the rendered bytes back through pdfcpu
func pageCount(pdfBytes []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadContext(bytes.NewReader(pdfBytes), conf)
	if err != nil {
		return 0, err
	}
	// PageCount is only populated during validation
	if err := api.ValidateContext(pdfCtx); err != nil {
		return 0, err
	}
	return pdfCtx.PageCount, nil
}

func (r *Renderer) close(doc *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output failed: %w", err)
	}
	return buf.Bytes(), nil
}
