package wizard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

var coverLetterSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"markdown": {"type": "string"}
	},
	"required": ["markdown"]
}`)

// handleCoverLetterPreview drafts a cover letter in markdown from the
// tailored CV and the job reference.
func (o *Orchestrator) handleCoverLetterPreview(t *turn) error {
	if !o.gateway.Available() {
		t.text = "Cover letter drafting is not available right now."
		return fmt.Errorf("llm unavailable")
	}

	var out struct {
		Markdown string `json:"markdown"`
	}
	err := o.gateway.CallSchema(t.ctx, interfaces.SchemaCall{
		Stage: "cover_letter",
		SystemPrompt: "Write a one-page cover letter in markdown. " +
			"Use only facts from the CV and the job reference. " +
			"Address the company when known, keep a professional tone, and write in the target language.",
		UserText: o.composeCoverLetterPrompt(t),
		Schema:   coverLetterSchema,
		Trace:    t.trace,
	}, &out)
	if err != nil {
		t.text = "Cover letter drafting failed. You can try again or go back to your CV."
		return err
	}
	if strings.TrimSpace(out.Markdown) == "" {
		t.text = "Cover letter drafting produced no content. Please try again."
		return fmt.Errorf("empty cover letter draft")
	}

	t.meta.CoverLetter = &models.CoverLetterDraft{
		Markdown:  out.Markdown,
		Language:  t.meta.TargetLanguage,
		CreatedAt: time.Now().UTC(),
	}
	t.text = "Here is a cover letter draft:\n\n" + out.Markdown
	return nil
}

func (o *Orchestrator) composeCoverLetterPrompt(t *turn) string {
	var b strings.Builder

	fmt.Fprintf(&b, "TARGET_LANGUAGE: %s\n\n", t.meta.TargetLanguage)

	if t.meta.JobReference != nil {
		b.WriteString("JOB_REFERENCE:\n")
		b.WriteString(t.meta.JobReference.Summary())
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "CANDIDATE: %s\n", t.cv.FullName)
	if t.cv.Profile != "" {
		fmt.Fprintf(&b, "PROFILE: %s\n", t.cv.Profile)
	}
	b.WriteString("WORK_EXPERIENCE:\n")
	for _, role := range t.cv.WorkExperience {
		fmt.Fprintf(&b, "%s | %s | %s\n", role.Title, role.Employer, role.DateRange)
		for _, bullet := range role.Bullets {
			fmt.Fprintf(&b, "  - %s\n", bullet)
		}
	}
	if len(t.cv.ITAISkills) > 0 {
		fmt.Fprintf(&b, "SKILLS: %s\n", strings.Join(t.cv.ITAISkills, ", "))
	}

	return b.String()
}

// handleCoverLetterGenerate renders the drafted letter to PDF
func (o *Orchestrator) handleCoverLetterGenerate(t *turn) error {
	if t.meta.CoverLetter == nil {
		t.text = "There is no cover letter draft yet. Preview one first."
		return fmt.Errorf("no cover letter draft")
	}

	pdf, err := o.renderer.RenderCoverLetter(t.ctx, t.meta.CoverLetter.Markdown, t.cv)
	if err != nil {
		t.text = "Cover letter PDF generation failed. You can shorten the draft and try again."
		return fmt.Errorf("cover letter render failed: %w", err)
	}

	sig := common.SHA256Hex([]byte(t.meta.CoverLetter.Markdown))
	blobName := t.session.ID + "/" + sig[:16] + "_letter.pdf"
	if err := o.storage.BlobStorage().Put(t.ctx, interfaces.ContainerPDFs, blobName, pdf); err != nil {
		o.logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("Cover letter blob upload failed")
	}

	downloadName := pdfDownloadName(t.cv.FullName, t.meta.TargetLanguage, "cover_letter")
	if t.meta.PDFRefs == nil {
		t.meta.PDFRefs = make(map[string]models.PDFRef)
	}
	t.meta.PDFRefs[sig] = models.PDFRef{
		Kind:         "cover_letter",
		Container:    interfaces.ContainerPDFs,
		BlobName:     blobName,
		DownloadName: downloadName,
		CreatedAt:    time.Now().UTC(),
	}

	t.pdfBytes = pdf
	t.filename = downloadName
	t.meta.PushStage(models.StageReviewFinal)
	t.text = "Your cover letter is ready to download."
	return nil
}

// handleCoverLetterBack declines the cover letter and returns to review
func (o *Orchestrator) handleCoverLetterBack(t *turn) error {
	t.meta.PushStage(models.StageReviewFinal)
	t.text = o.stagePrompt(models.StageReviewFinal)
	return nil
}
