package wizard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/validation"
)

// pdfContentSig fingerprints everything that affects the rendered PDF
func (o *Orchestrator) pdfContentSig(t *turn) string {
	data, _ := json.Marshal(t.cv)
	return common.FingerprintParts(t.meta.TargetLanguage, t.meta.PhotoBlobName, common.SHA256Hex(data))
}

// handleRequestGeneratePDF renders the CV, with an idempotency latch:
// a repeat request over unchanged content returns the cached artifact
// byte for byte and spends no rendering work.
func (o *Orchestrator) handleRequestGeneratePDF(t *turn) error {
	readiness := validation.ComputeReadiness(t.cv, t.meta)
	if !readiness.CanGenerate {
		t.text = "The CV is not ready to generate: " + strings.Join(readiness.Reasons, ", ") + "."
		return nil
	}

	sig := o.pdfContentSig(t)
	latched := o.config.Wizard.ExecutionLatch && !o.config.Wizard.AlwaysRegeneratePDF

	if latched && t.meta.PDFContentSig == sig && t.meta.CurrentPDFRef != "" {
		ref, ok := t.meta.PDFRefs[t.meta.CurrentPDFRef]
		if ok {
			cached, err := o.storage.BlobStorage().Get(t.ctx, ref.Container, ref.BlobName)
			if err == nil {
				t.pdfBytes = cached
				t.filename = ref.DownloadName
				t.meta.PDFGenerated = true
				t.meta.PDFFailed = false
				t.debug = "pdf: latch hit, cached artifact returned"
				return o.afterPDFGenerated(t)
			}
		}
	}

	var photo []byte
	if t.meta.PhotoBlobName != "" {
		photo, _ = o.storage.BlobStorage().Get(t.ctx, interfaces.ContainerPhotos, t.meta.PhotoBlobName)
	}

	pdf, err := o.renderer.RenderCV(t.ctx, t.cv, t.meta.TargetLanguage, photo)
	if err != nil {
		t.meta.PDFFailed = true
		t.meta.PDFGenerated = false
		t.text = "PDF generation failed. Trim long sections and try again."
		return fmt.Errorf("cv render failed: %w", err)
	}

	downloadName := pdfDownloadName(t.cv.FullName, t.meta.TargetLanguage, "cv")
	blobName := t.session.ID + "/" + sig[:16] + ".pdf"
	if err := o.storage.BlobStorage().Put(t.ctx, interfaces.ContainerPDFs, blobName, pdf); err != nil {
		o.logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("PDF blob upload failed")
	}

	if t.meta.PDFRefs == nil {
		t.meta.PDFRefs = make(map[string]models.PDFRef)
	}
	t.meta.PDFRefs[sig] = models.PDFRef{
		Kind:         "cv",
		Container:    interfaces.ContainerPDFs,
		BlobName:     blobName,
		DownloadName: downloadName,
		CreatedAt:    time.Now().UTC(),
	}
	t.meta.CurrentPDFRef = sig
	t.meta.PDFContentSig = sig
	t.meta.PDFGenerated = true
	t.meta.PDFFailed = false

	t.pdfBytes = pdf
	t.filename = downloadName

	o.logger.Info().
		Str("session_id", t.session.ID).
		Str("blob_name", blobName).
		Int("size_bytes", len(pdf)).
		Msg("CV PDF generated")

	return o.afterPDFGenerated(t)
}

// afterPDFGenerated routes to the cover letter offer when it is enabled
// and the target language is supported, otherwise back to review.
func (o *Orchestrator) afterPDFGenerated(t *turn) error {
	lang := t.meta.TargetLanguage
	if o.config.Wizard.EnableCoverLetter && o.gateway.Available() && (lang == "en" || lang == "de") {
		t.meta.PushStage(models.StageCoverLetterReview)
		t.text = "Your CV is ready. Would you like a matching cover letter?"
		return nil
	}
	t.meta.PushStage(models.StageReviewFinal)
	t.text = "Your CV is ready to download."
	return nil
}

// handleDownloadPDF returns the current artifact's bytes
func (o *Orchestrator) handleDownloadPDF(t *turn) error {
	if t.meta.CurrentPDFRef == "" {
		t.text = "No PDF has been generated yet."
		return fmt.Errorf("no pdf available")
	}
	ref, ok := t.meta.PDFRefs[t.meta.CurrentPDFRef]
	if !ok {
		t.text = "No PDF has been generated yet."
		return fmt.Errorf("pdf ref %s missing", t.meta.CurrentPDFRef)
	}

	pdf, err := o.storage.BlobStorage().Get(t.ctx, ref.Container, ref.BlobName)
	if err != nil {
		t.text = "The PDF is no longer available. Please generate it again."
		return fmt.Errorf("pdf blob fetch failed: %w", err)
	}

	t.pdfBytes = pdf
	t.filename = ref.DownloadName
	t.text = "Here is your PDF."
	return nil
}

// pdfDownloadName builds a filesystem-safe download filename
func pdfDownloadName(fullName, language, kind string) string {
	name := strings.TrimSpace(fullName)
	if name == "" {
		name = "cv"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	safe := strings.Trim(b.String(), "_")
	if safe == "" {
		safe = "cv"
	}
	return fmt.Sprintf("%s_%s_%s_%s.pdf", safe, strings.ToUpper(language), kind, time.Now().UTC().Format("20060102"))
}
