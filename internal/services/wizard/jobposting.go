package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/ternarybob/scriba/internal/services/validation"
)

// maxJobPostingChars caps stored posting text
const maxJobPostingChars = 20000

// handleJobOfferPaste opens the paste form
func (o *Orchestrator) handleJobOfferPaste(t *turn) error {
	t.meta.PushStage(models.StageJobPostingPaste)
	t.text = o.stagePrompt(models.StageJobPostingPaste)
	return nil
}

// handleJobOfferAnalyze gates and analyzes the submitted posting text
func (o *Orchestrator) handleJobOfferAnalyze(t *turn) error {
	var payload struct {
		JobPostingText string `json:"job_posting_text"`
		JobPostingURL  string `json:"job_posting_url"`
	}
	if len(t.payload) > 0 {
		if err := json.Unmarshal(t.payload, &payload); err != nil {
			return fmt.Errorf("invalid job posting payload: %w", err)
		}
	}

	text := payload.JobPostingText
	if text == "" && payload.JobPostingURL != "" {
		fetched, err := o.fetchJobPosting(t.ctx, payload.JobPostingURL)
		if err != nil {
			t.meta.JobPostingURL = payload.JobPostingURL
			t.meta.JobFetchStatus = models.JobFetchStatusFailed
			t.text = "I could not fetch that URL. Paste the posting text instead."
			return fmt.Errorf("job posting fetch failed: %w", err)
		}
		t.meta.JobPostingURL = payload.JobPostingURL
		t.meta.JobFetchStatus = models.JobFetchStatusOK
		text = fetched
	}
	if text == "" {
		text = t.message
	}

	return o.acceptJobPostingText(t, text)
}

// acceptJobPostingText runs the job-posting gate and, on success, the
// LLM extraction into a job reference.
func (o *Orchestrator) acceptJobPostingText(t *turn, text string) error {
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > maxJobPostingChars {
		text = string(runes[:maxJobPostingChars])
	}

	ok, reason := validation.CheckJobPosting(text)
	if !ok {
		t.meta.JobInputStatus = models.JobInputStatusInvalid
		t.meta.JobPostingInvalidDraft = text
		t.meta.PushStage(models.StageJobPosting)
		t.text = jobRejectionText(reason)
		return nil
	}

	t.meta.JobPostingText = text
	t.meta.JobInputStatus = models.JobInputStatusAccepted
	t.meta.JobPostingInvalidDraft = ""

	if err := o.extractJobReference(t); err != nil {
		o.logger.Warn().Err(err).Str("session_id", t.session.ID).Msg("Job reference extraction failed")
		t.text = "Job posting saved. I could not summarize it automatically, but tailoring will still use the full text."
	} else {
		t.text = fmt.Sprintf("Job posting saved: %s. Let's tailor your work experience.", t.meta.JobReference.Summary())
	}

	t.meta.PushStage(models.StageWorkExperience)
	return nil
}

// extractJobReference asks the LLM for the structured job reference
func (o *Orchestrator) extractJobReference(t *turn) error {
	if !o.gateway.Available() {
		return fmt.Errorf("llm unavailable")
	}

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"title": {"type": "string"},
			"company": {"type": "string"},
			"seniority": {"type": "string"},
			"must_haves": {"type": "array", "items": {"type": "string"}},
			"nice_to_haves": {"type": "array", "items": {"type": "string"}},
			"language": {"type": "string"}
		},
		"required": ["title"]
	}`)

	var ref models.JobReference
	err := o.gateway.CallSchema(t.ctx, interfaces.SchemaCall{
		Stage:        "job_reference",
		SystemPrompt: "Extract the job reference from the posting. Use only facts stated in the text.",
		UserText:     t.meta.JobPostingText,
		Schema:       schema,
		Trace:        t.trace,
	}, &ref)
	if err != nil {
		return err
	}

	t.meta.JobReference = &ref
	return nil
}

// handleJobOfferCancel leaves the paste form
func (o *Orchestrator) handleJobOfferCancel(t *turn) error {
	t.meta.PushStage(models.StageJobPosting)
	t.text = o.stagePrompt(models.StageJobPosting)
	return nil
}

// handleJobOfferSkip proceeds without a posting, unless configuration
// requires one.
func (o *Orchestrator) handleJobOfferSkip(t *turn) error {
	if o.config.Wizard.RequireJobText {
		t.text = "A job posting is required before tailoring. Please paste one."
		return fmt.Errorf("job posting required by configuration")
	}

	t.meta.JobInputStatus = models.JobInputStatusSkipped
	t.meta.JobPostingInvalidDraft = ""
	t.meta.PushStage(models.StageWorkExperience)
	t.text = "Skipping the job posting. Tailoring will be generic."
	return nil
}

// handleJobOfferInvalidRetry reopens the paste form with the rejected
// draft for correction.
func (o *Orchestrator) handleJobOfferInvalidRetry(t *turn) error {
	t.meta.PushStage(models.StageJobPostingPaste)
	t.text = "Paste the corrected job posting text."
	return nil
}

func jobRejectionText(reason string) string {
	switch reason {
	case validation.JobReasonTooShort:
		return "That text is too short to be a job posting. Please paste the full posting."
	case validation.JobReasonLowTextRatio:
		return "That does not look like readable text. Please paste the posting as plain text."
	case validation.JobReasonLooksLikeNotes:
		return "That looks like your own notes rather than a job posting. Please paste the employer's posting."
	}
	return "I could not accept that job posting text."
}

// fetchJobPosting downloads a posting URL and converts the page body to
// markdown text.
func (o *Orchestrator) fetchJobPosting(ctx context.Context, url string) (string, error) {
	client := &http.Client{Timeout: o.config.URLFetchTimeout()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid job posting url: %w", err)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("job posting fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("job posting fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read job posting body: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("failed to parse job posting html: %w", err)
	}
	doc.Find("script, style, nav, header, footer").Remove()

	html, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(html) == "" {
		html = string(body)
	}

	converter := md.NewConverter(url, true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert job posting to markdown: %w", err)
	}

	return strings.TrimSpace(markdown), nil
}
