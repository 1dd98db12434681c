// -----------------------------------------------------------------------
// Package contextpack projects session state into bounded, phase-scoped
// LLM input windows
// -----------------------------------------------------------------------

package contextpack

import (
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/models"
)

// Phase selects the projection shape
type Phase string

const (
	PhasePreparation  Phase = "preparation"
	PhaseConfirmation Phase = "confirmation"
	PhaseExecution    Phase = "execution"
)

// DefaultMaxPackChars bounds a pack when the caller gives no budget
const DefaultMaxPackChars = 12000

// Builder renders context packs. Delta mode compares section hashes
// against the previous pack and includes only changed sections.
type Builder struct {
	deltaMode bool
	logger    arbor.ILogger
}

// NewBuilder creates a pack builder
func NewBuilder(deltaMode bool, logger arbor.ILogger) *Builder {
	return &Builder{deltaMode: deltaMode, logger: logger}
}

// Pack is a rendered context pack plus the section names it includes
type Pack struct {
	Phase     Phase    `json:"phase"`
	Text      string   `json:"text"`
	Sections  []string `json:"sections"`
	Truncated bool     `json:"truncated"`
}

// Build produces the phase-specific projection, bounded to maxPackChars.
// jobPostingText overrides the stored posting when non-empty.
func (b *Builder) Build(phase Phase, cv *models.CVData, meta *models.Metadata, jobPostingText string, maxPackChars int) (*Pack, error) {
	switch phase {
	case PhasePreparation, PhaseConfirmation, PhaseExecution:
	default:
		return nil, fmt.Errorf("unknown context pack phase %q", phase)
	}

	if maxPackChars <= 0 {
		maxPackChars = DefaultMaxPackChars
	}
	if jobPostingText == "" {
		jobPostingText = meta.JobPostingText
	}

	changed := b.changedSections(cv, meta)

	var sections []section
	add := func(name, body string) {
		if strings.TrimSpace(body) == "" {
			return
		}
		if b.deltaMode && changed != nil && !changed[name] {
			return
		}
		sections = append(sections, section{name: name, body: body})
	}

	// Execution leads with the tailoring-relevant material
	if phase == PhaseExecution {
		if meta.JobReference != nil {
			add("job_reference", meta.JobReference.Summary())
		}
		add(models.SectionWork, renderWork(cv.WorkExperience))
		add(models.SectionSkills, renderSkills(cv))
		add(models.SectionProfile, cv.Profile)
		add(models.SectionContact, renderContact(cv))
		add(models.SectionEducation, renderEducation(cv.Education))
	} else {
		add(models.SectionContact, renderContact(cv))
		add(models.SectionProfile, cv.Profile)
		add(models.SectionWork, renderWork(cv.WorkExperience))
		add(models.SectionEducation, renderEducation(cv.Education))
		add(models.SectionSkills, renderSkills(cv))
		add(models.SectionFurther, strings.Join(cv.FurtherExperience, "\n"))
		add(models.SectionLanguages, strings.Join(cv.Languages, "\n"))
	}

	if phase != PhasePreparation && jobPostingText != "" {
		add("job_posting", jobPostingText)
	}
	if phase == PhaseConfirmation {
		add("wizard_state", renderWizardState(meta))
	}

	pack := assemble(phase, sections, maxPackChars)
	if meta.TargetLanguage != "" {
		pack.Text = fmt.Sprintf("TARGET_LANGUAGE: %s\n\n%s", meta.TargetLanguage, pack.Text)
	}

	b.logger.Debug().
		Str("phase", string(phase)).
		Int("sections", len(pack.Sections)).
		Int("chars", len(pack.Text)).
		Bool("truncated", pack.Truncated).
		Msg("Context pack built")

	return pack, nil
}

// changedSections returns the set of sections whose hash differs from the
// previous pack, or nil when delta mode cannot apply.
func (b *Builder) changedSections(cv *models.CVData, meta *models.Metadata) map[string]bool {
	if !b.deltaMode || len(meta.SectionHashesPrev) == 0 {
		return nil
	}
	current := cv.SectionHashes()
	changed := make(map[string]bool)
	for name, hash := range current {
		if meta.SectionHashesPrev[name] != hash {
			changed[name] = true
		}
	}
	// Non-CV sections are always included
	changed["job_reference"] = true
	changed["job_posting"] = true
	changed["wizard_state"] = true
	return changed
}

type section struct {
	name string
	body string
}

// assemble joins labeled sections, trimming whole sections from the tail
// when the budget is exceeded. Individual sections are never cut
// mid-sentence; an oversized single section is clipped at the budget.
func assemble(phase Phase, sections []section, maxPackChars int) *Pack {
	pack := &Pack{Phase: phase}
	var b strings.Builder
	for _, s := range sections {
		block := fmt.Sprintf("=== %s ===\n%s\n\n", strings.ToUpper(s.name), strings.TrimSpace(s.body))
		if b.Len()+len(block) > maxPackChars {
			if len(pack.Sections) == 0 {
				clipped := block[:maxPackChars]
				b.WriteString(clipped)
				pack.Sections = append(pack.Sections, s.name)
			}
			pack.Truncated = true
			break
		}
		b.WriteString(block)
		pack.Sections = append(pack.Sections, s.name)
	}
	pack.Text = strings.TrimSpace(b.String())
	return pack
}

func renderContact(cv *models.CVData) string {
	parts := []string{cv.FullName, cv.Email, cv.Phone}
	parts = append(parts, cv.AddressLines...)
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

func renderWork(roles []models.WorkRole) string {
	var b strings.Builder
	for i, role := range roles {
		fmt.Fprintf(&b, "[%d] %s — %s (%s, %s)\n", i, role.Title, role.Employer, role.DateRange, role.Location)
		for _, bullet := range role.Bullets {
			fmt.Fprintf(&b, "  - %s\n", bullet)
		}
	}
	return b.String()
}

func renderEducation(entries []models.EducationEntry) string {
	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "%s, %s (%s)\n", entry.Title, entry.Institution, entry.DateRange)
		for _, detail := range entry.Details {
			fmt.Fprintf(&b, "  %s\n", detail)
		}
	}
	return b.String()
}

func renderSkills(cv *models.CVData) string {
	var parts []string
	if len(cv.ITAISkills) > 0 {
		parts = append(parts, "IT/AI: "+strings.Join(cv.ITAISkills, "; "))
	}
	if len(cv.TechnicalOperationalSkills) > 0 {
		parts = append(parts, "Technical/Operational: "+strings.Join(cv.TechnicalOperationalSkills, "; "))
	}
	return strings.Join(parts, "\n")
}

func renderWizardState(meta *models.Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage: %s\n", meta.WizardStage)
	fmt.Fprintf(&b, "macro: %s\n", meta.MacroStage)
	fmt.Fprintf(&b, "contact_confirmed: %t\n", meta.ConfirmedFlags.ContactConfirmed)
	fmt.Fprintf(&b, "education_confirmed: %t\n", meta.ConfirmedFlags.EducationConfirmed)
	if meta.HasPendingProposal() {
		b.WriteString("pending_proposal: true\n")
	}
	return b.String()
}
