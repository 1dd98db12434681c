package models

import (
	"fmt"
	"strings"
	"time"
)

// JobReference is the structured extraction of a job posting
type JobReference struct {
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Seniority   string   `json:"seniority,omitempty"`
	MustHaves   []string `json:"must_haves,omitempty"`
	NiceToHaves []string `json:"nice_to_haves,omitempty"`
	Language    string   `json:"language,omitempty"`
}

// Summary renders the reference as labeled prompt fuel
func (j *JobReference) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nCompany: %s\n", j.Title, j.Company)
	if j.Seniority != "" {
		fmt.Fprintf(&b, "Seniority: %s\n", j.Seniority)
	}
	if len(j.MustHaves) > 0 {
		fmt.Fprintf(&b, "Must-haves: %s\n", strings.Join(j.MustHaves, "; "))
	}
	if len(j.NiceToHaves) > 0 {
		fmt.Fprintf(&b, "Nice-to-haves: %s\n", strings.Join(j.NiceToHaves, "; "))
	}
	return b.String()
}

// RolesProposal is an LLM work-experience draft staged in metadata until
// the user accepts or rejects it
type RolesProposal struct {
	Roles     []WorkRole `json:"roles"`
	InputSig  string     `json:"input_sig"`
	CreatedAt time.Time  `json:"created_at"`
	Attempts  int        `json:"attempts"`
}

// SkillsProposal is an LLM skills draft staged in metadata
type SkillsProposal struct {
	ITAISkills                 []string  `json:"it_ai_skills,omitempty"`
	TechnicalOperationalSkills []string  `json:"technical_operational_skills,omitempty"`
	InputSig                   string    `json:"input_sig,omitempty"`
	CreatedAt                  time.Time `json:"created_at"`
}

// CoverLetterDraft is an LLM cover letter staged in metadata
type CoverLetterDraft struct {
	Markdown  string    `json:"markdown"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
}
