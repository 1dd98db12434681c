package models

import (
	"time"
)

// Bounds on metadata ring buffers
const (
	MaxStageHistory = 20
	MaxEventLog     = 80
)

// Session is the only mutable aggregate. It is exclusively owned by its
// ID; concurrent writers are serialized by optimistic concurrency on
// Version.
type Session struct {
	ID        string    `badgerhold:"key" json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	CVData   CVData   `json:"cv_data"`
	Metadata Metadata `json:"metadata"`
}

// Expired reports whether the session TTL has elapsed
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ConfirmedFlags tracks the wizard confirmation gates
type ConfirmedFlags struct {
	ContactConfirmed   bool       `json:"contact_confirmed"`
	EducationConfirmed bool       `json:"education_confirmed"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
}

// BlobPointer replaces an offloaded metadata sub-object in the session
// row. The blob name is content-addressed so equal payloads deduplicate.
type BlobPointer struct {
	Container string `json:"container"`
	BlobName  string `json:"blob_name"`
	SHA256    string `json:"sha256"`
}

// PDFRef describes a rendered artifact stored in blob storage
type PDFRef struct {
	Kind         string    `json:"kind"` // "cv" or "cover_letter"
	Container    string    `json:"container"`
	BlobName     string    `json:"blob_name"`
	DownloadName string    `json:"download_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventLogEntry is one entry in the bounded session audit trail
type EventLogEntry struct {
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	Stage  string    `json:"stage,omitempty"`
	Action string    `json:"action,omitempty"`
	Note   string    `json:"note,omitempty"`
}

// StableProfileRef points at a cross-session stable profile snapshot.
// Store is an opaque URI.
type StableProfileRef struct {
	Store  string `json:"store"`
	Key    string `json:"key"`
	SHA256 string `json:"sha256"`
}

// Metadata is the wizard's side-data. Large sub-objects may be offloaded
// to blob storage when the serialized form exceeds the row size limit;
// Offloaded holds their pointers and the session store rehydrates them
// transparently on read.
type Metadata struct {
	WizardStage   string   `json:"wizard_stage"`
	MacroStage    string   `json:"macro_stage"`
	StageHistory  []string `json:"stage_history,omitempty"`
	TurnsInReview int      `json:"turns_in_review,omitempty"`
	PendingEdits  int      `json:"pending_edits,omitempty"`

	TargetLanguage string `json:"target_language,omitempty"`
	SourceLanguage string `json:"source_language,omitempty"`

	ConfirmedFlags ConfirmedFlags `json:"confirmed_flags"`

	DocxPrefillUnconfirmed *CVData `json:"docx_prefill_unconfirmed,omitempty"`
	PhotoBlobName          string  `json:"photo_blob_name,omitempty"`

	JobReference           *JobReference `json:"job_reference,omitempty"`
	JobPostingText         string        `json:"job_posting_text,omitempty"`
	JobPostingURL          string        `json:"job_posting_url,omitempty"`
	JobFetchStatus         string        `json:"job_fetch_status,omitempty"`
	JobInputStatus         string        `json:"job_input_status,omitempty"`
	JobPostingInvalidDraft string        `json:"job_posting_invalid_draft,omitempty"`

	WorkTailoringNotes    string         `json:"work_tailoring_notes,omitempty"`
	WorkTailoringFeedback string         `json:"work_tailoring_feedback,omitempty"`
	WorkProposal          *RolesProposal `json:"work_experience_proposal_block,omitempty"`
	WorkProposalInputSig  string         `json:"work_experience_proposal_input_sig,omitempty"`

	SkillsNotes    string          `json:"skills_notes,omitempty"`
	SkillsProposal *SkillsProposal `json:"skills_proposal_block,omitempty"`

	CoverLetter *CoverLetterDraft `json:"cover_letter_block,omitempty"`

	PDFRefs       map[string]PDFRef `json:"pdf_refs,omitempty"`
	CurrentPDFRef string            `json:"current_pdf_ref,omitempty"`
	PDFGenerated  bool              `json:"pdf_generated,omitempty"`
	PDFFailed     bool              `json:"pdf_failed,omitempty"`
	// Fingerprint of the CV content the current PDF was rendered from;
	// edits invalidate the idempotency latch by changing it
	PDFContentSig string `json:"pdf_content_sig,omitempty"`

	BulkTranslatedTo         string `json:"bulk_translated_to,omitempty"`
	BulkTranslationSourceSig string `json:"bulk_translation_source_sig,omitempty"`

	SectionHashes     map[string]string `json:"section_hashes,omitempty"`
	SectionHashesPrev map[string]string `json:"section_hashes_prev,omitempty"`

	EventLog []EventLogEntry `json:"event_log,omitempty"`

	StableProfileRef *StableProfileRef `json:"stable_profile_ref,omitempty"`

	// SelectedRoleIndex is -1 when no role is selected
	SelectedRoleIndex int `json:"selected_role_index"`

	Offloaded map[string]BlobPointer `json:"offloaded,omitempty"`
}

// NewMetadata returns metadata with initial wizard state
func NewMetadata() Metadata {
	return Metadata{
		WizardStage:       StageLanguageSelection,
		MacroStage:        MacroIngest,
		SelectedRoleIndex: -1,
	}
}

// PushStage records a stage transition, keeping history bounded and
// skipping consecutive duplicates.
func (m *Metadata) PushStage(stage string) {
	if stage == "" || stage == m.WizardStage {
		return
	}
	m.StageHistory = append(m.StageHistory, m.WizardStage)
	if len(m.StageHistory) > MaxStageHistory {
		m.StageHistory = m.StageHistory[len(m.StageHistory)-MaxStageHistory:]
	}
	m.WizardStage = stage
}

// AppendEvent records an audit entry, keeping the ring buffer bounded
func (m *Metadata) AppendEvent(entry EventLogEntry) {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	m.EventLog = append(m.EventLog, entry)
	if len(m.EventLog) > MaxEventLog {
		m.EventLog = m.EventLog[len(m.EventLog)-MaxEventLog:]
	}
}

// HasPendingProposal reports whether any LLM draft awaits user accept/reject
func (m *Metadata) HasPendingProposal() bool {
	return m.WorkProposal != nil || m.SkillsProposal != nil
}

// Wizard substages
const (
	StageLanguageSelection  = "language_selection"
	StageImportGatePending  = "import_gate_pending"
	StageContact            = "contact"
	StageContactEdit        = "contact_edit"
	StageEducation          = "education"
	StageEducationEdit      = "education_edit"
	StageJobPosting         = "job_posting"
	StageJobPostingPaste    = "job_posting_paste"
	StageWorkExperience     = "work_experience"
	StageWorkNotesEdit      = "work_notes_edit"
	StageWorkTailorReview   = "work_tailor_review"
	StageWorkTailorFeedback = "work_tailor_feedback"
	StageWorkLocationsEdit  = "work_locations_edit"
	StageITAISkills         = "it_ai_skills"
	StageSkillsNotesEdit    = "skills_notes_edit"
	StageSkillsTailorReview = "skills_tailor_review"
	StageReviewFinal        = "review_final"
	StageCoverLetterReview  = "cover_letter_review"
)

// Macro FSM states
const (
	MacroIngest  = "INGEST"
	MacroPrepare = "PREPARE"
	MacroReview  = "REVIEW"
	MacroConfirm = "CONFIRM"
	MacroExecute = "EXECUTE"
	MacroDone    = "DONE"
)

// Job posting gate statuses
const (
	JobInputStatusNone     = ""
	JobInputStatusAccepted = "accepted"
	JobInputStatusInvalid  = "invalid"
	JobInputStatusSkipped  = "skipped"

	JobFetchStatusPending = "pending"
	JobFetchStatusOK      = "ok"
	JobFetchStatusFailed  = "failed"
)
