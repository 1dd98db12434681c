package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// CVData is the canonical, language-neutral CV record. It is the only
// payload the PDF renderer and the LLM tailoring prompts operate on.
type CVData struct {
	FullName     string   `json:"full_name"`
	Email        string   `json:"email"`
	Phone        string   `json:"phone"`
	AddressLines []string `json:"address_lines,omitempty"`

	Profile string `json:"profile,omitempty"`

	WorkExperience []WorkRole       `json:"work_experience,omitempty"`
	Education      []EducationEntry `json:"education,omitempty"`

	FurtherExperience          []string `json:"further_experience,omitempty"`
	Languages                  []string `json:"languages,omitempty"`
	ITAISkills                 []string `json:"it_ai_skills,omitempty"`
	TechnicalOperationalSkills []string `json:"technical_operational_skills,omitempty"`
	Interests                  []string `json:"interests,omitempty"`
	References                 []string `json:"references,omitempty"`
}

// WorkRole is a single position in the work experience section
type WorkRole struct {
	Title     string   `json:"title"`
	Employer  string   `json:"employer"`
	DateRange string   `json:"date_range,omitempty"`
	Location  string   `json:"location,omitempty"`
	Bullets   []string `json:"bullets,omitempty"`
	// Locked roles are excluded from LLM tailoring proposals
	Locked bool `json:"locked,omitempty"`
}

// EducationEntry is a single entry in the education section
type EducationEntry struct {
	Title       string   `json:"title"`
	Institution string   `json:"institution"`
	DateRange   string   `json:"date_range,omitempty"`
	Details     []string `json:"details,omitempty"`
}

// HasContact reports whether the mandatory contact fields are present
func (cv *CVData) HasContact() bool {
	return strings.TrimSpace(cv.FullName) != "" &&
		strings.TrimSpace(cv.Email) != "" &&
		strings.TrimSpace(cv.Phone) != ""
}

// Clone returns a deep copy via JSON round-trip. Sessions hand copies to
// proposal staging so accepted proposals never alias live slices.
func (cv *CVData) Clone() *CVData {
	data, err := json.Marshal(cv)
	if err != nil {
		return &CVData{}
	}
	var out CVData
	if err := json.Unmarshal(data, &out); err != nil {
		return &CVData{}
	}
	return &out
}

// Section names used for section hashing and context pack deltas
const (
	SectionContact   = "contact"
	SectionProfile   = "profile"
	SectionWork      = "work_experience"
	SectionEducation = "education"
	SectionFurther   = "further_experience"
	SectionLanguages = "languages"
	SectionSkills    = "skills"
	SectionInterests = "interests"
)

// SectionHashes digests each CV section independently. Equal content
// always yields equal hashes, which is what the context pack delta mode
// relies on.
func (cv *CVData) SectionHashes() map[string]string {
	hash := func(v interface{}) string {
		data, _ := json.Marshal(v)
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
	return map[string]string{
		SectionContact:   hash([]interface{}{cv.FullName, cv.Email, cv.Phone, cv.AddressLines}),
		SectionProfile:   hash(cv.Profile),
		SectionWork:      hash(cv.WorkExperience),
		SectionEducation: hash(cv.Education),
		SectionFurther:   hash(cv.FurtherExperience),
		SectionLanguages: hash(cv.Languages),
		SectionSkills:    hash([]interface{}{cv.ITAISkills, cv.TechnicalOperationalSkills}),
		SectionInterests: hash(cv.Interests),
	}
}

// RolesSig fingerprints the tailorable work roles for proposal dedupe
func (cv *CVData) RolesSig() string {
	data, _ := json.Marshal(cv.WorkExperience)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
