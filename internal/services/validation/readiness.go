package validation

import (
	"github.com/ternarybob/scriba/internal/models"
)

// Readiness reason codes
const (
	ReasonMissingContact       = "missing_contact"
	ReasonMissingEducation     = "missing_education"
	ReasonMissingWork          = "missing_work_experience"
	ReasonContactUnconfirmed   = "contact_not_confirmed"
	ReasonEducationUnconfirmed = "education_not_confirmed"
	ReasonPendingProposal      = "pending_proposal"
	ReasonLimitViolations      = "hard_limit_violations"
)

// Readiness enumerates the gates that must hold before PDF execution
type Readiness struct {
	HasContact         bool     `json:"has_contact"`
	HasEducation       bool     `json:"has_education"`
	HasWorkExperience  bool     `json:"has_work_experience"`
	ContactConfirmed   bool     `json:"contact_confirmed"`
	EducationConfirmed bool     `json:"education_confirmed"`
	CanGenerate        bool     `json:"can_generate"`
	Reasons            []string `json:"reasons"`
}

// ComputeReadiness derives the readiness summary from the session state.
// CanGenerate requires every gate true, no pending proposal blocks, and
// a limit-clean CV.
func ComputeReadiness(cv *models.CVData, meta *models.Metadata) Readiness {
	r := Readiness{
		HasContact:         cv.HasContact(),
		HasEducation:       len(cv.Education) > 0,
		HasWorkExperience:  len(cv.WorkExperience) > 0,
		ContactConfirmed:   meta.ConfirmedFlags.ContactConfirmed,
		EducationConfirmed: meta.ConfirmedFlags.EducationConfirmed,
	}

	if !r.HasContact {
		r.Reasons = append(r.Reasons, ReasonMissingContact)
	}
	if !r.HasEducation {
		r.Reasons = append(r.Reasons, ReasonMissingEducation)
	}
	if !r.HasWorkExperience {
		r.Reasons = append(r.Reasons, ReasonMissingWork)
	}
	if !r.ContactConfirmed {
		r.Reasons = append(r.Reasons, ReasonContactUnconfirmed)
	}
	if !r.EducationConfirmed {
		r.Reasons = append(r.Reasons, ReasonEducationUnconfirmed)
	}
	if meta.HasPendingProposal() {
		r.Reasons = append(r.Reasons, ReasonPendingProposal)
	}
	if len(ValidateCV(cv, meta.TargetLanguage)) > 0 {
		r.Reasons = append(r.Reasons, ReasonLimitViolations)
	}

	r.CanGenerate = len(r.Reasons) == 0
	return r
}
