package wizard

import (
	"github.com/ternarybob/scriba/internal/models"
)

// Major step ranking for backward-only navigation. Substages of the
// same step share a rank.
const (
	StepContact    = 1
	StepEducation  = 2
	StepJobPosting = 3
	StepWork       = 4
	StepSkills     = 5
	StepReview     = 6
)

var majorSteps = map[string]int{
	models.StageContact:     StepContact,
	models.StageContactEdit: StepContact,

	models.StageEducation:     StepEducation,
	models.StageEducationEdit: StepEducation,

	models.StageJobPosting:      StepJobPosting,
	models.StageJobPostingPaste: StepJobPosting,

	models.StageWorkExperience:     StepWork,
	models.StageWorkNotesEdit:      StepWork,
	models.StageWorkTailorReview:   StepWork,
	models.StageWorkTailorFeedback: StepWork,
	models.StageWorkLocationsEdit:  StepWork,

	models.StageITAISkills:         StepSkills,
	models.StageSkillsNotesEdit:    StepSkills,
	models.StageSkillsTailorReview: StepSkills,

	models.StageReviewFinal:       StepReview,
	models.StageCoverLetterReview: StepReview,
}

// MajorStep returns the rank of a substage, or 0 for substages outside
// the ordered flow (language selection, import gate).
func MajorStep(substage string) int {
	return majorSteps[substage]
}

// CanGotoStage permits navigation jumps backward only along the major
// step ordering. Substages outside the flow are never valid targets.
func CanGotoStage(current, target string) bool {
	currentStep := MajorStep(current)
	targetStep := MajorStep(target)
	if targetStep == 0 {
		return false
	}
	if currentStep == 0 {
		return false
	}
	return targetStep < currentStep
}

// entrySubstage maps a major step to the substage navigation lands on
var entrySubstage = map[int]string{
	StepContact:    models.StageContact,
	StepEducation:  models.StageEducation,
	StepJobPosting: models.StageJobPosting,
	StepWork:       models.StageWorkExperience,
	StepSkills:     models.StageITAISkills,
	StepReview:     models.StageReviewFinal,
}

// EntrySubstage normalizes a navigation target to its step's entry
// substage, so a jump to "work_notes_edit" lands on "work_experience".
func EntrySubstage(target string) string {
	if step := MajorStep(target); step != 0 {
		return entrySubstage[step]
	}
	return target
}
