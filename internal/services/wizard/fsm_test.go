package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/scriba/internal/models"
)

func TestResolveIsPure(t *testing.T) {
	flags := Flags{ConfirmationRequired: true, TurnsInReview: 1}
	first := Resolve(models.MacroReview, "looks good", "en", flags)
	second := Resolve(models.MacroReview, "looks good", "en", flags)
	assert.Equal(t, first, second)
}

func TestResolveEditIntentOverridesEverything(t *testing.T) {
	stages := []string{
		models.MacroIngest, models.MacroPrepare, models.MacroReview,
		models.MacroConfirm, models.MacroExecute, models.MacroDone,
	}
	for _, stage := range stages {
		next := Resolve(stage, "please change the second bullet", "en", Flags{})
		assert.Equal(t, models.MacroReview, next, "stage %s", stage)
	}
}

func TestResolveDoneSticky(t *testing.T) {
	assert.Equal(t, models.MacroDone, Resolve(models.MacroDone, "thanks, looks great", "en", Flags{}))
	assert.Equal(t, models.MacroReview, Resolve(models.MacroDone, "actually, edit the profile", "en", Flags{}))
}

func TestResolveEditAfterDonePolish(t *testing.T) {
	next := Resolve(models.MacroDone, "zmień doświadczenie", "pl", Flags{})
	assert.Equal(t, models.MacroReview, next)
}

func TestResolveIngestAdvances(t *testing.T) {
	assert.Equal(t, models.MacroPrepare, Resolve(models.MacroIngest, "", "en", Flags{}))
}

func TestResolvePrepareWaitsForConfirmation(t *testing.T) {
	assert.Equal(t, models.MacroPrepare, Resolve(models.MacroPrepare, "", "en", Flags{}))
	assert.Equal(t, models.MacroReview, Resolve(models.MacroPrepare, "", "en", Flags{ConfirmationRequired: true}))
}

func TestResolveReviewConfirmAndAutoAdvance(t *testing.T) {
	assert.Equal(t, models.MacroReview, Resolve(models.MacroReview, "", "en", Flags{TurnsInReview: 1}))
	assert.Equal(t, models.MacroConfirm, Resolve(models.MacroReview, "", "en", Flags{UserConfirmYes: true}))
	assert.Equal(t, models.MacroConfirm, Resolve(models.MacroReview, "", "en", Flags{TurnsInReview: 3}))
}

func TestResolveConfirmGates(t *testing.T) {
	assert.Equal(t, models.MacroReview, Resolve(models.MacroConfirm, "", "en", Flags{UserConfirmNo: true}))

	ready := Flags{GenerateRequested: true, ValidationPassed: true, ReadinessOK: true}
	assert.Equal(t, models.MacroExecute, Resolve(models.MacroConfirm, "", "en", ready))

	blocked := ready
	blocked.PendingEdits = 1
	assert.Equal(t, models.MacroConfirm, Resolve(models.MacroConfirm, "", "en", blocked))

	notReady := ready
	notReady.ReadinessOK = false
	assert.Equal(t, models.MacroConfirm, Resolve(models.MacroConfirm, "", "en", notReady))
}

func TestResolveExecuteOutcomes(t *testing.T) {
	assert.Equal(t, models.MacroExecute, Resolve(models.MacroExecute, "", "en", Flags{}))
	assert.Equal(t, models.MacroDone, Resolve(models.MacroExecute, "", "en", Flags{PDFGenerated: true}))
	assert.Equal(t, models.MacroReview, Resolve(models.MacroExecute, "", "en", Flags{PDFFailed: true}))
}

func TestEditIntentLanguageSets(t *testing.T) {
	assert.True(t, EditIntent("bitte den Profiltext ändern", "de"))
	assert.True(t, EditIntent("popraw ostatni punkt", "pl"))
	// English applies in every session
	assert.True(t, EditIntent("fix the last bullet", "de"))
	assert.False(t, EditIntent("sieht gut aus, danke", "de"))
	// Unknown language matches every set
	assert.True(t, EditIntent("zmień doświadczenie", ""))
}

func TestMajorStepNavigationBackwardOnly(t *testing.T) {
	assert.True(t, CanGotoStage(models.StageReviewFinal, models.StageContact))
	assert.True(t, CanGotoStage(models.StageITAISkills, models.StageJobPosting))
	assert.False(t, CanGotoStage(models.StageContact, models.StageReviewFinal))
	assert.False(t, CanGotoStage(models.StageWorkExperience, models.StageWorkExperience))
	assert.False(t, CanGotoStage(models.StageLanguageSelection, models.StageContact))
	assert.False(t, CanGotoStage(models.StageReviewFinal, models.StageLanguageSelection))
}

func TestEntrySubstageNormalizesTargets(t *testing.T) {
	assert.Equal(t, models.StageWorkExperience, EntrySubstage(models.StageWorkNotesEdit))
	assert.Equal(t, models.StageContact, EntrySubstage(models.StageContactEdit))
	assert.Equal(t, models.StageReviewFinal, EntrySubstage(models.StageCoverLetterReview))
}
