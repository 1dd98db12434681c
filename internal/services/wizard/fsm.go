// -----------------------------------------------------------------------
// Package wizard drives the CV-tailoring session: the macro FSM, the
// substage handlers, UI action dispatch, and the turn orchestrator
// -----------------------------------------------------------------------

package wizard

import (
	"strings"

	"github.com/ternarybob/scriba/internal/models"
)

// Flags carries the session and validation state the macro FSM resolves
// against. The resolver is a pure function of its arguments.
type Flags struct {
	ConfirmationRequired bool
	UserConfirmYes       bool
	UserConfirmNo        bool
	GenerateRequested    bool
	ValidationPassed     bool
	ReadinessOK          bool
	PendingEdits         int
	TurnsInReview        int
	PDFGenerated         bool
	PDFFailed            bool
}

// reviewAutoAdvanceTurns forces REVIEW to CONFIRM after this many turns
const reviewAutoAdvanceTurns = 3

// Edit-intent keywords per wizard language. A match anywhere in the user
// message routes the macro FSM back to REVIEW.
var editKeywords = map[string][]string{
	"en": {"edit", "change", "modify", "fix", "update", "revise", "redo"},
	"de": {"ändern", "bearbeiten", "korrigieren", "anpassen", "überarbeiten"},
	"pl": {"zmień", "zmienić", "popraw", "poprawić", "edytuj", "edytować"},
}

// EditIntent reports whether the message contains an edit keyword from
// the active language set. English keywords always apply; an empty
// language matches every set.
func EditIntent(message, language string) bool {
	lowered := strings.ToLower(message)
	match := func(lang string) bool {
		for _, keyword := range editKeywords[lang] {
			if strings.Contains(lowered, keyword) {
				return true
			}
		}
		return false
	}

	if language == "" {
		for lang := range editKeywords {
			if match(lang) {
				return true
			}
		}
		return false
	}
	return match(language) || match("en")
}

// Resolve computes the next macro stage. Precedence is evaluated
// top-down: edit intent overrides everything, DONE is otherwise sticky,
// then per-state transitions apply.
func Resolve(currentStage, userMessage, language string, flags Flags) string {
	if EditIntent(userMessage, language) {
		return models.MacroReview
	}

	switch currentStage {
	case models.MacroDone:
		return models.MacroDone

	case models.MacroIngest:
		return models.MacroPrepare

	case models.MacroPrepare:
		if flags.ConfirmationRequired {
			return models.MacroReview
		}
		return models.MacroPrepare

	case models.MacroReview:
		if flags.UserConfirmYes || flags.TurnsInReview >= reviewAutoAdvanceTurns {
			return models.MacroConfirm
		}
		return models.MacroReview

	case models.MacroConfirm:
		if flags.UserConfirmNo {
			return models.MacroReview
		}
		if flags.GenerateRequested && flags.ValidationPassed && flags.ReadinessOK && flags.PendingEdits == 0 {
			return models.MacroExecute
		}
		return models.MacroConfirm

	case models.MacroExecute:
		if flags.PDFGenerated {
			return models.MacroDone
		}
		if flags.PDFFailed {
			return models.MacroReview
		}
		return models.MacroExecute
	}

	return currentStage
}
