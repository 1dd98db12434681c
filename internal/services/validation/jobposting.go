package validation

import (
	"strings"
	"unicode"
)

// Job posting rejection reason codes
const (
	JobReasonTooShort       = "too_short"
	JobReasonLowTextRatio   = "low_text_ratio"
	JobReasonLooksLikeNotes = "looks_like_notes"
)

const (
	jobMinLength           = 80
	jobMinAlphabeticRatio  = 0.5
	jobMaxPronounRatio     = 0.05
	jobMinPronounHits      = 3
)

// First-person pronouns across the supported wizard languages. A high
// proportion of these marks the text as candidate notes, not a posting.
var firstPersonPronouns = map[string]bool{
	"i": true, "me": true, "my": true, "mine": true, "myself": true,
	"i'm": true, "i've": true, "i'd": true, "i'll": true,
	"ich": true, "mir": true, "mich": true, "mein": true, "meine": true,
	"meiner": true, "meinem": true, "meinen": true,
	"ja": true, "mnie": true, "moja": true, "moje": true, "mój": true,
	"jestem": true, "mam": true,
}

// CheckJobPosting screens pasted or fetched job text. It returns ok and
// an empty reason when the text is acceptable, otherwise a reason code.
func CheckJobPosting(text string) (bool, string) {
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < jobMinLength {
		return false, JobReasonTooShort
	}

	letters, total := 0, 0
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 || float64(letters)/float64(total) < jobMinAlphabeticRatio {
		return false, JobReasonLowTextRatio
	}

	words := strings.Fields(strings.ToLower(trimmed))
	pronouns := 0
	for _, word := range words {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && r != '\''
		})
		if firstPersonPronouns[word] {
			pronouns++
		}
	}
	if pronouns >= jobMinPronounHits && float64(pronouns)/float64(len(words)) > jobMaxPronounRatio {
		return false, JobReasonLooksLikeNotes
	}

	return true, ""
}
