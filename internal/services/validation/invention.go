package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ternarybob/scriba/internal/models"
)

// Labeled corpus blocks an LLM proposal must be grounded in
const (
	CorpusCurrentWork        = "CURRENT_WORK_EXPERIENCE"
	CorpusTailoringSuggested = "TAILORING_SUGGESTIONS"
	CorpusTailoringFeedback  = "TAILORING_FEEDBACK"
)

// minGroundedTokenLen excludes short function words from grounding checks
const minGroundedTokenLen = 4

// Common words that never count as invention even when absent from the
// corpus. Covers English, German, and Polish wizard languages.
var inventionStopWords = map[string]bool{
	"with": true, "from": true, "into": true, "over": true, "under": true,
	"that": true, "this": true, "these": true, "those": true, "than": true,
	"then": true, "them": true, "they": true, "their": true, "there": true,
	"have": true, "been": true, "being": true, "were": true, "will": true,
	"would": true, "should": true, "could": true, "about": true,
	"across": true, "through": true, "during": true, "while": true,
	"where": true, "which": true, "when": true, "what": true, "also": true,
	"each": true, "every": true, "more": true, "most": true, "such": true,
	"including": true, "within": true, "using": true, "based": true,
	"und": true, "oder": true, "aber": true, "auch": true, "eine": true,
	"einer": true, "einem": true, "einen": true, "eines": true, "der": true,
	"die": true, "das": true, "den": true, "dem": true, "des": true,
	"mit": true, "von": true, "für": true, "durch": true, "über": true,
	"unter": true, "zwischen": true, "sowie": true, "bei": true,
	"oraz": true, "przez": true, "dla": true, "jako": true, "które": true,
	"który": true, "która": true, "także": true, "m.in": true,
}

// E0Violation marks a proposal token not grounded in the input corpus.
// RoleIndex and BulletIndex locate the offending bullet; BulletIndex is
// -1 for skills items.
type E0Violation struct {
	RoleIndex   int    `json:"role_index"`
	BulletIndex int    `json:"bullet_index"`
	Token       string `json:"token"`
}

func (v E0Violation) String() string {
	if v.BulletIndex >= 0 {
		return fmt.Sprintf("role %d bullet %d: ungrounded token %q", v.RoleIndex, v.BulletIndex, v.Token)
	}
	return fmt.Sprintf("item %d: ungrounded token %q", v.RoleIndex, v.Token)
}

// Corpus is the set of grounded tokens assembled from the labeled blocks
// of an LLM prompt.
type Corpus struct {
	tokens map[string]bool
}

// BuildCorpus tokenizes labeled input blocks into a grounding set
func BuildCorpus(blocks map[string]string) *Corpus {
	tokens := make(map[string]bool)
	for _, text := range blocks {
		for _, token := range tokenize(text) {
			tokens[token] = true
		}
	}
	return &Corpus{tokens: tokens}
}

// BuildRolesCorpus assembles the standard grounding corpus for work
// experience tailoring
func BuildRolesCorpus(roles []models.WorkRole, suggestions, feedback string) *Corpus {
	var work strings.Builder
	for _, role := range roles {
		work.WriteString(role.Title)
		work.WriteString(" ")
		work.WriteString(role.Employer)
		work.WriteString(" ")
		work.WriteString(role.Location)
		work.WriteString(" ")
		for _, bullet := range role.Bullets {
			work.WriteString(bullet)
			work.WriteString(" ")
		}
	}
	return BuildCorpus(map[string]string{
		CorpusCurrentWork:        work.String(),
		CorpusTailoringSuggested: suggestions,
		CorpusTailoringFeedback:  feedback,
	})
}

// Grounded reports whether a token is present in the corpus
func (c *Corpus) Grounded(token string) bool {
	return c.tokens[token]
}

// CheckRolesInvention returns an E0 violation for every proposal token
// not grounded in the corpus
func CheckRolesInvention(proposal []models.WorkRole, corpus *Corpus) []E0Violation {
	var violations []E0Violation
	for i, role := range proposal {
		for j, bullet := range role.Bullets {
			for _, token := range ungroundedTokens(bullet, corpus) {
				violations = append(violations, E0Violation{RoleIndex: i, BulletIndex: j, Token: token})
			}
		}
	}
	return violations
}

// CheckItemsInvention checks a flat proposal list (skills) for invention
func CheckItemsInvention(items []string, corpus *Corpus) []E0Violation {
	var violations []E0Violation
	for i, item := range items {
		for _, token := range ungroundedTokens(item, corpus) {
			violations = append(violations, E0Violation{RoleIndex: i, BulletIndex: -1, Token: token})
		}
	}
	return violations
}

// FormatE0Violations renders violations as the E0_POLICY_ERRORS feedback
// block for a retry prompt
func FormatE0Violations(violations []E0Violation) string {
	if len(violations) == 0 {
		return ""
	}
	out := "E0_POLICY_ERRORS:"
	for _, v := range violations {
		out += " " + v.String() + ";"
	}
	return out
}

func ungroundedTokens(text string, corpus *Corpus) []string {
	var out []string
	seen := make(map[string]bool)
	for _, token := range tokenize(text) {
		if len([]rune(token)) < minGroundedTokenLen {
			continue
		}
		if inventionStopWords[token] || isNumeric(token) {
			continue
		}
		if corpus.Grounded(token) || seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}
	return out
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-' && r != '.'
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.Trim(field, "-.")
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}

func isNumeric(token string) bool {
	for _, r := range token {
		if !unicode.IsNumber(r) && r != '.' && r != '-' {
			return false
		}
	}
	return true
}
