package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/models"
)

func groundingRoles() []models.WorkRole {
	return []models.WorkRole{
		{
			Title:    "Backend Engineer",
			Employer: "Acme Payments",
			Bullets: []string{
				"Designed distributed payment services in Go",
				"Operated PostgreSQL clusters with automated failover",
			},
		},
	}
}

func TestInventionGroundedProposalPasses(t *testing.T) {
	corpus := BuildRolesCorpus(groundingRoles(), "Emphasize distributed systems and reliability", "")

	proposal := []models.WorkRole{
		{
			Title: "Backend Engineer",
			Bullets: []string{
				"Designed distributed payment services in Go with reliability",
			},
		},
	}
	assert.Empty(t, CheckRolesInvention(proposal, corpus))
}

func TestInventionFlagsUngroundedTokens(t *testing.T) {
	corpus := BuildRolesCorpus(groundingRoles(), "", "")

	proposal := []models.WorkRole{
		{
			Title: "Backend Engineer",
			Bullets: []string{
				"Designed payment services in Go",
				"Architected Kubernetes migration saving millions",
			},
		},
	}

	violations := CheckRolesInvention(proposal, corpus)
	require.NotEmpty(t, violations)
	tokens := make(map[string]bool)
	for _, v := range violations {
		assert.Equal(t, 0, v.RoleIndex)
		assert.Equal(t, 1, v.BulletIndex)
		tokens[v.Token] = true
	}
	assert.True(t, tokens["kubernetes"])
	assert.True(t, tokens["migration"])
}

func TestInventionIgnoresStopWordsAndNumbers(t *testing.T) {
	corpus := BuildCorpus(map[string]string{
		CorpusCurrentWork: "reduced processing time",
	})

	proposal := []models.WorkRole{
		{Bullets: []string{"Reduced processing time from 2019 through 2023"}},
	}
	assert.Empty(t, CheckRolesInvention(proposal, corpus))
}

func TestInventionChecksSkillsItems(t *testing.T) {
	corpus := BuildCorpus(map[string]string{
		CorpusCurrentWork:        "Go PostgreSQL Kafka development",
		CorpusTailoringSuggested: "mention cloud experience",
	})

	violations := CheckItemsInvention([]string{"PostgreSQL", "Terraform"}, corpus)
	require.Len(t, violations, 1)
	assert.Equal(t, 1, violations[0].RoleIndex)
	assert.Equal(t, -1, violations[0].BulletIndex)
	assert.Equal(t, "terraform", violations[0].Token)
}

func TestFormatE0Violations(t *testing.T) {
	assert.Empty(t, FormatE0Violations(nil))

	text := FormatE0Violations([]E0Violation{
		{RoleIndex: 2, BulletIndex: 1, Token: "kubernetes"},
	})
	assert.Contains(t, text, "E0_POLICY_ERRORS:")
	assert.Contains(t, text, "role 2 bullet 1")
}
