package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const samplePosting = `Senior Backend Engineer (m/f/d)

We are looking for an experienced backend engineer to join our payments team.
You will design and operate Go services handling millions of transactions per
day. Requirements: 5+ years of experience with distributed systems, strong
knowledge of PostgreSQL and Kafka, and fluency in English. Nice to have:
experience with Kubernetes and event sourcing.`

func TestCheckJobPostingAcceptsRealPosting(t *testing.T) {
	ok, reason := CheckJobPosting(samplePosting)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestCheckJobPostingRejectsShortText(t *testing.T) {
	ok, reason := CheckJobPosting("backend engineer wanted")
	assert.False(t, ok)
	assert.Equal(t, JobReasonTooShort, reason)
}

func TestCheckJobPostingRejectsNonText(t *testing.T) {
	ok, reason := CheckJobPosting(strings.Repeat("123456 !!! ### $$$ %%% ", 10))
	assert.False(t, ok)
	assert.Equal(t, JobReasonLowTextRatio, reason)
}

func TestCheckJobPostingRejectsCandidateNotes(t *testing.T) {
	notes := `I worked at Acme for five years where I built the payment system.
My main achievement was that I reduced latency by 40 percent. I also led a
team of four engineers and I introduced code review practices. My skills
include Go, PostgreSQL and Kafka, and I am fluent in English.`

	ok, reason := CheckJobPosting(notes)
	assert.False(t, ok)
	assert.Equal(t, JobReasonLooksLikeNotes, reason)
}
