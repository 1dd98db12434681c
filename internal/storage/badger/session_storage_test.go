package badger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(common.GetLogger(), &common.StorageConfig{
		Badger:       common.BadgerConfig{InMemory: true},
		RowSizeLimit: 64 * 1024,
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func testCV() models.CVData {
	return models.CVData{
		FullName: "Jane Doe",
		Email:    "jane@example.com",
		Phone:    "+1 555 0100",
		WorkExperience: []models.WorkRole{
			{Title: "Engineer", Employer: "Acme", Bullets: []string{"Built things"}},
		},
	}
}

func TestSessionCreateAndGet(t *testing.T) {
	store := newTestManager(t).SessionStorage()
	ctx := context.Background()

	session, err := store.Create(ctx, testCV(), models.NewMetadata(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, session.Version)
	assert.True(t, strings.HasPrefix(session.ID, "cvs_"))
	assert.Equal(t, models.StageLanguageSelection, session.Metadata.WizardStage)

	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", loaded.CVData.FullName)
	assert.Equal(t, -1, loaded.Metadata.SelectedRoleIndex)
}

func TestSessionGetNotFound(t *testing.T) {
	store := newTestManager(t).SessionStorage()

	_, err := store.Get(context.Background(), "cvs_missing")
	assert.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestSessionVersionMonotonicity(t *testing.T) {
	store := newTestManager(t).SessionStorage()
	ctx := context.Background()

	session, err := store.Create(ctx, testCV(), models.NewMetadata(), time.Hour)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		updated, err := store.Update(ctx, session.ID, session.Version, session.CVData, session.Metadata)
		require.NoError(t, err)
		assert.Equal(t, session.Version+1, updated.Version)
		session = updated
	}
	assert.Equal(t, 6, session.Version)
}

func TestSessionUpdateConflict(t *testing.T) {
	store := newTestManager(t).SessionStorage()
	ctx := context.Background()

	session, err := store.Create(ctx, testCV(), models.NewMetadata(), time.Hour)
	require.NoError(t, err)

	// Two writers loaded the same version; the first wins
	cvA := session.CVData
	cvA.FullName = "A"
	_, err = store.Update(ctx, session.ID, session.Version, cvA, session.Metadata)
	require.NoError(t, err)

	cvB := session.CVData
	cvB.FullName = "B"
	_, err = store.Update(ctx, session.ID, session.Version, cvB, session.Metadata)
	assert.ErrorIs(t, err, interfaces.ErrConflict)

	// The later writer reloads and re-applies
	reloaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", reloaded.CVData.FullName)

	final, err := store.Update(ctx, session.ID, reloaded.Version, cvB, reloaded.Metadata)
	require.NoError(t, err)
	assert.Equal(t, "B", final.CVData.FullName)
	assert.Equal(t, reloaded.Version+1, final.Version)
}

func TestMetadataOffloadRoundTrip(t *testing.T) {
	manager := NewTestManagerWithRowLimit(t, 2048)
	store := manager.SessionStorage()
	ctx := context.Background()

	meta := models.NewMetadata()
	prefill := testCV()
	// Inflate the prefill past the row limit
	for i := 0; i < 100; i++ {
		prefill.FurtherExperience = append(prefill.FurtherExperience, strings.Repeat("x", 80))
	}
	meta.DocxPrefillUnconfirmed = &prefill
	for i := 0; i < models.MaxEventLog; i++ {
		meta.AppendEvent(models.EventLogEntry{Kind: "turn", Note: strings.Repeat("y", 40)})
	}

	session, err := store.Create(ctx, testCV(), meta, time.Hour)
	require.NoError(t, err)

	// The aggregate reads back whole: offloading is invisible to callers
	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Metadata.DocxPrefillUnconfirmed)
	assert.Len(t, loaded.Metadata.DocxPrefillUnconfirmed.FurtherExperience, 100)
	assert.Len(t, loaded.Metadata.EventLog, models.MaxEventLog)
	assert.Empty(t, loaded.Metadata.Offloaded)
}

func TestEventLogBounded(t *testing.T) {
	meta := models.NewMetadata()
	for i := 0; i < models.MaxEventLog+25; i++ {
		meta.AppendEvent(models.EventLogEntry{Kind: "turn"})
	}
	assert.Len(t, meta.EventLog, models.MaxEventLog)
}

func TestStageHistoryNoConsecutiveDuplicates(t *testing.T) {
	meta := models.NewMetadata()
	meta.PushStage(models.StageContact)
	meta.PushStage(models.StageContact)
	meta.PushStage(models.StageEducation)

	assert.Equal(t, models.StageEducation, meta.WizardStage)
	for _, past := range meta.StageHistory {
		assert.NotEqual(t, meta.WizardStage, past)
	}
	// history tail differs from current stage
	assert.NotEqual(t, meta.WizardStage, meta.StageHistory[len(meta.StageHistory)-1])
}

func TestCleanupExpired(t *testing.T) {
	store := newTestManager(t).SessionStorage()
	ctx := context.Background()

	_, err := store.Create(ctx, testCV(), models.NewMetadata(), -time.Minute)
	require.NoError(t, err)
	keep, err := store.Create(ctx, testCV(), models.NewMetadata(), time.Hour)
	require.NoError(t, err)

	count, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Idempotent
	count, err = store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = store.Get(ctx, keep.ID)
	assert.NoError(t, err)
}

func TestSearchBySessionFields(t *testing.T) {
	store := newTestManager(t).SessionStorage()
	ctx := context.Background()

	_, err := store.Create(ctx, testCV(), models.NewMetadata(), time.Hour)
	require.NoError(t, err)

	other := testCV()
	other.FullName = "Max Mustermann"
	other.Email = "max@example.de"
	_, err = store.Create(ctx, other, models.NewMetadata(), time.Hour)
	require.NoError(t, err)

	results, err := store.Search(ctx, "mustermann", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Max Mustermann", results[0].CVData.FullName)
}

// NewTestManagerWithRowLimit builds an in-memory manager with a custom
// offload threshold
func NewTestManagerWithRowLimit(t *testing.T, limit int) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(common.GetLogger(), &common.StorageConfig{
		Badger:       common.BadgerConfig{InMemory: true},
		RowSizeLimit: limit,
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}
