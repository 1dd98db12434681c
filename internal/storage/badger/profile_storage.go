package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ProfileRecord is a cross-session stable profile snapshot
type ProfileRecord struct {
	Key       string `badgerhold:"key"`
	CV        models.CVData
	Language  string
	SHA256    string
	UpdatedAt time.Time
}

// ProfileStorage implements the ProfileStorage interface for Badger
type ProfileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProfileStorage creates a new ProfileStorage instance
func NewProfileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProfileStorage {
	return &ProfileStorage{
		db:     db,
		logger: logger,
	}
}

func normalizeProfileKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Save upserts a stable profile and returns its content-addressed ref
func (s *ProfileStorage) Save(ctx context.Context, key string, cv models.CVData, language string) (*models.StableProfileRef, error) {
	normalized := normalizeProfileKey(key)
	if normalized == "" {
		return nil, fmt.Errorf("profile key is required")
	}

	payload, err := json.Marshal(cv)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize profile: %w", err)
	}
	digest := common.SHA256Hex(payload)

	record := ProfileRecord{
		Key:       normalized,
		CV:        cv,
		Language:  language,
		SHA256:    digest,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.db.Store().Upsert(normalized, &record); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	s.logger.Debug().Str("key", normalized).Str("sha256", digest[:12]).Msg("Stable profile saved")

	return &models.StableProfileRef{
		Store:  "badger://profiles/" + normalized,
		Key:    normalized,
		SHA256: digest,
	}, nil
}

// Get returns the stored profile and its language
func (s *ProfileStorage) Get(ctx context.Context, key string) (*models.CVData, string, error) {
	var record ProfileRecord
	err := s.db.Store().Get(normalizeProfileKey(key), &record)
	if err == badgerhold.ErrNotFound {
		return nil, "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get profile: %w", err)
	}
	cv := record.CV
	return &cv, record.Language, nil
}
