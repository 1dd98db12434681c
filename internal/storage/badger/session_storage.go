package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/common"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/ternarybob/scriba/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Offloadable metadata fields, by wire name
const (
	offloadPrefill     = "docx_prefill_unconfirmed"
	offloadEventLog    = "event_log"
	offloadWorkBlock   = "work_experience_proposal_block"
	offloadSkillsBlock = "skills_proposal_block"
	offloadCoverLetter = "cover_letter_block"
)

// SessionStorage implements the SessionStorage interface for Badger.
// Compare-and-swap updates are serialized with an in-process mutex; the
// version check is the source of truth for conflicts.
type SessionStorage struct {
	db           *BadgerDB
	blobs        interfaces.BlobStorage
	rowSizeLimit int
	logger       arbor.ILogger
	mu           sync.Mutex
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, blobs interfaces.BlobStorage, rowSizeLimit int, logger arbor.ILogger) interfaces.SessionStorage {
	if rowSizeLimit <= 0 {
		rowSizeLimit = 64 * 1024
	}
	return &SessionStorage{
		db:           db,
		blobs:        blobs,
		rowSizeLimit: rowSizeLimit,
		logger:       logger,
	}
}

// Create persists a new session with version 1
func (s *SessionStorage) Create(ctx context.Context, cv models.CVData, meta models.Metadata, ttl time.Duration) (*models.Session, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:        common.NewSessionID(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
		CVData:    cv,
		Metadata:  meta,
	}

	if err := s.offload(ctx, session); err != nil {
		return nil, err
	}
	if err := s.db.Store().Insert(session.ID, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Debug().Str("session_id", session.ID).Msg("Session created")

	return s.Get(ctx, session.ID)
}

// Get returns the full aggregate, rehydrating offloaded metadata
func (s *SessionStorage) Get(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.Store().Get(id, &session)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	if err := s.rehydrate(ctx, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Update performs a compare-and-swap on the session version
func (s *SessionStorage) Update(ctx context.Context, id string, expectedVersion int, cv models.CVData, meta models.Metadata) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current models.Session
	err := s.db.Store().Get(id, &current)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	if current.Version != expectedVersion {
		s.logger.Debug().
			Str("session_id", id).
			Int("expected", expectedVersion).
			Int("actual", current.Version).
			Msg("Session update conflict")
		return nil, interfaces.ErrConflict
	}

	updated := models.Session{
		ID:        id,
		Version:   current.Version + 1,
		CreatedAt: current.CreatedAt,
		UpdatedAt: time.Now().UTC(),
		ExpiresAt: current.ExpiresAt,
		CVData:    cv,
		Metadata:  meta,
	}

	if err := s.offload(ctx, &updated); err != nil {
		return nil, err
	}
	if err := s.db.Store().Update(id, &updated); err != nil {
		return nil, fmt.Errorf("failed to update session %s: %w", id, err)
	}

	if err := s.rehydrate(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// AppendEvent appends to the bounded event log. The version bump keeps
// invariant "version strictly increases on any successful save".
func (s *SessionStorage) AppendEvent(ctx context.Context, id string, event models.EventLogEntry) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	session.Metadata.AppendEvent(event)
	_, err = s.Update(ctx, id, session.Version, session.CVData, session.Metadata)
	return err
}

// Search scans sessions matching the query against contact fields and
// wizard stage. Query matching is case-insensitive substring.
func (s *SessionStorage) Search(ctx context.Context, query string, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	var rows []models.Session
	if err := s.db.Store().Find(&rows, badgerhold.Where("ID").Ne("").SortBy("UpdatedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	var results []*models.Session
	for i := range rows {
		row := rows[i]
		if needle != "" {
			haystack := strings.ToLower(strings.Join([]string{
				row.CVData.FullName, row.CVData.Email, row.Metadata.WizardStage, row.ID,
			}, " "))
			if !strings.Contains(haystack, needle) {
				continue
			}
		}
		if err := s.rehydrate(ctx, &row); err != nil {
			return nil, err
		}
		results = append(results, &row)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// CleanupExpired deletes expired sessions and their PDF blobs. Idempotent.
func (s *SessionStorage) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	var expired []models.Session
	if err := s.db.Store().Find(&expired, badgerhold.Where("ExpiresAt").Lt(now)); err != nil {
		return 0, fmt.Errorf("failed to query expired sessions: %w", err)
	}

	deleted := 0
	for i := range expired {
		session := expired[i]
		if session.ExpiresAt.IsZero() {
			continue
		}
		// PDFs persist until session expiry; drop them with the row
		for _, ref := range session.Metadata.PDFRefs {
			if err := s.blobs.Delete(ctx, ref.Container, ref.BlobName); err != nil {
				s.logger.Warn().Err(err).Str("blob", ref.BlobName).Msg("Failed to delete expired PDF blob")
			}
		}
		if err := s.db.Store().Delete(session.ID, models.Session{}); err != nil {
			s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to delete expired session")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().Int("count", deleted).Msg("Expired sessions cleaned up")
	}
	return deleted, nil
}

// offloadCandidate pairs a metadata field with its detach/restore hooks
type offloadCandidate struct {
	name   string
	size   int
	detach func(*models.Metadata)
}

// offload moves large metadata sub-objects to blob storage when the
// serialized metadata exceeds the row size limit. Blob names are
// content-addressed so equal payloads deduplicate.
func (s *SessionStorage) offload(ctx context.Context, session *models.Session) error {
	meta := &session.Metadata
	meta.Offloaded = nil

	serialized, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}
	if len(serialized) <= s.rowSizeLimit {
		return nil
	}

	candidates := []offloadCandidate{}
	add := func(name string, value interface{}, detach func(*models.Metadata)) {
		if value == nil {
			return
		}
		data, err := json.Marshal(value)
		if err != nil || string(data) == "null" || string(data) == "[]" {
			return
		}
		candidates = append(candidates, offloadCandidate{name: name, size: len(data), detach: detach})
	}

	if meta.DocxPrefillUnconfirmed != nil {
		add(offloadPrefill, meta.DocxPrefillUnconfirmed, func(m *models.Metadata) { m.DocxPrefillUnconfirmed = nil })
	}
	if len(meta.EventLog) > 0 {
		add(offloadEventLog, meta.EventLog, func(m *models.Metadata) { m.EventLog = nil })
	}
	if meta.WorkProposal != nil {
		add(offloadWorkBlock, meta.WorkProposal, func(m *models.Metadata) { m.WorkProposal = nil })
	}
	if meta.SkillsProposal != nil {
		add(offloadSkillsBlock, meta.SkillsProposal, func(m *models.Metadata) { m.SkillsProposal = nil })
	}
	if meta.CoverLetter != nil {
		add(offloadCoverLetter, meta.CoverLetter, func(m *models.Metadata) { m.CoverLetter = nil })
	}

	// Largest first until the row fits
	for len(serialized) > s.rowSizeLimit && len(candidates) > 0 {
		largest := 0
		for i := range candidates {
			if candidates[i].size > candidates[largest].size {
				largest = i
			}
		}
		candidate := candidates[largest]
		candidates = append(candidates[:largest], candidates[largest+1:]...)

		payload, err := s.marshalField(meta, candidate.name)
		if err != nil {
			return err
		}
		digest := common.SHA256Hex(payload)
		blobName := session.ID + "/" + digest + ".json"
		if err := s.blobs.Put(ctx, interfaces.ContainerSessions, blobName, payload); err != nil {
			return fmt.Errorf("failed to offload %s: %w", candidate.name, err)
		}

		candidate.detach(meta)
		if meta.Offloaded == nil {
			meta.Offloaded = map[string]models.BlobPointer{}
		}
		meta.Offloaded[candidate.name] = models.BlobPointer{
			Container: interfaces.ContainerSessions,
			BlobName:  blobName,
			SHA256:    digest,
		}

		serialized, err = json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to serialize metadata: %w", err)
		}
	}

	s.logger.Debug().
		Str("session_id", session.ID).
		Int("row_bytes", len(serialized)).
		Int("offloaded", len(meta.Offloaded)).
		Msg("Metadata offloaded to blob storage")

	return nil
}

func (s *SessionStorage) marshalField(meta *models.Metadata, name string) ([]byte, error) {
	var value interface{}
	switch name {
	case offloadPrefill:
		value = meta.DocxPrefillUnconfirmed
	case offloadEventLog:
		value = meta.EventLog
	case offloadWorkBlock:
		value = meta.WorkProposal
	case offloadSkillsBlock:
		value = meta.SkillsProposal
	case offloadCoverLetter:
		value = meta.CoverLetter
	default:
		return nil, fmt.Errorf("unknown offload field %q", name)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", name, err)
	}
	return data, nil
}

// rehydrate merges offloaded metadata back into the aggregate
func (s *SessionStorage) rehydrate(ctx context.Context, session *models.Session) error {
	meta := &session.Metadata
	if len(meta.Offloaded) == 0 {
		return nil
	}

	for name, pointer := range meta.Offloaded {
		data, err := s.blobs.Get(ctx, pointer.Container, pointer.BlobName)
		if err != nil {
			return fmt.Errorf("failed to rehydrate %s: %w", name, err)
		}
		switch name {
		case offloadPrefill:
			var prefill models.CVData
			if err := json.Unmarshal(data, &prefill); err != nil {
				return fmt.Errorf("corrupted offloaded %s: %w", name, err)
			}
			meta.DocxPrefillUnconfirmed = &prefill
		case offloadEventLog:
			if err := json.Unmarshal(data, &meta.EventLog); err != nil {
				return fmt.Errorf("corrupted offloaded %s: %w", name, err)
			}
		case offloadWorkBlock:
			var block models.RolesProposal
			if err := json.Unmarshal(data, &block); err != nil {
				return fmt.Errorf("corrupted offloaded %s: %w", name, err)
			}
			meta.WorkProposal = &block
		case offloadSkillsBlock:
			var block models.SkillsProposal
			if err := json.Unmarshal(data, &block); err != nil {
				return fmt.Errorf("corrupted offloaded %s: %w", name, err)
			}
			meta.SkillsProposal = &block
		case offloadCoverLetter:
			var block models.CoverLetterDraft
			if err := json.Unmarshal(data, &block); err != nil {
				return fmt.Errorf("corrupted offloaded %s: %w", name, err)
			}
			meta.CoverLetter = &block
		}
	}

	meta.Offloaded = nil
	return nil
}
