package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// BlobRecord is one stored blob. The key is container/name so listing a
// container is a prefix scan.
type BlobRecord struct {
	Key       string `badgerhold:"key"`
	Container string
	Name      string
	Data      []byte
	CreatedAt time.Time
}

// BlobStorage implements the BlobStorage interface for Badger
type BlobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBlobStorage creates a new BlobStorage instance
func NewBlobStorage(db *BadgerDB, logger arbor.ILogger) *BlobStorage {
	return &BlobStorage{
		db:     db,
		logger: logger,
	}
}

func blobKey(container, name string) string {
	return container + "/" + name
}

// Put stores a blob, overwriting any existing entry with the same name.
// Content-addressed names make repeated puts of equal payloads idempotent.
func (s *BlobStorage) Put(ctx context.Context, container, name string, data []byte) error {
	if container == "" || name == "" {
		return fmt.Errorf("blob container and name are required")
	}

	record := BlobRecord{
		Key:       blobKey(container, name),
		Container: container,
		Name:      name,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.db.Store().Upsert(record.Key, &record); err != nil {
		return fmt.Errorf("failed to store blob %s: %w", record.Key, err)
	}

	s.logger.Debug().
		Str("container", container).
		Str("name", name).
		Int("size", len(data)).
		Msg("Blob stored")

	return nil
}

// Get retrieves a blob by container and name
func (s *BlobStorage) Get(ctx context.Context, container, name string) ([]byte, error) {
	var record BlobRecord
	err := s.db.Store().Get(blobKey(container, name), &record)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %s/%s: %w", container, name, err)
	}
	return record.Data, nil
}

// Delete removes a blob; deleting a missing blob is not an error
func (s *BlobStorage) Delete(ctx context.Context, container, name string) error {
	err := s.db.Store().Delete(blobKey(container, name), BlobRecord{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete blob %s/%s: %w", container, name, err)
	}
	return nil
}

// Exists reports whether a blob is present
func (s *BlobStorage) Exists(ctx context.Context, container, name string) (bool, error) {
	var record BlobRecord
	err := s.db.Store().Get(blobKey(container, name), &record)
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check blob %s/%s: %w", container, name, err)
	}
	return true, nil
}
