package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/scriba/internal/models"
)

// Sentinel storage errors
var (
	// ErrConflict is returned by compare-and-swap session updates when the
	// caller's version is stale. It is retryable: reload and re-apply.
	ErrConflict = errors.New("session version conflict")

	// ErrSessionNotFound is returned for unknown or expired session ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrBlobNotFound is returned for missing blob names
	ErrBlobNotFound = errors.New("blob not found")

	// ErrKeyNotFound is returned by the key/value storage
	ErrKeyNotFound = errors.New("key not found")
)

// Blob containers
const (
	ContainerPhotos    = "cv-photos"
	ContainerSessions  = "cv-sessions"
	ContainerPDFs      = "cv-pdfs"
	ContainerArtifacts = "cv-artifacts"
)

// SessionStorage is the session aggregate store (C1). Writers perform
// compare-and-swap on Version; Conflict is the only retryable failure.
type SessionStorage interface {
	// Create persists a new session and returns its id. Version starts at 1.
	Create(ctx context.Context, cv models.CVData, meta models.Metadata, ttl time.Duration) (*models.Session, error)

	// Get returns the full aggregate, transparently rehydrating offloaded
	// metadata from blob storage. Returns ErrSessionNotFound when absent.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Update replaces cv_data and metadata with compare-and-swap on the
	// session version. expectedVersion is the version the caller loaded;
	// on mismatch the update fails with ErrConflict.
	Update(ctx context.Context, id string, expectedVersion int, cv models.CVData, meta models.Metadata) (*models.Session, error)

	// AppendEvent appends to the bounded event log without touching cv_data
	AppendEvent(ctx context.Context, id string, event models.EventLogEntry) error

	// Search returns session ids whose cv_data or metadata match the query
	Search(ctx context.Context, query string, limit int) ([]*models.Session, error)

	// CleanupExpired deletes expired sessions and returns the count removed
	CleanupExpired(ctx context.Context) (int, error)
}

// BlobStorage stores large payloads outside session rows. Names are
// content-addressed where the caller passes sha256 digests.
type BlobStorage interface {
	Put(ctx context.Context, container, name string, data []byte) error
	Get(ctx context.Context, container, name string) ([]byte, error)
	Delete(ctx context.Context, container, name string) error
	Exists(ctx context.Context, container, name string) (bool, error)
}

// ProfileStorage persists cross-session stable profiles keyed by a
// normalized identity (email).
type ProfileStorage interface {
	Save(ctx context.Context, key string, cv models.CVData, language string) (*models.StableProfileRef, error)
	Get(ctx context.Context, key string) (*models.CVData, string, error)
}

// KeyValuePair is one entry in the key/value storage
type KeyValuePair struct {
	Key         string `badgerhold:"key"`
	Value       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// KeyValueStorage stores configuration values and API keys
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value, description string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]KeyValuePair, error)
}

// StorageManager aggregates the typed stores over one database
type StorageManager interface {
	SessionStorage() SessionStorage
	BlobStorage() BlobStorage
	ProfileStorage() ProfileStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
