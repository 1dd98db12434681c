package interfaces

import (
	"context"

	"github.com/ternarybob/scriba/internal/models"
)

// DocumentExtractor turns an uploaded DOCX into a CV prefill and an
// optional embedded photo. Extraction is best-effort; a partially
// populated prefill is staged for user confirmation, never merged
// silently.
type DocumentExtractor interface {
	Extract(ctx context.Context, docx []byte) (*models.CVData, []byte, error)
}
