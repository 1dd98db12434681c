package interfaces

import (
	"context"

	"github.com/ternarybob/scriba/internal/models"
)

// PDFRenderer renders canonical CV records to PDF bytes. RenderCV
// enforces the page contract (two pages for a CV); exceeding it is an
// error, never a silent truncation.
type PDFRenderer interface {
	RenderCV(ctx context.Context, cv *models.CVData, language string, photo []byte) ([]byte, error)
	RenderCoverLetter(ctx context.Context, markdown string, cv *models.CVData) ([]byte, error)
}
