package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewSessionID generates a unique session ID with the "cvs_" prefix
// Format: cvs_<uuid>
func NewSessionID() string {
	return "cvs_" + uuid.New().String()
}

// NewPDFRef generates a unique PDF reference with the "pdf_" prefix
func NewPDFRef() string {
	return "pdf_" + uuid.New().String()[:8]
}

// NewTraceID generates a unique trace ID for LLM call correlation
func NewTraceID() string {
	return "trc_" + uuid.New().String()
}

// SHA256Hex returns the lowercase hex SHA-256 digest of the input
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintParts digests an ordered list of strings into a single
// stable fingerprint. Parts are joined with an unlikely separator so
// ("ab","c") and ("a","bc") never collide.
func FingerprintParts(parts ...string) string {
	return SHA256Hex([]byte(strings.Join(parts, "\x1f")))
}
