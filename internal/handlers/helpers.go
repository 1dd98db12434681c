package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/scriba/internal/interfaces"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// ErrorEnvelope is the non-2xx response body
type ErrorEnvelope struct {
	Error    string `json:"error"`
	Details  string `json:"details,omitempty"`
	Guidance string `json:"guidance,omitempty"`
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, ErrorEnvelope{Error: message})
}

// WriteErrorDetails writes an error response with details and guidance.
func WriteErrorDetails(w http.ResponseWriter, statusCode int, message, details, guidance string) error {
	return WriteJSON(w, statusCode, ErrorEnvelope{Error: message, Details: details, Guidance: guidance})
}

// WritePDF writes raw PDF bytes with an attachment disposition
func WritePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// StatusFromError maps storage sentinels to HTTP status codes
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrBlobNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
