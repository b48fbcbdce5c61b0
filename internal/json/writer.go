// Package json writes the service's JSON responses. Every response is
// marked no-store since bodies may describe the logged-in account.
package json

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/dgellow/release-watch/internal/log"
)

const contentType = "application/json; charset=utf-8"

// ErrorResponse represents a standard JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteResponse encodes data before writing anything, so an encoding
// failure becomes a plain 500 instead of a truncated body.
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		http.Error(w, "internal_server_error", http.StatusInternalServerError)
		return err
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	_, err := w.Write(buf.Bytes())
	return err
}

// Write writes a JSON response with 200 OK status
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes a JSON error response with a machine-readable code
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	_ = WriteResponse(w, statusCode, ErrorResponse{Error: code, Message: message})
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_server_error", message)
}
