package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/worldkeeper/worldkeeper/internal/backup"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/internal/world"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithDetails(w, status, code, message, nil)
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeDomainError maps an error returned by the world, host or backup
// packages onto a status and error code.
func writeDomainError(w http.ResponseWriter, err error) {
	var notFound *world.NotFoundError
	switch {
	case errors.As(err, &notFound):
		var details map[string]any
		if notFound.Suggestion != "" {
			details = map[string]any{"suggestion": notFound.Suggestion}
		}
		writeErrorWithDetails(w, http.StatusNotFound, ErrCodeNotFound, err.Error(), details)
	case errors.Is(err, world.ErrNotFound), errors.Is(err, backup.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, world.ErrInvalidName):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, world.ErrExists), errors.Is(err, world.ErrLoaded), errors.Is(err, world.ErrSpawnWorld),
		errors.Is(err, world.ErrRestoring), errors.Is(err, host.ErrLevelInUse), errors.Is(err, backup.ErrNoTarget):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, world.ErrLoadCancelled), errors.Is(err, world.ErrUnloadCancelled):
		writeError(w, http.StatusConflict, ErrCodeCancelled, err.Error())
	case errors.Is(err, host.ErrDataVersion), errors.Is(err, host.ErrNoLevelData):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnavailable, err.Error())
	default:
		logging.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
