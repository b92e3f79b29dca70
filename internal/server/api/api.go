// Package api provides the HTTP handlers of the airboard API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/airboard/internal/app"
	"github.com/ayusman/airboard/internal/export"
	"github.com/ayusman/airboard/internal/mode"
	"github.com/ayusman/airboard/internal/session"
	"github.com/ayusman/airboard/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// StatusFor maps an error from the session, store or capture layers to an
// HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidCommand),
		errors.Is(err, session.ErrInvalidEvent),
		errors.Is(err, mode.ErrUnknownColor),
		errors.Is(err, mode.ErrBrushSize),
		errors.Is(err, mode.ErrUnknownLabel),
		errors.Is(err, export.ErrBadFilename):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrCaptureBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionStopped):
		return http.StatusGone
	case errors.Is(err, session.ErrSaveUnavailable), errors.Is(err, session.ErrQueueOverflow):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// splitPath returns the non-empty path segments following prefix.
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
