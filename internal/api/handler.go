// Package api provides HTTP handlers for the local interface API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/compumacy/visolearn-local/internal/remote"
	"github.com/compumacy/visolearn-local/internal/session"
	"github.com/compumacy/visolearn-local/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	svc  *session.Service
	repo store.Repository
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(svc *session.Service, repo store.Repository) *Handler {
	return &Handler{
		svc:  svc,
		repo: repo,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// errorStatus maps service errors to HTTP status codes. Credential failures
// are 401, caller mistakes 400/409, availability failures 503, everything
// else 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, remote.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, remote.ErrConnection), errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrFallbackUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, remote.ErrProtocol), errors.Is(err, remote.ErrRemoteCall):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
