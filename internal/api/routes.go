package api

import (
	"encoding/json"
	"net/http"

	"github.com/compumacy/visolearn-local/internal/domain"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Post("/connect", h.Connect)
		r.Post("/validate", h.Validate)
		r.Post("/fallback", h.SetFallback)

		r.Post("/generate", h.Generate)
		r.Post("/chat", h.Chat)

		r.Post("/session/save-log", h.SaveLog)
		r.Post("/session/save-images", h.SaveImages)

		r.Get("/fragments/checklist", h.ChecklistFragment)
		r.Get("/fragments/progress", h.ProgressFragment)
		r.Get("/fragments/attempts", h.AttemptFragment)
		r.Get("/fragments/difficulty", h.DifficultyFragment)

		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{id}", h.GetSession)
		r.Delete("/sessions/{id}", h.DeleteSession)
	})
}

// GetStatus returns the connection state.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.svc.Status())
}

// Connect re-validates the credential: a new remote handle is dialed and, on
// success, replaces the previous one atomically.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Connect(r.Context(), req.Token); err != nil {
		Error(w, errorStatus(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, h.svc.Status())
}

// Validate wakes a dormant remote instance. The response reports whether the
// instance came up within the bounded wait; a false result is not an error
// and the caller may simply retry.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	ready := h.svc.Validate(r.Context())
	JSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

// SetFallback toggles fallback mode.
func (h *Handler) SetFallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.svc.SetFallback(req.Enabled)
	JSON(w, http.StatusOK, h.svc.Status())
}

// Generate creates a new image and resets the chat.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var settings domain.SessionSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := settings.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Generate(r.Context(), settings)
	if err != nil {
		Error(w, errorStatus(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, result)
}

// Chat submits one child message against the active session. The caller owns
// the conversation and passes it back in on every call.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Conversation domain.Conversation `json:"conversation"`
		Message      string              `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message cannot be empty")
		return
	}
	result, err := h.svc.Chat(r.Context(), req.Conversation, req.Message)
	if err != nil {
		Error(w, errorStatus(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, result)
}

// SaveLog exports the session log to the local data directory.
func (h *Handler) SaveLog(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.SaveLog(r.Context())
	if err != nil {
		Error(w, errorStatus(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"path": path})
}

// SaveImages exports the session images to the local data directory.
func (h *Handler) SaveImages(w http.ResponseWriter, r *http.Request) {
	paths, err := h.svc.SaveImages(r.Context())
	if err != nil {
		Error(w, errorStatus(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string][]string{"paths": paths})
}

// ChecklistFragment returns the rendered checklist fragment.
func (h *Handler) ChecklistFragment(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"html": h.svc.ChecklistFragment(r.Context())})
}

// ProgressFragment returns the rendered progress fragment.
func (h *Handler) ProgressFragment(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"html": h.svc.ProgressFragment(r.Context())})
}

// AttemptFragment returns the rendered attempt counter fragment.
func (h *Handler) AttemptFragment(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"html": h.svc.AttemptFragment(r.Context())})
}

// DifficultyFragment returns the current difficulty label.
func (h *Handler) DifficultyFragment(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"label": h.svc.DifficultyFragment(r.Context())})
}

// ListSessions returns the saved-session summary.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.SessionsData(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetSession returns one locally saved session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, sess)
}

// DeleteSession removes one locally saved session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteSession(r.Context(), id); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]string{"deleted": id})
}
