package mfa

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const expiredMessage = "invalid or expired session_id"

// Handlers serves the handoff endpoints. The bot-facing routes are open; the
// operator-facing ones sit behind guard.
type Handlers struct {
	log   *zap.Logger
	store Store
	guard func(http.Handler) http.Handler
}

// NewHandlers creates the handlers. A nil guard leaves every route open.
func NewHandlers(logger *zap.Logger, store Store, guard func(http.Handler) http.Handler) *Handlers {
	return &Handlers{log: logger.Named("mfa_handlers"), store: store, guard: guard}
}

// RegisterRoutes mounts the handoff routes on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Post("/mfa-request", h.HandleRequest)
	r.Get("/mfa-check/{session_id}", h.HandleCheck)

	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Post("/mfa-submit", h.HandleSubmit)
		r.Get("/mfa-pending", h.HandlePending)
	})
}

type requestBody struct {
	ScriptType string `json:"script_type"`
}

type submitBody struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

type checkResponse struct {
	Code   *string `json:"code"`
	Status string  `json:"status"`
}

type pendingResponse struct {
	Pending   bool   `json:"pending"`
	SessionID string `json:"session_id,omitempty"`
}

// HandleRequest creates a session for a bot.
func (h *Handlers) HandleRequest(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	// An empty body is allowed; script_type is informational.
	_ = json.NewDecoder(r.Body).Decode(&body)

	sess, err := h.store.Create(r.Context(), body.ScriptType)
	if err != nil {
		h.log.Error("Failed to create MFA session", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "could not create session")
		return
	}
	h.log.Info("MFA session created", zap.String("session_id", sess.ID), zap.String("script_type", sess.ScriptType))
	h.respond(w, http.StatusOK, map[string]string{"session_id": sess.ID})
}

// HandleCheck is polled by the bot.
func (h *Handlers) HandleCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	sess, err := h.store.Check(r.Context(), id)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
		h.respond(w, http.StatusNotFound, map[string]string{"error": expiredMessage, "status": "expired"})
		return
	case err != nil:
		h.log.Error("Failed to check MFA session", zap.String("session_id", id), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "could not read session")
		return
	}
	resp := checkResponse{Code: sess.Code, Status: "pending"}
	if sess.Code != nil {
		resp.Status = "completed"
	}
	h.respond(w, http.StatusOK, resp)
}

// HandleSubmit attaches an operator's code.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SessionID == "" || body.Code == "" {
		h.respondWithError(w, http.StatusBadRequest, "session_id and code required")
		return
	}
	err := h.store.Submit(r.Context(), body.SessionID, body.Code)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
		h.respondWithError(w, http.StatusNotFound, expiredMessage)
		return
	case err != nil:
		h.log.Error("Failed to store MFA code", zap.String("session_id", body.SessionID), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "could not store code")
		return
	}
	h.log.Info("MFA code received", zap.String("session_id", body.SessionID))
	h.respond(w, http.StatusOK, map[string]string{"status": "received"})
}

// HandlePending tells the operator UI whether to prompt for a code.
func (h *Handlers) HandlePending(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		h.respond(w, http.StatusOK, pendingResponse{})
		return
	}
	pending, err := h.store.Pending(r.Context(), id)
	if err != nil {
		h.log.Error("Failed to check pending MFA session", zap.String("session_id", id), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "could not read session")
		return
	}
	if !pending {
		h.respond(w, http.StatusOK, pendingResponse{})
		return
	}
	h.respond(w, http.StatusOK, pendingResponse{Pending: true, SessionID: id})
}

func (h *Handlers) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respond(w, code, map[string]string{"error": message})
}

func (h *Handlers) respond(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
