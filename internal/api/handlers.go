package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/npi"
	"github.com/xkilldash9x/availity-rpa/internal/store"
	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

// Handlers serves the run triggers and the provider lookup.
type Handlers struct {
	log      *zap.Logger
	runs     RunStore
	launcher Launcher
	npi      ProviderValidator
}

// NewHandlers creates a new Handlers instance. Any dependency may be nil; its
// routes then answer 503.
func NewHandlers(logger *zap.Logger, runs RunStore, l Launcher, v ProviderValidator) *Handlers {
	return &Handlers{
		log:      logger.Named("api_handlers"),
		runs:     runs,
		launcher: l,
		npi:      v,
	}
}

// RegisterRoutes mounts the trigger routes on r. guard, when non-nil, wraps
// every route that starts a browser.
func (h *Handlers) RegisterRoutes(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Get("/healthz", h.HandleHealthCheck)
	r.Get("/api/get_auth_status", h.HandleAuthStatus)

	r.Group(func(r chi.Router) {
		if guard != nil {
			r.Use(guard)
		}
		r.Post("/check_availity_eligibility", h.HandleEligibility)
		r.Post("/run_aetna_insurance_rpa", h.HandlePriorAuth)
		r.Post("/npi-lookup", h.HandleNPILookup)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) decodeAuth(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AuthID == "" {
		h.respondWithError(w, http.StatusBadRequest, "Missing auth_id")
		return "", false
	}
	return string(req.AuthID), true
}

func (h *Handlers) runsAvailable(w http.ResponseWriter) bool {
	if h.runs == nil || h.launcher == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "Run service is unavailable (database not configured or connected).")
		return false
	}
	return true
}

// HandleEligibility runs the eligibility check for an auth id and records the
// coverage flag.
func (h *Handlers) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	if !h.runsAvailable(w) {
		return
	}
	authID, ok := h.decodeAuth(w, r)
	if !ok {
		return
	}
	log := h.log.With(zap.String("auth_id", authID))

	rec, err := h.runs.EligibilityInput(r.Context(), authID)
	if errors.Is(err, store.ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, "No data found for this auth_id")
		return
	}
	if err != nil {
		log.Error("Failed to load eligibility input", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Unexpected error: %v", err))
		return
	}

	rep, err := h.launcher.Run(r.Context(), workflow.KindEligibility, rec)
	if err != nil {
		log.Error("Eligibility run failed", zap.Error(err))
		if errors.Is(err, workflow.ErrNoFinalResult) {
			h.respondWithError(w, http.StatusInternalServerError, "FINAL_RESULT not found in script output")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("RPA execution failed: %v", err))
		return
	}

	if rep.Result.EligibilityResult != nil {
		if err := h.runs.SetInsuranceValidation(r.Context(), authID, rep.Result.Flag()); err != nil {
			log.Error("Failed to record insurance validation", zap.Error(err))
		}
	}
	if !rep.Result.Success {
		h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("RPA execution failed: %s", rep.Result.Error))
		return
	}
	log.Info("Eligibility recorded", zap.Int("flag", rep.Result.Flag()))
	h.respond(w, http.StatusOK, EligibilityResponse{Message: "Eligibility RPA executed successfully", Result: rep.Result})
}

// HandlePriorAuth submits the prior-authorization request for an auth id.
func (h *Handlers) HandlePriorAuth(w http.ResponseWriter, r *http.Request) {
	if !h.runsAvailable(w) {
		return
	}
	authID, ok := h.decodeAuth(w, r)
	if !ok {
		return
	}
	log := h.log.With(zap.String("auth_id", authID))

	rec, err := h.runs.PriorAuthInput(r.Context(), authID)
	if errors.Is(err, store.ErrNotFound) {
		h.respondWithError(w, http.StatusNotFound, "No matching Aetna data found for auth_id: "+authID)
		return
	}
	if err != nil {
		log.Error("Failed to load prior-auth input", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Unexpected error: %v", err))
		return
	}

	rep, err := h.launcher.Run(r.Context(), workflow.KindPriorAuth, rec)
	if err != nil {
		log.Error("Prior-auth run failed", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("RPA failed: %v", err))
		return
	}
	if !rep.Result.Success {
		h.respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("RPA failed: %s", rep.Result.Error))
		return
	}

	if err := h.runs.SetAuthStatus(r.Context(), authID, store.AuthInProgress); err != nil {
		log.Error("Failed to record auth status", zap.Error(err))
	}
	log.Info("Auth status updated after successful run", zap.String("auth_status", store.AuthInProgress))
	h.respond(w, http.StatusOK, map[string]string{"message": "Aetna RPA executed successfully"})
}

// HandleAuthStatus reports the recorded auth status.
func (h *Handlers) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "Run service is unavailable (database not configured or connected).")
		return
	}
	authID := r.URL.Query().Get("auth_id")
	status, err := h.runs.AuthStatus(r.Context(), authID)
	if err != nil {
		h.log.Error("Failed to read auth status", zap.String("auth_id", authID), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "could not read auth status")
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"auth_status": status})
}

// HandleNPILookup validates a provider against the registry.
func (h *Handlers) HandleNPILookup(w http.ResponseWriter, r *http.Request) {
	if h.npi == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "NPI lookup is unavailable.")
		return
	}
	var req NPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondFail(w, http.StatusBadRequest, "Invalid provider name or auth_id")
		return
	}
	q := npi.Query{FirstName: strings.TrimSpace(req.FirstName), LastName: strings.TrimSpace(req.LastName)}
	if q.FirstName == "" && q.LastName == "" && req.ProviderName != "" {
		parsed, err := npi.ParseFullName(req.ProviderName)
		if err == nil {
			q = parsed
		}
	}
	authID := string(req.AuthID)
	if q.FirstName == "" || q.LastName == "" || authID == "" {
		h.respondFail(w, http.StatusBadRequest, "Invalid provider name or auth_id")
		return
	}

	res, err := h.npi.Validate(r.Context(), q, authID)
	if err != nil {
		h.log.Error("NPI lookup failed", zap.String("auth_id", authID), zap.Error(err))
		h.respondFail(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respond(w, http.StatusOK, res)
}

func (h *Handlers) respondFail(w http.ResponseWriter, code int, message string) {
	h.respond(w, code, map[string]string{"status": npi.ValidationFail, "message": message})
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
