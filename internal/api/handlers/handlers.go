// Package handlers implements the HTTP handlers for the MedQuill pipeline.
// The routed entry point (/generate) drives the full gated loop; the
// standalone quality and refinement endpoints serve components that want
// gating without tier routing, such as the section generator.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/medquill/medquill/pipeline/internal/audit"
	"github.com/medquill/medquill/pipeline/internal/refine"
	"github.com/medquill/medquill/pipeline/pkg/contracts"
	"github.com/medquill/medquill/pipeline/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Router   contracts.ModelRouterService
	Quality  contracts.QualityGateService
	Refiner  *refine.Service
	Trail    *audit.Trail
	validate *validator.Validate
}

// New creates a Handlers instance with all dependencies. trail may be
// nil; the events endpoint then reports empty.
func New(router contracts.ModelRouterService, quality contracts.QualityGateService, refiner *refine.Service, trail *audit.Trail) *Handlers {
	return &Handlers{
		Router:   router,
		Quality:  quality,
		Refiner:  refiner,
		Trail:    trail,
		validate: validator.New(),
	}
}

// ── Generate ────────────────────────────────────────────────

// Generate runs the full routed pipeline for one request.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.AIInvocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.Router.Route(r.Context(), &req)
	if err != nil {
		h.respondRouteError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// exhaustedResponse carries the best-so-far content alongside the error
// so a human reviewer can accept, edit, or discard it.
type exhaustedResponse struct {
	Error        string                       `json:"error"`
	LastResponse *models.AIInvocationResponse `json:"last_response,omitempty"`
	FailedChecks []models.QualityCheck        `json:"failed_checks,omitempty"`
}

func (h *Handlers) respondRouteError(w http.ResponseWriter, err error) {
	var phiErr *models.PhiBlockedError
	var scanErr *models.ScannerUnavailableError
	var provErr *models.ProviderError
	var qualErr *models.QualityExhaustedError
	var escErr *models.EscalationExhaustedError

	switch {
	case errors.As(err, &phiErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":         phiErr.Error(),
			"finding_count": phiErr.FindingCount,
			"finding_types": phiErr.FindingTypes,
		})

	case errors.As(err, &scanErr):
		respondError(w, http.StatusServiceUnavailable, scanErr.Error())

	case errors.As(err, &qualErr):
		respondJSON(w, http.StatusUnprocessableEntity, exhaustedResponse{
			Error:        qualErr.Error(),
			LastResponse: qualErr.LastResponse,
			FailedChecks: qualErr.FailedChecks,
		})

	case errors.As(err, &escErr):
		respondJSON(w, http.StatusUnprocessableEntity, exhaustedResponse{
			Error:        escErr.Error(),
			LastResponse: escErr.LastResponse,
			FailedChecks: escErr.FailedChecks,
		})

	case errors.As(err, &provErr):
		respondError(w, http.StatusBadGateway, provErr.Error())

	default:
		log.Error().Err(err).Msg("Route failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// ── Standalone Quality Gate ─────────────────────────────────

type validateRequest struct {
	Content      string                     `json:"content" validate:"required"`
	Requirements models.QualityRequirements `json:"requirements"`
}

// ValidateContent runs the quality gate without routing.
func (h *Handlers) ValidateContent(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, h.Quality.Validate(req.Content, req.Requirements))
}

// ── Standalone Refinement ───────────────────────────────────

type refineRequest struct {
	Prompt       string                   `json:"prompt" validate:"required"`
	FailedChecks []models.QualityCheck    `json:"failed_checks" validate:"required,min=1"`
	Context      models.RefinementContext `json:"context"`
}

type refineResponse struct {
	models.RefinementResult
	// RefinedPrompt returns the augmented prompt to its owner. It is
	// excluded from the embedded result's JSON so it never rides along
	// into telemetry payloads.
	RefinedPrompt string `json:"refined_prompt,omitempty"`
}

// RefinePrompt runs the refinement service without routing.
func (h *Handlers) RefinePrompt(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rctx := req.Context
	rctx.OriginalPrompt = req.Prompt
	if rctx.MaxAttempts <= 0 {
		rctx.MaxAttempts = 3
	}
	if rctx.AppliedRules == nil {
		rctx.AppliedRules = make(map[string]int)
	}

	result := h.Refiner.Refine(req.Prompt, req.FailedChecks, rctx)
	respondJSON(w, http.StatusOK, refineResponse{
		RefinementResult: result,
		RefinedPrompt:    result.Prompt,
	})
}

// ── Router Introspection ────────────────────────────────────

// GetCostSummary returns accumulated session spend.
func (h *Handlers) GetCostSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Router.GetCostSummary())
}

// ProviderHealth pings the bound provider for each routable tier.
func (h *Handlers) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Router.HealthCheck(r.Context()))
}

// ListEvents returns recent pipeline audit events, newest first.
// Query params: limit (default 100), type (event type filter).
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.Trail == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"events": []models.PipelineEvent{}})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	eventType := models.EventType(r.URL.Query().Get("type"))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": h.Trail.Recent(limit, eventType),
	})
}

// ── Response Helpers ────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
