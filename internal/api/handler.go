package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/claimengine/internal/analysis"
	"github.com/opensource-finance/claimengine/internal/cache"
	"github.com/opensource-finance/claimengine/internal/domain"
	"github.com/opensource-finance/claimengine/internal/repository"
	"github.com/opensource-finance/claimengine/internal/worker"
)

// Analyzer runs the full claim analysis.
type Analyzer interface {
	Analyze(ctx context.Context, claim domain.Claim, traceID string) (*domain.ClaimAnalysis, error)
}

// AnalysisStore reads persisted analyses.
type AnalysisStore interface {
	GetAnalysis(ctx context.Context, id string) (*domain.ClaimAnalysis, error)
	Ping(ctx context.Context) error
}

// Deps are the components served by the API. A nil Analyses or Bus
// disables its endpoints with 503.
type Deps struct {
	Codes    analysis.CodeResolver
	Tariffs  analysis.TariffResolver
	Scorer   analysis.ConsistencyScorer
	Analyzer Analyzer

	Analyses AnalysisStore
	Cache    domain.Cache
	Bus      domain.EventBus

	// CacheStats collects lookup cache counters by cache name.
	CacheStats func() map[string]cache.Stats

	Version string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps Deps
}

// NewHandler creates an API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// TariffRequest is the request body for POST /resolve/tariff.
type TariffRequest struct {
	BillingCode string          `json:"billingCode"`
	Facility    domain.Facility `json:"facility"`
}

// ConsistencyRequest is the request body for POST /consistency.
type ConsistencyRequest struct {
	PrimaryDiagnosis string   `json:"primaryDiagnosis"`
	Procedures       []string `json:"procedures,omitempty"`
	Drugs            []string `json:"drugs,omitempty"`
}

// SubmitResponse is the response for POST /claims.
type SubmitResponse struct {
	ClaimID string `json:"claimId"`
	Status  string `json:"status"`
	TraceID string `json:"traceId,omitempty"`
}

// ResolveCode handles POST /resolve/code.
func (h *Handler) ResolveCode(w http.ResponseWriter, r *http.Request) {
	var req domain.CodeRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.deps.Codes.Resolve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ResolveTariff handles POST /resolve/tariff.
func (h *Handler) ResolveTariff(w http.ResponseWriter, r *http.Request) {
	var req TariffRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Facility.HospitalType.Valid() {
		ht, err := domain.ParseHospitalType(string(req.Facility.HospitalType))
		if err != nil {
			writeError(w, err)
			return
		}
		req.Facility.HospitalType = ht
	}

	quote, err := h.deps.Tariffs.Resolve(r.Context(), req.BillingCode, req.Facility)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// ScoreConsistency handles POST /consistency. Scoring itself never
// fails; only a missing diagnosis is rejected.
func (h *Handler) ScoreConsistency(w http.ResponseWriter, r *http.Request) {
	var req ConsistencyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PrimaryDiagnosis == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("primaryDiagnosis is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Scorer.Score(req.PrimaryDiagnosis, req.Procedures, req.Drugs))
}

// Analyze handles POST /analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var claim domain.Claim
	if !decode(w, r, &claim) {
		return
	}

	a, err := h.deps.Analyzer.Analyze(r.Context(), claim, GetTraceID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetAnalysis handles GET /analyses/{id}.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.deps.Analyses == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("repository not available"))
		return
	}

	a, err := h.deps.Analyses.GetAnalysis(r.Context(), id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get analysis", "id", id, "error", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// SubmitClaim handles POST /claims: the claim is validated, queued for
// the worker and acknowledged with 202.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	if h.deps.Bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("event bus not available"))
		return
	}

	var claim domain.Claim
	if !decode(w, r, &claim) {
		return
	}
	if err := analysis.Validate(&claim); err != nil {
		writeError(w, err)
		return
	}
	if claim.ID == "" {
		claim.ID = uuid.New().String()
	}

	traceID := GetTraceID(r.Context())
	payload, err := json.Marshal(worker.ClaimMessage{Claim: claim, TraceID: traceID})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Bus.Publish(r.Context(), domain.TopicClaimSubmitted, payload); err != nil {
		slog.Error("failed to queue claim", "claim_id", claim.ID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody("failed to queue claim"))
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		ClaimID: claim.ID,
		Status:  "accepted",
		TraceID: traceID,
	})
}

// CacheStats handles GET /cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]cache.Stats{}
	if h.deps.CacheStats != nil {
		stats = h.deps.CacheStats()
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := map[string]string{}
	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if h.deps.Analyses != nil {
		check("repository", h.deps.Analyses.Ping)
	}
	if h.deps.Cache != nil {
		check("cache", h.deps.Cache.Ping)
	}
	if h.deps.Bus != nil {
		check("bus", h.deps.Bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.deps.Version,
		"checks":  checks,
	})
}

// Ready reports whether reference lookups can be served.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Codes == nil || h.deps.Tariffs == nil || h.deps.Scorer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON request body"))
		return false
	}
	return true
}

// writeError maps engine errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidClaimInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, domain.ErrTariffNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(domain.ErrTariffNotFound.Error()))
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("analysis not found"))
	case errors.Is(err, domain.ErrReferenceStoreUnavailable):
		slog.Error("reference store unavailable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody(domain.ErrReferenceStoreUnavailable.Error()))
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal server error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
