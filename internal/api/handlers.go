package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/enrich"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

type handlers struct {
	deps Deps
}

type batchRequest struct {
	Businesses   []model.Business `json:"businesses"`
	Sources      []model.Source   `json:"sources,omitempty"`
	Priority     model.Priority   `json:"priority,omitempty"`
	SkipExisting bool             `json:"skip_existing"`
	TimeoutSecs  int              `json:"timeout_secs,omitempty"`
	RequestID    string           `json:"request_id,omitempty"`
}

type matchRequest struct {
	Record1 model.Business `json:"record1"`
	Record2 model.Business `json:"record2"`
}

type bestMatchRequest struct {
	Target     model.Business   `json:"target"`
	Candidates []model.Business `json:"candidates"`
	MinScore   float64          `json:"min_score"`
	MaxResults int              `json:"max_results"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Businesses) == 0 {
		writeError(w, http.StatusBadRequest, "businesses is required")
		return
	}
	if len(req.Businesses) > h.deps.MaxBatch {
		writeError(w, http.StatusRequestEntityTooLarge, "too many businesses")
		return
	}
	if req.TimeoutSecs < 0 {
		writeError(w, http.StatusBadRequest, "timeout_secs must be >= 0")
		return
	}

	id, err := h.deps.Coordinator.SubmitBatch(r.Context(), req.Businesses, enrich.BatchOptions{
		Sources:      req.Sources,
		Priority:     req.Priority,
		SkipExisting: req.SkipExisting,
		Timeout:      time.Duration(req.TimeoutSecs) * time.Second,
		RequestID:    req.RequestID,
	})
	switch {
	case errors.Is(err, enrich.ErrDuplicateRequest):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		zap.L().Warn("api: batch rejected", zap.String("request_id", id), zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"request_id": id, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": id, "status": string(model.BatchPending)})
}

func (h *handlers) getProgress(w http.ResponseWriter, r *http.Request) {
	p, ok := h.deps.Coordinator.GetProgress(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) getResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if res, ok := h.deps.Coordinator.GetBatchResult(id); ok {
		writeJSON(w, http.StatusOK, res)
		return
	}
	if _, ok := h.deps.Coordinator.GetProgress(id); ok {
		writeError(w, http.StatusConflict, "request still running")
		return
	}
	writeError(w, http.StatusNotFound, "request not found")
}

func (h *handlers) cancelBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.deps.Coordinator.CancelRequest(id) {
		writeError(w, http.StatusNotFound, "no active request with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"request_id": id, "status": string(model.BatchCancelled)})
}

func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Coordinator.GetStatistics())
}

func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := h.deps.Coordinator.Profile(r.Context(), id)
	if err != nil {
		zap.L().Error("api: profile lookup failed", zap.String("business_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "profile lookup failed")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusNotFound, "no enrichment history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"business_id": id,
		"fields":      data,
		"latest":      data.Flatten(),
	})
}

func (h *handlers) match(w http.ResponseWriter, r *http.Request) {
	if h.deps.Matcher == nil {
		writeError(w, http.StatusNotImplemented, "matcher not configured")
		return
	}
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Matcher.MatchRecords(req.Record1, req.Record2))
}

func (h *handlers) bestMatches(w http.ResponseWriter, r *http.Request) {
	if h.deps.Matcher == nil {
		writeError(w, http.StatusNotImplemented, "matcher not configured")
		return
	}
	var req bestMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 10
	}
	results := h.deps.Matcher.FindBestMatches(req.Target, req.Candidates, req.MinScore, req.MaxResults)
	writeJSON(w, http.StatusOK, map[string]any{"matches": results, "count": len(results)})
}
