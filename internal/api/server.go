// Package api exposes the enrichment coordinator and the matcher over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/enrich"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/matcher"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

// Coordinator is the subset of *enrich.Coordinator the API serves.
type Coordinator interface {
	SubmitBatch(ctx context.Context, businesses []model.Business, opts enrich.BatchOptions) (string, error)
	GetProgress(id string) (model.Progress, bool)
	GetBatchResult(id string) (*model.BatchEnrichmentResult, bool)
	CancelRequest(id string) bool
	GetStatistics() enrich.Statistics
	Profile(ctx context.Context, businessID string) (model.EnrichmentData, error)
}

// Deps are the handlers' collaborators.
type Deps struct {
	Coordinator Coordinator
	Matcher     *matcher.Matcher
	// Metrics serves /metrics when set.
	Metrics     http.Handler
	CORSOrigins []string
	// MaxBatch caps businesses per request. Zero means 10000.
	MaxBatch int
}

// NewRouter builds the HTTP handler tree.
func NewRouter(d Deps) http.Handler {
	if d.MaxBatch <= 0 {
		d.MaxBatch = 10000
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h := &handlers{deps: d}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", h.submitBatch)
		r.Get("/{id}/progress", h.getProgress)
		r.Get("/{id}/result", h.getResult)
		r.Delete("/{id}", h.cancelBatch)
	})
	r.Get("/stats", h.stats)
	r.Get("/businesses/{id}/profile", h.profile)
	r.Post("/match", h.match)
	r.Post("/match/best", h.bestMatches)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
