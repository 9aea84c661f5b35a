package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter mounts every endpoint of h. gatherer backs /metrics.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/model-health", h.ModelHealth)
	r.Get("/stats", h.Stats)
	r.Get("/strategies", h.Strategies)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/optimize/efficiency", h.PredictEfficiency)
	r.Post("/predict/maintenance", h.PredictMaintenance)
	r.Post("/optimize/energy", h.OptimizeEnergy)
	r.Post("/predict/batch", h.PredictBatch)
	r.Post("/optimize/unit", h.OptimizeUnit)
	r.Post("/optimize/network", h.OptimizeNetwork)

	r.Route("/models", func(r chi.Router) {
		r.Post("/save", h.SaveModels)
		r.Post("/load", h.LoadModels)
	})

	r.Route("/units", func(r chi.Router) {
		r.Get("/", h.PlannedUnits)
		r.Get("/{unitID}/plan", h.LatestPlan)
		r.Get("/{unitID}/runs", h.RecentRuns)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
