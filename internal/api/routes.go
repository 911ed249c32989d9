package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the public HTTP surface.
func Router(analytics *AnalyticsHandler, live *LiveOccupancyHandler, health *HealthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", health.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/regions", analytics.ListRegions)
		r.Get("/occupancy", analytics.AllOccupancy)
		r.Get("/occupancy/live", live.ServeWS)
		r.Get("/dashboard", analytics.Dashboard)
		r.Get("/health/ingest", health.IngestHealth)

		r.Route("/regions/{id}", func(r chi.Router) {
			r.Get("/occupancy", analytics.RegionOccupancy)
			r.Route("/analysis", func(r chi.Router) {
				r.Get("/hourly", analytics.HourlyAnalysis)
				r.Get("/daily", analytics.DailyAnalysis)
				r.Get("/compare", analytics.CompareAnalysis)
				r.Get("/range", analytics.RangeAnalysis)
			})
		})

		r.Post("/admin/retention", analytics.RunRetention)
	})

	return r
}
