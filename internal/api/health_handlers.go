package api

import (
	"context"
	"net/http"
	"time"

	"github.com/technosupport/ts-occupancy/internal/data"
)

// Pinger is the liveness probe for a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IngestStats reports recent ingestion activity for the health surface.
type IngestStats interface {
	IngestHealth(ctx context.Context, since time.Time) (*data.IngestHealth, error)
}

type HealthHandler struct {
	DB    Pinger
	Redis Pinger // may be nil when the cache is disabled
	Stats IngestStats
}

func NewHealthHandler(db, redis Pinger, stats IngestStats) *HealthHandler {
	return &HealthHandler{DB: db, Redis: redis, Stats: stats}
}

// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	if err := h.DB.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.Redis != nil {
		if err := h.Redis.Ping(ctx); err != nil {
			// Cache loss degrades latency, not correctness.
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	body := map[string]any{"checks": checks}
	if status == http.StatusOK {
		body["status"] = "healthy"
	} else {
		body["status"] = "unhealthy"
	}
	respondJSON(w, status, body)
}

// GET /api/v1/health/ingest
func (h *HealthHandler) IngestHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Stats.IngestHealth(r.Context(), time.Now().Add(-time.Hour))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
