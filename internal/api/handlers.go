package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-occupancy/internal/analytics"
	"github.com/technosupport/ts-occupancy/internal/data"
	"github.com/technosupport/ts-occupancy/internal/metrics"
)

// OccupancyProvider serves the live occupancy snapshots; in production it
// is the redis-fronted cache, in tests the analytics service directly.
type OccupancyProvider interface {
	CurrentOccupancy(ctx context.Context, regionID int) (*analytics.RegionOccupancy, error)
	AllRegionOccupancy(ctx context.Context) ([]*analytics.RegionOccupancy, error)
}

// AnalyticsService is the historical-analysis surface behind the handlers.
type AnalyticsService interface {
	HourlyRegionAggregate(ctx context.Context, regionID int, date time.Time) (*analytics.HourlyAggregate, error)
	DailyAnalysis(ctx context.Context, regionID int, date time.Time) (*analytics.DailyAnalysis, error)
	ComparativeAnalysis(ctx context.Context, regionID int, baseDate, compareDate time.Time) (*analytics.ComparativeAnalysis, error)
	ComprehensiveAnalysis(ctx context.Context, regionID int, fromDate, toDate time.Time) (*analytics.ComprehensiveAnalysis, error)
	DashboardOverview(ctx context.Context) (*analytics.DashboardOverview, error)
	RetentionCleanup(ctx context.Context, daysToKeep, batchSize int) (int64, error)
}

// RegionLister backs the read-only region listing.
type RegionLister interface {
	List(ctx context.Context) ([]*data.Region, error)
}

type AnalyticsHandler struct {
	Occupancy OccupancyProvider
	Service   AnalyticsService
	Regions   RegionLister

	// Tunables, when set, supplies the hot-reloadable defaults the config
	// watcher feeds at runtime.
	Tunables func() Tunables

	loc *time.Location
}

// Tunables are the runtime-adjustable knobs.
type Tunables struct {
	RetentionDays  int
	RetentionBatch int
	LiveInterval   time.Duration
}

// NewAnalyticsHandler builds the handler. loc is the location the
// analytics layer windows days in; request dates parse in the same
// location so the caller's calendar day never shifts at a zone boundary.
func NewAnalyticsHandler(occ OccupancyProvider, svc AnalyticsService, regions RegionLister, loc *time.Location) *AnalyticsHandler {
	if loc == nil {
		loc = time.Local
	}
	return &AnalyticsHandler{Occupancy: occ, Service: svc, Regions: regions, loc: loc}
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the analytics sentinels onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analytics.ErrRegionNotFound):
		respondError(w, http.StatusNotFound, "Region not found")
	case errors.Is(err, analytics.ErrInvalidDateRange):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		metrics.QueryErrors.WithLabelValues("api").Inc()
		log.Printf("[ERROR] API: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func regionIDParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// dateQuery parses a YYYY-MM-DD query param in the analytics location,
// defaulting to today when the param is absent.
func (h *AnalyticsHandler) dateQuery(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Now(), nil
	}
	return time.ParseInLocation("2006-01-02", v, h.loc)
}

func (h *AnalyticsHandler) requiredDateQuery(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, errors.New("missing date parameter: " + name)
	}
	return time.ParseInLocation("2006-01-02", v, h.loc)
}

// GET /api/v1/regions
func (h *AnalyticsHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.Regions.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"regions": regions,
		"count":   len(regions),
	})
}

// GET /api/v1/occupancy
func (h *AnalyticsHandler) AllOccupancy(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Occupancy.AllRegionOccupancy(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"regions":   snaps,
		"timestamp": time.Now(),
	})
}

// GET /api/v1/regions/{id}/occupancy
func (h *AnalyticsHandler) RegionOccupancy(w http.ResponseWriter, r *http.Request) {
	regionID, err := regionIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid region ID")
		return
	}
	snap, err := h.Occupancy.CurrentOccupancy(r.Context(), regionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GET /api/v1/regions/{id}/analysis/hourly?date=YYYY-MM-DD
func (h *AnalyticsHandler) HourlyAnalysis(w http.ResponseWriter, r *http.Request) {
	regionID, err := regionIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid region ID")
		return
	}
	date, err := h.dateQuery(r, "date")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}
	agg, err := h.Service.HourlyRegionAggregate(r.Context(), regionID, date)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agg)
}

// GET /api/v1/regions/{id}/analysis/daily?date=YYYY-MM-DD
func (h *AnalyticsHandler) DailyAnalysis(w http.ResponseWriter, r *http.Request) {
	regionID, err := regionIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid region ID")
		return
	}
	date, err := h.dateQuery(r, "date")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}
	report, err := h.Service.DailyAnalysis(r.Context(), regionID, date)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GET /api/v1/regions/{id}/analysis/compare?date=YYYY-MM-DD&compare_date=YYYY-MM-DD
func (h *AnalyticsHandler) CompareAnalysis(w http.ResponseWriter, r *http.Request) {
	regionID, err := regionIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid region ID")
		return
	}
	base, err := h.dateQuery(r, "date")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}
	compare, err := h.requiredDateQuery(r, "compare_date")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.Service.ComparativeAnalysis(r.Context(), regionID, base, compare)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GET /api/v1/regions/{id}/analysis/range?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *AnalyticsHandler) RangeAnalysis(w http.ResponseWriter, r *http.Request) {
	regionID, err := regionIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid region ID")
		return
	}
	from, err := h.requiredDateQuery(r, "from")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := h.requiredDateQuery(r, "to")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.Service.ComprehensiveAnalysis(r.Context(), regionID, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GET /api/v1/dashboard
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Service.DashboardOverview(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

// POST /api/v1/admin/retention
func (h *AnalyticsHandler) RunRetention(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DaysToKeep int `json:"days_to_keep"`
		BatchSize  int `json:"batch_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	// Omitted fields fall back to the current config values, which the
	// watcher keeps fresh across reloads.
	if h.Tunables != nil {
		t := h.Tunables()
		if req.DaysToKeep == 0 {
			req.DaysToKeep = t.RetentionDays
		}
		if req.BatchSize == 0 {
			req.BatchSize = t.RetentionBatch
		}
	}
	deleted, err := h.Service.RetentionCleanup(r.Context(), req.DaysToKeep, req.BatchSize)
	if err != nil {
		if errors.Is(err, analytics.ErrRetentionTooShort) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"deleted_rows": deleted,
	})
}
