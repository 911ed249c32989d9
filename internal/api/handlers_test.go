package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-occupancy/internal/analytics"
	"github.com/technosupport/ts-occupancy/internal/data"
)

type stubOccupancy struct {
	snap *analytics.RegionOccupancy
	err  error
}

func (s *stubOccupancy) CurrentOccupancy(ctx context.Context, regionID int) (*analytics.RegionOccupancy, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func (s *stubOccupancy) AllRegionOccupancy(ctx context.Context) ([]*analytics.RegionOccupancy, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []*analytics.RegionOccupancy{s.snap}, nil
}

type stubAnalytics struct {
	hourly    *analytics.HourlyAggregate
	daily     *analytics.DailyAnalysis
	compare   *analytics.ComparativeAnalysis
	rangeRep  *analytics.ComprehensiveAnalysis
	dashboard *analytics.DashboardOverview
	deleted   int64
	err       error

	gotDays  int
	gotBatch int
	gotDate  time.Time
}

func (s *stubAnalytics) HourlyRegionAggregate(ctx context.Context, regionID int, date time.Time) (*analytics.HourlyAggregate, error) {
	s.gotDate = date
	return s.hourly, s.err
}
func (s *stubAnalytics) DailyAnalysis(ctx context.Context, regionID int, date time.Time) (*analytics.DailyAnalysis, error) {
	return s.daily, s.err
}
func (s *stubAnalytics) ComparativeAnalysis(ctx context.Context, regionID int, baseDate, compareDate time.Time) (*analytics.ComparativeAnalysis, error) {
	return s.compare, s.err
}
func (s *stubAnalytics) ComprehensiveAnalysis(ctx context.Context, regionID int, fromDate, toDate time.Time) (*analytics.ComprehensiveAnalysis, error) {
	return s.rangeRep, s.err
}
func (s *stubAnalytics) DashboardOverview(ctx context.Context) (*analytics.DashboardOverview, error) {
	return s.dashboard, s.err
}
func (s *stubAnalytics) RetentionCleanup(ctx context.Context, daysToKeep, batchSize int) (int64, error) {
	s.gotDays, s.gotBatch = daysToKeep, batchSize
	return s.deleted, s.err
}

type stubRegions struct {
	regions []*data.Region
	err     error
}

func (s *stubRegions) List(ctx context.Context) ([]*data.Region, error) {
	return s.regions, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type stubStats struct {
	health *data.IngestHealth
	err    error
}

func (s *stubStats) IngestHealth(ctx context.Context, since time.Time) (*data.IngestHealth, error) {
	return s.health, s.err
}

func testRouter(occ OccupancyProvider, svc AnalyticsService, regions RegionLister, db, rds Pinger, stats IngestStats) http.Handler {
	if occ == nil {
		occ = &stubOccupancy{snap: &analytics.RegionOccupancy{RegionID: 1, RegionName: "Atrium"}}
	}
	if svc == nil {
		svc = &stubAnalytics{}
	}
	if regions == nil {
		regions = &stubRegions{}
	}
	if stats == nil {
		stats = &stubStats{health: &data.IngestHealth{}}
	}
	return Router(
		NewAnalyticsHandler(occ, svc, regions, nil),
		NewLiveOccupancyHandler(occ, 50*time.Millisecond),
		NewHealthHandler(db, rds, stats),
	)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegionOccupancy_OK(t *testing.T) {
	occ := &stubOccupancy{snap: &analytics.RegionOccupancy{
		RegionID:     7,
		RegionName:   "Atrium",
		CurrentCount: 12,
		MaxOccupancy: 50,
		Percentage:   24.0,
	}}
	h := testRouter(occ, nil, nil, stubPinger{}, nil, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/regions/7/occupancy", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got analytics.RegionOccupancy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 12, got.CurrentCount)
	assert.Equal(t, 24.0, got.Percentage)
}

func TestRegionOccupancy_BadID(t *testing.T) {
	h := testRouter(nil, nil, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/regions/not-a-number/occupancy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegionOccupancy_NotFound(t *testing.T) {
	occ := &stubOccupancy{err: analytics.ErrRegionNotFound}
	h := testRouter(occ, nil, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/regions/99/occupancy", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAllOccupancy_OK(t *testing.T) {
	h := testRouter(nil, nil, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/occupancy", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Regions []analytics.RegionOccupancy `json:"regions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Regions, 1)
	assert.Equal(t, "Atrium", body.Regions[0].RegionName)
}

func TestHourlyAnalysis_DefaultsToToday(t *testing.T) {
	svc := &stubAnalytics{hourly: &analytics.HourlyAggregate{RegionName: "Atrium"}}
	h := testRouter(nil, svc, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/regions/1/analysis/hourly", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHourlyAnalysis_ParsesDateInAnalyticsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	svc := &stubAnalytics{hourly: &analytics.HourlyAggregate{}}
	h := NewAnalyticsHandler(&stubOccupancy{}, svc, &stubRegions{}, loc)
	router := Router(h, NewLiveOccupancyHandler(&stubOccupancy{}, time.Second), NewHealthHandler(stubPinger{}, nil, &stubStats{}))

	rec := doRequest(t, router, http.MethodGet, "/api/v1/regions/1/analysis/hourly?date=2026-03-14", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// The requested calendar day must be midnight in the analytics zone,
	// not the process-local zone, or boundary requests shift by a day.
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, loc), svc.gotDate)
}

func TestHourlyAnalysis_BadDate(t *testing.T) {
	h := testRouter(nil, nil, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/regions/1/analysis/hourly?date=14-03-2026", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareAnalysis_RequiresCompareDate(t *testing.T) {
	h := testRouter(nil, nil, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/regions/1/analysis/compare?date=2026-03-14", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRangeAnalysis_InvalidRangeMapsTo400(t *testing.T) {
	svc := &stubAnalytics{err: analytics.ErrInvalidDateRange}
	h := testRouter(nil, svc, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/regions/1/analysis/range?from=2026-03-01&to=2026-03-20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRangeAnalysis_InternalErrorHidesDetail(t *testing.T) {
	svc := &stubAnalytics{err: errors.New("pq: relation blown up")}
	h := testRouter(nil, svc, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/regions/1/analysis/range?from=2026-03-01&to=2026-03-02", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestRunRetention(t *testing.T) {
	svc := &stubAnalytics{deleted: 20412}
	h := testRouter(nil, svc, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/retention", `{"days_to_keep": 90, "batch_size": 5000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 90, svc.gotDays)
	assert.Equal(t, 5000, svc.gotBatch)

	var body struct {
		Deleted int64 `json:"deleted_rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(20412), body.Deleted)
}

func TestRunRetention_OmittedFieldsUseTunables(t *testing.T) {
	svc := &stubAnalytics{deleted: 7}
	h := NewAnalyticsHandler(nil, svc, &stubRegions{}, nil)

	// The server feeds this from its config pointer; a reload changes
	// what the next request sees.
	current := Tunables{RetentionDays: 30, RetentionBatch: 2000}
	h.Tunables = func() Tunables { return current }

	router := Router(h, NewLiveOccupancyHandler(&stubOccupancy{}, time.Second), NewHealthHandler(stubPinger{}, nil, &stubStats{}))

	rec := doRequest(t, router, http.MethodPost, "/api/v1/admin/retention", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, svc.gotDays)
	assert.Equal(t, 2000, svc.gotBatch)

	current = Tunables{RetentionDays: 14, RetentionBatch: 500}
	rec = doRequest(t, router, http.MethodPost, "/api/v1/admin/retention", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, svc.gotDays)
	assert.Equal(t, 500, svc.gotBatch)

	// Explicit values still win over the defaults.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/admin/retention", `{"days_to_keep": 60}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 60, svc.gotDays)
	assert.Equal(t, 500, svc.gotBatch)
}

func TestRunRetention_TooShort(t *testing.T) {
	svc := &stubAnalytics{err: analytics.ErrRetentionTooShort}
	h := testRouter(nil, svc, nil, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodPost, "/api/v1/admin/retention", `{"days_to_keep": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRegions(t *testing.T) {
	regions := &stubRegions{regions: []*data.Region{{ID: 1, Name: "Atrium", Occupancy: 50}}}
	h := testRouter(nil, nil, regions, stubPinger{}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/regions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Atrium")
}

func TestHealthz(t *testing.T) {
	h := testRouter(nil, nil, nil, stubPinger{}, stubPinger{}, nil)
	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestHealthz_DatabaseDown(t *testing.T) {
	h := testRouter(nil, nil, nil, stubPinger{err: errors.New("dial tcp: refused")}, nil, nil)
	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz_RedisDownStaysHealthy(t *testing.T) {
	h := testRouter(nil, nil, nil, stubPinger{}, stubPinger{err: errors.New("refused")}, nil)
	rec := doRequest(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLiveOccupancyHandler_IntervalOverride(t *testing.T) {
	h := NewLiveOccupancyHandler(&stubOccupancy{}, time.Second)
	assert.Equal(t, time.Second, h.interval())

	h.IntervalFn = func() time.Duration { return 250 * time.Millisecond }
	assert.Equal(t, 250*time.Millisecond, h.interval())

	// A zero from the override falls back to the constructed interval.
	h.IntervalFn = func() time.Duration { return 0 }
	assert.Equal(t, time.Second, h.interval())
}

func TestLiveOccupancyFeed(t *testing.T) {
	h := testRouter(nil, nil, nil, stubPinger{}, nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/occupancy/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// First frame arrives immediately, before the first tick.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Regions []analytics.RegionOccupancy `json:"regions"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Len(t, frame.Regions, 1)
	assert.Equal(t, "Atrium", frame.Regions[0].RegionName)

	// And the ticker keeps the frames coming.
	require.NoError(t, conn.ReadJSON(&frame))
}
