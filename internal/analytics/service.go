package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-occupancy/internal/data"
	"github.com/technosupport/ts-occupancy/internal/metrics"
)

// MaxRangeDays bounds the comprehensive analysis span. Aggregation cost
// grows linearly with days; the dashboard never needs more than a week at
// once.
const MaxRangeDays = 7

// OccupancyWindow is how far back a camera's latest sample may be and still
// count toward current occupancy. Silent cameras contribute zero.
const OccupancyWindow = 5 * time.Minute

type RegionRepository interface {
	GetByID(ctx context.Context, id int) (*data.Region, error)
	List(ctx context.Context) ([]*data.Region, error)
	Count(ctx context.Context) (int, error)
}

type CameraRepository interface {
	ListActiveByRegion(ctx context.Context, regionID int) ([]*data.Camera, error)
	Counts(ctx context.Context) (total, active int, err error)
}

type EventRepository interface {
	LatestSince(ctx context.Context, cameraID uuid.UUID, since time.Time) (*data.CountingEvent, error)
	ListForWindowByCameras(ctx context.Context, cameraIDs []uuid.UUID, start, end time.Time) ([]data.EventSample, error)
	DailyPeaks(ctx context.Context, cameraIDs []uuid.UUID, start, end time.Time) (map[uuid.UUID]data.DailyPeak, error)
	DailyPeakTrend(ctx context.Context, cameraIDs []uuid.UUID, start, end time.Time, tz string) ([]data.DailyPeakTrendRow, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	VolumeStats(ctx context.Context, tz string) (*data.VolumeStats, error)
	IngestHealth(ctx context.Context, since time.Time) (*data.IngestHealth, error)
}

// Service is the read-side query layer over the immutable event store. It
// holds no mutable state; every method is safe for arbitrary read
// concurrency and never blocks ingestion writes.
type Service struct {
	regions RegionRepository
	cameras CameraRepository
	events  EventRepository
	loc     *time.Location
	now     func() time.Time // injectable for tests
}

func NewService(regions RegionRepository, cameras CameraRepository, events EventRepository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		regions: regions,
		cameras: cameras,
		events:  events,
		loc:     loc,
		now:     time.Now,
	}
}

// dayWindow returns [local midnight, next local midnight) for the calendar
// day containing d.
func (s *Service) dayWindow(d time.Time) (time.Time, time.Time) {
	local := d.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

// HourlyRegionAggregate computes the carry-forward hourly series for every
// active camera in the region on the given calendar date and sums them.
// Always returns 24 rows; regions with no cameras or no data get zeros,
// not an error.
func (s *Service) HourlyRegionAggregate(ctx context.Context, regionID int, date time.Time) (*HourlyAggregate, error) {
	timer := time.Now()
	defer func() { metrics.QueryDuration.WithLabelValues("hourly_aggregate").Observe(time.Since(timer).Seconds()) }()

	region, err := s.regions.GetByID(ctx, regionID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, ErrRegionNotFound
		}
		return nil, err
	}

	start, end := s.dayWindow(date)
	agg := &HourlyAggregate{
		RegionID:   region.ID,
		RegionName: region.Name,
		Date:       start.Format("2006-01-02"),
		Hours:      make([]HourlyRegionRow, 24),
	}
	for h := range agg.Hours {
		agg.Hours[h].Hour = h
	}

	cameras, err := s.cameras.ListActiveByRegion(ctx, regionID)
	if err != nil {
		return nil, err
	}
	agg.CameraCount = len(cameras)
	if len(cameras) == 0 {
		return agg, nil
	}

	ids := make([]uuid.UUID, len(cameras))
	for i, c := range cameras {
		ids[i] = c.ID
	}

	samples, err := s.events.ListForWindowByCameras(ctx, ids, start, end)
	if err != nil {
		metrics.QueryErrors.WithLabelValues("hourly_aggregate").Inc()
		return nil, err
	}

	grouped := groupByCamera(samples)
	series := make(map[uuid.UUID][24]HourlyPair, len(cameras))
	for _, cam := range cameras {
		series[cam.ID] = carryForwardSeries(grouped[cam.ID], s.loc)
	}

	agg.Hours = aggregateRegionHours(series)

	agg.Cameras = make([]CameraHourlySeries, 0, len(cameras))
	for _, cam := range cameras {
		camSeries := series[cam.ID]
		cs := CameraHourlySeries{
			CameraID:   cam.ID.String(),
			CameraName: cam.Name,
			Hours:      camSeries[:],
			Samples:    len(grouped[cam.ID]),
		}
		agg.Cameras = append(agg.Cameras, cs)
	}
	return agg, nil
}

// CameraOccupancy is one camera's contribution to current occupancy.
type CameraOccupancy struct {
	CameraName  string     `json:"camera_name"`
	Occupancy   int        `json:"current_occupancy"`
	LastIn      int        `json:"last_in"`
	LastOut     int        `json:"last_out"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Status      string     `json:"status"` // active, no_data
}

// RegionOccupancy is the current occupancy snapshot for one region.
type RegionOccupancy struct {
	RegionID     int               `json:"region_id"`
	RegionName   string            `json:"region_name"`
	CurrentCount int               `json:"current_count"`
	MaxOccupancy int               `json:"max_occupancy"`
	Percentage   float64           `json:"occupancy_percentage"`
	Cameras      []CameraOccupancy `json:"cameras"`
	Timestamp    time.Time         `json:"timestamp"`
}

// CurrentOccupancy derives the region's live occupancy from each active
// camera's latest sample within the trailing window. A camera with no
// recent sample is treated as currently unknown and contributes zero.
func (s *Service) CurrentOccupancy(ctx context.Context, regionID int) (*RegionOccupancy, error) {
	timer := time.Now()
	defer func() { metrics.QueryDuration.WithLabelValues("occupancy").Observe(time.Since(timer).Seconds()) }()

	region, err := s.regions.GetByID(ctx, regionID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, ErrRegionNotFound
		}
		return nil, err
	}
	return s.occupancyForRegion(ctx, region)
}

func (s *Service) occupancyForRegion(ctx context.Context, region *data.Region) (*RegionOccupancy, error) {
	now := s.now()
	occ := &RegionOccupancy{
		RegionID:     region.ID,
		RegionName:   region.Name,
		MaxOccupancy: region.Occupancy,
		Timestamp:    now,
	}

	cameras, err := s.cameras.ListActiveByRegion(ctx, region.ID)
	if err != nil {
		return nil, err
	}

	since := now.Add(-OccupancyWindow)
	for _, cam := range cameras {
		co := CameraOccupancy{CameraName: cam.Name, Status: "no_data"}

		latest, err := s.events.LatestSince(ctx, cam.ID, since)
		switch {
		case err == nil:
			// Device glitches can report out > in; occupancy never goes
			// negative.
			co.Occupancy = max(0, latest.InCount-latest.OutCount)
			co.LastIn = latest.InCount
			co.LastOut = latest.OutCount
			t := latest.CreatedAt
			co.LastUpdated = &t
			co.Status = "active"
			occ.CurrentCount += co.Occupancy
		case errors.Is(err, data.ErrRecordNotFound):
			// silent camera, contributes zero
		default:
			return nil, err
		}
		occ.Cameras = append(occ.Cameras, co)
	}

	if region.Occupancy > 0 {
		pct := float64(occ.CurrentCount) / float64(region.Occupancy) * 100
		occ.Percentage = math.Round(math.Min(pct, 100)*10) / 10
	}
	return occ, nil
}

// AllRegionOccupancy returns every region's snapshot for the public
// display. Regions with zero cameras appear with zero occupancy rather
// than erroring.
func (s *Service) AllRegionOccupancy(ctx context.Context) ([]*RegionOccupancy, error) {
	regions, err := s.regions.List(ctx)
	if err != nil {
		return nil, err
	}
	snapshots := make([]*RegionOccupancy, 0, len(regions))
	for _, region := range regions {
		occ, err := s.occupancyForRegion(ctx, region)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, occ)
	}
	return snapshots, nil
}

// CameraPeaks is one camera's daily peak counts.
type CameraPeaks struct {
	CameraName string `json:"camera_name"`
	PeakIn     int    `json:"peak_in"`
	PeakOut    int    `json:"peak_out"`
	PeakTotal  int    `json:"peak_total"`
}

// PeaksSummary totals peaks across a region's cameras.
type PeaksSummary struct {
	TotalPeakIn    int `json:"total_peak_in"`
	TotalPeakOut   int `json:"total_peak_out"`
	TotalPeakTotal int `json:"total_peak_total"`
	ActiveCameras  int `json:"active_cameras"`
}

// DailyAnalysis combines per-camera daily peaks with the hourly
// carry-forward breakdown.
type DailyAnalysis struct {
	Date    string           `json:"analysis_date"`
	Cameras []CameraPeaks    `json:"cameras"`
	Summary PeaksSummary     `json:"summary"`
	Hourly  *HourlyAggregate `json:"hourly_breakdown"`
}

func (s *Service) DailyAnalysis(ctx context.Context, regionID int, date time.Time) (*DailyAnalysis, error) {
	hourly, err := s.HourlyRegionAggregate(ctx, regionID, date)
	if err != nil {
		return nil, err
	}

	start, end := s.dayWindow(date)
	cameras, err := s.cameras.ListActiveByRegion(ctx, regionID)
	if err != nil {
		return nil, err
	}

	analysis := &DailyAnalysis{
		Date:    start.Format("2006-01-02"),
		Cameras: []CameraPeaks{},
		Hourly:  hourly,
	}
	if len(cameras) == 0 {
		return analysis, nil
	}

	ids := make([]uuid.UUID, len(cameras))
	for i, c := range cameras {
		ids[i] = c.ID
	}
	peaks, err := s.events.DailyPeaks(ctx, ids, start, end)
	if err != nil {
		metrics.QueryErrors.WithLabelValues("daily_analysis").Inc()
		return nil, err
	}

	for _, cam := range cameras {
		p, ok := peaks[cam.ID]
		if !ok {
			continue // camera reported nothing that day
		}
		analysis.Cameras = append(analysis.Cameras, CameraPeaks{
			CameraName: cam.Name,
			PeakIn:     p.PeakIn,
			PeakOut:    p.PeakOut,
			PeakTotal:  p.PeakTotal,
		})
		analysis.Summary.TotalPeakIn += p.PeakIn
		analysis.Summary.TotalPeakOut += p.PeakOut
		analysis.Summary.TotalPeakTotal += p.PeakTotal
		analysis.Summary.ActiveCameras++
	}
	return analysis, nil
}

// CameraComparison is one camera's peak diff between two dates. A camera
// absent on either date counts as zero on that side.
type CameraComparison struct {
	CameraName   string `json:"camera_name"`
	BaseIn       int    `json:"base_in"`
	BaseOut      int    `json:"base_out"`
	BaseTotal    int    `json:"base_total"`
	CompareIn    int    `json:"compare_in"`
	CompareOut   int    `json:"compare_out"`
	CompareTotal int    `json:"compare_total"`
	DiffIn       int    `json:"diff_in"`
	DiffOut      int    `json:"diff_out"`
	DiffTotal    int    `json:"diff_total"`
}

// ComparativeAnalysis diffs two dates' daily peaks per camera.
type ComparativeAnalysis struct {
	BaseDate       string             `json:"base_date"`
	CompareDate    string             `json:"compare_date"`
	Comparison     []CameraComparison `json:"comparison"`
	BaseSummary    PeaksSummary       `json:"base_summary"`
	CompareSummary PeaksSummary       `json:"compare_summary"`
}

func (s *Service) ComparativeAnalysis(ctx context.Context, regionID int, baseDate, compareDate time.Time) (*ComparativeAnalysis, error) {
	base, err := s.DailyAnalysis(ctx, regionID, baseDate)
	if err != nil {
		return nil, err
	}
	compare, err := s.DailyAnalysis(ctx, regionID, compareDate)
	if err != nil {
		return nil, err
	}

	byName := func(list []CameraPeaks) map[string]CameraPeaks {
		m := make(map[string]CameraPeaks, len(list))
		for _, p := range list {
			m[p.CameraName] = p
		}
		return m
	}
	basePeaks := byName(base.Cameras)
	comparePeaks := byName(compare.Cameras)

	// Union of names so a camera active on only one date still shows up.
	seen := make(map[string]bool)
	var names []string
	for _, p := range base.Cameras {
		if !seen[p.CameraName] {
			seen[p.CameraName] = true
			names = append(names, p.CameraName)
		}
	}
	for _, p := range compare.Cameras {
		if !seen[p.CameraName] {
			seen[p.CameraName] = true
			names = append(names, p.CameraName)
		}
	}

	result := &ComparativeAnalysis{
		BaseDate:       base.Date,
		CompareDate:    compare.Date,
		Comparison:     []CameraComparison{},
		BaseSummary:    base.Summary,
		CompareSummary: compare.Summary,
	}
	for _, name := range names {
		b := basePeaks[name] // zero value when missing
		c := comparePeaks[name]
		result.Comparison = append(result.Comparison, CameraComparison{
			CameraName:   name,
			BaseIn:       b.PeakIn,
			BaseOut:      b.PeakOut,
			BaseTotal:    b.PeakTotal,
			CompareIn:    c.PeakIn,
			CompareOut:   c.PeakOut,
			CompareTotal: c.PeakTotal,
			DiffIn:       c.PeakIn - b.PeakIn,
			DiffOut:      c.PeakOut - b.PeakOut,
			DiffTotal:    c.PeakTotal - b.PeakTotal,
		})
	}
	return result, nil
}

// CameraDailyTrend is one camera's per-day peak series over a range.
type CameraDailyTrend struct {
	CameraName string          `json:"camera_name"`
	Days       []DailyTrendRow `json:"daily_data"`
}

type DailyTrendRow struct {
	Date      string `json:"date"`
	PeakIn    int    `json:"peak_in_count"`
	PeakOut   int    `json:"peak_out_count"`
	PeakTotal int    `json:"peak_total_count"`
}

// ComprehensiveAnalysis is the bounded date-range trend report.
type ComprehensiveAnalysis struct {
	FromDate  string             `json:"from_date"`
	ToDate    string             `json:"to_date"`
	TotalDays int                `json:"total_days"`
	Trends    []CameraDailyTrend `json:"daily_trends"`
}

// ComprehensiveAnalysis reports per-camera daily peak trends over
// [fromDate, toDate]. Ranges over MaxRangeDays are rejected with
// ErrInvalidDateRange, never truncated.
func (s *Service) ComprehensiveAnalysis(ctx context.Context, regionID int, fromDate, toDate time.Time) (*ComprehensiveAnalysis, error) {
	if err := s.ValidateDateRange(fromDate, toDate, MaxRangeDays); err != nil {
		return nil, err
	}

	if _, err := s.regions.GetByID(ctx, regionID); err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			return nil, ErrRegionNotFound
		}
		return nil, err
	}

	start, _ := s.dayWindow(fromDate)
	_, end := s.dayWindow(toDate)

	result := &ComprehensiveAnalysis{
		FromDate:  start.Format("2006-01-02"),
		ToDate:    end.AddDate(0, 0, -1).Format("2006-01-02"),
		TotalDays: int(end.Sub(start).Hours()/24 + 0.5),
		Trends:    []CameraDailyTrend{},
	}

	cameras, err := s.cameras.ListActiveByRegion(ctx, regionID)
	if err != nil {
		return nil, err
	}
	if len(cameras) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, len(cameras))
	nameByID := make(map[uuid.UUID]string, len(cameras))
	for i, c := range cameras {
		ids[i] = c.ID
		nameByID[c.ID] = c.Name
	}

	rows, err := s.events.DailyPeakTrend(ctx, ids, start, end, s.loc.String())
	if err != nil {
		metrics.QueryErrors.WithLabelValues("comprehensive_analysis").Inc()
		return nil, err
	}

	trendByCamera := make(map[uuid.UUID][]DailyTrendRow)
	for _, r := range rows {
		trendByCamera[r.CameraID] = append(trendByCamera[r.CameraID], DailyTrendRow{
			Date:      r.Day.Format("2006-01-02"),
			PeakIn:    r.PeakIn,
			PeakOut:   r.PeakOut,
			PeakTotal: r.PeakTotal,
		})
	}
	for _, cam := range cameras {
		days := trendByCamera[cam.ID]
		if days == nil {
			days = []DailyTrendRow{}
		}
		result.Trends = append(result.Trends, CameraDailyTrend{
			CameraName: cam.Name,
			Days:       days,
		})
	}
	return result, nil
}

// ValidateDateRange rejects end-before-start, spans over maxDays, and end
// dates in the future.
func (s *Service) ValidateDateRange(from, to time.Time, maxDays int) error {
	fromStart, _ := s.dayWindow(from)
	toStart, _ := s.dayWindow(to)
	if toStart.Before(fromStart) {
		return fmt.Errorf("%w: end before start", ErrInvalidDateRange)
	}
	days := int(toStart.Sub(fromStart).Hours()/24) + 1
	if days > maxDays {
		return fmt.Errorf("%w: %d days exceeds %d day limit", ErrInvalidDateRange, days, maxDays)
	}
	nowStart, _ := s.dayWindow(s.now())
	if toStart.After(nowStart) {
		return fmt.Errorf("%w: end date in the future", ErrInvalidDateRange)
	}
	return nil
}
