package analytics

import (
	"context"
	"math"
	"time"

	"github.com/technosupport/ts-occupancy/internal/data"
)

// DashboardOverview is the platform-wide statistics block consumed by the
// external dashboard.
type DashboardOverview struct {
	BasicStats struct {
		TotalRegions    int `json:"total_regions"`
		TotalCameras    int `json:"total_cameras"`
		ActiveCameras   int `json:"active_cameras"`
		InactiveCameras int `json:"inactive_cameras"`
	} `json:"basic_stats"`

	ActivityStats struct {
		RecentDataPoints24h int64   `json:"recent_data_points_24h"`
		AvgDataPointsHour   float64 `json:"avg_data_points_per_hour"`
	} `json:"activity_stats"`

	SystemHealth *data.IngestHealth `json:"system_health"`
	DataVolume   *data.VolumeStats  `json:"data_volume"`

	OccupancySummary struct {
		TotalCurrentOccupancy int                `json:"total_current_occupancy"`
		TotalMaxOccupancy     int                `json:"total_max_occupancy"`
		AvgPercentage         float64            `json:"avg_occupancy_percentage"`
		Regions               []*RegionOccupancy `json:"regions_data"`
	} `json:"occupancy_summary"`
}

// DashboardOverview assembles counts, ingest health, volume stats, and the
// all-region occupancy summary in one call.
func (s *Service) DashboardOverview(ctx context.Context) (*DashboardOverview, error) {
	var overview DashboardOverview

	regionCount, err := s.regions.Count(ctx)
	if err != nil {
		return nil, err
	}
	total, active, err := s.cameras.Counts(ctx)
	if err != nil {
		return nil, err
	}
	overview.BasicStats.TotalRegions = regionCount
	overview.BasicStats.TotalCameras = total
	overview.BasicStats.ActiveCameras = active
	overview.BasicStats.InactiveCameras = total - active

	now := s.now()
	health24, err := s.events.IngestHealth(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	overview.ActivityStats.RecentDataPoints24h = health24.TotalRecords
	if health24.TotalRecords > 0 {
		overview.ActivityStats.AvgDataPointsHour = float64(health24.TotalRecords) / 24
	}

	health, err := s.events.IngestHealth(ctx, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	overview.SystemHealth = health

	volume, err := s.events.VolumeStats(ctx, s.loc.String())
	if err != nil {
		return nil, err
	}
	overview.DataVolume = volume

	occupancy, err := s.AllRegionOccupancy(ctx)
	if err != nil {
		return nil, err
	}
	overview.OccupancySummary.Regions = occupancy
	for _, o := range occupancy {
		overview.OccupancySummary.TotalCurrentOccupancy += o.CurrentCount
		overview.OccupancySummary.TotalMaxOccupancy += o.MaxOccupancy
	}
	if overview.OccupancySummary.TotalMaxOccupancy > 0 {
		pct := float64(overview.OccupancySummary.TotalCurrentOccupancy) /
			float64(overview.OccupancySummary.TotalMaxOccupancy) * 100
		overview.OccupancySummary.AvgPercentage = math.Round(pct*10) / 10
	}
	return &overview, nil
}
