package analytics

import (
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-occupancy/internal/data"
)

// HourlyPair is a camera's carried (in, out) value at one hour of day.
type HourlyPair struct {
	In  int `json:"in"`
	Out int `json:"out"`
}

// HourlyRegionRow is the regional total at one hour.
type HourlyRegionRow struct {
	Hour          int `json:"hour"`
	TotalIn       int `json:"total_in_count"`
	TotalOut      int `json:"total_out_count"`
	ActiveCameras int `json:"active_cameras"`
}

// CameraHourlySeries is one camera's full 24-entry carried series.
type CameraHourlySeries struct {
	CameraID   string       `json:"camera_id"`
	CameraName string       `json:"camera_name"`
	Hours      []HourlyPair `json:"hours"` // always 24 entries
	Samples    int          `json:"samples"`
}

// HourlyAggregate is the regional hourly carry-forward result. Hours always
// has exactly 24 entries so consumers never special-case short days.
type HourlyAggregate struct {
	RegionID    int                  `json:"region_id"`
	RegionName  string               `json:"region_name"`
	Date        string               `json:"date"`
	Hours       []HourlyRegionRow    `json:"hourly_data"`
	Cameras     []CameraHourlySeries `json:"individual_camera_data"`
	CameraCount int                  `json:"camera_count"`
}

// carryForwardSeries computes a single camera's 24-hour carried series from
// its samples for one calendar day.
//
// The device counters are cumulative within the day and reset at midnight,
// so the correct per-hour value is the latest sample inside that hour, and
// hours with no samples repeat the previous hour's value rather than
// reading zero. Hour -1 is defined as (0,0): a camera silent since midnight
// contributes nothing until its first sample.
//
// samples must be ordered by ingest time; hour bucketing uses the supplied
// location so the calendar boundary matches the caller's day window.
func carryForwardSeries(samples []data.EventSample, loc *time.Location) [24]HourlyPair {
	var lastInHour [24]*HourlyPair
	for i := range samples {
		h := samples[i].CreatedAt.In(loc).Hour()
		// Ordered input: the final write per bucket is the latest sample
		// in that hour.
		lastInHour[h] = &HourlyPair{In: samples[i].InCount, Out: samples[i].OutCount}
	}

	var series [24]HourlyPair
	carried := HourlyPair{}
	for h := 0; h < 24; h++ {
		if lastInHour[h] != nil {
			carried = *lastInHour[h]
		}
		series[h] = carried
	}
	return series
}

// groupByCamera splits one camera-ordered sample fetch into per-camera
// slices without copying.
func groupByCamera(samples []data.EventSample) map[uuid.UUID][]data.EventSample {
	grouped := make(map[uuid.UUID][]data.EventSample)
	start := 0
	for i := 1; i <= len(samples); i++ {
		if i == len(samples) || samples[i].CameraID != samples[start].CameraID {
			grouped[samples[start].CameraID] = samples[start:i]
			start = i
		}
	}
	return grouped
}

// aggregateRegionHours sums per-camera carried series into regional rows.
// Summing cameras is sound because each camera's counters are independent
// cumulative streams for the day; the sum is order-independent.
func aggregateRegionHours(series map[uuid.UUID][24]HourlyPair) []HourlyRegionRow {
	rows := make([]HourlyRegionRow, 24)
	for h := 0; h < 24; h++ {
		rows[h].Hour = h
		for _, s := range series {
			rows[h].TotalIn += s[h].In
			rows[h].TotalOut += s[h].Out
			if s[h].In > 0 || s[h].Out > 0 {
				rows[h].ActiveCameras++
			}
		}
	}
	return rows
}
