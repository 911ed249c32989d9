package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CountingEvent is one normalized cross-counting sample. Rows are append
// only: written exclusively by the ingest worker, deleted only by the aged
// retention sweep, never updated.
//
// created_at is the ingest timestamp and is what every aggregate keys off.
// device_time is the vendor clock, stored for provenance but untrusted.
type CountingEvent struct {
	ID int64 `json:"id"`

	DeviceName string `json:"device_name"`
	DeviceIP   string `json:"device_ip"`
	DeviceMAC  string `json:"device_mac"`
	DevicePhy  string `json:"device_phy,omitempty"`

	Channel      string `json:"channel"`
	ChannelAlias string `json:"channel_alias,omitempty"`

	InCount    int `json:"cc_in_count"`
	OutCount   int `json:"cc_out_count"`
	TotalCount int `json:"cc_total_count"`

	AlarmSnapshot bool   `json:"alarm_snapshot"`
	AlarmSubtype  string `json:"alarm_subtype"`
	AlarmStatus   bool   `json:"alarm_status"`
	AlarmRecord   bool   `json:"alarm_record"`

	SubscribeID *string `json:"subscribe_id,omitempty"`
	DataPos     *int64  `json:"data_pos,omitempty"`

	CameraID   uuid.UUID  `json:"camera_id"`
	DeviceTime *time.Time `json:"device_time,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EventSample is the slim projection the aggregator walks. One ordered
// fetch per request keeps the carry-forward pass allocation-light.
type EventSample struct {
	CameraID   uuid.UUID
	InCount    int
	OutCount   int
	TotalCount int
	CreatedAt  time.Time
}

// DailyPeak is the per-camera max reduction over one day's samples.
type DailyPeak struct {
	CameraID  uuid.UUID
	PeakIn    int
	PeakOut   int
	PeakTotal int
}

// DailyPeakTrendRow is one camera-day of the range analysis.
type DailyPeakTrendRow struct {
	CameraID  uuid.UUID
	Day       time.Time
	PeakIn    int
	PeakOut   int
	PeakTotal int
}

// VolumeStats describes stored event volume for capacity planning.
type VolumeStats struct {
	TotalRecords int64            `json:"total_records"`
	MinCreatedAt *time.Time       `json:"min_created_at,omitempty"`
	MaxCreatedAt *time.Time       `json:"max_created_at,omitempty"`
	DailyCounts  []DailyCountsRow `json:"daily_counts"`
}

type DailyCountsRow struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// IngestHealth summarizes recent ingestion for monitoring.
type IngestHealth struct {
	TotalRecords     int64      `json:"total_records"`
	ActiveCameras    int        `json:"active_cameras"`
	ActiveDevices    int        `json:"active_devices"`
	EarliestData     *time.Time `json:"earliest_data,omitempty"`
	LatestData       *time.Time `json:"latest_data,omitempty"`
	// AvgIngestDelaySeconds averages created_at - device_time where the
	// device clock was parseable. A large value means device clock skew,
	// not pipeline lag.
	AvgIngestDelaySeconds float64 `json:"avg_ingest_delay_seconds"`
	ActiveAlarms          int64   `json:"active_alarms"`
}

type EventModel struct {
	DB DBTX
}

// Insert persists one event. created_at is assigned by the database so a
// batch of writers cannot produce out-of-order ingest timestamps for the
// same camera.
func (m EventModel) Insert(ctx context.Context, e *CountingEvent) error {
	query := `
		INSERT INTO counting_events (
			device_name, device_ip, device_mac, device_phy,
			channel, channel_alias,
			cc_in_count, cc_out_count, cc_total_count,
			alarm_snapshot, alarm_subtype, alarm_status, alarm_record,
			subscribe_id, data_pos, camera_id, device_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`

	return m.DB.QueryRowContext(ctx, query,
		e.DeviceName, e.DeviceIP, e.DeviceMAC, e.DevicePhy,
		e.Channel, e.ChannelAlias,
		e.InCount, e.OutCount, e.TotalCount,
		e.AlarmSnapshot, e.AlarmSubtype, e.AlarmStatus, e.AlarmRecord,
		e.SubscribeID, e.DataPos, e.CameraID, e.DeviceTime,
	).Scan(&e.ID, &e.CreatedAt)
}

// LatestSince returns the camera's most recent event at or after `since`,
// or ErrRecordNotFound when the camera has been silent for the window.
func (m EventModel) LatestSince(ctx context.Context, cameraID uuid.UUID, since time.Time) (*CountingEvent, error) {
	query := `
		SELECT id, cc_in_count, cc_out_count, cc_total_count, created_at
		FROM counting_events
		WHERE camera_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1`

	var e CountingEvent
	e.CameraID = cameraID
	err := m.DB.QueryRowContext(ctx, query, cameraID, since).Scan(
		&e.ID, &e.InCount, &e.OutCount, &e.TotalCount, &e.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListForWindowByCameras fetches every sample for the given cameras in
// [start, end), ordered by camera then ingest time. This is the single
// fetch behind the carry-forward aggregation.
func (m EventModel) ListForWindowByCameras(ctx context.Context, cameraIDs []uuid.UUID, start, end time.Time) ([]EventSample, error) {
	query := `
		SELECT camera_id, cc_in_count, cc_out_count, cc_total_count, created_at
		FROM counting_events
		WHERE camera_id = ANY($1)
		  AND created_at >= $2 AND created_at < $3
		ORDER BY camera_id, created_at`

	rows, err := m.DB.QueryContext(ctx, query, pq.Array(cameraIDs), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []EventSample
	for rows.Next() {
		var s EventSample
		if err := rows.Scan(&s.CameraID, &s.InCount, &s.OutCount, &s.TotalCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// DailyPeaks computes per-camera max(in), max(out), max(total) over
// [start, end). Cameras with no samples are absent from the result.
func (m EventModel) DailyPeaks(ctx context.Context, cameraIDs []uuid.UUID, start, end time.Time) (map[uuid.UUID]DailyPeak, error) {
	query := `
		SELECT camera_id,
		       MAX(cc_in_count), MAX(cc_out_count), MAX(cc_total_count)
		FROM counting_events
		WHERE camera_id = ANY($1)
		  AND created_at >= $2 AND created_at < $3
		GROUP BY camera_id`

	rows, err := m.DB.QueryContext(ctx, query, pq.Array(cameraIDs), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	peaks := make(map[uuid.UUID]DailyPeak)
	for rows.Next() {
		var p DailyPeak
		if err := rows.Scan(&p.CameraID, &p.PeakIn, &p.PeakOut, &p.PeakTotal); err != nil {
			return nil, err
		}
		peaks[p.CameraID] = p
	}
	return peaks, rows.Err()
}

// DailyPeakTrend computes per-camera, per-day peaks over [start, end) for
// the comprehensive range analysis. Days are bucketed in the given
// timezone so the calendar boundary matches the aggregator's.
func (m EventModel) DailyPeakTrend(ctx context.Context, cameraIDs []uuid.UUID, start, end time.Time, tz string) ([]DailyPeakTrendRow, error) {
	query := `
		SELECT camera_id,
		       DATE_TRUNC('day', created_at AT TIME ZONE $4) AS day,
		       MAX(cc_in_count), MAX(cc_out_count), MAX(cc_total_count)
		FROM counting_events
		WHERE camera_id = ANY($1)
		  AND created_at >= $2 AND created_at < $3
		GROUP BY camera_id, day
		ORDER BY camera_id, day`

	rows, err := m.DB.QueryContext(ctx, query, pq.Array(cameraIDs), start, end, tz)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trend []DailyPeakTrendRow
	for rows.Next() {
		var r DailyPeakTrendRow
		if err := rows.Scan(&r.CameraID, &r.Day, &r.PeakIn, &r.PeakOut, &r.PeakTotal); err != nil {
			return nil, err
		}
		trend = append(trend, r)
	}
	return trend, rows.Err()
}

// DeleteOlderThan removes at most batchSize events older than cutoff and
// reports how many went. The caller loops until a short batch; keeping
// each DELETE small bounds lock duration on the hot table.
func (m EventModel) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	query := `
		DELETE FROM counting_events
		WHERE id IN (
			SELECT id FROM counting_events
			WHERE created_at < $1
			ORDER BY id
			LIMIT $2
		)`

	res, err := m.DB.ExecContext(ctx, query, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// VolumeStats reports stored volume and the last 30 days of per-day counts.
func (m EventModel) VolumeStats(ctx context.Context, tz string) (*VolumeStats, error) {
	var stats VolumeStats
	var minAt, maxAt sql.NullTime

	err := m.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM counting_events`).Scan(&stats.TotalRecords, &minAt, &maxAt)
	if err != nil {
		return nil, err
	}
	if minAt.Valid {
		stats.MinCreatedAt = &minAt.Time
	}
	if maxAt.Valid {
		stats.MaxCreatedAt = &maxAt.Time
	}
	if stats.TotalRecords == 0 {
		return &stats, nil
	}

	rows, err := m.DB.QueryContext(ctx, `
		SELECT DATE_TRUNC('day', created_at AT TIME ZONE $1) AS day, COUNT(*)
		FROM counting_events
		GROUP BY day
		ORDER BY day DESC
		LIMIT 30`, tz)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r DailyCountsRow
		if err := rows.Scan(&r.Day, &r.Count); err != nil {
			return nil, err
		}
		stats.DailyCounts = append(stats.DailyCounts, r)
	}
	return &stats, rows.Err()
}

// IngestHealth summarizes ingestion over the trailing window for the
// dashboard and external monitoring.
func (m EventModel) IngestHealth(ctx context.Context, since time.Time) (*IngestHealth, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(DISTINCT camera_id),
		       COUNT(DISTINCT device_name),
		       MIN(created_at),
		       MAX(created_at),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (created_at - device_time))), 0),
		       COUNT(*) FILTER (WHERE alarm_status = true)
		FROM counting_events
		WHERE created_at >= $1`

	var h IngestHealth
	var earliest, latest sql.NullTime
	err := m.DB.QueryRowContext(ctx, query, since).Scan(
		&h.TotalRecords, &h.ActiveCameras, &h.ActiveDevices,
		&earliest, &latest, &h.AvgIngestDelaySeconds, &h.ActiveAlarms,
	)
	if err != nil {
		return nil, err
	}
	if earliest.Valid {
		h.EarliestData = &earliest.Time
	}
	if latest.Valid {
		h.LatestData = &latest.Time
	}
	return &h, nil
}
