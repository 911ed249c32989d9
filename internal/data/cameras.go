package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Camera is a counting camera. The name is the join key to the vendor
// payload's ChannelName and must match it exactly for events to be
// attributable. Rows are owned by the external CRUD layer; the ingest
// worker only touches last_data_received.
type Camera struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Status           bool       `json:"status"` // active flag
	RegionID         *int       `json:"region_id,omitempty"`
	LastDataReceived *time.Time `json:"last_data_received,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type CameraModel struct {
	DB DBTX
}

// GetByName resolves a camera by its channel name. Names are unique.
func (m CameraModel) GetByName(ctx context.Context, name string) (*Camera, error) {
	query := `
		SELECT id, name, status, region_id, last_data_received, created_at, updated_at
		FROM cameras
		WHERE name = $1`

	var c Camera
	var regionID sql.NullInt64
	var lastData sql.NullTime

	err := m.DB.QueryRowContext(ctx, query, name).Scan(
		&c.ID, &c.Name, &c.Status, &regionID, &lastData, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if regionID.Valid {
		v := int(regionID.Int64)
		c.RegionID = &v
	}
	if lastData.Valid {
		c.LastDataReceived = &lastData.Time
	}
	return &c, nil
}

// ListActiveByRegion returns the active cameras assigned to a region,
// name-ordered. Cameras without a region never appear in regional
// analytics.
func (m CameraModel) ListActiveByRegion(ctx context.Context, regionID int) ([]*Camera, error) {
	query := `
		SELECT id, name, status, region_id, last_data_received, created_at, updated_at
		FROM cameras
		WHERE region_id = $1 AND status = true
		ORDER BY name`

	rows, err := m.DB.QueryContext(ctx, query, regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCameras(rows)
}

func (m CameraModel) ListAll(ctx context.Context) ([]*Camera, error) {
	query := `
		SELECT id, name, status, region_id, last_data_received, created_at, updated_at
		FROM cameras
		ORDER BY name`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCameras(rows)
}

// UpdateLastDataReceived is the only camera mutation the core performs.
// Called by the ingest worker after a successful event write.
func (m CameraModel) UpdateLastDataReceived(ctx context.Context, id uuid.UUID, ts time.Time) error {
	query := `
		UPDATE cameras
		SET last_data_received = $1, updated_at = NOW()
		WHERE id = $2`

	res, err := m.DB.ExecContext(ctx, query, ts, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Counts returns total and active camera counts for the dashboard.
func (m CameraModel) Counts(ctx context.Context) (total, active int, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = true)
		FROM cameras`
	err = m.DB.QueryRowContext(ctx, query).Scan(&total, &active)
	return total, active, err
}

func scanCameras(rows *sql.Rows) ([]*Camera, error) {
	var cameras []*Camera
	for rows.Next() {
		var c Camera
		var regionID sql.NullInt64
		var lastData sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &regionID, &lastData, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if regionID.Valid {
			v := int(regionID.Int64)
			c.RegionID = &v
		}
		if lastData.Valid {
			c.LastDataReceived = &lastData.Time
		}
		cameras = append(cameras, &c)
	}
	return cameras, rows.Err()
}
