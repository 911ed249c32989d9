package data

import (
	"context"
	"database/sql"
	"time"
)

// Region is a named physical area with a capacity limit. Regions are
// created and edited by the external CRUD layer; this service only reads
// them.
type Region struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Occupancy int       `json:"occupancy"` // maximum allowed occupancy, always > 0
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RegionModel struct {
	DB DBTX
}

func (m RegionModel) GetByID(ctx context.Context, id int) (*Region, error) {
	query := `
		SELECT id, name, occupancy, created_at, updated_at
		FROM regions
		WHERE id = $1`

	var r Region
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.Name, &r.Occupancy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (m RegionModel) List(ctx context.Context) ([]*Region, error) {
	query := `
		SELECT id, name, occupancy, created_at, updated_at
		FROM regions
		ORDER BY name`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []*Region
	for rows.Next() {
		var r Region
		if err := rows.Scan(&r.ID, &r.Name, &r.Occupancy, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		regions = append(regions, &r)
	}
	return regions, rows.Err()
}

func (m RegionModel) Count(ctx context.Context) (int, error) {
	var n int
	err := m.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM regions`).Scan(&n)
	return n, err
}
