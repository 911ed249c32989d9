package data

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventModel_Insert(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	camID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO counting_events`).
		WithArgs(
			"NVR-02", "10.1.4.20", "aa:bb:cc:dd:ee:ff", "",
			"Lobby-East", "lobby east door",
			42, 17, 59,
			true, "cc", true, false,
			nil, nil, camID, nil,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9001), now))

	m := EventModel{DB: db}
	e := &CountingEvent{
		DeviceName:    "NVR-02",
		DeviceIP:      "10.1.4.20",
		DeviceMAC:     "aa:bb:cc:dd:ee:ff",
		Channel:       "Lobby-East",
		ChannelAlias:  "lobby east door",
		InCount:       42,
		OutCount:      17,
		TotalCount:    59,
		AlarmSnapshot: true,
		AlarmSubtype:  "cc",
		AlarmStatus:   true,
		CameraID:      camID,
	}
	require.NoError(t, m.Insert(context.Background(), e))
	assert.Equal(t, int64(9001), e.ID)
	assert.Equal(t, now, e.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventModel_LatestSince_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	camID := uuid.New()
	mock.ExpectQuery(`SELECT id, cc_in_count, cc_out_count, cc_total_count, created_at`).
		WithArgs(camID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cc_in_count", "cc_out_count", "cc_total_count", "created_at"}))

	m := EventModel{DB: db}
	_, err = m.LatestSince(context.Background(), camID, time.Now().Add(-5*time.Minute))
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventModel_DeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Now().AddDate(0, 0, -90)
	mock.ExpectExec(`DELETE FROM counting_events`).
		WithArgs(cutoff, 10000).
		WillReturnResult(sqlmock.NewResult(0, 10000))

	m := EventModel{DB: db}
	n, err := m.DeleteOlderThan(context.Background(), cutoff, 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventModel_DailyPeaks(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	c1 := uuid.New()
	c2 := uuid.New()
	mock.ExpectQuery(`SELECT camera_id,\s+MAX`).
		WillReturnRows(sqlmock.NewRows([]string{"camera_id", "max_in", "max_out", "max_total"}).
			AddRow(c1, 120, 80, 200).
			AddRow(c2, 40, 35, 75))

	m := EventModel{DB: db}
	start := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	peaks, err := m.DailyPeaks(context.Background(), []uuid.UUID{c1, c2}, start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, peaks, 2)
	assert.Equal(t, 120, peaks[c1].PeakIn)
	assert.Equal(t, 75, peaks[c2].PeakTotal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCameraModel_GetByName(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	camID := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "status", "region_id", "last_data_received", "created_at", "updated_at"}).
		AddRow(camID, "Lobby-East", true, 3, nil, now, now)

	mock.ExpectQuery(`SELECT id, name, status, region_id, last_data_received`).
		WithArgs("Lobby-East").
		WillReturnRows(rows)

	m := CameraModel{DB: db}
	c, err := m.GetByName(context.Background(), "Lobby-East")
	require.NoError(t, err)
	assert.Equal(t, camID, c.ID)
	require.NotNil(t, c.RegionID)
	assert.Equal(t, 3, *c.RegionID)
	assert.Nil(t, c.LastDataReceived)

	mock.ExpectQuery(`SELECT id, name, status, region_id, last_data_received`).
		WithArgs("Nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "region_id", "last_data_received", "created_at", "updated_at"}))
	_, err = m.GetByName(context.Background(), "Nope")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCameraModel_UpdateLastDataReceived_Missing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	camID := uuid.New()
	mock.ExpectExec(`UPDATE cameras`).
		WithArgs(sqlmock.AnyArg(), camID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	m := CameraModel{DB: db}
	err = m.UpdateLastDataReceived(context.Background(), camID, time.Now())
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
