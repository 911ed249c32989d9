package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/technosupport/ts-occupancy/internal/data"
)

type MockRegionRepo struct {
	mock.Mock
}

func (m *MockRegionRepo) GetByID(ctx context.Context, id int) (*data.Region, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*data.Region), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRegionRepo) List(ctx context.Context) ([]*data.Region, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.([]*data.Region), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRegionRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockCameraRepo struct {
	mock.Mock
}

func (m *MockCameraRepo) ListActiveByRegion(ctx context.Context, regionID int) ([]*data.Camera, error) {
	args := m.Called(ctx, regionID)
	if r := args.Get(0); r != nil {
		return r.([]*data.Camera), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCameraRepo) Counts(ctx context.Context) (int, int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1), args.Error(2)
}

type MockEventRepo struct {
	mock.Mock
}

func (m *MockEventRepo) LatestSince(ctx context.Context, cameraID uuid.UUID, since time.Time) (*data.CountingEvent, error) {
	args := m.Called(ctx, cameraID, since)
	if r := args.Get(0); r != nil {
		return r.(*data.CountingEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEventRepo) ListForWindowByCameras(ctx context.Context, cameraIDs []uuid.UUID, start, end time.Time) ([]data.EventSample, error) {
	args := m.Called(ctx, cameraIDs, start, end)
	if r := args.Get(0); r != nil {
		return r.([]data.EventSample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEventRepo) DailyPeaks(ctx context.Context, cameraIDs []uuid.UUID, start, end time.Time) (map[uuid.UUID]data.DailyPeak, error) {
	args := m.Called(ctx, cameraIDs, start, end)
	if r := args.Get(0); r != nil {
		return r.(map[uuid.UUID]data.DailyPeak), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEventRepo) DailyPeakTrend(ctx context.Context, cameraIDs []uuid.UUID, start, end time.Time, tz string) ([]data.DailyPeakTrendRow, error) {
	args := m.Called(ctx, cameraIDs, start, end, tz)
	if r := args.Get(0); r != nil {
		return r.([]data.DailyPeakTrendRow), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	args := m.Called(ctx, cutoff, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEventRepo) VolumeStats(ctx context.Context, tz string) (*data.VolumeStats, error) {
	args := m.Called(ctx, tz)
	if r := args.Get(0); r != nil {
		return r.(*data.VolumeStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEventRepo) IngestHealth(ctx context.Context, since time.Time) (*data.IngestHealth, error) {
	args := m.Called(ctx, since)
	if r := args.Get(0); r != nil {
		return r.(*data.IngestHealth), args.Error(1)
	}
	return nil, args.Error(1)
}
