package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-occupancy/internal/data"
)

func TestCameraResolver_CachesPositiveLookups(t *testing.T) {
	cam := &data.Camera{ID: uuid.New(), Name: "Lobby-East", Status: true}
	repo := newStubCameraRepo(cam)
	r := NewCameraResolver(repo, 16, time.Minute)

	for i := 0; i < 5; i++ {
		id, err := r.Resolve(context.Background(), "Lobby-East")
		require.NoError(t, err)
		assert.Equal(t, cam.ID, id)
	}
	assert.Equal(t, 1, repo.lookupCount())
}

func TestCameraResolver_CachesNegativeLookups(t *testing.T) {
	repo := newStubCameraRepo()
	r := NewCameraResolver(repo, 16, time.Minute)

	for i := 0; i < 5; i++ {
		_, err := r.Resolve(context.Background(), "Nobody-Home")
		assert.ErrorIs(t, err, ErrUnknownCamera)
	}
	assert.Equal(t, 1, repo.lookupCount())
}

func TestCameraResolver_TTLExpiry(t *testing.T) {
	cam := &data.Camera{ID: uuid.New(), Name: "Dock-1", Status: true}
	repo := newStubCameraRepo(cam)
	r := NewCameraResolver(repo, 16, time.Minute)

	clock := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	_, err := r.Resolve(context.Background(), "Dock-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lookupCount())

	// Inside the TTL the cache answers.
	clock = clock.Add(30 * time.Second)
	_, err = r.Resolve(context.Background(), "Dock-1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.lookupCount())

	// Past the TTL the store is consulted again.
	clock = clock.Add(time.Minute)
	_, err = r.Resolve(context.Background(), "Dock-1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lookupCount())
}

func TestCameraResolver_Invalidate(t *testing.T) {
	cam := &data.Camera{ID: uuid.New(), Name: "Dock-1", Status: true}
	repo := newStubCameraRepo(cam)
	r := NewCameraResolver(repo, 16, time.Minute)

	_, _ = r.Resolve(context.Background(), "Dock-1")
	r.Invalidate("Dock-1")
	_, _ = r.Resolve(context.Background(), "Dock-1")
	assert.Equal(t, 2, repo.lookupCount())
}

type failingCameraRepo struct {
	stubCameraRepo
	err error
}

func (r *failingCameraRepo) GetByName(ctx context.Context, name string) (*data.Camera, error) {
	return nil, r.err
}

func TestCameraResolver_StoreErrorPassesThrough(t *testing.T) {
	repo := &failingCameraRepo{err: errors.New("connection refused")}
	r := NewCameraResolver(repo, 16, time.Minute)

	_, err := r.Resolve(context.Background(), "Dock-1")
	assert.ErrorIs(t, err, repo.err)
	assert.NotErrorIs(t, err, ErrUnknownCamera)

	// Outages must not be cached as orphans.
	repo2 := newStubCameraRepo(&data.Camera{ID: uuid.New(), Name: "Dock-1"})
	r2 := NewCameraResolver(repo2, 16, time.Minute)
	_, err = r2.Resolve(context.Background(), "Dock-1")
	assert.NoError(t, err)
}
