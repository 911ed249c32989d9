package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/ts-occupancy/internal/data"
)

// ErrUnknownCamera means the payload's channel name matches no configured
// camera. The event is an orphan; the worker drops and counts it.
var ErrUnknownCamera = errors.New("unknown camera for channel")

type CameraRepository interface {
	GetByName(ctx context.Context, name string) (*data.Camera, error)
	UpdateLastDataReceived(ctx context.Context, id uuid.UUID, ts time.Time) error
}

type resolverEntry struct {
	cameraID uuid.UUID
	unmapped bool
	expires  time.Time
}

// CameraResolver maps vendor channel names to camera IDs with a TTL'd LRU
// in front of the store. Negative results are cached too so a firehose of
// orphan events doesn't hammer the database. Camera→region changes made by
// the CRUD layer take effect within the TTL.
type CameraResolver struct {
	repo  CameraRepository
	cache *lru.Cache[string, resolverEntry]
	ttl   time.Duration
	now   func() time.Time
}

func NewCameraResolver(repo CameraRepository, maxEntries int, ttl time.Duration) *CameraResolver {
	c, _ := lru.New[string, resolverEntry](maxEntries)
	return &CameraResolver{
		repo:  repo,
		cache: c,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Resolve returns the camera ID owning the channel name, or
// ErrUnknownCamera. Store errors pass through so the caller can retry
// instead of mis-classifying an outage as an orphan.
func (r *CameraResolver) Resolve(ctx context.Context, channel string) (uuid.UUID, error) {
	if entry, ok := r.cache.Get(channel); ok && r.now().Before(entry.expires) {
		if entry.unmapped {
			return uuid.Nil, ErrUnknownCamera
		}
		return entry.cameraID, nil
	}

	cam, err := r.repo.GetByName(ctx, channel)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			r.cache.Add(channel, resolverEntry{unmapped: true, expires: r.now().Add(r.ttl)})
			return uuid.Nil, ErrUnknownCamera
		}
		return uuid.Nil, err
	}

	r.cache.Add(channel, resolverEntry{cameraID: cam.ID, expires: r.now().Add(r.ttl)})
	return cam.ID, nil
}

// Invalidate drops one channel's cache entry, for tests and admin tooling.
func (r *CameraResolver) Invalidate(channel string) {
	r.cache.Remove(channel)
}
