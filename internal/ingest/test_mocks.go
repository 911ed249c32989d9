package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-occupancy/internal/data"
)

// stubCameraRepo is an in-memory CameraRepository keyed by channel name.
type stubCameraRepo struct {
	mu       sync.Mutex
	byName   map[string]*data.Camera
	lookups  int
	liveness map[uuid.UUID]time.Time
}

func newStubCameraRepo(cams ...*data.Camera) *stubCameraRepo {
	r := &stubCameraRepo{
		byName:   make(map[string]*data.Camera),
		liveness: make(map[uuid.UUID]time.Time),
	}
	for _, c := range cams {
		r.byName[c.Name] = c
	}
	return r
}

func (r *stubCameraRepo) GetByName(ctx context.Context, name string) (*data.Camera, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if c, ok := r.byName[name]; ok {
		return c, nil
	}
	return nil, data.ErrRecordNotFound
}

func (r *stubCameraRepo) UpdateLastDataReceived(ctx context.Context, id uuid.UUID, ts time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveness[id] = ts
	return nil
}

func (r *stubCameraRepo) lookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

// stubEventWriter records inserts; failFirst makes the first N attempts
// fail to exercise the retry path.
type stubEventWriter struct {
	mu        sync.Mutex
	inserted  []*data.CountingEvent
	failFirst int
	attempts  int
	err       error
}

func (s *stubEventWriter) Insert(ctx context.Context, e *data.CountingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failFirst {
		return s.err
	}
	e.ID = int64(len(s.inserted) + 1)
	e.CreatedAt = time.Now()
	copied := *e
	s.inserted = append(s.inserted, &copied)
	return nil
}

func (s *stubEventWriter) events() []*data.CountingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*data.CountingEvent, len(s.inserted))
	copy(out, s.inserted)
	return out
}

func (s *stubEventWriter) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
