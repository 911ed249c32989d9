package ingest

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-occupancy/internal/data"
)

func ingestPayload(channel string, in, out, total int) []byte {
	return []byte(`{
		"data": {
			"dev_net_info": [{"ChannelName": "` + channel + `", "device_name": "NVR-1", "ip": "10.0.0.9", "mac": "aa:aa:aa:aa:aa:aa"}],
			"alarm_list": [{
				"time": "2026-03-14 10:00:00",
				"channel_alarm": [{
					"int_alarm": {"int_subtype": "cc", "alarm_val": true},
					"cc_alrm_num": {"cc_in_num": ` + itoa(in) + `, "cc_out_num": ` + itoa(out) + `, "cc_total_num": ` + itoa(total) + `}
				}]
			}]
		}
	}`)
}

func itoa(n int) string { return strconv.Itoa(n) }

func startWorker(t *testing.T, cfg WorkerConfig, repo *stubCameraRepo, store *stubEventWriter) *Worker {
	t.Helper()
	resolver := NewCameraResolver(repo, 128, time.Minute)
	w := NewWorker(cfg, resolver, repo, store, nil)
	w.Start(context.Background())
	return w
}

func TestWorker_PersistsAndAcks(t *testing.T) {
	cam := &data.Camera{ID: uuid.New(), Name: "Lobby-East", Status: true}
	repo := newStubCameraRepo(cam)
	store := &stubEventWriter{}
	w := startWorker(t, WorkerConfig{Writers: 2, RetryBackoff: time.Millisecond}, repo, store)

	var acked atomic.Int32
	ok := w.Enqueue(ingestPayload("Lobby-East", 42, 17, 59), func() { acked.Add(1) })
	require.True(t, ok)

	w.Stop()

	events := store.events()
	require.Len(t, events, 1)
	assert.Equal(t, cam.ID, events[0].CameraID)
	assert.Equal(t, 42, events[0].InCount)
	assert.Equal(t, int32(1), acked.Load())

	repo.mu.Lock()
	_, liveUpdated := repo.liveness[cam.ID]
	repo.mu.Unlock()
	assert.True(t, liveUpdated, "last_data_received should be touched on success")
}

func TestWorker_OrphanDropped(t *testing.T) {
	repo := newStubCameraRepo() // no cameras configured
	store := &stubEventWriter{}
	w := startWorker(t, WorkerConfig{Writers: 1, RetryBackoff: time.Millisecond}, repo, store)

	var acked atomic.Int32
	w.Enqueue(ingestPayload("Ghost-Channel", 5, 1, 6), func() { acked.Add(1) })
	w.Stop()

	assert.Empty(t, store.events())
	// Orphans are still acked: redelivery would not make a camera appear.
	assert.Equal(t, int32(1), acked.Load())
	assert.Equal(t, int64(1), w.Status().OrphanEvents)
}

func TestWorker_MalformedAckedAndCounted(t *testing.T) {
	repo := newStubCameraRepo()
	store := &stubEventWriter{}
	w := startWorker(t, WorkerConfig{Writers: 1, RetryBackoff: time.Millisecond}, repo, store)

	var acked atomic.Int32
	w.Enqueue([]byte("{not json"), func() { acked.Add(1) })
	w.Stop()

	assert.Empty(t, store.events())
	assert.Equal(t, int32(1), acked.Load())
	assert.Equal(t, int64(1), w.Status().MalformedDrops)
}

func TestWorker_StoreRetrySucceeds(t *testing.T) {
	cam := &data.Camera{ID: uuid.New(), Name: "Dock-1", Status: true}
	repo := newStubCameraRepo(cam)
	store := &stubEventWriter{failFirst: 2, err: errors.New("connection reset")}
	w := startWorker(t, WorkerConfig{Writers: 1, WriteRetries: 2, RetryBackoff: time.Millisecond}, repo, store)

	w.Enqueue(ingestPayload("Dock-1", 9, 4, 13), nil)
	w.Stop()

	require.Len(t, store.events(), 1)
	assert.Equal(t, 3, store.attemptCount()) // 2 failures + 1 success
}

func TestWorker_StoreRetryExhausted(t *testing.T) {
	cam := &data.Camera{ID: uuid.New(), Name: "Dock-1", Status: true}
	repo := newStubCameraRepo(cam)
	store := &stubEventWriter{failFirst: 10, err: errors.New("connection reset")}
	w := startWorker(t, WorkerConfig{Writers: 1, WriteRetries: 2, RetryBackoff: time.Millisecond}, repo, store)

	var acked atomic.Int32
	w.Enqueue(ingestPayload("Dock-1", 9, 4, 13), func() { acked.Add(1) })
	w.Stop()

	assert.Empty(t, store.events())
	assert.Equal(t, 3, store.attemptCount())
	assert.Equal(t, int64(1), w.Status().StoreFailures)
	// Dropped after exhaustion is still acked; the loop must not wedge.
	assert.Equal(t, int32(1), acked.Load())
}

func TestWorker_EnqueueAfterStop(t *testing.T) {
	repo := newStubCameraRepo()
	store := &stubEventWriter{}
	w := startWorker(t, WorkerConfig{Writers: 1}, repo, store)
	w.Stop()

	ok := w.Enqueue(ingestPayload("X", 1, 0, 1), nil)
	assert.False(t, ok)
	assert.Equal(t, "disconnected", w.Status().State)
}

func TestShardFor_Stable(t *testing.T) {
	// Same channel always lands on the same shard; that is what preserves
	// per-camera write ordering.
	for i := 0; i < 10; i++ {
		assert.Equal(t, shardFor("Lobby-East", 4), shardFor("Lobby-East", 4))
	}
	s := shardFor("anything", 1)
	assert.Equal(t, 0, s)
}
