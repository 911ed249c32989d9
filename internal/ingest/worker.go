package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/technosupport/ts-occupancy/internal/data"
	"github.com/technosupport/ts-occupancy/internal/metrics"
	"github.com/technosupport/ts-occupancy/internal/protocol"
)

type EventWriter interface {
	Insert(ctx context.Context, e *data.CountingEvent) error
}

// Publisher is the optional downstream fan-out for persisted events.
type Publisher interface {
	Publish(event *data.CountingEvent) error
}

type WorkerConfig struct {
	QueueSize    int           // bounded intake queue, default 1024
	Writers      int           // writer shards, default 4
	WriteRetries int           // attempts beyond the first, default 2 (3 total)
	RetryBackoff time.Duration // default 1s
	WriteTimeout time.Duration // per-attempt store deadline, default 5s
}

func (c *WorkerConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Writers <= 0 {
		c.Writers = 4
	}
	if c.WriteRetries < 0 {
		c.WriteRetries = 0
	}
	if c.WriteRetries == 0 {
		c.WriteRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// message is one raw bus delivery moving through the pipeline. ack fires
// only after every event in the message is either durably persisted or
// deliberately dropped, giving at-least-once semantics end to end.
type message struct {
	payload []byte
	ack     func()
}

type eventTask struct {
	event  protocol.Event
	finish func()
}

// Worker is the ingestion pipeline: bounded intake queue, a normalizer
// stage, and channel-name-sharded writers so each camera's events persist
// in arrival order while different cameras proceed concurrently.
type Worker struct {
	cfg      WorkerConfig
	resolver *CameraResolver
	cameras  CameraRepository
	store    EventWriter
	fanout   Publisher // may be nil

	status connStatus
	queue  chan message
	shards []chan eventTask
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}

	// drop counters mirrored to prometheus, kept locally for Status()
	orphans   atomic.Int64
	malformed atomic.Int64
	storeFail atomic.Int64
}

func NewWorker(cfg WorkerConfig, resolver *CameraResolver, cameras CameraRepository, store EventWriter, fanout Publisher) *Worker {
	cfg.applyDefaults()
	w := &Worker{
		cfg:      cfg,
		resolver: resolver,
		cameras:  cameras,
		store:    store,
		fanout:   fanout,
		queue:    make(chan message, cfg.QueueSize),
		stopped:  make(chan struct{}),
	}
	w.shards = make([]chan eventTask, cfg.Writers)
	for i := range w.shards {
		w.shards[i] = make(chan eventTask, cfg.QueueSize/cfg.Writers+1)
	}
	return w
}

// Start launches the pipeline stages. It returns immediately; Stop drains.
func (w *Worker) Start(ctx context.Context) {
	for i := range w.shards {
		w.wg.Add(1)
		go w.runWriter(ctx, w.shards[i])
	}
	w.wg.Add(1)
	go w.runDispatcher(ctx)
}

// Stop closes intake, waits for queued events to flush, then returns.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.status.set(StateDraining)
		metrics.BusState.Set(float64(StateDraining))
		close(w.stopped)
	})
	w.wg.Wait()
	w.status.set(StateDisconnected)
	metrics.BusState.Set(float64(StateDisconnected))
}

// WorkerStatus is the observable snapshot for the health endpoint.
type WorkerStatus struct {
	State          string `json:"state"`
	QueueDepth     int    `json:"queue_depth"`
	OrphanEvents   int64  `json:"orphan_events"`
	MalformedDrops int64  `json:"malformed_drops"`
	StoreFailures  int64  `json:"store_failures"`
}

func (w *Worker) Status() WorkerStatus {
	return WorkerStatus{
		State:          w.status.get().String(),
		QueueDepth:     len(w.queue),
		OrphanEvents:   w.orphans.Load(),
		MalformedDrops: w.malformed.Load(),
		StoreFailures:  w.storeFail.Load(),
	}
}

// Enqueue hands one raw bus message to the pipeline. It blocks when the
// queue is full (the paho callback stalls, which flows control back to
// the broker instead of silently shedding acked messages) and reports
// false once the worker is draining.
func (w *Worker) Enqueue(payload []byte, ack func()) bool {
	metrics.MessagesReceived.Inc()
	select {
	case <-w.stopped:
		return false
	case w.queue <- message{payload: payload, ack: ack}:
		metrics.PipelineDepth.Set(float64(len(w.queue)))
		return true
	}
}

// runDispatcher normalizes each message and routes its events to writer
// shards. A message is acked only when every one of its events has been
// handled by a shard.
func (w *Worker) runDispatcher(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		for i := range w.shards {
			close(w.shards[i])
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopped:
			// Drain whatever is already queued, then shut the shards.
			for {
				select {
				case msg := <-w.queue:
					w.dispatch(ctx, msg)
				default:
					return
				}
			}
		case msg := <-w.queue:
			metrics.PipelineDepth.Set(float64(len(w.queue)))
			w.dispatch(ctx, msg)
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, msg message) {
	events, errs := protocol.Normalize(msg.payload)
	for _, err := range errs {
		switch {
		case errors.Is(err, protocol.ErrMissingChannel):
			w.malformed.Add(1)
			metrics.EventsDropped.WithLabelValues("missing_channel").Inc()
			log.Printf("[WARN] Ingest: message with no channel identity dropped")
		default:
			w.malformed.Add(1)
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			log.Printf("[WARN] Ingest: malformed payload dropped: %v", err)
		}
	}

	if len(events) == 0 {
		// Nothing to persist; bad or irrelevant messages are still acked
		// so the broker does not redeliver garbage forever.
		if msg.ack != nil {
			msg.ack()
		}
		return
	}

	var pending atomic.Int64
	pending.Store(int64(len(events)))
	finish := func() {
		if pending.Add(-1) == 0 && msg.ack != nil {
			msg.ack()
		}
	}

	for _, evt := range events {
		shard := w.shards[shardFor(evt.Channel, len(w.shards))]
		select {
		case <-ctx.Done():
			return
		case shard <- eventTask{event: evt, finish: finish}:
		}
	}
}

func shardFor(channel string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(channel))
	return int(h.Sum32()) % n
}

// runWriter persists its shard's events in order. Store failures get a
// bounded retry; an exhausted event is dropped and counted, never allowed
// to wedge the shard.
func (w *Worker) runWriter(ctx context.Context, tasks <-chan eventTask) {
	defer w.wg.Done()
	for task := range tasks {
		w.persist(ctx, task.event)
		task.finish()
	}
}

func (w *Worker) persist(ctx context.Context, evt protocol.Event) {
	cameraID, err := w.resolver.Resolve(ctx, evt.Channel)
	if err != nil {
		if errors.Is(err, ErrUnknownCamera) {
			w.orphans.Add(1)
			metrics.EventsDropped.WithLabelValues("orphan").Inc()
			log.Printf("Ingest: no camera for channel %q, event dropped", evt.Channel)
			return
		}
		w.storeFail.Add(1)
		metrics.EventsDropped.WithLabelValues("store_error").Inc()
		log.Printf("[ERROR] Ingest: camera lookup failed for %q: %v", evt.Channel, err)
		return
	}

	record := &data.CountingEvent{
		DeviceName:    evt.DeviceName,
		DeviceIP:      evt.DeviceIP,
		DeviceMAC:     evt.DeviceMAC,
		DevicePhy:     evt.DevicePhy,
		Channel:       evt.Channel,
		ChannelAlias:  evt.ChannelAlias,
		InCount:       evt.InCount,
		OutCount:      evt.OutCount,
		TotalCount:    evt.TotalCount,
		AlarmSnapshot: evt.AlarmSnapshot,
		AlarmSubtype:  evt.AlarmSubtype,
		AlarmStatus:   evt.AlarmStatus,
		AlarmRecord:   evt.AlarmRecord,
		SubscribeID:   evt.SubscribeID,
		DataPos:       evt.DataPos,
		CameraID:      cameraID,
		DeviceTime:    evt.DeviceTime,
	}

	var lastErr error
	for attempt := 0; attempt <= w.cfg.WriteRetries; attempt++ {
		if attempt > 0 {
			metrics.StoreRetries.Inc()
			time.Sleep(w.cfg.RetryBackoff)
		}
		writeCtx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
		lastErr = w.store.Insert(writeCtx, record)
		cancel()
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		w.storeFail.Add(1)
		metrics.EventsDropped.WithLabelValues("store_error").Inc()
		log.Printf("[ERROR] Ingest: event write failed after %d attempts for %q: %v",
			w.cfg.WriteRetries+1, evt.Channel, lastErr)
		return
	}

	metrics.EventsSaved.Inc()

	// Liveness is best effort; a miss here never fails the event.
	liveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := w.cameras.UpdateLastDataReceived(liveCtx, cameraID, record.CreatedAt); err != nil {
		log.Printf("[WARN] Ingest: liveness update failed for camera %s: %v", cameraID, err)
	}
	cancel()

	if w.fanout != nil {
		if err := w.fanout.Publish(record); err != nil {
			metrics.FanoutFailures.Inc()
			log.Printf("[WARN] Ingest: fanout publish failed: %v", err)
		}
	}
}
