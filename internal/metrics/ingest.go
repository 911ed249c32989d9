package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosscount_ingest_messages_total",
		Help: "Raw MQTT messages received on the alert topic",
	})

	EventsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosscount_ingest_events_saved_total",
		Help: "Normalized counting events durably persisted",
	})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crosscount_ingest_events_dropped_total",
		Help: "Events or messages dropped before persistence",
	}, []string{"reason"}) // malformed, missing_channel, orphan, store_error, queue_full

	StoreRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosscount_ingest_store_retries_total",
		Help: "Event store write attempts beyond the first",
	})

	FanoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crosscount_ingest_fanout_failures_total",
		Help: "Normalized events that could not be republished to NATS",
	})

	PipelineDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crosscount_ingest_pipeline_depth",
		Help: "Events queued between the bus callback and the writers",
	})

	BusState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crosscount_ingest_bus_state",
		Help: "MQTT connection state (0 disconnected, 1 connecting, 2 subscribed, 3 draining)",
	})
)
