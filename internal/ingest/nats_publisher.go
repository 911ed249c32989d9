package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/ts-occupancy/internal/data"
)

// NATSPublisher fans persisted events out to downstream consumers
// (display walls, exporters). Fan-out is best effort: a failure after the
// retry budget is counted, never blocks the write path.
type NATSPublisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
	backoff    time.Duration
}

func NewNATSPublisher(conn *nats.Conn, subject string, maxRetries int) *NATSPublisher {
	return &NATSPublisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
		backoff:    time.Second,
	}
}

func (p *NATSPublisher) Publish(event *data.CountingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, payload)
		if err == nil {
			return nil
		}
		time.Sleep(p.backoff)
	}
	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
