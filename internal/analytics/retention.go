package analytics

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/technosupport/ts-occupancy/internal/metrics"
)

// DefaultRetentionBatch keeps each DELETE small so the retention sweep
// never holds a long lock against live ingestion.
const DefaultRetentionBatch = 10000

// MinRetentionDays guards against a misconfigured sweep wiping live data.
const MinRetentionDays = 1

var ErrRetentionTooShort = errors.New("retention period too short")

// RetentionCleanup deletes events older than daysToKeep in fixed-size
// batches, looping until a batch comes back short. Returns the total rows
// removed.
func (s *Service) RetentionCleanup(ctx context.Context, daysToKeep, batchSize int) (int64, error) {
	if daysToKeep < MinRetentionDays {
		return 0, ErrRetentionTooShort
	}
	if batchSize <= 0 {
		batchSize = DefaultRetentionBatch
	}

	cutoff := s.now().AddDate(0, 0, -daysToKeep)
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := s.events.DeleteOlderThan(ctx, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		metrics.RetentionDeleted.Add(float64(deleted))
		if deleted < int64(batchSize) {
			break
		}
		log.Printf("Retention: deleted batch of %d events older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	return total, nil
}
