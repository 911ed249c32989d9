package analytics

import "errors"

var (
	// ErrInvalidDateRange signals a caller mistake (end before start, span
	// over the operational limit, or end in the future). It is returned,
	// never silently clamped.
	ErrInvalidDateRange = errors.New("invalid date range")

	ErrRegionNotFound = errors.New("region not found")
)
