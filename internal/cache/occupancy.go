package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-occupancy/internal/analytics"
	"github.com/technosupport/ts-occupancy/internal/metrics"
)

// DefaultOccupancyTTL keeps snapshots well inside the 5 minute trailing
// window the live figure is computed over.
const DefaultOccupancyTTL = 10 * time.Second

// OccupancySource is the compute path behind the cache.
type OccupancySource interface {
	CurrentOccupancy(ctx context.Context, regionID int) (*analytics.RegionOccupancy, error)
	AllRegionOccupancy(ctx context.Context) ([]*analytics.RegionOccupancy, error)
}

// OccupancyCache fronts the occupancy queries with short lived Redis
// snapshots. The dashboard and the websocket feed poll every few seconds;
// without the cache each poll is a full 5 minute window scan per region.
type OccupancyCache struct {
	client *redis.Client
	source OccupancySource
	ttl    time.Duration
}

func NewOccupancyCache(client *redis.Client, source OccupancySource, ttl time.Duration) *OccupancyCache {
	if ttl <= 0 {
		ttl = DefaultOccupancyTTL
	}
	return &OccupancyCache{client: client, source: source, ttl: ttl}
}

func regionKey(regionID int) string {
	return fmt.Sprintf("occupancy:region:%d", regionID)
}

const allRegionsKey = "occupancy:all"

// CurrentOccupancy returns the cached snapshot for one region, computing
// and storing it on a miss. Redis being down degrades to compute-only.
func (c *OccupancyCache) CurrentOccupancy(ctx context.Context, regionID int) (*analytics.RegionOccupancy, error) {
	key := regionKey(regionID)
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var snap analytics.RegionOccupancy
		if json.Unmarshal(raw, &snap) == nil {
			metrics.OccupancyCacheHits.WithLabelValues("hit").Inc()
			return &snap, nil
		}
	}
	metrics.OccupancyCacheHits.WithLabelValues("miss").Inc()

	snap, err := c.source.CurrentOccupancy(ctx, regionID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(snap); err == nil {
		c.client.Set(ctx, key, raw, c.ttl)
	}
	return snap, nil
}

// AllRegionOccupancy is the cached variant of the all-regions snapshot.
func (c *OccupancyCache) AllRegionOccupancy(ctx context.Context) ([]*analytics.RegionOccupancy, error) {
	if raw, err := c.client.Get(ctx, allRegionsKey).Bytes(); err == nil {
		var snaps []*analytics.RegionOccupancy
		if json.Unmarshal(raw, &snaps) == nil {
			metrics.OccupancyCacheHits.WithLabelValues("hit").Inc()
			return snaps, nil
		}
	}
	metrics.OccupancyCacheHits.WithLabelValues("miss").Inc()

	snaps, err := c.source.AllRegionOccupancy(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(snaps); err == nil {
		c.client.Set(ctx, allRegionsKey, raw, c.ttl)
	}
	return snaps, nil
}

// Invalidate drops the snapshots for a region and the all-regions key,
// for when a region's occupancy limit is edited.
func (c *OccupancyCache) Invalidate(ctx context.Context, regionID int) error {
	return c.client.Del(ctx, regionKey(regionID), allRegionsKey).Err()
}
