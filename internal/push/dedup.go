package push

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DedupTTL is how long a notification id is remembered after its first sighting.
const DedupTTL = 60 * time.Second

// DedupCache is a process-local, time-windowed set of recently seen ids.
// The zero value is not usable; call NewDedupCache.
type DedupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func NewDedupCache() *DedupCache {
	return &DedupCache{
		ttl:     DedupTTL,
		entries: make(map[string]time.Time),
	}
}

// Seen sweeps expired entries and reports whether id was already seen inside
// the window. A first sighting is recorded at now; a repeat never refreshes it.
func (c *DedupCache) Seen(id string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, first := range c.entries {
		if now.Sub(first) > c.ttl {
			delete(c.entries, key)
		}
	}

	if _, ok := c.entries[id]; ok {
		return true
	}
	c.entries[id] = now
	return false
}

// Len returns the number of physically present entries.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SeenMarker atomically records key with an expiry, reporting whether it was
// newly set. store.RedisStore implements it with SET NX PX.
type SeenMarker interface {
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// SharedDedup gives the DedupCache contract to replicas sharing one backend.
// Expiry is enforced by the backend, so now only feeds the stored value.
type SharedDedup struct {
	marker  SeenMarker
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewSharedDedup(marker SeenMarker, logger *zap.SugaredLogger) *SharedDedup {
	return &SharedDedup{
		marker:  marker,
		ttl:     DedupTTL,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Seen fails open: a backend error is logged and reported as not seen.
func (d *SharedDedup) Seen(id string, now time.Time) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	created, err := d.marker.MarkSeen(ctx, "push:dedup:"+id, d.ttl)
	if err != nil {
		d.logger.Warnw("dedup backend unavailable, treating as new", "notification_id", id, "at", now, "error", err)
		return false
	}
	return !created
}
