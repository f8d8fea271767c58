package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/divergence-scanner/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey    = "refresh"
	sharedTimeout = 2 * time.Second
)

// Snapshot is one completed scan. It is never mutated after creation.
type Snapshot struct {
	Timestamp time.Time                 `json:"timestamp"`
	Results   []models.DivergenceResult `json:"results"`
}

// Age returns how old the snapshot is at now
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// Scanner produces a full result set
type Scanner interface {
	Scan(ctx context.Context) ([]models.DivergenceResult, error)
}

// SharedStore lets replicas reuse each other's snapshots
type SharedStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Store(ctx context.Context, snap *Snapshot, ttl time.Duration) error
}

// ResultCache is the single process-wide slot holding the latest scan.
// Readers get the live snapshot while it is younger than ttl; otherwise one
// refresh runs and concurrent readers wait for it.
type ResultCache struct {
	scanner     Scanner
	ttl         time.Duration
	scanTimeout time.Duration
	shared      SharedStore
	logger      *logrus.Entry
	now         func() time.Time

	mu       sync.RWMutex
	snapshot *Snapshot

	group     singleflight.Group
	refreshes uint64
}

// NewResultCache creates a new result cache
func NewResultCache(scanner Scanner, ttl, scanTimeout time.Duration, logger *logrus.Logger) *ResultCache {
	return &ResultCache{
		scanner:     scanner,
		ttl:         ttl,
		scanTimeout: scanTimeout,
		logger:      logger.WithField("component", "result-cache"),
		now:         time.Now,
	}
}

// SetSharedStore enables the shared snapshot tier
func (c *ResultCache) SetSharedStore(store SharedStore) {
	c.shared = store
}

// TTL returns the configured freshness window
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}

// Snapshot returns the live snapshot, which may be stale or nil
func (c *ResultCache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Refreshes returns how many scans completed successfully
func (c *ResultCache) Refreshes() uint64 {
	return atomic.LoadUint64(&c.refreshes)
}

// Get returns a fresh snapshot, refreshing if needed. When a refresh fails
// and an older snapshot exists, the older snapshot is served.
func (c *ResultCache) Get(ctx context.Context) (*Snapshot, error) {
	if snap := c.fresh(); snap != nil {
		return snap, nil
	}

	snap, err := c.do(ctx, false)
	if err != nil {
		if stale := c.Snapshot(); stale != nil {
			c.logger.WithError(err).WithField("age", stale.Age(c.now()).String()).Warn("Serving stale snapshot")
			return stale, nil
		}
		return nil, err
	}
	return snap, nil
}

// Refresh forces a scan and swaps in its result. Concurrent callers share
// the same scan.
func (c *ResultCache) Refresh(ctx context.Context) (*Snapshot, error) {
	return c.do(ctx, true)
}

func (c *ResultCache) do(ctx context.Context, force bool) (*Snapshot, error) {
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		if !force {
			if snap := c.fresh(); snap != nil {
				return snap, nil
			}
			if snap := c.adoptShared(); snap != nil {
				return snap, nil
			}
		}
		return c.refresh()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (c *ResultCache) fresh() *Snapshot {
	snap := c.Snapshot()
	if snap != nil && snap.Age(c.now()) < c.ttl {
		return snap
	}
	return nil
}

func (c *ResultCache) swap(snap *Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
}

// refresh runs detached from any caller so a dropped request does not abort
// a scan other readers are waiting on
func (c *ResultCache) refresh() (*Snapshot, error) {
	ctx := context.Background()
	if c.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.scanTimeout)
		defer cancel()
	}

	started := c.now()
	results, err := c.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh failed: %w", err)
	}

	// Age counts from when the results became available
	finished := c.now()
	snap := &Snapshot{Timestamp: finished, Results: results}
	c.swap(snap)
	atomic.AddUint64(&c.refreshes, 1)

	entry := c.logger.WithFields(logrus.Fields{
		"pairs":    len(results),
		"duration": finished.Sub(started).String(),
	})
	if finished.Sub(started) >= c.ttl {
		entry.WithField("ttl", c.ttl.String()).Warn("Scan took longer than the cache TTL")
	} else {
		entry.Debug("Snapshot refreshed")
	}

	if c.shared != nil {
		c.publish(snap)
	}

	return snap, nil
}

// publish uses its own deadline; the scan context may be nearly spent
func (c *ResultCache) publish(snap *Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), sharedTimeout)
	defer cancel()

	if err := c.shared.Store(ctx, snap, c.ttl); err != nil {
		c.logger.WithError(err).Warn("Failed to publish snapshot")
	}
}

func (c *ResultCache) adoptShared() *Snapshot {
	if c.shared == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), sharedTimeout)
	defer cancel()

	snap, err := c.shared.Load(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to load shared snapshot")
		return nil
	}
	if snap == nil || snap.Age(c.now()) >= c.ttl {
		return nil
	}

	if current := c.Snapshot(); current != nil && !snap.Timestamp.After(current.Timestamp) {
		return nil
	}

	c.swap(snap)
	c.logger.WithField("timestamp", snap.Timestamp).Debug("Adopted shared snapshot")
	return snap
}
