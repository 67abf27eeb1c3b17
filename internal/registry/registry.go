package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lumapics/gallery-backend/internal/adapter"
	"github.com/lumapics/gallery-backend/internal/cachestore"
	"github.com/lumapics/gallery-backend/internal/domain"
	"github.com/lumapics/gallery-backend/internal/logger"
	"github.com/lumapics/gallery-backend/internal/overlay"
	"github.com/lumapics/gallery-backend/internal/upstream"
)

// Forced and non-forced refreshes coalesce in separate single-flight
// domains: a forced caller never joins a plain refresh that is already
// running with possibly-older semantics, and vice versa.
const (
	flightRefresh       = "refresh"
	flightForcedRefresh = "refresh-forced"
)

// Config holds the cache freshness thresholds
type Config struct {
	// MemoryTTL is how long the in-memory snapshot is served without
	// consulting the persistent store or upstream
	MemoryTTL time.Duration

	// PersistentTTL is how long a persisted snapshot may be served at all.
	// Between MemoryTTL and PersistentTTL it is served while a background
	// refresh runs; past PersistentTTL it is only a last-resort fallback.
	PersistentTTL time.Duration
}

// Walker abstracts the upstream page walk and record transform
type Walker interface {
	WalkAll(ctx context.Context) ([]domain.AssetRecord, error)
	Transform(raw upstream.RawAsset) domain.AssetRecord
}

// Cache is the process-wide asset metadata registry consumed by handlers and
// the upload pipeline
//
//go:generate mockgen -source=registry.go -destination=../mocks/registry.go -package=mocks -mock_names=Cache=MockCache
type Cache interface {
	// GetAll returns the full record list, fetching from the persistent
	// store or upstream as freshness requires. Concurrent calls share one
	// upstream walk.
	GetAll(ctx context.Context, forceRefresh bool) ([]domain.AssetRecord, error)

	// GetSync returns whatever is resident in memory without any fetch; may
	// be empty when uninitialized. Never blocks on I/O.
	GetSync() []domain.AssetRecord

	// GetOne returns a single record, falling back to a full fetch and then
	// a single-record upstream lookup
	GetOne(ctx context.Context, id string) (*domain.AssetRecord, error)

	// Upsert installs or replaces a record, records its override snapshot,
	// and persists asynchronously
	Upsert(ctx context.Context, rec domain.AssetRecord)

	// Remove deletes a record and persists asynchronously
	Remove(ctx context.Context, id string)

	// ClearAll resets the in-memory state and deletes the persisted entries
	ClearAll(ctx context.Context) error
}

// AssetCache is the registry implementation. The record list and id index
// are replaced wholesale under the mutex (copy-on-write), so concurrent
// readers never observe a half-updated structure; the critical section does
// no I/O.
type AssetCache struct {
	cfg     Config
	store   cachestore.Store
	overlay *overlay.Overlay
	walker  Walker
	client  upstream.Client
	clock   adapter.Clock

	mu          sync.RWMutex
	records     []domain.AssetRecord
	index       map[string]domain.AssetRecord
	lastFetch   time.Time
	initialized bool

	flights    singleflight.Group
	refreshing atomic.Bool

	// Single-worker pool keeps async snapshot writes in submission order;
	// failures are logged, never surfaced.
	persistPool pond.Pool
}

// New creates the registry. One instance per process, owned by the
// composition root.
func New(cfg Config, store cachestore.Store, ov *overlay.Overlay, walker Walker, client upstream.Client, clock adapter.Clock) *AssetCache {
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = 5 * time.Minute
	}
	if cfg.PersistentTTL <= 0 {
		cfg.PersistentTTL = time.Hour
	}

	return &AssetCache{
		cfg:         cfg,
		store:       store,
		overlay:     ov,
		walker:      walker,
		client:      client,
		clock:       clock,
		index:       make(map[string]domain.AssetRecord),
		persistPool: pond.NewPool(1, pond.WithQueueSize(64)),
	}
}

// Close drains the pending persistence queue. Call on shutdown.
func (c *AssetCache) Close() {
	c.persistPool.StopAndWait()
}

// GetAll returns the full record list per the tiered freshness policy
func (c *AssetCache) GetAll(ctx context.Context, forceRefresh bool) ([]domain.AssetRecord, error) {
	if !forceRefresh {
		c.mu.RLock()
		if c.initialized && len(c.records) > 0 && c.clock.Since(c.lastFetch) < c.cfg.MemoryTTL {
			records := c.records
			c.mu.RUnlock()
			return records, nil
		}
		c.mu.RUnlock()
	}

	key := flightRefresh
	fetch := c.loadOrFetch
	if forceRefresh {
		key = flightForcedRefresh
		fetch = func(ctx context.Context) ([]domain.AssetRecord, error) {
			return c.fetchUpstream(ctx, nil)
		}
	}

	v, err, _ := c.flights.Do(key, func() (interface{}, error) {
		// Once started, a fetch runs to completion; a caller that gives up
		// must not cancel the flight other callers have joined.
		return fetch(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.AssetRecord), nil
}

// GetSync returns the resident snapshot without triggering any fetch
func (c *AssetCache) GetSync() []domain.AssetRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records
}

// GetOne returns a single record by id. The single-record upstream lookup at
// the end covers the window between an upload completing and the next full
// listing reflecting it.
func (c *AssetCache) GetOne(ctx context.Context, id string) (*domain.AssetRecord, error) {
	c.mu.RLock()
	rec, ok := c.index[id]
	c.mu.RUnlock()
	if ok {
		return &rec, nil
	}

	if _, err := c.GetAll(ctx, false); err != nil {
		return nil, err
	}

	c.mu.RLock()
	rec, ok = c.index[id]
	c.mu.RUnlock()
	if ok {
		return &rec, nil
	}

	raw, err := c.client.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if raw == nil {
		return nil, domain.ErrAssetNotFound
	}

	fresh := c.walker.Transform(*raw)
	c.Upsert(ctx, fresh)
	return &fresh, nil
}

// Upsert installs or replaces a record. New records are prepended; existing
// ones are replaced in place, preserving upstream order.
func (c *AssetCache) Upsert(ctx context.Context, rec domain.AssetRecord) {
	rec.Normalize()

	c.mu.Lock()
	_, exists := c.index[rec.ID]

	var records []domain.AssetRecord
	if exists {
		records = make([]domain.AssetRecord, len(c.records))
		for i, r := range c.records {
			if r.ID == rec.ID {
				records[i] = rec
			} else {
				records[i] = r
			}
		}
	} else {
		records = make([]domain.AssetRecord, 0, len(c.records)+1)
		records = append(records, rec)
		records = append(records, c.records...)
	}

	index := make(map[string]domain.AssetRecord, len(c.index)+1)
	for id, r := range c.index {
		index[id] = r
	}
	index[rec.ID] = rec

	c.records = records
	c.index = index
	c.lastFetch = c.clock.Now()
	c.initialized = true
	c.mu.Unlock()

	c.overlay.Set(rec)

	// The in-memory state is already correct; persistence failures are
	// logged, not surfaced.
	persistCtx := context.WithoutCancel(ctx)
	c.persistPool.Submit(func() {
		if err := c.overlay.Persist(persistCtx); err != nil {
			logger.Warn("failed to persist metadata overrides",
				zap.String("id", rec.ID), zap.Error(err))
		}
	})
	c.persistSnapshotAsync(persistCtx, records)
}

// Remove deletes a record from the registry
func (c *AssetCache) Remove(ctx context.Context, id string) {
	c.mu.Lock()
	if _, ok := c.index[id]; !ok {
		c.mu.Unlock()
		return
	}

	records := make([]domain.AssetRecord, 0, len(c.records))
	for _, r := range c.records {
		if r.ID != id {
			records = append(records, r)
		}
	}

	index := make(map[string]domain.AssetRecord, len(c.index))
	for rid, r := range c.index {
		if rid != id {
			index[rid] = r
		}
	}

	c.records = records
	c.index = index
	c.lastFetch = c.clock.Now()
	c.mu.Unlock()

	c.overlay.Delete(id)

	persistCtx := context.WithoutCancel(ctx)
	c.persistPool.Submit(func() {
		if err := c.overlay.Persist(persistCtx); err != nil {
			logger.Warn("failed to persist metadata overrides",
				zap.String("id", id), zap.Error(err))
		}
	})
	c.persistSnapshotAsync(persistCtx, records)
}

// ClearAll resets every in-memory structure and deletes the persisted
// entries. Operator-triggered cache invalidation.
func (c *AssetCache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	c.records = nil
	c.index = make(map[string]domain.AssetRecord)
	c.lastFetch = time.Time{}
	c.initialized = false
	c.mu.Unlock()

	if err := c.overlay.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear overrides: %w", err)
	}
	if err := c.store.Delete(ctx, cachestore.KeyAssets); err != nil {
		return fmt.Errorf("failed to delete persisted snapshot: %w", err)
	}

	logger.InfoCtx(ctx, "asset cache cleared")
	return nil
}

// loadOrFetch is the non-forced refresh path: persistent store first, then a
// blocking upstream walk only when neither cache has usable data.
func (c *AssetCache) loadOrFetch(ctx context.Context) ([]domain.AssetRecord, error) {
	var fallback []domain.AssetRecord

	env, err := c.store.Get(ctx, cachestore.KeyAssets)
	if err != nil {
		logger.WarnCtx(ctx, "persistent cache read failed, treating as miss", zap.Error(err))
		env = nil
	}

	if env != nil {
		var stored []domain.AssetRecord
		if err := env.Decode(&stored); err != nil {
			logger.WarnCtx(ctx, "failed to decode persisted snapshot, treating as miss", zap.Error(err))
		} else if len(stored) > 0 {
			age := c.clock.Since(env.Timestamp)
			if age <= c.cfg.PersistentTTL {
				c.install(stored, env.Timestamp)
				if age > c.cfg.MemoryTTL {
					// Usable but aging: serve it now, refresh behind the caller.
					c.refreshInBackground()
				}
				return stored, nil
			}
			// Too old to serve outright; keep as last resort if the walk fails.
			fallback = stored
		}
	}

	return c.fetchUpstream(ctx, fallback)
}

// fetchUpstream performs a blocking walk and installs the result. On failure
// it degrades to stale in-memory data, then to the given fallback snapshot;
// the error only propagates when there is truly nothing to serve.
func (c *AssetCache) fetchUpstream(ctx context.Context, fallback []domain.AssetRecord) ([]domain.AssetRecord, error) {
	records, err := c.walker.WalkAll(ctx)
	if err != nil {
		c.mu.RLock()
		stale := c.records
		hasStale := c.initialized && len(stale) > 0
		c.mu.RUnlock()

		if hasStale {
			logger.WarnCtx(ctx, "upstream walk failed, serving stale in-memory data",
				zap.Int("records", len(stale)), zap.Error(err))
			return stale, nil
		}
		if len(fallback) > 0 {
			logger.WarnCtx(ctx, "upstream walk failed, serving expired persisted snapshot",
				zap.Int("records", len(fallback)), zap.Error(err))
			c.install(fallback, time.Time{})
			return fallback, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}

	c.install(records, c.clock.Now())
	c.persistSnapshotAsync(context.WithoutCancel(ctx), records)

	logger.InfoCtx(ctx, "asset cache refreshed", zap.Int("records", len(records)))
	return records, nil
}

// refreshInBackground kicks off one non-blocking walker run. The CAS guard
// keeps at most one background refresh running per process; its outcome is
// observed only by subsequent reads.
func (c *AssetCache) refreshInBackground() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer c.refreshing.Store(false)

		ctx := context.Background()
		records, err := c.walker.WalkAll(ctx)
		if err != nil {
			logger.Warn("background refresh failed", zap.Error(err))
			return
		}

		c.install(records, c.clock.Now())
		c.persistSnapshotAsync(ctx, records)
		logger.Debug("background refresh completed", zap.Int("records", len(records)))
	}()
}

// install atomically swaps in a new list/index/lastFetch tuple
func (c *AssetCache) install(records []domain.AssetRecord, fetchedAt time.Time) {
	index := make(map[string]domain.AssetRecord, len(records))
	for _, rec := range records {
		index[rec.ID] = rec
	}

	c.mu.Lock()
	c.records = records
	c.index = index
	c.lastFetch = fetchedAt
	c.initialized = true
	c.mu.Unlock()
}

func (c *AssetCache) persistSnapshotAsync(ctx context.Context, records []domain.AssetRecord) {
	timestamp := c.clock.Now()
	c.persistPool.Submit(func() {
		if err := c.store.Set(ctx, cachestore.KeyAssets, records, timestamp); err != nil {
			logger.Warn("failed to persist asset snapshot",
				zap.Int("records", len(records)), zap.Error(err))
		}
	})
}
