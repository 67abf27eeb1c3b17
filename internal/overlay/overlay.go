package overlay

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lumapics/gallery-backend/internal/adapter"
	"github.com/lumapics/gallery-backend/internal/cachestore"
	"github.com/lumapics/gallery-backend/internal/domain"
	"github.com/lumapics/gallery-backend/internal/logger"
)

// Overlay holds the per-record metadata overrides that fill gaps in upstream
// data. The map lives in memory and is persisted as one envelope under the
// metadata-overrides cache key. Map updates are synchronous; persistence is
// the caller's concern (the registry persists asynchronously).
type Overlay struct {
	mu        sync.RWMutex
	overrides map[string]domain.MetadataOverride
	store     cachestore.Store
	clock     adapter.Clock
}

// Load reads the persisted override map. A store miss or read failure starts
// the overlay empty; locally authored edits re-accumulate from upserts.
func Load(ctx context.Context, store cachestore.Store, clock adapter.Clock) *Overlay {
	o := &Overlay{
		overrides: make(map[string]domain.MetadataOverride),
		store:     store,
		clock:     clock,
	}

	env, err := store.Get(ctx, cachestore.KeyMetadataOverrides)
	if err != nil {
		logger.WarnCtx(ctx, "failed to load metadata overrides, starting empty", zap.Error(err))
		return o
	}
	if env == nil {
		return o
	}

	var stored map[string]domain.MetadataOverride
	if err := env.Decode(&stored); err != nil {
		logger.WarnCtx(ctx, "failed to decode metadata overrides, starting empty", zap.Error(err))
		return o
	}

	o.overrides = stored
	logger.InfoCtx(ctx, "loaded metadata overrides", zap.Int("count", len(stored)))
	return o
}

// Apply merges the override for rec.ID into rec: an override field is used
// only where the upstream value is absent.
func (o *Overlay) Apply(rec domain.AssetRecord) domain.AssetRecord {
	o.mu.RLock()
	ov, ok := o.overrides[rec.ID]
	o.mu.RUnlock()

	if ok {
		ov.ApplyTo(&rec)
	}
	return rec
}

// Set records the full overrideable field set of rec. Called on every upsert
// so locally authored state is never lost to an upstream metadata lag.
func (o *Overlay) Set(rec domain.AssetRecord) {
	o.mu.Lock()
	o.overrides[rec.ID] = domain.OverrideFromRecord(rec)
	o.mu.Unlock()
}

// Delete drops the override for id
func (o *Overlay) Delete(id string) {
	o.mu.Lock()
	delete(o.overrides, id)
	o.mu.Unlock()
}

// Persist writes the current override map to the persistent store
func (o *Overlay) Persist(ctx context.Context) error {
	o.mu.RLock()
	snapshot := make(map[string]domain.MetadataOverride, len(o.overrides))
	for id, ov := range o.overrides {
		snapshot[id] = ov
	}
	o.mu.RUnlock()

	if err := o.store.Set(ctx, cachestore.KeyMetadataOverrides, snapshot, o.clock.Now()); err != nil {
		return fmt.Errorf("failed to persist metadata overrides: %w", err)
	}
	return nil
}

// Clear drops every override and deletes the persisted entry
func (o *Overlay) Clear(ctx context.Context) error {
	o.mu.Lock()
	o.overrides = make(map[string]domain.MetadataOverride)
	o.mu.Unlock()

	if err := o.store.Delete(ctx, cachestore.KeyMetadataOverrides); err != nil {
		return fmt.Errorf("failed to delete persisted overrides: %w", err)
	}
	return nil
}

// Len returns the number of overrides currently held
func (o *Overlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.overrides)
}
