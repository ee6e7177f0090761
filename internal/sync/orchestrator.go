package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/contest-radar/contest-engine/internal/events"
	"github.com/contest-radar/contest-engine/internal/models"
	"github.com/contest-radar/contest-engine/internal/platform"
)

var (
	// ErrNoAdapters means the orchestrator was started without any platform
	// adapters; this is the only error fatal to a sync invocation
	ErrNoAdapters = errors.New("no platform adapters registered")

	// ErrSyncInProgress means a sync run is already active; overlapping runs
	// are skipped rather than queued
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ContestStore is the slice of the repository the orchestrator writes to
type ContestStore interface {
	UpsertContest(ctx context.Context, c *models.Contest) (inserted bool, err error)
}

// CacheInvalidator drops cached contest listings after a sync
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// Publisher pushes engine events to live subscribers
type Publisher interface {
	Publish(typ events.Type, payload interface{})
}

// Orchestrator fans out over all registered platform adapters, upserts their
// contests into the store, and reports per-platform outcomes. One platform's
// failure never blocks or fails the others.
type Orchestrator struct {
	adapters *platform.Registry
	store    ContestStore
	cache    CacheInvalidator
	bus      Publisher
	interval time.Duration

	// Reentrancy guard: a scheduled run must finish before the next starts,
	// otherwise two runs would race on the same upserts.
	running atomic.Bool
}

// NewOrchestrator creates a sync orchestrator. cache and bus may be nil.
func NewOrchestrator(adapters *platform.Registry, store ContestStore, cache CacheInvalidator, bus Publisher, interval time.Duration) *Orchestrator {
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &Orchestrator{
		adapters: adapters,
		store:    store,
		cache:    cache,
		bus:      bus,
		interval: interval,
	}
}

// SyncAll syncs every registered platform concurrently. Scheduled and
// on-demand invocations share this exact path.
func (o *Orchestrator) SyncAll(ctx context.Context) (*models.SyncResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer o.running.Store(false)

	adapters := o.adapters.List()
	if len(adapters) == 0 {
		return nil, ErrNoAdapters
	}

	result := &models.SyncResult{
		StartedAt: time.Now().UTC(),
		Platforms: make(map[models.Platform]models.PlatformResult, len(adapters)),
	}

	var wg sync.WaitGroup
	results := make(chan models.PlatformResult, len(adapters))

	for _, a := range adapters {
		wg.Add(1)
		go func(a platform.Adapter) {
			defer wg.Done()
			results <- o.syncAdapter(ctx, a)
		}(a)
	}

	wg.Wait()
	close(results)

	for pr := range results {
		result.Platforms[pr.Platform] = pr
	}
	result.FinishedAt = time.Now().UTC()

	o.finish(ctx, result)
	return result, nil
}

// SyncPlatform syncs a single platform on demand, through the same per-adapter
// path as a full sync
func (o *Orchestrator) SyncPlatform(ctx context.Context, p models.Platform) (models.PlatformResult, error) {
	a := o.adapters.Get(p)
	if a == nil {
		return models.PlatformResult{}, fmt.Errorf("no adapter registered for platform %q", p)
	}

	pr := o.syncAdapter(ctx, a)

	result := &models.SyncResult{
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
		Platforms:  map[models.Platform]models.PlatformResult{p: pr},
	}
	o.finish(ctx, result)

	return pr, nil
}

// syncAdapter fetches one platform and upserts its contests. Persistence
// failures are counted and skipped so one bad record never aborts the rest.
func (o *Orchestrator) syncAdapter(ctx context.Context, a platform.Adapter) models.PlatformResult {
	pr := models.PlatformResult{Platform: a.Platform()}

	contests, err := a.FetchContests(ctx)
	if err != nil {
		slog.Error("platform sync failed", "platform", a.Platform(), "error", err)
		pr.Error = err.Error()
		return pr
	}

	for _, c := range contests {
		inserted, err := o.store.UpsertContest(ctx, c)
		if err != nil {
			slog.Error("failed to upsert contest",
				"platform", a.Platform(),
				"external_id", c.ExternalID,
				"error", err,
			)
			pr.ErrorCount++
			continue
		}

		if inserted {
			pr.ContestsAdded++
		} else {
			pr.ContestsUpdated++
		}
	}

	pr.Success = true

	slog.Info("platform synced",
		"platform", a.Platform(),
		"added", pr.ContestsAdded,
		"updated", pr.ContestsUpdated,
		"errors", pr.ErrorCount,
	)

	return pr
}

func (o *Orchestrator) finish(ctx context.Context, result *models.SyncResult) {
	if o.cache != nil {
		o.cache.Invalidate(ctx)
	}
	if o.bus != nil {
		o.bus.Publish(events.TypeSyncCompleted, result)
	}
}

// Run starts the scheduled sync loop and blocks until the context is canceled
func (o *Orchestrator) Run(ctx context.Context) {
	slog.Info("sync scheduler started", "interval", o.interval)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	// Sync immediately on start so a fresh deployment has contests.
	o.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			o.runOnce(ctx)
		}
	}
}

func (o *Orchestrator) runOnce(ctx context.Context) {
	if _, err := o.SyncAll(ctx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			slog.Warn("skipping scheduled sync, previous run still active")
			return
		}
		slog.Error("scheduled sync failed", "error", err)
	}
}
