package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/contest-radar/contest-engine/internal/events"
)

// Store is the slice of the repository the cleanup worker uses
type Store interface {
	DeleteContestsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeactivateNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Publisher pushes engine events to live subscribers
type Publisher interface {
	Publish(typ events.Type, payload interface{})
}

// Result summarizes one cleanup cycle
type Result struct {
	ContestsDeleted          int64     `json:"contests_deleted"`
	NotificationsDeactivated int64     `json:"notifications_deactivated"`
	Cutoff                   time.Time `json:"cutoff"`
}

// Cleaner handles periodic retention cleanup of finished contests and their
// settled notifications
type Cleaner struct {
	store     Store
	bus       Publisher
	interval  time.Duration
	retention time.Duration
}

// NewCleaner creates a new cleanup worker. bus may be nil.
func NewCleaner(store Store, bus Publisher, interval time.Duration, retentionDays int) *Cleaner {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}

	return &Cleaner{
		store:     store,
		bus:       bus,
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "retention", c.retention)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.Cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup removes contests that ended before the retention cutoff and
// deactivates settled notifications older than it. Exported so the admin API
// can trigger a cycle on demand through the same path the scheduler uses.
func (c *Cleaner) Cleanup(ctx context.Context) Result {
	cutoff := time.Now().UTC().Add(-c.retention)
	result := Result{Cutoff: cutoff}

	slog.Debug("running cleanup cycle", "cutoff", cutoff)

	deleted, err := c.store.DeleteContestsEndedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to delete old contests", "error", err)
	} else {
		result.ContestsDeleted = deleted
	}

	deactivated, err := c.store.DeactivateNotificationsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to deactivate old notifications", "error", err)
	} else {
		result.NotificationsDeactivated = deactivated
	}

	if result.ContestsDeleted > 0 || result.NotificationsDeactivated > 0 {
		slog.Info("cleanup cycle finished",
			"contests_deleted", result.ContestsDeleted,
			"notifications_deactivated", result.NotificationsDeactivated,
			"cutoff", cutoff,
		)
	}

	if c.bus != nil {
		c.bus.Publish(events.TypeCleanupCompleted, result)
	}

	return result
}
