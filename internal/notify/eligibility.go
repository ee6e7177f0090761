package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/contest-radar/contest-engine/internal/config"
	"github.com/contest-radar/contest-engine/internal/models"
)

// EligiblePair is one (user, contest) pair inside the user's lead-time window
// with no live notification yet. Superseded carries a terminally failed prior
// notification that a new one replaces, or nil.
type EligiblePair struct {
	Preference *models.UserPreference
	Contest    *models.Contest
	Type       models.NotificationType
	Superseded *models.Notification
}

// Engine computes which users should be notified about which upcoming
// contests and creates the pending notifications the dispatcher delivers.
type Engine struct {
	store      Store
	dispatcher *Dispatcher
	cfg        config.NotifyConfig

	// Reentrancy guard: overlapping sweeps could create duplicate
	// notifications before the anti-join sees the first one.
	running atomic.Bool
}

// NewEngine creates an eligibility engine. dispatcher may be nil, in which
// case notifications are created but delivery waits for the retry sweep.
func NewEngine(store Store, dispatcher *Dispatcher, cfg config.NotifyConfig) *Engine {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 15 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// ComputeEligible performs the windowed join between active preferences and
// upcoming contests, anti-joined against existing notifications. A contest is
// in the window when its start lies within [now, now + notifyBefore hours].
func (e *Engine) ComputeEligible(ctx context.Context, now time.Time) ([]EligiblePair, error) {
	prefs, err := e.store.ListActivePreferences(ctx)
	if err != nil {
		return nil, err
	}

	// One upcoming-contest query per platform, shared across users.
	upcoming := make(map[models.Platform][]*models.Contest)
	for _, pref := range prefs {
		for _, p := range pref.Platforms {
			if _, done := upcoming[p]; done {
				continue
			}
			contests, err := e.store.FindUpcoming(ctx, now, p)
			if err != nil {
				slog.Error("failed to load upcoming contests", "platform", p, "error", err)
				upcoming[p] = nil
				continue
			}
			upcoming[p] = contests
		}
	}

	var pairs []EligiblePair
	for _, pref := range prefs {
		window := time.Duration(pref.NotifyBeforeHours) * time.Hour
		deadline := now.Add(window)

		for _, p := range pref.Platforms {
			for _, c := range upcoming[p] {
				if c.StartTime.Before(now) || c.StartTime.After(deadline) {
					continue
				}

				existing, err := e.store.FindNotification(ctx, pref.UserID, c.ID, models.TypeContestReminder)
				if err != nil {
					slog.Error("failed to check existing notification",
						"user", pref.UserID,
						"contest", c.ID,
						"error", err,
					)
					continue
				}
				if existing != nil && !existing.Status.Terminal() {
					continue
				}

				pairs = append(pairs, EligiblePair{
					Preference: pref,
					Contest:    c,
					Type:       models.TypeContestReminder,
					Superseded: existing,
				})
			}
		}
	}

	return pairs, nil
}

// RunOnce performs one eligibility sweep: compute pairs, create pending
// notifications, and hand each to the dispatcher. Per-pair failures are
// logged and skipped.
func (e *Engine) RunOnce(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		slog.Warn("skipping eligibility sweep, previous sweep still active")
		return
	}
	defer e.running.Store(false)

	now := time.Now().UTC()

	pairs, err := e.ComputeEligible(ctx, now)
	if err != nil {
		slog.Error("eligibility sweep failed", "error", err)
		return
	}
	if len(pairs) == 0 {
		return
	}

	created := 0
	for _, pair := range pairs {
		if pair.Superseded != nil {
			// Retire the exhausted prior attempt before replacing it.
			pair.Superseded.IsActive = false
			pair.Superseded.UpdatedAt = now
			if err := e.store.UpdateNotification(ctx, pair.Superseded); err != nil {
				slog.Error("failed to retire failed notification",
					"id", pair.Superseded.ID,
					"error", err,
				)
				continue
			}
		}

		n := models.NewNotification(pair.Preference.UserID, pair.Contest.ID, pair.Type, e.cfg.MaxRetries)
		if err := e.store.CreateNotification(ctx, n); err != nil {
			slog.Error("failed to create notification",
				"user", pair.Preference.UserID,
				"contest", pair.Contest.ID,
				"error", err,
			)
			continue
		}
		created++

		if e.dispatcher != nil {
			if _, err := e.dispatcher.Dispatch(ctx, n.ID); err != nil {
				slog.Error("initial dispatch failed", "id", n.ID, "error", err)
			}
		}
	}

	slog.Info("eligibility sweep finished", "eligible", len(pairs), "created", created)
}

// Run starts the eligibility loop and blocks until the context is canceled
func (e *Engine) Run(ctx context.Context) {
	slog.Info("eligibility engine started", "interval", e.cfg.CheckInterval)

	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	// Sweep immediately so freshly synced contests are picked up on start.
	e.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("eligibility engine stopped")
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}
