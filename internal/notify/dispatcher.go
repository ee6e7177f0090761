package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/contest-radar/contest-engine/internal/channel"
	"github.com/contest-radar/contest-engine/internal/config"
	"github.com/contest-radar/contest-engine/internal/events"
	"github.com/contest-radar/contest-engine/internal/models"
	"github.com/contest-radar/contest-engine/internal/templates"
)

// retryBatchSize caps how many due notifications one sweep picks up
const retryBatchSize = 100

// Store is the slice of the repository the notification pipeline uses
type Store interface {
	ListActivePreferences(ctx context.Context) ([]*models.UserPreference, error)
	GetPreference(ctx context.Context, userID string) (*models.UserPreference, error)
	FindUpcoming(ctx context.Context, now time.Time, platform models.Platform) ([]*models.Contest, error)
	GetContest(ctx context.Context, id uuid.UUID) (*models.Contest, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	UpdateNotification(ctx context.Context, n *models.Notification) error
	FindNotification(ctx context.Context, userID string, contestID uuid.UUID, typ models.NotificationType) (*models.Notification, error)
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)
}

// Publisher pushes engine events to live subscribers
type Publisher interface {
	Publish(typ events.Type, payload interface{})
}

// Dispatcher delivers one notification across the user's enabled channels and
// keeps the per-channel retry bookkeeping. A fault on one channel never
// affects the others.
type Dispatcher struct {
	store     Store
	senders   *channel.Registry
	templates *templates.Loader
	bus       Publisher
	cfg       config.NotifyConfig

	sweeping atomic.Bool
}

// NewDispatcher creates a notification dispatcher. bus may be nil.
func NewDispatcher(store Store, senders *channel.Registry, loader *templates.Loader, bus Publisher, cfg config.NotifyConfig) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Minute
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 24 * time.Hour
	}
	if cfg.RetrySweepInterval <= 0 {
		cfg.RetrySweepInterval = time.Minute
	}

	return &Dispatcher{
		store:     store,
		senders:   senders,
		templates: loader,
		bus:       bus,
		cfg:       cfg,
	}
}

// Dispatch attempts delivery on every unresolved, due channel of the
// notification. Initial dispatch and retry sweeps share this path; resolved
// channels and channels whose backoff has not elapsed are skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	n, err := d.store.GetNotification(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}
	if n == nil {
		return nil, fmt.Errorf("notification %s not found", id)
	}

	contest, err := d.store.GetContest(ctx, n.ContestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contest: %w", err)
	}
	if contest == nil {
		return nil, fmt.Errorf("contest %s not found", n.ContestID)
	}

	pref, err := d.store.GetPreference(ctx, n.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if pref == nil {
		return nil, fmt.Errorf("no preferences for user %s", n.UserID)
	}

	now := time.Now().UTC()

	rendered, err := d.templates.Render(n.Type, templates.Payload{
		ContestName:     contest.Name,
		Platform:        string(contest.Platform),
		StartTime:       contest.StartTime.Format(time.RFC1123),
		HoursUntilStart: int(math.Round(contest.HoursUntilStart(now))),
		URL:             contest.WebsiteURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	msg := channel.Message{Subject: rendered.Subject, Body: rendered.Body}

	// Pick the channels due for an attempt before fanning out.
	var due []models.Channel
	for _, ch := range pref.EnabledChannels() {
		delivery := n.EnsureDelivery(ch)
		if delivery.Resolved() {
			continue
		}
		if delivery.NextRetryAt != nil && delivery.NextRetryAt.After(now) {
			continue
		}
		due = append(due, ch)
	}

	// Fan out the sends concurrently, then apply results single-threaded so
	// the bookkeeping on n never races.
	results := make([]channel.SendResult, len(due))
	var wg sync.WaitGroup
	for i, ch := range due {
		wg.Add(1)
		go func(i int, ch models.Channel) {
			defer wg.Done()
			results[i] = d.send(ctx, ch, pref.Destination(ch), msg)
		}(i, ch)
	}
	wg.Wait()

	for i, ch := range due {
		d.apply(n, ch, results[i], now)
	}

	n.RecomputeStatus()
	n.RetryCount = maxChannelRetries(n)
	n.UpdatedAt = now

	if err := d.store.UpdateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	slog.Info("notification dispatched",
		"id", n.ID,
		"user", n.UserID,
		"status", n.Status,
		"channels_attempted", len(due),
	)

	if d.bus != nil {
		d.bus.Publish(events.TypeNotificationDispatched, n)
	}

	return n, nil
}

// send invokes the channel's sender. A missing sender is reported the same
// way an unconfigured one is, as a well-formed failure result.
func (d *Dispatcher) send(ctx context.Context, ch models.Channel, destination string, msg channel.Message) channel.SendResult {
	sender := d.senders.Get(ch)
	if sender == nil {
		return channel.SendResult{
			Channel: ch,
			Error:   fmt.Sprintf("no sender registered for channel %q", ch),
		}
	}
	return sender.Send(ctx, destination, msg)
}

// apply folds one send outcome into the channel's delivery state machine
func (d *Dispatcher) apply(n *models.Notification, ch models.Channel, res channel.SendResult, now time.Time) {
	delivery := n.EnsureDelivery(ch)

	if res.Success {
		delivery.State = models.DeliverySent
		delivery.MessageID = res.MessageID
		delivery.Error = ""
		delivery.SentAt = &now
		delivery.NextRetryAt = nil
		return
	}

	n.RecordFailure(ch, res.Error, now)
	delivery.Error = res.Error
	delivery.RetryCount++
	delivery.LastRetryAt = &now

	if delivery.RetryCount < n.MaxRetries {
		delivery.State = models.DeliveryRetrying
		next := now.Add(d.backoff(delivery.RetryCount))
		delivery.NextRetryAt = &next

		slog.Warn("channel delivery failed, retry scheduled",
			"id", n.ID,
			"channel", ch,
			"attempt", delivery.RetryCount,
			"next_retry_at", next,
			"error", res.Error,
		)
		return
	}

	delivery.State = models.DeliveryFailed
	delivery.FailedAt = &now
	delivery.NextRetryAt = nil

	slog.Error("channel delivery failed permanently",
		"id", n.ID,
		"channel", ch,
		"attempts", delivery.RetryCount,
		"error", res.Error,
	)
}

// backoff doubles per attempt from the base, capped
func (d *Dispatcher) backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := d.cfg.BackoffBase << (retryCount - 1)
	if delay > d.cfg.BackoffCap || delay <= 0 {
		delay = d.cfg.BackoffCap
	}
	return delay
}

func maxChannelRetries(n *models.Notification) int {
	max := 0
	for i := range n.Deliveries {
		if n.Deliveries[i].RetryCount > max {
			max = n.Deliveries[i].RetryCount
		}
	}
	return max
}

// RunRetrySweep starts the retry sweep loop and blocks until the context is
// canceled
func (d *Dispatcher) RunRetrySweep(ctx context.Context) {
	slog.Info("retry sweep started", "interval", d.cfg.RetrySweepInterval)

	ticker := time.NewTicker(d.cfg.RetrySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retry sweep stopped")
			return
		case <-ticker.C:
			d.SweepOnce(ctx)
		}
	}
}

// SweepOnce re-dispatches every notification whose next retry is due
func (d *Dispatcher) SweepOnce(ctx context.Context) {
	if !d.sweeping.CompareAndSwap(false, true) {
		slog.Warn("skipping retry sweep, previous sweep still active")
		return
	}
	defer d.sweeping.Store(false)

	now := time.Now().UTC()
	due, err := d.store.FindDueRetries(ctx, now, retryBatchSize)
	if err != nil {
		slog.Error("failed to find due retries", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	slog.Info("retry sweep picked up notifications", "count", len(due))

	for _, n := range due {
		if _, err := d.Dispatch(ctx, n.ID); err != nil {
			slog.Error("retry dispatch failed", "id", n.ID, "error", err)
		}
	}
}
