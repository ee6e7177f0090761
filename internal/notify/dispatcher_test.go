package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/contest-radar/contest-engine/internal/channel"
	"github.com/contest-radar/contest-engine/internal/config"
	"github.com/contest-radar/contest-engine/internal/models"
	"github.com/contest-radar/contest-engine/internal/templates"
)

// memStore is an in-memory Store for pipeline tests

type memStore struct {
	mu            sync.Mutex
	prefs         map[string]*models.UserPreference
	contests      map[uuid.UUID]*models.Contest
	notifications map[uuid.UUID]*models.Notification
}

func newMemStore() *memStore {
	return &memStore{
		prefs:         make(map[string]*models.UserPreference),
		contests:      make(map[uuid.UUID]*models.Contest),
		notifications: make(map[uuid.UUID]*models.Notification),
	}
}

func (m *memStore) addContest(c *models.Contest) *models.Contest {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.contests[c.ID] = c
	return c
}

func (m *memStore) ListActivePreferences(ctx context.Context) ([]*models.UserPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.UserPreference
	for _, p := range m.prefs {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetPreference(ctx context.Context, userID string) (*models.UserPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefs[userID], nil
}

func (m *memStore) FindUpcoming(ctx context.Context, now time.Time, platform models.Platform) ([]*models.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Contest
	for _, c := range m.contests {
		if platform != "" && c.Platform != platform {
			continue
		}
		if c.StartTime.After(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) GetContest(ctx context.Context, id uuid.UUID) (*models.Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contests[id], nil
}

func (m *memStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = n
	return nil
}

func (m *memStore) GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifications[id], nil
}

func (m *memStore) UpdateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = n
	return nil
}

func (m *memStore) FindNotification(ctx context.Context, userID string, contestID uuid.UUID, typ models.NotificationType) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.IsActive && n.UserID == userID && n.ContestID == contestID && n.Type == typ {
			return n, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListNotifications(ctx context.Context, filters models.NotificationFilters) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		out = append(out, n)
	}
	return out, nil
}

func (m *memStore) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.IsActive && n.NextRetryAt != nil && !n.NextRetryAt.After(now) {
			out = append(out, n)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeSender is a scripted channel sender

type fakeSender struct {
	ch      models.Channel
	succeed bool
	mu      sync.Mutex
	calls   int
}

func (f *fakeSender) Channel() models.Channel { return f.ch }
func (f *fakeSender) Enabled() bool           { return true }

func (f *fakeSender) Send(ctx context.Context, destination string, msg channel.Message) channel.SendResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.succeed {
		return channel.SendResult{Success: true, Channel: f.ch, MessageID: "msg-1"}
	}
	return channel.SendResult{Channel: f.ch, Error: "provider rejected"}
}

func (f *fakeSender) HealthCheck(ctx context.Context) bool { return true }

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testNotifyConfig() config.NotifyConfig {
	return config.NotifyConfig{
		CheckInterval:      15 * time.Minute,
		RetrySweepInterval: time.Minute,
		MaxRetries:         3,
		BackoffBase:        5 * time.Minute,
		BackoffCap:         24 * time.Hour,
	}
}

func seedNotification(store *memStore, emailOK, whatsappOK bool) (*models.Notification, *fakeSender, *fakeSender, *Dispatcher) {
	now := time.Now().UTC()
	contest := store.addContest(&models.Contest{
		Platform:   models.PlatformCodeforces,
		ExternalID: "1234",
		Name:       "Round #900",
		StartTime:  now.Add(10 * time.Hour),
		EndTime:    now.Add(13 * time.Hour),
		WebsiteURL: "https://codeforces.com/contest/1234",
	})

	store.prefs["user-1"] = &models.UserPreference{
		UserID:          "user-1",
		Platforms:       []models.Platform{models.PlatformCodeforces},
		EmailEnabled:    true,
		WhatsAppEnabled: true,
		IsActive:        true,
		Email:           "user@example.com",
		WhatsAppNumber:  "+15550001111",
	}

	email := &fakeSender{ch: models.ChannelEmail, succeed: emailOK}
	whatsapp := &fakeSender{ch: models.ChannelWhatsApp, succeed: whatsappOK}
	senders := channel.NewRegistry()
	senders.Register(email)
	senders.Register(whatsapp)

	d := NewDispatcher(store, senders, templates.NewLoader(), nil, testNotifyConfig())

	n := models.NewNotification("user-1", contest.ID, models.TypeContestReminder, 3)
	store.notifications[n.ID] = n

	return n, email, whatsapp, d
}

func TestDispatchChannelIsolation(t *testing.T) {
	store := newMemStore()
	n, _, _, d := seedNotification(store, false, true)

	updated, err := d.Dispatch(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if updated.Status != models.StatusSent {
		t.Errorf("one successful channel should make the aggregate SENT, got %s", updated.Status)
	}

	email := updated.Delivery(models.ChannelEmail)
	if email.State != models.DeliveryRetrying {
		t.Errorf("failed email should be retrying, got %s", email.State)
	}
	if email.NextRetryAt == nil {
		t.Error("retrying channel needs a scheduled retry")
	}

	wa := updated.Delivery(models.ChannelWhatsApp)
	if wa.State != models.DeliverySent {
		t.Errorf("whatsapp should be sent, got %s", wa.State)
	}
	if wa.MessageID != "msg-1" {
		t.Errorf("provider message id not recorded: %q", wa.MessageID)
	}

	if len(updated.ErrorHistory) != 1 {
		t.Errorf("expected 1 error history entry, got %d", len(updated.ErrorHistory))
	}
}

func TestDispatchRetryExhaustion(t *testing.T) {
	store := newMemStore()
	n, email, _, d := seedNotification(store, false, false)
	n.MaxRetries = 2

	past := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(context.Background(), n.ID); err != nil {
			t.Fatalf("dispatch %d failed: %v", i+1, err)
		}
		// Make scheduled retries immediately due for the next pass.
		for j := range n.Deliveries {
			if n.Deliveries[j].NextRetryAt != nil {
				n.Deliveries[j].NextRetryAt = &past
			}
		}
	}

	if email.callCount() != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", email.callCount())
	}

	if n.Status != models.StatusFailed {
		t.Errorf("all channels exhausted, expected FAILED, got %s", n.Status)
	}
	if n.NextRetryAt != nil {
		t.Errorf("terminal notification must not schedule retries, got %v", n.NextRetryAt)
	}

	ed := n.Delivery(models.ChannelEmail)
	if ed.State != models.DeliveryFailed {
		t.Errorf("expected failed email channel, got %s", ed.State)
	}
	if ed.FailedAt == nil {
		t.Error("failed channel should record FailedAt")
	}
	if len(n.ErrorHistory) != 4 {
		t.Errorf("expected 4 history entries (2 attempts x 2 channels), got %d", len(n.ErrorHistory))
	}
}

func TestDispatchSkipsResolvedChannels(t *testing.T) {
	store := newMemStore()
	n, email, whatsapp, d := seedNotification(store, true, true)

	if _, err := d.Dispatch(context.Background(), n.ID); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if _, err := d.Dispatch(context.Background(), n.ID); err != nil {
		t.Fatalf("second Dispatch failed: %v", err)
	}

	if email.callCount() != 1 || whatsapp.callCount() != 1 {
		t.Errorf("resolved channels must not be re-sent, got %d/%d calls",
			email.callCount(), whatsapp.callCount())
	}
}

func TestDispatchRespectsBackoffSchedule(t *testing.T) {
	store := newMemStore()
	n, email, _, d := seedNotification(store, false, true)

	if _, err := d.Dispatch(context.Background(), n.ID); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	// Email retry is scheduled in the future; a second dispatch must not
	// attempt it again yet.
	if _, err := d.Dispatch(context.Background(), n.ID); err != nil {
		t.Fatalf("second Dispatch failed: %v", err)
	}

	if email.callCount() != 1 {
		t.Errorf("channel retried before its backoff elapsed, %d calls", email.callCount())
	}
}

func TestDispatchMissingSender(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	contest := store.addContest(&models.Contest{
		Platform:   models.PlatformLeetCode,
		ExternalID: "weekly-1",
		Name:       "Weekly Contest",
		StartTime:  now.Add(5 * time.Hour),
		EndTime:    now.Add(7 * time.Hour),
	})
	store.prefs["user-2"] = &models.UserPreference{
		UserID:      "user-2",
		Platforms:   []models.Platform{models.PlatformLeetCode},
		PushEnabled: true,
		IsActive:    true,
		PushToken:   "tok",
	}

	d := NewDispatcher(store, channel.NewRegistry(), templates.NewLoader(), nil, testNotifyConfig())

	n := models.NewNotification("user-2", contest.ID, models.TypeContestReminder, 3)
	store.notifications[n.ID] = n

	updated, err := d.Dispatch(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	push := updated.Delivery(models.ChannelPush)
	if push == nil || push.State != models.DeliveryRetrying {
		t.Fatalf("missing sender should be a recorded failure, got %+v", push)
	}
	if !strings.Contains(push.Error, "no sender registered") {
		t.Errorf("unexpected error: %q", push.Error)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	d := NewDispatcher(newMemStore(), channel.NewRegistry(), templates.NewLoader(), nil, config.NotifyConfig{
		BackoffBase: 5 * time.Minute,
		BackoffCap:  30 * time.Minute,
	})

	if got := d.backoff(1); got != 5*time.Minute {
		t.Errorf("first retry: expected 5m, got %v", got)
	}
	if got := d.backoff(2); got != 10*time.Minute {
		t.Errorf("second retry: expected 10m, got %v", got)
	}
	if got := d.backoff(3); got != 20*time.Minute {
		t.Errorf("third retry: expected 20m, got %v", got)
	}
	if got := d.backoff(4); got != 30*time.Minute {
		t.Errorf("fourth retry: expected cap 30m, got %v", got)
	}
	if got := d.backoff(60); got != 30*time.Minute {
		t.Errorf("overflow must fall back to the cap, got %v", got)
	}
}

func TestSweepOnceRedispatchesDueRetries(t *testing.T) {
	store := newMemStore()
	n, email, _, d := seedNotification(store, false, true)

	if _, err := d.Dispatch(context.Background(), n.ID); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	// Pull the scheduled email retry into the past.
	past := time.Now().UTC().Add(-time.Second)
	n.NextRetryAt = &past
	for i := range n.Deliveries {
		if n.Deliveries[i].NextRetryAt != nil {
			n.Deliveries[i].NextRetryAt = &past
		}
	}

	d.SweepOnce(context.Background())

	if email.callCount() != 2 {
		t.Errorf("sweep should have re-attempted the email channel, got %d calls", email.callCount())
	}
}
