package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/contest-radar/contest-engine/internal/events"
)

type fakeStore struct {
	contestCutoff      time.Time
	notificationCutoff time.Time
	deleted            int64
	deactivated        int64
	failDelete         bool
}

func (f *fakeStore) DeleteContestsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.contestCutoff = cutoff
	if f.failDelete {
		return 0, errors.New("delete failed")
	}
	return f.deleted, nil
}

func (f *fakeStore) DeactivateNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.notificationCutoff = cutoff
	return f.deactivated, nil
}

func TestCleanupUsesRetentionCutoff(t *testing.T) {
	store := &fakeStore{deleted: 3, deactivated: 7}
	c := NewCleaner(store, nil, time.Hour, 90)

	before := time.Now().UTC().Add(-90 * 24 * time.Hour)
	result := c.Cleanup(context.Background())
	after := time.Now().UTC().Add(-90 * 24 * time.Hour)

	if store.contestCutoff.Before(before) || store.contestCutoff.After(after) {
		t.Errorf("contest cutoff not 90 days back: %v", store.contestCutoff)
	}
	if !store.notificationCutoff.Equal(store.contestCutoff) {
		t.Error("both sweeps should share one cutoff")
	}
	if result.ContestsDeleted != 3 || result.NotificationsDeactivated != 7 {
		t.Errorf("counts not propagated: %+v", result)
	}
}

func TestCleanupContinuesAfterDeleteFailure(t *testing.T) {
	store := &fakeStore{failDelete: true, deactivated: 2}
	c := NewCleaner(store, nil, time.Hour, 90)

	result := c.Cleanup(context.Background())

	if result.ContestsDeleted != 0 {
		t.Errorf("failed delete should report 0, got %d", result.ContestsDeleted)
	}
	if result.NotificationsDeactivated != 2 {
		t.Error("notification sweep should run despite the contest sweep failing")
	}
}

func TestCleanupPublishesEvent(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	c := NewCleaner(&fakeStore{deleted: 1}, bus, time.Hour, 30)
	c.Cleanup(context.Background())

	select {
	case evt := <-ch:
		if evt.Type != events.TypeCleanupCompleted {
			t.Errorf("unexpected event type: %s", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no cleanup event published")
	}
}

func TestNewCleanerDefaults(t *testing.T) {
	c := NewCleaner(&fakeStore{}, nil, 0, 0)

	if c.interval != 24*time.Hour {
		t.Errorf("expected 24h default interval, got %v", c.interval)
	}
	if c.retention != 90*24*time.Hour {
		t.Errorf("expected 90 day default retention, got %v", c.retention)
	}
}
