package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/contest-radar/contest-engine/internal/models"
	"github.com/contest-radar/contest-engine/internal/platform"
)

type fakeAdapter struct {
	platform models.Platform
	contests []*models.Contest
	err      error
}

func (f *fakeAdapter) Platform() models.Platform { return f.platform }

func (f *fakeAdapter) FetchContests(ctx context.Context) ([]*models.Contest, error) {
	return f.contests, f.err
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) bool { return f.err == nil }

type fakeStore struct {
	mu       sync.Mutex
	existing map[string]bool
	failFor  map[string]bool
	upserts  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		existing: make(map[string]bool),
		failFor:  make(map[string]bool),
	}
}

func (f *fakeStore) UpsertContest(ctx context.Context, c *models.Contest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := string(c.Platform) + "/" + c.ExternalID
	if f.failFor[key] {
		return false, errors.New("persistence failure")
	}

	f.upserts++
	if f.existing[key] {
		return false, nil
	}
	f.existing[key] = true
	return true, nil
}

func contest(p models.Platform, id string) *models.Contest {
	now := time.Now().UTC()
	return &models.Contest{
		Platform:   p,
		ExternalID: id,
		Name:       "Contest " + id,
		StartTime:  now.Add(10 * time.Hour),
		EndTime:    now.Add(12 * time.Hour),
	}
}

func TestSyncAllCountsAddedAndUpdated(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register(&fakeAdapter{
		platform: models.PlatformCodeforces,
		contests: []*models.Contest{
			contest(models.PlatformCodeforces, "1"),
			contest(models.PlatformCodeforces, "2"),
		},
	})

	store := newFakeStore()
	store.existing["codeforces/2"] = true

	o := NewOrchestrator(adapters, store, nil, nil, time.Hour)
	result, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	pr := result.Platforms[models.PlatformCodeforces]
	if !pr.Success {
		t.Error("expected success")
	}
	if pr.ContestsAdded != 1 || pr.ContestsUpdated != 1 {
		t.Errorf("expected 1 added and 1 updated, got %d/%d", pr.ContestsAdded, pr.ContestsUpdated)
	}
}

func TestSyncAllIsolatesPlatformFailure(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register(&fakeAdapter{
		platform: models.PlatformCodeforces,
		err:      platform.ErrPlatformUnavailable,
	})
	adapters.Register(&fakeAdapter{
		platform: models.PlatformAtCoder,
		contests: []*models.Contest{contest(models.PlatformAtCoder, "abc999")},
	})

	o := NewOrchestrator(adapters, newFakeStore(), nil, nil, time.Hour)
	result, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	cf := result.Platforms[models.PlatformCodeforces]
	if cf.Success {
		t.Error("codeforces should report failure")
	}
	if cf.Error == "" {
		t.Error("failed platform should carry an error message")
	}

	ac := result.Platforms[models.PlatformAtCoder]
	if !ac.Success || ac.ContestsAdded != 1 {
		t.Errorf("atcoder should be unaffected: %+v", ac)
	}
}

func TestSyncAllCountsPersistenceErrors(t *testing.T) {
	adapters := platform.NewRegistry()
	adapters.Register(&fakeAdapter{
		platform: models.PlatformCodeforces,
		contests: []*models.Contest{
			contest(models.PlatformCodeforces, "1"),
			contest(models.PlatformCodeforces, "2"),
		},
	})

	store := newFakeStore()
	store.failFor["codeforces/1"] = true

	o := NewOrchestrator(adapters, store, nil, nil, time.Hour)
	result, err := o.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	pr := result.Platforms[models.PlatformCodeforces]
	if !pr.Success {
		t.Error("persistence errors should not fail the platform")
	}
	if pr.ErrorCount != 1 {
		t.Errorf("expected 1 persistence error, got %d", pr.ErrorCount)
	}
	if pr.ContestsAdded != 1 {
		t.Errorf("the loop should continue after a bad record, added %d", pr.ContestsAdded)
	}
}

func TestSyncAllNoAdapters(t *testing.T) {
	o := NewOrchestrator(platform.NewRegistry(), newFakeStore(), nil, nil, time.Hour)
	if _, err := o.SyncAll(context.Background()); !errors.Is(err, ErrNoAdapters) {
		t.Fatalf("expected ErrNoAdapters, got %v", err)
	}
}

type blockingAdapter struct {
	platform models.Platform
	release  chan struct{}
}

func (b *blockingAdapter) Platform() models.Platform { return b.platform }

func (b *blockingAdapter) FetchContests(ctx context.Context) ([]*models.Contest, error) {
	<-b.release
	return nil, nil
}

func (b *blockingAdapter) HealthCheck(ctx context.Context) bool { return true }

func TestSyncAllRejectsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	adapters := platform.NewRegistry()
	adapters.Register(&blockingAdapter{platform: models.PlatformCodeforces, release: release})

	o := NewOrchestrator(adapters, newFakeStore(), nil, nil, time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := o.SyncAll(context.Background()); err != nil {
			t.Errorf("first sync failed: %v", err)
		}
	}()

	// Wait for the first run to take the guard.
	deadline := time.After(2 * time.Second)
	for !o.running.Load() {
		select {
		case <-deadline:
			t.Fatal("first sync never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := o.SyncAll(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}

	close(release)
	<-done

	// Guard released, a new run may start.
	if _, err := o.SyncAll(context.Background()); err != nil {
		t.Fatalf("sync after completion failed: %v", err)
	}
}
