package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/contest-radar/contest-engine/internal/models"
)

// Repository defines the interface for contest and notification persistence
type Repository interface {
	// Contests
	UpsertContest(ctx context.Context, c *models.Contest) (inserted bool, err error)
	GetContest(ctx context.Context, id uuid.UUID) (*models.Contest, error)
	ListContests(ctx context.Context, filters models.ContestFilters) ([]*models.Contest, error)
	FindUpcoming(ctx context.Context, now time.Time, platform models.Platform) ([]*models.Contest, error)
	FindRunning(ctx context.Context, now time.Time, platform models.Platform) ([]*models.Contest, error)
	DeleteContestsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// User preferences (read-only; owned by the user service)
	ListActivePreferences(ctx context.Context) ([]*models.UserPreference, error)
	GetPreference(ctx context.Context, userID string) (*models.UserPreference, error)

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	UpdateNotification(ctx context.Context, n *models.Notification) error
	FindNotification(ctx context.Context, userID string, contestID uuid.UUID, typ models.NotificationType) (*models.Notification, error)
	ListNotifications(ctx context.Context, filters models.NotificationFilters) ([]*models.Notification, error)
	FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error)
	DeactivateNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
