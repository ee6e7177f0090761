package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contest-radar/contest-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25 // default
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5 // default
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Contests ---

// UpsertContest inserts or updates a contest keyed by (platform, external_id).
// Returns true when a new row was inserted. Safe to call any number of times
// with the same external data.
func (r *PostgresRepository) UpsertContest(ctx context.Context, c *models.Contest) (bool, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	query := `
		INSERT INTO contests (id, platform, external_id, name, start_time, end_time, duration_minutes, website_url, registration_url, difficulty, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (platform, external_id) DO UPDATE
		SET name = EXCLUDED.name,
		    start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    duration_minutes = EXCLUDED.duration_minutes,
		    website_url = EXCLUDED.website_url,
		    registration_url = EXCLUDED.registration_url,
		    difficulty = EXCLUDED.difficulty,
		    description = EXCLUDED.description,
		    updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		c.ID,
		string(c.Platform),
		c.ExternalID,
		c.Name,
		c.StartTime,
		c.EndTime,
		c.DurationMinutes,
		nullString(c.WebsiteURL),
		nullString(c.RegistrationURL),
		nullString(c.Difficulty),
		nullString(c.Description),
	).Scan(&c.ID, &inserted)

	if err != nil {
		return false, fmt.Errorf("failed to upsert contest: %w", err)
	}

	return inserted, nil
}

const contestColumns = `id, platform, external_id, name, start_time, end_time, duration_minutes, website_url, registration_url, difficulty, description, created_at, updated_at`

func scanContest(row pgx.Row) (*models.Contest, error) {
	var c models.Contest
	var platformStr string
	var websiteURL, registrationURL, difficulty, description sql.NullString

	err := row.Scan(
		&c.ID,
		&platformStr,
		&c.ExternalID,
		&c.Name,
		&c.StartTime,
		&c.EndTime,
		&c.DurationMinutes,
		&websiteURL,
		&registrationURL,
		&difficulty,
		&description,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Platform = models.Platform(platformStr)
	c.WebsiteURL = websiteURL.String
	c.RegistrationURL = registrationURL.String
	c.Difficulty = difficulty.String
	c.Description = description.String

	return &c, nil
}

func (r *PostgresRepository) queryContests(ctx context.Context, query string, args ...interface{}) ([]*models.Contest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []*models.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contest: %w", err)
		}
		contests = append(contests, c)
	}

	return contests, rows.Err()
}

// GetContest retrieves a contest by ID
func (r *PostgresRepository) GetContest(ctx context.Context, id uuid.UUID) (*models.Contest, error) {
	query := fmt.Sprintf(`SELECT %s FROM contests WHERE id = $1`, contestColumns)

	c, err := scanContest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get contest: %w", err)
	}

	return c, nil
}

// ListContests returns contests matching filters, ordered by start time
func (r *PostgresRepository) ListContests(ctx context.Context, filters models.ContestFilters) ([]*models.Contest, error) {
	query := fmt.Sprintf(`SELECT %s FROM contests WHERE 1=1`, contestColumns)
	args := make([]interface{}, 0)
	argNum := 1

	if filters.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argNum)
		args = append(args, string(filters.Platform))
		argNum++
	}

	if !filters.From.IsZero() {
		query += fmt.Sprintf(" AND start_time >= $%d", argNum)
		args = append(args, filters.From)
		argNum++
	}

	if !filters.To.IsZero() {
		query += fmt.Sprintf(" AND start_time <= $%d", argNum)
		args = append(args, filters.To)
		argNum++
	}

	query += " ORDER BY start_time ASC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	contests, err := r.queryContests(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contests: %w", err)
	}

	return contests, nil
}

// FindUpcoming returns contests that have not started yet
func (r *PostgresRepository) FindUpcoming(ctx context.Context, now time.Time, platform models.Platform) ([]*models.Contest, error) {
	query := fmt.Sprintf(`SELECT %s FROM contests WHERE start_time > $1`, contestColumns)
	args := []interface{}{now}

	if platform != "" {
		query += " AND platform = $2"
		args = append(args, string(platform))
	}

	query += " ORDER BY start_time ASC"

	contests, err := r.queryContests(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find upcoming contests: %w", err)
	}

	return contests, nil
}

// FindRunning returns contests with start_time <= now <= end_time
func (r *PostgresRepository) FindRunning(ctx context.Context, now time.Time, platform models.Platform) ([]*models.Contest, error) {
	query := fmt.Sprintf(`SELECT %s FROM contests WHERE start_time <= $1 AND end_time >= $1`, contestColumns)
	args := []interface{}{now}

	if platform != "" {
		query += " AND platform = $2"
		args = append(args, string(platform))
	}

	query += " ORDER BY start_time ASC"

	contests, err := r.queryContests(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find running contests: %w", err)
	}

	return contests, nil
}

// DeleteContestsEndedBefore removes contests whose end_time is older than cutoff
func (r *PostgresRepository) DeleteContestsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM contests WHERE end_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old contests: %w", err)
	}

	return result.RowsAffected(), nil
}

// --- User preferences ---

const preferenceColumns = `user_id, platforms, notify_before_hours, email_enabled, whatsapp_enabled, push_enabled, alert_frequency, is_active, email, whatsapp_number, push_token`

func scanPreference(row pgx.Row) (*models.UserPreference, error) {
	var p models.UserPreference
	var platforms []string
	var frequency string
	var email, whatsappNumber, pushToken sql.NullString

	err := row.Scan(
		&p.UserID,
		&platforms,
		&p.NotifyBeforeHours,
		&p.EmailEnabled,
		&p.WhatsAppEnabled,
		&p.PushEnabled,
		&frequency,
		&p.IsActive,
		&email,
		&whatsappNumber,
		&pushToken,
	)
	if err != nil {
		return nil, err
	}

	p.Platforms = make([]models.Platform, 0, len(platforms))
	for _, pl := range platforms {
		p.Platforms = append(p.Platforms, models.Platform(pl))
	}
	p.AlertFrequency = models.AlertFrequency(frequency)
	p.Email = email.String
	p.WhatsAppNumber = whatsappNumber.String
	p.PushToken = pushToken.String

	return &p, nil
}

// ListActivePreferences returns preferences of all active users with at least
// one subscribed platform
func (r *PostgresRepository) ListActivePreferences(ctx context.Context) ([]*models.UserPreference, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM user_preferences
		WHERE is_active = TRUE AND cardinality(platforms) > 0
	`, preferenceColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*models.UserPreference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}

	return prefs, rows.Err()
}

// GetPreference retrieves one user's preference
func (r *PostgresRepository) GetPreference(ctx context.Context, userID string) (*models.UserPreference, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_preferences WHERE user_id = $1`, preferenceColumns)

	p, err := scanPreference(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}

	return p, nil
}

// --- Notifications ---

const notificationColumns = `id, user_id, contest_id, type, status, deliveries, error_history, retry_count, max_retries, next_retry_at, is_active, created_at, updated_at`

// CreateNotification inserts a new notification record
func (r *PostgresRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	deliveriesJSON, err := json.Marshal(n.Deliveries)
	if err != nil {
		return fmt.Errorf("failed to marshal deliveries: %w", err)
	}

	historyJSON, err := json.Marshal(n.ErrorHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal error history: %w", err)
	}

	query := `
		INSERT INTO notifications (id, user_id, contest_id, type, status, deliveries, error_history, retry_count, max_retries, next_retry_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		n.ID,
		n.UserID,
		n.ContestID,
		string(n.Type),
		string(n.Status),
		deliveriesJSON,
		historyJSON,
		n.RetryCount,
		n.MaxRetries,
		nullTime(n.NextRetryAt),
		n.IsActive,
		n.CreatedAt,
		n.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	var typeStr, statusStr string
	var deliveriesJSON, historyJSON []byte
	var nextRetryAt sql.NullTime

	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.ContestID,
		&typeStr,
		&statusStr,
		&deliveriesJSON,
		&historyJSON,
		&n.RetryCount,
		&n.MaxRetries,
		&nextRetryAt,
		&n.IsActive,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.Type = models.NotificationType(typeStr)
	n.Status = models.NotificationStatus(statusStr)

	if nextRetryAt.Valid {
		n.NextRetryAt = &nextRetryAt.Time
	}

	if deliveriesJSON != nil {
		if err := json.Unmarshal(deliveriesJSON, &n.Deliveries); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deliveries: %w", err)
		}
	}

	if historyJSON != nil {
		if err := json.Unmarshal(historyJSON, &n.ErrorHistory); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error history: %w", err)
		}
	}

	return &n, nil
}

func (r *PostgresRepository) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// GetNotification retrieves a notification by ID
func (r *PostgresRepository) GetNotification(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)

	n, err := scanNotification(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// UpdateNotification persists delivery bookkeeping after a dispatch attempt
func (r *PostgresRepository) UpdateNotification(ctx context.Context, n *models.Notification) error {
	deliveriesJSON, err := json.Marshal(n.Deliveries)
	if err != nil {
		return fmt.Errorf("failed to marshal deliveries: %w", err)
	}

	historyJSON, err := json.Marshal(n.ErrorHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal error history: %w", err)
	}

	query := `
		UPDATE notifications
		SET status = $2, deliveries = $3, error_history = $4, retry_count = $5, next_retry_at = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		n.ID,
		string(n.Status),
		deliveriesJSON,
		historyJSON,
		n.RetryCount,
		nullTime(n.NextRetryAt),
		n.IsActive,
	)

	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification not found: %s", n.ID)
	}

	return nil
}

// FindNotification returns the active notification for a (user, contest, type)
// triple, or nil when none exists
func (r *PostgresRepository) FindNotification(ctx context.Context, userID string, contestID uuid.UUID, typ models.NotificationType) (*models.Notification, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM notifications
		WHERE user_id = $1 AND contest_id = $2 AND type = $3 AND is_active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`, notificationColumns)

	n, err := scanNotification(r.pool.QueryRow(ctx, query, userID, contestID, string(typ)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find notification: %w", err)
	}

	return n, nil
}

// ListNotifications returns notifications matching filters
func (r *PostgresRepository) ListNotifications(ctx context.Context, filters models.NotificationFilters) ([]*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE 1=1`, notificationColumns)
	args := make([]interface{}, 0)
	argNum := 1

	if filters.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argNum)
		args = append(args, filters.UserID)
		argNum++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filters.Status))
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	notifications, err := r.queryNotifications(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return notifications, nil
}

// FindDueRetries returns active notifications whose next retry is due
func (r *PostgresRepository) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]*models.Notification, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM notifications
		WHERE is_active = TRUE
		  AND next_retry_at IS NOT NULL
		  AND next_retry_at <= $1
		ORDER BY next_retry_at ASC
		LIMIT $2
	`, notificationColumns)

	notifications, err := r.queryNotifications(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find due retries: %w", err)
	}

	return notifications, nil
}

// DeactivateNotificationsBefore excludes old terminal notifications from
// active queries. Records are retained as an audit trail, never deleted.
func (r *PostgresRepository) DeactivateNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET is_active = FALSE, updated_at = NOW()
		WHERE is_active = TRUE
		  AND status IN ('SENT', 'FAILED')
		  AND updated_at < $1
	`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate old notifications: %w", err)
	}

	return result.RowsAffected(), nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
