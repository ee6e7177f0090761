package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a Go SDK for the contest-engine admin API
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new contest-engine client
func NewClient(baseURL, adminToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		adminToken: adminToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Contest represents a contest response
type Contest struct {
	ID              string    `json:"id"`
	Platform        string    `json:"platform"`
	ExternalID      string    `json:"external_id"`
	Name            string    `json:"name"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	WebsiteURL      string    `json:"website_url,omitempty"`
	RegistrationURL string    `json:"registration_url,omitempty"`
	Difficulty      string    `json:"difficulty,omitempty"`
	Description     string    `json:"description,omitempty"`
}

// ChannelDelivery represents one channel's delivery bookkeeping
type ChannelDelivery struct {
	Channel     string     `json:"channel"`
	State       string     `json:"state"`
	MessageID   string     `json:"message_id,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
}

// Notification represents a notification response
type Notification struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	ContestID   string            `json:"contest_id"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Deliveries  []ChannelDelivery `json:"deliveries"`
	RetryCount  int               `json:"retry_count"`
	MaxRetries  int               `json:"max_retries"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// PlatformResult represents one platform's sync outcome
type PlatformResult struct {
	Platform        string `json:"platform"`
	Success         bool   `json:"success"`
	ContestsAdded   int    `json:"contests_added"`
	ContestsUpdated int    `json:"contests_updated"`
	ErrorCount      int    `json:"error_count"`
	Error           string `json:"error,omitempty"`
}

// SyncResult represents a full sync run
type SyncResult struct {
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Platforms  map[string]PlatformResult `json:"platforms"`
}

// CleanupResult represents one cleanup cycle
type CleanupResult struct {
	ContestsDeleted          int64     `json:"contests_deleted"`
	NotificationsDeactivated int64     `json:"notifications_deactivated"`
	Cutoff                   time.Time `json:"cutoff"`
}

// ContestListOptions contains options for listing contests
type ContestListOptions struct {
	Platform string
	Status   string
	Limit    int
	Offset   int
}

// NotificationListOptions contains options for listing notifications
type NotificationListOptions struct {
	UserID string
	Status string
	Limit  int
	Offset int
}

// Sync triggers a full platform sync
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	var result SyncResult
	if err := c.call(ctx, "POST", "/api/v1/sync", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncPlatform triggers a sync for a single platform
func (c *Client) SyncPlatform(ctx context.Context, platform string) (*PlatformResult, error) {
	var result PlatformResult
	if err := c.call(ctx, "POST", "/api/v1/sync/"+platform, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cleanup triggers a retention cleanup cycle
func (c *Client) Cleanup(ctx context.Context) (*CleanupResult, error) {
	var result CleanupResult
	if err := c.call(ctx, "POST", "/api/v1/cleanup", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListContests retrieves contests matching the options
func (c *Client) ListContests(ctx context.Context, opts ContestListOptions) ([]*Contest, error) {
	q := url.Values{}
	if opts.Platform != "" {
		q.Set("platform", opts.Platform)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	var result struct {
		Contests []*Contest `json:"contests"`
		Total    int        `json:"total"`
	}
	if err := c.call(ctx, "GET", "/api/v1/contests?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return result.Contests, nil
}

// GetContest retrieves a contest by ID
func (c *Client) GetContest(ctx context.Context, id string) (*Contest, error) {
	var result Contest
	if err := c.call(ctx, "GET", "/api/v1/contests/"+id, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListNotifications retrieves notifications matching the options
func (c *Client) ListNotifications(ctx context.Context, opts NotificationListOptions) ([]*Notification, error) {
	q := url.Values{}
	if opts.UserID != "" {
		q.Set("user_id", opts.UserID)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	var result struct {
		Notifications []*Notification `json:"notifications"`
		Total         int             `json:"total"`
	}
	if err := c.call(ctx, "GET", "/api/v1/notifications?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return result.Notifications, nil
}

// GetNotification retrieves a notification by ID
func (c *Client) GetNotification(ctx context.Context, id string) (*Notification, error) {
	var result Notification
	if err := c.call(ctx, "GET", "/api/v1/notifications/"+id, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RetryNotification re-dispatches a notification's unresolved channels
func (c *Client) RetryNotification(ctx context.Context, id string) (*Notification, error) {
	var result Notification
	if err := c.call(ctx, "POST", "/api/v1/notifications/"+id+"/retry", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PlatformsHealth probes every registered platform adapter
func (c *Client) PlatformsHealth(ctx context.Context) (map[string]bool, error) {
	result := make(map[string]bool)
	if err := c.call(ctx, "GET", "/api/v1/platforms/health", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ChannelsHealth probes every registered channel sender
func (c *Client) ChannelsHealth(ctx context.Context) (map[string]bool, error) {
	result := make(map[string]bool)
	if err := c.call(ctx, "GET", "/api/v1/channels/health", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, "GET", "/health", nil)
}

// call performs a request and unwraps the API response envelope into out
func (c *Client) call(ctx context.Context, method, path string, out interface{}) error {
	body, err := c.doRequest(ctx, method, path)
	if err != nil {
		return err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !envelope.Success {
		if envelope.Error != nil {
			return fmt.Errorf("API error: %s - %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("API error: request failed")
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}

	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
