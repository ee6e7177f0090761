package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies why a notification was created
type NotificationType string

const (
	TypeContestReminder NotificationType = "CONTEST_REMINDER"
	TypeContestStarting NotificationType = "CONTEST_STARTING"
	TypeContestEnding   NotificationType = "CONTEST_ENDING"
	TypeSystemAlert     NotificationType = "SYSTEM_ALERT"
)

// Channel is a notification delivery medium
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelPush     Channel = "push"
)

// AllChannels returns every supported delivery channel
func AllChannels() []Channel {
	return []Channel{ChannelEmail, ChannelWhatsApp, ChannelPush}
}

// DeliveryState is the per-channel delivery state machine:
// pending -> sent | retrying -> failed
type DeliveryState string

const (
	DeliveryPending  DeliveryState = "pending"
	DeliverySent     DeliveryState = "sent"
	DeliveryRetrying DeliveryState = "retrying"
	DeliveryFailed   DeliveryState = "failed"
)

// NotificationStatus is the aggregate status derived from channel deliveries
type NotificationStatus string

const (
	StatusPending  NotificationStatus = "PENDING"
	StatusSent     NotificationStatus = "SENT"
	StatusFailed   NotificationStatus = "FAILED"
	StatusRetrying NotificationStatus = "RETRYING"
)

// ChannelDelivery tracks delivery attempts on one channel
type ChannelDelivery struct {
	Channel     Channel       `json:"channel"`
	State       DeliveryState `json:"state"`
	MessageID   string        `json:"message_id,omitempty"`
	Error       string        `json:"error,omitempty"`
	RetryCount  int           `json:"retry_count"`
	SentAt      *time.Time    `json:"sent_at,omitempty"`
	FailedAt    *time.Time    `json:"failed_at,omitempty"`
	LastRetryAt *time.Time    `json:"last_retry_at,omitempty"`
	NextRetryAt *time.Time    `json:"next_retry_at,omitempty"`
}

// Resolved reports whether this channel needs no further attempts
func (d *ChannelDelivery) Resolved() bool {
	return d.State == DeliverySent || d.State == DeliveryFailed
}

// DeliveryError is one entry in the append-only error history
type DeliveryError struct {
	Channel    Channel   `json:"channel"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notification records a single reminder for a (user, contest, type) triple
// and the per-channel delivery bookkeeping around it. Notifications are never
// deleted; expired ones are excluded from active queries via IsActive.
type Notification struct {
	ID           uuid.UUID          `json:"id"`
	UserID       string             `json:"user_id"`
	ContestID    uuid.UUID          `json:"contest_id"`
	Type         NotificationType   `json:"type"`
	Status       NotificationStatus `json:"status"`
	Deliveries   []ChannelDelivery  `json:"deliveries"`
	ErrorHistory []DeliveryError    `json:"error_history,omitempty"`
	RetryCount   int                `json:"retry_count"`
	MaxRetries   int                `json:"max_retries"`
	NextRetryAt  *time.Time         `json:"next_retry_at,omitempty"`
	IsActive     bool               `json:"is_active"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// NewNotification creates a pending notification for a (user, contest, type) triple
func NewNotification(userID string, contestID uuid.UUID, typ NotificationType, maxRetries int) *Notification {
	now := time.Now().UTC()
	return &Notification{
		ID:         uuid.New(),
		UserID:     userID,
		ContestID:  contestID,
		Type:       typ,
		Status:     StatusPending,
		MaxRetries: maxRetries,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Delivery returns the bookkeeping entry for a channel, or nil if the channel
// has never been attempted
func (n *Notification) Delivery(ch Channel) *ChannelDelivery {
	for i := range n.Deliveries {
		if n.Deliveries[i].Channel == ch {
			return &n.Deliveries[i]
		}
	}
	return nil
}

// EnsureDelivery returns the delivery entry for a channel, creating a pending
// one if the channel has not been attempted yet
func (n *Notification) EnsureDelivery(ch Channel) *ChannelDelivery {
	if d := n.Delivery(ch); d != nil {
		return d
	}
	n.Deliveries = append(n.Deliveries, ChannelDelivery{Channel: ch, State: DeliveryPending})
	return &n.Deliveries[len(n.Deliveries)-1]
}

// RecordFailure appends to the error history and bumps the channel's retry
// bookkeeping. The caller decides retry-vs-terminal via the delivery state.
func (n *Notification) RecordFailure(ch Channel, errMsg string, at time.Time) {
	n.ErrorHistory = append(n.ErrorHistory, DeliveryError{
		Channel:    ch,
		Error:      errMsg,
		OccurredAt: at,
	})
}

// RecomputeStatus derives the aggregate status from channel deliveries.
// Policy: SENT if any channel ever succeeded; FAILED only when every attempted
// channel is terminally failed; RETRYING when any channel awaits a retry.
func (n *Notification) RecomputeStatus() {
	if len(n.Deliveries) == 0 {
		n.Status = StatusPending
		n.NextRetryAt = nil
		return
	}

	anySent := false
	anyRetrying := false
	allFailed := true
	var earliest *time.Time

	for i := range n.Deliveries {
		d := &n.Deliveries[i]
		switch d.State {
		case DeliverySent:
			anySent = true
			allFailed = false
		case DeliveryRetrying:
			anyRetrying = true
			allFailed = false
			if d.NextRetryAt != nil && (earliest == nil || d.NextRetryAt.Before(*earliest)) {
				earliest = d.NextRetryAt
			}
		case DeliveryPending:
			allFailed = false
		}
	}

	switch {
	case anySent:
		n.Status = StatusSent
	case allFailed:
		n.Status = StatusFailed
	case anyRetrying:
		n.Status = StatusRetrying
	default:
		n.Status = StatusPending
	}

	// Top-level retry scheduling follows the earliest unresolved channel.
	n.NextRetryAt = earliest
}

// Terminal reports whether no further delivery work will happen
func (s NotificationStatus) Terminal() bool {
	return s == StatusFailed
}

// NotificationFilters defines filters for listing notifications
type NotificationFilters struct {
	UserID string
	Status NotificationStatus
	Limit  int
	Offset int
}
