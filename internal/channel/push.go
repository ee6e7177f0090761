package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/contest-radar/contest-engine/internal/config"
	"github.com/contest-radar/contest-engine/internal/models"
)

// PushSender delivers notifications through an FCM-style push gateway
type PushSender struct {
	cfg  config.PushConfig
	http *http.Client
}

// NewPushSender creates a push sender from provider configuration
func NewPushSender(cfg config.PushConfig) *PushSender {
	return &PushSender{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Channel returns the delivery medium this sender serves
func (s *PushSender) Channel() models.Channel {
	return models.ChannelPush
}

// Enabled reports whether the push provider key is configured
func (s *PushSender) Enabled() bool {
	return s.cfg.Enabled && s.cfg.ServerKey != ""
}

type pushPayload struct {
	To           string `json:"to"`
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
}

type pushResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// Send delivers the message to the destination device token
func (s *PushSender) Send(ctx context.Context, destination string, msg Message) SendResult {
	if !s.Enabled() {
		return failure(s.Channel(), "push sender is not configured")
	}
	if destination == "" {
		return failure(s.Channel(), "device token is empty")
	}

	payload := pushPayload{To: destination}
	payload.Notification.Title = msg.Subject
	payload.Notification.Body = msg.Body

	body, err := json.Marshal(payload)
	if err != nil {
		return failure(s.Channel(), fmt.Sprintf("failed to marshal message: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return failure(s.Channel(), fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Authorization", "key="+s.cfg.ServerKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return failure(s.Channel(), fmt.Sprintf("push request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return failure(s.Channel(), fmt.Sprintf("push api error: %s", resp.Status))
	}

	var parsed pushResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return failure(s.Channel(), fmt.Sprintf("failed to decode push response: %v", err))
	}

	if parsed.Failure > 0 && parsed.Success == 0 {
		errMsg := "delivery rejected"
		if len(parsed.Results) > 0 && parsed.Results[0].Error != "" {
			errMsg = parsed.Results[0].Error
		}
		return failure(s.Channel(), fmt.Sprintf("push provider error: %s", errMsg))
	}

	messageID := ""
	if len(parsed.Results) > 0 {
		messageID = parsed.Results[0].MessageID
	}

	return SendResult{
		Success:   true,
		Channel:   s.Channel(),
		MessageID: messageID,
	}
}

// HealthCheck probes the push gateway
func (s *PushSender) HealthCheck(ctx context.Context) bool {
	if !s.Enabled() {
		return false
	}

	// The gateway rejects empty payloads but a non-5xx answer proves it is
	// reachable and the key is recognized.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "key="+s.cfg.ServerKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode < 500
}
