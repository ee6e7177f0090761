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

// WhatsAppSender delivers notifications through the WhatsApp Business Cloud API
type WhatsAppSender struct {
	cfg  config.WhatsAppConfig
	http *http.Client
}

// NewWhatsAppSender creates a WhatsApp sender from Business API configuration
func NewWhatsAppSender(cfg config.WhatsAppConfig) *WhatsAppSender {
	return &WhatsAppSender{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Channel returns the delivery medium this sender serves
func (s *WhatsAppSender) Channel() models.Channel {
	return models.ChannelWhatsApp
}

// Enabled reports whether Business API credentials are configured
func (s *WhatsAppSender) Enabled() bool {
	return s.cfg.Enabled && s.cfg.AccessToken != "" && s.cfg.PhoneNumberID != ""
}

type waTextMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

type waResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Send delivers the message to the destination phone number
func (s *WhatsAppSender) Send(ctx context.Context, destination string, msg Message) SendResult {
	if !s.Enabled() {
		return failure(s.Channel(), "whatsapp sender is not configured")
	}
	if destination == "" {
		return failure(s.Channel(), "recipient phone number is empty")
	}

	payload := waTextMessage{
		MessagingProduct: "whatsapp",
		To:               destination,
		Type:             "text",
	}
	payload.Text.Body = msg.Body

	body, err := json.Marshal(payload)
	if err != nil {
		return failure(s.Channel(), fmt.Sprintf("failed to marshal message: %v", err))
	}

	url := fmt.Sprintf("%s/%s/messages", s.cfg.APIURL, s.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failure(s.Channel(), fmt.Sprintf("failed to build request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return failure(s.Channel(), fmt.Sprintf("whatsapp request failed: %v", err))
	}
	defer resp.Body.Close()

	var parsed waResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return failure(s.Channel(), fmt.Sprintf("failed to decode whatsapp response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errMsg := resp.Status
		if parsed.Error != nil {
			errMsg = parsed.Error.Message
		}
		return failure(s.Channel(), fmt.Sprintf("whatsapp api error: %s", errMsg))
	}

	messageID := ""
	if len(parsed.Messages) > 0 {
		messageID = parsed.Messages[0].ID
	}

	return SendResult{
		Success:   true,
		Channel:   s.Channel(),
		MessageID: messageID,
	}
}

// HealthCheck probes the Business API with the configured credentials
func (s *WhatsAppSender) HealthCheck(ctx context.Context) bool {
	if !s.Enabled() {
		return false
	}

	url := fmt.Sprintf("%s/%s", s.cfg.APIURL, s.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
