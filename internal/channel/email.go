package channel

import (
	"context"
	"fmt"
	"time"

	mail "gopkg.in/mail.v2"

	"github.com/contest-radar/contest-engine/internal/config"
	"github.com/contest-radar/contest-engine/internal/models"
)

// EmailSender delivers notifications over SMTP
type EmailSender struct {
	cfg config.EmailConfig
}

// NewEmailSender creates an email sender from SMTP configuration
func NewEmailSender(cfg config.EmailConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

// Channel returns the delivery medium this sender serves
func (s *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

// Enabled reports whether SMTP credentials are configured
func (s *EmailSender) Enabled() bool {
	return s.cfg.Enabled && s.cfg.SMTPHost != "" && s.cfg.From != ""
}

// Send delivers the message to the destination email address
func (s *EmailSender) Send(ctx context.Context, destination string, msg Message) SendResult {
	if !s.Enabled() {
		return failure(s.Channel(), "email sender is not configured")
	}
	if destination == "" {
		return failure(s.Channel(), "recipient email address is empty")
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", destination)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	dialer := mail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.Username, s.cfg.Password)

	// mail.v2 has no context support; honor cancellation around the dial.
	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return failure(s.Channel(), fmt.Sprintf("smtp send failed: %v", err))
		}
	case <-ctx.Done():
		return failure(s.Channel(), fmt.Sprintf("smtp send canceled: %v", ctx.Err()))
	}

	return SendResult{
		Success:   true,
		Channel:   s.Channel(),
		MessageID: fmt.Sprintf("smtp-%d", time.Now().UnixNano()),
	}
}

// HealthCheck verifies the SMTP server accepts connections
func (s *EmailSender) HealthCheck(ctx context.Context) bool {
	if !s.Enabled() {
		return false
	}

	dialer := mail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.Username, s.cfg.Password)

	done := make(chan bool, 1)
	go func() {
		closer, err := dialer.Dial()
		if err != nil {
			done <- false
			return
		}
		closer.Close()
		done <- true
	}()

	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		return false
	}
}
