package channel

import (
	"context"
	"testing"

	"github.com/contest-radar/contest-engine/internal/config"
	"github.com/contest-radar/contest-engine/internal/models"
)

func TestUnconfiguredSendersReturnWellFormedFailures(t *testing.T) {
	// Retry bookkeeping relies on every sender answering with a result,
	// configured or not.
	msg := Message{Subject: "s", Body: "b"}

	senders := []Sender{
		NewEmailSender(config.EmailConfig{}),
		NewWhatsAppSender(config.WhatsAppConfig{}),
		NewPushSender(config.PushConfig{}),
	}

	for _, s := range senders {
		if s.Enabled() {
			t.Errorf("%s: should not be enabled without credentials", s.Channel())
		}

		res := s.Send(context.Background(), "dest", msg)
		if res.Success {
			t.Errorf("%s: unconfigured send must fail", s.Channel())
		}
		if res.Channel != s.Channel() {
			t.Errorf("%s: result carries wrong channel %s", s.Channel(), res.Channel)
		}
		if res.Error == "" {
			t.Errorf("%s: failure result needs an error message", s.Channel())
		}
	}
}

func TestRegistryHealthCheckAll(t *testing.T) {
	r := NewRegistry()
	r.Register(NewEmailSender(config.EmailConfig{}))
	r.Register(NewPushSender(config.PushConfig{}))

	results := r.HealthCheckAll(context.Background())

	if len(results) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(results))
	}
	if results[models.ChannelEmail] || results[models.ChannelPush] {
		t.Error("unconfigured senders must report unhealthy")
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	s := NewPushSender(config.PushConfig{})
	r.Register(s)

	if got := r.Get(models.ChannelPush); got != s {
		t.Error("Get should return the registered sender")
	}
	if got := r.Get(models.ChannelEmail); got != nil {
		t.Error("Get for unregistered channel should return nil")
	}
}
