package channel

import (
	"context"
	"sync"

	"github.com/contest-radar/contest-engine/internal/models"
)

// Message is the rendered, channel-agnostic content of one notification
type Message struct {
	Subject string
	Body    string
}

// SendResult is the outcome of one delivery attempt. Senders always return a
// well-formed result, configured or not, so the dispatcher's retry
// bookkeeping works uniformly.
type SendResult struct {
	Success   bool
	Channel   models.Channel
	MessageID string
	Error     string
}

// Sender wraps one provider-specific delivery operation behind a uniform
// contract
type Sender interface {
	// Channel returns the delivery medium this sender serves
	Channel() models.Channel

	// Enabled reports whether provider credentials are configured
	Enabled() bool

	// Send delivers a message to the destination address. Failures are
	// reported in the result, never panicked or thrown.
	Send(ctx context.Context, destination string, msg Message) SendResult

	// HealthCheck probes the provider
	HealthCheck(ctx context.Context) bool
}

// Registry manages channel senders
type Registry struct {
	mu      sync.RWMutex
	senders map[models.Channel]Sender
}

// NewRegistry creates a new sender registry
func NewRegistry() *Registry {
	return &Registry{
		senders: make(map[models.Channel]Sender),
	}
}

// Register adds a sender to the registry
func (r *Registry) Register(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[s.Channel()] = s
}

// Get retrieves a sender by channel, or nil when none is registered
func (r *Registry) Get(ch models.Channel) Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.senders[ch]
}

// List returns all registered senders
func (r *Registry) List() []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Sender, 0, len(r.senders))
	for _, s := range r.senders {
		out = append(out, s)
	}
	return out
}

// HealthCheckAll probes every enabled sender
func (r *Registry) HealthCheckAll(ctx context.Context) map[models.Channel]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[models.Channel]bool)
	for ch, s := range r.senders {
		if !s.Enabled() {
			results[ch] = false
			continue
		}
		results[ch] = s.HealthCheck(ctx)
	}
	return results
}

// failure builds the uniform failure result for a channel
func failure(ch models.Channel, errMsg string) SendResult {
	return SendResult{Success: false, Channel: ch, Error: errMsg}
}
