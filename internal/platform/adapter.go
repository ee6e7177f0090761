package platform

import (
	"context"
	"errors"
	"sync"

	"github.com/contest-radar/contest-engine/internal/models"
)

// ErrPlatformUnavailable marks a platform whose API stayed unreachable after
// every retry. It isolates the failure to that platform; the sync batch
// continues for the others.
var ErrPlatformUnavailable = errors.New("platform unavailable")

// Adapter fetches contest listings from one external platform and maps them
// into the canonical Contest model
type Adapter interface {
	// Platform returns the platform this adapter serves
	Platform() models.Platform

	// FetchContests retrieves current and upcoming contests. Individual
	// unparsable records are skipped; only a fully unreachable API fails
	// with ErrPlatformUnavailable.
	FetchContests(ctx context.Context) ([]*models.Contest, error)

	// HealthCheck performs a lightweight probe against the platform API
	HealthCheck(ctx context.Context) bool
}

// Registry manages platform adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Platform]Adapter
}

// NewRegistry creates a new adapter registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[models.Platform]Adapter),
	}
}

// Register adds an adapter to the registry
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get retrieves an adapter by platform, or nil when none is registered
func (r *Registry) Get(p models.Platform) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[p]
}

// List returns all registered adapters
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// HealthCheckAll probes every registered platform
func (r *Registry) HealthCheckAll(ctx context.Context) map[models.Platform]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[models.Platform]bool)
	for p, a := range r.adapters {
		results[p] = a.HealthCheck(ctx)
	}
	return results
}
