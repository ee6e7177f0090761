package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Platform identifies an external contest-hosting site
type Platform string

const (
	PlatformCodeforces Platform = "codeforces"
	PlatformLeetCode   Platform = "leetcode"
	PlatformCodeChef   Platform = "codechef"
	PlatformAtCoder    Platform = "atcoder"
)

// AllPlatforms returns every supported platform
func AllPlatforms() []Platform {
	return []Platform{PlatformCodeforces, PlatformLeetCode, PlatformCodeChef, PlatformAtCoder}
}

// Valid reports whether the platform is one of the supported sites
func (p Platform) Valid() bool {
	switch p {
	case PlatformCodeforces, PlatformLeetCode, PlatformCodeChef, PlatformAtCoder:
		return true
	}
	return false
}

// ContestPhase represents where a contest sits relative to the current time.
// Phase is always derived from start/end times, never stored.
type ContestPhase string

const (
	PhaseUpcoming ContestPhase = "upcoming"
	PhaseRunning  ContestPhase = "running"
	PhaseFinished ContestPhase = "finished"
)

// Contest is the canonical, platform-independent contest record.
// Identity is (Platform, ExternalID); re-syncing the same external contest
// updates the existing row in place.
type Contest struct {
	ID              uuid.UUID `json:"id"`
	Platform        Platform  `json:"platform"`
	ExternalID      string    `json:"external_id"`
	Name            string    `json:"name"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	WebsiteURL      string    `json:"website_url,omitempty"`
	RegistrationURL string    `json:"registration_url,omitempty"`
	Difficulty      string    `json:"difficulty,omitempty"`
	Description     string    `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the invariants an adapter must satisfy before a contest
// is handed to the store
func (c *Contest) Validate() error {
	if !c.Platform.Valid() {
		return fmt.Errorf("invalid platform: %q", c.Platform)
	}
	if c.ExternalID == "" {
		return fmt.Errorf("external id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("contest name is required")
	}
	if c.StartTime.IsZero() || c.EndTime.IsZero() {
		return fmt.Errorf("start and end times are required")
	}
	if c.EndTime.Before(c.StartTime) {
		return fmt.Errorf("end time %s before start time %s", c.EndTime, c.StartTime)
	}
	return nil
}

// Normalize fills in derived fields; call after an adapter maps raw data
func (c *Contest) Normalize() {
	c.StartTime = c.StartTime.UTC()
	c.EndTime = c.EndTime.UTC()
	c.DurationMinutes = int(math.Round(c.EndTime.Sub(c.StartTime).Minutes()))
}

// Phase classifies the contest relative to now
func (c *Contest) Phase(now time.Time) ContestPhase {
	switch {
	case now.Before(c.StartTime):
		return PhaseUpcoming
	case now.After(c.EndTime):
		return PhaseFinished
	default:
		return PhaseRunning
	}
}

// HoursUntilStart returns the time until the contest starts, in hours
func (c *Contest) HoursUntilStart(now time.Time) float64 {
	return c.StartTime.Sub(now).Hours()
}

// ContestFilters defines filters for listing contests
type ContestFilters struct {
	Platform Platform
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// PlatformResult records the outcome of syncing a single platform
type PlatformResult struct {
	Platform        Platform `json:"platform"`
	Success         bool     `json:"success"`
	ContestsAdded   int      `json:"contests_added"`
	ContestsUpdated int      `json:"contests_updated"`
	ErrorCount      int      `json:"error_count"`
	Error           string   `json:"error,omitempty"`
}

// SyncResult aggregates per-platform outcomes of one sync run
type SyncResult struct {
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
	Platforms  map[Platform]PlatformResult `json:"platforms"`
}
