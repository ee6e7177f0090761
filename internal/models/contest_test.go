package models

import (
	"testing"
	"time"
)

func TestContestValidate(t *testing.T) {
	now := time.Now().UTC()

	valid := Contest{
		Platform:   PlatformCodeforces,
		ExternalID: "1234",
		Name:       "Round #900",
		StartTime:  now.Add(10 * time.Hour),
		EndTime:    now.Add(13 * time.Hour),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid contest rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(c *Contest)
	}{
		{"unknown platform", func(c *Contest) { c.Platform = "topcoder" }},
		{"missing external id", func(c *Contest) { c.ExternalID = "" }},
		{"missing name", func(c *Contest) { c.Name = "" }},
		{"zero start", func(c *Contest) { c.StartTime = time.Time{} }},
		{"end before start", func(c *Contest) { c.EndTime = c.StartTime.Add(-time.Hour) }},
	}

	for _, tc := range cases {
		c := valid
		tc.mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestContestNormalize(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skip("tzdata not available")
	}

	start := time.Date(2026, 3, 1, 20, 0, 0, 0, loc)
	c := Contest{
		StartTime: start,
		EndTime:   start.Add(150 * time.Minute),
	}
	c.Normalize()

	if c.StartTime.Location() != time.UTC {
		t.Errorf("start time not normalized to UTC: %v", c.StartTime)
	}
	if c.DurationMinutes != 150 {
		t.Errorf("expected 150 minute duration, got %d", c.DurationMinutes)
	}
}

func TestContestPhase(t *testing.T) {
	now := time.Now().UTC()
	c := Contest{
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}

	if got := c.Phase(now); got != PhaseRunning {
		t.Errorf("expected running, got %s", got)
	}
	if got := c.Phase(now.Add(-2 * time.Hour)); got != PhaseUpcoming {
		t.Errorf("expected upcoming, got %s", got)
	}
	if got := c.Phase(now.Add(2 * time.Hour)); got != PhaseFinished {
		t.Errorf("expected finished, got %s", got)
	}
}

func TestHoursUntilStart(t *testing.T) {
	now := time.Now().UTC()
	c := Contest{StartTime: now.Add(23 * time.Hour)}

	got := c.HoursUntilStart(now)
	if got < 22.99 || got > 23.01 {
		t.Errorf("expected ~23 hours, got %f", got)
	}
}
