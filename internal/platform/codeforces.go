package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contest-radar/contest-engine/internal/models"
)

const defaultCodeforcesURL = "https://codeforces.com"

// Codeforces fetches contests from the Codeforces REST API
type Codeforces struct {
	client  *Client
	baseURL string
}

// NewCodeforces creates a Codeforces adapter. An empty baseURL selects the
// production endpoint.
func NewCodeforces(client *Client, baseURL string) *Codeforces {
	if baseURL == "" {
		baseURL = defaultCodeforcesURL
	}
	return &Codeforces{client: client, baseURL: baseURL}
}

// Platform returns the platform this adapter serves
func (a *Codeforces) Platform() models.Platform {
	return models.PlatformCodeforces
}

type cfResponse struct {
	Status  string      `json:"status"`
	Comment string      `json:"comment"`
	Result  []cfContest `json:"result"`
}

type cfContest struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Phase            string `json:"phase"`
	StartTimeSeconds int64  `json:"startTimeSeconds"`
	DurationSeconds  int64  `json:"durationSeconds"`
}

// FetchContests retrieves upcoming and running Codeforces contests
func (a *Codeforces) FetchContests(ctx context.Context) ([]*models.Contest, error) {
	var resp cfResponse
	if err := a.client.GetJSON(ctx, a.Platform(), a.baseURL+"/api/contest.list", &resp); err != nil {
		return nil, err
	}

	if resp.Status != "OK" {
		return nil, fmt.Errorf("%s: api status %q (%s): %w",
			a.Platform(), resp.Status, resp.Comment, ErrPlatformUnavailable)
	}

	contests := make([]*models.Contest, 0, len(resp.Result))
	skipped := 0

	for _, raw := range resp.Result {
		if raw.Phase == "FINISHED" {
			continue
		}
		// Gym contests without a published start time cannot be scheduled.
		if raw.StartTimeSeconds == 0 {
			skipped++
			continue
		}

		start := time.Unix(raw.StartTimeSeconds, 0).UTC()
		c := &models.Contest{
			Platform:        models.PlatformCodeforces,
			ExternalID:      fmt.Sprintf("%d", raw.ID),
			Name:            raw.Name,
			StartTime:       start,
			EndTime:         start.Add(time.Duration(raw.DurationSeconds) * time.Second),
			WebsiteURL:      fmt.Sprintf("%s/contest/%d", defaultCodeforcesURL, raw.ID),
			RegistrationURL: fmt.Sprintf("%s/contestRegistration/%d", defaultCodeforcesURL, raw.ID),
		}
		c.Normalize()

		if err := c.Validate(); err != nil {
			slog.Warn("skipping malformed contest", "platform", a.Platform(), "external_id", c.ExternalID, "error", err)
			skipped++
			continue
		}

		contests = append(contests, c)
	}

	if skipped > 0 {
		slog.Info("skipped unparsable contests", "platform", a.Platform(), "skipped", skipped)
	}

	return contests, nil
}

// HealthCheck probes the Codeforces API
func (a *Codeforces) HealthCheck(ctx context.Context) bool {
	return a.client.Probe(ctx, a.baseURL+"/api/contest.list?gym=false")
}
