package platform

import (
	"context"
	"log/slog"
	"time"

	"github.com/contest-radar/contest-engine/internal/models"
)

const defaultLeetCodeURL = "https://leetcode.com"

// LeetCode fetches contests from the LeetCode GraphQL API
type LeetCode struct {
	client  *Client
	baseURL string
}

// NewLeetCode creates a LeetCode adapter. An empty baseURL selects the
// production endpoint.
func NewLeetCode(client *Client, baseURL string) *LeetCode {
	if baseURL == "" {
		baseURL = defaultLeetCodeURL
	}
	return &LeetCode{client: client, baseURL: baseURL}
}

// Platform returns the platform this adapter serves
func (a *LeetCode) Platform() models.Platform {
	return models.PlatformLeetCode
}

const lcContestQuery = `query contestList { allContests { title titleSlug startTime duration } }`

type lcRequest struct {
	Query string `json:"query"`
}

type lcResponse struct {
	Data struct {
		AllContests []lcContest `json:"allContests"`
	} `json:"data"`
}

type lcContest struct {
	Title     string `json:"title"`
	TitleSlug string `json:"titleSlug"`
	StartTime int64  `json:"startTime"`
	Duration  int64  `json:"duration"`
}

// FetchContests retrieves upcoming and running LeetCode contests
func (a *LeetCode) FetchContests(ctx context.Context) ([]*models.Contest, error) {
	var resp lcResponse
	if err := a.client.PostJSON(ctx, a.Platform(), a.baseURL+"/graphql", lcRequest{Query: lcContestQuery}, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	contests := make([]*models.Contest, 0, len(resp.Data.AllContests))
	skipped := 0

	for _, raw := range resp.Data.AllContests {
		if raw.StartTime == 0 {
			skipped++
			continue
		}

		start := time.Unix(raw.StartTime, 0).UTC()
		end := start.Add(time.Duration(raw.Duration) * time.Second)

		// The listing includes the full archive; only current contests matter.
		if end.Before(now) {
			continue
		}

		c := &models.Contest{
			Platform:        models.PlatformLeetCode,
			ExternalID:      raw.TitleSlug,
			Name:            raw.Title,
			StartTime:       start,
			EndTime:         end,
			WebsiteURL:      defaultLeetCodeURL + "/contest/" + raw.TitleSlug,
			RegistrationURL: defaultLeetCodeURL + "/contest/" + raw.TitleSlug,
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

// HealthCheck probes the LeetCode API
func (a *LeetCode) HealthCheck(ctx context.Context) bool {
	return a.client.Probe(ctx, a.baseURL+"/graphql")
}
