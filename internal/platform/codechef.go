package platform

import (
	"context"
	"log/slog"
	"time"

	"github.com/contest-radar/contest-engine/internal/models"
)

const defaultCodeChefURL = "https://www.codechef.com"

// CodeChef fetches contests from the CodeChef listing API
type CodeChef struct {
	client  *Client
	baseURL string
}

// NewCodeChef creates a CodeChef adapter. An empty baseURL selects the
// production endpoint.
func NewCodeChef(client *Client, baseURL string) *CodeChef {
	if baseURL == "" {
		baseURL = defaultCodeChefURL
	}
	return &CodeChef{client: client, baseURL: baseURL}
}

// Platform returns the platform this adapter serves
func (a *CodeChef) Platform() models.Platform {
	return models.PlatformCodeChef
}

type ccResponse struct {
	Status          string      `json:"status"`
	FutureContests  []ccContest `json:"future_contests"`
	PresentContests []ccContest `json:"present_contests"`
}

type ccContest struct {
	ContestCode     string `json:"contest_code"`
	ContestName     string `json:"contest_name"`
	ContestStartISO string `json:"contest_start_date_iso"`
	ContestEndISO   string `json:"contest_end_date_iso"`
}

// FetchContests retrieves upcoming and running CodeChef contests
func (a *CodeChef) FetchContests(ctx context.Context) ([]*models.Contest, error) {
	var resp ccResponse
	url := a.baseURL + "/api/list/contests/all?sort_by=START&sorting_order=asc"
	if err := a.client.GetJSON(ctx, a.Platform(), url, &resp); err != nil {
		return nil, err
	}

	raw := append(resp.PresentContests, resp.FutureContests...)
	contests := make([]*models.Contest, 0, len(raw))
	skipped := 0

	for _, rc := range raw {
		start, err := time.Parse(time.RFC3339, rc.ContestStartISO)
		if err != nil {
			slog.Warn("skipping malformed contest", "platform", a.Platform(), "external_id", rc.ContestCode, "error", err)
			skipped++
			continue
		}
		end, err := time.Parse(time.RFC3339, rc.ContestEndISO)
		if err != nil {
			slog.Warn("skipping malformed contest", "platform", a.Platform(), "external_id", rc.ContestCode, "error", err)
			skipped++
			continue
		}

		c := &models.Contest{
			Platform:   models.PlatformCodeChef,
			ExternalID: rc.ContestCode,
			Name:       rc.ContestName,
			StartTime:  start,
			EndTime:    end,
			WebsiteURL: defaultCodeChefURL + "/" + rc.ContestCode,
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

// HealthCheck probes the CodeChef API
func (a *CodeChef) HealthCheck(ctx context.Context) bool {
	return a.client.Probe(ctx, a.baseURL+"/api/list/contests/all")
}
