package platform

import (
	"context"
	"log/slog"
	"time"

	"github.com/contest-radar/contest-engine/internal/models"
)

// AtCoder has no official contest API; the AtCoder Problems dataset mirrors
// the contest schedule as a plain JSON resource.
const defaultAtCoderResourceURL = "https://kenkoooo.com/atcoder/resources"

const atcoderSiteURL = "https://atcoder.jp"

// AtCoder fetches contests from the AtCoder Problems resource dump
type AtCoder struct {
	client  *Client
	baseURL string
}

// NewAtCoder creates an AtCoder adapter. An empty baseURL selects the
// production endpoint.
func NewAtCoder(client *Client, baseURL string) *AtCoder {
	if baseURL == "" {
		baseURL = defaultAtCoderResourceURL
	}
	return &AtCoder{client: client, baseURL: baseURL}
}

// Platform returns the platform this adapter serves
func (a *AtCoder) Platform() models.Platform {
	return models.PlatformAtCoder
}

type acContest struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	StartEpochSecond int64  `json:"start_epoch_second"`
	DurationSecond   int64  `json:"duration_second"`
	RateChange       string `json:"rate_change"`
}

// FetchContests retrieves upcoming and running AtCoder contests
func (a *AtCoder) FetchContests(ctx context.Context) ([]*models.Contest, error) {
	var raw []acContest
	if err := a.client.GetJSON(ctx, a.Platform(), a.baseURL+"/contests.json", &raw); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	contests := make([]*models.Contest, 0, 16)
	skipped := 0

	for _, rc := range raw {
		if rc.StartEpochSecond == 0 {
			skipped++
			continue
		}

		start := time.Unix(rc.StartEpochSecond, 0).UTC()
		end := start.Add(time.Duration(rc.DurationSecond) * time.Second)

		// The dump spans the full contest history.
		if end.Before(now) {
			continue
		}

		c := &models.Contest{
			Platform:        models.PlatformAtCoder,
			ExternalID:      rc.ID,
			Name:            rc.Title,
			StartTime:       start,
			EndTime:         end,
			WebsiteURL:      atcoderSiteURL + "/contests/" + rc.ID,
			RegistrationURL: atcoderSiteURL + "/contests/" + rc.ID,
			Difficulty:      rc.RateChange,
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

// HealthCheck probes the AtCoder Problems resource endpoint
func (a *AtCoder) HealthCheck(ctx context.Context) bool {
	return a.client.Probe(ctx, a.baseURL+"/contests.json")
}
