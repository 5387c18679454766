package osuapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"kudosu/internal/metrics"
	"kudosu/internal/model"
	"kudosu/internal/mods"

	"golang.org/x/time/rate"
)

// ScoreAPI defines the osu! API methods the crawl and recommendation
// paths use.
type ScoreAPI interface {
	FetchRankingPage(ctx context.Context, ruleset model.Ruleset, page int) ([]int64, error)
	FetchBestScores(ctx context.Context, playerID int64, ruleset model.Ruleset) ([]model.Score, error)
}

// Client is a bearer-token client for the osu! API v2.
type Client struct {
	baseURL     string
	tokens      *TokenSource
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
}

func NewClient(clientID int64, clientSecret string) *Client {
	hc := newHTTPClient()
	return &Client{
		baseURL:     "https://osu.ppy.sh/api/v2",
		tokens:      NewTokenSource("https://osu.ppy.sh/oauth/token", clientID, clientSecret, hc),
		httpClient:  hc,
		limiter:     newDefaultLimiter(),
		maxAttempts: 5,
	}
}

// FetchRankingPage returns the player ids on one page of the
// performance ranking for a ruleset.
func (c *Client) FetchRankingPage(ctx context.Context, ruleset model.Ruleset, page int) ([]int64, error) {
	u := fmt.Sprintf("%s/rankings/%s/performance?cursor[page]=%d", c.baseURL, url.PathEscape(string(ruleset)), page)
	var raw struct {
		Ranking []struct {
			User struct {
				ID int64 `json:"id"`
			} `json:"user"`
		} `json:"ranking"`
	}
	if err := c.getJSON(ctx, "ranking", u, &raw); err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(raw.Ranking))
	for _, r := range raw.Ranking {
		out = append(out, r.User.ID)
	}
	return out, nil
}

// FetchBestScores returns a player's top-100 list with mods normalized
// to the canonical stored form.
func (c *Client) FetchBestScores(ctx context.Context, playerID int64, ruleset model.Ruleset) ([]model.Score, error) {
	u := fmt.Sprintf("%s/users/%d/scores/best?mode=%s&limit=100", c.baseURL, playerID, url.QueryEscape(string(ruleset)))
	var raw []struct {
		BeatmapID int64    `json:"beatmap_id"`
		PP        *float64 `json:"pp"`
		Mods      []struct {
			Acronym string `json:"acronym"`
		} `json:"mods"`
	}
	if err := c.getJSON(ctx, "best", u, &raw); err != nil {
		return nil, err
	}
	out := make([]model.Score, 0, len(raw))
	for pos, s := range raw {
		acronyms := make([]string, 0, len(s.Mods))
		for _, m := range s.Mods {
			acronyms = append(acronyms, m.Acronym)
		}
		pp := 0.0
		if s.PP != nil {
			pp = *s.PP
		}
		out = append(out, model.Score{
			PlayerID:   playerID,
			BeatmapID:  s.BeatmapID,
			Mods:       mods.Normalize(acronyms),
			BPPosition: pos,
			PP:         pp,
		})
	}
	return out, nil
}

// getJSON performs an authenticated GET with up to maxAttempts tries.
// There is no backoff between attempts; after exhaustion the last error
// is returned so callers handle "no data" explicitly.
func (c *Client) getJSON(ctx context.Context, endpoint, u string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncAPIRetry(endpoint)
		}
		lastErr = c.tryGetJSON(ctx, u, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s request failed after %d attempts: %w", endpoint, c.maxAttempts, lastErr)
}

func (c *Client) tryGetJSON(ctx context.Context, u string, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-version", "20220705")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("osu api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
