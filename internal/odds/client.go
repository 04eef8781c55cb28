package odds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pickforge/internal/config"
	"github.com/pickforge/internal/domain"
	"github.com/pickforge/internal/metrics"
)

const (
	endpointOdds   = "odds"
	endpointScores = "scores"

	maxDetailBytes = 2048
	maxDaysFrom    = 3
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OddsRequest identifies one odds fetch
type OddsRequest struct {
	League  domain.League
	Region  domain.Region
	Markets string
}

// Client calls The Odds API v4
type Client struct {
	apiKey  string
	baseURL string
	http    httpDoer
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient creates an odds provider client
func NewClient(cfg *config.OddsConfig, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// FetchOdds fetches and normalizes odds for a league
func (c *Client) FetchOdds(ctx context.Context, req OddsRequest) (domain.OddsSnapshot, error) {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("regions", string(req.Region))
	q.Set("markets", domain.MapMarkets(req.Markets))
	q.Set("oddsFormat", "american")
	q.Set("dateFormat", "iso")

	body, quota, err := c.get(ctx, endpointOdds, req.League, q)
	if err != nil {
		return domain.OddsSnapshot{}, err
	}

	raw, err := splitArray(body)
	if err != nil {
		return domain.OddsSnapshot{}, &UpstreamError{Status: http.StatusBadGateway, Detail: "malformed odds response", Quota: quota, Err: err}
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal(item, &ev); err != nil {
			c.logger.Warn("skipping malformed odds event", "league", req.League, "error", err)
			continue
		}
		events = append(events, ev)
	}

	games := Normalize(events)
	if skipped := len(events) - len(games); skipped > 0 {
		c.logger.Warn("skipped odds events without id or commence time", "league", req.League, "count", skipped)
	}

	return domain.OddsSnapshot{
		Games:     games,
		Quota:     quota,
		FetchedAt: c.now().UTC(),
	}, nil
}

// FetchScores fetches recent and live scores for a league
func (c *Client) FetchScores(ctx context.Context, league domain.League, daysFrom int) ([]domain.ScoreEvent, error) {
	if daysFrom < 1 {
		daysFrom = 1
	}
	if daysFrom > maxDaysFrom {
		daysFrom = maxDaysFrom
	}

	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("daysFrom", fmt.Sprint(daysFrom))
	q.Set("dateFormat", "iso")

	body, quota, err := c.get(ctx, endpointScores, league, q)
	if err != nil {
		return nil, err
	}

	raw, err := splitArray(body)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusBadGateway, Detail: "malformed scores response", Quota: quota, Err: err}
	}

	events := make([]domain.ScoreEvent, 0, len(raw))
	for _, item := range raw {
		var sr ScoreResult
		if err := json.Unmarshal(item, &sr); err != nil {
			c.logger.Warn("skipping malformed score row", "league", league, "error", err)
			continue
		}
		ev, err := sr.ToScoreEvent(league)
		if err != nil {
			c.logger.Warn("skipping score row", "league", league, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// get performs a GET against /sports/{key}/{endpoint}. The request URL
// carries the API key and is never logged.
func (c *Client) get(ctx context.Context, endpoint string, league domain.League, q url.Values) ([]byte, domain.Quota, error) {
	u := fmt.Sprintf("%s/sports/%s/%s?%s", c.baseURL, url.PathEscape(league.SportKey()), endpoint, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.Quota{}, fmt.Errorf("building %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(endpoint, time.Since(start), err)
		return nil, domain.Quota{}, transportError(err)
	}
	defer resp.Body.Close()

	quota := quotaFromHeader(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upErr := &UpstreamError{
			Status: resp.StatusCode,
			Detail: readDetail(resp.Body),
			Quota:  quota,
		}
		c.metrics.ObserveUpstream(endpoint, time.Since(start), upErr)
		c.logger.Warn("odds provider returned error",
			"endpoint", endpoint,
			"league", league,
			"status", resp.StatusCode,
			"remaining", quota.Remaining,
		)
		return nil, quota, upErr
	}

	body, err := io.ReadAll(resp.Body)
	c.metrics.ObserveUpstream(endpoint, time.Since(start), err)
	if err != nil {
		return nil, quota, transportError(err)
	}
	return body, quota, nil
}

func quotaFromHeader(h http.Header) domain.Quota {
	return domain.Quota{
		Remaining: h.Get("x-requests-remaining"),
		Used:      h.Get("x-requests-used"),
		Last:      h.Get("x-requests-last"),
	}
}

// readDetail extracts the provider's error message, falling back to the
// raw (truncated) body.
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxDetailBytes))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(data))
}

// splitArray decodes a JSON array into its raw elements so one bad element
// does not fail the whole response.
func splitArray(body []byte) ([]json.RawMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding array: %w", err)
	}
	return raw, nil
}
