// Package sonarr integrates with the show management service. It supplies
// monitored status, season/episode counts, and external ratings for the
// cross-reference phase.
package sonarr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/services"
)

// Client talks to a Sonarr v3 API.
type Client struct {
	baseURL string
	apiKey  string
	guard   *services.Guard
}

var _ services.Integration = (*Client)(nil)

// NewClient builds a Sonarr client from application config.
func NewClient(cfg *config.Config, opts ...services.GuardOption) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Sonarr.URL, "/"),
		apiKey:  cfg.Sonarr.APIKey,
		guard: services.NewGuard("sonarr", cfg.Workflow.ServiceRateLimit,
			time.Duration(cfg.Workflow.RequestTimeout)*time.Second, opts...),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-Api-Key": c.apiKey}
}

// Name identifies this integration in the capability table.
func (c *Client) Name() string { return "sonarr" }

// TestConnection probes the system status endpoint.
func (c *Client) TestConnection(ctx context.Context) services.ConnectionStatus {
	var payload struct {
		Version string `json:"version"`
	}
	if err := c.guard.GetJSON(ctx, c.baseURL+"/api/v3/system/status", c.headers(), &payload); err != nil {
		return services.ConnectionStatus{Success: false, Message: err.Error()}
	}
	return services.ConnectionStatus{Success: true, Message: "sonarr " + payload.Version}
}

type seriesRecord struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Year       int    `json:"year"`
	TVDBID     int64  `json:"tvdbId"`
	IMDBID     string `json:"imdbId"`
	Monitored  bool   `json:"monitored"`
	Status     string `json:"status"`
	Statistics struct {
		SeasonCount  int `json:"seasonCount"`
		EpisodeCount int `json:"episodeCount"`
	} `json:"statistics"`
	Ratings struct {
		Value float64 `json:"value"`
	} `json:"ratings"`
}

func convertSeries(rec seriesRecord) services.ExternalItem {
	return services.ExternalItem{
		ID:           strconv.FormatInt(rec.ID, 10),
		Title:        rec.Title,
		Year:         rec.Year,
		Kind:         "show",
		TVDBID:       rec.TVDBID,
		IMDBID:       rec.IMDBID,
		IMDBRating:   rec.Ratings.Value,
		Status:       rec.Status,
		SeasonCount:  rec.Statistics.SeasonCount,
		EpisodeCount: rec.Statistics.EpisodeCount,
		Monitored:    rec.Monitored,
	}
}

// ListItems returns every series Sonarr manages.
func (c *Client) ListItems(ctx context.Context) ([]services.ExternalItem, error) {
	var records []seriesRecord
	if err := c.guard.GetJSON(ctx, c.baseURL+"/api/v3/series", c.headers(), &records); err != nil {
		return nil, err
	}
	items := make([]services.ExternalItem, 0, len(records))
	for _, rec := range records {
		items = append(items, convertSeries(rec))
	}
	return items, nil
}

// Lookup fetches one series by Sonarr id.
func (c *Client) Lookup(ctx context.Context, externalID string) (*services.ExternalItem, error) {
	var rec seriesRecord
	endpoint := fmt.Sprintf("%s/api/v3/series/%s", c.baseURL, externalID)
	if err := c.guard.GetJSON(ctx, endpoint, c.headers(), &rec); err != nil {
		return nil, err
	}
	item := convertSeries(rec)
	return &item, nil
}
