// Package radarr integrates with the movie management service. It supplies
// monitored status, download activity, and external ratings for the
// cross-reference phase.
package radarr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/services"
)

// Client talks to a Radarr v3 API.
type Client struct {
	baseURL string
	apiKey  string
	guard   *services.Guard
}

var _ services.Integration = (*Client)(nil)

// NewClient builds a Radarr client from application config.
func NewClient(cfg *config.Config, opts ...services.GuardOption) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Radarr.URL, "/"),
		apiKey:  cfg.Radarr.APIKey,
		guard: services.NewGuard("radarr", cfg.Workflow.ServiceRateLimit,
			time.Duration(cfg.Workflow.RequestTimeout)*time.Second, opts...),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-Api-Key": c.apiKey}
}

// Name identifies this integration in the capability table.
func (c *Client) Name() string { return "radarr" }

// TestConnection probes the system status endpoint.
func (c *Client) TestConnection(ctx context.Context) services.ConnectionStatus {
	var payload struct {
		Version string `json:"version"`
	}
	if err := c.guard.GetJSON(ctx, c.baseURL+"/api/v3/system/status", c.headers(), &payload); err != nil {
		return services.ConnectionStatus{Success: false, Message: err.Error()}
	}
	return services.ConnectionStatus{Success: true, Message: "radarr " + payload.Version}
}

type movieRecord struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Year      int    `json:"year"`
	TMDBID    int64  `json:"tmdbId"`
	IMDBID    string `json:"imdbId"`
	Monitored bool   `json:"monitored"`
	HasFile   bool   `json:"hasFile"`
	Status    string `json:"status"`
	Ratings   struct {
		IMDB struct {
			Value float64 `json:"value"`
		} `json:"imdb"`
		RottenTomatoes struct {
			Value float64 `json:"value"`
		} `json:"rottenTomatoes"`
	} `json:"ratings"`
}

func convertMovie(rec movieRecord, downloading map[int64]bool) services.ExternalItem {
	return services.ExternalItem{
		ID:          strconv.FormatInt(rec.ID, 10),
		Title:       rec.Title,
		Year:        rec.Year,
		Kind:        "movie",
		TMDBID:      rec.TMDBID,
		IMDBID:      rec.IMDBID,
		IMDBRating:  rec.Ratings.IMDB.Value,
		RTRating:    int(rec.Ratings.RottenTomatoes.Value),
		Status:      rec.Status,
		Monitored:   rec.Monitored,
		Downloading: downloading[rec.ID],
	}
}

// ListItems returns every movie Radarr manages.
func (c *Client) ListItems(ctx context.Context) ([]services.ExternalItem, error) {
	var records []movieRecord
	if err := c.guard.GetJSON(ctx, c.baseURL+"/api/v3/movie", c.headers(), &records); err != nil {
		return nil, err
	}
	downloading, err := c.activeDownloads(ctx)
	if err != nil {
		// Queue visibility is best-effort; presence data is still usable.
		downloading = nil
	}
	items := make([]services.ExternalItem, 0, len(records))
	for _, rec := range records {
		items = append(items, convertMovie(rec, downloading))
	}
	return items, nil
}

// Lookup fetches one movie by Radarr id.
func (c *Client) Lookup(ctx context.Context, externalID string) (*services.ExternalItem, error) {
	var rec movieRecord
	endpoint := fmt.Sprintf("%s/api/v3/movie/%s", c.baseURL, externalID)
	if err := c.guard.GetJSON(ctx, endpoint, c.headers(), &rec); err != nil {
		return nil, err
	}
	item := convertMovie(rec, nil)
	return &item, nil
}

func (c *Client) activeDownloads(ctx context.Context) (map[int64]bool, error) {
	var payload struct {
		Records []struct {
			MovieID int64 `json:"movieId"`
		} `json:"records"`
	}
	if err := c.guard.GetJSON(ctx, c.baseURL+"/api/v3/queue?pageSize=200", c.headers(), &payload); err != nil {
		return nil, err
	}
	active := make(map[int64]bool, len(payload.Records))
	for _, rec := range payload.Records {
		active[rec.MovieID] = true
	}
	return active, nil
}
