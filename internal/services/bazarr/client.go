// Package bazarr integrates with the subtitle management service. Wanted
// subtitle lists feed the subtitle coverage phase.
package bazarr

import (
	"context"
	"strconv"
	"strings"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/services"
)

// Client talks to a Bazarr API.
type Client struct {
	baseURL string
	apiKey  string
	guard   *services.Guard
}

var _ services.Integration = (*Client)(nil)

// NewClient builds a Bazarr client from application config.
func NewClient(cfg *config.Config, opts ...services.GuardOption) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Bazarr.URL, "/"),
		apiKey:  cfg.Bazarr.APIKey,
		guard: services.NewGuard("bazarr", cfg.Workflow.ServiceRateLimit,
			time.Duration(cfg.Workflow.RequestTimeout)*time.Second, opts...),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-API-KEY": c.apiKey}
}

// Name identifies this integration in the capability table.
func (c *Client) Name() string { return "bazarr" }

// TestConnection probes the system status endpoint.
func (c *Client) TestConnection(ctx context.Context) services.ConnectionStatus {
	var payload struct {
		Data struct {
			BazarrVersion string `json:"bazarr_version"`
		} `json:"data"`
	}
	if err := c.guard.GetJSON(ctx, c.baseURL+"/api/system/status", c.headers(), &payload); err != nil {
		return services.ConnectionStatus{Success: false, Message: err.Error()}
	}
	return services.ConnectionStatus{Success: true, Message: "bazarr " + payload.Data.BazarrVersion}
}

type movieSubtitleRecord struct {
	Title     string `json:"title"`
	RadarrID  int64  `json:"radarrId"`
	Subtitles []struct {
		Code2 string `json:"code2"`
	} `json:"subtitles"`
	MissingSubtitles []struct {
		Code2 string `json:"code2"`
	} `json:"missing_subtitles"`
}

// ListItems returns movie subtitle coverage. Present subtitle languages fill
// SubtitleLanguages; titles with missing wanted languages are still listed so
// the coverage phase can flag them.
func (c *Client) ListItems(ctx context.Context) ([]services.ExternalItem, error) {
	var payload struct {
		Data []movieSubtitleRecord `json:"data"`
	}
	if err := c.guard.GetJSON(ctx, c.baseURL+"/api/movies?start=0&length=-1", c.headers(), &payload); err != nil {
		return nil, err
	}
	items := make([]services.ExternalItem, 0, len(payload.Data))
	for _, rec := range payload.Data {
		item := services.ExternalItem{
			ID:    strconv.FormatInt(rec.RadarrID, 10),
			Title: rec.Title,
			Kind:  "movie",
		}
		for _, sub := range rec.Subtitles {
			if sub.Code2 != "" {
				item.SubtitleLanguages = append(item.SubtitleLanguages, sub.Code2)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Lookup scans the coverage list for one entry. Bazarr has no per-id endpoint
// in the shape the matcher needs.
func (c *Client) Lookup(ctx context.Context, externalID string) (*services.ExternalItem, error) {
	items, err := c.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == externalID {
			return &items[i], nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "bazarr", "lookup", "id "+externalID, nil)
}
