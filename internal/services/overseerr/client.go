// Package overseerr integrates with the request management service. Requests
// feed the protection flags that exempt user-requested items from removal
// scoring, and the client can submit new requests for accepted
// recommendations.
package overseerr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/services"
)

// Client talks to an Overseerr v1 API.
type Client struct {
	baseURL string
	apiKey  string
	guard   *services.Guard
}

var _ services.Integration = (*Client)(nil)

// NewClient builds an Overseerr client from application config.
func NewClient(cfg *config.Config, opts ...services.GuardOption) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Overseerr.URL, "/"),
		apiKey:  cfg.Overseerr.APIKey,
		guard: services.NewGuard("overseerr", cfg.Workflow.ServiceRateLimit,
			time.Duration(cfg.Workflow.RequestTimeout)*time.Second, opts...),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"X-Api-Key": c.apiKey}
}

// Name identifies this integration in the capability table.
func (c *Client) Name() string { return "overseerr" }

// TestConnection probes the status endpoint.
func (c *Client) TestConnection(ctx context.Context) services.ConnectionStatus {
	var payload struct {
		Version string `json:"version"`
	}
	if err := c.guard.GetJSON(ctx, c.baseURL+"/api/v1/status", c.headers(), &payload); err != nil {
		return services.ConnectionStatus{Success: false, Message: err.Error()}
	}
	return services.ConnectionStatus{Success: true, Message: "overseerr " + payload.Version}
}

// Media status 3 means the request is processing (downloading).
const mediaStatusProcessing = 3

type requestRecord struct {
	ID    int64 `json:"id"`
	Media struct {
		TMDBID    int64  `json:"tmdbId"`
		TVDBID    int64  `json:"tvdbId"`
		MediaType string `json:"mediaType"`
		Status    int    `json:"status"`
	} `json:"media"`
}

// ListItems returns every request as an external item with the requested
// flag set, so the matcher can derive protection.
func (c *Client) ListItems(ctx context.Context) ([]services.ExternalItem, error) {
	var items []services.ExternalItem
	skip := 0
	const take = 100
	for {
		endpoint := fmt.Sprintf("%s/api/v1/request?take=%d&skip=%d", c.baseURL, take, skip)
		var payload struct {
			PageInfo struct {
				Pages   int `json:"pages"`
				Page    int `json:"page"`
				Results int `json:"results"`
			} `json:"pageInfo"`
			Results []requestRecord `json:"results"`
		}
		if err := c.guard.GetJSON(ctx, endpoint, c.headers(), &payload); err != nil {
			return nil, err
		}
		for _, rec := range payload.Results {
			kind := "movie"
			if rec.Media.MediaType == "tv" {
				kind = "show"
			}
			items = append(items, services.ExternalItem{
				ID:          strconv.FormatInt(rec.ID, 10),
				Kind:        kind,
				TMDBID:      rec.Media.TMDBID,
				TVDBID:      rec.Media.TVDBID,
				Requested:   true,
				Downloading: rec.Media.Status == mediaStatusProcessing,
			})
		}
		if len(payload.Results) < take {
			break
		}
		skip += take
	}
	return items, nil
}

// SubmitRequest asks Overseerr to acquire a title, used when a user accepts
// an acquisition recommendation.
func (c *Client) SubmitRequest(ctx context.Context, kind string, tmdbID int64) error {
	mediaType := "movie"
	if kind == "show" {
		mediaType = "tv"
	}
	body := map[string]any{
		"mediaType": mediaType,
		"mediaId":   tmdbID,
	}
	return c.guard.PostJSON(ctx, c.baseURL+"/api/v1/request", c.headers(), body, nil)
}

// Lookup fetches one request by id.
func (c *Client) Lookup(ctx context.Context, externalID string) (*services.ExternalItem, error) {
	var rec requestRecord
	endpoint := fmt.Sprintf("%s/api/v1/request/%s", c.baseURL, externalID)
	if err := c.guard.GetJSON(ctx, endpoint, c.headers(), &rec); err != nil {
		return nil, err
	}
	kind := "movie"
	if rec.Media.MediaType == "tv" {
		kind = "show"
	}
	return &services.ExternalItem{
		ID:          externalID,
		Kind:        kind,
		TMDBID:      rec.Media.TMDBID,
		TVDBID:      rec.Media.TVDBID,
		Requested:   true,
		Downloading: rec.Media.Status == mediaStatusProcessing,
	}, nil
}
