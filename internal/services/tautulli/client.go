// Package tautulli integrates with the watch-history service. Play counts and
// last-watched timestamps feed the removal scorer's watch-activity signal.
package tautulli

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"caretaker/internal/config"
	"caretaker/internal/services"
)

// Client talks to a Tautulli v2 API.
type Client struct {
	baseURL string
	apiKey  string
	guard   *services.Guard
}

var _ services.Integration = (*Client)(nil)

// NewClient builds a Tautulli client from application config.
func NewClient(cfg *config.Config, opts ...services.GuardOption) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Tautulli.URL, "/"),
		apiKey:  cfg.Tautulli.APIKey,
		guard: services.NewGuard("tautulli", cfg.Workflow.ServiceRateLimit,
			time.Duration(cfg.Workflow.RequestTimeout)*time.Second, opts...),
	}
}

func (c *Client) endpoint(cmd string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	params.Set("cmd", cmd)
	return c.baseURL + "/api/v2?" + params.Encode()
}

// Name identifies this integration in the capability table.
func (c *Client) Name() string { return "tautulli" }

// TestConnection probes server identity.
func (c *Client) TestConnection(ctx context.Context) services.ConnectionStatus {
	var payload struct {
		Response struct {
			Result string `json:"result"`
		} `json:"response"`
	}
	if err := c.guard.GetJSON(ctx, c.endpoint("status", nil), nil, &payload); err != nil {
		return services.ConnectionStatus{Success: false, Message: err.Error()}
	}
	if payload.Response.Result != "success" {
		return services.ConnectionStatus{Success: false, Message: "tautulli reported " + payload.Response.Result}
	}
	return services.ConnectionStatus{Success: true, Message: "tautulli ok"}
}

type mediaInfoRecord struct {
	RatingKey  string `json:"rating_key"`
	Title      string `json:"title"`
	PlayCount  int    `json:"play_count"`
	LastPlayed int64  `json:"last_played"`
}

// ListItems returns watch activity for every known library item. The matcher
// reads Watched and LastWatchedUnix; identity is the media-server rating key.
func (c *Client) ListItems(ctx context.Context) ([]services.ExternalItem, error) {
	sectionIDs, err := c.sectionIDs(ctx)
	if err != nil {
		return nil, err
	}
	var items []services.ExternalItem
	for _, sectionID := range sectionIDs {
		params := url.Values{}
		params.Set("section_id", sectionID)
		params.Set("length", "10000")
		var payload struct {
			Response struct {
				Data struct {
					Data []mediaInfoRecord `json:"data"`
				} `json:"data"`
			} `json:"response"`
		}
		if err := c.guard.GetJSON(ctx, c.endpoint("get_library_media_info", params), nil, &payload); err != nil {
			return nil, err
		}
		for _, rec := range payload.Response.Data.Data {
			items = append(items, services.ExternalItem{
				ID:              rec.RatingKey,
				Title:           rec.Title,
				Watched:         rec.PlayCount > 0,
				LastWatchedUnix: rec.LastPlayed,
			})
		}
	}
	return items, nil
}

// Lookup returns watch metadata for one rating key.
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
	return nil, services.Wrap(services.ErrNotFound, "tautulli", "lookup", fmt.Sprintf("rating key %s", externalID), nil)
}

func (c *Client) sectionIDs(ctx context.Context) ([]string, error) {
	var payload struct {
		Response struct {
			Data []struct {
				SectionID   any    `json:"section_id"`
				SectionType string `json:"section_type"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := c.guard.GetJSON(ctx, c.endpoint("get_libraries", nil), nil, &payload); err != nil {
		return nil, err
	}
	var ids []string
	for _, lib := range payload.Response.Data {
		if lib.SectionType != "movie" && lib.SectionType != "show" {
			continue
		}
		ids = append(ids, fmt.Sprint(lib.SectionID))
	}
	return ids, nil
}
