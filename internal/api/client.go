package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running daemon's control surface.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the given bind address. token may be empty
// when the daemon runs without authentication.
func NewClient(baseURL, token string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StartScan begins a run over the selected phases (all when empty).
func (c *Client) StartScan(ctx context.Context, phases []int) (int64, error) {
	var resp StartScanResponse
	if err := c.do(ctx, http.MethodPost, "/api/scan/start", StartScanRequest{Phases: phases}, &resp); err != nil {
		return 0, err
	}
	return resp.RunID, nil
}

// StopScan requests cooperative cancellation.
func (c *Client) StopScan(ctx context.Context, runID int64) error {
	return c.do(ctx, http.MethodPost, "/api/scan/stop", StopScanRequest{RunID: runID}, nil)
}

// ScanStatus fetches a run snapshot; runID zero selects the active or most
// recent run.
func (c *Client) ScanStatus(ctx context.Context, runID int64) (*ScanSnapshot, error) {
	path := "/api/scan/status"
	if runID != 0 {
		path += "?run_id=" + strconv.FormatInt(runID, 10)
	}
	var snapshot ScanSnapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Scans lists recent runs.
func (c *Client) Scans(ctx context.Context, limit int) ([]ScanSnapshot, error) {
	path := "/api/scans"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var scans []ScanSnapshot
	if err := c.do(ctx, http.MethodGet, path, nil, &scans); err != nil {
		return nil, err
	}
	return scans, nil
}

// Issues lists recorded defects with optional filters.
func (c *Client) Issues(ctx context.Context, state, issueType, severity string) ([]Issue, error) {
	params := url.Values{}
	if state != "" {
		params.Set("state", state)
	}
	if issueType != "" {
		params.Set("type", issueType)
	}
	if severity != "" {
		params.Set("severity", severity)
	}
	path := "/api/issues"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var issues []Issue
	if err := c.do(ctx, http.MethodGet, path, nil, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// Duplicates lists duplicate groups.
func (c *Client) Duplicates(ctx context.Context) (*DuplicatesResponse, error) {
	var resp DuplicatesResponse
	if err := c.do(ctx, http.MethodGet, "/api/duplicates", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recommendations lists suggestions, optionally filtered by state.
func (c *Client) Recommendations(ctx context.Context, state string) ([]Recommendation, error) {
	path := "/api/recommendations"
	if state != "" {
		path += "?state=" + url.QueryEscape(state)
	}
	var recs []Recommendation
	if err := c.do(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// RequestRecommendation submits a pending suggestion to the request manager.
func (c *Client) RequestRecommendation(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/recommendations/%d/request", id), nil, nil)
}

// IgnoreRecommendation dismisses a pending suggestion.
func (c *Client) IgnoreRecommendation(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/recommendations/%d/ignore", id), nil, nil)
}

// Services probes connectivity of every configured integration.
func (c *Client) Services(ctx context.Context) ([]ServiceStatus, error) {
	var statuses []ServiceStatus
	if err := c.do(ctx, http.MethodGet, "/api/services", nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Activity lists recent audit entries.
func (c *Client) Activity(ctx context.Context, limit int) ([]Activity, error) {
	path := "/api/activity"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var entries []Activity
	if err := c.do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
