// Package garmin implements the wearable-API adapter. It pulls daily
// health summaries and activities from the Garmin Connect wellness API
// using OAuth2 tokens, refreshing once on expiry before giving up.
package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mycoach/server/pkg/infrastructure/oauth"
)

const defaultBaseURL = "https://connectapi.garmin.com"

// API is the subset of the Connect API the adapter needs. Split out so
// tests can fake the wire without an HTTP server.
type API interface {
	DailySummary(ctx context.Context, date string) (json.RawMessage, error)
	Sleep(ctx context.Context, date string) (json.RawMessage, error)
	HRV(ctx context.Context, date string) (json.RawMessage, error)
	TrainingReadiness(ctx context.Context, date string) (json.RawMessage, error)
	Activities(ctx context.Context, from, to string) ([]json.RawMessage, error)
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ API = (*Client)(nil)

// NewClient builds a client around a token source. Proactive refresh and
// the single 401-triggered retry live in the oauth transport; NewSource
// layers the one-reauth-then-permanent-failure policy on top.
func NewClient(ts oauth.TokenSource) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		http:    oauth.NewHTTPClient(ts),
	}
}

// NewClientWithBaseURL is used by tests pointing at a local server.
func NewClientWithBaseURL(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: hc}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response for %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: truncate(string(body), 500)}
	}
	return json.Unmarshal(body, out)
}

func (c *Client) DailySummary(ctx context.Context, date string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/usersummary-service/usersummary/daily?calendarDate="+date, &out)
	return out, err
}

func (c *Client) Sleep(ctx context.Context, date string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/sleep-service/sleep/dailySleepData?date="+date, &out)
	return out, err
}

func (c *Client) HRV(ctx context.Context, date string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/hrv-service/hrv/"+date, &out)
	return out, err
}

func (c *Client) TrainingReadiness(ctx context.Context, date string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/metrics-service/metrics/trainingreadiness/"+date, &out)
	return out, err
}

func (c *Client) Activities(ctx context.Context, from, to string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	path := fmt.Sprintf("/activitylist-service/activities/search/activities?startDate=%s&endDate=%s", from, to)
	err := c.get(ctx, path, &out)
	return out, err
}

// APIError is a non-2xx response from the Connect API.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("garmin API %s: status %d: %s", e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("garmin API %s: status %d", e.Path, e.StatusCode)
}

// IsAuthFailure reports whether the response indicates expired or invalid
// credentials rather than a data problem.
func (e *APIError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
