package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrJobNotFound is returned when the daemon has no record for a fingerprint.
var ErrJobNotFound = errors.New("job not found")

// Client talks to a running daemon over its HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for the daemon bound at bind (host:port or URL).
func NewClient(bind string, timeout time.Duration) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{base: base, http: &http.Client{Timeout: timeout}}
}

// BaseURL returns the daemon base URL.
func (c *Client) BaseURL() string {
	return c.base
}

// Submit posts a raw request body, optionally registering an HTTP callback.
func (c *Client) Submit(ctx context.Context, body []byte, callback string) (SubmitResponse, error) {
	endpoint := c.base + "/api/requests"
	if callback = strings.TrimSpace(callback); callback != "" {
		endpoint += "?callback=" + url.QueryEscape(callback)
	}
	var resp SubmitResponse
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Jobs lists jobs, optionally filtered by status.
func (c *Client) Jobs(ctx context.Context, statuses ...string) ([]Job, error) {
	endpoint := c.base + "/api/requests"
	if len(statuses) > 0 {
		q := url.Values{}
		for _, s := range statuses {
			q.Add("status", s)
		}
		endpoint += "?" + q.Encode()
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Job fetches a single job by fingerprint.
func (c *Client) Job(ctx context.Context, fingerprint string) (Job, error) {
	var resp JobResponse
	err := c.do(ctx, http.MethodGet, c.base+"/api/requests/"+url.PathEscape(fingerprint), nil, &resp)
	return resp.Job, err
}

// Clear removes finished jobs in scope ("completed", "failed" or "all").
func (c *Client) Clear(ctx context.Context, scope string) (int64, error) {
	var resp ClearResponse
	endpoint := c.base + "/api/requests?scope=" + url.QueryEscape(scope)
	if err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, c.base+"/api/status", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read daemon response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrJobNotFound
	}
	if resp.StatusCode >= 300 {
		var apiErr ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}
