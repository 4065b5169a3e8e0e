package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const userAgent = "fsoi/0.1.0"

// CallbackSender POSTs messages to subscriber-supplied http(s) URLs.
type CallbackSender struct {
	client *http.Client
}

// NewCallbackSender builds a sender with the given request timeout.
func NewCallbackSender(timeout time.Duration) *CallbackSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CallbackSender{client: &http.Client{Timeout: timeout}}
}

// Send posts text to channel, which must be an http or https URL.
func (c *CallbackSender) Send(ctx context.Context, channel, text string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("callback sender not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel, strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if json.Valid([]byte(text)) {
		req.Header.Set("Content-Type", "application/json")
	} else {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("callback returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
