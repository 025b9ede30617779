package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "github.com/sentinel-ops/sentinel-backend-go/pkg/errors"
)

// WebhookChannel posts alert events to an HTTP endpoint. Slack and Teams both
// accept the simple {"text": ...} webhook payload; the generic webhook
// variant posts the full structured event.
type WebhookChannel struct {
	name       string
	url        string
	structured bool
	client     *http.Client
}

// NewSlackChannel creates a Slack incoming-webhook adapter
func NewSlackChannel(url string) *WebhookChannel {
	return newWebhookChannel("slack", url, false)
}

// NewTeamsChannel creates a Microsoft Teams webhook adapter
func NewTeamsChannel(url string) *WebhookChannel {
	return newWebhookChannel("teams", url, false)
}

// NewWebhookChannel creates a generic webhook adapter posting the full event
func NewWebhookChannel(url string) *WebhookChannel {
	return newWebhookChannel("webhook", url, true)
}

// NewFallbackChannel creates the DevOps-notification fallback adapter used
// after a channel exhausts its retries
func NewFallbackChannel(url string) *WebhookChannel {
	return newWebhookChannel("fallback", url, true)
}

func newWebhookChannel(name, url string, structured bool) *WebhookChannel {
	return &WebhookChannel{
		name:       name,
		url:        url,
		structured: structured,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the channel name
func (c *WebhookChannel) Name() string {
	return c.name
}

// Send posts the event to the webhook endpoint
func (c *WebhookChannel) Send(ctx context.Context, event *Event) error {
	var payload interface{}
	if c.structured {
		payload = event
	} else {
		payload = map[string]string{"text": event.Subject + "\n" + event.Message}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %s: marshaling payload: %v", pkgerrors.ErrChannelSend, c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s: building request: %v", pkgerrors.ErrChannelSend, c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", pkgerrors.ErrChannelSend, c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: status %d: %s", pkgerrors.ErrChannelSend, c.name, resp.StatusCode, string(detail))
	}

	return nil
}
