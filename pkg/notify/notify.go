/*
Copyright The Meridian Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package notify delivers structured incident events to the
// notification gateway. Delivery is fire-and-forget: a failed send is
// recorded by the caller, never escalated.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Severity qualifies an event for routing on the receiving side
type Severity string

// Event severities
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is one structured notification
type Event struct {
	Title    string            `json:"title"`
	Fields   map[string]string `json:"fields,omitempty"`
	Severity Severity          `json:"severity"`
	SentAt   time.Time         `json:"sentAt"`
}

// Client sends events
type Client interface {
	Send(ctx context.Context, event Event) error
}

// WebhookClient posts events as JSON to a webhook URL
type WebhookClient struct {
	url    string
	client *http.Client
}

// NewWebhookClient creates a client for the given webhook URL
func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	return &WebhookClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Send delivers one event
func (c *WebhookClient) Send(ctx context.Context, event Event) error {
	if event.SentAt.IsZero() {
		event.SentAt = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("while encoding notification: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("while building notification request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned %d", response.StatusCode)
	}

	return nil
}
