package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Slack delivers summaries through a Slack incoming webhook.
type Slack struct {
	webhookURL string
	client     *http.Client
}

// NewSlack creates a Slack notifier.
func NewSlack(webhookURL string, timeout time.Duration) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Notify renders the summary and posts it to the webhook.
func (s *Slack) Notify(ctx context.Context, summary Summary) error {
	payload, err := json.Marshal(map[string]string{"text": BuildText(summary)})
	if err != nil {
		return fmt.Errorf("failed to encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack delivery failed: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
