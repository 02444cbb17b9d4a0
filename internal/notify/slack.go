package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/pkg/httpretry"
)

// SlackSink mirrors high-value notifications (tier changes, HOT entries,
// high-severity anomalies) to an operator Slack channel via an incoming
// webhook. Posting is best-effort: callers treat failures as log lines.
type SlackSink struct {
	webhookURL string
	httpClient httpretry.HTTPDoer
}

// NewSlackSink creates a Slack sink. An empty webhookURL disables posting.
func NewSlackSink(webhookURL string) *SlackSink {
	return &SlackSink{
		webhookURL: webhookURL,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 10 * time.Second,
		}, 2),
	}
}

// Enabled reports whether the sink has a destination configured.
func (s *SlackSink) Enabled() bool { return s.webhookURL != "" }

// Post sends one notification as a Slack message.
func (s *SlackSink) Post(ctx context.Context, n domain.Notification) error {
	if !s.Enabled() {
		return nil
	}

	msg := map[string]string{
		"text": fmt.Sprintf("*%s*\norg %s / %s %s\n%s", n.Title, n.OrganizationID, n.EntityType, n.EntityID, n.Body),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}
