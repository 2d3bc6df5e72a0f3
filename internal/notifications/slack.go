package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/sla"
)

// SlackSender posts escalation notices to a Slack incoming webhook.
type SlackSender struct {
	client *http.Client
	logger zerolog.Logger
}

// NewSlackSender creates a Slack sender.
func NewSlackSender(logger zerolog.Logger) *SlackSender {
	return &SlackSender{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.With().Str("component", "slack_sender").Logger(),
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks,omitempty"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send posts the notice to the target's Slack incoming webhook.
func (s *SlackSender) Send(ctx context.Context, target TargetConfig, notice sla.EscalationNotice) error {
	if target.SlackWebhookURL == "" {
		return fmt.Errorf("target %s has no slack webhook url", notice.Level.Target)
	}

	headline := fmt.Sprintf(":rotating_light: *SLA escalation L%d* for *%s* (%s/%s), escalated to *%s*",
		notice.Level.Level, notice.Item.Subject, notice.Item.InfoType, notice.Item.Priority, notice.Level.Target)

	msg := slackMessage{
		Text: headline,
		Blocks: []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: headline}},
			{Type: "section", Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("Work item `%s`, created %s",
					notice.Item.ID, notice.Item.CreatedAt.Format(time.RFC3339)),
			}},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.SlackWebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}
