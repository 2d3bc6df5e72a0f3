package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/sla"
)

// WebhookSender posts escalation notices to a target's webhook endpoint
// with an HMAC-SHA256 signature over the payload.
type WebhookSender struct {
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(logger zerolog.Logger) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With().Str("component", "webhook_sender").Logger(),
	}
}

// escalationPayload is the webhook wire format.
type escalationPayload struct {
	Event       string    `json:"event"`
	Timestamp   time.Time `json:"timestamp"`
	OrgID       string    `json:"org_id"`
	WorkItemID  string    `json:"work_item_id"`
	Subject     string    `json:"subject"`
	InfoType    string    `json:"info_type"`
	Priority    string    `json:"priority"`
	RuleID      string    `json:"rule_id"`
	Level       int       `json:"level"`
	Target      string    `json:"target"`
	ItemCreated time.Time `json:"item_created_at"`
}

// Send posts the notice to the target's webhook URL.
func (s *WebhookSender) Send(ctx context.Context, target TargetConfig, notice sla.EscalationNotice) error {
	if target.WebhookURL == "" {
		return fmt.Errorf("target %s has no webhook url", notice.Level.Target)
	}

	payload := escalationPayload{
		Event:       "sla.escalation",
		Timestamp:   time.Now().UTC(),
		OrgID:       notice.Item.OrgID.String(),
		WorkItemID:  notice.Item.ID.String(),
		Subject:     notice.Item.Subject,
		InfoType:    notice.Item.InfoType,
		Priority:    string(notice.Item.Priority),
		RuleID:      notice.RuleID.String(),
		Level:       notice.Level.Level,
		Target:      notice.Level.Target,
		ItemCreated: notice.Item.CreatedAt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Slatrack-Webhook/1.0")
	req.Header.Set("X-Slatrack-Event", payload.Event)
	req.Header.Set("X-Slatrack-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	if target.WebhookSecret != "" {
		req.Header.Set("X-Slatrack-Signature-256", SignPayload(body, []byte(target.WebhookSecret)))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug().
		Str("work_item_id", payload.WorkItemID).
		Int("level", payload.Level).
		Msg("webhook delivered")
	return nil
}

// SignPayload computes the hex HMAC-SHA256 signature header value.
func SignPayload(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
