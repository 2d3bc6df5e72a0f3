// Package notifications delivers escalation notices over email,
// webhooks and Slack.
package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/metrics"
	"github.com/MacJediWizard/slatrack/internal/models"
	"github.com/MacJediWizard/slatrack/internal/sla"
)

// DeliveryStore persists the delivery audit log.
type DeliveryStore interface {
	RecordNotificationDelivery(ctx context.Context, d *models.NotificationDelivery) error
}

// TargetConfig maps an escalation target label to concrete endpoints.
type TargetConfig struct {
	Emails          []string `yaml:"emails"`
	WebhookURL      string   `yaml:"webhook_url"`
	WebhookSecret   string   `yaml:"webhook_secret"`
	SlackWebhookURL string   `yaml:"slack_webhook_url"`
}

// Config holds notification service configuration.
type Config struct {
	SMTP    SMTPConfig              `yaml:"smtp"`
	Targets map[string]TargetConfig `yaml:"targets"`

	// MaxAttempts and RetryBaseDelay shape the per-channel retry
	// schedule: base, 2x base, 4x base and so on.
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// DefaultConfig returns a Config with sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		RetryBaseDelay: 30 * time.Second,
	}
}

// DispatchError reports a delivery that could not even be attempted,
// for example an unknown target label.
type DispatchError struct {
	Target  string
	Channel models.NotifyChannel
	Err     error
}

func (e *DispatchError) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("dispatch to %s via %s: %v", e.Target, e.Channel, e.Err)
	}
	return fmt.Sprintf("dispatch to %s: %v", e.Target, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// sender delivers one notice over one channel.
type sender interface {
	Send(ctx context.Context, target TargetConfig, notice sla.EscalationNotice) error
}

// Service implements the notification port. Each fired level fans out
// to the level's channels; delivery is at-least-once with retries owned
// here, and every outcome lands in the delivery log.
type Service struct {
	cfg     Config
	store   DeliveryStore
	senders map[models.NotifyChannel]sender
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewService creates a notification service. The email sender is only
// wired when SMTP is configured; notices on unconfigured channels fail
// into the delivery log rather than erroring the evaluation pass.
func NewService(cfg Config, store DeliveryStore, logger zerolog.Logger) (*Service, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 30 * time.Second
	}

	s := &Service{
		cfg:     cfg,
		store:   store,
		senders: make(map[models.NotifyChannel]sender),
		logger:  logger.With().Str("component", "notification_service").Logger(),
	}

	if cfg.SMTP.Host != "" {
		email, err := NewEmailSender(cfg.SMTP, logger)
		if err != nil {
			return nil, fmt.Errorf("configure email sender: %w", err)
		}
		s.senders[models.NotifyEmail] = email
	}
	s.senders[models.NotifyWebhook] = NewWebhookSender(logger)
	s.senders[models.NotifySlack] = NewSlackSender(logger)

	return s, nil
}

// Notify fans an escalation notice out to the level's channels. The
// send attempts run in the background; Notify fails fast only when the
// target label is not configured at all.
func (s *Service) Notify(ctx context.Context, notice sla.EscalationNotice) error {
	target, ok := s.cfg.Targets[notice.Level.Target]
	if !ok {
		return &DispatchError{
			Target: notice.Level.Target,
			Err:    fmt.Errorf("no target configuration"),
		}
	}

	for _, channel := range notice.Level.NotifyChannels {
		delivery := models.NewNotificationDelivery(
			notice.Item.OrgID, notice.Item.ID, notice.Level.Level, notice.Level.Target, channel)
		ruleID := notice.RuleID
		delivery.RuleID = &ruleID

		if err := s.store.RecordNotificationDelivery(ctx, delivery); err != nil {
			s.logger.Error().Err(err).
				Str("work_item_id", notice.Item.ID.String()).
				Msg("record notification delivery")
		}

		s.wg.Add(1)
		go func(channel models.NotifyChannel, delivery *models.NotificationDelivery) {
			defer s.wg.Done()
			s.deliver(channel, target, notice, delivery)
		}(channel, delivery)
	}
	return nil
}

// Close waits for in-flight deliveries to finish.
func (s *Service) Close() {
	s.wg.Wait()
}

// deliver attempts one channel with exponential backoff and records the
// outcome. It deliberately runs off the caller's context so a finished
// evaluation pass does not cancel pending sends.
func (s *Service) deliver(channel models.NotifyChannel, target TargetConfig, notice sla.EscalationNotice, delivery *models.NotificationDelivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log := s.logger.With().
		Str("work_item_id", notice.Item.ID.String()).
		Str("target", notice.Level.Target).
		Str("channel", string(channel)).
		Logger()

	snd, ok := s.senders[channel]
	if !ok {
		delivery.MarkFailed(0, fmt.Errorf("channel not configured"))
		s.record(ctx, delivery)
		log.Warn().Msg("notification channel not configured")
		metrics.NotificationFailures.WithLabelValues(string(channel)).Inc()
		return
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		lastErr = snd.Send(ctx, target, notice)
		if lastErr == nil {
			delivery.MarkDelivered(attempt)
			s.record(ctx, delivery)
			log.Info().Int("attempt", attempt).Msg("escalation notice delivered")
			return
		}

		log.Warn().Err(lastErr).Int("attempt", attempt).Msg("escalation delivery attempt failed")
		if attempt < s.cfg.MaxAttempts {
			delay := s.cfg.RetryBaseDelay * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = s.cfg.MaxAttempts
			case <-time.After(delay):
			}
		}
	}

	delivery.MarkFailed(s.cfg.MaxAttempts, lastErr)
	s.record(ctx, delivery)
	metrics.NotificationFailures.WithLabelValues(string(channel)).Inc()
	log.Error().Err(lastErr).Msg("escalation delivery exhausted retries")
}

func (s *Service) record(ctx context.Context, delivery *models.NotificationDelivery) {
	if err := s.store.RecordNotificationDelivery(ctx, delivery); err != nil {
		s.logger.Error().Err(err).Str("delivery_id", delivery.ID.String()).Msg("update notification delivery")
	}
}
