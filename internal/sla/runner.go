package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/metrics"
	"github.com/MacJediWizard/slatrack/internal/models"
)

// WorkItemStore defines the persistence operations an evaluation pass
// needs.
type WorkItemStore interface {
	ListActiveSLARules(ctx context.Context) ([]models.SLARule, error)
	ListBusinessHoursConfigs(ctx context.Context) ([]models.BusinessHoursConfig, error)

	// ListOpenWorkItems pages non-terminal items in stable ID order.
	// The zero UUID cursor starts from the beginning.
	ListOpenWorkItems(ctx context.Context, cursor uuid.UUID, limit int) ([]models.WorkItem, error)

	// GetSLAState returns ErrStateNotFound for untracked items.
	GetSLAState(ctx context.Context, workItemID uuid.UUID) (*models.SLAState, error)

	// CompareAndSwapSLAState persists state only when the stored version
	// still equals expectedVersion, returning ErrConcurrentUpdate
	// otherwise. On success the stored version is incremented.
	CompareAndSwapSLAState(ctx context.Context, state *models.SLAState, expectedVersion int64) error
}

// EscalationNotice carries everything a notification channel needs to
// announce an escalation.
type EscalationNotice struct {
	Item   models.WorkItem
	RuleID uuid.UUID
	Level  models.EscalationLevel
}

// Notifier delivers escalation notices. Implementations own retries;
// the runner calls once per fired level and treats failure as
// non-fatal.
type Notifier interface {
	Notify(ctx context.Context, notice EscalationNotice) error
}

// RunStats summarizes one evaluation pass.
type RunStats struct {
	Evaluated   int
	Persisted   int
	Escalations int
	Conflicts   int
	Skipped     int
	Errors      int
	Duration    time.Duration
}

// Runner drives batch evaluation passes. Each pass works off a single
// catalog snapshot, walks open items in pages, and isolates per-item
// failures so one poisoned item never stalls the rest of the batch.
type Runner struct {
	store           WorkItemStore
	notifier        Notifier
	warningFraction float64
	pageSize        int
	logger          zerolog.Logger
}

// NewRunner creates a runner. pageSize caps items fetched per store
// round trip.
func NewRunner(store WorkItemStore, notifier Notifier, warningFraction float64, pageSize int, logger zerolog.Logger) *Runner {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Runner{
		store:           store,
		notifier:        notifier,
		warningFraction: warningFraction,
		pageSize:        pageSize,
		logger:          logger.With().Str("component", "sla_runner").Logger(),
	}
}

// RunOnce executes a full evaluation pass. Context cancellation is
// honored between items; the item being evaluated when cancellation
// arrives finishes first. Returns an error only when the pass itself
// cannot proceed, never for individual item failures.
func (r *Runner) RunOnce(ctx context.Context) (RunStats, error) {
	started := time.Now()
	var stats RunStats

	rules, err := r.store.ListActiveSLARules(ctx)
	if err != nil {
		return stats, fmt.Errorf("load active rules: %w", err)
	}
	configs, err := r.store.ListBusinessHoursConfigs(ctx)
	if err != nil {
		return stats, fmt.Errorf("load business hours: %w", err)
	}

	deadlines := NewDeadlineCalculator(configs, r.logger)
	evaluators := r.buildEvaluators(rules, deadlines)

	statusCounts := make(map[models.SLAStatus]int)
	cursor := uuid.Nil
	for {
		items, err := r.store.ListOpenWorkItems(ctx, cursor, r.pageSize)
		if err != nil {
			return stats, fmt.Errorf("list open work items: %w", err)
		}
		if len(items) == 0 {
			break
		}
		cursor = items[len(items)-1].ID

		for i := range items {
			if err := ctx.Err(); err != nil {
				stats.Duration = time.Since(started)
				return stats, err
			}
			r.evaluateItem(ctx, evaluators[items[i].OrgID], &items[i], statusCounts, &stats)
		}

		if len(items) < r.pageSize {
			break
		}
	}

	for _, status := range []models.SLAStatus{models.SLAOnTrack, models.SLAAtRisk, models.SLABreached} {
		metrics.ItemsByStatus.WithLabelValues(string(status)).Set(float64(statusCounts[status]))
	}

	stats.Duration = time.Since(started)
	metrics.EvaluationPassDuration.Observe(stats.Duration.Seconds())
	r.logger.Info().
		Int("evaluated", stats.Evaluated).
		Int("persisted", stats.Persisted).
		Int("escalations", stats.Escalations).
		Int("conflicts", stats.Conflicts).
		Int("skipped", stats.Skipped).
		Int("errors", stats.Errors).
		Dur("duration", stats.Duration).
		Msg("evaluation pass complete")
	return stats, nil
}

// buildEvaluators groups the rule snapshot by org and wires one
// evaluator per org over the shared deadline calculator.
func (r *Runner) buildEvaluators(rules []models.SLARule, deadlines *DeadlineCalculator) map[uuid.UUID]*Evaluator {
	byOrg := make(map[uuid.UUID][]models.SLARule)
	for _, rule := range rules {
		byOrg[rule.OrgID] = append(byOrg[rule.OrgID], rule)
	}
	evaluators := make(map[uuid.UUID]*Evaluator, len(byOrg))
	for orgID, orgRules := range byOrg {
		evaluators[orgID] = NewEvaluator(NewCatalog(orgRules), deadlines, r.warningFraction, r.logger)
	}
	return evaluators
}

// evaluateItem runs one item through its org's evaluator and executes
// the resulting commands. All failures are absorbed into stats.
func (r *Runner) evaluateItem(ctx context.Context, evaluator *Evaluator, item *models.WorkItem, statusCounts map[models.SLAStatus]int, stats *RunStats) {
	log := r.logger.With().Str("work_item_id", item.ID.String()).Logger()

	if evaluator == nil {
		log.Debug().Str("org_id", item.OrgID.String()).Msg("org has no active rules, skipping")
		stats.Skipped++
		return
	}

	state, err := r.store.GetSLAState(ctx, item.ID)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		log.Error().Err(err).Msg("load sla state")
		stats.Errors++
		return
	}

	next, cmds, err := evaluator.Evaluate(item, state, time.Now())
	if err != nil {
		if errors.Is(err, ErrNoApplicableRule) {
			log.Debug().Msg("no applicable rule, item stays unevaluated")
			stats.Skipped++
		} else {
			log.Error().Err(err).Msg("evaluate work item")
			stats.Errors++
		}
		return
	}
	stats.Evaluated++
	statusCounts[next.CurrentStatus]++
	metrics.ItemsEvaluated.Inc()

	r.execute(ctx, log, cmds, stats)
}

// execute runs the evaluator's commands in order. Escalations fire only
// after the state recording them is durable; a lost CAS drops the whole
// command set and the next tick retries from fresh state.
func (r *Runner) execute(ctx context.Context, log zerolog.Logger, cmds []Command, stats *RunStats) {
	var pending []Escalate
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case Escalate:
			pending = append(pending, c)

		case PersistState:
			err := r.store.CompareAndSwapSLAState(ctx, &c.State, c.ExpectedVersion)
			if errors.Is(err, ErrConcurrentUpdate) {
				log.Debug().Int64("expected_version", c.ExpectedVersion).Msg("lost state write race, skipping")
				metrics.StateConflicts.Inc()
				stats.Conflicts++
				return
			}
			if err != nil {
				log.Error().Err(err).Msg("persist sla state")
				stats.Errors++
				return
			}
			stats.Persisted++
			r.dispatch(ctx, log, pending, stats)
			pending = nil
		}
	}
}

// dispatch sends escalation notices. Delivery failure is logged and
// counted but never unwinds the already persisted state; the notifier
// owns retries.
func (r *Runner) dispatch(ctx context.Context, log zerolog.Logger, escalations []Escalate, stats *RunStats) {
	for _, esc := range escalations {
		notice := EscalationNotice{Item: esc.Item, RuleID: esc.RuleID, Level: esc.Level}
		if err := r.notifier.Notify(ctx, notice); err != nil {
			log.Error().Err(err).Int("level", esc.Level.Level).Msg("dispatch escalation notice")
			stats.Errors++
			continue
		}
		stats.Escalations++
		metrics.EscalationsFired.Inc()
		log.Info().
			Int("level", esc.Level.Level).
			Str("target", esc.Level.Target).
			Msg("escalation dispatched")
	}
}
