package sla

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// DefaultWarningFraction is the remaining share of a target below which
// an item moves to at_risk.
const DefaultWarningFraction = 0.25

// Command is a side effect the evaluator wants performed. The evaluator
// itself never touches storage or notifications; the runner executes
// the commands it emits.
type Command interface {
	command()
}

// PersistState asks for a conditional write of the new state. The write
// must fail when the stored version no longer equals ExpectedVersion.
type PersistState struct {
	State           models.SLAState
	ExpectedVersion int64
}

func (PersistState) command() {}

// Escalate asks for an escalation notification to the level's target.
// It is emitted only alongside a PersistState that records the level as
// fired, and must be dispatched only after that write succeeds.
type Escalate struct {
	Item   models.WorkItem
	RuleID uuid.UUID
	Level  models.EscalationLevel
}

func (Escalate) command() {}

// Evaluator computes the SLA posture of a single work item. It is a
// pure function of its inputs plus the catalog snapshot it was built
// with, which makes every rule below directly testable:
// status moves only forward, terminal items freeze, and each escalation
// level fires at most once per item.
type Evaluator struct {
	catalog         *Catalog
	deadlines       *DeadlineCalculator
	warningFraction float64
	logger          zerolog.Logger
}

// NewEvaluator builds an evaluator over a catalog snapshot. A
// non-positive warningFraction falls back to DefaultWarningFraction.
func NewEvaluator(catalog *Catalog, deadlines *DeadlineCalculator, warningFraction float64, logger zerolog.Logger) *Evaluator {
	if warningFraction <= 0 || warningFraction >= 1 {
		warningFraction = DefaultWarningFraction
	}
	return &Evaluator{
		catalog:         catalog,
		deadlines:       deadlines,
		warningFraction: warningFraction,
		logger:          logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate returns the item's next state and the commands needed to
// make it durable. The input state is never mutated. A nil state means
// the item has never been evaluated.
func (e *Evaluator) Evaluate(item *models.WorkItem, state *models.SLAState, now time.Time) (*models.SLAState, []Command, error) {
	if state == nil {
		state = models.NewSLAState(item.ID, item.OrgID)
	}

	// Terminal items keep whatever posture they ended with.
	if item.Status.IsTerminal() {
		return state, nil, nil
	}

	next := *state
	expectedVersion := state.Version

	rule, err := e.ruleFor(item, &next)
	if err != nil {
		return state, nil, err
	}

	next.RespondedAt = item.FirstRespondedAt
	next.CurrentStatus = next.CurrentStatus.AtLeast(e.computeStatus(item, &next, rule, now))

	var cmds []Command
	if rule != nil {
		elapsed := e.deadlines.CalendarFor(rule).ElapsedBusinessDuration(item.CreatedAt, now)
		if lvl := NextEscalation(rule, elapsed, next.HighestEscalationFired); lvl != nil {
			next.HighestEscalationFired = lvl.Level
			escalatedAt := now
			next.EscalatedAt = &escalatedAt
			next.EscalatedTo = lvl.Target
			cmds = append(cmds, Escalate{Item: *item, RuleID: rule.ID, Level: *lvl})
		}
	}

	evaluatedAt := now
	next.EvaluatedAt = &evaluatedAt
	next.UpdatedAt = now

	cmds = append(cmds, PersistState{State: next, ExpectedVersion: expectedVersion})
	return &next, cmds, nil
}

// ruleFor binds a rule to a fresh state or looks up the already bound
// one. The binding is permanent: later rule changes never move an
// item's due dates.
func (e *Evaluator) ruleFor(item *models.WorkItem, next *models.SLAState) (*models.SLARule, error) {
	if next.RuleID != nil {
		rule := e.catalog.RuleByID(*next.RuleID)
		if rule == nil {
			e.logger.Debug().
				Str("work_item_id", item.ID.String()).
				Str("rule_id", next.RuleID.String()).
				Msg("bound rule no longer active, evaluating against stored due dates")
		}
		return rule, nil
	}

	rule, err := e.catalog.ResolveRule(item.InfoType, item.Priority, item.Channel)
	if err != nil {
		return nil, fmt.Errorf("resolve rule for item %s: %w", item.ID, err)
	}

	due := e.deadlines.ComputeDueDates(rule, item.CreatedAt)
	ruleID := rule.ID
	next.RuleID = &ruleID
	next.ResponseDueAt = &due.ResponseDueAt
	next.ResolutionDueAt = &due.ResolutionDueAt
	return rule, nil
}

// computeStatus derives the instantaneous status from the legs still in
// play. The response leg retires once the item has a first response;
// the resolution leg runs until the item goes terminal.
func (e *Evaluator) computeStatus(item *models.WorkItem, state *models.SLAState, rule *models.SLARule, now time.Time) models.SLAStatus {
	status := models.SLAOnTrack

	if rule == nil {
		// Bound rule vanished from the catalog. Breach detection still
		// works off the stored due dates; the at_risk window needs the
		// rule's targets and is skipped.
		if item.FirstRespondedAt == nil && state.ResponseDueAt != nil && !now.Before(*state.ResponseDueAt) {
			status = models.SLABreached
		}
		if state.ResolutionDueAt != nil && !now.Before(*state.ResolutionDueAt) {
			status = models.SLABreached
		}
		return status
	}

	cal := e.deadlines.CalendarFor(rule)
	elapsed := cal.ElapsedBusinessDuration(item.CreatedAt, now)

	if item.FirstRespondedAt == nil {
		status = status.AtLeast(e.legStatus(elapsed, rule.ResponseTime()))
	} else if state.ResponseDueAt != nil && item.FirstRespondedAt.After(*state.ResponseDueAt) {
		// Responded, but late. The breach happened between passes.
		status = models.SLABreached
	}
	status = status.AtLeast(e.legStatus(elapsed, rule.ResolutionTime()))
	return status
}

// legStatus classifies one deadline leg by remaining business time.
func (e *Evaluator) legStatus(elapsed, total time.Duration) models.SLAStatus {
	remaining := total - elapsed
	if remaining <= 0 {
		return models.SLABreached
	}
	if float64(remaining) <= e.warningFraction*float64(total) {
		return models.SLAAtRisk
	}
	return models.SLAOnTrack
}
