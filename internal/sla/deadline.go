package sla

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// DueDates are the computed targets for one work item under one rule.
type DueDates struct {
	ResponseDueAt   time.Time
	ResolutionDueAt time.Time
}

// DeadlineCalculator turns a rule plus a creation instant into concrete
// due dates, using the calendar the rule points at.
type DeadlineCalculator struct {
	calendars map[uuid.UUID]*Calendar
	fallback  *Calendar
	logger    zerolog.Logger
}

// NewDeadlineCalculator builds a calculator over the given business
// hours configs. Rules without a config, or pointing at an unknown one,
// fall back to 24/7 wall clock.
func NewDeadlineCalculator(configs []models.BusinessHoursConfig, logger zerolog.Logger) *DeadlineCalculator {
	calendars := make(map[uuid.UUID]*Calendar, len(configs))
	for i := range configs {
		calendars[configs[i].ID] = NewCalendar(&configs[i])
	}
	return &DeadlineCalculator{
		calendars: calendars,
		fallback:  AlwaysOnCalendar(),
		logger:    logger.With().Str("component", "deadline_calculator").Logger(),
	}
}

// CalendarFor returns the calendar a rule computes against.
func (d *DeadlineCalculator) CalendarFor(rule *models.SLARule) *Calendar {
	if rule.BusinessHoursID != nil {
		if cal, ok := d.calendars[*rule.BusinessHoursID]; ok {
			return cal
		}
		d.logger.Warn().
			Str("rule_id", rule.ID.String()).
			Str("business_hours_id", rule.BusinessHoursID.String()).
			Msg("rule references unknown business hours config, using 24/7")
	}
	return d.fallback
}

// ComputeDueDates computes both due dates for an item created at
// createdAt. A rule whose resolution target lands before its response
// target is logged and honored as stored rather than rejected.
func (d *DeadlineCalculator) ComputeDueDates(rule *models.SLARule, createdAt time.Time) DueDates {
	cal := d.CalendarFor(rule)
	due := DueDates{
		ResponseDueAt:   cal.AddBusinessDuration(createdAt, rule.ResponseTime()),
		ResolutionDueAt: cal.AddBusinessDuration(createdAt, rule.ResolutionTime()),
	}
	if due.ResolutionDueAt.Before(due.ResponseDueAt) {
		d.logger.Warn().
			Str("rule_id", rule.ID.String()).
			Str("rule_name", rule.Name).
			Time("response_due_at", due.ResponseDueAt).
			Time("resolution_due_at", due.ResolutionDueAt).
			Msg("rule resolves before it responds, proceeding with stored targets")
	}
	return due
}
