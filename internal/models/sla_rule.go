package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PriorityTier classifies the urgency of a work item.
type PriorityTier string

const (
	PriorityLow      PriorityTier = "low"
	PriorityMedium   PriorityTier = "medium"
	PriorityHigh     PriorityTier = "high"
	PriorityCritical PriorityTier = "critical"
)

// ValidPriorityTier reports whether p is a known priority tier.
func ValidPriorityTier(p PriorityTier) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Channel identifies how a work item arrived.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelPhone  Channel = "phone"
	ChannelWeb    Channel = "web"
	ChannelChat   Channel = "chat"
	ChannelAPI    Channel = "api"
	ChannelManual Channel = "manual"
)

// NotifyChannel identifies how an escalation notification is delivered.
type NotifyChannel string

const (
	NotifyEmail   NotifyChannel = "email"
	NotifyWebhook NotifyChannel = "webhook"
	NotifySlack   NotifyChannel = "slack"
)

// ValidNotifyChannel reports whether c is a supported delivery channel.
func ValidNotifyChannel(c NotifyChannel) bool {
	switch c {
	case NotifyEmail, NotifyWebhook, NotifySlack:
		return true
	}
	return false
}

// EscalationLevel is one rung of a rule's escalation ladder. Levels are
// stored ordered by Level ascending and fire when elapsed business time
// since work item creation passes EscalateAfterMinutes.
type EscalationLevel struct {
	Level                int             `json:"level"`
	EscalateAfterMinutes int             `json:"escalate_after_minutes"`
	Target               string          `json:"target"`
	NotifyChannels       []NotifyChannel `json:"notify_channels"`
}

// EscalateAfter returns the level's threshold as a duration.
func (l EscalationLevel) EscalateAfter() time.Duration {
	return time.Duration(l.EscalateAfterMinutes) * time.Minute
}

// SLARule defines response and resolution targets for a slice of work
// items. A rule matches on InfoType and Priority, optionally narrowed to
// a single intake Channel. At most one rule per org may be the default.
type SLARule struct {
	ID                    uuid.UUID         `json:"id"`
	OrgID                 uuid.UUID         `json:"org_id"`
	Name                  string            `json:"name"`
	Description           string            `json:"description,omitempty"`
	InfoType              string            `json:"info_type"`
	Priority              PriorityTier      `json:"priority"`
	Channel               *Channel          `json:"channel,omitempty"`
	ResponseTimeMinutes   int               `json:"response_time_minutes"`
	ResolutionTimeMinutes int               `json:"resolution_time_minutes"`
	BusinessHoursID       *uuid.UUID        `json:"business_hours_id,omitempty"`
	EscalationLevels      []EscalationLevel `json:"escalation_levels,omitempty"`
	IsDefault             bool              `json:"is_default"`
	Active                bool              `json:"active"`
	CreatedBy             *uuid.UUID        `json:"created_by,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// NewSLARule creates a new active rule with generated identity.
func NewSLARule(orgID uuid.UUID, name, infoType string, priority PriorityTier) *SLARule {
	now := time.Now()
	return &SLARule{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      name,
		InfoType:  infoType,
		Priority:  priority,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResponseTime returns the response target as a duration.
func (r *SLARule) ResponseTime() time.Duration {
	return time.Duration(r.ResponseTimeMinutes) * time.Minute
}

// ResolutionTime returns the resolution target as a duration.
func (r *SLARule) ResolutionTime() time.Duration {
	return time.Duration(r.ResolutionTimeMinutes) * time.Minute
}

// Validate checks rule invariants: positive targets, known enums, and an
// escalation ladder with strictly increasing level numbers and thresholds.
func (r *SLARule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.InfoType == "" && !r.IsDefault {
		return fmt.Errorf("info_type is required for non-default rules")
	}
	if !ValidPriorityTier(r.Priority) && !r.IsDefault {
		return fmt.Errorf("invalid priority tier %q", r.Priority)
	}
	if r.ResponseTimeMinutes <= 0 {
		return fmt.Errorf("response_time_minutes must be positive")
	}
	if r.ResolutionTimeMinutes <= 0 {
		return fmt.Errorf("resolution_time_minutes must be positive")
	}
	for i, lvl := range r.EscalationLevels {
		if lvl.Level <= 0 {
			return fmt.Errorf("escalation level %d: level number must be positive", i)
		}
		if lvl.EscalateAfterMinutes <= 0 {
			return fmt.Errorf("escalation level %d: escalate_after_minutes must be positive", lvl.Level)
		}
		if lvl.Target == "" {
			return fmt.Errorf("escalation level %d: target is required", lvl.Level)
		}
		for _, c := range lvl.NotifyChannels {
			if !ValidNotifyChannel(c) {
				return fmt.Errorf("escalation level %d: unknown notify channel %q", lvl.Level, c)
			}
		}
		if i > 0 {
			prev := r.EscalationLevels[i-1]
			if lvl.Level <= prev.Level {
				return fmt.Errorf("escalation levels must strictly increase: level %d after %d", lvl.Level, prev.Level)
			}
			if lvl.EscalateAfterMinutes <= prev.EscalateAfterMinutes {
				return fmt.Errorf("escalation level %d: escalate_after must exceed level %d", lvl.Level, prev.Level)
			}
		}
	}
	return nil
}

// Matches reports whether the rule applies to the given work item
// attributes. Channel-scoped rules require an exact channel match.
func (r *SLARule) Matches(infoType string, priority PriorityTier, channel Channel) bool {
	if r.InfoType != infoType || r.Priority != priority {
		return false
	}
	if r.Channel != nil && *r.Channel != channel {
		return false
	}
	return true
}

// BusinessHoursConfig defines a working-time window. Deadlines and
// elapsed-time math only accrue inside the window on working days. When
// Enabled is false the calendar degrades to 24/7 wall clock.
type BusinessHoursConfig struct {
	ID          uuid.UUID      `json:"id"`
	OrgID       uuid.UUID      `json:"org_id"`
	Name        string         `json:"name"`
	Timezone    string         `json:"timezone"`
	WorkingDays []time.Weekday `json:"working_days"`
	StartMinute int            `json:"start_minute"`
	EndMinute   int            `json:"end_minute"`
	Enabled     bool           `json:"enabled"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewBusinessHoursConfig creates an enabled config with generated identity.
func NewBusinessHoursConfig(orgID uuid.UUID, name string) *BusinessHoursConfig {
	now := time.Now()
	return &BusinessHoursConfig{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      name,
		Timezone:  "UTC",
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks window invariants. Start must precede end within a
// single day; overnight windows are not supported.
func (c *BusinessHoursConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("business hours name is required")
	}
	if !c.Enabled {
		return nil
	}
	if len(c.WorkingDays) == 0 {
		return fmt.Errorf("at least one working day is required")
	}
	seen := make(map[time.Weekday]bool, len(c.WorkingDays))
	for _, d := range c.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid working day %d", d)
		}
		if seen[d] {
			return fmt.Errorf("duplicate working day %s", d)
		}
		seen[d] = true
	}
	if c.StartMinute < 0 || c.StartMinute >= 24*60 {
		return fmt.Errorf("start_minute out of range")
	}
	if c.EndMinute <= 0 || c.EndMinute > 24*60 {
		return fmt.Errorf("end_minute out of range")
	}
	if c.StartMinute >= c.EndMinute {
		return fmt.Errorf("start_minute must be before end_minute")
	}
	if c.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone. Validate must have passed.
func (c *BusinessHoursConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsWorkingDay reports whether d is one of the configured working days.
func (c *BusinessHoursConfig) IsWorkingDay(d time.Weekday) bool {
	for _, wd := range c.WorkingDays {
		if wd == d {
			return true
		}
	}
	return false
}

// CreateSLARuleRequest is the request body for creating a rule.
type CreateSLARuleRequest struct {
	Name                  string                   `json:"name" binding:"required,min=1,max=255"`
	Description           string                   `json:"description,omitempty"`
	InfoType              string                   `json:"info_type,omitempty"`
	Priority              PriorityTier             `json:"priority,omitempty"`
	Channel               *Channel                 `json:"channel,omitempty"`
	ResponseTimeMinutes   int                      `json:"response_time_minutes" binding:"required,min=1"`
	ResolutionTimeMinutes int                      `json:"resolution_time_minutes" binding:"required,min=1"`
	BusinessHoursID       *uuid.UUID               `json:"business_hours_id,omitempty"`
	EscalationLevels      []EscalationLevelRequest `json:"escalation_levels,omitempty"`
	IsDefault             bool                     `json:"is_default,omitempty"`
	Active                *bool                    `json:"active,omitempty"`
}

// EscalationLevelRequest is one escalation rung in a rule request.
type EscalationLevelRequest struct {
	Level                int             `json:"level" binding:"required,min=1"`
	EscalateAfterMinutes int             `json:"escalate_after_minutes" binding:"required,min=1"`
	Target               string          `json:"target" binding:"required"`
	NotifyChannels       []NotifyChannel `json:"notify_channels" binding:"required,min=1"`
}

// UpdateSLARuleRequest is the request body for updating a rule. Nil
// fields are left unchanged.
type UpdateSLARuleRequest struct {
	Name                  *string                  `json:"name,omitempty"`
	Description           *string                  `json:"description,omitempty"`
	InfoType              *string                  `json:"info_type,omitempty"`
	Priority              *PriorityTier            `json:"priority,omitempty"`
	Channel               *Channel                 `json:"channel,omitempty"`
	ResponseTimeMinutes   *int                     `json:"response_time_minutes,omitempty"`
	ResolutionTimeMinutes *int                     `json:"resolution_time_minutes,omitempty"`
	BusinessHoursID       *uuid.UUID               `json:"business_hours_id,omitempty"`
	EscalationLevels      []EscalationLevelRequest `json:"escalation_levels,omitempty"`
	Active                *bool                    `json:"active,omitempty"`
}

// CreateBusinessHoursRequest is the request body for creating a
// business hours config.
type CreateBusinessHoursRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=255"`
	Timezone    string `json:"timezone" binding:"required"`
	WorkingDays []int  `json:"working_days" binding:"required,min=1"`
	StartMinute int    `json:"start_minute" binding:"min=0,max=1439"`
	EndMinute   int    `json:"end_minute" binding:"required,min=1,max=1440"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// SLARulesResponse is the response for listing rules.
type SLARulesResponse struct {
	Rules []SLARule `json:"rules"`
}

// BusinessHoursResponse is the response for listing business hours configs.
type BusinessHoursResponse struct {
	Configs []BusinessHoursConfig `json:"configs"`
}
