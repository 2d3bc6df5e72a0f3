package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkItemStatus is the lifecycle state of an externally-owned work item.
type WorkItemStatus string

const (
	WorkItemOpen       WorkItemStatus = "open"
	WorkItemInProgress WorkItemStatus = "in_progress"
	WorkItemPending    WorkItemStatus = "pending"
	WorkItemResolved   WorkItemStatus = "resolved"
	WorkItemClosed     WorkItemStatus = "closed"
)

// IsTerminal reports whether the status ends SLA tracking. Terminal
// items keep their last computed SLA state frozen.
func (s WorkItemStatus) IsTerminal() bool {
	return s == WorkItemResolved || s == WorkItemClosed
}

// WorkItem is the projection of an upstream ticket that SLA evaluation
// needs. Ownership of the item lifecycle stays with the upstream system;
// this service only reads these fields.
type WorkItem struct {
	ID               uuid.UUID      `json:"id"`
	OrgID            uuid.UUID      `json:"org_id"`
	Subject          string         `json:"subject"`
	InfoType         string         `json:"info_type"`
	Priority         PriorityTier   `json:"priority"`
	Channel          Channel        `json:"channel"`
	Status           WorkItemStatus `json:"status"`
	FirstRespondedAt *time.Time     `json:"first_responded_at,omitempty"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SLAStatus is the evaluated health of a work item against its rule.
type SLAStatus string

const (
	SLAUnevaluated SLAStatus = "unevaluated"
	SLAOnTrack     SLAStatus = "on_track"
	SLAAtRisk      SLAStatus = "at_risk"
	SLABreached    SLAStatus = "breached"
)

// severity orders statuses for monotonic transitions.
func (s SLAStatus) severity() int {
	switch s {
	case SLAOnTrack:
		return 1
	case SLAAtRisk:
		return 2
	case SLABreached:
		return 3
	}
	return 0
}

// AtLeast returns the more severe of s and other. Status never moves
// backward within a single tracking lifecycle.
func (s SLAStatus) AtLeast(other SLAStatus) SLAStatus {
	if other.severity() > s.severity() {
		return other
	}
	return s
}

// SLAState is the tracked SLA posture of one work item. RuleID and the
// due dates are set on first evaluation and never change afterward.
// Version is the optimistic concurrency token for conditional writes.
type SLAState struct {
	WorkItemID             uuid.UUID  `json:"work_item_id"`
	OrgID                  uuid.UUID  `json:"org_id"`
	RuleID                 *uuid.UUID `json:"rule_id,omitempty"`
	ResponseDueAt          *time.Time `json:"response_due_at,omitempty"`
	ResolutionDueAt        *time.Time `json:"resolution_due_at,omitempty"`
	RespondedAt            *time.Time `json:"responded_at,omitempty"`
	CurrentStatus          SLAStatus  `json:"current_status"`
	HighestEscalationFired int        `json:"highest_escalation_fired"`
	EscalatedAt            *time.Time `json:"escalated_at,omitempty"`
	EscalatedTo            string     `json:"escalated_to,omitempty"`
	Version                int64      `json:"version"`
	EvaluatedAt            *time.Time `json:"evaluated_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// NewSLAState creates the initial unevaluated state for a work item.
func NewSLAState(workItemID, orgID uuid.UUID) *SLAState {
	now := time.Now()
	return &SLAState{
		WorkItemID:    workItemID,
		OrgID:         orgID,
		CurrentStatus: SLAUnevaluated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Evaluated reports whether a rule has been bound to this state.
func (s *SLAState) Evaluated() bool {
	return s.RuleID != nil
}

// ComplianceSummary aggregates SLA posture across an org's open and
// recently closed work items.
type ComplianceSummary struct {
	OrgID          uuid.UUID `json:"org_id"`
	TotalItems     int       `json:"total_items"`
	OnTrack        int       `json:"on_track"`
	AtRisk         int       `json:"at_risk"`
	Breached       int       `json:"breached"`
	Unevaluated    int       `json:"unevaluated"`
	Escalated      int       `json:"escalated"`
	ComplianceRate float64   `json:"compliance_rate"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// IngestWorkItemRequest is the request body for registering an upstream
// work item for tracking.
type IngestWorkItemRequest struct {
	ID        uuid.UUID    `json:"id" binding:"required"`
	Subject   string       `json:"subject" binding:"required,min=1,max=500"`
	InfoType  string       `json:"info_type" binding:"required"`
	Priority  PriorityTier `json:"priority" binding:"required,oneof=low medium high critical"`
	Channel   Channel      `json:"channel" binding:"required"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
}

// UpdateWorkItemRequest mirrors upstream lifecycle changes into the
// tracker. Nil fields are left unchanged.
type UpdateWorkItemRequest struct {
	Status           *WorkItemStatus `json:"status,omitempty"`
	Priority         *PriorityTier   `json:"priority,omitempty"`
	FirstRespondedAt *time.Time      `json:"first_responded_at,omitempty"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
}

// WorkItemWithState pairs a work item with its tracked SLA state.
type WorkItemWithState struct {
	WorkItem WorkItem  `json:"work_item"`
	State    *SLAState `json:"state,omitempty"`
}

// WorkItemStatesResponse is the response for listing tracked items.
type WorkItemStatesResponse struct {
	Items      []WorkItemWithState `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}
