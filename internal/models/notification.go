package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the lifecycle of one escalation delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// NotificationDelivery is the audit record of one escalation notice on
// one channel, updated across retries.
type NotificationDelivery struct {
	ID         uuid.UUID      `json:"id"`
	OrgID      uuid.UUID      `json:"org_id"`
	WorkItemID uuid.UUID      `json:"work_item_id"`
	RuleID     *uuid.UUID     `json:"rule_id,omitempty"`
	Level      int            `json:"level"`
	Target     string         `json:"target"`
	Channel    NotifyChannel  `json:"channel"`
	Status     DeliveryStatus `json:"status"`
	Attempts   int            `json:"attempts"`
	LastError  string         `json:"last_error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewNotificationDelivery creates a pending delivery record.
func NewNotificationDelivery(orgID, workItemID uuid.UUID, level int, target string, channel NotifyChannel) *NotificationDelivery {
	now := time.Now()
	return &NotificationDelivery{
		ID:         uuid.New(),
		OrgID:      orgID,
		WorkItemID: workItemID,
		Level:      level,
		Target:     target,
		Channel:    channel,
		Status:     DeliveryPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkDelivered records a successful attempt.
func (d *NotificationDelivery) MarkDelivered(attempts int) {
	d.Status = DeliveryDelivered
	d.Attempts = attempts
	d.LastError = ""
	d.UpdatedAt = time.Now()
}

// MarkFailed records a final failed attempt.
func (d *NotificationDelivery) MarkFailed(attempts int, err error) {
	d.Status = DeliveryFailed
	d.Attempts = attempts
	if err != nil {
		d.LastError = err.Error()
	}
	d.UpdatedAt = time.Now()
}

// NotificationDeliveriesResponse is the response for a delivery log.
type NotificationDeliveriesResponse struct {
	Deliveries []NotificationDelivery `json:"deliveries"`
}
