package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MacJediWizard/slatrack/internal/models"
	"github.com/MacJediWizard/slatrack/internal/sla"
)

// Work item methods

// UpsertWorkItem registers or refreshes an upstream work item. Ingest
// is idempotent on the upstream ID.
func (db *DB) UpsertWorkItem(ctx context.Context, item *models.WorkItem) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO work_items (
			id, org_id, subject, info_type, priority, channel, status,
			first_responded_at, resolved_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			info_type = EXCLUDED.info_type,
			priority = EXCLUDED.priority,
			channel = EXCLUDED.channel,
			updated_at = EXCLUDED.updated_at
	`, item.ID, item.OrgID, item.Subject, item.InfoType, item.Priority, item.Channel, item.Status,
		item.FirstRespondedAt, item.ResolvedAt, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert work item: %w", err)
	}
	return nil
}

const workItemColumns = `
	id, org_id, subject, info_type, priority, channel, status,
	first_responded_at, resolved_at, created_at, updated_at`

func scanWorkItem(row rowScanner) (*models.WorkItem, error) {
	var it models.WorkItem
	err := row.Scan(
		&it.ID, &it.OrgID, &it.Subject, &it.InfoType, &it.Priority, &it.Channel, &it.Status,
		&it.FirstRespondedAt, &it.ResolvedAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// GetWorkItem returns a tracked work item by ID.
func (db *DB) GetWorkItem(ctx context.Context, id uuid.UUID) (*models.WorkItem, error) {
	item, err := scanWorkItem(db.Pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

// UpdateWorkItem persists lifecycle fields mirrored from upstream.
func (db *DB) UpdateWorkItem(ctx context.Context, item *models.WorkItem) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE work_items SET
			priority = $2, status = $3, first_responded_at = $4, resolved_at = $5, updated_at = $6
		WHERE id = $1
	`, item.ID, item.Priority, item.Status, item.FirstRespondedAt, item.ResolvedAt, time.Now())
	if err != nil {
		return fmt.Errorf("update work item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOpenWorkItems pages non-terminal items in ID order for the
// evaluation pass. The zero UUID cursor starts from the beginning.
func (db *DB) ListOpenWorkItems(ctx context.Context, cursor uuid.UUID, limit int) ([]models.WorkItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+workItemColumns+`
		FROM work_items
		WHERE status NOT IN ('resolved', 'closed') AND id > $1
		ORDER BY id
		LIMIT $2
	`, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list open work items: %w", err)
	}
	defer rows.Close()

	var items []models.WorkItem
	for rows.Next() {
		it, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// SLA state methods

const slaStateColumns = `
	work_item_id, org_id, rule_id, response_due_at, resolution_due_at,
	responded_at, current_status, highest_escalation_fired, escalated_at,
	escalated_to, version, evaluated_at, created_at, updated_at`

func scanSLAState(row rowScanner) (*models.SLAState, error) {
	var s models.SLAState
	err := row.Scan(
		&s.WorkItemID, &s.OrgID, &s.RuleID, &s.ResponseDueAt, &s.ResolutionDueAt,
		&s.RespondedAt, &s.CurrentStatus, &s.HighestEscalationFired, &s.EscalatedAt,
		&s.EscalatedTo, &s.Version, &s.EvaluatedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSLAState returns the tracked state for a work item, or
// sla.ErrStateNotFound.
func (db *DB) GetSLAState(ctx context.Context, workItemID uuid.UUID) (*models.SLAState, error) {
	state, err := scanSLAState(db.Pool.QueryRow(ctx,
		`SELECT `+slaStateColumns+` FROM sla_states WHERE work_item_id = $1`, workItemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sla.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sla state: %w", err)
	}
	return state, nil
}

// CompareAndSwapSLAState persists state only if the stored version
// still equals expectedVersion. Version 0 means no row may exist yet;
// the insert loses to any concurrent writer via the primary key. On
// success state.Version holds the new stored version.
func (db *DB) CompareAndSwapSLAState(ctx context.Context, state *models.SLAState, expectedVersion int64) error {
	if expectedVersion == 0 {
		tag, err := db.Pool.Exec(ctx, `
			INSERT INTO sla_states (
				work_item_id, org_id, rule_id, response_due_at, resolution_due_at,
				responded_at, current_status, highest_escalation_fired, escalated_at,
				escalated_to, version, evaluated_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11, $12, $13)
			ON CONFLICT (work_item_id) DO NOTHING
		`, state.WorkItemID, state.OrgID, state.RuleID, state.ResponseDueAt, state.ResolutionDueAt,
			state.RespondedAt, state.CurrentStatus, state.HighestEscalationFired, state.EscalatedAt,
			state.EscalatedTo, state.EvaluatedAt, state.CreatedAt, state.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert sla state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return sla.ErrConcurrentUpdate
		}
		state.Version = 1
		return nil
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE sla_states SET
			rule_id = $3, response_due_at = $4, resolution_due_at = $5,
			responded_at = $6, current_status = $7, highest_escalation_fired = $8,
			escalated_at = $9, escalated_to = $10, version = version + 1,
			evaluated_at = $11, updated_at = $12
		WHERE work_item_id = $1 AND version = $2
	`, state.WorkItemID, expectedVersion, state.RuleID, state.ResponseDueAt, state.ResolutionDueAt,
		state.RespondedAt, state.CurrentStatus, state.HighestEscalationFired,
		state.EscalatedAt, state.EscalatedTo, state.EvaluatedAt, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update sla state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sla.ErrConcurrentUpdate
	}
	state.Version = expectedVersion + 1
	return nil
}

// ListWorkItemStates returns an org's tracked items with their states,
// optionally filtered by SLA status. Items not yet evaluated surface
// with a nil state.
func (db *DB) ListWorkItemStates(ctx context.Context, orgID uuid.UUID, status models.SLAStatus, limit int) ([]models.WorkItemWithState, error) {
	query := `
		SELECT
			w.id, w.org_id, w.subject, w.info_type, w.priority, w.channel, w.status,
			w.first_responded_at, w.resolved_at, w.created_at, w.updated_at,
			s.work_item_id, s.rule_id, s.response_due_at, s.resolution_due_at,
			s.responded_at, s.current_status, s.highest_escalation_fired,
			s.escalated_at, s.escalated_to, s.version, s.evaluated_at
		FROM work_items w
		LEFT JOIN sla_states s ON s.work_item_id = w.id
		WHERE w.org_id = $1`
	args := []any{orgID}
	if status != "" {
		query += ` AND COALESCE(s.current_status, 'unevaluated') = $2`
		args = append(args, status)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY w.created_at DESC LIMIT $%d`, len(args))

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work item states: %w", err)
	}
	defer rows.Close()

	var out []models.WorkItemWithState
	for rows.Next() {
		var it models.WorkItem
		var s models.SLAState
		var stateID *uuid.UUID
		var currentStatus *models.SLAStatus
		var escalationFired *int
		var escalatedTo *string
		var version *int64
		err := rows.Scan(
			&it.ID, &it.OrgID, &it.Subject, &it.InfoType, &it.Priority, &it.Channel, &it.Status,
			&it.FirstRespondedAt, &it.ResolvedAt, &it.CreatedAt, &it.UpdatedAt,
			&stateID, &s.RuleID, &s.ResponseDueAt, &s.ResolutionDueAt,
			&s.RespondedAt, &currentStatus, &escalationFired,
			&s.EscalatedAt, &escalatedTo, &version, &s.EvaluatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan work item state: %w", err)
		}
		entry := models.WorkItemWithState{WorkItem: it}
		if stateID != nil {
			s.WorkItemID = *stateID
			s.OrgID = it.OrgID
			s.CurrentStatus = *currentStatus
			s.HighestEscalationFired = *escalationFired
			s.EscalatedTo = *escalatedTo
			s.Version = *version
			entry.State = &s
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// GetComplianceSummary aggregates SLA posture across an org's tracked
// items. Items without a state row count as unevaluated.
func (db *DB) GetComplianceSummary(ctx context.Context, orgID uuid.UUID) (*models.ComplianceSummary, error) {
	summary := &models.ComplianceSummary{OrgID: orgID, GeneratedAt: time.Now()}

	err := db.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE s.current_status = 'on_track'),
			COUNT(*) FILTER (WHERE s.current_status = 'at_risk'),
			COUNT(*) FILTER (WHERE s.current_status = 'breached'),
			COUNT(*) FILTER (WHERE s.current_status IS NULL OR s.current_status = 'unevaluated'),
			COUNT(*) FILTER (WHERE s.highest_escalation_fired > 0)
		FROM work_items w
		LEFT JOIN sla_states s ON s.work_item_id = w.id
		WHERE w.org_id = $1
	`, orgID).Scan(
		&summary.TotalItems, &summary.OnTrack, &summary.AtRisk,
		&summary.Breached, &summary.Unevaluated, &summary.Escalated,
	)
	if err != nil {
		return nil, fmt.Errorf("compliance summary: %w", err)
	}

	if evaluated := summary.TotalItems - summary.Unevaluated; evaluated > 0 {
		summary.ComplianceRate = float64(evaluated-summary.Breached) / float64(evaluated)
	}
	return summary, nil
}

// Notification delivery log

// RecordNotificationDelivery logs an escalation delivery attempt result.
func (db *DB) RecordNotificationDelivery(ctx context.Context, d *models.NotificationDelivery) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO notification_deliveries (
			id, org_id, work_item_id, rule_id, level, target, channel,
			status, attempts, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
	`, d.ID, d.OrgID, d.WorkItemID, d.RuleID, d.Level, d.Target, d.Channel,
		d.Status, d.Attempts, d.LastError, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record notification delivery: %w", err)
	}
	return nil
}

// ListNotificationDeliveries returns the delivery log for a work item,
// newest first.
func (db *DB) ListNotificationDeliveries(ctx context.Context, workItemID uuid.UUID) ([]models.NotificationDelivery, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, org_id, work_item_id, rule_id, level, target, channel,
			status, attempts, last_error, created_at, updated_at
		FROM notification_deliveries
		WHERE work_item_id = $1
		ORDER BY created_at DESC
	`, workItemID)
	if err != nil {
		return nil, fmt.Errorf("list notification deliveries: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationDelivery
	for rows.Next() {
		var d models.NotificationDelivery
		err := rows.Scan(
			&d.ID, &d.OrgID, &d.WorkItemID, &d.RuleID, &d.Level, &d.Target, &d.Channel,
			&d.Status, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
