package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MacJediWizard/slatrack/internal/models"
	"github.com/MacJediWizard/slatrack/internal/sla"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = sla.ErrNotFound

const slaRuleColumns = `
	id, org_id, name, description, info_type, priority, channel,
	response_time_minutes, resolution_time_minutes, business_hours_id,
	escalation_levels, is_default, active, created_by, created_at, updated_at`

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSLARule(row rowScanner) (*models.SLARule, error) {
	var r models.SLARule
	var channel *string
	var levels []byte

	err := row.Scan(
		&r.ID, &r.OrgID, &r.Name, &r.Description, &r.InfoType, &r.Priority, &channel,
		&r.ResponseTimeMinutes, &r.ResolutionTimeMinutes, &r.BusinessHoursID,
		&levels, &r.IsDefault, &r.Active, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if channel != nil {
		c := models.Channel(*channel)
		r.Channel = &c
	}
	if len(levels) > 0 {
		if err := json.Unmarshal(levels, &r.EscalationLevels); err != nil {
			return nil, fmt.Errorf("decode escalation levels: %w", err)
		}
	}
	return &r, nil
}

// CreateSLARule inserts a new rule.
func (db *DB) CreateSLARule(ctx context.Context, rule *models.SLARule) error {
	levels, err := json.Marshal(rule.EscalationLevels)
	if err != nil {
		return fmt.Errorf("encode escalation levels: %w", err)
	}

	var channel *string
	if rule.Channel != nil {
		s := string(*rule.Channel)
		channel = &s
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO sla_rules (
			id, org_id, name, description, info_type, priority, channel,
			response_time_minutes, resolution_time_minutes, business_hours_id,
			escalation_levels, is_default, active, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, rule.ID, rule.OrgID, rule.Name, rule.Description, rule.InfoType, rule.Priority, channel,
		rule.ResponseTimeMinutes, rule.ResolutionTimeMinutes, rule.BusinessHoursID,
		levels, rule.IsDefault, rule.Active, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create sla rule: %w", err)
	}
	return nil
}

// GetSLARule returns a rule by ID.
func (db *DB) GetSLARule(ctx context.Context, id uuid.UUID) (*models.SLARule, error) {
	rule, err := scanSLARule(db.Pool.QueryRow(ctx,
		`SELECT `+slaRuleColumns+` FROM sla_rules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sla rule: %w", err)
	}
	return rule, nil
}

// ListSLARules returns all rules for an org, defaults first.
func (db *DB) ListSLARules(ctx context.Context, orgID uuid.UUID) ([]models.SLARule, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+slaRuleColumns+` FROM sla_rules WHERE org_id = $1 ORDER BY is_default DESC, name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list sla rules: %w", err)
	}
	defer rows.Close()

	var rules []models.SLARule
	for rows.Next() {
		r, err := scanSLARule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sla rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// ListActiveSLARules returns every active rule across all orgs, for
// evaluation passes.
func (db *DB) ListActiveSLARules(ctx context.Context) ([]models.SLARule, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+slaRuleColumns+` FROM sla_rules WHERE active = TRUE ORDER BY org_id, name`)
	if err != nil {
		return nil, fmt.Errorf("list active sla rules: %w", err)
	}
	defer rows.Close()

	var rules []models.SLARule
	for rows.Next() {
		r, err := scanSLARule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sla rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// UpdateSLARule persists all mutable fields of a rule.
func (db *DB) UpdateSLARule(ctx context.Context, rule *models.SLARule) error {
	levels, err := json.Marshal(rule.EscalationLevels)
	if err != nil {
		return fmt.Errorf("encode escalation levels: %w", err)
	}

	var channel *string
	if rule.Channel != nil {
		s := string(*rule.Channel)
		channel = &s
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE sla_rules SET
			name = $2, description = $3, info_type = $4, priority = $5, channel = $6,
			response_time_minutes = $7, resolution_time_minutes = $8, business_hours_id = $9,
			escalation_levels = $10, active = $11, updated_at = $12
		WHERE id = $1
	`, rule.ID, rule.Name, rule.Description, rule.InfoType, rule.Priority, channel,
		rule.ResponseTimeMinutes, rule.ResolutionTimeMinutes, rule.BusinessHoursID,
		levels, rule.Active, time.Now())
	if err != nil {
		return fmt.Errorf("update sla rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSLARule removes a rule. Bound work items keep their frozen due
// dates; only future resolution stops considering the rule.
func (db *DB) DeleteSLARule(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sla_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete sla rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefaultRule promotes a rule to org default. The demotion of the
// previous default and the promotion happen in one transaction, so
// there is never a moment with two defaults or none mid-change.
func (db *DB) SetDefaultRule(ctx context.Context, orgID, ruleID uuid.UUID) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		var active bool
		err := tx.QueryRow(ctx,
			`SELECT active FROM sla_rules WHERE id = $1 AND org_id = $2 FOR UPDATE`,
			ruleID, orgID,
		).Scan(&active)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock rule: %w", err)
		}
		if !active {
			return sla.ErrRuleInactive
		}

		if _, err := tx.Exec(ctx,
			`UPDATE sla_rules SET is_default = FALSE, updated_at = NOW()
			 WHERE org_id = $1 AND is_default = TRUE AND id <> $2`,
			orgID, ruleID,
		); err != nil {
			return fmt.Errorf("clear previous default: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE sla_rules SET is_default = TRUE, updated_at = NOW() WHERE id = $1`,
			ruleID,
		); err != nil {
			return fmt.Errorf("set default rule: %w", err)
		}
		return nil
	})
}

// Business hours methods

const businessHoursColumns = `
	id, org_id, name, timezone, working_days, start_minute, end_minute,
	enabled, created_at, updated_at`

func scanBusinessHours(row rowScanner) (*models.BusinessHoursConfig, error) {
	var c models.BusinessHoursConfig
	var days []int32

	err := row.Scan(
		&c.ID, &c.OrgID, &c.Name, &c.Timezone, &days, &c.StartMinute, &c.EndMinute,
		&c.Enabled, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.WorkingDays = make([]time.Weekday, len(days))
	for i, d := range days {
		c.WorkingDays[i] = time.Weekday(d)
	}
	return &c, nil
}

// CreateBusinessHours inserts a new business hours config.
func (db *DB) CreateBusinessHours(ctx context.Context, cfg *models.BusinessHoursConfig) error {
	days := make([]int32, len(cfg.WorkingDays))
	for i, d := range cfg.WorkingDays {
		days[i] = int32(d)
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO business_hours_configs (
			id, org_id, name, timezone, working_days, start_minute, end_minute,
			enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, cfg.ID, cfg.OrgID, cfg.Name, cfg.Timezone, days, cfg.StartMinute, cfg.EndMinute,
		cfg.Enabled, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create business hours: %w", err)
	}
	return nil
}

// GetBusinessHours returns a config by ID.
func (db *DB) GetBusinessHours(ctx context.Context, id uuid.UUID) (*models.BusinessHoursConfig, error) {
	cfg, err := scanBusinessHours(db.Pool.QueryRow(ctx,
		`SELECT `+businessHoursColumns+` FROM business_hours_configs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get business hours: %w", err)
	}
	return cfg, nil
}

// ListBusinessHoursConfigs returns every config across all orgs.
func (db *DB) ListBusinessHoursConfigs(ctx context.Context) ([]models.BusinessHoursConfig, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+businessHoursColumns+` FROM business_hours_configs ORDER BY org_id, name`)
	if err != nil {
		return nil, fmt.Errorf("list business hours: %w", err)
	}
	defer rows.Close()

	var configs []models.BusinessHoursConfig
	for rows.Next() {
		c, err := scanBusinessHours(rows)
		if err != nil {
			return nil, fmt.Errorf("scan business hours: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

// ListBusinessHoursByOrg returns an org's configs.
func (db *DB) ListBusinessHoursByOrg(ctx context.Context, orgID uuid.UUID) ([]models.BusinessHoursConfig, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+businessHoursColumns+` FROM business_hours_configs WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list business hours: %w", err)
	}
	defer rows.Close()

	var configs []models.BusinessHoursConfig
	for rows.Next() {
		c, err := scanBusinessHours(rows)
		if err != nil {
			return nil, fmt.Errorf("scan business hours: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

// UpdateBusinessHours persists all mutable fields of a config.
func (db *DB) UpdateBusinessHours(ctx context.Context, cfg *models.BusinessHoursConfig) error {
	days := make([]int32, len(cfg.WorkingDays))
	for i, d := range cfg.WorkingDays {
		days[i] = int32(d)
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE business_hours_configs SET
			name = $2, timezone = $3, working_days = $4, start_minute = $5,
			end_minute = $6, enabled = $7, updated_at = $8
		WHERE id = $1
	`, cfg.ID, cfg.Name, cfg.Timezone, days, cfg.StartMinute, cfg.EndMinute, cfg.Enabled, time.Now())
	if err != nil {
		return fmt.Errorf("update business hours: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBusinessHours removes a config. Rules referencing it fall back
// to 24/7 via the ON DELETE SET NULL constraint.
func (db *DB) DeleteBusinessHours(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM business_hours_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete business hours: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
