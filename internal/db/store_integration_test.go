//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MacJediWizard/slatrack/internal/models"
	"github.com/MacJediWizard/slatrack/internal/sla"
)

var testDB *DB

func TestMain(m *testing.M) {
	if !dockerAvailable() {
		fmt.Println("Docker is not available, skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("slatrack_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to get connection string: %v", err)
	}

	logger := zerolog.New(zerolog.NewConsoleWriter())
	cfg := DefaultConfig(connStr)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	testDB, err = New(ctx, cfg, logger)
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := testDB.Migrate(ctx); err != nil {
		testDB.Close()
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to run migrations: %v", err)
	}

	code := m.Run()

	testDB.Close()
	pgContainer.Terminate(ctx)

	os.Exit(code)
}

// dockerAvailable returns true if a Docker daemon is reachable.
func dockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

// setupTestDB returns the shared test database after cleaning all tables.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	_, err := testDB.Pool.Exec(ctx, `
		DO $$ DECLARE r RECORD;
		BEGIN
			FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename != 'schema_migrations') LOOP
				EXECUTE 'TRUNCATE TABLE ' || quote_ident(r.tablename) || ' CASCADE';
			END LOOP;
		END $$;
	`)
	require.NoError(t, err)
	return testDB
}

func createTestRule(t *testing.T, db *DB, orgID uuid.UUID, name string) *models.SLARule {
	t.Helper()
	rule := models.NewSLARule(orgID, name, "incident", models.PriorityHigh)
	rule.ResponseTimeMinutes = 240
	rule.ResolutionTimeMinutes = 1440
	rule.EscalationLevels = []models.EscalationLevel{
		{Level: 1, EscalateAfterMinutes: 60, Target: "team-lead", NotifyChannels: []models.NotifyChannel{models.NotifyEmail}},
	}
	require.NoError(t, db.CreateSLARule(context.Background(), rule))
	return rule
}

func createTestItem(t *testing.T, db *DB, orgID uuid.UUID) *models.WorkItem {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	item := &models.WorkItem{
		ID:        uuid.New(),
		OrgID:     orgID,
		Subject:   "checkout is down",
		InfoType:  "incident",
		Priority:  models.PriorityHigh,
		Channel:   models.ChannelEmail,
		Status:    models.WorkItemOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.UpsertWorkItem(context.Background(), item))
	return item
}

func TestSLARuleCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()

	rule := createTestRule(t, db, orgID, "standard incident")

	got, err := db.GetSLARule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, rule.ResponseTimeMinutes, got.ResponseTimeMinutes)
	require.Len(t, got.EscalationLevels, 1)
	assert.Equal(t, "team-lead", got.EscalationLevels[0].Target)

	got.Name = "renamed"
	got.ResponseTimeMinutes = 120
	require.NoError(t, db.UpdateSLARule(ctx, got))

	got, err = db.GetSLARule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 120, got.ResponseTimeMinutes)

	rules, err := db.ListSLARules(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	require.NoError(t, db.DeleteSLARule(ctx, rule.ID))
	_, err = db.GetSLARule(ctx, rule.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetDefaultRule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()

	first := createTestRule(t, db, orgID, "first")
	second := createTestRule(t, db, orgID, "second")

	require.NoError(t, db.SetDefaultRule(ctx, orgID, first.ID))
	require.NoError(t, db.SetDefaultRule(ctx, orgID, second.ID))

	rules, err := db.ListSLARules(ctx, orgID)
	require.NoError(t, err)

	defaults := 0
	for _, r := range rules {
		if r.IsDefault {
			defaults++
			assert.Equal(t, second.ID, r.ID)
		}
	}
	assert.Equal(t, 1, defaults, "exactly one default after promotion")
}

func TestSetDefaultRule_InactiveRejected(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()

	rule := createTestRule(t, db, orgID, "inactive")
	rule.Active = false
	require.NoError(t, db.UpdateSLARule(ctx, rule))

	err := db.SetDefaultRule(ctx, orgID, rule.ID)
	assert.ErrorIs(t, err, sla.ErrRuleInactive)
}

func TestBusinessHoursCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()

	cfg := models.NewBusinessHoursConfig(orgID, "office hours")
	cfg.WorkingDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	cfg.StartMinute = 9 * 60
	cfg.EndMinute = 18 * 60
	require.NoError(t, db.CreateBusinessHours(ctx, cfg))

	got, err := db.GetBusinessHours(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, cfg.WorkingDays, got.WorkingDays)
	assert.Equal(t, 9*60, got.StartMinute)

	got.EndMinute = 17 * 60
	require.NoError(t, db.UpdateBusinessHours(ctx, got))

	configs, err := db.ListBusinessHoursByOrg(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, 17*60, configs[0].EndMinute)
}

func TestWorkItemLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()

	item := createTestItem(t, db, orgID)

	// Ingest is idempotent.
	require.NoError(t, db.UpsertWorkItem(ctx, item))

	responded := time.Now().UTC()
	item.Status = models.WorkItemInProgress
	item.FirstRespondedAt = &responded
	require.NoError(t, db.UpdateWorkItem(ctx, item))

	got, err := db.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemInProgress, got.Status)
	require.NotNil(t, got.FirstRespondedAt)
}

func TestListOpenWorkItems_Pagination(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()

	for i := 0; i < 5; i++ {
		createTestItem(t, db, orgID)
	}
	closed := createTestItem(t, db, orgID)
	closed.Status = models.WorkItemClosed
	require.NoError(t, db.UpdateWorkItem(ctx, closed))

	var seen []uuid.UUID
	cursor := uuid.Nil
	for {
		page, err := db.ListOpenWorkItems(ctx, cursor, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, it := range page {
			seen = append(seen, it.ID)
		}
		cursor = page[len(page)-1].ID
		if len(page) < 2 {
			break
		}
	}
	assert.Len(t, seen, 5, "terminal items excluded from open listing")
}

func TestCompareAndSwapSLAState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()
	item := createTestItem(t, db, orgID)

	_, err := db.GetSLAState(ctx, item.ID)
	assert.ErrorIs(t, err, sla.ErrStateNotFound)

	state := models.NewSLAState(item.ID, orgID)
	state.CurrentStatus = models.SLAOnTrack

	// First write inserts at version 1.
	require.NoError(t, db.CompareAndSwapSLAState(ctx, state, 0))
	assert.Equal(t, int64(1), state.Version)

	// A second insert attempt loses.
	fresh := models.NewSLAState(item.ID, orgID)
	err = db.CompareAndSwapSLAState(ctx, fresh, 0)
	assert.ErrorIs(t, err, sla.ErrConcurrentUpdate)

	// Conditional update succeeds on the right version.
	state.CurrentStatus = models.SLAAtRisk
	require.NoError(t, db.CompareAndSwapSLAState(ctx, state, 1))
	assert.Equal(t, int64(2), state.Version)

	// Stale version loses.
	state.CurrentStatus = models.SLABreached
	err = db.CompareAndSwapSLAState(ctx, state, 1)
	assert.ErrorIs(t, err, sla.ErrConcurrentUpdate)

	got, err := db.GetSLAState(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SLAAtRisk, got.CurrentStatus)
	assert.Equal(t, int64(2), got.Version)
}

func TestComplianceSummary(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()

	statuses := []models.SLAStatus{models.SLAOnTrack, models.SLAOnTrack, models.SLAAtRisk, models.SLABreached}
	for _, status := range statuses {
		item := createTestItem(t, db, orgID)
		state := models.NewSLAState(item.ID, orgID)
		state.CurrentStatus = status
		if status == models.SLABreached {
			state.HighestEscalationFired = 2
		}
		require.NoError(t, db.CompareAndSwapSLAState(ctx, state, 0))
	}
	createTestItem(t, db, orgID) // unevaluated

	summary, err := db.GetComplianceSummary(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalItems)
	assert.Equal(t, 2, summary.OnTrack)
	assert.Equal(t, 1, summary.AtRisk)
	assert.Equal(t, 1, summary.Breached)
	assert.Equal(t, 1, summary.Unevaluated)
	assert.Equal(t, 1, summary.Escalated)
	assert.InDelta(t, 0.75, summary.ComplianceRate, 0.001)
}

func TestNotificationDeliveryLog(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()
	item := createTestItem(t, db, orgID)

	d := models.NewNotificationDelivery(orgID, item.ID, 1, "team-lead", models.NotifyEmail)
	require.NoError(t, db.RecordNotificationDelivery(ctx, d))

	d.MarkDelivered(2)
	require.NoError(t, db.RecordNotificationDelivery(ctx, d))

	log, err := db.ListNotificationDeliveries(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.DeliveryDelivered, log[0].Status)
	assert.Equal(t, 2, log[0].Attempts)
}

func TestRunnerAgainstPostgres(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	orgID := uuid.New()

	rule := createTestRule(t, db, orgID, "standard incident")
	require.NoError(t, db.SetDefaultRule(ctx, orgID, rule.ID))

	item := createTestItem(t, db, orgID)
	// Age the item past the level 1 threshold.
	_, err := db.Pool.Exec(ctx,
		`UPDATE work_items SET created_at = NOW() - INTERVAL '2 hours' WHERE id = $1`, item.ID)
	require.NoError(t, err)

	runner := sla.NewRunner(db, noopNotifier{}, sla.DefaultWarningFraction, 50, zerolog.Nop())
	stats, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 1, stats.Persisted)
	assert.Equal(t, 1, stats.Escalations)

	state, err := db.GetSLAState(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, state.HighestEscalationFired)
	assert.Equal(t, int64(1), state.Version)
}

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, n sla.EscalationNotice) error { return nil }
