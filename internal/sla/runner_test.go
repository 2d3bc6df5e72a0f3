package sla

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// mockStore is an in-memory WorkItemStore.
type mockStore struct {
	rules   []models.SLARule
	configs []models.BusinessHoursConfig
	items   []models.WorkItem
	states  map[uuid.UUID]*models.SLAState

	stateErr   map[uuid.UUID]error
	casErr     map[uuid.UUID]error
	listCalls  int
	casCalls   int
	swapped    []uuid.UUID
	cancelNext context.CancelFunc
}

func newMockStore() *mockStore {
	return &mockStore{
		states:   make(map[uuid.UUID]*models.SLAState),
		stateErr: make(map[uuid.UUID]error),
		casErr:   make(map[uuid.UUID]error),
	}
}

func (m *mockStore) ListActiveSLARules(ctx context.Context) ([]models.SLARule, error) {
	return m.rules, nil
}

func (m *mockStore) ListBusinessHoursConfigs(ctx context.Context) ([]models.BusinessHoursConfig, error) {
	return m.configs, nil
}

func (m *mockStore) ListOpenWorkItems(ctx context.Context, cursor uuid.UUID, limit int) ([]models.WorkItem, error) {
	m.listCalls++
	if m.cancelNext != nil {
		m.cancelNext()
	}
	sorted := make([]models.WorkItem, len(m.items))
	copy(sorted, m.items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	var out []models.WorkItem
	for _, it := range sorted {
		if cursor != uuid.Nil && it.ID.String() <= cursor.String() {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockStore) GetSLAState(ctx context.Context, id uuid.UUID) (*models.SLAState, error) {
	if err := m.stateErr[id]; err != nil {
		return nil, err
	}
	s, ok := m.states[id]
	if !ok {
		return nil, ErrStateNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockStore) CompareAndSwapSLAState(ctx context.Context, state *models.SLAState, expectedVersion int64) error {
	m.casCalls++
	if err := m.casErr[state.WorkItemID]; err != nil {
		return err
	}
	existing, ok := m.states[state.WorkItemID]
	if ok && existing.Version != expectedVersion {
		return ErrConcurrentUpdate
	}
	cp := *state
	cp.Version = expectedVersion + 1
	m.states[state.WorkItemID] = &cp
	m.swapped = append(m.swapped, state.WorkItemID)
	return nil
}

// mockNotifier records notices and can fail on demand.
type mockNotifier struct {
	notices []EscalationNotice
	err     error
}

func (m *mockNotifier) Notify(ctx context.Context, n EscalationNotice) error {
	if m.err != nil {
		return m.err
	}
	m.notices = append(m.notices, n)
	return nil
}

func runnerFixture(t *testing.T) (*mockStore, *mockNotifier, *Runner) {
	t.Helper()
	store := newMockStore()
	rule := ladderRule()
	store.rules = []models.SLARule{*rule}

	notifier := &mockNotifier{}
	runner := NewRunner(store, notifier, DefaultWarningFraction, 10, zerolog.Nop())
	return store, notifier, runner
}

func openItemForOrg(orgID uuid.UUID, age time.Duration) models.WorkItem {
	item := newOpenItem(time.Now().Add(-age))
	item.OrgID = orgID
	return *item
}

func TestRunner_RunOnce_PersistsAndEscalates(t *testing.T) {
	store, notifier, runner := runnerFixture(t)
	orgID := store.rules[0].OrgID
	// Two hours old: past the level 1 threshold on a 24/7 rule.
	item := openItemForOrg(orgID, 2*time.Hour)
	store.items = []models.WorkItem{item}

	stats, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 1, stats.Persisted)
	assert.Equal(t, 1, stats.Escalations)
	assert.Zero(t, stats.Errors)

	state := store.states[item.ID]
	require.NotNil(t, state)
	assert.Equal(t, int64(1), state.Version)
	assert.Equal(t, 1, state.HighestEscalationFired)

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, item.ID, notifier.notices[0].Item.ID)
	assert.Equal(t, "team-lead", notifier.notices[0].Level.Target)
}

func TestRunner_ConflictSkipsEscalation(t *testing.T) {
	store, notifier, runner := runnerFixture(t)
	orgID := store.rules[0].OrgID
	item := openItemForOrg(orgID, 2*time.Hour)
	store.items = []models.WorkItem{item}
	store.casErr[item.ID] = ErrConcurrentUpdate

	stats, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Conflicts)
	assert.Zero(t, stats.Persisted)
	assert.Empty(t, notifier.notices, "escalation must not fire without a durable state write")
}

func TestRunner_NotifierFailureKeepsState(t *testing.T) {
	store, notifier, runner := runnerFixture(t)
	notifier.err = errors.New("smtp down")
	orgID := store.rules[0].OrgID
	item := openItemForOrg(orgID, 2*time.Hour)
	store.items = []models.WorkItem{item}

	stats, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Persisted)
	assert.Equal(t, 1, stats.Errors)
	assert.Zero(t, stats.Escalations)
	// State still records the fired level; delivery is at-least-once
	// from here on, not transactional.
	assert.Equal(t, 1, store.states[item.ID].HighestEscalationFired)
}

func TestRunner_PerItemIsolation(t *testing.T) {
	store, _, runner := runnerFixture(t)
	orgID := store.rules[0].OrgID
	bad := openItemForOrg(orgID, time.Minute)
	good := openItemForOrg(orgID, time.Minute)
	store.items = []models.WorkItem{bad, good}
	store.stateErr[bad.ID] = errors.New("connection reset")

	stats, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Evaluated)
	assert.NotNil(t, store.states[good.ID])
	assert.Nil(t, store.states[bad.ID])
}

func TestRunner_OrgWithoutRulesIsSkipped(t *testing.T) {
	store, _, runner := runnerFixture(t)
	item := openItemForOrg(uuid.New(), time.Minute) // org with no rules
	store.items = []models.WorkItem{item}

	stats, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Evaluated)
}

func TestRunner_Pagination(t *testing.T) {
	store, _, runner := runnerFixture(t)
	runner.pageSize = 2
	orgID := store.rules[0].OrgID
	for i := 0; i < 5; i++ {
		store.items = append(store.items, openItemForOrg(orgID, time.Minute))
	}

	stats, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Evaluated)
	assert.GreaterOrEqual(t, store.listCalls, 3)
}

func TestRunner_CancellationBetweenItems(t *testing.T) {
	store, _, runner := runnerFixture(t)
	orgID := store.rules[0].OrgID
	for i := 0; i < 3; i++ {
		store.items = append(store.items, openItemForOrg(orgID, time.Minute))
	}

	ctx, cancel := context.WithCancel(context.Background())
	store.cancelNext = cancel

	_, err := runner.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.casCalls)
}
