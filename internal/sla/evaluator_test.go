package sla

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/slatrack/internal/models"
)

type evalFixture struct {
	rule      *models.SLARule
	evaluator *Evaluator
}

// newEvalFixture wires an evaluator over one rule with a 4h response /
// 24h resolution target, a three-rung ladder, and Mon-Fri 09:00-18:00
// business hours.
func newEvalFixture(t *testing.T) *evalFixture {
	t.Helper()
	cfg := weekdayHours(t)

	rule := ladderRule()
	rule.ResponseTimeMinutes = 4 * 60
	rule.ResolutionTimeMinutes = 24 * 60
	rule.BusinessHoursID = &cfg.ID

	catalog := NewCatalog([]models.SLARule{*rule})
	deadlines := NewDeadlineCalculator([]models.BusinessHoursConfig{*cfg}, zerolog.Nop())
	return &evalFixture{
		rule:      rule,
		evaluator: NewEvaluator(catalog, deadlines, DefaultWarningFraction, zerolog.Nop()),
	}
}

func newOpenItem(createdAt time.Time) *models.WorkItem {
	return &models.WorkItem{
		ID:        uuid.New(),
		OrgID:     uuid.New(),
		Subject:   "checkout is down",
		InfoType:  "incident",
		Priority:  models.PriorityHigh,
		Channel:   models.ChannelEmail,
		Status:    models.WorkItemOpen,
		CreatedAt: createdAt,
	}
}

// persistCmd extracts the single PersistState command.
func persistCmd(t *testing.T, cmds []Command) PersistState {
	t.Helper()
	for _, c := range cmds {
		if p, ok := c.(PersistState); ok {
			return p
		}
	}
	t.Fatal("no PersistState command emitted")
	return PersistState{}
}

func escalateCmds(cmds []Command) []Escalate {
	var out []Escalate
	for _, c := range cmds {
		if e, ok := c.(Escalate); ok {
			out = append(out, e)
		}
	}
	return out
}

func TestEvaluator_FirstEvaluationBindsRule(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)

	next, cmds, err := f.evaluator.Evaluate(item, nil, friday1600.Add(10*time.Minute))
	require.NoError(t, err)

	require.NotNil(t, next.RuleID)
	assert.Equal(t, f.rule.ID, *next.RuleID)
	require.NotNil(t, next.ResponseDueAt)
	assert.True(t, next.ResponseDueAt.Equal(time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.SLAOnTrack, next.CurrentStatus)

	p := persistCmd(t, cmds)
	assert.Equal(t, int64(0), p.ExpectedVersion)
	assert.Empty(t, escalateCmds(cmds))
}

func TestEvaluator_TerminalItemIsFrozen(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)
	item.Status = models.WorkItemResolved

	state := models.NewSLAState(item.ID, item.OrgID)
	state.CurrentStatus = models.SLAAtRisk
	state.Version = 7

	next, cmds, err := f.evaluator.Evaluate(item, state, time.Now().Add(1000*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, cmds)
	assert.Equal(t, state, next)
	assert.Equal(t, models.SLAAtRisk, next.CurrentStatus)
}

func TestEvaluator_NoApplicableRule(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)
	item.InfoType = "billing-question"

	_, _, err := f.evaluator.Evaluate(item, nil, friday1600.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNoApplicableRule)
}

// Friday 16:00 creation, 4h response target against Mon-Fri 09:00-18:00:
// two business hours accrue Friday, the response falls due Monday 11:00.
func TestEvaluator_BusinessHoursStatusProgression(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)

	tests := []struct {
		name string
		now  time.Time
		want models.SLAStatus
	}{
		{
			// Elapsed 2h30m, 1h30m of 4h remaining: 37.5% > 25%.
			name: "monday 09:30 still on track",
			now:  time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC),
			want: models.SLAOnTrack,
		},
		{
			// 45m of 4h remaining: under the 25% warning window.
			name: "monday 10:15 at risk",
			now:  time.Date(2025, 1, 6, 10, 15, 0, 0, time.UTC),
			want: models.SLAAtRisk,
		},
		{
			name: "monday 11:00 breached",
			now:  time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC),
			want: models.SLABreached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _, err := f.evaluator.Evaluate(item, nil, tt.now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, next.CurrentStatus)
		})
	}
}

func TestEvaluator_StatusNeverMovesBackward(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)

	// Breach it, then respond immediately afterwards.
	breachedAt := time.Date(2025, 1, 6, 11, 30, 0, 0, time.UTC)
	state, _, err := f.evaluator.Evaluate(item, nil, breachedAt)
	require.NoError(t, err)
	require.Equal(t, models.SLABreached, state.CurrentStatus)

	responded := breachedAt.Add(time.Minute)
	item.FirstRespondedAt = &responded

	next, _, err := f.evaluator.Evaluate(item, state, responded.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.SLABreached, next.CurrentStatus)
}

func TestEvaluator_RespondedRetiresResponseLeg(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)
	responded := friday1600.Add(30 * time.Minute)
	item.FirstRespondedAt = &responded

	// Well past the response due date but far from the resolution one.
	next, _, err := f.evaluator.Evaluate(item, nil, time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, models.SLAOnTrack, next.CurrentStatus)
	assert.Equal(t, &responded, next.RespondedAt)
}

func TestEvaluator_LateResponseIsBreach(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)

	// Bind due dates first while unresponded.
	state, _, err := f.evaluator.Evaluate(item, nil, friday1600.Add(time.Minute))
	require.NoError(t, err)

	// Response arrives after Monday 11:00, between passes.
	late := time.Date(2025, 1, 6, 11, 5, 0, 0, time.UTC)
	item.FirstRespondedAt = &late

	next, _, err := f.evaluator.Evaluate(item, state, late.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.SLABreached, next.CurrentStatus)
}

func TestEvaluator_EscalationFiresOncePerLevel(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)

	// 90 business minutes in: past the level 1 threshold of 60m.
	now := time.Date(2025, 1, 3, 17, 30, 0, 0, time.UTC)
	state, cmds, err := f.evaluator.Evaluate(item, nil, now)
	require.NoError(t, err)

	escs := escalateCmds(cmds)
	require.Len(t, escs, 1)
	assert.Equal(t, 1, escs[0].Level.Level)
	assert.Equal(t, "team-lead", escs[0].Level.Target)
	assert.Equal(t, 1, state.HighestEscalationFired)
	assert.Equal(t, "team-lead", state.EscalatedTo)
	require.NotNil(t, state.EscalatedAt)

	// Same elapsed window on the next pass: nothing new fires.
	_, cmds, err = f.evaluator.Evaluate(item, state, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, escalateCmds(cmds))
}

func TestEvaluator_SkipLevelSupersession(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)

	// 7 business hours in: levels 1 (1h), 2 (3h) and 3 (6h) are all
	// overdue. Only the highest fires.
	now := time.Date(2025, 1, 6, 14, 0, 0, 0, time.UTC)
	state, cmds, err := f.evaluator.Evaluate(item, nil, now)
	require.NoError(t, err)

	escs := escalateCmds(cmds)
	require.Len(t, escs, 1)
	assert.Equal(t, 3, escs[0].Level.Level)
	assert.Equal(t, 3, state.HighestEscalationFired)
	assert.Equal(t, "director", state.EscalatedTo)
}

func TestEvaluator_PersistCarriesExpectedVersion(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)

	state := models.NewSLAState(item.ID, item.OrgID)
	ruleID := f.rule.ID
	due1 := time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)
	due2 := time.Date(2025, 1, 8, 13, 0, 0, 0, time.UTC)
	state.RuleID = &ruleID
	state.ResponseDueAt = &due1
	state.ResolutionDueAt = &due2
	state.CurrentStatus = models.SLAOnTrack
	state.Version = 4

	_, cmds, err := f.evaluator.Evaluate(item, state, friday1600.Add(time.Hour))
	require.NoError(t, err)

	p := persistCmd(t, cmds)
	assert.Equal(t, int64(4), p.ExpectedVersion)
	// The original state is untouched.
	assert.Equal(t, int64(4), state.Version)
}

func TestEvaluator_VanishedRuleStillDetectsBreach(t *testing.T) {
	f := newEvalFixture(t)
	item := newOpenItem(friday1600)

	gone := uuid.New()
	due := time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)
	state := models.NewSLAState(item.ID, item.OrgID)
	state.RuleID = &gone
	state.ResponseDueAt = &due
	state.CurrentStatus = models.SLAOnTrack

	next, cmds, err := f.evaluator.Evaluate(item, state, due.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.SLABreached, next.CurrentStatus)
	assert.Empty(t, escalateCmds(cmds))
	// The original binding survives even though the rule is gone.
	assert.Equal(t, &gone, next.RuleID)
}
