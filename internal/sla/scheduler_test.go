package sla

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// blockingStore parks ListActiveSLARules until released.
type blockingStore struct {
	*mockStore
	entered  chan struct{}
	released chan struct{}
}

func (b *blockingStore) ListActiveSLARules(ctx context.Context) ([]models.SLARule, error) {
	close(b.entered)
	<-b.released
	return nil, nil
}

func TestScheduler_RunNowRejectsOverlap(t *testing.T) {
	store := &blockingStore{
		mockStore: newMockStore(),
		entered:   make(chan struct{}),
		released:  make(chan struct{}),
	}
	runner := NewRunner(store, &mockNotifier{}, DefaultWarningFraction, 10, zerolog.Nop())
	sched := NewScheduler(runner, time.Minute, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := sched.RunNow(context.Background())
		done <- err
	}()

	<-store.entered
	_, err := sched.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)

	close(store.released)
	require.NoError(t, <-done)
}

func TestScheduler_RunNowDelegatesToRunner(t *testing.T) {
	store := newMockStore()
	rule := ladderRule()
	store.rules = []models.SLARule{*rule}
	store.items = []models.WorkItem{openItemForOrg(rule.OrgID, time.Minute)}

	runner := NewRunner(store, &mockNotifier{}, DefaultWarningFraction, 10, zerolog.Nop())
	sched := NewScheduler(runner, time.Minute, zerolog.Nop())

	stats, err := sched.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Evaluated)
}

func TestScheduler_StartStop(t *testing.T) {
	store := newMockStore()
	runner := NewRunner(store, &mockNotifier{}, DefaultWarningFraction, 10, zerolog.Nop())
	sched := NewScheduler(runner, time.Hour, zerolog.Nop())

	require.NoError(t, sched.Start(context.Background()))
	assert.Error(t, sched.Start(context.Background()), "second start must fail")

	stopCtx := sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}
