package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/slatrack/internal/models"
)

func ladderRule() *models.SLARule {
	r := validTestRule()
	r.EscalationLevels = []models.EscalationLevel{
		{Level: 1, EscalateAfterMinutes: 60, Target: "team-lead", NotifyChannels: []models.NotifyChannel{models.NotifyEmail}},
		{Level: 2, EscalateAfterMinutes: 180, Target: "manager", NotifyChannels: []models.NotifyChannel{models.NotifyEmail}},
		{Level: 3, EscalateAfterMinutes: 360, Target: "director", NotifyChannels: []models.NotifyChannel{models.NotifySlack}},
	}
	return r
}

func TestNextEscalation(t *testing.T) {
	rule := ladderRule()

	tests := []struct {
		name         string
		elapsed      time.Duration
		alreadyFired int
		wantLevel    int // 0 means nil
	}{
		{"nothing due yet", 30 * time.Minute, 0, 0},
		{"first level at threshold", 60 * time.Minute, 0, 1},
		{"first level past threshold", 90 * time.Minute, 0, 1},
		{"skip to highest overdue level", 7 * time.Hour, 0, 3},
		{"middle level after first fired", 4 * time.Hour, 1, 2},
		{"already fired level stays quiet", 90 * time.Minute, 1, 0},
		{"top level fired means silence", 24 * time.Hour, 3, 0},
		{"skip level after partial firing", 7 * time.Hour, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextEscalation(rule, tt.elapsed, tt.alreadyFired)
			if tt.wantLevel == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantLevel, got.Level)
		})
	}
}

func TestNextEscalation_NoLadder(t *testing.T) {
	rule := validTestRule()
	assert.Nil(t, NextEscalation(rule, 100*time.Hour, 0))
}
