package sla

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// weekdayHours returns a Mon-Fri 09:00-18:00 UTC config.
func weekdayHours(t *testing.T) *models.BusinessHoursConfig {
	t.Helper()
	cfg := models.NewBusinessHoursConfig(uuid.New(), "office hours")
	cfg.WorkingDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	cfg.StartMinute = 9 * 60
	cfg.EndMinute = 18 * 60
	require.NoError(t, cfg.Validate())
	return cfg
}

// 2025-01-03 is a Friday.
var friday1600 = time.Date(2025, 1, 3, 16, 0, 0, 0, time.UTC)

func TestCalendar_AlwaysOn(t *testing.T) {
	cal := AlwaysOnCalendar()

	start := time.Date(2025, 1, 4, 3, 0, 0, 0, time.UTC) // Saturday
	assert.Equal(t, start.Add(4*time.Hour), cal.AddBusinessDuration(start, 4*time.Hour))
	assert.Equal(t, 90*time.Minute, cal.ElapsedBusinessDuration(start, start.Add(90*time.Minute)))
}

func TestCalendar_DisabledConfigIsAlwaysOn(t *testing.T) {
	cfg := weekdayHours(t)
	cfg.Enabled = false
	cal := NewCalendar(cfg)

	start := time.Date(2025, 1, 4, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(48*time.Hour), cal.AddBusinessDuration(start, 48*time.Hour))
}

func TestCalendar_AddBusinessDuration(t *testing.T) {
	cal := NewCalendar(weekdayHours(t))

	tests := []struct {
		name  string
		start time.Time
		d     time.Duration
		want  time.Time
	}{
		{
			name:  "within a single window",
			start: time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC),
			d:     3 * time.Hour,
			want:  time.Date(2025, 1, 3, 13, 0, 0, 0, time.UTC),
		},
		{
			name:  "friday afternoon spills over the weekend",
			start: friday1600,
			d:     4 * time.Hour,
			want:  time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC),
		},
		{
			name:  "weekend start rolls to monday opening",
			start: time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC),
			d:     2 * time.Hour,
			want:  time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC),
		},
		{
			name:  "before opening rolls forward to window start",
			start: time.Date(2025, 1, 3, 7, 30, 0, 0, time.UTC),
			d:     time.Hour,
			want:  time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "after close rolls to next working day",
			start: time.Date(2025, 1, 2, 19, 0, 0, 0, time.UTC), // Thursday evening
			d:     time.Hour,
			want:  time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "multi day target walks several windows",
			start: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC), // Monday open
			d:     24 * time.Hour,                              // 9h Mon + 9h Tue + 6h Wed
			want:  time.Date(2025, 1, 8, 15, 0, 0, 0, time.UTC),
		},
		{
			name:  "exactly filling a window lands on next opening",
			start: time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC),
			d:     9 * time.Hour,
			want:  time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cal.AddBusinessDuration(tt.start, tt.d)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestCalendar_ElapsedBusinessDuration(t *testing.T) {
	cal := NewCalendar(weekdayHours(t))

	tests := []struct {
		name  string
		start time.Time
		now   time.Time
		want  time.Duration
	}{
		{
			name:  "same window",
			start: time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC),
			now:   time.Date(2025, 1, 3, 12, 30, 0, 0, time.UTC),
			want:  150 * time.Minute,
		},
		{
			name:  "friday into monday morning",
			start: friday1600,
			now:   time.Date(2025, 1, 6, 9, 30, 0, 0, time.UTC),
			want:  150 * time.Minute, // 2h Friday + 30m Monday
		},
		{
			name:  "weekend accrues nothing",
			start: friday1600,
			now:   time.Date(2025, 1, 5, 23, 0, 0, 0, time.UTC),
			want:  2 * time.Hour,
		},
		{
			name:  "now before start",
			start: friday1600,
			now:   friday1600.Add(-time.Hour),
			want:  0,
		},
		{
			name:  "now equals start",
			start: friday1600,
			now:   friday1600,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.ElapsedBusinessDuration(tt.start, tt.now))
		})
	}
}

func TestCalendar_RoundTrip(t *testing.T) {
	cal := NewCalendar(weekdayHours(t))

	starts := []time.Time{
		friday1600,
		time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC),  // Saturday
		time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),   // Monday open
		time.Date(2025, 1, 7, 17, 59, 0, 0, time.UTC), // just before close
	}
	durations := []time.Duration{
		15 * time.Minute,
		4 * time.Hour,
		9 * time.Hour,
		40 * time.Hour,
	}

	for _, start := range starts {
		for _, d := range durations {
			due := cal.AddBusinessDuration(start, d)
			assert.Equal(t, d, cal.ElapsedBusinessDuration(start, due),
				"start=%s d=%s due=%s", start, d, due)
		}
	}
}
