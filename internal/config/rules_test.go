package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacJediWizard/slatrack/internal/models"
)

const seedYAML = `
org_id: 7a9f1c9e-9e05-4f6f-9b2e-2f6a8c3d1e44
business_hours:
  - name: office hours
    timezone: UTC
    working_days: [1, 2, 3, 4, 5]
    start: "09:00"
    end: "18:00"
rules:
  - name: incident high
    info_type: incident
    priority: high
    response_time: 4h
    resolution_time: 24h
    business_hours: office hours
    escalations:
      - level: 1
        after: 1h
        target: team-lead
        notify: [email]
      - level: 2
        after: 3h
        target: manager
        notify: [email, slack]
  - name: catch-all
    default: true
    response_time: 8h
    resolution_time: 72h
`

func TestParseRuleSeed(t *testing.T) {
	set, err := ParseRuleSeed([]byte(seedYAML))
	require.NoError(t, err)

	assert.Equal(t, "7a9f1c9e-9e05-4f6f-9b2e-2f6a8c3d1e44", set.OrgID.String())

	require.Len(t, set.BusinessHours, 1)
	hours := set.BusinessHours[0]
	assert.Equal(t, 9*60, hours.StartMinute)
	assert.Equal(t, 18*60, hours.EndMinute)
	assert.Equal(t, []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	}, hours.WorkingDays)

	require.Len(t, set.Rules, 2)
	rule := set.Rules[0]
	assert.Equal(t, 4*60, rule.ResponseTimeMinutes)
	assert.Equal(t, 24*60, rule.ResolutionTimeMinutes)
	require.NotNil(t, rule.BusinessHoursID)
	assert.Equal(t, hours.ID, *rule.BusinessHoursID)
	require.Len(t, rule.EscalationLevels, 2)
	assert.Equal(t, 180, rule.EscalationLevels[1].EscalateAfterMinutes)
	assert.Equal(t, []models.NotifyChannel{models.NotifyEmail, models.NotifySlack}, rule.EscalationLevels[1].NotifyChannels)

	assert.True(t, set.Rules[1].IsDefault)
}

func TestParseRuleSeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad org id", `org_id: not-a-uuid`},
		{
			"unknown business hours reference",
			`
org_id: 7a9f1c9e-9e05-4f6f-9b2e-2f6a8c3d1e44
rules:
  - name: r
    info_type: incident
    priority: high
    response_time: 1h
    resolution_time: 2h
    business_hours: nope
`,
		},
		{
			"sub-minute duration",
			`
org_id: 7a9f1c9e-9e05-4f6f-9b2e-2f6a8c3d1e44
rules:
  - name: r
    info_type: incident
    priority: high
    response_time: 90s
    resolution_time: 2h
`,
		},
		{
			"two defaults",
			`
org_id: 7a9f1c9e-9e05-4f6f-9b2e-2f6a8c3d1e44
rules:
  - name: a
    default: true
    response_time: 1h
    resolution_time: 2h
  - name: b
    default: true
    response_time: 1h
    resolution_time: 2h
`,
		},
		{
			"invalid ladder ordering",
			`
org_id: 7a9f1c9e-9e05-4f6f-9b2e-2f6a8c3d1e44
rules:
  - name: r
    info_type: incident
    priority: high
    response_time: 1h
    resolution_time: 2h
    escalations:
      - level: 2
        after: 2h
        target: a
        notify: [email]
      - level: 1
        after: 1h
        target: b
        notify: [email]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleSeed([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"09:00", 540, false},
		{"18:30", 1110, false},
		{"00:00", 0, false},
		{"25:00", 0, true},
		{"nine", 0, true},
	}
	for _, tt := range tests {
		got, err := parseClock(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
