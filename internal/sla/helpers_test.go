package sla

import (
	"github.com/google/uuid"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// validTestRule returns a minimal valid rule for tests to mutate.
func validTestRule() *models.SLARule {
	r := models.NewSLARule(uuid.New(), "incident high", "incident", models.PriorityHigh)
	r.ResponseTimeMinutes = 240
	r.ResolutionTimeMinutes = 1440
	return r
}
