package sla

import (
	"time"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// NextEscalation returns the escalation level that should fire now, or
// nil. Only the single highest level whose threshold has passed is
// returned: when a pass discovers several overdue levels at once (long
// scheduler gap, backfilled items) the intermediate rungs are skipped
// rather than replayed. Levels at or below alreadyFired never fire again.
func NextEscalation(rule *models.SLARule, elapsed time.Duration, alreadyFired int) *models.EscalationLevel {
	var due *models.EscalationLevel
	for i := range rule.EscalationLevels {
		lvl := &rule.EscalationLevels[i]
		if lvl.Level <= alreadyFired {
			continue
		}
		if elapsed >= lvl.EscalateAfter() {
			due = lvl
		}
	}
	return due
}
