package sla

import (
	"time"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// maxDayWalk bounds the calendar day walk so a misconfigured window can
// never spin forever. Ten years of calendar days is far beyond any sane
// SLA target.
const maxDayWalk = 3660

// Calendar computes deadlines and elapsed time in business time. A nil
// or disabled config degrades to plain 24/7 wall clock, so callers never
// branch on whether business hours apply.
type Calendar struct {
	cfg *models.BusinessHoursConfig
	loc *time.Location
}

// NewCalendar builds a calendar from a business hours config. The config
// must have passed Validate.
func NewCalendar(cfg *models.BusinessHoursConfig) *Calendar {
	c := &Calendar{cfg: cfg, loc: time.UTC}
	if cfg != nil {
		c.loc = cfg.Location()
	}
	return c
}

// AlwaysOnCalendar returns a 24/7 wall clock calendar.
func AlwaysOnCalendar() *Calendar {
	return &Calendar{loc: time.UTC}
}

// alwaysOn reports whether business time equals wall time.
func (c *Calendar) alwaysOn() bool {
	return c.cfg == nil || !c.cfg.Enabled
}

// windowStart returns the window opening instant on t's calendar day.
func (c *Calendar) windowStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, c.cfg.StartMinute, 0, 0, c.loc)
}

// windowEnd returns the window closing instant on t's calendar day.
func (c *Calendar) windowEnd(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, c.cfg.EndMinute, 0, 0, c.loc)
}

// nextDay returns midnight of the calendar day after t.
func (c *Calendar) nextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.loc)
}

// nextWorkingInstant rounds t forward to the nearest instant inside a
// working window. An instant already inside a window is returned as is.
// The window end itself is outside the window.
func (c *Calendar) nextWorkingInstant(t time.Time) time.Time {
	t = t.In(c.loc)
	for i := 0; i < maxDayWalk; i++ {
		if c.cfg.IsWorkingDay(t.Weekday()) {
			start, end := c.windowStart(t), c.windowEnd(t)
			if t.Before(start) {
				return start
			}
			if t.Before(end) {
				return t
			}
		}
		t = c.nextDay(t)
	}
	return t
}

// AddBusinessDuration returns the instant at which d of business time
// has accrued after start. A start outside working hours rolls forward
// to the next window opening before the clock starts.
func (c *Calendar) AddBusinessDuration(start time.Time, d time.Duration) time.Time {
	if c.alwaysOn() {
		return start.Add(d)
	}
	if d < 0 {
		d = 0
	}

	cur := c.nextWorkingInstant(start)
	for i := 0; i < maxDayWalk; i++ {
		available := c.windowEnd(cur).Sub(cur)
		if d < available {
			return cur.Add(d)
		}
		d -= available
		cur = c.nextWorkingInstant(c.nextDay(cur))
	}
	return cur.Add(d)
}

// ElapsedBusinessDuration returns how much business time passed between
// start and now. Returns zero when now is not after start.
func (c *Calendar) ElapsedBusinessDuration(start, now time.Time) time.Duration {
	if !now.After(start) {
		return 0
	}
	if c.alwaysOn() {
		return now.Sub(start)
	}

	now = now.In(c.loc)
	cur := c.nextWorkingInstant(start)
	var total time.Duration
	for i := 0; i < maxDayWalk && cur.Before(now); i++ {
		end := c.windowEnd(cur)
		if end.After(now) {
			end = now
		}
		total += end.Sub(cur)
		cur = c.nextWorkingInstant(c.nextDay(cur))
	}
	return total
}
