package service

import "time"

// Period keywords accepted by the dashboard.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodAll     = "all"
)

// Window bounds a report. A nil Since means no lower bound.
type Window struct {
	Period string
	Since  *time.Time
}

// WindowFor maps a period keyword to a window ending at now. Daily starts at
// midnight in now's location, monthly goes back one calendar month and any
// other keyword is unbounded.
func WindowFor(period string, now time.Time) Window {
	var since time.Time
	switch period {
	case PeriodDaily:
		y, m, d := now.Date()
		since = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case PeriodWeekly:
		since = now.AddDate(0, 0, -7)
	case PeriodMonthly:
		since = now.AddDate(0, -1, 0)
	default:
		return Window{Period: PeriodAll}
	}
	return Window{Period: period, Since: &since}
}
