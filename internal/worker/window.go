package worker

import (
	"time"

	"github.com/noahxzhu/redmine-notify/internal/model"
)

// InDailyWindow reports whether t falls in the once-a-day digest window:
// the hour matches and the minute lies in (minute, minute+interval].
// The window is as wide as one loop interval so exactly one tick lands in it.
func InDailyWindow(t time.Time, hour, minute, intervalMinutes int) bool {
	m := t.Minute()
	return t.Hour() == hour && minute < m && m <= minute+intervalMinutes
}

// FilterRecent keeps the issues updated strictly after now minus days.
func FilterRecent(issues []model.Issue, now time.Time, days int) []model.Issue {
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	recent := make([]model.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.UpdatedAt.After(cutoff) {
			recent = append(recent, issue)
		}
	}
	return recent
}

// CanonicalWatermark is the token stored for an issue's update time.
// Comparison against the stored token is plain string equality.
func CanonicalWatermark(issue model.Issue, loc *time.Location) string {
	t := issue.UpdatedAt
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(model.WatermarkLayout)
}
