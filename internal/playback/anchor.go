package playback

import "time"

// ReferenceWeekStart is the Monday that every anchored instant is projected onto.
// It must stay fixed for the life of the process.
var ReferenceWeekStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Anchor rewrites ts onto the reference week: the date becomes
// ReferenceWeekStart + dayOfWeek days, the wall-clock time of day (including
// sub-second precision) is kept and the zone is dropped. dayOfWeek is clamped to [0,6].
func Anchor(ts time.Time, dayOfWeek int) time.Time {
	if dayOfWeek < 0 {
		dayOfWeek = 0
	}
	if dayOfWeek > 6 {
		dayOfWeek = 6
	}
	y, m, d := ReferenceWeekStart.AddDate(0, 0, dayOfWeek).Date()
	return time.Date(y, m, d, ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC)
}

// WeekdayIndex returns t's weekday with Monday=0 ... Sunday=6.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// AnchorQuery anchors a query instant. With no day hint the instant's own weekday is used.
func AnchorQuery(at time.Time, dayOfWeek *int) time.Time {
	if dayOfWeek != nil {
		return Anchor(at, *dayOfWeek)
	}
	return Anchor(at, WeekdayIndex(at))
}

// NextOccurrence maps an anchored instant back to the real calendar: the first
// instant at or after now (in now's location) sharing its weekday and time of day.
func NextOccurrence(anchored, now time.Time) time.Time {
	dow := WeekdayIndex(anchored)
	y, m, d := now.Date()
	candidate := time.Date(y, m, d, anchored.Hour(), anchored.Minute(), anchored.Second(), anchored.Nanosecond(), now.Location())
	candidate = candidate.AddDate(0, 0, (dow-WeekdayIndex(now)+7)%7)
	if candidate.Before(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
