// Package streak computes consecutive-week activity streaks from dated
// activity records.
package streak

import "binamm-indexer/internal/tick"

// WeeklyStreak counts how many consecutive Monday-aligned weeks, ending
// with the week containing now, have at least one record. Weeks are
// walked backward from the upcoming Monday; a record belongs to the week
// ending at weekEnd when its date lies in the half-open window
// [weekEnd-7d, weekEnd), so a record at Monday midnight counts toward
// the week that Monday starts. The walk stops at the first empty week,
// so a user active only last week has streak 0.
func WeeklyStreak(now int64, dates []int64) int {
	if len(dates) == 0 {
		return 0
	}

	earliest := dates[0]
	for _, d := range dates {
		if d < earliest {
			earliest = d
		}
	}

	count := 0
	for weekEnd := tick.MondayOnOrBefore(now) + tick.Week; weekEnd > earliest; weekEnd -= tick.Week {
		if !anyInWindow(dates, weekEnd-tick.Week, weekEnd) {
			break
		}
		count++
	}
	return count
}

func anyInWindow(dates []int64, after, before int64) bool {
	for _, d := range dates {
		if d >= after && d < before {
			return true
		}
	}
	return false
}
