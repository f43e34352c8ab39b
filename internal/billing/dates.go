package billing

import "time"

const monthLayout = "2006-01"

// Date strips the clock from t, keeping the calendar day in t's location,
// and returns it as midnight UTC. Every billing date is compared this way.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// dayOf builds the date for day in the given month, clamping day to the
// month length.
func dayOf(year int, month time.Month, day int) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// firstOfMonth returns the first day of the month shifted by n months.
func firstOfMonth(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves t by n calendar months keeping the day of month, clamped to
// the length of the target month (Jan 31 + 1 = Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	target := firstOfMonth(Date(t), n)
	return dayOf(target.Year(), target.Month(), t.Day())
}

func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}

func ParseMonth(key string) (time.Time, error) {
	return time.ParseInLocation(monthLayout, key, time.UTC)
}
