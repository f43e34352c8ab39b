package billing

import (
	"fmt"
	"time"

	"finance/internal/models"
)

// NextOccurrence advances from by one step of the template frequency.
func NextOccurrence(frequency models.Frequency, value int, from time.Time) (time.Time, error) {
	if value < 1 {
		value = 1
	}
	from = Date(from)
	switch frequency {
	case models.FrequencyWeekly:
		return from.AddDate(0, 0, 7*value), nil
	case models.FrequencyMonthly:
		return AddMonths(from, value), nil
	case models.FrequencyYearly:
		return AddMonths(from, 12*value), nil
	case models.FrequencyDays:
		return from.AddDate(0, 0, value), nil
	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", frequency)
	}
}

// IsDue selects templates for a sweep run on today.
func IsDue(r models.RecurringTransaction, today time.Time) bool {
	today = Date(today)
	if r.Status != models.RecurringActive {
		return false
	}
	if Date(r.NextOccurrence).After(today) {
		return false
	}
	return r.EndDate == nil || !Date(*r.EndDate).Before(today)
}

// ShouldGenerate is the per-template dedup guard evaluated under lock.
func ShouldGenerate(r models.RecurringTransaction, today time.Time) bool {
	today = Date(today)
	if r.LastGeneratedAt != nil && Date(*r.LastGeneratedAt).Equal(today) {
		return false
	}
	next := Date(r.NextOccurrence)
	if next.After(today) {
		return false
	}
	if r.EndDate != nil && next.After(Date(*r.EndDate)) {
		return false
	}
	return true
}
