package billing

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidCycleDay = errors.New("cycle day must be between 1 and 31")

// Cycle is the billing window of one invoice.
type Cycle struct {
	ReferenceMonth string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	ClosingDate    time.Time
	DueDate        time.Time
}

func ValidateCycleDays(closingDay, dueDay int) error {
	if closingDay < 1 || closingDay > 31 || dueDay < 1 || dueDay > 31 {
		return ErrInvalidCycleDay
	}
	return nil
}

// ComputeCycle finds the cycle a purchase made on purchaseDate belongs to.
// The closing day is inclusive. The reference month is the month of the due
// date, not of the purchase.
func ComputeCycle(closingDay, dueDay int, purchaseDate time.Time) Cycle {
	date := Date(purchaseDate)
	competence := firstOfMonth(date, 0)
	if date.Day() > closingDay {
		competence = firstOfMonth(date, 1)
	}
	return cycleFor(closingDay, dueDay, competence)
}

// ComputeCycleForReferenceMonth rebuilds the cycle dates of the invoice keyed
// by referenceMonth (YYYY-MM), for invoices created ahead of any purchase or
// whose card configuration changed.
func ComputeCycleForReferenceMonth(closingDay, dueDay int, referenceMonth string) (Cycle, error) {
	dueMonth, err := ParseMonth(referenceMonth)
	if err != nil {
		return Cycle{}, fmt.Errorf("invalid reference month %q: %w", referenceMonth, err)
	}
	competence := dueMonth
	if dueDay <= closingDay {
		competence = firstOfMonth(dueMonth, -1)
	}
	return cycleFor(closingDay, dueDay, competence), nil
}

func cycleFor(closingDay, dueDay int, competence time.Time) Cycle {
	closing := dayOf(competence.Year(), competence.Month(), closingDay)

	prev := firstOfMonth(competence, -1)
	prevClosing := dayOf(prev.Year(), prev.Month(), closingDay)
	start := prevClosing.AddDate(0, 0, 1)

	dueMonth := competence
	if dueDay <= closingDay {
		dueMonth = firstOfMonth(competence, 1)
	}
	due := dayOf(dueMonth.Year(), dueMonth.Month(), dueDay)

	return Cycle{
		ReferenceMonth: MonthKey(due),
		PeriodStart:    start,
		PeriodEnd:      closing,
		ClosingDate:    closing,
		DueDate:        due,
	}
}
