package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Card struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Name        string          `db:"name" json:"name"`
	ClosingDay  int             `db:"closing_day" json:"closing_day"`
	DueDay      int             `db:"due_day" json:"due_day"`
	CreditLimit decimal.Decimal `db:"credit_limit" json:"credit_limit"`
	ArchivedAt  *time.Time      `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

func (c Card) Archived() bool {
	return c.ArchivedAt != nil
}

// UsedLimit sums what is still owed on every invoice that has not been
// settled.
func (c Card) UsedLimit(invoices []Invoice) decimal.Decimal {
	used := decimal.Zero
	for _, inv := range invoices {
		if inv.CardID != c.ID || !inv.Status.CountsTowardsLimit() {
			continue
		}
		used = used.Add(inv.Outstanding())
	}
	return used
}

func (c Card) AvailableLimit(invoices []Invoice) decimal.Decimal {
	return c.CreditLimit.Sub(c.UsedLimit(invoices))
}

// UsagePercentage is used_limit / credit_limit * 100 rounded to two digits.
func (c Card) UsagePercentage(invoices []Invoice) decimal.Decimal {
	if !c.CreditLimit.IsPositive() {
		return decimal.Zero
	}
	return c.UsedLimit(invoices).Div(c.CreditLimit).Mul(decimal.NewFromInt(100)).Round(2)
}
