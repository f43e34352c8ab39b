package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Frequency string

const (
	FrequencyWeekly  Frequency = "semanal"
	FrequencyMonthly Frequency = "mensal"
	FrequencyYearly  Frequency = "anual"
	FrequencyDays    Frequency = "personalizado"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyYearly, FrequencyDays:
		return true
	}
	return false
}

type RecurringStatus string

const (
	RecurringActive RecurringStatus = "ativa"
	RecurringPaused RecurringStatus = "pausada"
	RecurringEnded  RecurringStatus = "encerrada"
)

// RecurringTransaction is a template; each generation produces an
// independent Transaction.
type RecurringTransaction struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Type            TransactionType `db:"type" json:"type"`
	Description     string          `db:"description" json:"description"`
	CategoryID      *string         `db:"category_id" json:"category_id,omitempty"`
	Value           decimal.Decimal `db:"value" json:"value"`
	AccountID       *string         `db:"account_id" json:"account_id,omitempty"`
	CardID          *string         `db:"card_id" json:"card_id,omitempty"`
	Frequency       Frequency       `db:"frequency" json:"frequency"`
	FrequencyValue  int             `db:"frequency_value" json:"frequency_value"`
	StartDate       time.Time       `db:"start_date" json:"start_date"`
	EndDate         *time.Time      `db:"end_date" json:"end_date,omitempty"`
	NextOccurrence  time.Time       `db:"next_occurrence" json:"next_occurrence"`
	LastGeneratedAt *time.Time      `db:"last_generated_at" json:"last_generated_at,omitempty"`
	Status          RecurringStatus `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

func (r RecurringTransaction) IsCardBound() bool {
	return r.CardID != nil && *r.CardID != ""
}
