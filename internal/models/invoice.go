package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceOpen          InvoiceStatus = "aberta"
	InvoiceClosed        InvoiceStatus = "fechada"
	InvoicePartiallyPaid InvoiceStatus = "parcialmente_paga"
	InvoicePaid          InvoiceStatus = "paga"
	InvoiceOverdue       InvoiceStatus = "vencida"
)

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceOpen, InvoiceClosed, InvoicePartiallyPaid, InvoicePaid, InvoiceOverdue:
		return true
	}
	return false
}

// AcceptsCharges is true only while the cycle is still open.
func (s InvoiceStatus) AcceptsCharges() bool {
	return s == InvoiceOpen
}

func (s InvoiceStatus) CountsTowardsLimit() bool {
	switch s {
	case InvoiceOpen, InvoicePartiallyPaid, InvoiceClosed, InvoiceOverdue:
		return true
	}
	return false
}

type Invoice struct {
	ID             string          `db:"id" json:"id"`
	CardID         string          `db:"card_id" json:"card_id"`
	UserID         string          `db:"user_id" json:"user_id"`
	ReferenceMonth string          `db:"reference_month" json:"reference_month"`
	PeriodStart    time.Time       `db:"period_start" json:"period_start"`
	PeriodEnd      time.Time       `db:"period_end" json:"period_end"`
	ClosingDate    time.Time       `db:"closing_date" json:"closing_date"`
	DueDate        time.Time       `db:"due_date" json:"due_date"`
	TotalValue     decimal.Decimal `db:"total_value" json:"total_value"`
	PaidValue      decimal.Decimal `db:"paid_value" json:"paid_value"`
	Status         InvoiceStatus   `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Outstanding is max(0, total - paid).
func (i Invoice) Outstanding() decimal.Decimal {
	remaining := i.TotalValue.Sub(i.PaidValue)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

func (i Invoice) FullyPaid() bool {
	return i.PaidValue.GreaterThanOrEqual(i.TotalValue)
}

type InvoicePayment struct {
	ID            string          `db:"id" json:"id"`
	InvoiceID     string          `db:"invoice_id" json:"invoice_id"`
	AccountID     string          `db:"account_id" json:"account_id"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Early         bool            `db:"early" json:"early"`
	PaidAt        time.Time       `db:"paid_at" json:"paid_at"`
}
