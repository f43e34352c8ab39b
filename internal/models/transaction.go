package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionExpense  TransactionType = "despesa"
	TransactionIncome   TransactionType = "receita"
	TransactionTransfer TransactionType = "transferencia"
)

type TransactionStatus string

const (
	TransactionConfirmed TransactionStatus = "confirmada"
	TransactionPending   TransactionStatus = "pendente"
	TransactionReversed  TransactionStatus = "estornada"
	TransactionCancelled TransactionStatus = "cancelada"
)

type Transaction struct {
	ID                string            `db:"id" json:"id"`
	UserID            string            `db:"user_id" json:"user_id"`
	Type              TransactionType   `db:"type" json:"type"`
	Status            TransactionStatus `db:"status" json:"status"`
	Description       string            `db:"description" json:"description"`
	CategoryID        *string           `db:"category_id" json:"category_id,omitempty"`
	Notes             *string           `db:"notes" json:"notes,omitempty"`
	Value             decimal.Decimal   `db:"value" json:"value"`
	InstallmentValue  decimal.Decimal   `db:"installment_value" json:"installment_value"`
	TotalInstallments int               `db:"total_installments" json:"total_installments"`
	RefundedValue     decimal.Decimal   `db:"refunded_value" json:"refunded_value"`
	Date              time.Time         `db:"date" json:"date"`
	AccountID         *string           `db:"account_id" json:"account_id,omitempty"`
	CardID            *string           `db:"card_id" json:"card_id,omitempty"`
	InvoiceID         *string           `db:"invoice_id" json:"invoice_id,omitempty"`
	RecurringID       *string           `db:"recurring_id" json:"recurring_id,omitempty"`
	AffectsBalance    bool              `db:"affects_balance" json:"affects_balance"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

func (t Transaction) IsCardPurchase() bool {
	return t.CardID != nil && *t.CardID != ""
}

func (t Transaction) RemainingValue() decimal.Decimal {
	return t.Value.Sub(t.RefundedValue)
}
