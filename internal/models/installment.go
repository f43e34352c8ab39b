package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InstallmentStatus string

const (
	InstallmentPending     InstallmentStatus = "pendente"
	InstallmentBilled      InstallmentStatus = "em_fatura"
	InstallmentPaid        InstallmentStatus = "paga"
	InstallmentReversed    InstallmentStatus = "estornada"
	InstallmentAnticipated InstallmentStatus = "antecipada"
)

// Reversible lists the statuses a refund may still move to estornada.
// Paid installments are historical and stay untouched.
func (s InstallmentStatus) Reversible() bool {
	switch s {
	case InstallmentPending, InstallmentBilled, InstallmentAnticipated:
		return true
	}
	return false
}

// Active installments are the ones counted in their invoice total.
func (s InstallmentStatus) Active() bool {
	return s != InstallmentReversed
}

type InstallmentKind string

const (
	InstallmentRegular    InstallmentKind = "regular"
	InstallmentAdjustment InstallmentKind = "adjustment"
)

type Installment struct {
	ID                string            `db:"id" json:"id"`
	TransactionID     string            `db:"transaction_id" json:"transaction_id"`
	InvoiceID         string            `db:"invoice_id" json:"invoice_id"`
	InstallmentNumber int               `db:"installment_number" json:"installment_number"`
	TotalInstallments int               `db:"total_installments" json:"total_installments"`
	Value             decimal.Decimal   `db:"value" json:"value"`
	DiscountValue     decimal.Decimal   `db:"discount_value" json:"discount_value"`
	DueDate           time.Time         `db:"due_date" json:"due_date"`
	Status            InstallmentStatus `db:"status" json:"status"`
	Kind              InstallmentKind   `db:"kind" json:"kind"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// ActiveTotal is the invoice total implied by a set of installments.
func ActiveTotal(installments []Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		if inst.Status.Active() {
			total = total.Add(inst.Value)
		}
	}
	return total
}
