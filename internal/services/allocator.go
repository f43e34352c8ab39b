package services

import (
	"context"

	"finance/internal/billing"
	"finance/internal/models"
	"finance/internal/money"
	"finance/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Allocator spreads a card purchase over invoices and keeps invoice totals in
// step with the installments it writes or reverses.
type Allocator struct {
	book         *InvoiceBook
	installments InstallmentStore
}

func NewAllocator(book *InvoiceBook, installments InstallmentStore) *Allocator {
	return &Allocator{book: book, installments: installments}
}

// touchedInvoices collects the invoices a mutation changed, keeping the
// latest version of each in first-touch order.
type touchedInvoices struct {
	order []string
	byID  map[string]models.Invoice
}

func (t *touchedInvoices) add(inv models.Invoice) {
	if t.byID == nil {
		t.byID = make(map[string]models.Invoice)
	}
	if _, ok := t.byID[inv.ID]; !ok {
		t.order = append(t.order, inv.ID)
	}
	t.byID[inv.ID] = inv
}

func (t *touchedInvoices) merge(other touchedInvoices) {
	for _, id := range other.order {
		t.add(other.byID[id])
	}
}

func (t *touchedInvoices) list() []models.Invoice {
	out := make([]models.Invoice, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// Create writes installments startingNumber..TotalInstallments of txn.
// Installment i is charged to the invoice resolved for txn.Date plus i-1
// months. Each part is value/count rounded to cents; the rounding remainder
// is not redistributed.
func (a *Allocator) Create(ctx context.Context, tx store.Tx, txn models.Transaction, card models.Card, startingNumber int) ([]models.Installment, touchedInvoices, error) {
	var touched touchedInvoices
	count := txn.TotalInstallments
	if count < 1 {
		count = 1
	}
	if startingNumber < 1 {
		startingNumber = 1
	}
	value := money.Split(txn.Value, count)
	created := make([]models.Installment, 0, count-startingNumber+1)
	for i := startingNumber; i <= count; i++ {
		inv, err := a.book.Resolve(ctx, tx, card, billing.AddMonths(txn.Date, i-1))
		if err != nil {
			return nil, touched, err
		}
		inst := models.Installment{
			ID:                uuid.NewString(),
			TransactionID:     txn.ID,
			InvoiceID:         inv.ID,
			InstallmentNumber: i,
			TotalInstallments: count,
			Value:             value,
			DiscountValue:     decimal.Zero,
			DueDate:           inv.DueDate,
			Status:            models.InstallmentPending,
			Kind:              models.InstallmentRegular,
		}
		if err := a.installments.Create(ctx, tx, inst); err != nil {
			return nil, touched, err
		}
		inv, err = a.book.Recalculate(ctx, tx, inv.ID)
		if err != nil {
			return nil, touched, err
		}
		// A late entry closes its cycle on the spot.
		switch {
		case inv.Status == models.InvoicePaid:
			inst.Status = models.InstallmentPaid
		case !inv.Status.AcceptsCharges():
			inst.Status = models.InstallmentBilled
		}
		touched.add(inv)
		created = append(created, inst)
	}
	return created, touched, nil
}

// Remove reverses every reversible installment of the transaction. Paid
// installments are left as they are.
func (a *Allocator) Remove(ctx context.Context, tx store.Tx, transactionID string) (int, touchedInvoices, error) {
	return a.reverse(ctx, tx, transactionID, func(models.Installment) bool { return true })
}

// PartialRefund reverses the regular installments numbered above keepCount.
func (a *Allocator) PartialRefund(ctx context.Context, tx store.Tx, transactionID string, keepCount int) (int, touchedInvoices, error) {
	return a.reverse(ctx, tx, transactionID, func(inst models.Installment) bool {
		return inst.Kind == models.InstallmentRegular && inst.InstallmentNumber > keepCount
	})
}

// Recalculate is the repair path for an invoice whose total drifted from its
// installments.
func (a *Allocator) Recalculate(ctx context.Context, tx store.Tx, invoiceID string) (models.Invoice, error) {
	return a.book.Recalculate(ctx, tx, invoiceID)
}

func (a *Allocator) reverse(ctx context.Context, tx store.Tx, transactionID string, selected func(models.Installment) bool) (int, touchedInvoices, error) {
	var touched touchedInvoices
	rows, err := a.installments.ListByTransaction(ctx, tx, transactionID)
	if err != nil {
		return 0, touched, err
	}
	affected := make(map[string]bool)
	var invoiceOrder []string
	reversed := 0
	for _, inst := range rows {
		if !inst.Status.Reversible() || !selected(inst) {
			continue
		}
		inst.Status = models.InstallmentReversed
		if err := a.installments.Update(ctx, tx, inst); err != nil {
			return 0, touched, err
		}
		reversed++
		if !affected[inst.InvoiceID] {
			affected[inst.InvoiceID] = true
			invoiceOrder = append(invoiceOrder, inst.InvoiceID)
		}
	}
	for _, invoiceID := range invoiceOrder {
		inv, err := a.book.Recalculate(ctx, tx, invoiceID)
		if err != nil {
			return 0, touched, err
		}
		touched.add(inv)
	}
	return reversed, touched, nil
}
