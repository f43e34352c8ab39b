package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finance/internal/billing"
	"finance/internal/models"
	"finance/internal/observability"
	"finance/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxRollover bounds how many closed cycles Resolve skips before giving up.
const maxRollover = 120

// InvoiceBook owns invoice rows: lazy creation, rollover past closed
// cycles, total recomputation and persisting status transitions.
type InvoiceBook struct {
	invoices     InvoiceStore
	installments InstallmentStore
	metrics      *observability.Metrics
	now          func() time.Time
}

func NewInvoiceBook(invoices InvoiceStore, installments InstallmentStore, metrics *observability.Metrics, now func() time.Time) *InvoiceBook {
	if now == nil {
		now = time.Now
	}
	return &InvoiceBook{invoices: invoices, installments: installments, metrics: metrics, now: now}
}

// Today is the current calendar day in the clock's location.
func (b *InvoiceBook) Today() time.Time {
	return billing.Date(b.now())
}

// Resolve returns the invoice that absorbs a charge dated date. A missing
// invoice is created aberta even when its cycle has already closed, so a late
// entry still lands in its own cycle; Recalculate moves it on afterwards. An
// existing invoice whose stored status is no longer aberta accepts nothing, and
// the charge moves to the next cycle.
func (b *InvoiceBook) Resolve(ctx context.Context, tx store.Tx, card models.Card, date time.Time) (models.Invoice, error) {
	target := billing.Date(date)
	for hop := 0; hop < maxRollover; hop++ {
		cycle := billing.ComputeCycle(card.ClosingDay, card.DueDay, target)
		inv, err := b.ensure(ctx, tx, card, cycle)
		if err != nil {
			return models.Invoice{}, err
		}
		if inv.Status.AcceptsCharges() {
			return inv, nil
		}
		target = cycle.PeriodEnd.AddDate(0, 0, 1)
	}
	return models.Invoice{}, fmt.Errorf("card %s from %s: %w", card.ID, billing.MonthKey(date), ErrRolloverLimit)
}

func (b *InvoiceBook) ensure(ctx context.Context, tx store.Tx, card models.Card, cycle billing.Cycle) (models.Invoice, error) {
	inv, err := b.invoices.GetByReferenceMonth(ctx, tx, card.ID, cycle.ReferenceMonth)
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Invoice{}, err
	}

	inv = models.Invoice{
		ID:             uuid.NewString(),
		CardID:         card.ID,
		UserID:         card.UserID,
		ReferenceMonth: cycle.ReferenceMonth,
		PeriodStart:    cycle.PeriodStart,
		PeriodEnd:      cycle.PeriodEnd,
		ClosingDate:    cycle.ClosingDate,
		DueDate:        cycle.DueDate,
		TotalValue:     decimal.Zero,
		PaidValue:      decimal.Zero,
		Status:         models.InvoiceOpen,
	}
	if err := b.invoices.Insert(ctx, tx, inv); err != nil {
		return models.Invoice{}, err
	}
	return b.invoices.GetByReferenceMonth(ctx, tx, card.ID, cycle.ReferenceMonth)
}

// Recalculate sets total_value to the sum of the invoice's active
// installments and persists the resulting status.
func (b *InvoiceBook) Recalculate(ctx context.Context, tx store.Tx, invoiceID string) (models.Invoice, error) {
	inv, err := b.invoices.GetForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return models.Invoice{}, notFound("invoice", invoiceID, err)
	}
	rows, err := b.installments.ListByInvoice(ctx, tx, invoiceID)
	if err != nil {
		return models.Invoice{}, err
	}
	prev := inv.Status
	inv.TotalValue = models.ActiveTotal(rows)
	if err := b.Save(ctx, tx, prev, &inv); err != nil {
		return models.Invoice{}, err
	}
	return inv, nil
}

// Save runs the status transition and writes the invoice. Leaving aberta
// bills the pending installments; reaching paga settles them.
func (b *InvoiceBook) Save(ctx context.Context, tx store.Tx, prev models.InvoiceStatus, inv *models.Invoice) error {
	billing.RefreshInvoiceStatus(inv, b.now())
	if err := b.invoices.Update(ctx, tx, *inv); err != nil {
		return err
	}
	if inv.Status == prev {
		return nil
	}
	b.metrics.IncrInvoiceTransition(string(inv.Status))
	if prev == models.InvoiceOpen {
		if _, err := b.installments.MarkBilledByInvoice(ctx, tx, inv.ID); err != nil {
			return err
		}
	}
	if inv.Status == models.InvoicePaid {
		if _, err := b.installments.MarkPaidByInvoice(ctx, tx, inv.ID); err != nil {
			return err
		}
	}
	return nil
}
