package billing

import (
	"time"

	"finance/internal/models"
)

// NextInvoiceStatus is the invoice state machine. An invoice stays aberta,
// whatever has been paid, until its closing date is reached. From then on the
// status follows the money: paga, parcialmente_paga, vencida once the due
// date has passed with nothing paid, otherwise fechada. A payment that covers
// the whole total counts as paga even after refunds brought the total to zero
// or below.
func NextInvoiceStatus(inv models.Invoice, now time.Time) models.InvoiceStatus {
	today := Date(now)
	if inv.Status == models.InvoiceOpen && Date(inv.ClosingDate).After(today) {
		return models.InvoiceOpen
	}
	total := inv.TotalValue
	paid := inv.PaidValue
	switch {
	case paid.IsPositive() && paid.GreaterThanOrEqual(total):
		return models.InvoicePaid
	case paid.IsPositive():
		return models.InvoicePartiallyPaid
	case Date(inv.DueDate).Before(today) && paid.LessThan(total):
		return models.InvoiceOverdue
	default:
		return models.InvoiceClosed
	}
}

// RefreshInvoiceStatus applies NextInvoiceStatus and reports whether the
// status changed. It is the only place invoice status is written.
func RefreshInvoiceStatus(inv *models.Invoice, now time.Time) bool {
	next := NextInvoiceStatus(*inv, now)
	if next == inv.Status {
		return false
	}
	inv.Status = next
	return true
}

// IsEarlyPayment classifies a payment made while the cycle is still open.
func IsEarlyPayment(inv models.Invoice) bool {
	return inv.Status == models.InvoiceOpen
}
