package store

import (
	"context"
	"time"

	"finance/internal/models"
)

type InvoiceStore struct {
	db DB
}

func NewInvoiceStore(db DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// Insert creates the invoice unless one already exists for the same card and
// reference month. Callers re-read afterwards to pick up the winner.
func (s *InvoiceStore) Insert(ctx context.Context, tx Execer, inv models.Invoice) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (id, card_id, user_id, reference_month, period_start, period_end, closing_date, due_date, total_value, paid_value, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (card_id, reference_month) DO NOTHING
	`, inv.ID, inv.CardID, inv.UserID, inv.ReferenceMonth, inv.PeriodStart, inv.PeriodEnd,
		inv.ClosingDate, inv.DueDate, inv.TotalValue, inv.PaidValue, inv.Status)
	return err
}

func (s *InvoiceStore) GetByReferenceMonth(ctx context.Context, tx Getter, cardID, referenceMonth string) (models.Invoice, error) {
	var inv models.Invoice
	err := tx.GetContext(ctx, &inv, `
		SELECT id, card_id, user_id, reference_month, period_start, period_end, closing_date, due_date,
		       total_value, paid_value, status, created_at, updated_at
		FROM invoices
		WHERE card_id = $1 AND reference_month = $2
		FOR UPDATE
	`, cardID, referenceMonth)
	if err != nil {
		return models.Invoice{}, err
	}
	return inv, nil
}

func (s *InvoiceStore) GetByID(ctx context.Context, invoiceID string) (models.Invoice, error) {
	var inv models.Invoice
	err := s.db.GetContext(ctx, &inv, `
		SELECT id, card_id, user_id, reference_month, period_start, period_end, closing_date, due_date,
		       total_value, paid_value, status, created_at, updated_at
		FROM invoices
		WHERE id = $1
	`, invoiceID)
	if err != nil {
		return models.Invoice{}, err
	}
	return inv, nil
}

func (s *InvoiceStore) GetForUpdate(ctx context.Context, tx Getter, invoiceID string) (models.Invoice, error) {
	var inv models.Invoice
	err := tx.GetContext(ctx, &inv, `
		SELECT id, card_id, user_id, reference_month, period_start, period_end, closing_date, due_date,
		       total_value, paid_value, status, created_at, updated_at
		FROM invoices
		WHERE id = $1
		FOR UPDATE
	`, invoiceID)
	if err != nil {
		return models.Invoice{}, err
	}
	return inv, nil
}

func (s *InvoiceStore) Update(ctx context.Context, tx Execer, inv models.Invoice) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE invoices
		SET period_start = $1, period_end = $2, closing_date = $3, due_date = $4,
		    total_value = $5, paid_value = $6, status = $7, updated_at = NOW()
		WHERE id = $8
	`, inv.PeriodStart, inv.PeriodEnd, inv.ClosingDate, inv.DueDate, inv.TotalValue, inv.PaidValue, inv.Status, inv.ID)
	return err
}

func (s *InvoiceStore) ListByCard(ctx context.Context, cardID string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := s.db.SelectContext(ctx, &invoices, `
		SELECT id, card_id, user_id, reference_month, period_start, period_end, closing_date, due_date,
		       total_value, paid_value, status, created_at, updated_at
		FROM invoices
		WHERE card_id = $1
		ORDER BY reference_month
	`, cardID)
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *InvoiceStore) ListOpenByCard(ctx context.Context, tx Selecter, cardID string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := tx.SelectContext(ctx, &invoices, `
		SELECT id, card_id, user_id, reference_month, period_start, period_end, closing_date, due_date,
		       total_value, paid_value, status, created_at, updated_at
		FROM invoices
		WHERE card_id = $1 AND status = 'aberta'
		ORDER BY reference_month
		FOR UPDATE
	`, cardID)
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// ListClosable returns the ids of open invoices whose closing date is today
// or earlier.
func (s *InvoiceStore) ListClosable(ctx context.Context, today time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM invoices
		WHERE status = 'aberta' AND closing_date <= $1
		ORDER BY closing_date
	`, today)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListOverdue returns the ids of closed, unpaid invoices past their due date.
func (s *InvoiceStore) ListOverdue(ctx context.Context, today time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM invoices
		WHERE status = 'fechada' AND due_date < $1 AND paid_value < total_value
		ORDER BY due_date
	`, today)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *InvoiceStore) CreatePayment(ctx context.Context, tx Execer, payment models.InvoicePayment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO invoice_payments (id, invoice_id, account_id, transaction_id, amount, early, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, payment.ID, payment.InvoiceID, payment.AccountID, payment.TransactionID, payment.Amount, payment.Early, payment.PaidAt)
	return err
}

func (s *InvoiceStore) ListPayments(ctx context.Context, invoiceID string) ([]models.InvoicePayment, error) {
	var payments []models.InvoicePayment
	err := s.db.SelectContext(ctx, &payments, `
		SELECT id, invoice_id, account_id, transaction_id, amount, early, paid_at
		FROM invoice_payments
		WHERE invoice_id = $1
		ORDER BY paid_at
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	return payments, nil
}
