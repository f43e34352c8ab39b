package store

import (
	"context"

	"finance/internal/models"
)

type InstallmentStore struct {
	db DB
}

func NewInstallmentStore(db DB) *InstallmentStore {
	return &InstallmentStore{db: db}
}

func (s *InstallmentStore) Create(ctx context.Context, tx Execer, inst models.Installment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO installments (id, transaction_id, invoice_id, installment_number, total_installments, value, discount_value, due_date, status, kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, inst.ID, inst.TransactionID, inst.InvoiceID, inst.InstallmentNumber, inst.TotalInstallments,
		inst.Value, inst.DiscountValue, inst.DueDate, inst.Status, inst.Kind)
	return err
}

func (s *InstallmentStore) Update(ctx context.Context, tx Execer, inst models.Installment) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE installments
		SET invoice_id = $1, value = $2, discount_value = $3, due_date = $4, status = $5, updated_at = NOW()
		WHERE id = $6
	`, inst.InvoiceID, inst.Value, inst.DiscountValue, inst.DueDate, inst.Status, inst.ID)
	return err
}

func (s *InstallmentStore) GetForUpdate(ctx context.Context, tx Getter, installmentID string) (models.Installment, error) {
	var inst models.Installment
	err := tx.GetContext(ctx, &inst, `
		SELECT id, transaction_id, invoice_id, installment_number, total_installments, value, discount_value,
		       due_date, status, kind, created_at, updated_at
		FROM installments
		WHERE id = $1
		FOR UPDATE
	`, installmentID)
	if err != nil {
		return models.Installment{}, err
	}
	return inst, nil
}

func (s *InstallmentStore) ListByTransaction(ctx context.Context, tx Selecter, transactionID string) ([]models.Installment, error) {
	var rows []models.Installment
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, transaction_id, invoice_id, installment_number, total_installments, value, discount_value,
		       due_date, status, kind, created_at, updated_at
		FROM installments
		WHERE transaction_id = $1
		ORDER BY installment_number, created_at
	`, transactionID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *InstallmentStore) ListByInvoice(ctx context.Context, tx Selecter, invoiceID string) ([]models.Installment, error) {
	var rows []models.Installment
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, transaction_id, invoice_id, installment_number, total_installments, value, discount_value,
		       due_date, status, kind, created_at, updated_at
		FROM installments
		WHERE invoice_id = $1
		ORDER BY created_at, installment_number
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPaidByInvoice settles every installment of the invoice that is not
// already paid or reversed.
func (s *InstallmentStore) MarkPaidByInvoice(ctx context.Context, tx Execer, invoiceID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE installments
		SET status = 'paga', updated_at = NOW()
		WHERE invoice_id = $1 AND status NOT IN ('paga', 'estornada')
	`, invoiceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkBilledByInvoice moves pending installments of a closed invoice to
// em_fatura.
func (s *InstallmentStore) MarkBilledByInvoice(ctx context.Context, tx Execer, invoiceID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE installments
		SET status = 'em_fatura', updated_at = NOW()
		WHERE invoice_id = $1 AND status = 'pendente'
	`, invoiceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
