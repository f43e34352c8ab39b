package store

import (
	"context"

	"finance/internal/models"
)

type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, txn models.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, type, status, description, category_id, notes, value, installment_value,
		                          total_installments, refunded_value, date, account_id, card_id, invoice_id, recurring_id, affects_balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := tx.ExecContext(ctx, query,
		txn.ID, txn.UserID, txn.Type, txn.Status, txn.Description, txn.CategoryID, txn.Notes, txn.Value,
		txn.InstallmentValue, txn.TotalInstallments, txn.RefundedValue, txn.Date, txn.AccountID, txn.CardID,
		txn.InvoiceID, txn.RecurringID, txn.AffectsBalance,
	)
	return err
}

func (s *TransactionStore) GetByID(ctx context.Context, transactionID string) (models.Transaction, error) {
	var txn models.Transaction
	err := s.db.GetContext(ctx, &txn, `
		SELECT id, user_id, type, status, description, category_id, notes, value, installment_value, total_installments,
		       refunded_value, date, account_id, card_id, invoice_id, recurring_id, affects_balance, created_at, updated_at
		FROM transactions
		WHERE id = $1
	`, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	return txn, nil
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, transactionID string) (models.Transaction, error) {
	var txn models.Transaction
	err := tx.GetContext(ctx, &txn, `
		SELECT id, user_id, type, status, description, category_id, notes, value, installment_value, total_installments,
		       refunded_value, date, account_id, card_id, invoice_id, recurring_id, affects_balance, created_at, updated_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	return txn, nil
}

func (s *TransactionStore) Update(ctx context.Context, tx Execer, txn models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, description = $2, category_id = $3, notes = $4, value = $5, installment_value = $6,
		    total_installments = $7, refunded_value = $8, date = $9, card_id = $10, invoice_id = $11, updated_at = NOW()
		WHERE id = $12
	`, txn.Status, txn.Description, txn.CategoryID, txn.Notes, txn.Value, txn.InstallmentValue,
		txn.TotalInstallments, txn.RefundedValue, txn.Date, txn.CardID, txn.InvoiceID, txn.ID)
	return err
}

func (s *TransactionStore) CountByCard(ctx context.Context, tx Getter, cardID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM transactions WHERE card_id = $1`, cardID)
	return count, err
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, type, status, description, category_id, notes, value, installment_value, total_installments,
		       refunded_value, date, account_id, card_id, invoice_id, recurring_id, affects_balance, created_at, updated_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
