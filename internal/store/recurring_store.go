package store

import (
	"context"
	"time"

	"finance/internal/models"
)

type RecurringStore struct {
	db DB
}

func NewRecurringStore(db DB) *RecurringStore {
	return &RecurringStore{db: db}
}

func (s *RecurringStore) Create(ctx context.Context, tx Execer, r models.RecurringTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO recurring_transactions (id, user_id, type, description, category_id, value, account_id, card_id,
		                                    frequency, frequency_value, start_date, end_date, next_occurrence, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, r.ID, r.UserID, r.Type, r.Description, r.CategoryID, r.Value, r.AccountID, r.CardID,
		r.Frequency, r.FrequencyValue, r.StartDate, r.EndDate, r.NextOccurrence, r.Status)
	return err
}

func (s *RecurringStore) GetByID(ctx context.Context, id string) (models.RecurringTransaction, error) {
	var r models.RecurringTransaction
	err := s.db.GetContext(ctx, &r, `
		SELECT id, user_id, type, description, category_id, value, account_id, card_id, frequency, frequency_value,
		       start_date, end_date, next_occurrence, last_generated_at, status, created_at, updated_at
		FROM recurring_transactions
		WHERE id = $1
	`, id)
	if err != nil {
		return models.RecurringTransaction{}, err
	}
	return r, nil
}

func (s *RecurringStore) GetForUpdate(ctx context.Context, tx Getter, id string) (models.RecurringTransaction, error) {
	var r models.RecurringTransaction
	err := tx.GetContext(ctx, &r, `
		SELECT id, user_id, type, description, category_id, value, account_id, card_id, frequency, frequency_value,
		       start_date, end_date, next_occurrence, last_generated_at, status, created_at, updated_at
		FROM recurring_transactions
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		return models.RecurringTransaction{}, err
	}
	return r, nil
}

// ListDue returns the ids of active templates whose next occurrence is today
// or earlier and whose end date has not passed.
func (s *RecurringStore) ListDue(ctx context.Context, today time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM recurring_transactions
		WHERE status = 'ativa'
		  AND next_occurrence <= $1
		  AND (end_date IS NULL OR end_date >= $1)
		ORDER BY next_occurrence, id
	`, today)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListExpired returns the ids of active templates that can no longer
// produce an occurrence: the end date is behind today or behind the pending
// occurrence.
func (s *RecurringStore) ListExpired(ctx context.Context, today time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM recurring_transactions
		WHERE status = 'ativa'
		  AND end_date IS NOT NULL
		  AND (end_date < $1 OR next_occurrence > end_date)
		ORDER BY id
	`, today)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *RecurringStore) Update(ctx context.Context, tx Execer, r models.RecurringTransaction) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE recurring_transactions
		SET description = $1, value = $2, end_date = $3, next_occurrence = $4, last_generated_at = $5,
		    status = $6, updated_at = NOW()
		WHERE id = $7
	`, r.Description, r.Value, r.EndDate, r.NextOccurrence, r.LastGeneratedAt, r.Status, r.ID)
	return err
}
