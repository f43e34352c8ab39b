package store

import (
	"context"

	"finance/internal/models"
)

type CardStore struct {
	db DB
}

func NewCardStore(db DB) *CardStore {
	return &CardStore{db: db}
}

func (s *CardStore) Create(ctx context.Context, tx Execer, card models.Card) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cards (id, user_id, name, closing_day, due_day, credit_limit)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, card.ID, card.UserID, card.Name, card.ClosingDay, card.DueDay, card.CreditLimit)
	return err
}

func (s *CardStore) GetByID(ctx context.Context, cardID string) (models.Card, error) {
	var card models.Card
	err := s.db.GetContext(ctx, &card, `
		SELECT id, user_id, name, closing_day, due_day, credit_limit, archived_at, created_at
		FROM cards
		WHERE id = $1
	`, cardID)
	if err != nil {
		return models.Card{}, err
	}
	return card, nil
}

func (s *CardStore) GetForUpdate(ctx context.Context, tx Getter, cardID string) (models.Card, error) {
	var card models.Card
	err := tx.GetContext(ctx, &card, `
		SELECT id, user_id, name, closing_day, due_day, credit_limit, archived_at, created_at
		FROM cards
		WHERE id = $1
		FOR UPDATE
	`, cardID)
	if err != nil {
		return models.Card{}, err
	}
	return card, nil
}

func (s *CardStore) ListByUser(ctx context.Context, userID string) ([]models.Card, error) {
	var cards []models.Card
	err := s.db.SelectContext(ctx, &cards, `
		SELECT id, user_id, name, closing_day, due_day, credit_limit, archived_at, created_at
		FROM cards
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *CardStore) Update(ctx context.Context, tx Execer, card models.Card) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET name = $1, closing_day = $2, due_day = $3, credit_limit = $4, archived_at = $5, updated_at = NOW()
		WHERE id = $6
	`, card.Name, card.ClosingDay, card.DueDay, card.CreditLimit, card.ArchivedAt, card.ID)
	return err
}

func (s *CardStore) Delete(ctx context.Context, tx Execer, cardID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, cardID)
	return err
}
