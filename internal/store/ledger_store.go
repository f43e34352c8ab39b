package store

import (
	"context"

	"github.com/shopspring/decimal"
)

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, entries []LedgerEntryInput) error {
	query := `
		INSERT INTO ledger_entries (id, transaction_id, account_id, amount, description)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.TransactionID, entry.AccountID, entry.Amount, entry.Description); err != nil {
			return err
		}
	}
	return nil
}

type LedgerEntryInput struct {
	ID            string
	TransactionID string
	AccountID     string
	Amount        decimal.Decimal
	Description   string
}
