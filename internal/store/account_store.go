package store

import (
	"context"

	"github.com/shopspring/decimal"
)

type AccountStore struct {
	db DB
}

// Account is a bank account that invoice payments and account-bound
// recurring transactions draw from.
type Account struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Name      string          `db:"name" json:"name"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt any             `db:"created_at" json:"created_at"`
}

type AccountBalanceSummary struct {
	ID                string          `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	StoredBalance     decimal.Decimal `db:"stored_balance" json:"stored_balance"`
	CalculatedBalance decimal.Decimal `db:"calculated_balance" json:"calculated_balance"`
	Difference        decimal.Decimal `db:"difference" json:"difference"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, id, userID, name string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, name, balance)
		VALUES ($1, $2, $3, $4)
	`, id, userID, name, balance)
	return err
}

// GetByUser reports each account balance next to the balance implied by its
// ledger entries.
func (s *AccountStore) GetByUser(ctx context.Context, userID string) ([]AccountBalanceSummary, error) {
	var rows []AccountBalanceSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id,
		       a.name,
		       a.balance AS stored_balance,
		       COALESCE(SUM(l.amount), 0) AS calculated_balance,
		       (a.balance - COALESCE(SUM(l.amount), 0)) AS difference
		FROM accounts a
		LEFT JOIN ledger_entries l ON l.account_id = a.id
		WHERE a.user_id = $1
		GROUP BY a.id, a.name, a.balance
		ORDER BY a.name
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, name, balance, created_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}
