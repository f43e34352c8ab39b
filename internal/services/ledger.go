package services

import (
	"context"
	"time"

	"finance/internal/billing"
	"finance/internal/models"
	"finance/internal/money"
	"finance/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger records balance-affecting transactions against bank accounts:
// invoice payments and account-bound recurring transactions.
type Ledger struct {
	accounts     AccountStore
	entries      LedgerStore
	transactions TransactionStore
}

func NewLedger(accounts AccountStore, entries LedgerStore, transactions TransactionStore) *Ledger {
	return &Ledger{accounts: accounts, entries: entries, transactions: transactions}
}

type Posting struct {
	UserID      string
	AccountID   string
	Type        models.TransactionType
	Amount      decimal.Decimal
	Description string
	CategoryID  *string
	Date        time.Time
	RecurringID *string
}

// Post writes a confirmed transaction, moves the account balance and appends
// the matching ledger entry. Expenses debit the account, income credits it.
func (l *Ledger) Post(ctx context.Context, tx store.Tx, p Posting) (models.Transaction, error) {
	if !money.Positive(p.Amount) {
		return models.Transaction{}, invalid("amount", "must be greater than zero")
	}
	if p.Type != models.TransactionExpense && p.Type != models.TransactionIncome {
		return models.Transaction{}, invalid("type", "must be despesa or receita")
	}
	account, err := l.accounts.GetForUpdate(ctx, tx, p.AccountID)
	if err != nil {
		return models.Transaction{}, notFound("account", p.AccountID, err)
	}
	if account.UserID != p.UserID {
		return models.Transaction{}, missing("account", p.AccountID)
	}

	amount := money.Round(p.Amount)
	delta := amount
	if p.Type == models.TransactionExpense {
		delta = amount.Neg()
	}
	accountID := account.ID
	txn := models.Transaction{
		ID:                uuid.NewString(),
		UserID:            p.UserID,
		Type:              p.Type,
		Status:            models.TransactionConfirmed,
		Description:       p.Description,
		CategoryID:        p.CategoryID,
		Value:             amount,
		InstallmentValue:  amount,
		TotalInstallments: 1,
		RefundedValue:     decimal.Zero,
		Date:              billing.Date(p.Date),
		AccountID:         &accountID,
		RecurringID:       p.RecurringID,
		AffectsBalance:    true,
	}
	if err := l.transactions.Create(ctx, tx, txn); err != nil {
		return models.Transaction{}, err
	}
	if err := l.accounts.UpdateBalance(ctx, tx, account.ID, account.Balance.Add(delta)); err != nil {
		return models.Transaction{}, err
	}
	entries := []store.LedgerEntryInput{{
		ID:            uuid.NewString(),
		TransactionID: txn.ID,
		AccountID:     account.ID,
		Amount:        delta,
		Description:   p.Description,
	}}
	if err := l.entries.InsertEntries(ctx, tx, entries); err != nil {
		return models.Transaction{}, err
	}
	return txn, nil
}

// RecordExpense debits the account.
func (l *Ledger) RecordExpense(ctx context.Context, tx store.Tx, p Posting) (models.Transaction, error) {
	p.Type = models.TransactionExpense
	return l.Post(ctx, tx, p)
}
