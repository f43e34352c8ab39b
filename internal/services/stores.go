package services

import (
	"context"
	"time"

	"finance/internal/models"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/shopspring/decimal"
)

type CardStore interface {
	Create(ctx context.Context, tx store.Execer, card models.Card) error
	GetByID(ctx context.Context, cardID string) (models.Card, error)
	GetForUpdate(ctx context.Context, tx store.Getter, cardID string) (models.Card, error)
	ListByUser(ctx context.Context, userID string) ([]models.Card, error)
	Update(ctx context.Context, tx store.Execer, card models.Card) error
	Delete(ctx context.Context, tx store.Execer, cardID string) error
}

type InvoiceStore interface {
	Insert(ctx context.Context, tx store.Execer, inv models.Invoice) error
	GetByReferenceMonth(ctx context.Context, tx store.Getter, cardID, referenceMonth string) (models.Invoice, error)
	GetByID(ctx context.Context, invoiceID string) (models.Invoice, error)
	GetForUpdate(ctx context.Context, tx store.Getter, invoiceID string) (models.Invoice, error)
	Update(ctx context.Context, tx store.Execer, inv models.Invoice) error
	ListByCard(ctx context.Context, cardID string) ([]models.Invoice, error)
	ListOpenByCard(ctx context.Context, tx store.Selecter, cardID string) ([]models.Invoice, error)
	ListClosable(ctx context.Context, today time.Time) ([]string, error)
	ListOverdue(ctx context.Context, today time.Time) ([]string, error)
	CreatePayment(ctx context.Context, tx store.Execer, payment models.InvoicePayment) error
	ListPayments(ctx context.Context, invoiceID string) ([]models.InvoicePayment, error)
}

type InstallmentStore interface {
	Create(ctx context.Context, tx store.Execer, inst models.Installment) error
	Update(ctx context.Context, tx store.Execer, inst models.Installment) error
	GetForUpdate(ctx context.Context, tx store.Getter, installmentID string) (models.Installment, error)
	ListByTransaction(ctx context.Context, tx store.Selecter, transactionID string) ([]models.Installment, error)
	ListByInvoice(ctx context.Context, tx store.Selecter, invoiceID string) ([]models.Installment, error)
	MarkPaidByInvoice(ctx context.Context, tx store.Execer, invoiceID string) (int64, error)
	MarkBilledByInvoice(ctx context.Context, tx store.Execer, invoiceID string) (int64, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, txn models.Transaction) error
	GetByID(ctx context.Context, transactionID string) (models.Transaction, error)
	GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.Transaction, error)
	Update(ctx context.Context, tx store.Execer, txn models.Transaction) error
	CountByCard(ctx context.Context, tx store.Getter, cardID string) (int, error)
}

type RecurringStore interface {
	Create(ctx context.Context, tx store.Execer, r models.RecurringTransaction) error
	GetByID(ctx context.Context, id string) (models.RecurringTransaction, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.RecurringTransaction, error)
	ListDue(ctx context.Context, today time.Time) ([]string, error)
	ListExpired(ctx context.Context, today time.Time) ([]string, error)
	Update(ctx context.Context, tx store.Execer, r models.RecurringTransaction) error
}

type AccountStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (store.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountID string, balance decimal.Decimal) error
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
}

type InvoiceHub interface {
	BroadcastInvoice(userID string, update websocket.InvoiceUpdate)
}
