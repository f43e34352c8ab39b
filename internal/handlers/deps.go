package handlers

import (
	"context"

	"finance/internal/audit"
	"finance/internal/models"
	"finance/internal/services"
	"finance/internal/store"

	"github.com/shopspring/decimal"
)

type CardService interface {
	Create(ctx context.Context, req services.CreateCardRequest) (services.CardResult, error)
	Get(ctx context.Context, userID, cardID string) (services.CardSummary, error)
	List(ctx context.Context, userID string) ([]services.CardSummary, error)
	Update(ctx context.Context, req services.UpdateCardRequest) (services.CardResult, error)
	Archive(ctx context.Context, userID, cardID string) (services.CardResult, error)
	Delete(ctx context.Context, userID, cardID string) ([]audit.Change, error)
}

type PurchaseService interface {
	Create(ctx context.Context, req services.CreatePurchaseRequest) (services.PurchaseResult, error)
	Update(ctx context.Context, req services.UpdatePurchaseRequest) (services.PurchaseResult, error)
	Refund(ctx context.Context, req services.RefundRequest) (services.PurchaseResult, error)
	PartialRefund(ctx context.Context, req services.PartialRefundRequest) (services.PurchaseResult, error)
	RefundByValue(ctx context.Context, req services.RefundByValueRequest) (services.PurchaseResult, error)
	Anticipate(ctx context.Context, req services.AnticipateRequest) (services.PurchaseResult, error)
}

type InvoiceService interface {
	Pay(ctx context.Context, req services.PayInvoiceRequest) (services.PaymentResult, error)
	Get(ctx context.Context, userID, invoiceID string) (services.InvoiceDetail, error)
	ListByCard(ctx context.Context, userID, cardID string) ([]models.Invoice, error)
	Recalculate(ctx context.Context, invoiceID string) (models.Invoice, []audit.Change, error)
	RunAgingSweep(ctx context.Context) (services.AgingReport, error)
}

type RecurringService interface {
	Create(ctx context.Context, req services.CreateRecurringRequest) (services.RecurringResult, error)
	Get(ctx context.Context, userID, templateID string) (models.RecurringTransaction, error)
	Pause(ctx context.Context, userID, templateID string) (services.RecurringResult, error)
	Resume(ctx context.Context, userID, templateID string) (services.RecurringResult, error)
	Cancel(ctx context.Context, userID, templateID string) (services.RecurringResult, error)
	RunSweep(ctx context.Context) (services.SweepReport, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, id, userID, name string, balance decimal.Decimal) error
	GetByUser(ctx context.Context, userID string) ([]store.AccountBalanceSummary, error)
}

// Poster writes balance-moving transactions; opening balances go through it
// so the ledger stays in step with the stored balance.
type Poster interface {
	Post(ctx context.Context, tx store.Tx, p services.Posting) (models.Transaction, error)
}

type TransactionStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
}

type AuditStore interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]store.AuditEntry, error)
}

type ChangeRecorder interface {
	Record(ctx context.Context, actorID string, changes []audit.Change)
}
