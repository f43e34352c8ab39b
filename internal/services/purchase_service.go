package services

import (
	"context"
	"strings"
	"time"

	"finance/internal/audit"
	"finance/internal/billing"
	"finance/internal/db"
	"finance/internal/models"
	"finance/internal/money"
	"finance/internal/observability"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxInstallments = 72

// PurchaseService creates and mutates credit card purchases. Every operation
// runs in one transaction and returns the audit changes it produced.
type PurchaseService struct {
	txRunner     db.TxRunner
	book         *InvoiceBook
	allocator    *Allocator
	cards        CardStore
	transactions TransactionStore
	installments InstallmentStore
	hub          InvoiceHub
	metrics      *observability.Metrics
	logger       *zap.Logger
}

func NewPurchaseService(txRunner db.TxRunner, book *InvoiceBook, allocator *Allocator, cards CardStore, transactions TransactionStore, installments InstallmentStore, hub InvoiceHub, metrics *observability.Metrics, logger *zap.Logger) *PurchaseService {
	return &PurchaseService{
		txRunner:     txRunner,
		book:         book,
		allocator:    allocator,
		cards:        cards,
		transactions: transactions,
		installments: installments,
		hub:          hub,
		metrics:      metrics,
		logger:       logger,
	}
}

type PurchaseResult struct {
	Transaction  models.Transaction
	Installments []models.Installment
	Invoices     []models.Invoice
	Changes      []audit.Change
}

type CreatePurchaseRequest struct {
	UserID       string
	CardID       string
	Description  string
	CategoryID   *string
	Notes        *string
	Value        decimal.Decimal
	Installments int
	Date         time.Time
}

func (s *PurchaseService) Create(ctx context.Context, req CreatePurchaseRequest) (PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("card.id", req.CardID))

	if err := validatePurchase(req.Description, req.Value, req.Installments); err != nil {
		return PurchaseResult{}, err
	}
	date := req.Date
	if date.IsZero() {
		date = s.book.now()
	}

	var result PurchaseResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		card, err := s.lockCard(ctx, tx, req.UserID, req.CardID)
		if err != nil {
			return err
		}
		cardID := card.ID
		txn := models.Transaction{
			ID:                uuid.NewString(),
			UserID:            req.UserID,
			Type:              models.TransactionExpense,
			Status:            models.TransactionConfirmed,
			Description:       strings.TrimSpace(req.Description),
			CategoryID:        req.CategoryID,
			Notes:             req.Notes,
			Value:             money.Round(req.Value),
			InstallmentValue:  money.Split(req.Value, req.Installments),
			TotalInstallments: req.Installments,
			RefundedValue:     decimal.Zero,
			Date:              billing.Date(date),
			CardID:            &cardID,
			AffectsBalance:    false,
		}
		result, err = s.charge(ctx, tx, txn, card)
		if err != nil {
			return err
		}
		result.Changes = []audit.Change{{Event: "purchase.created", EntityType: "transaction", EntityID: txn.ID, After: result.Transaction}}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.finish("create", result)
	return result, nil
}

// charge inserts txn and allocates all of its installments.
func (s *PurchaseService) charge(ctx context.Context, tx store.Tx, txn models.Transaction, card models.Card) (PurchaseResult, error) {
	if err := s.transactions.Create(ctx, tx, txn); err != nil {
		return PurchaseResult{}, err
	}
	created, touched, err := s.allocator.Create(ctx, tx, txn, card, 1)
	if err != nil {
		return PurchaseResult{}, err
	}
	if len(created) > 0 {
		last := created[len(created)-1].InvoiceID
		txn.InvoiceID = &last
		if err := s.transactions.Update(ctx, tx, txn); err != nil {
			return PurchaseResult{}, err
		}
	}
	return PurchaseResult{Transaction: txn, Installments: created, Invoices: touched.list()}, nil
}

type UpdatePurchaseRequest struct {
	UserID        string
	TransactionID string
	Description   *string
	CategoryID    *string
	Notes         *string
	Value         *decimal.Decimal
	Installments  *int
	Date          *time.Time
	CardID        *string
}

// Update changes a purchase. A change to value, date, installment count or
// card discards the installment set and rebuilds it; other fields are
// written in place.
func (s *PurchaseService) Update(ctx context.Context, req UpdatePurchaseRequest) (PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", req.TransactionID))

	var result PurchaseResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.lockPurchase(ctx, tx, req.UserID, req.TransactionID)
		if err != nil {
			return err
		}
		before := txn

		if req.Description != nil {
			txn.Description = strings.TrimSpace(*req.Description)
		}
		if req.CategoryID != nil {
			txn.CategoryID = req.CategoryID
		}
		if req.Notes != nil {
			txn.Notes = req.Notes
		}

		critical := false
		if req.Value != nil && !req.Value.Equal(txn.Value) {
			txn.Value = money.Round(*req.Value)
			critical = true
		}
		if req.Installments != nil && *req.Installments != txn.TotalInstallments {
			txn.TotalInstallments = *req.Installments
			critical = true
		}
		if req.Date != nil && !billing.Date(*req.Date).Equal(billing.Date(txn.Date)) {
			txn.Date = billing.Date(*req.Date)
			critical = true
		}
		if req.CardID != nil && *req.CardID != *txn.CardID {
			cardID := *req.CardID
			txn.CardID = &cardID
			critical = true
		}
		if err := validatePurchase(txn.Description, txn.Value, txn.TotalInstallments); err != nil {
			return err
		}

		var touched touchedInvoices
		var created []models.Installment
		if critical {
			card, err := s.lockCard(ctx, tx, req.UserID, *txn.CardID)
			if err != nil {
				return err
			}
			if err := s.ensureRebuildable(ctx, tx, txn); err != nil {
				return err
			}
			_, removed, err := s.allocator.Remove(ctx, tx, txn.ID)
			if err != nil {
				return err
			}
			touched.merge(removed)
			txn.InstallmentValue = money.Split(txn.Value, txn.TotalInstallments)
			var added touchedInvoices
			created, added, err = s.allocator.Create(ctx, tx, txn, card, 1)
			if err != nil {
				return err
			}
			touched.merge(added)
			if len(created) > 0 {
				last := created[len(created)-1].InvoiceID
				txn.InvoiceID = &last
			}
		}
		if err := s.transactions.Update(ctx, tx, txn); err != nil {
			return err
		}
		result = PurchaseResult{
			Transaction:  txn,
			Installments: created,
			Invoices:     touched.list(),
			Changes:      []audit.Change{{Event: "purchase.updated", EntityType: "transaction", EntityID: txn.ID, Before: before, After: txn}},
		}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.finish("update", result)
	return result, nil
}

// ensureRebuildable rejects rebuilding a purchase whose installments were
// already paid or which carries refund adjustments.
func (s *PurchaseService) ensureRebuildable(ctx context.Context, tx store.Tx, txn models.Transaction) error {
	if txn.RefundedValue.IsPositive() {
		return ErrPurchaseLocked
	}
	rows, err := s.installments.ListByTransaction(ctx, tx, txn.ID)
	if err != nil {
		return err
	}
	for _, inst := range rows {
		if inst.Status == models.InstallmentPaid {
			return ErrPurchaseLocked
		}
	}
	return nil
}

type RefundRequest struct {
	UserID        string
	TransactionID string
}

// Refund reverses every installment that has not been paid and marks the
// purchase estornada.
func (s *PurchaseService) Refund(ctx context.Context, req RefundRequest) (PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", req.TransactionID))

	var result PurchaseResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.lockPurchase(ctx, tx, req.UserID, req.TransactionID)
		if err != nil {
			return err
		}
		result, err = s.refundAll(ctx, tx, txn)
		return err
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.finish("refund", result)
	return result, nil
}

func (s *PurchaseService) refundAll(ctx context.Context, tx store.Tx, txn models.Transaction) (PurchaseResult, error) {
	before := txn
	_, touched, err := s.allocator.Remove(ctx, tx, txn.ID)
	if err != nil {
		return PurchaseResult{}, err
	}
	txn.Status = models.TransactionReversed
	txn.RefundedValue = txn.Value
	if err := s.transactions.Update(ctx, tx, txn); err != nil {
		return PurchaseResult{}, err
	}
	return PurchaseResult{
		Transaction: txn,
		Invoices:    touched.list(),
		Changes:     []audit.Change{{Event: "purchase.refunded", EntityType: "transaction", EntityID: txn.ID, Before: before, After: txn}},
	}, nil
}

type PartialRefundRequest struct {
	UserID        string
	TransactionID string
	Keep          int
}

// PartialRefund keeps the first Keep installments and reverses the rest. The
// purchase value shrinks to installment_value x Keep.
func (s *PurchaseService) PartialRefund(ctx context.Context, req PartialRefundRequest) (PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.PartialRefund")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", req.TransactionID))

	var result PurchaseResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.lockPurchase(ctx, tx, req.UserID, req.TransactionID)
		if err != nil {
			return err
		}
		if req.Keep < 1 || req.Keep >= txn.TotalInstallments {
			return invalid("keep", "must be at least 1 and less than the number of installments")
		}
		before := txn
		_, touched, err := s.allocator.PartialRefund(ctx, tx, txn.ID, req.Keep)
		if err != nil {
			return err
		}
		txn.TotalInstallments = req.Keep
		txn.Value = txn.InstallmentValue.Mul(decimal.NewFromInt(int64(req.Keep)))
		if err := s.transactions.Update(ctx, tx, txn); err != nil {
			return err
		}
		result = PurchaseResult{
			Transaction: txn,
			Invoices:    touched.list(),
			Changes:     []audit.Change{{Event: "purchase.partially_refunded", EntityType: "transaction", EntityID: txn.ID, Before: before, After: txn}},
		}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.finish("partial_refund", result)
	return result, nil
}

type RefundByValueRequest struct {
	UserID        string
	TransactionID string
	Amount        decimal.Decimal
}

// RefundByValue credits an amount back. An amount matching what is left of
// the purchase, within one cent, is a full refund. Anything smaller becomes
// a negative adjustment installment on the invoice open today; the original
// installments stay as they are.
func (s *PurchaseService) RefundByValue(ctx context.Context, req RefundByValueRequest) (PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.RefundByValue")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", req.TransactionID))

	if !money.Positive(req.Amount) {
		return PurchaseResult{}, invalid("amount", "must be greater than zero")
	}
	amount := money.Round(req.Amount)

	var result PurchaseResult
	operation := "refund_by_value"
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.lockPurchase(ctx, tx, req.UserID, req.TransactionID)
		if err != nil {
			return err
		}
		remaining := txn.RemainingValue()
		if money.WithinCent(amount, remaining) {
			operation = "refund"
			result, err = s.refundAll(ctx, tx, txn)
			return err
		}
		if amount.GreaterThan(remaining) {
			return invalid("amount", "exceeds the remaining purchase value")
		}

		card, err := s.cards.GetForUpdate(ctx, tx, *txn.CardID)
		if err != nil {
			return notFound("card", *txn.CardID, err)
		}
		inv, err := s.book.Resolve(ctx, tx, card, s.book.now())
		if err != nil {
			return err
		}
		adjustment := models.Installment{
			ID:                uuid.NewString(),
			TransactionID:     txn.ID,
			InvoiceID:         inv.ID,
			InstallmentNumber: 0,
			TotalInstallments: txn.TotalInstallments,
			Value:             amount.Neg(),
			DiscountValue:     decimal.Zero,
			DueDate:           inv.DueDate,
			Status:            models.InstallmentPending,
			Kind:              models.InstallmentAdjustment,
		}
		if err := s.installments.Create(ctx, tx, adjustment); err != nil {
			return err
		}
		inv, err = s.book.Recalculate(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		before := txn
		txn.RefundedValue = txn.RefundedValue.Add(amount)
		if err := s.transactions.Update(ctx, tx, txn); err != nil {
			return err
		}
		result = PurchaseResult{
			Transaction:  txn,
			Installments: []models.Installment{adjustment},
			Invoices:     []models.Invoice{inv},
			Changes: []audit.Change{
				{Event: "purchase.refunded_by_value", EntityType: "transaction", EntityID: txn.ID, Before: before, After: txn},
				{Event: "installment.adjustment_created", EntityType: "installment", EntityID: adjustment.ID, After: adjustment},
			},
		}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.finish(operation, result)
	return result, nil
}

type AnticipateRequest struct {
	UserID         string
	TransactionID  string
	InstallmentIDs []string
	Discount       decimal.Decimal
}

// Anticipate moves future pending installments into the invoice open today.
// Discount is the total granted for the anticipation, split evenly across
// the selected installments. The moved installments become antecipada and
// carry their reduced value, so the source invoice no longer counts them.
func (s *PurchaseService) Anticipate(ctx context.Context, req AnticipateRequest) (PurchaseResult, error) {
	ctx, span := tracer.Start(ctx, "PurchaseService.Anticipate")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", req.TransactionID))

	if len(req.InstallmentIDs) == 0 {
		return PurchaseResult{}, invalid("installment_ids", "must not be empty")
	}
	if req.Discount.IsNegative() {
		return PurchaseResult{}, invalid("discount", "must not be negative")
	}
	shares := money.Shares(req.Discount, len(req.InstallmentIDs))

	var result PurchaseResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.lockPurchase(ctx, tx, req.UserID, req.TransactionID)
		if err != nil {
			return err
		}
		card, err := s.cards.GetForUpdate(ctx, tx, *txn.CardID)
		if err != nil {
			return notFound("card", *txn.CardID, err)
		}
		target, err := s.book.Resolve(ctx, tx, card, s.book.now())
		if err != nil {
			return err
		}

		var touched touchedInvoices
		sources := make([]string, 0, len(req.InstallmentIDs))
		moved := make([]models.Installment, 0, len(req.InstallmentIDs))
		changes := make([]audit.Change, 0, len(req.InstallmentIDs))
		for i, id := range req.InstallmentIDs {
			share := shares[i]
			inst, err := s.installments.GetForUpdate(ctx, tx, id)
			if err != nil {
				return notFound("installment", id, err)
			}
			if inst.TransactionID != txn.ID {
				return missing("installment", id)
			}
			if inst.Kind != models.InstallmentRegular || inst.Status != models.InstallmentPending ||
				inst.InvoiceID == target.ID || !inst.DueDate.After(target.DueDate) {
				return ErrInstallmentNotAnticipable
			}
			if !share.LessThan(inst.Value) {
				return invalid("discount", "must be smaller than the anticipated value")
			}
			before := inst
			sources = append(sources, inst.InvoiceID)
			inst.InvoiceID = target.ID
			inst.DueDate = target.DueDate
			inst.DiscountValue = share
			inst.Value = inst.Value.Sub(share)
			inst.Status = models.InstallmentAnticipated
			if err := s.installments.Update(ctx, tx, inst); err != nil {
				return err
			}
			moved = append(moved, inst)
			changes = append(changes, audit.Change{Event: "installment.anticipated", EntityType: "installment", EntityID: inst.ID, Before: before, After: inst})
		}
		for _, invoiceID := range append(sources, target.ID) {
			if _, seen := touched.byID[invoiceID]; seen {
				continue
			}
			inv, err := s.book.Recalculate(ctx, tx, invoiceID)
			if err != nil {
				return err
			}
			touched.add(inv)
		}
		result = PurchaseResult{Transaction: txn, Installments: moved, Invoices: touched.list(), Changes: changes}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.finish("anticipate", result)
	return result, nil
}

// lockCard loads a card the user may charge.
func (s *PurchaseService) lockCard(ctx context.Context, tx store.Tx, userID, cardID string) (models.Card, error) {
	card, err := s.cards.GetForUpdate(ctx, tx, cardID)
	if err != nil {
		return models.Card{}, notFound("card", cardID, err)
	}
	if card.UserID != userID {
		return models.Card{}, missing("card", cardID)
	}
	if card.Archived() {
		return models.Card{}, ErrCardArchived
	}
	return card, nil
}

// lockPurchase loads a live card purchase owned by userID.
func (s *PurchaseService) lockPurchase(ctx context.Context, tx store.Tx, userID, transactionID string) (models.Transaction, error) {
	txn, err := s.transactions.GetForUpdate(ctx, tx, transactionID)
	if err != nil {
		return models.Transaction{}, notFound("transaction", transactionID, err)
	}
	if txn.UserID != userID || !txn.IsCardPurchase() {
		return models.Transaction{}, missing("purchase", transactionID)
	}
	if txn.Status == models.TransactionReversed || txn.Status == models.TransactionCancelled {
		return models.Transaction{}, ErrAlreadyRefunded
	}
	return txn, nil
}

func (s *PurchaseService) finish(operation string, result PurchaseResult) {
	s.metrics.IncrPurchase(operation)
	for _, inv := range result.Invoices {
		s.hub.BroadcastInvoice(inv.UserID, websocket.NewInvoiceUpdate(inv))
	}
	s.logger.Info("purchase mutated",
		zap.String("operation", operation),
		zap.String("transaction_id", result.Transaction.ID),
		zap.Int("invoices", len(result.Invoices)),
	)
}

func validatePurchase(description string, value decimal.Decimal, installments int) error {
	if strings.TrimSpace(description) == "" {
		return invalid("description", "is required")
	}
	if !money.Positive(value) {
		return invalid("value", "must be greater than zero")
	}
	if installments < 1 || installments > maxInstallments {
		return invalid("installments", "must be between 1 and 72")
	}
	return nil
}
