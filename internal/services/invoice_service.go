package services

import (
	"context"
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

type InvoiceService struct {
	txRunner     db.TxRunner
	book         *InvoiceBook
	invoices     InvoiceStore
	installments InstallmentStore
	cards        CardStore
	ledger       *Ledger
	hub          InvoiceHub
	metrics      *observability.Metrics
	logger       *zap.Logger
}

func NewInvoiceService(txRunner db.TxRunner, book *InvoiceBook, invoices InvoiceStore, installments InstallmentStore, cards CardStore, ledger *Ledger, hub InvoiceHub, metrics *observability.Metrics, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{
		txRunner:     txRunner,
		book:         book,
		invoices:     invoices,
		installments: installments,
		cards:        cards,
		ledger:       ledger,
		hub:          hub,
		metrics:      metrics,
		logger:       logger,
	}
}

type PayInvoiceRequest struct {
	UserID    string
	InvoiceID string
	AccountID string
	Amount    decimal.Decimal
}

type PaymentResult struct {
	Invoice     models.Invoice
	Payment     models.InvoicePayment
	Transaction models.Transaction
	Changes     []audit.Change
}

// Pay applies a payment to an invoice. The paying account is debited through
// the ledger. Once the paid value covers the total every unsettled
// installment becomes paga; a partial payment leaves installments alone.
func (s *InvoiceService) Pay(ctx context.Context, req PayInvoiceRequest) (PaymentResult, error) {
	ctx, span := tracer.Start(ctx, "InvoiceService.Pay")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", req.InvoiceID))

	if !money.Positive(req.Amount) {
		return PaymentResult{}, invalid("amount", "must be greater than zero")
	}
	if req.AccountID == "" {
		return PaymentResult{}, invalid("account_id", "is required")
	}
	amount := money.Round(req.Amount)

	var result PaymentResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		inv, err := s.invoices.GetForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return notFound("invoice", req.InvoiceID, err)
		}
		if inv.UserID != req.UserID {
			return missing("invoice", req.InvoiceID)
		}
		now := s.book.now()
		effective := billing.NextInvoiceStatus(inv, now)
		if inv.Status == models.InvoicePaid || effective == models.InvoicePaid {
			return ErrInvoiceAlreadyPaid
		}
		before := inv

		txn, err := s.ledger.RecordExpense(ctx, tx, Posting{
			UserID:      req.UserID,
			AccountID:   req.AccountID,
			Amount:      amount,
			Description: "Invoice payment " + inv.ReferenceMonth,
			Date:        now,
		})
		if err != nil {
			return err
		}
		payment := models.InvoicePayment{
			ID:            uuid.NewString(),
			InvoiceID:     inv.ID,
			AccountID:     req.AccountID,
			TransactionID: txn.ID,
			Amount:        amount,
			Early:         effective == models.InvoiceOpen,
			PaidAt:        now,
		}
		if err := s.invoices.CreatePayment(ctx, tx, payment); err != nil {
			return err
		}

		prev := inv.Status
		inv.PaidValue = inv.PaidValue.Add(amount)
		if err := s.book.Save(ctx, tx, prev, &inv); err != nil {
			return err
		}
		if inv.FullyPaid() {
			if _, err := s.installments.MarkPaidByInvoice(ctx, tx, inv.ID); err != nil {
				return err
			}
		}

		result = PaymentResult{
			Invoice:     inv,
			Payment:     payment,
			Transaction: txn,
			Changes: []audit.Change{
				{Event: "invoice.payment", EntityType: "invoice", EntityID: inv.ID, Before: before, After: inv},
				{Event: "invoice_payment.created", EntityType: "invoice_payment", EntityID: payment.ID, After: payment},
			},
		}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	s.metrics.IncrInvoicePayment()
	s.hub.BroadcastInvoice(result.Invoice.UserID, websocket.NewInvoiceUpdate(result.Invoice))
	s.logger.Info("invoice payment applied",
		zap.String("invoice_id", result.Invoice.ID),
		zap.String("amount", money.Format(amount)),
		zap.String("status", string(result.Invoice.Status)),
		zap.Bool("early", result.Payment.Early),
	)
	return result, nil
}

// AgingReport summarises one closing/overdue sweep.
type AgingReport struct {
	Closed  int
	Overdue int
	Errors  []error
	Changes []audit.Change
}

// CloseDue moves every aberta invoice whose closing date has been reached
// out of aberta.
func (s *InvoiceService) CloseDue(ctx context.Context) (AgingReport, error) {
	ctx, span := tracer.Start(ctx, "InvoiceService.CloseDue")
	defer span.End()

	ids, err := s.invoices.ListClosable(ctx, s.book.Today())
	if err != nil {
		return AgingReport{}, err
	}
	var report AgingReport
	for _, id := range ids {
		prev, inv, changed, err := s.refresh(ctx, id)
		if err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		if changed && prev == models.InvoiceOpen {
			report.Closed++
			report.Changes = append(report.Changes, statusChange("invoice.closed", prev, inv))
		}
	}
	return report, nil
}

// MarkOverdue flags fechada invoices that passed their due date unpaid.
func (s *InvoiceService) MarkOverdue(ctx context.Context) (AgingReport, error) {
	ctx, span := tracer.Start(ctx, "InvoiceService.MarkOverdue")
	defer span.End()

	ids, err := s.invoices.ListOverdue(ctx, s.book.Today())
	if err != nil {
		return AgingReport{}, err
	}
	var report AgingReport
	for _, id := range ids {
		prev, inv, changed, err := s.refresh(ctx, id)
		if err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		if changed && inv.Status == models.InvoiceOverdue {
			report.Overdue++
			report.Changes = append(report.Changes, statusChange("invoice.overdue", prev, inv))
		}
	}
	return report, nil
}

// RunAgingSweep runs the closing sweep followed by the overdue sweep.
func (s *InvoiceService) RunAgingSweep(ctx context.Context) (AgingReport, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep("aging", time.Since(start)) }()

	closed, err := s.CloseDue(ctx)
	if err != nil {
		return closed, err
	}
	overdue, err := s.MarkOverdue(ctx)
	if err != nil {
		return closed, err
	}
	report := AgingReport{
		Closed:  closed.Closed,
		Overdue: overdue.Overdue,
		Errors:  append(closed.Errors, overdue.Errors...),
		Changes: append(closed.Changes, overdue.Changes...),
	}
	for _, sweepErr := range report.Errors {
		s.logger.Error("invoice aging failed", zap.Error(sweepErr))
	}
	s.logger.Info("invoice aging sweep finished",
		zap.Int("closed", report.Closed),
		zap.Int("overdue", report.Overdue),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (s *InvoiceService) refresh(ctx context.Context, invoiceID string) (models.InvoiceStatus, models.Invoice, bool, error) {
	var prev models.InvoiceStatus
	var inv models.Invoice
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		inv, err = s.invoices.GetForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return notFound("invoice", invoiceID, err)
		}
		prev = inv.Status
		return s.book.Save(ctx, tx, prev, &inv)
	})
	if err != nil {
		return "", models.Invoice{}, false, err
	}
	changed := inv.Status != prev
	if changed {
		s.hub.BroadcastInvoice(inv.UserID, websocket.NewInvoiceUpdate(inv))
	}
	return prev, inv, changed, nil
}

func statusChange(event string, prev models.InvoiceStatus, inv models.Invoice) audit.Change {
	return audit.Change{
		Event:      event,
		EntityType: "invoice",
		EntityID:   inv.ID,
		Before:     map[string]string{"status": string(prev)},
		After:      map[string]string{"status": string(inv.Status)},
	}
}

// Reprocess recomputes the cycle dates of every aberta invoice of card from
// its reference month, after the card's closing or due day changed. An
// invoice whose new closing date has passed closes right away. Runs inside
// the caller's transaction.
func (s *InvoiceService) Reprocess(ctx context.Context, tx store.Tx, card models.Card) ([]models.Invoice, error) {
	open, err := s.invoices.ListOpenByCard(ctx, tx, card.ID)
	if err != nil {
		return nil, err
	}
	updated := make([]models.Invoice, 0, len(open))
	for _, inv := range open {
		cycle, err := billing.ComputeCycleForReferenceMonth(card.ClosingDay, card.DueDay, inv.ReferenceMonth)
		if err != nil {
			return nil, err
		}
		inv.PeriodStart = cycle.PeriodStart
		inv.PeriodEnd = cycle.PeriodEnd
		inv.ClosingDate = cycle.ClosingDate
		inv.DueDate = cycle.DueDate

		rows, err := s.installments.ListByInvoice(ctx, tx, inv.ID)
		if err != nil {
			return nil, err
		}
		for _, inst := range rows {
			if inst.DueDate.Equal(cycle.DueDate) {
				continue
			}
			inst.DueDate = cycle.DueDate
			if err := s.installments.Update(ctx, tx, inst); err != nil {
				return nil, err
			}
		}
		if err := s.book.Save(ctx, tx, models.InvoiceOpen, &inv); err != nil {
			return nil, err
		}
		updated = append(updated, inv)
	}
	return updated, nil
}

// Recalculate recomputes an invoice total from its installments.
func (s *InvoiceService) Recalculate(ctx context.Context, invoiceID string) (models.Invoice, []audit.Change, error) {
	ctx, span := tracer.Start(ctx, "InvoiceService.Recalculate")
	defer span.End()

	var before, after models.Invoice
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		before, err = s.invoices.GetForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return notFound("invoice", invoiceID, err)
		}
		after, err = s.book.Recalculate(ctx, tx, invoiceID)
		return err
	})
	if err != nil {
		return models.Invoice{}, nil, err
	}
	if !before.TotalValue.Equal(after.TotalValue) {
		s.logger.Warn("invoice total repaired",
			zap.String("invoice_id", invoiceID),
			zap.String("stored", money.Format(before.TotalValue)),
			zap.String("computed", money.Format(after.TotalValue)),
		)
	}
	s.hub.BroadcastInvoice(after.UserID, websocket.NewInvoiceUpdate(after))
	return after, []audit.Change{{Event: "invoice.recalculated", EntityType: "invoice", EntityID: invoiceID, Before: before, After: after}}, nil
}

type InvoiceDetail struct {
	Invoice      models.Invoice          `json:"invoice"`
	Installments []models.Installment    `json:"installments"`
	Payments     []models.InvoicePayment `json:"payments"`
}

func (s *InvoiceService) Get(ctx context.Context, userID, invoiceID string) (InvoiceDetail, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return InvoiceDetail{}, notFound("invoice", invoiceID, err)
	}
	if inv.UserID != userID {
		return InvoiceDetail{}, missing("invoice", invoiceID)
	}
	var rows []models.Installment
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err = s.installments.ListByInvoice(ctx, tx, invoiceID)
		return err
	})
	if err != nil {
		return InvoiceDetail{}, err
	}
	payments, err := s.invoices.ListPayments(ctx, invoiceID)
	if err != nil {
		return InvoiceDetail{}, err
	}
	return InvoiceDetail{Invoice: inv, Installments: rows, Payments: payments}, nil
}

// ListByCard returns the card's invoices by reference month so external
// schedulers can poll due dates and statuses.
func (s *InvoiceService) ListByCard(ctx context.Context, userID, cardID string) ([]models.Invoice, error) {
	card, err := s.cards.GetByID(ctx, cardID)
	if err != nil {
		return nil, notFound("card", cardID, err)
	}
	if card.UserID != userID {
		return nil, missing("card", cardID)
	}
	return s.invoices.ListByCard(ctx, cardID)
}
