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
	"finance/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// RecurringService manages recurring templates and generates their
// occurrences. It is the only writer of template status.
type RecurringService struct {
	txRunner  db.TxRunner
	book      *InvoiceBook
	purchases *PurchaseService
	ledger    *Ledger
	templates RecurringStore
	cards     CardStore
	hub       InvoiceHub
	metrics   *observability.Metrics
	logger    *zap.Logger

	sweeping *semaphore.Weighted
}

func NewRecurringService(txRunner db.TxRunner, book *InvoiceBook, purchases *PurchaseService, ledger *Ledger, templates RecurringStore, cards CardStore, hub InvoiceHub, metrics *observability.Metrics, logger *zap.Logger) *RecurringService {
	return &RecurringService{
		txRunner:  txRunner,
		book:      book,
		purchases: purchases,
		ledger:    ledger,
		templates: templates,
		cards:     cards,
		hub:       hub,
		metrics:   metrics,
		logger:    logger,
		sweeping:  semaphore.NewWeighted(1),
	}
}

type CreateRecurringRequest struct {
	UserID         string
	Type           models.TransactionType
	Description    string
	CategoryID     *string
	Value          decimal.Decimal
	AccountID      *string
	CardID         *string
	Frequency      models.Frequency
	FrequencyValue int
	StartDate      time.Time
	EndDate        *time.Time
}

type RecurringResult struct {
	Template models.RecurringTransaction
	Changes  []audit.Change
}

func (s *RecurringService) Create(ctx context.Context, req CreateRecurringRequest) (RecurringResult, error) {
	ctx, span := tracer.Start(ctx, "RecurringService.Create")
	defer span.End()

	if err := validateTemplate(req); err != nil {
		return RecurringResult{}, err
	}
	frequencyValue := req.FrequencyValue
	if frequencyValue == 0 {
		frequencyValue = 1
	}
	start := billing.Date(req.StartDate)
	var end *time.Time
	if req.EndDate != nil {
		d := billing.Date(*req.EndDate)
		end = &d
	}
	r := models.RecurringTransaction{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Type:           req.Type,
		Description:    strings.TrimSpace(req.Description),
		CategoryID:     req.CategoryID,
		Value:          money.Round(req.Value),
		AccountID:      nonEmpty(req.AccountID),
		CardID:         nonEmpty(req.CardID),
		Frequency:      req.Frequency,
		FrequencyValue: frequencyValue,
		StartDate:      start,
		EndDate:        end,
		NextOccurrence: start,
		Status:         models.RecurringActive,
	}

	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if r.IsCardBound() {
			card, err := s.cards.GetForUpdate(ctx, tx, *r.CardID)
			if err != nil {
				return notFound("card", *r.CardID, err)
			}
			if card.UserID != r.UserID {
				return missing("card", card.ID)
			}
			if card.Archived() {
				return ErrCardArchived
			}
		}
		return s.templates.Create(ctx, tx, r)
	})
	if err != nil {
		return RecurringResult{}, err
	}
	return RecurringResult{
		Template: r,
		Changes:  []audit.Change{{Event: "recurring.created", EntityType: "recurring_transaction", EntityID: r.ID, After: r}},
	}, nil
}

// Pause stops generation for an active template.
func (s *RecurringService) Pause(ctx context.Context, userID, templateID string) (RecurringResult, error) {
	return s.transition(ctx, userID, templateID, "recurring.paused", func(r *models.RecurringTransaction) error {
		if r.Status != models.RecurringActive {
			return ErrTemplateState
		}
		r.Status = models.RecurringPaused
		return nil
	})
}

// Resume reactivates a paused template. Occurrences missed while paused
// are not generated: next_occurrence moves forward to the first step on or
// after today.
func (s *RecurringService) Resume(ctx context.Context, userID, templateID string) (RecurringResult, error) {
	today := s.book.Today()
	return s.transition(ctx, userID, templateID, "recurring.resumed", func(r *models.RecurringTransaction) error {
		if r.Status != models.RecurringPaused {
			return ErrTemplateState
		}
		next := billing.Date(r.NextOccurrence)
		for next.Before(today) {
			advanced, err := billing.NextOccurrence(r.Frequency, r.FrequencyValue, next)
			if err != nil {
				return err
			}
			next = advanced
		}
		r.NextOccurrence = next
		r.Status = models.RecurringActive
		if r.EndDate != nil && next.After(billing.Date(*r.EndDate)) {
			r.Status = models.RecurringEnded
		}
		return nil
	})
}

// Cancel ends a template for good.
func (s *RecurringService) Cancel(ctx context.Context, userID, templateID string) (RecurringResult, error) {
	return s.transition(ctx, userID, templateID, "recurring.cancelled", func(r *models.RecurringTransaction) error {
		r.Status = models.RecurringEnded
		return nil
	})
}

func (s *RecurringService) transition(ctx context.Context, userID, templateID, event string, apply func(*models.RecurringTransaction) error) (RecurringResult, error) {
	ctx, span := tracer.Start(ctx, "RecurringService.Transition")
	defer span.End()
	span.SetAttributes(attribute.String("recurring.id", templateID), attribute.String("event", event))

	var result RecurringResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		r, err := s.templates.GetForUpdate(ctx, tx, templateID)
		if err != nil {
			return notFound("recurring transaction", templateID, err)
		}
		if r.UserID != userID {
			return missing("recurring transaction", templateID)
		}
		if r.Status == models.RecurringEnded {
			return ErrTemplateEnded
		}
		before := r
		if err := apply(&r); err != nil {
			return err
		}
		if err := s.templates.Update(ctx, tx, r); err != nil {
			return err
		}
		result = RecurringResult{
			Template: r,
			Changes:  []audit.Change{{Event: event, EntityType: "recurring_transaction", EntityID: r.ID, Before: before, After: r}},
		}
		return nil
	})
	if err != nil {
		return RecurringResult{}, err
	}
	return result, nil
}

func (s *RecurringService) Get(ctx context.Context, userID, templateID string) (models.RecurringTransaction, error) {
	r, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return models.RecurringTransaction{}, notFound("recurring transaction", templateID, err)
	}
	if r.UserID != userID {
		return models.RecurringTransaction{}, missing("recurring transaction", templateID)
	}
	return r, nil
}

// SweepReport summarises one generation run.
type SweepReport struct {
	Generated int
	Skipped   int
	Ended     int
	Errors    []error
	Changes   []audit.Change
}

// RunSweep generates at most one occurrence for every template due today.
// Each template is handled in its own transaction; a failure is recorded in
// the report and the run moves on. A run that starts while another is in
// progress returns ErrSweepInProgress.
func (s *RecurringService) RunSweep(ctx context.Context) (SweepReport, error) {
	if !s.sweeping.TryAcquire(1) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer s.sweeping.Release(1)

	ctx, span := tracer.Start(ctx, "RecurringService.RunSweep")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveSweep("recurring", time.Since(start)) }()

	today := s.book.Today()
	expired, err := s.templates.ListExpired(ctx, today)
	if err != nil {
		return SweepReport{}, err
	}
	ids, err := s.templates.ListDue(ctx, today)
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	for _, id := range expired {
		change, ended, err := s.expire(ctx, id, today)
		switch {
		case err != nil:
			s.logger.Error("recurring expiry failed", zap.String("recurring_id", id), zap.Error(err))
			report.Errors = append(report.Errors, err)
		case ended:
			report.Ended++
			report.Changes = append(report.Changes, change)
		}
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, err)
			break
		}
		generated, changes, err := s.generate(ctx, id, today)
		switch {
		case err != nil:
			s.logger.Error("recurring generation failed", zap.String("recurring_id", id), zap.Error(err))
			report.Errors = append(report.Errors, err)
		case generated:
			report.Generated++
			report.Changes = append(report.Changes, changes...)
		default:
			report.Skipped++
		}
	}
	s.metrics.RecordSweep(report.Generated, report.Skipped, len(report.Errors))
	span.SetAttributes(attribute.Int("recurring.generated", report.Generated))
	s.logger.Info("recurring sweep finished",
		zap.Int("due", len(ids)),
		zap.Int("generated", report.Generated),
		zap.Int("skipped", report.Skipped),
		zap.Int("ended", report.Ended),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// generate produces the occurrence of one template under its row lock.
// The lock plus the last_generated_at guard make a second run on the same
// day a no-op.
func (s *RecurringService) generate(ctx context.Context, templateID string, today time.Time) (bool, []audit.Change, error) {
	var generated bool
	var changes []audit.Change
	var invoices []models.Invoice
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		r, err := s.templates.GetForUpdate(ctx, tx, templateID)
		if err != nil {
			return notFound("recurring transaction", templateID, err)
		}
		if r.Status != models.RecurringActive || !billing.ShouldGenerate(r, today) {
			return nil
		}
		before := r
		occurrence := billing.Date(r.NextOccurrence)
		recurringID := r.ID

		var txn models.Transaction
		if r.IsCardBound() {
			card, err := s.cards.GetForUpdate(ctx, tx, *r.CardID)
			if err != nil {
				return notFound("card", *r.CardID, err)
			}
			if card.Archived() {
				return ErrCardArchived
			}
			cardID := card.ID
			charged, err := s.purchases.charge(ctx, tx, models.Transaction{
				ID:                uuid.NewString(),
				UserID:            r.UserID,
				Type:              models.TransactionExpense,
				Status:            models.TransactionConfirmed,
				Description:       r.Description,
				CategoryID:        r.CategoryID,
				Value:             r.Value,
				InstallmentValue:  r.Value,
				TotalInstallments: 1,
				RefundedValue:     decimal.Zero,
				Date:              occurrence,
				CardID:            &cardID,
				RecurringID:       &recurringID,
			}, card)
			if err != nil {
				return err
			}
			txn = charged.Transaction
			invoices = charged.Invoices
		} else {
			txn, err = s.ledger.Post(ctx, tx, Posting{
				UserID:      r.UserID,
				AccountID:   *r.AccountID,
				Type:        r.Type,
				Amount:      r.Value,
				Description: r.Description,
				CategoryID:  r.CategoryID,
				Date:        occurrence,
				RecurringID: &recurringID,
			})
			if err != nil {
				return err
			}
		}

		next, err := billing.NextOccurrence(r.Frequency, r.FrequencyValue, occurrence)
		if err != nil {
			return err
		}
		r.NextOccurrence = next
		r.LastGeneratedAt = &today
		if r.EndDate != nil && next.After(billing.Date(*r.EndDate)) {
			r.Status = models.RecurringEnded
		}
		if err := s.templates.Update(ctx, tx, r); err != nil {
			return err
		}
		generated = true
		changes = []audit.Change{
			{Event: "recurring.generated", EntityType: "transaction", EntityID: txn.ID, After: txn},
			{Event: "recurring.advanced", EntityType: "recurring_transaction", EntityID: r.ID, Before: before, After: r},
		}
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	for _, inv := range invoices {
		s.hub.BroadcastInvoice(inv.UserID, websocket.NewInvoiceUpdate(inv))
	}
	return generated, changes, nil
}

// expire ends an active template whose end date leaves no occurrence to
// generate.
func (s *RecurringService) expire(ctx context.Context, templateID string, today time.Time) (audit.Change, bool, error) {
	var change audit.Change
	var ended bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		r, err := s.templates.GetForUpdate(ctx, tx, templateID)
		if err != nil {
			return notFound("recurring transaction", templateID, err)
		}
		if r.Status != models.RecurringActive || r.EndDate == nil {
			return nil
		}
		end := billing.Date(*r.EndDate)
		if !end.Before(today) && !billing.Date(r.NextOccurrence).After(end) {
			return nil
		}
		before := r
		r.Status = models.RecurringEnded
		if err := s.templates.Update(ctx, tx, r); err != nil {
			return err
		}
		ended = true
		change = audit.Change{Event: "recurring.expired", EntityType: "recurring_transaction", EntityID: r.ID, Before: before, After: r}
		return nil
	})
	if err != nil {
		return audit.Change{}, false, err
	}
	return change, ended, nil
}

func validateTemplate(req CreateRecurringRequest) error {
	if strings.TrimSpace(req.Description) == "" {
		return invalid("description", "is required")
	}
	if !money.Positive(req.Value) {
		return invalid("value", "must be greater than zero")
	}
	if req.Type != models.TransactionExpense && req.Type != models.TransactionIncome {
		return invalid("type", "must be despesa or receita")
	}
	if !req.Frequency.IsValid() {
		return invalid("frequency", "must be semanal, mensal, anual or personalizado")
	}
	if req.FrequencyValue < 0 || (req.Frequency == models.FrequencyDays && req.FrequencyValue < 1) {
		return invalid("frequency_value", "must be at least 1")
	}
	if req.StartDate.IsZero() {
		return invalid("start_date", "is required")
	}
	if req.EndDate != nil && billing.Date(*req.EndDate).Before(billing.Date(req.StartDate)) {
		return invalid("end_date", "must not be before start_date")
	}
	account := nonEmpty(req.AccountID)
	card := nonEmpty(req.CardID)
	if (account == nil) == (card == nil) {
		return invalid("account_id", "exactly one of account_id or card_id is required")
	}
	if card != nil && req.Type != models.TransactionExpense {
		return invalid("type", "card recurrences must be despesa")
	}
	return nil
}

func nonEmpty(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}
