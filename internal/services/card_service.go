package services

import (
	"context"
	"strings"

	"finance/internal/audit"
	"finance/internal/billing"
	"finance/internal/db"
	"finance/internal/models"
	"finance/internal/money"
	"finance/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type CardService struct {
	txRunner     db.TxRunner
	book         *InvoiceBook
	cards        CardStore
	invoices     InvoiceStore
	transactions TransactionStore
	lifecycle    *InvoiceService
	hub          InvoiceHub
	logger       *zap.Logger
}

func NewCardService(txRunner db.TxRunner, book *InvoiceBook, cards CardStore, invoices InvoiceStore, transactions TransactionStore, lifecycle *InvoiceService, hub InvoiceHub, logger *zap.Logger) *CardService {
	return &CardService{
		txRunner:     txRunner,
		book:         book,
		cards:        cards,
		invoices:     invoices,
		transactions: transactions,
		lifecycle:    lifecycle,
		hub:          hub,
		logger:       logger,
	}
}

// CardSummary is a card with its limit usage.
type CardSummary struct {
	models.Card
	UsedLimit       decimal.Decimal `json:"used_limit"`
	AvailableLimit  decimal.Decimal `json:"available_limit"`
	UsagePercentage decimal.Decimal `json:"usage_percentage"`
}

type CardResult struct {
	Card     models.Card
	Invoices []models.Invoice
	Changes  []audit.Change
}

type CreateCardRequest struct {
	UserID      string
	Name        string
	ClosingDay  int
	DueDay      int
	CreditLimit decimal.Decimal
}

func (s *CardService) Create(ctx context.Context, req CreateCardRequest) (CardResult, error) {
	ctx, span := tracer.Start(ctx, "CardService.Create")
	defer span.End()

	card := models.Card{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Name:        strings.TrimSpace(req.Name),
		ClosingDay:  req.ClosingDay,
		DueDay:      req.DueDay,
		CreditLimit: money.Round(req.CreditLimit),
	}
	if err := validateCard(card); err != nil {
		return CardResult{}, err
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.cards.Create(ctx, tx, card)
	})
	if err != nil {
		return CardResult{}, err
	}
	return CardResult{
		Card:    card,
		Changes: []audit.Change{{Event: "card.created", EntityType: "card", EntityID: card.ID, After: card}},
	}, nil
}

func (s *CardService) Get(ctx context.Context, userID, cardID string) (CardSummary, error) {
	card, err := s.cards.GetByID(ctx, cardID)
	if err != nil {
		return CardSummary{}, notFound("card", cardID, err)
	}
	if card.UserID != userID {
		return CardSummary{}, missing("card", cardID)
	}
	return s.summarize(ctx, card)
}

func (s *CardService) List(ctx context.Context, userID string) ([]CardSummary, error) {
	cards, err := s.cards.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]CardSummary, 0, len(cards))
	for _, card := range cards {
		summary, err := s.summarize(ctx, card)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

func (s *CardService) summarize(ctx context.Context, card models.Card) (CardSummary, error) {
	invoices, err := s.invoices.ListByCard(ctx, card.ID)
	if err != nil {
		return CardSummary{}, err
	}
	return CardSummary{
		Card:            card,
		UsedLimit:       card.UsedLimit(invoices),
		AvailableLimit:  card.AvailableLimit(invoices),
		UsagePercentage: card.UsagePercentage(invoices),
	}, nil
}

type UpdateCardRequest struct {
	UserID      string
	CardID      string
	Name        *string
	ClosingDay  *int
	DueDay      *int
	CreditLimit *decimal.Decimal
}

// Update edits a card. Changing the closing or due day reprocesses the dates
// of every open invoice in the same transaction.
func (s *CardService) Update(ctx context.Context, req UpdateCardRequest) (CardResult, error) {
	ctx, span := tracer.Start(ctx, "CardService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("card.id", req.CardID))

	var result CardResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		card, err := s.lockOwned(ctx, tx, req.UserID, req.CardID)
		if err != nil {
			return err
		}
		before := card
		if req.Name != nil {
			card.Name = strings.TrimSpace(*req.Name)
		}
		if req.CreditLimit != nil {
			card.CreditLimit = money.Round(*req.CreditLimit)
		}
		cycleChanged := false
		if req.ClosingDay != nil && *req.ClosingDay != card.ClosingDay {
			card.ClosingDay = *req.ClosingDay
			cycleChanged = true
		}
		if req.DueDay != nil && *req.DueDay != card.DueDay {
			card.DueDay = *req.DueDay
			cycleChanged = true
		}
		if err := validateCard(card); err != nil {
			return err
		}
		if err := s.cards.Update(ctx, tx, card); err != nil {
			return err
		}
		result = CardResult{
			Card:    card,
			Changes: []audit.Change{{Event: "card.updated", EntityType: "card", EntityID: card.ID, Before: before, After: card}},
		}
		if !cycleChanged {
			return nil
		}
		result.Invoices, err = s.lifecycle.Reprocess(ctx, tx, card)
		return err
	})
	if err != nil {
		return CardResult{}, err
	}
	for _, inv := range result.Invoices {
		s.hub.BroadcastInvoice(inv.UserID, websocket.NewInvoiceUpdate(inv))
	}
	if len(result.Invoices) > 0 {
		s.logger.Info("open invoices reprocessed",
			zap.String("card_id", result.Card.ID),
			zap.Int("invoices", len(result.Invoices)),
		)
	}
	return result, nil
}

// Archive hides a card from new purchases. Existing invoices keep their
// lifecycle.
func (s *CardService) Archive(ctx context.Context, userID, cardID string) (CardResult, error) {
	var result CardResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		card, err := s.lockOwned(ctx, tx, userID, cardID)
		if err != nil {
			return err
		}
		if card.Archived() {
			return ErrCardArchived
		}
		before := card
		now := s.book.now()
		card.ArchivedAt = &now
		if err := s.cards.Update(ctx, tx, card); err != nil {
			return err
		}
		result = CardResult{
			Card:    card,
			Changes: []audit.Change{{Event: "card.archived", EntityType: "card", EntityID: card.ID, Before: before, After: card}},
		}
		return nil
	})
	if err != nil {
		return CardResult{}, err
	}
	return result, nil
}

// Delete removes a card that never carried a transaction. Cards with
// history can only be archived.
func (s *CardService) Delete(ctx context.Context, userID, cardID string) ([]audit.Change, error) {
	var changes []audit.Change
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		card, err := s.lockOwned(ctx, tx, userID, cardID)
		if err != nil {
			return err
		}
		count, err := s.transactions.CountByCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrCardHasTransactions
		}
		if err := s.cards.Delete(ctx, tx, cardID); err != nil {
			return err
		}
		changes = []audit.Change{{Event: "card.deleted", EntityType: "card", EntityID: cardID, Before: card}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (s *CardService) lockOwned(ctx context.Context, tx *sqlx.Tx, userID, cardID string) (models.Card, error) {
	card, err := s.cards.GetForUpdate(ctx, tx, cardID)
	if err != nil {
		return models.Card{}, notFound("card", cardID, err)
	}
	if card.UserID != userID {
		return models.Card{}, missing("card", cardID)
	}
	return card, nil
}

func validateCard(card models.Card) error {
	if card.Name == "" {
		return invalid("name", "is required")
	}
	if err := billing.ValidateCycleDays(card.ClosingDay, card.DueDay); err != nil {
		return invalid("closing_day", err.Error())
	}
	if card.CreditLimit.IsNegative() {
		return invalid("credit_limit", "must not be negative")
	}
	return nil
}
