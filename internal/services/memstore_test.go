package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"finance/internal/models"
	"finance/internal/observability"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memDB backs every store interface with maps. Rows are stored by value so
// callers never share state with the "database".
type memDB struct {
	mu           sync.Mutex
	seq          int
	cards        map[string]models.Card
	invoices     map[string]models.Invoice
	payments     []models.InvoicePayment
	installments map[string]memInstallment
	transactions map[string]models.Transaction
	templates    map[string]models.RecurringTransaction
	accounts     map[string]store.Account
	entries      []store.LedgerEntryInput
}

type memInstallment struct {
	models.Installment
	seq int
}

func newMemDB() *memDB {
	return &memDB{
		cards:        make(map[string]models.Card),
		invoices:     make(map[string]models.Invoice),
		installments: make(map[string]memInstallment),
		transactions: make(map[string]models.Transaction),
		templates:    make(map[string]models.RecurringTransaction),
		accounts:     make(map[string]store.Account),
	}
}

type memCards struct{ db *memDB }

func (m memCards) Create(_ context.Context, _ store.Execer, card models.Card) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.cards[card.ID] = card
	return nil
}

func (m memCards) GetByID(_ context.Context, cardID string) (models.Card, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	card, ok := m.db.cards[cardID]
	if !ok {
		return models.Card{}, sql.ErrNoRows
	}
	return card, nil
}

func (m memCards) GetForUpdate(ctx context.Context, _ store.Getter, cardID string) (models.Card, error) {
	return m.GetByID(ctx, cardID)
}

func (m memCards) ListByUser(_ context.Context, userID string) ([]models.Card, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Card
	for _, card := range m.db.cards {
		if card.UserID == userID {
			out = append(out, card)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memCards) Update(_ context.Context, _ store.Execer, card models.Card) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.cards[card.ID] = card
	return nil
}

func (m memCards) Delete(_ context.Context, _ store.Execer, cardID string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	delete(m.db.cards, cardID)
	for id, inv := range m.db.invoices {
		if inv.CardID == cardID {
			delete(m.db.invoices, id)
		}
	}
	return nil
}

type memInvoices struct{ db *memDB }

func (m memInvoices) Insert(_ context.Context, _ store.Execer, inv models.Invoice) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.invoices {
		if existing.CardID == inv.CardID && existing.ReferenceMonth == inv.ReferenceMonth {
			return nil
		}
	}
	m.db.invoices[inv.ID] = inv
	return nil
}

func (m memInvoices) GetByReferenceMonth(_ context.Context, _ store.Getter, cardID, referenceMonth string) (models.Invoice, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, inv := range m.db.invoices {
		if inv.CardID == cardID && inv.ReferenceMonth == referenceMonth {
			return inv, nil
		}
	}
	return models.Invoice{}, sql.ErrNoRows
}

func (m memInvoices) GetByID(_ context.Context, invoiceID string) (models.Invoice, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	inv, ok := m.db.invoices[invoiceID]
	if !ok {
		return models.Invoice{}, sql.ErrNoRows
	}
	return inv, nil
}

func (m memInvoices) GetForUpdate(ctx context.Context, _ store.Getter, invoiceID string) (models.Invoice, error) {
	return m.GetByID(ctx, invoiceID)
}

func (m memInvoices) Update(_ context.Context, _ store.Execer, inv models.Invoice) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.invoices[inv.ID]; !ok {
		return sql.ErrNoRows
	}
	m.db.invoices[inv.ID] = inv
	return nil
}

func (m memInvoices) filter(keep func(models.Invoice) bool) []models.Invoice {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Invoice
	for _, inv := range m.db.invoices {
		if keep(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceMonth < out[j].ReferenceMonth })
	return out
}

func (m memInvoices) ListByCard(_ context.Context, cardID string) ([]models.Invoice, error) {
	return m.filter(func(inv models.Invoice) bool { return inv.CardID == cardID }), nil
}

func (m memInvoices) ListOpenByCard(_ context.Context, _ store.Selecter, cardID string) ([]models.Invoice, error) {
	return m.filter(func(inv models.Invoice) bool {
		return inv.CardID == cardID && inv.Status == models.InvoiceOpen
	}), nil
}

func (m memInvoices) ListClosable(_ context.Context, today time.Time) ([]string, error) {
	return invoiceIDs(m.filter(func(inv models.Invoice) bool {
		return inv.Status == models.InvoiceOpen && !inv.ClosingDate.After(today)
	})), nil
}

func (m memInvoices) ListOverdue(_ context.Context, today time.Time) ([]string, error) {
	return invoiceIDs(m.filter(func(inv models.Invoice) bool {
		return inv.Status == models.InvoiceClosed && inv.DueDate.Before(today) && inv.PaidValue.LessThan(inv.TotalValue)
	})), nil
}

func (m memInvoices) CreatePayment(_ context.Context, _ store.Execer, payment models.InvoicePayment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.payments = append(m.db.payments, payment)
	return nil
}

func (m memInvoices) ListPayments(_ context.Context, invoiceID string) ([]models.InvoicePayment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.InvoicePayment
	for _, p := range m.db.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func invoiceIDs(invoices []models.Invoice) []string {
	out := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, inv.ID)
	}
	return out
}

type memInstallments struct{ db *memDB }

func (m memInstallments) Create(_ context.Context, _ store.Execer, inst models.Installment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.seq++
	m.db.installments[inst.ID] = memInstallment{Installment: inst, seq: m.db.seq}
	return nil
}

func (m memInstallments) Update(_ context.Context, _ store.Execer, inst models.Installment) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	row, ok := m.db.installments[inst.ID]
	if !ok {
		return sql.ErrNoRows
	}
	row.Installment = inst
	m.db.installments[inst.ID] = row
	return nil
}

func (m memInstallments) GetForUpdate(_ context.Context, _ store.Getter, installmentID string) (models.Installment, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	row, ok := m.db.installments[installmentID]
	if !ok {
		return models.Installment{}, sql.ErrNoRows
	}
	return row.Installment, nil
}

func (m memInstallments) list(keep func(models.Installment) bool) []models.Installment {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var rows []memInstallment
	for _, row := range m.db.installments {
		if keep(row.Installment) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].InstallmentNumber != rows[j].InstallmentNumber {
			return rows[i].InstallmentNumber < rows[j].InstallmentNumber
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]models.Installment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Installment)
	}
	return out
}

func (m memInstallments) ListByTransaction(_ context.Context, _ store.Selecter, transactionID string) ([]models.Installment, error) {
	return m.list(func(inst models.Installment) bool { return inst.TransactionID == transactionID }), nil
}

func (m memInstallments) ListByInvoice(_ context.Context, _ store.Selecter, invoiceID string) ([]models.Installment, error) {
	return m.list(func(inst models.Installment) bool { return inst.InvoiceID == invoiceID }), nil
}

func (m memInstallments) mark(invoiceID string, status models.InstallmentStatus, match func(models.InstallmentStatus) bool) int64 {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var n int64
	for id, row := range m.db.installments {
		if row.InvoiceID == invoiceID && match(row.Status) {
			row.Status = status
			m.db.installments[id] = row
			n++
		}
	}
	return n
}

func (m memInstallments) MarkPaidByInvoice(_ context.Context, _ store.Execer, invoiceID string) (int64, error) {
	return m.mark(invoiceID, models.InstallmentPaid, func(s models.InstallmentStatus) bool {
		return s != models.InstallmentPaid && s != models.InstallmentReversed
	}), nil
}

func (m memInstallments) MarkBilledByInvoice(_ context.Context, _ store.Execer, invoiceID string) (int64, error) {
	return m.mark(invoiceID, models.InstallmentBilled, func(s models.InstallmentStatus) bool {
		return s == models.InstallmentPending
	}), nil
}

type memTransactions struct{ db *memDB }

func (m memTransactions) Create(_ context.Context, _ store.Execer, txn models.Transaction) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.transactions[txn.ID] = txn
	return nil
}

func (m memTransactions) GetByID(_ context.Context, transactionID string) (models.Transaction, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	txn, ok := m.db.transactions[transactionID]
	if !ok {
		return models.Transaction{}, sql.ErrNoRows
	}
	return txn, nil
}

func (m memTransactions) GetForUpdate(ctx context.Context, _ store.Getter, transactionID string) (models.Transaction, error) {
	return m.GetByID(ctx, transactionID)
}

func (m memTransactions) Update(_ context.Context, _ store.Execer, txn models.Transaction) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.transactions[txn.ID] = txn
	return nil
}

func (m memTransactions) CountByCard(_ context.Context, _ store.Getter, cardID string) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	count := 0
	for _, txn := range m.db.transactions {
		if txn.CardID != nil && *txn.CardID == cardID {
			count++
		}
	}
	return count, nil
}

type memTemplates struct{ db *memDB }

func (m memTemplates) Create(_ context.Context, _ store.Execer, r models.RecurringTransaction) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.templates[r.ID] = r
	return nil
}

func (m memTemplates) GetByID(_ context.Context, id string) (models.RecurringTransaction, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.templates[id]
	if !ok {
		return models.RecurringTransaction{}, sql.ErrNoRows
	}
	return r, nil
}

func (m memTemplates) GetForUpdate(ctx context.Context, _ store.Getter, id string) (models.RecurringTransaction, error) {
	return m.GetByID(ctx, id)
}

func (m memTemplates) ListDue(_ context.Context, today time.Time) ([]string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []string
	for id, r := range m.db.templates {
		if r.Status != models.RecurringActive || r.NextOccurrence.After(today) {
			continue
		}
		if r.EndDate != nil && r.EndDate.Before(today) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m memTemplates) ListExpired(_ context.Context, today time.Time) ([]string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []string
	for id, r := range m.db.templates {
		if r.Status != models.RecurringActive || r.EndDate == nil {
			continue
		}
		if r.EndDate.Before(today) || r.NextOccurrence.After(*r.EndDate) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m memTemplates) Update(_ context.Context, _ store.Execer, r models.RecurringTransaction) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.templates[r.ID] = r
	return nil
}

type memAccounts struct{ db *memDB }

func (m memAccounts) GetForUpdate(_ context.Context, _ store.Getter, accountID string) (store.Account, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	account, ok := m.db.accounts[accountID]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (m memAccounts) UpdateBalance(_ context.Context, _ store.Execer, accountID string, balance decimal.Decimal) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	account := m.db.accounts[accountID]
	account.Balance = balance
	m.db.accounts[accountID] = account
	return nil
}

type memLedger struct{ db *memDB }

func (m memLedger) InsertEntries(_ context.Context, _ store.Execer, entries []store.LedgerEntryInput) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.entries = append(m.db.entries, entries...)
	return nil
}

type stubHub struct {
	mu    sync.Mutex
	calls []websocket.InvoiceUpdate
}

func (s *stubHub) BroadcastInvoice(_ string, update websocket.InvoiceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, update)
}

func (s *stubHub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// engine wires every service against one memDB and an adjustable clock.
type engine struct {
	db        *memDB
	now       time.Time
	hub       *stubHub
	metrics   *observability.Metrics
	book      *InvoiceBook
	allocator *Allocator
	invoices  *InvoiceService
	purchases *PurchaseService
	recurring *RecurringService
	cards     *CardService
}

func newEngine(t *testing.T, now time.Time) *engine {
	t.Helper()
	e := &engine{db: newMemDB(), now: now, hub: &stubHub{}, metrics: observability.NewMetrics()}
	logger := zap.NewNop()
	runner := fakeTxRunner{}

	cards := memCards{e.db}
	invoices := memInvoices{e.db}
	installments := memInstallments{e.db}
	transactions := memTransactions{e.db}

	e.book = NewInvoiceBook(invoices, installments, e.metrics, func() time.Time { return e.now })
	e.allocator = NewAllocator(e.book, installments)
	ledger := NewLedger(memAccounts{e.db}, memLedger{e.db}, transactions)
	e.invoices = NewInvoiceService(runner, e.book, invoices, installments, cards, ledger, e.hub, e.metrics, logger)
	e.purchases = NewPurchaseService(runner, e.book, e.allocator, cards, transactions, installments, e.hub, e.metrics, logger)
	e.recurring = NewRecurringService(runner, e.book, e.purchases, ledger, memTemplates{e.db}, cards, e.hub, e.metrics, logger)
	e.cards = NewCardService(runner, e.book, cards, invoices, transactions, e.invoices, e.hub, logger)
	return e
}

func (e *engine) addCard(id string, closingDay, dueDay int, limit string) models.Card {
	card := models.Card{
		ID:          id,
		UserID:      "user-1",
		Name:        "card " + id,
		ClosingDay:  closingDay,
		DueDay:      dueDay,
		CreditLimit: decimal.RequireFromString(limit),
	}
	e.db.cards[id] = card
	return card
}

func (e *engine) addAccount(id, balance string) {
	e.db.accounts[id] = store.Account{ID: id, UserID: "user-1", Name: "checking", Balance: decimal.RequireFromString(balance)}
}

func (e *engine) invoice(t *testing.T, cardID, referenceMonth string) models.Invoice {
	t.Helper()
	for _, inv := range e.db.invoices {
		if inv.CardID == cardID && inv.ReferenceMonth == referenceMonth {
			return inv
		}
	}
	t.Fatalf("no invoice %s for card %s", referenceMonth, cardID)
	return models.Invoice{}
}

func (e *engine) installmentsOf(transactionID string) []models.Installment {
	rows, _ := memInstallments{e.db}.ListByTransaction(context.Background(), nil, transactionID)
	return rows
}

func (e *engine) installmentsIn(invoiceID string) []models.Installment {
	rows, _ := memInstallments{e.db}.ListByInvoice(context.Background(), nil, invoiceID)
	return rows
}

// assertTotals checks that every stored invoice total equals the sum of its
// active installments.
func (e *engine) assertTotals(t *testing.T) {
	t.Helper()
	for _, inv := range e.db.invoices {
		want := models.ActiveTotal(e.installmentsIn(inv.ID))
		if !inv.TotalValue.Equal(want) {
			t.Fatalf("invoice %s total %s, installments sum to %s", inv.ReferenceMonth, inv.TotalValue, want)
		}
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func at(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func strPtr(s string) *string {
	return &s
}
