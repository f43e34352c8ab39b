package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"finance/internal/audit"
	"finance/internal/auth"
	"finance/internal/config"
	"finance/internal/models"
	"finance/internal/services"
	"finance/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	testSecret        = "secret"
	testOperatorToken = "op-token"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubCardService struct {
	createFn  func(ctx context.Context, req services.CreateCardRequest) (services.CardResult, error)
	getFn     func(ctx context.Context, userID, cardID string) (services.CardSummary, error)
	listFn    func(ctx context.Context, userID string) ([]services.CardSummary, error)
	updateFn  func(ctx context.Context, req services.UpdateCardRequest) (services.CardResult, error)
	archiveFn func(ctx context.Context, userID, cardID string) (services.CardResult, error)
	deleteFn  func(ctx context.Context, userID, cardID string) ([]audit.Change, error)
}

func (s stubCardService) Create(ctx context.Context, req services.CreateCardRequest) (services.CardResult, error) {
	if s.createFn == nil {
		return services.CardResult{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubCardService) Get(ctx context.Context, userID, cardID string) (services.CardSummary, error) {
	if s.getFn == nil {
		return services.CardSummary{}, nil
	}
	return s.getFn(ctx, userID, cardID)
}

func (s stubCardService) List(ctx context.Context, userID string) ([]services.CardSummary, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID)
}

func (s stubCardService) Update(ctx context.Context, req services.UpdateCardRequest) (services.CardResult, error) {
	if s.updateFn == nil {
		return services.CardResult{}, nil
	}
	return s.updateFn(ctx, req)
}

func (s stubCardService) Archive(ctx context.Context, userID, cardID string) (services.CardResult, error) {
	if s.archiveFn == nil {
		return services.CardResult{}, nil
	}
	return s.archiveFn(ctx, userID, cardID)
}

func (s stubCardService) Delete(ctx context.Context, userID, cardID string) ([]audit.Change, error) {
	if s.deleteFn == nil {
		return nil, nil
	}
	return s.deleteFn(ctx, userID, cardID)
}

type stubPurchaseService struct {
	createFn        func(ctx context.Context, req services.CreatePurchaseRequest) (services.PurchaseResult, error)
	updateFn        func(ctx context.Context, req services.UpdatePurchaseRequest) (services.PurchaseResult, error)
	refundFn        func(ctx context.Context, req services.RefundRequest) (services.PurchaseResult, error)
	partialRefundFn func(ctx context.Context, req services.PartialRefundRequest) (services.PurchaseResult, error)
	refundByValueFn func(ctx context.Context, req services.RefundByValueRequest) (services.PurchaseResult, error)
	anticipateFn    func(ctx context.Context, req services.AnticipateRequest) (services.PurchaseResult, error)
}

func (s stubPurchaseService) Create(ctx context.Context, req services.CreatePurchaseRequest) (services.PurchaseResult, error) {
	if s.createFn == nil {
		return services.PurchaseResult{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubPurchaseService) Update(ctx context.Context, req services.UpdatePurchaseRequest) (services.PurchaseResult, error) {
	if s.updateFn == nil {
		return services.PurchaseResult{}, nil
	}
	return s.updateFn(ctx, req)
}

func (s stubPurchaseService) Refund(ctx context.Context, req services.RefundRequest) (services.PurchaseResult, error) {
	if s.refundFn == nil {
		return services.PurchaseResult{}, nil
	}
	return s.refundFn(ctx, req)
}

func (s stubPurchaseService) PartialRefund(ctx context.Context, req services.PartialRefundRequest) (services.PurchaseResult, error) {
	if s.partialRefundFn == nil {
		return services.PurchaseResult{}, nil
	}
	return s.partialRefundFn(ctx, req)
}

func (s stubPurchaseService) RefundByValue(ctx context.Context, req services.RefundByValueRequest) (services.PurchaseResult, error) {
	if s.refundByValueFn == nil {
		return services.PurchaseResult{}, nil
	}
	return s.refundByValueFn(ctx, req)
}

func (s stubPurchaseService) Anticipate(ctx context.Context, req services.AnticipateRequest) (services.PurchaseResult, error) {
	if s.anticipateFn == nil {
		return services.PurchaseResult{}, nil
	}
	return s.anticipateFn(ctx, req)
}

type stubInvoiceService struct {
	payFn         func(ctx context.Context, req services.PayInvoiceRequest) (services.PaymentResult, error)
	getFn         func(ctx context.Context, userID, invoiceID string) (services.InvoiceDetail, error)
	listByCardFn  func(ctx context.Context, userID, cardID string) ([]models.Invoice, error)
	recalculateFn func(ctx context.Context, invoiceID string) (models.Invoice, []audit.Change, error)
	agingFn       func(ctx context.Context) (services.AgingReport, error)
}

func (s stubInvoiceService) Pay(ctx context.Context, req services.PayInvoiceRequest) (services.PaymentResult, error) {
	if s.payFn == nil {
		return services.PaymentResult{}, nil
	}
	return s.payFn(ctx, req)
}

func (s stubInvoiceService) Get(ctx context.Context, userID, invoiceID string) (services.InvoiceDetail, error) {
	if s.getFn == nil {
		return services.InvoiceDetail{}, nil
	}
	return s.getFn(ctx, userID, invoiceID)
}

func (s stubInvoiceService) ListByCard(ctx context.Context, userID, cardID string) ([]models.Invoice, error) {
	if s.listByCardFn == nil {
		return nil, nil
	}
	return s.listByCardFn(ctx, userID, cardID)
}

func (s stubInvoiceService) Recalculate(ctx context.Context, invoiceID string) (models.Invoice, []audit.Change, error) {
	if s.recalculateFn == nil {
		return models.Invoice{}, nil, nil
	}
	return s.recalculateFn(ctx, invoiceID)
}

func (s stubInvoiceService) RunAgingSweep(ctx context.Context) (services.AgingReport, error) {
	if s.agingFn == nil {
		return services.AgingReport{}, nil
	}
	return s.agingFn(ctx)
}

type stubRecurringService struct {
	createFn func(ctx context.Context, req services.CreateRecurringRequest) (services.RecurringResult, error)
	getFn    func(ctx context.Context, userID, templateID string) (models.RecurringTransaction, error)
	pauseFn  func(ctx context.Context, userID, templateID string) (services.RecurringResult, error)
	resumeFn func(ctx context.Context, userID, templateID string) (services.RecurringResult, error)
	cancelFn func(ctx context.Context, userID, templateID string) (services.RecurringResult, error)
	sweepFn  func(ctx context.Context) (services.SweepReport, error)
}

func (s stubRecurringService) Create(ctx context.Context, req services.CreateRecurringRequest) (services.RecurringResult, error) {
	if s.createFn == nil {
		return services.RecurringResult{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubRecurringService) Get(ctx context.Context, userID, templateID string) (models.RecurringTransaction, error) {
	if s.getFn == nil {
		return models.RecurringTransaction{}, nil
	}
	return s.getFn(ctx, userID, templateID)
}

func (s stubRecurringService) Pause(ctx context.Context, userID, templateID string) (services.RecurringResult, error) {
	if s.pauseFn == nil {
		return services.RecurringResult{}, nil
	}
	return s.pauseFn(ctx, userID, templateID)
}

func (s stubRecurringService) Resume(ctx context.Context, userID, templateID string) (services.RecurringResult, error) {
	if s.resumeFn == nil {
		return services.RecurringResult{}, nil
	}
	return s.resumeFn(ctx, userID, templateID)
}

func (s stubRecurringService) Cancel(ctx context.Context, userID, templateID string) (services.RecurringResult, error) {
	if s.cancelFn == nil {
		return services.RecurringResult{}, nil
	}
	return s.cancelFn(ctx, userID, templateID)
}

func (s stubRecurringService) RunSweep(ctx context.Context) (services.SweepReport, error) {
	if s.sweepFn == nil {
		return services.SweepReport{}, nil
	}
	return s.sweepFn(ctx)
}

type stubAccountStore struct {
	createFn    func(ctx context.Context, tx store.Execer, id, userID, name string, balance decimal.Decimal) error
	getByUserFn func(ctx context.Context, userID string) ([]store.AccountBalanceSummary, error)
}

func (s stubAccountStore) Create(ctx context.Context, tx store.Execer, id, userID, name string, balance decimal.Decimal) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, userID, name, balance)
}

func (s stubAccountStore) GetByUser(ctx context.Context, userID string) ([]store.AccountBalanceSummary, error) {
	if s.getByUserFn == nil {
		return nil, nil
	}
	return s.getByUserFn(ctx, userID)
}

type stubPoster struct {
	postFn func(ctx context.Context, tx store.Tx, p services.Posting) (models.Transaction, error)
}

func (s stubPoster) Post(ctx context.Context, tx store.Tx, p services.Posting) (models.Transaction, error) {
	if s.postFn == nil {
		return models.Transaction{}, nil
	}
	return s.postFn(ctx, tx, p)
}

type stubTransactionStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
}

func (s stubTransactionStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

type stubAuditStore struct {
	listByEntityFn func(ctx context.Context, entityType, entityID string, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]store.AuditEntry, error) {
	if s.listByEntityFn == nil {
		return nil, nil
	}
	return s.listByEntityFn(ctx, entityType, entityID, limit, offset)
}

type recordedChanges struct {
	actorID string
	changes []audit.Change
}

type stubRecorder struct {
	mu    sync.Mutex
	calls []recordedChanges
}

func (s *stubRecorder) Record(_ context.Context, actorID string, changes []audit.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, recordedChanges{actorID: actorID, changes: changes})
}

func (s *stubRecorder) recorded() []recordedChanges {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedChanges(nil), s.calls...)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      testSecret,
		AllowedOrigins: "*",
		Timezone:       "UTC",
		OperatorToken:  testOperatorToken,
	}
}

// newTestHandler fills every dependency the test leaves empty with a stub
// that returns zero values.
func newTestHandler(deps Deps) *Handler {
	if deps.TxRunner == nil {
		deps.TxRunner = fakeTxRunner{}
	}
	if deps.Cards == nil {
		deps.Cards = stubCardService{}
	}
	if deps.Purchases == nil {
		deps.Purchases = stubPurchaseService{}
	}
	if deps.Invoices == nil {
		deps.Invoices = stubInvoiceService{}
	}
	if deps.Recurring == nil {
		deps.Recurring = stubRecurringService{}
	}
	if deps.Accounts == nil {
		deps.Accounts = stubAccountStore{}
	}
	if deps.Poster == nil {
		deps.Poster = stubPoster{}
	}
	if deps.Transactions == nil {
		deps.Transactions = stubTransactionStore{}
	}
	if deps.AuditLog == nil {
		deps.AuditLog = stubAuditStore{}
	}
	if deps.Recorder == nil {
		deps.Recorder = &stubRecorder{}
	}
	return New(testConfig(), deps)
}

func serveWithAuth(t *testing.T, handler *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func serveAsOperator(handler *Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Operator-Token", testOperatorToken)
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func serve(handler *Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}
