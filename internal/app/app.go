package app

import (
	"time"

	"finance/internal/audit"
	"finance/internal/config"
	"finance/internal/db"
	"finance/internal/handlers"
	"finance/internal/observability"
	"finance/internal/scheduler"
	"finance/internal/services"
	"finance/internal/store"
	"finance/internal/websocket"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// App holds the wired engine shared by the HTTP server and the sweep
// command.
type App struct {
	Handler   *handlers.Handler
	Scheduler *scheduler.Scheduler
	Metrics   *observability.Metrics
	Hub       *websocket.Hub
}

func New(cfg config.Config, database *sqlx.DB, logger *zap.Logger) *App {
	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	cards := store.NewCardStore(database)
	invoices := store.NewInvoiceStore(database)
	installments := store.NewInstallmentStore(database)
	transactions := store.NewTransactionStore(database)
	templates := store.NewRecurringStore(database)
	accounts := store.NewAccountStore(database)
	entries := store.NewLedgerStore(database)
	auditStore := store.NewAuditStore(database)

	txRunner := db.NewTxRunner(database, logger)
	metrics := observability.NewMetrics()
	hub := websocket.NewHub()
	recorder := audit.NewRecorder(auditStore, database, logger)

	book := services.NewInvoiceBook(invoices, installments, metrics, now)
	allocator := services.NewAllocator(book, installments)
	ledger := services.NewLedger(accounts, entries, transactions)
	invoiceService := services.NewInvoiceService(txRunner, book, invoices, installments, cards, ledger, hub, metrics, logger)
	purchaseService := services.NewPurchaseService(txRunner, book, allocator, cards, transactions, installments, hub, metrics, logger)
	recurringService := services.NewRecurringService(txRunner, book, purchaseService, ledger, templates, cards, hub, metrics, logger)
	cardService := services.NewCardService(txRunner, book, cards, invoices, transactions, invoiceService, hub, logger)

	handler := handlers.New(cfg, handlers.Deps{
		TxRunner:     txRunner,
		Cards:        cardService,
		Purchases:    purchaseService,
		Invoices:     invoiceService,
		Recurring:    recurringService,
		Accounts:     accounts,
		Poster:       ledger,
		Transactions: transactions,
		AuditLog:     auditStore,
		Recorder:     recorder,
		Hub:          hub,
		Metrics:      metrics,
		Logger:       logger,
	})
	sweeps := scheduler.New(recurringService, invoiceService, recorder,
		cfg.RecurringSweepInterval, cfg.AgingSweepInterval, logger)

	return &App{Handler: handler, Scheduler: sweeps, Metrics: metrics, Hub: hub}
}
