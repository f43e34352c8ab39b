package handlers

import (
	"net/http"
	"time"

	"finance/internal/config"
	"finance/internal/db"
	"finance/internal/middleware"
	"finance/internal/observability"
	"finance/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Handler struct {
	cfg          config.Config
	txRunner     db.TxRunner
	cards        CardService
	purchases    PurchaseService
	invoices     InvoiceService
	recurring    RecurringService
	accounts     AccountStore
	poster       Poster
	transactions TransactionStore
	auditLog     AuditStore
	recorder     ChangeRecorder
	hub          *websocket.Hub
	metrics      *observability.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

type Deps struct {
	TxRunner     db.TxRunner
	Cards        CardService
	Purchases    PurchaseService
	Invoices     InvoiceService
	Recurring    RecurringService
	Accounts     AccountStore
	Poster       Poster
	Transactions TransactionStore
	AuditLog     AuditStore
	Recorder     ChangeRecorder
	Hub          *websocket.Hub
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

func New(cfg config.Config, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location()
	return &Handler{
		cfg:          cfg,
		txRunner:     deps.TxRunner,
		cards:        deps.Cards,
		purchases:    deps.Purchases,
		invoices:     deps.Invoices,
		recurring:    deps.Recurring,
		accounts:     deps.Accounts,
		poster:       deps.Poster,
		transactions: deps.Transactions,
		auditLog:     deps.AuditLog,
		recorder:     deps.Recorder,
		hub:          deps.Hub,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          func() time.Time { return time.Now().In(loc) },
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(observability.TracingMiddleware)
	router.Use(observability.ZapLoggerMiddleware(h.logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Origins(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Operator-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		router.Handle("/metrics", h.metrics.Handler())
	}
	router.Get("/ws/invoices", h.WSInvoices)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Post("/", h.CreateCard)
			r.Get("/{id}", h.GetCard)
			r.Patch("/{id}", h.UpdateCard)
			r.Delete("/{id}", h.DeleteCard)
			r.Post("/{id}/archive", h.ArchiveCard)
			r.Get("/{id}/invoices", h.ListCardInvoices)
		})
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", h.CreatePurchase)
			r.Patch("/{id}", h.UpdatePurchase)
			r.Post("/{id}/refund", h.RefundPurchase)
			r.Post("/{id}/partial-refund", h.PartialRefundPurchase)
			r.Post("/{id}/refund-value", h.RefundPurchaseByValue)
			r.Post("/{id}/anticipate", h.AnticipateInstallments)
		})
		r.Get("/invoices/{id}", h.GetInvoice)
		r.Post("/invoices/{id}/pay", h.PayInvoice)
		r.Route("/recurring", func(r chi.Router) {
			r.Post("/", h.CreateRecurring)
			r.Get("/{id}", h.GetRecurring)
			r.Post("/{id}/pause", h.PauseRecurring)
			r.Post("/{id}/resume", h.ResumeRecurring)
			r.Post("/{id}/cancel", h.CancelRecurring)
		})
		r.Get("/accounts", h.ListAccounts)
		r.Post("/accounts", h.CreateAccount)
		r.Get("/transactions", h.ListTransactions)
	})

	router.Route("/operator", func(r chi.Router) {
		r.Use(middleware.RequireOperator(h.cfg.OperatorToken))
		r.Post("/sweeps/recurring", h.RunRecurringSweep)
		r.Post("/sweeps/aging", h.RunAgingSweep)
		r.Post("/invoices/{id}/recalculate", h.RecalculateInvoice)
		r.Get("/audit/{type}/{id}", h.ListAuditLogs)
	})
	return router
}
