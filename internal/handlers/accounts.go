package handlers

import (
	"net/http"
	"strings"

	"finance/internal/models"
	"finance/internal/money"
	"finance/internal/services"
	"finance/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type createAccountRequest struct {
	Name           string `json:"name"`
	OpeningBalance string `json:"opening_balance"`
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	rows, err := h.accounts.GetByUser(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []store.AccountBalanceSummary{}
	}
	respondJSON(w, http.StatusOK, rows)
}

// CreateAccount opens an account at zero and posts the opening balance as
// income, so the stored balance always matches the ledger.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	opening := decimal.Zero
	if req.OpeningBalance != "" {
		amount, err := parseAmount(req.OpeningBalance)
		if err != nil || amount.IsNegative() {
			respondError(w, http.StatusBadRequest, "invalid_opening_balance")
			return
		}
		opening = amount
	}

	accountID := uuid.NewString()
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.accounts.Create(r.Context(), tx, accountID, userID, name, decimal.Zero); err != nil {
			return err
		}
		if !money.Positive(opening) {
			return nil
		}
		_, err := h.poster.Post(r.Context(), tx, services.Posting{
			UserID:      userID,
			AccountID:   accountID,
			Type:        models.TransactionIncome,
			Amount:      opening,
			Description: "Opening balance",
			Date:        h.now(),
		})
		return err
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"id":      accountID,
		"name":    name,
		"balance": money.Format(opening),
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	rows, err := h.transactions.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Transaction{}
	}
	respondJSON(w, http.StatusOK, rows)
}
