package handlers

import (
	"net/http"

	"finance/internal/models"
	"finance/internal/services"

	"github.com/go-chi/chi/v5"
)

type payInvoiceRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
}

type paymentResponse struct {
	Invoice     models.Invoice        `json:"invoice"`
	Payment     models.InvoicePayment `json:"payment"`
	Transaction models.Transaction    `json:"transaction"`
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	detail, err := h.invoices.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if detail.Installments == nil {
		detail.Installments = []models.Installment{}
	}
	if detail.Payments == nil {
		detail.Payments = []models.InvoicePayment{}
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req payInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	result, err := h.invoices.Pay(r.Context(), services.PayInvoiceRequest{
		UserID:    userID,
		InvoiceID: chi.URLParam(r, "id"),
		AccountID: req.AccountID,
		Amount:    amount,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, userID, result.Changes)
	respondJSON(w, http.StatusOK, paymentResponse{
		Invoice:     result.Invoice,
		Payment:     result.Payment,
		Transaction: result.Transaction,
	})
}
