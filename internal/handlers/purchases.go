package handlers

import (
	"net/http"

	"finance/internal/models"
	"finance/internal/services"

	"github.com/go-chi/chi/v5"
)

type createPurchaseRequest struct {
	CardID       string  `json:"card_id"`
	Description  string  `json:"description"`
	CategoryID   *string `json:"category_id"`
	Notes        *string `json:"notes"`
	Value        string  `json:"value"`
	Installments int     `json:"installments"`
	Date         string  `json:"date"`
}

type updatePurchaseRequest struct {
	Description  *string `json:"description"`
	CategoryID   *string `json:"category_id"`
	Notes        *string `json:"notes"`
	Value        *string `json:"value"`
	Installments *int    `json:"installments"`
	Date         *string `json:"date"`
	CardID       *string `json:"card_id"`
}

type partialRefundRequest struct {
	Keep int `json:"keep_installments"`
}

type refundValueRequest struct {
	Amount string `json:"amount"`
}

type anticipateRequest struct {
	InstallmentIDs []string `json:"installment_ids"`
	Discount       string   `json:"discount"`
}

type purchaseResponse struct {
	Transaction  models.Transaction   `json:"transaction"`
	Installments []models.Installment `json:"installments"`
	Invoices     []models.Invoice     `json:"invoices"`
}

func (h *Handler) respondPurchase(w http.ResponseWriter, r *http.Request, userID string, status int, result services.PurchaseResult) {
	h.record(r, userID, result.Changes)
	installments := result.Installments
	if installments == nil {
		installments = []models.Installment{}
	}
	invoices := result.Invoices
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	respondJSON(w, status, purchaseResponse{
		Transaction:  result.Transaction,
		Installments: installments,
		Invoices:     invoices,
	})
}

func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createPurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	date, err := parseDate(req.Date, h.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	installments := req.Installments
	if installments == 0 {
		installments = 1
	}
	result, err := h.purchases.Create(r.Context(), services.CreatePurchaseRequest{
		UserID:       userID,
		CardID:       req.CardID,
		Description:  req.Description,
		CategoryID:   req.CategoryID,
		Notes:        req.Notes,
		Value:        value,
		Installments: installments,
		Date:         date,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondPurchase(w, r, userID, http.StatusCreated, result)
}

func (h *Handler) UpdatePurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req updatePurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	value, err := parseOptionalAmount(req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.purchases.Update(r.Context(), services.UpdatePurchaseRequest{
		UserID:        userID,
		TransactionID: chi.URLParam(r, "id"),
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		Notes:         req.Notes,
		Value:         value,
		Installments:  req.Installments,
		Date:          date,
		CardID:        req.CardID,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondPurchase(w, r, userID, http.StatusOK, result)
}

func (h *Handler) RefundPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	result, err := h.purchases.Refund(r.Context(), services.RefundRequest{
		UserID:        userID,
		TransactionID: chi.URLParam(r, "id"),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondPurchase(w, r, userID, http.StatusOK, result)
}

func (h *Handler) PartialRefundPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req partialRefundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.purchases.PartialRefund(r.Context(), services.PartialRefundRequest{
		UserID:        userID,
		TransactionID: chi.URLParam(r, "id"),
		Keep:          req.Keep,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondPurchase(w, r, userID, http.StatusOK, result)
}

func (h *Handler) RefundPurchaseByValue(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req refundValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	result, err := h.purchases.RefundByValue(r.Context(), services.RefundByValueRequest{
		UserID:        userID,
		TransactionID: chi.URLParam(r, "id"),
		Amount:        amount,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondPurchase(w, r, userID, http.StatusOK, result)
}

func (h *Handler) AnticipateInstallments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req anticipateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	discount := "0"
	if req.Discount != "" {
		discount = req.Discount
	}
	amount, err := parseAmount(discount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_discount")
		return
	}
	result, err := h.purchases.Anticipate(r.Context(), services.AnticipateRequest{
		UserID:         userID,
		TransactionID:  chi.URLParam(r, "id"),
		InstallmentIDs: req.InstallmentIDs,
		Discount:       amount,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondPurchase(w, r, userID, http.StatusOK, result)
}
