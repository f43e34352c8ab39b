package handlers

import (
	"net/http"

	"finance/internal/models"
	"finance/internal/services"

	"github.com/go-chi/chi/v5"
)

type createCardRequest struct {
	Name        string `json:"name"`
	ClosingDay  int    `json:"closing_day"`
	DueDay      int    `json:"due_day"`
	CreditLimit string `json:"credit_limit"`
}

type updateCardRequest struct {
	Name        *string `json:"name"`
	ClosingDay  *int    `json:"closing_day"`
	DueDay      *int    `json:"due_day"`
	CreditLimit *string `json:"credit_limit"`
}

type cardResponse struct {
	Card     models.Card      `json:"card"`
	Invoices []models.Invoice `json:"invoices,omitempty"`
}

func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	limit, err := parseAmount(req.CreditLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_credit_limit")
		return
	}
	result, err := h.cards.Create(r.Context(), services.CreateCardRequest{
		UserID:      userID,
		Name:        req.Name,
		ClosingDay:  req.ClosingDay,
		DueDay:      req.DueDay,
		CreditLimit: limit,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, userID, result.Changes)
	respondJSON(w, http.StatusCreated, cardResponse{Card: result.Card})
}

func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	cards, err := h.cards.List(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if cards == nil {
		cards = []services.CardSummary{}
	}
	respondJSON(w, http.StatusOK, cards)
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	card, err := h.cards.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req updateCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	limit, err := parseOptionalAmount(req.CreditLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_credit_limit")
		return
	}
	result, err := h.cards.Update(r.Context(), services.UpdateCardRequest{
		UserID:      userID,
		CardID:      chi.URLParam(r, "id"),
		Name:        req.Name,
		ClosingDay:  req.ClosingDay,
		DueDay:      req.DueDay,
		CreditLimit: limit,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, userID, result.Changes)
	respondJSON(w, http.StatusOK, cardResponse{Card: result.Card, Invoices: result.Invoices})
}

func (h *Handler) ArchiveCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	result, err := h.cards.Archive(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, userID, result.Changes)
	respondJSON(w, http.StatusOK, cardResponse{Card: result.Card})
}

func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	changes, err := h.cards.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, userID, changes)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCardInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	invoices, err := h.invoices.ListByCard(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	respondJSON(w, http.StatusOK, invoices)
}
