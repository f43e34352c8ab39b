package handlers

import (
	"context"
	"net/http"

	"finance/internal/models"
	"finance/internal/services"

	"github.com/go-chi/chi/v5"
)

type createRecurringRequest struct {
	Type           string  `json:"type"`
	Description    string  `json:"description"`
	CategoryID     *string `json:"category_id"`
	Value          string  `json:"value"`
	AccountID      *string `json:"account_id"`
	CardID         *string `json:"card_id"`
	Frequency      string  `json:"frequency"`
	FrequencyValue int     `json:"frequency_value"`
	StartDate      string  `json:"start_date"`
	EndDate        *string `json:"end_date"`
}

func (h *Handler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createRecurringRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	start, err := parseDate(req.StartDate, h.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.recurring.Create(r.Context(), services.CreateRecurringRequest{
		UserID:         userID,
		Type:           models.TransactionType(req.Type),
		Description:    req.Description,
		CategoryID:     req.CategoryID,
		Value:          value,
		AccountID:      req.AccountID,
		CardID:         req.CardID,
		Frequency:      models.Frequency(req.Frequency),
		FrequencyValue: req.FrequencyValue,
		StartDate:      start,
		EndDate:        end,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, userID, result.Changes)
	respondJSON(w, http.StatusCreated, result.Template)
}

func (h *Handler) GetRecurring(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	template, err := h.recurring.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, template)
}

func (h *Handler) PauseRecurring(w http.ResponseWriter, r *http.Request) {
	h.transitionRecurring(w, r, h.recurring.Pause)
}

func (h *Handler) ResumeRecurring(w http.ResponseWriter, r *http.Request) {
	h.transitionRecurring(w, r, h.recurring.Resume)
}

func (h *Handler) CancelRecurring(w http.ResponseWriter, r *http.Request) {
	h.transitionRecurring(w, r, h.recurring.Cancel)
}

func (h *Handler) transitionRecurring(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, userID, templateID string) (services.RecurringResult, error)) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	result, err := apply(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, userID, result.Changes)
	respondJSON(w, http.StatusOK, result.Template)
}
