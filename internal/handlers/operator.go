package handlers

import (
	"net/http"

	"finance/internal/store"

	"github.com/go-chi/chi/v5"
)

type sweepResponse struct {
	Generated int      `json:"generated,omitempty"`
	Skipped   int      `json:"skipped,omitempty"`
	Ended     int      `json:"ended,omitempty"`
	Closed    int      `json:"closed,omitempty"`
	Overdue   int      `json:"overdue,omitempty"`
	Errors    []string `json:"errors"`
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

// RunRecurringSweep triggers the recurring generation on demand. Changes are
// recorded without an actor, like the scheduled runs.
func (h *Handler) RunRecurringSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.recurring.RunSweep(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, "", report.Changes)
	respondJSON(w, http.StatusOK, sweepResponse{
		Generated: report.Generated,
		Skipped:   report.Skipped,
		Ended:     report.Ended,
		Errors:    errorStrings(report.Errors),
	})
}

func (h *Handler) RunAgingSweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.invoices.RunAgingSweep(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, "", report.Changes)
	respondJSON(w, http.StatusOK, sweepResponse{
		Closed:  report.Closed,
		Overdue: report.Overdue,
		Errors:  errorStrings(report.Errors),
	})
}

// RecalculateInvoice rebuilds an invoice total from its installments and
// refreshes its status.
func (h *Handler) RecalculateInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, changes, err := h.invoices.Recalculate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.record(r, "", changes)
	respondJSON(w, http.StatusOK, invoice)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	rows, err := h.auditLog.ListByEntity(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	if rows == nil {
		rows = []store.AuditEntry{}
	}
	respondJSON(w, http.StatusOK, rows)
}
