package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"finance/internal/audit"
	"finance/internal/models"
	"finance/internal/services"
)

func TestCreatePurchaseReturnsCreated(t *testing.T) {
	var got services.CreatePurchaseRequest
	recorder := &stubRecorder{}
	handler := newTestHandler(Deps{
		Recorder: recorder,
		Purchases: stubPurchaseService{
			createFn: func(_ context.Context, req services.CreatePurchaseRequest) (services.PurchaseResult, error) {
				got = req
				return services.PurchaseResult{
					Transaction: models.Transaction{ID: "txn-1"},
					Changes:     []audit.Change{{Event: "purchase.created", EntityType: "transaction", EntityID: "txn-1"}},
				}, nil
			},
		},
	})

	body := `{"card_id":"card-1","description":"TV","value":"300.00","installments":3,"date":"2025-05-10"}`
	rr := serveWithAuth(t, handler, http.MethodPost, "/purchases", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.UserID != "user-1" || got.CardID != "card-1" || got.Installments != 3 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.Value.StringFixed(2) != "300.00" {
		t.Fatalf("expected value 300.00, got %s", got.Value.StringFixed(2))
	}
	if !got.Date.Equal(time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %s", got.Date)
	}

	var resp purchaseResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Transaction.ID != "txn-1" {
		t.Fatalf("expected txn-1, got %q", resp.Transaction.ID)
	}
	calls := recorder.recorded()
	if len(calls) != 1 || calls[0].actorID != "user-1" || len(calls[0].changes) != 1 {
		t.Fatalf("expected one audit record by user-1, got %+v", calls)
	}
}

func TestCreatePurchaseDefaultsToSingleInstallment(t *testing.T) {
	var installments int
	handler := newTestHandler(Deps{
		Purchases: stubPurchaseService{
			createFn: func(_ context.Context, req services.CreatePurchaseRequest) (services.PurchaseResult, error) {
				installments = req.Installments
				return services.PurchaseResult{}, nil
			},
		},
	})
	rr := serveWithAuth(t, handler, http.MethodPost, "/purchases", `{"card_id":"card-1","description":"Book","value":"40"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if installments != 1 {
		t.Fatalf("expected 1 installment, got %d", installments)
	}
}

func TestCreatePurchaseRejectsMalformedInput(t *testing.T) {
	called := false
	handler := newTestHandler(Deps{
		Purchases: stubPurchaseService{
			createFn: func(context.Context, services.CreatePurchaseRequest) (services.PurchaseResult, error) {
				called = true
				return services.PurchaseResult{}, nil
			},
		},
	})
	cases := []string{
		`not json`,
		`{"card_id":"card-1","description":"TV","value":"abc"}`,
		`{"card_id":"card-1","description":"TV","value":"10.001"}`,
		`{"card_id":"card-1","description":"TV","value":"10","date":"10/05/2025"}`,
	}
	for _, body := range cases {
		rr := serveWithAuth(t, handler, http.MethodPost, "/purchases", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rr.Code)
		}
	}
	if called {
		t.Fatal("service must not be called for malformed input")
	}
}

func TestPurchaseErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{err: &services.ValidationError{Field: "value", Message: "must be greater than zero"}, status: http.StatusBadRequest},
		{err: fmt.Errorf("transaction txn-1: %w", services.ErrNotFound), status: http.StatusNotFound},
		{err: services.ErrAlreadyRefunded, status: http.StatusConflict},
		{err: services.ErrPurchaseLocked, status: http.StatusConflict},
		{err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := newTestHandler(Deps{
			Purchases: stubPurchaseService{
				refundFn: func(context.Context, services.RefundRequest) (services.PurchaseResult, error) {
					return services.PurchaseResult{}, tc.err
				},
			},
		})
		rr := serveWithAuth(t, handler, http.MethodPost, "/purchases/txn-1/refund", "")
		if rr.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rr.Code)
		}
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	handler := newTestHandler(Deps{
		Purchases: stubPurchaseService{
			partialRefundFn: func(context.Context, services.PartialRefundRequest) (services.PurchaseResult, error) {
				return services.PurchaseResult{}, &services.ValidationError{Field: "keep_installments", Message: "out of range"}
			},
		},
	})
	rr := serveWithAuth(t, handler, http.MethodPost, "/purchases/txn-1/partial-refund", `{"keep_installments":9}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["field"] != "keep_installments" {
		t.Fatalf("expected field keep_installments, got %q", body["field"])
	}
}

func TestRefundByValueAndAnticipatePassPathID(t *testing.T) {
	var refund services.RefundByValueRequest
	var anticipate services.AnticipateRequest
	handler := newTestHandler(Deps{
		Purchases: stubPurchaseService{
			refundByValueFn: func(_ context.Context, req services.RefundByValueRequest) (services.PurchaseResult, error) {
				refund = req
				return services.PurchaseResult{}, nil
			},
			anticipateFn: func(_ context.Context, req services.AnticipateRequest) (services.PurchaseResult, error) {
				anticipate = req
				return services.PurchaseResult{}, nil
			},
		},
	})

	rr := serveWithAuth(t, handler, http.MethodPost, "/purchases/txn-9/refund-value", `{"amount":"50.00"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if refund.TransactionID != "txn-9" || refund.Amount.StringFixed(2) != "50.00" {
		t.Fatalf("unexpected refund request %+v", refund)
	}

	rr = serveWithAuth(t, handler, http.MethodPost, "/purchases/txn-9/anticipate", `{"installment_ids":["i-3"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if anticipate.TransactionID != "txn-9" || len(anticipate.InstallmentIDs) != 1 || !anticipate.Discount.IsZero() {
		t.Fatalf("unexpected anticipate request %+v", anticipate)
	}
}

func TestUpdatePurchaseLeavesAbsentFieldsNil(t *testing.T) {
	var got services.UpdatePurchaseRequest
	handler := newTestHandler(Deps{
		Purchases: stubPurchaseService{
			updateFn: func(_ context.Context, req services.UpdatePurchaseRequest) (services.PurchaseResult, error) {
				got = req
				return services.PurchaseResult{}, nil
			},
		},
	})
	rr := serveWithAuth(t, handler, http.MethodPatch, "/purchases/txn-1", `{"description":"New name","installments":2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.Description == nil || *got.Description != "New name" {
		t.Fatalf("expected description to be set, got %+v", got.Description)
	}
	if got.Installments == nil || *got.Installments != 2 {
		t.Fatalf("expected installments 2, got %+v", got.Installments)
	}
	if got.Value != nil || got.Date != nil || got.CardID != nil {
		t.Fatalf("absent fields must stay nil: %+v", got)
	}
}

func TestPurchaseRoutesRequireAuth(t *testing.T) {
	handler := newTestHandler(Deps{})
	req, _ := http.NewRequest(http.MethodPost, "/purchases", nil)
	rr := serve(handler, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
