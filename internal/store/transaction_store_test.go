package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"finance/internal/models"
)

func TestTransactionStoreCreate(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO transactions") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 17 || args[0] != "tx-1" || args[16] != false {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewTransactionStore(stubDB{})
	err := store.Create(ctx, execer, models.Transaction{ID: "tx-1", Type: models.TransactionExpense})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransactionStoreUpdate(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "UPDATE transactions") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 12 || args[0] != models.TransactionReversed || args[11] != "tx-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewTransactionStore(stubDB{})
	if err := store.Update(ctx, execer, models.Transaction{ID: "tx-1", Status: models.TransactionReversed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransactionStoreCountByCard(t *testing.T) {
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "COUNT(*)") || args[0] != "card-1" {
				t.Fatalf("unexpected query: %s %#v", query, args)
			}
			*dest.(*int) = 4
			return nil
		},
	}
	store := NewTransactionStore(stubDB{})
	count, err := store.CountByCard(context.Background(), getter, "card-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4, got %d", count)
	}
}

func TestTransactionStoreListByUser(t *testing.T) {
	store := NewTransactionStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "LIMIT $2 OFFSET $3") {
				t.Fatalf("unexpected limit/offset in query: %s", query)
			}
			if len(args) != 3 || args[0] != "user-1" || args[1] != 10 || args[2] != 0 {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*[]models.Transaction) = []models.Transaction{{ID: "tx-1"}}
			return nil
		},
	})
	rows, err := store.ListByUser(context.Background(), "user-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "tx-1" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}
