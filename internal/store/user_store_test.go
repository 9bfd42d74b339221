package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestUserStoreCreateStartsAtZeroBalance(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO users") || !strings.Contains(query, "0") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 4 || args[0] != "user-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	if err := NewUserStore(stubDB{}).Create(ctx, execer, "user-1", "name", "email@example.com", "hash"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUserStoreGetBalanceForUpdate(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("row lock missing: %s", query)
			}
			*dest.(*int64) = 42000
			return nil
		},
	}
	balance, err := NewUserStore(stubDB{}).GetBalanceForUpdate(ctx, getter, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 42000 {
		t.Fatalf("unexpected balance: %d", balance)
	}
}

func TestUserStoreGetByEmail(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM users") {
				t.Fatalf("unexpected query: %s", query)
			}
			row := dest.(*userRow)
			*row = userRow{ID: "user-1", Balance: 5000}
			return nil
		},
	})
	row, err := store.GetByEmail(ctx, "email@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["id"] != "user-1" || row["balance"] != int64(5000) {
		t.Fatalf("unexpected row: %#v", row)
	}
}
