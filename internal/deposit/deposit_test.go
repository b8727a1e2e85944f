package deposit

import (
	"context"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/predictionmkt/exchange/internal/ledger"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	dir, err := os.MkdirTemp("", "deposit-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	l, err := ledger.Open(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestCreditAppliesOnce(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	applied, err := Credit(ctx, l, zap.NewNop(), "a", "devnet", decimal.RequireFromString("50"), "tx1", 10)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if !applied {
		t.Fatalf("expected first credit to apply")
	}

	applied, err = Credit(ctx, l, zap.NewNop(), "a", "devnet", decimal.RequireFromString("50"), "tx1-replay", 10)
	if err != nil {
		t.Fatalf("Credit replay: %v", err)
	}
	if applied {
		t.Fatalf("expected replayed block height to be ignored")
	}

	acc, err := l.GetAccount("a", "devnet")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acc.AvailableUSD.Equal(decimal.RequireFromString("50")) {
		t.Errorf("balance: want 50, got %s", acc.AvailableUSD)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := Credit(ctx, l, zap.NewNop(), "a", "devnet", decimal.Zero, "tx1", 1); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	if _, err := Credit(ctx, l, zap.NewNop(), "a", "devnet", decimal.RequireFromString("-5"), "tx1", 1); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}
