package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir, err := os.MkdirTemp("", "ledger-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	l, err := Open(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestCreateAndGetMarket(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	m, err := l.CreateMarket(ctx, "m1", "Will it rain?", "alice", time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	if m.Settled {
		t.Fatalf("new market should not be settled")
	}

	got, err := l.GetMarket("m1")
	if err != nil {
		t.Fatalf("GetMarket: %v", err)
	}
	if got.Question != "Will it rain?" {
		t.Errorf("question mismatch: %q", got.Question)
	}

	if _, err := l.CreateMarket(ctx, "m1", "dup", "alice", time.Now()); err == nil {
		t.Errorf("expected conflict creating duplicate market")
	}
}

func TestCreditDepositIdempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	applied, err := l.CreditDeposit(ctx, "alice", "solana", decimal.NewFromInt(100), "tx1", 10)
	if err != nil || !applied {
		t.Fatalf("first deposit: applied=%v err=%v", applied, err)
	}

	acc, err := l.GetAccount("alice", "solana")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acc.AvailableUSD.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected balance 100, got %s", acc.AvailableUSD)
	}

	applied, err = l.CreditDeposit(ctx, "alice", "solana", decimal.NewFromInt(100), "tx1-replay", 10)
	if err != nil {
		t.Fatalf("replay deposit: %v", err)
	}
	if applied {
		t.Fatalf("replayed deposit at same block height should be ignored")
	}

	acc, _ = l.GetAccount("alice", "solana")
	if !acc.AvailableUSD.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance changed on idempotent replay: %s", acc.AvailableUSD)
	}

	applied, err = l.CreditDeposit(ctx, "alice", "solana", decimal.NewFromInt(50), "tx2", 11)
	if err != nil || !applied {
		t.Fatalf("second deposit at higher height: applied=%v err=%v", applied, err)
	}
	acc, _ = l.GetAccount("alice", "solana")
	if !acc.AvailableUSD.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected balance 150, got %s", acc.AvailableUSD)
	}
}

func TestTxnCommitPersistsPositionMutation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.CreateMarket(ctx, "m1", "q", "alice", time.Now()); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}

	txn, err := l.Begin(ctx, "m1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, pos, err := txn.LoadPosition("bob", "solana")
	if err != nil {
		t.Fatalf("LoadPosition: %v", err)
	}
	pos.YesTokens = 10
	acc, _ := txn.LoadAccount("bob", "solana")
	txn.MarkAccountDirty(acc)
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	acc2, err := l.GetAccount("bob", "solana")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc2.PositionFor("m1").YesTokens != 10 {
		t.Fatalf("expected persisted YesTokens=10, got %d", acc2.PositionFor("m1").YesTokens)
	}
}

func TestTxnRollbackDiscardsMutation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.CreateMarket(ctx, "m1", "q", "alice", time.Now()); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}

	txn, err := l.Begin(ctx, "m1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, pos, _ := txn.LoadPosition("carol", "solana")
	pos.YesTokens = 99
	acc, _ := txn.LoadAccount("carol", "solana")
	txn.MarkAccountDirty(acc)
	txn.Rollback()

	acc2, err := l.GetAccount("carol", "solana")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc2.PositionFor("m1").YesTokens != 0 {
		t.Fatalf("rollback should have discarded mutation, got %d", acc2.PositionFor("m1").YesTokens)
	}
}
