package settlement

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/predictionmkt/exchange/internal/ledger"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	dir, err := os.MkdirTemp("", "settlement-test-*")
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

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// TestSettleYesPaysWinnerAndForfeitsLoser covers settlement after an
// initial-mint short sale: the buyer holding YES tokens is paid out, and
// the seller's locked YES collateral (posted to cover the short) is
// forfeited.
func TestSettleYesPaysWinnerAndForfeitsLoser(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.CreateMarket(ctx, "m1", "q", "creator", time.Now()); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}

	txn, err := l.Begin(ctx, "m1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	aAcc, aPos, _ := txn.LoadPosition("a", "chain")
	aAcc.AvailableUSD = mustDec("95")
	aPos.YesTokens = 10
	txn.MarkAccountDirty(aAcc)

	bAcc, bPos, _ := txn.LoadPosition("b", "chain")
	bAcc.AvailableUSD = mustDec("105")
	bPos.NoTokens = 10
	bPos.LockedCollateralYes = mustDec("10")
	txn.MarkAccountDirty(bAcc)
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := Settle(ctx, l, "m1", ledger.OutcomeYes, zap.NewNop()); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	aFinal, err := l.GetAccount("a", "chain")
	if err != nil {
		t.Fatalf("GetAccount a: %v", err)
	}
	if !aFinal.AvailableUSD.Equal(mustDec("105")) {
		t.Errorf("winner balance: want 105, got %s", aFinal.AvailableUSD)
	}
	if aFinal.PositionFor("m1").YesTokens != 0 {
		t.Errorf("winner position should be zeroed, got yesTokens=%d", aFinal.PositionFor("m1").YesTokens)
	}

	bFinal, err := l.GetAccount("b", "chain")
	if err != nil {
		t.Fatalf("GetAccount b: %v", err)
	}
	if !bFinal.AvailableUSD.Equal(mustDec("95")) {
		t.Errorf("loser balance: want 95 (forfeits 10 collateral), got %s", bFinal.AvailableUSD)
	}
	if !bFinal.PositionFor("m1").LockedCollateralYes.Equal(decimal.Zero) {
		t.Errorf("loser's locked collateral should be zeroed, got %s", bFinal.PositionFor("m1").LockedCollateralYes)
	}
}

// TestSettleCancelsOpenOrdersAndRefundsBuyer verifies steps 1-2: a resting
// unfilled BUY order is cancelled and its locked funds refunded.
func TestSettleCancelsOpenOrdersAndRefundsBuyer(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.CreateMarket(ctx, "m1", "q", "creator", time.Now()); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}

	txn, err := l.Begin(ctx, "m1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	acc, _, _ := txn.LoadPosition("a", "chain")
	acc.AvailableUSD = mustDec("95") // 100 - 5.00 locked at 0.50 * 10
	txn.MarkAccountDirty(acc)
	txn.SaveOrder(&ledger.Order{
		ID: "o1", MarketID: "m1", UserID: "a", ChainID: "chain",
		Side: ledger.Buy, TokenType: ledger.Yes,
		Price: mustDec("0.50"), Quantity: 10, FilledQuantity: 0,
		Status: ledger.OrderOpen, CreatedAt: time.Now(),
	})
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := Settle(ctx, l, "m1", ledger.OutcomeNo, zap.NewNop()); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	order, err := l.GetOrder("m1", "o1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.Status != ledger.OrderCancelled {
		t.Errorf("expected order CANCELLED, got %s", order.Status)
	}

	acct, err := l.GetAccount("a", "chain")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acct.AvailableUSD.Equal(mustDec("100")) {
		t.Errorf("expected full refund to 100, got %s", acct.AvailableUSD)
	}
}

// TestSettleIdempotent verifies that settling an already-settled market
// returns ErrAlreadySettled and makes no further changes.
func TestSettleIdempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.CreateMarket(ctx, "m1", "q", "creator", time.Now()); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}

	if err := Settle(ctx, l, "m1", ledger.OutcomeYes, zap.NewNop()); err != nil {
		t.Fatalf("first Settle: %v", err)
	}
	if err := Settle(ctx, l, "m1", ledger.OutcomeYes, zap.NewNop()); err != ErrAlreadySettled {
		t.Fatalf("second Settle: want ErrAlreadySettled, got %v", err)
	}
}
