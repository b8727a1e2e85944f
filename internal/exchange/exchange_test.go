package exchange

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/predictionmkt/exchange/internal/admission"
	"github.com/predictionmkt/exchange/internal/config"
	"github.com/predictionmkt/exchange/internal/ledger"
)

func newTestExchange(t *testing.T) *Exchange {
	t.Helper()
	dir, err := os.MkdirTemp("", "exchange-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.DataDir = dir

	e, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seed(t *testing.T, e *Exchange, userID, amount string) {
	t.Helper()
	ctx := context.Background()
	applied, err := e.CreditDeposit(ctx, userID, "devnet", mustDec(amount), "seed-"+userID, 1)
	if err != nil {
		t.Fatalf("seed %s: %v", userID, err)
	}
	if !applied {
		t.Fatalf("seed deposit for %s was not applied", userID)
	}
}

func order(marketID, userID string, side ledger.Side, tokenType ledger.TokenType, price string, qty int64) admission.Request {
	return admission.Request{
		MarketID:  marketID,
		UserID:    userID,
		ChainID:   "devnet",
		Side:      side,
		TokenType: tokenType,
		Price:     price,
		Quantity:  qty,
	}
}

func balance(t *testing.T, e *Exchange, userID string) decimal.Decimal {
	t.Helper()
	acc, err := e.GetAccount(userID, "devnet")
	if err != nil {
		t.Fatalf("GetAccount %s: %v", userID, err)
	}
	return acc.AvailableUSD
}

// TestInitialMintThenSecondaryMarketThenSettlement runs an initial-mint
// trade on the YES book, a second independent trade on the same market's
// NO book seeded from tokens the first trade minted, then settles the
// market YES and checks every participant's final balance and that every
// position is zeroed out post-settlement.
func TestInitialMintThenSecondaryMarketThenSettlement(t *testing.T) {
	e := newTestExchange(t)
	ctx := context.Background()

	if _, err := e.CreateMarket(ctx, "M", "will it happen?", "creator", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	for _, u := range []string{"A", "B", "C", "D", "E"} {
		seed(t, e, u, "100")
	}

	// Initial mint: A buys 10 YES @0.50, B sells 10 YES @0.50 (short, no
	// prior inventory) -> one trade @0.50 qty 10.
	if _, err := e.SubmitOrder(ctx, order("M", "A", ledger.Buy, ledger.Yes, "0.50", 10)); err != nil {
		t.Fatalf("initial mint A buy: %v", err)
	}
	sellB, err := e.SubmitOrder(ctx, order("M", "B", ledger.Sell, ledger.Yes, "0.50", 10))
	if err != nil {
		t.Fatalf("initial mint B sell: %v", err)
	}
	if sellB.Status != ledger.OrderFilled {
		t.Fatalf("initial mint: B's sell should be FILLED, got %s", sellB.Status)
	}
	if !balance(t, e, "A").Equal(mustDec("95")) {
		t.Fatalf("initial mint: A balance want 95, got %s", balance(t, e, "A"))
	}
	if !balance(t, e, "B").Equal(mustDec("105")) {
		t.Fatalf("initial mint: B balance want 105, got %s", balance(t, e, "B"))
	}

	// Secondary NO market. Continuing from the initial mint, B sells 5 NO
	// @0.48 (from the 10 free NO tokens that trade minted it, no new
	// short) and E buys 5 NO @0.48 -> one trade @0.48 qty 5.
	if _, err := e.SubmitOrder(ctx, order("M", "B", ledger.Sell, ledger.No, "0.48", 5)); err != nil {
		t.Fatalf("secondary market B sell: %v", err)
	}
	if _, err := e.SubmitOrder(ctx, order("M", "E", ledger.Buy, ledger.No, "0.48", 5)); err != nil {
		t.Fatalf("secondary market E buy: %v", err)
	}
	if !balance(t, e, "B").Equal(mustDec("107.40")) {
		t.Fatalf("secondary market: B balance want 107.40, got %s", balance(t, e, "B"))
	}
	if !balance(t, e, "E").Equal(mustDec("97.60")) {
		t.Fatalf("secondary market: E balance want 97.60, got %s", balance(t, e, "E"))
	}

	// Settle the market YES and verify final balances.
	if err := e.Settle(ctx, "M", ledger.OutcomeYes); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	want := map[string]string{
		"A": "105.00",
		"B": "97.40",
		"C": "100.00",
		"D": "100.00",
		"E": "97.60",
	}
	for user, expect := range want {
		got := balance(t, e, user)
		if !got.Equal(mustDec(expect)) {
			t.Errorf("final balance for %s: want %s, got %s", user, expect, got)
		}
	}

	for _, user := range []string{"A", "B", "C", "D", "E"} {
		acc, err := e.GetAccount(user, "devnet")
		if err != nil {
			t.Fatalf("GetAccount %s: %v", user, err)
		}
		pos := acc.PositionFor("M")
		if pos.YesTokens != 0 || pos.NoTokens != 0 || pos.LockedYesTokens != 0 || pos.LockedNoTokens != 0 ||
			!pos.LockedCollateralYes.Equal(decimal.Zero) || !pos.LockedCollateralNo.Equal(decimal.Zero) {
			t.Errorf("%s position should be fully zeroed post-settlement, got %+v", user, pos)
		}
	}
}

// TestTakerPriceImprovementEndToEnd covers a taker crossing a
// better-priced resting order through the full SubmitOrder pipeline,
// rather than through the admission package directly: the SELL order must
// be the one resting first for the maker's price to be the better one,
// matching price-time priority as actually implemented.
func TestTakerPriceImprovementEndToEnd(t *testing.T) {
	e := newTestExchange(t)
	ctx := context.Background()
	if _, err := e.CreateMarket(ctx, "M", "will it happen?", "creator", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	seed(t, e, "A", "100")
	seed(t, e, "B", "100")

	if _, err := e.SubmitOrder(ctx, order("M", "B", ledger.Sell, ledger.Yes, "0.50", 10)); err != nil {
		t.Fatalf("B sell: %v", err)
	}
	if !balance(t, e, "B").Equal(mustDec("100")) {
		t.Fatalf("B balance after short lock: want 100, got %s", balance(t, e, "B"))
	}

	if _, err := e.SubmitOrder(ctx, order("M", "A", ledger.Buy, ledger.Yes, "0.60", 10)); err != nil {
		t.Fatalf("A buy: %v", err)
	}
	if !balance(t, e, "A").Equal(mustDec("95")) {
		t.Fatalf("A balance after lock+refund: want 95, got %s", balance(t, e, "A"))
	}
	if !balance(t, e, "B").Equal(mustDec("105")) {
		t.Fatalf("B balance: want 105, got %s", balance(t, e, "B"))
	}
}

// TestPartialFillAcrossMultipleTakersEndToEnd covers a resting order
// filled piecemeal by two separate incoming takers through the full
// SubmitOrder pipeline, on its own fresh market.
func TestPartialFillAcrossMultipleTakersEndToEnd(t *testing.T) {
	e := newTestExchange(t)
	ctx := context.Background()
	if _, err := e.CreateMarket(ctx, "M", "will it happen?", "creator", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	seed(t, e, "A", "100")
	seed(t, e, "B", "100")
	seed(t, e, "C", "100")

	aOrder, err := e.SubmitOrder(ctx, order("M", "A", ledger.Buy, ledger.Yes, "0.55", 10))
	if err != nil {
		t.Fatalf("A buy: %v", err)
	}
	if _, err := e.SubmitOrder(ctx, order("M", "B", ledger.Sell, ledger.Yes, "0.50", 3)); err != nil {
		t.Fatalf("B sell: %v", err)
	}
	if _, err := e.SubmitOrder(ctx, order("M", "C", ledger.Sell, ledger.Yes, "0.55", 4)); err != nil {
		t.Fatalf("C sell: %v", err)
	}
	finalA, err := e.GetOrder("M", aOrder.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if finalA.Status != ledger.OrderPartial || finalA.FilledQuantity != 7 {
		t.Fatalf("want PARTIAL/7, got %s/%d", finalA.Status, finalA.FilledQuantity)
	}
}

// TestSelfMatchDoesNotCrossEndToEnd covers a user's own resting sell and
// incoming buy at the same price through the full SubmitOrder pipeline,
// on its own fresh market.
func TestSelfMatchDoesNotCrossEndToEnd(t *testing.T) {
	e := newTestExchange(t)
	ctx := context.Background()
	if _, err := e.CreateMarket(ctx, "M", "will it happen?", "creator", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	seed(t, e, "A", "100")

	sellA, err := e.SubmitOrder(ctx, order("M", "A", ledger.Sell, ledger.Yes, "0.65", 5))
	if err != nil {
		t.Fatalf("A sell: %v", err)
	}
	if sellA.Status != ledger.OrderOpen {
		t.Fatalf("A's sell should rest OPEN, got %s", sellA.Status)
	}
	buyA, err := e.SubmitOrder(ctx, order("M", "A", ledger.Buy, ledger.Yes, "0.65", 5))
	if err != nil {
		t.Fatalf("A buy: %v", err)
	}
	if buyA.Status != ledger.OrderOpen || buyA.FilledQuantity != 0 {
		t.Fatalf("self-match should not occur: got status=%s filled=%d", buyA.Status, buyA.FilledQuantity)
	}
}
