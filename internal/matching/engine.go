package matching

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/predictionmkt/exchange/internal/execution"
	"github.com/predictionmkt/exchange/internal/ledger"
)

// Engine holds one in-memory book per (marketId, tokenType) and drives the
// price-time-priority matching loop for newly admitted taker orders.
type Engine struct {
	ledger *ledger.Ledger
	log    *zap.Logger

	mu    sync.Mutex
	books map[string]*book
}

// New returns a matching engine backed by the given ledger.
func New(l *ledger.Ledger, log *zap.Logger) *Engine {
	return &Engine{ledger: l, log: log, books: make(map[string]*book)}
}

func bookKey(marketID string, tokenType ledger.TokenType) string {
	return marketID + ":" + string(tokenType)
}

// bookFor returns the in-memory book for a market/token-type pair,
// lazily seeding it from the Ledger's persisted open orders on first use
// (so a restarted process recovers its resting book from durable state).
func (e *Engine) bookFor(marketID string, tokenType ledger.TokenType) (*book, error) {
	key := bookKey(marketID, tokenType)

	e.mu.Lock()
	b, ok := e.books[key]
	e.mu.Unlock()
	if ok {
		return b, nil
	}

	persisted, err := e.ledger.OpenOrders(marketID, tokenType)
	if err != nil {
		return nil, err
	}
	b = newBook()
	for _, o := range persisted {
		b.add(o.Side, &restingOrder{
			OrderID:   o.ID,
			UserID:    o.UserID,
			Price:     o.Price,
			Remaining: o.Remaining(),
			CreatedAt: o.CreatedAt,
		})
	}

	e.mu.Lock()
	if existing, ok := e.books[key]; ok {
		b = existing
	} else {
		e.books[key] = b
	}
	e.mu.Unlock()
	return b, nil
}

func nextStatus(o *ledger.Order) ledger.OrderStatus {
	switch {
	case o.FilledQuantity == 0:
		return ledger.OrderOpen
	case o.FilledQuantity < o.Quantity:
		return ledger.OrderPartial
	default:
		return ledger.OrderFilled
	}
}

// Run matches taker (already persisted OPEN by Order Admission) against
// the resting book in price-time priority, per §4.4 of the design. Each
// fill is applied under its own Ledger transaction; a LedgerInconsistency
// from the Trade Executor aborts only that fill and stops the loop,
// leaving the taker in whatever consistent state it has reached.
func (e *Engine) Run(ctx context.Context, taker *ledger.Order, tradeIDFn func() string) error {
	b, err := e.bookFor(taker.MarketID, taker.TokenType)
	if err != nil {
		return err
	}

	for taker.Remaining() > 0 {
		opposing := b.findOpposing(taker.Side, taker.Price, taker.UserID)
		if opposing == nil {
			break
		}

		txn, err := e.ledger.Begin(ctx, taker.MarketID)
		if err != nil {
			return err
		}

		maker, err := txn.LoadOrder(opposing.OrderID)
		if err != nil {
			txn.Rollback()
			return err
		}
		if maker.Remaining() <= 0 {
			// Bookkeeping anomaly per §4.4 step 4: drop it and retry.
			txn.Rollback()
			opposing.Remaining = 0
			b.consume(maker.Side, opposing, 0)
			continue
		}

		fillQty := min64(taker.Remaining(), opposing.Remaining)
		execPrice := maker.Price

		var buyOrder, sellOrder *ledger.Order
		if taker.Side == ledger.Buy {
			buyOrder, sellOrder = taker, maker
		} else {
			buyOrder, sellOrder = maker, taker
		}

		if err := execution.Apply(txn, buyOrder, sellOrder, fillQty, execPrice); err != nil {
			txn.Rollback()
			if e.log != nil {
				e.log.Error("trade executor aborted fill",
					zap.String("market", taker.MarketID),
					zap.String("taker", taker.ID),
					zap.String("maker", maker.ID),
					zap.Error(err))
			}
			break
		}

		taker.FilledQuantity += fillQty
		taker.Status = nextStatus(taker)
		maker.FilledQuantity += fillQty
		maker.Status = nextStatus(maker)

		txn.SaveOrder(taker)
		txn.SaveOrder(maker)
		txn.InsertTrade(&ledger.Trade{
			ID:          tradeIDFn(),
			MarketID:    taker.MarketID,
			BuyOrderID:  buyOrder.ID,
			SellOrderID: sellOrder.ID,
			TokenType:   taker.TokenType,
			Price:       execPrice,
			Quantity:    fillQty,
		})

		if err := txn.Commit(); err != nil {
			return fmt.Errorf("commit fill: %w", err)
		}

		b.consume(maker.Side, opposing, fillQty)
	}

	if taker.Remaining() > 0 {
		b.add(taker.Side, &restingOrder{
			OrderID:   taker.ID,
			UserID:    taker.UserID,
			Price:     taker.Price,
			Remaining: taker.Remaining(),
			CreatedAt: taker.CreatedAt,
		})
	}
	return nil
}

// BestBidAsk returns the best bid and ask for a market/token-type book,
// used by the read-only aggregated book view.
func (e *Engine) BestBidAsk(marketID string, tokenType ledger.TokenType) (bid, ask Level, hasBid, hasAsk bool, err error) {
	b, err := e.bookFor(marketID, tokenType)
	if err != nil {
		return Level{}, Level{}, false, false, err
	}
	bp, okB := b.bestBid()
	ap, okA := b.bestAsk()
	return Level{Price: bp}, Level{Price: ap}, okB, okA, nil
}

// Levels returns the aggregated bid and ask price levels for a
// market/token-type book.
func (e *Engine) Levels(marketID string, tokenType ledger.TokenType) (bids, asks []Level, err error) {
	b, err := e.bookFor(marketID, tokenType)
	if err != nil {
		return nil, nil, err
	}
	return b.bidLevels(), b.askLevels(), nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
