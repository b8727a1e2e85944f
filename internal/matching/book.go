// Package matching walks the opposite side of a market+token-type book in
// price-time priority, producing fills and driving the Trade Executor.
package matching

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predictionmkt/exchange/internal/ledger"
)

// restingOrder is the matching engine's lightweight view of an open or
// partially filled order resting in a book; the Ledger's Order record
// remains the durable source of truth.
type restingOrder struct {
	OrderID   string
	UserID    string
	Price     decimal.Decimal
	Remaining int64
	CreatedAt time.Time
}

// book is one side-pair of price-time-priority queues for a single
// (marketId, tokenType). YES and NO are never crossed against each other:
// the engine keeps one book per token type, so this type never needs to
// know about the other side's token.
type book struct {
	mu sync.Mutex

	bidsByPrice map[string][]*restingOrder
	asksByPrice map[string][]*restingOrder
	bidPrices   maxPriceHeap
	askPrices   minPriceHeap
	bidPriceSet map[string]bool
	askPriceSet map[string]bool
}

func newBook() *book {
	return &book{
		bidsByPrice: make(map[string][]*restingOrder),
		asksByPrice: make(map[string][]*restingOrder),
		bidPriceSet: make(map[string]bool),
		askPriceSet: make(map[string]bool),
	}
}

func (b *book) addLocked(side ledger.Side, ro *restingOrder) {
	key := ro.Price.String()
	if side == ledger.Buy {
		b.bidsByPrice[key] = insertResting(b.bidsByPrice[key], ro)
		if !b.bidPriceSet[key] {
			b.bidPriceSet[key] = true
			heap.Push(&b.bidPrices, ro.Price)
		}
		return
	}
	b.asksByPrice[key] = insertResting(b.asksByPrice[key], ro)
	if !b.askPriceSet[key] {
		b.askPriceSet[key] = true
		heap.Push(&b.askPrices, ro.Price)
	}
}

// insertResting places ro in its price level's queue in creation-time
// order. An order already queued under the same id (a new book is seeded
// from persisted open orders, which can include the taker about to rest)
// has its remaining quantity updated instead of being queued twice.
func insertResting(queue []*restingOrder, ro *restingOrder) []*restingOrder {
	for _, o := range queue {
		if o.OrderID == ro.OrderID {
			o.Remaining = ro.Remaining
			return queue
		}
	}
	i := sort.Search(len(queue), func(i int) bool { return queue[i].CreatedAt.After(ro.CreatedAt) })
	queue = append(queue, nil)
	copy(queue[i+1:], queue[i:])
	queue[i] = ro
	return queue
}

// add inserts a resting order into its side's book.
func (b *book) add(side ledger.Side, ro *restingOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addLocked(side, ro)
}

// bestBid/bestAsk expose the best resting price for the read-only
// aggregated book view.
func (b *book) bestBid() (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bidPrices.Peek()
}

func (b *book) bestAsk() (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.askPrices.Peek()
}

// findOpposing returns the best-priced, earliest-created resting order on
// the opposite side of takerSide that satisfies the taker's limit and is
// not owned by takerUserID (no self-match), without removing it from the
// book. Returns nil if no eligible candidate exists.
func (b *book) findOpposing(takerSide ledger.Side, limit decimal.Decimal, takerUserID string) *restingOrder {
	b.mu.Lock()
	defer b.mu.Unlock()

	var byPrice map[string][]*restingOrder
	var eligible []decimal.Decimal

	if takerSide == ledger.Buy {
		byPrice = b.asksByPrice
		for p := range b.askPriceSet {
			price := mustParse(p)
			if price.LessThanOrEqual(limit) {
				eligible = append(eligible, price)
			}
		}
		sort.Slice(eligible, func(i, j int) bool { return eligible[i].LessThan(eligible[j]) })
	} else {
		byPrice = b.bidsByPrice
		for p := range b.bidPriceSet {
			price := mustParse(p)
			if price.GreaterThanOrEqual(limit) {
				eligible = append(eligible, price)
			}
		}
		sort.Slice(eligible, func(i, j int) bool { return eligible[i].GreaterThan(eligible[j]) })
	}

	for _, price := range eligible {
		queue := byPrice[price.String()]
		for _, ro := range queue {
			if ro.Remaining > 0 && ro.UserID != takerUserID {
				return ro
			}
		}
	}
	return nil
}

// consume reduces a resting order's remaining quantity by qty, removing
// it from the book once exhausted.
func (b *book) consume(side ledger.Side, ro *restingOrder, qty int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ro.Remaining -= qty
	if ro.Remaining > 0 {
		return
	}

	key := ro.Price.String()
	var byPrice map[string][]*restingOrder
	if side == ledger.Buy {
		byPrice = b.bidsByPrice
	} else {
		byPrice = b.asksByPrice
	}
	queue := byPrice[key]
	for i, o := range queue {
		if o.OrderID == ro.OrderID {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(byPrice, key)
		if side == ledger.Buy {
			delete(b.bidPriceSet, key)
			removePrice(&b.bidPrices, ro.Price)
		} else {
			delete(b.askPriceSet, key)
			removePrice(&b.askPrices, ro.Price)
		}
		return
	}
	byPrice[key] = queue
}

func removePrice(h heap.Interface, price decimal.Decimal) {
	switch v := h.(type) {
	case *maxPriceHeap:
		for i, p := range *v {
			if p.Equal(price) {
				heap.Remove(v, i)
				return
			}
		}
	case *minPriceHeap:
		for i, p := range *v {
			if p.Equal(price) {
				heap.Remove(v, i)
				return
			}
		}
	}
}

func mustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Level is one aggregated price level for the read-only book view.
type Level struct {
	Price decimal.Decimal
	Size  int64
}

func (b *book) bidLevels() []Level {
	return aggregate(b.bidsByPrice, true)
}

func (b *book) askLevels() []Level {
	return aggregate(b.asksByPrice, false)
}

func aggregate(byPrice map[string][]*restingOrder, descending bool) []Level {
	levels := make([]Level, 0, len(byPrice))
	for _, queue := range byPrice {
		if len(queue) == 0 {
			continue
		}
		var size int64
		for _, ro := range queue {
			size += ro.Remaining
		}
		levels = append(levels, Level{Price: queue[0].Price, Size: size})
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}
