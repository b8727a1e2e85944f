package matching

import "github.com/shopspring/decimal"

// maxPriceHeap orders price levels with the highest price on top — used
// for the bid side's best-price query. Heaps decimal.Decimal levels
// directly since prices here are exact decimals in [0,1].
type maxPriceHeap []decimal.Decimal

func (h maxPriceHeap) Len() int            { return len(h) }
func (h maxPriceHeap) Less(i, j int) bool  { return h[i].GreaterThan(h[j]) }
func (h maxPriceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }

func (h *maxPriceHeap) Push(x interface{}) {
	*h = append(*h, x.(decimal.Decimal))
}

func (h *maxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

func (h maxPriceHeap) Peek() (decimal.Decimal, bool) {
	if len(h) == 0 {
		return decimal.Zero, false
	}
	return h[0], true
}

// minPriceHeap orders price levels with the lowest price on top — used
// for the ask side's best-price query.
type minPriceHeap []decimal.Decimal

func (h minPriceHeap) Len() int           { return len(h) }
func (h minPriceHeap) Less(i, j int) bool { return h[i].LessThan(h[j]) }
func (h minPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minPriceHeap) Push(x interface{}) {
	*h = append(*h, x.(decimal.Decimal))
}

func (h *minPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

func (h minPriceHeap) Peek() (decimal.Decimal, bool) {
	if len(h) == 0 {
		return decimal.Zero, false
	}
	return h[0], true
}
