package ledger

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"
)

// store is the Pebble-backed persistence layer underneath Ledger. Keys are
// prefixed by entity type so that range scans (open orders in a market,
// trades in a market) are plain prefix iterations.
type store struct {
	db *pebble.DB
}

func openStore(dataDir string) (*store, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(128 << 20),
		MemTableSize:                64 << 20,
		MaxConcurrentCompactions:    func() int { return 3 },
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20,
		MaxOpenFiles:                1000,
		BytesPerSync:                512 << 10,
		DisableAutomaticCompactions: false,
	}

	db, err := pebble.Open(dataDir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", dataDir, err)
	}
	return &store{db: db}, nil
}

func (s *store) Close() error {
	return s.db.Close()
}

func accountKey(userID, chainID string) []byte {
	return []byte(fmt.Sprintf("account:%s:%s", userID, chainID))
}

func marketKey(marketID string) []byte {
	return []byte(fmt.Sprintf("market:%s", marketID))
}

func orderKey(marketID, orderID string) []byte {
	return []byte(fmt.Sprintf("order:%s:%s", marketID, orderID))
}

func orderPrefix(marketID string) []byte {
	return []byte(fmt.Sprintf("order:%s:", marketID))
}

func tradeKey(marketID string, seq int64, tradeID string) []byte {
	return []byte(fmt.Sprintf("trade:%s:%020d:%s", marketID, seq, tradeID))
}

func tradePrefix(marketID string) []byte {
	return []byte(fmt.Sprintf("trade:%s:", marketID))
}

// participantKey indexes every (userId, chainId) that has ever held a
// position in a market, so settlement can enumerate accounts to pay out
// without scanning the entire account keyspace. The value carries no
// information of its own; presence of the key is the record.
func participantKey(marketID, userID, chainID string) []byte {
	return []byte(fmt.Sprintf("participant:%s:%s:%s", marketID, userID, chainID))
}

func participantPrefix(marketID string) []byte {
	return []byte(fmt.Sprintf("participant:%s:", marketID))
}

// userOrderKey indexes every order a user has ever placed, across all
// markets, so the API layer can answer "my orders" without a full scan of
// the order keyspace. Mirrors participantKey's presence-only design.
func userOrderKey(userID, chainID, marketID, orderID string) []byte {
	return []byte(fmt.Sprintf("userorder:%s:%s:%s:%s", userID, chainID, marketID, orderID))
}

func userOrderPrefix(userID, chainID string) []byte {
	return []byte(fmt.Sprintf("userorder:%s:%s:", userID, chainID))
}

func keyUpperBound(prefix []byte) []byte {
	upper := append([]byte{}, prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff, unbounded
}

func (s *store) getAccount(userID, chainID string) (*Account, error) {
	data, closer, err := s.db.Get(accountKey(userID, chainID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer closer.Close()

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	if acc.Positions == nil {
		acc.Positions = make(map[string]*Position)
	}
	return &acc, nil
}

func (s *store) getMarket(marketID string) (*Market, error) {
	data, closer, err := s.db.Get(marketKey(marketID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer closer.Close()

	var m Market
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal market: %w", err)
	}
	return &m, nil
}

func (s *store) getOrder(marketID, orderID string) (*Order, error) {
	data, closer, err := s.db.Get(orderKey(marketID, orderID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer closer.Close()

	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// openOrders scans every order in a market and returns those that are
// still OPEN or PARTIAL, optionally filtered by token type.
func (s *store) openOrders(marketID string, tokenType TokenType, filterByToken bool) ([]*Order, error) {
	prefix := orderPrefix(marketID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer iter.Close()

	var orders []*Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue
		}
		if o.Status != OrderOpen && o.Status != OrderPartial {
			continue
		}
		if filterByToken && o.TokenType != tokenType {
			continue
		}
		cp := o
		orders = append(orders, &cp)
	}
	return orders, nil
}

// marketParticipants returns every (userId, chainId) pair indexed against
// marketID via saveParticipant.
func (s *store) marketParticipants(marketID string) ([][2]string, error) {
	prefix := participantPrefix(marketID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer iter.Close()

	var out [][2]string
	for iter.First(); iter.Valid(); iter.Next() {
		rest := string(iter.Key()[len(prefix):])
		idx := -1
		for i := 0; i < len(rest); i++ {
			if rest[i] == ':' {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		out = append(out, [2]string{rest[:idx], rest[idx+1:]})
	}
	return out, nil
}

// userOrders returns every order the user has ever placed, across all
// markets, newest-first by creation time.
func (s *store) userOrders(userID, chainID string) ([]*Order, error) {
	prefix := userOrderPrefix(userID, chainID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer iter.Close()

	var orders []*Order
	for iter.First(); iter.Valid(); iter.Next() {
		rest := string(iter.Key()[len(prefix):])
		idx := -1
		for i := 0; i < len(rest); i++ {
			if rest[i] == ':' {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		marketID, orderID := rest[:idx], rest[idx+1:]
		o, err := s.getOrder(marketID, orderID)
		if err != nil || o == nil {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (s *store) recentTrades(marketID string, tokenType TokenType, filterByToken bool, limit int) ([]*Trade, error) {
	prefix := tradePrefix(marketID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer iter.Close()

	var trades []*Trade
	for iter.Last(); iter.Valid() && (limit <= 0 || len(trades) < limit); iter.Prev() {
		var t Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		if filterByToken && t.TokenType != tokenType {
			continue
		}
		trades = append(trades, &t)
	}
	return trades, nil
}

// batch stages account/market/order/trade writes for an atomic commit.
type batch struct {
	pb *pebble.Batch
}

func (s *store) newBatch() *batch {
	return &batch{pb: s.db.NewBatch()}
}

func (b *batch) saveAccount(acc *Account) error {
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	return b.pb.Set(accountKey(acc.UserID, acc.ChainID), data, nil)
}

func (b *batch) saveMarket(m *Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.pb.Set(marketKey(m.ID), data, nil)
}

func (b *batch) saveOrder(o *Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	if err := b.pb.Set(orderKey(o.MarketID, o.ID), data, nil); err != nil {
		return err
	}
	return b.pb.Set(userOrderKey(o.UserID, o.ChainID, o.MarketID, o.ID), []byte{1}, nil)
}

func (b *batch) saveTrade(seq int64, t *Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return b.pb.Set(tradeKey(t.MarketID, seq, t.ID), data, nil)
}

func (b *batch) saveParticipant(marketID, userID, chainID string) error {
	return b.pb.Set(participantKey(marketID, userID, chainID), []byte{1}, nil)
}

func (b *batch) commit() error {
	if err := b.pb.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *batch) close() error {
	return b.pb.Close()
}
