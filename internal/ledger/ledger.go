// Package ledger is the authoritative store of user balances, per-market
// positions, orders, trades, and markets, with atomic multi-entity
// transactions and a single logical writer per market.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ledger is the top-level entity owning storage and per-market
// serialization. All mutation flows through a *Txn obtained from Begin.
type Ledger struct {
	st  *store
	log *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // marketId -> serialization lock

	tradeSeqMu sync.Mutex
	tradeSeq   int64
}

// Open opens (or creates) the Pebble database at dataDir.
func Open(dataDir string, log *zap.Logger) (*Ledger, error) {
	st, err := openStore(dataDir)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		st:    st,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (l *Ledger) Close() error {
	return l.st.Close()
}

func (l *Ledger) marketLock(marketID string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	mu, ok := l.locks[marketID]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[marketID] = mu
	}
	return mu
}

func (l *Ledger) nextTradeSeq() int64 {
	l.tradeSeqMu.Lock()
	defer l.tradeSeqMu.Unlock()
	l.tradeSeq++
	return l.tradeSeq
}

// Txn is an in-flight, per-market-serialized transaction: each entity is
// read from storage on its first load and cached for the rest of the
// transaction, and all writes are staged in memory until Commit,
// which flushes them as a single atomic Pebble batch. Holding a Txn open
// holds the market's serialization lock; no other Txn against the same
// market proceeds until this one commits or is rolled back.
type Txn struct {
	ledger   *Ledger
	marketID string
	lock     *sync.Mutex
	done     bool

	accounts map[string]*Account // "userId:chainId" -> account (dirty or clean)
	dirtyAcc map[string]bool

	orders   map[string]*Order // orderId -> order
	dirtyOrd map[string]bool

	market      *Market
	marketDirty bool

	newTrades    []*Trade
	participants map[string]bool // acctKey(userId, chainId), staged for the participant index
}

// Begin starts a transaction serialized against the given market. It
// blocks (respecting ctx's deadline) until the market's lock is free.
func (l *Ledger) Begin(ctx context.Context, marketID string) (*Txn, error) {
	lock := l.marketLock(marketID)

	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// The goroutine above will still acquire the lock eventually and
		// leak it held forever unless we give it back; spin a releaser.
		go func() {
			<-acquired
			lock.Unlock()
		}()
		return nil, fmt.Errorf("%w: acquiring market lock: %v", ErrDeadlineExceeded, ctx.Err())
	}

	return &Txn{
		ledger:       l,
		marketID:     marketID,
		lock:         lock,
		accounts:     make(map[string]*Account),
		dirtyAcc:     make(map[string]bool),
		orders:       make(map[string]*Order),
		dirtyOrd:     make(map[string]bool),
		participants: make(map[string]bool),
	}, nil
}

func acctKey(userID, chainID string) string { return userID + ":" + chainID }

// LoadAccount returns the account for (userID, chainID), creating a zero
// record if it does not yet exist. The record is not persisted until the
// transaction commits.
func (t *Txn) LoadAccount(userID, chainID string) (*Account, error) {
	k := acctKey(userID, chainID)
	if acc, ok := t.accounts[k]; ok {
		return acc, nil
	}
	acc, err := t.ledger.st.getAccount(userID, chainID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = NewAccount(userID, chainID)
	}
	t.accounts[k] = acc
	return acc, nil
}

// MarkAccountDirty stages the account for persistence on commit.
func (t *Txn) MarkAccountDirty(acc *Account) {
	t.dirtyAcc[acctKey(acc.UserID, acc.ChainID)] = true
}

// LoadPosition is a convenience wrapper returning the user's position
// record for this transaction's market, creating zero records as needed.
// Touching a position here registers the account in the market's
// participant index, so settlement can later find it without a full scan.
func (t *Txn) LoadPosition(userID, chainID string) (*Account, *Position, error) {
	acc, err := t.LoadAccount(userID, chainID)
	if err != nil {
		return nil, nil, err
	}
	t.participants[acctKey(userID, chainID)] = true
	return acc, acc.PositionFor(t.marketID), nil
}

// LoadOrder returns an order by id, preferring the in-flight staged copy.
func (t *Txn) LoadOrder(orderID string) (*Order, error) {
	if o, ok := t.orders[orderID]; ok {
		return o, nil
	}
	o, err := t.ledger.st.getOrder(t.marketID, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	t.orders[orderID] = o
	return o, nil
}

// SaveOrder stages an order (new or mutated) for persistence on commit.
func (t *Txn) SaveOrder(o *Order) {
	o.UpdatedAt = time.Now().UTC()
	t.orders[o.ID] = o
	t.dirtyOrd[o.ID] = true
}

// OpenOrders returns every OPEN or PARTIAL order in this transaction's
// market for the given token type, reflecting any in-flight staged
// mutations over the persisted snapshot.
func (t *Txn) OpenOrders(tokenType TokenType) ([]*Order, error) {
	persisted, err := t.ledger.st.openOrders(t.marketID, tokenType, true)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Order, len(persisted))
	for _, o := range persisted {
		byID[o.ID] = o
	}
	for id, o := range t.orders {
		if o.TokenType != tokenType {
			continue
		}
		if o.Status == OrderOpen || o.Status == OrderPartial {
			byID[id] = o
		} else {
			delete(byID, id)
		}
	}
	out := make([]*Order, 0, len(byID))
	for _, o := range byID {
		out = append(out, o)
	}
	return out, nil
}

// InsertTrade stages a new, immutable trade record for persistence.
func (t *Txn) InsertTrade(tr *Trade) {
	t.newTrades = append(t.newTrades, tr)
}

// LoadMarket returns the transaction's market.
func (t *Txn) LoadMarket() (*Market, error) {
	if t.market != nil {
		return t.market, nil
	}
	m, err := t.ledger.st.getMarket(t.marketID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: market %s", ErrNotFound, t.marketID)
	}
	t.market = m
	return m, nil
}

// SaveMarket stages a market record (creation or settlement) for commit.
func (t *Txn) SaveMarket(m *Market) {
	t.market = m
	t.marketDirty = true
}

// Commit flushes every staged mutation as one atomic Pebble batch and
// releases the market's serialization lock.
func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	defer t.release()

	b := t.ledger.st.newBatch()
	for k, dirty := range t.dirtyAcc {
		if !dirty {
			continue
		}
		if err := b.saveAccount(t.accounts[k]); err != nil {
			b.close()
			return fmt.Errorf("stage account %s: %w", k, err)
		}
	}
	for id, dirty := range t.dirtyOrd {
		if !dirty {
			continue
		}
		if err := b.saveOrder(t.orders[id]); err != nil {
			b.close()
			return fmt.Errorf("stage order %s: %w", id, err)
		}
	}
	if t.marketDirty {
		if err := b.saveMarket(t.market); err != nil {
			b.close()
			return fmt.Errorf("stage market: %w", err)
		}
	}
	for _, tr := range t.newTrades {
		seq := t.ledger.nextTradeSeq()
		if err := b.saveTrade(seq, tr); err != nil {
			b.close()
			return fmt.Errorf("stage trade %s: %w", tr.ID, err)
		}
	}
	for k := range t.participants {
		acc := t.accounts[k]
		if acc == nil {
			continue
		}
		if err := b.saveParticipant(t.marketID, acc.UserID, acc.ChainID); err != nil {
			b.close()
			return fmt.Errorf("stage participant %s: %w", k, err)
		}
	}

	if err := b.commit(); err != nil {
		return err
	}
	return nil
}

// Rollback discards all staged mutations and releases the market lock.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.release()
}

func (t *Txn) release() {
	t.done = true
	t.lock.Unlock()
}
