package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CreateMarket registers a new, unresolved market. Serialized on the new
// market's own id, so concurrent creation of distinct markets proceeds in
// parallel.
func (l *Ledger) CreateMarket(ctx context.Context, id, question, creator string, resolutionTime time.Time) (*Market, error) {
	txn, err := l.Begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	if existing, _ := l.st.getMarket(id); existing != nil {
		return nil, fmt.Errorf("%w: market %s already exists", ErrConflict, id)
	}

	m := &Market{
		ID:             id,
		Question:       question,
		Creator:        creator,
		ResolutionTime: resolutionTime,
		Outcome:        Unresolved,
		Settled:        false,
		CreatedAt:      time.Now().UTC(),
	}
	txn.SaveMarket(m)
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMarket is a read-only lookup; it does not participate in the
// per-market write serialization.
func (l *Ledger) GetMarket(marketID string) (*Market, error) {
	m, err := l.st.getMarket(marketID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: market %s", ErrNotFound, marketID)
	}
	return m, nil
}

// GetAccount is a read-only lookup of a user's ledger entry.
func (l *Ledger) GetAccount(userID, chainID string) (*Account, error) {
	acc, err := l.st.getAccount(userID, chainID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = NewAccount(userID, chainID)
	}
	return acc, nil
}

// OpenOrders is a read-only snapshot of resting orders for a market and
// token type.
func (l *Ledger) OpenOrders(marketID string, tokenType TokenType) ([]*Order, error) {
	return l.st.openOrders(marketID, tokenType, true)
}

// GetOrder is a read-only order lookup.
func (l *Ledger) GetOrder(marketID, orderID string) (*Order, error) {
	o, err := l.st.getOrder(marketID, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return o, nil
}

// OrdersByUser is a read-only, newest-first listing of every order a user
// has placed across all markets.
func (l *Ledger) OrdersByUser(userID, chainID string) ([]*Order, error) {
	return l.st.userOrders(userID, chainID)
}

// MarketParticipants returns every (userId, chainId) pair that has ever
// held a position in marketID, for settlement to enumerate.
func (l *Ledger) MarketParticipants(marketID string) ([][2]string, error) {
	return l.st.marketParticipants(marketID)
}

// RecentTrades is a read-only, newest-first trade listing for a market,
// optionally filtered by token type (pass "" to disable the filter).
func (l *Ledger) RecentTrades(marketID string, tokenType TokenType, limit int) ([]*Trade, error) {
	return l.st.recentTrades(marketID, tokenType, tokenType != "", limit)
}

// CreditDeposit mirrors an external-chain deposit into the off-chain
// ledger. It is idempotent on externalBlockHeight, tracked as a watermark
// per (userId, chainId) account: calls with a height at or below that
// account's stored watermark are silently ignored. Not
// scoped to any single market, so it is serialized on a reserved pseudo
// market id rather than one of the caller's trading markets.
func (l *Ledger) CreditDeposit(ctx context.Context, userID, chainID string, amountUSD decimal.Decimal, externalTxRef string, externalBlockHeight int64) (applied bool, err error) {
	txn, err := l.Begin(ctx, depositLockKey(userID, chainID))
	if err != nil {
		return false, err
	}
	defer txn.Rollback()

	acc, err := txn.LoadAccount(userID, chainID)
	if err != nil {
		return false, err
	}

	if externalBlockHeight <= acc.LastExternalBlockHeight {
		return false, nil
	}

	acc.AvailableUSD = acc.AvailableUSD.Add(amountUSD)
	acc.LastExternalBlockHeight = externalBlockHeight
	txn.MarkAccountDirty(acc)

	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func depositLockKey(userID, chainID string) string {
	return "deposit:" + userID + ":" + chainID
}
