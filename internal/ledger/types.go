package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// TokenType distinguishes the two outcome tokens of a binary market.
type TokenType string

const (
	Yes TokenType = "YES"
	No  TokenType = "NO"
)

// Opposite returns the other token type.
func (t TokenType) Opposite() TokenType {
	if t == Yes {
		return No
	}
	return Yes
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "OPEN"
	OrderPartial   OrderStatus = "PARTIAL"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Outcome is a market's resolution outcome.
type Outcome string

const (
	Unresolved Outcome = "UNRESOLVED"
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Market is a binary prediction market: it resolves to exactly one of
// YES or NO at its resolution time.
type Market struct {
	ID             string
	Question       string
	Creator        string
	ResolutionTime time.Time
	Outcome        Outcome
	Settled        bool
	CreatedAt      time.Time
}

// Order is a signed limit order for one outcome token of one market.
type Order struct {
	ID             string
	MarketID       string
	UserID         string
	ChainID        string
	Side           Side
	TokenType      TokenType
	Price          decimal.Decimal
	Quantity       int64
	FilledQuantity int64
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining returns the order's unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.FilledQuantity
}

// Closed reports whether the order can no longer receive fills.
func (o *Order) Closed() bool {
	return o.Status == OrderFilled || o.Status == OrderCancelled
}

// Trade is an immutable record of one executed fill.
type Trade struct {
	ID          string
	MarketID    string
	BuyOrderID  string
	SellOrderID string
	TokenType   TokenType
	Price       decimal.Decimal
	Quantity    int64
	Timestamp   time.Time
}

// Position is a user's per-market token and collateral inventory. This is
// the single well-typed record called for by the design notes: all six
// numeric fields always present, never a partial/"any-shape" document.
type Position struct {
	YesTokens           int64
	NoTokens            int64
	LockedYesTokens     int64
	LockedNoTokens      int64
	LockedCollateralYes decimal.Decimal
	LockedCollateralNo  decimal.Decimal
}

// NewPosition returns a zero-valued position record.
func NewPosition() *Position {
	return &Position{
		LockedCollateralYes: decimal.Zero,
		LockedCollateralNo:  decimal.Zero,
	}
}

// Tokens returns the user's free inventory for the given token type.
func (p *Position) Tokens(t TokenType) int64 {
	if t == Yes {
		return p.YesTokens
	}
	return p.NoTokens
}

// LockedTokens returns the user's locked inventory for the given token type.
func (p *Position) LockedTokens(t TokenType) int64 {
	if t == Yes {
		return p.LockedYesTokens
	}
	return p.LockedNoTokens
}

// LockedCollateral returns the user's locked collateral backing short
// sales of the given token type.
func (p *Position) LockedCollateral(t TokenType) decimal.Decimal {
	if t == Yes {
		return p.LockedCollateralYes
	}
	return p.LockedCollateralNo
}

// Account is the user ledger entry keyed by (userId, chainId): a free
// monetary balance plus one position per market the user has touched.
type Account struct {
	UserID                string
	ChainID               string
	AvailableUSD          decimal.Decimal
	Positions             map[string]*Position // marketId -> position
	LastExternalBlockHeight int64
}

// NewAccount returns a fresh zero-balance account.
func NewAccount(userID, chainID string) *Account {
	return &Account{
		UserID:       userID,
		ChainID:      chainID,
		AvailableUSD: decimal.Zero,
		Positions:    make(map[string]*Position),
	}
}

// PositionFor returns the user's position for a market, creating a zero
// record on first reference (per §4.1's "creating a zero record on first
// reference within a market").
func (a *Account) PositionFor(marketID string) *Position {
	pos, ok := a.Positions[marketID]
	if !ok {
		pos = NewPosition()
		a.Positions[marketID] = pos
	}
	return pos
}
