// Package admission is the entry point for a new limit order: it verifies
// the signature, validates parameters, locks the required funds/tokens/
// collateral, persists the order OPEN, and hands it to the Matching
// Engine as a taker — all under one Ledger transaction for the admission
// step itself.
package admission

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/predictionmkt/exchange/internal/ledger"
	"github.com/predictionmkt/exchange/internal/matching"
	"github.com/predictionmkt/exchange/internal/signing"
)

// Request is everything required to admit a new limit order.
type Request struct {
	MarketID  string
	UserID    string
	ChainID   string
	Side      ledger.Side
	TokenType ledger.TokenType
	Price     string // decimal string, preserved verbatim for signature reconstruction
	Quantity  int64

	WalletAddress  string
	Signature      string
	SessionPubKey  string
	SessionAddress string
}

// Admitter wires the Signature Verifier, Ledger, and Matching Engine
// together behind a single SubmitOrder-shaped entry point.
type Admitter struct {
	ledger   *ledger.Ledger
	registry *signing.Registry
	engine   *matching.Engine
	log      *zap.Logger
	newOrderID func() string
	newTradeID func() string
}

// New returns an Admitter. newOrderID and newTradeID generate unique ids
// for newly created orders and trades respectively.
func New(l *ledger.Ledger, reg *signing.Registry, eng *matching.Engine, log *zap.Logger, newOrderID, newTradeID func() string) *Admitter {
	return &Admitter{ledger: l, registry: reg, engine: eng, log: log, newOrderID: newOrderID, newTradeID: newTradeID}
}

// Admit runs the full order-admission pipeline described above and
// returns the order in its final post-matching status.
func (a *Admitter) Admit(ctx context.Context, req Request) (*ledger.Order, error) {
	sigReq := signing.Request{
		ChainID:        req.ChainID,
		MarketID:       req.MarketID,
		UserID:         req.UserID,
		Side:           string(req.Side),
		Price:          req.Price,
		Quantity:       strconv.FormatInt(req.Quantity, 10),
		TokenType:      string(req.TokenType),
		WalletAddress:  req.WalletAddress,
		Signature:      req.Signature,
		SessionPubKey:  req.SessionPubKey,
		SessionAddress: req.SessionAddress,
	}
	if err := a.registry.Verify(sigReq); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.LessThan(decimal.Zero) || price.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrInvalidPrice
	}
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	txn, err := a.ledger.Begin(ctx, req.MarketID)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			txn.Rollback()
		}
	}()

	market, err := txn.LoadMarket()
	if err != nil {
		return nil, err
	}
	if market.Settled {
		return nil, ErrMarketClosed
	}

	acc, pos, err := txn.LoadPosition(req.UserID, req.ChainID)
	if err != nil {
		return nil, err
	}

	if err := lockAssets(acc, pos, req.Side, req.TokenType, req.Quantity, price); err != nil {
		return nil, err
	}
	txn.MarkAccountDirty(acc)

	now := time.Now().UTC()
	order := &ledger.Order{
		ID:             a.newOrderID(),
		MarketID:       req.MarketID,
		UserID:         req.UserID,
		ChainID:        req.ChainID,
		Side:           req.Side,
		TokenType:      req.TokenType,
		Price:          price,
		Quantity:       req.Quantity,
		FilledQuantity: 0,
		Status:         ledger.OrderOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	txn.SaveOrder(order)

	if err := txn.Commit(); err != nil {
		return nil, err
	}
	committed = true

	if err := a.engine.Run(ctx, order, a.newTradeID); err != nil {
		return order, err
	}
	return order, nil
}

// lockAssets implements the asset-locking table of §4.3: BUY locks
// monetary funds at the limit price; SELL locks owned inventory first,
// then monetary collateral (one unit per shorted share) for any
// remainder.
func lockAssets(acc *ledger.Account, pos *ledger.Position, side ledger.Side, tokenType ledger.TokenType, quantity int64, price decimal.Decimal) error {
	if side == ledger.Buy {
		cost := price.Mul(decimal.NewFromInt(quantity))
		if acc.AvailableUSD.LessThan(cost) {
			return ErrInsufficientFunds
		}
		acc.AvailableUSD = acc.AvailableUSD.Sub(cost)
		return nil
	}

	owned := pos.Tokens(tokenType)
	moveQty := quantity
	if owned < moveQty {
		moveQty = owned
	}
	short := quantity - moveQty

	if tokenType == ledger.Yes {
		pos.YesTokens -= moveQty
		pos.LockedYesTokens += moveQty
	} else {
		pos.NoTokens -= moveQty
		pos.LockedNoTokens += moveQty
	}

	if short <= 0 {
		return nil
	}

	// A short position reserves collateral without moving it out of
	// availableUSD: the funds stay spendable-in-principle until the
	// market settles, at which point a losing short's collateral is
	// forfeited (actively debited) by Settlement. Only the solvency
	// check runs here.
	collateral := decimal.NewFromInt(short)
	if acc.AvailableUSD.LessThan(collateral) {
		// Undo the inventory move staged above; the whole lock fails atomically.
		if tokenType == ledger.Yes {
			pos.YesTokens += moveQty
			pos.LockedYesTokens -= moveQty
		} else {
			pos.NoTokens += moveQty
			pos.LockedNoTokens -= moveQty
		}
		return ErrInsufficientFunds
	}
	if tokenType == ledger.Yes {
		pos.LockedCollateralYes = pos.LockedCollateralYes.Add(collateral)
	} else {
		pos.LockedCollateralNo = pos.LockedCollateralNo.Add(collateral)
	}
	return nil
}
