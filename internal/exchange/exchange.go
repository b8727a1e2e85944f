// Package exchange wires the Ledger, Signature Verifier, Matching Engine,
// Order Admission, and Settlement components into the single blocking
// entry point the API layer calls into.
package exchange

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/predictionmkt/exchange/internal/admission"
	"github.com/predictionmkt/exchange/internal/config"
	"github.com/predictionmkt/exchange/internal/deposit"
	"github.com/predictionmkt/exchange/internal/ledger"
	"github.com/predictionmkt/exchange/internal/matching"
	"github.com/predictionmkt/exchange/internal/settlement"
	"github.com/predictionmkt/exchange/internal/signing"
)

// Exchange is the top-level handle a daemon or test wires up once and
// calls into for every request.
type Exchange struct {
	cfg      config.Config
	log      *zap.Logger
	ledger   *ledger.Ledger
	registry *signing.Registry
	engine   *matching.Engine
	admitter *admission.Admitter

	orderSeq int64
	tradeSeq int64
}

// New opens the Ledger at cfg.DataDir and wires every component together.
func New(cfg config.Config, log *zap.Logger) (*Exchange, error) {
	l, err := ledger.Open(cfg.DataDir, log)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	reg := signing.NewRegistry()
	for _, c := range cfg.Chains {
		reg.Register(signing.ChainConfig{ChainID: c.ID, Scheme: schemeFor(c)})
	}

	engine := matching.New(l, log)

	e := &Exchange{cfg: cfg, log: log, ledger: l, registry: reg, engine: engine}
	e.admitter = admission.New(l, reg, engine, log, e.newOrderID, e.newTradeID)
	return e, nil
}

func schemeFor(c config.Chain) signing.Scheme {
	switch c.Scheme {
	case "ed25519":
		return signing.SchemeEd25519Solana
	case "secp256k1":
		return signing.SchemeSecp256k1CosmosADR36
	default:
		return signing.SchemeTrustWithoutVerify
	}
}

func (e *Exchange) newOrderID() string {
	n := atomic.AddInt64(&e.orderSeq, 1)
	return fmt.Sprintf("ord-%d-%d", time.Now().UnixNano(), n)
}

func (e *Exchange) newTradeID() string {
	n := atomic.AddInt64(&e.tradeSeq, 1)
	return fmt.Sprintf("trd-%d-%d", time.Now().UnixNano(), n)
}

// Close releases the underlying Ledger's storage handle.
func (e *Exchange) Close() error {
	return e.ledger.Close()
}

// CreateMarket registers a new, unresolved binary market.
func (e *Exchange) CreateMarket(ctx context.Context, id, question, creator string, resolutionTime time.Time) (*ledger.Market, error) {
	return e.ledger.CreateMarket(ctx, id, question, creator, resolutionTime)
}

// SubmitOrder runs the full admission-then-matching pipeline for a signed
// order request, bounding the admission step at cfg.AdmissionDeadline when
// the caller's context carries no earlier deadline of its own.
func (e *Exchange) SubmitOrder(ctx context.Context, req admission.Request) (*ledger.Order, error) {
	ctx, cancel := e.withDeadline(ctx, e.cfg.AdmissionDeadline)
	defer cancel()
	return e.admitter.Admit(ctx, req)
}

// Settle resolves marketID to its terminal outcome, bounding the
// settlement step at cfg.SettlementDeadline when the caller's context
// carries no earlier deadline of its own.
func (e *Exchange) Settle(ctx context.Context, marketID string, outcome ledger.Outcome) error {
	ctx, cancel := e.withDeadline(ctx, e.cfg.SettlementDeadline)
	defer cancel()
	return settlement.Settle(ctx, e.ledger, marketID, outcome, e.log)
}

// CreditDeposit mirrors a confirmed external-chain deposit into the
// off-chain ledger.
func (e *Exchange) CreditDeposit(ctx context.Context, userID, chainID string, amountUSD decimal.Decimal, externalTxRef string, externalBlockHeight int64) (bool, error) {
	return deposit.Credit(ctx, e.ledger, e.log, userID, chainID, amountUSD, externalTxRef, externalBlockHeight)
}

// GetMarket is a read-only market lookup.
func (e *Exchange) GetMarket(marketID string) (*ledger.Market, error) {
	return e.ledger.GetMarket(marketID)
}

// GetAccount is a read-only ledger entry lookup.
func (e *Exchange) GetAccount(userID, chainID string) (*ledger.Account, error) {
	return e.ledger.GetAccount(userID, chainID)
}

// GetOrder is a read-only order lookup.
func (e *Exchange) GetOrder(marketID, orderID string) (*ledger.Order, error) {
	return e.ledger.GetOrder(marketID, orderID)
}

// OrdersByUser is a read-only, newest-first listing of every order a user
// has placed across all markets.
func (e *Exchange) OrdersByUser(userID, chainID string) ([]*ledger.Order, error) {
	return e.ledger.OrdersByUser(userID, chainID)
}

// RecentTrades is a read-only, newest-first trade listing.
func (e *Exchange) RecentTrades(marketID string, tokenType ledger.TokenType, limit int) ([]*ledger.Trade, error) {
	return e.ledger.RecentTrades(marketID, tokenType, limit)
}

// OrderBook returns the aggregated bid/ask price levels for a market and
// token type, for the read-only book view.
func (e *Exchange) OrderBook(marketID string, tokenType ledger.TokenType) (bids, asks []matching.Level, err error) {
	return e.engine.Levels(marketID, tokenType)
}

// BestBidAsk returns the best bid/ask for a market and token type.
func (e *Exchange) BestBidAsk(marketID string, tokenType ledger.TokenType) (bid, ask matching.Level, hasBid, hasAsk bool, err error) {
	return e.engine.BestBidAsk(marketID, tokenType)
}

func (e *Exchange) withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
