// Package settlement resolves a market to its terminal outcome: every open
// order is cancelled and refunded, every participant's locked inventory is
// released, winning tokens are paid out at one dollar each, and losing
// collateral is forfeited.
package settlement

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/predictionmkt/exchange/internal/ledger"
)

// Settle resolves marketID to outcome (ledger.OutcomeYes or
// ledger.OutcomeNo) under a single Ledger transaction, per §4.6. Calling
// Settle on an already-settled market returns ErrAlreadySettled and makes
// no changes.
func Settle(ctx context.Context, l *ledger.Ledger, marketID string, outcome ledger.Outcome, log *zap.Logger) error {
	if outcome != ledger.OutcomeYes && outcome != ledger.OutcomeNo {
		return ErrInvalidOutcome
	}

	txn, err := l.Begin(ctx, marketID)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			txn.Rollback()
		}
	}()

	market, err := txn.LoadMarket()
	if err != nil {
		return err
	}
	if market.Settled {
		return ErrAlreadySettled
	}

	// Step 1-2: cancel every open/partial order and refund unfilled BUY
	// orders' locked funds to their owners.
	var openOrders []*ledger.Order
	for _, tt := range []ledger.TokenType{ledger.Yes, ledger.No} {
		orders, err := txn.OpenOrders(tt)
		if err != nil {
			return err
		}
		openOrders = append(openOrders, orders...)
	}

	for _, o := range openOrders {
		o.Status = ledger.OrderCancelled
		if o.Side == ledger.Buy {
			refund := o.Price.Mul(decimal.NewFromInt(o.Remaining()))
			acc, err := txn.LoadAccount(o.UserID, o.ChainID)
			if err != nil {
				return err
			}
			acc.AvailableUSD = acc.AvailableUSD.Add(refund)
			txn.MarkAccountDirty(acc)
		}
		txn.SaveOrder(o)
	}

	// Step 3-5: release locked inventory, pay out the winning side, forfeit
	// the losing side's collateral, and zero every position field.
	participants, err := l.MarketParticipants(marketID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		userID, chainID := p[0], p[1]
		acc, pos, err := txn.LoadPosition(userID, chainID)
		if err != nil {
			return err
		}

		pos.YesTokens += pos.LockedYesTokens
		pos.NoTokens += pos.LockedNoTokens

		// Collateral was never pulled out of availableUSD when it was locked
		// at admission (see admission.lockAssets); it only earns its way back
		// out here. A winning short's collateral needed no reservation in
		// hindsight, so releasing it is a no-op against availableUSD. A
		// losing short's collateral is forfeited: that is the one point
		// where it actually leaves the balance.
		if outcome == ledger.OutcomeYes {
			acc.AvailableUSD = acc.AvailableUSD.
				Add(decimal.NewFromInt(pos.YesTokens)).
				Sub(pos.LockedCollateralYes)
		} else {
			acc.AvailableUSD = acc.AvailableUSD.
				Add(decimal.NewFromInt(pos.NoTokens)).
				Sub(pos.LockedCollateralNo)
		}

		pos.YesTokens = 0
		pos.NoTokens = 0
		pos.LockedYesTokens = 0
		pos.LockedNoTokens = 0
		pos.LockedCollateralYes = decimal.Zero
		pos.LockedCollateralNo = decimal.Zero

		txn.MarkAccountDirty(acc)
	}

	// Step 6: resolve the market.
	market.Outcome = outcome
	market.Settled = true
	txn.SaveMarket(market)

	if err := txn.Commit(); err != nil {
		return err
	}
	committed = true

	if log != nil {
		log.Info("market settled",
			zap.String("market", marketID),
			zap.String("outcome", string(outcome)),
			zap.Int("participants", len(participants)),
			zap.Int("cancelledOrders", len(openOrders)))
	}
	return nil
}
