// Package execution applies a single matched fill to both parties'
// positions, including short-sale token minting, under one Ledger
// transaction.
package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/predictionmkt/exchange/internal/ledger"
)

// Apply applies one fill between a buy order and a sell order of the same
// market and token type. execPrice is the resting maker's price; fillQty
// is the quantity crossed. It never mutates order status or filled
// quantity — that is the Matching Engine's responsibility — and never
// touches lockedCollateralYes/No, which survive until settlement.
func Apply(txn *ledger.Txn, buyOrder, sellOrder *ledger.Order, fillQty int64, execPrice decimal.Decimal) error {
	if buyOrder.TokenType != sellOrder.TokenType {
		return fmt.Errorf("%w: token type mismatch %s vs %s", ErrLedgerInconsistency, buyOrder.TokenType, sellOrder.TokenType)
	}
	tokenType := buyOrder.TokenType
	qty := decimal.NewFromInt(fillQty)

	sellerAcc, sellerPos, err := txn.LoadPosition(sellOrder.UserID, sellOrder.ChainID)
	if err != nil {
		return fmt.Errorf("%w: load seller position: %v", ErrLedgerInconsistency, err)
	}
	buyerAcc, buyerPos, err := txn.LoadPosition(buyOrder.UserID, buyOrder.ChainID)
	if err != nil {
		return fmt.Errorf("%w: load buyer position: %v", ErrLedgerInconsistency, err)
	}

	// Monetary payment: seller is paid at the execution price; the buyer's
	// funds were pre-locked at their own limit price, so price improvement
	// is refunded out of that pre-lock, never as new money.
	sellerAcc.AvailableUSD = sellerAcc.AvailableUSD.Add(execPrice.Mul(qty))
	txn.MarkAccountDirty(sellerAcc)

	if buyOrder.Price.GreaterThan(execPrice) {
		refund := buyOrder.Price.Sub(execPrice).Mul(qty)
		buyerAcc.AvailableUSD = buyerAcc.AvailableUSD.Add(refund)
	}
	txn.MarkAccountDirty(buyerAcc)

	// Token delivery, short-sale minting when the seller is not fully
	// covered by free inventory.
	if err := deliver(tokenType, sellerPos, buyerPos, fillQty); err != nil {
		return err
	}

	return nil
}

func deliver(tokenType ledger.TokenType, sellerPos, buyerPos *ledger.Position, fillQty int64) error {
	if tokenType == ledger.Yes {
		locked := sellerPos.LockedYesTokens
		if locked >= fillQty {
			sellerPos.LockedYesTokens -= fillQty
			buyerPos.YesTokens += fillQty
			return nil
		}
		fromInventory := locked
		short := fillQty - fromInventory
		sellerPos.LockedYesTokens = 0
		buyerPos.YesTokens += fromInventory

		collateral := sellerPos.LockedCollateralYes
		if collateral.LessThan(decimal.NewFromInt(short)) {
			return fmt.Errorf("%w: seller has insufficient YES collateral for short of %d", ErrLedgerInconsistency, short)
		}
		buyerPos.YesTokens += short
		sellerPos.NoTokens += short
		return nil
	}

	// NO case, symmetric.
	locked := sellerPos.LockedNoTokens
	if locked >= fillQty {
		sellerPos.LockedNoTokens -= fillQty
		buyerPos.NoTokens += fillQty
		return nil
	}
	fromInventory := locked
	short := fillQty - fromInventory
	sellerPos.LockedNoTokens = 0
	buyerPos.NoTokens += fromInventory

	collateral := sellerPos.LockedCollateralNo
	if collateral.LessThan(decimal.NewFromInt(short)) {
		return fmt.Errorf("%w: seller has insufficient NO collateral for short of %d", ErrLedgerInconsistency, short)
	}
	buyerPos.NoTokens += short
	sellerPos.YesTokens += short
	return nil
}
