// Package deposit exposes the exchange's one inbound bridge from the
// external chains: crediting an off-chain balance for a confirmed
// on-chain deposit, idempotent on a per-(user, chain) block-height
// watermark.
package deposit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/predictionmkt/exchange/internal/ledger"
)

// Credit mirrors an external-chain deposit into the off-chain ledger. It
// is a thin, logging wrapper over Ledger.CreditDeposit: the idempotency
// and locking live there, since a deposit is a ledger-level concern, not
// an admission- or matching-level one.
func Credit(ctx context.Context, l *ledger.Ledger, log *zap.Logger, userID, chainID string, amountUSD decimal.Decimal, externalTxRef string, externalBlockHeight int64) (applied bool, err error) {
	if amountUSD.LessThanOrEqual(decimal.Zero) {
		return false, fmt.Errorf("deposit: amount must be positive, got %s", amountUSD)
	}

	applied, err = l.CreditDeposit(ctx, userID, chainID, amountUSD, externalTxRef, externalBlockHeight)
	if err != nil {
		return false, err
	}

	if log != nil {
		if applied {
			log.Info("deposit credited",
				zap.String("user", userID),
				zap.String("chain", chainID),
				zap.String("amount", amountUSD.String()),
				zap.String("txRef", externalTxRef),
				zap.Int64("blockHeight", externalBlockHeight))
		} else {
			log.Warn("deposit ignored: stale or replayed block height",
				zap.String("user", userID),
				zap.String("chain", chainID),
				zap.String("txRef", externalTxRef),
				zap.Int64("blockHeight", externalBlockHeight))
		}
	}
	return applied, nil
}
