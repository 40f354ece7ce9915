// Package redeem implements the Redeem Engine: request, execute and cancel
// of wBTC redemption against a vault's backing-chain payout, plus the
// Liquidation Vault's direct liquidation-redeem path.
package redeem

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/params"
)

// Request is the redemption record tracked from request through execution
// or cancellation.
type Request struct {
	Redeemer   chain.AccountID
	Vault      chain.AccountID
	AmountBTC  amount.Amount
	Fee        amount.Amount
	Premium    amount.Amount
	BtcAddress chain.BtcAddress
	OpenTime   params.BlockHeight
	Completed  bool
	Cancelled  bool
}

// RedeemValue is amount - fee, the quantity actually owed to the redeemer
// on the backing chain.
func (r *Request) RedeemValue() (amount.Amount, error) {
	return r.AmountBTC.Sub(r.Fee)
}

func (r *Request) isOpen() error {
	if r.Completed {
		return ErrRedeemCompleted
	}
	if r.Cancelled {
		return ErrRedeemCancelled
	}
	return nil
}

func hasExpired(openTime, period, currentHeight params.BlockHeight) bool {
	return currentHeight > openTime+period
}
