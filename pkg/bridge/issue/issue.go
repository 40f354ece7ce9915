// Package issue implements the Issue Engine: request, execute and cancel of
// wBTC issuance against a vault's locked BTC collateral.
package issue

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/params"
)

// Request is the issuance record tracked from request through execution or
// cancellation. A request is never deleted once terminal — only its
// Completed/Cancelled flags are set.
type Request struct {
	Requester          chain.AccountID
	Vault              chain.AccountID
	Amount             amount.Amount
	Fee                amount.Amount
	GriefingCollateral amount.Amount
	BtcAddress         chain.BtcAddress
	BtcPublicKey       chain.BtcPublicKey
	OpenTime           params.BlockHeight
	Completed          bool
	Cancelled          bool
}

// TotalBTC is amount+fee, the quantity the vault must actually pay on the
// backing chain.
func (r *Request) TotalBTC() (amount.Amount, error) {
	return r.Amount.Add(r.Fee)
}

func (r *Request) isOpen() error {
	if r.Completed {
		return ErrIssueCompleted
	}
	if r.Cancelled {
		return ErrIssueCancelled
	}
	return nil
}

func hasExpired(openTime params.BlockHeight, period params.BlockHeight, currentHeight params.BlockHeight) bool {
	return currentHeight > openTime+period
}
