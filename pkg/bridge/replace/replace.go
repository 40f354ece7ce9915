// Package replace implements the Replace Engine: request, accept, auction,
// execute, cancel and withdraw of a vault rotation, in which one vault's
// BTC-holding responsibility for a slice of issued wBTC moves to another
// vault.
package replace

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/params"
)

// Request is the replacement record tracked from request through execution,
// cancellation or withdrawal. NewVault and BtcAddress are zero until
// Accepted; AcceptTime is nil until Accepted. An auction-replace request is
// created already Accepted, with no Pending interval ever observed.
type Request struct {
	OldVault           chain.AccountID
	NewVault           chain.AccountID
	Amount             amount.Amount
	GriefingCollateral amount.Amount
	BtcAddress         chain.BtcAddress

	OpenTime   params.BlockHeight
	AcceptTime *params.BlockHeight
	Accepted   bool
	Completed  bool
	Cancelled  bool
}

func (r *Request) isOpen() error {
	if r.Completed {
		return ErrReplaceCompleted
	}
	if r.Cancelled {
		return ErrReplaceCancelled
	}
	return nil
}

// expiryAnchor is the request's open time, or its accept time once it has
// been accepted — cancellation accounts from acceptance, not from the
// original request.
func (r *Request) expiryAnchor() params.BlockHeight {
	if r.Accepted && r.AcceptTime != nil {
		return *r.AcceptTime
	}
	return r.OpenTime
}

func hasExpired(anchor, period, currentHeight params.BlockHeight) bool {
	return currentHeight > anchor+period
}
