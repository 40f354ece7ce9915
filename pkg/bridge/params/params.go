// Package params bundles the period windows and collateralization
// thresholds that parameterize the bridge core, validated once at
// construction rather than trusted blindly by every engine.
package params

import (
	"fmt"

	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
)

// BlockHeight is a backing-chain-agnostic block height. The core never
// reads wall-clock time; every deadline is expressed in this unit and
// supplied explicitly by the caller.
type BlockHeight uint64

// Thresholds holds the four strictly-ordered collateralization ratios that
// gate issuance, redemption and liquidation.
type Thresholds struct {
	Secure      amount.Ratio
	Premium     amount.Ratio
	Auction     amount.Ratio
	Liquidation amount.Ratio
}

// Periods holds the block-height windows that gate cancellation/expiry
// across the three request kinds, plus the post-punishment ban duration.
type Periods struct {
	Issue           BlockHeight
	Redeem          BlockHeight
	Replace         BlockHeight
	PunishmentDelay BlockHeight
}

// Parameters is the full validated configuration bundle injected into the
// registry and engines. Fee, griefing and punishment rates are not part of
// this bundle: engines source those from the chain.Fees collaborator, which
// can reprice without a redeploy.
type Parameters struct {
	Thresholds Thresholds
	Periods    Periods

	// ReplaceBtcDustValue is the minimum amount accepted by request_replace
	// before AmountBelowDustAmount is returned.
	ReplaceBtcDustValue amount.Amount
}

// New validates the strict threshold ordering (Secure ≥ Premium ≥ Auction ≥
// Liquidation) and returns an error rather than allowing an engine to
// silently operate with an inconsistent configuration.
func New(t Thresholds, p Periods, replaceDust amount.Amount) (*Parameters, error) {
	if !t.Secure.GreaterOrEqual(t.Premium) {
		return nil, fmt.Errorf("params: secure threshold must be >= premium threshold")
	}
	if !t.Premium.GreaterOrEqual(t.Auction) {
		return nil, fmt.Errorf("params: premium threshold must be >= auction threshold")
	}
	if !t.Auction.GreaterOrEqual(t.Liquidation) {
		return nil, fmt.Errorf("params: auction threshold must be >= liquidation threshold")
	}
	return &Parameters{
		Thresholds:          t,
		Periods:             p,
		ReplaceBtcDustValue: replaceDust,
	}, nil
}

// Default returns the conventional threshold set (1.50 / 1.35 / 1.20 /
// 1.10) with no configured periods; callers in production would source
// Periods from the security module instead.
func Default() *Parameters {
	p, err := New(
		Thresholds{
			Secure:      amount.RatioFromPermille(1500),
			Premium:     amount.RatioFromPermille(1350),
			Auction:     amount.RatioFromPermille(1200),
			Liquidation: amount.RatioFromPermille(1100),
		},
		Periods{},
		amount.Zero,
	)
	if err != nil {
		// Unreachable: the literal constants above always satisfy the
		// ordering invariant validated by New.
		panic(err)
	}
	return p
}
