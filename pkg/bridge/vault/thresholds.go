package vault

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
)

// isBelowThreshold reports whether the vault's backing collateral is below
// the DOT value of its outstanding commitment at the given threshold ratio.
// Every threshold query recomputes from the oracle on each call: no
// cached/memoized exchange rate.
func (r *Registry) isBelowThreshold(id chain.AccountID, threshold amount.Ratio) (bool, error) {
	v, err := r.GetVault(id)
	if err != nil {
		return false, err
	}
	outstanding, err := v.Outstanding()
	if err != nil {
		return false, wrapArith(err)
	}
	required, err := r.requiredCollateral(outstanding, threshold)
	if err != nil {
		return false, err
	}
	return v.BackingCollateral.LessThan(required), nil
}

// IsVaultBelowSecureThreshold reports whether the vault is under-collateralized
// at the secure threshold.
func (r *Registry) IsVaultBelowSecureThreshold(id chain.AccountID) (bool, error) {
	return r.isBelowThreshold(id, r.params.Thresholds.Secure)
}

// IsBelowPremiumRedeemThreshold reports whether the vault is under-collateralized
// at the premium redeem threshold.
func (r *Registry) IsBelowPremiumRedeemThreshold(id chain.AccountID) (bool, error) {
	return r.isBelowThreshold(id, r.params.Thresholds.Premium)
}

// IsBelowAuctionThreshold reports whether the vault is under-collateralized
// at the auction threshold.
func (r *Registry) IsBelowAuctionThreshold(id chain.AccountID) (bool, error) {
	return r.isBelowThreshold(id, r.params.Thresholds.Auction)
}

// IsBelowLiquidationThreshold reports whether the vault is under-collateralized
// at the liquidation threshold.
func (r *Registry) IsBelowLiquidationThreshold(id chain.AccountID) (bool, error) {
	return r.isBelowThreshold(id, r.params.Thresholds.Liquidation)
}
