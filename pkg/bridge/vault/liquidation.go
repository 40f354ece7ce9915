package vault

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/events"
)

// LiquidateVault moves the vault to Liquidated, folds its
// issued/to_be_issued/to_be_redeemed counters into the Liquidation Vault,
// and transfers a pro-rata share of its backing collateral — floor((
// backing_collateral * outstanding) / (issued + to_be_issued)) — into the
// Liquidation Vault's collateral bucket. The vault keeps the remainder as
// free balance. It is safe to call once per vault; calling it again on an
// already-Liquidated vault is a no-op returning the zero amount.
func (r *Registry) LiquidateVault(id chain.AccountID) (amount.Amount, error) {
	var slashed amount.Amount
	var remaining amount.Amount

	err := r.mutate2(id, LiquidationVaultID, func(v, lv *Vault) error {
		if v.Status == Liquidated {
			slashed = amount.Zero
			remaining = v.FreeBalance
			return nil
		}

		outstanding, err := v.Outstanding()
		if err != nil {
			return wrapArith(err)
		}

		denom, err := v.Issued.Add(v.ToBeIssued)
		if err != nil {
			return wrapArith(err)
		}

		var slashAmt amount.Amount
		if !denom.IsZero() {
			slashAmt, err = v.BackingCollateral.MulDivFloor(outstanding, denom)
			if err != nil {
				return err
			}
		}

		remainder, err := v.BackingCollateral.Sub(slashAmt)
		if err != nil {
			return wrapArith(err)
		}

		newLVIssued, err := lv.Issued.Add(v.Issued)
		if err != nil {
			return wrapArith(err)
		}
		newLVToBeIssued, err := lv.ToBeIssued.Add(v.ToBeIssued)
		if err != nil {
			return wrapArith(err)
		}
		newLVToBeRedeemed, err := lv.ToBeRedeemed.Add(v.ToBeRedeemed)
		if err != nil {
			return wrapArith(err)
		}
		newLVCollateral, err := lv.BackingCollateral.Add(slashAmt)
		if err != nil {
			return wrapArith(err)
		}

		newFree, err := v.FreeBalance.Add(remainder)
		if err != nil {
			return wrapArith(err)
		}

		lv.Issued = newLVIssued
		lv.ToBeIssued = newLVToBeIssued
		lv.ToBeRedeemed = newLVToBeRedeemed
		lv.BackingCollateral = newLVCollateral

		v.Status = Liquidated
		v.BackingCollateral = amount.Zero
		v.FreeBalance = newFree
		// The Liquidation Vault inherits these counters (above); zero them
		// here so Σissued across vaults + LV.issued is not double-counted.
		v.Issued = amount.Zero
		v.ToBeIssued = amount.Zero
		v.ToBeRedeemed = amount.Zero

		slashed = slashAmt
		remaining = newFree
		return nil
	})
	if err != nil {
		return amount.Zero, err
	}

	r.emit(events.NewLiquidate(id, slashed, remaining))
	return slashed, nil
}

// LiquidationVaultEntitlement computes the DOT amount a wbtcAmount share of
// the Liquidation Vault's backing collateral is worth — floor(LV.backing *
// wbtcAmount / (LV.issued + LV.to_be_issued)) — used by the redeem engine's
// liquidation-redeem and liquidated-vault cancel-redeem paths. It fails
// with ErrInsufficientTokens if wbtcAmount exceeds what is actually
// redeemable (issued + to_be_issued − to_be_redeemed).
func (r *Registry) LiquidationVaultEntitlement(wbtcAmount amount.Amount) (amount.Amount, error) {
	lv := r.LiquidationVault()

	committed, err := lv.Issued.Add(lv.ToBeIssued)
	if err != nil {
		return amount.Zero, wrapArith(err)
	}
	redeemable, err := committed.Sub(lv.ToBeRedeemed)
	if err != nil {
		return amount.Zero, wrapArith(err)
	}
	if !wbtcAmount.LessOrEqual(redeemable) {
		return amount.Zero, ErrInsufficientTokens
	}
	if committed.IsZero() {
		return amount.Zero, nil
	}
	return lv.BackingCollateral.MulDivFloor(wbtcAmount, committed)
}

// DecreaseLiquidationVaultCommitment reduces the Liquidation Vault's
// issued+to_be_issued obligation by wbtcAmount after a liquidation redeem or
// a liquidated-vault cancel redeem, saturating into to_be_issued once issued
// is exhausted (mirrors IssueTokens's saturating style).
func (r *Registry) DecreaseLiquidationVaultCommitment(wbtcAmount amount.Amount) error {
	return r.mutate1(LiquidationVaultID, func(lv *Vault) error {
		if wbtcAmount.LessOrEqual(lv.Issued) {
			newIssued, err := lv.Issued.Sub(wbtcAmount)
			if err != nil {
				return wrapArith(err)
			}
			lv.Issued = newIssued
			return nil
		}
		remainder, err := wbtcAmount.Sub(lv.Issued)
		if err != nil {
			return wrapArith(err)
		}
		lv.Issued = amount.Zero
		lv.ToBeIssued = lv.ToBeIssued.SaturatingSub(remainder)
		return nil
	})
}
