package vault

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
)

// requiredCollateral returns the DOT collateral required to back
// outstanding at the given threshold ratio.
func (r *Registry) requiredCollateral(outstanding amount.Amount, threshold amount.Ratio) (amount.Amount, error) {
	valueInDOT, err := r.oracle.BTCToDOT(outstanding)
	if err != nil {
		return amount.Zero, err
	}
	required, err := valueInDOT.MulRatio(threshold)
	if err != nil {
		return amount.Zero, wrapArith(err)
	}
	return required, nil
}

// TryIncreaseToBeIssued fails with ErrExceedingVaultLimit if adding amt to
// to_be_issued would push the required collateral (at
// SecureCollateralThreshold) above the vault's backing_collateral.
func (r *Registry) TryIncreaseToBeIssued(id chain.AccountID, amt amount.Amount) error {
	return r.mutate1(id, func(v *Vault) error {
		outstanding, err := v.Outstanding()
		if err != nil {
			return wrapArith(err)
		}
		newOutstanding, err := outstanding.Add(amt)
		if err != nil {
			return wrapArith(err)
		}
		required, err := r.requiredCollateral(newOutstanding, r.params.Thresholds.Secure)
		if err != nil {
			return err
		}
		if v.BackingCollateral.LessThan(required) {
			return ErrExceedingVaultLimit
		}
		newToBeIssued, err := v.ToBeIssued.Add(amt)
		if err != nil {
			return wrapArith(err)
		}
		v.ToBeIssued = newToBeIssued
		return nil
	})
}

// IssueTokens moves amt from to_be_issued to issued, saturating the
// to_be_issued subtraction rather than failing on underflow.
func (r *Registry) IssueTokens(id chain.AccountID, amt amount.Amount) error {
	return r.mutate1(id, func(v *Vault) error {
		v.ToBeIssued = v.ToBeIssued.SaturatingSub(amt)
		issued, err := v.Issued.Add(amt)
		if err != nil {
			return wrapArith(err)
		}
		v.Issued = issued
		return nil
	})
}

// DecreaseToBeIssued is the symmetric reversal of TryIncreaseToBeIssued,
// used by cancel_issue.
func (r *Registry) DecreaseToBeIssued(id chain.AccountID, amt amount.Amount) error {
	return r.mutate1(id, func(v *Vault) error {
		newVal, err := v.ToBeIssued.Sub(amt)
		if err != nil {
			return wrapArith(err)
		}
		v.ToBeIssued = newVal
		return nil
	})
}

// TryIncreaseToBeRedeemed fails if amt exceeds issued - to_be_redeemed.
func (r *Registry) TryIncreaseToBeRedeemed(id chain.AccountID, amt amount.Amount) error {
	return r.mutate1(id, func(v *Vault) error {
		spare, err := v.Issued.Sub(v.ToBeRedeemed)
		if err != nil {
			return wrapArith(err)
		}
		if !amt.LessOrEqual(spare) {
			return ErrExceedingVaultLimit
		}
		newToBeRedeemed, err := v.ToBeRedeemed.Add(amt)
		if err != nil {
			return wrapArith(err)
		}
		v.ToBeRedeemed = newToBeRedeemed
		return nil
	})
}

// DecreaseToBeRedeemed reverses a to_be_redeemed commitment (redeem
// cancel-no-reimburse path).
func (r *Registry) DecreaseToBeRedeemed(id chain.AccountID, amt amount.Amount) error {
	return r.mutate1(id, func(v *Vault) error {
		newVal, err := v.ToBeRedeemed.Sub(amt)
		if err != nil {
			return wrapArith(err)
		}
		v.ToBeRedeemed = newVal
		return nil
	})
}

// DecreaseTokens is the redeem-execute (and reimburse-cancel) path: it
// burns amt from both issued and to_be_redeemed. The user argument
// identifies whose wBTC balance the caller burned; the registry itself does
// not move wBTC — that is the treasury primitive's job, invoked by the
// redeem engine around this call.
func (r *Registry) DecreaseTokens(id chain.AccountID, user chain.AccountID, amt amount.Amount) error {
	_ = user
	return r.mutate1(id, func(v *Vault) error {
		issued, err := v.Issued.Sub(amt)
		if err != nil {
			return wrapArith(err)
		}
		toBeRedeemed, err := v.ToBeRedeemed.Sub(amt)
		if err != nil {
			return wrapArith(err)
		}
		v.Issued = issued
		v.ToBeRedeemed = toBeRedeemed
		return nil
	})
}

// IncreaseToBeReplaced adds amt to to_be_replaced, used by request_replace.
// Unlike to_be_issued there is no collateral gate here — the old vault is
// giving up tokens, not taking on more — only the invariant
// to_be_replaced <= issued - to_be_redeemed, enforced below.
func (r *Registry) IncreaseToBeReplaced(id chain.AccountID, amt amount.Amount) error {
	return r.mutate1(id, func(v *Vault) error {
		spare, err := v.Issued.Sub(v.ToBeRedeemed)
		if err != nil {
			return wrapArith(err)
		}
		newToBeReplaced, err := v.ToBeReplaced.Add(amt)
		if err != nil {
			return wrapArith(err)
		}
		if !newToBeReplaced.LessOrEqual(spare) {
			return ErrExceedingVaultLimit
		}
		v.ToBeReplaced = newToBeReplaced
		return nil
	})
}

// DecreaseToBeReplaced reverses a to_be_replaced commitment (accept_replace
// step 3, withdraw_replace).
func (r *Registry) DecreaseToBeReplaced(id chain.AccountID, amt amount.Amount) error {
	return r.mutate1(id, func(v *Vault) error {
		newVal, err := v.ToBeReplaced.Sub(amt)
		if err != nil {
			return wrapArith(err)
		}
		v.ToBeReplaced = newVal
		return nil
	})
}

// ReplaceTokens moves tokens from old.issued+to_be_redeemed to new.issued on
// a successful replace; collateral on old is released by the caller via
// SlashCollateral against the old vault's griefing bucket, while collateral
// previously locked on new stays locked.
func (r *Registry) ReplaceTokens(oldID, newID chain.AccountID, tokens amount.Amount) error {
	return r.mutate2(oldID, newID, func(old, new_ *Vault) error {
		oldIssued, err := old.Issued.Sub(tokens)
		if err != nil {
			return wrapArith(err)
		}
		oldToBeRedeemed, err := old.ToBeRedeemed.Sub(tokens)
		if err != nil {
			return wrapArith(err)
		}
		newIssued, err := new_.Issued.Add(tokens)
		if err != nil {
			return wrapArith(err)
		}
		new_.ToBeIssued = new_.ToBeIssued.SaturatingSub(tokens)
		old.Issued = oldIssued
		old.ToBeRedeemed = oldToBeRedeemed
		new_.Issued = newIssued
		return nil
	})
}

// CancelReplaceTokens is the reversal on cancel: old.to_be_redeemed -=
// tokens, new.to_be_issued -= tokens.
func (r *Registry) CancelReplaceTokens(oldID, newID chain.AccountID, tokens amount.Amount) error {
	return r.mutate2(oldID, newID, func(old, new_ *Vault) error {
		oldToBeRedeemed, err := old.ToBeRedeemed.Sub(tokens)
		if err != nil {
			return wrapArith(err)
		}
		newToBeIssued, err := new_.ToBeIssued.Sub(tokens)
		if err != nil {
			return wrapArith(err)
		}
		old.ToBeRedeemed = oldToBeRedeemed
		new_.ToBeIssued = newToBeIssued
		return nil
	})
}
