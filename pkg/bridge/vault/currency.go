package vault

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
)

// SourceKind is the tag of a CurrencySource.
type SourceKind int

const (
	// SourceBacking refers to a vault's backing_collateral bucket.
	SourceBacking SourceKind = iota
	// SourceGriefing refers to an account's griefing bond. For the replace
	// engine this account is a vault (its own griefing bucket); for the
	// issue/redeem engines it is the requesting user, whose griefing bond
	// is held by the external collateral primitive rather than by any
	// bucket this registry tracks.
	SourceGriefing
	// SourceFreeBalance refers to an account's free (unlocked) balance —
	// a vault's free_balance bucket if account is a registered vault, or
	// a plain user's free DOT balance otherwise.
	SourceFreeBalance
	// SourceLiquidationVault refers to the Liquidation Vault's dedicated
	// collateral bucket.
	SourceLiquidationVault
)

// CurrencySource is the tagged value every collateral movement is keyed
// on, so all collateral movement goes through a single function rather
// than one bespoke mutation per bucket pairing.
type CurrencySource struct {
	Kind    SourceKind
	Account chain.AccountID
}

// Backing builds a Backing(vault) source.
func Backing(vault chain.AccountID) CurrencySource {
	return CurrencySource{Kind: SourceBacking, Account: vault}
}

// Griefing builds a Griefing(account) source.
func Griefing(account chain.AccountID) CurrencySource {
	return CurrencySource{Kind: SourceGriefing, Account: account}
}

// FreeBalance builds a FreeBalance(account) source.
func FreeBalance(account chain.AccountID) CurrencySource {
	return CurrencySource{Kind: SourceFreeBalance, Account: account}
}

// LiquidationVaultSource is the singleton LiquidationVault source.
var LiquidationVaultSource = CurrencySource{Kind: SourceLiquidationVault, Account: LiquidationVaultID}

func (cs CurrencySource) resolvedAccount() chain.AccountID {
	if cs.Kind == SourceLiquidationVault {
		return LiquidationVaultID
	}
	return cs.Account
}

// applyBucketDelta adds amt to (add=true) or subtracts it from (add=false)
// whichever bucket field kind addresses on v. It returns
// ErrInvalidCurrencySource for an unknown kind and the wrapped arithmetic
// error on overflow/underflow. Endpoints with no vault in this registry
// (e.g. a plain user's Griefing/FreeBalance) never reach it: the caller
// only invokes it for tracked vaults.
func applyBucketDelta(v *Vault, kind SourceKind, amt amount.Amount, add bool) error {
	var field *amount.Amount
	switch kind {
	case SourceBacking, SourceLiquidationVault:
		field = &v.BackingCollateral
	case SourceGriefing:
		field = &v.GriefingCollateral
	case SourceFreeBalance:
		field = &v.FreeBalance
	default:
		return ErrInvalidCurrencySource
	}
	if add {
		newVal, err := field.Add(amt)
		if err != nil {
			return wrapArith(err)
		}
		*field = newVal
		return nil
	}
	newVal, err := field.Sub(amt)
	if err != nil {
		return wrapArith(err)
	}
	*field = newVal
	return nil
}

// SlashCollateral is the Vault Registry's single collateral-moving
// capability. It mirrors the movement into whichever side's
// bucket belongs to a vault tracked by this registry (vault-to-vault or
// vault-to-LiquidationVault moves update both sides; a plain user endpoint,
// e.g. Griefing(requester) in the issue engine's cancel path, has no
// registry-tracked bucket and is left to the external collateral primitive
// the engine calls separately).
func (r *Registry) SlashCollateral(src, dst CurrencySource, amt amount.Amount) error {
	if amt.IsZero() {
		return nil
	}

	srcAccount := src.resolvedAccount()
	dstAccount := dst.resolvedAccount()

	r.mu.Lock()
	defer r.mu.Unlock()

	srcVault, srcTracked := r.vaults[srcAccount]
	dstVault, dstTracked := r.vaults[dstAccount]

	var srcClone, dstClone *Vault
	if srcTracked {
		srcClone = srcVault.clone()
		if err := applyBucketDelta(srcClone, src.Kind, amt, false); err != nil {
			return err
		}
	}
	if dstTracked {
		if srcAccount == dstAccount {
			dstClone = srcClone
			if err := applyBucketDelta(dstClone, dst.Kind, amt, true); err != nil {
				return err
			}
		} else {
			dstClone = dstVault.clone()
			if err := applyBucketDelta(dstClone, dst.Kind, amt, true); err != nil {
				return err
			}
		}
	}

	if srcAccount != dstAccount {
		if err := r.collateral.Slash(srcAccount, dstAccount, amt); err != nil {
			return err
		}
	}

	if srcTracked {
		r.vaults[srcAccount] = srcClone
	}
	if dstTracked && srcAccount != dstAccount {
		r.vaults[dstAccount] = dstClone
	}
	return nil
}
