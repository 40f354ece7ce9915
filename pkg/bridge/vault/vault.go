// Package vault implements the Vault Registry and the Liquidation Vault:
// the authoritative ledger of per-vault token counters and collateral
// buckets that every other engine composes.
package vault

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/params"
)

// Status is the lifecycle state of a vault.
type Status int

const (
	// Active vaults may accept new issue/redeem/replace commitments.
	Active Status = iota
	// Liquidated vaults have crossed the liquidation threshold; their
	// obligations are inherited by the Liquidation Vault and no new
	// commitments may be made against them, but in-flight requests still
	// settle against them.
	Liquidated
	// CommittedTheft marks a vault that has been proven to have stolen
	// backing-chain funds it held on the protocol's behalf. The core only
	// tracks the status transition; theft detection itself is an external
	// collaborator's concern.
	CommittedTheft
)

func (s Status) String() string {
	switch s {
	case Active:
		return "Active"
	case Liquidated:
		return "Liquidated"
	case CommittedTheft:
		return "CommittedTheft"
	default:
		return "Unknown"
	}
}

// Wallet is a vault's backing-chain signing key plus its registered deposit
// addresses, unique per (vault, request id).
type Wallet struct {
	PublicKey chain.BtcPublicKey
	Addresses map[chain.RequestID]chain.BtcAddress
}

func newWallet(pubKey chain.BtcPublicKey) Wallet {
	return Wallet{
		PublicKey: pubKey,
		Addresses: make(map[chain.RequestID]chain.BtcAddress),
	}
}

func (w Wallet) clone() Wallet {
	addrs := make(map[chain.RequestID]chain.BtcAddress, len(w.Addresses))
	for k, v := range w.Addresses {
		addrs[k] = v
	}
	return Wallet{PublicKey: w.PublicKey, Addresses: addrs}
}

// Vault is the per-account ledger entry tracking a vault's token counters,
// collateral buckets and wallet.
type Vault struct {
	ID     chain.AccountID
	Status Status

	Issued       amount.Amount
	ToBeIssued   amount.Amount
	ToBeRedeemed amount.Amount
	ToBeReplaced amount.Amount

	BackingCollateral  amount.Amount
	GriefingCollateral amount.Amount
	FreeBalance        amount.Amount

	Wallet Wallet

	// BannedUntil is the block height until which the vault may not accept
	// new commitments; nil means not banned.
	BannedUntil *params.BlockHeight
}

func newVault(id chain.AccountID, pubKey chain.BtcPublicKey) *Vault {
	return &Vault{
		ID:     id,
		Status: Active,
		Wallet: newWallet(pubKey),
	}
}

func (v *Vault) clone() *Vault {
	cp := *v
	cp.Wallet = v.Wallet.clone()
	if v.BannedUntil != nil {
		until := *v.BannedUntil
		cp.BannedUntil = &until
	}
	return &cp
}

// IsLiquidated reports whether v is the Liquidated state, the single check
// every engine uses to dispatch between the "active" and "liquidation"
// code paths.
func (v *Vault) IsLiquidated() bool {
	return v.Status == Liquidated
}

// IsBanned reports whether v is banned as of currentHeight.
func (v *Vault) IsBanned(currentHeight params.BlockHeight) bool {
	return v.BannedUntil != nil && currentHeight < *v.BannedUntil
}

// Outstanding returns issued + to_be_issued - to_be_redeemed, the quantity
// every collateralization check is computed against.
func (v *Vault) Outstanding() (amount.Amount, error) {
	sum, err := v.Issued.Add(v.ToBeIssued)
	if err != nil {
		return amount.Zero, err
	}
	return sum.Sub(v.ToBeRedeemed)
}

// LiquidationVaultID is the reserved account id for the Liquidation Vault
// singleton, represented as a distinct account with the same Vault shape
// rather than special-cased in every engine.
var LiquidationVaultID = chain.AccountID{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}
