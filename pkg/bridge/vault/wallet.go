package vault

import (
	"fmt"

	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
)

// AddressDeriver derives a fresh deposit address for (vault, request)
// from the vault's wallet public key. The derivation itself is a
// backing-chain-specific concern (HD derivation, P2WSH script assembly,
// ...) that belongs to an external wallet/key-derivation collaborator; this
// registry only requires that whatever is produced is unique per
// (vault, request id), which RegisterDepositAddress enforces.
type AddressDeriver interface {
	Derive(pubKey chain.BtcPublicKey, requestID chain.RequestID) (chain.BtcAddress, error)
}

// InsertDepositAddress records a caller-supplied deposit address for
// requestID against vault's wallet. Unlike RegisterDepositAddress, the
// address here is supplied directly by the caller rather than derived from
// the vault's wallet public key — used by accept_replace and
// auction_replace, where the new vault already knows its own address.
func (r *Registry) InsertDepositAddress(
	id chain.AccountID,
	requestID chain.RequestID,
	addr chain.BtcAddress,
) error {
	return r.mutate1(id, func(v *Vault) error {
		if _, exists := v.Wallet.Addresses[requestID]; exists {
			return fmt.Errorf("vault: deposit address already registered for request %x", requestID)
		}
		v.Wallet.Addresses[requestID] = addr
		return nil
	})
}

// RegisterDepositAddress derives and records a unique deposit address for
// requestID against vault's wallet.
func (r *Registry) RegisterDepositAddress(
	id chain.AccountID,
	requestID chain.RequestID,
	deriver AddressDeriver,
) (chain.BtcAddress, error) {
	var addr chain.BtcAddress
	err := r.mutate1(id, func(v *Vault) error {
		if _, exists := v.Wallet.Addresses[requestID]; exists {
			return fmt.Errorf("vault: deposit address already registered for request %x", requestID)
		}
		derived, err := deriver.Derive(v.Wallet.PublicKey, requestID)
		if err != nil {
			return err
		}
		v.Wallet.Addresses[requestID] = derived
		addr = derived
		return nil
	})
	if err != nil {
		return nil, err
	}
	return addr, nil
}
