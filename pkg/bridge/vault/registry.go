package vault

import (
	"fmt"
	"sync"

	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/bridgelog"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/events"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/params"
	"go.uber.org/zap"
)

// Registry is the Vault Registry: the authoritative ledger of every vault
// plus the Liquidation Vault singleton. A sync.RWMutex guards the map.
type Registry struct {
	mu     sync.RWMutex
	vaults map[chain.AccountID]*Vault

	params     *params.Parameters
	oracle     chain.Oracle
	collateral chain.Collateral
	sink       events.Sink
	log        *zap.SugaredLogger
}

// NewRegistry constructs an empty Registry with its Liquidation Vault
// already present as an always-existing singleton.
func NewRegistry(
	p *params.Parameters,
	oracle chain.Oracle,
	collateral chain.Collateral,
	sink events.Sink,
) *Registry {
	r := &Registry{
		vaults:     make(map[chain.AccountID]*Vault),
		params:     p,
		oracle:     oracle,
		collateral: collateral,
		sink:       sink,
		log:        bridgelog.Sugared("vault-registry"),
	}
	r.vaults[LiquidationVaultID] = newVault(LiquidationVaultID, nil)
	return r
}

// RegisterVault adds a new Active vault to the registry. Vault onboarding
// itself is an external concern handled elsewhere, but every engine
// composes against vaults that must first exist; exported so hosts and
// tests can populate the registry.
func (r *Registry) RegisterVault(id chain.AccountID, pubKey chain.BtcPublicKey) (*Vault, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == LiquidationVaultID {
		return nil, fmt.Errorf("vault: account id is reserved for the liquidation vault")
	}
	if _, exists := r.vaults[id]; exists {
		return nil, fmt.Errorf("vault: vault %x already registered", id)
	}
	v := newVault(id, pubKey)
	r.vaults[id] = v
	return v.clone(), nil
}

// GetVault returns a defensive copy of the vault with the given id.
func (r *Registry) GetVault(id chain.AccountID) (*Vault, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(id)
}

func (r *Registry) getLocked(id chain.AccountID) (*Vault, error) {
	v, ok := r.vaults[id]
	if !ok {
		return nil, ErrVaultNotFound
	}
	return v.clone(), nil
}

// GetActiveVault returns a copy of the vault, failing if it is not Active.
func (r *Registry) GetActiveVault(id chain.AccountID) (*Vault, error) {
	v, err := r.GetVault(id)
	if err != nil {
		return nil, err
	}
	if v.Status != Active {
		return nil, fmt.Errorf("vault: vault %x is not active (status=%s)", id, v.Status)
	}
	return v, nil
}

// OracleConvert exposes the registry's configured price oracle so callers
// outside this package (the issue/redeem engines) can size griefing
// collateral in DOT terms without holding their own oracle reference.
func (r *Registry) OracleConvert(btc amount.Amount) (amount.Amount, error) {
	return r.oracle.BTCToDOT(btc)
}

// LiquidationVault returns a copy of the Liquidation Vault singleton.
func (r *Registry) LiquidationVault() *Vault {
	v, _ := r.GetVault(LiquidationVaultID)
	return v
}

// EnsureNotBanned fails with ErrVaultBanned if the vault is banned as of
// currentHeight.
func (r *Registry) EnsureNotBanned(id chain.AccountID, currentHeight params.BlockHeight) error {
	v, err := r.GetVault(id)
	if err != nil {
		return err
	}
	if v.IsBanned(currentHeight) {
		return ErrVaultBanned
	}
	return nil
}

// Ban marks the vault banned until the given height (exclusive), used by
// the redeem engine's cancel-with-punishment path.
func (r *Registry) Ban(id chain.AccountID, until params.BlockHeight) error {
	return r.mutate1(id, func(v *Vault) error {
		v.BannedUntil = &until
		return nil
	})
}

// AddBackingCollateral records collateral a vault operator has locked with
// the external Collateral primitive (chain.Collateral.Lock) into the
// vault's own backing_collateral bucket. Used by the replace engine's
// accept_replace/auction_replace steps, where a new vault locks fresh DOT
// before taking on the old vault's issued tokens.
func (r *Registry) AddBackingCollateral(id chain.AccountID, amt amount.Amount) error {
	return r.mutate1(id, func(v *Vault) error {
		newVal, err := v.BackingCollateral.Add(amt)
		if err != nil {
			return wrapArith(err)
		}
		v.BackingCollateral = newVal
		return nil
	})
}

// mutate1 is the single-vault staged-mutation helper: it clones the vault,
// runs fn against the clone, and only commits the clone back into the map
// if fn succeeds — giving every registry operation all-or-nothing
// transaction semantics without a real DB transaction.
func (r *Registry) mutate1(id chain.AccountID, fn func(v *Vault) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vaults[id]
	if !ok {
		return ErrVaultNotFound
	}
	clone := v.clone()
	if err := fn(clone); err != nil {
		return err
	}
	r.vaults[id] = clone
	return nil
}

// mutate2 stages a joint mutation across two vaults (e.g. replace_tokens),
// committing both clones together or neither.
func (r *Registry) mutate2(
	idA, idB chain.AccountID,
	fn func(a, b *Vault) error,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.vaults[idA]
	if !ok {
		return ErrVaultNotFound
	}
	b, ok := r.vaults[idB]
	if !ok {
		return ErrVaultNotFound
	}
	cloneA, cloneB := a.clone(), b.clone()
	if err := fn(cloneA, cloneB); err != nil {
		return err
	}
	r.vaults[idA] = cloneA
	r.vaults[idB] = cloneB
	return nil
}

// emit forwards an event to the configured sink, if any.
func (r *Registry) emit(e events.Event) {
	if r.sink != nil {
		r.sink.Emit(e)
	}
}

func wrapArith(err error) error {
	switch err {
	case amount.ErrOverflow:
		return ErrArithmeticOverflow
	case amount.ErrUnderflow:
		return ErrArithmeticUnderflow
	default:
		return err
	}
}
