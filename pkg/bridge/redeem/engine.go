package redeem

import (
	"fmt"
	"sync"

	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/bridgelog"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/events"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/params"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/vault"
	"go.uber.org/zap"
)

// Engine implements request_redeem / execute_redeem / cancel_redeem and the
// Liquidation Vault's direct liquidation-redeem path.
type Engine struct {
	mu       sync.RWMutex
	requests map[chain.RequestID]*Request

	registry *vault.Registry
	verifier chain.Verifier
	treasury chain.Treasury
	security chain.Security
	fees     chain.Fees
	sla      chain.SLA
	sink     events.Sink
	params   *params.Parameters
	log      *zap.SugaredLogger
}

// Dependencies bundles every collaborator the Redeem Engine needs.
type Dependencies struct {
	Registry *vault.Registry
	Verifier chain.Verifier
	Treasury chain.Treasury
	Security chain.Security
	Fees     chain.Fees
	SLA      chain.SLA
	Sink     events.Sink
	Params   *params.Parameters
}

// NewEngine constructs a Redeem Engine.
func NewEngine(deps Dependencies) *Engine {
	return &Engine{
		requests: make(map[chain.RequestID]*Request),
		registry: deps.Registry,
		verifier: deps.Verifier,
		treasury: deps.Treasury,
		security: deps.Security,
		fees:     deps.Fees,
		sla:      deps.SLA,
		sink:     deps.Sink,
		params:   deps.Params,
		log:      bridgelog.Sugared("redeem-engine"),
	}
}

func (e *Engine) emit(ev events.Event) {
	if e.sink != nil {
		e.sink.Emit(ev)
	}
}

// RequestRedeem reserves to_be_redeemed capacity on the vault and locks
// the redeemer's wBTC ahead of the vault's backing-chain payout.
func (e *Engine) RequestRedeem(
	redeemer chain.AccountID,
	amountBTC amount.Amount,
	btcAddress chain.BtcAddress,
	vaultID chain.AccountID,
	currentHeight params.BlockHeight,
) (chain.RequestID, error) {
	if err := e.security.EnsureParachainRunning(); err != nil {
		return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
	}

	v, err := e.registry.GetVault(vaultID)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
	}

	feeRate, err := e.fees.RedeemFeeRate()
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
	}
	fee, err := amountBTC.MulRatio(feeRate)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
	}
	redeemValue, err := amountBTC.Sub(fee)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
	}

	if v.Status == vault.Active {
		// to_be_redeemed tracks the net redeem value, not the fee — the fee
		// never counts against the vault's issued/to_be_redeemed commitment.
		if err := e.registry.TryIncreaseToBeRedeemed(vaultID, redeemValue); err != nil {
			return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
		}
	}

	if err := e.treasury.Lock(redeemer, amountBTC); err != nil {
		return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
	}

	var premium amount.Amount
	if v.Status == vault.Active {
		belowPremium, err := e.registry.IsBelowPremiumRedeemThreshold(vaultID)
		if err != nil {
			return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
		}
		if belowPremium {
			valueInDOT, err := e.registry.OracleConvert(redeemValue)
			if err != nil {
				return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
			}
			premiumRate, err := e.fees.PremiumRedeemFeeRate()
			if err != nil {
				return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
			}
			premium, err = valueInDOT.MulRatio(premiumRate)
			if err != nil {
				return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
			}
		}
	}

	redeemID, err := e.security.GetSecureID(redeemer)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request redeem: %w", err)
	}

	req := &Request{
		Redeemer:   redeemer,
		Vault:      vaultID,
		AmountBTC:  amountBTC,
		Fee:        fee,
		Premium:    premium,
		BtcAddress: btcAddress,
		OpenTime:   currentHeight,
	}

	e.mu.Lock()
	e.requests[redeemID] = req
	e.mu.Unlock()

	e.emit(events.NewRequestRedeem(redeemID, redeemer, vaultID, amountBTC, fee, premium))
	e.log.Infow("redeem requested", "redeemID", fmt.Sprintf("%x", redeemID), "vault", fmt.Sprintf("%x", vaultID))
	return redeemID, nil
}

func (e *Engine) getOpenRequest(redeemID chain.RequestID) (Request, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	req, ok := e.requests[redeemID]
	if !ok {
		return Request{}, ErrRedeemIDNotFound
	}
	if err := req.isOpen(); err != nil {
		return Request{}, err
	}
	return *req, nil
}

// ExecuteRedeem verifies the vault's backing-chain payout proof, burns the
// redeemer's locked wBTC, mints the fee to the fee pool, removes the
// redeemed amount from the vault's issued and to_be_redeemed counters, and
// pays any premium from the vault's backing collateral to the redeemer.
func (e *Engine) ExecuteRedeem(redeemID chain.RequestID, txID chain.TxID, merkleProof []byte, rawTx []byte, currentHeight params.BlockHeight) error {
	if err := e.security.EnsureParachainRunning(); err != nil {
		return fmt.Errorf("execute redeem: %w", err)
	}

	req, err := e.getOpenRequest(redeemID)
	if err != nil {
		return fmt.Errorf("execute redeem: %w", err)
	}
	if hasExpired(req.OpenTime, e.params.Periods.Redeem, currentHeight) {
		return fmt.Errorf("execute redeem: %w", ErrCommitPeriodExpired)
	}

	redeemValue, err := req.RedeemValue()
	if err != nil {
		return fmt.Errorf("execute redeem: %w", err)
	}

	if err := e.verifier.VerifyInclusion(txID, merkleProof); err != nil {
		return fmt.Errorf("execute redeem: %w", err)
	}
	if _, _, err := e.verifier.ValidateTransaction(rawTx, redeemValue, req.BtcAddress, redeemID[:]); err != nil {
		return fmt.Errorf("execute redeem: %w", err)
	}

	if err := e.treasury.Burn(req.Redeemer, req.AmountBTC); err != nil {
		return fmt.Errorf("execute redeem: %w", err)
	}
	if err := e.treasury.Mint(e.fees.FeePoolAccount(), req.Fee); err != nil {
		return fmt.Errorf("execute redeem: %w", err)
	}

	if err := e.registry.DecreaseTokens(req.Vault, req.Redeemer, redeemValue); err != nil {
		return fmt.Errorf("execute redeem: %w", err)
	}

	if !req.Premium.IsZero() {
		if err := e.registry.SlashCollateral(vault.Backing(req.Vault), vault.FreeBalance(req.Redeemer), req.Premium); err != nil {
			return fmt.Errorf("execute redeem: %w", err)
		}
	}

	if err := e.sla.EventUpdateVaultSLA(req.Vault, chain.SLAUpdate{Event: chain.ExecutedRedeem, Amount: redeemValue}); err != nil {
		return fmt.Errorf("execute redeem: %w", err)
	}

	e.mu.Lock()
	if stored, ok := e.requests[redeemID]; ok {
		stored.Completed = true
	}
	e.mu.Unlock()

	e.emit(events.NewExecuteRedeem(redeemID, req.Redeemer, req.Vault, redeemValue))
	e.log.Infow("redeem executed", "redeemID", fmt.Sprintf("%x", redeemID))
	return nil
}

// CancelRedeem settles an expired, unpaid redemption: an active vault is
// punished and banned, and the redeemer either takes reimbursement (the
// DOT value of the redeem from the vault's backing collateral, with the
// locked wBTC burned and the fee re-minted) or gets the locked wBTC
// unlocked; a liquidated vault's liability is paid from the Liquidation
// Vault instead.
func (e *Engine) CancelRedeem(caller chain.AccountID, redeemID chain.RequestID, reimburse bool, currentHeight params.BlockHeight) error {
	req, err := e.getOpenRequest(redeemID)
	if err != nil {
		return fmt.Errorf("cancel redeem: %w", err)
	}
	if caller != req.Redeemer {
		return fmt.Errorf("cancel redeem: %w", ErrUnauthorized)
	}
	if !hasExpired(req.OpenTime, e.params.Periods.Redeem, currentHeight) {
		return fmt.Errorf("cancel redeem: %w", ErrTimeNotExpired)
	}

	redeemValue, err := req.RedeemValue()
	if err != nil {
		return fmt.Errorf("cancel redeem: %w", err)
	}
	valueInDOT, err := e.registry.OracleConvert(redeemValue)
	if err != nil {
		return fmt.Errorf("cancel redeem: %w", err)
	}

	v, err := e.registry.GetVault(req.Vault)
	if err != nil {
		return fmt.Errorf("cancel redeem: %w", err)
	}

	var punishment amount.Amount
	if v.Status == vault.Active {
		punishmentRate, err := e.fees.PunishmentFeeRate()
		if err != nil {
			return fmt.Errorf("cancel redeem: %w", err)
		}
		punishment, err = valueInDOT.MulRatio(punishmentRate)
		if err != nil {
			return fmt.Errorf("cancel redeem: %w", err)
		}
		if !punishment.IsZero() {
			if err := e.registry.SlashCollateral(vault.Backing(req.Vault), vault.FreeBalance(req.Redeemer), punishment); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
		}
		if reimburse {
			if err := e.registry.SlashCollateral(vault.Backing(req.Vault), vault.FreeBalance(req.Redeemer), valueInDOT); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
			if err := e.treasury.Burn(req.Redeemer, req.AmountBTC); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
			if err := e.treasury.Mint(req.Redeemer, req.Fee); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
			if err := e.registry.DecreaseTokens(req.Vault, req.Redeemer, redeemValue); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
		} else {
			if err := e.treasury.Unlock(req.Redeemer, req.AmountBTC); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
			if err := e.registry.DecreaseToBeRedeemed(req.Vault, redeemValue); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
		}
		if err := e.registry.Ban(req.Vault, currentHeight+e.params.Periods.PunishmentDelay); err != nil {
			return fmt.Errorf("cancel redeem: %w", err)
		}
	} else {
		entitlement, err := e.registry.LiquidationVaultEntitlement(redeemValue)
		if err != nil {
			return fmt.Errorf("cancel redeem: %w", err)
		}
		if err := e.registry.SlashCollateral(vault.LiquidationVaultSource, vault.FreeBalance(req.Redeemer), entitlement); err != nil {
			return fmt.Errorf("cancel redeem: %w", err)
		}
		if reimburse {
			if err := e.treasury.Burn(req.Redeemer, req.AmountBTC); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
			if err := e.treasury.Mint(req.Redeemer, req.Fee); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
		} else {
			if err := e.treasury.Unlock(req.Redeemer, req.AmountBTC); err != nil {
				return fmt.Errorf("cancel redeem: %w", err)
			}
		}
		if err := e.registry.DecreaseLiquidationVaultCommitment(redeemValue); err != nil {
			return fmt.Errorf("cancel redeem: %w", err)
		}
	}

	if err := e.sla.EventUpdateVaultSLA(req.Vault, chain.SLAUpdate{Event: chain.RedeemFailure}); err != nil {
		return fmt.Errorf("cancel redeem: %w", err)
	}

	e.mu.Lock()
	if stored, ok := e.requests[redeemID]; ok {
		stored.Cancelled = true
	}
	e.mu.Unlock()

	e.emit(events.NewCancelRedeem(redeemID, req.Redeemer, req.Vault, reimburse, punishment))
	e.log.Infow("redeem cancelled", "redeemID", fmt.Sprintf("%x", redeemID), "reimburse", reimburse)
	return nil
}

// LiquidationRedeem is a direct burn-for-DOT exchange against the
// Liquidation Vault's pooled collateral, with no associated request record.
func (e *Engine) LiquidationRedeem(user chain.AccountID, amountWBTC amount.Amount) error {
	entitlement, err := e.registry.LiquidationVaultEntitlement(amountWBTC)
	if err != nil {
		return fmt.Errorf("liquidation redeem: %w", err)
	}
	if err := e.treasury.Burn(user, amountWBTC); err != nil {
		return fmt.Errorf("liquidation redeem: %w", err)
	}
	if err := e.registry.SlashCollateral(vault.LiquidationVaultSource, vault.FreeBalance(user), entitlement); err != nil {
		return fmt.Errorf("liquidation redeem: %w", err)
	}
	if err := e.registry.DecreaseLiquidationVaultCommitment(amountWBTC); err != nil {
		return fmt.Errorf("liquidation redeem: %w", err)
	}
	e.log.Infow("liquidation redeem settled", "user", fmt.Sprintf("%x", user), "wbtc", amountWBTC.String(), "dot", entitlement.String())
	return nil
}

// ForRequester returns every redeem request created by requester, a
// read-only view used by off-chain indexers.
func (e *Engine) ForRequester(requester chain.AccountID) map[chain.RequestID]Request {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[chain.RequestID]Request)
	for id, r := range e.requests {
		if r.Redeemer == requester {
			out[id] = *r
		}
	}
	return out
}

// ForVault returns every redeem request against vaultID.
func (e *Engine) ForVault(vaultID chain.AccountID) map[chain.RequestID]Request {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[chain.RequestID]Request)
	for id, r := range e.requests {
		if r.Vault == vaultID {
			out[id] = *r
		}
	}
	return out
}
