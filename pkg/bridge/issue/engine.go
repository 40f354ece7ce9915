package issue

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

// Engine implements request_issue / execute_issue / cancel_issue,
// composing the Vault Registry and the external collaborators declared in
// pkg/bridge/chain.
type Engine struct {
	mu       sync.RWMutex
	requests map[chain.RequestID]*Request

	registry   *vault.Registry
	verifier   chain.Verifier
	collateral chain.Collateral
	treasury   chain.Treasury
	security   chain.Security
	fees       chain.Fees
	sla        chain.SLA
	refund     chain.Refund
	deriver    vault.AddressDeriver
	sink       events.Sink
	params     *params.Parameters
	log        *zap.SugaredLogger
}

// Dependencies bundles every collaborator Engine needs, mirroring the
// narrow per-engine Chain interfaces pkg/bridge/chain declares.
type Dependencies struct {
	Registry   *vault.Registry
	Verifier   chain.Verifier
	Collateral chain.Collateral
	Treasury   chain.Treasury
	Security   chain.Security
	Fees       chain.Fees
	SLA        chain.SLA
	Refund     chain.Refund
	Deriver    vault.AddressDeriver
	Sink       events.Sink
	Params     *params.Parameters
}

// NewEngine constructs an Issue Engine.
func NewEngine(deps Dependencies) *Engine {
	return &Engine{
		requests:   make(map[chain.RequestID]*Request),
		registry:   deps.Registry,
		verifier:   deps.Verifier,
		collateral: deps.Collateral,
		treasury:   deps.Treasury,
		security:   deps.Security,
		fees:       deps.Fees,
		sla:        deps.SLA,
		refund:     deps.Refund,
		deriver:    deps.Deriver,
		sink:       deps.Sink,
		params:     deps.Params,
		log:        bridgelog.Sugared("issue-engine"),
	}
}

func (e *Engine) emit(ev events.Event) {
	if e.sink != nil {
		e.sink.Emit(ev)
	}
}

// RequestIssue locks griefing collateral and reserves to_be_issued capacity
// on vaultID ahead of an off-chain BTC payment.
func (e *Engine) RequestIssue(
	requester chain.AccountID,
	amt amount.Amount,
	vaultID chain.AccountID,
	griefingCollateral amount.Amount,
	currentHeight params.BlockHeight,
) (chain.RequestID, error) {
	if err := e.security.EnsureParachainRunning(); err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}

	v, err := e.registry.GetActiveVault(vaultID)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}
	if v.IsBanned(currentHeight) {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", vault.ErrVaultBanned)
	}

	amountInDOT, err := e.registry.OracleConvert(amt)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}
	griefingRate, err := e.fees.IssueGriefingRate()
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}
	expectedGriefing, err := amountInDOT.MulRatio(griefingRate)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}
	if griefingCollateral.LessThan(expectedGriefing) {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", ErrInsufficientCollateral)
	}

	if err := e.collateral.Lock(requester, griefingCollateral); err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}

	feeRate, err := e.fees.IssueFeeRate()
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}
	fee, err := amt.MulRatio(feeRate)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}
	totalBTC, err := amt.Add(fee)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}

	issueID, err := e.security.GetSecureID(requester)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}

	if err := e.registry.TryIncreaseToBeIssued(vaultID, totalBTC); err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}

	depositAddr, err := e.registry.RegisterDepositAddress(vaultID, issueID, e.deriver)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request issue: %w", err)
	}

	req := &Request{
		Requester:          requester,
		Vault:              vaultID,
		Amount:             amt,
		Fee:                fee,
		GriefingCollateral: griefingCollateral,
		BtcAddress:         depositAddr,
		BtcPublicKey:       v.Wallet.PublicKey,
		OpenTime:           currentHeight,
	}

	e.mu.Lock()
	e.requests[issueID] = req
	e.mu.Unlock()

	e.emit(events.NewRequestIssue(issueID, requester, amt, fee, griefingCollateral, vaultID, depositAddr, v.Wallet.PublicKey))
	e.log.Infow("issue requested", "issueID", fmt.Sprintf("%x", issueID), "vault", fmt.Sprintf("%x", vaultID), "amount", amt.String())
	return issueID, nil
}

// getOpenRequest returns a defensive copy of the request, failing if it is
// missing, completed or cancelled.
func (e *Engine) getOpenRequest(issueID chain.RequestID) (Request, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	req, ok := e.requests[issueID]
	if !ok {
		return Request{}, ErrIssueIDNotFound
	}
	if err := req.isOpen(); err != nil {
		return Request{}, err
	}
	return *req, nil
}

// ExecuteIssue verifies the vault's backing-chain payment proof and mints
// wBTC to the requester, settling the reserved capacity into issued.
func (e *Engine) ExecuteIssue(
	executor chain.AccountID,
	issueID chain.RequestID,
	txID chain.TxID,
	merkleProof []byte,
	rawTx []byte,
	currentHeight params.BlockHeight,
) error {
	if err := e.security.EnsureParachainRunning(); err != nil {
		return fmt.Errorf("execute issue: %w", err)
	}

	req, err := e.getOpenRequest(issueID)
	if err != nil {
		return fmt.Errorf("execute issue: %w", err)
	}
	if hasExpired(req.OpenTime, e.params.Periods.Issue, currentHeight) {
		return fmt.Errorf("execute issue: %w", ErrCommitPeriodExpired)
	}

	totalAmount, err := req.TotalBTC()
	if err != nil {
		return fmt.Errorf("execute issue: %w", err)
	}

	if err := e.verifier.VerifyInclusion(txID, merkleProof); err != nil {
		return fmt.Errorf("execute issue: %w", err)
	}
	refundAddr, amountPaid, err := e.verifier.ValidateTransaction(rawTx, totalAmount, req.BtcAddress, nil)
	if err != nil {
		return fmt.Errorf("execute issue: %w", err)
	}

	v, err := e.registry.GetVault(req.Vault)
	if err != nil {
		return fmt.Errorf("execute issue: %w", err)
	}

	finalAmount, finalFee, finalTotal := req.Amount, req.Fee, totalAmount

	if v.IsLiquidated() {
		if err := e.registry.IssueTokens(vault.LiquidationVaultID, totalAmount); err != nil {
			return fmt.Errorf("execute issue: %w", err)
		}
	} else {
		if amountPaid.Cmp(totalAmount) > 0 {
			surplus, err := amountPaid.Sub(totalAmount)
			if err != nil {
				return fmt.Errorf("execute issue: %w", err)
			}
			if err := e.registry.TryIncreaseToBeIssued(req.Vault, surplus); err == nil {
				// Vault can absorb the surplus: rewrite fee/amount so that
				// fee stays proportional to the larger amount actually
				// paid, fee' = rate*amountPaid/(1+rate), amount' = paid-fee'.
				feeRate, ferr := e.fees.IssueFeeRate()
				if ferr != nil {
					return fmt.Errorf("execute issue: %w", ferr)
				}
				scaledPaid, ferr := feeRate.ApplyTo(amountPaid)
				if ferr != nil {
					return fmt.Errorf("execute issue: %w", ferr)
				}
				fee, ferr := feeRate.AddOne().DivInto(scaledPaid)
				if ferr != nil {
					return fmt.Errorf("execute issue: %w", ferr)
				}
				rewrittenAmount, serr := amountPaid.Sub(fee)
				if serr != nil {
					return fmt.Errorf("execute issue: %w", serr)
				}

				finalFee = fee
				finalAmount = rewrittenAmount
				finalTotal = amountPaid

				e.mu.Lock()
				if stored, ok := e.requests[issueID]; ok {
					stored.Fee = finalFee
					stored.Amount = finalAmount
				}
				e.mu.Unlock()

				e.log.Infow("issue overpayment absorbed by vault", "issueID", fmt.Sprintf("%x", issueID), "surplus", surplus.String())
			} else {
				if rerr := e.refund.RequestRefund(surplus, req.Vault, req.Requester, refundAddr, issueID); rerr != nil {
					return fmt.Errorf("execute issue: %w", rerr)
				}
				e.log.Infow("issue overpayment routed to refund module", "issueID", fmt.Sprintf("%x", issueID), "surplus", surplus.String())
			}
		}

		if err := e.registry.IssueTokens(req.Vault, finalTotal); err != nil {
			return fmt.Errorf("execute issue: %w", err)
		}
	}

	if err := e.collateral.Release(req.Requester, req.GriefingCollateral); err != nil {
		return fmt.Errorf("execute issue: %w", err)
	}

	if err := e.treasury.Mint(req.Requester, finalAmount); err != nil {
		return fmt.Errorf("execute issue: %w", err)
	}
	if err := e.treasury.Mint(e.fees.FeePoolAccount(), finalFee); err != nil {
		return fmt.Errorf("execute issue: %w", err)
	}

	if !v.IsLiquidated() {
		if err := e.sla.EventUpdateVaultSLA(req.Vault, chain.SLAUpdate{Event: chain.ExecutedIssue, Amount: finalAmount}); err != nil {
			return fmt.Errorf("execute issue: %w", err)
		}
	}

	if executor != req.Requester {
		if executorVault, verr := e.registry.GetActiveVault(executor); verr == nil {
			if err := e.sla.EventUpdateVaultSLA(executorVault.ID, chain.SLAUpdate{Event: chain.SubmittedIssueProof}); err != nil {
				return fmt.Errorf("execute issue: %w", err)
			}
		}
	}

	e.mu.Lock()
	if stored, ok := e.requests[issueID]; ok {
		stored.Completed = true
	}
	e.mu.Unlock()

	e.emit(events.NewExecuteIssue(issueID, req.Requester, finalTotal, req.Vault))
	e.log.Infow("issue executed", "issueID", fmt.Sprintf("%x", issueID), "total", finalTotal.String())
	return nil
}

// CancelIssue releases a request's reserved capacity back to the vault once
// its commit period has expired without a payment proof, forfeiting the
// requester's griefing collateral to the vault (or releasing it back to the
// requester when the vault has been liquidated).
func (e *Engine) CancelIssue(issueID chain.RequestID, currentHeight params.BlockHeight) error {
	req, err := e.getOpenRequest(issueID)
	if err != nil {
		return fmt.Errorf("cancel issue: %w", err)
	}
	if !hasExpired(req.OpenTime, e.params.Periods.Issue, currentHeight) {
		return fmt.Errorf("cancel issue: %w", ErrTimeNotExpired)
	}

	totalBTC, err := req.TotalBTC()
	if err != nil {
		return fmt.Errorf("cancel issue: %w", err)
	}
	if err := e.registry.DecreaseToBeIssued(req.Vault, totalBTC); err != nil {
		return fmt.Errorf("cancel issue: %w", err)
	}

	v, err := e.registry.GetVault(req.Vault)
	if err != nil {
		return fmt.Errorf("cancel issue: %w", err)
	}
	if v.IsLiquidated() {
		if err := e.collateral.Release(req.Requester, req.GriefingCollateral); err != nil {
			return fmt.Errorf("cancel issue: %w", err)
		}
	} else {
		if err := e.registry.SlashCollateral(vault.Griefing(req.Requester), vault.Backing(req.Vault), req.GriefingCollateral); err != nil {
			return fmt.Errorf("cancel issue: %w", err)
		}
	}

	e.mu.Lock()
	if stored, ok := e.requests[issueID]; ok {
		stored.Cancelled = true
	}
	e.mu.Unlock()

	e.emit(events.NewCancelIssue(issueID, req.Requester, req.GriefingCollateral))
	e.log.Infow("issue cancelled", "issueID", fmt.Sprintf("%x", issueID))
	return nil
}

// ForRequester returns every request (open or terminal) created by
// requester, a read-only view used by off-chain indexers.
func (e *Engine) ForRequester(requester chain.AccountID) map[chain.RequestID]Request {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[chain.RequestID]Request)
	for id, r := range e.requests {
		if r.Requester == requester {
			out[id] = *r
		}
	}
	return out
}

// ForVault returns every request (open or terminal) against vaultID, a
// read-only view used by off-chain indexers.
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
