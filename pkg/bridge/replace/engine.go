package replace

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

// Engine implements request_replace / accept_replace / auction_replace /
// execute_replace / cancel_replace / withdraw_replace.
type Engine struct {
	mu       sync.RWMutex
	requests map[chain.RequestID]*Request

	registry   *vault.Registry
	verifier   chain.Verifier
	collateral chain.Collateral
	security   chain.Security
	fees       chain.Fees
	sink       events.Sink
	params     *params.Parameters
	log        *zap.SugaredLogger
}

// Dependencies bundles every collaborator Engine needs.
type Dependencies struct {
	Registry   *vault.Registry
	Verifier   chain.Verifier
	Collateral chain.Collateral
	Security   chain.Security
	Fees       chain.Fees
	Sink       events.Sink
	Params     *params.Parameters
}

// NewEngine constructs a Replace Engine.
func NewEngine(deps Dependencies) *Engine {
	return &Engine{
		requests:   make(map[chain.RequestID]*Request),
		registry:   deps.Registry,
		verifier:   deps.Verifier,
		collateral: deps.Collateral,
		security:   deps.Security,
		fees:       deps.Fees,
		sink:       deps.Sink,
		params:     deps.Params,
		log:        bridgelog.Sugared("replace-engine"),
	}
}

func (e *Engine) emit(ev events.Event) {
	if e.sink != nil {
		e.sink.Emit(ev)
	}
}

// clampToSpare clamps amt down to the old vault's issued-to_be_redeemed
// spare capacity.
func clampToSpare(v *vault.Vault, amt amount.Amount) (amount.Amount, error) {
	spare, err := v.Issued.Sub(v.ToBeRedeemed)
	if err != nil {
		return amount.Zero, err
	}
	if amt.LessOrEqual(spare) {
		return amt, nil
	}
	return spare, nil
}

// RequestReplace reserves to_be_replaced capacity on the old vault and
// locks its griefing collateral, opening a window for a new vault to accept.
func (e *Engine) RequestReplace(
	oldVaultID chain.AccountID,
	amt amount.Amount,
	griefingCollateral amount.Amount,
	currentHeight params.BlockHeight,
) (chain.RequestID, error) {
	if err := e.security.EnsureParachainRunning(); err != nil {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", err)
	}

	old, err := e.registry.GetActiveVault(oldVaultID)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", err)
	}
	if old.IsBanned(currentHeight) {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", vault.ErrVaultBanned)
	}
	if amt.LessThan(e.params.ReplaceBtcDustValue) {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", ErrAmountBelowDustAmount)
	}

	clamped, err := clampToSpare(old, amt)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", err)
	}

	valueInDOT, err := e.registry.OracleConvert(clamped)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", err)
	}
	griefingRate, err := e.fees.ReplaceGriefingRate()
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", err)
	}
	expectedGriefing, err := valueInDOT.MulRatio(griefingRate)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", err)
	}
	if griefingCollateral.LessThan(expectedGriefing) {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", ErrInsufficientCollateral)
	}

	if err := e.registry.SlashCollateral(vault.FreeBalance(oldVaultID), vault.Griefing(oldVaultID), griefingCollateral); err != nil {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", err)
	}

	if err := e.registry.IncreaseToBeReplaced(oldVaultID, clamped); err != nil {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", err)
	}

	replaceID, err := e.security.GetSecureID(oldVaultID)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("request replace: %w", err)
	}

	req := &Request{
		OldVault:           oldVaultID,
		Amount:             clamped,
		GriefingCollateral: griefingCollateral,
		OpenTime:           currentHeight,
	}

	e.mu.Lock()
	e.requests[replaceID] = req
	e.mu.Unlock()

	e.emit(events.NewRequestReplace(replaceID, oldVaultID, clamped, griefingCollateral))
	e.log.Infow("replace requested", "replaceID", fmt.Sprintf("%x", replaceID), "oldVault", fmt.Sprintf("%x", oldVaultID), "amount", clamped.String())
	return replaceID, nil
}

// getOpenRequest returns a defensive copy of the request, failing if it is
// missing, completed or cancelled.
func (e *Engine) getOpenRequest(replaceID chain.RequestID) (Request, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	req, ok := e.requests[replaceID]
	if !ok {
		return Request{}, ErrReplaceIDNotFound
	}
	if err := req.isOpen(); err != nil {
		return Request{}, err
	}
	return *req, nil
}

// AcceptReplace locks the new vault's collateral and moves the accepted
// amount from the old vault's to_be_replaced into to_be_redeemed, reserving
// matching to_be_issued capacity on the new vault.
func (e *Engine) AcceptReplace(
	newVaultID chain.AccountID,
	replaceID chain.RequestID,
	collateral amount.Amount,
	newBtcAddress chain.BtcAddress,
	currentHeight params.BlockHeight,
) error {
	if err := e.security.EnsureParachainRunning(); err != nil {
		return fmt.Errorf("accept replace: %w", err)
	}

	newVault, err := e.registry.GetActiveVault(newVaultID)
	if err != nil {
		return fmt.Errorf("accept replace: %w", err)
	}
	if newVault.IsBanned(currentHeight) {
		return fmt.Errorf("accept replace: %w", vault.ErrVaultBanned)
	}

	req, err := e.getOpenRequest(replaceID)
	if err != nil {
		return fmt.Errorf("accept replace: %w", err)
	}
	if req.Accepted {
		return fmt.Errorf("accept replace: %w", ErrRequestNotPending)
	}

	if err := e.collateral.Lock(newVaultID, collateral); err != nil {
		return fmt.Errorf("accept replace: %w", err)
	}
	if err := e.registry.AddBackingCollateral(newVaultID, collateral); err != nil {
		return fmt.Errorf("accept replace: %w", err)
	}

	if err := e.registry.DecreaseToBeReplaced(req.OldVault, req.Amount); err != nil {
		return fmt.Errorf("accept replace: %w", err)
	}
	if err := e.registry.TryIncreaseToBeRedeemed(req.OldVault, req.Amount); err != nil {
		return fmt.Errorf("accept replace: %w", err)
	}
	if err := e.registry.TryIncreaseToBeIssued(newVaultID, req.Amount); err != nil {
		return fmt.Errorf("accept replace: %w", err)
	}

	if err := e.registry.InsertDepositAddress(newVaultID, replaceID, newBtcAddress); err != nil {
		return fmt.Errorf("accept replace: %w", err)
	}

	e.mu.Lock()
	if stored, ok := e.requests[replaceID]; ok {
		stored.NewVault = newVaultID
		stored.BtcAddress = newBtcAddress
		accept := currentHeight
		stored.AcceptTime = &accept
		stored.Accepted = true
	}
	e.mu.Unlock()

	e.emit(events.NewAcceptReplace(replaceID, req.OldVault, newVaultID, collateral))
	e.log.Infow("replace accepted", "replaceID", fmt.Sprintf("%x", replaceID), "newVault", fmt.Sprintf("%x", newVaultID))
	return nil
}

// AuctionReplace is a one-shot combined request+accept triggered by any new
// vault when the old vault is below the auction collateralization
// threshold, rewarding the new vault from the old vault's own backing
// collateral.
func (e *Engine) AuctionReplace(
	newVaultID, oldVaultID chain.AccountID,
	btcAmount amount.Amount,
	collateral amount.Amount,
	newBtcAddress chain.BtcAddress,
	currentHeight params.BlockHeight,
) (chain.RequestID, error) {
	if err := e.security.EnsureParachainRunning(); err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}

	belowAuction, err := e.registry.IsBelowAuctionThreshold(oldVaultID)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}
	if !belowAuction {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", ErrVaultOverAuctionThreshold)
	}

	valueInDOT, err := e.registry.OracleConvert(btcAmount)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}
	auctionRate, err := e.fees.AuctionRedeemFeeRate()
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}
	reward, err := valueInDOT.MulRatio(auctionRate)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}
	if err := e.registry.SlashCollateral(vault.Backing(oldVaultID), vault.FreeBalance(newVaultID), reward); err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}

	if err := e.collateral.Lock(newVaultID, collateral); err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}
	if err := e.registry.AddBackingCollateral(newVaultID, collateral); err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}

	if err := e.registry.TryIncreaseToBeRedeemed(oldVaultID, btcAmount); err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}
	if err := e.registry.TryIncreaseToBeIssued(newVaultID, btcAmount); err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}

	replaceID, err := e.security.GetSecureID(newVaultID)
	if err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}

	if err := e.registry.InsertDepositAddress(newVaultID, replaceID, newBtcAddress); err != nil {
		return chain.RequestID{}, fmt.Errorf("auction replace: %w", err)
	}

	accept := currentHeight
	req := &Request{
		OldVault:   oldVaultID,
		NewVault:   newVaultID,
		Amount:     btcAmount,
		BtcAddress: newBtcAddress,
		OpenTime:   currentHeight,
		AcceptTime: &accept,
		Accepted:   true,
	}

	e.mu.Lock()
	e.requests[replaceID] = req
	e.mu.Unlock()

	e.emit(events.NewAuctionReplace(replaceID, oldVaultID, newVaultID, btcAmount, collateral, reward))
	e.log.Infow("replace auctioned", "replaceID", fmt.Sprintf("%x", replaceID), "oldVault", fmt.Sprintf("%x", oldVaultID), "newVault", fmt.Sprintf("%x", newVaultID))
	return replaceID, nil
}

// ExecuteReplace verifies the old vault's backing-chain payment to the new
// vault's deposit address and moves the tokens, releasing the old vault's
// griefing collateral.
func (e *Engine) ExecuteReplace(
	replaceID chain.RequestID,
	txID chain.TxID,
	merkleProof []byte,
	rawTx []byte,
	currentHeight params.BlockHeight,
) error {
	req, err := e.getOpenRequest(replaceID)
	if err != nil {
		return fmt.Errorf("execute replace: %w", err)
	}
	if !req.Accepted {
		return fmt.Errorf("execute replace: %w", ErrRequestNotAccepted)
	}
	if hasExpired(req.expiryAnchor(), e.params.Periods.Replace, currentHeight) {
		return fmt.Errorf("execute replace: %w", ErrReplacePeriodExpired)
	}

	if err := e.verifier.VerifyInclusion(txID, merkleProof); err != nil {
		return fmt.Errorf("execute replace: %w", err)
	}
	if _, _, err := e.verifier.ValidateTransaction(rawTx, req.Amount, req.BtcAddress, replaceID[:]); err != nil {
		return fmt.Errorf("execute replace: %w", err)
	}

	if err := e.registry.ReplaceTokens(req.OldVault, req.NewVault, req.Amount); err != nil {
		return fmt.Errorf("execute replace: %w", err)
	}
	if err := e.registry.SlashCollateral(vault.Griefing(req.OldVault), vault.FreeBalance(req.OldVault), req.GriefingCollateral); err != nil {
		return fmt.Errorf("execute replace: %w", err)
	}

	e.mu.Lock()
	if stored, ok := e.requests[replaceID]; ok {
		stored.Completed = true
	}
	e.mu.Unlock()

	e.emit(events.NewExecuteReplace(replaceID, req.OldVault, req.NewVault, req.Amount))
	e.log.Infow("replace executed", "replaceID", fmt.Sprintf("%x", replaceID))
	return nil
}

// CancelReplace settles an accepted request whose replace period has
// expired without a payment proof: the old vault's griefing collateral is
// forfeited to the new vault.
func (e *Engine) CancelReplace(caller chain.AccountID, replaceID chain.RequestID, currentHeight params.BlockHeight) error {
	req, err := e.getOpenRequest(replaceID)
	if err != nil {
		return fmt.Errorf("cancel replace: %w", err)
	}
	if !req.Accepted || caller != req.NewVault {
		return fmt.Errorf("cancel replace: %w", ErrUnauthorizedVault)
	}
	if !hasExpired(req.expiryAnchor(), e.params.Periods.Replace, currentHeight) {
		return fmt.Errorf("cancel replace: %w", ErrTimeNotExpired)
	}

	if err := e.registry.CancelReplaceTokens(req.OldVault, req.NewVault, req.Amount); err != nil {
		return fmt.Errorf("cancel replace: %w", err)
	}
	if err := e.registry.SlashCollateral(vault.Griefing(req.OldVault), vault.FreeBalance(req.NewVault), req.GriefingCollateral); err != nil {
		return fmt.Errorf("cancel replace: %w", err)
	}

	e.mu.Lock()
	if stored, ok := e.requests[replaceID]; ok {
		stored.Cancelled = true
	}
	e.mu.Unlock()

	e.emit(events.NewCancelReplace(replaceID, req.OldVault, req.NewVault))
	e.log.Infow("replace cancelled", "replaceID", fmt.Sprintf("%x", replaceID))
	return nil
}

// WithdrawReplace lets the old vault withdraw its own Pending (not yet
// Accepted) request, releasing its reserved capacity and griefing
// collateral back to itself.
func (e *Engine) WithdrawReplace(oldVaultID chain.AccountID, replaceID chain.RequestID) error {
	req, err := e.getOpenRequest(replaceID)
	if err != nil {
		return fmt.Errorf("withdraw replace: %w", err)
	}
	if oldVaultID != req.OldVault {
		return fmt.Errorf("withdraw replace: %w", ErrUnauthorizedVault)
	}
	if req.Accepted {
		return fmt.Errorf("withdraw replace: %w", ErrRequestNotPending)
	}

	if err := e.registry.DecreaseToBeReplaced(req.OldVault, req.Amount); err != nil {
		return fmt.Errorf("withdraw replace: %w", err)
	}
	if err := e.registry.SlashCollateral(vault.Griefing(req.OldVault), vault.FreeBalance(req.OldVault), req.GriefingCollateral); err != nil {
		return fmt.Errorf("withdraw replace: %w", err)
	}

	e.mu.Lock()
	if stored, ok := e.requests[replaceID]; ok {
		stored.Cancelled = true
	}
	e.mu.Unlock()

	e.emit(events.NewWithdrawReplace(replaceID, req.OldVault, req.Amount))
	e.log.Infow("replace withdrawn", "replaceID", fmt.Sprintf("%x", replaceID))
	return nil
}

// ForOldVault returns every request (open or terminal) where oldVaultID is
// the vault giving up its BTC-holding responsibility.
func (e *Engine) ForOldVault(oldVaultID chain.AccountID) map[chain.RequestID]Request {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[chain.RequestID]Request)
	for id, r := range e.requests {
		if r.OldVault == oldVaultID {
			out[id] = *r
		}
	}
	return out
}

// ForNewVault returns every request where newVaultID is (or will be) the
// vault taking over the BTC-holding responsibility.
func (e *Engine) ForNewVault(newVaultID chain.AccountID) map[chain.RequestID]Request {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[chain.RequestID]Request)
	for id, r := range e.requests {
		if r.Accepted && r.NewVault == newVaultID {
			out[id] = *r
		}
	}
	return out
}
