// Package events defines the wire event vocabulary emitted by the bridge
// core and a small in-process Sink abstraction so engines stay
// runtime-agnostic about how events are actually dispatched.
package events

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
)

// Event is the common interface every emitted event satisfies; it exists
// purely to give Sink a single parameter type.
type Event interface {
	eventName() string
}

type base struct{ name string }

func (b base) eventName() string { return b.name }

// RequestIssue is emitted by issue.Engine.RequestIssue.
type RequestIssue struct {
	base
	IssueID            chain.RequestID
	Requester          chain.AccountID
	Amount             amount.Amount
	Fee                amount.Amount
	GriefingCollateral amount.Amount
	Vault              chain.AccountID
	VaultAddress       chain.BtcAddress
	VaultPublicKey     chain.BtcPublicKey
}

// ExecuteIssue is emitted by issue.Engine.ExecuteIssue.
type ExecuteIssue struct {
	base
	IssueID     chain.RequestID
	Requester   chain.AccountID
	TotalAmount amount.Amount
	Vault       chain.AccountID
}

// CancelIssue is emitted by issue.Engine.CancelIssue.
type CancelIssue struct {
	base
	IssueID            chain.RequestID
	Requester          chain.AccountID
	GriefingCollateral amount.Amount
}

// RequestRedeem is emitted by redeem.Engine.RequestRedeem.
type RequestRedeem struct {
	base
	RedeemID  chain.RequestID
	Requester chain.AccountID
	Vault     chain.AccountID
	AmountBTC amount.Amount
	Fee       amount.Amount
	Premium   amount.Amount
}

// ExecuteRedeem is emitted by redeem.Engine.ExecuteRedeem.
type ExecuteRedeem struct {
	base
	RedeemID chain.RequestID
	Redeemer chain.AccountID
	Vault    chain.AccountID
	Amount   amount.Amount
}

// CancelRedeem is emitted by redeem.Engine.CancelRedeem.
type CancelRedeem struct {
	base
	RedeemID   chain.RequestID
	Redeemer   chain.AccountID
	Vault      chain.AccountID
	Reimburse  bool
	Punishment amount.Amount
}

// RequestReplace is emitted by replace.Engine.RequestReplace.
type RequestReplace struct {
	base
	ReplaceID          chain.RequestID
	OldVault           chain.AccountID
	Amount             amount.Amount
	GriefingCollateral amount.Amount
}

// AcceptReplace is emitted by replace.Engine.AcceptReplace.
type AcceptReplace struct {
	base
	ReplaceID  chain.RequestID
	OldVault   chain.AccountID
	NewVault   chain.AccountID
	Collateral amount.Amount
}

// AuctionReplace is emitted by replace.Engine.AuctionReplace.
type AuctionReplace struct {
	base
	ReplaceID  chain.RequestID
	OldVault   chain.AccountID
	NewVault   chain.AccountID
	BtcAmount  amount.Amount
	Collateral amount.Amount
	Reward     amount.Amount
}

// ExecuteReplace is emitted by replace.Engine.ExecuteReplace.
type ExecuteReplace struct {
	base
	ReplaceID chain.RequestID
	OldVault  chain.AccountID
	NewVault  chain.AccountID
	Amount    amount.Amount
}

// CancelReplace is emitted by replace.Engine.CancelReplace.
type CancelReplace struct {
	base
	ReplaceID chain.RequestID
	OldVault  chain.AccountID
	NewVault  chain.AccountID
}

// WithdrawReplace is emitted by replace.Engine.WithdrawReplace.
type WithdrawReplace struct {
	base
	ReplaceID chain.RequestID
	OldVault  chain.AccountID
	Amount    amount.Amount
}

// Liquidate is emitted by vault.Registry.LiquidateVault.
type Liquidate struct {
	base
	Vault           chain.AccountID
	SlashedToLV     amount.Amount
	RemainingAsFree amount.Amount
}

// Sink receives every event an engine emits. Production hosts typically
// implement Sink by forwarding into their own dispatch/messaging framework;
// tests use Recorder.
type Sink interface {
	Emit(Event)
}

// Recorder is an in-memory, non-networked Sink that appends every event it
// receives, in order, for assertions in tests.
type Recorder struct {
	Events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.Events = append(r.Events, e)
}

func newRequestIssue() RequestIssue     { return RequestIssue{base: base{"RequestIssue"}} }
func newExecuteIssue() ExecuteIssue     { return ExecuteIssue{base: base{"ExecuteIssue"}} }
func newCancelIssue() CancelIssue       { return CancelIssue{base: base{"CancelIssue"}} }
func newRequestRedeem() RequestRedeem   { return RequestRedeem{base: base{"RequestRedeem"}} }
func newExecuteRedeem() ExecuteRedeem   { return ExecuteRedeem{base: base{"ExecuteRedeem"}} }
func newCancelRedeem() CancelRedeem     { return CancelRedeem{base: base{"CancelRedeem"}} }
func newRequestReplace() RequestReplace { return RequestReplace{base: base{"RequestReplace"}} }
func newAcceptReplace() AcceptReplace   { return AcceptReplace{base: base{"AcceptReplace"}} }
func newAuctionReplace() AuctionReplace { return AuctionReplace{base: base{"AuctionReplace"}} }
func newExecuteReplace() ExecuteReplace { return ExecuteReplace{base: base{"ExecuteReplace"}} }
func newCancelReplace() CancelReplace   { return CancelReplace{base: base{"CancelReplace"}} }
func newWithdrawReplace() WithdrawReplace {
	return WithdrawReplace{base: base{"WithdrawReplace"}}
}
func newLiquidate() Liquidate { return Liquidate{base: base{"Liquidate"}} }

// NewRequestIssue constructs a RequestIssue event with its name set.
func NewRequestIssue(
	issueID chain.RequestID,
	requester chain.AccountID,
	amt, fee, griefing amount.Amount,
	vault chain.AccountID,
	vaultAddr chain.BtcAddress,
	vaultPubKey chain.BtcPublicKey,
) RequestIssue {
	e := newRequestIssue()
	e.IssueID, e.Requester, e.Amount, e.Fee, e.GriefingCollateral = issueID, requester, amt, fee, griefing
	e.Vault, e.VaultAddress, e.VaultPublicKey = vault, vaultAddr, vaultPubKey
	return e
}

// NewExecuteIssue constructs an ExecuteIssue event with its name set.
func NewExecuteIssue(issueID chain.RequestID, requester chain.AccountID, total amount.Amount, vault chain.AccountID) ExecuteIssue {
	e := newExecuteIssue()
	e.IssueID, e.Requester, e.TotalAmount, e.Vault = issueID, requester, total, vault
	return e
}

// NewCancelIssue constructs a CancelIssue event with its name set.
func NewCancelIssue(issueID chain.RequestID, requester chain.AccountID, griefing amount.Amount) CancelIssue {
	e := newCancelIssue()
	e.IssueID, e.Requester, e.GriefingCollateral = issueID, requester, griefing
	return e
}

// NewRequestRedeem constructs a RequestRedeem event with its name set.
func NewRequestRedeem(redeemID chain.RequestID, requester, vault chain.AccountID, amt, fee, premium amount.Amount) RequestRedeem {
	e := newRequestRedeem()
	e.RedeemID, e.Requester, e.Vault, e.AmountBTC, e.Fee, e.Premium = redeemID, requester, vault, amt, fee, premium
	return e
}

// NewExecuteRedeem constructs an ExecuteRedeem event with its name set.
func NewExecuteRedeem(redeemID chain.RequestID, redeemer, vault chain.AccountID, amt amount.Amount) ExecuteRedeem {
	e := newExecuteRedeem()
	e.RedeemID, e.Redeemer, e.Vault, e.Amount = redeemID, redeemer, vault, amt
	return e
}

// NewCancelRedeem constructs a CancelRedeem event with its name set.
func NewCancelRedeem(redeemID chain.RequestID, redeemer, vault chain.AccountID, reimburse bool, punishment amount.Amount) CancelRedeem {
	e := newCancelRedeem()
	e.RedeemID, e.Redeemer, e.Vault, e.Reimburse, e.Punishment = redeemID, redeemer, vault, reimburse, punishment
	return e
}

// NewRequestReplace constructs a RequestReplace event with its name set.
func NewRequestReplace(replaceID chain.RequestID, oldVault chain.AccountID, amt, griefing amount.Amount) RequestReplace {
	e := newRequestReplace()
	e.ReplaceID, e.OldVault, e.Amount, e.GriefingCollateral = replaceID, oldVault, amt, griefing
	return e
}

// NewAcceptReplace constructs an AcceptReplace event with its name set.
func NewAcceptReplace(replaceID chain.RequestID, oldVault, newVault chain.AccountID, collateral amount.Amount) AcceptReplace {
	e := newAcceptReplace()
	e.ReplaceID, e.OldVault, e.NewVault, e.Collateral = replaceID, oldVault, newVault, collateral
	return e
}

// NewAuctionReplace constructs an AuctionReplace event with its name set.
func NewAuctionReplace(replaceID chain.RequestID, oldVault, newVault chain.AccountID, btcAmount, collateral, reward amount.Amount) AuctionReplace {
	e := newAuctionReplace()
	e.ReplaceID, e.OldVault, e.NewVault = replaceID, oldVault, newVault
	e.BtcAmount, e.Collateral, e.Reward = btcAmount, collateral, reward
	return e
}

// NewExecuteReplace constructs an ExecuteReplace event with its name set.
func NewExecuteReplace(replaceID chain.RequestID, oldVault, newVault chain.AccountID, amt amount.Amount) ExecuteReplace {
	e := newExecuteReplace()
	e.ReplaceID, e.OldVault, e.NewVault, e.Amount = replaceID, oldVault, newVault, amt
	return e
}

// NewCancelReplace constructs a CancelReplace event with its name set.
func NewCancelReplace(replaceID chain.RequestID, oldVault, newVault chain.AccountID) CancelReplace {
	e := newCancelReplace()
	e.ReplaceID, e.OldVault, e.NewVault = replaceID, oldVault, newVault
	return e
}

// NewWithdrawReplace constructs a WithdrawReplace event with its name set.
func NewWithdrawReplace(replaceID chain.RequestID, oldVault chain.AccountID, amt amount.Amount) WithdrawReplace {
	e := newWithdrawReplace()
	e.ReplaceID, e.OldVault, e.Amount = replaceID, oldVault, amt
	return e
}

// NewLiquidate constructs a Liquidate event with its name set.
func NewLiquidate(vault chain.AccountID, slashed, remaining amount.Amount) Liquidate {
	e := newLiquidate()
	e.Vault, e.SlashedToLV, e.RemainingAsFree = vault, slashed, remaining
	return e
}
