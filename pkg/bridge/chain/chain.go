// Package chain declares the narrow interfaces the bridge core consumes
// from its external collaborators: the backing-chain SPV verifier, the
// price oracle, the collateral and treasury ledgers, the security/fee/SLA
// modules and the refund module. None of these are implemented here — the
// core only depends on these contracts, split into narrow, purpose-specific
// interfaces consumed by individual engines rather than one wide chain
// surface.
package chain

import (
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
)

// AccountID identifies a vault or user account on the issuing chain. It is
// a fixed-width opaque value so the core stays agnostic to the concrete
// address encoding of any particular issuing chain.
type AccountID [20]byte

// RequestID identifies an issue, redeem or replace request.
type RequestID [32]byte

// BtcAddress is an opaque backing-chain output script/address, registered
// uniquely per (vault, request).
type BtcAddress []byte

// BtcPublicKey is a snapshot of a vault's backing-chain public key at
// request time.
type BtcPublicKey []byte

// TxID identifies a backing-chain transaction.
type TxID [32]byte

// Verifier wraps the backing-chain light client's SPV-proof verification.
type Verifier interface {
	// VerifyInclusion confirms that txID is included in the backing chain
	// at the block referenced by proof.
	VerifyInclusion(txID TxID, merkleProof []byte) error

	// ValidateTransaction parses rawTx and confirms it pays at least
	// minAmount to expectedAddr, optionally requiring an OP_RETURN output
	// carrying opReturn. It returns the payer's refund address (taken from
	// the first input) and the amount actually paid to expectedAddr.
	ValidateTransaction(
		rawTx []byte,
		minAmount amount.Amount,
		expectedAddr BtcAddress,
		opReturn []byte,
	) (refundAddr BtcAddress, amountPaid amount.Amount, err error)
}

// Oracle wraps the price oracle.
type Oracle interface {
	// BTCToDOT converts a backing-chain amount into its DOT value at the
	// current exchange rate. The rate must be read once per call and never
	// cached across calls within a single operation, so every caller sees a
	// deterministic rate for the duration of its own transaction.
	BTCToDOT(btc amount.Amount) (amount.Amount, error)
}

// Collateral wraps the DOT collateral ledger primitive.
type Collateral interface {
	Lock(acct AccountID, amt amount.Amount) error
	Release(acct AccountID, amt amount.Amount) error
	Slash(src, dst AccountID, amt amount.Amount) error
	Transfer(src, dst AccountID, amt amount.Amount) error
	GetBalance(acct AccountID) (amount.Amount, error)
}

// Treasury wraps the wBTC treasury primitive.
type Treasury interface {
	Mint(acct AccountID, amt amount.Amount) error
	Burn(acct AccountID, amt amount.Amount) error
	Lock(acct AccountID, amt amount.Amount) error
	Unlock(acct AccountID, amt amount.Amount) error
	GetBalance(acct AccountID) (amount.Amount, error)
	GetTotalSupply() (amount.Amount, error)
}

// Security wraps the parachain-status and request-id-derivation primitives.
type Security interface {
	// EnsureParachainRunning returns an error unless the host chain's
	// status is Running.
	EnsureParachainRunning() error

	// GetSecureID derives a fresh, collision-resistant request id for
	// requester. Implementations must use a deterministic, host-provided
	// nonce source, never local randomness.
	GetSecureID(requester AccountID) (RequestID, error)
}

// VaultEvent is the SLA event vocabulary.
type VaultEvent int

const (
	// ExecutedIssue rewards a vault for a completed issue.
	ExecutedIssue VaultEvent = iota
	// SubmittedIssueProof rewards a vault that executed an issue on behalf
	// of someone else.
	SubmittedIssueProof
	// ExecutedRedeem rewards a vault for a completed redeem.
	ExecutedRedeem
	// RedeemFailure penalizes a vault for a cancelled redeem.
	RedeemFailure
)

// SLAUpdate carries the event kind and, where applicable, the amount it was
// computed over (e.g. the redeemed/issued amount).
type SLAUpdate struct {
	Event  VaultEvent
	Amount amount.Amount
}

// SLA wraps the SLA scoring module.
type SLA interface {
	EventUpdateVaultSLA(vault AccountID, update SLAUpdate) error
}

// Fees wraps the parametric fee/griefing/punishment rate module and its
// pool accounts.
type Fees interface {
	IssueFeeRate() (amount.Ratio, error)
	IssueGriefingRate() (amount.Ratio, error)
	RedeemFeeRate() (amount.Ratio, error)
	PremiumRedeemFeeRate() (amount.Ratio, error)
	AuctionRedeemFeeRate() (amount.Ratio, error)
	PunishmentFeeRate() (amount.Ratio, error)
	ReplaceGriefingRate() (amount.Ratio, error)
	FeePoolAccount() AccountID
}

// Refund wraps the refund module invoked when a vault cannot absorb an
// issue overpayment.
type Refund interface {
	RequestRefund(
		surplus amount.Amount,
		vault AccountID,
		requester AccountID,
		refundAddr BtcAddress,
		issueID RequestID,
	) error
}
