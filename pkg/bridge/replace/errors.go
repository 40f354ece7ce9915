package replace

import "errors"

// Error taxonomy for the Replace Engine.
var (
	ErrInsufficientCollateral    = errors.New("replace: griefing collateral below the required amount")
	ErrReplaceIDNotFound         = errors.New("replace: request id not found")
	ErrReplaceCompleted          = errors.New("replace: request already completed")
	ErrReplaceCancelled          = errors.New("replace: request already cancelled")
	ErrReplacePeriodExpired      = errors.New("replace: replace period has expired")
	ErrTimeNotExpired            = errors.New("replace: replace period has not yet expired")
	ErrParachainNotRunning       = errors.New("replace: parachain is not running")
	ErrUnauthorizedVault         = errors.New("replace: caller is not the vault authorized for this request")
	ErrAmountBelowDustAmount     = errors.New("replace: amount is below the minimum dust value")
	ErrVaultOverAuctionThreshold = errors.New("replace: old vault is not below the auction threshold")
	ErrRequestNotPending         = errors.New("replace: request is not in the Pending state")
	ErrRequestNotAccepted        = errors.New("replace: request has not been accepted")
)
