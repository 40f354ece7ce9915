package redeem

import "errors"

// Error taxonomy for the Redeem Engine.
var (
	ErrRedeemIDNotFound    = errors.New("redeem: request id not found")
	ErrRedeemCompleted     = errors.New("redeem: request already completed")
	ErrRedeemCancelled     = errors.New("redeem: request already cancelled")
	ErrCommitPeriodExpired = errors.New("redeem: commit period has expired")
	ErrTimeNotExpired      = errors.New("redeem: commit period has not yet expired")
	ErrParachainNotRunning = errors.New("redeem: parachain is not running")
	ErrUnauthorized        = errors.New("redeem: caller does not own this request")
)
