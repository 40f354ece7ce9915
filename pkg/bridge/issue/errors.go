package issue

import "errors"

// Error taxonomy for the Issue Engine.
var (
	ErrInsufficientCollateral = errors.New("issue: griefing collateral below the required amount")
	ErrIssueIDNotFound        = errors.New("issue: request id not found")
	ErrIssueCompleted         = errors.New("issue: request already completed")
	ErrIssueCancelled         = errors.New("issue: request already cancelled")
	ErrCommitPeriodExpired    = errors.New("issue: commit period has expired")
	ErrTimeNotExpired         = errors.New("issue: commit period has not yet expired")
	ErrParachainNotRunning    = errors.New("issue: parachain is not running")
)
