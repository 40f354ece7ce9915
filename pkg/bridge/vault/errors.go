package vault

import "errors"

// Error taxonomy for the Vault Registry.
var (
	ErrVaultNotFound         = errors.New("vault: vault not found")
	ErrVaultBanned           = errors.New("vault: vault is banned")
	ErrExceedingVaultLimit   = errors.New("vault: commitment would exceed the vault's collateral limit")
	ErrArithmeticOverflow    = errors.New("vault: arithmetic overflow")
	ErrArithmeticUnderflow   = errors.New("vault: arithmetic underflow")
	ErrInsufficientTokens    = errors.New("vault: insufficient tokens committed")
	ErrInvalidCurrencySource = errors.New("vault: invalid currency source")
)
