package state

import "errors"

// Rejection kinds surfaced by protocol and vault transitions. Every rejected
// precondition is reported distinctly so callers can tell user error from
// systemic risk conditions.
var (
	ErrNotInitialized              = errors.New("protocol not initialized")
	ErrAlreadyInitialized          = errors.New("protocol already initialized")
	ErrUnauthorized                = errors.New("unauthorized")
	ErrProtocolPaused              = errors.New("protocol paused")
	ErrInvalidAmount               = errors.New("invalid amount")
	ErrPriceChangeExceedsLimit     = errors.New("price change exceeds limit")
	ErrInsufficientCollateralRatio = errors.New("insufficient collateral ratio")
	ErrInsufficientDebt            = errors.New("insufficient debt")
	ErrInsufficientCollateral      = errors.New("insufficient collateral")
	ErrVaultNotLiquidatable        = errors.New("vault not liquidatable")
	ErrVaultAlreadyExists          = errors.New("vault already exists")
	ErrVaultNotFound               = errors.New("vault not found")
	ErrVaultNotEmpty               = errors.New("vault not empty")
)
