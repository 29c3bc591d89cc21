package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidOutcome      = errors.New("invalid outcome")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrAccountNotFound     = errors.New("account not found")
	ErrMarketClosed        = errors.New("market closed for trading")
	ErrMarketResolved      = errors.New("market already resolved")
	ErrMarketNotResolved   = errors.New("market not resolved")
	ErrNoConvergence       = errors.New("price search did not converge")
	ErrLockHeld            = errors.New("lock already held")
)
