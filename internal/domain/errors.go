package domain

import "errors"

var (
	// ErrOperationFailed wraps every action failure. Callers surface it as the
	// action's single generic message; the cause is only logged.
	ErrOperationFailed = errors.New("operation failed")

	ErrAlreadyMinted = errors.New("nft already minted")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNotFound      = errors.New("not found")
	ErrLockHeld      = errors.New("lock already held")
)
