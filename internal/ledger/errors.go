package ledger

import "errors"

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountClosed      = errors.New("account is closed")
	ErrAccountNotClosable = errors.New("account balance must be zero to close")
	ErrNoChargeFound      = errors.New("no active charge for event")

	// ErrVersionConflict is returned by a Store when the account row changed
	// under an in-flight operation. The engine retries it; callers should
	// never see it.
	ErrVersionConflict = errors.New("account version conflict")

	// ErrStorageUnavailable covers storage failures and exhausted conflict
	// retries. Retry policy belongs to the caller.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
