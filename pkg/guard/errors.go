package guard

import "errors"

// The error taxonomy surfaced by the registries. Validation failures are
// detected before any state mutation; ErrTransferFailed is detected after a
// tentative mutation, which is then discarded, so operations are
// all-or-nothing either way.
var (
	// ErrUnauthorized means the caller is not allowed to perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExpired means the allowance expiry has passed.
	ErrExpired = errors.New("allowance expired")

	// ErrTooEarly means the unlock time has not been reached.
	ErrTooEarly = errors.New("too early")

	// ErrInsufficientAllowance means the spend exceeds the remaining allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrRateLimitExceeded means the spend exceeds the current window budget.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrNoLimitSet means the agent has no rate limit configured.
	ErrNoLimitSet = errors.New("no rate limit set")

	// ErrNothingToWithdraw means no value has accrued since the last withdrawal.
	ErrNothingToWithdraw = errors.New("nothing to withdraw")

	// ErrAlreadyCommitted means an unrevealed commitment already holds the key.
	ErrAlreadyCommitted = errors.New("already committed")

	// ErrAlreadyRevealed means the commitment was revealed before.
	ErrAlreadyRevealed = errors.New("already revealed")

	// ErrAlreadyWithdrawn means the lock was withdrawn before.
	ErrAlreadyWithdrawn = errors.New("already withdrawn")

	// ErrAlreadyFinalized means the escrow was released or cancelled before.
	ErrAlreadyFinalized = errors.New("already finalized")

	// ErrNotFound means no record exists for the given key or id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument covers zero amounts, non-future timestamps, and the
	// null recipient address.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTransferFailed wraps a sink failure. The enclosing operation rolled
	// back its tentative state mutation.
	ErrTransferFailed = errors.New("transfer failed")
)
