package escrow

import "errors"

// Sentinel errors. Callers branch with errors.Is; each failure mode is
// distinguishable.
var (
	ErrNotAuthorized   = errors.New("escrow engine: caller not authorized")
	ErrLockNotFound    = errors.New("escrow engine: lock not found")
	ErrAlreadyClaimed  = errors.New("escrow engine: lock already claimed")
	ErrStillLocked     = errors.New("escrow engine: unlock time not reached")
	ErrInvalidAmount   = errors.New("escrow engine: amount must be positive")
	ErrInvalidAddress  = errors.New("escrow engine: invalid address")
	ErrInvalidDeadline = errors.New("escrow engine: unlock time must move forward")
	ErrInsufficientFee = errors.New("escrow engine: insufficient creation fee balance")
	ErrExceedsRecovery = errors.New("escrow engine: amount exceeds recoverable balance")
)
