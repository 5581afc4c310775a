package vesting

import "errors"

// Sentinel errors. Callers branch with errors.Is; each failure mode is
// distinguishable.
var (
	ErrNotAuthorized     = errors.New("vesting engine: caller not authorized")
	ErrScheduleNotFound  = errors.New("vesting engine: schedule not found")
	ErrScheduleRevoked   = errors.New("vesting engine: schedule already revoked")
	ErrNotRevocable      = errors.New("vesting engine: schedule is not revocable")
	ErrNothingReleasable = errors.New("vesting engine: nothing releasable")
	ErrInvalidAmount     = errors.New("vesting engine: total amount must be positive")
	ErrInvalidDuration   = errors.New("vesting engine: duration must be positive and cover the cliff")
	ErrInvalidSlice      = errors.New("vesting engine: slice must be at least one second")
	ErrInvalidStart      = errors.New("vesting engine: start time must not be negative")
	ErrInvalidAddress    = errors.New("vesting engine: invalid address")
)
