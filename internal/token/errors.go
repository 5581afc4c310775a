package token

import "errors"

// Engine errors. Each failure mode is a distinct sentinel so callers can
// present specific remediation.
var (
	// ErrNotAuthorized is returned when a caller lacks the required
	// authority for an owner-gated operation.
	ErrNotAuthorized = errors.New("token engine: caller not authorized")

	// ErrAddressBlocked is returned when either party of a movement is
	// blacklisted.
	ErrAddressBlocked = errors.New("token engine: address blocked")

	// ErrTradingDisabled is returned for movements between non-exempt
	// parties while trading is globally disabled.
	ErrTradingDisabled = errors.New("token engine: trading disabled")

	// ErrLimitExceeded is returned when a movement breaches the
	// max-transaction or max-wallet ceiling.
	ErrLimitExceeded = errors.New("token engine: limit exceeded")

	// ErrDeductionOverflow is returned when configured deductions would
	// exceed the movement principal. Only reachable through
	// misconfiguration since rates are capped at update time.
	ErrDeductionOverflow = errors.New("token engine: deductions exceed amount")

	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("token engine: amount must be non-negative")

	// ErrInvalidAddress is returned for a zero address where a real
	// holder is required.
	ErrInvalidAddress = errors.New("token engine: invalid address")

	// ErrNothingToClaim is returned when a reflection claim has no
	// withdrawable balance.
	ErrNothingToClaim = errors.New("token engine: nothing to claim")
)
