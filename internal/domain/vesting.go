package domain

import "math/big"

// VestingSchedule is a time-gated token grant. Created once, mutated only
// by release (ReleasedAmount grows) and revoke (one-way), never deleted.
// Corresponds to vesting_schedules table in PostgreSQL.
type VestingSchedule struct {
	ScheduleID  string // SHA256-derived, see idhash.ComputeScheduleID
	Creator     Address
	Beneficiary Address
	Token       Address

	TotalAmount    *big.Int
	ReleasedAmount *big.Int

	StartTime       int64 // Unix seconds
	CliffSeconds    int64
	DurationSeconds int64
	SliceSeconds    int64

	Revocable bool
	Revoked   bool

	Description string
	CreatedAt   int64 // Unix timestamp in milliseconds
}

// Remaining returns TotalAmount - ReleasedAmount.
func (s *VestingSchedule) Remaining() *big.Int {
	return new(big.Int).Sub(s.TotalAmount, s.ReleasedAmount)
}

// Clone returns a deep copy so stores can hand out records without
// aliasing engine-owned state.
func (s *VestingSchedule) Clone() *VestingSchedule {
	if s == nil {
		return nil
	}
	out := *s
	out.TotalAmount = new(big.Int).Set(s.TotalAmount)
	out.ReleasedAmount = new(big.Int).Set(s.ReleasedAmount)
	return &out
}
