package domain

import "math/big"

// EscrowLock is a deadline-gated, single-claim custody record.
// Corresponds to escrow_locks table in PostgreSQL.
type EscrowLock struct {
	LockID uint64 // sequential, starting at 1
	Token  Address
	Owner  Address

	Amount *big.Int

	LockTime   int64 // Unix seconds
	UnlockTime int64 // Unix seconds

	Claimed bool

	Description string
	CreatedAt   int64 // Unix timestamp in milliseconds
}

// Clone returns a deep copy of the lock.
func (l *EscrowLock) Clone() *EscrowLock {
	if l == nil {
		return nil
	}
	out := *l
	out.Amount = new(big.Int).Set(l.Amount)
	return &out
}
