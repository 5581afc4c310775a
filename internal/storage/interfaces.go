package storage

import (
	"context"
	"math/big"

	"token-custody-lab/internal/domain"
)

// ScheduleStore provides access to vesting_schedules storage.
type ScheduleStore interface {
	// Insert adds a new schedule. Returns ErrDuplicateKey if schedule_id exists.
	Insert(ctx context.Context, s *domain.VestingSchedule) error

	// GetByID retrieves a schedule by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, scheduleID string) (*domain.VestingSchedule, error)

	// GetByBeneficiary retrieves all schedules granted to an address,
	// ordered by created_at ASC.
	GetByBeneficiary(ctx context.Context, beneficiary domain.Address) ([]*domain.VestingSchedule, error)

	// GetByToken retrieves all schedules custodying a token, ordered by created_at ASC.
	GetByToken(ctx context.Context, token domain.Address) ([]*domain.VestingSchedule, error)

	// UpdateReleased sets the released amount. Returns ErrNotFound if not exists.
	// Released amounts only grow; callers pass the new absolute value.
	UpdateReleased(ctx context.Context, scheduleID string, released *big.Int) error

	// MarkRevoked flips the one-way revoked flag and records the final
	// released amount. Returns ErrNotFound if not exists.
	MarkRevoked(ctx context.Context, scheduleID string, released *big.Int) error
}

// LockStore provides access to escrow_locks storage.
type LockStore interface {
	// Insert adds a new lock. Returns ErrDuplicateKey if lock_id exists.
	Insert(ctx context.Context, l *domain.EscrowLock) error

	// GetByID retrieves a lock by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, lockID uint64) (*domain.EscrowLock, error)

	// GetByOwner retrieves all locks currently owned by an address,
	// ordered by lock_id ASC.
	GetByOwner(ctx context.Context, owner domain.Address) ([]*domain.EscrowLock, error)

	// GetByToken retrieves all locks custodying a token, ordered by lock_id ASC.
	GetByToken(ctx context.Context, token domain.Address) ([]*domain.EscrowLock, error)

	// MarkClaimed flips the one-way claimed flag. Returns ErrNotFound if
	// not exists.
	MarkClaimed(ctx context.Context, lockID uint64) error

	// UpdateUnlockTime records an extension. Returns ErrNotFound if not exists.
	UpdateUnlockTime(ctx context.Context, lockID uint64, unlockTime int64) error

	// UpdateOwner records an ownership transfer. Returns ErrNotFound if
	// not exists.
	UpdateOwner(ctx context.Context, lockID uint64, owner domain.Address) error

	// MaxLockID returns the highest stored lock id, zero when empty.
	// Used to resume the sequential counter after a restart.
	MaxLockID(ctx context.Context) (uint64, error)
}

// TokenStore provides access to token_configs storage.
type TokenStore interface {
	// Insert adds a new token record. Returns ErrDuplicateKey if the
	// token address exists.
	Insert(ctx context.Context, r *domain.TokenRecord) error

	// GetByAddress retrieves a record by token address. Returns
	// ErrNotFound if not exists.
	GetByAddress(ctx context.Context, token domain.Address) (*domain.TokenRecord, error)

	// GetAll retrieves all records, ordered by created_at ASC.
	GetAll(ctx context.Context) ([]*domain.TokenRecord, error)
}

// FeeTotal is one row of the per-category fee aggregation.
type FeeTotal struct {
	Category string
	Count    uint64
	Total    *big.Int
}

// EventStore provides access to custody_events storage, the analytical
// journal archive.
type EventStore interface {
	// InsertBulk appends a batch of journal events. Batches arrive in
	// seq order from the indexer; re-sent batches are tolerated.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetByToken retrieves all events for a token, ordered by seq ASC.
	GetByToken(ctx context.Context, token domain.Address) ([]*domain.Event, error)

	// GetBySeqRange retrieves events with seq in [start, end] (inclusive),
	// ordered by seq ASC.
	GetBySeqRange(ctx context.Context, start, end uint64) ([]*domain.Event, error)

	// MaxSeq returns the highest stored seq, zero when empty.
	MaxSeq(ctx context.Context) (uint64, error)

	// FeeTotalsByCategory aggregates fee events for a token by category.
	FeeTotalsByCategory(ctx context.Context, token domain.Address) ([]FeeTotal, error)
}
