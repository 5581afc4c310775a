package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

// LockStore implements storage.LockStore using PostgreSQL.
type LockStore struct {
	pool *Pool
}

// NewLockStore creates a new LockStore.
func NewLockStore(pool *Pool) *LockStore {
	return &LockStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LockStore = (*LockStore)(nil)

// Insert adds a new lock. Returns ErrDuplicateKey if lock_id exists.
func (s *LockStore) Insert(ctx context.Context, l *domain.EscrowLock) (err error) {
	defer observeQuery("insert_lock", time.Now(), &err)
	if l == nil || l.LockID == 0 || l.Amount == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO escrow_locks (
			lock_id, token, owner, amount,
			lock_time, unlock_time, claimed, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.pool.Exec(ctx, query,
		int64(l.LockID),
		string(l.Token),
		string(l.Owner),
		l.Amount.String(),
		l.LockTime,
		l.UnlockTime,
		l.Claimed,
		l.Description,
		l.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert lock: %w", err)
	}
	return nil
}

const lockColumns = `
	lock_id, token, owner, amount::text,
	lock_time, unlock_time, claimed, description, created_at
`

// GetByID retrieves a lock by its ID. Returns ErrNotFound if not exists.
func (s *LockStore) GetByID(ctx context.Context, lockID uint64) (_ *domain.EscrowLock, err error) {
	defer observeQuery("get_lock_by_id", time.Now(), &err)
	query := `SELECT ` + lockColumns + ` FROM escrow_locks WHERE lock_id = $1`

	row := s.pool.QueryRow(ctx, query, int64(lockID))
	l, err := scanLock(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get lock by id: %w", err)
	}
	return l, nil
}

// GetByOwner retrieves all locks currently owned by an address, ordered by lock_id ASC.
func (s *LockStore) GetByOwner(ctx context.Context, owner domain.Address) (_ []*domain.EscrowLock, err error) {
	defer observeQuery("get_locks_by_owner", time.Now(), &err)
	query := `
		SELECT ` + lockColumns + `
		FROM escrow_locks
		WHERE owner = $1
		ORDER BY lock_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(owner))
	if err != nil {
		return nil, fmt.Errorf("get locks by owner: %w", err)
	}
	defer rows.Close()

	return scanLocks(rows)
}

// GetByToken retrieves all locks custodying a token, ordered by lock_id ASC.
func (s *LockStore) GetByToken(ctx context.Context, token domain.Address) (_ []*domain.EscrowLock, err error) {
	defer observeQuery("get_locks_by_token", time.Now(), &err)
	query := `
		SELECT ` + lockColumns + `
		FROM escrow_locks
		WHERE token = $1
		ORDER BY lock_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(token))
	if err != nil {
		return nil, fmt.Errorf("get locks by token: %w", err)
	}
	defer rows.Close()

	return scanLocks(rows)
}

// MarkClaimed flips the one-way claimed flag.
func (s *LockStore) MarkClaimed(ctx context.Context, lockID uint64) (err error) {
	defer observeQuery("mark_claimed", time.Now(), &err)
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_locks SET claimed = TRUE WHERE lock_id = $1`,
		int64(lockID),
	)
	if err != nil {
		return fmt.Errorf("mark lock claimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateUnlockTime records an extension.
func (s *LockStore) UpdateUnlockTime(ctx context.Context, lockID uint64, unlockTime int64) (err error) {
	defer observeQuery("update_unlock_time", time.Now(), &err)
	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_locks SET unlock_time = $2 WHERE lock_id = $1`,
		int64(lockID), unlockTime,
	)
	if err != nil {
		return fmt.Errorf("update unlock time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateOwner records an ownership transfer.
func (s *LockStore) UpdateOwner(ctx context.Context, lockID uint64, owner domain.Address) (err error) {
	defer observeQuery("update_owner", time.Now(), &err)
	if owner.IsZero() {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE escrow_locks SET owner = $2 WHERE lock_id = $1`,
		int64(lockID), string(owner),
	)
	if err != nil {
		return fmt.Errorf("update lock owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MaxLockID returns the highest stored lock id, zero when empty.
func (s *LockStore) MaxLockID(ctx context.Context) (_ uint64, err error) {
	defer observeQuery("max_lock_id", time.Now(), &err)
	var max int64
	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(lock_id), 0) FROM escrow_locks`,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max lock id: %w", err)
	}
	return uint64(max), nil
}

// scanLock scans a single row into an EscrowLock.
func scanLock(row pgx.Row) (*domain.EscrowLock, error) {
	var l domain.EscrowLock
	var lockID int64
	var token, owner, amount string

	err := row.Scan(
		&lockID,
		&token,
		&owner,
		&amount,
		&l.LockTime,
		&l.UnlockTime,
		&l.Claimed,
		&l.Description,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.LockID = uint64(lockID)
	l.Token = domain.Address(token)
	l.Owner = domain.Address(owner)
	if l.Amount, err = parseAmount(amount); err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return &l, nil
}

// scanLocks scans multiple rows into a slice of EscrowLock.
func scanLocks(rows pgx.Rows) ([]*domain.EscrowLock, error) {
	var locks []*domain.EscrowLock

	for rows.Next() {
		l, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lock row: %w", err)
		}
		locks = append(locks, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lock rows: %w", err)
	}
	return locks, nil
}
