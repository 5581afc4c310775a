package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

// ScheduleStore implements storage.ScheduleStore using PostgreSQL.
// Amounts are stored as NUMERIC(78,0) and travel as decimal strings.
type ScheduleStore struct {
	pool *Pool
}

// NewScheduleStore creates a new ScheduleStore.
func NewScheduleStore(pool *Pool) *ScheduleStore {
	return &ScheduleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScheduleStore = (*ScheduleStore)(nil)

// Insert adds a new schedule. Returns ErrDuplicateKey if schedule_id exists.
func (s *ScheduleStore) Insert(ctx context.Context, sched *domain.VestingSchedule) (err error) {
	defer observeQuery("insert_schedule", time.Now(), &err)
	if sched == nil || sched.ScheduleID == "" || sched.TotalAmount == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO vesting_schedules (
			schedule_id, creator, beneficiary, token,
			total_amount, released_amount,
			start_time, cliff_seconds, duration_seconds, slice_seconds,
			revocable, revoked, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	released := "0"
	if sched.ReleasedAmount != nil {
		released = sched.ReleasedAmount.String()
	}

	_, err = s.pool.Exec(ctx, query,
		sched.ScheduleID,
		string(sched.Creator),
		string(sched.Beneficiary),
		string(sched.Token),
		sched.TotalAmount.String(),
		released,
		sched.StartTime,
		sched.CliffSeconds,
		sched.DurationSeconds,
		sched.SliceSeconds,
		sched.Revocable,
		sched.Revoked,
		sched.Description,
		sched.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

const scheduleColumns = `
	schedule_id, creator, beneficiary, token,
	total_amount::text, released_amount::text,
	start_time, cliff_seconds, duration_seconds, slice_seconds,
	revocable, revoked, description, created_at
`

// GetByID retrieves a schedule by its ID. Returns ErrNotFound if not exists.
func (s *ScheduleStore) GetByID(ctx context.Context, scheduleID string) (_ *domain.VestingSchedule, err error) {
	defer observeQuery("get_schedule_by_id", time.Now(), &err)
	query := `SELECT ` + scheduleColumns + ` FROM vesting_schedules WHERE schedule_id = $1`

	row := s.pool.QueryRow(ctx, query, scheduleID)
	sched, err := scanSchedule(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get schedule by id: %w", err)
	}
	return sched, nil
}

// GetByBeneficiary retrieves all schedules granted to an address, ordered by created_at ASC.
func (s *ScheduleStore) GetByBeneficiary(ctx context.Context, beneficiary domain.Address) (_ []*domain.VestingSchedule, err error) {
	defer observeQuery("get_schedules_by_beneficiary", time.Now(), &err)
	query := `
		SELECT ` + scheduleColumns + `
		FROM vesting_schedules
		WHERE beneficiary = $1
		ORDER BY created_at ASC, schedule_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(beneficiary))
	if err != nil {
		return nil, fmt.Errorf("get schedules by beneficiary: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// GetByToken retrieves all schedules custodying a token, ordered by created_at ASC.
func (s *ScheduleStore) GetByToken(ctx context.Context, token domain.Address) (_ []*domain.VestingSchedule, err error) {
	defer observeQuery("get_schedules_by_token", time.Now(), &err)
	query := `
		SELECT ` + scheduleColumns + `
		FROM vesting_schedules
		WHERE token = $1
		ORDER BY created_at ASC, schedule_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(token))
	if err != nil {
		return nil, fmt.Errorf("get schedules by token: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// UpdateReleased sets the released amount. Returns ErrNotFound if not exists.
func (s *ScheduleStore) UpdateReleased(ctx context.Context, scheduleID string, released *big.Int) (err error) {
	defer observeQuery("update_released", time.Now(), &err)
	if released == nil {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE vesting_schedules SET released_amount = $2 WHERE schedule_id = $1`,
		scheduleID, released.String(),
	)
	if err != nil {
		return fmt.Errorf("update released amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkRevoked flips the one-way revoked flag and records the final released amount.
func (s *ScheduleStore) MarkRevoked(ctx context.Context, scheduleID string, released *big.Int) (err error) {
	defer observeQuery("mark_revoked", time.Now(), &err)
	if released == nil {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE vesting_schedules SET revoked = TRUE, released_amount = $2 WHERE schedule_id = $1`,
		scheduleID, released.String(),
	)
	if err != nil {
		return fmt.Errorf("mark schedule revoked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanSchedule scans a single row into a VestingSchedule.
func scanSchedule(row pgx.Row) (*domain.VestingSchedule, error) {
	var sched domain.VestingSchedule
	var creator, beneficiary, token, total, released string

	err := row.Scan(
		&sched.ScheduleID,
		&creator,
		&beneficiary,
		&token,
		&total,
		&released,
		&sched.StartTime,
		&sched.CliffSeconds,
		&sched.DurationSeconds,
		&sched.SliceSeconds,
		&sched.Revocable,
		&sched.Revoked,
		&sched.Description,
		&sched.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	sched.Creator = domain.Address(creator)
	sched.Beneficiary = domain.Address(beneficiary)
	sched.Token = domain.Address(token)
	if sched.TotalAmount, err = parseAmount(total); err != nil {
		return nil, fmt.Errorf("total_amount: %w", err)
	}
	if sched.ReleasedAmount, err = parseAmount(released); err != nil {
		return nil, fmt.Errorf("released_amount: %w", err)
	}
	return &sched, nil
}

// scanSchedules scans multiple rows into a slice of VestingSchedule.
func scanSchedules(rows pgx.Rows) ([]*domain.VestingSchedule, error) {
	var schedules []*domain.VestingSchedule

	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		schedules = append(schedules, sched)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedule rows: %w", err)
	}
	return schedules, nil
}

// parseAmount converts a NUMERIC column's text form into a big.Int.
func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}
