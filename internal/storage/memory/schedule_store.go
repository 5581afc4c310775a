package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

// ScheduleStore is an in-memory implementation of storage.ScheduleStore.
type ScheduleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.VestingSchedule // keyed by schedule_id
}

// NewScheduleStore creates a new in-memory schedule store.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{
		data: make(map[string]*domain.VestingSchedule),
	}
}

// Insert adds a new schedule. Returns ErrDuplicateKey if schedule_id exists.
func (s *ScheduleStore) Insert(_ context.Context, sched *domain.VestingSchedule) error {
	if sched == nil || sched.ScheduleID == "" || sched.TotalAmount == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sched.ScheduleID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	s.data[sched.ScheduleID] = sched.Clone()
	return nil
}

// GetByID retrieves a schedule by its ID. Returns ErrNotFound if not exists.
func (s *ScheduleStore) GetByID(_ context.Context, scheduleID string) (*domain.VestingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, exists := s.data[scheduleID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return sched.Clone(), nil
}

// GetByBeneficiary retrieves all schedules granted to an address, ordered by created_at ASC.
func (s *ScheduleStore) GetByBeneficiary(_ context.Context, beneficiary domain.Address) ([]*domain.VestingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VestingSchedule
	for _, sched := range s.data {
		if sched.Beneficiary == beneficiary {
			result = append(result, sched.Clone())
		}
	}
	sortSchedules(result)
	return result, nil
}

// GetByToken retrieves all schedules custodying a token, ordered by created_at ASC.
func (s *ScheduleStore) GetByToken(_ context.Context, token domain.Address) ([]*domain.VestingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VestingSchedule
	for _, sched := range s.data {
		if sched.Token == token {
			result = append(result, sched.Clone())
		}
	}
	sortSchedules(result)
	return result, nil
}

// UpdateReleased sets the released amount. Returns ErrNotFound if not exists.
func (s *ScheduleStore) UpdateReleased(_ context.Context, scheduleID string, released *big.Int) error {
	if released == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sched, exists := s.data[scheduleID]
	if !exists {
		return storage.ErrNotFound
	}
	sched.ReleasedAmount = new(big.Int).Set(released)
	return nil
}

// MarkRevoked flips the one-way revoked flag and records the final released amount.
func (s *ScheduleStore) MarkRevoked(_ context.Context, scheduleID string, released *big.Int) error {
	if released == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sched, exists := s.data[scheduleID]
	if !exists {
		return storage.ErrNotFound
	}
	sched.ReleasedAmount = new(big.Int).Set(released)
	sched.Revoked = true
	return nil
}

// sortSchedules orders by created_at ASC with schedule_id as tiebreaker.
func sortSchedules(schedules []*domain.VestingSchedule) {
	sort.Slice(schedules, func(i, j int) bool {
		if schedules[i].CreatedAt != schedules[j].CreatedAt {
			return schedules[i].CreatedAt < schedules[j].CreatedAt
		}
		return schedules[i].ScheduleID < schedules[j].ScheduleID
	})
}

// Verify interface compliance at compile time.
var _ storage.ScheduleStore = (*ScheduleStore)(nil)
