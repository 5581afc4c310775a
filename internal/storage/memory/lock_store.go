package memory

import (
	"context"
	"sort"
	"sync"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

// LockStore is an in-memory implementation of storage.LockStore.
type LockStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.EscrowLock // keyed by lock_id
}

// NewLockStore creates a new in-memory lock store.
func NewLockStore() *LockStore {
	return &LockStore{
		data: make(map[uint64]*domain.EscrowLock),
	}
}

// Insert adds a new lock. Returns ErrDuplicateKey if lock_id exists.
func (s *LockStore) Insert(_ context.Context, l *domain.EscrowLock) error {
	if l == nil || l.LockID == 0 || l.Amount == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[l.LockID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[l.LockID] = l.Clone()
	return nil
}

// GetByID retrieves a lock by its ID. Returns ErrNotFound if not exists.
func (s *LockStore) GetByID(_ context.Context, lockID uint64) (*domain.EscrowLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, exists := s.data[lockID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return l.Clone(), nil
}

// GetByOwner retrieves all locks currently owned by an address, ordered by lock_id ASC.
func (s *LockStore) GetByOwner(_ context.Context, owner domain.Address) ([]*domain.EscrowLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EscrowLock
	for _, l := range s.data {
		if l.Owner == owner {
			result = append(result, l.Clone())
		}
	}
	sortLocks(result)
	return result, nil
}

// GetByToken retrieves all locks custodying a token, ordered by lock_id ASC.
func (s *LockStore) GetByToken(_ context.Context, token domain.Address) ([]*domain.EscrowLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.EscrowLock
	for _, l := range s.data {
		if l.Token == token {
			result = append(result, l.Clone())
		}
	}
	sortLocks(result)
	return result, nil
}

// MarkClaimed flips the one-way claimed flag.
func (s *LockStore) MarkClaimed(_ context.Context, lockID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.data[lockID]
	if !exists {
		return storage.ErrNotFound
	}
	l.Claimed = true
	return nil
}

// UpdateUnlockTime records an extension.
func (s *LockStore) UpdateUnlockTime(_ context.Context, lockID uint64, unlockTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.data[lockID]
	if !exists {
		return storage.ErrNotFound
	}
	l.UnlockTime = unlockTime
	return nil
}

// UpdateOwner records an ownership transfer.
func (s *LockStore) UpdateOwner(_ context.Context, lockID uint64, owner domain.Address) error {
	if owner.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.data[lockID]
	if !exists {
		return storage.ErrNotFound
	}
	l.Owner = owner
	return nil
}

// MaxLockID returns the highest stored lock id, zero when empty.
func (s *LockStore) MaxLockID(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max uint64
	for id := range s.data {
		if id > max {
			max = id
		}
	}
	return max, nil
}

// sortLocks orders by lock_id ASC.
func sortLocks(locks []*domain.EscrowLock) {
	sort.Slice(locks, func(i, j int) bool {
		return locks[i].LockID < locks[j].LockID
	})
}

// Verify interface compliance at compile time.
var _ storage.LockStore = (*LockStore)(nil)
