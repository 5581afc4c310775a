package memory

import (
	"context"
	"sort"
	"sync"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu   sync.RWMutex
	data map[domain.Address]*domain.TokenRecord // keyed by token address
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data: make(map[domain.Address]*domain.TokenRecord),
	}
}

// Insert adds a new token record. Returns ErrDuplicateKey if the token exists.
func (s *TokenStore) Insert(_ context.Context, r *domain.TokenRecord) error {
	if r == nil || r.Token.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.Token]; exists {
		return storage.ErrDuplicateKey
	}

	recordCopy := *r
	s.data[r.Token] = &recordCopy
	return nil
}

// GetByAddress retrieves a record by token address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(_ context.Context, token domain.Address) (*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[token]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *r
	return &recordCopy, nil
}

// GetAll retrieves all records, ordered by created_at ASC.
func (s *TokenStore) GetAll(_ context.Context) ([]*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TokenRecord
	for _, r := range s.data {
		recordCopy := *r
		result = append(result, &recordCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Token < result[j].Token
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TokenStore = (*TokenStore)(nil)
