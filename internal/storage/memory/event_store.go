package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[uint64]*domain.Event // keyed by seq
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make(map[uint64]*domain.Event),
	}
}

// InsertBulk appends a batch of journal events. Re-sent seqs overwrite
// silently, which keeps indexer retries idempotent.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e == nil || e.Seq == 0 {
			return storage.ErrInvalidInput
		}
		eventCopy := *e
		s.data[e.Seq] = &eventCopy
	}
	return nil
}

// GetByToken retrieves all events for a token, ordered by seq ASC.
func (s *EventStore) GetByToken(_ context.Context, token domain.Address) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.data {
		if e.Token == token {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}
	sortEvents(result)
	return result, nil
}

// GetBySeqRange retrieves events with seq in [start, end] (inclusive).
func (s *EventStore) GetBySeqRange(_ context.Context, start, end uint64) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for seq, e := range s.data {
		if seq >= start && seq <= end {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}
	sortEvents(result)
	return result, nil
}

// MaxSeq returns the highest stored seq, zero when empty.
func (s *EventStore) MaxSeq(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max uint64
	for seq := range s.data {
		if seq > max {
			max = seq
		}
	}
	return max, nil
}

// FeeTotalsByCategory aggregates fee events for a token by category.
func (s *EventStore) FeeTotalsByCategory(_ context.Context, token domain.Address) ([]storage.FeeTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]*storage.FeeTotal)
	for _, e := range s.data {
		if e.Token != token || e.Kind != domain.EventFee {
			continue
		}
		t, ok := totals[e.Category]
		if !ok {
			t = &storage.FeeTotal{Category: e.Category, Total: big.NewInt(0)}
			totals[e.Category] = t
		}
		amount, ok := new(big.Int).SetString(e.Amount, 10)
		if !ok {
			return nil, storage.ErrInvalidInput
		}
		t.Count++
		t.Total.Add(t.Total, amount)
	}

	result := make([]storage.FeeTotal, 0, len(totals))
	for _, t := range totals {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Category < result[j].Category
	})
	return result, nil
}

// sortEvents orders by seq ASC.
func sortEvents(events []*domain.Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Seq < events[j].Seq
	})
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
