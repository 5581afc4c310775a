package events

import (
	"sync"

	"token-custody-lab/internal/domain"
)

// Journal is an append-only in-memory event log with subscriber fan-out.
// It assigns strictly increasing sequence numbers on Emit.
type Journal struct {
	mu      sync.RWMutex
	entries []domain.Event
	nextSeq uint64
	subs    map[int]chan domain.Event
	nextSub int
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{
		nextSeq: 1,
		subs:    make(map[int]chan domain.Event),
	}
}

// Emit appends the event, assigns its sequence number, and fans it out to
// subscribers. Slow subscribers are skipped, never blocked on: the journal
// itself stays the source of truth for catch-up reads.
func (j *Journal) Emit(evt domain.Event) {
	j.mu.Lock()
	evt.Seq = j.nextSeq
	j.nextSeq++
	j.entries = append(j.entries, evt)
	for _, ch := range j.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	j.mu.Unlock()
}

// Subscribe returns a buffered channel of future events and a cancel
// function that closes it.
func (j *Journal) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan domain.Event, buffer)

	j.mu.Lock()
	id := j.nextSub
	j.nextSub++
	j.subs[id] = ch
	j.mu.Unlock()

	cancel := func() {
		j.mu.Lock()
		if _, ok := j.subs[id]; ok {
			delete(j.subs, id)
			close(ch)
		}
		j.mu.Unlock()
	}
	return ch, cancel
}

// After returns all events with Seq > seq, in order.
func (j *Journal) After(seq uint64) []domain.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []domain.Event
	for _, evt := range j.entries {
		if evt.Seq > seq {
			out = append(out, evt)
		}
	}
	return out
}

// Len returns the number of journaled events.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

var _ Emitter = (*Journal)(nil)
