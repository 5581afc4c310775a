// Package indexer archives the in-process custody journal into the
// analytical event store. It trails the journal by subscription, batches
// events, and flushes on size or interval.
package indexer

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/events"
	"token-custody-lab/internal/observability"
	"token-custody-lab/internal/storage"
)

// Runner tails the journal and persists events in order.
type Runner struct {
	journal       *events.Journal
	store         storage.EventStore
	batchSize     int
	flushInterval time.Duration
	bufferSize    int
	logger        *log.Logger

	pending []*domain.Event
	lastSeq atomic.Uint64
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Journal       *events.Journal
	Store         storage.EventStore
	BatchSize     int           // Default: 100 events per flush
	FlushInterval time.Duration // Default: 2s - force flush buffered events periodically
	BufferSize    int           // Default: 1024 - subscription channel capacity
	Logger        *log.Logger
}

// NewRunner creates a new indexer runner.
func NewRunner(opts RunnerOptions) *Runner {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}

	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = 2 * time.Second
	}

	bufferSize := opts.BufferSize
	if bufferSize == 0 {
		bufferSize = 1024
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		journal:       opts.Journal,
		store:         opts.Store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		bufferSize:    bufferSize,
		logger:        logger,
	}
}

// LastSeq returns the highest seq flushed to storage.
func (r *Runner) LastSeq() uint64 { return r.lastSeq.Load() }

// Run tails the journal until the context is cancelled. Events already in
// the store are skipped; events emitted before Run started are backfilled
// from the journal's replay buffer.
func (r *Runner) Run(ctx context.Context) error {
	stored, err := r.store.MaxSeq(ctx)
	if err != nil {
		return err
	}
	r.lastSeq.Store(stored)

	ch, cancel := r.journal.Subscribe(r.bufferSize)
	defer cancel()

	// Backfill anything emitted before the subscription attached. Events
	// arriving on the channel with seq <= lastSeq are dropped below, so
	// the overlap between backfill and subscription is harmless.
	for _, e := range r.journal.After(r.lastSeq.Load()) {
		event := e
		r.pending = append(r.pending, &event)
	}
	if err := r.flush(ctx); err != nil {
		r.logger.Printf("[indexer] backfill flush failed: %v", err)
	}

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	r.logger.Printf("[indexer] started from seq %d, batch=%d flush=%v", r.lastSeq.Load(), r.batchSize, r.flushInterval)

	for {
		select {
		case <-ctx.Done():
			if err := r.flush(context.Background()); err != nil {
				r.logger.Printf("[indexer] shutdown flush failed: %v", err)
			}
			r.logger.Println("[indexer] stopping")
			return ctx.Err()

		case e, ok := <-ch:
			if !ok {
				return r.flush(context.Background())
			}
			if e.Seq <= r.lastSeq.Load() {
				continue
			}
			event := e
			r.pending = append(r.pending, &event)
			if len(r.pending) >= r.batchSize {
				if err := r.flush(ctx); err != nil {
					r.logger.Printf("[indexer] flush failed: %v", err)
				}
			}

		case <-ticker.C:
			if err := r.flush(ctx); err != nil {
				r.logger.Printf("[indexer] flush failed: %v", err)
			}
		}
	}
}

// flush writes the pending batch. Pending events are kept on failure and
// retried on the next trigger; re-sent seqs collapse in the store.
func (r *Runner) flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}

	if err := r.store.InsertBulk(ctx, r.pending); err != nil {
		observability.DefaultMetrics.IndexerErrors.Inc()
		return err
	}
	for _, e := range r.pending {
		observability.RecordJournalEvent(string(e.Kind))
		if e.Kind == domain.EventFee {
			observability.RecordFee(e.Category)
		}
	}

	last := r.pending[len(r.pending)-1].Seq
	if last > r.lastSeq.Load() {
		r.lastSeq.Store(last)
	}
	r.pending = r.pending[:0]
	observability.RecordIndexerFlush(r.lastSeq.Load())
	return nil
}
