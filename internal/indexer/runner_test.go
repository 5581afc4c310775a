package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/events"
	"token-custody-lab/internal/storage/memory"
)

func emit(j *events.Journal, n int) {
	for i := 0; i < n; i++ {
		j.Emit(domain.Event{
			Kind:   domain.EventTransfer,
			Token:  "token",
			From:   "alice",
			To:     "bob",
			Amount: "100",
		})
	}
}

func TestRunner_BackfillsAndTails(t *testing.T) {
	journal := events.NewJournal()
	store := memory.NewEventStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Events emitted before the runner starts come from the replay buffer.
	emit(journal, 3)

	runner := NewRunner(RunnerOptions{
		Journal:       journal,
		Store:         store,
		FlushInterval: 10 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	// Events emitted while running come from the subscription.
	waitFor(t, func() bool { return runner.LastSeq() >= 3 })
	emit(journal, 2)
	waitFor(t, func() bool { return runner.LastSeq() >= 5 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	max, err := store.MaxSeq(context.Background())
	if err != nil {
		t.Fatalf("MaxSeq failed: %v", err)
	}
	if max != 5 {
		t.Errorf("stored max seq: got %d, want 5", max)
	}
	stored, err := store.GetBySeqRange(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("GetBySeqRange failed: %v", err)
	}
	if len(stored) != 5 {
		t.Errorf("stored events: got %d, want 5", len(stored))
	}
}

func TestRunner_ResumesPastStoredSeq(t *testing.T) {
	journal := events.NewJournal()
	store := memory.NewEventStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emit(journal, 4)
	// The first two are already archived from a previous run.
	pre := journal.After(0)[:2]
	batch := []*domain.Event{&pre[0], &pre[1]}
	if err := store.InsertBulk(context.Background(), batch); err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}

	runner := NewRunner(RunnerOptions{
		Journal:       journal,
		Store:         store,
		FlushInterval: 10 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	waitFor(t, func() bool { return runner.LastSeq() >= 4 })
	cancel()
	<-done

	stored, err := store.GetBySeqRange(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("GetBySeqRange failed: %v", err)
	}
	if len(stored) != 4 {
		t.Errorf("stored events: got %d, want 4", len(stored))
	}
}

// waitFor polls the condition for up to two seconds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
