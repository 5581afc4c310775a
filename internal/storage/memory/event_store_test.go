package memory

import (
	"context"
	"math/big"
	"testing"

	"token-custody-lab/internal/domain"
)

func testEvent(seq uint64, kind domain.EventKind, amount string) *domain.Event {
	return &domain.Event{
		Seq:       seq,
		Kind:      kind,
		Token:     "token",
		From:      "alice",
		To:        "bob",
		Amount:    amount,
		Timestamp: 1704067200000 + int64(seq),
	}
}

func TestEventStore_InsertAndRange(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	batch := []*domain.Event{
		testEvent(3, domain.EventTransfer, "300"),
		testEvent(1, domain.EventTransfer, "100"),
		testEvent(2, domain.EventTransfer, "200"),
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetBySeqRange(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetBySeqRange failed: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 1 || got[1].Seq != 2 {
		t.Errorf("Wrong range result: %+v", got)
	}
}

func TestEventStore_IdempotentResend(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	batch := []*domain.Event{testEvent(1, domain.EventTransfer, "100")}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("first InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("resend failed: %v", err)
	}

	got, err := store.GetBySeqRange(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetBySeqRange failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("resend duplicated rows: got %d, want 1", len(got))
	}
}

func TestEventStore_MaxSeq(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	max, err := store.MaxSeq(ctx)
	if err != nil {
		t.Fatalf("MaxSeq failed: %v", err)
	}
	if max != 0 {
		t.Errorf("empty store max: got %d, want 0", max)
	}

	if err := store.InsertBulk(ctx, []*domain.Event{
		testEvent(5, domain.EventTransfer, "1"),
		testEvent(2, domain.EventTransfer, "1"),
	}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	max, err = store.MaxSeq(ctx)
	if err != nil {
		t.Fatalf("MaxSeq failed: %v", err)
	}
	if max != 5 {
		t.Errorf("max: got %d, want 5", max)
	}
}

func TestEventStore_FeeTotalsByCategory(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	events := []*domain.Event{
		testEvent(1, domain.EventTransfer, "1000"),
		testEvent(2, domain.EventFee, "30"),
		testEvent(3, domain.EventFee, "20"),
		testEvent(4, domain.EventFee, "10"),
	}
	events[1].Category = string(domain.FeeTax)
	events[2].Category = string(domain.FeeTax)
	events[3].Category = string(domain.FeeBurn)

	// An event on another token must not leak into the aggregation.
	stray := testEvent(5, domain.EventFee, "999")
	stray.Token = "other-token"
	stray.Category = string(domain.FeeTax)
	events = append(events, stray)

	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	totals, err := store.FeeTotalsByCategory(ctx, "token")
	if err != nil {
		t.Fatalf("FeeTotalsByCategory failed: %v", err)
	}
	if len(totals) != 2 {
		t.Fatalf("Expected 2 categories, got %d: %+v", len(totals), totals)
	}

	byCategory := make(map[string]*big.Int)
	counts := make(map[string]uint64)
	for _, ft := range totals {
		byCategory[ft.Category] = ft.Total
		counts[ft.Category] = ft.Count
	}
	if byCategory[string(domain.FeeTax)].Cmp(big.NewInt(50)) != 0 {
		t.Errorf("tax total: got %s, want 50", byCategory[string(domain.FeeTax)])
	}
	if counts[string(domain.FeeTax)] != 2 {
		t.Errorf("tax count: got %d, want 2", counts[string(domain.FeeTax)])
	}
	if byCategory[string(domain.FeeBurn)].Cmp(big.NewInt(10)) != 0 {
		t.Errorf("burn total: got %s, want 10", byCategory[string(domain.FeeBurn)])
	}
}
