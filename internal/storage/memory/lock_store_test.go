package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

func testLock(id uint64) *domain.EscrowLock {
	return &domain.EscrowLock{
		LockID:     id,
		Token:      "token",
		Owner:      "owner",
		Amount:     big.NewInt(500),
		LockTime:   1000,
		UnlockTime: 1000 + 86400,
		CreatedAt:  1000_000,
	}
}

func TestLockStore_InsertAndGet(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testLock(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Owner != "owner" || got.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("record mismatch: %+v", got)
	}
}

func TestLockStore_DuplicateKey(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testLock(1)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := store.Insert(ctx, testLock(1)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestLockStore_NotFound(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.MarkClaimed(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("MarkClaimed: expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateUnlockTime(ctx, 42, 99); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateUnlockTime: expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateOwner(ctx, 42, "new-owner"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateOwner: expected ErrNotFound, got %v", err)
	}
}

func TestLockStore_Mutations(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testLock(1)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.UpdateUnlockTime(ctx, 1, 2000+86400); err != nil {
		t.Fatalf("UpdateUnlockTime failed: %v", err)
	}
	if err := store.UpdateOwner(ctx, 1, "new-owner"); err != nil {
		t.Fatalf("UpdateOwner failed: %v", err)
	}
	if err := store.MarkClaimed(ctx, 1); err != nil {
		t.Fatalf("MarkClaimed failed: %v", err)
	}

	got, err := store.GetByID(ctx, 1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.UnlockTime != 2000+86400 || got.Owner != "new-owner" || !got.Claimed {
		t.Errorf("mutations not applied: %+v", got)
	}
}

func TestLockStore_GetByOwnerOrdered(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	second := testLock(2)
	first := testLock(1)
	other := testLock(3)
	other.Owner = "someone-else"

	for _, l := range []*domain.EscrowLock{second, first, other} {
		if err := store.Insert(ctx, l); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByOwner(ctx, "owner")
	if err != nil {
		t.Fatalf("GetByOwner failed: %v", err)
	}
	if len(got) != 2 || got[0].LockID != 1 || got[1].LockID != 2 {
		t.Errorf("Wrong result: %+v", got)
	}
}

func TestLockStore_MaxLockID(t *testing.T) {
	store := NewLockStore()
	ctx := context.Background()

	max, err := store.MaxLockID(ctx)
	if err != nil {
		t.Fatalf("MaxLockID failed: %v", err)
	}
	if max != 0 {
		t.Errorf("empty store max: got %d, want 0", max)
	}

	for _, id := range []uint64{3, 1, 7, 2} {
		if err := store.Insert(ctx, testLock(id)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	max, err = store.MaxLockID(ctx)
	if err != nil {
		t.Fatalf("MaxLockID failed: %v", err)
	}
	if max != 7 {
		t.Errorf("max: got %d, want 7", max)
	}
}
