package ledger

import (
	"errors"
	"math/big"
	"testing"

	"token-custody-lab/internal/domain"
)

const (
	addrA = domain.Address("A")
	addrB = domain.Address("B")
	addrC = domain.Address("C")
)

func TestLedger_MintMoveBurn_Conservation(t *testing.T) {
	l := New(nil)

	if err := l.Mint(addrA, big.NewInt(1000)); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if err := l.Move(addrA, addrB, big.NewInt(400)); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if err := l.Burn(addrB, big.NewInt(100)); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}

	if got := l.BalanceOf(addrA); got.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("balance A: got %s, want 600", got)
	}
	if got := l.BalanceOf(addrB); got.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("balance B: got %s, want 300", got)
	}
	if got := l.TotalSupply(); got.Cmp(big.NewInt(900)) != 0 {
		t.Errorf("total supply: got %s, want 900", got)
	}

	sum, ok := l.Reconcile()
	if !ok {
		t.Errorf("conservation violated: sum %s != supply %s", sum, l.TotalSupply())
	}
}

func TestLedger_Move_InsufficientBalance(t *testing.T) {
	l := New(nil)
	if err := l.Mint(addrA, big.NewInt(10)); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	err := l.Move(addrA, addrB, big.NewInt(11))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	// Failed move must leave the book untouched.
	if got := l.BalanceOf(addrA); got.Cmp(big.NewInt(10)) != 0 {
		t.Errorf("balance A changed after failed move: %s", got)
	}
}

func TestLedger_Mint_SupplyCap(t *testing.T) {
	l := New(big.NewInt(100))

	if err := l.Mint(addrA, big.NewInt(100)); err != nil {
		t.Fatalf("Mint to cap failed: %v", err)
	}
	err := l.Mint(addrA, big.NewInt(1))
	if !errors.Is(err, ErrSupplyCapExceeded) {
		t.Errorf("expected ErrSupplyCapExceeded, got %v", err)
	}
}

func TestLedger_ZeroAmount_NoOp(t *testing.T) {
	l := New(nil)
	if err := l.Mint(addrA, big.NewInt(5)); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if err := l.Move(addrA, addrB, big.NewInt(0)); err != nil {
		t.Errorf("zero move should be a no-op, got %v", err)
	}
	if err := l.Burn(addrA, big.NewInt(0)); err != nil {
		t.Errorf("zero burn should be a no-op, got %v", err)
	}
	if got := l.TotalSupply(); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("supply changed on zero ops: %s", got)
	}
}

func TestLedger_NegativeAmount_Rejected(t *testing.T) {
	l := New(nil)
	if err := l.Mint(addrA, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative mint, got %v", err)
	}
	if err := l.Move(addrA, addrB, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for nil move, got %v", err)
	}
}

func TestLedger_HolderCount_DropsAtZero(t *testing.T) {
	l := New(nil)
	if err := l.Mint(addrA, big.NewInt(7)); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if err := l.Move(addrA, addrB, big.NewInt(7)); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if got := l.HolderCount(); got != 1 {
		t.Errorf("expected 1 holder after full move, got %d", got)
	}
}

func TestBank_TransferAcrossTokens(t *testing.T) {
	bank := NewBank()
	tokenX := domain.Address("tokenX")

	l := bank.Register(tokenX, New(nil))
	if err := l.Mint(addrA, big.NewInt(50)); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if err := bank.Transfer(tokenX, addrA, addrC, big.NewInt(20)); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if got := bank.BalanceOf(tokenX, addrC); got.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("balance C: got %s, want 20", got)
	}

	err := bank.Transfer(domain.Address("unknown"), addrA, addrC, big.NewInt(1))
	if !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
}
