package liquidity_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/ledger"
	"token-custody-lab/internal/liquidity"
	"token-custody-lab/internal/liquidity/stub"
)

const (
	tokenAddr = domain.Address("token")
	custody   = domain.Address("custody")
	pairAddr  = domain.Address("pair")
)

func newBook(t *testing.T, custodyBalance int64) *ledger.Ledger {
	t.Helper()
	book := ledger.New(nil)
	if err := book.Mint(custody, big.NewInt(custodyBalance)); err != nil {
		t.Fatalf("seeding custody failed: %v", err)
	}
	return book
}

func TestTryProvide_SplitsAndCommits(t *testing.T) {
	book := newBook(t, 1000)
	peer := stub.NewPeer()
	sub := liquidity.NewSubEngine(peer, book, tokenAddr, custody, pairAddr)

	provided, err := sub.TryProvide(context.Background(), big.NewInt(400))
	if err != nil {
		t.Fatalf("TryProvide failed: %v", err)
	}
	if provided.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("provided: got %s, want 400", provided)
	}
	if got := book.BalanceOf(custody); got.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("custody: got %s, want 600", got)
	}
	if got := book.BalanceOf(pairAddr); got.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("pair: got %s, want 400", got)
	}
	if len(peer.Swaps) != 1 || peer.Swaps[0].Cmp(big.NewInt(200)) != 0 {
		t.Errorf("expected one swap of 200, got %v", peer.Swaps)
	}
	if len(peer.Deposits) != 1 || peer.Deposits[0][0].Cmp(big.NewInt(200)) != 0 {
		t.Errorf("expected one deposit with token leg 200, got %v", peer.Deposits)
	}
}

func TestTryProvide_OddAmountRoundsSwapDown(t *testing.T) {
	book := newBook(t, 101)
	peer := stub.NewPeer()
	sub := liquidity.NewSubEngine(peer, book, tokenAddr, custody, pairAddr)

	provided, err := sub.TryProvide(context.Background(), big.NewInt(101))
	if err != nil {
		t.Fatalf("TryProvide failed: %v", err)
	}
	if provided.Cmp(big.NewInt(101)) != 0 {
		t.Errorf("provided: got %s, want 101", provided)
	}
	// Swap leg is the floor half; the deposit token leg carries the
	// remainder so the whole amount leaves custody.
	if peer.Swaps[0].Cmp(big.NewInt(50)) != 0 {
		t.Errorf("swap leg: got %s, want 50", peer.Swaps[0])
	}
	if peer.Deposits[0][0].Cmp(big.NewInt(51)) != 0 {
		t.Errorf("deposit token leg: got %s, want 51", peer.Deposits[0][0])
	}
	if got := book.BalanceOf(custody); got.Sign() != 0 {
		t.Errorf("custody: got %s, want 0", got)
	}
}

func TestTryProvide_CapsAtHeldBalance(t *testing.T) {
	book := newBook(t, 100)
	peer := stub.NewPeer()
	sub := liquidity.NewSubEngine(peer, book, tokenAddr, custody, pairAddr)

	provided, err := sub.TryProvide(context.Background(), big.NewInt(400))
	if err != nil {
		t.Fatalf("TryProvide failed: %v", err)
	}
	if provided.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("provided: got %s, want 100", provided)
	}
	if got := book.BalanceOf(custody); got.Sign() != 0 {
		t.Errorf("custody: got %s, want 0", got)
	}
}

func TestTryProvide_ZeroProceedsSkips(t *testing.T) {
	book := newBook(t, 1000)
	peer := stub.NewPeer()
	peer.RateNum = big.NewInt(0) // swap yields no base currency
	sub := liquidity.NewSubEngine(peer, book, tokenAddr, custody, pairAddr)

	provided, err := sub.TryProvide(context.Background(), big.NewInt(400))
	if err != nil {
		t.Fatalf("TryProvide failed: %v", err)
	}
	if provided.Sign() != 0 {
		t.Errorf("provided: got %s, want 0", provided)
	}
	// Tokens stay held for the next trigger; no deposit attempted.
	if got := book.BalanceOf(custody); got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("custody: got %s, want 1000", got)
	}
	if len(peer.Deposits) != 0 {
		t.Errorf("expected no deposits, got %d", len(peer.Deposits))
	}
}

func TestTryProvide_SwapFailureLeavesBookUntouched(t *testing.T) {
	book := newBook(t, 1000)
	peer := stub.NewPeer()
	peer.SwapErr = errors.New("peer unavailable")
	sub := liquidity.NewSubEngine(peer, book, tokenAddr, custody, pairAddr)

	_, err := sub.TryProvide(context.Background(), big.NewInt(400))
	if err == nil {
		t.Fatal("expected swap error")
	}
	if got := book.BalanceOf(custody); got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("custody: got %s, want 1000", got)
	}
	if got := book.BalanceOf(pairAddr); got.Sign() != 0 {
		t.Errorf("pair: got %s, want 0", got)
	}
}

func TestTryProvide_DepositFailureCompensates(t *testing.T) {
	book := newBook(t, 1000)
	peer := stub.NewPeer()
	peer.DepositErr = errors.New("deposit rejected")
	sub := liquidity.NewSubEngine(peer, book, tokenAddr, custody, pairAddr)

	_, err := sub.TryProvide(context.Background(), big.NewInt(400))
	if err == nil {
		t.Fatal("expected deposit error")
	}
	// The swapped half is moved back so the step reads as never run.
	if got := book.BalanceOf(custody); got.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("custody: got %s, want 1000", got)
	}
	if got := book.BalanceOf(pairAddr); got.Sign() != 0 {
		t.Errorf("pair: got %s, want 0", got)
	}
}

func TestTryProvide_NestedTriggerDropped(t *testing.T) {
	book := newBook(t, 1000)
	peer := &reentrantPeer{}
	sub := liquidity.NewSubEngine(peer, book, tokenAddr, custody, pairAddr)

	// A peer whose swap re-enters the sub-engine: the inner call must be
	// dropped, not queued.
	var inner *big.Int
	peer.swap = func(ctx context.Context, amount *big.Int) (*big.Int, error) {
		got, err := sub.TryProvide(ctx, big.NewInt(400))
		if err != nil {
			t.Errorf("nested TryProvide errored: %v", err)
		}
		inner = got
		return new(big.Int).Set(amount), nil
	}

	provided, err := sub.TryProvide(context.Background(), big.NewInt(400))
	if err != nil {
		t.Fatalf("TryProvide failed: %v", err)
	}
	if provided.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("outer provided: got %s, want 400", provided)
	}
	if inner == nil || inner.Sign() != 0 {
		t.Errorf("nested call: got %v, want 0", inner)
	}
	if sub.InFlight() {
		t.Error("guard still held after return")
	}
}

func TestTryProvide_GuardReleasedAfterError(t *testing.T) {
	book := newBook(t, 1000)
	peer := stub.NewPeer()
	peer.SwapErr = errors.New("peer unavailable")
	sub := liquidity.NewSubEngine(peer, book, tokenAddr, custody, pairAddr)

	if _, err := sub.TryProvide(context.Background(), big.NewInt(400)); err == nil {
		t.Fatal("expected swap error")
	}
	if sub.InFlight() {
		t.Fatal("guard still held after error")
	}

	// A later trigger succeeds once the peer recovers.
	peer.SwapErr = nil
	provided, err := sub.TryProvide(context.Background(), big.NewInt(400))
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if provided.Cmp(big.NewInt(400)) != 0 {
		t.Errorf("provided: got %s, want 400", provided)
	}
}

func TestTryProvide_NoPeerConfigured(t *testing.T) {
	book := newBook(t, 1000)
	sub := liquidity.NewSubEngine(nil, book, tokenAddr, custody, pairAddr)

	_, err := sub.TryProvide(context.Background(), big.NewInt(400))
	if !errors.Is(err, liquidity.ErrPeerNotConfigured) {
		t.Errorf("expected ErrPeerNotConfigured, got %v", err)
	}
}

type reentrantPeer struct {
	swap func(context.Context, *big.Int) (*big.Int, error)
}

func (p *reentrantPeer) SwapTokensForBase(ctx context.Context, amount *big.Int) (*big.Int, error) {
	return p.swap(ctx, amount)
}

func (p *reentrantPeer) AddLiquidity(_ context.Context, tokenAmount, _ *big.Int) (*big.Int, error) {
	return new(big.Int).Set(tokenAmount), nil
}
