package liquidity

import (
	"context"
	"errors"
	"log"
	"math/big"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/events"
	"token-custody-lab/internal/ledger"
)

// ErrPeerNotConfigured is returned when the sub-engine runs without a peer.
var ErrPeerNotConfigured = errors.New("liquidity: exchange peer not configured")

// SubEngine converts accumulated custody tokens into paired liquidity.
// It is invoked only from within a transfer and guarded against nested
// invocation on the same call stack: a nested trigger is dropped, never
// queued or retried.
type SubEngine struct {
	peer    Peer
	book    *ledger.Ledger
	token   domain.Address
	custody domain.Address
	pair    domain.Address

	emitter events.Emitter
	nowFn   func() int64

	inSwap bool
}

// NewSubEngine creates the sub-engine over the token's balance book.
// custody is the address accumulating liquidity-routed fees; pair is the
// exchange peer's pool address in the book.
func NewSubEngine(peer Peer, book *ledger.Ledger, token, custody, pair domain.Address) *SubEngine {
	return &SubEngine{
		peer:    peer,
		book:    book,
		token:   token,
		custody: custody,
		pair:    pair,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().UnixMilli() },
	}
}

// SetEmitter configures the journal emitter.
func (e *SubEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the event clock for deterministic tests.
func (e *SubEngine) SetNowFunc(now func() int64) {
	if now != nil {
		e.nowFn = now
	}
}

// InFlight reports whether a provision is currently executing.
func (e *SubEngine) InFlight() bool { return e.inSwap }

// enter acquires the re-entry guard. The returned release runs on every
// exit path, error paths included.
func (e *SubEngine) enter() (release func(), ok bool) {
	if e.inSwap {
		return nil, false
	}
	e.inSwap = true
	return func() { e.inSwap = false }, true
}

// TryProvide converts up to threshold of held custody balance into paired
// liquidity. Returns the token amount committed to the pair, zero when the
// step was skipped (guard held, below threshold, zero proceeds) or aborted.
// A peer failure aborts only this step; the error is surfaced for
// observability but the enclosing transfer must not fail on it.
func (e *SubEngine) TryProvide(ctx context.Context, threshold *big.Int) (*big.Int, error) {
	release, ok := e.enter()
	if !ok {
		return big.NewInt(0), nil
	}
	defer release()

	if e.peer == nil {
		return big.NewInt(0), ErrPeerNotConfigured
	}
	if threshold == nil || threshold.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	held := e.book.BalanceOf(e.custody)
	amount := new(big.Int).Set(held)
	if amount.Cmp(threshold) > 0 {
		amount.Set(threshold)
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}

	half := new(big.Int).Rsh(amount, 1)
	rest := new(big.Int).Sub(amount, half)

	proceeds, err := e.peer.SwapTokensForBase(ctx, half)
	if err != nil {
		return big.NewInt(0), err
	}
	if proceeds == nil || proceeds.Sign() == 0 {
		// Nothing to pair with; tokens stay held for the next trigger.
		return big.NewInt(0), nil
	}

	if err := e.book.Move(e.custody, e.pair, half); err != nil {
		return big.NewInt(0), err
	}
	if _, err := e.peer.AddLiquidity(ctx, rest, proceeds); err != nil {
		// Compensate the committed half so the book reads as if the
		// step never happened.
		if compErr := e.book.Move(e.pair, e.custody, half); compErr != nil {
			log.Printf("[liquidity] returning %s from pair to custody failed: %v", half, compErr)
		}
		return big.NewInt(0), err
	}
	if err := e.book.Move(e.custody, e.pair, rest); err != nil {
		return big.NewInt(0), err
	}

	e.emitter.Emit(domain.Event{
		Kind:      domain.EventLiquidity,
		Token:     e.token,
		From:      e.custody,
		To:        e.pair,
		Amount:    amount.String(),
		Before:    held.String(),
		After:     e.book.BalanceOf(e.custody).String(),
		Timestamp: e.nowFn(),
	})
	return amount, nil
}
