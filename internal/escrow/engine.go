// Package escrow implements the deadline-gated custodian. Deposits are held
// under sequentially numbered locks; each lock pays out to its current owner
// exactly once, after its unlock time or through an administrative override.
package escrow

import (
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/events"
	"token-custody-lab/internal/ledger"
)

// Config carries the escrow deployment parameters.
type Config struct {
	Admin domain.Address

	// Creation fee, charged in FeeToken and forwarded to FeeReceiver.
	// A zero FeeAmount disables the fee.
	FeeToken    domain.Address
	FeeAmount   *big.Int
	FeeReceiver domain.Address
}

// Engine custodies time-locked deposits over the shared multi-token bank.
// Lock records are never deleted; ids are never reused.
type Engine struct {
	bank    *ledger.Bank
	custody domain.Address
	cfg     Config

	locks   map[uint64]*domain.EscrowLock
	byOwner map[domain.Address][]uint64
	byToken map[domain.Address][]uint64
	nextID  uint64

	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates the escrow custodian over the given bank.
func NewEngine(bank *ledger.Bank, cfg Config) (*Engine, error) {
	if cfg.Admin.IsZero() {
		return nil, fmt.Errorf("%w: admin required", ErrInvalidAddress)
	}
	if cfg.FeeAmount != nil && cfg.FeeAmount.Sign() > 0 {
		if cfg.FeeToken.IsZero() || cfg.FeeReceiver.IsZero() {
			return nil, fmt.Errorf("%w: fee token and receiver required when a fee is set", ErrInvalidAddress)
		}
	}
	return &Engine{
		bank:    bank,
		custody: domain.DeriveCustodyAddress("escrow-custody"),
		cfg:     cfg,
		locks:   make(map[uint64]*domain.EscrowLock),
		byOwner: make(map[domain.Address][]uint64),
		byToken: make(map[domain.Address][]uint64),
		nextID:  1,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// SetEmitter configures the journal emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock for deterministic tests. The function
// returns Unix milliseconds.
func (e *Engine) SetNowFunc(now func() int64) {
	if now != nil {
		e.nowFn = now
	}
}

// Custody returns the address holding all unclaimed deposits.
func (e *Engine) Custody() domain.Address { return e.custody }

// Restore reloads archived locks after a restart and advances the id
// counter past the highest seen. Balances are not touched; the bank is
// assumed restored separately.
func (e *Engine) Restore(locks []*domain.EscrowLock) {
	for _, l := range locks {
		if l == nil || l.LockID == 0 {
			continue
		}
		if _, exists := e.locks[l.LockID]; exists {
			continue
		}
		c := l.Clone()
		e.locks[c.LockID] = c
		e.byOwner[c.Owner] = append(e.byOwner[c.Owner], c.LockID)
		e.byToken[c.Token] = append(e.byToken[c.Token], c.LockID)
		if c.LockID >= e.nextID {
			e.nextID = c.LockID + 1
		}
	}
}

// Lock pulls amount from the caller into custody under a new sequential id.
// The creation fee, when configured, is charged up front and forwarded to
// the fee receiver; a failed deposit refunds it.
func (e *Engine) Lock(caller, token domain.Address, amount *big.Int, unlockTime int64, description string) (*domain.EscrowLock, error) {
	if caller.IsZero() || token.IsZero() {
		return nil, ErrInvalidAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	now := e.nowFn()
	if unlockTime <= now/1000 {
		return nil, ErrInvalidDeadline
	}

	feeCharged := e.cfg.FeeAmount != nil && e.cfg.FeeAmount.Sign() > 0
	if feeCharged {
		if err := e.bank.Transfer(e.cfg.FeeToken, caller, e.cfg.FeeReceiver, e.cfg.FeeAmount); err != nil {
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				return nil, ErrInsufficientFee
			}
			return nil, fmt.Errorf("charging creation fee: %w", err)
		}
	}
	if err := e.bank.Transfer(token, caller, e.custody, amount); err != nil {
		if feeCharged {
			if refundErr := e.bank.Transfer(e.cfg.FeeToken, e.cfg.FeeReceiver, caller, e.cfg.FeeAmount); refundErr != nil {
				log.Printf("[escrow] refunding creation fee %s to %s failed: %v", e.cfg.FeeAmount, caller, refundErr)
			}
		}
		return nil, fmt.Errorf("pulling deposit: %w", err)
	}

	id := e.nextID
	e.nextID++
	l := &domain.EscrowLock{
		LockID:      id,
		Token:       token,
		Owner:       caller,
		Amount:      new(big.Int).Set(amount),
		LockTime:    now / 1000,
		UnlockTime:  unlockTime,
		Description: description,
		CreatedAt:   now,
	}
	e.locks[id] = l
	e.byOwner[caller] = append(e.byOwner[caller], id)
	e.byToken[token] = append(e.byToken[token], id)

	log.Printf("[escrow] lock %d created by %s: %s until %d", id, caller, amount, unlockTime)
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventLockCreated,
		Token:     token,
		RefID:     fmt.Sprintf("%d", id),
		From:      caller,
		To:        e.custody,
		Amount:    amount.String(),
		After:     fmt.Sprintf("%d", unlockTime),
		Timestamp: now,
	})
	return l.Clone(), nil
}

// Unlock pays a matured lock back to its current owner. Claimed flips
// before value leaves custody.
func (e *Engine) Unlock(caller domain.Address, id uint64) (*big.Int, error) {
	l, ok := e.locks[id]
	if !ok {
		return nil, ErrLockNotFound
	}
	if caller != l.Owner {
		return nil, ErrNotAuthorized
	}
	if e.nowFn()/1000 < l.UnlockTime {
		return nil, ErrStillLocked
	}
	return e.payOut(l, domain.EventLockUnlocked)
}

// EmergencyUnlock is the administrative override: admin only, deadline
// ignored, funds still go to the lock's current owner.
func (e *Engine) EmergencyUnlock(caller domain.Address, id uint64) (*big.Int, error) {
	if caller != e.cfg.Admin {
		return nil, ErrNotAuthorized
	}
	l, ok := e.locks[id]
	if !ok {
		return nil, ErrLockNotFound
	}
	return e.payOut(l, domain.EventLockUnlocked)
}

func (e *Engine) payOut(l *domain.EscrowLock, kind domain.EventKind) (*big.Int, error) {
	if l.Claimed {
		return nil, ErrAlreadyClaimed
	}
	l.Claimed = true
	if err := e.bank.Transfer(l.Token, e.custody, l.Owner, l.Amount); err != nil {
		l.Claimed = false
		return nil, fmt.Errorf("paying out lock %d: %w", l.LockID, err)
	}

	log.Printf("[escrow] lock %d unlocked: %s to %s", l.LockID, l.Amount, l.Owner)
	e.emitter.Emit(domain.Event{
		Kind:      kind,
		Token:     l.Token,
		RefID:     fmt.Sprintf("%d", l.LockID),
		From:      e.custody,
		To:        l.Owner,
		Amount:    l.Amount.String(),
		Timestamp: e.nowFn(),
	})
	return new(big.Int).Set(l.Amount), nil
}

// Extend pushes the unlock time further out. It never moves backward.
func (e *Engine) Extend(caller domain.Address, id uint64, newUnlockTime int64) error {
	l, ok := e.locks[id]
	if !ok {
		return ErrLockNotFound
	}
	if caller != l.Owner {
		return ErrNotAuthorized
	}
	if l.Claimed {
		return ErrAlreadyClaimed
	}
	if newUnlockTime <= l.UnlockTime {
		return ErrInvalidDeadline
	}

	before := l.UnlockTime
	l.UnlockTime = newUnlockTime

	e.emitter.Emit(domain.Event{
		Kind:      domain.EventLockExtended,
		Token:     l.Token,
		RefID:     fmt.Sprintf("%d", id),
		From:      l.Owner,
		Before:    fmt.Sprintf("%d", before),
		After:     fmt.Sprintf("%d", newUnlockTime),
		Timestamp: e.nowFn(),
	})
	return nil
}

// TransferOwnership reassigns an unclaimed lock. The owner index is
// updated on both sides.
func (e *Engine) TransferOwnership(caller domain.Address, id uint64, newOwner domain.Address) error {
	l, ok := e.locks[id]
	if !ok {
		return ErrLockNotFound
	}
	if caller != l.Owner {
		return ErrNotAuthorized
	}
	if l.Claimed {
		return ErrAlreadyClaimed
	}
	if newOwner.IsZero() {
		return ErrInvalidAddress
	}

	old := l.Owner
	e.byOwner[old] = removeID(e.byOwner[old], id)
	if len(e.byOwner[old]) == 0 {
		delete(e.byOwner, old)
	}
	e.byOwner[newOwner] = append(e.byOwner[newOwner], id)
	l.Owner = newOwner

	e.emitter.Emit(domain.Event{
		Kind:      domain.EventLockOwnerChanged,
		Token:     l.Token,
		RefID:     fmt.Sprintf("%d", id),
		From:      old,
		To:        newOwner,
		Timestamp: e.nowFn(),
	})
	return nil
}

// Recover sweeps custody balance not accounted for by any unclaimed lock
// on the token. Admin only.
func (e *Engine) Recover(caller, token domain.Address, amount *big.Int) error {
	if caller != e.cfg.Admin {
		return ErrNotAuthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	locked := e.lockedSum(token)
	held := e.bank.BalanceOf(token, e.custody)
	need := new(big.Int).Add(locked, amount)
	if held.Cmp(need) < 0 {
		return ErrExceedsRecovery
	}
	if err := e.bank.Transfer(token, e.custody, caller, amount); err != nil {
		return fmt.Errorf("recovering surplus: %w", err)
	}

	log.Printf("[escrow] recovered %s of %s (locked=%s held=%s)", amount, token, locked, held)
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventLockRecovered,
		Token:     token,
		From:      e.custody,
		To:        caller,
		Amount:    amount.String(),
		Before:    held.String(),
		After:     locked.String(),
		Timestamp: e.nowFn(),
	})
	return nil
}

// lockedSum totals the unclaimed locked amounts for a token.
func (e *Engine) lockedSum(token domain.Address) *big.Int {
	sum := big.NewInt(0)
	for _, id := range e.byToken[token] {
		if l := e.locks[id]; !l.Claimed {
			sum.Add(sum, l.Amount)
		}
	}
	return sum
}

// Lookup returns a copy of the lock record, or ErrLockNotFound.
func (e *Engine) Lookup(id uint64) (*domain.EscrowLock, error) {
	l, ok := e.locks[id]
	if !ok {
		return nil, ErrLockNotFound
	}
	return l.Clone(), nil
}

// LocksFor returns copies of all locks currently owned by an address.
func (e *Engine) LocksFor(owner domain.Address) []*domain.EscrowLock {
	ids := e.byOwner[owner]
	out := make([]*domain.EscrowLock, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.locks[id].Clone())
	}
	return out
}

// removeID deletes id from the slice with swap-with-last. Order within an
// owner's index is not meaningful.
func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			ids[i] = ids[len(ids)-1]
			return ids[:len(ids)-1]
		}
	}
	return ids
}
