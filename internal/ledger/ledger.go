// Package ledger holds the balance book. Every engine moves value through
// it; balances and total supply always reconcile exactly.
package ledger

import (
	"errors"
	"math/big"

	"token-custody-lab/internal/domain"
)

// Ledger errors.
var (
	// ErrInsufficientBalance is returned when a debit exceeds the
	// holder's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSupplyCapExceeded is returned when a mint would push total
	// supply above the configured cap.
	ErrSupplyCapExceeded = errors.New("supply cap exceeded")

	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("amount must be non-negative")
)

// Ledger is the single-token balance book.
// Invariant: sum of all balances equals totalSupply after every operation.
type Ledger struct {
	balances    map[domain.Address]*big.Int
	totalSupply *big.Int
	maxSupply   *big.Int // nil means uncapped
}

// New creates an empty ledger. maxSupply nil or zero means uncapped.
func New(maxSupply *big.Int) *Ledger {
	var cap *big.Int
	if maxSupply != nil && maxSupply.Sign() > 0 {
		cap = new(big.Int).Set(maxSupply)
	}
	return &Ledger{
		balances:    make(map[domain.Address]*big.Int),
		totalSupply: big.NewInt(0),
		maxSupply:   cap,
	}
}

// BalanceOf returns a copy of the holder's balance.
func (l *Ledger) BalanceOf(addr domain.Address) *big.Int {
	if bal, ok := l.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TotalSupply returns a copy of the current total supply.
func (l *Ledger) TotalSupply() *big.Int {
	return new(big.Int).Set(l.totalSupply)
}

// MaxSupply returns a copy of the supply cap, or nil if uncapped.
func (l *Ledger) MaxSupply() *big.Int {
	if l.maxSupply == nil {
		return nil
	}
	return new(big.Int).Set(l.maxSupply)
}

// Move debits from and credits to. A zero amount is a no-op. The whole
// operation either applies or leaves the book untouched.
func (l *Ledger) Move(from, to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, ok := l.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.sub(from, amount)
	l.add(to, amount)
	return nil
}

// Mint credits to and grows total supply, honoring the cap.
func (l *Ledger) Mint(to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	next := new(big.Int).Add(l.totalSupply, amount)
	if l.maxSupply != nil && next.Cmp(l.maxSupply) > 0 {
		return ErrSupplyCapExceeded
	}
	l.totalSupply = next
	l.add(to, amount)
	return nil
}

// Burn debits from and shrinks total supply.
func (l *Ledger) Burn(from domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal, ok := l.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.sub(from, amount)
	l.totalSupply = new(big.Int).Sub(l.totalSupply, amount)
	return nil
}

// HolderCount returns the number of addresses with a non-zero balance.
func (l *Ledger) HolderCount() int {
	return len(l.balances)
}

// Reconcile recomputes the balance sum and reports whether it equals
// total supply. Used by verification, never by state-mutating paths.
func (l *Ledger) Reconcile() (sum *big.Int, ok bool) {
	sum = big.NewInt(0)
	for _, bal := range l.balances {
		sum.Add(sum, bal)
	}
	return sum, sum.Cmp(l.totalSupply) == 0
}

func (l *Ledger) add(addr domain.Address, amount *big.Int) {
	if bal, ok := l.balances[addr]; ok {
		l.balances[addr] = new(big.Int).Add(bal, amount)
		return
	}
	l.balances[addr] = new(big.Int).Set(amount)
}

// sub assumes the balance check already passed.
func (l *Ledger) sub(addr domain.Address, amount *big.Int) {
	next := new(big.Int).Sub(l.balances[addr], amount)
	if next.Sign() == 0 {
		delete(l.balances, addr)
		return
	}
	l.balances[addr] = next
}
