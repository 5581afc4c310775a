package ledger

import (
	"errors"
	"math/big"

	"token-custody-lab/internal/domain"
)

// ErrUnknownToken is returned for operations on an unregistered token.
var ErrUnknownToken = errors.New("unknown token")

// Bank is the multi-token balance book used by the escrow and vesting
// custodians. Each token keeps its own conservation invariant.
type Bank struct {
	ledgers map[domain.Address]*Ledger
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{ledgers: make(map[domain.Address]*Ledger)}
}

// Register adds a token's ledger to the bank. Registering the same token
// twice replaces nothing and returns the existing ledger.
func (b *Bank) Register(token domain.Address, l *Ledger) *Ledger {
	if existing, ok := b.ledgers[token]; ok {
		return existing
	}
	b.ledgers[token] = l
	return l
}

// Ledger returns the ledger for a token, or nil if unregistered.
func (b *Bank) Ledger(token domain.Address) *Ledger {
	return b.ledgers[token]
}

// Transfer moves value between holders of one token.
func (b *Bank) Transfer(token, from, to domain.Address, amount *big.Int) error {
	l, ok := b.ledgers[token]
	if !ok {
		return ErrUnknownToken
	}
	return l.Move(from, to, amount)
}

// BalanceOf returns a holder's balance for a token. Unregistered tokens
// read as zero.
func (b *Bank) BalanceOf(token, addr domain.Address) *big.Int {
	l, ok := b.ledgers[token]
	if !ok {
		return big.NewInt(0)
	}
	return l.BalanceOf(addr)
}
