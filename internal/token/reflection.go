package token

import (
	"math/big"

	"token-custody-lab/internal/domain"
)

// reflectionTracker distributes reflection fees with an
// accumulator-per-share model: each distribution advances a magnified
// per-share accumulator, and per-holder signed corrections keep earned
// amounts stable across balance movements. Withdrawable reads and claims
// are O(1); no path ever iterates over the holder set.
type reflectionTracker struct {
	// magnifiedPerShare accumulates fee * magnitude / shares.
	magnifiedPerShare *big.Int
	// corrections holds signed per-holder adjustments applied whenever a
	// holder's balance changes, so past distributions are unaffected.
	corrections map[domain.Address]*big.Int
	withdrawn   map[domain.Address]*big.Int
}

// reflectionMagnitude trades rounding error for integer precision.
var reflectionMagnitude = new(big.Int).Lsh(big.NewInt(1), 64)

func newReflectionTracker() *reflectionTracker {
	return &reflectionTracker{
		magnifiedPerShare: big.NewInt(0),
		corrections:       make(map[domain.Address]*big.Int),
		withdrawn:         make(map[domain.Address]*big.Int),
	}
}

// distribute credits fee proportionally across shares outstanding at this
// instant. A zero share count drops the distribution (the fee stays in
// the pool until shares exist).
func (t *reflectionTracker) distribute(fee, shares *big.Int) {
	if fee == nil || fee.Sign() <= 0 || shares == nil || shares.Sign() <= 0 {
		return
	}
	delta := new(big.Int).Mul(fee, reflectionMagnitude)
	delta.Quo(delta, shares)
	t.magnifiedPerShare = new(big.Int).Add(t.magnifiedPerShare, delta)
}

// onBalanceChange records a signed balance delta for a holder. Must be
// called for every credit (positive delta) and debit (negative delta)
// the engine applies.
func (t *reflectionTracker) onBalanceChange(addr domain.Address, delta *big.Int) {
	if delta == nil || delta.Sign() == 0 || t.magnifiedPerShare.Sign() == 0 {
		return
	}
	adj := new(big.Int).Mul(t.magnifiedPerShare, delta)
	cur, ok := t.corrections[addr]
	if !ok {
		cur = big.NewInt(0)
	}
	t.corrections[addr] = new(big.Int).Sub(cur, adj)
}

// withdrawable returns the holder's claimable amount given their current
// balance.
func (t *reflectionTracker) withdrawable(addr domain.Address, balance *big.Int) *big.Int {
	earned := new(big.Int).Mul(t.magnifiedPerShare, balance)
	if corr, ok := t.corrections[addr]; ok {
		earned.Add(earned, corr)
	}
	if earned.Sign() < 0 {
		return big.NewInt(0)
	}
	earned.Quo(earned, reflectionMagnitude)

	if w, ok := t.withdrawn[addr]; ok {
		earned.Sub(earned, w)
	}
	if earned.Sign() < 0 {
		return big.NewInt(0)
	}
	return earned
}

// recordWithdraw marks amount as claimed by the holder.
func (t *reflectionTracker) recordWithdraw(addr domain.Address, amount *big.Int) {
	cur, ok := t.withdrawn[addr]
	if !ok {
		cur = big.NewInt(0)
	}
	t.withdrawn[addr] = new(big.Int).Add(cur, amount)
}
