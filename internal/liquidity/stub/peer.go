// Package stub provides a deterministic exchange peer for tests and the
// scenario runner.
package stub

import (
	"context"
	"math/big"
	"sync"

	"token-custody-lab/internal/liquidity"
)

// Peer converts tokens to base currency at a fixed rate and accepts any
// paired deposit. It records calls so tests can assert interaction.
type Peer struct {
	mu sync.Mutex

	// RateNum/RateDen define base proceeds = tokens * RateNum / RateDen.
	RateNum *big.Int
	RateDen *big.Int

	// SwapErr/DepositErr, when set, fail the corresponding call.
	SwapErr    error
	DepositErr error

	Swaps    []*big.Int
	Deposits [][2]*big.Int
	LPMinted *big.Int
}

// NewPeer creates a peer with a 1:1 conversion rate.
func NewPeer() *Peer {
	return &Peer{
		RateNum:  big.NewInt(1),
		RateDen:  big.NewInt(1),
		LPMinted: big.NewInt(0),
	}
}

// SwapTokensForBase implements liquidity.Peer.
func (p *Peer) SwapTokensForBase(_ context.Context, tokenAmount *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.SwapErr != nil {
		return nil, p.SwapErr
	}
	p.Swaps = append(p.Swaps, new(big.Int).Set(tokenAmount))

	proceeds := new(big.Int).Mul(tokenAmount, p.RateNum)
	proceeds.Quo(proceeds, p.RateDen)
	return proceeds, nil
}

// AddLiquidity implements liquidity.Peer. LP credited equals the token leg.
func (p *Peer) AddLiquidity(_ context.Context, tokenAmount, baseAmount *big.Int) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.DepositErr != nil {
		return nil, p.DepositErr
	}
	p.Deposits = append(p.Deposits, [2]*big.Int{
		new(big.Int).Set(tokenAmount),
		new(big.Int).Set(baseAmount),
	})

	lp := new(big.Int).Set(tokenAmount)
	p.LPMinted.Add(p.LPMinted, lp)
	return lp, nil
}

var _ liquidity.Peer = (*Peer)(nil)

