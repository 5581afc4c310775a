// Package liquidity implements the auto-liquidity sub-engine: when the
// transfer engine accumulates enough contract-held tokens, half are
// converted to base currency through an external exchange peer and both
// halves are deposited as a paired liquidity contribution.
package liquidity

import (
	"context"
	"math/big"
)

// Peer is the external exchange the sub-engine converts through.
// The core depends on this capability but does not implement it.
type Peer interface {
	// SwapTokensForBase converts tokenAmount into base currency and
	// returns the proceeds. Minimum-out is zero for this design.
	SwapTokensForBase(ctx context.Context, tokenAmount *big.Int) (*big.Int, error)

	// AddLiquidity deposits a paired token+base contribution and returns
	// the credited LP amount. LP ownership goes to the configured
	// beneficiary on the peer side.
	AddLiquidity(ctx context.Context, tokenAmount, baseAmount *big.Int) (*big.Int, error)
}
