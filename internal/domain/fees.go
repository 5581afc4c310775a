package domain

import "fmt"

// Basis-point math constants.
const (
	// BpsBase is the denominator for basis-point rates (100% == 10000).
	BpsBase = 10000

	// MaxRateBps caps each individual fee category at 10%.
	MaxRateBps = 1000
)

// FeeCategory identifies a deduction destination on a taxed movement.
type FeeCategory string

// Fee categories, in the fixed order sub-movements are emitted.
const (
	FeeTax        FeeCategory = "tax"
	FeeMarketing  FeeCategory = "marketing"
	FeeLiquidity  FeeCategory = "liquidity"
	FeeBurn       FeeCategory = "burn"
	FeeReflection FeeCategory = "reflection"
)

// FeeCategories lists all categories in emission order.
var FeeCategories = []FeeCategory{FeeTax, FeeMarketing, FeeLiquidity, FeeBurn, FeeReflection}

// FeeConfig holds the basis-point rates applied to taxed movements.
// Buy/Sell/Transfer select the tax rate by movement direction relative to
// the pair; the remaining categories apply uniformly on top of it.
type FeeConfig struct {
	BuyRateBps        int64
	SellRateBps       int64
	TransferRateBps   int64
	MarketingRateBps  int64
	LiquidityRateBps  int64
	BurnRateBps       int64
	ReflectionRateBps int64
}

// Validate enforces the per-category cap and the aggregate cap: no single
// movement may have more than 100% of its amount deducted.
func (c FeeConfig) Validate() error {
	rates := map[string]int64{
		"buy":        c.BuyRateBps,
		"sell":       c.SellRateBps,
		"transfer":   c.TransferRateBps,
		"marketing":  c.MarketingRateBps,
		"liquidity":  c.LiquidityRateBps,
		"burn":       c.BurnRateBps,
		"reflection": c.ReflectionRateBps,
	}
	for name, rate := range rates {
		if rate < 0 || rate > MaxRateBps {
			return fmt.Errorf("%s rate %d bps outside [0, %d]", name, rate, MaxRateBps)
		}
	}

	// Worst case: the highest directional rate plus every flat category.
	worst := c.BuyRateBps
	if c.SellRateBps > worst {
		worst = c.SellRateBps
	}
	if c.TransferRateBps > worst {
		worst = c.TransferRateBps
	}
	worst += c.MarketingRateBps + c.LiquidityRateBps + c.BurnRateBps + c.ReflectionRateBps
	if worst > BpsBase {
		return fmt.Errorf("aggregate rate %d bps exceeds %d", worst, BpsBase)
	}
	return nil
}

// DirectionalRate returns the tax rate applicable to a movement where
// fromPair/toPair indicate whether either side is the liquidity pair.
func (c FeeConfig) DirectionalRate(fromPair, toPair bool) int64 {
	switch {
	case fromPair:
		return c.BuyRateBps
	case toPair:
		return c.SellRateBps
	default:
		return c.TransferRateBps
	}
}

// Fee presets for the three token variants. Variants are configuration,
// not subtypes: a base token deducts a flat tax only, a liquidity token
// adds marketing/liquidity/burn routing, a dividend token adds reflection.
var (
	FeePresetBase = FeeConfig{
		BuyRateBps:      300,
		SellRateBps:     300,
		TransferRateBps: 100,
	}

	FeePresetLiquidity = FeeConfig{
		BuyRateBps:       200,
		SellRateBps:      400,
		TransferRateBps:  100,
		MarketingRateBps: 200,
		LiquidityRateBps: 300,
		BurnRateBps:      100,
	}

	FeePresetDividend = FeeConfig{
		BuyRateBps:        200,
		SellRateBps:       300,
		TransferRateBps:   100,
		MarketingRateBps:  100,
		LiquidityRateBps:  200,
		ReflectionRateBps: 300,
	}
)
