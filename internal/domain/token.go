package domain

import (
	"fmt"
	"math/big"
)

// TokenConfig is the owner-gated mutable configuration of one token.
// All mutation goes through the token engine's authority-checked setters.
type TokenConfig struct {
	Name     string
	Symbol   string
	Decimals uint8

	// MaxSupply caps minting. Nil or zero means uncapped.
	MaxSupply *big.Int

	// Fee routing destinations.
	TaxWallet       Address
	MarketingWallet Address
	LiquidityWallet Address

	// Pair is the external liquidity-pool address used to classify
	// buy/sell direction. Zero disables directional classification.
	Pair Address

	Fees   FeeConfig
	Limits LimitConfig
}

// LimitConfig holds wallet/transaction ceilings and the auto-liquidity
// trigger threshold. Zero values disable the corresponding check.
type LimitConfig struct {
	MaxWalletAmount      *big.Int
	MaxTransactionAmount *big.Int
	LiquidityThreshold   *big.Int
}

// Validate checks the static parts of a token configuration.
func (c TokenConfig) Validate() error {
	if c.Name == "" || c.Symbol == "" {
		return fmt.Errorf("token name and symbol required")
	}
	if c.MaxSupply != nil && c.MaxSupply.Sign() < 0 {
		return fmt.Errorf("max supply must be non-negative")
	}
	if err := c.Fees.Validate(); err != nil {
		return fmt.Errorf("fee config: %w", err)
	}
	return nil
}

// TokenRecord is the persisted form of a deployed token, as stored in
// the token_configs table.
type TokenRecord struct {
	Token     Address
	Name      string
	Symbol    string
	Decimals  uint8
	Authority Address
	Pair      Address
	CreatedAt int64 // Unix timestamp in milliseconds
}
