package token

import (
	"fmt"
	"math/big"

	"token-custody-lab/internal/domain"
)

// Owner-gated configuration. Every setter requires the authority
// capability and emits an update event carrying before/after values.

// SetFees replaces the fee configuration. Rates above the per-category or
// aggregate ceiling are rejected.
func (e *Engine) SetFees(caller domain.Address, fees domain.FeeConfig) error {
	if caller != e.authority {
		return ErrNotAuthorized
	}
	if err := fees.Validate(); err != nil {
		return fmt.Errorf("fee config: %w", err)
	}
	next := e.cfg
	next.Fees = fees
	if err := validateFeeWallets(next); err != nil {
		return err
	}

	before := e.cfg.Fees
	e.cfg.Fees = fees
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventRatesUpdated,
		Token:     e.token,
		Before:    fmt.Sprintf("%+v", before),
		After:     fmt.Sprintf("%+v", fees),
		Timestamp: e.nowFn(),
	})
	return nil
}

// SetLimits replaces the wallet/transaction ceilings and the liquidity
// threshold. Nil or zero values disable the corresponding check.
func (e *Engine) SetLimits(caller domain.Address, limits domain.LimitConfig) error {
	if caller != e.authority {
		return ErrNotAuthorized
	}
	for _, v := range []*big.Int{limits.MaxWalletAmount, limits.MaxTransactionAmount, limits.LiquidityThreshold} {
		if v != nil && v.Sign() < 0 {
			return ErrInvalidAmount
		}
	}

	before := e.cfg.Limits
	e.cfg.Limits = limits
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventLimitsUpdated,
		Token:     e.token,
		Before:    formatLimits(before),
		After:     formatLimits(limits),
		Timestamp: e.nowFn(),
	})
	return nil
}

// SetExempt adds or removes an address from the fee/limit exemption set.
func (e *Engine) SetExempt(caller, addr domain.Address, exempt bool) error {
	if caller != e.authority {
		return ErrNotAuthorized
	}
	if addr.IsZero() {
		return ErrInvalidAddress
	}

	before := e.isExempt(addr)
	if exempt {
		e.exempt[addr] = struct{}{}
	} else {
		delete(e.exempt, addr)
	}
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventExemptionUpdated,
		Token:     e.token,
		To:        addr,
		Before:    fmt.Sprintf("%t", before),
		After:     fmt.Sprintf("%t", exempt),
		Timestamp: e.nowFn(),
	})
	return nil
}

// SetBlacklisted adds or removes an address from the blocked set.
func (e *Engine) SetBlacklisted(caller, addr domain.Address, blocked bool) error {
	if caller != e.authority {
		return ErrNotAuthorized
	}
	if addr.IsZero() || addr == e.authority {
		return ErrInvalidAddress
	}

	before := e.isBlacklisted(addr)
	if blocked {
		e.blacklist[addr] = struct{}{}
	} else {
		delete(e.blacklist, addr)
	}
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventBlacklistUpdated,
		Token:     e.token,
		To:        addr,
		Before:    fmt.Sprintf("%t", before),
		After:     fmt.Sprintf("%t", blocked),
		Timestamp: e.nowFn(),
	})
	return nil
}

// SetTradingEnabled flips the global trading gate. Exempt parties move
// value regardless.
func (e *Engine) SetTradingEnabled(caller domain.Address, enabled bool) error {
	if caller != e.authority {
		return ErrNotAuthorized
	}

	before := e.tradingEnabled
	e.tradingEnabled = enabled
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventTradingUpdated,
		Token:     e.token,
		Before:    fmt.Sprintf("%t", before),
		After:     fmt.Sprintf("%t", enabled),
		Timestamp: e.nowFn(),
	})
	return nil
}

// TradingEnabled reports the global trading gate.
func (e *Engine) TradingEnabled() bool { return e.tradingEnabled }

// IsExempt reports fee/limit exemption for an address.
func (e *Engine) IsExempt(addr domain.Address) bool { return e.isExempt(addr) }

// IsBlacklisted reports whether an address is blocked.
func (e *Engine) IsBlacklisted(addr domain.Address) bool { return e.isBlacklisted(addr) }

func formatLimits(l domain.LimitConfig) string {
	str := func(v *big.Int) string {
		if v == nil {
			return "0"
		}
		return v.String()
	}
	return fmt.Sprintf("maxWallet=%s maxTx=%s threshold=%s",
		str(l.MaxWalletAmount), str(l.MaxTransactionAmount), str(l.LiquidityThreshold))
}
