// Package token implements the fee-routing transfer engine: every balance
// movement runs through Move, which enforces limits, computes per-category
// deductions, and forwards the net amount.
package token

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/events"
	"token-custody-lab/internal/ledger"
	"token-custody-lab/internal/liquidity"
	"token-custody-lab/internal/observability"
)

// deduction is one computed fee sub-movement.
type deduction struct {
	category domain.FeeCategory
	amount   *big.Int
	dest     domain.Address
	burn     bool
}

// Engine is the transfer engine for one token. All state-mutating entry
// points run to completion without interleaving; the surrounding caller
// serializes invocations.
type Engine struct {
	token     domain.Address
	authority domain.Address
	cfg       domain.TokenConfig

	book *ledger.Ledger

	// feeCustody accumulates liquidity-routed fees until the threshold
	// triggers conversion; reflectionPool holds undistributed reflections.
	feeCustody     domain.Address
	reflectionPool domain.Address

	exempt    map[domain.Address]struct{}
	blacklist map[domain.Address]struct{}

	tradingEnabled bool
	autoLiquidity  bool
	liq            *liquidity.SubEngine

	reflections *reflectionTracker

	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates a transfer engine for the given token. The authority
// address holds the configuration capability and starts fee-exempt, as do
// the engine's own custody addresses and the configured fee wallets.
func NewEngine(token, authority domain.Address, cfg domain.TokenConfig) (*Engine, error) {
	if token.IsZero() || authority.IsZero() {
		return nil, ErrInvalidAddress
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("token config: %w", err)
	}
	if err := validateFeeWallets(cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		token:          token,
		authority:      authority,
		cfg:            cfg,
		book:           ledger.New(cfg.MaxSupply),
		feeCustody:     domain.DeriveCustodyAddress("fee-custody", string(token)),
		reflectionPool: domain.DeriveCustodyAddress("reflection-pool", string(token)),
		exempt:         make(map[domain.Address]struct{}),
		blacklist:      make(map[domain.Address]struct{}),
		reflections:    newReflectionTracker(),
		emitter:        events.NoopEmitter{},
		nowFn:          func() int64 { return time.Now().UnixMilli() },
	}

	for _, addr := range []domain.Address{
		authority, e.feeCustody, e.reflectionPool,
		cfg.TaxWallet, cfg.MarketingWallet, cfg.LiquidityWallet,
	} {
		if !addr.IsZero() {
			e.exempt[addr] = struct{}{}
		}
	}
	return e, nil
}

// SetEmitter configures the journal emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
	} else {
		e.emitter = emitter
	}
	if e.liq != nil {
		e.liq.SetEmitter(e.emitter)
	}
}

// SetNowFunc overrides the event clock for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now != nil {
		e.nowFn = now
	}
	if e.liq != nil && now != nil {
		e.liq.SetNowFunc(now)
	}
}

// AttachLiquidity wires the exchange peer and enables the auto-liquidity
// trigger. Requires a configured pair address.
func (e *Engine) AttachLiquidity(peer liquidity.Peer) error {
	if e.cfg.Pair.IsZero() {
		return fmt.Errorf("%w: pair address required for auto-liquidity", ErrInvalidAddress)
	}
	e.liq = liquidity.NewSubEngine(peer, e.book, e.token, e.feeCustody, e.cfg.Pair)
	e.liq.SetEmitter(e.emitter)
	e.liq.SetNowFunc(e.nowFn)
	e.autoLiquidity = true
	return nil
}

// Token returns the token address this engine serves.
func (e *Engine) Token() domain.Address { return e.token }

// Authority returns the configuration capability holder.
func (e *Engine) Authority() domain.Address { return e.authority }

// Config returns a copy of the current configuration.
func (e *Engine) Config() domain.TokenConfig { return e.cfg }

// Book exposes the balance book for read-side reconciliation.
func (e *Engine) Book() *ledger.Ledger { return e.book }

// FeeCustody returns the liquidity fee accumulation address.
func (e *Engine) FeeCustody() domain.Address { return e.feeCustody }

// ReflectionPool returns the reflection pool address.
func (e *Engine) ReflectionPool() domain.Address { return e.reflectionPool }

// BalanceOf returns a holder's balance.
func (e *Engine) BalanceOf(addr domain.Address) *big.Int { return e.book.BalanceOf(addr) }

// TotalSupply returns the current total supply.
func (e *Engine) TotalSupply() *big.Int { return e.book.TotalSupply() }

// Move applies one balance movement. A zero from is a mint, a zero to is
// a burn; both bypass fee logic but keep supply and balance checks.
// Self-transfers between non-exempt parties are still taxed.
func (e *Engine) Move(ctx context.Context, from, to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if from.IsZero() && to.IsZero() {
		return ErrInvalidAddress
	}
	if from.IsZero() {
		return e.mint(to, amount)
	}
	if to.IsZero() {
		return e.burn(from, amount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	if e.isBlacklisted(from) || e.isBlacklisted(to) {
		return ErrAddressBlocked
	}

	exemptFrom := e.isExempt(from)
	exemptTo := e.isExempt(to)

	if !e.tradingEnabled && !exemptFrom && !exemptTo {
		return ErrTradingDisabled
	}

	limits := e.cfg.Limits
	if limits.MaxTransactionAmount != nil && limits.MaxTransactionAmount.Sign() > 0 &&
		!exemptFrom && !exemptTo && amount.Cmp(limits.MaxTransactionAmount) > 0 {
		return fmt.Errorf("%w: amount %s above max transaction %s",
			ErrLimitExceeded, amount, limits.MaxTransactionAmount)
	}
	if limits.MaxWalletAmount != nil && limits.MaxWalletAmount.Sign() > 0 && !exemptTo {
		post := new(big.Int).Add(e.book.BalanceOf(to), amount)
		if post.Cmp(limits.MaxWalletAmount) > 0 {
			return fmt.Errorf("%w: wallet would hold %s above max wallet %s",
				ErrLimitExceeded, post, limits.MaxWalletAmount)
		}
	}

	var deductions []deduction
	net := new(big.Int).Set(amount)
	if !exemptFrom && !exemptTo {
		var err error
		deductions, net, err = e.computeDeductions(from, to, amount)
		if err != nil {
			return err
		}
	}

	if e.book.BalanceOf(from).Cmp(amount) < 0 {
		return ledger.ErrInsufficientBalance
	}

	// All validation has passed; the liquidity side effect may run now.
	// From here on nothing can fail: the sender covers the full amount
	// and every sub-movement below draws from it.
	e.maybeProvideLiquidity(ctx, from)

	now := e.nowFn()
	for _, d := range deductions {
		if d.burn {
			if err := e.applyBurn(from, d.amount); err != nil {
				return err
			}
		} else {
			if err := e.applyMove(from, d.dest, d.amount); err != nil {
				return err
			}
		}
		if d.category == domain.FeeReflection {
			e.reflections.distribute(d.amount, e.book.TotalSupply())
		}
		e.emitter.Emit(domain.Event{
			Kind:      domain.EventFee,
			Token:     e.token,
			From:      from,
			To:        d.dest,
			Amount:    d.amount.String(),
			Category:  string(d.category),
			Timestamp: now,
		})
	}

	if err := e.applyMove(from, to, net); err != nil {
		return err
	}
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventTransfer,
		Token:     e.token,
		From:      from,
		To:        to,
		Amount:    net.String(),
		Before:    amount.String(),
		After:     e.book.BalanceOf(to).String(),
		Timestamp: now,
	})
	return nil
}

// Mint creates new supply for to. Equivalent to Move from the zero sentinel.
func (e *Engine) Mint(to domain.Address, amount *big.Int) error {
	if to.IsZero() {
		return ErrInvalidAddress
	}
	return e.mint(to, amount)
}

// Burn destroys supply held by from. Equivalent to Move to the zero sentinel.
func (e *Engine) Burn(from domain.Address, amount *big.Int) error {
	if from.IsZero() {
		return ErrInvalidAddress
	}
	return e.burn(from, amount)
}

// Withdrawable returns the holder's claimable reflection amount.
func (e *Engine) Withdrawable(addr domain.Address) *big.Int {
	w := e.reflections.withdrawable(addr, e.book.BalanceOf(addr))
	if pool := e.book.BalanceOf(e.reflectionPool); w.Cmp(pool) > 0 {
		return pool
	}
	return w
}

// ClaimReflections pays out the caller's accrued reflections from the
// pool. Bookkeeping is updated before value moves out.
func (e *Engine) ClaimReflections(caller domain.Address) (*big.Int, error) {
	if caller.IsZero() {
		return nil, ErrInvalidAddress
	}
	if e.isBlacklisted(caller) {
		return nil, ErrAddressBlocked
	}
	amount := e.Withdrawable(caller)
	if amount.Sign() == 0 {
		return nil, ErrNothingToClaim
	}

	e.reflections.recordWithdraw(caller, amount)
	if err := e.applyMove(e.reflectionPool, caller, amount); err != nil {
		return nil, err
	}
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventReflectionClaimed,
		Token:     e.token,
		From:      e.reflectionPool,
		To:        caller,
		Amount:    amount.String(),
		Timestamp: e.nowFn(),
	})
	return amount, nil
}

func (e *Engine) mint(to domain.Address, amount *big.Int) error {
	before := e.book.TotalSupply()
	if err := e.book.Mint(to, amount); err != nil {
		return err
	}
	e.reflections.onBalanceChange(to, amount)
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventMint,
		Token:     e.token,
		To:        to,
		Amount:    amount.String(),
		Before:    before.String(),
		After:     e.book.TotalSupply().String(),
		Timestamp: e.nowFn(),
	})
	return nil
}

func (e *Engine) burn(from domain.Address, amount *big.Int) error {
	before := e.book.TotalSupply()
	if err := e.applyBurn(from, amount); err != nil {
		return err
	}
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventBurn,
		Token:     e.token,
		From:      from,
		Amount:    amount.String(),
		Before:    before.String(),
		After:     e.book.TotalSupply().String(),
		Timestamp: e.nowFn(),
	})
	return nil
}

// maybeProvideLiquidity invokes the sub-engine when the trigger conditions
// hold. Peer failures abort the liquidity step only; the enclosing
// transfer proceeds and the next threshold breach retries organically.
func (e *Engine) maybeProvideLiquidity(ctx context.Context, from domain.Address) {
	if !e.autoLiquidity || e.liq == nil || e.liq.InFlight() || from == e.cfg.Pair {
		return
	}
	threshold := e.cfg.Limits.LiquidityThreshold
	if threshold == nil || threshold.Sign() <= 0 {
		return
	}
	if e.book.BalanceOf(e.feeCustody).Cmp(threshold) < 0 {
		return
	}
	provided, err := e.liq.TryProvide(ctx, threshold)
	if err != nil {
		observability.DefaultMetrics.LiquidityPeerErrors.Inc()
		return
	}
	if provided.Sign() > 0 {
		observability.DefaultMetrics.LiquidityProvisions.Inc()
		e.reflections.onBalanceChange(e.feeCustody, new(big.Int).Neg(provided))
		e.reflections.onBalanceChange(e.cfg.Pair, provided)
	}
}

// computeDeductions derives the fee sub-movements for a taxed transfer,
// in the fixed emission order, and returns the net remainder.
func (e *Engine) computeDeductions(from, to domain.Address, amount *big.Int) ([]deduction, *big.Int, error) {
	fees := e.cfg.Fees
	rate := fees.DirectionalRate(from == e.cfg.Pair && !e.cfg.Pair.IsZero(),
		to == e.cfg.Pair && !e.cfg.Pair.IsZero())

	parts := []struct {
		category domain.FeeCategory
		rateBps  int64
		dest     domain.Address
		burn     bool
	}{
		{domain.FeeTax, rate, e.cfg.TaxWallet, false},
		{domain.FeeMarketing, fees.MarketingRateBps, e.cfg.MarketingWallet, false},
		{domain.FeeLiquidity, fees.LiquidityRateBps, e.feeCustody, false},
		{domain.FeeBurn, fees.BurnRateBps, domain.ZeroAddress, true},
		{domain.FeeReflection, fees.ReflectionRateBps, e.reflectionPool, false},
	}

	var deductions []deduction
	total := big.NewInt(0)
	for _, p := range parts {
		if p.rateBps <= 0 {
			continue
		}
		cut := new(big.Int).Mul(amount, big.NewInt(p.rateBps))
		cut.Quo(cut, big.NewInt(domain.BpsBase))
		if cut.Sign() == 0 {
			continue
		}
		total.Add(total, cut)
		deductions = append(deductions, deduction{
			category: p.category,
			amount:   cut,
			dest:     p.dest,
			burn:     p.burn,
		})
	}
	if total.Cmp(amount) > 0 {
		return nil, nil, ErrDeductionOverflow
	}
	return deductions, new(big.Int).Sub(amount, total), nil
}

// applyMove routes all balance credits/debits through the reflection
// tracker so per-holder corrections stay exact.
func (e *Engine) applyMove(from, to domain.Address, amount *big.Int) error {
	if err := e.book.Move(from, to, amount); err != nil {
		return err
	}
	e.reflections.onBalanceChange(from, new(big.Int).Neg(amount))
	e.reflections.onBalanceChange(to, amount)
	return nil
}

func (e *Engine) applyBurn(from domain.Address, amount *big.Int) error {
	if err := e.book.Burn(from, amount); err != nil {
		return err
	}
	e.reflections.onBalanceChange(from, new(big.Int).Neg(amount))
	return nil
}

func (e *Engine) isExempt(addr domain.Address) bool {
	_, ok := e.exempt[addr]
	return ok
}

func (e *Engine) isBlacklisted(addr domain.Address) bool {
	_, ok := e.blacklist[addr]
	return ok
}

// validateFeeWallets requires a destination wallet for every externally
// routed nonzero rate.
func validateFeeWallets(cfg domain.TokenConfig) error {
	taxed := cfg.Fees.BuyRateBps > 0 || cfg.Fees.SellRateBps > 0 || cfg.Fees.TransferRateBps > 0
	if taxed && cfg.TaxWallet.IsZero() {
		return fmt.Errorf("%w: tax wallet required for nonzero tax rates", ErrInvalidAddress)
	}
	if cfg.Fees.MarketingRateBps > 0 && cfg.MarketingWallet.IsZero() {
		return fmt.Errorf("%w: marketing wallet required for nonzero marketing rate", ErrInvalidAddress)
	}
	return nil
}
