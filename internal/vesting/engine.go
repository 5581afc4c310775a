// Package vesting implements the time-gated grant custodian. Grants are
// created by a depositor who funds the full amount up front; value trickles
// out to the beneficiary in whole slices after a cliff, and revocable grants
// can be cut short with the unvested remainder returned to the creator.
package vesting

import (
	"fmt"
	"log"
	"math/big"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/events"
	"token-custody-lab/internal/idhash"
	"token-custody-lab/internal/ledger"
)

// Engine custodies vesting grants over the shared multi-token bank.
// Schedules are never deleted; revocation is a one-way flag.
type Engine struct {
	bank    *ledger.Bank
	custody domain.Address

	schedules     map[string]*domain.VestingSchedule
	byBeneficiary map[domain.Address][]string
	sequence      uint64

	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates the vesting custodian over the given bank.
func NewEngine(bank *ledger.Bank) *Engine {
	return &Engine{
		bank:          bank,
		custody:       domain.DeriveCustodyAddress("vesting-custody"),
		schedules:     make(map[string]*domain.VestingSchedule),
		byBeneficiary: make(map[domain.Address][]string),
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().UnixMilli() },
	}
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

// Custody returns the address holding all unreleased grant value.
func (e *Engine) Custody() domain.Address { return e.custody }

// Restore reloads archived schedules after a restart and advances the
// creation sequence past them so restored grants never collide with new
// ids. Balances are not touched; the bank is assumed restored separately.
func (e *Engine) Restore(schedules []*domain.VestingSchedule) {
	for _, s := range schedules {
		if s == nil || s.ScheduleID == "" {
			continue
		}
		if _, exists := e.schedules[s.ScheduleID]; exists {
			continue
		}
		c := s.Clone()
		e.schedules[c.ScheduleID] = c
		e.byBeneficiary[c.Beneficiary] = append(e.byBeneficiary[c.Beneficiary], c.ScheduleID)
		e.sequence++
	}
}

// CreateParams carries the caller-supplied grant parameters.
type CreateParams struct {
	Beneficiary domain.Address
	Token       domain.Address

	TotalAmount *big.Int

	StartTime       int64 // Unix seconds; zero means "start now"
	CliffSeconds    int64
	DurationSeconds int64
	SliceSeconds    int64

	Revocable   bool
	Description string
}

// CreateSchedule pulls TotalAmount from creator into custody and records
// the grant. The schedule id is content-derived and collision-free across
// otherwise identical grants.
func (e *Engine) CreateSchedule(creator domain.Address, p CreateParams) (*domain.VestingSchedule, error) {
	if creator.IsZero() || p.Beneficiary.IsZero() || p.Token.IsZero() {
		return nil, ErrInvalidAddress
	}
	if p.TotalAmount == nil || p.TotalAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if p.DurationSeconds <= 0 || p.DurationSeconds < p.CliffSeconds {
		return nil, ErrInvalidDuration
	}
	if p.SliceSeconds < 1 {
		return nil, ErrInvalidSlice
	}
	if p.StartTime < 0 {
		return nil, ErrInvalidStart
	}

	now := e.nowFn()
	start := p.StartTime
	if start == 0 {
		start = now / 1000
	}

	if err := e.bank.Transfer(p.Token, creator, e.custody, p.TotalAmount); err != nil {
		return nil, fmt.Errorf("funding grant: %w", err)
	}

	e.sequence++
	id := idhash.ComputeScheduleID(p.Beneficiary, p.Token, p.TotalAmount, start, e.sequence)

	s := &domain.VestingSchedule{
		ScheduleID:      id,
		Creator:         creator,
		Beneficiary:     p.Beneficiary,
		Token:           p.Token,
		TotalAmount:     new(big.Int).Set(p.TotalAmount),
		ReleasedAmount:  big.NewInt(0),
		StartTime:       start,
		CliffSeconds:    p.CliffSeconds,
		DurationSeconds: p.DurationSeconds,
		SliceSeconds:    p.SliceSeconds,
		Revocable:       p.Revocable,
		Description:     p.Description,
		CreatedAt:       now,
	}
	e.schedules[id] = s
	e.byBeneficiary[p.Beneficiary] = append(e.byBeneficiary[p.Beneficiary], id)

	log.Printf("[vesting] schedule %s created: %s -> %s amount=%s", shortID(id), creator, p.Beneficiary, p.TotalAmount)
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventScheduleCreated,
		Token:     p.Token,
		RefID:     id,
		From:      creator,
		To:        p.Beneficiary,
		Amount:    p.TotalAmount.String(),
		Timestamp: now,
	})
	return s.Clone(), nil
}

// Schedule returns a copy of the schedule, or ErrScheduleNotFound.
func (e *Engine) Schedule(id string) (*domain.VestingSchedule, error) {
	s, ok := e.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return s.Clone(), nil
}

// SchedulesFor returns copies of all schedules granted to a beneficiary.
func (e *Engine) SchedulesFor(beneficiary domain.Address) []*domain.VestingSchedule {
	ids := e.byBeneficiary[beneficiary]
	out := make([]*domain.VestingSchedule, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.schedules[id].Clone())
	}
	return out
}

// Releasable returns the amount claimable right now.
func (e *Engine) Releasable(id string) (*big.Int, error) {
	s, ok := e.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	if s.Revoked {
		return big.NewInt(0), nil
	}
	return releasableAt(s, e.nowFn()/1000), nil
}

// releasableAt computes the claimable amount at Unix second t. Vesting
// advances in whole slices only; partial slices release nothing.
func releasableAt(s *domain.VestingSchedule, t int64) *big.Int {
	if t < s.StartTime+s.CliffSeconds {
		return big.NewInt(0)
	}
	if t >= s.StartTime+s.DurationSeconds {
		return s.Remaining()
	}

	elapsedSlices := (t - s.StartTime) / s.SliceSeconds
	vestedSeconds := elapsedSlices * s.SliceSeconds

	vested := new(big.Int).Mul(s.TotalAmount, big.NewInt(vestedSeconds))
	vested.Quo(vested, big.NewInt(s.DurationSeconds))

	releasable := vested.Sub(vested, s.ReleasedAmount)
	if releasable.Sign() < 0 {
		return big.NewInt(0)
	}
	return releasable
}

// Release pays the currently releasable amount to the beneficiary.
// Bookkeeping is updated before value leaves custody.
func (e *Engine) Release(caller domain.Address, id string) (*big.Int, error) {
	s, ok := e.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	if caller != s.Beneficiary {
		return nil, ErrNotAuthorized
	}
	if s.Revoked {
		return nil, ErrScheduleRevoked
	}

	amount := releasableAt(s, e.nowFn()/1000)
	if amount.Sign() == 0 {
		return nil, ErrNothingReleasable
	}

	s.ReleasedAmount.Add(s.ReleasedAmount, amount)
	if err := e.bank.Transfer(s.Token, e.custody, s.Beneficiary, amount); err != nil {
		s.ReleasedAmount.Sub(s.ReleasedAmount, amount)
		return nil, fmt.Errorf("paying out release: %w", err)
	}

	log.Printf("[vesting] schedule %s released %s to %s", shortID(id), amount, s.Beneficiary)
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventScheduleReleased,
		Token:     s.Token,
		RefID:     id,
		From:      e.custody,
		To:        s.Beneficiary,
		Amount:    amount.String(),
		After:     s.ReleasedAmount.String(),
		Timestamp: e.nowFn(),
	})
	return amount, nil
}

// Revoke cuts a revocable grant short: any currently releasable amount is
// paid to the beneficiary first, then the unvested remainder is swept back
// to the creator. One-way; there is no un-revoke.
func (e *Engine) Revoke(caller domain.Address, id string) error {
	s, ok := e.schedules[id]
	if !ok {
		return ErrScheduleNotFound
	}
	if caller != s.Creator {
		return ErrNotAuthorized
	}
	if !s.Revocable {
		return ErrNotRevocable
	}
	if s.Revoked {
		return ErrScheduleRevoked
	}

	now := e.nowFn()
	vested := releasableAt(s, now/1000)
	if vested.Sign() > 0 {
		s.ReleasedAmount.Add(s.ReleasedAmount, vested)
		if err := e.bank.Transfer(s.Token, e.custody, s.Beneficiary, vested); err != nil {
			s.ReleasedAmount.Sub(s.ReleasedAmount, vested)
			return fmt.Errorf("paying out vested remainder: %w", err)
		}
		// The vested leg is a regular release as far as the event log is
		// concerned; the revoke event covers only the sweep.
		e.emitter.Emit(domain.Event{
			Kind:      domain.EventScheduleReleased,
			Token:     s.Token,
			RefID:     id,
			From:      e.custody,
			To:        s.Beneficiary,
			Amount:    vested.String(),
			After:     s.ReleasedAmount.String(),
			Timestamp: now,
		})
	}

	remainder := s.Remaining()
	if remainder.Sign() > 0 {
		if err := e.bank.Transfer(s.Token, e.custody, s.Creator, remainder); err != nil {
			return fmt.Errorf("sweeping unvested remainder: %w", err)
		}
	}
	s.Revoked = true

	log.Printf("[vesting] schedule %s revoked: %s vested to %s, %s swept to %s",
		shortID(id), vested, s.Beneficiary, remainder, s.Creator)
	e.emitter.Emit(domain.Event{
		Kind:      domain.EventScheduleRevoked,
		Token:     s.Token,
		RefID:     id,
		From:      e.custody,
		To:        s.Creator,
		Amount:    remainder.String(),
		Before:    vested.String(),
		After:     s.ReleasedAmount.String(),
		Timestamp: now,
	})
	return nil
}

// LockedBalance returns the custody balance for a token, which must always
// cover the sum of unreleased amounts across unrevoked schedules.
func (e *Engine) LockedBalance(token domain.Address) *big.Int {
	return e.bank.BalanceOf(token, e.custody)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
