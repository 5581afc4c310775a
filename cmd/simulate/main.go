// Package main runs a scripted end-to-end custody scenario entirely in
// memory: a dividend-style token trades against a stub exchange peer while
// vesting grants and escrow locks custody value over a warped clock, every
// event is archived, and the archive is replay-verified at the end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/escrow"
	"token-custody-lab/internal/events"
	"token-custody-lab/internal/indexer"
	"token-custody-lab/internal/ledger"
	"token-custody-lab/internal/liquidity/stub"
	"token-custody-lab/internal/storage/memory"
	"token-custody-lab/internal/token"
	"token-custody-lab/internal/verification"
	"token-custody-lab/internal/vesting"
)

const (
	tokenAddr = domain.Address("SIM-TOKEN")
	authority = domain.Address("sim-authority")
	pairAddr  = domain.Address("sim-pair")
	taxWallet = domain.Address("sim-tax-wallet")
	mkWallet  = domain.Address("sim-marketing-wallet")
	alice     = domain.Address("sim-alice")
	bob       = domain.Address("sim-bob")
	carol     = domain.Address("sim-carol")
)

func main() {
	transfers := flag.Int("transfers", 50, "Number of simulated transfers")
	flag.Parse()

	logger := log.New(os.Stdout, "[simulate] ", log.LstdFlags)
	ctx := context.Background()

	// Warped clock: one simulated day per scripted step.
	clock := int64(1_700_000_000) // Unix seconds
	nowFn := func() int64 { return clock * 1000 }
	tick := func(seconds int64) { clock += seconds }

	journal := events.NewJournal()

	cfg := domain.TokenConfig{
		Name:            "Simulated Dividend Token",
		Symbol:          "SIM",
		Decimals:        9,
		TaxWallet:       taxWallet,
		MarketingWallet: mkWallet,
		Pair:            pairAddr,
		Fees:            domain.FeePresetDividend,
		Limits: domain.LimitConfig{
			LiquidityThreshold: big.NewInt(5_000),
		},
	}
	engine, err := token.NewEngine(tokenAddr, authority, cfg)
	if err != nil {
		logger.Fatalf("NewEngine: %v", err)
	}
	engine.SetEmitter(journal)
	engine.SetNowFunc(nowFn)
	if err := engine.AttachLiquidity(stub.NewPeer()); err != nil {
		logger.Fatalf("AttachLiquidity: %v", err)
	}
	if err := engine.SetTradingEnabled(authority, true); err != nil {
		logger.Fatalf("SetTradingEnabled: %v", err)
	}

	bank := ledger.NewBank()
	bank.Register(tokenAddr, engine.Book())

	vestingEngine := vesting.NewEngine(bank)
	vestingEngine.SetEmitter(journal)
	vestingEngine.SetNowFunc(nowFn)

	escrowEngine, err := escrow.NewEngine(bank, escrow.Config{Admin: authority})
	if err != nil {
		logger.Fatalf("escrow.NewEngine: %v", err)
	}
	escrowEngine.SetEmitter(journal)
	escrowEngine.SetNowFunc(nowFn)

	// Fund the cast.
	for _, holder := range []domain.Address{alice, bob, carol, pairAddr} {
		if err := engine.Mint(holder, big.NewInt(1_000_000)); err != nil {
			logger.Fatalf("Mint %s: %v", holder, err)
		}
	}

	// Trading day: a round-robin of buys, sells and plain transfers.
	parties := []domain.Address{alice, bob, carol, pairAddr}
	for i := 0; i < *transfers; i++ {
		from := parties[i%len(parties)]
		to := parties[(i+1)%len(parties)]
		amount := big.NewInt(int64(500 + 137*i))
		if err := engine.Move(ctx, from, to, amount); err != nil {
			logger.Fatalf("Move %d (%s -> %s): %v", i, from, to, err)
		}
		tick(3600)
	}

	// A revocable grant for bob: half a simulated year, weekly slices.
	grant, err := vestingEngine.CreateSchedule(alice, vesting.CreateParams{
		Beneficiary:     bob,
		Token:           tokenAddr,
		TotalAmount:     big.NewInt(100_000),
		CliffSeconds:    7 * 86400,
		DurationSeconds: 180 * 86400,
		SliceSeconds:    7 * 86400,
		Revocable:       true,
		Description:     "simulated team grant",
	})
	if err != nil {
		logger.Fatalf("CreateSchedule: %v", err)
	}

	tick(30 * 86400)
	released, err := vestingEngine.Release(bob, grant.ScheduleID)
	if err != nil {
		logger.Fatalf("Release: %v", err)
	}
	logger.Printf("Released %s after 30 simulated days", released)

	tick(60 * 86400)
	if err := vestingEngine.Revoke(alice, grant.ScheduleID); err != nil {
		logger.Fatalf("Revoke: %v", err)
	}
	logger.Println("Revoked the grant after 90 simulated days")

	// Escrow: carol locks value for a week, then collects.
	lock, err := escrowEngine.Lock(carol, tokenAddr, big.NewInt(25_000), clock+7*86400, "simulated treasury lock")
	if err != nil {
		logger.Fatalf("Lock: %v", err)
	}
	tick(7 * 86400)
	if _, err := escrowEngine.Unlock(carol, lock.LockID); err != nil {
		logger.Fatalf("Unlock: %v", err)
	}

	// Reflection payday.
	for _, holder := range []domain.Address{alice, bob, carol} {
		claimed, err := engine.ClaimReflections(holder)
		if err != nil {
			logger.Printf("%s claims nothing: %v", holder, err)
			continue
		}
		logger.Printf("%s claimed %s reflections", holder, claimed)
	}

	// Archive the journal and replay-verify it.
	store := memory.NewEventStore()
	runner := indexer.NewRunner(indexer.RunnerOptions{
		Journal:       journal,
		Store:         store,
		FlushInterval: 50 * time.Millisecond,
	})
	runCtx, cancelRun := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- runner.Run(runCtx) }()
	for runner.LastSeq() < uint64(journal.Len()) {
		time.Sleep(10 * time.Millisecond)
	}
	cancelRun()
	<-done

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		EventStore: store,
		Books:      map[domain.Address]verification.Book{tokenAddr: engine.Book()},
	})
	result, err := verifier.VerifyToken(ctx, tokenAddr)
	if err != nil {
		logger.Fatalf("VerifyToken: %v", err)
	}

	fmt.Printf("\n=== Simulation Summary ===\n")
	fmt.Printf("Journal Events:    %d\n", journal.Len())
	fmt.Printf("Total Supply:      %s\n", engine.TotalSupply())
	fmt.Printf("Fee Custody:       %s\n", engine.BalanceOf(engine.FeeCustody()))
	fmt.Printf("Reflection Pool:   %s\n", engine.BalanceOf(engine.ReflectionPool()))
	fmt.Printf("Tax Wallet:        %s\n", engine.BalanceOf(taxWallet))
	fmt.Printf("Replay:            %d events, supply %s\n", result.EventCount, result.ReplayedSupply)
	if result.Match {
		fmt.Println("Verification:      OK")
		return
	}
	fmt.Println("Verification:      DIVERGED")
	for _, d := range result.Divergences {
		fmt.Printf("  %s: expected %v, got %v\n", d.Field, d.Expected, d.Actual)
	}
	os.Exit(1)
}
