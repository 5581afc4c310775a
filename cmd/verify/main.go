// Package main replays the archived custody journal and reports
// divergences: broken seq ordering, malformed amounts, conservation
// violations and fee aggregation drift.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"token-custody-lab/internal/domain"
	chstore "token-custody-lab/internal/storage/clickhouse"
	pgstore "token-custody-lab/internal/storage/postgres"
	"token-custody-lab/internal/verification"
)

func main() {
	tokenAddr := flag.String("token", "", "Verify a single token (default: all registered tokens)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[verify] ", log.LstdFlags)

	if *clickhouseDSN == "" {
		logger.Fatal("--clickhouse-dsn is required")
	}
	if *tokenAddr == "" && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required to enumerate tokens (or pass --token)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	chConn, err := chstore.NewConn(ctx, *clickhouseDSN)
	if err != nil {
		logger.Fatalf("connect to clickhouse: %v", err)
	}
	defer chConn.Close()

	opts := verification.ReplayVerifierOptions{
		EventStore: chstore.NewEventStore(chConn),
	}

	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()
		opts.TokenStore = pgstore.NewTokenStore(pool)
	}

	verifier := verification.NewReplayVerifier(opts)

	var report *verification.Report
	if *tokenAddr != "" {
		result, err := verifier.VerifyToken(ctx, domain.Address(*tokenAddr))
		if err != nil {
			logger.Fatalf("verify %s: %v", *tokenAddr, err)
		}
		report = &verification.Report{
			TotalTokens: 1,
			Results:     []verification.TokenResult{*result},
		}
		if result.Match {
			report.MatchedTokens = 1
		} else {
			report.DivergentTokens = 1
		}
	} else {
		report, err = verifier.VerifyAll(ctx)
		if err != nil {
			logger.Fatalf("verify all: %v", err)
		}
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
	} else {
		printReport(report)
	}

	if report.DivergentTokens > 0 {
		os.Exit(1)
	}
}

func printReport(report *verification.Report) {
	fmt.Printf("\n=== Verification Report ===\n")
	fmt.Printf("Tokens Verified:   %d\n", report.TotalTokens)
	fmt.Printf("Matched:           %d\n", report.MatchedTokens)
	fmt.Printf("Divergent:         %d\n", report.DivergentTokens)

	for _, result := range report.Results {
		fmt.Printf("\nToken %s: %d events, replayed supply %s\n",
			result.Token, result.EventCount, result.ReplayedSupply)
		if result.Match {
			fmt.Println("  OK")
			continue
		}
		for _, d := range result.Divergences {
			fmt.Printf("  DIVERGED %s: expected %v, got %v\n", d.Field, d.Expected, d.Actual)
		}
	}
}
