// Package main provides the unified custody service:
// - Transfer engines (per token): fee routing, limits, reflections
// - Vesting and escrow custodians over a shared bank
// - Journal indexer (continuous): archives events to ClickHouse
// - HTTP API, WebSocket event feed, Prometheus metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/escrow"
	"token-custody-lab/internal/events"
	"token-custody-lab/internal/feed"
	"token-custody-lab/internal/indexer"
	"token-custody-lab/internal/ledger"
	"token-custody-lab/internal/observability"
	"token-custody-lab/internal/storage"
	chstore "token-custody-lab/internal/storage/clickhouse"
	"token-custody-lab/internal/storage/memory"
	pgstore "token-custody-lab/internal/storage/postgres"
	"token-custody-lab/internal/token"
	"token-custody-lab/internal/verification"
	"token-custody-lab/internal/vesting"
)

// Server holds all components of the custody service.
type Server struct {
	// Configuration
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool
	escrowConfig  escrow.Config

	// Stores
	stores *allStores

	// Components
	journal  *events.Journal
	bank     *ledger.Bank
	vesting  *vesting.Engine
	escrow   *escrow.Engine
	verifier *verification.ReplayVerifier
	logger   *log.Logger

	// Per-token transfer engines, deployed at runtime.
	mu      sync.RWMutex
	engines map[domain.Address]*token.Engine

	// stateMu serializes engine invocations across request goroutines.
	// The engines are single-writer: mutating routes hold the write
	// lock, read routes the read lock.
	stateMu sync.RWMutex

	started time.Time
}

// allStores holds all storage implementations.
type allStores struct {
	scheduleStore storage.ScheduleStore
	lockStore     storage.LockStore
	tokenStore    storage.TokenStore
	eventStore    storage.EventStore
}

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	listenAddr := flag.String("listen-addr", ":8080", "HTTP API listen address")
	escrowAdmin := flag.String("escrow-admin", os.Getenv("ESCROW_ADMIN"), "Escrow admin address")
	escrowFeeToken := flag.String("escrow-fee-token", os.Getenv("ESCROW_FEE_TOKEN"), "Token the escrow creation fee is charged in")
	escrowFeeAmount := flag.String("escrow-fee-amount", os.Getenv("ESCROW_FEE_AMOUNT"), "Escrow creation fee amount (decimal, empty disables)")
	escrowFeeReceiver := flag.String("escrow-fee-receiver", os.Getenv("ESCROW_FEE_RECEIVER"), "Address receiving escrow creation fees")
	indexerBatch := flag.Int("indexer-batch", 100, "Indexer events per flush")
	indexerFlush := flag.Duration("indexer-flush", 2*time.Second, "Indexer flush interval")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}
	if *escrowAdmin == "" {
		logger.Fatal("--escrow-admin is required")
	}

	escrowCfg := escrow.Config{
		Admin:       domain.Address(*escrowAdmin),
		FeeToken:    domain.Address(*escrowFeeToken),
		FeeReceiver: domain.Address(*escrowFeeReceiver),
	}
	if *escrowFeeAmount != "" {
		amount, err := parseAmount(*escrowFeeAmount)
		if err != nil {
			logger.Fatalf("Bad --escrow-fee-amount: %v", err)
		}
		escrowCfg.FeeAmount = amount
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	server, err := newServer(ctx, stores, escrowCfg, logger)
	if err != nil {
		logger.Fatalf("Failed to build server: %v", err)
	}
	server.postgresDSN = *postgresDSN
	server.clickhouseDSN = *clickhouseDSN
	server.useMemory = *useMemory

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	// Indexer tails the journal into the event archive.
	indexerRunner := indexer.NewRunner(indexer.RunnerOptions{
		Journal:       server.journal,
		Store:         stores.eventStore,
		BatchSize:     *indexerBatch,
		FlushInterval: *indexerFlush,
		Logger:        log.New(os.Stdout, "[indexer] ", log.LstdFlags),
	})
	go func() {
		if err := indexerRunner.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("Indexer error: %v", err)
		}
	}()

	err = server.serveHTTP(ctx, *listenAddr)
	done <- err
	cancel()

	if err != nil && err != context.Canceled && err != http.ErrServerClosed {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// newServer wires the engines over a fresh journal and restores archived
// vesting and escrow state.
func newServer(ctx context.Context, stores *allStores, escrowCfg escrow.Config, logger *log.Logger) (*Server, error) {
	journal := events.NewJournal()
	bank := ledger.NewBank()

	vestingEngine := vesting.NewEngine(bank)
	vestingEngine.SetEmitter(journal)

	escrowEngine, err := escrow.NewEngine(bank, escrowCfg)
	if err != nil {
		return nil, fmt.Errorf("escrow config: %w", err)
	}
	escrowEngine.SetEmitter(journal)

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		EventStore: stores.eventStore,
		TokenStore: stores.tokenStore,
	})

	s := &Server{
		escrowConfig: escrowCfg,
		stores:       stores,
		journal:      journal,
		bank:         bank,
		vesting:      vestingEngine,
		escrow:       escrowEngine,
		verifier:     verifier,
		logger:       logger,
		engines:      make(map[domain.Address]*token.Engine),
		started:      time.Now(),
	}

	if err := s.restore(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// restore reloads archived token, schedule and lock records. Transfer
// engines come back with their persisted identity; fee and limit settings
// are re-applied by the authority through the admin API.
func (s *Server) restore(ctx context.Context) error {
	records, err := s.stores.tokenStore.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("loading token records: %w", err)
	}
	for _, r := range records {
		cfg := domain.TokenConfig{
			Name:     r.Name,
			Symbol:   r.Symbol,
			Decimals: r.Decimals,
			Pair:     r.Pair,
		}
		engine, err := token.NewEngine(r.Token, r.Authority, cfg)
		if err != nil {
			return fmt.Errorf("restoring token %s: %w", r.Token, err)
		}
		engine.SetEmitter(s.journal)
		s.engines[r.Token] = engine
		s.bank.Register(r.Token, engine.Book())
		s.verifier.RegisterBook(r.Token, engine.Book())
	}

	var schedules []*domain.VestingSchedule
	for _, r := range records {
		batch, err := s.stores.scheduleStore.GetByToken(ctx, r.Token)
		if err != nil {
			return fmt.Errorf("loading schedules for %s: %w", r.Token, err)
		}
		schedules = append(schedules, batch...)
	}
	s.vesting.Restore(schedules)

	var locks []*domain.EscrowLock
	for _, r := range records {
		batch, err := s.stores.lockStore.GetByToken(ctx, r.Token)
		if err != nil {
			return fmt.Errorf("loading locks for %s: %w", r.Token, err)
		}
		locks = append(locks, batch...)
	}
	s.escrow.Restore(locks)

	if len(records) > 0 {
		s.logger.Printf("Restored %d tokens, %d schedules, %d locks",
			len(records), len(schedules), len(locks))
	}
	return nil
}

// engine looks up a deployed transfer engine.
func (s *Server) engine(addr domain.Address) (*token.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[addr]
	return e, ok
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			scheduleStore: memory.NewScheduleStore(),
			lockStore:     memory.NewLockStore(),
			tokenStore:    memory.NewTokenStore(),
			eventStore:    memory.NewEventStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores := &allStores{
		// PostgreSQL stores (custody records)
		scheduleStore: pgstore.NewScheduleStore(pool),
		lockStore:     pgstore.NewLockStore(pool),
		tokenStore:    pgstore.NewTokenStore(pool),

		// ClickHouse store (event archive)
		eventStore: chstore.NewEventStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// serveHTTP runs the API until the context is cancelled.
func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.Handle("GET /ws", feed.NewHandler(s.journal, nil, s.logger))
	mux.HandleFunc("GET /status", s.handleStatus)

	s.registerAPI(mux)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("HTTP API listening on %s", addr)
	return httpServer.ListenAndServe()
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
