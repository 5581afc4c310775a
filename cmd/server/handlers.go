package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/escrow"
	"token-custody-lab/internal/ledger"
	"token-custody-lab/internal/observability"
	"token-custody-lab/internal/storage"
	"token-custody-lab/internal/token"
	"token-custody-lab/internal/verification"
	"token-custody-lab/internal/vesting"
)

// registerAPI wires the JSON endpoints. Every mutating route (POST) runs
// under the state write lock and every read route under the read lock:
// the engines require the surrounding caller to serialize invocations.
func (s *Server) registerAPI(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		locked := s.writeLocked(h)
		if strings.HasPrefix(pattern, "GET ") {
			locked = s.readLocked(h)
		}
		mux.Handle(pattern, instrument(pattern, locked))
	}

	handle("POST /api/tokens", s.handleDeployToken)
	handle("GET /api/tokens", s.handleListTokens)
	handle("GET /api/tokens/{token}", s.handleTokenInfo)
	handle("POST /api/tokens/{token}/transfer", s.handleTransfer)
	handle("POST /api/tokens/{token}/mint", s.handleMint)
	handle("POST /api/tokens/{token}/burn", s.handleBurn)
	handle("GET /api/tokens/{token}/balances/{addr}", s.handleBalance)
	handle("POST /api/tokens/{token}/reflections/claim", s.handleClaimReflections)
	handle("GET /api/tokens/{token}/fees", s.handleFeeTotals)
	handle("GET /api/tokens/{token}/verify", s.handleVerify)

	handle("POST /api/tokens/{token}/admin/fees", s.handleSetFees)
	handle("POST /api/tokens/{token}/admin/limits", s.handleSetLimits)
	handle("POST /api/tokens/{token}/admin/blacklist", s.handleSetBlacklist)
	handle("POST /api/tokens/{token}/admin/exempt", s.handleSetExempt)
	handle("POST /api/tokens/{token}/admin/trading", s.handleSetTrading)

	handle("POST /api/schedules", s.handleCreateSchedule)
	handle("GET /api/schedules", s.handleListSchedules)
	handle("GET /api/schedules/{id}", s.handleGetSchedule)
	handle("POST /api/schedules/{id}/release", s.handleRelease)
	handle("POST /api/schedules/{id}/revoke", s.handleRevoke)

	handle("POST /api/locks", s.handleCreateLock)
	handle("GET /api/locks", s.handleListLocks)
	handle("GET /api/locks/{id}", s.handleGetLock)
	handle("POST /api/locks/{id}/unlock", s.handleUnlock)
	handle("POST /api/locks/{id}/emergency-unlock", s.handleEmergencyUnlock)
	handle("POST /api/locks/{id}/extend", s.handleExtend)
	handle("POST /api/locks/{id}/transfer", s.handleTransferLock)
	handle("POST /api/locks/recover", s.handleRecover)

	handle("GET /api/events", s.handleEvents)
}

func (s *Server) writeLocked(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.stateMu.Lock()
		defer s.stateMu.Unlock()
		next(w, r)
	}
}

func (s *Server) readLocked(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.stateMu.RLock()
		defer s.stateMu.RUnlock()
		next(w, r)
	}
}

// instrument wraps a handler with request duration and error metrics.
func instrument(endpoint string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		observability.DefaultMetrics.RequestDuration.WithLabelValues(endpoint).
			Observe(time.Since(start).Seconds())
		if rec.status >= 500 {
			observability.DefaultMetrics.RequestErrors.WithLabelValues(endpoint).Inc()
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// --- request/response plumbing ---

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), errorResponse{Error: err.Error()})
}

// httpStatus maps engine sentinels to response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, token.ErrNotAuthorized),
		errors.Is(err, vesting.ErrNotAuthorized),
		errors.Is(err, escrow.ErrNotAuthorized),
		errors.Is(err, token.ErrAddressBlocked):
		return http.StatusForbidden
	case errors.Is(err, vesting.ErrScheduleNotFound),
		errors.Is(err, escrow.ErrLockNotFound),
		errors.Is(err, ledger.ErrUnknownToken),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, verification.ErrNoEvents):
		return http.StatusNotFound
	case errors.Is(err, vesting.ErrScheduleRevoked),
		errors.Is(err, escrow.ErrAlreadyClaimed),
		errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, token.ErrNothingToClaim),
		errors.Is(err, vesting.ErrNothingReleasable):
		return http.StatusConflict
	case errors.Is(err, token.ErrTradingDisabled),
		errors.Is(err, token.ErrLimitExceeded),
		errors.Is(err, escrow.ErrStillLocked),
		errors.Is(err, escrow.ErrInsufficientFee),
		errors.Is(err, escrow.ErrExceedsRecovery),
		errors.Is(err, vesting.ErrNotRevocable),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrSupplyCapExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", raw)
	}
	return v, nil
}

func parseOptionalAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	return parseAmount(raw)
}

// --- token endpoints ---

type feeConfigBody struct {
	BuyRateBps        int64 `json:"buy_rate_bps"`
	SellRateBps       int64 `json:"sell_rate_bps"`
	TransferRateBps   int64 `json:"transfer_rate_bps"`
	MarketingRateBps  int64 `json:"marketing_rate_bps"`
	LiquidityRateBps  int64 `json:"liquidity_rate_bps"`
	BurnRateBps       int64 `json:"burn_rate_bps"`
	ReflectionRateBps int64 `json:"reflection_rate_bps"`
}

func (b feeConfigBody) toDomain() domain.FeeConfig {
	return domain.FeeConfig{
		BuyRateBps:        b.BuyRateBps,
		SellRateBps:       b.SellRateBps,
		TransferRateBps:   b.TransferRateBps,
		MarketingRateBps:  b.MarketingRateBps,
		LiquidityRateBps:  b.LiquidityRateBps,
		BurnRateBps:       b.BurnRateBps,
		ReflectionRateBps: b.ReflectionRateBps,
	}
}

type limitConfigBody struct {
	MaxWalletAmount      string `json:"max_wallet_amount"`
	MaxTransactionAmount string `json:"max_transaction_amount"`
	LiquidityThreshold   string `json:"liquidity_threshold"`
}

func (b limitConfigBody) toDomain() (domain.LimitConfig, error) {
	var cfg domain.LimitConfig
	var err error
	if cfg.MaxWalletAmount, err = parseOptionalAmount(b.MaxWalletAmount); err != nil {
		return cfg, err
	}
	if cfg.MaxTransactionAmount, err = parseOptionalAmount(b.MaxTransactionAmount); err != nil {
		return cfg, err
	}
	if cfg.LiquidityThreshold, err = parseOptionalAmount(b.LiquidityThreshold); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type deployTokenBody struct {
	Token           string          `json:"token"`
	Authority       string          `json:"authority"`
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	Decimals        uint8           `json:"decimals"`
	MaxSupply       string          `json:"max_supply"`
	TaxWallet       string          `json:"tax_wallet"`
	MarketingWallet string          `json:"marketing_wallet"`
	LiquidityWallet string          `json:"liquidity_wallet"`
	Pair            string          `json:"pair"`
	Fees            feeConfigBody   `json:"fees"`
	Limits          limitConfigBody `json:"limits"`
}

func (s *Server) handleDeployToken(w http.ResponseWriter, r *http.Request) {
	var body deployTokenBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	maxSupply, err := parseOptionalAmount(body.MaxSupply)
	if err != nil {
		writeError(w, err)
		return
	}
	limits, err := body.Limits.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}

	cfg := domain.TokenConfig{
		Name:            body.Name,
		Symbol:          body.Symbol,
		Decimals:        body.Decimals,
		MaxSupply:       maxSupply,
		TaxWallet:       domain.Address(body.TaxWallet),
		MarketingWallet: domain.Address(body.MarketingWallet),
		LiquidityWallet: domain.Address(body.LiquidityWallet),
		Pair:            domain.Address(body.Pair),
		Fees:            body.Fees.toDomain(),
		Limits:          limits,
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, err)
		return
	}

	addr := domain.Address(body.Token)
	s.mu.Lock()
	if _, exists := s.engines[addr]; exists {
		s.mu.Unlock()
		writeError(w, fmt.Errorf("%w: token %s", storage.ErrDuplicateKey, addr))
		return
	}
	engine, err := token.NewEngine(addr, domain.Address(body.Authority), cfg)
	if err != nil {
		s.mu.Unlock()
		writeError(w, err)
		return
	}
	engine.SetEmitter(s.journal)
	s.engines[addr] = engine
	s.mu.Unlock()

	s.bank.Register(addr, engine.Book())
	s.verifier.RegisterBook(addr, engine.Book())

	record := &domain.TokenRecord{
		Token:     addr,
		Name:      cfg.Name,
		Symbol:    cfg.Symbol,
		Decimals:  cfg.Decimals,
		Authority: engine.Authority(),
		Pair:      cfg.Pair,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.stores.tokenStore.Insert(r.Context(), record); err != nil {
		s.logger.Printf("Persisting token %s failed: %v", addr, err)
	}

	s.logger.Printf("Deployed token %s (%s)", addr, cfg.Symbol)
	writeJSON(w, http.StatusCreated, map[string]string{
		"token":           string(addr),
		"fee_custody":     string(engine.FeeCustody()),
		"reflection_pool": string(engine.ReflectionPool()),
	})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	records, err := s.stores.tokenStore.GetAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	cfg := engine.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":           engine.Token(),
		"name":            cfg.Name,
		"symbol":          cfg.Symbol,
		"decimals":        cfg.Decimals,
		"authority":       engine.Authority(),
		"total_supply":    engine.TotalSupply().String(),
		"trading_enabled": engine.TradingEnabled(),
	})
}

type moveBody struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	var body moveBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := engine.Move(r.Context(), domain.Address(body.From), domain.Address(body.To), amount); err != nil {
		observability.RecordRejection(rejectionReason(err))
		writeError(w, err)
		return
	}
	observability.RecordTransfer()
	writeJSON(w, http.StatusOK, map[string]string{
		"to_balance": engine.BalanceOf(domain.Address(body.To)).String(),
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	var body moveBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := engine.Mint(domain.Address(body.To), amount); err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.MintsTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"total_supply": engine.TotalSupply().String()})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	var body moveBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := engine.Burn(domain.Address(body.From), amount); err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.BurnsTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"total_supply": engine.TotalSupply().String()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	addr := domain.Address(r.PathValue("addr"))
	writeJSON(w, http.StatusOK, map[string]string{
		"balance":      engine.BalanceOf(addr).String(),
		"withdrawable": engine.Withdrawable(addr).String(),
	})
}

func (s *Server) handleClaimReflections(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	var body struct {
		Caller string `json:"caller"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	claimed, err := engine.ClaimReflections(domain.Address(body.Caller))
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.ReflectionClaims.Inc()
	writeJSON(w, http.StatusOK, map[string]string{"claimed": claimed.String()})
}

func (s *Server) handleFeeTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.stores.eventStore.FeeTotalsByCategory(r.Context(), domain.Address(r.PathValue("token")))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(totals))
	for _, t := range totals {
		out = append(out, map[string]interface{}{
			"category": t.Category,
			"count":    t.Count,
			"total":    t.Total.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	result, err := s.verifier.VerifyToken(r.Context(), domain.Address(r.PathValue("token")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- admin endpoints ---

func (s *Server) handleSetFees(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	var body struct {
		Caller string        `json:"caller"`
		Fees   feeConfigBody `json:"fees"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := engine.SetFees(domain.Address(body.Caller), body.Fees.toDomain()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetLimits(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	var body struct {
		Caller string          `json:"caller"`
		Limits limitConfigBody `json:"limits"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	limits, err := body.Limits.toDomain()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := engine.SetLimits(domain.Address(body.Caller), limits); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetBlacklist(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	var body struct {
		Caller  string `json:"caller"`
		Address string `json:"address"`
		Blocked bool   `json:"blocked"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := engine.SetBlacklisted(domain.Address(body.Caller), domain.Address(body.Address), body.Blocked); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetExempt(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	var body struct {
		Caller  string `json:"caller"`
		Address string `json:"address"`
		Exempt  bool   `json:"exempt"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := engine.SetExempt(domain.Address(body.Caller), domain.Address(body.Address), body.Exempt); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetTrading(w http.ResponseWriter, r *http.Request) {
	engine, ok := s.engine(domain.Address(r.PathValue("token")))
	if !ok {
		writeError(w, ledger.ErrUnknownToken)
		return
	}
	var body struct {
		Caller  string `json:"caller"`
		Enabled bool   `json:"enabled"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := engine.SetTradingEnabled(domain.Address(body.Caller), body.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// --- vesting endpoints ---

type scheduleResponse struct {
	ScheduleID      string `json:"schedule_id"`
	Creator         string `json:"creator"`
	Beneficiary     string `json:"beneficiary"`
	Token           string `json:"token"`
	TotalAmount     string `json:"total_amount"`
	ReleasedAmount  string `json:"released_amount"`
	StartTime       int64  `json:"start_time"`
	CliffSeconds    int64  `json:"cliff_seconds"`
	DurationSeconds int64  `json:"duration_seconds"`
	SliceSeconds    int64  `json:"slice_seconds"`
	Revocable       bool   `json:"revocable"`
	Revoked         bool   `json:"revoked"`
	Description     string `json:"description,omitempty"`
}

func toScheduleResponse(s *domain.VestingSchedule) scheduleResponse {
	return scheduleResponse{
		ScheduleID:      s.ScheduleID,
		Creator:         string(s.Creator),
		Beneficiary:     string(s.Beneficiary),
		Token:           string(s.Token),
		TotalAmount:     s.TotalAmount.String(),
		ReleasedAmount:  s.ReleasedAmount.String(),
		StartTime:       s.StartTime,
		CliffSeconds:    s.CliffSeconds,
		DurationSeconds: s.DurationSeconds,
		SliceSeconds:    s.SliceSeconds,
		Revocable:       s.Revocable,
		Revoked:         s.Revoked,
		Description:     s.Description,
	}
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Creator         string `json:"creator"`
		Beneficiary     string `json:"beneficiary"`
		Token           string `json:"token"`
		TotalAmount     string `json:"total_amount"`
		StartTime       int64  `json:"start_time"`
		CliffSeconds    int64  `json:"cliff_seconds"`
		DurationSeconds int64  `json:"duration_seconds"`
		SliceSeconds    int64  `json:"slice_seconds"`
		Revocable       bool   `json:"revocable"`
		Description     string `json:"description"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(body.TotalAmount)
	if err != nil {
		writeError(w, err)
		return
	}

	schedule, err := s.vesting.CreateSchedule(domain.Address(body.Creator), vesting.CreateParams{
		Beneficiary:     domain.Address(body.Beneficiary),
		Token:           domain.Address(body.Token),
		TotalAmount:     amount,
		StartTime:       body.StartTime,
		CliffSeconds:    body.CliffSeconds,
		DurationSeconds: body.DurationSeconds,
		SliceSeconds:    body.SliceSeconds,
		Revocable:       body.Revocable,
		Description:     body.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.SchedulesCreated.Inc()

	if err := s.stores.scheduleStore.Insert(r.Context(), schedule); err != nil {
		s.logger.Printf("Persisting schedule %s failed: %v", schedule.ScheduleID, err)
	}
	writeJSON(w, http.StatusCreated, toScheduleResponse(schedule))
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	beneficiary := r.URL.Query().Get("beneficiary")
	if beneficiary == "" {
		writeError(w, fmt.Errorf("beneficiary query parameter required"))
		return
	}
	schedules := s.vesting.SchedulesFor(domain.Address(beneficiary))
	out := make([]scheduleResponse, 0, len(schedules))
	for _, sched := range schedules {
		out = append(out, toScheduleResponse(sched))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.vesting.Schedule(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	releasable, err := s.vesting.Releasable(schedule.ScheduleID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		scheduleResponse
		Releasable string `json:"releasable"`
	}{toScheduleResponse(schedule), releasable.String()}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caller string `json:"caller"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	released, err := s.vesting.Release(domain.Address(body.Caller), id)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.ReleasesTotal.Inc()

	s.persistScheduleState(r, id)
	writeJSON(w, http.StatusOK, map[string]string{"released": released.String()})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caller string `json:"caller"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	if err := s.vesting.Revoke(domain.Address(body.Caller), id); err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.SchedulesRevoked.Inc()

	if schedule, err := s.vesting.Schedule(id); err == nil {
		if err := s.stores.scheduleStore.MarkRevoked(r.Context(), id, schedule.ReleasedAmount); err != nil {
			s.logger.Printf("Persisting revoke of %s failed: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) persistScheduleState(r *http.Request, id string) {
	schedule, err := s.vesting.Schedule(id)
	if err != nil {
		return
	}
	if err := s.stores.scheduleStore.UpdateReleased(r.Context(), id, schedule.ReleasedAmount); err != nil {
		s.logger.Printf("Persisting release of %s failed: %v", id, err)
	}
}

// --- escrow endpoints ---

type lockResponse struct {
	LockID      uint64 `json:"lock_id"`
	Token       string `json:"token"`
	Owner       string `json:"owner"`
	Amount      string `json:"amount"`
	LockTime    int64  `json:"lock_time"`
	UnlockTime  int64  `json:"unlock_time"`
	Claimed     bool   `json:"claimed"`
	Description string `json:"description,omitempty"`
}

func toLockResponse(l *domain.EscrowLock) lockResponse {
	return lockResponse{
		LockID:      l.LockID,
		Token:       string(l.Token),
		Owner:       string(l.Owner),
		Amount:      l.Amount.String(),
		LockTime:    l.LockTime,
		UnlockTime:  l.UnlockTime,
		Claimed:     l.Claimed,
		Description: l.Description,
	}
}

func (s *Server) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caller      string `json:"caller"`
		Token       string `json:"token"`
		Amount      string `json:"amount"`
		UnlockTime  int64  `json:"unlock_time"`
		Description string `json:"description"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	lock, err := s.escrow.Lock(domain.Address(body.Caller), domain.Address(body.Token),
		amount, body.UnlockTime, body.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.LocksCreated.Inc()

	if err := s.stores.lockStore.Insert(r.Context(), lock); err != nil {
		s.logger.Printf("Persisting lock %d failed: %v", lock.LockID, err)
	}
	writeJSON(w, http.StatusCreated, toLockResponse(lock))
}

func (s *Server) handleListLocks(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, fmt.Errorf("owner query parameter required"))
		return
	}
	locks := s.escrow.LocksFor(domain.Address(owner))
	out := make([]lockResponse, 0, len(locks))
	for _, l := range locks {
		out = append(out, toLockResponse(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	id, err := parseLockID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	lock, err := s.escrow.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLockResponse(lock))
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.payOutLock(w, r, "deadline")
}

func (s *Server) handleEmergencyUnlock(w http.ResponseWriter, r *http.Request) {
	s.payOutLock(w, r, "emergency")
}

func (s *Server) payOutLock(w http.ResponseWriter, r *http.Request, mode string) {
	id, err := parseLockID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Caller string `json:"caller"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	var paid *big.Int
	if mode == "emergency" {
		paid, err = s.escrow.EmergencyUnlock(domain.Address(body.Caller), id)
	} else {
		paid, err = s.escrow.Unlock(domain.Address(body.Caller), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	observability.DefaultMetrics.LocksUnlocked.WithLabelValues(mode).Inc()

	if err := s.stores.lockStore.MarkClaimed(r.Context(), id); err != nil {
		s.logger.Printf("Persisting claim of lock %d failed: %v", id, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"paid": paid.String()})
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	id, err := parseLockID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Caller     string `json:"caller"`
		UnlockTime int64  `json:"unlock_time"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.escrow.Extend(domain.Address(body.Caller), id, body.UnlockTime); err != nil {
		writeError(w, err)
		return
	}
	if err := s.stores.lockStore.UpdateUnlockTime(r.Context(), id, body.UnlockTime); err != nil {
		s.logger.Printf("Persisting extension of lock %d failed: %v", id, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "extended"})
}

func (s *Server) handleTransferLock(w http.ResponseWriter, r *http.Request) {
	id, err := parseLockID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Caller   string `json:"caller"`
		NewOwner string `json:"new_owner"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.escrow.TransferOwnership(domain.Address(body.Caller), id, domain.Address(body.NewOwner)); err != nil {
		writeError(w, err)
		return
	}
	if err := s.stores.lockStore.UpdateOwner(r.Context(), id, domain.Address(body.NewOwner)); err != nil {
		s.logger.Printf("Persisting owner change of lock %d failed: %v", id, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Caller string `json:"caller"`
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.escrow.Recover(domain.Address(body.Caller), domain.Address(body.Token), amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"recovered": amount.String()})
}

func parseLockID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad lock id %q", r.PathValue("id"))
	}
	return id, nil
}

// --- events and status ---

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := strconv.ParseUint(defaultStr(q.Get("from"), "1"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("bad from parameter"))
		return
	}
	to := from + 99
	if raw := q.Get("to"); raw != "" {
		if to, err = strconv.ParseUint(raw, 10, 64); err != nil {
			writeError(w, fmt.Errorf("bad to parameter"))
			return
		}
	}
	batch, err := s.stores.eventStore.GetBySeqRange(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Tokens        int    `json:"tokens"`
	JournalEvents int    `json:"journal_events"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	tokens := len(s.engines)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).String(),
		Tokens:        tokens,
		JournalEvents: s.journal.Len(),
	})
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, token.ErrAddressBlocked):
		return "blacklist"
	case errors.Is(err, token.ErrTradingDisabled):
		return "trading_disabled"
	case errors.Is(err, token.ErrLimitExceeded):
		return "limit"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "invalid"
	}
}
