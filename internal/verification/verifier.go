// Package verification replays the archived custody journal and reconciles
// it against live state. Every value movement the engines make is
// journaled, so folding a token's event stream reproduces its balance map
// and supply; drift from the live book, from the store's fee aggregates, or
// within the stream's own ordering is reported as a divergence.
package verification

import (
	"context"
	"fmt"
	"math/big"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

// Divergence represents a mismatch between archived and replayed values.
type Divergence struct {
	Field    string      // field or check name
	Expected interface{} // replayed value
	Actual   interface{} // archived or live value
}

// TokenResult contains the result of verifying a single token's stream.
type TokenResult struct {
	Token          domain.Address // verified token
	EventCount     int            // events replayed
	Match          bool           // true if no divergences
	Divergences    []Divergence   // list of divergent checks
	ReplayedSupply string         // net supply after replay, decimal
}

// Report contains results for batch verification.
type Report struct {
	TotalTokens     int           // tokens verified
	MatchedTokens   int           // tokens with clean replays
	DivergentTokens int           // tokens with divergences
	Results         []TokenResult // individual results
}

// Verifier replays archived custody events.
type Verifier interface {
	// VerifyToken replays a single token's event stream and reconciles it.
	VerifyToken(ctx context.Context, token domain.Address) (*TokenResult, error)

	// VerifyAll verifies every registered token. Returns a report with
	// individual results.
	VerifyAll(ctx context.Context) (*Report, error)
}

// Book is the read side of a balance ledger. *ledger.Ledger satisfies it.
type Book interface {
	BalanceOf(addr domain.Address) *big.Int
	TotalSupply() *big.Int
}

// replayState folds one token's event stream into balance deltas and
// per-category fee totals.
type replayState struct {
	deltas    map[domain.Address]*big.Int
	supply    *big.Int // minted minus burned
	feeCounts map[string]uint64
	feeTotals map[string]*big.Int
	lastSeq   uint64

	divergences []Divergence
}

func newReplayState() *replayState {
	return &replayState{
		deltas:    make(map[domain.Address]*big.Int),
		supply:    big.NewInt(0),
		feeCounts: make(map[string]uint64),
		feeTotals: make(map[string]*big.Int),
	}
}

func (s *replayState) diverge(field string, expected, actual interface{}) {
	s.divergences = append(s.divergences, Divergence{Field: field, Expected: expected, Actual: actual})
}

// apply folds one event. Malformed events become divergences rather than
// errors so a single bad row does not hide the rest of the stream.
func (s *replayState) apply(e *domain.Event) {
	if e.Seq <= s.lastSeq {
		s.diverge(fmt.Sprintf("seq %d", e.Seq), "seq above "+fmt.Sprint(s.lastSeq), e.Seq)
	}
	s.lastSeq = e.Seq

	switch e.Kind {
	case domain.EventMint:
		if amount, ok := s.parseAmount(e); ok {
			s.credit(e.To, amount)
			s.supply.Add(s.supply, amount)
		}

	case domain.EventBurn:
		if amount, ok := s.parseAmount(e); ok {
			s.debit(e.From, amount)
			s.supply.Sub(s.supply, amount)
		}

	case domain.EventFee:
		amount, ok := s.parseAmount(e)
		if !ok {
			return
		}
		if !knownFeeCategory(e.Category) {
			s.diverge(fmt.Sprintf("seq %d category", e.Seq), "known fee category", e.Category)
			return
		}
		s.feeCounts[e.Category]++
		total, found := s.feeTotals[e.Category]
		if !found {
			total = big.NewInt(0)
			s.feeTotals[e.Category] = total
		}
		total.Add(total, amount)

		s.debit(e.From, amount)
		if e.Category == string(domain.FeeBurn) {
			s.supply.Sub(s.supply, amount)
		} else {
			s.credit(e.To, amount)
		}

	case domain.EventTransfer, domain.EventLiquidity, domain.EventReflectionClaimed,
		domain.EventScheduleCreated, domain.EventScheduleReleased, domain.EventScheduleRevoked,
		domain.EventLockCreated, domain.EventLockUnlocked, domain.EventLockRecovered:
		if amount, ok := s.parseAmount(e); ok {
			s.debit(e.From, amount)
			s.credit(e.To, amount)
		}

	default:
		// Extensions, ownership changes and admin updates move no value.
	}
}

func (s *replayState) parseAmount(e *domain.Event) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(e.Amount, 10)
	if !ok || amount.Sign() < 0 {
		s.diverge(fmt.Sprintf("seq %d amount", e.Seq), "non-negative decimal", e.Amount)
		return nil, false
	}
	return amount, true
}

func (s *replayState) credit(addr domain.Address, amount *big.Int) {
	if addr.IsZero() || amount.Sign() == 0 {
		return
	}
	d, ok := s.deltas[addr]
	if !ok {
		d = big.NewInt(0)
		s.deltas[addr] = d
	}
	d.Add(d, amount)
}

func (s *replayState) debit(addr domain.Address, amount *big.Int) {
	s.credit(addr, new(big.Int).Neg(amount))
}

// checkConservation flags balances the stream drove negative and a supply
// that does not match the sum of all deltas.
func (s *replayState) checkConservation() {
	sum := big.NewInt(0)
	for addr, d := range s.deltas {
		sum.Add(sum, d)
		if d.Sign() < 0 {
			s.diverge("balance "+string(addr), "non-negative replayed balance", d.String())
		}
	}
	if s.supply.Sign() < 0 {
		s.diverge("supply", "non-negative replayed supply", s.supply.String())
	}
	if sum.Cmp(s.supply) != 0 {
		s.diverge("conservation", s.supply.String(), sum.String())
	}
}

// compareBook reconciles the replayed state against a live balance book.
// Valid only for books whose every movement was journaled.
func (s *replayState) compareBook(live Book) {
	if got := live.TotalSupply(); got.Cmp(s.supply) != 0 {
		s.diverge("live supply", s.supply.String(), got.String())
	}
	for addr, d := range s.deltas {
		if got := live.BalanceOf(addr); got.Cmp(d) != 0 {
			s.diverge("live balance "+string(addr), d.String(), got.String())
		}
	}
}

// compareFeeTotals reconciles the replayed per-category totals against the
// store's aggregation.
func (s *replayState) compareFeeTotals(stored []storage.FeeTotal) {
	seen := make(map[string]bool, len(stored))
	for _, ft := range stored {
		seen[ft.Category] = true
		if got := s.feeCounts[ft.Category]; got != ft.Count {
			s.diverge("fee count "+ft.Category, got, ft.Count)
		}
		want := s.feeTotals[ft.Category]
		if want == nil {
			want = big.NewInt(0)
		}
		if ft.Total == nil || ft.Total.Cmp(want) != 0 {
			s.diverge("fee total "+ft.Category, want.String(), ft.Total)
		}
	}
	for category := range s.feeTotals {
		if !seen[category] {
			s.diverge("fee total "+category, s.feeTotals[category].String(), "missing from aggregation")
		}
	}
}

func knownFeeCategory(c string) bool {
	for _, known := range domain.FeeCategories {
		if string(known) == c {
			return true
		}
	}
	return false
}
