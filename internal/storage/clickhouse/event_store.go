package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse. The table is a
// ReplacingMergeTree keyed by seq, so indexer batch retries collapse into
// one row per event; reads use FINAL to see the collapsed view.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk appends a batch of journal events.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) (err error) {
	defer observeQuery("insert_bulk", time.Now(), &err)
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.Seq == 0 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO custody_events (
			seq, kind, token, ref_id, from_addr, to_addr,
			amount, category, before_value, after_value, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.Seq, string(e.Kind), string(e.Token), e.RefID,
			string(e.From), string(e.To),
			e.Amount, e.Category, e.Before, e.After, uint64(e.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

const eventColumns = `
	seq, kind, token, ref_id, from_addr, to_addr,
	amount, category, before_value, after_value, timestamp_ms
`

// GetByToken retrieves all events for a token, ordered by seq ASC.
func (s *EventStore) GetByToken(ctx context.Context, token domain.Address) (_ []*domain.Event, err error) {
	defer observeQuery("get_by_token", time.Now(), &err)
	query := `
		SELECT ` + eventColumns + `
		FROM custody_events FINAL
		WHERE token = ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, string(token))
	if err != nil {
		return nil, fmt.Errorf("query by token: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetBySeqRange retrieves events with seq in [start, end] (inclusive).
func (s *EventStore) GetBySeqRange(ctx context.Context, start, end uint64) (_ []*domain.Event, err error) {
	defer observeQuery("get_by_seq_range", time.Now(), &err)
	query := `
		SELECT ` + eventColumns + `
		FROM custody_events FINAL
		WHERE seq >= ? AND seq <= ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by seq range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// MaxSeq returns the highest stored seq, zero when empty.
func (s *EventStore) MaxSeq(ctx context.Context) (_ uint64, err error) {
	defer observeQuery("max_seq", time.Now(), &err)
	var max uint64
	err = s.conn.QueryRow(ctx, `SELECT max(seq) FROM custody_events`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return max, nil
}

// FeeTotalsByCategory aggregates fee events for a token by category.
func (s *EventStore) FeeTotalsByCategory(ctx context.Context, token domain.Address) (_ []storage.FeeTotal, err error) {
	defer observeQuery("fee_totals_by_category", time.Now(), &err)
	query := `
		SELECT category, count(), sum(toUInt256OrZero(amount))
		FROM custody_events FINAL
		WHERE token = ? AND kind = ?
		GROUP BY category
		ORDER BY category ASC
	`

	rows, err := s.conn.Query(ctx, query, string(token), string(domain.EventFee))
	if err != nil {
		return nil, fmt.Errorf("query fee totals: %w", err)
	}
	defer rows.Close()

	var totals []storage.FeeTotal
	for rows.Next() {
		var ft storage.FeeTotal
		var total big.Int

		if err := rows.Scan(&ft.Category, &ft.Count, &total); err != nil {
			return nil, fmt.Errorf("scan fee total row: %w", err)
		}
		ft.Total = new(big.Int).Set(&total)
		totals = append(totals, ft)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fee total rows: %w", err)
	}
	return totals, nil
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var e domain.Event
		var kind, token, from, to string
		var timestampMs uint64

		err := rows.Scan(
			&e.Seq, &kind, &token, &e.RefID, &from, &to,
			&e.Amount, &e.Category, &e.Before, &e.After, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		e.Token = domain.Address(token)
		e.From = domain.Address(from)
		e.To = domain.Address(to)
		e.Timestamp = int64(timestampMs)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}
