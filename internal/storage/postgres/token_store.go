package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-custody-lab/internal/domain"
	"token-custody-lab/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a new token record. Returns ErrDuplicateKey if the token exists.
func (s *TokenStore) Insert(ctx context.Context, r *domain.TokenRecord) (err error) {
	defer observeQuery("insert_token", time.Now(), &err)
	if r == nil || r.Token.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_configs (
			token, name, symbol, decimals, authority, pair, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.pool.Exec(ctx, query,
		string(r.Token),
		r.Name,
		r.Symbol,
		int16(r.Decimals),
		string(r.Authority),
		string(r.Pair),
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token record: %w", err)
	}
	return nil
}

// GetByAddress retrieves a record by token address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(ctx context.Context, token domain.Address) (_ *domain.TokenRecord, err error) {
	defer observeQuery("get_token_by_address", time.Now(), &err)
	query := `
		SELECT token, name, symbol, decimals, authority, pair, created_at
		FROM token_configs
		WHERE token = $1
	`

	row := s.pool.QueryRow(ctx, query, string(token))
	r, err := scanTokenRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token record: %w", err)
	}
	return r, nil
}

// GetAll retrieves all records, ordered by created_at ASC.
func (s *TokenStore) GetAll(ctx context.Context) (_ []*domain.TokenRecord, err error) {
	defer observeQuery("get_all_tokens", time.Now(), &err)
	query := `
		SELECT token, name, symbol, decimals, authority, pair, created_at
		FROM token_configs
		ORDER BY created_at ASC, token ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all token records: %w", err)
	}
	defer rows.Close()

	var records []*domain.TokenRecord
	for rows.Next() {
		r, err := scanTokenRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token record row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token record rows: %w", err)
	}
	return records, nil
}

// scanTokenRecord scans a single row into a TokenRecord.
func scanTokenRecord(row pgx.Row) (*domain.TokenRecord, error) {
	var r domain.TokenRecord
	var token, authority, pair string
	var decimals int16

	err := row.Scan(
		&token,
		&r.Name,
		&r.Symbol,
		&decimals,
		&authority,
		&pair,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Token = domain.Address(token)
	r.Authority = domain.Address(authority)
	r.Pair = domain.Address(pair)
	r.Decimals = uint8(decimals)
	return &r, nil
}
