package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (Record, error) {
	const query = `
		SELECT user_id, access_token, refresh_token, expires_at
		FROM dexcom_tokens
		WHERE user_id = $1`

	var rec Record
	err := s.pool.QueryRow(ctx, query, userID).
		Scan(&rec.UserID, &rec.AccessToken, &rec.RefreshToken, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("getting token record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO dexcom_tokens (user_id, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`

	if _, err := s.pool.Exec(ctx, query, rec.UserID, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt); err != nil {
		return fmt.Errorf("upserting token record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Swap(ctx context.Context, prevRefreshToken string, rec Record) error {
	const query = `
		UPDATE dexcom_tokens SET
			access_token = $3,
			refresh_token = $4,
			expires_at = $5,
			updated_at = now()
		WHERE user_id = $1 AND refresh_token = $2`

	tag, err := s.pool.Exec(ctx, query, rec.UserID, prevRefreshToken, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("swapping token record: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish a lost rotation race from a deleted record.
	if _, err := s.Get(ctx, rec.UserID); err != nil {
		return err
	}
	return ErrStale
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	const query = `DELETE FROM dexcom_tokens WHERE user_id = $1`

	if _, err := s.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("deleting token record: %w", err)
	}
	return nil
}
