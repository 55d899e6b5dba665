package tokenstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores the token as a row of the session_tokens table.
type PostgresBackend struct {
	pool *pgxpool.Pool
	key  string
}

// NewPostgresBackend builds a backend over the shared pool.
func NewPostgresBackend(pool *pgxpool.Pool, key string) *PostgresBackend {
	return &PostgresBackend{pool: pool, key: key}
}

func (p *PostgresBackend) Name() string { return "postgres" }

func (p *PostgresBackend) Get(ctx context.Context) (string, error) {
	if p.pool == nil {
		return "", ErrBackendUnavailable
	}
	const query = `SELECT value FROM session_tokens WHERE key = $1`
	var value string
	if err := p.pool.QueryRow(ctx, query, p.key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (p *PostgresBackend) Set(ctx context.Context, token string) error {
	if p.pool == nil {
		return ErrBackendUnavailable
	}
	const query = `
		INSERT INTO session_tokens (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := p.pool.Exec(ctx, query, p.key, token)
	return err
}

func (p *PostgresBackend) Delete(ctx context.Context) error {
	if p.pool == nil {
		return ErrBackendUnavailable
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM session_tokens WHERE key = $1`, p.key)
	return err
}
