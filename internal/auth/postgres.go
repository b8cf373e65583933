package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore resolves tokens against the server_tokens table. Tokens
// are stored as SHA-256 digests; revocation is a soft delete.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Resolve(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT server_id
		FROM server_tokens
		WHERE token_digest = $1 AND revoked_at IS NULL
	`

	var serverID string
	err := s.pool.QueryRow(ctx, query, digest(token)).Scan(&serverID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownToken
		}
		return "", fmt.Errorf("failed to look up token: %w", err)
	}
	return serverID, nil
}

// CreateToken registers a token for a server. name is a human label for
// operators; the raw token is never persisted.
func (s *PostgresStore) CreateToken(ctx context.Context, token, serverID, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO server_tokens (token_digest, server_id, name)
		VALUES ($1, $2, $3)
	`

	if _, err := s.pool.Exec(ctx, query, digest(token), serverID, name); err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeToken(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		UPDATE server_tokens
		SET revoked_at = NOW()
		WHERE token_digest = $1 AND revoked_at IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, digest(token))
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownToken
	}
	return nil
}
