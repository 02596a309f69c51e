package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"marketwatch/pkg/offer"
)

const offersSchema = `
CREATE TABLE IF NOT EXISTS offers (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	price_text    TEXT NOT NULL DEFAULT '',
	price_numeric BIGINT NOT NULL DEFAULT 0,
	link          TEXT NOT NULL DEFAULT '',
	confidence    TEXT NOT NULL DEFAULT 'FULL',
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists offer records in a single offers table. The primary
// key on id is the sole dedup mechanism: registration is one INSERT with
// ON CONFLICT DO NOTHING, so concurrent cycles race safely.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects, pings, and ensures the offers table exists.
func OpenPostgres(ctx context.Context, connString string, logger *slog.Logger) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConns = 5
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if _, err := pool.Exec(ctx, offersSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure offers table: %w", err)
	}

	logger.Info("Postgres offer store ready")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// TryRegister inserts rec if absent. The insert is the conflict point; no
// read-then-write. Returns true when a row was created.
func (s *PostgresStore) TryRegister(ctx context.Context, rec offer.Record) (bool, error) {
	firstSeen := rec.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO offers (id, title, price_text, price_numeric, link, confidence, first_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Title, rec.PriceText, rec.PriceNumeric, rec.Link, string(rec.Confidence), firstSeen,
	)
	if err != nil {
		return false, fmt.Errorf("insert offer %s: %w", rec.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Recent returns up to limit records ordered by detection time descending.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]offer.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, price_text, price_numeric, link, confidence, first_seen_at
		 FROM offers
		 ORDER BY first_seen_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var records []offer.Record
	for rows.Next() {
		var rec offer.Record
		var confidence string
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.PriceText, &rec.PriceNumeric,
			&rec.Link, &confidence, &rec.FirstSeenAt); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		rec.Confidence = offer.Confidence(confidence)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
