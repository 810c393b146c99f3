package learner

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists learned threats in a Postgres table. Preferred
// backend when the deployment already runs Postgres for audit logs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS learned_threats (
	key           TEXT PRIMARY KEY,
	id            TEXT NOT NULL,
	text          TEXT NOT NULL,
	threat_type   TEXT NOT NULL,
	reported_by   TEXT NOT NULL DEFAULT '',
	reported_at   TIMESTAMPTZ NOT NULL,
	times_matched INTEGER NOT NULL DEFAULT 0,
	notes         TEXT NOT NULL DEFAULT ''
)`

// NewPostgresStore connects to Postgres and ensures the table exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create learned_threats table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]*LearnedThreat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, id, text, threat_type, reported_by, reported_at, times_matched, notes
		 FROM learned_threats`)
	if err != nil {
		return nil, fmt.Errorf("failed to load threats: %w", err)
	}
	defer rows.Close()

	var threats []*LearnedThreat
	for rows.Next() {
		var t LearnedThreat
		if err := rows.Scan(&t.Key, &t.ID, &t.Text, &t.ThreatType,
			&t.ReportedBy, &t.ReportedAt, &t.TimesMatched, &t.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan threat row: %w", err)
		}
		threats = append(threats, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return threats, nil
}

func (s *PostgresStore) Put(ctx context.Context, threat *LearnedThreat) error {
	if threat == nil || threat.Key == "" {
		return fmt.Errorf("threat key is required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO learned_threats
			(key, id, text, threat_type, reported_by, reported_at, times_matched, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (key) DO UPDATE SET
			times_matched = EXCLUDED.times_matched,
			notes = EXCLUDED.notes`,
		threat.Key, threat.ID, threat.Text, threat.ThreatType,
		threat.ReportedBy, threat.ReportedAt, threat.TimesMatched, threat.Notes)
	if err != nil {
		return fmt.Errorf("failed to upsert threat: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM learned_threats WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete threat: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

var _ Store = (*PostgresStore)(nil)
