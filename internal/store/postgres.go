package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/sentinelstack/sentinel/internal/config"
	"github.com/sentinelstack/sentinel/internal/models"
)

// PostgresStore is a SampleStore backed by a Postgres table. Sub-field values
// are stored as JSONB next to the primary value.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool, verifies connectivity and ensures
// the samples table exists.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Database, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &StoreError{Op: "ping", Err: err}
	}

	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS samples (
		signal_key TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		fields JSONB
	);
	CREATE INDEX IF NOT EXISTS samples_signal_ts_idx ON samples (signal_key, ts)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return &StoreError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Append inserts one sample row.
func (s *PostgresStore) Append(ctx context.Context, signalKey string, sample models.Sample) error {
	var fields any
	if len(sample.Fields) > 0 {
		data, err := json.Marshal(sample.Fields)
		if err != nil {
			return &StoreError{Op: "encode fields", Err: err}
		}
		fields = data
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO samples (signal_key, ts, value, fields) VALUES ($1, $2, $3, $4)",
		signalKey, sample.Timestamp.UTC(), sample.Value, fields)
	if err != nil {
		return &StoreError{Op: "append", Err: err}
	}
	return nil
}

// ReadWindow returns samples within [from, to] inclusive, ascending.
func (s *PostgresStore) ReadWindow(ctx context.Context, signalKey string, from, to time.Time) ([]models.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ts, value, fields FROM samples WHERE signal_key = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts ASC",
		signalKey, from.UTC(), to.UTC())
	if err != nil {
		return nil, &StoreError{Op: "read window", Err: err}
	}
	defer rows.Close()

	var out []models.Sample
	for rows.Next() {
		var (
			sample models.Sample
			raw    []byte
		)
		if err := rows.Scan(&sample.Timestamp, &sample.Value, &raw); err != nil {
			return nil, &StoreError{Op: "scan sample", Err: err}
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &sample.Fields); err != nil {
				return nil, &StoreError{Op: "decode fields", Err: err}
			}
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "iterate samples", Err: err}
	}
	return out, nil
}

// LatestTimestamp returns the newest stored timestamp for the signal.
func (s *PostgresStore) LatestTimestamp(ctx context.Context, signalKey string) (time.Time, bool, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT max(ts) FROM samples WHERE signal_key = $1", signalKey).Scan(&latest)
	if err != nil {
		return time.Time{}, false, &StoreError{Op: "latest timestamp", Err: err}
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time, true, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
