package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQL keeps documents in a codeshot_state table, one row per state key.
type SQL struct {
	db      *sql.DB
	key     string
	load    string
	upsert  string
	dialect string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS codeshot_state (
	state_key TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS codeshot_state (
	state_key TEXT PRIMARY KEY,
	document JSONB NOT NULL,
	updated_at TIMESTAMPTZ DEFAULT NOW()
);`

// NewSQLite opens (and creates) a SQLite state database. ":memory:" gives a
// private in-memory database.
func NewSQLite(ctx context.Context, path, key string) (*SQL, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("statestore: open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQL{
		db:      db,
		key:     key,
		dialect: "sqlite",
		load:    `SELECT document FROM codeshot_state WHERE state_key = ?`,
		upsert: `INSERT INTO codeshot_state (state_key, document, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(state_key) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
	}
	if err := s.init(ctx, sqliteSchema); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgres connects to PostgreSQL and ensures the state table exists.
func NewPostgres(ctx context.Context, connString, key string) (*SQL, error) {
	if connString == "" {
		return nil, errors.New("statestore: PostgreSQL connection string is required")
	}
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("statestore: open PostgreSQL database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("statestore: connect to PostgreSQL: %w", err)
	}

	s := &SQL{
		db:      db,
		key:     key,
		dialect: "postgres",
		load:    `SELECT document FROM codeshot_state WHERE state_key = $1`,
		upsert: `INSERT INTO codeshot_state (state_key, document, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (state_key) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
	}
	if err := s.init(ctx, postgresSchema); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQL) init(ctx context.Context, schema string) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("statestore: initialize %s schema: %w", s.dialect, err)
	}
	return nil
}

func (s *SQL) Load(ctx context.Context) ([]byte, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, s.load, s.key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("statestore: load %q: %w", s.key, err)
	}
	return []byte(doc), true, nil
}

func (s *SQL) Save(ctx context.Context, raw []byte) error {
	if _, err := s.db.ExecContext(ctx, s.upsert, s.key, string(raw)); err != nil {
		return fmt.Errorf("statestore: save %q: %w", s.key, err)
	}
	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
