// Package store is the strategy persistence layer (spec §6 "Strategy
// persistence (naming, versioning, per-user storage)"): named,
// per-user-owned strategy documents backed by Postgres.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/quantedge-go/ruletree/pkg/logging"
	"github.com/rs/zerolog"
)

// Strategy is one saved strategy document.
type Strategy struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Rules     json.RawMessage `json:"rules"`
	UserID    string          `json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store wraps the strategies table (spec §6 persisted state layout).
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New opens a Store against an existing *sql.DB. cmd/backtester gives it
// a pool of its own, separate from the price repository's.
func New(db *sql.DB) *Store {
	return &Store{db: db, logger: logging.GetLogger("strategy-store")}
}

// Schema is the DDL for the persisted tables (spec §6). cmd/backtester
// applies it once at startup; every statement is CREATE TABLE IF NOT
// EXISTS, so existing tables are left as they are. This package never
// runs it itself.
const Schema = `
CREATE TABLE IF NOT EXISTS symbols (
	symbol TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS prices (
	symbol    TEXT NOT NULL,
	date      DATE NOT NULL,
	open      DOUBLE PRECISION NOT NULL,
	high      DOUBLE PRECISION NOT NULL,
	low       DOUBLE PRECISION NOT NULL,
	close     DOUBLE PRECISION NOT NULL,
	adj_close DOUBLE PRECISION NOT NULL,
	volume    DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (symbol, date)
);

CREATE TABLE IF NOT EXISTS strategies (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	rules      JSONB NOT NULL,
	user_id    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (name, user_id)
);
`

// Save inserts a new strategy or, on a (name, user_id) conflict, updates
// its rules and bumps updated_at (spec §6 "POST /save_strategy").
func (s *Store) Save(name, userID string, rules json.RawMessage) (int64, error) {
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO strategies (name, rules, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (name, user_id)
		DO UPDATE SET rules = EXCLUDED.rules, updated_at = NOW()
		RETURNING id
	`, name, rules, userID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: save strategy: %w", err)
	}
	return id, nil
}

// All returns every saved strategy, newest updated first (spec §6
// "GET /get_all_strategies").
func (s *Store) All() ([]Strategy, error) {
	rows, err := s.db.Query(`
		SELECT id, name, rules, user_id, created_at, updated_at
		FROM strategies
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list strategies: %w", err)
	}
	defer rows.Close()

	var out []Strategy
	for rows.Next() {
		var st Strategy
		if err := rows.Scan(&st.ID, &st.Name, &st.Rules, &st.UserID, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan strategy: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ErrNotFound is returned by Get when the strategy id does not exist.
var ErrNotFound = fmt.Errorf("store: strategy not found")

// Get returns one strategy by id (spec §6 "GET /get_strategy").
func (s *Store) Get(id int64) (*Strategy, error) {
	var st Strategy
	err := s.db.QueryRow(`
		SELECT id, name, rules, user_id, created_at, updated_at
		FROM strategies
		WHERE id = $1
	`, id).Scan(&st.ID, &st.Name, &st.Rules, &st.UserID, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get strategy: %w", err)
	}
	return &st, nil
}
