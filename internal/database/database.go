package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/reviewplace/slotboard/internal/config"
)

// DB holds database connections
type DB struct {
	Postgres *sqlx.DB
}

// NewDB creates new database connections using config
func NewDB(ctx context.Context, cfg *config.Config) (*DB, error) {
	// Connect to PostgreSQL
	postgres, err := sqlx.Connect("postgres", cfg.Database.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Configure connection pool
	postgres.SetMaxOpenConns(cfg.Database.MaxConns)
	postgres.SetMaxIdleConns(cfg.Database.MinConns)
	postgres.SetConnMaxLifetime(time.Hour)

	// Test PostgreSQL connection
	if err := postgres.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db := &DB{Postgres: postgres}

	if err := db.initSchema(ctx); err != nil {
		postgres.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Println("Successfully connected to PostgreSQL")

	return db, nil
}

// initSchema creates the tables and indexes if they don't exist.
func (db *DB) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reviews (
			id BIGSERIAL PRIMARY KEY,
			platform TEXT NOT NULL,
			daily_count INTEGER NOT NULL CHECK (daily_count >= 0),
			per_user_daily_limit INTEGER NOT NULL DEFAULT 0,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS slots (
			id BIGSERIAL PRIMARY KEY,
			review_id BIGINT NOT NULL REFERENCES reviews(id),
			slot_number INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'unopened',
			opened_date TEXT,
			reserved_by TEXT,
			reserved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (review_id, slot_number)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_quotas (
			review_id BIGINT NOT NULL REFERENCES reviews(id),
			quota_date TEXT NOT NULL,
			available_slots INTEGER NOT NULL,
			reserved_slots INTEGER NOT NULL DEFAULT 0,
			refreshed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (review_id, quota_date)
		)`,
		`CREATE TABLE IF NOT EXISTS slot_submissions (
			slot_id BIGINT PRIMARY KEY REFERENCES slots(id),
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			nickname TEXT NOT NULL,
			image_urls TEXT NOT NULL DEFAULT '[]',
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS reservation_events (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			review_id BIGINT NOT NULL,
			platform TEXT NOT NULL,
			action TEXT NOT NULL,
			event_date TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_review_status ON slots(review_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_review_opened ON slots(review_id, opened_date)`,
		`CREATE INDEX IF NOT EXISTS idx_slots_reserved_by ON slots(reserved_by)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_date ON reservation_events(user_id, event_date)`,
	}

	for _, query := range queries {
		if _, err := db.Postgres.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// Close closes all database connections
func (db *DB) Close() error {
	if err := db.Postgres.Close(); err != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", err)
	}

	return nil
}
