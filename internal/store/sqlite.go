// Package store persists the router's durable side: the routing event
// journal, the arbitration audit trail, and the known-noun route table.
// Everything volatile (pending options, latches, guards) stays in the
// session package and is never written here.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite pragmas: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS routing_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			action TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_routing_events_session
			ON routing_events(session_id, created_at_unix);`,
		`CREATE TABLE IF NOT EXISTS arbitration_audit (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			decision TEXT,
			choice_id TEXT,
			confidence REAL NOT NULL DEFAULT 0,
			reason TEXT,
			err_kind TEXT,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			retried INTEGER NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS noun_routes (
			noun TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			target_id TEXT,
			target_label TEXT,
			updated_at_unix INTEGER NOT NULL
		);`,
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}

	alterQueries := []string{
		`ALTER TABLE arbitration_audit ADD COLUMN retried INTEGER NOT NULL DEFAULT 0;`,
		`ALTER TABLE arbitration_audit ADD COLUMN latency_ms INTEGER NOT NULL DEFAULT 0;`,
		`ALTER TABLE noun_routes ADD COLUMN target_label TEXT;`,
	}
	for _, query := range alterQueries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			message := strings.ToLower(err.Error())
			if strings.Contains(message, "duplicate column name") || strings.Contains(message, "no such table") {
				continue
			}
			return fmt.Errorf("run migration alter: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
