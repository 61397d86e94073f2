// Package store provides database schema migration management.
package store

import (
	"fmt"
	"time"
)

// migration is one versioned schema step. Migrations run in order inside a
// transaction each; applied versions are recorded in schema_migrations.
type migration struct {
	version     int
	description string
	statements  []string
}

// The schema mirrors the SPA's local database: session row, reference
// mirrors, the two outbound queues, the response cache and sync bookkeeping.
var migrations = []migration{
	{
		version:     1,
		description: "initial schema",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				role TEXT NOT NULL,
				token TEXT NOT NULL
			);`,
			`CREATE TABLE IF NOT EXISTS stores (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				address TEXT NOT NULL DEFAULT '',
				latitude REAL NOT NULL DEFAULT 0,
				longitude REAL NOT NULL DEFAULT 0,
				qr_code TEXT NOT NULL DEFAULT '',
				phone TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'ACTIVE',
				last_sync INTEGER NOT NULL DEFAULT 0
			);`,
			`CREATE INDEX IF NOT EXISTS idx_stores_qr_code ON stores(qr_code);`,
			`CREATE TABLE IF NOT EXISTS products (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				sku TEXT NOT NULL DEFAULT '',
				unit TEXT NOT NULL DEFAULT '',
				price REAL NOT NULL DEFAULT 0,
				image TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'ACTIVE',
				last_sync INTEGER NOT NULL DEFAULT 0
			);`,
			`CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);`,
			`CREATE TABLE IF NOT EXISTS assignments (
				local_id INTEGER PRIMARY KEY AUTOINCREMENT,
				assignment_id INTEGER NOT NULL,
				store_id INTEGER NOT NULL,
				product_id INTEGER NOT NULL,
				dealer_id INTEGER NOT NULL,
				status TEXT NOT NULL DEFAULT 'ACTIVE',
				assignment_type TEXT NOT NULL DEFAULT '',
				store_json TEXT,
				product_json TEXT,
				last_sync INTEGER NOT NULL DEFAULT 0
			);`,
			`CREATE INDEX IF NOT EXISTS idx_assignments_status ON assignments(status);`,
			`CREATE TABLE IF NOT EXISTS pending_visits (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				store_id INTEGER NOT NULL,
				qr_code TEXT NOT NULL,
				latitude REAL NOT NULL DEFAULT 0,
				longitude REAL NOT NULL DEFAULT 0,
				timestamp INTEGER NOT NULL,
				synced INTEGER NOT NULL DEFAULT 0,
				sync_attempts INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				last_attempt_at INTEGER NOT NULL DEFAULT 0,
				failed_permanent INTEGER NOT NULL DEFAULT 0
			);`,
			`CREATE INDEX IF NOT EXISTS idx_pending_visits_synced ON pending_visits(synced);`,
			`CREATE TABLE IF NOT EXISTS pending_orders (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				offline_unique_id TEXT NOT NULL UNIQUE,
				visit_id INTEGER,
				store_id INTEGER NOT NULL,
				items_json TEXT NOT NULL,
				total REAL NOT NULL DEFAULT 0,
				notes TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				synced INTEGER NOT NULL DEFAULT 0,
				sync_attempts INTEGER NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				last_attempt_at INTEGER NOT NULL DEFAULT 0,
				failed_permanent INTEGER NOT NULL DEFAULT 0
			);`,
			`CREATE INDEX IF NOT EXISTS idx_pending_orders_synced ON pending_orders(synced);`,
			`CREATE TABLE IF NOT EXISTS api_cache (
				cache_key TEXT PRIMARY KEY,
				data TEXT NOT NULL,
				url TEXT NOT NULL DEFAULT '',
				timestamp INTEGER NOT NULL
			);`,
			`CREATE INDEX IF NOT EXISTS idx_api_cache_timestamp ON api_cache(timestamp);`,
			`CREATE TABLE IF NOT EXISTS sync_metadata (
				key TEXT PRIMARY KEY,
				last_sync INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'never'
			);`,
		},
	},
}

// migrate applies all pending migrations.
func (db *DB) migrate() error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL,
		description TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}

		for _, stmt := range m.statements {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
			}
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.version, time.Now().Unix(), m.description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}
