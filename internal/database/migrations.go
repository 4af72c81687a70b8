package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create users table",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL,
				email TEXT UNIQUE NOT NULL COLLATE NOCASE,
				password_hash TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_login_at DATETIME
			);

			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		`,
	},
	{
		Version:     2,
		Description: "Create files table",
		SQL: `
			CREATE TABLE IF NOT EXISTS files (
				id TEXT PRIMARY KEY,
				owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				original_filename TEXT NOT NULL,
				content_type TEXT NOT NULL,
				file_size INTEGER NOT NULL,
				storage_key TEXT NOT NULL UNIQUE,
				uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner_id, uploaded_at DESC);
		`,
	},
	{
		Version:     3,
		Description: "Create share_links table",
		SQL: `
			CREATE TABLE IF NOT EXISTS share_links (
				id TEXT PRIMARY KEY,
				owner_id INTEGER NOT NULL REFERENCES users(id),
				share_all INTEGER NOT NULL DEFAULT 0,
				password_hash TEXT,
				max_downloads INTEGER,
				download_count INTEGER NOT NULL DEFAULT 0,
				expires_at DATETIME,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				deleted_at DATETIME,
				CHECK (max_downloads IS NULL OR max_downloads > 0),
				CHECK (max_downloads IS NULL OR download_count <= max_downloads)
			);

			CREATE INDEX IF NOT EXISTS idx_share_links_owner ON share_links(owner_id, created_at DESC);
		`,
	},
	{
		Version:     4,
		Description: "Create share_link_files table",
		SQL: `
			CREATE TABLE IF NOT EXISTS share_link_files (
				share_link_id TEXT NOT NULL REFERENCES share_links(id),
				file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				PRIMARY KEY (share_link_id, file_id)
			);

			CREATE INDEX IF NOT EXISTS idx_share_link_files_file ON share_link_files(file_id);
		`,
	},
	{
		Version:     5,
		Description: "Create share_unlocks table",
		SQL: `
			CREATE TABLE IF NOT EXISTS share_unlocks (
				share_link_id TEXT NOT NULL REFERENCES share_links(id),
				session_id TEXT NOT NULL,
				unlocked_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				expires_at DATETIME NOT NULL,
				PRIMARY KEY (share_link_id, session_id)
			);

			CREATE INDEX IF NOT EXISTS idx_share_unlocks_expires ON share_unlocks(expires_at);
		`,
	},
}

// Migrate runs all pending migrations.
func (db *DB) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}

			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
				m.Version, m.Description, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to record migration: %w", err)
			}

			return nil
		})

		if err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
	}

	return nil
}

// CurrentVersion returns the current schema version.
func (db *DB) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
