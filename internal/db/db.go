package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/vouch/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/vouch.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.vouch.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "vouch.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// Call after Init if you need to tune pool behavior for contention.
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
//
// Foreign keys point backward in creation order: candidates reference
// snapshots, verifications and decisions reference candidates, entities
// reference snapshots and decisions. No cycles.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
		  id           TEXT PRIMARY KEY,
		  locator      TEXT NOT NULL,
		  content      BLOB NOT NULL,
		  content_hash TEXT NOT NULL UNIQUE,
		  source_kind  TEXT NOT NULL DEFAULT 'text',
		  captured_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_locator
		ON snapshots(locator, captured_at DESC);

		CREATE TABLE IF NOT EXISTS candidates (
		  id                  TEXT PRIMARY KEY,
		  type                TEXT NOT NULL,
		  key                 TEXT NOT NULL,
		  key_norm            TEXT NOT NULL,
		  payload_json        TEXT,
		  evidence_text       TEXT NOT NULL,
		  evidence_type       TEXT,
		  oracle_confidence   REAL NOT NULL,
		  snapshot_id         TEXT NOT NULL REFERENCES snapshots(id),
		  status              TEXT NOT NULL DEFAULT 'pending',
		  review_decision     TEXT,
		  retry_count         INTEGER NOT NULL DEFAULT 0,
		  needs_manual_review INTEGER NOT NULL DEFAULT 0,
		  error_log           TEXT,
		  promoted_entity_id  TEXT,
		  claimed_at          INTEGER,
		  created_at          INTEGER NOT NULL,
		  updated_at          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_candidates_status
		ON candidates(status, created_at);

		CREATE INDEX IF NOT EXISTS idx_candidates_key
		ON candidates(key_norm, type);

		CREATE TABLE IF NOT EXISTS verifications (
		  id                  TEXT PRIMARY KEY,
		  candidate_id        TEXT NOT NULL REFERENCES candidates(id),
		  checksum            TEXT NOT NULL,
		  verified            INTEGER NOT NULL,
		  confidence          REAL NOT NULL,
		  method              TEXT NOT NULL,
		  match_offset        INTEGER,
		  match_length        INTEGER NOT NULL,
		  occurrences         INTEGER NOT NULL,
		  normalizations_json TEXT,
		  created_at          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_verifications_candidate
		ON verifications(candidate_id, id DESC);

		CREATE TABLE IF NOT EXISTS decisions (
		  id                  TEXT PRIMARY KEY,
		  candidate_id        TEXT NOT NULL REFERENCES candidates(id),
		  decision            TEXT NOT NULL,
		  actor               TEXT NOT NULL,
		  reasoning           TEXT NOT NULL,
		  confidence_override REAL,
		  suggested_name      TEXT,
		  source_key          TEXT,
		  created_at          INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_decisions_candidate
		ON decisions(candidate_id, id);

		CREATE TABLE IF NOT EXISTS entities (
		  id                      TEXT PRIMARY KEY,
		  key_norm                TEXT NOT NULL,
		  display_name            TEXT NOT NULL,
		  type                    TEXT NOT NULL,
		  ecosystem               TEXT NOT NULL DEFAULT '',
		  attributes_json         TEXT,
		  source_snapshot_id      TEXT NOT NULL REFERENCES snapshots(id),
		  promoted_by_decision_id TEXT NOT NULL REFERENCES decisions(id),
		  is_current              INTEGER NOT NULL DEFAULT 1,
		  version                 INTEGER NOT NULL DEFAULT 1,
		  created_at              INTEGER NOT NULL,
		  updated_at              INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_current
		ON entities(key_norm, type, ecosystem)
		WHERE is_current = 1;

		CREATE TABLE IF NOT EXISTS review_events (
		  event_id     TEXT PRIMARY KEY,
		  candidate_id TEXT NOT NULL,
		  decision_id  TEXT NOT NULL,
		  received_at  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS epistemic_records (
		  candidate_id TEXT PRIMARY KEY REFERENCES candidates(id),
		  observer     TEXT NOT NULL,
		  role         TEXT,
		  contact_mode TEXT,
		  valid_from   INTEGER,
		  valid_to     INTEGER,
		  notes        TEXT
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
