package db

import (
	"database/sql"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/errors"
)

// InsertSnapshot stores a snapshot, content-addressed by its hash.
// If a snapshot with the same content hash already exists, its id is
// returned instead (idempotent ingest); nothing is written in that case.
func InsertSnapshot(db *sql.DB, s *candidate.Snapshot) (string, error) {
	query := `
		INSERT INTO snapshots (id, locator, content, content_hash, source_kind, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`

	result, err := db.Exec(query, s.ID, s.Locator, s.Content, s.ContentHash, s.SourceKind, s.CapturedAt)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if rows > 0 {
		return s.ID, nil
	}

	// Existing snapshot with identical content: return its id
	var existing string
	err = db.QueryRow(`SELECT id FROM snapshots WHERE content_hash = ?`, s.ContentHash).Scan(&existing)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return existing, nil
}

// GetSnapshotByID retrieves a snapshot including its content.
func GetSnapshotByID(db *sql.DB, id string) (*candidate.Snapshot, error) {
	query := `
		SELECT id, locator, content, content_hash, source_kind, captured_at
		FROM snapshots
		WHERE id = ?
	`

	var s candidate.Snapshot
	err := db.QueryRow(query, id).Scan(&s.ID, &s.Locator, &s.Content, &s.ContentHash, &s.SourceKind, &s.CapturedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("snapshot", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &s, nil
}

// GetLatestSnapshotByLocator retrieves the most recently captured snapshot
// for a locator. Candidates staged with only a locator resolve through this.
func GetLatestSnapshotByLocator(db *sql.DB, locator string) (*candidate.Snapshot, error) {
	query := `
		SELECT id, locator, content, content_hash, source_kind, captured_at
		FROM snapshots
		WHERE locator = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT 1
	`

	var s candidate.Snapshot
	err := db.QueryRow(query, locator).Scan(&s.ID, &s.Locator, &s.Content, &s.ContentHash, &s.SourceKind, &s.CapturedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNoSnapshot(locator)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &s, nil
}
