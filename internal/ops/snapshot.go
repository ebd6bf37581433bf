package ops

import (
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
	"github.com/hpungsan/vouch/internal/lineage"
)

// PutSnapshotInput contains parameters for the PutSnapshot operation.
type PutSnapshotInput struct {
	Locator    string // required
	Content    string // required
	SourceKind string // default: "text"
	CapturedAt int64  // default: now
}

// PutSnapshotOutput contains the result of the PutSnapshot operation.
type PutSnapshotOutput struct {
	ID           string `json:"id"`
	ContentHash  string `json:"content_hash"`
	Deduplicated bool   `json:"deduplicated"`
}

// sourceKinds lists the snapshot content kinds the render surface knows.
var sourceKinds = map[string]bool{
	"text":     true,
	"markdown": true,
	"html":     true,
}

// PutSnapshot stores an immutable content-addressed document snapshot.
// Re-submitting identical content returns the existing snapshot.
func PutSnapshot(database *sql.DB, input PutSnapshotInput) (*PutSnapshotOutput, error) {
	if strings.TrimSpace(input.Locator) == "" {
		return nil, errors.NewInvalidRequest("locator is required")
	}
	if input.Content == "" {
		return nil, errors.NewInvalidRequest("content is required")
	}
	if input.SourceKind == "" {
		input.SourceKind = "text"
	}
	if !sourceKinds[input.SourceKind] {
		return nil, errors.NewInvalidRequest("source_kind must be one of: text, markdown, html")
	}
	if input.CapturedAt == 0 {
		input.CapturedAt = time.Now().Unix()
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	s := &candidate.Snapshot{
		ID:          id,
		Locator:     strings.TrimSpace(input.Locator),
		Content:     []byte(input.Content),
		ContentHash: lineage.Checksum(input.Content),
		SourceKind:  input.SourceKind,
		CapturedAt:  input.CapturedAt,
	}

	storedID, err := db.InsertSnapshot(database, s)
	if err != nil {
		return nil, err
	}

	return &PutSnapshotOutput{
		ID:           storedID,
		ContentHash:  s.ContentHash,
		Deduplicated: storedID != id,
	}, nil
}

// GetSnapshotInput contains parameters for the GetSnapshot operation.
type GetSnapshotInput struct {
	ID      string // snapshot id, or
	Locator string // locator, resolved to the latest capture
}

// GetSnapshotOutput contains the result of the GetSnapshot operation.
type GetSnapshotOutput struct {
	candidate.Snapshot
}

// GetSnapshot retrieves a snapshot by id or by locator (latest capture).
func GetSnapshot(database *sql.DB, input GetSnapshotInput) (*GetSnapshotOutput, error) {
	var (
		s   *candidate.Snapshot
		err error
	)
	switch {
	case input.ID != "":
		s, err = db.GetSnapshotByID(database, input.ID)
	case input.Locator != "":
		s, err = db.GetLatestSnapshotByLocator(database, input.Locator)
	default:
		return nil, errors.NewInvalidRequest("must specify either id or locator")
	}
	if err != nil {
		return nil, err
	}
	return &GetSnapshotOutput{Snapshot: *s}, nil
}
