package db

import (
	"database/sql"
	"time"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/errors"
)

// PromoteParams describes one promotion.
type PromoteParams struct {
	// CandidateID is the accepted candidate to promote
	CandidateID string

	// EntityID is the ULID to assign when creating a new entity
	EntityID string

	// CanonicalName is the display name for a created entity
	CanonicalName string

	// MergeWithEntityID, when set, merges the candidate's payload into an
	// existing entity instead of creating one
	MergeWithEntityID string

	// Ecosystem tags a created entity
	Ecosystem string
}

// PromoteCandidate merges an accepted candidate into the canonical store.
// The status check, the entity write, and the candidate's promotion mark
// happen in one transaction. Promoting an already-promoted candidate is a
// no-op returning the existing entity id.
func PromoteCandidate(db *sql.DB, p PromoteParams) (string, error) {
	tx, err := db.Begin()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	defer tx.Rollback()

	var (
		status      string
		key         string
		keyNorm     string
		typ         string
		payloadJSON sql.NullString
		snapshotID  string
		promotedID  sql.NullString
	)
	err = tx.QueryRow(`
		SELECT status, key, key_norm, type, payload_json, snapshot_id, promoted_entity_id
		FROM candidates
		WHERE id = ?
	`, p.CandidateID).Scan(&status, &key, &keyNorm, &typ, &payloadJSON, &snapshotID, &promotedID)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFound("candidate", p.CandidateID)
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}

	// Idempotent under retry: a second promote returns the first result
	if promotedID.Valid {
		return promotedID.String, nil
	}

	if candidate.Status(status) != candidate.StatusAccepted {
		return "", errors.NewNotApproved(p.CandidateID, status)
	}

	payload, err := unmarshalJSON(payloadJSON)
	if err != nil {
		return "", err
	}

	decisionID, err := latestAcceptDecisionTx(tx, p.CandidateID)
	if err != nil {
		return "", err
	}

	now := time.Now().Unix()
	entityID := p.MergeWithEntityID

	if p.MergeWithEntityID != "" {
		if err := mergeAttributesTx(tx, p.MergeWithEntityID, payload, now); err != nil {
			return "", err
		}
	} else {
		name := p.CanonicalName
		if name == "" {
			name = key
		}
		attrsJSON, err := marshalJSON(payload)
		if err != nil {
			return "", err
		}

		entityID = p.EntityID
		_, err = tx.Exec(`
			INSERT INTO entities (
				id, key_norm, display_name, type, ecosystem, attributes_json,
				source_snapshot_id, promoted_by_decision_id, is_current, version,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 1, ?, ?)
		`, entityID, keyNorm, name, typ, p.Ecosystem, attrsJSON, snapshotID, decisionID, now, now)
		if err != nil {
			if isUniqueConstraintError(err) {
				return "", errors.NewConflict(
					"a current entity already exists for this key/type/ecosystem; promote with a merge target instead")
			}
			return "", errors.NewInternal(err)
		}
	}

	_, err = tx.Exec(`
		UPDATE candidates SET promoted_entity_id = ?, updated_at = ? WHERE id = ?
	`, entityID, now, p.CandidateID)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return "", errors.NewInternal(err)
	}
	return entityID, nil
}

// mergeAttributesTx unions payload into an entity's attributes. On key
// conflicts the candidate's fields win. Bumps the entity version.
func mergeAttributesTx(tx *sql.Tx, entityID string, payload map[string]any, now int64) error {
	var attrsJSON sql.NullString
	err := tx.QueryRow(`SELECT attributes_json FROM entities WHERE id = ? AND is_current = 1`, entityID).
		Scan(&attrsJSON)
	if err == sql.ErrNoRows {
		return errors.NewNotFound("entity", entityID)
	}
	if err != nil {
		return errors.NewInternal(err)
	}

	attrs, err := unmarshalJSON(attrsJSON)
	if err != nil {
		return err
	}
	if attrs == nil {
		attrs = make(map[string]any, len(payload))
	}
	for k, v := range payload {
		attrs[k] = v
	}

	merged, err := marshalJSON(attrs)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE entities SET attributes_json = ?, version = version + 1, updated_at = ?
		WHERE id = ?
	`, merged, now, entityID)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetEntityByID retrieves one entity.
func GetEntityByID(db *sql.DB, id string) (*candidate.CoreEntity, error) {
	row := db.QueryRow(entitySelect+` WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("entity", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// FindCurrentEntities returns current entities exactly matching a
// normalized key and type (the case-insensitive exact-duplicate check).
func FindCurrentEntities(db *sql.DB, keyNorm, typ string) ([]candidate.CoreEntity, error) {
	rows, err := db.Query(entitySelect+`
		WHERE key_norm = ? AND type = ? AND is_current = 1
		ORDER BY id
	`, keyNorm, typ)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectEntities(rows)
}

// ListCurrentEntitiesByType returns all current entities of a type, the
// similarity ranker's search space.
func ListCurrentEntitiesByType(db *sql.DB, typ string) ([]candidate.CoreEntity, error) {
	rows, err := db.Query(entitySelect+`
		WHERE type = ? AND is_current = 1
		ORDER BY id
	`, typ)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return collectEntities(rows)
}

const entitySelect = `
	SELECT id, key_norm, display_name, type, ecosystem, attributes_json,
		source_snapshot_id, promoted_by_decision_id, is_current, version,
		created_at, updated_at
	FROM entities
`

// collectEntities drains entity rows.
func collectEntities(rows *sql.Rows) ([]candidate.CoreEntity, error) {
	defer rows.Close()

	var out []candidate.CoreEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// scanEntity scans one entity row.
func scanEntity(row scanner) (*candidate.CoreEntity, error) {
	var (
		e         candidate.CoreEntity
		attrsJSON sql.NullString
		isCurrent int
	)
	err := row.Scan(&e.ID, &e.KeyNorm, &e.DisplayName, &e.Type, &e.Ecosystem, &attrsJSON,
		&e.SourceSnapshotID, &e.PromotedByDecisionID, &isCurrent, &e.Version,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Attributes, err = unmarshalJSON(attrsJSON)
	if err != nil {
		return nil, err
	}
	e.IsCurrent = isCurrent != 0
	return &e, nil
}
