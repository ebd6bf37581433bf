package db

import (
	"database/sql"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/errors"
)

// RecordDecision atomically inserts a decision record and applies the
// status transition it causes. Two decisions racing on the same candidate
// cannot both succeed: the transition is a single guarded UPDATE, so the
// loser observes a terminal status and gets AlreadyDecided.
func RecordDecision(db *sql.DB, d *candidate.Decision) (candidate.Status, error) {
	tx, err := db.Begin()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	defer tx.Rollback()

	newStatus, err := recordDecisionTx(tx, d)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", errors.NewInternal(err)
	}
	return newStatus, nil
}

// recordDecisionTx is the transactional core of RecordDecision, shared
// with the review-event path so both run in one atomic unit.
func recordDecisionTx(tx *sql.Tx, d *candidate.Decision) (candidate.Status, error) {
	newStatus, err := candidate.StatusAfter(d.Kind)
	if err != nil {
		return "", errors.NewInvalidRequest(err.Error())
	}

	// Guarded transition: only a pending candidate accepts a decision.
	// A defer decision keeps the status but still requires pending.
	var result sql.Result
	if newStatus == candidate.StatusPending {
		result, err = tx.Exec(`
			UPDATE candidates SET updated_at = ?
			WHERE id = ? AND status = 'pending'
		`, d.CreatedAt, d.CandidateID)
	} else {
		result, err = tx.Exec(`
			UPDATE candidates SET status = ?, review_decision = ?, updated_at = ?
			WHERE id = ? AND status = 'pending'
		`, string(newStatus), string(d.Kind), d.CreatedAt, d.CandidateID)
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if rows == 0 {
		return "", terminalOrMissing(tx, d.CandidateID)
	}

	_, err = tx.Exec(`
		INSERT INTO decisions (
			id, candidate_id, decision, actor, reasoning,
			confidence_override, suggested_name, source_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, d.CandidateID, string(d.Kind), d.Actor, d.Reasoning,
		toNullFloat64(d.ConfidenceOverride), toNullString(d.SuggestedName),
		toNullString(d.SourceKey), d.CreatedAt,
	)
	if err != nil {
		return "", errors.NewInternal(err)
	}

	return newStatus, nil
}

// GetDecisionByID retrieves one decision record.
func GetDecisionByID(db *sql.DB, id string) (*candidate.Decision, error) {
	row := db.QueryRow(`
		SELECT id, candidate_id, decision, actor, reasoning,
			confidence_override, suggested_name, source_key, created_at
		FROM decisions
		WHERE id = ?
	`, id)

	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("decision", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return d, nil
}

// ListDecisionsByCandidate returns a candidate's full decision trail,
// oldest first.
func ListDecisionsByCandidate(db *sql.DB, candidateID string) ([]*candidate.Decision, error) {
	rows, err := db.Query(`
		SELECT id, candidate_id, decision, actor, reasoning,
			confidence_override, suggested_name, source_key, created_at
		FROM decisions
		WHERE candidate_id = ?
		ORDER BY id
	`, candidateID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []*candidate.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// latestAcceptDecisionTx finds the accepting decision for a candidate,
// needed for entity provenance at promotion time.
func latestAcceptDecisionTx(tx *sql.Tx, candidateID string) (string, error) {
	var id string
	err := tx.QueryRow(`
		SELECT id FROM decisions
		WHERE candidate_id = ? AND decision = 'accept'
		ORDER BY id DESC
		LIMIT 1
	`, candidateID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", errors.NewConflict("accepted candidate has no accept decision on record")
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return id, nil
}

// scanDecision scans one decision row.
func scanDecision(row scanner) (*candidate.Decision, error) {
	var (
		d         candidate.Decision
		kind      string
		override  sql.NullFloat64
		suggested sql.NullString
		sourceKey sql.NullString
	)
	err := row.Scan(&d.ID, &d.CandidateID, &kind, &d.Actor, &d.Reasoning,
		&override, &suggested, &sourceKey, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Kind = candidate.DecisionKind(kind)
	d.ConfidenceOverride = fromNullFloat64(override)
	d.SuggestedName = fromNullString(suggested)
	d.SourceKey = fromNullString(sourceKey)
	return &d, nil
}
