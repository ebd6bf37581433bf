package db

import (
	"database/sql"
	"time"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/errors"
)

// InsertCandidate stores a new candidate, its initial verification record,
// and an optional epistemic sidecar in one transaction.
func InsertCandidate(db *sql.DB, c *candidate.Candidate, epi *candidate.EpistemicRecord) error {
	payloadJSON, err := marshalJSON(c.Payload)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO candidates (
			id, type, key, key_norm, payload_json, evidence_text, evidence_type,
			oracle_confidence, snapshot_id, status, review_decision,
			retry_count, needs_manual_review, error_log,
			promoted_entity_id, claimed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, NULL, NULL, ?, ?)
	`,
		c.ID, c.Type, c.Key, c.KeyNorm, payloadJSON, c.EvidenceText, c.EvidenceType,
		c.OracleConfidence, c.SnapshotID, string(c.Status),
		c.RetryCount, boolToInt(c.NeedsManualReview), toNullString(c.ErrorLog),
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	if err := insertVerificationTx(tx, &c.Verification); err != nil {
		return err
	}

	if epi != nil {
		_, err = tx.Exec(`
			INSERT INTO epistemic_records (candidate_id, observer, role, contact_mode, valid_from, valid_to, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ID, epi.Observer, epi.Role, epi.ContactMode,
			toNullInt64(epi.ValidFrom), toNullInt64(epi.ValidTo), epi.Notes)
		if err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// insertVerificationTx appends one immutable verification record.
func insertVerificationTx(tx *sql.Tx, v *candidate.Verification) error {
	var offset sql.NullInt64
	if v.Offset != nil {
		offset = sql.NullInt64{Int64: int64(*v.Offset), Valid: true}
	}
	norms, err := marshalStrings(v.Normalizations)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO verifications (
			id, candidate_id, checksum, verified, confidence, method,
			match_offset, match_length, occurrences, normalizations_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.ID, v.CandidateID, v.Checksum, boolToInt(v.Verified), v.Confidence, string(v.Method),
		offset, v.Length, v.Occurrences, norms, v.CreatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// AppendVerification records a fresh verification for a still-pending
// candidate and clears its work-claim lease. Earlier records are never
// touched: recomputation adds, it does not overwrite.
// Fails AlreadyDecided if the candidate reached a terminal state.
func AppendVerification(db *sql.DB, v *candidate.Verification) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	result, err := tx.Exec(`
		UPDATE candidates SET claimed_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, now, v.CandidateID)
	if err != nil {
		return errors.NewInternal(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rows == 0 {
		return terminalOrMissing(tx, v.CandidateID)
	}

	if err := insertVerificationTx(tx, v); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// terminalOrMissing distinguishes NotFound from AlreadyDecided after a
// guarded status update matched no rows.
func terminalOrMissing(tx *sql.Tx, candidateID string) error {
	var status string
	err := tx.QueryRow(`SELECT status FROM candidates WHERE id = ?`, candidateID).Scan(&status)
	if err == sql.ErrNoRows {
		return errors.NewNotFound("candidate", candidateID)
	}
	if err != nil {
		return errors.NewInternal(err)
	}
	return errors.NewAlreadyDecided(candidateID, status)
}

// candidateColumns is the select list shared by candidate queries. The
// verification columns come from the newest record (ULIDs order by time).
const candidateColumns = `
	c.id, c.type, c.key, c.key_norm, c.payload_json, c.evidence_text, c.evidence_type,
	c.oracle_confidence, c.snapshot_id, c.status, c.review_decision,
	c.retry_count, c.needs_manual_review, c.error_log,
	c.promoted_entity_id, c.claimed_at, c.created_at, c.updated_at,
	v.id, v.checksum, v.verified, v.confidence, v.method,
	v.match_offset, v.match_length, v.occurrences, v.normalizations_json, v.created_at
`

const latestVerificationJoin = `
	JOIN verifications v ON v.id = (
		SELECT id FROM verifications WHERE candidate_id = c.id ORDER BY id DESC LIMIT 1
	)
`

// GetCandidateByID retrieves a candidate with its latest verification.
func GetCandidateByID(db *sql.DB, id string) (*candidate.Candidate, error) {
	row := db.QueryRow(`
		SELECT `+candidateColumns+`
		FROM candidates c`+latestVerificationJoin+`
		WHERE c.id = ?
	`, id)

	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("candidate", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// FindPendingByKeyNorm returns pending candidates whose normalized key and
// type both match, oldest first. excludeID drops the probe candidate itself
// when the caller is checking one staged candidate against its peers.
func FindPendingByKeyNorm(db *sql.DB, keyNorm, typ, excludeID string) ([]*candidate.Candidate, error) {
	rows, err := db.Query(`
		SELECT `+candidateColumns+`
		FROM candidates c`+latestVerificationJoin+`
		WHERE c.status = ? AND c.key_norm = ? AND c.type = ? AND c.id != ?
		ORDER BY c.id ASC
	`, candidate.StatusPending, keyNorm, typ, excludeID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []*candidate.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// ListFilter narrows ListCandidates results.
type ListFilter struct {
	Status string
	Type   string
	Limit  int
	Offset int
}

// ListCandidates returns candidates matching the filter, newest first,
// each with its latest verification.
func ListCandidates(db *sql.DB, f ListFilter) ([]*candidate.Candidate, error) {
	query := `
		SELECT ` + candidateColumns + `
		FROM candidates c` + latestVerificationJoin + `
		WHERE 1=1
	`
	args := []any{}
	if f.Status != "" {
		query += " AND c.status = ?"
		args = append(args, f.Status)
	}
	if f.Type != "" {
		query += " AND c.type = ?"
		args = append(args, f.Type)
	}
	query += " ORDER BY c.id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []*candidate.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// CountCandidates returns the number of candidates matching the filter's
// status and type (limit and offset are ignored).
func CountCandidates(db *sql.DB, f ListFilter) (int, error) {
	query := `SELECT COUNT(*) FROM candidates c WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		query += " AND c.status = ?"
		args = append(args, f.Status)
	}
	if f.Type != "" {
		query += " AND c.type = ?"
		args = append(args, f.Type)
	}

	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// ClaimNextPending atomically claims the oldest pending candidate whose
// lease is free or expired, and returns it. Returns (nil, nil) when
// nothing is claimable. Two workers can never claim the same candidate:
// the claim is a single guarded UPDATE, serialized by the writer lock.
func ClaimNextPending(db *sql.DB, leaseSeconds int) (*candidate.Candidate, error) {
	now := time.Now().Unix()
	cutoff := now - int64(leaseSeconds)

	var id string
	err := db.QueryRow(`
		UPDATE candidates SET claimed_at = ?
		WHERE id = (
			SELECT id FROM candidates
			WHERE status = 'pending' AND (claimed_at IS NULL OR claimed_at <= ?)
			ORDER BY id
			LIMIT 1
		) AND status = 'pending' AND (claimed_at IS NULL OR claimed_at <= ?)
		RETURNING id
	`, now, cutoff, cutoff).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return GetCandidateByID(db, id)
}

// ReleaseClaim frees a candidate's work-claim lease without other changes.
func ReleaseClaim(db *sql.DB, candidateID string) error {
	_, err := db.Exec(`UPDATE candidates SET claimed_at = NULL WHERE id = ?`, candidateID)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetEpistemicRecord retrieves the sidecar for a candidate, or nil if absent.
func GetEpistemicRecord(db *sql.DB, candidateID string) (*candidate.EpistemicRecord, error) {
	var (
		e        candidate.EpistemicRecord
		from, to sql.NullInt64
	)
	err := db.QueryRow(`
		SELECT candidate_id, observer, role, contact_mode, valid_from, valid_to, notes
		FROM epistemic_records
		WHERE candidate_id = ?
	`, candidateID).Scan(&e.CandidateID, &e.Observer, &e.Role, &e.ContactMode, &from, &to, &e.Notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	e.ValidFrom = fromNullInt64(from)
	e.ValidTo = fromNullInt64(to)
	return &e, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

// scanCandidate scans a candidate row joined with its latest verification.
func scanCandidate(row scanner) (*candidate.Candidate, error) {
	var (
		c           candidate.Candidate
		payloadJSON sql.NullString
		evType      sql.NullString
		status      string
		reviewDec   sql.NullString
		needsManual int
		errorLog    sql.NullString
		promotedID  sql.NullString
		claimedAt   sql.NullInt64
		verified    int
		method      string
		offset      sql.NullInt64
		normsJSON   sql.NullString
	)

	err := row.Scan(
		&c.ID, &c.Type, &c.Key, &c.KeyNorm, &payloadJSON, &c.EvidenceText, &evType,
		&c.OracleConfidence, &c.SnapshotID, &status, &reviewDec,
		&c.RetryCount, &needsManual, &errorLog,
		&promotedID, &claimedAt, &c.CreatedAt, &c.UpdatedAt,
		&c.Verification.ID, &c.Verification.Checksum, &verified, &c.Verification.Confidence, &method,
		&offset, &c.Verification.Length, &c.Verification.Occurrences, &normsJSON, &c.Verification.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Payload, err = unmarshalJSON(payloadJSON)
	if err != nil {
		return nil, err
	}
	if evType.Valid {
		c.EvidenceType = evType.String
	}
	c.Status = candidate.Status(status)
	c.ReviewDecision = fromNullString(reviewDec)
	c.NeedsManualReview = needsManual != 0
	c.ErrorLog = fromNullString(errorLog)
	c.PromotedEntityID = fromNullString(promotedID)
	c.ClaimedAt = fromNullInt64(claimedAt)

	c.Verification.CandidateID = c.ID
	c.Verification.Verified = verified != 0
	c.Verification.Method = candidate.Method(method)
	if offset.Valid {
		n := int(offset.Int64)
		c.Verification.Offset = &n
	}
	c.Verification.Normalizations, err = unmarshalStrings(normsJSON)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// boolToInt converts a bool to its SQLite integer form.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
