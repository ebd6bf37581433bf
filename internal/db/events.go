package db

import (
	"database/sql"
	"time"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/errors"
)

// ReviewEventResult reports the outcome of applying an external review event.
type ReviewEventResult struct {
	// DecisionID is the decision the event caused (or previously caused)
	DecisionID string

	// Status is the candidate status after the event
	Status candidate.Status

	// Replayed is true when the event id had already been processed and
	// the prior result was returned unchanged
	Replayed bool
}

// ApplyReviewEvent idempotently applies an external reviewer decision.
// The processed-event check, the decision insert, and the status
// transition all happen in one transaction, so at-least-once webhook
// delivery can never double-apply.
func ApplyReviewEvent(db *sql.DB, eventID string, d *candidate.Decision) (*ReviewEventResult, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback()

	if prior, err := lookupProcessedEventTx(tx, eventID); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	status, err := recordDecisionTx(tx, d)
	if err != nil {
		// A replay can race the original delivery: by the time this
		// delivery ran, the candidate may have been decided by the same
		// event through another connection. If the event log has the id,
		// return the prior result instead of the conflict.
		if errors.Is(err, errors.ErrAlreadyDecided) {
			if prior, lookupErr := lookupProcessedEvent(db, eventID); lookupErr == nil && prior != nil {
				return prior, nil
			}
		}
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO review_events (event_id, candidate_id, decision_id, received_at)
		VALUES (?, ?, ?, ?)
	`, eventID, d.CandidateID, d.ID, time.Now().Unix())
	if err != nil {
		if isUniqueConstraintError(err) {
			// Lost the race to a concurrent delivery of the same event
			if prior, lookupErr := lookupProcessedEvent(db, eventID); lookupErr == nil && prior != nil {
				return prior, nil
			}
		}
		return nil, errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &ReviewEventResult{DecisionID: d.ID, Status: status}, nil
}

// lookupProcessedEventTx returns the prior result for an event id, or nil.
func lookupProcessedEventTx(tx *sql.Tx, eventID string) (*ReviewEventResult, error) {
	var decisionID, candidateID string
	err := tx.QueryRow(`
		SELECT decision_id, candidate_id FROM review_events WHERE event_id = ?
	`, eventID).Scan(&decisionID, &candidateID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	var status string
	if err := tx.QueryRow(`SELECT status FROM candidates WHERE id = ?`, candidateID).Scan(&status); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &ReviewEventResult{
		DecisionID: decisionID,
		Status:     candidate.Status(status),
		Replayed:   true,
	}, nil
}

// lookupProcessedEvent is lookupProcessedEventTx outside a transaction,
// used after a rollback.
func lookupProcessedEvent(db *sql.DB, eventID string) (*ReviewEventResult, error) {
	var decisionID, candidateID string
	err := db.QueryRow(`
		SELECT decision_id, candidate_id FROM review_events WHERE event_id = ?
	`, eventID).Scan(&decisionID, &candidateID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	var status string
	if err := db.QueryRow(`SELECT status FROM candidates WHERE id = ?`, candidateID).Scan(&status); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &ReviewEventResult{
		DecisionID: decisionID,
		Status:     candidate.Status(status),
		Replayed:   true,
	}, nil
}
