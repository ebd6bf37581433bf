package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
)

// ApplyReviewInput contains parameters for the ApplyReview operation: one
// external reviewer event, delivered at-least-once.
type ApplyReviewInput struct {
	EventID     string // required, the external system's delivery id
	CandidateID string // required
	Decision    string // required
	Actor       string // required
	Reasoning   string // required

	ConfidenceOverride *float64
	SuggestedName      *string
}

// ApplyReviewOutput contains the result of the ApplyReview operation.
type ApplyReviewOutput struct {
	DecisionID  string           `json:"decision_id"`
	CandidateID string           `json:"candidate_id"`
	Status      candidate.Status `json:"status"`

	// Replayed is true when this event id had been processed before and
	// the prior result was returned unchanged
	Replayed bool `json:"replayed,omitempty"`
}

// ApplyReview idempotently applies an external reviewer decision. A
// replayed event id returns the original outcome without a second
// decision or transition.
func ApplyReview(database *sql.DB, input ApplyReviewInput) (*ApplyReviewOutput, error) {
	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		return nil, errors.NewInvalidRequest("event_id is required")
	}

	d, err := buildDecision(DecideInput{
		CandidateID:        input.CandidateID,
		Decision:           input.Decision,
		Actor:              input.Actor,
		Reasoning:          input.Reasoning,
		ConfidenceOverride: input.ConfidenceOverride,
		SuggestedName:      input.SuggestedName,
		SourceKey:          &eventID,
	})
	if err != nil {
		return nil, err
	}

	res, err := db.ApplyReviewEvent(database, eventID, d)
	if err != nil {
		return nil, err
	}

	return &ApplyReviewOutput{
		DecisionID:  res.DecisionID,
		CandidateID: d.CandidateID,
		Status:      res.Status,
		Replayed:    res.Replayed,
	}, nil
}
