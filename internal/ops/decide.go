package ops

import (
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
)

// DecideInput contains parameters for the Decide operation.
type DecideInput struct {
	CandidateID string // required
	Decision    string // accept, reject, merge, needs_more_evidence, defer
	Actor       string // required
	Reasoning   string // required

	// ConfidenceOverride optionally records the reviewer's own confidence
	ConfidenceOverride *float64

	// SuggestedName optionally proposes the canonical display name to use
	// at promotion time
	SuggestedName *string

	// SourceKey optionally records where the decision came from
	SourceKey *string
}

// DecideOutput contains the result of the Decide operation.
type DecideOutput struct {
	DecisionID  string           `json:"decision_id"`
	CandidateID string           `json:"candidate_id"`
	Status      candidate.Status `json:"status"`
}

// Decide records a review decision and transitions the candidate. The
// decision record and the status transition are one atomic unit; a
// candidate already in a terminal state fails AlreadyDecided.
func Decide(database *sql.DB, input DecideInput) (*DecideOutput, error) {
	d, err := buildDecision(input)
	if err != nil {
		return nil, err
	}

	status, err := db.RecordDecision(database, d)
	if err != nil {
		return nil, err
	}

	return &DecideOutput{
		DecisionID:  d.ID,
		CandidateID: d.CandidateID,
		Status:      status,
	}, nil
}

// buildDecision validates decide parameters into a decision record.
func buildDecision(input DecideInput) (*candidate.Decision, error) {
	if strings.TrimSpace(input.CandidateID) == "" {
		return nil, errors.NewInvalidRequest("candidate_id is required")
	}
	kind := candidate.DecisionKind(strings.TrimSpace(input.Decision))
	if !kind.Valid() {
		return nil, errors.NewInvalidRequest("decision must be one of: accept, reject, merge, needs_more_evidence, defer")
	}
	if strings.TrimSpace(input.Actor) == "" {
		return nil, errors.NewInvalidRequest("actor is required")
	}
	if strings.TrimSpace(input.Reasoning) == "" {
		return nil, errors.NewInvalidRequest("reasoning is required")
	}
	if input.ConfidenceOverride != nil && (*input.ConfidenceOverride < 0 || *input.ConfidenceOverride > 1) {
		return nil, errors.NewInvalidRequest("confidence_override must be in [0,1]")
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &candidate.Decision{
		ID:                 id,
		CandidateID:        strings.TrimSpace(input.CandidateID),
		Kind:               kind,
		Actor:              strings.TrimSpace(input.Actor),
		Reasoning:          strings.TrimSpace(input.Reasoning),
		ConfidenceOverride: input.ConfidenceOverride,
		SuggestedName:      cleanOptionalString(input.SuggestedName),
		SourceKey:          cleanOptionalString(input.SourceKey),
		CreatedAt:          time.Now().Unix(),
	}, nil
}
