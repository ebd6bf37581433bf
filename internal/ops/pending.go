package ops

import (
	"database/sql"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
)

// PendingInput contains parameters for the Pending operation.
type PendingInput struct {
	Type   string // optional type filter
	Limit  int    // default DefaultListLimit, max MaxListLimit
	Offset int
}

// PendingOutput contains the result of the Pending operation.
type PendingOutput struct {
	Candidates []candidate.Summary `json:"candidates"`
	Pagination Pagination          `json:"pagination"`
}

// Pending lists candidates awaiting review, newest first.
func Pending(database *sql.DB, input PendingInput) (*PendingOutput, error) {
	return listCandidates(database, db.ListFilter{
		Status: string(candidate.StatusPending),
		Type:   input.Type,
		Limit:  clampLimit(input.Limit),
		Offset: max(input.Offset, 0),
	})
}

// ListInput contains parameters for the List operation.
type ListInput struct {
	Status string // optional status filter
	Type   string // optional type filter
	Limit  int
	Offset int
}

// List lists candidates in any status, newest first.
func List(database *sql.DB, input ListInput) (*PendingOutput, error) {
	if input.Status != "" && !candidate.Status(input.Status).Valid() {
		return nil, errors.NewInvalidRequest("status must be one of: pending, accepted, rejected, merged, needs_context")
	}
	return listCandidates(database, db.ListFilter{
		Status: input.Status,
		Type:   input.Type,
		Limit:  clampLimit(input.Limit),
		Offset: max(input.Offset, 0),
	})
}

func listCandidates(database *sql.DB, filter db.ListFilter) (*PendingOutput, error) {
	rows, err := db.ListCandidates(database, filter)
	if err != nil {
		return nil, err
	}
	total, err := db.CountCandidates(database, filter)
	if err != nil {
		return nil, err
	}

	summaries := make([]candidate.Summary, 0, len(rows))
	for _, c := range rows {
		summaries = append(summaries, candidate.Summarize(c))
	}

	return &PendingOutput{
		Candidates: summaries,
		Pagination: Pagination{
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			HasMore: filter.Offset+len(summaries) < total,
			Total:   total,
		},
	}, nil
}
