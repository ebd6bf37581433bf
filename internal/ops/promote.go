package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
)

// PromoteInput contains parameters for the Promote operation.
type PromoteInput struct {
	CandidateID string // required

	// CanonicalName overrides the entity display name. When empty, the
	// accepting decision's suggested name is used, then the candidate key.
	CanonicalName string

	// MergeWithEntityID merges the candidate's payload into an existing
	// entity instead of creating a new one
	MergeWithEntityID string

	// DryRun previews the promotion without mutating anything
	DryRun bool
}

// PromoteOutput contains the result of the Promote operation.
type PromoteOutput struct {
	EntityID      string `json:"entity_id,omitempty"`
	CandidateID   string `json:"candidate_id"`
	CanonicalName string `json:"canonical_name"`
	Merged        bool   `json:"merged"`
	DryRun        bool   `json:"dry_run,omitempty"`

	// AlreadyPromoted is true when the candidate had been promoted before
	// and the existing entity id was returned
	AlreadyPromoted bool `json:"already_promoted,omitempty"`
}

// Promote merges an accepted candidate into the canonical store, creating
// a new entity or merging into an existing one. Promoting twice returns
// the same entity id without a second write.
func Promote(database *sql.DB, input PromoteInput) (*PromoteOutput, error) {
	if strings.TrimSpace(input.CandidateID) == "" {
		return nil, errors.NewInvalidRequest("candidate_id is required")
	}

	c, err := db.GetCandidateByID(database, input.CandidateID)
	if err != nil {
		return nil, err
	}

	name, err := canonicalName(database, c, input.CanonicalName)
	if err != nil {
		return nil, err
	}

	if input.DryRun {
		return dryRunPromote(c, name, input.MergeWithEntityID)
	}

	entityID, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	stored, err := db.PromoteCandidate(database, db.PromoteParams{
		CandidateID:       c.ID,
		EntityID:          entityID,
		CanonicalName:     name,
		MergeWithEntityID: strings.TrimSpace(input.MergeWithEntityID),
		Ecosystem:         payloadEcosystem(c),
	})
	if err != nil {
		return nil, err
	}

	return &PromoteOutput{
		EntityID:        stored,
		CandidateID:     c.ID,
		CanonicalName:   name,
		Merged:          input.MergeWithEntityID != "",
		AlreadyPromoted: c.PromotedEntityID != nil && *c.PromotedEntityID == stored,
	}, nil
}

// dryRunPromote reports what a promotion would do, running the same
// precondition checks but no writes.
func dryRunPromote(c *candidate.Candidate, name, mergeWith string) (*PromoteOutput, error) {
	if c.PromotedEntityID != nil {
		return &PromoteOutput{
			EntityID:        *c.PromotedEntityID,
			CandidateID:     c.ID,
			CanonicalName:   name,
			DryRun:          true,
			AlreadyPromoted: true,
		}, nil
	}
	if c.Status != candidate.StatusAccepted {
		return nil, errors.NewNotApproved(c.ID, string(c.Status))
	}
	return &PromoteOutput{
		CandidateID:   c.ID,
		CanonicalName: name,
		Merged:        mergeWith != "",
		DryRun:        true,
	}, nil
}

// canonicalName picks the entity display name: explicit input, then the
// accepting decision's suggestion, then the candidate's key.
func canonicalName(database *sql.DB, c *candidate.Candidate, override string) (string, error) {
	if name := strings.TrimSpace(override); name != "" {
		return name, nil
	}

	decisions, err := db.ListDecisionsByCandidate(database, c.ID)
	if err != nil {
		return "", err
	}
	for i := len(decisions) - 1; i >= 0; i-- {
		d := decisions[i]
		if d.Kind == candidate.DecisionAccept && d.SuggestedName != nil {
			return *d.SuggestedName, nil
		}
	}

	return c.Key, nil
}

// payloadEcosystem reads the optional ecosystem tag out of the payload.
func payloadEcosystem(c *candidate.Candidate) string {
	if c.Payload == nil {
		return ""
	}
	if eco, ok := c.Payload["ecosystem"].(string); ok {
		return eco
	}
	return ""
}
