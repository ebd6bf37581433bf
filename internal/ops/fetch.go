package ops

import (
	"database/sql"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/config"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
	"github.com/hpungsan/vouch/internal/lineage"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID string // required
}

// FetchOutput is the full reviewer context for one candidate: the claim,
// its latest verification, the quality gate, the decision trail, and the
// optional epistemic sidecar.
type FetchOutput struct {
	candidate.Candidate

	Gate      lineage.GateResult         `json:"gate"`
	Decisions []*candidate.Decision      `json:"decisions,omitempty"`
	Epistemic *candidate.EpistemicRecord `json:"epistemic,omitempty"`
}

// Fetch retrieves a candidate with its review context.
func Fetch(database *sql.DB, cfg *config.Config, input FetchInput) (*FetchOutput, error) {
	if input.ID == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	c, err := db.GetCandidateByID(database, input.ID)
	if err != nil {
		return nil, err
	}

	decisions, err := db.ListDecisionsByCandidate(database, c.ID)
	if err != nil {
		return nil, err
	}

	epi, err := db.GetEpistemicRecord(database, c.ID)
	if err != nil {
		return nil, err
	}

	gate := GateFromConfig(cfg).Check(c.EvidenceText, verificationResult(c))

	return &FetchOutput{
		Candidate: *c,
		Gate:      gate,
		Decisions: decisions,
		Epistemic: epi,
	}, nil
}

// verificationResult rebuilds a lineage.Result view from the stored
// verification record, so the gate can be re-evaluated against current
// thresholds without re-running the verifier.
func verificationResult(c *candidate.Candidate) lineage.Result {
	return lineage.Result{
		Verified:       c.Verification.Verified,
		Confidence:     c.Verification.Confidence,
		Method:         c.Verification.Method,
		Offset:         c.Verification.Offset,
		Length:         c.Verification.Length,
		Occurrences:    c.Verification.Occurrences,
		Checksum:       c.Verification.Checksum,
		Normalizations: c.Verification.Normalizations,
	}
}
