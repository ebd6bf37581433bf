package ops

import (
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/config"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
	"github.com/hpungsan/vouch/internal/lineage"
)

// StageInput contains parameters for the Stage operation. It is the shape
// the extraction pipeline hands over per proposed claim.
type StageInput struct {
	Type             string         // required
	Key              string         // required
	Payload          map[string]any // validated per Type
	EvidenceText     string         // required
	EvidenceType     string
	OracleConfidence float64 // extractor's own confidence [0,1]

	// SnapshotID or SnapshotLocator resolves the evidence source.
	// A locator resolves to its most recent capture.
	SnapshotID      string
	SnapshotLocator string

	// Upstream pipeline bookkeeping, recorded verbatim
	RetryCount        int
	NeedsManualReview bool
	ErrorLog          *string

	// Epistemic optionally attaches who/how provenance to the claim
	Epistemic *candidate.EpistemicRecord
}

// StageOutput contains the result of the Stage operation.
type StageOutput struct {
	ID           string             `json:"id"`
	Status       candidate.Status   `json:"status"`
	SnapshotID   string             `json:"snapshot_id"`
	Verification lineage.Result     `json:"verification"`
	Gate         lineage.GateResult `json:"gate"`
}

// Stage verifies a proposed claim against its snapshot and stores it as a
// pending candidate. Weak lineage is not a rejection: an unverifiable
// candidate still lands in pending with verified=false so reviewers can
// see the evidence gap.
func Stage(database *sql.DB, cfg *config.Config, input StageInput) (*StageOutput, error) {
	if strings.TrimSpace(input.Type) == "" {
		return nil, errors.NewInvalidRequest("type is required")
	}
	if strings.TrimSpace(input.Key) == "" {
		return nil, errors.NewInvalidRequest("key is required")
	}
	if strings.TrimSpace(input.EvidenceText) == "" {
		return nil, errors.NewInvalidRequest("evidence_text is required")
	}
	if input.OracleConfidence < 0 || input.OracleConfidence > 1 {
		return nil, errors.NewInvalidRequest("confidence must be in [0,1]")
	}
	if err := candidate.ValidatePayload(input.Type, input.Payload); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	input.ErrorLog = cleanOptionalString(input.ErrorLog)

	snapshot, err := resolveSnapshot(database, input.SnapshotID, input.SnapshotLocator)
	if err != nil {
		return nil, err
	}

	res := lineage.Verify(string(snapshot.Content), input.EvidenceText, PolicyFromConfig(cfg))
	gate := GateFromConfig(cfg).Check(input.EvidenceText, res)

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	verificationID, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	now := time.Now().Unix()
	c := &candidate.Candidate{
		ID:                id,
		Type:              input.Type,
		Key:               input.Key,
		KeyNorm:           candidate.NormalizeKey(input.Key),
		Payload:           input.Payload,
		EvidenceText:      input.EvidenceText,
		EvidenceType:      input.EvidenceType,
		OracleConfidence:  input.OracleConfidence,
		SnapshotID:        snapshot.ID,
		Status:            candidate.StatusPending,
		RetryCount:        input.RetryCount,
		NeedsManualReview: input.NeedsManualReview,
		ErrorLog:          input.ErrorLog,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	c.Verification = candidate.Verification{
		ID:             verificationID,
		CandidateID:    id,
		Checksum:       res.Checksum,
		Verified:       res.Verified,
		Confidence:     res.Confidence,
		Method:         res.Method,
		Offset:         res.Offset,
		Length:         res.Length,
		Occurrences:    res.Occurrences,
		Normalizations: res.Normalizations,
		CreatedAt:      now,
	}

	if input.Epistemic != nil {
		input.Epistemic.CandidateID = id
	}

	if err := db.InsertCandidate(database, c, input.Epistemic); err != nil {
		return nil, err
	}

	return &StageOutput{
		ID:           id,
		Status:       c.Status,
		SnapshotID:   snapshot.ID,
		Verification: res,
		Gate:         gate,
	}, nil
}

// resolveSnapshot finds the evidence source by id, or by locator resolved
// to the most recent capture. A candidate pointing at no snapshot is
// invalid and rejected here, before any verification runs.
func resolveSnapshot(database *sql.DB, id, locator string) (*candidate.Snapshot, error) {
	id = strings.TrimSpace(id)
	locator = strings.TrimSpace(locator)

	switch {
	case id != "":
		s, err := db.GetSnapshotByID(database, id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return nil, errors.NewNoSnapshot(id)
			}
			return nil, err
		}
		return s, nil
	case locator != "":
		return db.GetLatestSnapshotByLocator(database, locator)
	default:
		return nil, errors.NewInvalidRequest("must specify snapshot_id or snapshot_locator")
	}
}

// PolicyFromConfig maps the configured confidence tiers onto the verifier.
func PolicyFromConfig(cfg *config.Config) lineage.Policy {
	return lineage.Policy{
		ExactConfidence:      cfg.ExactConfidence,
		AmbiguousConfidence:  cfg.AmbiguousConfidence,
		NormalizedConfidence: cfg.NormalizedConfidence,
	}
}

// GateFromConfig maps the configured quality-gate thresholds.
func GateFromConfig(cfg *config.Config) lineage.Gate {
	return lineage.Gate{
		MinEvidenceBytes:     cfg.MinEvidenceBytes,
		MaxEvidenceBytes:     cfg.MaxEvidenceBytes,
		MinUniqueTokenRatio:  cfg.MinUniqueTokenRatio,
		MinStorageConfidence: cfg.MinStorageConfidence,
	}
}
