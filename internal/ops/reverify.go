package ops

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/config"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
	"github.com/hpungsan/vouch/internal/lineage"
	"github.com/hpungsan/vouch/internal/worker"
)

// ReverifyInput contains parameters for the Reverify operation.
type ReverifyInput struct {
	// Workers is the pool size (default 1)
	Workers int

	// Limit caps how many candidates this run will process (0 = all pending)
	Limit int
}

// ReverifyOutput contains the result of the Reverify operation.
type ReverifyOutput struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`

	// Downgraded counts candidates whose evidence no longer verifies
	// the way it did at staging time
	Downgraded int `json:"downgraded"`
}

// ReverifyOne re-runs lineage verification for a single pending
// candidate and appends a fresh verification record. The original record
// is never overwritten. Returns the new result.
func ReverifyOne(database *sql.DB, cfg *config.Config, candidateID string) (*lineage.Result, error) {
	c, err := db.GetCandidateByID(database, candidateID)
	if err != nil {
		return nil, err
	}
	return reverifyCandidate(database, cfg, c)
}

// Reverify re-runs lineage verification over pending candidates with a
// claim-based worker pool. Each candidate is claimed atomically, so
// concurrent runs (or runs on other machines) never process the same
// candidate twice within the lease window.
func Reverify(ctx context.Context, database *sql.DB, cfg *config.Config, input ReverifyInput) (*ReverifyOutput, error) {
	var (
		mu         sync.Mutex
		remaining  = input.Limit
		downgraded int
	)

	pool := worker.NewPool(input.Workers)
	stats := pool.Run(ctx, func(ctx context.Context) (bool, error) {
		if input.Limit > 0 {
			mu.Lock()
			if remaining <= 0 {
				mu.Unlock()
				return false, nil
			}
			remaining--
			mu.Unlock()
		}

		c, err := db.ClaimNextPending(database, cfg.ClaimLeaseSeconds)
		if err != nil {
			return false, err
		}
		if c == nil {
			return false, nil
		}

		res, err := reverifyCandidate(database, cfg, c)
		if err != nil {
			// Free the claim so a later run can retry this candidate
			_ = db.ReleaseClaim(database, c.ID)
			return true, err
		}
		if c.Verification.Verified && !res.Verified {
			mu.Lock()
			downgraded++
			mu.Unlock()
		}
		return true, nil
	})

	return &ReverifyOutput{
		Processed:  stats.Processed,
		Failed:     stats.Failed,
		Downgraded: downgraded,
	}, nil
}

// reverifyCandidate runs the verifier against the candidate's snapshot
// and appends the result. The append also clears any work claim.
func reverifyCandidate(database *sql.DB, cfg *config.Config, c *candidate.Candidate) (*lineage.Result, error) {
	snapshot, err := db.GetSnapshotByID(database, c.SnapshotID)
	if err != nil {
		return nil, err
	}

	res := lineage.Verify(string(snapshot.Content), c.EvidenceText, PolicyFromConfig(cfg))

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	v := &candidate.Verification{
		ID:             id,
		CandidateID:    c.ID,
		Checksum:       res.Checksum,
		Verified:       res.Verified,
		Confidence:     res.Confidence,
		Method:         res.Method,
		Offset:         res.Offset,
		Length:         res.Length,
		Occurrences:    res.Occurrences,
		Normalizations: res.Normalizations,
		CreatedAt:      time.Now().Unix(),
	}
	if err := db.AppendVerification(database, v); err != nil {
		return nil, err
	}
	return &res, nil
}
