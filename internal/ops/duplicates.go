package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/config"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/dupe"
	"github.com/hpungsan/vouch/internal/errors"
)

// DuplicatesInput contains parameters for the FindDuplicates operation.
// Either CandidateID or (Key, Type) identifies what to check.
type DuplicatesInput struct {
	CandidateID string
	Key         string
	Type        string
}

// DuplicatesOutput contains the result of the FindDuplicates operation.
// The check is advisory: callers decide accept/merge/reject from it.
// Exact and Similar cover promoted canonical entities; PendingExact and
// PendingSimilar cover other candidates still awaiting decision.
type DuplicatesOutput struct {
	Exact          []candidate.CoreEntity `json:"exact"`
	Similar        []dupe.Match           `json:"similar"`
	PendingExact   []candidate.Summary    `json:"pending_exact"`
	PendingSimilar []dupe.CandidateMatch  `json:"pending_similar"`
}

// FindDuplicates searches the canonical store and the candidate store for
// exact and near-duplicate matches of a key. A duplicate claim can be
// staged before its twin is promoted, so pending candidates count too.
func FindDuplicates(database *sql.DB, cfg *config.Config, input DuplicatesInput) (*DuplicatesOutput, error) {
	key := input.Key
	typ := input.Type
	if input.CandidateID != "" {
		c, err := db.GetCandidateByID(database, input.CandidateID)
		if err != nil {
			return nil, err
		}
		key = c.Key
		typ = c.Type
	}
	if strings.TrimSpace(key) == "" || strings.TrimSpace(typ) == "" {
		return nil, errors.NewInvalidRequest("must specify candidate_id, or key and type")
	}

	keyNorm := candidate.NormalizeKey(key)

	exact, err := db.FindCurrentEntities(database, keyNorm, typ)
	if err != nil {
		return nil, err
	}

	pool, err := db.ListCurrentEntitiesByType(database, typ)
	if err != nil {
		return nil, err
	}

	ranker := dupe.Ranker{
		Threshold:        cfg.SimilarityThreshold,
		MaxResults:       cfg.MaxSimilarResults,
		ContainmentScore: cfg.ContainmentScore,
	}
	similar := ranker.Rank(keyNorm, pool)

	pendingExactRows, err := db.FindPendingByKeyNorm(database, keyNorm, typ, input.CandidateID)
	if err != nil {
		return nil, err
	}
	pendingExact := make([]candidate.Summary, 0, len(pendingExactRows))
	for _, c := range pendingExactRows {
		pendingExact = append(pendingExact, candidate.Summarize(c))
	}

	pendingPool, err := db.ListCandidates(database, db.ListFilter{
		Status: string(candidate.StatusPending),
		Type:   typ,
	})
	if err != nil {
		return nil, err
	}
	// RankCandidates skips identical keys, so the probe candidate never
	// matches itself here; pendingExact handles the identical-key peers.
	pendingSimilar := ranker.RankCandidates(keyNorm, pendingPool)

	if exact == nil {
		exact = []candidate.CoreEntity{}
	}
	if similar == nil {
		similar = []dupe.Match{}
	}
	if pendingSimilar == nil {
		pendingSimilar = []dupe.CandidateMatch{}
	}
	return &DuplicatesOutput{
		Exact:          exact,
		Similar:        similar,
		PendingExact:   pendingExact,
		PendingSimilar: pendingSimilar,
	}, nil
}
