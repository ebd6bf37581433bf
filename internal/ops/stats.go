package ops

import (
	"database/sql"

	"github.com/hpungsan/vouch/internal/db"
)

// StatsOutput contains the result of the Stats operation.
type StatsOutput struct {
	db.Stats
}

// Stats reports aggregate candidate counts by status, type, and
// confidence bucket, plus the canonical entity count.
func Stats(database *sql.DB) (*StatsOutput, error) {
	s, err := db.CollectStats(database)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{Stats: *s}, nil
}
