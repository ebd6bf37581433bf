package db

import (
	"database/sql"

	"github.com/hpungsan/vouch/internal/errors"
)

// Stats aggregates candidate counts for the operator surface.
type Stats struct {
	Total              int            `json:"total"`
	ByStatus           map[string]int `json:"by_status"`
	ByType             map[string]int `json:"by_type"`
	ByConfidenceBucket map[string]int `json:"by_confidence_bucket"`
	Entities           int            `json:"entities"`
}

// confidence buckets over the latest verification per candidate
var confidenceBuckets = []struct {
	label string
	low   float64
	high  float64
}{
	{"0.00-0.49", 0.0, 0.5},
	{"0.50-0.69", 0.5, 0.7},
	{"0.70-0.84", 0.7, 0.85},
	{"0.85-0.99", 0.85, 1.0},
	{"1.00", 1.0, 1.01},
}

// CollectStats computes aggregate counts by status, type, and lineage
// confidence bucket, plus the current canonical entity count.
func CollectStats(db *sql.DB) (*Stats, error) {
	s := &Stats{
		ByStatus:           make(map[string]int),
		ByType:             make(map[string]int),
		ByConfidenceBucket: make(map[string]int),
	}

	if err := countInto(db, `SELECT status, COUNT(*) FROM candidates GROUP BY status`, s.ByStatus); err != nil {
		return nil, err
	}
	if err := countInto(db, `SELECT type, COUNT(*) FROM candidates GROUP BY type`, s.ByType); err != nil {
		return nil, err
	}
	for _, n := range s.ByStatus {
		s.Total += n
	}

	for _, b := range confidenceBuckets {
		var n int
		err := db.QueryRow(`
			SELECT COUNT(*) FROM candidates c
			JOIN verifications v ON v.id = (
				SELECT id FROM verifications WHERE candidate_id = c.id ORDER BY id DESC LIMIT 1
			)
			WHERE v.confidence >= ? AND v.confidence < ?
		`, b.low, b.high).Scan(&n)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		if n > 0 {
			s.ByConfidenceBucket[b.label] = n
		}
	}

	if err := db.QueryRow(`SELECT COUNT(*) FROM entities WHERE is_current = 1`).Scan(&s.Entities); err != nil {
		return nil, errors.NewInternal(err)
	}

	return s, nil
}

// countInto runs a (label, count) query into a map.
func countInto(db *sql.DB, query string, into map[string]int) error {
	rows, err := db.Query(query)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return errors.NewInternal(err)
		}
		into[label] = n
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}
