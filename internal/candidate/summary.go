package candidate

// Summary is a candidate list item without the full payload or evidence.
type Summary struct {
	// ID is the candidate ULID
	ID string `json:"id"`

	// Type is the claim type
	Type string `json:"type"`

	// Key is the entity name the claim is about
	Key string `json:"key"`

	// Status is the staging state
	Status Status `json:"status"`

	// Verified reports the latest lineage-verification outcome
	Verified bool `json:"verified"`

	// Confidence is the latest lineage confidence
	Confidence float64 `json:"confidence"`

	// Method is the latest match method
	Method Method `json:"method"`

	// SnapshotID references the evidence snapshot
	SnapshotID string `json:"snapshot_id"`

	// NeedsManualReview is the upstream manual-review flag
	NeedsManualReview bool `json:"needs_manual_review,omitempty"`

	// CreatedAt is the Unix timestamp when the candidate was staged
	CreatedAt int64 `json:"created_at"`
}

// Summarize builds the list view of a candidate.
func Summarize(c *Candidate) Summary {
	return Summary{
		ID:                c.ID,
		Type:              c.Type,
		Key:               c.Key,
		Status:            c.Status,
		Verified:          c.Verification.Verified,
		Confidence:        c.Verification.Confidence,
		Method:            c.Verification.Method,
		SnapshotID:        c.SnapshotID,
		NeedsManualReview: c.NeedsManualReview,
		CreatedAt:         c.CreatedAt,
	}
}
