package candidate

// Snapshot is an immutable capture of source content, content-addressed
// by its SHA-256 hash. A given content hash maps to at most one stored
// snapshot; content is never mutated after creation.
type Snapshot struct {
	// ID is a ULID that uniquely identifies this snapshot
	ID string

	// Locator is the source URL or path the content was captured from
	Locator string

	// Content is the captured bytes
	Content []byte

	// ContentHash is "sha256:<hex>" of Content
	ContentHash string

	// SourceKind tags the content format (e.g., "markdown", "html", "text")
	SourceKind string

	// CapturedAt is the Unix timestamp when the content was captured
	CapturedAt int64
}

// Candidate is a proposed knowledge claim awaiting review.
//
// A candidate is created once by staging, carries the verification result
// computed at that time, and is only ever mutated by decision and promotion
// operations. It is never hard-deleted; the status transition history lives
// in the decisions table.
type Candidate struct {
	// ID is a ULID that uniquely identifies this candidate
	ID string

	// Type tags the kind of claim (component, dependency, port, ...)
	Type string

	// Key is the entity name the claim is about
	Key string

	// KeyNorm is the normalized key used for duplicate matching
	KeyNorm string

	// Payload holds the structured properties of the claim (stored as JSON)
	Payload map[string]any

	// EvidenceText is the raw text span cited as proof
	EvidenceText string

	// EvidenceType tags the evidence (e.g., "config", "doc", "code")
	EvidenceType string

	// OracleConfidence is the extractor's own confidence in [0,1]
	OracleConfidence float64

	// SnapshotID references the snapshot the evidence is claimed to come from
	SnapshotID string

	// Verification is the latest lineage-verification record for this
	// candidate. Records are append-only; reverification adds a new one.
	Verification Verification

	// Status is the staging state (pending until a terminal decision)
	Status Status

	// ReviewDecision is the decision kind that closed the candidate (nullable)
	ReviewDecision *string

	// RetryCount is the upstream page-pipeline retry counter, recorded verbatim
	RetryCount int

	// NeedsManualReview is the upstream manual-review flag, recorded verbatim
	NeedsManualReview bool

	// ErrorLog carries upstream processing errors for reviewer context (nullable)
	ErrorLog *string

	// PromotedEntityID is set once the candidate has been promoted (nullable)
	PromotedEntityID *string

	// ClaimedAt is the Unix timestamp of the current work-claim lease (nullable)
	ClaimedAt *int64

	// CreatedAt / UpdatedAt are Unix timestamps
	CreatedAt int64
	UpdatedAt int64
}

// Verification is a single lineage-verification record: the result of
// proving (or failing to prove) that a candidate's evidence occurs in its
// snapshot. Once written it is immutable.
type Verification struct {
	// ID is a ULID for this verification record
	ID string

	// CandidateID references the verified candidate
	CandidateID string

	// Checksum is "sha256:<hex>" of the evidence bytes
	Checksum string

	// Verified reports whether the evidence was found in the snapshot
	Verified bool

	// Confidence is the method-based confidence in [0,1]
	Confidence float64

	// Method is how the evidence was (or wasn't) matched
	Method Method

	// Offset is the byte offset of the first occurrence, or nil when the
	// match was found only after normalization (offsets are not recoverable)
	Offset *int

	// Length is the evidence byte length
	Length int

	// Occurrences is how many times the evidence occurred verbatim
	Occurrences int

	// Normalizations lists the normalization steps that produced the match
	Normalizations []string

	// CreatedAt is the Unix timestamp when this record was computed
	CreatedAt int64
}

// Method identifies how evidence was matched against its snapshot.
type Method string

const (
	MethodExact      Method = "exact"
	MethodNormalized Method = "normalized"
	MethodNotFound   Method = "not_found"
)

// Decision is an append-only audit record of a human or automated judgment
// on a candidate. Each terminal decision is linked 1:1 to the status
// transition it caused.
type Decision struct {
	// ID is a ULID for this decision
	ID string

	// CandidateID references the decided candidate
	CandidateID string

	// Kind is the judgment (accept, reject, merge, defer, needs_more_evidence)
	Kind DecisionKind

	// Actor identifies who or what decided
	Actor string

	// Reasoning is the human-readable justification
	Reasoning string

	// ConfidenceOverride optionally replaces the oracle confidence (nullable)
	ConfidenceOverride *float64

	// SuggestedName optionally proposes a canonical name for promotion (nullable)
	SuggestedName *string

	// SourceKey is the external-system event id for idempotent ingestion (nullable)
	SourceKey *string

	// CreatedAt is the Unix timestamp when the decision was recorded
	CreatedAt int64
}

// CoreEntity is a canonical, deduplicated, promoted record. At most one
// current entity exists per (key, type, ecosystem) tuple.
type CoreEntity struct {
	// ID is a ULID for this entity
	ID string

	// KeyNorm is the canonical key (normalized)
	KeyNorm string

	// DisplayName is the human-readable name
	DisplayName string

	// Type matches the candidate type tag that produced it
	Type string

	// Ecosystem tags the entity's ecosystem (may be empty)
	Ecosystem string

	// Attributes holds the merged properties (stored as JSON)
	Attributes map[string]any

	// SourceSnapshotID is the snapshot the promoting candidate cited
	SourceSnapshotID string

	// PromotedByDecisionID is the accepting decision that allowed promotion
	PromotedByDecisionID string

	// IsCurrent marks the live version of this entity
	IsCurrent bool

	// Version increments on each attribute merge
	Version int

	// CreatedAt / UpdatedAt are Unix timestamps
	CreatedAt int64
	UpdatedAt int64
}

// EpistemicRecord is optional sidecar provenance about who/how a claim was
// known. Purely descriptive: verification and promotion never consult it.
type EpistemicRecord struct {
	// CandidateID is the 1:1 attachment point
	CandidateID string

	// Observer identifies who knew the claim
	Observer string

	// Role is the observer's role (e.g., "maintainer", "operator")
	Role string

	// ContactMode is how the knowledge was obtained (e.g., "interview", "doc")
	ContactMode string

	// ValidFrom / ValidTo bound the temporal validity (nullable)
	ValidFrom *int64
	ValidTo   *int64

	// Notes is free-form context
	Notes string
}
