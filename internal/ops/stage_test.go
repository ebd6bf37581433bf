package ops

import (
	"database/sql"
	"testing"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/config"
	"github.com/hpungsan/vouch/internal/db"
	"github.com/hpungsan/vouch/internal/errors"
)

const snapshotContent = `# Architecture notes

The auth-service handles login and issues session tokens.
It listens on port 8443 and talks to the billing worker over AMQP.
The billing worker consumes payment events from the payments queue.
`

func setupTest(t *testing.T) (*sql.DB, *config.Config) {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, config.DefaultConfig()
}

func putTestSnapshot(t *testing.T, database *sql.DB, locator, content string) string {
	t.Helper()
	out, err := PutSnapshot(database, PutSnapshotInput{
		Locator: locator,
		Content: content,
	})
	if err != nil {
		t.Fatalf("PutSnapshot failed: %v", err)
	}
	return out.ID
}

func stringPtr(s string) *string { return &s }

func TestStage_VerbatimEvidence(t *testing.T) {
	database, cfg := setupTest(t)
	snapID := putTestSnapshot(t, database, "docs/arch.md", snapshotContent)

	out, err := Stage(database, cfg, StageInput{
		Type:             "component",
		Key:              "auth-service",
		Payload:          map[string]any{"name": "auth-service"},
		EvidenceText:     "The auth-service handles login and issues session tokens.",
		EvidenceType:     "doc",
		OracleConfidence: 0.9,
		SnapshotID:       snapID,
	})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if out.Status != candidate.StatusPending {
		t.Errorf("status = %s, want pending", out.Status)
	}
	if !out.Verification.Verified || out.Verification.Confidence != 1.0 {
		t.Errorf("verification = %+v, want verified with confidence 1.0", out.Verification)
	}
	if out.Verification.Method != candidate.MethodExact {
		t.Errorf("method = %s, want exact", out.Verification.Method)
	}
	if !out.Gate.StorageEligible {
		t.Errorf("gate = %+v, want storage eligible", out.Gate)
	}

	stored, err := db.GetCandidateByID(database, out.ID)
	if err != nil {
		t.Fatalf("GetCandidateByID failed: %v", err)
	}
	if stored.KeyNorm != "auth-service" {
		t.Errorf("key_norm = %q", stored.KeyNorm)
	}
	if stored.Verification.Checksum != out.Verification.Checksum {
		t.Error("stored verification does not match staged result")
	}
}

func TestStage_ResolvesLocatorToLatestCapture(t *testing.T) {
	database, cfg := setupTest(t)
	putTestSnapshot(t, database, "docs/arch.md", "old content without the quote")
	latest := putTestSnapshot(t, database, "docs/arch.md", snapshotContent)

	out, err := Stage(database, cfg, StageInput{
		Type:             "component",
		Key:              "auth-service",
		Payload:          map[string]any{"name": "auth-service"},
		EvidenceText:     "The auth-service handles login and issues session tokens.",
		OracleConfidence: 0.9,
		SnapshotLocator:  "docs/arch.md",
	})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if out.SnapshotID != latest {
		t.Errorf("snapshot = %s, want latest capture %s", out.SnapshotID, latest)
	}
	if !out.Verification.Verified {
		t.Error("evidence should verify against the latest capture")
	}
}

func TestStage_UnresolvableSnapshot(t *testing.T) {
	database, cfg := setupTest(t)

	_, err := Stage(database, cfg, StageInput{
		Type:             "component",
		Key:              "auth-service",
		Payload:          map[string]any{"name": "auth-service"},
		EvidenceText:     "some evidence text here",
		OracleConfidence: 0.9,
		SnapshotLocator:  "docs/missing.md",
	})
	if !errors.Is(err, errors.ErrNoSnapshot) {
		t.Errorf("error = %v, want NO_SNAPSHOT", err)
	}

	_, err = Stage(database, cfg, StageInput{
		Type:             "component",
		Key:              "auth-service",
		Payload:          map[string]any{"name": "auth-service"},
		EvidenceText:     "some evidence text here",
		OracleConfidence: 0.9,
		SnapshotID:       "01NOSUCHSNAPSHOT0000000000",
	})
	if !errors.Is(err, errors.ErrNoSnapshot) {
		t.Errorf("error = %v, want NO_SNAPSHOT", err)
	}
}

func TestStage_UnverifiableEvidenceStillLandsPending(t *testing.T) {
	database, cfg := setupTest(t)
	snapID := putTestSnapshot(t, database, "docs/arch.md", snapshotContent)

	out, err := Stage(database, cfg, StageInput{
		Type:             "component",
		Key:              "search-service",
		Payload:          map[string]any{"name": "search-service"},
		EvidenceText:     "The search-service indexes all documents nightly.",
		OracleConfidence: 0.8,
		SnapshotID:       snapID,
	})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	if out.Verification.Verified {
		t.Error("fabricated evidence verified")
	}
	if out.Verification.Confidence != 0.0 {
		t.Errorf("confidence = %v, want 0.0", out.Verification.Confidence)
	}
	if out.Status != candidate.StatusPending {
		t.Errorf("status = %s, want pending (weak lineage is a review-time concern)", out.Status)
	}
	if out.Gate.StorageEligible {
		t.Error("unverified candidate marked storage eligible")
	}
}

func TestStage_ValidationErrors(t *testing.T) {
	database, cfg := setupTest(t)
	snapID := putTestSnapshot(t, database, "docs/arch.md", snapshotContent)

	tests := []struct {
		name  string
		input StageInput
	}{
		{
			name: "missing type",
			input: StageInput{
				Key: "auth-service", EvidenceText: "x", SnapshotID: snapID,
			},
		},
		{
			name: "missing key",
			input: StageInput{
				Type: "component", EvidenceText: "x", SnapshotID: snapID,
			},
		},
		{
			name: "empty evidence",
			input: StageInput{
				Type: "component", Key: "auth-service", SnapshotID: snapID,
			},
		},
		{
			name: "whitespace evidence",
			input: StageInput{
				Type: "component", Key: "auth-service", EvidenceText: "   \n\t ", SnapshotID: snapID,
			},
		},
		{
			name: "confidence out of range",
			input: StageInput{
				Type: "component", Key: "auth-service", EvidenceText: "x",
				OracleConfidence: 1.5, SnapshotID: snapID,
			},
		},
		{
			name: "malformed payload",
			input: StageInput{
				Type: "port", Key: "auth-service",
				Payload:      map[string]any{"number": 99999},
				EvidenceText: "listens on port 99999", SnapshotID: snapID,
			},
		},
		{
			name: "no snapshot reference",
			input: StageInput{
				Type: "component", Key: "auth-service", EvidenceText: "x",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Stage(database, cfg, tt.input)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("error = %v, want INVALID_REQUEST", err)
			}
		})
	}
}

func TestStage_PipelinePassthroughFields(t *testing.T) {
	database, cfg := setupTest(t)
	snapID := putTestSnapshot(t, database, "docs/arch.md", snapshotContent)

	out, err := Stage(database, cfg, StageInput{
		Type:              "component",
		Key:               "auth-service",
		Payload:           map[string]any{"name": "auth-service"},
		EvidenceText:      "The auth-service handles login and issues session tokens.",
		OracleConfidence:  0.9,
		SnapshotID:        snapID,
		RetryCount:        3,
		NeedsManualReview: true,
		ErrorLog:          stringPtr("fetch timed out twice"),
	})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	stored, err := db.GetCandidateByID(database, out.ID)
	if err != nil {
		t.Fatalf("GetCandidateByID failed: %v", err)
	}
	if stored.RetryCount != 3 || !stored.NeedsManualReview {
		t.Errorf("passthrough fields = retry %d manual %v", stored.RetryCount, stored.NeedsManualReview)
	}
	if stored.ErrorLog == nil || *stored.ErrorLog != "fetch timed out twice" {
		t.Errorf("error log = %v", stored.ErrorLog)
	}
}

func TestStage_WithEpistemicSidecar(t *testing.T) {
	database, cfg := setupTest(t)
	snapID := putTestSnapshot(t, database, "docs/arch.md", snapshotContent)

	out, err := Stage(database, cfg, StageInput{
		Type:             "component",
		Key:              "auth-service",
		Payload:          map[string]any{"name": "auth-service"},
		EvidenceText:     "The auth-service handles login and issues session tokens.",
		OracleConfidence: 0.9,
		SnapshotID:       snapID,
		Epistemic: &candidate.EpistemicRecord{
			Observer:    "platform-team",
			Role:        "maintainer",
			ContactMode: "interview",
		},
	})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	fetched, err := Fetch(database, cfg, FetchInput{ID: out.ID})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched.Epistemic == nil || fetched.Epistemic.Observer != "platform-team" {
		t.Errorf("epistemic = %+v", fetched.Epistemic)
	}
}
