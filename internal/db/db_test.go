package db

import (
	"crypto/rand"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/vouch/internal/candidate"
	"github.com/hpungsan/vouch/internal/errors"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func newULID(t *testing.T) string {
	t.Helper()
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		t.Fatalf("ulid.New failed: %v", err)
	}
	return id.String()
}

func insertTestSnapshot(t *testing.T, database *sql.DB, locator, content string) string {
	t.Helper()
	id, err := InsertSnapshot(database, &candidate.Snapshot{
		ID:          newULID(t),
		Locator:     locator,
		Content:     []byte(content),
		ContentHash: "sha256:" + locator + "-" + content, // distinct per content in tests
		SourceKind:  "text",
		CapturedAt:  time.Now().Unix(),
	})
	if err != nil {
		t.Fatalf("InsertSnapshot failed: %v", err)
	}
	return id
}

func insertTestCandidate(t *testing.T, database *sql.DB, snapshotID string) *candidate.Candidate {
	t.Helper()
	now := time.Now().Unix()
	c := &candidate.Candidate{
		ID:               newULID(t),
		Type:             "component",
		Key:              "auth-service",
		KeyNorm:          "auth-service",
		Payload:          map[string]any{"name": "auth-service"},
		EvidenceText:     "the auth-service handles login",
		EvidenceType:     "doc",
		OracleConfidence: 0.9,
		SnapshotID:       snapshotID,
		Status:           candidate.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	offset := 4
	c.Verification = candidate.Verification{
		ID:          newULID(t),
		CandidateID: c.ID,
		Checksum:    "sha256:abc",
		Verified:    true,
		Confidence:  1.0,
		Method:      candidate.MethodExact,
		Offset:      &offset,
		Length:      len(c.EvidenceText),
		Occurrences: 1,
		CreatedAt:   now,
	}
	if err := InsertCandidate(database, c, nil); err != nil {
		t.Fatalf("InsertCandidate failed: %v", err)
	}
	return c
}

func TestInit_SchemaVersion(t *testing.T) {
	database := testDB(t)

	version, err := GetUserVersion(database)
	if err != nil {
		t.Fatalf("GetUserVersion failed: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}
}

func TestInit_Reentrant(t *testing.T) {
	tmpDir := t.TempDir()
	first, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("first Init failed: %v", err)
	}
	first.Close()

	second, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	second.Close()
}

func TestInsertSnapshot_ContentAddressed(t *testing.T) {
	database := testDB(t)

	s := &candidate.Snapshot{
		ID:          newULID(t),
		Locator:     "https://example.com/doc",
		Content:     []byte("same content"),
		ContentHash: "sha256:fixed",
		SourceKind:  "text",
		CapturedAt:  time.Now().Unix(),
	}
	firstID, err := InsertSnapshot(database, s)
	if err != nil {
		t.Fatalf("first InsertSnapshot failed: %v", err)
	}

	dup := *s
	dup.ID = newULID(t)
	secondID, err := InsertSnapshot(database, &dup)
	if err != nil {
		t.Fatalf("second InsertSnapshot failed: %v", err)
	}

	if firstID != secondID {
		t.Errorf("identical content got two ids: %s vs %s", firstID, secondID)
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("snapshot count = %d, want 1", count)
	}
}

func TestGetLatestSnapshotByLocator(t *testing.T) {
	database := testDB(t)

	older := &candidate.Snapshot{
		ID: newULID(t), Locator: "https://example.com/doc",
		Content: []byte("v1"), ContentHash: "sha256:v1", SourceKind: "text",
		CapturedAt: 100,
	}
	newer := &candidate.Snapshot{
		ID: newULID(t), Locator: "https://example.com/doc",
		Content: []byte("v2"), ContentHash: "sha256:v2", SourceKind: "text",
		CapturedAt: 200,
	}
	if _, err := InsertSnapshot(database, older); err != nil {
		t.Fatalf("InsertSnapshot failed: %v", err)
	}
	if _, err := InsertSnapshot(database, newer); err != nil {
		t.Fatalf("InsertSnapshot failed: %v", err)
	}

	got, err := GetLatestSnapshotByLocator(database, "https://example.com/doc")
	if err != nil {
		t.Fatalf("GetLatestSnapshotByLocator failed: %v", err)
	}
	if got.ID != newer.ID {
		t.Errorf("latest = %s, want %s", got.ID, newer.ID)
	}

	if _, err := GetLatestSnapshotByLocator(database, "https://example.com/missing"); !errors.Is(err, errors.ErrNoSnapshot) {
		t.Errorf("missing locator error = %v, want NO_SNAPSHOT", err)
	}
}

func TestRecordDecision_TransitionAndTrail(t *testing.T) {
	database := testDB(t)
	snapID := insertTestSnapshot(t, database, "loc", "the auth-service handles login")
	c := insertTestCandidate(t, database, snapID)

	d := &candidate.Decision{
		ID:          newULID(t),
		CandidateID: c.ID,
		Kind:        candidate.DecisionAccept,
		Actor:       "reviewer@example.com",
		Reasoning:   "evidence checks out",
		CreatedAt:   time.Now().Unix(),
	}
	status, err := RecordDecision(database, d)
	if err != nil {
		t.Fatalf("RecordDecision failed: %v", err)
	}
	if status != candidate.StatusAccepted {
		t.Errorf("status = %s, want accepted", status)
	}

	got, err := GetCandidateByID(database, c.ID)
	if err != nil {
		t.Fatalf("GetCandidateByID failed: %v", err)
	}
	if got.Status != candidate.StatusAccepted {
		t.Errorf("stored status = %s, want accepted", got.Status)
	}
	if got.ReviewDecision == nil || *got.ReviewDecision != "accept" {
		t.Errorf("review_decision = %v, want accept", got.ReviewDecision)
	}

	trail, err := ListDecisionsByCandidate(database, c.ID)
	if err != nil {
		t.Fatalf("ListDecisionsByCandidate failed: %v", err)
	}
	if len(trail) != 1 || trail[0].ID != d.ID {
		t.Errorf("trail = %v, want the one decision", trail)
	}
}

func TestRecordDecision_SecondDecisionFails(t *testing.T) {
	database := testDB(t)
	snapID := insertTestSnapshot(t, database, "loc", "content")
	c := insertTestCandidate(t, database, snapID)

	first := &candidate.Decision{
		ID: newULID(t), CandidateID: c.ID, Kind: candidate.DecisionReject,
		Actor: "a", Reasoning: "r", CreatedAt: time.Now().Unix(),
	}
	if _, err := RecordDecision(database, first); err != nil {
		t.Fatalf("first RecordDecision failed: %v", err)
	}

	second := &candidate.Decision{
		ID: newULID(t), CandidateID: c.ID, Kind: candidate.DecisionAccept,
		Actor: "b", Reasoning: "r", CreatedAt: time.Now().Unix(),
	}
	_, err := RecordDecision(database, second)
	if !errors.Is(err, errors.ErrAlreadyDecided) {
		t.Fatalf("second RecordDecision error = %v, want ALREADY_DECIDED", err)
	}

	// The losing decision must not appear in the audit trail
	trail, err := ListDecisionsByCandidate(database, c.ID)
	if err != nil {
		t.Fatalf("ListDecisionsByCandidate failed: %v", err)
	}
	if len(trail) != 1 {
		t.Errorf("trail length = %d, want 1", len(trail))
	}
}

func TestRecordDecision_ConcurrentRace(t *testing.T) {
	database := testDB(t)
	snapID := insertTestSnapshot(t, database, "loc", "content")
	c := insertTestCandidate(t, database, snapID)

	decisions := []*candidate.Decision{
		{ID: newULID(t), CandidateID: c.ID, Kind: candidate.DecisionAccept,
			Actor: "a", Reasoning: "r", CreatedAt: time.Now().Unix()},
		{ID: newULID(t), CandidateID: c.ID, Kind: candidate.DecisionReject,
			Actor: "b", Reasoning: "r", CreatedAt: time.Now().Unix()},
	}

	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, d := range decisions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = RecordDecision(database, d)
		}()
	}
	wg.Wait()

	// Exactly one decision wins; the other must lose cleanly.
	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, errors.ErrAlreadyDecided):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins = %d, losses = %d, want exactly one of each", wins, losses)
	}

	trail, err := ListDecisionsByCandidate(database, c.ID)
	if err != nil {
		t.Fatalf("ListDecisionsByCandidate failed: %v", err)
	}
	if len(trail) != 1 {
		t.Errorf("trail length = %d, want only the winning decision", len(trail))
	}
}

func TestRecordDecision_DeferKeepsPending(t *testing.T) {
	database := testDB(t)
	snapID := insertTestSnapshot(t, database, "loc", "content")
	c := insertTestCandidate(t, database, snapID)

	d := &candidate.Decision{
		ID: newULID(t), CandidateID: c.ID, Kind: candidate.DecisionDefer,
		Actor: "a", Reasoning: "need more time", CreatedAt: time.Now().Unix(),
	}
	status, err := RecordDecision(database, d)
	if err != nil {
		t.Fatalf("RecordDecision(defer) failed: %v", err)
	}
	if status != candidate.StatusPending {
		t.Errorf("status = %s, want pending", status)
	}

	// A later real decision still works
	accept := &candidate.Decision{
		ID: newULID(t), CandidateID: c.ID, Kind: candidate.DecisionAccept,
		Actor: "a", Reasoning: "ok now", CreatedAt: time.Now().Unix(),
	}
	if _, err := RecordDecision(database, accept); err != nil {
		t.Fatalf("accept after defer failed: %v", err)
	}

	trail, _ := ListDecisionsByCandidate(database, c.ID)
	if len(trail) != 2 {
		t.Errorf("trail length = %d, want 2 (defer + accept)", len(trail))
	}
}

func TestAppendVerification_AppendOnly(t *testing.T) {
	database := testDB(t)
	snapID := insertTestSnapshot(t, database, "loc", "content")
	c := insertTestCandidate(t, database, snapID)

	second := candidate.Verification{
		ID:          newULID(t),
		CandidateID: c.ID,
		Checksum:    "sha256:abc",
		Verified:    false,
		Confidence:  0.0,
		Method:      candidate.MethodNotFound,
		Length:      10,
		CreatedAt:   time.Now().Unix(),
	}
	if err := AppendVerification(database, &second); err != nil {
		t.Fatalf("AppendVerification failed: %v", err)
	}

	// The candidate now reports the newest record
	got, err := GetCandidateByID(database, c.ID)
	if err != nil {
		t.Fatalf("GetCandidateByID failed: %v", err)
	}
	if got.Verification.ID != second.ID {
		t.Errorf("latest verification = %s, want %s", got.Verification.ID, second.ID)
	}

	// Both records still exist
	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM verifications WHERE candidate_id = ?`, c.ID).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("verification count = %d, want 2", count)
	}
}

func TestAppendVerification_TerminalCandidateRejected(t *testing.T) {
	database := testDB(t)
	snapID := insertTestSnapshot(t, database, "loc", "content")
	c := insertTestCandidate(t, database, snapID)

	d := &candidate.Decision{
		ID: newULID(t), CandidateID: c.ID, Kind: candidate.DecisionAccept,
		Actor: "a", Reasoning: "r", CreatedAt: time.Now().Unix(),
	}
	if _, err := RecordDecision(database, d); err != nil {
		t.Fatalf("RecordDecision failed: %v", err)
	}

	v := candidate.Verification{
		ID: newULID(t), CandidateID: c.ID, Checksum: "sha256:abc",
		Method: candidate.MethodNotFound, CreatedAt: time.Now().Unix(),
	}
	if err := AppendVerification(database, &v); !errors.Is(err, errors.ErrAlreadyDecided) {
		t.Errorf("AppendVerification on terminal candidate error = %v, want ALREADY_DECIDED", err)
	}
}

func TestClaimNextPending_LeaseSemantics(t *testing.T) {
	database := testDB(t)
	snapID := insertTestSnapshot(t, database, "loc", "content")
	first := insertTestCandidate(t, database, snapID)
	second := insertTestCandidate(t, database, snapID)

	claimed1, err := ClaimNextPending(database, 300)
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if claimed1 == nil || claimed1.ID != first.ID {
		t.Fatalf("first claim = %v, want oldest pending %s", claimed1, first.ID)
	}

	claimed2, err := ClaimNextPending(database, 300)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if claimed2 == nil || claimed2.ID != second.ID {
		t.Fatalf("second claim = %v, want %s", claimed2, second.ID)
	}

	// Nothing left while both leases are live
	claimed3, err := ClaimNextPending(database, 300)
	if err != nil {
		t.Fatalf("third claim failed: %v", err)
	}
	if claimed3 != nil {
		t.Errorf("third claim = %v, want nil", claimed3)
	}

	// An abandoned claim becomes re-claimable once the lease expires
	reclaimed, err := ClaimNextPending(database, 0)
	if err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if reclaimed == nil {
		t.Fatal("reclaim = nil, want expired-lease candidate")
	}

	// Releasing a claim also frees the row
	if err := ReleaseClaim(database, second.ID); err != nil {
		t.Fatalf("ReleaseClaim failed: %v", err)
	}
	got, err := GetCandidateByID(database, second.ID)
	if err != nil {
		t.Fatalf("GetCandidateByID failed: %v", err)
	}
	if got.ClaimedAt != nil {
		t.Errorf("ClaimedAt = %v, want nil after release", *got.ClaimedAt)
	}
}

func TestInsertCandidate_WithEpistemicSidecar(t *testing.T) {
	database := testDB(t)
	snapID := insertTestSnapshot(t, database, "loc", "content")

	now := time.Now().Unix()
	c := insertTestCandidateWithEpi(t, database, snapID, &candidate.EpistemicRecord{
		Observer:    "sre-team",
		Role:        "operator",
		ContactMode: "interview",
		ValidFrom:   &now,
		Notes:       "confirmed during incident review",
	})

	epi, err := GetEpistemicRecord(database, c.ID)
	if err != nil {
		t.Fatalf("GetEpistemicRecord failed: %v", err)
	}
	if epi == nil {
		t.Fatal("epistemic record = nil, want stored sidecar")
	}
	if epi.Observer != "sre-team" || epi.ContactMode != "interview" {
		t.Errorf("epistemic record = %+v", epi)
	}

	// Absent sidecar reads as nil, not an error
	plain := insertTestCandidate(t, database, snapID)
	none, err := GetEpistemicRecord(database, plain.ID)
	if err != nil {
		t.Fatalf("GetEpistemicRecord failed: %v", err)
	}
	if none != nil {
		t.Errorf("epistemic record = %+v, want nil", none)
	}
}

func insertTestCandidateWithEpi(t *testing.T, database *sql.DB, snapshotID string, epi *candidate.EpistemicRecord) *candidate.Candidate {
	t.Helper()
	now := time.Now().Unix()
	c := &candidate.Candidate{
		ID:               newULID(t),
		Type:             "component",
		Key:              "billing",
		KeyNorm:          "billing",
		EvidenceText:     "the billing worker consumes payments",
		OracleConfidence: 0.8,
		SnapshotID:       snapshotID,
		Status:           candidate.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	c.Verification = candidate.Verification{
		ID: newULID(t), CandidateID: c.ID, Checksum: "sha256:x",
		Verified: true, Confidence: 1.0, Method: candidate.MethodExact,
		Length: len(c.EvidenceText), Occurrences: 1, CreatedAt: now,
	}
	if epi != nil {
		epi.CandidateID = c.ID
	}
	if err := InsertCandidate(database, c, epi); err != nil {
		t.Fatalf("InsertCandidate failed: %v", err)
	}
	return c
}
