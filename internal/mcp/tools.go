package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions. Descriptions are written for MCP clients: short,
// imperative, with the argument contract in the parameter descriptions.

var snapshotPutToolDef = mcp.NewTool("snapshot_put",
	mcp.WithDescription("Store an immutable document snapshot. Identical content for the same locator is deduplicated and the existing snapshot id is returned."),
	mcp.WithString("locator", mcp.Required(),
		mcp.Description("Stable identifier for the source document (URL, path, doc id)")),
	mcp.WithString("content", mcp.Required(),
		mcp.Description("Full document content at capture time")),
	mcp.WithString("source_kind",
		mcp.Description("Content kind: text, markdown, or html (default text)"),
		mcp.Enum("text", "markdown", "html")),
	mcp.WithNumber("captured_at",
		mcp.Description("Unix capture timestamp (default now)")),
)

var snapshotGetToolDef = mcp.NewTool("snapshot_get",
	mcp.WithDescription("Fetch a snapshot by id, or the latest capture of a locator."),
	mcp.WithString("id",
		mcp.Description("Snapshot id")),
	mcp.WithString("locator",
		mcp.Description("Source locator, resolved to its most recent capture")),
)

var stageToolDef = mcp.NewTool("candidate_stage",
	mcp.WithDescription("Stage an extracted claim for review. The evidence text is immediately verified against the referenced snapshot and the verification result is recorded with the candidate."),
	mcp.WithString("type", mcp.Required(),
		mcp.Description("Claim type: service, dependency, endpoint, config, or ownership")),
	mcp.WithString("key", mcp.Required(),
		mcp.Description("Natural key of the claimed entity (e.g., a service name)")),
	mcp.WithObject("payload",
		mcp.Description("Structured claim fields, validated per type")),
	mcp.WithString("evidence_text", mcp.Required(),
		mcp.Description("Quote supporting the claim, expected verbatim in the snapshot")),
	mcp.WithString("evidence_type",
		mcp.Description("Evidence category (e.g., quote, table_cell, heading)")),
	mcp.WithNumber("oracle_confidence",
		mcp.Description("Extractor's own confidence in [0,1]")),
	mcp.WithString("snapshot_id",
		mcp.Description("Snapshot to verify against")),
	mcp.WithString("snapshot_locator",
		mcp.Description("Alternative to snapshot_id: locator resolved to the latest capture")),
	mcp.WithNumber("retry_count",
		mcp.Description("Upstream extraction retry count, recorded verbatim")),
	mcp.WithBoolean("needs_manual_review",
		mcp.Description("Flag the candidate for human attention regardless of verification")),
	mcp.WithString("error_log",
		mcp.Description("Upstream extraction error log, recorded verbatim")),
	mcp.WithObject("epistemic",
		mcp.Description("Optional who/how provenance: observer, role, contact_mode, valid_from, valid_to, notes")),
)

var getToolDef = mcp.NewTool("candidate_get",
	mcp.WithDescription("Fetch one candidate with its latest verification, quality gate, decision trail, and epistemic provenance."),
	mcp.WithString("id", mcp.Required(),
		mcp.Description("Candidate id")),
)

var pendingToolDef = mcp.NewTool("candidate_pending",
	mcp.WithDescription("List candidates awaiting review, newest first. Pass a status to list any other state."),
	mcp.WithString("status",
		mcp.Description("Status filter (default pending)"),
		mcp.Enum("pending", "accepted", "rejected", "merged", "needs_context")),
	mcp.WithString("type",
		mcp.Description("Claim type filter")),
	mcp.WithNumber("limit",
		mcp.Description("Max results (default 20, max 100)")),
	mcp.WithNumber("offset",
		mcp.Description("Pagination offset")),
)

var decideToolDef = mcp.NewTool("candidate_decide",
	mcp.WithDescription("Record a review decision on a pending candidate. accept, reject, merge, and needs_more_evidence finalize the candidate; defer records the decision but keeps it pending."),
	mcp.WithString("candidate_id", mcp.Required(),
		mcp.Description("Candidate id")),
	mcp.WithString("decision", mcp.Required(),
		mcp.Description("Decision kind"),
		mcp.Enum("accept", "reject", "merge", "needs_more_evidence", "defer")),
	mcp.WithString("actor", mcp.Required(),
		mcp.Description("Who decided (reviewer id or automation name)")),
	mcp.WithString("reasoning", mcp.Required(),
		mcp.Description("Why, recorded in the decision trail")),
	mcp.WithNumber("confidence_override",
		mcp.Description("Reviewer's own confidence in [0,1]")),
	mcp.WithString("suggested_name",
		mcp.Description("Canonical display name to use at promotion time")),
)

var duplicatesToolDef = mcp.NewTool("candidate_duplicates",
	mcp.WithDescription("Check a key against current canonical entities and pending candidates: exact matches on the normalized key plus ranked near-duplicates. Advisory only."),
	mcp.WithString("candidate_id",
		mcp.Description("Candidate whose key and type to check")),
	mcp.WithString("key",
		mcp.Description("Alternative to candidate_id: key to check directly")),
	mcp.WithString("type",
		mcp.Description("Claim type, required with key")),
)

var promoteToolDef = mcp.NewTool("candidate_promote",
	mcp.WithDescription("Promote an accepted candidate into the canonical entity store. Retrying a completed promotion returns the original entity id."),
	mcp.WithString("candidate_id", mcp.Required(),
		mcp.Description("Candidate id, must be accepted or merged")),
	mcp.WithString("canonical_name",
		mcp.Description("Entity display name (defaults to the decision's suggested name, then the key)")),
	mcp.WithString("merge_with_entity_id",
		mcp.Description("Merge the candidate's payload into this existing entity instead of creating one")),
	mcp.WithBoolean("dry_run",
		mcp.Description("Preview the promotion without writing anything")),
)

var reviewToolDef = mcp.NewTool("candidate_review",
	mcp.WithDescription("Apply an external review event. Replays of an already-applied event id return the original decision without re-applying it."),
	mcp.WithString("event_id", mcp.Required(),
		mcp.Description("The external system's delivery id, used for idempotency")),
	mcp.WithString("candidate_id", mcp.Required(),
		mcp.Description("Candidate id")),
	mcp.WithString("decision", mcp.Required(),
		mcp.Description("Decision kind"),
		mcp.Enum("accept", "reject", "merge", "needs_more_evidence", "defer")),
	mcp.WithString("actor", mcp.Required(),
		mcp.Description("Who decided in the external system")),
	mcp.WithString("reasoning", mcp.Required(),
		mcp.Description("Why, recorded in the decision trail")),
	mcp.WithNumber("confidence_override",
		mcp.Description("Reviewer's own confidence in [0,1]")),
	mcp.WithString("suggested_name",
		mcp.Description("Canonical display name to use at promotion time")),
)

var reverifyToolDef = mcp.NewTool("candidate_reverify",
	mcp.WithDescription("Re-run evidence verification. With an id, re-verifies that candidate; without, drains the pending queue through a claim-based worker pool."),
	mcp.WithString("id",
		mcp.Description("Single candidate to re-verify")),
	mcp.WithNumber("workers",
		mcp.Description("Pool size for queue mode (default 1)")),
	mcp.WithNumber("limit",
		mcp.Description("Max candidates to process in queue mode (0 = all pending)")),
)

var statsToolDef = mcp.NewTool("candidate_stats",
	mcp.WithDescription("Corpus totals: candidates by status, type, and confidence bucket, plus canonical entity counts."),
)
